package rdt

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func startTestServer(t *testing.T, dropRate float64) (*Server, *net.UDPConn, *net.UDPAddr) {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	srv := NewServer(conn, dropRate, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go srv.Serve(ctx)
	t.Cleanup(func() {
		cancel()
		conn.Close()
	})
	return srv, conn, conn.LocalAddr().(*net.UDPAddr)
}

func dialClient(t *testing.T, serverAddr *net.UDPAddr) *net.UDPConn {
	t.Helper()
	conn, err := net.DialUDP("udp4", nil, serverAddr)
	require.NoError(t, err)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	t.Cleanup(func() { conn.Close() })
	return conn
}

func recvPacket(t *testing.T, conn *net.UDPConn) Packet {
	t.Helper()
	buf := make([]byte, sizeHeader+PayloadCap)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	p, err := Decode(buf[:n])
	require.NoError(t, err)
	return p
}

func TestServerHandshake(t *testing.T) {
	_, _, addr := startTestServer(t, 0)
	client := dialClient(t, addr)

	iss := Value(2000)
	require.NoError(t, sendPacket(client, Packet{Flags: FlagSYN, Seq: iss}))
	resp := recvPacket(t, client)
	require.True(t, resp.Flags.Has(FlagSYN|FlagACK))
	require.Equal(t, iss+1, resp.Ack)

	ack := Packet{Flags: FlagACK, Seq: iss + 1, Ack: resp.Seq + 1}
	require.NoError(t, sendPacket(client, ack))
}

func TestServerIdempotentSYN(t *testing.T) {
	srv, _, addr := startTestServer(t, 0)
	client := dialClient(t, addr)

	iss := Value(3000)
	require.NoError(t, sendPacket(client, Packet{Flags: FlagSYN, Seq: iss}))
	first := recvPacket(t, client)

	require.NoError(t, sendPacket(client, Packet{Flags: FlagSYN, Seq: iss}))
	second := recvPacket(t, client)

	require.True(t, first.Flags.Has(FlagSYN|FlagACK))
	require.True(t, second.Flags.Has(FlagSYN|FlagACK))
	require.Equal(t, 1, srv.PeerCount())

	ack := Packet{Flags: FlagACK, Seq: iss + 1, Ack: second.Seq + 1}
	require.NoError(t, sendPacket(client, ack))
}

func TestServerDuplicateAckOnSequenceMismatch(t *testing.T) {
	_, _, addr := startTestServer(t, 0)
	client := dialClient(t, addr)

	iss := Value(4000)
	require.NoError(t, sendPacket(client, Packet{Flags: FlagSYN, Seq: iss}))
	synack := recvPacket(t, client)
	require.NoError(t, sendPacket(client, Packet{Flags: FlagACK, Seq: iss + 1, Ack: synack.Seq + 1}))

	rcvNext := synack.Ack // iss + 1
	payload := []byte("hello world")
	badSeq := rcvNext + 1000 // out of order
	require.NoError(t, sendPacket(client, Packet{Flags: FlagDATA, Seq: badSeq, Ack: 0, Data: payload}))
	dup1 := recvPacket(t, client)
	require.NoError(t, sendPacket(client, Packet{Flags: FlagDATA, Seq: badSeq, Ack: 0, Data: payload}))
	dup2 := recvPacket(t, client)

	require.True(t, dup1.Flags.Has(FlagACK))
	require.True(t, dup2.Flags.Has(FlagACK))
	require.Equal(t, rcvNext, dup1.Ack)
	require.Equal(t, dup1.Ack, dup2.Ack)

	require.NoError(t, sendPacket(client, Packet{Flags: FlagDATA, Seq: rcvNext, Ack: 0, Data: payload}))
	inOrder := recvPacket(t, client)
	require.Equal(t, rcvNext+Value(len(payload)), inOrder.Ack)
}

func TestServerFullDropRateNeverAcksData(t *testing.T) {
	_, _, addr := startTestServer(t, 1.0)
	client := dialClient(t, addr)

	iss := Value(5000)
	require.NoError(t, sendPacket(client, Packet{Flags: FlagSYN, Seq: iss}))
	synack := recvPacket(t, client)
	require.NoError(t, sendPacket(client, Packet{Flags: FlagACK, Seq: iss + 1, Ack: synack.Seq + 1}))

	require.NoError(t, sendPacket(client, Packet{Flags: FlagDATA, Seq: synack.Ack, Ack: 0, Data: []byte("x")}))
	client.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	buf := make([]byte, sizeHeader+PayloadCap)
	_, err := client.Read(buf)
	require.Error(t, err, "no ACK should arrive when drop_rate=1.0")
}

func TestServerFINTeardownRemovesPeer(t *testing.T) {
	srv, _, addr := startTestServer(t, 0)
	client := dialClient(t, addr)

	iss := Value(6000)
	require.NoError(t, sendPacket(client, Packet{Flags: FlagSYN, Seq: iss}))
	synack := recvPacket(t, client)
	require.NoError(t, sendPacket(client, Packet{Flags: FlagACK, Seq: iss + 1, Ack: synack.Seq + 1}))
	require.Equal(t, 1, srv.PeerCount())

	require.NoError(t, sendPacket(client, Packet{Flags: FlagFIN, Seq: iss + 1, Ack: synack.Ack}))
	finack := recvPacket(t, client)
	require.True(t, finack.Flags.Has(FlagFIN|FlagACK))
	require.Equal(t, iss+2, finack.Ack)

	// Server handling is synchronous per datagram, but our test reads the
	// reply before the map delete is guaranteed visible cross-goroutine;
	// poll briefly.
	require.Eventually(t, func() bool { return srv.PeerCount() == 0 }, time.Second, 5*time.Millisecond)
}

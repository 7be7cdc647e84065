package rdt

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startServerForClient brings up a real Server on loopback and returns its
// address, used by the end-to-end scenarios of spec.md §8.2.
func startServerForClient(t *testing.T, dropRate float64) string {
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
	return conn.LocalAddr().String()
}

// TestEndToEndCleanTransfer is spec.md §8.2 scenario 1: drop_rate=0, the
// whole 30-packet transfer completes with no retransmits and base lands
// exactly at iss_c+1+total_bytes.
func TestEndToEndCleanTransfer(t *testing.T) {
	addr := startServerForClient(t, 0)

	client, err := Dial(addr, 300*time.Millisecond, nil, nil)
	require.NoError(t, err)

	stats := client.Run()
	require.NoError(t, client.Close())

	assert.Equal(t, ExpectedPackets, stats.TotalPackets)
	assert.Equal(t, ExpectedPackets, stats.SuccessPackets)
	assert.Equal(t, 0, stats.FailedPackets)
	assert.Equal(t, 0, stats.RetransmittedPackets)
	assert.Equal(t, stats.TotalPackets, stats.SuccessPackets+stats.FailedPackets)
	assert.Equal(t, client.iss+1+Value(stats.TotalBytesSent), client.sender.Base())
}

// TestEndToEndLossyTransferRetransmits is spec.md §8.2 scenario 2:
// drop_rate=0.3, every admitted packet is accounted for as succeeded or
// failed, at least one retransmit occurs, and the final RTO respects the
// 100ms floor. The stats keep only the final RTO, so whether RTO rose above
// its 300ms initial value during the run is not checked here.
func TestEndToEndLossyTransferRetransmits(t *testing.T) {
	addr := startServerForClient(t, 0.3)

	client, err := Dial(addr, 300*time.Millisecond, nil, nil)
	require.NoError(t, err)

	stats := client.Run()
	require.NoError(t, client.Close())

	assert.Equal(t, ExpectedPackets, stats.TotalPackets)
	assert.Equal(t, stats.TotalPackets, stats.SuccessPackets+stats.FailedPackets)
	assert.Greater(t, stats.RetransmittedPackets, 0, "drop_rate=0.3 should force at least one retransmit")
	assert.GreaterOrEqual(t, stats.FinalRTO, minRTO)
}

// TestEndToEndPathologicalDropRateStillTerminates is spec.md §8.2 scenario
// 3: drop_rate=0.9, some packets abandon after 5 retries, but the sender
// still terminates within the drain window and every admitted packet is
// accounted for as either succeeded or failed.
func TestEndToEndPathologicalDropRateStillTerminates(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping pathological-loss scenario in -short mode")
	}
	addr := startServerForClient(t, 0.9)

	client, err := Dial(addr, 300*time.Millisecond, nil, nil)
	require.NoError(t, err)

	stats := client.Run()
	require.NoError(t, client.Close())

	assert.Equal(t, ExpectedPackets, stats.TotalPackets)
	assert.Equal(t, stats.TotalPackets, stats.FailedPackets+stats.SuccessPackets)
}

package rdt

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net"
	"time"

	"github.com/soypat/rdtlab/internal"
)

const (
	// ExpectedPackets is the number of DATA packets the producer loop
	// admits before entering the drain phase (spec.md §4.4.2).
	ExpectedPackets = 30
	// MinPayload and MaxPayload bound the per-send random payload size.
	MinPayload = 40
	MaxPayload = 80

	producerRetryDelay = 10 * time.Millisecond
	drainPollInterval  = 100 * time.Millisecond
	drainMaxWait       = 30 * time.Second
)

// Client is the RDT sender side: a UDP socket, a Sender, and the
// receiver goroutine that feeds ACKs into it.
type Client struct {
	conn    *net.UDPConn
	sender  *Sender
	log     *slog.Logger
	metrics *Metrics
	iss     Value
	done    chan struct{}
}

// Dial performs the 3-way handshake of spec.md §4.3.1 against addr, using
// recvTimeout as the single socket timeout for the SYN|ACK wait — there is
// no handshake retry layer, so a lost SYN|ACK surfaces as ErrHandshakeTimeout
// (spec.md §9, Open Question (a)).
func Dial(addr string, recvTimeout time.Duration, log *slog.Logger, metrics *Metrics) (*Client, error) {
	if log == nil {
		log = slog.Default()
	}
	udpAddr, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("rdt: resolve %q: %w", addr, err)
	}
	conn, err := net.DialUDP("udp4", nil, udpAddr)
	if err != nil {
		return nil, fmt.Errorf("rdt: dial %q: %w", addr, err)
	}

	iss := NewISS()
	log.Info("connecting", "addr", addr, "iss", iss)
	if err := sendPacket(conn, Packet{Flags: FlagSYN, Seq: iss, Ack: 0}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("rdt: send SYN: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(recvTimeout))
	buf := make([]byte, sizeHeader+PayloadCap)
	n, err := conn.Read(buf)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %v", ErrHandshakeTimeout, err)
	}
	resp, err := Decode(buf[:n])
	if err != nil || !resp.Flags.Has(FlagSYN|FlagACK) {
		conn.Close()
		return nil, ErrHandshakeRejected
	}
	if resp.Ack != iss+1 {
		log.Warn("unexpected ack in SYN|ACK", "got", resp.Ack, "want", iss+1)
	}

	established := iss + 1
	peerAck := resp.Seq + 1
	ack := Packet{Flags: FlagACK, Seq: established, Ack: peerAck}
	if err := sendPacket(conn, ack); err != nil {
		conn.Close()
		return nil, fmt.Errorf("rdt: send handshake ACK: %w", err)
	}
	log.Info("connection established", "fingerprint", internal.ConnFingerprint(conn.LocalAddr().String(), addr, uint32(iss)))

	c := &Client{
		conn: conn,
		log:  log,
		iss:  iss,
		done: make(chan struct{}),
	}
	if metrics != nil {
		c.metrics = metrics
	}
	c.sender = NewSender(iss, established, peerAck, c.transmit, log, metrics)
	go c.receiveLoop()
	return c, nil
}

func sendPacket(conn *net.UDPConn, p Packet) error {
	buf := Encode(make([]byte, 0, sizeHeader+len(p.Data)), p.Flags, p.Seq, p.Ack, p.Data)
	_, err := conn.Write(buf)
	return err
}

func (c *Client) transmit(p Packet) error {
	if c.metrics != nil {
		c.metrics.PacketsSent.Inc()
		c.metrics.WindowOccupancy.Set(float64(c.sender.NextSeq() - c.sender.Base()))
	}
	return sendPacket(c.conn, p)
}

// receiveLoop is the ACK-dispatching goroutine; it terminates once the
// sender leaves ESTABLISHED (spec.md §5 cancellation).
func (c *Client) receiveLoop() {
	defer close(c.done)
	buf := make([]byte, sizeHeader+PayloadCap)
	for c.sender.State() == StateEstablished {
		c.conn.SetReadDeadline(time.Now().Add(c.sender.RTO()))
		n, err := c.conn.Read(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return
		}
		pkt, err := Decode(buf[:n])
		if err != nil {
			c.log.Debug("dropping malformed packet", "err", err)
			continue
		}
		if c.metrics != nil {
			c.metrics.PacketsReceived.Inc()
		}
		if pkt.Flags.Has(FlagACK) {
			c.sender.OnAck(pkt.Ack)
			if c.metrics != nil {
				c.metrics.CurrentRTOSeconds.Set(c.sender.RTO().Seconds())
			}
		}
	}
}

// Run executes the producer/drain loop of spec.md §4.4.2: it admits up to
// ExpectedPackets DATA packets of random size in [MinPayload, MaxPayload],
// backing off producerRetryDelay on refusal, scanning for due retransmits
// every iteration, then drains outstanding packets for up to drainMaxWait
// before returning. It returns the final SenderStats regardless of whether
// every packet was ultimately acknowledged.
func (c *Client) Run() SenderStats {
	for id := 1; id <= ExpectedPackets; {
		size := MinPayload + rand.IntN(MaxPayload-MinPayload+1)
		payload := make([]byte, size)
		for i := range payload {
			payload[i] = 'X'
		}
		err := c.sender.Admit(id, payload)
		c.sender.RetransmitDue(time.Now())
		if err == nil {
			id++
		}
		time.Sleep(producerRetryDelay)
	}

	deadline := time.Now().Add(drainMaxWait)
	for !c.sender.Drained() && time.Now().Before(deadline) {
		time.Sleep(drainPollInterval)
		c.sender.RetransmitDue(time.Now())
	}
	if !c.sender.Drained() {
		c.log.Warn("drain phase ended with unresolved packets", "base", c.sender.Base(), "nextSeq", c.sender.NextSeq())
	}
	return c.sender.Stats()
}

// Close performs the abbreviated 4-way teardown of spec.md §4.3.2: it sends
// FIN, waits once for FIN|ACK, sends a final ACK if one arrives, and always
// closes the socket locally even if the server's response never shows up.
func (c *Client) Close() error {
	c.sender.SetClosed()
	<-c.done

	next := c.sender.NextSeq()
	fin := Packet{Flags: FlagFIN, Seq: next, Ack: c.sender.PeerAck()}
	if err := sendPacket(c.conn, fin); err != nil {
		c.log.Warn("send FIN failed", "err", err)
		return c.conn.Close()
	}

	c.conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	buf := make([]byte, sizeHeader+PayloadCap)
	n, err := c.conn.Read(buf)
	if err != nil {
		c.log.Info("teardown response timed out, closing locally")
		return c.conn.Close()
	}
	resp, err := Decode(buf[:n])
	if err == nil && resp.Flags.Has(FlagFIN|FlagACK) {
		finalAck := Packet{Flags: FlagACK, Seq: next + 1, Ack: resp.Seq + 1}
		sendPacket(c.conn, finalAck)
		c.log.Info("connection closed")
	}
	return c.conn.Close()
}

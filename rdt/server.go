package rdt

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"net"
	"time"

	"github.com/soypat/rdtlab/internal"
)

const (
	idleTimeout  = 300 * time.Second
	sweepPeriod  = 60 * time.Second
	pollInterval = 1 * time.Second
)

// peerConn is the server's per-peer state (spec.md §3.3). A single
// goroutine (Server.Serve's caller) owns the map this lives in; no locking
// is required on the server side (spec.md §5).
type peerConn struct {
	state        ServerState
	issServer    Value
	rcvNext      Value
	startTime    time.Time
	lastActivity time.Time
}

// Server is the RDT demultiplexer of spec.md §4.6: one UDP socket, a
// drop-rate applied to first-arrival DATA packets in ESTABLISHED, and a
// per-peer-address connection map swept for idle entries every sweepPeriod.
type Server struct {
	conn     *net.UDPConn
	dropRate float64
	peers    map[string]*peerConn
	log      *slog.Logger
	metrics  *Metrics
}

// NewServer wraps an already-bound UDP socket. dropRate must be in
// [0.0, 1.0] (validated by the cmd harness per spec.md §6.3).
func NewServer(conn *net.UDPConn, dropRate float64, log *slog.Logger, metrics *Metrics) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		conn:     conn,
		dropRate: dropRate,
		peers:    make(map[string]*peerConn),
		log:      log,
		metrics:  metrics,
	}
}

// Serve runs the server's single-threaded receive loop until ctx is
// cancelled; socket read errors other than timeouts are logged and the loop
// continues, so Serve returns only ctx.Err(). Each datagram is handled to
// completion before the next is read (spec.md §5); a short read deadline
// lets Serve notice ctx cancellation and run the idle sweep even when no
// traffic arrives.
func (s *Server) Serve(ctx context.Context) error {
	buf := make([]byte, sizeHeader+PayloadCap)
	lastSweep := time.Now()
	for {
		select {
		case <-ctx.Done():
			s.log.Info("server shutting down")
			return ctx.Err()
		default:
		}

		s.conn.SetReadDeadline(time.Now().Add(pollInterval))
		n, addr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				if time.Since(lastSweep) >= sweepPeriod {
					s.sweepIdle()
					lastSweep = time.Now()
				}
				continue
			}
			s.log.Warn("socket error, continuing", "err", err)
			continue
		}

		pkt, err := Decode(buf[:n])
		if err != nil {
			s.log.Debug("dropping malformed packet", "peer", addr, "err", err)
			continue
		}
		if s.metrics != nil {
			s.metrics.PacketsReceived.Inc()
		}
		s.dispatch(addr, pkt)

		if time.Since(lastSweep) >= sweepPeriod {
			s.sweepIdle()
			lastSweep = time.Now()
		}
	}
}

func (s *Server) dispatch(addr *net.UDPAddr, pkt Packet) {
	key := addr.String()
	switch {
	case pkt.Flags.Has(FlagSYN):
		s.handleSYN(addr, key, pkt)
	case pkt.Flags.Has(FlagACK) && !pkt.Flags.Has(FlagDATA):
		s.handleHandshakeACK(addr, key, pkt)
	case pkt.Flags.Has(FlagDATA):
		s.handleData(addr, key, pkt)
	case pkt.Flags.Has(FlagFIN):
		s.handleFIN(addr, key, pkt)
	default:
		s.log.Debug("ignoring packet with unrecognized flags", "peer", addr, "flags", pkt.Flags)
	}
}

// handleSYN creates or refreshes SYN_RECEIVED state and replies SYN|ACK. A
// second SYN from a peer already in LISTEN (i.e. unknown) or SYN_RECEIVED
// produces a fresh iss_server each time but an identical state shape
// (spec.md §8.1 property 7, idempotent SYN).
func (s *Server) handleSYN(addr *net.UDPAddr, key string, pkt Packet) {
	now := time.Now()
	iss := NewISS()
	s.peers[key] = &peerConn{
		state:        ServerSynReceived,
		issServer:    iss,
		rcvNext:      pkt.Seq + 1,
		startTime:    now,
		lastActivity: now,
	}
	s.log.Info("SYN received", "peer", addr, "seq", pkt.Seq, "iss_server", iss,
		"fingerprint", internal.ConnFingerprint(s.conn.LocalAddr().String(), key, uint32(iss)))
	s.reply(addr, FlagSYN|FlagACK, iss, pkt.Seq+1, nil)
}

func (s *Server) handleHandshakeACK(addr *net.UDPAddr, key string, pkt Packet) {
	p, ok := s.peers[key]
	if !ok || p.state != ServerSynReceived {
		s.log.Debug("ACK from peer not in SYN_RECEIVED, ignoring", "peer", addr)
		return
	}
	if pkt.Ack != p.issServer+1 {
		s.log.Warn("handshake ACK mismatch", "peer", addr, "got", pkt.Ack, "want", p.issServer+1)
		return
	}
	p.state = ServerEstablished
	p.lastActivity = time.Now()
	s.log.Info("connection established", "peer", addr)
}

// handleData implements spec.md §4.6 item 2's DATA branch: in-order bytes
// advance rcvNext and are ACKed, unless the per-packet Bernoulli drop
// applies; out-of-order bytes get a duplicate ACK carrying the unchanged
// rcvNext.
func (s *Server) handleData(addr *net.UDPAddr, key string, pkt Packet) {
	p, ok := s.peers[key]
	if !ok {
		s.log.Debug("DATA from unknown peer, ignoring", "peer", addr)
		return
	}
	if p.state != ServerEstablished {
		s.log.Debug("DATA from peer not ESTABLISHED, ignoring", "peer", addr, "state", p.state)
		return
	}
	p.lastActivity = time.Now()

	if pkt.Seq != p.rcvNext {
		s.log.Debug("sequence mismatch, sending duplicate ack", "peer", addr, "seq", pkt.Seq, "rcvNext", p.rcvNext)
		s.reply(addr, FlagACK, p.issServer, p.rcvNext, nil)
		return
	}

	if s.shouldDrop() {
		if s.metrics != nil {
			s.metrics.PacketsDropped.Inc()
		}
		s.log.Debug("simulated drop", "peer", addr, "seq", pkt.Seq)
		return
	}

	p.rcvNext += Value(len(pkt.Data))
	s.reply(addr, FlagACK, p.issServer, p.rcvNext, nil)
}

func (s *Server) handleFIN(addr *net.UDPAddr, key string, pkt Packet) {
	p, ok := s.peers[key]
	if !ok {
		s.log.Debug("FIN from unknown peer, ignoring", "peer", addr)
		return
	}
	s.reply(addr, FlagFIN|FlagACK, p.issServer, pkt.Seq+1, nil)
	delete(s.peers, key)
	s.log.Info("connection terminated", "peer", addr)
}

func (s *Server) shouldDrop() bool {
	if s.dropRate <= 0 {
		return false
	}
	return rand.Float64() < s.dropRate
}

func (s *Server) reply(addr *net.UDPAddr, flags Flags, seq, ack Value, data []byte) {
	buf := Encode(make([]byte, 0, sizeHeader+len(data)), flags, seq, ack, data)
	if _, err := s.conn.WriteToUDP(buf, addr); err != nil {
		s.log.Warn("reply send failed", "peer", addr, "err", err)
		return
	}
	if s.metrics != nil {
		s.metrics.PacketsSent.Inc()
	}
}

func (s *Server) sweepIdle() {
	now := time.Now()
	for key, p := range s.peers {
		if now.Sub(p.lastActivity) > idleTimeout {
			delete(s.peers, key)
			s.log.Debug("swept idle connection", "peer", key)
		}
	}
}

// PeerCount returns the number of tracked connections; used by tests.
func (s *Server) PeerCount() int { return len(s.peers) }

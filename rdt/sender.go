package rdt

import (
	"log/slog"
	"sync"
	"time"

	"github.com/soypat/rdtlab/internal"
)

const (
	// WindowBytes is the fixed sliding-window size in bytes (spec.md §3.2).
	WindowBytes Size = 400
	// MaxRetransmits is the number of resends attempted before a packet is
	// abandoned: 1 original transmission + MaxRetransmits retries, 6 total.
	MaxRetransmits = 5
)

// outstandingPacket is one entry of the sender's outstanding set: a sent,
// not-yet-acknowledged byte range together with the bookkeeping needed to
// retransmit it and sample its RTT. Grounded on tcp/txqueue.go's ringTx
// packet index entries, generalized from a byte-ring to a small ordered
// slice since RDT's window (400B, ~40-80B payloads) never holds more than a
// handful of outstanding packets at once.
type outstandingPacket struct {
	id              int
	payload         []byte
	start, end      Value // inclusive byte range [start, end]
	sendTime        time.Time
	retransmitCount int
}

// Sender is the sliding-window transmitter of §4.4. All mutation of base,
// nextSeq, outstanding and the RTT estimator is serialized by mu; the
// underlying socket write (transmit) is invoked outside the lock, since the
// OS already serializes concurrent sendto calls (spec.md §5).
type Sender struct {
	mu          sync.Mutex
	iss         Value
	base        Value
	nextSeq     Value
	windowBytes Size
	peerAck     Value // constant ack value stamped on outgoing DATA packets
	outstanding []outstandingPacket
	rtt         rttEstimator
	state       State
	log         *slog.Logger
	metrics     *Metrics

	totalPackets         int
	retransmittedPackets int
	successPackets       int
	failedPackets        int

	transmit func(Packet) error
}

// NewSender constructs a Sender in ESTABLISHED state with base and nextSeq
// both set to established (iss+1, the byte immediately following the SYN
// the caller already consumed), per the 3-way handshake's effect on sender state
// (spec.md §4.3.1 step 3). transmit is called to put an encoded DATA packet
// on the wire; it is invoked without Sender's lock held. metrics may be nil.
func NewSender(iss, established Value, peerAck Value, transmit func(Packet) error, log *slog.Logger, metrics *Metrics) *Sender {
	if log == nil {
		log = slog.Default()
	}
	s := &Sender{
		iss:         iss,
		base:        established,
		nextSeq:     established,
		windowBytes: WindowBytes,
		peerAck:     peerAck,
		rtt:         newRTTEstimator(),
		state:       StateEstablished,
		log:         log,
		metrics:     metrics,
		transmit:    transmit,
	}
	// Expected window occupancy is WindowBytes/minPayload outstanding
	// packets at most; pre-size to avoid reallocating during the transfer.
	reuseOutstanding(&s.outstanding, int(WindowBytes/40)+1)
	return s
}

// Admit attempts to send a DATA packet carrying payload, identified for
// logging/statistics purposes by id. It returns ErrRefused if the sliding
// window has no room for len(payload) more bytes (spec.md §4.4.2); the
// caller is expected to back off briefly and retry. It returns ErrClosed if
// the connection has left ESTABLISHED.
func (s *Sender) Admit(id int, payload []byte) error {
	if len(payload) > PayloadCap {
		panic("rdt: payload exceeds PayloadCap")
	}
	s.mu.Lock()
	if s.state != StateEstablished {
		s.mu.Unlock()
		return ErrClosed
	}
	if Size(s.nextSeq-s.base)+Size(len(payload)) > s.windowBytes {
		s.mu.Unlock()
		return ErrRefused
	}
	start := s.nextSeq
	end := start + Value(len(payload)) - 1
	now := time.Now()
	s.outstanding = append(s.outstanding, outstandingPacket{
		id:       id,
		payload:  payload,
		start:    start,
		end:      end,
		sendTime: now,
	})
	s.nextSeq += Value(len(payload))
	s.totalPackets++
	peerAck := s.peerAck
	s.mu.Unlock()

	pkt := Packet{Flags: FlagDATA, Seq: start, Ack: peerAck, Data: payload}
	s.log.Debug("admit data packet", "id", id, "seq", start, "end", end, "len", len(payload))
	return s.transmit(pkt)
}

// OnAck processes a cumulative acknowledgement. ACKs with ackNum < base are
// stale and are ignored; otherwise base advances to ackNum, every
// outstanding packet fully covered (end < ackNum) is retired, and an RTT
// sample is taken for each retired packet regardless of whether it was
// retransmitted (the Karn anti-principle, spec.md §4.5/§9).
func (s *Sender) OnAck(ackNum Value) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if ackNum < s.base {
		s.log.Debug("stale ack ignored", "ack", ackNum, "base", s.base)
		return
	}
	s.base = ackNum
	kept := s.outstanding[:0]
	for _, p := range s.outstanding {
		if p.end < ackNum {
			rtt := now.Sub(p.sendTime)
			newRTO := s.rtt.Sample(rtt)
			s.successPackets++
			s.log.Debug("packet acked", "id", p.id, "seq", p.start, "rtt", rtt, "rto", newRTO)
			continue
		}
		kept = append(kept, p)
	}
	s.outstanding = kept
}

// RetransmitDue resends every outstanding packet whose age exceeds the
// current RTO. A packet that reaches MaxRetransmits resends is abandoned:
// removed from outstanding and counted as failed. base is not adjusted on
// abandonment; it only ever advances in OnAck, which intentionally
// reproduces the head-of-line stall described in spec.md §9.
func (s *Sender) RetransmitDue(now time.Time) {
	rto := s.RTO()
	s.mu.Lock()
	var toSend []Packet
	kept := s.outstanding[:0]
	for i := range s.outstanding {
		p := &s.outstanding[i]
		if now.Sub(p.sendTime) <= rto {
			kept = append(kept, *p)
			continue
		}
		if p.retransmitCount >= MaxRetransmits {
			s.failedPackets++
			s.log.Warn("packet abandoned after max retransmits", "id", p.id, "seq", p.start, "retries", p.retransmitCount)
			continue
		}
		p.sendTime = now
		p.retransmitCount++
		s.retransmittedPackets++
		if s.metrics != nil {
			s.metrics.PacketsRetransmitted.Inc()
		}
		toSend = append(toSend, Packet{Flags: FlagDATA, Seq: p.start, Ack: s.peerAck, Data: p.payload})
		kept = append(kept, *p)
	}
	s.outstanding = kept
	s.mu.Unlock()

	for _, pkt := range toSend {
		s.log.Debug("retransmit data packet", "seq", pkt.Seq, "len", len(pkt.Data))
		if err := s.transmit(pkt); err != nil {
			s.log.Warn("retransmit send failed", "seq", pkt.Seq, "err", err)
		}
	}
}

// RTO returns the sender's current retransmission timeout.
func (s *Sender) RTO() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rtt.RTO()
}

// Base returns the sequence of the oldest unacknowledged byte.
func (s *Sender) Base() Value {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.base
}

// NextSeq returns the sequence of the next byte to be sent.
func (s *Sender) NextSeq() Value {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextSeq
}

// PeerAck returns the constant ack value stamped on outgoing DATA/FIN
// packets (the peer's rcv_next established at handshake completion,
// spec.md §4.3.2).
func (s *Sender) PeerAck() Value {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peerAck
}

// Drained reports whether every admitted packet has been retired, either
// by acknowledgement or abandonment.
func (s *Sender) Drained() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.outstanding) == 0
}

// SetClosed transitions the sender out of ESTABLISHED, signalling the
// receiver goroutine to stop (spec.md §5 cancellation).
func (s *Sender) SetClosed() {
	s.mu.Lock()
	s.state = StateFinWait
	s.mu.Unlock()
}

func (s *Sender) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stats snapshots the sender's run for reporting (supersedes the original
// print_statistics, see SPEC_FULL.md).
func (s *Sender) Stats() SenderStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	min, max, mean := s.rtt.minMaxMean()
	return SenderStats{
		TotalPackets:         s.totalPackets,
		RetransmittedPackets: s.retransmittedPackets,
		SuccessPackets:       s.successPackets,
		FailedPackets:        s.failedPackets,
		TotalBytesSent:       Size(s.nextSeq - s.iss - 1),
		RTTMin:               min,
		RTTMax:               max,
		RTTMean:              mean,
		FinalRTO:             s.rtt.RTO(),
	}
}

// reuseOutstanding pre-sizes the outstanding slice for a fresh Sender so
// that appends during the transfer do not reallocate.
func reuseOutstanding(buf *[]outstandingPacket, n int) {
	internal.SliceReuse(buf, n)
}

package rdt

import (
	"encoding/binary"
	"fmt"
)

// Wire layout of a Packet, big-endian, see sizeHeader.
//
//	offset  size  field
//	0       1     flags
//	1       4     seq
//	5       4     ack
//	9       2     len
//	11      len   data
const (
	sizeHeader = 11
	// PayloadCap is the maximum payload carried by a single packet.
	PayloadCap = 80
)

// Flags is a bit-set of the five RDT packet kinds. DATA is never combined
// with SYN or FIN; SYN|ACK and FIN|ACK are the only other combinations used.
type Flags uint8

const (
	FlagSYN Flags = 1 << iota
	FlagACK
	FlagFIN
	FlagDATA
	FlagRST
)

func (f Flags) Has(mask Flags) bool { return f&mask == mask }

func (f Flags) String() string {
	if f == 0 {
		return "none"
	}
	names := [...]struct {
		bit  Flags
		name string
	}{
		{FlagSYN, "SYN"}, {FlagACK, "ACK"}, {FlagFIN, "FIN"}, {FlagDATA, "DATA"}, {FlagRST, "RST"},
	}
	s := ""
	for _, n := range names {
		if f.Has(n.bit) {
			if s != "" {
				s += "|"
			}
			s += n.name
		}
	}
	return s
}

// Packet is the decoded, owned form of an RDT datagram.
type Packet struct {
	Flags Flags
	Seq   Value
	Ack   Value
	Data  []byte
}

// Encode writes the wire form of flags, seq, ack and payload into dst[:0]
// and returns the resulting slice of length sizeHeader+len(payload). dst's
// capacity is reused when large enough (it may be nil); otherwise append
// grows it, and Encode allocates nothing beyond that.
func Encode(dst []byte, flags Flags, seq, ack Value, payload []byte) []byte {
	if len(payload) > PayloadCap {
		panic("rdt: payload exceeds PayloadCap")
	}
	buf := dst[:0]
	var hdr [sizeHeader]byte
	hdr[0] = byte(flags)
	binary.BigEndian.PutUint32(hdr[1:5], uint32(seq))
	binary.BigEndian.PutUint32(hdr[5:9], uint32(ack))
	binary.BigEndian.PutUint16(hdr[9:11], uint16(len(payload)))
	buf = append(buf, hdr[:]...)
	buf = append(buf, payload...)
	return buf
}

// Decode parses a received datagram into a Packet. It fails with
// ErrMalformed when b is shorter than the fixed header, or when the
// declared length field does not equal the number of bytes that follow the
// header — Decode never trusts len(b) beyond what the header claims.
func Decode(b []byte) (Packet, error) {
	if len(b) < sizeHeader {
		return Packet{}, fmt.Errorf("%w: short header (%d bytes)", ErrMalformed, len(b))
	}
	n := binary.BigEndian.Uint16(b[9:11])
	rest := b[sizeHeader:]
	if int(n) != len(rest) {
		return Packet{}, fmt.Errorf("%w: declared len %d != remaining %d", ErrMalformed, n, len(rest))
	}
	if n > PayloadCap {
		return Packet{}, fmt.Errorf("%w: payload %d exceeds cap %d", ErrMalformed, n, PayloadCap)
	}
	p := Packet{
		Flags: Flags(b[0]),
		Seq:   Value(binary.BigEndian.Uint32(b[1:5])),
		Ack:   Value(binary.BigEndian.Uint32(b[5:9])),
	}
	if n > 0 {
		p.Data = append([]byte(nil), rest...)
	}
	return p, nil
}

func (p Packet) String() string {
	return fmt.Sprintf("%s seq=%d ack=%d len=%d", p.Flags, p.Seq, p.Ack, len(p.Data))
}

// Package rrpc implements the reverse-chunk RPC protocol: a client splits
// an ASCII file into chunks of random length within [Lmin, Lmax], sends each to a server over a TCP
// stream, and reassembles the per-chunk reversals in reverse arrival order
// to recover the whole-file reversal (spec.md §4.7, §8.1 property 8).
package rrpc

import (
	"encoding/binary"
	"fmt"
	"io"
	"math/rand/v2"
)

// Type is the RRPC message type code (spec.md §3.4).
type Type uint16

const (
	TypeInitialization Type = 1
	TypeAgree          Type = 2
	TypeReverseRequest Type = 3
	TypeReverseAnswer  Type = 4
)

func (t Type) String() string {
	switch t {
	case TypeInitialization:
		return "Initialization"
	case TypeAgree:
		return "Agree"
	case TypeReverseRequest:
		return "ReverseRequest"
	case TypeReverseAnswer:
		return "ReverseAnswer"
	default:
		return fmt.Sprintf("Type(%d)", uint16(t))
	}
}

// HeaderSize is the fixed 6-byte {type uint16, length uint32} header.
const HeaderSize = 6

// MaxChunkLen is the largest chunk payload a conforming client may send
// (spec.md §6.3: 0 ≤ Lmin ≤ Lmax ≤ 888).
const MaxChunkLen = 888

// Message is one framed RRPC protocol unit.
type Message struct {
	Type    Type
	Payload []byte
}

// Encode writes the wire form of typ, length and payload into dst[:0],
// growing it as needed, and returns the resulting slice. The length field
// is written as given and payload is appended as given; for Initialization
// callers pass the chunk count as length and a nil payload.
func Encode(dst []byte, typ Type, length uint32, payload []byte) []byte {
	dst = dst[:0]
	var hdr [HeaderSize]byte
	binary.BigEndian.PutUint16(hdr[0:2], uint16(typ))
	binary.BigEndian.PutUint32(hdr[2:6], length)
	dst = append(dst, hdr[:]...)
	dst = append(dst, payload...)
	return dst
}

// ReadMessage reads one framed message from r. For Initialization and
// Agree, Payload is left nil and the header's length field is exposed via
// the returned length so callers can interpret it as a count rather than a
// byte size.
func ReadMessage(r io.Reader) (Message, uint32, error) {
	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Message{}, 0, fmt.Errorf("rrpc: read header: %w", err)
	}
	typ := Type(binary.BigEndian.Uint16(hdr[0:2]))
	length := binary.BigEndian.Uint32(hdr[2:6])

	switch typ {
	case TypeInitialization, TypeAgree:
		return Message{Type: typ}, length, nil
	case TypeReverseRequest, TypeReverseAnswer:
		if length > MaxChunkLen {
			return Message{}, 0, fmt.Errorf("rrpc: chunk length %d exceeds %d", length, MaxChunkLen)
		}
		payload := make([]byte, length)
		if length > 0 {
			if _, err := io.ReadFull(r, payload); err != nil {
				return Message{}, 0, fmt.Errorf("rrpc: read payload: %w", err)
			}
		}
		return Message{Type: typ, Payload: payload}, length, nil
	default:
		return Message{}, 0, fmt.Errorf("rrpc: unknown type %d", typ)
	}
}

// WriteMessage frames typ, length and payload and writes them to w in one
// Write call.
func WriteMessage(w io.Writer, typ Type, length uint32, payload []byte) error {
	buf := Encode(make([]byte, 0, HeaderSize+len(payload)), typ, length, payload)
	_, err := w.Write(buf)
	return err
}

// Reverse returns a newly allocated byte-reversal of b.
func Reverse(b []byte) []byte {
	out := make([]byte, len(b))
	for i, c := range b {
		out[len(b)-1-i] = c
	}
	return out
}

// Chunk splits data into chunks whose length is drawn uniformly from
// [lmin, lmax] for each chunk in turn, clamped to the remaining bytes —
// this is how the RRPC harness derives chunk_count from an (Lmin, Lmax)
// pair applied to a file (original_source/reversetcpclient.py).
func Chunk(data []byte, lmin, lmax int) [][]byte {
	var chunks [][]byte
	for len(data) > 0 {
		n := lmin + rand.IntN(lmax-lmin+1)
		if n > len(data) {
			n = len(data)
		}
		chunks = append(chunks, data[:n])
		data = data[n:]
	}
	return chunks
}

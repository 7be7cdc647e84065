package rrpc

import (
	"fmt"
	"log/slog"
	"net"
)

// ReverseFile runs the whole-file reversal algorithm of spec.md §4.7 over a
// single TCP connection: split data into chunks in [lmin, lmax], run the
// Initialization/Agree handshake, send each chunk as a ReverseRequest, and
// concatenate the ReverseAnswers in reverse arrival order.
func ReverseFile(addr string, data []byte, lmin, lmax int, log *slog.Logger) ([]byte, error) {
	if log == nil {
		log = slog.Default()
	}
	chunks := Chunk(data, lmin, lmax)

	conn, err := net.Dial("tcp4", addr)
	if err != nil {
		return nil, fmt.Errorf("rrpc: dial %q: %w", addr, err)
	}
	defer conn.Close()

	if err := WriteMessage(conn, TypeInitialization, uint32(len(chunks)), nil); err != nil {
		return nil, fmt.Errorf("rrpc: send Initialization: %w", err)
	}
	agree, _, err := ReadMessage(conn)
	if err != nil || agree.Type != TypeAgree {
		return nil, fmt.Errorf("rrpc: expected Agree, got err=%v", err)
	}
	log.Info("rrpc handshake complete", "addr", addr, "chunks", len(chunks))

	answers := make([][]byte, len(chunks))
	for i, chunk := range chunks {
		if err := WriteMessage(conn, TypeReverseRequest, uint32(len(chunk)), chunk); err != nil {
			return nil, fmt.Errorf("rrpc: send ReverseRequest %d: %w", i, err)
		}
		resp, n, err := ReadMessage(conn)
		if err != nil || resp.Type != TypeReverseAnswer {
			return nil, fmt.Errorf("rrpc: expected ReverseAnswer for chunk %d: %w", i, err)
		}
		if int(n) != len(resp.Payload) {
			return nil, fmt.Errorf("rrpc: answer %d length mismatch", i)
		}
		answers[i] = resp.Payload
		log.Debug("chunk reversed", "chunk", i, "len", len(chunk))
	}

	// spec.md §4.7: concatenate in reverse order of arrival.
	total := 0
	for _, a := range answers {
		total += len(a)
	}
	out := make([]byte, 0, total)
	for i := len(answers) - 1; i >= 0; i-- {
		out = append(out, answers[i]...)
	}
	return out, nil
}

package rdt

import "errors"

// Sentinel errors for RDT. Most are recovered from locally per the error
// taxonomy (malformed frames are dropped and logged, state violations are
// logged and ignored); only handshake failure and socket errors propagate
// to callers.
var (
	// ErrMalformed is returned by Decode when a datagram is too short to
	// contain a header, or its declared length field does not match the
	// remaining bytes.
	ErrMalformed = errors.New("rdt: malformed packet")

	// ErrRefused is returned by Sender.Admit when the sliding window has
	// no room for the payload; the caller is expected to back off and
	// retry.
	ErrRefused = errors.New("rdt: window full, admission refused")

	// ErrHandshakeTimeout is returned by Dial when the server's SYN|ACK
	// does not arrive within the socket timeout. There is no handshake
	// retry layer: a single timeout fails the connection attempt.
	ErrHandshakeTimeout = errors.New("rdt: handshake timed out")

	// ErrHandshakeRejected is returned by Dial when a response arrives
	// but cannot be decoded or does not carry SYN|ACK. A SYN|ACK with an
	// unexpected ack number is logged, not rejected.
	ErrHandshakeRejected = errors.New("rdt: handshake rejected by peer")

	// ErrClosed is returned by Sender methods once the connection has
	// left the ESTABLISHED state.
	ErrClosed = errors.New("rdt: connection closed")
)

package rdt

import "math/rand/v2"

// Value is an RDT sequence number: unlike TCP it counts byte positions
// directly rather than wrapping mod 2^32 from an arbitrary ISN space born
// out of a 32-bit counter; for this protocol's lifetime (one short-lived
// connection, window 400 bytes) wraparound is not a concern.
type Value uint32

// Size is a byte count, used for window sizes and payload lengths.
type Size uint32

// NewISS returns an initial sequence number drawn uniformly from
// [1000, 9999], the range spec.md §3.2 requires for both client and server.
func NewISS() Value {
	return Value(1000 + rand.IntN(9999-1000+1))
}

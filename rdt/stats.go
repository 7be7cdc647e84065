package rdt

import "time"

// SenderStats summarizes a finished (or drained) transfer. It supersedes
// the Python original's print_statistics: the numbers are the same, but
// returned as a value instead of printed, so a harness may log it and a
// test may assert on it (see SPEC_FULL.md, "Supplemented features").
type SenderStats struct {
	TotalPackets         int
	RetransmittedPackets int
	SuccessPackets       int // packets fully ACKed
	FailedPackets        int // packets abandoned after 5 retransmissions
	TotalBytesSent       Size
	RTTMin, RTTMax, RTTMean time.Duration
	FinalRTO             time.Duration
}

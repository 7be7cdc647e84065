package rrpc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func startTestRRPCServer(t *testing.T) string {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	srv, err := Listen(ctx, "127.0.0.1:0", nil, nil)
	require.NoError(t, err)
	go srv.Serve(ctx)
	t.Cleanup(cancel)
	return srv.Addr().String()
}

func TestReverseFileHelloWorldScenario(t *testing.T) {
	addr := startTestRRPCServer(t)
	// spec.md §8.2 scenario 6.
	out, err := ReverseFile(addr, []byte("HelloWorld"), 3, 3, nil)
	require.NoError(t, err)
	require.Equal(t, "dlroWolleH", string(out))
}

func TestReverseFileLawHoldsForRandomChunking(t *testing.T) {
	addr := startTestRRPCServer(t)
	input := []byte("the quick brown fox jumps over the lazy dog")
	out, err := ReverseFile(addr, input, 4, 9, nil)
	require.NoError(t, err)

	want := Reverse(input)
	require.Equal(t, string(want), string(out))
}

func TestReverseFileSingleByteInput(t *testing.T) {
	addr := startTestRRPCServer(t)
	out, err := ReverseFile(addr, []byte("x"), 1, 1, nil)
	require.NoError(t, err)
	require.Equal(t, "x", string(out))
}

func TestReverseFileConcurrentClients(t *testing.T) {
	addr := startTestRRPCServer(t)
	inputs := [][]byte{
		[]byte("alpha beta gamma"),
		[]byte("delta epsilon zeta"),
		[]byte("eta theta iota kappa"),
	}
	results := make([][]byte, len(inputs))
	errs := make([]error, len(inputs))
	done := make(chan int, len(inputs))
	for i, in := range inputs {
		go func(i int, in []byte) {
			results[i], errs[i] = ReverseFile(addr, in, 3, 6, nil)
			done <- i
		}(i, in)
	}
	for range inputs {
		<-done
	}
	for i, in := range inputs {
		require.NoError(t, errs[i])
		require.Equal(t, string(Reverse(in)), string(results[i]))
	}
}

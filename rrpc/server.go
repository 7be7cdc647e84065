package rrpc

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/soypat/rdtlab/internal"
)

// Metrics are the RRPC server's Prometheus collectors (SPEC_FULL.md §3.5
// domain-stack wiring): a count of chunks served and a histogram of the
// per-chunk reverse-and-reply latency.
type Metrics struct {
	ChunksServed   prometheus.Counter
	ReverseLatency prometheus.Histogram
}

// NewMetrics registers RRPC server collectors against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ChunksServed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rrpc",
			Name:      "chunks_served_total",
			Help:      "Number of chunks reversed and answered by the server.",
		}),
		ReverseLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "rrpc",
			Name:      "reverse_latency_seconds",
			Help:      "Time from receiving a ReverseRequest to writing its ReverseAnswer.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.ChunksServed, m.ReverseLatency)
	return m
}

// Server is the RRPC listener of spec.md §4.7: one worker goroutine per
// accepted connection, each independently running the
// Initialization/Agree/ReverseRequest/ReverseAnswer exchange to completion.
type Server struct {
	ln      net.Listener
	log     *slog.Logger
	metrics *Metrics
}

// Listen binds addr with SO_REUSEADDR set (original_source/reversetcpserver.py
// sets this so a crashed or restarted server can rebind immediately).
func Listen(ctx context.Context, addr string, log *slog.Logger, metrics *Metrics) (*Server, error) {
	if log == nil {
		log = slog.Default()
	}
	lc := internal.ReuseAddrListenConfig()
	ln, err := lc.Listen(ctx, "tcp4", addr)
	if err != nil {
		return nil, fmt.Errorf("rrpc: listen %q: %w", addr, err)
	}
	return &Server{ln: ln, log: log, metrics: metrics}, nil
}

// Addr returns the listener's bound address.
func (s *Server) Addr() net.Addr { return s.ln.Addr() }

// Serve accepts connections until ctx is cancelled, spawning a worker
// goroutine per connection (spec.md §4.7 "parallel fan-out").
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.ln.Close()
	}()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.log.Info("rrpc server shutting down")
				return ctx.Err()
			}
			return fmt.Errorf("rrpc: accept: %w", err)
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	addr := conn.RemoteAddr()
	s.log.Info("rrpc connection accepted", "peer", addr)

	msg, chunkCount, err := ReadMessage(conn)
	if err != nil || msg.Type != TypeInitialization {
		s.log.Warn("expected Initialization message", "peer", addr, "err", err)
		return
	}

	if err := WriteMessage(conn, TypeAgree, 0, nil); err != nil {
		s.log.Warn("send Agree failed", "peer", addr, "err", err)
		return
	}

	for i := uint32(0); i < chunkCount; i++ {
		req, _, err := ReadMessage(conn)
		if err != nil || req.Type != TypeReverseRequest {
			s.log.Warn("expected ReverseRequest", "peer", addr, "chunk", i, "err", err)
			return
		}
		start := time.Now()
		reversed := Reverse(req.Payload)
		if err := WriteMessage(conn, TypeReverseAnswer, uint32(len(reversed)), reversed); err != nil {
			s.log.Warn("send ReverseAnswer failed", "peer", addr, "chunk", i, "err", err)
			return
		}
		if s.metrics != nil {
			s.metrics.ChunksServed.Inc()
			s.metrics.ReverseLatency.Observe(time.Since(start).Seconds())
		}
		s.log.Debug("chunk reversed", "peer", addr, "chunk", i, "len", len(req.Payload))
	}
	s.log.Info("rrpc connection closed", "peer", addr)
}

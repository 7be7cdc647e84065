// Command rdtclient drives one RDT transfer against a running rdtserver:
// handshake, send up to 30 DATA packets, drain outstanding retransmits, and
// report the transfer's statistics (spec.md §6.3).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"regexp"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/soypat/rdtlab/internal"
	"github.com/soypat/rdtlab/rdt"
)

var hostPattern = regexp.MustCompile(`^(?:(?:[0-9]{1,3}\.){3}[0-9]{1,3}|localhost)$`)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var logLevel, metricsAddr string

	cmd := &cobra.Command{
		Use:           "rdtclient <host> <port> [timeout_ms]",
		Short:         "Transfer 30 DATA packets to an rdtserver and report statistics",
		Args:          cobra.RangeArgs(2, 3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			host := args[0]
			port, err := strconv.Atoi(args[1])
			if err != nil || port < 1024 || port > 65535 {
				return fmt.Errorf("invalid port %q: must be an integer in [1024, 65535]", args[1])
			}
			if !hostPattern.MatchString(host) {
				return fmt.Errorf("invalid host %q: must be an IPv4 dotted-quad or localhost", host)
			}
			timeout := 300 * time.Millisecond
			if len(args) == 3 {
				ms, err := strconv.Atoi(args[2])
				if err != nil || ms < 1 || ms > 10000 {
					return fmt.Errorf("invalid timeout_ms %q: must be an integer in [1, 10000]", args[2])
				}
				timeout = time.Duration(ms) * time.Millisecond
			}
			return runClient(fmt.Sprintf("%s:%d", host, port), timeout, logLevel, metricsAddr)
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "address to serve Prometheus metrics on (disabled if empty)")
	return cmd
}

func runClient(addr string, timeout time.Duration, logLevel, metricsAddr string) error {
	log := internal.NewCLILogger(logLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	metrics := rdt.NewMetrics(reg, "client")
	go internal.ServeMetrics(ctx, metricsAddr, reg, log)

	log.Info("dialing rdt server", "addr", addr, "timeout", timeout)
	client, err := rdt.Dial(addr, timeout, log, metrics)
	if err != nil {
		return fmt.Errorf("rdtclient: %w", err)
	}

	done := make(chan rdt.SenderStats, 1)
	go func() { done <- client.Run() }()

	var stats rdt.SenderStats
	select {
	case stats = <-done:
	case <-ctx.Done():
		log.Info("interrupted, closing connection")
	}

	if err := client.Close(); err != nil {
		log.Warn("close failed", "err", err)
	}

	log.Info("transfer complete",
		"total_packets", stats.TotalPackets,
		"success", stats.SuccessPackets,
		"failed", stats.FailedPackets,
		"retransmitted", stats.RetransmittedPackets,
		"bytes_sent", stats.TotalBytesSent,
		"rtt_min", stats.RTTMin,
		"rtt_max", stats.RTTMax,
		"rtt_mean", stats.RTTMean,
		"final_rto", stats.FinalRTO,
	)
	return nil
}

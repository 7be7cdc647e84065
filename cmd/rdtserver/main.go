// Command rdtserver listens for RDT connections, demultiplexing by peer
// address and injecting Bernoulli packet loss at the configured drop_rate
// (spec.md §4.6, §6.3).
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"regexp"
	"strconv"
	"syscall"

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
		Use:           "rdtserver <host> <port> <drop_rate>",
		Short:         "Serve RDT connections, dropping a fraction of in-order DATA packets",
		Args:          cobra.ExactArgs(3),
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
			dropRate, err := strconv.ParseFloat(args[2], 64)
			if err != nil || dropRate < 0.0 || dropRate > 1.0 {
				return fmt.Errorf("invalid drop_rate %q: must be a float in [0.0, 1.0]", args[2])
			}
			return runServer(fmt.Sprintf("%s:%d", host, port), dropRate, logLevel, metricsAddr)
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "address to serve Prometheus metrics on (disabled if empty)")
	return cmd
}

func runServer(addr string, dropRate float64, logLevel, metricsAddr string) error {
	log := internal.NewCLILogger(logLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	metrics := rdt.NewMetrics(reg, "server")
	go internal.ServeMetrics(ctx, metricsAddr, reg, log)

	udpAddr, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return fmt.Errorf("rdtserver: resolve %q: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp4", udpAddr)
	if err != nil {
		return fmt.Errorf("rdtserver: listen %q: %w", addr, err)
	}
	defer conn.Close()

	log.Info("rdt server listening", "addr", conn.LocalAddr(), "drop_rate", dropRate)
	srv := rdt.NewServer(conn, dropRate, log, metrics)
	err = srv.Serve(ctx)
	if err != nil && ctx.Err() != nil {
		log.Info("server shut down on interrupt")
		return nil
	}
	return err
}

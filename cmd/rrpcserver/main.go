// Command rrpcserver accepts RRPC stream connections and reverses chunks
// for each client on its own worker (spec.md §4.7, §6.3).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/soypat/rdtlab/internal"
	"github.com/soypat/rdtlab/rrpc"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var logLevel, metricsAddr string

	cmd := &cobra.Command{
		Use:           "rrpcserver <port>",
		Short:         "Serve RRPC chunk-reversal requests, one worker per connection",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			port, err := strconv.Atoi(args[0])
			if err != nil || port < 1024 || port > 65535 {
				return fmt.Errorf("invalid port %q: must be an integer in [1024, 65535]", args[0])
			}
			return runServer(port, logLevel, metricsAddr)
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "address to serve Prometheus metrics on (disabled if empty)")
	return cmd
}

func runServer(port int, logLevel, metricsAddr string) error {
	log := internal.NewCLILogger(logLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	metrics := rrpc.NewMetrics(reg)
	go internal.ServeMetrics(ctx, metricsAddr, reg, log)

	addr := fmt.Sprintf(":%d", port)
	srv, err := rrpc.Listen(ctx, addr, log, metrics)
	if err != nil {
		return fmt.Errorf("rrpcserver: %w", err)
	}
	log.Info("rrpc server listening", "addr", srv.Addr())

	err = srv.Serve(ctx)
	if err != nil && ctx.Err() != nil {
		log.Info("server shut down on interrupt")
		return nil
	}
	return err
}

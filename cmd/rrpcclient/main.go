// Command rrpcclient reverses a text file by round-tripping its chunks
// through an rrpcserver (spec.md §4.7, §6.3).
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/soypat/rdtlab/internal"
	"github.com/soypat/rdtlab/rrpc"
)

var (
	hostPattern = regexp.MustCompile(`^(?:(?:[0-9]{1,3}\.){3}[0-9]{1,3})$`)
	pathPattern = regexp.MustCompile(`^[\w\-./]+$`)
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:           "rrpcclient <host> <port> <Lmin> <Lmax> <input_file>",
		Short:         "Reverse a file's contents via chunked round-trips to an rrpcserver",
		Args:          cobra.ExactArgs(5),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			host := args[0]
			if !hostPattern.MatchString(host) {
				return fmt.Errorf("invalid server_ip %q: must be an IPv4 dotted-quad", host)
			}
			port, err := strconv.Atoi(args[1])
			if err != nil || port < 1 || port > 65535 {
				return fmt.Errorf("invalid server_port %q", args[1])
			}
			lmin, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("invalid Lmin %q", args[2])
			}
			lmax, err := strconv.Atoi(args[3])
			if err != nil {
				return fmt.Errorf("invalid Lmax %q", args[3])
			}
			if lmin < 0 || lmax < 1 || lmin > lmax || lmax > rrpc.MaxChunkLen {
				return fmt.Errorf("invalid Lmin/Lmax: need 0 <= Lmin <= Lmax <= %d and Lmax >= 1", rrpc.MaxChunkLen)
			}
			inputFile := args[4]
			if !pathPattern.MatchString(inputFile) {
				return fmt.Errorf("invalid input_file path %q", inputFile)
			}
			return runClient(fmt.Sprintf("%s:%d", host, port), lmin, lmax, inputFile, logLevel)
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	return cmd
}

func runClient(addr string, lmin, lmax int, inputFile, logLevel string) error {
	log := internal.NewCLILogger(logLevel)

	data, err := os.ReadFile(inputFile)
	if err != nil {
		return fmt.Errorf("rrpcclient: read %q: %w", inputFile, err)
	}

	log.Info("reversing file", "addr", addr, "input", inputFile, "bytes", len(data))
	out, err := rrpc.ReverseFile(addr, data, lmin, lmax, log)
	if err != nil {
		return fmt.Errorf("rrpcclient: %w", err)
	}

	ext := filepath.Ext(inputFile)
	base := strings.TrimSuffix(inputFile, ext)
	outputFile := base + "_reversed.txt"
	if err := os.WriteFile(outputFile, out, 0644); err != nil {
		return fmt.Errorf("rrpcclient: write %q: %w", outputFile, err)
	}
	log.Info("reversed file written", "output", outputFile, "bytes", len(out))
	return nil
}

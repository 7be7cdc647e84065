//go:build windows

package internal

import "net"

// ReuseAddrListenConfig returns a plain net.ListenConfig on Windows, where
// SO_REUSEADDR has different (and for this purpose unwanted) semantics from
// its Unix namesake.
func ReuseAddrListenConfig() net.ListenConfig {
	return net.ListenConfig{}
}

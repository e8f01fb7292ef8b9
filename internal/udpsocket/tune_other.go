//go:build !linux

package udpsocket

import "net"

// tune is a no-op on non-Linux platforms; SO_REUSEPORT and explicit buffer
// sizing are Linux-specific tuning knobs, not correctness requirements.
func tune(conn *net.UDPConn) error { return nil }

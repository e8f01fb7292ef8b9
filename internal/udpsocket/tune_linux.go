//go:build linux

package udpsocket

import (
	"net"

	"golang.org/x/sys/unix"
)

// rcvBufBytes and sndBufBytes are sized for bursts of compressed Input
// packets across up to 8 peers; the kernel doubles whatever is requested,
// so this targets roughly 512 KiB each way after doubling.
const (
	rcvBufBytes = 256 * 1024
	sndBufBytes = 256 * 1024
)

// tune applies SO_REUSEPORT (so a host can bind the same port from multiple
// processes, e.g. a relay and a spectator splitter) and generous send/recv
// buffers so a burst of rollback input packets doesn't get dropped by the
// kernel before ReceiveAll can drain it.
func tune(conn *net.UDPConn) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	var sockErr error
	err = raw.Control(func(fd uintptr) {
		if sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); sockErr != nil {
			return
		}
		if sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, rcvBufBytes); sockErr != nil {
			return
		}
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_SNDBUF, sndBufBytes)
	})
	if err != nil {
		return err
	}
	return sockErr
}

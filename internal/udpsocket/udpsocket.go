// Package udpsocket is the real non-blocking UDP transport that satisfies
// internal/socket.Socket, the concrete collaborator a host wires in for
// production play (spec.md §6.1). The protocol and session tests use
// internal/socket.MemorySocket instead.
package udpsocket

import (
	"fmt"
	"net"
	"time"

	"github.com/nullframe/rollback/internal/socket"
)

// recvBatchLimit bounds how many packets ReceiveAll drains in one call so a
// flooding peer can't stall the host's tick.
const recvBatchLimit = 256

// maxDatagram is larger than any Input message this protocol ever produces
// (see internal/wire), with headroom for jumbo compressed bursts.
const maxDatagram = 4096

// UDPSocket wraps a *net.UDPConn as a non-blocking socket.Socket[*net.UDPAddr].
// Non-blocking is simulated with an immediate read deadline: ReceiveAll
// drains whatever has already arrived in the kernel's receive buffer and
// returns as soon as a read would otherwise block.
type UDPSocket struct {
	conn *net.UDPConn
	buf  [maxDatagram]byte
}

// Listen opens a UDP socket bound to laddr (e.g. ":7777") and applies
// Linux-specific tuning where available (see tune_linux.go).
func Listen(laddr string) (*UDPSocket, error) {
	addr, err := net.ResolveUDPAddr("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", laddr, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen udp %q: %w", laddr, err)
	}
	if err := tune(conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("tune socket: %w", err)
	}
	return &UDPSocket{conn: conn}, nil
}

// LocalAddr returns the bound local address.
func (s *UDPSocket) LocalAddr() *net.UDPAddr {
	return s.conn.LocalAddr().(*net.UDPAddr)
}

// Close releases the underlying file descriptor.
func (s *UDPSocket) Close() error { return s.conn.Close() }

// SendTo fires a single datagram at addr. Errors are non-fatal to the
// protocol (spec.md §4.5 failure semantics); the caller reports them as
// telemetry and retries on the next poll.
func (s *UDPSocket) SendTo(addr *net.UDPAddr, data []byte) error {
	_, err := s.conn.WriteToUDP(data, addr)
	return err
}

// ReceiveAll drains every datagram already sitting in the socket's receive
// buffer, up to recvBatchLimit, never blocking past what has already
// arrived.
func (s *UDPSocket) ReceiveAll() []socket.Packet[*net.UDPAddr] {
	var out []socket.Packet[*net.UDPAddr]
	for i := 0; i < recvBatchLimit; i++ {
		if err := s.conn.SetReadDeadline(time.Now()); err != nil {
			break
		}
		n, from, err := s.conn.ReadFromUDP(s.buf[:])
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				break
			}
			break
		}
		cp := make([]byte, n)
		copy(cp, s.buf[:n])
		out = append(out, socket.Packet[*net.UDPAddr]{Addr: from, Data: cp})
	}
	return out
}

var _ socket.Socket[*net.UDPAddr] = (*UDPSocket)(nil)

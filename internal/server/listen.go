package server

import (
	"context"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// Socket buffer sizes for burst handling (1MB each); smaller than teacher's
// 4MB since this module runs one socket, not one per core.
const (
	socketRecvBufferSize = 1 * 1024 * 1024
	socketSendBufferSize = 1 * 1024 * 1024
)

// Listen opens the UDP socket the server receives on. SO_REUSEPORT is set
// even though this module binds a single socket (spec §6 calls for one
// listener, not one per core): it costs nothing and lets an operator run a
// second instance bound to the same address:port without a restart.
func Listen(addr string) (*net.UDPConn, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}

	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var sockErr error
			err := c.Control(func(fd uintptr) {
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
			})
			if err != nil {
				return err
			}
			return sockErr
		},
	}

	pc, err := lc.ListenPacket(context.Background(), "udp", udpAddr.String())
	if err != nil {
		return nil, err
	}
	conn := pc.(*net.UDPConn)

	_ = conn.SetReadBuffer(socketRecvBufferSize)
	_ = conn.SetWriteBuffer(socketSendBufferSize)

	return conn, nil
}

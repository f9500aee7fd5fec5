package clientpool

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

// startEchoTCPServer accepts connections, serving each on its own goroutine,
// and answers every length-prefixed framed request with reply.
func startEchoTCPServer(t *testing.T, reply []byte) (string, func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				for {
					if _, err := readTCPFramed(c); err != nil {
						return
					}
					if err := writeTCPFramed(c, reply); err != nil {
						return
					}
				}
			}(conn)
		}
	}()

	return ln.Addr().String(), func() { _ = ln.Close() }
}

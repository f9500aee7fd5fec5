// Package clientpool implements the three wire transports a leaf upstream
// can be built over: plain UDP, DNS-over-TLS, and DNS-over-HTTPS. Each
// exposes Send(ctx, reqBytes) ([]byte, error), so any of them can back an
// upstream.Leaf.
package clientpool

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"

	"github.com/proksi-dns/droute/internal/helpers"
)

// maxTCPMessageSize is the largest message a 2-byte length prefix can frame.
const maxTCPMessageSize = 65535

// writeTCPFramed writes msg to conn with the RFC 1035 Section 4.2.2 2-byte
// big-endian length prefix used by TCP and DoT.
func writeTCPFramed(conn net.Conn, msg []byte) error {
	var prefix [2]byte
	binary.BigEndian.PutUint16(prefix[:], helpers.ClampIntToUint16(len(msg)))
	if _, err := conn.Write(prefix[:]); err != nil {
		return err
	}
	_, err := conn.Write(msg)
	return err
}

// readTCPFramed reads one length-prefixed message from conn.
func readTCPFramed(conn net.Conn) ([]byte, error) {
	var prefix [2]byte
	if _, err := io.ReadFull(conn, prefix[:]); err != nil {
		return nil, err
	}
	n := int(binary.BigEndian.Uint16(prefix[:]))
	if n <= 0 || n > maxTCPMessageSize {
		return nil, fmt.Errorf("clientpool: invalid framed message length %d", n)
	}
	resp := make([]byte, n)
	if _, err := io.ReadFull(conn, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

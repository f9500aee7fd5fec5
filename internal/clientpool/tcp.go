package clientpool

import (
	"context"
	"net"
	"time"
)

// queryTCP sends reqBytes to addr over a transient TCP connection and
// returns the framed response, grounded on teacher's queryUpstreamTCP.
func queryTCP(ctx context.Context, addr string, reqBytes []byte, timeout time.Duration) ([]byte, error) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if deadline, ok := dialCtx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if err := writeTCPFramed(conn, reqBytes); err != nil {
		return nil, err
	}
	return readTCPFramed(conn)
}

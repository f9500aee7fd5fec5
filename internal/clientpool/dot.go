package clientpool

import (
	"context"
	"crypto/tls"
	"net"
	"time"
)

type pooledTLSConn struct {
	conn     *tls.Conn
	lastUsed time.Time
}

// DoTClient is a pooled DNS-over-TLS client (RFC 7858), framing queries the
// same way TCP DNS does (2-byte length prefix) but over a *tls.Conn.
// Pool/acquire/release mechanics are the same channel-based scheme as
// UDPClient, grounded on the same teacher ensurePool/acquireConnection
// pattern; only the dial and framing differ.
type DoTClient struct {
	addr       string // host:853
	serverName string
	tlsConfig  *tls.Config

	pool chan *pooledTLSConn
	size int

	DialTimeout time.Duration

	reaper *idleReaper
}

// NewDoTClient constructs a DoT client for upstream (host or host:port,
// default port 853).
func NewDoTClient(upstream, serverName string, poolSize int, reapInterval, maxIdle time.Duration) (*DoTClient, error) {
	addr := upstream
	if _, _, err := net.SplitHostPort(upstream); err != nil {
		addr = net.JoinHostPort(upstream, "853")
	}
	if poolSize <= 0 {
		poolSize = 1
	}
	if serverName == "" {
		serverName = upstream
	}
	c := &DoTClient{
		addr:        addr,
		serverName:  serverName,
		tlsConfig:   &tls.Config{ServerName: serverName, MinVersion: tls.VersionTLS12},
		pool:        make(chan *pooledTLSConn, poolSize),
		size:        poolSize,
		DialTimeout: 5 * time.Second,
	}
	if reapInterval > 0 {
		c.reaper = newIdleReaper(reapInterval, maxIdle)
		c.reaper.register(c.sweep)
	}
	return c, nil
}

// Send writes reqBytes and returns the framed response.
func (c *DoTClient) Send(ctx context.Context, reqBytes []byte) ([]byte, error) {
	conn, fromPool, err := c.acquire(ctx)
	if err != nil {
		return nil, err
	}
	ok := true
	defer func() { c.release(conn, fromPool, ok) }()

	if deadline, set := ctx.Deadline(); set {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(5 * time.Second))
	}

	if err := writeTCPFramed(conn, reqBytes); err != nil {
		ok = false
		return nil, err
	}
	resp, err := readTCPFramed(conn)
	if err != nil {
		ok = false
		return nil, err
	}
	return resp, nil
}

func (c *DoTClient) acquire(ctx context.Context) (*tls.Conn, bool, error) {
	select {
	case pc := <-c.pool:
		return pc.conn, true, nil
	default:
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.dialTimeout())
	defer cancel()

	var d net.Dialer
	tlsDialer := tls.Dialer{NetDialer: &d, Config: c.tlsConfig}
	conn, err := tlsDialer.DialContext(dialCtx, "tcp", c.addr)
	if err != nil {
		return nil, false, err
	}
	return conn.(*tls.Conn), false, nil
}

func (c *DoTClient) dialTimeout() time.Duration {
	if c.DialTimeout <= 0 {
		return 5 * time.Second
	}
	return c.DialTimeout
}

func (c *DoTClient) release(conn *tls.Conn, fromPool, healthy bool) {
	if !healthy {
		_ = conn.Close()
		return
	}
	select {
	case c.pool <- &pooledTLSConn{conn: conn, lastUsed: time.Now()}:
	default:
		_ = conn.Close()
	}
}

func (c *DoTClient) sweep(now time.Time) {
	n := len(c.pool)
	for range n {
		select {
		case pc := <-c.pool:
			if now.Sub(pc.lastUsed) > c.reaper.maxIdle {
				_ = pc.conn.Close()
				continue
			}
			select {
			case c.pool <- pc:
			default:
				_ = pc.conn.Close()
			}
		default:
			return
		}
	}
}

// Close releases all pooled connections and stops the idle reaper.
func (c *DoTClient) Close() error {
	if c.reaper != nil {
		c.reaper.stop()
	}
	close(c.pool)
	for pc := range c.pool {
		_ = pc.conn.Close()
	}
	return nil
}

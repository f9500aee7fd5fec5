package clientpool

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/proksi-dns/droute/internal/dnsmsg"
)

// DefaultRecvSize is the buffer size for a UDP read, large enough for an
// EDNS-advertised response well above the Flag Day 2020 ceiling but still
// bounded.
const DefaultRecvSize = 4096

type pooledUDPConn struct {
	conn     *net.UDPConn
	lastUsed time.Time
}

// UDPClient is a pooled UDP client for one upstream address (spec §4.3),
// grounded on teacher ForwardingResolver's ensurePool/acquireConnection/
// releaseConnection/queryOneAttempt. TCPFallback, when set, retries a
// truncated UDP response over TCP using the same length-prefixed framing
// DoTClient uses.
type UDPClient struct {
	addr *net.UDPAddr

	poolMu sync.Mutex
	pool   chan *pooledUDPConn
	size   int

	RecvSize    int
	TCPFallback bool
	TCPTimeout  time.Duration

	reaper *idleReaper
}

// NewUDPClient resolves upstream (host or host:port, default port 53) and
// constructs a client with a connection pool of the given size. Connections
// are dialed lazily on demand, matching the teacher's "partial pool is
// acceptable" behavior rather than failing startup on a transient dial
// error.
func NewUDPClient(upstream string, poolSize int, reapInterval, maxIdle time.Duration) (*UDPClient, error) {
	addr, err := resolveUDPAddr(upstream)
	if err != nil {
		return nil, err
	}
	if poolSize <= 0 {
		poolSize = 1
	}
	c := &UDPClient{
		addr:        addr,
		pool:        make(chan *pooledUDPConn, poolSize),
		size:        poolSize,
		RecvSize:    DefaultRecvSize,
		TCPFallback: true,
		TCPTimeout:  5 * time.Second,
	}
	if reapInterval > 0 {
		c.reaper = newIdleReaper(reapInterval, maxIdle)
		c.reaper.register(c.sweep)
	}
	return c, nil
}

func resolveUDPAddr(upstream string) (*net.UDPAddr, error) {
	host := upstream
	if _, _, err := net.SplitHostPort(upstream); err != nil {
		host = net.JoinHostPort(upstream, "53")
	}
	return net.ResolveUDPAddr("udp", host)
}

// Send writes reqBytes and returns the raw response, falling back to TCP if
// the UDP response is truncated and TCPFallback is enabled.
func (c *UDPClient) Send(ctx context.Context, reqBytes []byte) ([]byte, error) {
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

	if _, err := conn.Write(reqBytes); err != nil {
		ok = false
		return nil, err
	}

	buf := make([]byte, c.recvSize())
	n, err := conn.Read(buf)
	if err != nil {
		ok = false
		return nil, err
	}
	resp := buf[:n:n]

	if c.TCPFallback && dnsmsg.IsTruncated(resp) {
		return queryTCP(ctx, c.addr.String(), reqBytes, c.TCPTimeout)
	}
	return resp, nil
}

func (c *UDPClient) recvSize() int {
	if c.RecvSize <= 0 {
		return DefaultRecvSize
	}
	return c.RecvSize
}

func (c *UDPClient) acquire(ctx context.Context) (*net.UDPConn, bool, error) {
	select {
	case pc := <-c.pool:
		return pc.conn, true, nil
	default:
	}
	conn, err := net.DialUDP("udp", nil, c.addr)
	if err != nil {
		return nil, false, err
	}
	return conn, false, nil
}

func (c *UDPClient) release(conn *net.UDPConn, fromPool, healthy bool) {
	if !healthy {
		_ = conn.Close()
		return
	}
	select {
	case c.pool <- &pooledUDPConn{conn: conn, lastUsed: time.Now()}:
	default:
		_ = conn.Close()
	}
}

// sweep drains the pool, closing connections idle past the reaper's
// maxIdle window and returning the rest.
func (c *UDPClient) sweep(now time.Time) {
	c.poolMu.Lock()
	defer c.poolMu.Unlock()

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
func (c *UDPClient) Close() error {
	if c.reaper != nil {
		c.reaper.stop()
	}
	close(c.pool)
	for pc := range c.pool {
		_ = pc.conn.Close()
	}
	return nil
}

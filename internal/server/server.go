// Package server implements the UDP listener and per-query dispatch loop
// (spec §4.5): one socket, one goroutine per received datagram, a global
// rate-limiter gate between receives, and a cooperative shutdown race for
// every in-flight worker.
package server

import (
	"context"
	"log/slog"
	"net"
	"net/netip"

	"github.com/proksi-dns/droute/internal/dnsmsg"
	"github.com/proksi-dns/droute/internal/pool"
	"github.com/proksi-dns/droute/internal/ratelimit"
	"github.com/proksi-dns/droute/internal/router"
	"github.com/proksi-dns/droute/internal/shutdown"
)

// maxResponseSize is the invariant payload-size ceiling: 1232 bytes per
// datagram (DNS Flag Day 2020). The server never sends more than this
// regardless of what UDP payload size the client's own EDNS OPT record
// advertised.
const maxResponseSize = 1232

// recvBufferSize bounds the fixed receive buffer; any message larger than
// this never reaches ParseRequestBounded (which applies the same
// MaxIncomingDNSMessageSize limit) because the kernel has already truncated it.
const recvBufferSize = dnsmsg.MaxIncomingDNSMessageSize

// recvBufferPool reduces per-datagram allocations for incoming packets.
var recvBufferPool = pool.New(func() *[]byte {
	b := make([]byte, recvBufferSize)
	return &b
})

// Server dispatches datagrams received on Conn to Router, gated by Limiter
// and coordinated with Shutdown for graceful exit.
type Server struct {
	Conn     *net.UDPConn
	Router   *router.Router
	Limiter  *ratelimit.Limiter
	Shutdown *shutdown.Broadcaster
	Logger   *slog.Logger
}

// Serve runs the receive loop until ctx is cancelled. It always returns nil;
// shutdown is signaled by cancelling ctx, which unblocks the blocking read
// by closing Conn.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = s.Conn.Close()
	}()

	for {
		bufPtr := recvBufferPool.Get()
		n, peer, err := s.Conn.ReadFromUDP(*bufPtr)
		if err != nil {
			recvBufferPool.Put(bufPtr)
			if ctx.Err() != nil {
				return nil
			}
			// Transient receive error: log and keep serving (spec §4.5 —
			// never terminate on a spurious peer-side pipe break).
			s.Logger.Warn("udp receive error", "err", err)
			continue
		}

		go s.handleQuery(ctx, bufPtr, n, peer)

		if err := s.Limiter.UntilReady(ctx); err != nil {
			return nil
		}
	}
}

// handleQuery runs one query to completion and writes its response, racing
// the work against the shutdown signal. On shutdown it aborts without
// responding (spec §4.5, §5). It owns bufPtr and returns it to the pool once
// the request bytes are no longer needed.
func (s *Server) handleQuery(ctx context.Context, bufPtr *[]byte, n int, peer *net.UDPAddr) {
	sub := s.Shutdown.Subscribe()
	defer sub.Done()

	reqBytes := make([]byte, n)
	copy(reqBytes, (*bufPtr)[:n])
	recvBufferPool.Put(bufPtr)

	done := make(chan []byte, 1)
	go func() {
		done <- s.resolve(ctx, reqBytes, peer)
	}()

	select {
	case <-sub.C():
		return
	case resp := <-done:
		if resp == nil {
			return
		}
		if _, err := s.Conn.WriteToUDP(resp, peer); err != nil {
			s.Logger.Warn("udp send error", "err", err, "peer", peer)
		}
	}
}

// resolve parses reqBytes, routes the query, and enforces the response size
// ceiling. A query whose resolution fails produces no response at all — the
// client times out and retries (spec §7) — so this only ever returns a
// response on success; any failure is logged at warn and dropped (spec §4.5,
// matching dcompass main.rs's spawned worker, which logs "Handling query
// failed" and drops rather than synthesizing a reply).
func (s *Server) resolve(ctx context.Context, reqBytes []byte, peer *net.UDPAddr) []byte {
	req, err := dnsmsg.ParseRequestBounded(reqBytes)
	if err != nil {
		s.Logger.Warn("parse error", "err", err, "peer", peer)
		return nil
	}

	clientAddr, _ := addrFromUDPAddr(peer)

	resp, err := s.Router.Route(ctx, req, reqBytes, clientAddr)
	if err != nil {
		s.Logger.Warn("router error", "err", err, "qname", questionName(req))
		return nil
	}

	maxSize := dnsmsg.ClientMaxUDPSize(req)
	if maxSize > maxResponseSize {
		maxSize = maxResponseSize
	}
	return truncateUDPResponse(resp, maxSize)
}

func questionName(p dnsmsg.Packet) string {
	if len(p.Questions) == 0 {
		return "<no-question>"
	}
	return p.Questions[0].Name
}

func addrFromUDPAddr(addr *net.UDPAddr) (netip.Addr, bool) {
	if addr == nil {
		return netip.Addr{}, false
	}
	ip, ok := netip.AddrFromSlice(addr.IP)
	if !ok {
		return netip.Addr{}, false
	}
	return ip.Unmap(), true
}

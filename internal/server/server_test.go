package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proksi-dns/droute/internal/cache"
	"github.com/proksi-dns/droute/internal/dnsmsg"
	"github.com/proksi-dns/droute/internal/ratelimit"
	"github.com/proksi-dns/droute/internal/router"
	"github.com/proksi-dns/droute/internal/shutdown"
	"github.com/proksi-dns/droute/internal/upstream"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubUpstreamClient struct {
	resp []byte
	err  error
}

func (c *stubUpstreamClient) Send(ctx context.Context, reqBytes []byte) ([]byte, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.resp, nil
}

func answerBytes(t *testing.T, name string, ttl uint32) []byte {
	t.Helper()
	pkt := dnsmsg.Packet{
		Header:    dnsmsg.Header{ID: 1, Flags: 0x8180},
		Questions: []dnsmsg.Question{{Name: name, Type: uint16(dnsmsg.TypeA), Class: uint16(dnsmsg.ClassIN)}},
		Answers: []dnsmsg.Record{
			{Name: name, Type: uint16(dnsmsg.TypeA), Class: uint16(dnsmsg.ClassIN), TTL: ttl, Data: []byte{1, 2, 3, 4}},
		},
	}
	b, err := pkt.Marshal()
	require.NoError(t, err)
	return b
}

func newTestRouter(t *testing.T) *router.Router {
	t.Helper()
	client := &stubUpstreamClient{resp: answerBytes(t, "example.com.", 60)}
	leaf := upstream.NewLeaf("primary", client, 16, cache.DefaultPolicy(), time.Second)
	reg, err := upstream.NewRegistry([]upstream.Entry{{Label: "primary", Upstream: leaf}})
	require.NoError(t, err)
	rt, err := router.New([]router.Rule{{Name: "default", Label: "primary"}}, reg)
	require.NoError(t, err)
	return rt
}

func newFailingTestRouter(t *testing.T) *router.Router {
	t.Helper()
	client := &stubUpstreamClient{err: errors.New("upstream unreachable")}
	leaf := upstream.NewLeaf("primary", client, 16, cache.DefaultPolicy(), time.Second)
	reg, err := upstream.NewRegistry([]upstream.Entry{{Label: "primary", Upstream: leaf}})
	require.NoError(t, err)
	rt, err := router.New([]router.Rule{{Name: "default", Label: "primary"}}, reg)
	require.NoError(t, err)
	return rt
}

func newLoopbackConn(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	return conn
}

func newTestServer(t *testing.T, conn *net.UDPConn) *Server {
	t.Helper()
	return &Server{
		Conn:     conn,
		Router:   newTestRouter(t),
		Limiter:  ratelimit.New(0, 0), // disabled: unlimited for test speed
		Shutdown: shutdown.New(),
		Logger:   discardLogger(),
	}
}

func queryBytes(t *testing.T, name string) []byte {
	t.Helper()
	pkt := dnsmsg.Packet{
		Header:    dnsmsg.Header{ID: 7, Flags: 0x0100},
		Questions: []dnsmsg.Question{{Name: name, Type: uint16(dnsmsg.TypeA), Class: uint16(dnsmsg.ClassIN)}},
	}
	b, err := pkt.Marshal()
	require.NoError(t, err)
	return b
}

func TestServer_RespondsToQuery(t *testing.T) {
	serverConn := newLoopbackConn(t)
	srv := newTestServer(t, serverConn)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = srv.Serve(ctx) }()

	client, err := net.DialUDP("udp", nil, serverConn.LocalAddr().(*net.UDPAddr))
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Write(queryBytes(t, "example.com."))
	require.NoError(t, err)

	buf := make([]byte, 2048)
	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, err := client.Read(buf)
	require.NoError(t, err)

	resp, err := dnsmsg.ParsePacket(buf[:n])
	require.NoError(t, err)
	assert.Equal(t, uint16(7), resp.Header.ID)
	assert.Len(t, resp.Answers, 1)
}

func TestServer_MalformedQueryProducesNoResponse(t *testing.T) {
	serverConn := newLoopbackConn(t)
	srv := newTestServer(t, serverConn)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = srv.Serve(ctx) }()

	client, err := net.DialUDP("udp", nil, serverConn.LocalAddr().(*net.UDPAddr))
	require.NoError(t, err)
	defer client.Close()

	// Too short to contain even a header.
	_, err = client.Write([]byte{0x00, 0x01})
	require.NoError(t, err)

	buf := make([]byte, 2048)
	require.NoError(t, client.SetReadDeadline(time.Now().Add(500*time.Millisecond)))
	_, err = client.Read(buf)
	// No header worth salvaging: the server drops the datagram silently.
	assert.Error(t, err)
}

func TestServer_UpstreamFailureProducesNoResponse(t *testing.T) {
	serverConn := newLoopbackConn(t)
	srv := newTestServer(t, serverConn)
	srv.Router = newFailingTestRouter(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = srv.Serve(ctx) }()

	client, err := net.DialUDP("udp", nil, serverConn.LocalAddr().(*net.UDPAddr))
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Write(queryBytes(t, "example.com."))
	require.NoError(t, err)

	buf := make([]byte, 2048)
	require.NoError(t, client.SetReadDeadline(time.Now().Add(500*time.Millisecond)))
	_, err = client.Read(buf)
	// Resolution failed upstream: the client gets nothing back and retries.
	assert.Error(t, err)
}

func TestServer_ShutdownAbortsInFlightWorkerWithoutResponding(t *testing.T) {
	serverConn := newLoopbackConn(t)
	srv := newTestServer(t, serverConn)
	sub := srv.Shutdown.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = srv.Serve(ctx) }()

	client, err := net.DialUDP("udp", nil, serverConn.LocalAddr().(*net.UDPAddr))
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Write(queryBytes(t, "example.com."))
	require.NoError(t, err)

	srv.Shutdown.Shutdown()
	sub.Done()
	cancel()

	require.NoError(t, client.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	buf := make([]byte, 2048)
	_, err = client.Read(buf)
	assert.Error(t, err, "no response should arrive once shutdown has been signaled")
}

func TestTruncateUDPResponse_SetsAndKeepsQuestionOnly(t *testing.T) {
	pkt := dnsmsg.Packet{
		Header:    dnsmsg.Header{ID: 9, Flags: 0x8180},
		Questions: []dnsmsg.Question{{Name: "big.example.", Type: uint16(dnsmsg.TypeA), Class: uint16(dnsmsg.ClassIN)}},
	}
	for range 50 {
		pkt.Answers = append(pkt.Answers, dnsmsg.Record{
			Name: "big.example.", Type: uint16(dnsmsg.TypeA), Class: uint16(dnsmsg.ClassIN), TTL: 60, Data: []byte{1, 2, 3, 4},
		})
	}
	full, err := pkt.Marshal()
	require.NoError(t, err)
	require.Greater(t, len(full), 100)

	truncated := truncateUDPResponse(full, 100)
	assert.LessOrEqual(t, len(truncated), 100)

	out, err := dnsmsg.ParsePacket(truncated)
	require.NoError(t, err)
	assert.NotZero(t, out.Header.Flags&dnsmsg.TCFlag)
	assert.Empty(t, out.Answers)
	assert.Equal(t, pkt.Questions, out.Questions)
}

func TestTruncateUDPResponse_NoopWhenUnderLimit(t *testing.T) {
	small := answerBytes(t, "example.com.", 60)
	assert.Equal(t, small, truncateUDPResponse(small, maxResponseSize))
}

package clientpool

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/net/http2"
)

const dnsMessageContentType = "application/dns-message"

// DoHClient is a DNS-over-HTTPS client (RFC 8484), issuing POST requests
// with an application/dns-message body. No teacher precedent exists for
// this transport (HydraDNS is UDP/TCP only); it is grounded on
// golang.org/x/net/http2 being the transport-tuning library the pack
// reaches for. Concurrent in-flight requests per upstream are capped at the
// configured pool size by the slots semaphore, the way UDPClient/DoTClient
// cap pooled connections; the number of HTTP/2 connections is not capped.
type DoHClient struct {
	url    string
	client *http.Client
	slots  chan struct{} // bounds concurrent in-flight requests to poolSize
}

// NewDoHClient constructs a client posting to endpointURL (the upstream's
// full DoH query URL, e.g. "https://dns.example/dns-query"). poolSize caps
// concurrent in-flight requests to this upstream, playing the same role
// UDPClient/DoTClient's pool size plays; idleTimeout is the transport's
// ReadIdleTimeout: after that long without a received frame it sends a
// health-check ping and closes the connection if no reply comes within
// PingTimeout. A connection that answers the ping stays open; there is no
// idle reaper goroutine for DoH.
func NewDoHClient(endpointURL string, poolSize int, idleTimeout time.Duration) (*DoHClient, error) {
	if poolSize <= 0 {
		poolSize = 1
	}
	if idleTimeout <= 0 {
		idleTimeout = 30 * time.Second
	}
	transport := &http2.Transport{
		AllowHTTP:       false,
		ReadIdleTimeout: idleTimeout,
		PingTimeout:     5 * time.Second,
	}
	return &DoHClient{
		url: endpointURL,
		client: &http.Client{
			Transport: transport,
			Timeout:   10 * time.Second,
		},
		slots: make(chan struct{}, poolSize),
	}, nil
}

// Send POSTs reqBytes as the DoH request body and returns the response
// body, expected to be a wire-format DNS message.
func (c *DoHClient) Send(ctx context.Context, reqBytes []byte) ([]byte, error) {
	select {
	case c.slots <- struct{}{}:
		defer func() { <-c.slots }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(reqBytes))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", dnsMessageContentType)
	req.Header.Set("Accept", dnsMessageContentType)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("clientpool: DoH upstream returned status %d", resp.StatusCode)
	}

	return io.ReadAll(io.LimitReader(resp.Body, maxTCPMessageSize))
}

// Close idles out pooled HTTP/2 connections.
func (c *DoHClient) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

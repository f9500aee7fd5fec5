package clientpool

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"math/big"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// selfSignedCert generates an ephemeral ECDSA certificate for loopback TLS
// tests, avoiding a dependency on checked-in test fixtures.
func selfSignedCert(t *testing.T) tls.Certificate {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		DNSNames:     []string{"127.0.0.1"},
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}
}

// startEchoDoTServer accepts framed DoT connections over TLS and answers
// every request with reply.
func startEchoDoTServer(t *testing.T, reply []byte) (string, func()) {
	t.Helper()
	cert := selfSignedCert(t)
	ln, err := tls.Listen("tcp", "127.0.0.1:0", &tls.Config{Certificates: []tls.Certificate{cert}})
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

func TestDoTClient_SendReceive(t *testing.T) {
	want := []byte{1, 2, 3, 4, 5}
	addr, stop := startEchoDoTServer(t, want)
	defer stop()

	c, err := NewDoTClient(addr, "127.0.0.1", 2, 0, 0)
	require.NoError(t, err)
	c.tlsConfig.InsecureSkipVerify = true
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	got, err := c.Send(ctx, []byte("query"))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestDoTClient_PoolReusesConnection(t *testing.T) {
	addr, stop := startEchoDoTServer(t, []byte("ok"))
	defer stop()

	c, err := NewDoTClient(addr, "127.0.0.1", 1, 0, 0)
	require.NoError(t, err)
	c.tlsConfig.InsecureSkipVerify = true
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err = c.Send(ctx, []byte("first"))
	require.NoError(t, err)
	assert.Equal(t, 1, len(c.pool))

	_, err = c.Send(ctx, []byte("second"))
	require.NoError(t, err)
	assert.Equal(t, 1, len(c.pool))
}

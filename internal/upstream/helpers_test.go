package upstream

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/proksi-dns/droute/internal/dnsmsg"
)

// newQueryPacket builds a minimal single-question A query, the shape every
// test in this package sends through Registry.Resolve/Leaf.Resolve.
func newQueryPacket(t *testing.T, name string) dnsmsg.Packet {
	t.Helper()
	return dnsmsg.Packet{
		Header: dnsmsg.Header{ID: 0x1234, Flags: 0x0100},
		Questions: []dnsmsg.Question{
			{Name: name, Type: uint16(dnsmsg.TypeA), Class: uint16(dnsmsg.ClassIN)},
		},
	}
}

// newAnswerBytes builds a wire-format response to the given query name
// carrying a single A record with the given TTL.
func newAnswerBytes(t *testing.T, name string, txid uint16, ttl uint32) []byte {
	t.Helper()
	ip := net.IPv4(93, 184, 216, 34).To4()
	pkt := dnsmsg.Packet{
		Header: dnsmsg.Header{ID: txid, Flags: 0x8180},
		Questions: []dnsmsg.Question{
			{Name: name, Type: uint16(dnsmsg.TypeA), Class: uint16(dnsmsg.ClassIN)},
		},
		Answers: []dnsmsg.Record{
			{Name: name, Type: uint16(dnsmsg.TypeA), Class: uint16(dnsmsg.ClassIN), TTL: ttl, Data: []byte(ip)},
		},
	}
	b, err := pkt.Marshal()
	require.NoError(t, err)
	return b
}

// newNXDomainBytes builds an NXDOMAIN response carrying an authority-section
// SOA record with the given MINIMUM field.
func newNXDomainBytes(t *testing.T, name string, txid uint16, soaMinimum uint32) []byte {
	t.Helper()
	soa := make([]byte, 22)
	soa[len(soa)-4], soa[len(soa)-3], soa[len(soa)-2], soa[len(soa)-1] =
		byte(soaMinimum>>24), byte(soaMinimum>>16), byte(soaMinimum>>8), byte(soaMinimum)
	pkt := dnsmsg.Packet{
		Header: dnsmsg.Header{ID: txid, Flags: 0x8183},
		Questions: []dnsmsg.Question{
			{Name: name, Type: uint16(dnsmsg.TypeA), Class: uint16(dnsmsg.ClassIN)},
		},
		Authorities: []dnsmsg.Record{
			{Name: name, Type: uint16(dnsmsg.TypeSOA), Class: uint16(dnsmsg.ClassIN), TTL: 3600, Data: soa},
		},
	}
	b, err := pkt.Marshal()
	require.NoError(t, err)
	return b
}

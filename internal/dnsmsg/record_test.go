package dnsmsg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordMarshalParseRoundTripA(t *testing.T) {
	rr := Record{Name: "example.com", Type: uint16(TypeA), Class: 1, TTL: 300, Data: []byte{93, 184, 216, 34}}
	b, err := rr.Marshal()
	require.NoError(t, err)

	off := 0
	parsed, err := ParseRecord(b, &off)
	require.NoError(t, err)
	assert.Equal(t, rr.Name, parsed.Name)
	assert.Equal(t, rr.TTL, parsed.TTL)
	ip, ok := parsed.IPv4()
	require.True(t, ok)
	assert.Equal(t, "93.184.216.34", ip)
}

func TestRecordMarshalParseRoundTripAAAA(t *testing.T) {
	addr := make([]byte, 16)
	addr[15] = 1
	rr := Record{Name: "example.com", Type: uint16(TypeAAAA), Class: 1, TTL: 60, Data: addr}
	b, err := rr.Marshal()
	require.NoError(t, err)

	off := 0
	parsed, err := ParseRecord(b, &off)
	require.NoError(t, err)
	ip, ok := parsed.IPv6()
	require.True(t, ok)
	assert.Equal(t, "::1", ip)
}

func TestRecordMarshalParseRoundTripCNAME(t *testing.T) {
	rr := Record{Name: "alias.example.com", Type: uint16(TypeCNAME), Class: 1, TTL: 120, Data: "target.example.com"}
	b, err := rr.Marshal()
	require.NoError(t, err)

	off := 0
	parsed, err := ParseRecord(b, &off)
	require.NoError(t, err)
	assert.Equal(t, "target.example.com", parsed.Data)
}

func TestRecordMarshalParseRoundTripMX(t *testing.T) {
	rr := Record{Name: "example.com", Type: uint16(TypeMX), Class: 1, TTL: 300, Data: MXData{Preference: 10, Exchange: "mail.example.com"}}
	b, err := rr.Marshal()
	require.NoError(t, err)

	off := 0
	parsed, err := ParseRecord(b, &off)
	require.NoError(t, err)
	mx, ok := parsed.Data.(MXData)
	require.True(t, ok)
	assert.Equal(t, uint16(10), mx.Preference)
	assert.Equal(t, "mail.example.com", mx.Exchange)
}

func TestRecordMarshalTXTVariants(t *testing.T) {
	for _, data := range []any{"hello", []string{"a", "b"}, []byte{1, 2, 3}} {
		rr := Record{Name: "example.com", Type: uint16(TypeTXT), Class: 1, TTL: 60, Data: data}
		_, err := rr.Marshal()
		assert.NoError(t, err)
	}
}

func TestRecordMarshalRejectsMismatchedAData(t *testing.T) {
	rr := Record{Name: "example.com", Type: uint16(TypeA), Class: 1, TTL: 60, Data: []byte{1, 2}}
	_, err := rr.Marshal()
	assert.Error(t, err)
}

func TestRecordSOAMinimum(t *testing.T) {
	rr := Record{Type: uint16(TypeSOA), Data: []byte{0, 0, 0, 1, 0, 0, 0, 2, 0, 0, 0, 3, 0, 0, 0, 4, 0, 0, 1, 44}}
	min, ok := rr.SOAMinimum()
	require.True(t, ok)
	assert.Equal(t, uint32(300), min)
}

func TestRecordSOAMinimumWrongType(t *testing.T) {
	rr := Record{Type: uint16(TypeA), Data: []byte{1, 2, 3, 4}}
	_, ok := rr.SOAMinimum()
	assert.False(t, ok)
}

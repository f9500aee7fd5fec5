package dnsmsg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validQuery(t *testing.T) []byte {
	t.Helper()
	pkt := Packet{
		Header:    Header{ID: 1, Flags: RDFlag, QDCount: 1},
		Questions: []Question{{Name: "example.com", Type: uint16(TypeA), Class: 1}},
	}
	b, err := pkt.Marshal()
	require.NoError(t, err)
	return b
}

func TestParseRequestBoundedAccepts(t *testing.T) {
	_, err := ParseRequestBounded(validQuery(t))
	assert.NoError(t, err)
}

func TestParseRequestBoundedRejectsOversized(t *testing.T) {
	big := make([]byte, MaxIncomingDNSMessageSize+1)
	_, err := ParseRequestBounded(big)
	assert.Error(t, err)
}

func TestParseRequestBoundedRejectsResponse(t *testing.T) {
	pkt := Packet{
		Header:    Header{ID: 1, Flags: QRFlag, QDCount: 1},
		Questions: []Question{{Name: "example.com", Type: uint16(TypeA), Class: 1}},
	}
	b, err := pkt.Marshal()
	require.NoError(t, err)
	_, err = ParseRequestBounded(b)
	assert.Error(t, err)
}

func TestParseRequestBoundedRejectsBadOpcode(t *testing.T) {
	pkt := Packet{
		Header:    Header{ID: 1, Flags: 1 << 11, QDCount: 1}, // opcode 1
		Questions: []Question{{Name: "example.com", Type: uint16(TypeA), Class: 1}},
	}
	b, err := pkt.Marshal()
	require.NoError(t, err)
	_, err = ParseRequestBounded(b)
	assert.Error(t, err)
}

func TestParseRequestBoundedRejectsZeroQuestions(t *testing.T) {
	pkt := Packet{Header: Header{ID: 1, QDCount: 0}}
	b, err := pkt.Marshal()
	require.NoError(t, err)
	_, err = ParseRequestBounded(b)
	assert.Error(t, err)
}

func TestBuildErrorResponsePreservesIDAndRD(t *testing.T) {
	req := Packet{
		Header:    Header{ID: 0x55, Flags: RDFlag, QDCount: 1},
		Questions: []Question{{Name: "example.com", Type: uint16(TypeA), Class: 1}},
	}
	resp := BuildErrorResponse(req, uint16(RCodeServFail))
	assert.Equal(t, req.Header.ID, resp.Header.ID)
	assert.NotZero(t, resp.Header.Flags&QRFlag)
	assert.NotZero(t, resp.Header.Flags&RDFlag)
	assert.Equal(t, RCodeServFail, RCodeFromFlags(resp.Header.Flags))
	assert.Equal(t, req.Questions, resp.Questions)
}

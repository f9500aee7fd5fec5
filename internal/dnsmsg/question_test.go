package dnsmsg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuestionMarshalParseRoundTrip(t *testing.T) {
	q := Question{Name: "Example.COM", Type: uint16(TypeA), Class: uint16(ClassIN)}
	b, err := q.Marshal()
	require.NoError(t, err)

	off := 0
	parsed, err := ParseQuestion(b, &off)
	require.NoError(t, err)
	assert.Equal(t, "example.com", parsed.Name, "parsed question name must be normalized")
	assert.Equal(t, q.Type, parsed.Type)
	assert.Equal(t, q.Class, parsed.Class)
	assert.Equal(t, len(b), off)
}

func TestParseQuestionTruncated(t *testing.T) {
	b, _ := EncodeName("example.com")
	off := 0
	_, err := ParseQuestion(b, &off) // missing type/class
	assert.Error(t, err)
}

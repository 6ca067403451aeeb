package serializer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geoffjay/plantd-mapper/internal/envelope"
	"github.com/geoffjay/plantd-mapper/internal/mdperr"
)

func sampleEnvelope() *envelope.Envelope {
	return &envelope.Envelope{
		Type:            "hash",
		Payload:         []byte("abc"),
		From:            "mapper-1",
		Token:           "tok-1",
		ReplyTo:         "mapper-1",
		Selector:        envelope.LeastLoaded,
		Target:          "A",
		Persistent:      true,
		OfflineFailsafe: false,
	}
}

func TestNew_RecognizedFormats(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		s, err := New(FormatJSON)
		require.NoError(t, err)
		assert.IsType(t, JSONSerializer{}, s)
	})

	t.Run("empty defaults to json", func(t *testing.T) {
		s, err := New(Format(""))
		require.NoError(t, err)
		assert.IsType(t, JSONSerializer{}, s)
	})

	t.Run("msgpack", func(t *testing.T) {
		s, err := New(FormatMsgpack)
		require.NoError(t, err)
		assert.IsType(t, MsgpackSerializer{}, s)
	})

	t.Run("unrecognized", func(t *testing.T) {
		_, err := New(Format("xml"))
		assert.Error(t, err)
	})
}

// TestRoundTrip checks the §8 round-trip property: encode then decode
// yields an envelope equal on every carried field.
func TestRoundTrip(t *testing.T) {
	formats := []Format{FormatJSON, FormatMsgpack}

	for _, format := range formats {
		t.Run(string(format), func(t *testing.T) {
			s, err := New(format)
			require.NoError(t, err)

			original := sampleEnvelope()

			data, err := s.Encode(original)
			require.NoError(t, err)

			decoded, err := s.Decode(data)
			require.NoError(t, err)

			assert.Equal(t, original, decoded)
		})
	}
}

func TestDecode_MalformedReturnsMdperr(t *testing.T) {
	s, err := New(FormatJSON)
	require.NoError(t, err)

	_, err = s.Decode([]byte("not json"))

	require.Error(t, err)
	var merr *mdperr.Error
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, mdperr.CodeMalformed, merr.Code)
}

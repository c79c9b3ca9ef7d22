package replay

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompression_RoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte("model state "), 100)
	for _, comp := range []Compression{CompressionNone, CompressionGzip, CompressionZstd} {
		t.Run(string(comp), func(t *testing.T) {
			packed, err := comp.Compress(payload)
			require.NoError(t, err)
			unpacked, err := comp.Decompress(packed)
			require.NoError(t, err)
			assert.Equal(t, payload, unpacked)

			if comp != CompressionNone {
				assert.Less(t, len(packed), len(payload))
			}
		})
	}
}

func TestParseCompression(t *testing.T) {
	got, err := ParseCompression("")
	require.NoError(t, err)
	assert.Equal(t, CompressionNone, got)

	got, err = ParseCompression("zstd")
	require.NoError(t, err)
	assert.Equal(t, CompressionZstd, got)

	_, err = ParseCompression("lzma")
	assert.Error(t, err)
}

func TestParseMode(t *testing.T) {
	got, err := ParseMode("record")
	require.NoError(t, err)
	assert.Equal(t, ModeRecord, got)

	// "simulate" is the spoken name for record mode
	got, err = ParseMode("simulate")
	require.NoError(t, err)
	assert.Equal(t, ModeRecord, got)

	got, err = ParseMode("replay")
	require.NoError(t, err)
	assert.Equal(t, ModeReplay, got)

	_, err = ParseMode("rewind")
	assert.Error(t, err)
}

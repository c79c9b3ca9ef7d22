package replay

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Compression selects how individual snapshots are compressed before they are
// handed to the store. Per-snapshot compression keeps step-by-step reading
// possible on streamed caches, where compressing the whole file would not.
type Compression string

const (
	// CompressionNone stores snapshots as produced by the model.
	CompressionNone Compression = "none"
	// CompressionGzip compresses each snapshot with gzip.
	CompressionGzip Compression = "gzip"
	// CompressionZstd compresses each snapshot with zstd. Slower to set up
	// than gzip but usually smaller output.
	CompressionZstd Compression = "zstd"
)

// validCompressions maps accepted compression strings.
var validCompressions = map[Compression]bool{
	CompressionNone: true,
	CompressionGzip: true,
	CompressionZstd: true,
	"":              true, // empty defaults to none
}

// ParseCompression converts a compression string into a Compression.
func ParseCompression(s string) (Compression, error) {
	c := Compression(s)
	if !validCompressions[c] {
		return "", fmt.Errorf("unknown compression %q (want none, gzip or zstd)", s)
	}
	if c == "" {
		c = CompressionNone
	}
	return c, nil
}

// Globally shared zstd encoder and decoder. Only their EncodeAll and
// DecodeAll methods are used, which are safe for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	if zstdEncoder, err = zstd.NewWriter(nil); err != nil {
		panic(err) // this is impossible
	}
	if zstdDecoder, err = zstd.NewReader(nil); err != nil {
		panic(err) // this is impossible
	}
}

// Compress applies the compression to a single snapshot.
func (c Compression) Compress(data []byte) ([]byte, error) {
	switch c {
	case CompressionNone, "":
		return data, nil
	case CompressionGzip:
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(data); err != nil {
			return nil, fmt.Errorf("gzip snapshot: %w", err)
		}
		if err := zw.Close(); err != nil {
			return nil, fmt.Errorf("gzip snapshot: %w", err)
		}
		return buf.Bytes(), nil
	case CompressionZstd:
		return zstdEncoder.EncodeAll(data, nil), nil
	default:
		return nil, fmt.Errorf("unknown compression %q", c)
	}
}

// Decompress reverses Compress.
func (c Compression) Decompress(data []byte) ([]byte, error) {
	switch c {
	case CompressionNone, "":
		return data, nil
	case CompressionGzip:
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("gunzip snapshot: %w", err)
		}
		out, err := io.ReadAll(zr)
		if err != nil {
			return nil, fmt.Errorf("gunzip snapshot: %w", err)
		}
		if err := zr.Close(); err != nil {
			return nil, fmt.Errorf("gunzip snapshot: %w", err)
		}
		return out, nil
	case CompressionZstd:
		out, err := zstdDecoder.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("zstd decode snapshot: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown compression %q", c)
	}
}

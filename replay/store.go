package replay

import (
	"time"

	"github.com/google/uuid"
)

// CacheFormatVersion is bumped whenever the on-disk cache layout changes in a
// way old readers cannot handle.
const CacheFormatVersion = 1

// Header captures metadata for a recorded cache. It is persisted alongside
// the snapshots so a replay can validate what it is reading and a fresh model
// can be configured the way the recorded run was.
type Header struct {
	Version     int         `msgpack:"version" yaml:"version"`
	RunID       string      `msgpack:"run_id" yaml:"run_id"`
	Model       string      `msgpack:"model" yaml:"model"`
	CreatedAt   string      `msgpack:"created_at" yaml:"created_at"`
	StepRate    int         `msgpack:"step_rate" yaml:"step_rate"`
	Compression Compression `msgpack:"compression" yaml:"compression"`
	// Steps is the number of snapshots in the cache. Zero when the store
	// cannot know it up front (streamed caches while recording).
	Steps int `msgpack:"steps" yaml:"steps"`
	// Params carries model construction parameters, serialized by the model.
	// Optional; replays that rebuild the model from the cache need it.
	Params []byte `msgpack:"params,omitempty" yaml:"params,omitempty"`
}

// NewHeader creates a Header for a new recording.
func NewHeader(model string, stepRate int, compression Compression) *Header {
	return &Header{
		Version:     CacheFormatVersion,
		RunID:       uuid.NewString(),
		Model:       model,
		CreatedAt:   time.Now().UTC().Format(time.RFC3339),
		StepRate:    stepRate,
		Compression: compression,
	}
}

// Store persists the snapshot sequence of one run. A store is opened either
// for recording (Append) or for replaying (Next); mixing the two on one
// instance is not supported.
//
// Next returns io.EOF once the recorded sequence is exhausted. Close flushes
// and finalizes the cache; for recording stores the cache file is not complete
// until Close returns.
type Store interface {
	Append(snapshot []byte) error
	Next() ([]byte, error)
	Header() *Header
	Close() error
}

package replay

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// EncodeSnapshot serializes a model-defined state value with msgpack.
// Models that keep their replay state in a single struct can implement
// Snapshot as one call to this helper.
func EncodeSnapshot(v any) ([]byte, error) {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding snapshot: %w", err)
	}
	return data, nil
}

// DecodeSnapshot deserializes a snapshot produced by EncodeSnapshot into v,
// which must be a pointer.
func DecodeSnapshot(data []byte, v any) error {
	if err := msgpack.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding snapshot: %w", err)
	}
	return nil
}

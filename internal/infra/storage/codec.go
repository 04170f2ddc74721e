package storage

import (
	"encoding/json"
	"fmt"

	"github.com/golang/snappy"
)

// Encode serializes v as JSON and compresses it with snappy.
// This is compression only; blobs are not encrypted or signed.
func Encode(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal blob: %w", err)
	}
	return snappy.Encode(nil, raw), nil
}

// Decode reverses Encode into v.
func Decode(data []byte, v any) error {
	raw, err := snappy.Decode(nil, data)
	if err != nil {
		return fmt.Errorf("decompress blob: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("unmarshal blob: %w", err)
	}
	return nil
}

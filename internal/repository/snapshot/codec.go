// Package snapshot persists the full feature registry as a single document:
// tenant key -> identity key -> embedding vector, encoded as JSON and
// optionally zstd-compressed.
package snapshot

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Data is the persisted registry layout.
type Data map[string]map[string][]float32

// Compression selects how snapshots are written. Reads detect the format.
type Compression string

const (
	// CompressionNone writes plain JSON.
	CompressionNone Compression = "none"
	// CompressionZstd writes zstd-compressed JSON.
	CompressionZstd Compression = "zstd"
)

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// Identities returns the total number of identities across tenants.
func (d Data) Identities() int {
	n := 0
	for _, ids := range d {
		n += len(ids)
	}
	return n
}

// Encode serializes data with the given compression.
func Encode(data Data, c Compression) ([]byte, error) {
	if data == nil {
		data = Data{}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	if c != CompressionZstd {
		return raw, nil
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd writer: %w", err)
	}
	defer enc.Close()
	return enc.EncodeAll(raw, make([]byte, 0, len(raw)/2)), nil
}

// Decode parses a snapshot written by Encode with any compression.
func Decode(b []byte) (Data, error) {
	if bytes.HasPrefix(b, zstdMagic) {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("zstd reader: %w", err)
		}
		defer dec.Close()
		if b, err = dec.DecodeAll(b, nil); err != nil {
			return nil, fmt.Errorf("decompress snapshot: %w", err)
		}
	}

	var data Data
	if err := json.Unmarshal(b, &data); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	if data == nil {
		data = Data{}
	}
	for tenant, ids := range data {
		if ids == nil {
			data[tenant] = map[string][]float32{}
		}
	}
	return data, nil
}

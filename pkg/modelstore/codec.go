// Package modelstore persists trained detector state to disk as
// lz4-compressed gob payloads with checksummed JSON metadata sidecars, and
// refuses stale models whose metadata no longer matches the caller's
// expectation.
package modelstore

import (
	"encoding/gob"
	"fmt"
	"io"

	"github.com/pierrec/lz4/v4"
)

// File extensions for supported codecs.
const (
	gobLZ4Extension = ".gob.lz4"
	gobExtension    = ".gob"
)

// Codec defines how trained state is serialized and deserialized.
type Codec interface {
	// Encode writes the state to the writer.
	Encode(w io.Writer, state any) error
	// Decode reads the state from the reader.
	Decode(r io.Reader, state any) error
	// Extension returns the file extension for this codec.
	Extension() string
}

// GobLZ4Codec implements Codec using gob encoding behind an lz4 frame.
type GobLZ4Codec struct{}

// NewGobLZ4Codec creates an lz4-compressed gob codec.
func NewGobLZ4Codec() *GobLZ4Codec {
	return &GobLZ4Codec{}
}

// Encode implements Codec.Encode.
func (c *GobLZ4Codec) Encode(w io.Writer, state any) error {
	zw := lz4.NewWriter(w)

	err := gob.NewEncoder(zw).Encode(state)
	if err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}

	err = zw.Close()
	if err != nil {
		return fmt.Errorf("lz4 close: %w", err)
	}

	return nil
}

// Decode implements Codec.Decode.
func (c *GobLZ4Codec) Decode(r io.Reader, state any) error {
	err := gob.NewDecoder(lz4.NewReader(r)).Decode(state)
	if err != nil {
		return fmt.Errorf("gob decode: %w", err)
	}

	return nil
}

// Extension implements Codec.Extension.
func (c *GobLZ4Codec) Extension() string {
	return gobLZ4Extension
}

// GobCodec implements Codec using plain gob encoding. Kept for reading
// models written before compression was introduced.
type GobCodec struct{}

// NewGobCodec creates a plain gob codec.
func NewGobCodec() *GobCodec {
	return &GobCodec{}
}

// Encode implements Codec.Encode.
func (c *GobCodec) Encode(w io.Writer, state any) error {
	err := gob.NewEncoder(w).Encode(state)
	if err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}

	return nil
}

// Decode implements Codec.Decode.
func (c *GobCodec) Decode(r io.Reader, state any) error {
	err := gob.NewDecoder(r).Decode(state)
	if err != nil {
		return fmt.Errorf("gob decode: %w", err)
	}

	return nil
}

// Extension implements Codec.Extension.
func (c *GobCodec) Extension() string {
	return gobExtension
}

// Copyright 2020 Consensys Software Inc.
// Licensed under the Apache License, Version 2.0. See the LICENSE file for details.

// Package io offers serialization interfaces and test helpers for gnark-air
// objects.
package io

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// WriterReaderTo groups the two sides of binary serialization; compiled
// artifacts and delegation descriptions implement it.
type WriterReaderTo interface {
	io.WriterTo
	io.ReaderFrom
}

// RoundTripCheck serializes from, deserializes the bytes into a fresh object
// produced by to, re-serializes that object and requires both encodings to
// be byte-identical. Deterministic serialization is load-bearing here:
// artifacts are hashed into verification keys, so "equal after a round trip"
// must mean equal bytes, not just equal semantics.
func RoundTripCheck(from io.WriterTo, to func() WriterReaderTo) error {
	var buf bytes.Buffer
	written, err := from.WriteTo(&buf)
	if err != nil {
		return fmt.Errorf("serializing: %w", err)
	}
	if written != int64(buf.Len()) {
		return fmt.Errorf("WriteTo reported %d bytes, wrote %d", written, buf.Len())
	}
	encoded := append([]byte(nil), buf.Bytes()...)

	reconstructed := to()
	read, err := reconstructed.ReadFrom(bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("deserializing: %w", err)
	}
	if read != written {
		return fmt.Errorf("ReadFrom consumed %d bytes of %d written", read, written)
	}

	buf.Reset()
	if _, err := reconstructed.WriteTo(&buf); err != nil {
		return fmt.Errorf("re-serializing: %w", err)
	}
	if !bytes.Equal(encoded, buf.Bytes()) {
		return errors.New("round trip changed the encoding")
	}
	return nil
}

// Copyright 2026 The relpack Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"bytes"
	"testing"
)

func TestCompressDecompressRoundTrip(t *testing.T) {
	original := bytes.Repeat([]byte("relpack archive bundle contents "), 4096)

	compressed := Compress(original)
	if len(compressed) >= len(original) {
		t.Errorf("compressed size %d did not shrink original size %d", len(compressed), len(original))
	}

	decompressed, err := Decompress(compressed, len(original))
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if !bytes.Equal(decompressed, original) {
		t.Error("decompressed bytes do not match original")
	}
}

func TestDecompressLengthMismatchIsCorruptBundle(t *testing.T) {
	compressed := Compress([]byte("hello, archive"))

	_, err := Decompress(compressed, 999)
	if KindOf(err) != CorruptBundle {
		t.Fatalf("KindOf(err) = %v, want CorruptBundle", KindOf(err))
	}
}

func TestDecompressGarbageIsCorruptBundle(t *testing.T) {
	_, err := Decompress([]byte("not a zstd frame"), -1)
	if KindOf(err) != CorruptBundle {
		t.Fatalf("KindOf(err) = %v, want CorruptBundle", KindOf(err))
	}
}

func TestEmptyInputRoundTrips(t *testing.T) {
	compressed := Compress(nil)
	decompressed, err := Decompress(compressed, 0)
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if len(decompressed) != 0 {
		t.Errorf("len(decompressed) = %d, want 0", len(decompressed))
	}
}

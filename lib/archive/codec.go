// Copyright 2026 The relpack Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Bundles are compressed with a single stateless Zstandard codec, no
// dictionary, level SpeedDefault. The encoder and decoder are built once
// and reused across every Compress/Decompress call; both types are
// documented safe for concurrent use by multiple goroutines, which is
// what lets pack_parallel.go and extract.go share them across workers.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic(fmt.Sprintf("archive: building zstd encoder: %v", err))
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic(fmt.Sprintf("archive: building zstd decoder: %v", err))
	}
}

// Compress returns the Zstandard-compressed form of data. The returned
// slice is owned by the caller.
func Compress(data []byte) []byte {
	return zstdEncoder.EncodeAll(data, make([]byte, 0, len(data)/2))
}

// Decompress returns the decompressed form of compressed. expectedLen,
// when non-negative, is the exact decompressed size the bundle's
// itemcontent rows imply (the highest contentpos+size among them); a
// mismatch between it and the actual
// decompressed length is reported as CorruptBundle rather than trusted
// silently, since a truncated or substituted blob can otherwise decode
// to a plausible-looking but wrong-length buffer.
func Decompress(compressed []byte, expectedLen int) ([]byte, error) {
	var dst []byte
	if expectedLen >= 0 {
		dst = make([]byte, 0, expectedLen)
	}
	out, err := zstdDecoder.DecodeAll(compressed, dst)
	if err != nil {
		return nil, newErr(CorruptBundle, "decompress", err)
	}
	if expectedLen >= 0 && len(out) != expectedLen {
		return nil, newErr(CorruptBundle, "decompress",
			fmt.Errorf("decompressed %d bytes, want %d", len(out), expectedLen))
	}
	return out, nil
}

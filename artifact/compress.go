// Copyright 2026 The Bollard Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// MediaTypeWasm is the base media type for component bytes. A
// +gzip, +zstd, or +lz4 suffix declares layer compression; the bare
// type (or an empty media type) means raw bytes.
const MediaTypeWasm = "application/wasm"

// maxDecompressedSize caps layer expansion. A component larger than
// this is rejected rather than decompressed, bounding memory against
// decompression bombs in hostile bundles.
const maxDecompressedSize = 1 << 30

// zstdDecoder is reused across calls. zstd.Decoder is safe for
// concurrent use when created without a source reader.
var zstdDecoder *zstd.Decoder

func init() {
	var err error
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("artifact: zstd decoder initialization failed: " + err.Error())
	}
}

// decompressLayer returns the raw component bytes for a stored layer,
// selecting the algorithm from the media type's compression suffix.
// Unknown base types or suffixes are errors: a shim that silently
// passed compressed bytes to the engine would fail later with a far
// less useful compilation error.
func decompressLayer(data []byte, mediaType string) ([]byte, error) {
	base, suffix := mediaType, ""
	if i := strings.LastIndexByte(mediaType, '+'); i >= 0 {
		base, suffix = mediaType[:i], mediaType[i+1:]
	}
	if base != "" && base != MediaTypeWasm {
		return nil, fmt.Errorf("unsupported component media type %q", mediaType)
	}

	switch suffix {
	case "":
		return data, nil

	case "gzip":
		reader, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("gzip layer: %w", err)
		}
		defer reader.Close()
		return readCapped(reader, "gzip")

	case "zstd":
		decompressed, err := zstdDecoder.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("zstd layer: %w", err)
		}
		if len(decompressed) > maxDecompressedSize {
			return nil, fmt.Errorf("zstd layer: decompressed size exceeds %d bytes", maxDecompressedSize)
		}
		return decompressed, nil

	case "lz4":
		return readCapped(lz4.NewReader(bytes.NewReader(data)), "lz4")

	default:
		return nil, fmt.Errorf("unsupported component media type %q", mediaType)
	}
}

func readCapped(reader io.Reader, algorithm string) ([]byte, error) {
	decompressed, err := io.ReadAll(io.LimitReader(reader, maxDecompressedSize+1))
	if err != nil {
		return nil, fmt.Errorf("%s layer: %w", algorithm, err)
	}
	if len(decompressed) > maxDecompressedSize {
		return nil, fmt.Errorf("%s layer: decompressed size exceeds %d bytes", algorithm, maxDecompressedSize)
	}
	return decompressed, nil
}

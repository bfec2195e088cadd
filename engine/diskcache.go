// Copyright 2026 The Bollard Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/bollard-runtime/bollard/artifact"
	"github.com/bollard-runtime/bollard/lib/codec"
)

// indexName is the cache index file inside the cache directory.
const indexName = "index.cbor"

// indexEntry describes one stored precompiled module.
type indexEntry struct {
	// File is the body file name, relative to the cache directory.
	File string `cbor:"file"`

	// Engine is the Name of the engine that serialized the body.
	// Bytes from one engine are never handed to another.
	Engine string `cbor:"engine"`

	// Size is the uncompressed body size in bytes.
	Size int64 `cbor:"size"`

	// CreatedAt is the store time, Unix seconds.
	CreatedAt int64 `cbor:"created_at"`
}

// diskCache persists precompiled modules across shim restarts. The
// index is a CBOR map keyed by component hash; bodies are stored
// zstd-compressed beside it.
//
// All writes are atomic (temporary file, fsync, rename), and the
// body is durable before the index references it, so a crash at any
// point leaves either a complete entry or no entry. The whole
// directory can be deleted at any time; the cache rebuilds on demand.
type diskCache struct {
	directory string
	logger    *slog.Logger

	index map[string]indexEntry

	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

func openDiskCache(directory string, logger *slog.Logger) (*diskCache, error) {
	if err := os.MkdirAll(directory, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}

	cache := &diskCache{
		directory: directory,
		logger:    logger,
		index:     make(map[string]indexEntry),
		encoder:   encoder,
		decoder:   decoder,
	}

	data, err := os.ReadFile(filepath.Join(directory, indexName))
	switch {
	case os.IsNotExist(err):
		// Fresh cache.
	case err != nil:
		return nil, fmt.Errorf("reading cache index: %w", err)
	default:
		if err := codec.Unmarshal(data, &cache.index); err != nil {
			// A corrupt index means a corrupt cache: start over
			// rather than serving questionable entries.
			logger.Warn("cache index corrupt, starting empty",
				"path", filepath.Join(directory, indexName), "error", err)
			cache.index = make(map[string]indexEntry)
		}
	}
	return cache, nil
}

// load returns the precompiled body for hash if a complete entry
// serialized by engineName exists. Any problem is a miss.
func (c *diskCache) load(hash artifact.Hash, engineName string) ([]byte, bool) {
	entry, ok := c.index[hash.String()]
	if !ok || entry.Engine != engineName {
		return nil, false
	}

	compressed, err := os.ReadFile(filepath.Join(c.directory, entry.File))
	if err != nil {
		c.logger.Warn("cache body unreadable", "hash", hash.String(), "error", err)
		return nil, false
	}
	body, err := c.decoder.DecodeAll(compressed, nil)
	if err != nil || int64(len(body)) != entry.Size {
		c.logger.Warn("cache body corrupt", "hash", hash.String(), "error", err)
		return nil, false
	}
	return body, true
}

// store persists a precompiled body and publishes it in the index.
func (c *diskCache) store(hash artifact.Hash, engineName string, precompiled []byte) error {
	fileName := hash.String() + ".zst"
	compressed := c.encoder.EncodeAll(precompiled, nil)
	if err := writeAtomic(filepath.Join(c.directory, fileName), compressed); err != nil {
		return fmt.Errorf("writing cache body: %w", err)
	}

	c.index[hash.String()] = indexEntry{
		File:      fileName,
		Engine:    engineName,
		Size:      int64(len(precompiled)),
		CreatedAt: time.Now().Unix(),
	}
	data, err := codec.Marshal(c.index)
	if err != nil {
		return fmt.Errorf("encoding cache index: %w", err)
	}
	if err := writeAtomic(filepath.Join(c.directory, indexName), data); err != nil {
		return fmt.Errorf("writing cache index: %w", err)
	}
	return nil
}

// writeAtomic writes data to path via a temporary file in the same
// directory, fsynced before rename, so readers never observe a
// partial file.
func writeAtomic(path string, data []byte) error {
	temporaryPath := path + ".tmp"

	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return err
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return err
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return err
	}
	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return err
	}
	return nil
}

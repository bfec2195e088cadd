// Copyright 2026 The Bollard Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/bollard-runtime/bollard/manifest"
	"github.com/bollard-runtime/bollard/trigger"
)

// componentBytes is a minimal wasm-shaped payload. The resolver never
// parses it; only the engine does.
var componentBytes = []byte("\x00asm\x01\x00\x00\x00test-component-body")

func testResolver() *Resolver {
	return &Resolver{
		Lookup: func(string) (string, bool) { return "", false },
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// writeBundle materializes a bundle directory with the given
// descriptor and optional component file.
func writeBundle(t *testing.T, descriptor string, componentName string, component []byte) string {
	t.Helper()
	bundle := t.TempDir()
	if err := os.WriteFile(filepath.Join(bundle, manifest.DescriptorName), []byte(descriptor), 0o644); err != nil {
		t.Fatalf("writing descriptor: %v", err)
	}
	if componentName != "" {
		if err := os.WriteFile(filepath.Join(bundle, componentName), component, 0o644); err != nil {
			t.Fatalf("writing component: %v", err)
		}
	}
	return bundle
}

const plainDescriptor = `{
	// Comments and trailing commas are allowed in descriptors.
	"name": "demo",
	"component": {"path": "app.wasm"},
	"triggers": [
		{"type": "command", "id": "run-once"},
	],
}`

func TestResolvePlainBundle(t *testing.T) {
	bundle := writeBundle(t, plainDescriptor, "app.wasm", componentBytes)

	resolved, err := testResolver().Resolve(bundle)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resolved.Name != "demo" {
		t.Errorf("Name = %q", resolved.Name)
	}
	if !bytes.Equal(resolved.Source, componentBytes) {
		t.Error("Source does not match the component file")
	}
	if resolved.Hash != HashComponent(componentBytes) {
		t.Error("Hash does not match the component bytes")
	}
	if len(resolved.Triggers) != 1 || resolved.Triggers[0].Kind != trigger.KindCommand {
		t.Errorf("Triggers = %+v", resolved.Triggers)
	}
}

func TestResolveCompressedLayers(t *testing.T) {
	compress := map[string]func([]byte) []byte{
		"gzip": func(data []byte) []byte {
			var buffer bytes.Buffer
			writer := gzip.NewWriter(&buffer)
			writer.Write(data)
			writer.Close()
			return buffer.Bytes()
		},
		"zstd": func(data []byte) []byte {
			writer, _ := zstd.NewWriter(nil)
			return writer.EncodeAll(data, nil)
		},
		"lz4": func(data []byte) []byte {
			var buffer bytes.Buffer
			writer := lz4.NewWriter(&buffer)
			writer.Write(data)
			writer.Close()
			return buffer.Bytes()
		},
	}

	for suffix, encode := range compress {
		t.Run(suffix, func(t *testing.T) {
			descriptor := `{
				"name": "demo",
				"component": {"path": "app.wasm", "media_type": "application/wasm+` + suffix + `"},
				"triggers": [{"type": "command", "id": "run-once"}]
			}`
			bundle := writeBundle(t, descriptor, "app.wasm", encode(componentBytes))

			resolved, err := testResolver().Resolve(bundle)
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if !bytes.Equal(resolved.Source, componentBytes) {
				t.Error("decompressed source does not match the original bytes")
			}
			// The hash is computed on decompressed bytes, so all
			// layer encodings of the same component share it.
			if resolved.Hash != HashComponent(componentBytes) {
				t.Error("hash differs across layer compression")
			}
		})
	}
}

func TestResolveUnknownMediaType(t *testing.T) {
	descriptor := `{
		"name": "demo",
		"component": {"path": "app.wasm", "media_type": "application/wasm+brotli"},
		"triggers": [{"type": "command", "id": "run-once"}]
	}`
	bundle := writeBundle(t, descriptor, "app.wasm", componentBytes)

	if _, err := testResolver().Resolve(bundle); err == nil {
		t.Fatal("Resolve = nil error for an unknown media type")
	}
}

func TestResolveMissingComponent(t *testing.T) {
	bundle := writeBundle(t, plainDescriptor, "", nil)

	_, err := testResolver().Resolve(bundle)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Resolve error = %v, want ErrNotFound", err)
	}
}

func TestResolveComponentUnderRootfs(t *testing.T) {
	bundle := writeBundle(t, plainDescriptor, "", nil)
	if err := os.Mkdir(filepath.Join(bundle, "rootfs"), 0o755); err != nil {
		t.Fatalf("mkdir rootfs: %v", err)
	}
	if err := os.WriteFile(filepath.Join(bundle, "rootfs", "app.wasm"), componentBytes, 0o644); err != nil {
		t.Fatalf("writing component: %v", err)
	}

	resolved, err := testResolver().Resolve(bundle)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !bytes.Equal(resolved.Source, componentBytes) {
		t.Error("component under rootfs/ was not loaded")
	}
}

func TestResolveUnsupportedTriggerKind(t *testing.T) {
	descriptor := `{
		"name": "demo",
		"component": {"path": "app.wasm"},
		"triggers": [{"type": "kafka", "id": "events"}]
	}`
	bundle := writeBundle(t, descriptor, "app.wasm", componentBytes)

	_, err := testResolver().Resolve(bundle)
	if !errors.Is(err, trigger.ErrUnsupported) {
		t.Fatalf("Resolve error = %v, want trigger.ErrUnsupported", err)
	}
}

func TestResolveMalformedDescriptor(t *testing.T) {
	bundle := writeBundle(t, `{"name": ""}`, "", nil)

	_, err := testResolver().Resolve(bundle)
	var validation *manifest.ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("Resolve error = %v, want *manifest.ValidationError", err)
	}
}

func TestResolveVariableHandling(t *testing.T) {
	descriptor := `{
		"name": "demo",
		"component": {"path": "app.wasm"},
		"triggers": [{"type": "command", "id": "run-once"}],
		"variables": {
			"region": {"default": "eu-west-1"},
			"api_token": {"required": true}
		}
	}`
	bundle := writeBundle(t, descriptor, "app.wasm", componentBytes)

	// Required variable unset: resolution fails.
	if _, err := testResolver().Resolve(bundle); err == nil {
		t.Fatal("Resolve = nil error with a required variable unset")
	}

	resolver := testResolver()
	resolver.Lookup = func(name string) (string, bool) {
		if name == manifest.VariablePrefix+"API_TOKEN" {
			return "secret", true
		}
		return "", false
	}
	resolved, err := resolver.Resolve(bundle)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resolved.Variables["region"] != "eu-west-1" || resolved.Variables["api_token"] != "secret" {
		t.Errorf("Variables = %v", resolved.Variables)
	}
}

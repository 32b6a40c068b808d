// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cachefile

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func compressiblePayload() []byte {
	return []byte(strings.Repeat(`{"room_id":"!room:example.org","name":"Planning"}`, 64))
}

func TestWriteReadEachCompression(t *testing.T) {
	for _, compression := range []Compression{CompressionNone, CompressionLZ4, CompressionZstd} {
		t.Run(compression.String(), func(t *testing.T) {
			file := New(Config{
				Path:        filepath.Join(t.TempDir(), "state", "room_list_cache"),
				Compression: compression,
			})
			payload := compressiblePayload()

			written, err := file.Write(payload)
			if err != nil {
				t.Fatalf("Write: %v", err)
			}
			if !written {
				t.Fatal("first Write reported it skipped")
			}

			got, err := New(Config{Path: file.Path()}).Read()
			if err != nil {
				t.Fatalf("Read: %v", err)
			}
			if !bytes.Equal(got, payload) {
				t.Fatal("Read returned a different payload")
			}
		})
	}
}

func TestCompressionShrinksFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache")
	payload := compressiblePayload()
	if _, err := New(Config{Path: path, Compression: CompressionZstd}).Write(payload); err != nil {
		t.Fatalf("Write: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Size() >= int64(len(payload)) {
		t.Fatalf("stored %d bytes for a %d byte compressible payload", info.Size(), len(payload))
	}
}

func TestIncompressibleFallsBackToNone(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache")
	payload := []byte{0x01}
	if _, err := New(Config{Path: path, Compression: CompressionLZ4}).Write(payload); err != nil {
		t.Fatalf("Write: %v", err)
	}
	encoded, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if Compression(encoded[5]) != CompressionNone {
		t.Fatalf("compression tag = %s, want none", Compression(encoded[5]))
	}
}

func TestUnchangedPayloadSkipsWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache")
	file := New(Config{Path: path, Compression: CompressionZstd})
	payload := compressiblePayload()

	if _, err := file.Write(payload); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := os.Chmod(path, 0o400); err != nil {
		t.Fatalf("Chmod: %v", err)
	}
	before, _ := os.Stat(path)

	written, err := file.Write(payload)
	if err != nil {
		t.Fatalf("second Write: %v", err)
	}
	if written {
		t.Fatal("second Write of identical payload reported a write")
	}
	after, _ := os.Stat(path)
	if !after.ModTime().Equal(before.ModTime()) || after.Mode() != before.Mode() {
		t.Fatal("file changed on disk for an identical payload")
	}

	changed := append(compressiblePayload(), '!')
	written, err = file.Write(changed)
	if err != nil {
		t.Fatalf("Write of changed payload: %v", err)
	}
	if !written {
		t.Fatal("changed payload was not written")
	}
}

func TestReadSeedsDigest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache")
	payload := compressiblePayload()
	if _, err := New(Config{Path: path}).Write(payload); err != nil {
		t.Fatalf("Write: %v", err)
	}

	reopened := New(Config{Path: path})
	if _, err := reopened.Read(); err != nil {
		t.Fatalf("Read: %v", err)
	}
	written, err := reopened.Write(payload)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if written {
		t.Fatal("Write after Read of the same payload should be skipped")
	}
}

func TestReadMissing(t *testing.T) {
	_, err := New(Config{Path: filepath.Join(t.TempDir(), "absent")}).Read()
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("Read of missing file = %v, want os.ErrNotExist", err)
	}
}

func TestReadDetectsCorruption(t *testing.T) {
	tests := []struct {
		name   string
		mangle func([]byte) []byte
	}{
		{name: "truncated header", mangle: func(data []byte) []byte { return data[:10] }},
		{name: "bad magic", mangle: func(data []byte) []byte { data[0] = 'X'; return data }},
		{name: "bad version", mangle: func(data []byte) []byte { data[4] = 9; return data }},
		{name: "flipped body byte", mangle: func(data []byte) []byte { data[len(data)-1] ^= 0xff; return data }},
		{name: "flipped digest byte", mangle: func(data []byte) []byte { data[20] ^= 0xff; return data }},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "cache")
			if _, err := New(Config{Path: path, Compression: CompressionNone}).Write(compressiblePayload()); err != nil {
				t.Fatalf("Write: %v", err)
			}
			data, err := os.ReadFile(path)
			if err != nil {
				t.Fatalf("ReadFile: %v", err)
			}
			if err := os.WriteFile(path, test.mangle(data), 0o600); err != nil {
				t.Fatalf("WriteFile: %v", err)
			}
			if _, err := New(Config{Path: path}).Read(); !errors.Is(err, ErrCorrupt) {
				t.Fatalf("Read = %v, want ErrCorrupt", err)
			}
		})
	}
}

func TestNoTemporaryFileLeftBehind(t *testing.T) {
	directory := t.TempDir()
	path := filepath.Join(directory, "cache")
	if _, err := New(Config{Path: path}).Write(compressiblePayload()); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("temporary file still present: %v", err)
	}
}

func TestParseCompression(t *testing.T) {
	for name, want := range map[string]Compression{
		"none": CompressionNone, "lz4": CompressionLZ4, "zstd": CompressionZstd, "": CompressionZstd,
	} {
		got, err := ParseCompression(name)
		if err != nil {
			t.Fatalf("ParseCompression(%q): %v", name, err)
		}
		if got != want {
			t.Errorf("ParseCompression(%q) = %s, want %s", name, got, want)
		}
	}
	if _, err := ParseCompression("gzip"); err == nil {
		t.Fatal("ParseCompression(gzip) succeeded")
	}
}

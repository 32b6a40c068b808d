// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cachefile

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/zeebo/blake3"
)

const (
	headerSize    = 42
	formatVersion = 1
)

var magic = [4]byte{'S', 'B', 'C', 'F'}

// digestKey is the BLAKE3 key for cache payload digests: the ASCII
// domain name, zero-padded to 32 bytes.
var digestKey = [32]byte{
	's', 'e', 's', 's', 'i', 'o', 'n', 'b', 'r', 'i', 'd', 'g', 'e', '.', 'c', 'a',
	'c', 'h', 'e', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// ErrCorrupt is returned by Read when the file exists but its header,
// body, or digest does not check out.
var ErrCorrupt = errors.New("cachefile: corrupt cache file")

// Digest is a BLAKE3 keyed digest of an uncompressed payload.
type Digest [32]byte

func (digest Digest) String() string { return hex.EncodeToString(digest[:]) }

// DigestOf computes the digest stored alongside payload.
func DigestOf(payload []byte) Digest {
	hasher, err := blake3.NewKeyed(digestKey[:])
	if err != nil {
		// NewKeyed fails only for keys that are not 32 bytes.
		panic("cachefile: " + err.Error())
	}
	hasher.Write(payload)
	var digest Digest
	copy(digest[:], hasher.Sum(nil))
	return digest
}

// File is one cache file on disk. Methods are safe for concurrent use;
// writes are serialized.
type File struct {
	path        string
	compression Compression
	logger      *slog.Logger

	mutex      sync.Mutex
	lastDigest Digest
	haveDigest bool
}

// Config configures a File.
type Config struct {
	// Path is the cache file location. Its directory is created on
	// first write.
	Path string

	// Compression for new writes. Reads accept any tag.
	Compression Compression

	// Logger may be nil.
	Logger *slog.Logger
}

// New returns a File for cfg.Path. Nothing is touched on disk.
func New(cfg Config) *File {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &File{path: cfg.Path, compression: cfg.Compression, logger: logger}
}

// Path returns the file location.
func (file *File) Path() string { return file.path }

// Write stores payload atomically. It returns false without touching
// disk when payload's digest equals the last one written or read.
func (file *File) Write(payload []byte) (bool, error) {
	if len(payload) > math.MaxUint32 {
		return false, fmt.Errorf("cachefile: payload of %d bytes exceeds format limit", len(payload))
	}
	digest := DigestOf(payload)

	file.mutex.Lock()
	defer file.mutex.Unlock()

	if file.haveDigest && file.lastDigest == digest {
		return false, nil
	}

	tag := file.compression
	body, err := compress(payload, tag)
	if errors.Is(err, errIncompressible) {
		tag, body = CompressionNone, payload
	} else if err != nil {
		return false, fmt.Errorf("cachefile: %w", err)
	}

	encoded := make([]byte, headerSize, headerSize+len(body))
	copy(encoded[0:4], magic[:])
	encoded[4] = formatVersion
	encoded[5] = byte(tag)
	binary.BigEndian.PutUint32(encoded[6:10], uint32(len(payload)))
	copy(encoded[10:42], digest[:])
	encoded = append(encoded, body...)

	if err := writeAtomic(file.path, encoded); err != nil {
		return false, err
	}
	file.lastDigest, file.haveDigest = digest, true
	file.logger.Debug("cache file written",
		"path", file.path,
		"bytes", len(payload),
		"stored_bytes", len(encoded),
		"compression", tag.String(),
	)
	return true, nil
}

// Read returns the stored payload. A missing file yields an error
// matching os.ErrNotExist; a damaged one, ErrCorrupt.
func (file *File) Read() ([]byte, error) {
	encoded, err := os.ReadFile(file.path)
	if err != nil {
		return nil, err
	}
	payload, digest, err := decode(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, file.path, err)
	}

	file.mutex.Lock()
	file.lastDigest, file.haveDigest = digest, true
	file.mutex.Unlock()
	return payload, nil
}

// Remove deletes the file. A missing file is not an error.
func (file *File) Remove() error {
	file.mutex.Lock()
	defer file.mutex.Unlock()
	file.haveDigest = false
	if err := os.Remove(file.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("cachefile: removing %s: %w", file.path, err)
	}
	return nil
}

func decode(encoded []byte) ([]byte, Digest, error) {
	var digest Digest
	if len(encoded) < headerSize {
		return nil, digest, fmt.Errorf("file is %d bytes, shorter than the header", len(encoded))
	}
	if !bytes.Equal(encoded[0:4], magic[:]) {
		return nil, digest, fmt.Errorf("bad magic %q", encoded[0:4])
	}
	if encoded[4] != formatVersion {
		return nil, digest, fmt.Errorf("unsupported format version %d", encoded[4])
	}
	tag := Compression(encoded[5])
	size := int(binary.BigEndian.Uint32(encoded[6:10]))
	copy(digest[:], encoded[10:42])

	payload, err := decompress(encoded[headerSize:], tag, size)
	if err != nil {
		return nil, digest, err
	}
	if DigestOf(payload) != digest {
		return nil, digest, fmt.Errorf("digest mismatch")
	}
	return payload, digest, nil
}

// writeAtomic writes data to a temporary sibling, syncs, renames it
// over path, and syncs the directory.
func writeAtomic(path string, data []byte) error {
	directory := filepath.Dir(path)
	if err := os.MkdirAll(directory, 0o700); err != nil {
		return fmt.Errorf("cachefile: creating %s: %w", directory, err)
	}

	temporaryPath := path + ".tmp"
	temporary, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("cachefile: creating temporary file: %w", err)
	}
	if _, err := temporary.Write(data); err != nil {
		temporary.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("cachefile: writing temporary file: %w", err)
	}
	if err := temporary.Sync(); err != nil {
		temporary.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("cachefile: syncing temporary file: %w", err)
	}
	if err := temporary.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("cachefile: closing temporary file: %w", err)
	}
	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("cachefile: renaming into place: %w", err)
	}

	if parent, err := os.Open(directory); err == nil {
		parent.Sync()
		parent.Close()
	}
	return nil
}

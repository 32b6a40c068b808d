// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// ErrEmpty is returned when the token source holds only whitespace.
var ErrEmpty = errors.New("secret: token is empty")

// Token is an access token in locked memory. A Token must not be
// copied. Reading a closed Token panics.
type Token struct {
	mutex  sync.Mutex
	region []byte
	length int
	closed bool
}

// NewToken moves value into locked memory and zeroes value.
func NewToken(value []byte) (*Token, error) {
	if len(value) == 0 {
		return nil, ErrEmpty
	}
	region, err := unix.Mmap(-1, 0, len(value), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("secret: mmap: %w", err)
	}
	if err := unix.Mlock(region); err != nil {
		unix.Munmap(region)
		return nil, fmt.Errorf("secret: mlock: %w", err)
	}
	if err := unix.Madvise(region, unix.MADV_DONTDUMP); err != nil {
		unix.Munlock(region)
		unix.Munmap(region)
		return nil, fmt.Errorf("secret: madvise(MADV_DONTDUMP): %w", err)
	}
	copy(region, value)
	clear(value)
	return &Token{region: region, length: len(value)}, nil
}

// ReadToken reads a token from path, or the first line of stdin when
// path is "-". Surrounding whitespace is dropped.
func ReadToken(path string, stdin io.Reader) (*Token, error) {
	var raw []byte
	if path == "-" {
		scanner := bufio.NewScanner(stdin)
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return nil, fmt.Errorf("secret: reading stdin: %w", err)
			}
			return nil, ErrEmpty
		}
		raw = scanner.Bytes()
	} else {
		var err error
		raw, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("secret: %w", err)
		}
	}
	defer clear(raw)

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, ErrEmpty
	}
	return NewToken(trimmed)
}

// Len returns the token length in bytes.
func (token *Token) Len() int {
	token.mutex.Lock()
	defer token.mutex.Unlock()
	return token.length
}

// Bearer returns the Authorization header value for the token. The
// result is a heap copy; use it only to build a request.
func (token *Token) Bearer() string {
	token.mutex.Lock()
	defer token.mutex.Unlock()
	if token.closed {
		panic("secret: read from closed token")
	}
	return "Bearer " + string(token.region[:token.length])
}

// Close zeroes and releases the token. Close is idempotent.
func (token *Token) Close() error {
	token.mutex.Lock()
	defer token.mutex.Unlock()
	if token.closed {
		return nil
	}
	token.closed = true
	clear(token.region)

	var errs []error
	if err := unix.Munlock(token.region); err != nil {
		errs = append(errs, fmt.Errorf("secret: munlock: %w", err))
	}
	if err := unix.Munmap(token.region); err != nil {
		errs = append(errs, fmt.Errorf("secret: munmap: %w", err))
	}
	token.region = nil
	return errors.Join(errs...)
}

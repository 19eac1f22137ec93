// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package device

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/echochat/echo/internal/util"
)

// FileStore keeps all keys in one JSON object on disk. Every operation reads
// the file again so changes written by another process are observed.
type FileStore struct {
	path string

	mu     sync.Mutex
	closed bool
	// digest of the content this store last read or wrote
	digest [sha256.Size]byte
}

// NewFileStore creates a store backed by path. The file is created lazily.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("device store path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create device store dir: %w", err)
	}
	return &FileStore{path: path}, nil
}

// Path returns the backing file.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) load() (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.digest = sha256.Sum256(nil)
		return map[string]json.RawMessage{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read device store: %w", err)
	}
	s.digest = sha256.Sum256(data)
	values := map[string]json.RawMessage{}
	if len(bytes.TrimSpace(data)) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("decode device store %s: %w", s.path, err)
	}
	return values, nil
}

func (s *FileStore) save(values map[string]json.RawMessage) error {
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("encode device store: %w", err)
	}
	if err := util.AtomicWriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("write device store: %w", err)
	}
	s.digest = sha256.Sum256(data)
	return nil
}

// Get implements Store.
func (s *FileStore) Get(key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, false, ErrClosed
	}
	values, err := s.load()
	if err != nil {
		return nil, false, err
	}
	v, ok := values[key]
	return []byte(v), ok, nil
}

// Set implements Store. Values must be valid JSON.
func (s *FileStore) Set(key string, value []byte) error {
	if !json.Valid(value) {
		return fmt.Errorf("value for %q is not valid JSON", key)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	values, err := s.load()
	if err != nil {
		return err
	}
	values[key] = json.RawMessage(value)
	return s.save(values)
}

// Delete implements Store.
func (s *FileStore) Delete(keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	values, err := s.load()
	if err != nil {
		return err
	}
	removed := false
	for _, k := range keys {
		if _, ok := values[k]; ok {
			delete(values, k)
			removed = true
		}
	}
	if !removed {
		return nil
	}
	return s.save(values)
}

// Keys implements Store.
func (s *FileStore) Keys() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	values, err := s.load()
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// ChangedExternally reports whether the file differs from what this store
// last read or wrote, and remembers the current content.
func (s *FileStore) ChangedExternally() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(s.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, err
	}
	sum := sha256.Sum256(data)
	if sum == s.digest {
		return false, nil
	}
	s.digest = sum
	return true, nil
}

// Close implements Store.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

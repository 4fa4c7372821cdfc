// Package memory is an in-process ObjectStore used by tests and local runs.
package memory

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tabquery/tabquery/internal/storage"
)

type object struct {
	data     []byte
	modified time.Time
}

type Store struct {
	mu      sync.RWMutex
	objects map[string]object
	// FailPut, when set, is returned by puts whose key contains it.
	FailPut string
}

func New() *Store {
	return &Store{objects: map[string]object{}}
}

func (s *Store) PutFile(_ context.Context, key, localPath string, _ storage.PutOptions) (storage.ObjectInfo, error) {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("read %s: %w", localPath, err)
	}
	return s.store(key, data)
}

func (s *Store) store(key string, data []byte) (storage.ObjectInfo, error) {
	if s.FailPut != "" && strings.Contains(key, s.FailPut) {
		return storage.ObjectInfo{}, fmt.Errorf("put %q: injected failure", key)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	s.objects[key] = object{data: data, modified: now}
	return infoFor(key, data, now), nil
}

func (s *Store) GetFile(_ context.Context, key, localPath string) error {
	s.mu.RLock()
	obj, ok := s.objects[key]
	s.mu.RUnlock()
	if !ok {
		return storage.ErrObjectNotFound
	}
	if err := os.WriteFile(localPath, obj.data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", localPath, err)
	}
	return nil
}

func (s *Store) Stat(_ context.Context, key string) (storage.ObjectInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	if !ok {
		return storage.ObjectInfo{}, storage.ErrObjectNotFound
	}
	return infoFor(key, obj.data, obj.modified), nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

// Seed stores data under key without going through a local file.
func (s *Store) Seed(key string, data []byte) (storage.ObjectInfo, error) {
	return s.store(key, bytes.Clone(data))
}

// Bytes returns a copy of the object stored under key.
func (s *Store) Bytes(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	if !ok {
		return nil, false
	}
	return bytes.Clone(obj.data), true
}

// Keys lists stored keys in sorted order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.objects))
	for key := range s.objects {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Truncate replaces an object's content with its first n bytes.
func (s *Store) Truncate(key string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[key]
	if !ok || n >= len(obj.data) {
		return
	}
	obj.data = obj.data[:n]
	s.objects[key] = obj
}

func infoFor(key string, data []byte, modified time.Time) storage.ObjectInfo {
	sum := md5.Sum(data)
	return storage.ObjectInfo{
		Key:          key,
		Size:         int64(len(data)),
		ETag:         hex.EncodeToString(sum[:]),
		LastModified: modified,
	}
}

// Package memory is an in-process kv.Store used for development and tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"expenses/internal/kv"
)

var _ kv.Store = (*Store)(nil)

// Store keeps values in a map. Listing is sorted by key and the cursor is
// the last key returned.
type Store struct {
	mu       sync.RWMutex
	data     map[string][]byte
	pageSize int
	failGet  map[string]error
}

// Option configures a Store.
type Option func(*Store)

// WithPageSize caps every List page regardless of the caller's limit.
func WithPageSize(n int) Option {
	return func(s *Store) { s.pageSize = n }
}

func New(opts ...Option) *Store {
	s := &Store{data: make(map[string][]byte), failGet: make(map[string]error)}
	for _, o := range opts {
		o(s)
	}
	return s
}

// FailGet makes subsequent Gets of key return err. Pass nil to clear.
func (s *Store) FailGet(key string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failGet, key)
		return
	}
	s.failGet[key] = err
}

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err, ok := s.failGet[key]; ok {
		return nil, false, err
	}
	v, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (s *Store) Put(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append([]byte(nil), value...)
	return nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *Store) List(_ context.Context, prefix, cursor string, limit int) (kv.Page, error) {
	if limit <= 0 {
		limit = kv.DefaultPageSize
	}
	if s.pageSize > 0 && s.pageSize < limit {
		limit = s.pageSize
	}
	s.mu.RLock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		if strings.HasPrefix(k, prefix) && k > cursor {
			keys = append(keys, k)
		}
	}
	s.mu.RUnlock()
	sort.Strings(keys)

	if len(keys) <= limit {
		return kv.Page{Keys: keys, Complete: true}, nil
	}
	keys = keys[:limit]
	return kv.Page{Keys: keys, Cursor: keys[len(keys)-1]}, nil
}

// Len returns the number of stored keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Package memkv provides an in-memory kv.Store.
//
// Contents are lost when the process exits. Two Choreographers built over
// the same Store observe the same state, which is how tests simulate a host
// restart.
package memkv

import (
	"context"
	"slices"
	"sync"

	"github.com/roach88/choreo/internal/kv"
)

// Store is an in-memory kv.Store. The zero value is not usable; use New.
type Store struct {
	mu   sync.RWMutex
	data map[string]map[string][]byte
}

var _ kv.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{data: map[string]map[string][]byte{}}
}

// Get implements kv.Store.
func (s *Store) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.data[namespace][key]
	if !ok {
		return nil, kv.ErrNotFound
	}
	return slices.Clone(v), nil
}

// Set implements kv.Store.
func (s *Store) Set(ctx context.Context, namespace, key string, val []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ns, ok := s.data[namespace]
	if !ok {
		ns = map[string][]byte{}
		s.data[namespace] = ns
	}
	ns[key] = append([]byte{}, val...)
	return nil
}

// Delete implements kv.Store.
func (s *Store) Delete(ctx context.Context, namespace, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ns, ok := s.data[namespace]; ok {
		delete(ns, key)
		if len(ns) == 0 {
			delete(s.data, namespace)
		}
	}
	return nil
}

// DeleteNamespace implements kv.Store.
func (s *Store) DeleteNamespace(ctx context.Context, namespace string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, namespace)
	return nil
}

// Keys implements kv.Store.
func (s *Store) Keys(ctx context.Context, namespace string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.data[namespace]))
	for k := range s.data[namespace] {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys, nil
}

// Namespaces returns the names of all non-empty namespaces, sorted.
func (s *Store) Namespaces() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.data))
	for n := range s.data {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Close implements kv.Store. The contents remain readable after Close so a
// test can inspect what a stopped Choreographer left behind.
func (s *Store) Close() error {
	return nil
}

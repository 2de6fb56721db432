package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/roach88/choreo/internal/kv"
)

// ErrInjected is the error returned by a FailingStore rule.
var ErrInjected = errors.New("injected store failure")

// FailingStore wraps a kv.Store and fails writes and deletes matching a rule.
//
// Thread-safety: All methods are safe for concurrent use.
type FailingStore struct {
	kv.Store

	mu         sync.Mutex
	failSet    func(namespace, key string) bool
	failDelete func(namespace, key string) bool
}

// NewFailingStore wraps s. Nothing fails until FailSetWhen is called.
func NewFailingStore(s kv.Store) *FailingStore {
	return &FailingStore{Store: s}
}

// FailSetWhen makes Set return ErrInjected whenever match reports true.
// A nil match clears the rule.
func (f *FailingStore) FailSetWhen(match func(namespace, key string) bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failSet = match
}

// Set implements kv.Store.
func (f *FailingStore) Set(ctx context.Context, namespace, key string, val []byte) error {
	f.mu.Lock()
	match := f.failSet
	f.mu.Unlock()

	if match != nil && match(namespace, key) {
		return ErrInjected
	}
	return f.Store.Set(ctx, namespace, key, val)
}

// FailDeleteWhen makes Delete return ErrInjected whenever match reports true.
// A nil match clears the rule.
func (f *FailingStore) FailDeleteWhen(match func(namespace, key string) bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failDelete = match
}

// Delete implements kv.Store.
func (f *FailingStore) Delete(ctx context.Context, namespace, key string) error {
	f.mu.Lock()
	match := f.failDelete
	f.mu.Unlock()

	if match != nil && match(namespace, key) {
		return ErrInjected
	}
	return f.Store.Delete(ctx, namespace, key)
}

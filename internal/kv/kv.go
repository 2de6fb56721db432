package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/choreo/internal/value"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("kv: key not found")

// Store is namespaced durable key/value persistence.
//
// Implementations must be safe for concurrent use. Set and Delete must not
// return until the write is durable.
type Store interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, namespace, key string) ([]byte, error)

	// Set stores val under key, replacing any existing value.
	Set(ctx context.Context, namespace, key string, val []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, namespace, key string) error

	// DeleteNamespace removes every key in the namespace.
	// Deleting an empty or unknown namespace is not an error.
	DeleteNamespace(ctx context.Context, namespace string) error

	// Keys returns the keys in the namespace in ascending byte order.
	Keys(ctx context.Context, namespace string) ([]string, error)

	// Close releases the underlying resources.
	Close() error
}

// Namespace is a view of a single namespace within a Store.
type Namespace struct {
	store Store
	name  string
}

// NewNamespace returns a view of the named namespace in s.
func NewNamespace(s Store, name string) Namespace {
	return Namespace{store: s, name: name}
}

// Name returns the namespace name.
func (n Namespace) Name() string {
	return n.name
}

// GetBytes returns the raw value for key.
func (n Namespace) GetBytes(ctx context.Context, key string) ([]byte, error) {
	return n.store.Get(ctx, n.name, key)
}

// GetString returns the value for key as a string.
func (n Namespace) GetString(ctx context.Context, key string) (string, error) {
	b, err := n.store.Get(ctx, n.name, key)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// SetString stores s under key.
func (n Namespace) SetString(ctx context.Context, key, s string) error {
	return n.store.Set(ctx, n.name, key, []byte(s))
}

// GetJSON decodes the value for key into target.
func (n Namespace) GetJSON(ctx context.Context, key string, target any) error {
	b, err := n.store.Get(ctx, n.name, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, target); err != nil {
		return fmt.Errorf("decode %s/%s: %w", n.name, key, err)
	}
	return nil
}

// SetJSON encodes v as JSON and stores it under key.
func (n Namespace) SetJSON(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", n.name, key, err)
	}
	return n.store.Set(ctx, n.name, key, b)
}

// GetValue decodes the value for key as a value.Value.
func (n Namespace) GetValue(ctx context.Context, key string) (value.Value, error) {
	b, err := n.store.Get(ctx, n.name, key)
	if err != nil {
		return nil, err
	}
	v, err := value.Unmarshal(b)
	if err != nil {
		return nil, fmt.Errorf("decode %s/%s: %w", n.name, key, err)
	}
	return v, nil
}

// SetValue stores v under key.
func (n Namespace) SetValue(ctx context.Context, key string, v value.Value) error {
	b, err := value.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", n.name, key, err)
	}
	return n.store.Set(ctx, n.name, key, b)
}

// Delete removes the given keys.
func (n Namespace) Delete(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		if err := n.store.Delete(ctx, n.name, k); err != nil {
			return err
		}
	}
	return nil
}

// Clear removes every key in the namespace.
func (n Namespace) Clear(ctx context.Context) error {
	return n.store.DeleteNamespace(ctx, n.name)
}

// Keys lists the keys in the namespace.
func (n Namespace) Keys(ctx context.Context) ([]string, error) {
	return n.store.Keys(ctx, n.name)
}

// Has reports whether key exists.
func (n Namespace) Has(ctx context.Context, key string) (bool, error) {
	_, err := n.store.Get(ctx, n.name, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

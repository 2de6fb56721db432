package choreo

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/choreo/internal/kv"
	"github.com/roach88/choreo/internal/value"
)

// ErrReservedKey is returned when procedure code touches a key the engine
// keeps its own records under.
var ErrReservedKey = errors.New("reserved process key")

// Locals is a process's private scratch storage. It lives in the process
// namespace and is cleared with it when the process completes or fails.
//
// Keys starting with '$', and the procedureName, procedureIdentity and flow
// keys, belong to the engine and are refused.
type Locals struct {
	ns  kv.Namespace
	ctx context.Context
}

// Get returns the value stored under key, or kv.ErrNotFound.
func (l Locals) Get(key string) (value.Value, error) {
	if reservedKey(key) {
		return nil, fmt.Errorf("get %q: %w", key, ErrReservedKey)
	}
	return l.ns.GetValue(l.ctx, key)
}

// Lookup returns the value under key and whether it exists.
func (l Locals) Lookup(key string) (value.Value, bool, error) {
	v, err := l.Get(key)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// Set stores v under key.
func (l Locals) Set(key string, v value.Value) error {
	if reservedKey(key) {
		return fmt.Errorf("set %q: %w", key, ErrReservedKey)
	}
	if v == nil {
		v = value.Null{}
	}
	return l.ns.SetValue(l.ctx, key, v)
}

// Delete removes key. Deleting a missing key is not an error.
func (l Locals) Delete(key string) error {
	if reservedKey(key) {
		return fmt.Errorf("delete %q: %w", key, ErrReservedKey)
	}
	return l.ns.Delete(l.ctx, key)
}

// Package kvtest provides a conformance suite run against every kv.Store
// implementation.
package kvtest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/choreo/internal/kv"
	"github.com/roach88/choreo/internal/value"
)

// Factory returns a fresh, empty store. The suite closes it.
type Factory func(t *testing.T) kv.Store

// Run executes the conformance suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	ctx := context.Background()

	open := func(t *testing.T) kv.Store {
		t.Helper()
		s := newStore(t)
		t.Cleanup(func() { s.Close() })
		return s
	}

	t.Run("get missing key", func(t *testing.T) {
		s := open(t)
		_, err := s.Get(ctx, "ns", "missing")
		assert.ErrorIs(t, err, kv.ErrNotFound)
	})

	t.Run("set then get", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Set(ctx, "ns", "k", []byte("v1")))

		got, err := s.Get(ctx, "ns", "k")
		require.NoError(t, err)
		assert.Equal(t, "v1", string(got))
	})

	t.Run("set overwrites", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Set(ctx, "ns", "k", []byte("v1")))
		require.NoError(t, s.Set(ctx, "ns", "k", []byte("v2")))

		got, err := s.Get(ctx, "ns", "k")
		require.NoError(t, err)
		assert.Equal(t, "v2", string(got))
	})

	t.Run("empty value is stored", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Set(ctx, "ns", "k", nil))

		got, err := s.Get(ctx, "ns", "k")
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("namespaces are isolated", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Set(ctx, "process.1", "k", []byte("one")))
		require.NoError(t, s.Set(ctx, "process.10", "k", []byte("ten")))

		got, err := s.Get(ctx, "process.1", "k")
		require.NoError(t, err)
		assert.Equal(t, "one", string(got))

		require.NoError(t, s.DeleteNamespace(ctx, "process.1"))
		_, err = s.Get(ctx, "process.1", "k")
		assert.ErrorIs(t, err, kv.ErrNotFound)

		got, err = s.Get(ctx, "process.10", "k")
		require.NoError(t, err)
		assert.Equal(t, "ten", string(got))
	})

	t.Run("delete", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Set(ctx, "ns", "a", []byte("1")))
		require.NoError(t, s.Set(ctx, "ns", "b", []byte("2")))
		require.NoError(t, s.Delete(ctx, "ns", "a"))
		require.NoError(t, s.Delete(ctx, "ns", "never-set"))
		require.NoError(t, s.Delete(ctx, "never-created", "a"))

		_, err := s.Get(ctx, "ns", "a")
		assert.ErrorIs(t, err, kv.ErrNotFound)

		keys, err := s.Keys(ctx, "ns")
		require.NoError(t, err)
		assert.Equal(t, []string{"b"}, keys)
	})

	t.Run("delete unknown namespace", func(t *testing.T) {
		s := open(t)
		assert.NoError(t, s.DeleteNamespace(ctx, "nothing-here"))
	})

	t.Run("keys sorted", func(t *testing.T) {
		s := open(t)
		for _, k := range []string{"$wait", "procedureName", "$step", "flow"} {
			require.NoError(t, s.Set(ctx, "ns", k, []byte("x")))
		}

		keys, err := s.Keys(ctx, "ns")
		require.NoError(t, err)
		assert.Equal(t, []string{"$step", "$wait", "flow", "procedureName"}, keys)

		keys, err = s.Keys(ctx, "empty")
		require.NoError(t, err)
		assert.Empty(t, keys)
	})

	t.Run("returned slices are not aliased", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Set(ctx, "ns", "k", []byte("abc")))

		got, err := s.Get(ctx, "ns", "k")
		require.NoError(t, err)
		got[0] = 'z'

		again, err := s.Get(ctx, "ns", "k")
		require.NoError(t, err)
		assert.Equal(t, "abc", string(again))
	})

	t.Run("namespace helpers", func(t *testing.T) {
		s := open(t)
		ns := kv.NewNamespace(s, "process.3")

		require.NoError(t, ns.SetString(ctx, "procedureName", "greet"))
		name, err := ns.GetString(ctx, "procedureName")
		require.NoError(t, err)
		assert.Equal(t, "greet", name)

		require.NoError(t, ns.SetJSON(ctx, "pids", []int{0, 2}))
		var pids []int
		require.NoError(t, ns.GetJSON(ctx, "pids", &pids))
		assert.Equal(t, []int{0, 2}, pids)

		require.NoError(t, ns.SetValue(ctx, "v", value.Map{"n": value.Int(5)}))
		v, err := ns.GetValue(ctx, "v")
		require.NoError(t, err)
		assert.True(t, value.Equal(value.Map{"n": value.Int(5)}, v))

		ok, err := ns.Has(ctx, "v")
		require.NoError(t, err)
		assert.True(t, ok)

		require.NoError(t, ns.Delete(ctx, "v", "pids"))
		ok, err = ns.Has(ctx, "v")
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, ns.Clear(ctx))
		keys, err := ns.Keys(ctx)
		require.NoError(t, err)
		assert.Empty(t, keys)
	})

	t.Run("concurrent writers", func(t *testing.T) {
		s := open(t)

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				ns := fmt.Sprintf("process.%d", i)
				for j := 0; j < 10; j++ {
					assert.NoError(t, s.Set(ctx, ns, fmt.Sprintf("k%d", j), []byte("v")))
				}
			}(i)
		}
		wg.Wait()

		for i := 0; i < 8; i++ {
			keys, err := s.Keys(ctx, fmt.Sprintf("process.%d", i))
			require.NoError(t, err)
			assert.Len(t, keys, 10)
		}
	})
}

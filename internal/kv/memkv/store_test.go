package memkv

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/choreo/internal/kv"
	"github.com/roach88/choreo/internal/kv/kvtest"
)

func TestConformance(t *testing.T) {
	kvtest.Run(t, func(t *testing.T) kv.Store { return New() })
}

func TestNamespaces(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.Set(ctx, "process.1", "a", []byte("x")))
	require.NoError(t, s.Set(ctx, "choreographer", "pids", []byte("[1]")))
	assert.Equal(t, []string{"choreographer", "process.1"}, s.Namespaces())

	require.NoError(t, s.Delete(ctx, "process.1", "a"))
	assert.Equal(t, []string{"choreographer"}, s.Namespaces())
}

func TestReadableAfterClose(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Set(ctx, "ns", "k", []byte("v")))
	require.NoError(t, s.Close())

	got, err := s.Get(ctx, "ns", "k")
	require.NoError(t, err)
	assert.Equal(t, "v", string(got))
}

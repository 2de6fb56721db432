package choreo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/choreo/internal/kv"
	"github.com/roach88/choreo/internal/kv/memkv"
	"github.com/roach88/choreo/internal/value"
)

func TestReservedKey(t *testing.T) {
	tests := []struct {
		key      string
		reserved bool
	}{
		{"$step", true},
		{"$wait", true},
		{"$custom", true},
		{"procedureName", true},
		{"procedureIdentity", true},
		{"flow", true},
		{"count", false},
		{"", false},
		{"step", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.reserved, reservedKey(tt.key), "key %q", tt.key)
	}
}

func TestPIDSet_SortedAndMissingIsEmpty(t *testing.T) {
	ctx := context.Background()
	store := memkv.New()
	global := kv.NewNamespace(store, GlobalNamespace)

	pids, err := loadPIDs(ctx, global)
	require.NoError(t, err)
	assert.Empty(t, pids)

	require.NoError(t, savePIDs(ctx, global, []int{3, 0, 2}))
	raw, err := global.GetString(ctx, keyPIDs)
	require.NoError(t, err)
	assert.Equal(t, "[0,2,3]", raw)

	require.NoError(t, savePIDs(ctx, global, nil))
	raw, err = global.GetString(ctx, keyPIDs)
	require.NoError(t, err)
	assert.Equal(t, "[]", raw)
}

func TestPIDSet_Corrupt(t *testing.T) {
	ctx := context.Background()
	store := memkv.New()
	global := kv.NewNamespace(store, GlobalNamespace)
	require.NoError(t, global.SetString(ctx, keyPIDs, "1,2,3"))

	_, err := loadPIDs(ctx, global)
	assert.ErrorContains(t, err, "read pid set")
}

func TestReadProcess(t *testing.T) {
	ctx := context.Background()
	store := memkv.New()
	ns := kv.NewNamespace(store, ProcessNamespace(7))

	_, err := readProcess(ctx, store, 7)
	assert.ErrorIs(t, err, kv.ErrNotFound)

	require.NoError(t, ns.SetString(ctx, keyName, "greet"))
	require.NoError(t, ns.SetString(ctx, keyIdentity, "abc"))

	rec, err := readProcess(ctx, store, 7)
	require.NoError(t, err)
	assert.Equal(t, "greet", rec.name)
	assert.Nil(t, rec.step)
	assert.Nil(t, rec.wait)

	require.NoError(t, ns.SetJSON(ctx, keyStep, stepRecord{Step: "middle", Args: value.List{value.Int(5)}}))
	require.NoError(t, ns.SetJSON(ctx, keyWait, waitRecord{PID: 3, Cont: "after"}))

	rec, err = readProcess(ctx, store, 7)
	require.NoError(t, err)
	require.NotNil(t, rec.step)
	assert.Equal(t, "middle", rec.step.Step)
	assert.Equal(t, value.List{value.Int(5)}, rec.step.Args)
	assert.Equal(t, &waitRecord{PID: 3, Cont: "after"}, rec.wait)

	require.NoError(t, ns.SetString(ctx, keyStep, "not json"))
	_, err = readProcess(ctx, store, 7)
	assert.ErrorContains(t, err, keyStep)
}

func TestStepRecord_WireFormat(t *testing.T) {
	ctx := context.Background()
	store := memkv.New()
	ns := kv.NewNamespace(store, ProcessNamespace(0))

	require.NoError(t, ns.SetJSON(ctx, keyStep, stepRecord{Step: "middle", Args: value.List{value.Int(5)}}))
	raw, err := ns.GetString(ctx, keyStep)
	require.NoError(t, err)
	assert.JSONEq(t, `{"step":"middle","args":[5]}`, raw)

	require.NoError(t, ns.SetJSON(ctx, keyWait, waitRecord{PID: 1, Cont: "afterChild"}))
	raw, err = ns.GetString(ctx, keyWait)
	require.NoError(t, err)
	assert.JSONEq(t, `{"pid":1,"cont":"afterChild"}`, raw)
}

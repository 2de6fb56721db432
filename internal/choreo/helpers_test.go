package choreo_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/choreo/internal/choreo"
	"github.com/roach88/choreo/internal/executor"
	"github.com/roach88/choreo/internal/kv"
	"github.com/roach88/choreo/internal/value"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// newChoreographer builds a quiet Choreographer on store. Callers register
// procedures and then call Start.
func newChoreographer(store kv.Store, opts ...choreo.Option) *choreo.Choreographer {
	base := []choreo.Option{choreo.WithLogger(quietLogger())}
	return choreo.New(store, append(base, opts...)...)
}

// inline runs every background task synchronously.
func inline() choreo.Option {
	return choreo.WithExecutor(executor.Inline{})
}

func start(t testing.TB, c *choreo.Choreographer) {
	t.Helper()
	require.NoError(t, c.Start(context.Background()))
}

// parked collects processes whose step returned without advancing, so a
// test can finish them later.
type parked struct {
	mu    sync.Mutex
	procs map[int]*choreo.Process
}

func newParked() *parked {
	return &parked{procs: map[int]*choreo.Process{}}
}

func (h *parked) park(p *choreo.Process) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.procs[p.PID()] = p
}

func (h *parked) get(t require.TestingT, pid int) *choreo.Process {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.procs[pid]
	require.True(t, ok, "pid %d not parked", pid)
	return p
}

func (h *parked) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.procs)
}

// seed writes a process record directly, as a previous host would have left it.
type seed struct {
	pid      int
	name     string
	args     []value.Value
	step     string
	stepArgs []value.Value
	waitPID  *int
	waitCont string
}

func writeSeeds(t testing.TB, store kv.Store, seeds ...seed) {
	t.Helper()
	ctx := context.Background()

	pids := make([]int, 0, len(seeds))
	for _, s := range seeds {
		pids = append(pids, s.pid)
		ns := kv.NewNamespace(store, choreo.ProcessNamespace(s.pid))

		require.NoError(t, ns.SetString(ctx, "procedureName", s.name))
		require.NoError(t, ns.SetString(ctx, "procedureIdentity", value.MustIdentity(s.name, s.args)))
		require.NoError(t, ns.SetString(ctx, "flow", "seeded-flow"))
		if s.step != "" {
			require.NoError(t, ns.SetJSON(ctx, "$step", map[string]any{
				"step": s.step,
				"args": value.Args(s.stepArgs...),
			}))
		}
		if s.waitPID != nil {
			require.NoError(t, ns.SetJSON(ctx, "$wait", map[string]any{
				"pid":  *s.waitPID,
				"cont": s.waitCont,
			}))
		}
	}
	require.NoError(t, kv.NewNamespace(store, choreo.GlobalNamespace).SetJSON(ctx, "pids", pids))
}

func persistedPIDs(t testing.TB, store kv.Store) []int {
	t.Helper()
	raw, err := store.Get(context.Background(), choreo.GlobalNamespace, "pids")
	require.NoError(t, err)
	var pids []int
	require.NoError(t, json.Unmarshal(raw, &pids))
	return pids
}

func processKeys(t testing.TB, store kv.Store, pid int) []string {
	t.Helper()
	keys, err := store.Keys(context.Background(), "process."+strconv.Itoa(pid))
	require.NoError(t, err)
	return keys
}

func intPtr(i int) *int { return &i }

package choreo

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"

	"github.com/roach88/choreo/internal/kv"
	"github.com/roach88/choreo/internal/value"
)

// Durable store layout.
const (
	// GlobalNamespace holds the Choreographer's own state.
	GlobalNamespace = "choreographer"

	keyPIDs      = "pids"
	keyName      = "procedureName"
	keyIdentity  = "procedureIdentity"
	keyFlow      = "flow"
	keyStep      = "$step"
	keyWait      = "$wait"
	processNSPfx = "process."
)

// ProcessNamespace returns the store namespace owned by process pid.
func ProcessNamespace(pid int) string {
	return processNSPfx + strconv.Itoa(pid)
}

// stepRecord is the persisted form of the most recently entered step.
type stepRecord struct {
	Step string     `json:"step"`
	Args value.List `json:"args"`
}

// waitRecord is present exactly while a process waits on a sub-procedure.
type waitRecord struct {
	PID  int    `json:"pid"`
	Cont string `json:"cont"`
}

// reservedKey reports whether key is used by the engine itself.
func reservedKey(key string) bool {
	switch key {
	case keyName, keyIdentity, keyFlow:
		return true
	}
	return len(key) > 0 && key[0] == '$'
}

// loadPIDs reads the persisted live pid set. A missing key is an empty set.
func loadPIDs(ctx context.Context, global kv.Namespace) ([]int, error) {
	var pids []int
	err := global.GetJSON(ctx, keyPIDs, &pids)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read pid set: %w", err)
	}
	return pids, nil
}

// savePIDs writes the live pid set in ascending order.
func savePIDs(ctx context.Context, global kv.Namespace, pids []int) error {
	sorted := slices.Clone(pids)
	if sorted == nil {
		sorted = []int{}
	}
	slices.Sort(sorted)
	if err := global.SetJSON(ctx, keyPIDs, sorted); err != nil {
		return fmt.Errorf("write pid set: %w", err)
	}
	return nil
}

// persistedProcess is everything the store holds about one process.
type persistedProcess struct {
	pid      int
	name     string
	identity string
	flow     string
	step     *stepRecord
	wait     *waitRecord
}

// readProcess loads the record for pid. The name and identity keys are
// mandatory; $step, $wait and flow are optional.
func readProcess(ctx context.Context, s kv.Store, pid int) (*persistedProcess, error) {
	ns := kv.NewNamespace(s, ProcessNamespace(pid))
	rec := &persistedProcess{pid: pid}

	var err error
	if rec.name, err = ns.GetString(ctx, keyName); err != nil {
		return nil, fmt.Errorf("read %s: %w", keyName, err)
	}
	if rec.identity, err = ns.GetString(ctx, keyIdentity); err != nil {
		return nil, fmt.Errorf("read %s: %w", keyIdentity, err)
	}
	if rec.flow, err = ns.GetString(ctx, keyFlow); err != nil && !errors.Is(err, kv.ErrNotFound) {
		return nil, fmt.Errorf("read %s: %w", keyFlow, err)
	}

	var step stepRecord
	switch err := ns.GetJSON(ctx, keyStep, &step); {
	case err == nil:
		rec.step = &step
	case !errors.Is(err, kv.ErrNotFound):
		return nil, fmt.Errorf("read %s: %w", keyStep, err)
	}

	var wait waitRecord
	switch err := ns.GetJSON(ctx, keyWait, &wait); {
	case err == nil:
		rec.wait = &wait
	case !errors.Is(err, kv.ErrNotFound):
		return nil, fmt.Errorf("read %s: %w", keyWait, err)
	}

	return rec, nil
}

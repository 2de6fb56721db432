package choreo

import (
	"context"
	"slices"

	"github.com/roach88/choreo/internal/kv"
	"github.com/roach88/choreo/internal/value"
)

// ProcessInfo describes one live or persisted process.
type ProcessInfo struct {
	PID          int        `json:"pid"`
	Procedure    string     `json:"procedure,omitempty"`
	Flow         string     `json:"flow,omitempty"`
	Step         string     `json:"step,omitempty"`
	Args         value.List `json:"args,omitempty"`
	WaitingOn    *int       `json:"waiting_on,omitempty"`
	Continuation string     `json:"continuation,omitempty"`

	// Error is set when the record could not be read.
	Error string `json:"error,omitempty"`
}

// Waiting reports whether the process waits on a sub-procedure.
func (i ProcessInfo) Waiting() bool {
	return i.WaitingOn != nil
}

// ReadSnapshot lists the processes persisted in store, ordered by pid,
// without running anything. Records that cannot be read are listed with
// Error set.
func ReadSnapshot(ctx context.Context, store kv.Store) ([]ProcessInfo, error) {
	pids, err := loadPIDs(ctx, kv.NewNamespace(store, GlobalNamespace))
	if err != nil {
		return nil, err
	}
	slices.Sort(pids)

	infos := make([]ProcessInfo, 0, len(pids))
	for _, pid := range pids {
		rec, err := readProcess(ctx, store, pid)
		if err != nil {
			infos = append(infos, ProcessInfo{PID: pid, Error: err.Error()})
			continue
		}

		info := ProcessInfo{
			PID:       pid,
			Procedure: rec.name,
			Flow:      rec.flow,
		}
		if rec.step != nil {
			info.Step = rec.step.Step
			info.Args = rec.step.Args
		}
		if rec.wait != nil {
			child := rec.wait.PID
			info.WaitingOn = &child
			info.Continuation = rec.wait.Cont
		}
		infos = append(infos, info)
	}
	return infos, nil
}

package choreo

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"runtime/debug"
	"slices"
	"sync"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"

	"github.com/roach88/choreo/internal/executor"
	"github.com/roach88/choreo/internal/kv"
	"github.com/roach88/choreo/internal/value"
)

// Choreographer is the procedure registry and process scheduler.
//
// Lifecycle:
//  1. New, then Register every procedure.
//  2. Start, once. Processes that were live when the host last stopped are
//     resumed.
//  3. StartProcedure / RunProcedure.
//  4. Stop. Live processes stay persisted for the next Start.
type Choreographer struct {
	store   kv.Store
	global  kv.Namespace
	exec    executor.Executor
	logger  *slog.Logger
	tracer  trace.Tracer
	flowGen FlowTokenGenerator

	// procedures is written before Start and read-only afterwards.
	procedures map[string]Procedure

	// mu guards everything below, and every store write to the pid set.
	mu         sync.Mutex
	processes  map[int]*Process
	identities map[string]int
	waiting    map[int][]waiter
	// unrecoverable holds pids whose records could not be reconstructed at
	// Start. They stay in the persisted pid set and are never reallocated.
	unrecoverable map[int]error
	// pidCounter is the lowest pid that might be free: every pid below it is live.
	pidCounter int
	started    bool
	stopped    bool

	lmu              sync.RWMutex
	listeners        map[string][]Listener
	failureListeners map[string][]FailureListener
}

// waiter is a parent process parked on a child, and where it continues.
type waiter struct {
	parent *Process
	cont   string
}

// New creates a Choreographer persisting into store.
func New(store kv.Store, opts ...Option) *Choreographer {
	c := &Choreographer{
		store:            store,
		global:           kv.NewNamespace(store, GlobalNamespace),
		logger:           slog.Default(),
		tracer:           defaultTracer(),
		flowGen:          UUIDv7Generator{},
		procedures:       map[string]Procedure{},
		processes:        map[int]*Process{},
		identities:       map[string]int{},
		waiting:          map[int][]waiter{},
		unrecoverable:    map[int]error{},
		listeners:        map[string][]Listener{},
		failureListeners: map[string][]FailureListener{},
	}

	for _, opt := range opts {
		opt(c)
	}
	if c.exec == nil {
		c.exec = executor.NewGo()
	}
	return c
}

// Register adds a procedure under name. Must be called before Start.
func (c *Choreographer) Register(name string, p Procedure) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return fmt.Errorf("register %q: choreographer already started", name)
	}
	if _, exists := c.procedures[name]; exists {
		return fmt.Errorf("register %q: procedure already registered", name)
	}
	c.procedures[name] = p
	return nil
}

// RegisterFunc is Register for a plain function.
func (c *Choreographer) RegisterFunc(name string, f func(p *Process, step string, args []value.Value) error) error {
	return c.Register(name, ProcedureFunc(f))
}

// Procedures returns the registered procedure names, sorted.
func (c *Choreographer) Procedures() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Sorted(maps.Keys(c.procedures))
}

// AddListener registers l to be told when a process running the named
// procedure completes. Listeners run in registration order.
func (c *Choreographer) AddListener(procedure string, l Listener) {
	c.lmu.Lock()
	defer c.lmu.Unlock()
	c.listeners[procedure] = append(c.listeners[procedure], l)
}

// AddFailureListener registers l to be told when a process running the named
// procedure fails.
func (c *Choreographer) AddFailureListener(procedure string, l FailureListener) {
	c.lmu.Lock()
	defer c.lmu.Unlock()
	c.failureListeners[procedure] = append(c.failureListeners[procedure], l)
}

// Start resumes every process that was live when the host last stopped.
//
// Resumption is two passes. The first, synchronous pass reconstructs every
// process and re-links parents waiting on children, so a child that finishes
// during its own resume finds its parent. The second pass submits
// resume() for every process to the executor.
//
// A process whose record cannot be read is logged and skipped; its pid stays
// reserved and persisted so the record is never overwritten. A parent
// waiting on such a process is failed with ErrChildLost. Start only returns
// an error if the pid set itself cannot be read or written.
func (c *Choreographer) Start(ctx context.Context) error {
	bg := context.WithoutCancel(ctx)

	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return fmt.Errorf("choreographer already started")
	}
	c.started = true

	pids, err := loadPIDs(ctx, c.global)
	if err != nil {
		c.mu.Unlock()
		return err
	}

	var (
		resumed []*Process
		skipped error
	)
	for _, pid := range pids {
		if _, dup := c.processes[pid]; dup {
			continue
		}
		p, err := c.restoreProcess(bg, pid)
		if err != nil {
			rerr := NewResumeError(pid, err)
			c.logger.Error("skipping unrecoverable process", "pid", pid, "error", err)
			c.unrecoverable[pid] = rerr
			skipped = multierr.Append(skipped, rerr)
			continue
		}
		c.processes[pid] = p
		if _, dup := c.identities[p.identity]; !dup {
			c.identities[p.identity] = pid
		}
		resumed = append(resumed, p)
	}
	c.pidCounter = c.lowestFreePIDLocked(0)

	// Pass 1: re-link waiting parents before anything runs.
	var orphans []*Process
	for _, p := range resumed {
		child, ok := p.resumeWait()
		if !ok {
			continue
		}
		if _, live := c.processes[child]; !live {
			orphans = append(orphans, p)
		}
	}

	if err := c.savePIDsLocked(ctx); err != nil {
		c.mu.Unlock()
		return err
	}
	c.mu.Unlock()

	if skipped != nil {
		c.logger.Warn("resume skipped processes",
			"skipped", len(multierr.Errors(skipped)),
			"error", skipped,
		)
	}

	for _, p := range orphans {
		w := p.currentWait()
		c.unlinkWaiter(w.PID, p)
		p.childFailed(NewChildFailedError(w.PID, "", ErrChildLost))
	}

	// Pass 2: replay.
	for _, p := range resumed {
		if p.isTerminated() {
			continue
		}
		c.logger.Info("resuming process", "pid", p.pid, "procedure", p.name, "flow", p.flow)
		if err := c.exec.Submit(p.resume); err != nil {
			c.logger.Error("could not submit resume; process left for next start",
				"pid", p.pid,
				"error", err,
			)
		}
	}

	c.logger.Info("choreographer started",
		"resumed", len(resumed),
		"procedures", len(c.procedures),
	)
	return nil
}

// Stop rejects further top-level starts and waits for the executor to drain.
// Steps still running may call sub-procedures; those start as usual, or are
// left persisted if the executor no longer accepts work. Processes still live
// afterwards are resumed by the next Start.
func (c *Choreographer) Stop() {
	c.mu.Lock()
	c.stopped = true
	c.mu.Unlock()

	c.exec.Wait()
	c.logger.Info("choreographer stopped", "live", len(c.Processes()))
}

// StartProcedure starts the named procedure in the background and returns
// its pid. If an equivalent invocation (same name, canonically equal args)
// is already live, its pid is returned and nothing new runs.
func (c *Choreographer) StartProcedure(ctx context.Context, name string, args ...value.Value) (int, error) {
	return c.start(ctx, name, args, nil, "", false)
}

// RunProcedure is StartProcedure, except that the start step runs on the
// calling goroutine. It returns once the process has completed, failed, or
// parked (at a sub-procedure call, or a step that did not advance).
func (c *Choreographer) RunProcedure(ctx context.Context, name string, args ...value.Value) (int, error) {
	return c.start(ctx, name, args, nil, "", true)
}

// start is the single entry point for new processes. With a parent, the
// parent is registered as waiting on the returned pid, and its wait record is
// persisted, before the child can possibly finish.
func (c *Choreographer) start(
	ctx context.Context,
	name string,
	args []value.Value,
	parent *Process,
	cont string,
	foreground bool,
) (int, error) {
	identity, err := value.Identity(name, args)
	if err != nil {
		return -1, fmt.Errorf("start %q: %w", name, err)
	}

	c.mu.Lock()

	switch {
	case !c.started:
		c.mu.Unlock()
		return -1, newStateError(ErrCodeNotStarted, "choreographer not started", name)
	case c.stopped && parent == nil:
		// Steps still draining may call sub-procedures.
		c.mu.Unlock()
		return -1, newStateError(ErrCodeStopped, "choreographer stopped", name)
	}

	if pid, ok := c.identities[identity]; ok {
		if parent != nil {
			if c.awaitsLocked(pid, parent.pid) {
				c.mu.Unlock()
				return -1, NewCallCycleError(pid, name)
			}
			if err := c.linkWaiterLocked(pid, parent, cont, true); err != nil {
				c.mu.Unlock()
				return -1, err
			}
		}
		c.mu.Unlock()
		c.logger.Debug("joined equivalent live process", "pid", pid, "procedure", name)
		return pid, nil
	}

	proc, ok := c.procedures[name]
	if !ok {
		c.mu.Unlock()
		return -1, NewUnknownProcedureError(name)
	}

	pid := c.lowestFreePIDLocked(c.pidCounter)
	c.pidCounter = pid

	var flow string
	if parent != nil {
		flow = parent.flow
	} else {
		flow = c.flowGen.Generate()
	}

	p := newProcess(c, context.WithoutCancel(ctx), pid, name, identity, flow, proc)
	if err := p.initialize(args); err != nil {
		c.mu.Unlock()
		return -1, fmt.Errorf("start %q: %w", name, err)
	}

	c.processes[pid] = p
	c.identities[identity] = pid
	if err := c.savePIDsLocked(ctx); err != nil {
		c.discardLocked(p)
		c.mu.Unlock()
		return -1, fmt.Errorf("start %q: %w", name, err)
	}

	if parent != nil {
		if err := c.linkWaiterLocked(pid, parent, cont, true); err != nil {
			c.discardLocked(p)
			if serr := c.savePIDsLocked(ctx); serr != nil {
				c.logger.Error("could not persist pid set", "error", serr)
			}
			c.mu.Unlock()
			return -1, err
		}
	}
	c.mu.Unlock()

	c.logger.Info("process started",
		"pid", pid,
		"procedure", name,
		"flow", flow,
		"parent", parentPID(parent),
		"foreground", foreground,
	)

	run := func() { p.start(args) }
	if foreground {
		run()
	} else if err := c.exec.Submit(run); err != nil {
		// The start step is already persisted; the next Start runs it.
		c.logger.Error("could not submit process; left for next start",
			"pid", pid,
			"error", err,
		)
	}
	return pid, nil
}

// done completes p: waiting parents continue with result, p is removed from
// the live set and its namespace cleared, then listeners are told.
// A process that is no longer live is ignored.
func (c *Choreographer) done(p *Process, result value.Value) {
	waiters, ok := c.beginFinish(p)
	if !ok {
		return
	}

	for _, w := range waiters {
		w.parent.childProcessCompleted(w.cont, result)
	}

	c.endFinish(p)
	c.logger.Info("process completed", "pid", p.pid, "procedure", p.name, "flow", p.flow)

	c.lmu.RLock()
	listeners := slices.Clone(c.listeners[p.name])
	c.lmu.RUnlock()

	for _, l := range listeners {
		c.notify(p, func() { l.ProcedureCompleted(p.name, p.pid, result) })
	}
}

// fail is done for a failed process: waiting parents fail with a
// CHILD_FAILED error wrapping err.
func (c *Choreographer) fail(p *Process, err error) {
	waiters, ok := c.beginFinish(p)
	if !ok {
		return
	}

	c.logger.Error("process failed",
		"pid", p.pid,
		"procedure", p.name,
		"flow", p.flow,
		"error", err,
	)

	for _, w := range waiters {
		w.parent.childFailed(NewChildFailedError(p.pid, p.name, err))
	}

	c.endFinish(p)

	c.lmu.RLock()
	listeners := slices.Clone(c.failureListeners[p.name])
	c.lmu.RUnlock()

	for _, l := range listeners {
		c.notify(p, func() { l.ProcedureFailed(p.name, p.pid, err) })
	}
}

// beginFinish detaches p from the identity index, so no new caller can join
// it, and takes its waiting parents. p keeps its pid until endFinish.
func (c *Choreographer) beginFinish(p *Process) ([]waiter, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cur, ok := c.processes[p.pid]; !ok || cur != p || p.finishing {
		return nil, false
	}
	p.finishing = true

	if c.identities[p.identity] == p.pid {
		delete(c.identities, p.identity)
	}
	waiters := c.waiting[p.pid]
	delete(c.waiting, p.pid)
	return waiters, true
}

// endFinish clears p's namespace while its pid is still reserved, then frees
// the pid and persists the live set.
func (c *Choreographer) endFinish(p *Process) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := p.ns.Clear(p.ctx); err != nil {
		c.logger.Error("could not clear process namespace", "pid", p.pid, "error", err)
	}

	delete(c.processes, p.pid)
	// A parent that finished elsewhere may still be linked to another child.
	for child, ws := range c.waiting {
		c.waiting[child] = slices.DeleteFunc(ws, func(w waiter) bool { return w.parent == p })
		if len(c.waiting[child]) == 0 {
			delete(c.waiting, child)
		}
	}
	if p.pid < c.pidCounter {
		c.pidCounter = p.pid
	}

	if err := c.savePIDsLocked(p.ctx); err != nil {
		c.logger.Error("could not persist pid set", "error", err)
	}
}

// notify runs a listener callback, containing panics.
func (c *Choreographer) notify(p *Process, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("listener panicked",
				"pid", p.pid,
				"procedure", p.name,
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()
	fn()
}

// linkWaiterLocked registers parent as waiting on child. With persist, the
// parent's wait record is written first.
func (c *Choreographer) linkWaiterLocked(child int, parent *Process, cont string, persist bool) error {
	if persist {
		if err := parent.persistWait(child, cont); err != nil {
			return err
		}
	}
	c.waiting[child] = append(c.waiting[child], waiter{parent: parent, cont: cont})
	return nil
}

// awaitsLocked reports whether the process pid is, directly or through its
// own waiting parents, waiting on target. A process awaits itself.
func (c *Choreographer) awaitsLocked(pid, target int) bool {
	seen := map[int]bool{}
	queue := []int{target}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == pid {
			return true
		}
		if seen[cur] {
			continue
		}
		seen[cur] = true
		for _, w := range c.waiting[cur] {
			queue = append(queue, w.parent.pid)
		}
	}
	return false
}

// unlinkWaiter removes parent from the waiters on child.
func (c *Choreographer) unlinkWaiter(child int, parent *Process) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.waiting[child] = slices.DeleteFunc(c.waiting[child], func(w waiter) bool { return w.parent == parent })
	if len(c.waiting[child]) == 0 {
		delete(c.waiting, child)
	}
}

// discardLocked undoes the registration of a process that never ran.
func (c *Choreographer) discardLocked(p *Process) {
	delete(c.processes, p.pid)
	if c.identities[p.identity] == p.pid {
		delete(c.identities, p.identity)
	}
	if err := p.ns.Clear(p.ctx); err != nil {
		c.logger.Error("could not clear process namespace", "pid", p.pid, "error", err)
	}
	if p.pid < c.pidCounter {
		c.pidCounter = p.pid
	}
}

// lowestFreePIDLocked searches upward from 'from' for a pid with no live process.
func (c *Choreographer) lowestFreePIDLocked(from int) int {
	pid := from
	for {
		_, live := c.processes[pid]
		_, reserved := c.unrecoverable[pid]
		if !live && !reserved {
			return pid
		}
		pid++
	}
}

// savePIDsLocked persists the current live pid set.
func (c *Choreographer) savePIDsLocked(ctx context.Context) error {
	pids := slices.Collect(maps.Keys(c.processes))
	for pid := range c.unrecoverable {
		pids = append(pids, pid)
	}
	return savePIDs(ctx, c.global, pids)
}

// restoreProcess rebuilds a process from the store alone.
func (c *Choreographer) restoreProcess(ctx context.Context, pid int) (*Process, error) {
	rec, err := readProcess(ctx, c.store, pid)
	if err != nil {
		return nil, err
	}

	proc, ok := c.procedures[rec.name]
	if !ok {
		return nil, NewUnknownProcedureError(rec.name)
	}

	p := newProcess(c, ctx, pid, rec.name, rec.identity, rec.flow, proc)
	if rec.step != nil {
		p.step = rec.step.Step
		p.args = rec.step.Args
		p.hasStep = true
	}
	p.wait = rec.wait
	return p, nil
}

// Processes returns a snapshot of the live processes, ordered by pid.
func (c *Choreographer) Processes() []ProcessInfo {
	c.mu.Lock()
	procs := make([]*Process, 0, len(c.processes))
	for _, p := range c.processes {
		procs = append(procs, p)
	}
	c.mu.Unlock()

	infos := make([]ProcessInfo, 0, len(procs))
	for _, p := range procs {
		infos = append(infos, p.Info())
	}
	slices.SortFunc(infos, func(a, b ProcessInfo) int { return a.PID - b.PID })
	return infos
}

// Unrecoverable returns the pids skipped by Start, with the reason.
func (c *Choreographer) Unrecoverable() map[int]error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return maps.Clone(c.unrecoverable)
}

func parentPID(p *Process) int {
	if p == nil {
		return -1
	}
	return p.pid
}

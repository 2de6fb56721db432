package choreo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/choreo/internal/kv"
	"github.com/roach88/choreo/internal/value"
)

// errTerminated is returned internally when a completed or failed process
// is asked to advance.
var errTerminated = errors.New("process already terminated")

// Process is one durable execution of a procedure. Procedure code receives
// it in Step and drives it with Step, Call, Done and Fail.
//
// State machine:
//
//	Created -> Running(step) -> Running(step') | Waiting(child, cont) | Completed | Failed
//	Waiting(child, cont) -> Running(cont)    only when the child completes
//	Waiting(child, cont) -> Failed           when the child fails
type Process struct {
	c         *Choreographer
	pid       int
	name      string
	identity  string
	flow      string
	procedure Procedure
	ns        kv.Namespace
	ctx       context.Context
	logger    *slog.Logger

	// finishing is guarded by c.mu.
	finishing bool

	mu         sync.Mutex
	step       string
	args       value.List
	hasStep    bool
	wait       *waitRecord
	terminated bool
}

func newProcess(c *Choreographer, ctx context.Context, pid int, name, identity, flow string, proc Procedure) *Process {
	return &Process{
		c:         c,
		pid:       pid,
		name:      name,
		identity:  identity,
		flow:      flow,
		procedure: proc,
		ns:        kv.NewNamespace(c.store, ProcessNamespace(pid)),
		ctx:       ctx,
		logger:    c.logger.With("pid", pid, "procedure", name, "flow", flow),
	}
}

// PID returns the process id.
func (p *Process) PID() int { return p.pid }

// ProcedureName returns the name of the procedure the process runs.
func (p *Process) ProcedureName() string { return p.name }

// Identity returns the procedure identity used for deduplication.
func (p *Process) Identity() string { return p.identity }

// Flow returns the flow token shared with the process's parents and children.
func (p *Process) Flow() string { return p.flow }

// Context returns the context steps should use for their own I/O.
// It is never cancelled by the engine.
func (p *Process) Context() context.Context { return p.ctx }

// Logger returns a logger tagged with the process's pid, procedure and flow.
func (p *Process) Logger() *slog.Logger { return p.logger }

// Locals returns the process's scratch storage.
func (p *Process) Locals() Locals { return Locals{ns: p.ns, ctx: p.ctx} }

// CurrentStep returns the most recently entered step and its arguments.
func (p *Process) CurrentStep() (string, []value.Value) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.step, p.args
}

// IsWaiting reports whether the process is waiting on a sub-procedure.
func (p *Process) IsWaiting() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.wait != nil
}

func (p *Process) isTerminated() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.terminated
}

func (p *Process) currentWait() waitRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.wait == nil {
		return waitRecord{PID: -1}
	}
	return *p.wait
}

// Info returns a snapshot of the process's state.
func (p *Process) Info() ProcessInfo {
	p.mu.Lock()
	defer p.mu.Unlock()

	info := ProcessInfo{
		PID:       p.pid,
		Procedure: p.name,
		Flow:      p.flow,
		Step:      p.step,
		Args:      p.args,
	}
	if p.wait != nil {
		child := p.wait.PID
		info.WaitingOn = &child
		info.Continuation = p.wait.Cont
	}
	return info
}

// initialize writes the durable record of a new process, replacing anything
// left in its namespace. Called with c.mu held.
func (p *Process) initialize(args []value.Value) error {
	if err := p.ns.Clear(p.ctx); err != nil {
		return fmt.Errorf("clear namespace: %w", err)
	}
	if err := p.ns.SetString(p.ctx, keyName, p.name); err != nil {
		return fmt.Errorf("write %s: %w", keyName, err)
	}
	if err := p.ns.SetString(p.ctx, keyIdentity, p.identity); err != nil {
		return fmt.Errorf("write %s: %w", keyIdentity, err)
	}
	if err := p.ns.SetString(p.ctx, keyFlow, p.flow); err != nil {
		return fmt.Errorf("write %s: %w", keyFlow, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writeStepLocked("start", value.Args(args...))
}

// writeStepLocked persists the step record, then updates memory.
func (p *Process) writeStepLocked(step string, args value.List) error {
	if args == nil {
		args = value.List{}
	}
	if err := p.ns.SetJSON(p.ctx, keyStep, stepRecord{Step: step, Args: args}); err != nil {
		return fmt.Errorf("write %s: %w", keyStep, err)
	}
	p.step, p.args, p.hasStep = step, args, true
	return nil
}

// start runs the "start" step, whose record initialize already wrote.
func (p *Process) start(args []value.Value) {
	p.run("start", value.Args(args...))
}

// Step advances the process to step. The step record is durable before the
// procedure runs, so a crash replays step rather than skipping it.
func (p *Process) Step(step string, args ...value.Value) {
	list := value.Args(args...)

	p.mu.Lock()
	if p.terminated {
		p.mu.Unlock()
		p.logger.Warn("ignoring step on terminated process", "step", step)
		return
	}
	err := p.writeStepLocked(step, list)
	p.mu.Unlock()

	if err != nil {
		p.Fail(NewStepError(p.pid, p.name, step, err))
		return
	}
	p.run(step, list)
}

// run invokes the procedure for an already persisted step.
func (p *Process) run(step string, args value.List) {
	_, span := p.c.tracer.Start(p.ctx, "choreo.step",
		trace.WithAttributes(
			attribute.Int("choreo.pid", p.pid),
			attribute.String("choreo.procedure", p.name),
			attribute.String("choreo.step", step),
			attribute.String("choreo.flow", p.flow),
		),
	)
	defer span.End()

	p.logger.Debug("entering step", "step", step, "args", value.Format(args))

	if err := p.invoke(step, args); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.Fail(NewStepError(p.pid, p.name, step, err))
	}
}

// invoke is the single point procedure code is called from.
func (p *Process) invoke(step string, args value.List) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("step panicked",
				"step", step,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return p.procedure.Step(p, step, args)
}

// Call starts the named sub-procedure, or joins an equivalent live one, and
// parks this process until it finishes. On completion the process continues
// at cont with the child's result as its only argument. If the child fails,
// this process fails with a CHILD_FAILED error. A call that would join a
// process already waiting on this one fails it with CALL_CYCLE.
//
// The step calling Call should return without advancing the process further.
func (p *Process) Call(procedure, cont string, args ...value.Value) {
	if p.isTerminated() {
		p.logger.Warn("ignoring call on terminated process", "callee", procedure)
		return
	}
	child, err := p.c.start(p.ctx, procedure, args, p, cont, false)
	if err != nil {
		p.Fail(err)
		return
	}
	p.logger.Debug("waiting on sub-procedure", "child", child, "callee", procedure, "cont", cont)
}

// persistWait records that the process waits on child. Called with c.mu held.
func (p *Process) persistWait(child int, cont string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.terminated {
		return errTerminated
	}
	if p.wait != nil {
		return fmt.Errorf("process %d already waiting on %d", p.pid, p.wait.PID)
	}
	w := &waitRecord{PID: child, Cont: cont}
	if err := p.ns.SetJSON(p.ctx, keyWait, w); err != nil {
		return fmt.Errorf("write %s: %w", keyWait, err)
	}
	p.wait = w
	return nil
}

// resumeWait re-links a reconstructed waiting process to its child without
// running procedure code. Called with c.mu held, before any process resumes.
func (p *Process) resumeWait() (int, bool) {
	w := p.currentWait()
	if w.PID < 0 {
		return 0, false
	}
	// Linking without persisting cannot fail.
	_ = p.c.linkWaiterLocked(w.PID, p, w.Cont, false)
	return w.PID, true
}

// childProcessCompleted continues a waiting process at cont with result.
func (p *Process) childProcessCompleted(cont string, result value.Value) {
	args := value.List{result}

	p.mu.Lock()
	if p.terminated {
		p.mu.Unlock()
		return
	}
	// The continuation is durable before the wait is dropped, so a crash in
	// between replays the child rather than losing its result.
	err := p.writeStepLocked(cont, args)
	if err == nil {
		// A stale wait record would re-link this process to whatever later
		// reuses the child's pid.
		if derr := p.ns.Delete(p.ctx, keyWait); derr != nil {
			err = fmt.Errorf("clear %s: %w", keyWait, derr)
		}
		p.wait = nil
	}
	p.mu.Unlock()

	if err != nil {
		p.Fail(NewStepError(p.pid, p.name, cont, err))
		return
	}
	p.run(cont, args)
}

// childFailed fails a waiting process with err.
func (p *Process) childFailed(err error) {
	p.mu.Lock()
	if p.terminated {
		p.mu.Unlock()
		return
	}
	if derr := p.ns.Delete(p.ctx, keyWait); derr != nil {
		p.logger.Error("could not clear wait record", "error", derr)
	}
	p.wait = nil
	p.mu.Unlock()

	p.Fail(err)
}

// resume replays a reconstructed process. A waiting process does nothing:
// its child's completion continues it.
func (p *Process) resume() {
	p.mu.Lock()
	waiting := p.wait != nil
	step, args, hasStep := p.step, p.args, p.hasStep
	terminated := p.terminated
	p.mu.Unlock()

	switch {
	case terminated, waiting:
		return
	case hasStep:
		p.run(step, args)
	default:
		p.Done(value.Null{})
	}
}

// Done completes the process with result. Waiting parents continue with it,
// then the process is removed and completion listeners are told.
// A nil result is Null.
func (p *Process) Done(result value.Value) {
	if !p.terminate() {
		return
	}
	if result == nil {
		result = value.Null{}
	}
	p.c.done(p, result)
}

// Fail terminates the process with err. Waiting parents fail with a
// CHILD_FAILED error wrapping err, then failure listeners are told.
func (p *Process) Fail(err error) {
	if !p.terminate() {
		return
	}
	if err == nil {
		err = errors.New("process failed")
	}
	p.c.fail(p, err)
}

// Failf is Fail with a formatted message.
func (p *Process) Failf(format string, args ...any) {
	p.Fail(fmt.Errorf(format, args...))
}

// terminate marks the process terminal. It reports false if it already was.
func (p *Process) terminate() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.terminated {
		return false
	}
	p.terminated = true
	return true
}

// Package procedures holds the built-in procedures the choreo binary
// registers: small, durable, replay-safe examples of each engine feature.
package procedures

import (
	"errors"
	"fmt"

	"github.com/roach88/choreo/internal/choreo"
	"github.com/roach88/choreo/internal/kv"
	"github.com/roach88/choreo/internal/value"
)

// Procedure names.
const (
	GreetName     = "greet"
	CountdownName = "countdown"
	DoubleName    = "double"
	SumName       = "sum"
)

// All returns every built-in procedure keyed by name.
func All() map[string]choreo.Procedure {
	return map[string]choreo.Procedure{
		GreetName:     choreo.ProcedureFunc(Greet),
		CountdownName: choreo.ProcedureFunc(Countdown),
		DoubleName:    choreo.ProcedureFunc(Double),
		SumName:       choreo.ProcedureFunc(Sum),
	}
}

// Register adds every built-in procedure to c.
func Register(c *choreo.Choreographer) error {
	for name, p := range All() {
		if err := c.Register(name, p); err != nil {
			return err
		}
	}
	return nil
}

// Greet completes with "Hi <name>".
//
//	start(name) -> done("Hi " + name)
func Greet(p *choreo.Process, step string, args []value.Value) error {
	name, err := value.StringAt(args, 0)
	if err != nil {
		return err
	}
	p.Done(value.String("Hi " + name))
	return nil
}

// Countdown ticks from n down to zero, one step per tick, and completes with
// the number of ticks taken. The tick count lives in the process locals, so
// a replayed tick is counted again: the result is at least n+1.
//
//	start(n) -> tick(n) -> tick(n-1) -> ... -> tick(0) -> done(ticks)
func Countdown(p *choreo.Process, step string, args []value.Value) error {
	n, err := value.IntAt(args, 0)
	if err != nil {
		return err
	}
	if n < 0 {
		return fmt.Errorf("countdown from %d: must not be negative", n)
	}

	switch step {
	case "start":
		if err := p.Locals().Set("ticks", value.Int(0)); err != nil {
			return err
		}
		p.Step("tick", value.Int(n))
	case "tick":
		ticks, err := localInt(p, "ticks")
		if err != nil {
			return err
		}
		ticks++
		if err := p.Locals().Set("ticks", value.Int(ticks)); err != nil {
			return err
		}
		if n == 0 {
			p.Done(value.Int(ticks))
			return nil
		}
		p.Step("tick", value.Int(n-1))
	default:
		return fmt.Errorf("countdown: unknown step %q", step)
	}
	return nil
}

// Double completes with twice its integer argument.
func Double(p *choreo.Process, step string, args []value.Value) error {
	n, err := value.IntAt(args, 0)
	if err != nil {
		return err
	}
	p.Done(value.Int(2 * n))
	return nil
}

// Sum doubles each of its integer arguments through the double sub-procedure
// and completes with the total.
//
//	start(a, b, ...) -> next(0, 0) -> call double(a) -> added(2a) -> next(1, 2a) -> ... -> done(total)
func Sum(p *choreo.Process, step string, args []value.Value) error {
	switch step {
	case "start":
		for i := range args {
			if _, err := value.IntAt(args, i); err != nil {
				return fmt.Errorf("sum: %w", err)
			}
		}
		if err := p.Locals().Set("terms", value.Args(args...)); err != nil {
			return err
		}
		p.Step("next", value.Int(0), value.Int(0))

	case "next":
		i, err := value.IntAt(args, 0)
		if err != nil {
			return err
		}
		total, err := value.IntAt(args, 1)
		if err != nil {
			return err
		}
		terms, err := localList(p, "terms")
		if err != nil {
			return err
		}
		if int(i) >= len(terms) {
			p.Done(value.Int(total))
			return nil
		}
		if err := p.Locals().Set("cursor", value.Args(value.Int(i), value.Int(total))); err != nil {
			return err
		}
		p.Call(DoubleName, "added", terms[i])

	case "added":
		doubled, err := value.IntAt(args, 0)
		if err != nil {
			return err
		}
		cursor, err := localList(p, "cursor")
		if err != nil {
			return err
		}
		i, err := value.IntAt(cursor, 0)
		if err != nil {
			return err
		}
		total, err := value.IntAt(cursor, 1)
		if err != nil {
			return err
		}
		p.Step("next", value.Int(i+1), value.Int(total+doubled))

	default:
		return fmt.Errorf("sum: unknown step %q", step)
	}
	return nil
}

func localInt(p *choreo.Process, key string) (int64, error) {
	v, err := p.Locals().Get(key)
	if errors.Is(err, kv.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n, ok := v.(value.Int)
	if !ok {
		return 0, fmt.Errorf("local %q: expected int, got %T", key, v)
	}
	return int64(n), nil
}

func localList(p *choreo.Process, key string) (value.List, error) {
	v, err := p.Locals().Get(key)
	if err != nil {
		return nil, fmt.Errorf("local %q: %w", key, err)
	}
	l, ok := v.(value.List)
	if !ok {
		return nil, fmt.Errorf("local %q: expected list, got %T", key, v)
	}
	return l, nil
}

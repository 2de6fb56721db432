package choreo

import (
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/choreo/internal/executor"
)

// tracerName is the instrumentation scope for step spans.
const tracerName = "github.com/roach88/choreo/internal/choreo"

// Option configures a Choreographer.
type Option func(*Choreographer)

// WithExecutor sets the executor background work is submitted to.
// Default: executor.NewGo().
func WithExecutor(e executor.Executor) Option {
	return func(c *Choreographer) {
		c.exec = e
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Choreographer) {
		c.logger = l
	}
}

// WithTracerProvider sets the provider step spans are created from.
// Default: the global otel provider, which is a no-op unless configured.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Choreographer) {
		c.tracer = tp.Tracer(tracerName)
	}
}

// WithFlowGenerator sets the flow token generator. Default: UUIDv7Generator.
func WithFlowGenerator(g FlowTokenGenerator) Option {
	return func(c *Choreographer) {
		c.flowGen = g
	}
}

// WithProcedures registers procedures at construction time.
func WithProcedures(procs map[string]Procedure) Option {
	return func(c *Choreographer) {
		for name, p := range procs {
			c.procedures[name] = p
		}
	}
}

func defaultTracer() trace.Tracer {
	return otel.GetTracerProvider().Tracer(tracerName)
}

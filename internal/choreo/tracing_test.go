package choreo_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/roach88/choreo/internal/choreo"
	"github.com/roach88/choreo/internal/kv/memkv"
	"github.com/roach88/choreo/internal/testutil"
	"github.com/roach88/choreo/internal/value"
)

func TestTracing_OneSpanPerStep(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	c := newChoreographer(memkv.New(), inline(),
		choreo.WithTracerProvider(tp),
		choreo.WithFlowGenerator(testutil.NewFixedFlowGenerator("flow-1")),
	)
	require.NoError(t, c.RegisterFunc("twostep", func(p *choreo.Process, step string, args []value.Value) error {
		if step == "start" {
			p.Step("finish", value.Int(1))
			return nil
		}
		p.Done(args[0])
		return nil
	}))
	require.NoError(t, c.RegisterFunc("broken", func(p *choreo.Process, step string, args []value.Value) error {
		return errors.New("boom")
	}))
	start(t, c)

	_, err := c.RunProcedure(context.Background(), "twostep")
	require.NoError(t, err)

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)
	// The nested step ends first.
	assert.Equal(t, "choreo.step", spans[0].Name)
	assert.Contains(t, spans[0].Attributes, attribute.String("choreo.step", "finish"))
	assert.Contains(t, spans[1].Attributes, attribute.String("choreo.step", "start"))
	for _, span := range spans {
		assert.Contains(t, span.Attributes, attribute.String("choreo.procedure", "twostep"))
		assert.Contains(t, span.Attributes, attribute.String("choreo.flow", "flow-1"))
		assert.Contains(t, span.Attributes, attribute.Int("choreo.pid", 0))
		assert.NotEqual(t, codes.Error, span.Status.Code)
	}

	exporter.Reset()
	_, err = c.RunProcedure(context.Background(), "broken")
	require.NoError(t, err)

	spans = exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assert.NotEmpty(t, spans[0].Events, "error recorded on the span")
}

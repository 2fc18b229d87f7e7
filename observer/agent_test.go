package observer

import (
	"context"
	"testing"

	"github.com/PolySpade/masfro"

	nooplog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/noop"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	noopmetric "go.opentelemetry.io/otel/metric/noop"
)

type stubAgent struct {
	id      string
	stepped bool
}

func (s *stubAgent) ID() string { return s.id }
func (s *stubAgent) Step(ctx context.Context) { s.stepped = true }

func noopInstruments(t *testing.T) *Instruments {
	t.Helper()
	meter := noopmetric.NewMeterProvider().Meter("test")
	ticks, _ := meter.Int64Counter("ticks")
	skips, _ := meter.Int64Counter("skips")
	dur, _ := meter.Float64Histogram("dur")
	var logger nooplog.Logger = noop.NewLoggerProvider().Logger("test")
	return &Instruments{
		Tracer:        nooptrace.NewTracerProvider().Tracer("test"),
		Meter:         meter,
		Logger:        logger,
		AgentTicks:    ticks,
		AgentSkips:    skips,
		AgentDuration: dur,
	}
}

func TestObservedAgentDelegatesStep(t *testing.T) {
	inner := &stubAgent{id: "scout-1"}
	wrapped := WrapAgent(inner, noopInstruments(t))

	if wrapped.ID() != "scout-1" {
		t.Fatalf("expected ID to pass through, got %s", wrapped.ID())
	}
	wrapped.Step(context.Background())
	if !inner.stepped {
		t.Fatal("expected inner agent Step to run")
	}
}

var _ masfro.Agent = (*stubAgent)(nil)

package observer

import (
	"context"
	"time"

	"github.com/PolySpade/masfro"

	"go.opentelemetry.io/otel/codes"
	masfrolog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ObservedAgent wraps a masfro.Agent to emit a tick span, duration
// histogram, and tick counter on every Step call.
type ObservedAgent struct {
	inner masfro.Agent
	inst  *Instruments
}

// WrapAgent returns an instrumented Agent for registration with a Scheduler.
func WrapAgent(inner masfro.Agent, inst *Instruments) *ObservedAgent {
	return &ObservedAgent{inner: inner, inst: inst}
}

func (o *ObservedAgent) ID() string { return o.inner.ID() }

func (o *ObservedAgent) Step(ctx context.Context) {
	ctx, span := o.inst.Tracer.Start(ctx, "agent.tick", trace.WithAttributes(
		AttrAgentID.String(o.inner.ID()),
	))
	defer span.End()
	start := time.Now()

	o.inner.Step(ctx)

	durationMs := float64(time.Since(start).Milliseconds())
	status := "ok"
	if err := ctx.Err(); err != nil {
		status = "cancelled"
		span.SetStatus(codes.Error, err.Error())
	}

	span.SetAttributes(AttrAgentStatus.String(status))

	attrs := metric.WithAttributes(AttrAgentID.String(o.inner.ID()), AttrAgentStatus.String(status))
	o.inst.AgentTicks.Add(ctx, 1, attrs)
	o.inst.AgentDuration.Record(ctx, durationMs, metric.WithAttributes(AttrAgentID.String(o.inner.ID())))

	var rec masfrolog.Record
	rec.SetSeverity(masfrolog.SeverityDebug)
	rec.SetBody(masfrolog.StringValue("agent tick completed"))
	rec.AddAttributes(
		masfrolog.String("agent.id", o.inner.ID()),
		masfrolog.String("agent.status", status),
		masfrolog.Float64("duration_ms", durationMs),
	)
	o.inst.Logger.Emit(ctx, rec)
}

var _ masfro.Agent = (*ObservedAgent)(nil)

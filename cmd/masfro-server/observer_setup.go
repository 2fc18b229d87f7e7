package main

import (
	"context"

	"github.com/PolySpade/masfro/internal/config"
	"github.com/PolySpade/masfro/observer"

	nooplog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/noop"
	noopmetric "go.opentelemetry.io/otel/metric/noop"
	nooptrace "go.opentelemetry.io/otel/trace/noop"
)

// buildInstruments returns a real OTLP-backed Instruments when observer
// is enabled in config, or an Instruments wired to no-op OTEL providers
// otherwise. ObservedAgent always requires a non-nil Instruments, so
// "disabled" still needs a valid (inert) one rather than a nil check at
// every call site.
func buildInstruments(ctx context.Context, cfg config.Config) (*observer.Instruments, func(context.Context) error, error) {
	if cfg.Observer.Enabled {
		return observer.Init(ctx, observer.DefaultPricing)
	}
	return noopInstruments(), func(context.Context) error { return nil }, nil
}

func noopInstruments() *observer.Instruments {
	meter := noopmetric.NewMeterProvider().Meter("masfro")
	ticks, _ := meter.Int64Counter("masfro.agent.ticks")
	skips, _ := meter.Int64Counter("masfro.agent.skips")
	dur, _ := meter.Float64Histogram("masfro.agent.duration")
	var logger nooplog.Logger = noop.NewLoggerProvider().Logger("masfro")

	return &observer.Instruments{
		Tracer:        nooptrace.NewTracerProvider().Tracer("masfro"),
		Meter:         meter,
		Logger:        logger,
		AgentTicks:    ticks,
		AgentSkips:    skips,
		AgentDuration: dur,
		Cost:          observer.NewCostCalculator(nil),
	}
}

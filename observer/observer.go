// Package observer provides OTEL-based observability for MAS-FRO's agents,
// mission pipeline, and routing engine.
//
// It wraps agent ticks with instrumented spans/metrics/logs and exposes
// domain counters (missions, fusion cycles, A* searches, LLM calls) via
// OpenTelemetry. Export target is configured with the standard OTEL env
// vars read by the OTLP HTTP exporters; the MASFRO_OTLP_ENDPOINT value
// that internal/config loads is not passed to them.
package observer

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	masfrolog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const scopeName = "github.com/PolySpade/masfro/observer"

// Instruments holds all OTEL instruments used across MAS-FRO's agents.
type Instruments struct {
	Tracer trace.Tracer
	Meter  metric.Meter
	Logger masfrolog.Logger

	// Scheduler / agent ticks
	AgentTicks    metric.Int64Counter
	AgentSkips    metric.Int64Counter
	AgentDuration metric.Float64Histogram

	// Mission lifecycle
	MissionsCreated   metric.Int64Counter
	MissionsCompleted metric.Int64Counter
	MissionDuration   metric.Float64Histogram

	// Hazard fusion
	FusionCycles  metric.Int64Counter
	EdgesUpdated  metric.Int64Counter
	FusionDuration metric.Float64Histogram

	// Routing
	RouteRequests metric.Int64Counter
	RouteDuration metric.Float64Histogram

	// LLM facade
	LLMRequests metric.Int64Counter
	LLMDuration metric.Float64Histogram
	CostTotal   metric.Float64Counter

	Cost *CostCalculator
}

// Init sets up OTEL trace, metric, and log providers with OTLP HTTP exporters.
// Returns a shutdown function that must be called on application exit.
func Init(ctx context.Context, pricing map[string]ModelPricing) (*Instruments, func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName("masfro")),
		resource.WithFromEnv(),
	)
	if err != nil {
		return nil, nil, err
	}

	traceExp, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	metricExp, err := otlpmetrichttp.New(ctx)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, nil, err
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	logExp, err := otlploghttp.New(ctx)
	if err != nil {
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)
		return nil, nil, err
	}
	lp := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logExp)),
		sdklog.WithResource(res),
	)
	global.SetLoggerProvider(lp)

	inst, err := newInstruments(pricing)
	if err != nil {
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)
		_ = lp.Shutdown(ctx)
		return nil, nil, err
	}

	shutdown := func(ctx context.Context) error {
		return errors.Join(
			tp.Shutdown(ctx),
			mp.Shutdown(ctx),
			lp.Shutdown(ctx),
		)
	}

	return inst, shutdown, nil
}

func newInstruments(pricing map[string]ModelPricing) (*Instruments, error) {
	tracer := otel.Tracer(scopeName)
	meter := otel.Meter(scopeName)
	logger := global.GetLoggerProvider().Logger(scopeName)

	agentTicks, err := meter.Int64Counter("masfro.agent.ticks",
		metric.WithDescription("Agent Step invocations"), metric.WithUnit("{tick}"))
	if err != nil {
		return nil, err
	}
	agentSkips, err := meter.Int64Counter("masfro.agent.skips",
		metric.WithDescription("Ticks skipped because the agent was still running"), metric.WithUnit("{tick}"))
	if err != nil {
		return nil, err
	}
	agentDuration, err := meter.Float64Histogram("masfro.agent.duration",
		metric.WithDescription("Agent Step duration"), metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	missionsCreated, err := meter.Int64Counter("masfro.mission.created",
		metric.WithDescription("Missions created"), metric.WithUnit("{mission}"))
	if err != nil {
		return nil, err
	}
	missionsCompleted, err := meter.Int64Counter("masfro.mission.completed",
		metric.WithDescription("Missions reaching a terminal state"), metric.WithUnit("{mission}"))
	if err != nil {
		return nil, err
	}
	missionDuration, err := meter.Float64Histogram("masfro.mission.duration",
		metric.WithDescription("Mission wall-clock duration from creation to terminal state"), metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	fusionCycles, err := meter.Int64Counter("masfro.fusion.cycles",
		metric.WithDescription("Hazard fusion cycles run"), metric.WithUnit("{cycle}"))
	if err != nil {
		return nil, err
	}
	edgesUpdated, err := meter.Int64Counter("masfro.fusion.edges_updated",
		metric.WithDescription("Graph edges whose risk was updated by fusion"), metric.WithUnit("{edge}"))
	if err != nil {
		return nil, err
	}
	fusionDuration, err := meter.Float64Histogram("masfro.fusion.duration",
		metric.WithDescription("Hazard fusion cycle duration"), metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	routeRequests, err := meter.Int64Counter("masfro.route.requests",
		metric.WithDescription("A* route calculations performed"), metric.WithUnit("{request}"))
	if err != nil {
		return nil, err
	}
	routeDuration, err := meter.Float64Histogram("masfro.route.duration",
		metric.WithDescription("A* route calculation duration"), metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	llmRequests, err := meter.Int64Counter("masfro.llm.requests",
		metric.WithDescription("LLM facade calls"), metric.WithUnit("{request}"))
	if err != nil {
		return nil, err
	}
	llmDuration, err := meter.Float64Histogram("masfro.llm.duration",
		metric.WithDescription("LLM facade call duration"), metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}
	costTotal, err := meter.Float64Counter("masfro.llm.cost_total",
		metric.WithDescription("Cumulative LLM cost in USD"), metric.WithUnit("USD"))
	if err != nil {
		return nil, err
	}

	return &Instruments{
		Tracer:            tracer,
		Meter:             meter,
		Logger:            logger,
		AgentTicks:        agentTicks,
		AgentSkips:        agentSkips,
		AgentDuration:     agentDuration,
		MissionsCreated:   missionsCreated,
		MissionsCompleted: missionsCompleted,
		MissionDuration:   missionDuration,
		FusionCycles:      fusionCycles,
		EdgesUpdated:      edgesUpdated,
		FusionDuration:    fusionDuration,
		RouteRequests:     routeRequests,
		RouteDuration:     routeDuration,
		LLMRequests:       llmRequests,
		LLMDuration:       llmDuration,
		CostTotal:         costTotal,
		Cost:              NewCostCalculator(pricing),
	}, nil
}

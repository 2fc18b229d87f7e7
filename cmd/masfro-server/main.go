// Command masfro-server wires and runs the MAS-FRO coordination system:
// scheduler, bus, road graph, domain agents, and the HTTP gateway
// described in spec.md §6.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	masfro "github.com/PolySpade/masfro"
	"github.com/PolySpade/masfro/agents"
	"github.com/PolySpade/masfro/internal/config"
	"github.com/PolySpade/masfro/llm"
	"github.com/PolySpade/masfro/observer"
	"github.com/PolySpade/masfro/sources"
	"github.com/PolySpade/masfro/store"
	"github.com/PolySpade/masfro/store/libsql"
	"github.com/PolySpade/masfro/store/postgres"
	"github.com/PolySpade/masfro/store/sqlite"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	idCollector    = "collector"
	idScout        = "scout"
	idHazard       = "hazard"
	idRouting      = "routing"
	idEvac         = "evac"
	idOrchestrator = "orchestrator"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	cfg, err := config.Load(os.Getenv("MASFRO_CONFIG"))
	if err != nil {
		log.Fatalf("masfro: config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	inst, shutdownObserver, err := buildInstruments(ctx, cfg)
	if err != nil {
		log.Fatalf("masfro: observer: %v", err)
	}
	defer shutdownObserver(context.Background())

	db, err := buildStore(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("masfro: store: %v", err)
	}
	if db != nil {
		defer db.Close()
	}

	graph := masfro.NewRoadGraph(cfg.SnapshotPath, time.Duration(cfg.SnapshotMinPeriodSec*float64(time.Second)))
	if err := graph.LoadFromJSON(cfg.GraphPath); err != nil {
		log.Fatalf("masfro: graph: %v", err)
	}
	if err := graph.RecoverSnapshot(); err != nil {
		logger.Warn("risk snapshot recovery failed, starting with zero risk", "err", err)
	}

	index := masfro.NewSpatialIndex(graph.Nodes(), cfg.MaxNodeDistanceM)
	router := masfro.NewRiskAwareAStar(graph, cfg.CriticalRiskThreshold)
	registry := masfro.NewMissionRegistry(cfg.MaxCompletedHistory)

	bus := masfro.NewMessageBus(func(format string, args ...any) {
		logger.Warn("bus", "msg", fmt.Sprintf(format, args...))
	})

	facade := buildFacade(cfg.LLM)

	centers := agents.LoadEvacuationCenters(cfg.EvacuationCentersCSV, logger)

	collector := agents.NewCollector(
		idCollector, idHazard, bus,
		buildGauges(cfg.Sources), buildDams(cfg.Sources), buildWeather(cfg.Sources), buildAdvisory(cfg.Sources),
		facade, db,
		agents.CollectorConfig{
			Interval:         time.Duration(cfg.FloodUpdateIntervalSec * float64(time.Second)),
			RainfallLight:    cfg.RainfallThresholdsMM.Light,
			RainfallModerate: cfg.RainfallThresholdsMM.Moderate,
			RainfallHeavy:    cfg.RainfallThresholdsMM.Heavy,
			RainfallExtreme:  cfg.RainfallThresholdsMM.Extreme,
			WaterAlertM:      cfg.WaterLevelM.Alert,
			WaterAlarmM:      cfg.WaterLevelM.Alarm,
			WaterCriticalM:   cfg.WaterLevelM.Critical,
			DamAlertM:        cfg.DamM.Alert,
			DamAlarmM:        cfg.DamM.Alarm,
			DamCriticalM:     cfg.DamM.Critical,
		},
		logger,
	)

	scout := agents.NewScout(
		idScout, idHazard, bus,
		buildSocial(cfg.Sources), buildGeocoder(cfg.Sources),
		facade,
		agents.ScoutConfig{
			Interval:               time.Duration(cfg.ScoutTTLMinutes * float64(time.Minute)),
			AllowSimulatedFallback: true,
		},
		logger,
	)

	hazard := agents.NewHazard(
		idHazard, bus, graph, nil,
		agents.HazardConfig{
			ScoutTTL:                           time.Duration(cfg.ScoutTTLMinutes * float64(time.Minute)),
			FloodTTL:                           time.Duration(cfg.FloodTTLMinutes * float64(time.Minute)),
			RiskWeightFloodDepth:               cfg.RiskWeights.FloodDepth,
			RiskWeightCrowdsourced:             cfg.RiskWeights.Crowdsourced,
			SpatialDecayPerMin:                 0.08,
			MinRiskThreshold:                   0.01,
			ScoutDecayFastPerMin:               0.10,
			ScoutDecaySlowPerMin:               0.03,
			RiskRadiusM:                        cfg.RiskRadiusM,
			VisualOverrideRiskThreshold:        cfg.VisualOverride.RiskThreshold,
			VisualOverrideConfidenceThreshold:  cfg.VisualOverride.ConfidenceThreshold,
			CriticalRiskThreshold:              cfg.CriticalRiskThreshold,
		},
		logger,
	)

	routing := agents.NewRouting(
		idRouting, bus, graph, router, index, facade, centers,
		agents.RoutingConfig{
			CentersFilePath:      cfg.EvacuationCentersCSV,
			MaxCandidateCenters:  5,
			BaseSpeedKmh:         30,
			SpeedReductionFactor: 0.5,
		},
		logger,
	)

	evac := agents.NewEvac(idEvac, idRouting, idHazard, bus, facade, agents.EvacConfig{
		MaxDistressItems: 100,
	}, logger)

	orchestrator := agents.NewOrchestrator(
		idOrchestrator, bus, registry, facade,
		idScout, idCollector, idHazard, idRouting, idEvac,
		agents.OrchestratorConfig{
			DefaultTimeout:               time.Duration(cfg.MissionTimeouts.Default) * time.Second,
			AssessRiskTimeout:            time.Duration(cfg.MissionTimeouts.AssessRisk) * time.Second,
			CoordinatedEvacuationTimeout: time.Duration(cfg.MissionTimeouts.CoordinatedEvacuation) * time.Second,
			RouteCalculationTimeout:      time.Duration(cfg.MissionTimeouts.RouteCalculation) * time.Second,
			CascadeRiskUpdateTimeout:     time.Duration(cfg.MissionTimeouts.CascadeRiskUpdate) * time.Second,
			MaxHistoryTurns:              cfg.MaxChatTurns,
			CenterLat:                    (cfg.Coordinates.MinLat + cfg.Coordinates.MaxLat) / 2,
			CenterLon:                    (cfg.Coordinates.MinLon + cfg.Coordinates.MaxLon) / 2,
		},
		logger,
	)

	for _, id := range []string{idCollector, idScout, idHazard, idRouting, idEvac, idOrchestrator} {
		if err := bus.Register(id); err != nil {
			log.Fatalf("masfro: bus: %v", err)
		}
	}

	sched := masfro.NewScheduler(time.Duration(cfg.TickIntervalSeconds*float64(time.Second)), nil)
	sched.Register(observer.WrapAgent(collector, inst), 10)
	sched.Register(observer.WrapAgent(scout, inst), 10)
	sched.Register(observer.WrapAgent(hazard, inst), 20)
	sched.Register(observer.WrapAgent(routing, inst), 30)
	sched.Register(observer.WrapAgent(evac, inst), 30)
	sched.Register(observer.WrapAgent(orchestrator, inst), 40)

	go sched.Run(ctx)

	gw := &gateway{bus: bus, orchestrator: orchestrator, facade: facade, routingID: idRouting, evacID: idEvac, logger: logger}
	srv := &http.Server{Addr: ":8080", Handler: gw.routes()}

	go func() {
		logger.Info("masfro: http gateway listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("masfro: http gateway failed", "err", err)
		}
	}()

	<-ctx.Done()
	logger.Info("masfro: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	sched.Stop()

	if err := graph.SaveSnapshot(); err != nil {
		logger.Warn("masfro: final risk snapshot failed", "err", err)
	}
}

func buildStore(ctx context.Context, cfg config.DatabaseConfig) (store.Store, error) {
	var s store.Store
	switch cfg.Driver {
	case "", "sqlite":
		path := cfg.Path
		if path == "" {
			path = "masfro.db"
		}
		s = sqlite.New(path)
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.DSN)
		if err != nil {
			return nil, masfro.NewDatabaseError("connect postgres", err)
		}
		s = postgres.New(pool)
	case "libsql":
		var err error
		var ls *libsql.Store
		if cfg.TursoURL != "" {
			ls, err = libsql.NewRemote(cfg.TursoURL, cfg.TursoToken)
		} else {
			ls, err = libsql.New(cfg.Path)
		}
		if err != nil {
			return nil, masfro.NewDatabaseError("open libsql", err)
		}
		s = ls
	default:
		return nil, masfro.NewConfigurationError("database.driver")
	}
	if err := s.Init(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func buildFacade(cfg config.LLMConfig) *llm.Facade {
	var primary llm.Provider
	var fallback llm.Provider

	switch cfg.Provider {
	case "", "gemini":
		primary = llm.NewGemini(cfg.APIKey, orDefault(cfg.Model, "gemini-2.5-flash"))
	default:
		primary = llm.NewOpenAICompat(cfg.APIKey, cfg.Model, "")
	}

	healthTTL := time.Duration(cfg.HealthCacheSec * float64(time.Second))
	responseTTL := time.Duration(cfg.ResponseCacheSec * float64(time.Second))
	return llm.NewFacade(primary, fallback, healthTTL, responseTTL, cfg.ResponseCacheMax)
}

func buildGauges(cfg config.SourcesConfig) sources.GaugesSource {
	if cfg.GaugesURL == "" {
		return sources.NewSimulatedGauges(nil)
	}
	return sources.NewHTTPGauges(cfg.GaugesURL, nil)
}

func buildDams(cfg config.SourcesConfig) sources.DamsSource {
	if cfg.DamsURL == "" {
		return sources.NewSimulatedDams(nil)
	}
	return sources.NewHTTPDams(cfg.DamsURL)
}

func buildWeather(cfg config.SourcesConfig) sources.WeatherSource {
	if cfg.WeatherURL == "" {
		return sources.NewSimulatedWeather("Marikina")
	}
	return sources.NewHTTPWeather(cfg.WeatherURL, "Marikina")
}

func buildAdvisory(cfg config.SourcesConfig) sources.AdvisorySource {
	return sources.NewHTTPAdvisory(cfg.AdvisoryURLs)
}

func buildSocial(cfg config.SourcesConfig) sources.SocialSource {
	if cfg.SocialURL == "" {
		return sources.NewSimulatedSocial(nil)
	}
	return sources.NewHTTPSocial(cfg.SocialURL)
}

func buildGeocoder(cfg config.SourcesConfig) sources.Geocoder {
	return sources.NewHTTPGeocoder(cfg.GeocoderURL, cfg.FallbackLocations)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

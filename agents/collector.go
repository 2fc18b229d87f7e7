package agents

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	masfro "github.com/PolySpade/masfro"
	"github.com/PolySpade/masfro/llm"
	"github.com/PolySpade/masfro/sources"
	"github.com/PolySpade/masfro/store"

	"golang.org/x/sync/errgroup"
)

// CollectorConfig carries the classification thresholds C5 needs,
// mirrored from internal/config.Config so this package stays independent
// of the config package's TOML tags.
type CollectorConfig struct {
	Interval         time.Duration
	RainfallLight    float64
	RainfallModerate float64
	RainfallHeavy    float64
	RainfallExtreme  float64
	WaterAlertM      float64
	WaterAlarmM      float64
	WaterCriticalM   float64
	DamAlertM        float64
	DamAlarmM        float64
	DamCriticalM     float64
	KnownAreas       []string
}

// Collector is the Flood Collector Agent (C5): periodic multi-source
// pull, classification, and a single batched INFORM per cycle to the
// hazard agent. Grounded on spec.md §4.5 and
// original_source/.../flood_agent.py.
type Collector struct {
	base

	gauges   sources.GaugesSource
	dams     sources.DamsSource
	weather  sources.WeatherSource
	advisory sources.AdvisorySource
	dedup    *sources.Dedup
	facade   *llm.Facade
	db       store.Store // optional collaborator

	hazardID string
	cfg      CollectorConfig

	lastRun             time.Time
	lastSuccess         time.Time
	consecutiveFailures int
	running             atomic.Bool
}

// NewCollector wires C5. db and facade may be nil.
func NewCollector(
	id, hazardID string,
	bus *masfro.MessageBus,
	gauges sources.GaugesSource,
	dams sources.DamsSource,
	weather sources.WeatherSource,
	advisory sources.AdvisorySource,
	facade *llm.Facade,
	db store.Store,
	cfg CollectorConfig,
	logger *slog.Logger,
) *Collector {
	return &Collector{
		base:     newBase(id, bus, logger),
		gauges:   gauges,
		dams:     dams,
		weather:  weather,
		advisory: advisory,
		dedup:    sources.NewDedup(0),
		facade:   facade,
		db:       db,
		hazardID: hazardID,
		cfg:      cfg,
	}
}

// Step implements masfro.Agent. It drains REQUEST{action:collect_data}
// messages (each forces a cycle) and, independently, starts a periodic
// cycle once cfg.Interval has elapsed since the last one. Either path
// runs the actual collection in a goroutine so Step never blocks on
// network I/O (spec.md §5).
func (c *Collector) Step(ctx context.Context) {
	c.drain(ctx, func(msg masfro.ACLMessage) {
		if msg.Performative == masfro.Request && msg.Content.Action == "collect_data" {
			c.startCycle(ctx, msg.Sender, msg.ConversationID)
		}
	})

	if time.Since(c.lastRun) >= c.cfg.Interval {
		c.startCycle(ctx, "", "")
	}
}

// startCycle spawns one collection cycle unless one is already running.
// replyTo, if non-empty, receives the batch as an INFORM in addition to
// the always-sent broadcast to the hazard agent.
func (c *Collector) startCycle(ctx context.Context, replyTo, conversationID string) {
	if !c.running.CompareAndSwap(false, true) {
		return
	}
	c.lastRun = time.Now()
	go func() {
		defer c.running.Store(false)
		batch := c.runCycle(ctx)

		data := map[string]any{
			"observations": batch,
			"count":        len(batch),
		}
		c.inform(c.hazardID, "flood_data_batch", data)

		if replyTo != "" {
			reply := masfro.NewMessage(masfro.Inform, c.id, replyTo, masfro.Content{
				InfoType: "flood_data_batch",
				Data:     data,
			})
			reply.ConversationID = conversationID
			c.send(reply)
		}
	}()
}

// runCycle fans out to every configured source concurrently (spec.md
// §4.5 "per-cycle pull" has no ordering requirement across sources, and
// a slow advisory fetch must not delay gauges/dams/weather), classifies
// readings, and returns the merged batch. A source that fails
// contributes nothing; the whole cycle only counts as failed (for the
// consecutive-failure counter) when every source fails. Each goroutine
// below only ever writes its own local slice/flag, so no locking is
// needed to merge results after errgroup.Wait returns.
func (c *Collector) runCycle(ctx context.Context) []masfro.ObservationRecord {
	var (
		gaugeBatch, damBatch, weatherBatch, advisoryBatch []masfro.ObservationRecord
		gaugeOK, damOK, weatherOK, advisoryOK             bool
	)

	g, gctx := errgroup.WithContext(ctx)

	if c.gauges != nil {
		g.Go(func() error {
			readings, err := c.gauges.Fetch(gctx)
			if err != nil {
				c.logger.Warn("gauges fetch failed", "err", err)
				return nil
			}
			gaugeOK = len(readings) > 0
			for _, r := range readings {
				status, risk := sources.ClassifyStation(r, c.cfg.WaterAlertM, c.cfg.WaterAlarmM, c.cfg.WaterCriticalM)
				gaugeBatch = append(gaugeBatch, masfro.ObservationRecord{
					Kind: masfro.ObservationRiverStation, Timestamp: r.Timestamp, Source: r.Source,
					StationName: r.StationName, WaterLevelM: r.WaterLevelM,
					AlertM: r.AlertM, AlarmM: r.AlarmM, CriticalM: r.CriticalM,
					Status: status, Risk: risk,
				})
			}
			return nil
		})
	}

	if c.dams != nil {
		g.Go(func() error {
			readings, err := c.dams.Fetch(gctx)
			if err != nil {
				c.logger.Warn("dams fetch failed", "err", err)
				return nil
			}
			damOK = len(readings) > 0
			for _, r := range readings {
				status, risk := sources.ClassifyDam(r, c.cfg.DamAlertM, c.cfg.DamAlarmM, c.cfg.DamCriticalM)
				damBatch = append(damBatch, masfro.ObservationRecord{
					Kind: masfro.ObservationDam, Timestamp: r.Timestamp, Source: r.Source,
					StationName: r.DamName, RWL: r.RWL, NHWL: r.NHWL,
					Status: status, Risk: risk,
				})
			}
			return nil
		})
	}

	if c.weather != nil {
		g.Go(func() error {
			readings, err := c.weather.Fetch(gctx)
			if err != nil {
				c.logger.Warn("weather fetch failed", "err", err)
				return nil
			}
			weatherOK = len(readings) > 0
			for _, r := range readings {
				intensity := sources.RainfallIntensity(r.RainfallMM, c.cfg.RainfallLight, c.cfg.RainfallModerate, c.cfg.RainfallHeavy, c.cfg.RainfallExtreme)
				weatherBatch = append(weatherBatch, masfro.ObservationRecord{
					Kind: masfro.ObservationRainfall, Timestamp: r.Timestamp, Source: r.Source,
					StationName: r.StationName, RainfallMM: r.RainfallMM, Intensity: intensity,
				})
			}
			return nil
		})
	}

	if c.advisory != nil {
		g.Go(func() error {
			advs, err := c.advisory.Fetch(gctx)
			if err != nil {
				c.logger.Warn("advisory fetch failed", "err", err)
				return nil
			}
			advisoryOK = len(advs) > 0
			for _, adv := range advs {
				if c.dedup.SeenBefore(adv.Text) {
					continue
				}
				parsed := sources.ParseAdvisory(gctx, c.facade, adv, c.cfg.KnownAreas)
				advisoryBatch = append(advisoryBatch, masfro.ObservationRecord{
					Kind: masfro.ObservationAdvisory, Timestamp: adv.FetchedAt, Source: adv.Source,
					AdvisoryType: parsed.AdvisoryType, WarningColor: parsed.WarningColor,
					AffectedAreas: parsed.AffectedAreas,
				})
			}
			return nil
		})
	}

	_ = g.Wait() // every source goroutine swallows its own error; Wait only joins completion

	batch := append(gaugeBatch, damBatch...)
	batch = append(batch, weatherBatch...)
	batch = append(batch, advisoryBatch...)
	anySucceeded := gaugeOK || damOK || weatherOK || advisoryOK

	if anySucceeded {
		c.consecutiveFailures = 0
		c.lastSuccess = time.Now()
	} else {
		c.consecutiveFailures++
		if c.consecutiveFailures >= 3 {
			c.logger.Error("collector: no source has returned data across consecutive cycles",
				"agent", c.id, "consecutive_failures", c.consecutiveFailures,
				"since_last_success", time.Since(c.lastSuccess))
		}
	}

	if c.db != nil {
		for _, rec := range batch {
			if err := c.db.SaveObservation(ctx, rec); err != nil {
				c.logger.Warn("save observation failed", "err", err)
			}
		}
	}

	return batch
}

var _ masfro.Agent = (*Collector)(nil)

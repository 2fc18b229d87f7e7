package agents

import (
	"context"
	"errors"
	"testing"
	"time"

	masfro "github.com/PolySpade/masfro"
	"github.com/PolySpade/masfro/sources"
)

type stubGauges struct {
	readings []sources.StationReading
	err      error
}

func (s stubGauges) Fetch(ctx context.Context) ([]sources.StationReading, error) {
	return s.readings, s.err
}

type stubDams struct {
	readings []sources.DamReading
	err      error
}

func (s stubDams) Fetch(ctx context.Context) ([]sources.DamReading, error) {
	return s.readings, s.err
}

type stubWeather struct {
	readings []sources.WeatherReading
	err      error
}

func (s stubWeather) Fetch(ctx context.Context) ([]sources.WeatherReading, error) {
	return s.readings, s.err
}

type stubAdvisory struct {
	advisories []sources.Advisory
	err        error
}

func (s stubAdvisory) Fetch(ctx context.Context) ([]sources.Advisory, error) {
	return s.advisories, s.err
}

func newTestCollector(t *testing.T, gauges sources.GaugesSource, dams sources.DamsSource, weather sources.WeatherSource, advisory sources.AdvisorySource) (*Collector, *masfro.MessageBus) {
	t.Helper()
	bus := masfro.NewMessageBus(nil)
	if err := bus.Register("collector"); err != nil {
		t.Fatalf("register collector: %v", err)
	}
	if err := bus.Register("hazard"); err != nil {
		t.Fatalf("register hazard: %v", err)
	}
	cfg := CollectorConfig{
		Interval:         time.Hour,
		RainfallLight:    2.5,
		RainfallModerate: 7.5,
		RainfallHeavy:    15,
		RainfallExtreme:  30,
		WaterAlertM:      10,
		WaterAlarmM:      12,
		WaterCriticalM:   15,
		DamAlertM:        10,
		DamAlarmM:        12,
		DamCriticalM:     15,
	}
	return NewCollector("collector", "hazard", bus, gauges, dams, weather, advisory, nil, nil, cfg, nil), bus
}

// TestRunCycleMergesAllSourcesFannedOutConcurrently exercises the
// errgroup fan-out: every configured source is fetched and the merged
// batch carries one record per reading across all of them.
func TestRunCycleMergesAllSourcesFannedOutConcurrently(t *testing.T) {
	gauges := stubGauges{readings: []sources.StationReading{{StationName: "sto-nino", WaterLevelM: 11, AlertM: 10, AlarmM: 12, CriticalM: 15, Timestamp: time.Now()}}}
	dams := stubDams{readings: []sources.DamReading{{DamName: "wawa", RWL: 5, NHWL: 10, Timestamp: time.Now()}}}
	weather := stubWeather{readings: []sources.WeatherReading{{StationName: "marikina", RainfallMM: 20, Timestamp: time.Now()}}}
	advisory := stubAdvisory{advisories: []sources.Advisory{{Text: "Signal no. 2 raised over Marikina", FetchedAt: time.Now()}}}

	c, _ := newTestCollector(t, gauges, dams, weather, advisory)
	batch := c.runCycle(context.Background())
	if len(batch) != 4 {
		t.Fatalf("expected one record per source, got %d: %+v", len(batch), batch)
	}
	if c.consecutiveFailures != 0 {
		t.Fatalf("expected consecutiveFailures reset to 0, got %d", c.consecutiveFailures)
	}
}

func TestRunCycleToleratesOneSourceFailing(t *testing.T) {
	gauges := stubGauges{readings: []sources.StationReading{{StationName: "sto-nino", WaterLevelM: 5, Timestamp: time.Now()}}}
	dams := stubDams{err: errors.New("dams API unavailable")}

	c, _ := newTestCollector(t, gauges, dams, nil, nil)
	batch := c.runCycle(context.Background())
	if len(batch) != 1 {
		t.Fatalf("expected the surviving source's record, got %d", len(batch))
	}
	if c.consecutiveFailures != 0 {
		t.Fatalf("expected a partial success to reset consecutiveFailures, got %d", c.consecutiveFailures)
	}
}

func TestRunCycleCountsConsecutiveFailuresWhenEverySourceFails(t *testing.T) {
	gauges := stubGauges{err: errors.New("timeout")}
	dams := stubDams{err: errors.New("timeout")}

	c, _ := newTestCollector(t, gauges, dams, nil, nil)
	for i := 0; i < 3; i++ {
		c.runCycle(context.Background())
	}
	if c.consecutiveFailures != 3 {
		t.Fatalf("expected consecutiveFailures=3, got %d", c.consecutiveFailures)
	}
}

func TestStartCycleSendsBatchedInformToHazard(t *testing.T) {
	gauges := stubGauges{readings: []sources.StationReading{{StationName: "sto-nino", WaterLevelM: 5, Timestamp: time.Now()}}}
	c, bus := newTestCollector(t, gauges, nil, nil, nil)

	c.startCycle(context.Background(), "", "")

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if msg, ok, _ := bus.Receive(context.Background(), "hazard", false, 0); ok {
			if msg.Content.InfoType != "flood_data_batch" {
				t.Fatalf("unexpected info type: %s", msg.Content.InfoType)
			}
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("expected a flood_data_batch INFORM to reach the hazard agent")
}

func TestStartCycleIgnoresConcurrentRequestWhileRunning(t *testing.T) {
	c, _ := newTestCollector(t, nil, nil, nil, nil)
	c.running.Store(true)
	c.startCycle(context.Background(), "", "") // must be a no-op, not spawn a second cycle
	if !c.running.Load() {
		t.Fatal("expected running flag to remain set")
	}
}

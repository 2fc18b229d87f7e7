package libsql

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	masfro "github.com/PolySpade/masfro"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "masfro.db")
	s, err := New(path)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSaveAndRecentObservations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	rec := masfro.ObservationRecord{
		Kind:      masfro.ObservationDam,
		Timestamp: now,
		Source:    "dams_api",
		RWL:       80.5,
		NHWL:      80.0,
		Status:    "watch",
		Risk:      0.3,
	}
	if err := s.SaveObservation(ctx, rec); err != nil {
		t.Fatalf("save observation: %v", err)
	}

	got, err := s.RecentObservations(ctx, masfro.ObservationDam, now.Add(-time.Minute), 10)
	if err != nil {
		t.Fatalf("recent observations: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 observation, got %d", len(got))
	}
	if got[0].RWL != rec.RWL || got[0].Status != rec.Status {
		t.Fatalf("round-tripped observation mismatch: %+v", got[0])
	}
}

func TestRecentObservationsZeroKindMatchesEverything(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_ = s.SaveObservation(ctx, masfro.ObservationRecord{Kind: masfro.ObservationRainfall, Timestamp: now, Source: "weather_api"})
	_ = s.SaveObservation(ctx, masfro.ObservationRecord{Kind: masfro.ObservationAdvisory, Timestamp: now, Source: "pagasa"})

	all, err := s.RecentObservations(ctx, "", now.Add(-time.Hour), 10)
	if err != nil {
		t.Fatalf("recent observations: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 observations across kinds, got %d", len(all))
	}
}

func TestSaveMissionThenGetMissionRoundTrips(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	m := &masfro.Mission{
		ID:              "mission-2",
		Type:            masfro.MissionRouteCalculation,
		State:           masfro.StatePending,
		Params:          map[string]any{"origin": "City Hall"},
		Results:         map[string]any{},
		CreatedAt:       time.Now().UTC(),
		TimeoutDeadline: time.Now().UTC().Add(time.Minute),
	}
	if err := s.SaveMission(ctx, m); err != nil {
		t.Fatalf("save mission: %v", err)
	}

	got, ok, err := s.GetMission(ctx, "mission-2")
	if err != nil {
		t.Fatalf("get mission: %v", err)
	}
	if !ok || got.Type != m.Type {
		t.Fatalf("round-tripped mission mismatch: %+v", got)
	}

	m.State = masfro.StateFailed
	m.Error = "timed out"
	if err := s.SaveMission(ctx, m); err != nil {
		t.Fatalf("update mission: %v", err)
	}

	updated, ok, err := s.GetMission(ctx, "mission-2")
	if err != nil {
		t.Fatalf("get mission: %v", err)
	}
	if !ok || updated.State != masfro.StateFailed || updated.Error != "timed out" {
		t.Fatalf("expected updated failed state, got %+v", updated)
	}
}

func TestGetMissionNotFoundReturnsFalse(t *testing.T) {
	s := newTestStore(t)
	_, ok, err := s.GetMission(context.Background(), "does-not-exist")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected not-found for unknown mission id")
	}
}

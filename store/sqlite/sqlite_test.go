package sqlite

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
	s := New(path)
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
		Kind:        masfro.ObservationRiverStation,
		Timestamp:   now,
		Source:      "gauges_api",
		StationName: "Marikina River - Nangka",
		WaterLevelM: 16.2,
		Status:      "alert",
		Risk:        0.5,
	}
	if err := s.SaveObservation(ctx, rec); err != nil {
		t.Fatalf("save observation: %v", err)
	}

	got, err := s.RecentObservations(ctx, masfro.ObservationRiverStation, now.Add(-time.Minute), 10)
	if err != nil {
		t.Fatalf("recent observations: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 observation, got %d", len(got))
	}
	if got[0].StationName != rec.StationName || got[0].Risk != rec.Risk {
		t.Fatalf("round-tripped observation mismatch: %+v", got[0])
	}
}

func TestRecentObservationsFiltersByKindAndSince(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_ = s.SaveObservation(ctx, masfro.ObservationRecord{Kind: masfro.ObservationDam, Timestamp: now, Source: "dams_api"})
	_ = s.SaveObservation(ctx, masfro.ObservationRecord{Kind: masfro.ObservationRainfall, Timestamp: now, Source: "weather_api"})

	dams, err := s.RecentObservations(ctx, masfro.ObservationDam, now.Add(-time.Hour), 10)
	if err != nil {
		t.Fatalf("recent observations: %v", err)
	}
	if len(dams) != 1 {
		t.Fatalf("expected 1 dam observation, got %d", len(dams))
	}

	future, err := s.RecentObservations(ctx, masfro.ObservationDam, now.Add(time.Hour), 10)
	if err != nil {
		t.Fatalf("recent observations: %v", err)
	}
	if len(future) != 0 {
		t.Fatalf("expected 0 observations after the future cutoff, got %d", len(future))
	}
}

func TestSaveMissionThenGetMissionRoundTrips(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	m := &masfro.Mission{
		ID:              "mission-1",
		Type:            masfro.MissionAssessRisk,
		State:           masfro.StatePending,
		Params:          map[string]any{"location": "Nangka"},
		Results:         map[string]any{},
		CreatedAt:       time.Now().UTC(),
		TimeoutDeadline: time.Now().UTC().Add(time.Minute),
	}
	if err := s.SaveMission(ctx, m); err != nil {
		t.Fatalf("save mission: %v", err)
	}

	got, ok, err := s.GetMission(ctx, "mission-1")
	if err != nil {
		t.Fatalf("get mission: %v", err)
	}
	if !ok {
		t.Fatal("expected mission to be found")
	}
	if got.Type != m.Type || got.State != m.State {
		t.Fatalf("round-tripped mission mismatch: %+v", got)
	}

	m.State = masfro.StateCompleted
	m.CompletedAt = time.Now().UTC()
	if err := s.SaveMission(ctx, m); err != nil {
		t.Fatalf("update mission: %v", err)
	}

	updated, ok, err := s.GetMission(ctx, "mission-1")
	if err != nil {
		t.Fatalf("get mission: %v", err)
	}
	if !ok || updated.State != masfro.StateCompleted {
		t.Fatalf("expected updated state COMPLETED, got %+v", updated)
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

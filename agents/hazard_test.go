package agents

import (
	"context"
	"testing"
	"time"

	masfro "github.com/PolySpade/masfro"
)

func buildHazardGraph() *masfro.RoadGraph {
	g := masfro.NewRoadGraph("", time.Hour)
	g.AddNode(masfro.Node{ID: 1, Lat: 14.630, Lon: 121.100})
	g.AddNode(masfro.Node{ID: 2, Lat: 14.631, Lon: 121.101})
	g.AddEdge(masfro.EdgeKey{U: 1, V: 2, Key: 0}, 150)
	g.AddEdge(masfro.EdgeKey{U: 2, V: 1, Key: 0}, 150)
	return g
}

func newTestHazard(t *testing.T, g *masfro.RoadGraph) (*Hazard, *masfro.MessageBus) {
	t.Helper()
	bus := masfro.NewMessageBus(nil)
	if err := bus.Register("hazard"); err != nil {
		t.Fatalf("register hazard: %v", err)
	}
	if err := bus.Register("caller"); err != nil {
		t.Fatalf("register caller: %v", err)
	}
	cfg := HazardConfig{
		ScoutTTL:                          time.Hour,
		FloodTTL:                          time.Hour,
		RiskWeightFloodDepth:              0.6,
		RiskWeightCrowdsourced:            0.4,
		SpatialDecayPerMin:                0.08,
		MinRiskThreshold:                  0.01,
		ScoutDecayFastPerMin:              0.10,
		ScoutDecaySlowPerMin:              0.03,
		RiskRadiusM:                       500,
		VisualOverrideRiskThreshold:       0.5,
		VisualOverrideConfidenceThreshold: 0.7,
		CriticalRiskThreshold:             0.9,
	}
	return NewHazard("hazard", bus, g, nil, cfg, nil), bus
}

// TestScenarioS2FloodInformFusion mirrors spec.md §8 scenario S2: a
// flood_data_batch INFORM followed by a process_and_update REQUEST must
// raise edge risk and answer with a risk_update_result INFORM.
func TestScenarioS2FloodInformFusion(t *testing.T) {
	g := buildHazardGraph()
	h, bus := newTestHazard(t, g)

	batch := masfro.NewMessage(masfro.Inform, "collector", "hazard", masfro.Content{
		InfoType: "flood_data_batch",
		Data: map[string]any{
			"observations": []masfro.ObservationRecord{
				{
					Kind:        masfro.ObservationRiverStation,
					StationName: "marikina-sto-nino",
					Timestamp:   masfro.Now(),
					Risk:        0.8,
				},
			},
		},
	})
	if err := bus.Send(batch); err != nil {
		t.Fatalf("send flood batch: %v", err)
	}

	req := masfro.NewMessage(masfro.Request, "caller", "hazard", masfro.Content{Action: "process_and_update"})
	if err := bus.Send(req); err != nil {
		t.Fatalf("send process_and_update: %v", err)
	}

	h.Step(context.Background())

	reply, ok, err := bus.Receive(context.Background(), "caller", false, 0)
	if err != nil || !ok {
		t.Fatalf("expected a reply, got ok=%v err=%v", ok, err)
	}
	if reply.Performative != masfro.Inform || reply.Content.InfoType != "risk_update_result" {
		t.Fatalf("unexpected reply: %+v", reply)
	}
	avg, _ := reply.Content.Data["average_risk"].(float64)
	if avg <= 0 {
		t.Fatalf("expected a positive average_risk after fusion, got %v", avg)
	}

	ev, ok := g.Edge(masfro.EdgeKey{U: 1, V: 2, Key: 0})
	if !ok || ev.Risk <= 0 {
		t.Fatalf("expected edge risk to be raised by fusion, got %+v ok=%v", ev, ok)
	}
}

func TestIngestFloodBatchRejectsInvalidRisk(t *testing.T) {
	g := buildHazardGraph()
	h, _ := newTestHazard(t, g)

	h.ingestFloodBatch(map[string]any{
		"observations": []masfro.ObservationRecord{
			{StationName: "a", Timestamp: masfro.Now(), Risk: 1.5},
			{StationName: "b", Timestamp: masfro.Now(), Risk: -0.1},
			{StationName: "", Timestamp: masfro.Now(), Risk: 0.5},
		},
	})
	if len(h.floodCache) != 0 {
		t.Fatalf("expected no entries admitted, got %d", len(h.floodCache))
	}
}

func TestIngestScoutBatchDedupsByIdentity(t *testing.T) {
	g := buildHazardGraph()
	h, _ := newTestHazard(t, g)

	rec := masfro.ObservationRecord{
		LocationName: "marikina heights",
		ReportType:   masfro.ReportFlooded,
		Severity:     0.6,
		Confidence:   0.7,
	}
	h.ingestScoutBatch(map[string]any{"reports": []masfro.ObservationRecord{rec, rec}})
	if len(h.scoutCache) != 1 {
		t.Fatalf("expected duplicate report to be dropped, got %d entries", len(h.scoutCache))
	}
}

func TestQueryRiskAtLocationBucketsLevel(t *testing.T) {
	g := buildHazardGraph()
	h, _ := newTestHazard(t, g)

	_ = g.UpdateEdgeRisk(masfro.EdgeKey{U: 1, V: 2, Key: 0}, 0.85)
	_ = g.UpdateEdgeRisk(masfro.EdgeKey{U: 2, V: 1, Key: 0}, 0.85)

	result := h.queryRiskAtLocation(map[string]any{"lat": 14.630, "lon": 121.100, "radius_m": 1000.0})
	level, _ := result["risk_level"].(string)
	if level != "critical" {
		t.Fatalf("expected critical risk level for avg risk 0.85, got %q (%+v)", level, result)
	}
}

func TestDepthToRiskPiecewise(t *testing.T) {
	cases := []struct {
		depth float64
		want  float64
	}{
		{depth: 0, want: 0},
		{depth: 0.2, want: 0.2},
		{depth: 0.6, want: 0.6},
		{depth: 1.0, want: 0.8},
	}
	for _, c := range cases {
		if got := depthToRisk(c.depth); got != c.want {
			t.Errorf("depthToRisk(%v) = %v, want %v", c.depth, got, c.want)
		}
	}
}

func TestRiskLevelBucketBoundaries(t *testing.T) {
	cases := []struct {
		risk float64
		want string
	}{
		{0.0, "minimal"},
		{0.3, "low"},
		{0.5, "moderate"},
		{0.7, "high"},
		{0.95, "critical"},
	}
	for _, c := range cases {
		if got := riskLevelBucket(c.risk); got != c.want {
			t.Errorf("riskLevelBucket(%v) = %q, want %q", c.risk, got, c.want)
		}
	}
}

func TestTrendStatsReportsHumanReadableOldestAge(t *testing.T) {
	g := buildHazardGraph()
	h, _ := newTestHazard(t, g)

	now := masfro.Now()
	scouts := []scoutEntry{{rec: masfro.ObservationRecord{Severity: 0.5}, receivedAt: now.Add(-5 * time.Minute)}}
	stats := h.trendStats(now, map[masfro.EdgeKey]float64{{U: 1, V: 2, Key: 0}: 0.4}, scouts)

	if _, ok := stats["oldest_report_age_human"]; !ok {
		t.Fatal("expected oldest_report_age_human to be set when scout reports exist")
	}
	if _, ok := stats["oldest_report_age_min"]; !ok {
		t.Fatal("expected oldest_report_age_min to still be set")
	}
}

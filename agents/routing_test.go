package agents

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	masfro "github.com/PolySpade/masfro"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func buildRoutingGraph() *masfro.RoadGraph {
	g := masfro.NewRoadGraph("", time.Hour)
	g.AddNode(masfro.Node{ID: 1, Lat: 14.650, Lon: 121.100})
	g.AddNode(masfro.Node{ID: 2, Lat: 14.651, Lon: 121.101})
	g.AddNode(masfro.Node{ID: 3, Lat: 14.6507, Lon: 121.1029})
	g.AddEdge(masfro.EdgeKey{U: 1, V: 2, Key: 0}, 150)
	g.AddEdge(masfro.EdgeKey{U: 2, V: 1, Key: 0}, 150)
	g.AddEdge(masfro.EdgeKey{U: 2, V: 3, Key: 0}, 120)
	g.AddEdge(masfro.EdgeKey{U: 3, V: 2, Key: 0}, 120)
	return g
}

func newTestRouting(t *testing.T, centers []EvacuationCenter) (*Routing, *masfro.MessageBus, *masfro.RoadGraph) {
	t.Helper()
	bus := masfro.NewMessageBus(nil)
	if err := bus.Register("routing"); err != nil {
		t.Fatalf("register routing: %v", err)
	}
	if err := bus.Register("caller"); err != nil {
		t.Fatalf("register caller: %v", err)
	}
	g := buildRoutingGraph()
	router := masfro.NewRiskAwareAStar(g, 0.9)
	index := masfro.NewSpatialIndex(g.Nodes(), 500)
	cfg := RoutingConfig{MaxCandidateCenters: 5, BaseSpeedKmh: 30, SpeedReductionFactor: 0.5}
	r := NewRouting("routing", bus, g, router, index, nil, centers, cfg, nil)
	return r, bus, g
}

func TestHandleCalculateRouteReturnsPathAndMetrics(t *testing.T) {
	r, bus, _ := newTestRouting(t, nil)

	req := masfro.NewMessage(masfro.Request, "caller", "routing", masfro.Content{
		Action: "calculate_route",
		Data: map[string]any{
			"start_lat": 14.650, "start_lon": 121.100,
			"end_lat": 14.6507, "end_lon": 121.1029,
			"mode": "balanced",
		},
	})
	if err := bus.Send(req); err != nil {
		t.Fatalf("send: %v", err)
	}
	r.Step(context.Background())

	reply, ok, err := bus.Receive(context.Background(), "caller", false, 0)
	if err != nil || !ok {
		t.Fatalf("expected a reply, got ok=%v err=%v", ok, err)
	}
	if reply.Content.InfoType != "route_result" {
		t.Fatalf("unexpected info type: %s", reply.Content.InfoType)
	}
	if reply.Content.Data["status"] != string(masfro.StatusOK) {
		t.Fatalf("expected status OK, got %v", reply.Content.Data["status"])
	}
	if _, ok := reply.Content.Data["path"]; !ok {
		t.Fatal("expected a path in the reply")
	}
}

func TestHandleCalculateRouteFailsTooFarFromNetwork(t *testing.T) {
	r, bus, _ := newTestRouting(t, nil)

	req := masfro.NewMessage(masfro.Request, "caller", "routing", masfro.Content{
		Action: "calculate_route",
		Data: map[string]any{
			"start_lat": 40.0, "start_lon": -74.0, // nowhere near the test graph
			"end_lat": 14.6507, "end_lon": 121.1029,
		},
	})
	if err := bus.Send(req); err != nil {
		t.Fatalf("send: %v", err)
	}
	r.Step(context.Background())

	reply, ok, err := bus.Receive(context.Background(), "caller", false, 0)
	if err != nil || !ok {
		t.Fatalf("expected a reply, got ok=%v err=%v", ok, err)
	}
	if reply.Performative != masfro.Failure {
		t.Fatalf("expected a FAILURE reply, got %s", reply.Performative)
	}
}

func TestHandleFindEvacuationCenterReturnsReachableCenter(t *testing.T) {
	centers := []EvacuationCenter{
		{Name: "Near Center", Lat: 14.6507, Lon: 121.1029, Capacity: 100, Type: "school"},
	}
	r, bus, _ := newTestRouting(t, centers)

	req := masfro.NewMessage(masfro.Request, "caller", "routing", masfro.Content{
		Action: "find_evacuation_center",
		Data:   map[string]any{"lat": 14.650, "lon": 121.100},
	})
	if err := bus.Send(req); err != nil {
		t.Fatalf("send: %v", err)
	}
	r.Step(context.Background())

	reply, ok, err := bus.Receive(context.Background(), "caller", false, 0)
	if err != nil || !ok {
		t.Fatalf("expected a reply, got ok=%v err=%v", ok, err)
	}
	if found, _ := reply.Content.Data["found"].(bool); !found {
		t.Fatalf("expected a found evacuation center, got %+v", reply.Content.Data)
	}
	if name, _ := reply.Content.Data["name"].(string); name != "Near Center" {
		t.Fatalf("expected Near Center, got %q", name)
	}
}

func TestHandleFindEvacuationCenterNoneReachable(t *testing.T) {
	r, bus, _ := newTestRouting(t, nil) // no centers configured

	req := masfro.NewMessage(masfro.Request, "caller", "routing", masfro.Content{
		Action: "find_evacuation_center",
		Data:   map[string]any{"lat": 14.650, "lon": 121.100},
	})
	if err := bus.Send(req); err != nil {
		t.Fatalf("send: %v", err)
	}
	r.Step(context.Background())

	reply, ok, err := bus.Receive(context.Background(), "caller", false, 0)
	if err != nil || !ok {
		t.Fatalf("expected a reply, got ok=%v err=%v", ok, err)
	}
	if found, _ := reply.Content.Data["found"].(bool); found {
		t.Fatal("expected found=false with no centers configured")
	}
}

func TestLoadEvacuationCentersFallsBackOnMissingFile(t *testing.T) {
	centers := LoadEvacuationCenters(filepath.Join(t.TempDir(), "does-not-exist.csv"), discardLogger())
	if len(centers) != len(sampleEvacuationCenters()) {
		t.Fatalf("expected the built-in sample list, got %d centers", len(centers))
	}
}

func TestLoadEvacuationCentersParsesCSV(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "centers.csv")
	content := "name,latitude,longitude,capacity,type\nTest Hall,14.70,121.20,300,gymnasium\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	centers := LoadEvacuationCenters(path, discardLogger())
	if len(centers) != 1 {
		t.Fatalf("expected 1 center, got %d", len(centers))
	}
	if centers[0].Name != "Test Hall" || centers[0].Capacity != 300 {
		t.Fatalf("unexpected parsed center: %+v", centers[0])
	}
}

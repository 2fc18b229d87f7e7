package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	masfro "github.com/PolySpade/masfro"
	"github.com/PolySpade/masfro/agents"
	"github.com/PolySpade/masfro/llm"
)

type stubProvider struct{ response string }

func (s *stubProvider) Name() string  { return "stub" }
func (s *stubProvider) Model() string { return "stub-model" }
func (s *stubProvider) Chat(ctx context.Context, messages []llm.Message) (llm.ChatResult, error) {
	return llm.ChatResult{Content: s.response}, nil
}

func newTestGateway(t *testing.T) *gateway {
	t.Helper()
	bus := masfro.NewMessageBus(nil)
	registry := masfro.NewMissionRegistry(10)
	facade := llm.NewFacade(&stubProvider{response: "ok"}, nil, time.Minute, time.Minute, 10)
	logger := slog.New(slog.NewTextHandler(bytes.NewBuffer(nil), nil))

	orch := agents.NewOrchestrator(
		"orchestrator", bus, registry, facade,
		"scout", "collector", "hazard", "routing", "evac",
		agents.OrchestratorConfig{DefaultTimeout: time.Minute},
		logger,
	)
	if err := bus.Register("orchestrator"); err != nil {
		t.Fatalf("register orchestrator: %v", err)
	}
	if err := bus.Register("routing"); err != nil {
		t.Fatalf("register routing: %v", err)
	}
	if err := bus.Register("evac"); err != nil {
		t.Fatalf("register evac: %v", err)
	}

	return &gateway{
		bus: bus, orchestrator: orch, facade: facade,
		routingID: "routing", evacID: "evac", logger: logger,
	}
}

func TestHandleStartMissionAndGetMission(t *testing.T) {
	gw := newTestGateway(t)
	srv := httptest.NewServer(gw.routes())
	defer srv.Close()

	body, _ := json.Marshal(map[string]any{
		"type":   string(masfro.MissionAssessRisk),
		"params": map[string]any{"lat": 14.65, "lon": 121.10},
	})
	resp, err := http.Post(srv.URL+"/api/orchestrator/mission", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST mission: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	var mission masfro.Mission
	if err := json.NewDecoder(resp.Body).Decode(&mission); err != nil {
		t.Fatalf("decode mission: %v", err)
	}
	if mission.ID == "" {
		t.Fatal("expected a mission id")
	}

	resp2, err := http.Get(srv.URL + "/api/orchestrator/mission/" + mission.ID)
	if err != nil {
		t.Fatalf("GET mission: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp2.StatusCode)
	}
}

func TestHandleGetMissionNotFound(t *testing.T) {
	gw := newTestGateway(t)
	srv := httptest.NewServer(gw.routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/orchestrator/mission/does-not-exist")
	if err != nil {
		t.Fatalf("GET mission: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestHandleRouteBridgesThroughBus(t *testing.T) {
	gw := newTestGateway(t)
	srv := httptest.NewServer(gw.routes())
	defer srv.Close()

	// Fake Routing agent: reply INFORM to any calculate_route REQUEST.
	go func() {
		msg, ok, err := gw.bus.Receive(context.Background(), "routing", true, 2*time.Second)
		if err != nil || !ok {
			return
		}
		reply := masfro.ReplyTo(msg, masfro.Inform, "routing", masfro.Content{
			InfoType: "route_result",
			Data:     map[string]any{"status": "ok", "path": []int{1, 2, 3}},
		})
		_ = gw.bus.Send(reply)
	}()

	body, _ := json.Marshal(map[string]any{
		"start_lat": 14.65, "start_lon": 121.10,
		"end_lat": 14.66, "end_lon": 121.11,
		"mode": "driving",
	})
	resp, err := http.Post(srv.URL+"/api/route", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST route: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestHandleRouteFailsWithoutRoutingAgent(t *testing.T) {
	gw := newTestGateway(t)
	gw.bus = masfro.NewMessageBus(nil) // fresh bus, "routing" never registered
	gw.requestTimeout = 200 * time.Millisecond
	srv := httptest.NewServer(gw.routes())
	defer srv.Close()

	body, _ := json.Marshal(map[string]any{"start_lat": 0, "start_lon": 0, "end_lat": 1, "end_lon": 1})
	resp, err := http.Post(srv.URL+"/api/route", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST route: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
}

func TestHandleHealth(t *testing.T) {
	gw := newTestGateway(t)
	srv := httptest.NewServer(gw.routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/health")
	if err != nil {
		t.Fatalf("GET health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	masfro "github.com/PolySpade/masfro"
	"github.com/PolySpade/masfro/agents"
	"github.com/PolySpade/masfro/llm"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// gatewayRequestTimeout bounds the synchronous bus round-trip used for
// endpoints that have no direct agent method (route, evacuation center,
// feedback): request goes out over the bus, the gateway blocks on its
// own one-shot inbox for the matching reply.
const gatewayRequestTimeout = 10 * time.Second

// gateway is the minimal HTTP surface described in spec.md §6. It wires
// missions and chat directly to the Orchestrator's exported methods, and
// bridges the remaining endpoints through the MessageBus since Routing
// and Evac expose no callable equivalent — only ACL-message handlers.
type gateway struct {
	bus          *masfro.MessageBus
	orchestrator *agents.Orchestrator
	facade       *llm.Facade
	routingID    string
	evacID       string
	logger       *slog.Logger

	// requestTimeout overrides gatewayRequestTimeout when non-zero; tests
	// set this short so a missing responder fails fast.
	requestTimeout time.Duration
}

func (gw *gateway) timeout() time.Duration {
	if gw.requestTimeout > 0 {
		return gw.requestTimeout
	}
	return gatewayRequestTimeout
}

func (gw *gateway) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/orchestrator/mission", gw.handleStartMission)
	mux.HandleFunc("GET /api/orchestrator/mission/{id}", gw.handleGetMission)
	mux.HandleFunc("GET /api/orchestrator/mission/{id}/summary", gw.handleSummarizeMission)
	mux.HandleFunc("POST /api/orchestrator/chat", gw.handleChat)
	mux.HandleFunc("POST /api/route", gw.handleRoute)
	mux.HandleFunc("POST /api/evacuation-center", gw.handleEvacuationCenter)
	mux.HandleFunc("POST /api/feedback", gw.handleFeedback)
	mux.HandleFunc("GET /api/health", gw.handleHealth)
	return otelhttp.NewHandler(mux, "masfro-gateway")
}

func (gw *gateway) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		gw.logger.Warn("gateway: encode response failed", "err", err)
	}
}

func (gw *gateway) writeError(w http.ResponseWriter, status int, err error) {
	gw.writeJSON(w, status, map[string]string{"error": err.Error()})
}

// --- mission lifecycle + chat: direct Orchestrator calls ---

func (gw *gateway) handleStartMission(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Type   string         `json:"type"`
		Params map[string]any `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		gw.writeError(w, http.StatusBadRequest, masfro.NewConfigurationError("request body"))
		return
	}
	mission := gw.orchestrator.StartMission(masfro.MissionType(body.Type), body.Params)
	gw.writeJSON(w, http.StatusAccepted, mission)
}

func (gw *gateway) handleGetMission(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	mission, ok := gw.orchestrator.GetMission(id)
	if !ok {
		http.NotFound(w, r)
		return
	}
	gw.writeJSON(w, http.StatusOK, mission)
}

func (gw *gateway) handleSummarizeMission(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	summary, ok := gw.orchestrator.SummarizeMission(r.Context(), id)
	if !ok {
		http.NotFound(w, r)
		return
	}
	gw.writeJSON(w, http.StatusOK, map[string]string{"summary": summary})
}

func (gw *gateway) handleChat(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SessionID string `json:"session_id"`
		Message   string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		gw.writeError(w, http.StatusBadRequest, masfro.NewConfigurationError("request body"))
		return
	}
	mission, reasoning, err := gw.orchestrator.InterpretRequest(r.Context(), body.SessionID, body.Message)
	if err != nil {
		gw.writeError(w, http.StatusBadGateway, err)
		return
	}
	if mission == nil {
		gw.writeJSON(w, http.StatusOK, map[string]string{"mission_type": "off_topic", "reasoning": reasoning})
		return
	}
	gw.writeJSON(w, http.StatusAccepted, map[string]any{"mission": mission, "reasoning": reasoning})
}

// --- bus-bridged endpoints: Routing and Evac expose no direct method,
// only ACL handlers reached via REQUEST messages. The gateway registers
// a throwaway inbox, sends the REQUEST, and blocks on the matching reply.

// callAgent sends a REQUEST to receiverID and blocks for its INFORM/
// FAILURE reply, using a one-shot pseudo-agent id as the return address.
func (gw *gateway) callAgent(ctx context.Context, receiverID, action string, data map[string]any) (masfro.ACLMessage, error) {
	replyID := "gateway-" + masfro.NewID()
	if err := gw.bus.Register(replyID); err != nil {
		return masfro.ACLMessage{}, err
	}
	defer gw.bus.Unregister(replyID)

	req := masfro.NewMessage(masfro.Request, replyID, receiverID, masfro.Content{
		Action: action,
		Data:   data,
	})
	if err := gw.bus.Send(req); err != nil {
		return masfro.ACLMessage{}, err
	}

	timeout := gw.timeout()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	reply, ok, err := gw.bus.Receive(ctx, replyID, true, timeout)
	if err != nil {
		return masfro.ACLMessage{}, err
	}
	if !ok {
		return masfro.ACLMessage{}, masfro.NewAgentCommunicationError(receiverID + ": no reply within timeout")
	}
	if reply.Performative == masfro.Failure {
		return reply, errors.New(reply.Content.Error)
	}
	return reply, nil
}

func (gw *gateway) handleRoute(w http.ResponseWriter, r *http.Request) {
	var body struct {
		StartLat float64 `json:"start_lat"`
		StartLon float64 `json:"start_lon"`
		EndLat   float64 `json:"end_lat"`
		EndLon   float64 `json:"end_lon"`
		Mode     string  `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		gw.writeError(w, http.StatusBadRequest, masfro.NewConfigurationError("request body"))
		return
	}
	reply, err := gw.callAgent(r.Context(), gw.routingID, "calculate_route", map[string]any{
		"start_lat": body.StartLat, "start_lon": body.StartLon,
		"end_lat": body.EndLat, "end_lon": body.EndLon,
		"mode": body.Mode,
	})
	if err != nil {
		gw.writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	gw.writeJSON(w, http.StatusOK, reply.Content.Data)
}

func (gw *gateway) handleEvacuationCenter(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Lat   float64 `json:"lat"`
		Lon   float64 `json:"lon"`
		Mode  string  `json:"mode"`
		Query string  `json:"query"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		gw.writeError(w, http.StatusBadRequest, masfro.NewConfigurationError("request body"))
		return
	}
	reply, err := gw.callAgent(r.Context(), gw.routingID, "find_evacuation_center", map[string]any{
		"lat": body.Lat, "lon": body.Lon, "mode": body.Mode, "query": body.Query,
	})
	if err != nil {
		gw.writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	gw.writeJSON(w, http.StatusOK, reply.Content.Data)
}

func (gw *gateway) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var body struct {
		FeedbackType string  `json:"feedback_type"`
		Lat          float64 `json:"lat"`
		Lon          float64 `json:"lon"`
		HasPhoto     bool    `json:"has_photo"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		gw.writeError(w, http.StatusBadRequest, masfro.NewConfigurationError("request body"))
		return
	}
	reply, err := gw.callAgent(r.Context(), gw.evacID, "collect_feedback", map[string]any{
		"feedback_type": body.FeedbackType, "lat": body.Lat, "lon": body.Lon, "has_photo": body.HasPhoto,
	})
	if err != nil {
		gw.writeError(w, http.StatusBadRequest, err)
		return
	}
	gw.writeJSON(w, http.StatusOK, reply.Content.Data)
}

func (gw *gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := gw.facade.GetHealth(r.Context())
	status := http.StatusOK
	if !health.Available {
		status = http.StatusServiceUnavailable
	}
	gw.writeJSON(w, status, map[string]any{
		"llm_available":    health.Available,
		"llm_models":       health.Models,
		"llm_cache_size":   strconv.Itoa(health.CacheSize),
		"checked_at":       health.LastCheckedAt,
	})
}

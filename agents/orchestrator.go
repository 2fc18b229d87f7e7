package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	masfro "github.com/PolySpade/masfro"
	"github.com/PolySpade/masfro/llm"

	"github.com/dustin/go-humanize"
)

// OrchestratorConfig carries the per-mission-type timeouts and the
// city-center fallback coordinate of spec.md §4.11.
type OrchestratorConfig struct {
	DefaultTimeout               time.Duration
	AssessRiskTimeout            time.Duration
	CoordinatedEvacuationTimeout time.Duration
	RouteCalculationTimeout      time.Duration
	CascadeRiskUpdateTimeout     time.Duration

	MaxHistoryTurns int // bounded conversation history, default 20
	CenterLat       float64
	CenterLon       float64
	MaxHistorySize  int // not read by the orchestrator; the chat session map has no size bound
}

// Orchestrator is the Orchestrator Agent (C11): drives the
// per-mission-type FSM, correlates replies by conversation id, times out
// stalled missions, and translates free-form chat into missions.
// Grounded on spec.md §4.11 and original_source/.../orchestrator_agent.py.
type Orchestrator struct {
	base

	registry *masfro.MissionRegistry
	facade   *llm.Facade
	cfg      OrchestratorConfig

	scoutID, collectorID, hazardID, routingID, evacID string

	mu       sync.Mutex
	sessions map[string][]llm.Message
}

func NewOrchestrator(
	id string,
	bus *masfro.MessageBus,
	registry *masfro.MissionRegistry,
	facade *llm.Facade,
	scoutID, collectorID, hazardID, routingID, evacID string,
	cfg OrchestratorConfig,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		base:        newBase(id, bus, logger),
		registry:    registry,
		facade:      facade,
		cfg:         cfg,
		scoutID:     scoutID,
		collectorID: collectorID,
		hazardID:    hazardID,
		routingID:   routingID,
		evacID:      evacID,
		sessions:    make(map[string][]llm.Message),
	}
}

func (o *Orchestrator) Step(ctx context.Context) {
	o.drain(ctx, o.handleReply)
	o.scanTimeouts()
}

func (o *Orchestrator) scanTimeouts() {
	now := masfro.Now()
	for _, m := range o.registry.ActiveSnapshot() {
		if now.After(m.TimeoutDeadline) {
			o.registry.Transition(m.ID, masfro.StateTimedOut, "mission timed out")
		}
	}
}

// handleReply dispatches one incoming ACL message by conversation id
// (spec.md §4.11's "Correlation"): unknown ids are dropped with a debug
// log, and replies to an already-terminal mission are ignored.
func (o *Orchestrator) handleReply(msg masfro.ACLMessage) {
	if msg.ConversationID == "" {
		o.logger.Debug("orchestrator: reply with no conversation id", "sender", msg.Sender)
		return
	}
	m, ok := o.registry.Get(msg.ConversationID)
	if !ok {
		o.logger.Debug("orchestrator: unknown conversation id", "conversation_id", msg.ConversationID)
		return
	}
	if m.State.IsTerminal() {
		return
	}

	if msg.Performative == masfro.Failure || msg.Performative == masfro.Refuse {
		o.registry.Transition(m.ID, masfro.StateFailed, msg.Content.Error)
		return
	}
	if msg.Performative != masfro.Inform {
		return
	}

	switch msg.Content.InfoType {
	case "scout_report_batch":
		m.Results["scout"] = msg.Content.Data
		o.advanceAfterScout(m)
	case "flood_data_batch":
		m.Results["flood"] = msg.Content.Data
		o.advanceAfterFlood(m)
	case "risk_update_result":
		m.Results["hazard"] = msg.Content.Data
		o.advanceAfterHazard(m)
	case "location_risk_result":
		m.Results["map_risk"] = msg.Content.Data
		o.registry.Transition(m.ID, masfro.StateCompleted, "")
	case "route_result":
		m.Results["route"] = msg.Content.Data
		o.registry.Transition(m.ID, masfro.StateCompleted, "")
	case "distress_call_result":
		m.Results["evacuation"] = msg.Content.Data
		o.registry.Transition(m.ID, masfro.StateCompleted, "")
	}
}

// StartMission registers and begins a mission (the entry point used by
// the HTTP gateway and by interpret_request).
func (o *Orchestrator) StartMission(mtype masfro.MissionType, params map[string]any) *masfro.Mission {
	m := o.registry.Create(mtype, params, o.timeoutFor(mtype))
	o.beginPhase(m)
	return m
}

func (o *Orchestrator) timeoutFor(mtype masfro.MissionType) time.Duration {
	switch mtype {
	case masfro.MissionAssessRisk:
		if o.cfg.AssessRiskTimeout > 0 {
			return o.cfg.AssessRiskTimeout
		}
	case masfro.MissionCoordinatedEvac:
		if o.cfg.CoordinatedEvacuationTimeout > 0 {
			return o.cfg.CoordinatedEvacuationTimeout
		}
	case masfro.MissionRouteCalculation:
		if o.cfg.RouteCalculationTimeout > 0 {
			return o.cfg.RouteCalculationTimeout
		}
	case masfro.MissionCascadeRiskUpdate:
		if o.cfg.CascadeRiskUpdateTimeout > 0 {
			return o.cfg.CascadeRiskUpdateTimeout
		}
	}
	return o.cfg.DefaultTimeout
}

func (o *Orchestrator) beginPhase(m *masfro.Mission) {
	switch m.Type {
	case masfro.MissionAssessRisk:
		if hasLocation(m.Params) {
			o.registry.Transition(m.ID, masfro.StateAwaitingScout, "")
			o.request(o.scoutID, "collect_reports", nil, m.ID)
		} else {
			o.registry.Transition(m.ID, masfro.StateAwaitingFlood, "")
			o.request(o.collectorID, "collect_data", nil, m.ID)
		}
	case masfro.MissionCoordinatedEvac:
		o.registry.Transition(m.ID, masfro.StateAwaitingEvacuation, "")
		o.request(o.evacID, "handle_distress_call", m.Params, m.ID)
	case masfro.MissionRouteCalculation:
		o.registry.Transition(m.ID, masfro.StateAwaitingRouting, "")
		o.request(o.routingID, "calculate_route", m.Params, m.ID)
	case masfro.MissionCascadeRiskUpdate:
		o.registry.Transition(m.ID, masfro.StateAwaitingFlood, "")
		o.request(o.collectorID, "collect_data", nil, m.ID)
	}
}

func (o *Orchestrator) advanceAfterScout(m *masfro.Mission) {
	o.registry.Transition(m.ID, masfro.StateAwaitingFlood, "")
	o.request(o.collectorID, "collect_data", nil, m.ID)
}

func (o *Orchestrator) advanceAfterFlood(m *masfro.Mission) {
	switch m.Type {
	case masfro.MissionAssessRisk, masfro.MissionCascadeRiskUpdate:
		o.registry.Transition(m.ID, masfro.StateAwaitingHazard, "")
		o.request(o.hazardID, "process_and_update", nil, m.ID)
	}
}

func (o *Orchestrator) advanceAfterHazard(m *masfro.Mission) {
	switch m.Type {
	case masfro.MissionCascadeRiskUpdate:
		o.registry.Transition(m.ID, masfro.StateCompleted, "")
	case masfro.MissionAssessRisk:
		o.registry.Transition(m.ID, masfro.StateAwaitingRiskQuery, "")
		data := map[string]any{}
		if lat, ok := m.Params["lat"].(float64); ok {
			data["lat"] = lat
		}
		if lon, ok := m.Params["lon"].(float64); ok {
			data["lon"] = lon
		}
		o.request(o.hazardID, "query_risk_at_location", data, m.ID)
	}
}

func (o *Orchestrator) request(receiver, action string, data map[string]any, conversationID string) {
	msg := masfro.NewMessage(masfro.Request, o.id, receiver, masfro.Content{Action: action, Data: data})
	msg.ConversationID = conversationID
	o.send(msg)
}

func hasLocation(params map[string]any) bool {
	_, latOK := params["lat"].(float64)
	_, lonOK := params["lon"].(float64)
	return latOK && lonOK
}

// GetMission looks up a mission for the HTTP gateway.
func (o *Orchestrator) GetMission(id string) (*masfro.Mission, bool) {
	return o.registry.Get(id)
}

// --- natural-language interpretation (spec.md §4.11) ---

type interpretedRequest struct {
	MissionType string         `json:"mission_type"`
	Params      map[string]any `json:"params"`
	Reasoning   string         `json:"reasoning"`
}

const interpretSystemPrompt = `You are the flood-response assistant for a road-network coordination system.
Given the user's message, reply with strict JSON only, of the form:
{"mission_type": "assess_risk"|"coordinated_evacuation"|"route_calculation"|"cascade_risk_update"|"off_topic", "params": {...}, "reasoning": "..."}
Reject anything unrelated to flooding, routing, or evacuation with mission_type "off_topic".`

// InterpretRequest implements interpret_request: translates one chat
// turn into a mission and starts it, using a bounded per-session
// history. Off-topic messages return (nil, "off_topic", nil).
func (o *Orchestrator) InterpretRequest(ctx context.Context, sessionID, userMessage string) (*masfro.Mission, string, error) {
	if o.facade == nil {
		return nil, "", masfro.NewAgentCommunicationError("no LLM facade configured for chat interpretation")
	}

	history := o.sessionHistory(sessionID)
	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: "system", Content: interpretSystemPrompt})
	messages = append(messages, history...)
	messages = append(messages, llm.Message{Role: "user", Content: userMessage})

	raw := o.facade.TextChatMulti(ctx, messages)
	var parsed interpretedRequest
	if raw == "" || !decodeJSONLoose(raw, &parsed) {
		return nil, "off_topic", masfro.NewAgentCommunicationError("LLM did not return a parseable mission request")
	}

	o.appendHistory(sessionID, llm.Message{Role: "user", Content: userMessage})
	o.appendHistory(sessionID, llm.Message{Role: "assistant", Content: raw})

	if parsed.MissionType == "" || parsed.MissionType == "off_topic" {
		return nil, "off_topic", nil
	}

	params := repairParams(parsed.Params, masfro.MissionType(parsed.MissionType), o.cfg.CenterLat, o.cfg.CenterLon)
	mission := o.StartMission(masfro.MissionType(parsed.MissionType), params)
	return mission, parsed.Reasoning, nil
}

func (o *Orchestrator) sessionHistory(sessionID string) []llm.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]llm.Message(nil), o.sessions[sessionID]...)
}

func (o *Orchestrator) appendHistory(sessionID string, msg llm.Message) {
	o.mu.Lock()
	defer o.mu.Unlock()
	h := append(o.sessions[sessionID], msg)
	max := o.cfg.MaxHistoryTurns
	if max <= 0 {
		max = 20
	}
	if len(h) > max {
		h = h[len(h)-max:]
	}
	o.sessions[sessionID] = h
}

// decodeJSONLoose extracts the first {...} span from raw (LLM replies
// often wrap JSON in prose or code fences) and unmarshals it into out.
func decodeJSONLoose(raw string, out any) bool {
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start < 0 || end <= start {
		return false
	}
	return json.Unmarshal([]byte(raw[start:end+1]), out) == nil
}

// repairParams applies spec.md §4.11's LLM-mistake repairs: stringified
// or nested coordinate arrays, start==end fallback to origin/destination,
// missing start/end defaulting to the city center, and the same coercion
// for user_location on evacuation missions.
func repairParams(params map[string]any, mtype masfro.MissionType, centerLat, centerLon float64) map[string]any {
	if params == nil {
		params = make(map[string]any)
	}

	if mtype == masfro.MissionCoordinatedEvac {
		if lat, lon, ok := coerceCoordPair(params["user_location"]); ok {
			params["lat"], params["lon"] = lat, lon
		}
		if _, ok := params["lat"].(float64); !ok {
			params["lat"], params["lon"] = centerLat, centerLon
		}
		return params
	}

	startLat, startLon, startOK := extractPair(params, "start")
	endLat, endLon, endOK := extractPair(params, "end")

	if startOK && endOK && startLat == endLat && startLon == endLon {
		if lat, lon, ok := extractPair(params, "origin"); ok {
			startLat, startLon, startOK = lat, lon, true
		}
		if lat, lon, ok := extractPair(params, "destination"); ok {
			endLat, endLon, endOK = lat, lon, true
		}
	}
	if !startOK {
		startLat, startLon = centerLat, centerLon
	}
	if !endOK {
		endLat, endLon = centerLat, centerLon
	}

	params["start_lat"], params["start_lon"] = startLat, startLon
	params["end_lat"], params["end_lon"] = endLat, endLon
	return params
}

// extractPair reads params[key] as a coordinate, tolerating a nested
// array of pairs (selecting index 0 for "start", -1 for "end").
func extractPair(params map[string]any, key string) (lat, lon float64, ok bool) {
	v, present := params[key]
	if !present {
		return 0, 0, false
	}
	if arr, isArr := v.([]any); isArr && len(arr) > 0 {
		if _, isNested := arr[0].([]any); isNested {
			idx := 0
			if key == "end" {
				idx = len(arr) - 1
			}
			v = arr[idx]
		}
	}
	return coerceCoordPair(v)
}

// coerceCoordPair accepts [lat, lon] as numbers or as strings.
func coerceCoordPair(v any) (lat, lon float64, ok bool) {
	arr, isArr := v.([]any)
	if !isArr || len(arr) != 2 {
		return 0, 0, false
	}
	lat, latOK := coerceFloat(arr[0])
	lon, lonOK := coerceFloat(arr[1])
	return lat, lon, latOK && lonOK
}

func coerceFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// --- mission summary (spec.md §4.11) ---

// SummarizeMission implements summarize_mission: an LLM summary of the
// mission's result tree, falling back to a deterministic status string.
func (o *Orchestrator) SummarizeMission(ctx context.Context, id string) (string, bool) {
	m, ok := o.registry.Get(id)
	if !ok {
		return "", false
	}

	if o.facade != nil {
		resultsJSON, err := json.Marshal(m.Results)
		if err == nil {
			prompt := fmt.Sprintf(
				"Summarize this flood-response mission in at most 3 sentences for a human operator.\nType: %s\nState: %s\nResults: %s",
				m.Type, m.State, string(resultsJSON),
			)
			if summary := o.facade.TextChat(ctx, prompt); strings.TrimSpace(summary) != "" {
				return strings.TrimSpace(summary), true
			}
		}
	}

	return fallbackSummary(m), true
}

func fallbackSummary(m *masfro.Mission) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Mission %s is %s, started %s.", m.Type, m.State, humanize.Time(m.CreatedAt))
	if m.Error != "" {
		fmt.Fprintf(&b, " Error: %s.", m.Error)
	}
	if mapRisk, ok := m.Results["map_risk"].(map[string]any); ok {
		if level, ok := mapRisk["risk_level"].(string); ok {
			fmt.Fprintf(&b, " Risk level: %s.", level)
		}
	}
	return b.String()
}

var _ masfro.Agent = (*Orchestrator)(nil)

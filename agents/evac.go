package agents

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	masfro "github.com/PolySpade/masfro"
	"github.com/PolySpade/masfro/llm"
)

// distressClassification is the LLM-extracted context of a distress
// call, or the spec.md §4.10 default when the LLM is unavailable.
type distressClassification struct {
	Urgency      string // critical, high, medium, low
	Injury       bool
	Children     bool
	Elderly      bool
	Mobility     bool
	LocationName string
}

func defaultDistressClassification() distressClassification {
	return distressClassification{Urgency: "medium"}
}

// distressRecord is one entry of the bounded distress history.
type distressRecord struct {
	At        time.Time
	Lat, Lon  float64
	Message   string
	Urgency   string
	CenterName string
	Status    string
}

const evacuationInstructionsFallback = "Pumunta sa pinakamalapit na evacuation center. Mag-ingat sa malalim na baha at malakas na agos."

// EvacConfig configures C10.
type EvacConfig struct {
	ForceSafestMode  bool
	MaxDistressItems int
}

// Evac is the Evacuation Manager Agent (C10): distress-call triage,
// routing-agent delegation, and the user-feedback-to-scout-report
// feedback loop. Grounded on spec.md §4.10 and
// original_source/.../evacuation_manager_agent.py.
type Evac struct {
	base

	routingID string
	hazardID  string
	facade    *llm.Facade
	cfg       EvacConfig

	mu      sync.Mutex
	history []distressRecord

	pending map[string]pendingDistress
}

type pendingDistress struct {
	replyTo        string
	conversationID string
	lat, lon       float64
	message        string
	classification distressClassification
}

func NewEvac(id, routingID, hazardID string, bus *masfro.MessageBus, facade *llm.Facade, cfg EvacConfig, logger *slog.Logger) *Evac {
	return &Evac{
		base:      newBase(id, bus, logger),
		routingID: routingID,
		hazardID:  hazardID,
		facade:    facade,
		cfg:       cfg,
		pending:   make(map[string]pendingDistress),
	}
}

func (e *Evac) Step(ctx context.Context) {
	e.drain(ctx, func(msg masfro.ACLMessage) {
		switch {
		case msg.Performative == masfro.Request && msg.Content.Action == "handle_distress_call":
			e.startDistressCall(ctx, msg)
		case msg.Performative == masfro.Request && msg.Content.Action == "collect_feedback":
			e.handleFeedback(msg)
		case msg.Performative == masfro.Inform && msg.Content.InfoType == "evacuation_center_result":
			e.finishDistressCall(ctx, msg)
		}
	})
}

// startDistressCall runs steps 1-3 of spec.md §4.10 and delegates to the
// routing agent; finishDistressCall (triggered by its reply) runs step 4
// and records the history.
func (e *Evac) startDistressCall(ctx context.Context, msg masfro.ACLMessage) {
	lat, _ := msg.Content.Data["lat"].(float64)
	lon, _ := msg.Content.Data["lon"].(float64)
	message, _ := msg.Content.Data["message"].(string)

	classification := e.classifyDistress(ctx, message)

	mode := string(masfro.ModeBalanced)
	if e.cfg.ForceSafestMode {
		mode = string(masfro.ModeSafest)
	}

	conversationID := msg.ConversationID
	if conversationID == "" {
		conversationID = masfro.NewID()
	}

	e.mu.Lock()
	e.pending[conversationID] = pendingDistress{
		replyTo: msg.Sender, conversationID: msg.ConversationID,
		lat: lat, lon: lon, message: message, classification: classification,
	}
	e.mu.Unlock()

	req := masfro.NewMessage(masfro.Request, e.id, e.routingID, masfro.Content{
		Action: "find_evacuation_center",
		Data:   map[string]any{"lat": lat, "lon": lon, "mode": mode},
	})
	req.ConversationID = conversationID
	e.send(req)
}

func (e *Evac) classifyDistress(ctx context.Context, message string) distressClassification {
	if e.facade == nil {
		return defaultDistressClassification()
	}
	analysis, ok := e.facade.AnalyzeTextReport(ctx, message)
	if !ok {
		return defaultDistressClassification()
	}
	urgency := strings.ToLower(analysis.Severity)
	switch urgency {
	case "critical", "high", "medium", "low":
	default:
		urgency = "medium"
	}
	loc := ""
	if len(analysis.Locations) > 0 {
		loc = analysis.Locations[0]
	}
	return distressClassification{Urgency: urgency, LocationName: loc}
}

func (e *Evac) finishDistressCall(ctx context.Context, msg masfro.ACLMessage) {
	e.mu.Lock()
	pd, ok := e.pending[msg.ConversationID]
	if ok {
		delete(e.pending, msg.ConversationID)
	}
	e.mu.Unlock()
	if !ok {
		return
	}

	found, _ := msg.Content.Data["found"].(bool)
	status := "no_center_found"
	centerName := ""
	data := map[string]any{
		"urgency": pd.classification.Urgency,
	}
	if found {
		status = "routed"
		centerName, _ = msg.Content.Data["name"].(string)
		data["center"] = msg.Content.Data
		data["instructions"] = e.generateInstructions(ctx, pd.classification)
	} else {
		data["instructions"] = evacuationInstructionsFallback
	}
	data["status"] = status

	e.mu.Lock()
	e.history = append(e.history, distressRecord{
		At: masfro.Now(), Lat: pd.lat, Lon: pd.lon, Message: pd.message,
		Urgency: pd.classification.Urgency, CenterName: centerName, Status: status,
	})
	if e.cfg.MaxDistressItems > 0 && len(e.history) > e.cfg.MaxDistressItems {
		e.history = e.history[len(e.history)-e.cfg.MaxDistressItems:]
	}
	e.mu.Unlock()

	if pd.replyTo != "" {
		reply := masfro.NewMessage(masfro.Inform, e.id, pd.replyTo, masfro.Content{InfoType: "distress_call_result", Data: data})
		reply.ConversationID = pd.conversationID
		e.send(reply)
	}
}

func (e *Evac) generateInstructions(ctx context.Context, c distressClassification) string {
	if e.facade == nil {
		return evacuationInstructionsFallback
	}
	prompt := "Generate 2-3 sentences of evacuation instructions in simple, clear English with Filipino terms where helpful. Urgency: " + c.Urgency
	instructions := e.facade.TextChat(ctx, prompt)
	if len(strings.TrimSpace(instructions)) > 10 {
		return strings.TrimSpace(instructions)
	}
	return evacuationInstructionsFallback
}

// handleFeedback implements REQUEST{collect_feedback}: validates the
// feedback type, synthesizes a scout report at the type-dependent
// confidence of spec.md §4.10, and forwards it to the hazard agent.
func (e *Evac) handleFeedback(msg masfro.ACLMessage) {
	feedbackType, _ := msg.Content.Data["feedback_type"].(string)
	lat, _ := msg.Content.Data["lat"].(float64)
	lon, _ := msg.Content.Data["lon"].(float64)
	hasPhoto, _ := msg.Content.Data["has_photo"].(bool)

	reportType, confidence, valid := feedbackToReport(feedbackType, hasPhoto)
	if !valid {
		e.send(masfro.ReplyTo(msg, masfro.Failure, e.id, masfro.Content{Error: "invalid feedback_type"}))
		return
	}

	rec := masfro.ObservationRecord{
		Kind:       masfro.ObservationScoutReport,
		Timestamp:  masfro.Now(),
		Source:     "user_feedback",
		Lat:        lat,
		Lon:        lon,
		HasCoords:  lat != 0 || lon != 0,
		Severity:   feedbackSeverity(reportType),
		Confidence: confidence,
		ReportType: reportType,
	}
	e.inform(e.hazardID, "scout_report_batch", map[string]any{
		"reports": []masfro.ObservationRecord{rec},
		"count":   1,
	})

	e.send(masfro.ReplyTo(msg, masfro.Inform, e.id, masfro.Content{
		InfoType: "feedback_result",
		Data:     map[string]any{"accepted": true},
	}))
}

func feedbackToReport(feedbackType string, hasPhoto bool) (masfro.ReportType, float64, bool) {
	switch feedbackType {
	case "blocked":
		if hasPhoto {
			return masfro.ReportBlocked, 0.9, true
		}
		return masfro.ReportBlocked, 0.8, true
	case "flooded":
		return masfro.ReportFlooded, 0.7, true
	case "clear":
		return masfro.ReportClear, 0.6, true
	case "traffic":
		return masfro.ReportTraffic, 0.5, true
	default:
		return "", 0, false
	}
}

func feedbackSeverity(reportType masfro.ReportType) float64 {
	switch reportType {
	case masfro.ReportBlocked, masfro.ReportFlooded:
		return 0.7
	case masfro.ReportTraffic:
		return 0.3
	default:
		return 0
	}
}

var _ masfro.Agent = (*Evac)(nil)

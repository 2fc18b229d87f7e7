package agents

import (
	"context"
	"testing"

	masfro "github.com/PolySpade/masfro"
)

func newTestEvac(t *testing.T, cfg EvacConfig) (*Evac, *masfro.MessageBus) {
	t.Helper()
	bus := masfro.NewMessageBus(nil)
	for _, id := range []string{"evac", "routing", "hazard", "caller"} {
		if err := bus.Register(id); err != nil {
			t.Fatalf("register %s: %v", id, err)
		}
	}
	return NewEvac("evac", "routing", "hazard", bus, nil, cfg, nil), bus
}

// TestDistressCallRoundTripReachesCaller covers the full two-hop
// distress pipeline: startDistressCall delegates to the routing agent,
// and finishDistressCall answers the original caller once routing replies.
func TestDistressCallRoundTripReachesCaller(t *testing.T) {
	e, bus := newTestEvac(t, EvacConfig{ForceSafestMode: true})

	call := masfro.NewMessage(masfro.Request, "caller", "evac", masfro.Content{
		Action: "handle_distress_call",
		Data:   map[string]any{"lat": 14.65, "lon": 121.10, "message": "trapped, water rising"},
	})
	call.ConversationID = masfro.NewID()
	if err := bus.Send(call); err != nil {
		t.Fatalf("send distress call: %v", err)
	}
	e.Step(context.Background())

	routingReq, ok, err := bus.Receive(context.Background(), "routing", false, 0)
	if err != nil || !ok {
		t.Fatalf("expected a find_evacuation_center request, got ok=%v err=%v", ok, err)
	}
	if routingReq.Content.Action != "find_evacuation_center" || routingReq.Content.Data["mode"] != string(masfro.ModeSafest) {
		t.Fatalf("unexpected routing request: %+v", routingReq)
	}

	found := masfro.ReplyTo(routingReq, masfro.Inform, "routing", masfro.Content{
		InfoType: "evacuation_center_result",
		Data:     map[string]any{"found": true, "name": "Marikina Elementary School"},
	})
	if err := bus.Send(found); err != nil {
		t.Fatalf("send routing reply: %v", err)
	}
	e.Step(context.Background())

	result, ok, err := bus.Receive(context.Background(), "caller", false, 0)
	if err != nil || !ok {
		t.Fatalf("expected a distress_call_result reply, got ok=%v err=%v", ok, err)
	}
	if result.Content.Data["status"] != "routed" {
		t.Fatalf("expected status=routed, got %+v", result.Content.Data)
	}
	if len(e.history) != 1 || e.history[0].CenterName != "Marikina Elementary School" {
		t.Fatalf("expected a recorded history entry, got %+v", e.history)
	}
}

func TestFinishDistressCallFallsBackWhenNoCenterFound(t *testing.T) {
	e, bus := newTestEvac(t, EvacConfig{})

	call := masfro.NewMessage(masfro.Request, "caller", "evac", masfro.Content{
		Action: "handle_distress_call",
		Data:   map[string]any{"lat": 14.65, "lon": 121.10, "message": "help"},
	})
	call.ConversationID = masfro.NewID()
	_ = bus.Send(call)
	e.Step(context.Background())

	routingReq, _, _ := bus.Receive(context.Background(), "routing", false, 0)
	notFound := masfro.ReplyTo(routingReq, masfro.Inform, "routing", masfro.Content{
		InfoType: "evacuation_center_result",
		Data:     map[string]any{"found": false},
	})
	_ = bus.Send(notFound)
	e.Step(context.Background())

	result, ok, _ := bus.Receive(context.Background(), "caller", false, 0)
	if !ok {
		t.Fatal("expected a reply even when no center is found")
	}
	if result.Content.Data["status"] != "no_center_found" {
		t.Fatalf("expected status=no_center_found, got %+v", result.Content.Data)
	}
	if result.Content.Data["instructions"] != evacuationInstructionsFallback {
		t.Fatalf("expected the fallback instructions, got %v", result.Content.Data["instructions"])
	}
}

func TestHandleFeedbackValidTypesForwardToHazard(t *testing.T) {
	e, bus := newTestEvac(t, EvacConfig{})

	cases := []struct {
		feedbackType string
		hasPhoto     bool
		wantConf     float64
	}{
		{"blocked", true, 0.9},
		{"blocked", false, 0.8},
		{"flooded", false, 0.7},
		{"clear", false, 0.6},
		{"traffic", false, 0.5},
	}
	for _, c := range cases {
		msg := masfro.NewMessage(masfro.Request, "caller", "evac", masfro.Content{
			Action: "collect_feedback",
			Data:   map[string]any{"feedback_type": c.feedbackType, "has_photo": c.hasPhoto, "lat": 14.6, "lon": 121.1},
		})
		e.handleFeedback(msg)

		hazardMsg, ok, _ := bus.Receive(context.Background(), "hazard", false, 0)
		if !ok {
			t.Fatalf("%s: expected a forwarded scout_report_batch", c.feedbackType)
		}
		reports, _ := hazardMsg.Content.Data["reports"].([]masfro.ObservationRecord)
		if len(reports) != 1 || reports[0].Confidence != c.wantConf {
			t.Fatalf("%s: expected confidence %v, got %+v", c.feedbackType, c.wantConf, reports)
		}

		callerMsg, ok, _ := bus.Receive(context.Background(), "caller", false, 0)
		if !ok || callerMsg.Performative != masfro.Inform {
			t.Fatalf("%s: expected an accepted feedback_result", c.feedbackType)
		}
	}
}

func TestHandleFeedbackRejectsUnknownType(t *testing.T) {
	e, bus := newTestEvac(t, EvacConfig{})

	msg := masfro.NewMessage(masfro.Request, "caller", "evac", masfro.Content{
		Action: "collect_feedback",
		Data:   map[string]any{"feedback_type": "nonsense"},
	})
	e.handleFeedback(msg)

	reply, ok, _ := bus.Receive(context.Background(), "caller", false, 0)
	if !ok || reply.Performative != masfro.Failure {
		t.Fatalf("expected a FAILURE reply for an invalid feedback type, got ok=%v reply=%+v", ok, reply)
	}
}

package llm

import (
	"context"
	"errors"
	"testing"
	"time"
)

type stubProvider struct {
	name     string
	response string
	err      error
	calls    int
}

func (s *stubProvider) Name() string  { return s.name }
func (s *stubProvider) Model() string { return "stub-model" }
func (s *stubProvider) Chat(ctx context.Context, messages []Message) (ChatResult, error) {
	s.calls++
	if s.err != nil {
		return ChatResult{}, s.err
	}
	return ChatResult{Content: s.response}, nil
}

func TestTextChatReturnsEmptyOnFailureNeverPanics(t *testing.T) {
	primary := &stubProvider{name: "primary", err: errors.New("boom")}
	f := NewFacade(primary, nil, time.Minute, time.Minute, 10)
	f.maxRetries = 1

	got := f.TextChat(context.Background(), "hello")
	if got != "" {
		t.Fatalf("expected empty string on failure, got %q", got)
	}
}

func TestTextChatFallsBackToSecondaryProvider(t *testing.T) {
	primary := &stubProvider{name: "primary", err: errors.New("down")}
	fallback := &stubProvider{name: "fallback", response: "fallback answer"}
	f := NewFacade(primary, fallback, time.Minute, time.Minute, 10)
	f.maxRetries = 1

	got := f.TextChat(context.Background(), "hello")
	if got != "fallback answer" {
		t.Fatalf("expected fallback answer, got %q", got)
	}
}

func TestTextChatCachesByPromptHash(t *testing.T) {
	primary := &stubProvider{name: "primary", response: "cached answer"}
	f := NewFacade(primary, nil, time.Minute, time.Minute, 10)

	got1 := f.TextChat(context.Background(), "same prompt")
	got2 := f.TextChat(context.Background(), "same prompt")
	if got1 != got2 || got1 != "cached answer" {
		t.Fatalf("expected consistent cached answer, got %q then %q", got1, got2)
	}
	if primary.calls != 1 {
		t.Fatalf("expected provider called once due to caching, got %d calls", primary.calls)
	}
}

func TestAnalyzeFloodImageFallsBackToSimulatedAnalyzer(t *testing.T) {
	primary := &stubProvider{name: "primary", err: errors.New("unavailable")}
	f := NewFacade(primary, nil, time.Minute, time.Minute, 10)
	f.maxRetries = 1

	out, ok := f.AnalyzeFloodImage(context.Background(), "flood_depth_1.2m_severe.jpg", true)
	if !ok {
		t.Fatal("expected simulated fallback to succeed")
	}
	if out.Source != "simulated" {
		t.Fatalf("expected simulated source, got %q", out.Source)
	}
}

func TestAnalyzeFloodImageNoFallbackReturnsFalse(t *testing.T) {
	primary := &stubProvider{name: "primary", err: errors.New("unavailable")}
	f := NewFacade(primary, nil, time.Minute, time.Minute, 10)
	f.maxRetries = 1

	_, ok := f.AnalyzeFloodImage(context.Background(), "photo.jpg", false)
	if ok {
		t.Fatal("expected no result when simulated fallback is disabled")
	}
}

func TestGetHealthCachesAcrossCalls(t *testing.T) {
	primary := &stubProvider{name: "primary", response: "pong"}
	f := NewFacade(primary, nil, time.Hour, time.Minute, 10)

	h1 := f.GetHealth(context.Background())
	h2 := f.GetHealth(context.Background())
	if !h1.Available || !h2.Available {
		t.Fatal("expected available health")
	}
	if primary.calls != 1 {
		t.Fatalf("expected a single probe call due to health caching, got %d", primary.calls)
	}
}

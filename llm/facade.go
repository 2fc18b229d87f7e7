package llm

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Facade is the LLM Service Facade (C4). It fronts a primary provider
// (normally Gemini, which alone carries vision) and an optional fallback
// text-only provider, adding a health cache, a response cache, retry, and
// deterministic fallbacks so that callers never observe an LLM exception.
type Facade struct {
	primary  Provider
	fallback Provider

	healthMu       sync.Mutex
	healthCache    *Health
	healthCachedAt time.Time
	healthTTL      time.Duration

	responses *responseCache

	maxRetries int
}

// NewFacade builds a Facade. fallback may be nil.
func NewFacade(primary, fallback Provider, healthTTL, responseTTL time.Duration, responseCacheMax int) *Facade {
	return &Facade{
		primary:    primary,
		fallback:   fallback,
		healthTTL:  healthTTL,
		responses:  newResponseCache(responseTTL, responseCacheMax),
		maxRetries: 3,
	}
}

// IsAvailable reports whether the primary (or fallback) provider answered
// a cheap probe within the last healthTTL.
func (f *Facade) IsAvailable(ctx context.Context) bool {
	h := f.GetHealth(ctx)
	return h.Available
}

// GetHealth returns cached health, refreshing it if the cache is stale.
func (f *Facade) GetHealth(ctx context.Context) Health {
	f.healthMu.Lock()
	defer f.healthMu.Unlock()

	if f.healthCache != nil && time.Since(f.healthCachedAt) < f.healthTTL {
		h := *f.healthCache
		h.CacheSize = f.responses.size()
		return h
	}

	available := f.probe(ctx)
	models := []string{f.primary.Model()}
	if f.fallback != nil {
		models = append(models, f.fallback.Model())
	}

	h := Health{
		Available:     available,
		Models:        models,
		CacheSize:     f.responses.size(),
		LastCheckedAt: time.Now().UTC().Format(time.RFC3339),
	}
	f.healthCache = &h
	f.healthCachedAt = time.Now()
	return h
}

func (f *Facade) probe(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := f.primary.Chat(probeCtx, []Message{{Role: "user", Content: "ping"}})
	if err == nil {
		return true
	}
	if f.fallback == nil {
		return false
	}
	_, err = f.fallback.Chat(probeCtx, []Message{{Role: "user", Content: "ping"}})
	return err == nil
}

// TextChat answers a single-turn prompt. Returns "" on any provider
// failure rather than propagating the error — callers must never crash on
// LLM failure (spec.md §4.4).
func (f *Facade) TextChat(ctx context.Context, prompt string) string {
	return f.TextChatMulti(ctx, []Message{{Role: "user", Content: prompt}})
}

// TextChatMulti answers a multi-turn conversation.
func (f *Facade) TextChatMulti(ctx context.Context, messages []Message) string {
	key := cacheKeyForMessages(messages)
	if cached, ok := f.responses.get(key); ok {
		return cached.(string)
	}

	result, err := f.chatWithRetry(ctx, messages)
	if err != nil {
		return ""
	}
	f.responses.set(key, result.Content)
	return result.Content
}

// AnalyzeTextReport extracts a structured hazard report from free text, or
// a zero-value TextReportAnalysis if the LLM is unavailable or the
// response can't be parsed.
func (f *Facade) AnalyzeTextReport(ctx context.Context, text string) (TextReportAnalysis, bool) {
	prompt := fmt.Sprintf(`Extract hazard information from this report as JSON with keys
hazard_type, severity, locations (array), confidence (0-1).
Report: %q`, text)

	raw := f.TextChat(ctx, prompt)
	var out TextReportAnalysis
	if !decodeJSON(raw, &out) {
		return TextReportAnalysis{}, false
	}
	return out, true
}

// AnalyzeFloodImage analyzes a flood photo, falling back to a deterministic
// filename-pattern analyzer (see Glossary: Simulated analyzer) when the LLM
// is unavailable.
func (f *Facade) AnalyzeFloodImage(ctx context.Context, path string, allowSimulatedFallback bool) (FloodImageAnalysis, bool) {
	info, statErr := os.Stat(path)
	var key string
	if statErr == nil {
		key = fmt.Sprintf("img:%s:%d", path, info.ModTime().UnixNano())
	} else {
		key = "img:" + path
	}
	if cached, ok := f.responses.get(key); ok {
		return cached.(FloodImageAnalysis), true
	}

	if f.IsAvailable(ctx) {
		prompt := `Analyze this flood photo. Respond as JSON with keys
estimated_depth_m (number), risk_score (0-1), vehicles_passable (array of
strings), visual_indicators (array of strings), confidence (0-1).`
		msgs := []Message{{Role: "user", Content: prompt, ImagePath: path}}
		result, err := f.chatWithRetry(ctx, msgs)
		if err == nil {
			var out FloodImageAnalysis
			if decodeJSON(result.Content, &out) {
				out.Source = "llm"
				f.responses.set(key, out)
				return out, true
			}
		}
	}

	if !allowSimulatedFallback {
		return FloodImageAnalysis{}, false
	}
	out := simulatedImageAnalysis(path)
	f.responses.set(key, out)
	return out, true
}

// ParsePagasaAdvisory extracts a structured weather warning from advisory
// text, or a zero-value result if unparseable.
func (f *Facade) ParsePagasaAdvisory(ctx context.Context, text string) (PagasaAdvisory, bool) {
	prompt := fmt.Sprintf(`Extract warning information from this PAGASA advisory as
JSON with keys warning_color (yellow/orange/red), advisory_type
(rainfall/flood/typhoon), affected_areas (array), headline (string).
Advisory: %q`, text)

	raw := f.TextChat(ctx, prompt)
	var out PagasaAdvisory
	if !decodeJSON(raw, &out) {
		return PagasaAdvisory{}, false
	}
	return out, true
}

func (f *Facade) chatWithRetry(ctx context.Context, messages []Message) (ChatResult, error) {
	return backoff.Retry(ctx, func() (ChatResult, error) {
		result, err := f.primary.Chat(ctx, messages)
		if err == nil {
			return result, nil
		}
		if f.fallback != nil {
			if fbResult, fbErr := f.fallback.Chat(ctx, messages); fbErr == nil {
				return fbResult, nil
			}
		}
		return ChatResult{}, err
	}, backoff.WithMaxTries(uint(f.maxRetries)), backoff.WithBackOff(backoff.NewExponentialBackOff()))
}

// decodeJSON runs extractJSON then unmarshals into out. Returns false (and
// leaves out untouched) on any failure — callers treat that as "no result".
func decodeJSON(raw string, out any) bool {
	candidate := extractJSON(raw)
	if candidate == "" {
		return false
	}
	return json.Unmarshal([]byte(candidate), out) == nil
}

func cacheKeyForMessages(messages []Message) string {
	var sb strings.Builder
	for _, m := range messages {
		sb.WriteString(m.Role)
		sb.WriteByte(0)
		sb.WriteString(m.Content)
		sb.WriteByte(0)
	}
	sum := md5.Sum([]byte(sb.String()))
	return "chat:" + hex.EncodeToString(sum[:])
}

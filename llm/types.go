// Package llm implements the LLM Service Facade (C4): a single object
// fronting a text+vision chat provider with health caching, response
// caching, tolerant JSON extraction, and graceful degradation to
// deterministic fallbacks on any provider failure.
package llm

import "context"

// Message is one turn in a chat-style conversation.
type Message struct {
	Role        string // "system", "user", "assistant"
	Content     string
	ImagePath   string // non-empty for a single inline image attachment
	ImageData   []byte
	ImageMIME   string
}

// ChatResult is a provider's raw response to a Chat call.
type ChatResult struct {
	Content      string
	InputTokens  int
	OutputTokens int
}

// Provider is the minimal surface the facade needs from an LLM backend.
// Both Gemini and an OpenAI-compatible backend implement it.
type Provider interface {
	Name() string
	Model() string
	Chat(ctx context.Context, messages []Message) (ChatResult, error)
}

// FloodImageAnalysis is the structured result of analyze_flood_image.
type FloodImageAnalysis struct {
	EstimatedDepthM   float64  `json:"estimated_depth_m"`
	RiskScore         float64  `json:"risk_score"`
	VehiclesPassable  []string `json:"vehicles_passable"`
	VisualIndicators  []string `json:"visual_indicators"`
	Confidence        float64  `json:"confidence"`
	Source            string   `json:"source"` // "llm" or "simulated"
}

// TextReportAnalysis is the structured result of analyze_text_report.
type TextReportAnalysis struct {
	HazardType  string   `json:"hazard_type"`
	Severity    string   `json:"severity"`
	Locations   []string `json:"locations"`
	Confidence  float64  `json:"confidence"`
}

// PagasaAdvisory is the structured result of parse_pagasa_advisory.
type PagasaAdvisory struct {
	WarningColor   string   `json:"warning_color"` // yellow, orange, red
	AdvisoryType   string   `json:"advisory_type"` // rainfall, flood, typhoon
	AffectedAreas  []string `json:"affected_areas"`
	Headline       string   `json:"headline"`
}

// Health is the result of get_health().
type Health struct {
	Available     bool      `json:"available"`
	Models        []string  `json:"models"`
	CacheSize     int       `json:"cache_size"`
	LastCheckedAt string    `json:"last_checked_at"`
}

package llm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/PolySpade/masfro"
)

var geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Gemini implements Provider against the Google Gemini generateContent API.
// Adapted from provider/gemini/gemini.go: tool calling, streaming, and
// embeddings are dropped (the facade only ever needs single-shot text and
// vision chat), the request/response body shape is kept as-is.
type Gemini struct {
	apiKey     string
	model      string
	httpClient *http.Client
}

func NewGemini(apiKey, model string) *Gemini {
	return &Gemini{apiKey: apiKey, model: model, httpClient: &http.Client{}}
}

func (g *Gemini) Name() string  { return "gemini" }
func (g *Gemini) Model() string { return g.model }

func (g *Gemini) Chat(ctx context.Context, messages []Message) (ChatResult, error) {
	body, err := g.buildBody(messages)
	if err != nil {
		return ChatResult{}, masfro.NewAgentCommunicationError("gemini: build body: " + err.Error())
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", geminiBaseURL, g.model, g.apiKey)
	payload, err := json.Marshal(body)
	if err != nil {
		return ChatResult{}, masfro.NewAgentCommunicationError("gemini: marshal body: " + err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(payload)))
	if err != nil {
		return ChatResult{}, masfro.NewAgentCommunicationError("gemini: create request: " + err.Error())
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return ChatResult{}, masfro.NewAgentCommunicationError("gemini: request failed: " + err.Error())
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return ChatResult{}, masfro.NewAgentCommunicationError("gemini: read response: " + err.Error())
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return ChatResult{}, masfro.NewAgentCommunicationError(fmt.Sprintf("gemini: http %d: %s", resp.StatusCode, string(respBody)))
	}

	var parsed geminiResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return ChatResult{}, masfro.NewAgentCommunicationError("gemini: parse response: " + err.Error())
	}

	var content strings.Builder
	if len(parsed.Candidates) > 0 {
		for _, part := range parsed.Candidates[0].Content.Parts {
			if part.Thought {
				continue
			}
			if part.Text != nil {
				content.WriteString(*part.Text)
			}
		}
	}

	result := ChatResult{Content: content.String()}
	if parsed.UsageMetadata != nil {
		result.InputTokens = parsed.UsageMetadata.PromptTokenCount
		result.OutputTokens = parsed.UsageMetadata.CandidatesTokenCount
	}
	return result, nil
}

func (g *Gemini) buildBody(messages []Message) (map[string]any, error) {
	var systemParts []string
	var contents []map[string]any

	for _, m := range messages {
		if m.Role == "system" {
			systemParts = append(systemParts, m.Content)
			continue
		}

		var parts []map[string]any
		if m.Content != "" {
			parts = append(parts, map[string]any{"text": m.Content})
		}

		data := m.ImageData
		mime := m.ImageMIME
		if len(data) == 0 && m.ImagePath != "" {
			raw, err := os.ReadFile(m.ImagePath)
			if err != nil {
				return nil, fmt.Errorf("read image %s: %w", m.ImagePath, err)
			}
			data = raw
			if mime == "" {
				mime = "image/jpeg"
			}
		}
		if len(data) > 0 {
			parts = append(parts, map[string]any{
				"inlineData": map[string]any{
					"mimeType": mime,
					"data":     base64.StdEncoding.EncodeToString(data),
				},
			})
		}
		if len(parts) == 0 {
			parts = append(parts, map[string]any{"text": ""})
		}

		role := "user"
		if m.Role == "assistant" {
			role = "model"
		}
		contents = append(contents, map[string]any{"role": role, "parts": parts})
	}

	body := map[string]any{"contents": contents}
	if len(systemParts) > 0 {
		body["systemInstruction"] = map[string]any{
			"parts": []map[string]any{{"text": strings.Join(systemParts, "\n\n")}},
		}
	}
	body["generationConfig"] = map[string]any{
		"temperature": 0.1,
		"topP":        0.9,
	}
	return body, nil
}

type geminiResponse struct {
	Candidates    []geminiCandidate `json:"candidates"`
	UsageMetadata *geminiUsage      `json:"usageMetadata"`
}

type geminiCandidate struct {
	Content geminiContent `json:"content"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text    *string `json:"text,omitempty"`
	Thought bool    `json:"thought,omitempty"`
}

type geminiUsage struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
}

var _ Provider = (*Gemini)(nil)

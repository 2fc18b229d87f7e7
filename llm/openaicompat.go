package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/PolySpade/masfro"
)

// OpenAICompat implements Provider against any OpenAI chat-completions
// compatible API (OpenAI, Groq, OpenRouter, Ollama, ...). Adapted from
// provider/openaicompat/provider.go: tool calling and streaming are
// dropped, text-only: a Message's image fields are not sent, so a vision
// request through this provider reaches the model as its text prompt only.
type OpenAICompat struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

func NewOpenAICompat(apiKey, model, baseURL string) *OpenAICompat {
	return &OpenAICompat{apiKey: apiKey, model: model, baseURL: baseURL, client: &http.Client{}}
}

func (p *OpenAICompat) Name() string  { return "openaicompat" }
func (p *OpenAICompat) Model() string { return p.model }

func (p *OpenAICompat) Chat(ctx context.Context, messages []Message) (ChatResult, error) {
	body := chatRequest{Model: p.model}
	for _, m := range messages {
		body.Messages = append(body.Messages, chatMessage{Role: m.Role, Content: m.Content})
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return ChatResult{}, masfro.NewAgentCommunicationError("openaicompat: marshal request: " + err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return ChatResult{}, masfro.NewAgentCommunicationError("openaicompat: create request: " + err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return ChatResult{}, masfro.NewAgentCommunicationError("openaicompat: request failed: " + err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return ChatResult{}, masfro.NewAgentCommunicationError(fmt.Sprintf("openaicompat: http %d: %s", resp.StatusCode, string(b)))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return ChatResult{}, masfro.NewAgentCommunicationError("openaicompat: decode response: " + err.Error())
	}

	result := ChatResult{
		InputTokens:  parsed.Usage.PromptTokens,
		OutputTokens: parsed.Usage.CompletionTokens,
	}
	if len(parsed.Choices) > 0 {
		result.Content = parsed.Choices[0].Message.Content
	}
	return result, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

var _ Provider = (*OpenAICompat)(nil)

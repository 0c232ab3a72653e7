package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"CCNLMonitor/internal/config"
	"CCNLMonitor/internal/domain"
	"CCNLMonitor/internal/ports"
)

const answerFormat = `Answer with a JSON object only: {"confidence": number between 0 and 1, "sector": string, "update_type": one of "rinnovo", "aumento_retributivo", "modifica_normativa", "accordo_integrativo", "firma", "scadenza", "unknown", "detected_changes": [string]}.`

// ChatGPTClient classifies announcements through an OpenAI-compatible chat API.
type ChatGPTClient struct {
	endpoint     string
	model        string
	apiKey       string
	systemPrompt string
	httpClient   *http.Client
}

var _ ports.SemanticClassifier = (*ChatGPTClient)(nil)

// NewChatGPTClient builds a client from configuration.
func NewChatGPTClient(cfg config.ChatGPTConfig) *ChatGPTClient {
	return &ChatGPTClient{
		endpoint:     cfg.Endpoint,
		model:        cfg.Model,
		apiKey:       cfg.APIKey,
		systemPrompt: cfg.SystemPrompt,
		httpClient: &http.Client{
			Timeout: 20 * time.Second,
		},
	}
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Classify asks the model for a structured verdict on one feed item.
func (c *ChatGPTClient) Classify(ctx context.Context, item domain.FeedItem) (domain.SemanticResult, error) {
	if c == nil {
		return domain.SemanticResult{}, fmt.Errorf("chatgpt client is nil")
	}
	if c.apiKey == "" || c.endpoint == "" || c.model == "" {
		return domain.SemanticResult{}, fmt.Errorf("chatgpt client misconfigured")
	}

	body, err := json.Marshal(map[string]any{
		"model":           c.model,
		"temperature":     0,
		"response_format": map[string]string{"type": "json_object"},
		"messages": []map[string]string{
			{"role": "system", "content": safePrompt(c.systemPrompt) + " " + answerFormat},
			{"role": "user", "content": item.Text()},
		},
	})
	if err != nil {
		return domain.SemanticResult{}, fmt.Errorf("marshal chatgpt payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.SemanticResult{}, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.SemanticResult{}, fmt.Errorf("classify: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return domain.SemanticResult{}, fmt.Errorf("chatgpt error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var chat chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return domain.SemanticResult{}, fmt.Errorf("decode chatgpt response: %w", err)
	}
	if len(chat.Choices) == 0 {
		return domain.SemanticResult{}, fmt.Errorf("chatgpt returned no choices")
	}

	var result domain.SemanticResult
	content := stripFence(chat.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		return domain.SemanticResult{}, fmt.Errorf("decode classification: %w", err)
	}
	return result, nil
}

func safePrompt(prompt string) string {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "You classify Italian collective labour agreement announcements."
	}
	return prompt
}

// stripFence removes a Markdown code fence around the model answer.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

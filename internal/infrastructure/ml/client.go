package ml

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"CCNLMonitor/internal/domain"
	"CCNLMonitor/internal/ports"
)

// Client talks to an external inference service for semantic classification.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

var _ ports.SemanticClassifier = (*Client)(nil)

// NewClient creates a reusable HTTP client.
func NewClient(endpoint, apiKey string) *Client {
	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		http:     &http.Client{Timeout: 15 * time.Second},
	}
}

// Classify sends the announcement text and returns the service verdict.
func (c *Client) Classify(ctx context.Context, item domain.FeedItem) (domain.SemanticResult, error) {
	if c.endpoint == "" {
		return domain.SemanticResult{}, errors.New("ml client: endpoint not configured")
	}

	payload := map[string]any{
		"title":       item.Title,
		"description": item.Description,
		"content":     item.Content,
		"language":    "it",
	}

	var result domain.SemanticResult
	if err := c.post(ctx, "/classify", payload, &result); err != nil {
		return domain.SemanticResult{}, err
	}
	return result, nil
}

func (c *Client) post(ctx context.Context, path string, payload any, v any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

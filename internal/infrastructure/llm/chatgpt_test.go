package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CCNLMonitor/internal/config"
	"CCNLMonitor/internal/domain"
)

func TestChatGPTClassify(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))

		var req struct {
			Model    string              `json:"model"`
			Messages []map[string]string `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-test", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Contains(t, req.Messages[1]["content"], "CCNL Turismo")

		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"content": "```json\n{\"confidence\":0.7,\"sector\":\"turismo\",\"update_type\":\"firma\"}\n```"}},
			},
		})
	}))
	defer server.Close()

	c := NewChatGPTClient(config.ChatGPTConfig{Endpoint: server.URL, Model: "gpt-test", APIKey: "key"})
	got, err := c.Classify(context.Background(), domain.FeedItem{Title: "CCNL Turismo firmato"})
	require.NoError(t, err)
	assert.Equal(t, "turismo", got.Sector)
	assert.Equal(t, "firma", got.UpdateType)
	assert.InDelta(t, 0.7, got.Confidence, 1e-9)
}

func TestChatGPTClassifyErrors(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"rate limited"}`))
	}))
	defer server.Close()

	c := NewChatGPTClient(config.ChatGPTConfig{Endpoint: server.URL, Model: "m", APIKey: "k"})
	_, err := c.Classify(context.Background(), domain.FeedItem{})
	assert.ErrorContains(t, err, "rate limited")

	_, err = NewChatGPTClient(config.ChatGPTConfig{}).Classify(context.Background(), domain.FeedItem{})
	assert.ErrorContains(t, err, "misconfigured")
}

func TestStripFence(t *testing.T) {
	t.Parallel()

	assert.Equal(t, `{"a":1}`, stripFence("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripFence(` {"a":1} `))
}

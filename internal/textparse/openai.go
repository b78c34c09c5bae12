package textparse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	appLog "schedcore/internal/log"
)

// HTTPCompleter talks to any OpenAI-compatible /chat/completions endpoint.
type HTTPCompleter struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64

	client *http.Client
}

func NewHTTPCompleter(baseURL, apiKey, model string, timeout time.Duration) *HTTPCompleter {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPCompleter{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Model:   model,
		client:  &http.Client{Timeout: timeout},
	}
}

// SetHTTPClient swaps the underlying client, e.g. for tests.
func (c *HTTPCompleter) SetHTTPClient(hc *http.Client) {
	if hc != nil {
		c.client = hc
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Temperature    float64        `json:"temperature"`
	ResponseFormat map[string]any `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
}

func (c *HTTPCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature:    c.Temperature,
		ResponseFormat: map[string]any{"type": "json_object"},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("completion request failed: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			appLog.Error("close completion response", err)
		}
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("read completion response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("completion HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out chatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode completion response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("completion response has no choices")
	}
	if fr := out.Choices[0].FinishReason; fr == "length" {
		appLog.Warn("completion truncated", "model", c.Model)
	}
	return out.Choices[0].Message.Content, nil
}

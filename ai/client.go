// Package ai talks to the hosted completion service that structures
// captured notes. The provider's generation behavior is opaque; this
// package only shapes requests and parses replies.
package ai

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"orbit-api/domain"
)

const (
	defaultModel     = "claude-sonnet-4-5-20250929"
	defaultMaxTokens = 1024
	defaultEndpoint  = "https://api.anthropic.com/v1/messages"
	apiVersion       = "2023-06-01"
)

// Client calls the completion service.
type Client struct {
	apiKey    string
	model     string
	maxTokens int
	endpoint  string
	http      *http.Client
	log       *log.Logger
}

// Option adjusts a Client.
type Option func(*Client)

// WithModel overrides the completion model.
func WithModel(model string) Option {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

// WithEndpoint overrides the provider endpoint, used by tests.
func WithEndpoint(endpoint string) Option {
	return func(c *Client) {
		if endpoint != "" {
			c.endpoint = endpoint
		}
	}
}

// WithMaxTokens overrides the completion budget.
func WithMaxTokens(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}

// New creates a completion client.
func New(apiKey string, logger *log.Logger, opts ...Option) *Client {
	c := &Client{
		apiKey:    apiKey,
		model:     defaultModel,
		maxTokens: defaultMaxTokens,
		endpoint:  defaultEndpoint,
		http:      &http.Client{Timeout: 60 * time.Second},
		log:       logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system,omitempty"`
	Messages  []message `json:"messages"`
}

type completionResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Organize asks the completion service to structure a captured note
// and parses the reply into a CapturePreview.
func (c *Client) Organize(ctx context.Context, note string) (domain.CapturePreview, error) {
	raw, err := c.complete(ctx, organizeSystemPrompt, note)
	if err != nil {
		return domain.CapturePreview{}, err
	}

	var preview domain.CapturePreview
	if err := sonic.Unmarshal([]byte(stripCodeFence(raw)), &preview); err != nil {
		return domain.CapturePreview{}, fmt.Errorf("completion reply is not valid preview JSON: %w", err)
	}
	return preview, nil
}

func (c *Client) complete(ctx context.Context, system, user string) (string, error) {
	body, err := sonic.Marshal(completionRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System:    system,
		Messages:  []message{{Role: "user", Content: user}},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", apiVersion)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		if c.log != nil {
			c.log.Errorf("completion service returned %d: %s", resp.StatusCode, truncate(string(data), 200))
		}
		return "", fmt.Errorf("completion service status %d", resp.StatusCode)
	}

	var parsed completionResponse
	if err := sonic.Unmarshal(data, &parsed); err != nil {
		return "", err
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("completion service error: %s", parsed.Error.Message)
	}
	for _, block := range parsed.Content {
		if block.Type == "text" && block.Text != "" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("completion reply had no text content")
}

// stripCodeFence removes a surrounding markdown fence the model
// sometimes wraps JSON replies in.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

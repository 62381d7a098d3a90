// Package upstream talks to the OpenAI-compatible chat and image API.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/Laisky/errors/v2"

	"github.com/one-chat/one-chat/common/client"
	"github.com/one-chat/one-chat/common/config"
	"github.com/one-chat/one-chat/relay/model"
)

// User-facing failure texts. They are delivered in place of an answer and
// persisted as the assistant turn.
const (
	MsgNoResponse = "Error: Unable to get a response. Please try again later."
	msgAPIError   = "Error: API error (%d). Please try again later."
	msgBotError   = "Error: An error occurred with the bot: %s"
)

// Options configures a Client. Zero durations fall back to the process config.
type Options struct {
	BaseURL      string
	APIKey       string
	SystemPrompt string
	MaxTokens    int
	Temperature  float64
	TextTimeout  time.Duration
	ImageTimeout time.Duration
	HTTPClient   *http.Client
}

// Client is safe for concurrent use; it holds no per-request state.
type Client struct {
	opts Options
}

func New(opts Options) *Client {
	if opts.HTTPClient == nil {
		client.Init()
		opts.HTTPClient = client.HTTPClient
	}
	if opts.TextTimeout <= 0 {
		opts.TextTimeout = config.RelayTextTimeout
	}
	if opts.ImageTimeout <= 0 {
		opts.ImageTimeout = config.RelayImageTimeout
	}
	return &Client{opts: opts}
}

// NewFromConfig builds a Client from environment configuration.
func NewFromConfig() *Client {
	return New(Options{
		BaseURL:      config.APIBaseURL,
		APIKey:       config.APIKey,
		SystemPrompt: config.SystemPrompt,
		MaxTokens:    config.MaxTokens,
		Temperature:  config.Temperature,
	})
}

// ChatInput is what the assembler hands to the engine.
type ChatInput struct {
	Model    string
	Messages []model.Message
	// WebSearch is the caller's wish; it is dropped when HasImage or
	// DocumentContext is set.
	WebSearch       bool
	HasImage        bool
	DocumentContext bool
}

// ChatRequest is the JSON payload posted to /chat/completions.
type ChatRequest struct {
	Model       string          `json:"model"`
	Messages    []model.Message `json:"messages"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature float64         `json:"temperature"`
	WebSearch   bool            `json:"web_search"`
	Stream      bool            `json:"stream"`
	System      string          `json:"system,omitempty"`
}

func (c *Client) BuildPayload(in ChatInput, stream bool) ChatRequest {
	return ChatRequest{
		Model:       in.Model,
		Messages:    in.Messages,
		MaxTokens:   c.opts.MaxTokens,
		Temperature: c.opts.Temperature,
		WebSearch:   in.WebSearch && !in.HasImage && !in.DocumentContext,
		Stream:      stream,
		System:      c.opts.SystemPrompt,
	}
}

// Timeout picks the deadline for a chat call.
func (c *Client) Timeout(in ChatInput) time.Duration {
	if in.HasImage {
		return c.opts.ImageTimeout
	}
	return c.opts.TextTimeout
}

func (c *Client) postJSON(ctx context.Context, path string, body any) (*http.Response, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "marshal upstream payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.BaseURL+path, bytes.NewReader(raw))
	if err != nil {
		return nil, errors.Wrap(err, "build upstream request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.opts.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.opts.APIKey)
	}

	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "POST %s", path)
	}
	return resp, nil
}

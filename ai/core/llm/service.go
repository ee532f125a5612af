// Package llm provides the chat-completions client used by the pipeline agents.
// Any OpenAI-compatible server works; in practice this is a local llama.cpp
// server speaking /v1/chat/completions.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// Message represents a chat message.
type Message struct {
	Role    string // system, user, assistant
	Content string
}

// CallOptions are per-request overrides. Zero values fall back to the
// service-level defaults from Config.
type CallOptions struct {
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
}

// Service is the LLM client interface the pipeline agents depend on.
type Service interface {
	// Chat performs a synchronous chat completion and returns the assistant content.
	Chat(ctx context.Context, messages []Message, opts CallOptions) (string, error)

	// ChatJSON performs a chat completion, strips any markdown code fences from
	// the response, and unmarshals the remainder into out.
	ChatJSON(ctx context.Context, messages []Message, opts CallOptions, out any) error
}

// Config represents LLM service configuration.
type Config struct {
	BaseURL     string // e.g. http://localhost:8080/v1
	APIKey      string // optional bearer token
	Model       string
	Temperature float32 // default: 0.1
	MaxTokens   int     // default: 500
	Timeout     int     // request timeout in seconds (default: 30)
}

type service struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	timeout     time.Duration
}

// NewService creates a new LLM Service for one endpoint. Each pipeline agent
// may hold its own Service instance pointing at a different server.
func NewService(cfg *Config) (Service, error) {
	if cfg == nil || cfg.BaseURL == "" {
		return nil, fmt.Errorf("llm: base URL required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	clientConfig.HTTPClient = newHTTPClient()

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 500
	}
	temperature := cfg.Temperature
	if temperature <= 0 {
		temperature = 0.1
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30
	}

	return &service{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       cfg.Model,
		maxTokens:   maxTokens,
		temperature: temperature,
		timeout:     time.Duration(timeout) * time.Second,
	}, nil
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}
}

func (s *service) Chat(ctx context.Context, messages []Message, opts CallOptions) (string, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = s.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	temperature := opts.Temperature
	if temperature <= 0 {
		temperature = s.temperature
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = s.maxTokens
	}

	slog.Debug("llm: chat request",
		"model", s.model,
		"messages_count", len(messages),
		"max_tokens", maxTokens,
	)

	startTime := time.Now()

	req := openai.ChatCompletionRequest{
		Model:       s.model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		Messages:    convertMessages(messages),
	}

	resp, err := s.client.CreateChatCompletion(ctx, req)
	if err != nil {
		slog.Error("llm: chat request failed", "error", err)
		return "", fmt.Errorf("llm chat failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty response from LLM")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)

	slog.Debug("llm: chat response received",
		"content_length", len(content),
		"duration_ms", time.Since(startTime).Milliseconds(),
	)

	return content, nil
}

func (s *service) ChatJSON(ctx context.Context, messages []Message, opts CallOptions, out any) error {
	content, err := s.Chat(ctx, messages, opts)
	if err != nil {
		return err
	}

	content = stripCodeFence(content)

	if err := json.Unmarshal([]byte(content), out); err != nil {
		preview := content
		if len(preview) > 200 {
			preview = preview[:200]
		}
		slog.Error("llm: failed to parse JSON response", "preview", preview)
		return fmt.Errorf("invalid JSON response from LLM: %w", err)
	}
	return nil
}

// stripCodeFence extracts the payload from a markdown code block. Local models
// frequently wrap JSON in ```json fences despite being asked not to.
func stripCodeFence(content string) string {
	if idx := strings.Index(content, "```json"); idx >= 0 {
		rest := content[idx+len("```json"):]
		if end := strings.Index(rest, "```"); end >= 0 {
			return strings.TrimSpace(rest[:end])
		}
		return strings.TrimSpace(rest)
	}
	if idx := strings.Index(content, "```"); idx >= 0 {
		rest := content[idx+3:]
		// Skip a language identifier on the fence line if present.
		if nl := strings.Index(rest, "\n"); nl >= 0 && !strings.HasPrefix(strings.TrimSpace(rest), "{") && !strings.HasPrefix(strings.TrimSpace(rest), "[") {
			rest = rest[nl+1:]
		}
		if end := strings.Index(rest, "```"); end >= 0 {
			return strings.TrimSpace(rest[:end])
		}
		return strings.TrimSpace(rest)
	}
	return strings.TrimSpace(content)
}

func convertMessages(messages []Message) []openai.ChatCompletionMessage {
	converted := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		converted[i] = openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		}
	}
	return converted
}

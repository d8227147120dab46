// Package llm wraps an OpenAI-compatible chat endpoint behind the small
// interface the reply pipeline consumes. The core performs no retries;
// the client enforces its own timeout and surfaces failures as errors.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/hrygo/groupparrot/bot/prompt"
)

// ErrEmptyCompletion is returned when the provider answers with no choices.
var ErrEmptyCompletion = errors.New("llm: empty completion")

// Service is the chat interface consumed by the reply pipeline.
type Service interface {
	// Chat performs one synchronous completion over the given messages.
	Chat(ctx context.Context, messages []prompt.Message) (string, error)

	// Warmup sends a lightweight ping to establish the connection.
	Warmup(ctx context.Context)
}

// Config selects the provider and model.
type Config struct {
	Provider    string // zai, deepseek, openai, siliconflow, dashscope, ollama
	Model       string
	APIKey      string
	BaseURL     string // optional, has default per provider
	MaxTokens   int    // default 512
	Temperature float32
	Timeout     int // request timeout in seconds, default 60
}

// Provider default base URLs and models, used when not explicitly set.
var providerDefaults = map[string]struct {
	BaseURL string
	Model   string
}{
	"zai":         {BaseURL: "https://open.bigmodel.cn/api/paas/v4", Model: "glm-4.7"},
	"deepseek":    {BaseURL: "https://api.deepseek.com", Model: "deepseek-chat"},
	"openai":      {BaseURL: "https://api.openai.com/v1", Model: "gpt-5.2"},
	"siliconflow": {BaseURL: "https://api.siliconflow.cn/v1", Model: "Qwen/Qwen2.5-72B-Instruct"},
	"dashscope":   {BaseURL: "https://dashscope.aliyuncs.com/compatible-mode/v1", Model: "qwen-max-latest"},
	"ollama":      {BaseURL: "http://localhost:11434/v1", Model: "llama3.1"},
}

// ProviderDefault returns the default base URL and model for a known
// provider. ok is false for providers this package cannot talk to.
func ProviderDefault(provider string) (baseURL, model string, ok bool) {
	d, ok := providerDefaults[provider]
	return d.BaseURL, d.Model, ok
}

type service struct {
	client      *openai.Client
	model       string
	provider    string
	maxTokens   int
	temperature float32
	logger      *slog.Logger
}

// NewService creates a chat service for the configured provider.
func NewService(cfg *Config, logger *slog.Logger) (Service, error) {
	if cfg == nil || cfg.APIKey == "" {
		return nil, errors.New("llm: api key is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	defaults, ok := providerDefaults[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaults.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = defaults.Model
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 512
	}
	temperature := cfg.Temperature
	if temperature <= 0 {
		temperature = 0.7
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = baseURL
	clientConfig.HTTPClient = newHTTPClient(time.Duration(timeout) * time.Second)

	return &service{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       model,
		provider:    cfg.Provider,
		maxTokens:   maxTokens,
		temperature: temperature,
		logger:      logger,
	}, nil
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
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

func (s *service) Chat(ctx context.Context, messages []prompt.Message) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       s.model,
		MaxTokens:   s.maxTokens,
		Temperature: s.temperature,
		Messages:    toOpenAIMessages(messages),
	}
	resp, err := s.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("llm chat (%s/%s): %w", s.provider, s.model, err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	return resp.Choices[0].Message.Content, nil
}

// Warmup fires a one-token request so the first real reply does not pay
// connection setup. Failures are logged, never fatal.
func (s *service) Warmup(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	_, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     s.model,
		MaxTokens: 1,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: "ping"},
		},
	})
	if err != nil {
		s.logger.Debug("llm warmup failed", "provider", s.provider, "error", err)
		return
	}
	s.logger.Info("llm connection warmed up", "provider", s.provider, "model", s.model)
}

func toOpenAIMessages(messages []prompt.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

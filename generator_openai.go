package kindred

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIGenerator produces replies through the Chat Completions API, or any
// OpenAI-compatible endpoint. Implements ResponseGenerator.
type OpenAIGenerator struct {
	client    openai.Client
	model     string
	maxTokens int64
}

// OpenAIOption configures an OpenAIGenerator.
type OpenAIOption func(*openAIConfig)

type openAIConfig struct {
	model     string
	baseURL   string
	maxTokens int64
	extra     []option.RequestOption
}

// WithOpenAIModel sets the chat model (default: gpt-4o-mini).
func WithOpenAIModel(model string) OpenAIOption {
	return func(c *openAIConfig) { c.model = model }
}

// WithOpenAIBaseURL points the client at a proxy or compatible API.
func WithOpenAIBaseURL(url string) OpenAIOption {
	return func(c *openAIConfig) { c.baseURL = url }
}

// WithOpenAIMaxTokens caps reply length (default: 300).
func WithOpenAIMaxTokens(n int64) OpenAIOption {
	return func(c *openAIConfig) { c.maxTokens = n }
}

// WithOpenAIRequestOptions passes raw client options through.
func WithOpenAIRequestOptions(opts ...option.RequestOption) OpenAIOption {
	return func(c *openAIConfig) { c.extra = append(c.extra, opts...) }
}

// NewOpenAIGenerator creates a generator using apiKey.
func NewOpenAIGenerator(apiKey string, opts ...OpenAIOption) *OpenAIGenerator {
	cfg := openAIConfig{model: "gpt-4o-mini", maxTokens: 300}
	for _, opt := range opts {
		opt(&cfg)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(1)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	reqOpts = append(reqOpts, cfg.extra...)

	return &OpenAIGenerator{
		client:    openai.NewClient(reqOpts...),
		model:     cfg.model,
		maxTokens: cfg.maxTokens,
	}
}

// Generate implements ResponseGenerator. The profile's temperature is used
// as the sampling temperature.
func (g *OpenAIGenerator) Generate(ctx context.Context, req ResponseRequest) (GeneratedResponse, error) {
	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(req.systemContext()),
	}
	for _, t := range req.History {
		if t.Role == AuthorCompanion {
			messages = append(messages, openai.AssistantMessage(t.Content))
		} else {
			messages = append(messages, openai.UserMessage(t.Content))
		}
	}
	messages = append(messages, openai.UserMessage(req.UserMessage))

	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(g.model),
		Messages:    messages,
		Temperature: openai.Float(req.Profile.Temperature),
		MaxTokens:   openai.Int(g.maxTokens),
	})
	if err != nil {
		return GeneratedResponse{}, fmt.Errorf("openai chat: %w", err)
	}
	if len(resp.Choices) == 0 {
		return GeneratedResponse{}, fmt.Errorf("openai chat: empty response")
	}

	return GeneratedResponse{
		Text:         strings.TrimSpace(resp.Choices[0].Message.Content),
		EmotionLabel: string(req.Profile.CurrentMood),
		Intensity:    req.Profile.Intensity,
	}, nil
}

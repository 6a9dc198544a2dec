package anthropic

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	lcanthropic "github.com/tmc/langchaingo/llms/anthropic"

	"github.com/kiranshivaraju/steelsched/internal/ai/transport"
	"github.com/kiranshivaraju/steelsched/internal/config"
	"github.com/kiranshivaraju/steelsched/pkg/models"
)

// Provider implements models.AIBackend using Anthropic through langchaingo.
type Provider struct {
	llm   llms.Model
	model string
}

func NewProvider(cfg config.AnthropicConfig) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key required")
	}
	m, err := lcanthropic.New(
		lcanthropic.WithToken(cfg.APIKey),
		lcanthropic.WithModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("create anthropic model: %w", err)
	}
	return NewWithModel(m, cfg.Model), nil
}

// NewWithModel wraps an already constructed langchaingo model.
func NewWithModel(m llms.Model, model string) *Provider {
	return &Provider{llm: m, model: model}
}

func (p *Provider) Name() string  { return "anthropic" }
func (p *Provider) Model() string { return p.model }

func (p *Provider) Complete(ctx context.Context, req models.CompletionRequest) (string, error) {
	prompt := req.Prompt
	if req.JSONOnly {
		prompt += "\n\nRespond with a single JSON object and nothing else."
	}
	messages := []llms.MessageContent{}
	if req.System != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, req.System))
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, prompt))

	opts := []llms.CallOption{llms.WithTemperature(0)}
	if req.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(req.MaxTokens))
	}

	resp, err := p.llm.GenerateContent(ctx, messages, opts...)
	if err != nil {
		// langchaingo reports HTTP failures as plain text.
		if strings.Contains(err.Error(), "status code") {
			return "", fmt.Errorf("anthropic generate: %w: %w", models.ErrBackendResponse, err)
		}
		return "", fmt.Errorf("anthropic generate: %w", transport.Classify(ctx, err))
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", fmt.Errorf("anthropic: %w: no response choices", models.ErrBackendResponse)
	}
	out := strings.TrimSpace(resp.Choices[0].Content)
	if out == "" {
		return "", fmt.Errorf("anthropic: %w: empty content", models.ErrBackendResponse)
	}
	return out, nil
}

var _ models.AIBackend = (*Provider)(nil)

package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/kiranshivaraju/steelsched/internal/ai/transport"
	"github.com/kiranshivaraju/steelsched/internal/config"
	"github.com/kiranshivaraju/steelsched/pkg/models"
)

// Provider implements models.AIBackend against an OpenAI-compatible
// chat/completions endpoint.
type Provider struct {
	name       string
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

func NewProvider(cfg config.OpenAIConfig) *Provider {
	return NewCompatible("openai", cfg.BaseURL, cfg.APIKey, cfg.Model)
}

// NewCompatible builds a provider for any server speaking the OpenAI chat
// API under the given name. apiKey may be empty for self-hosted servers.
func NewCompatible(name, baseURL, apiKey, model string) *Provider {
	return &Provider{
		name:       name,
		apiKey:     strings.TrimSpace(apiKey),
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{},
	}
}

func (p *Provider) Name() string  { return p.name }
func (p *Provider) Model() string { return p.model }

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (p *Provider) Complete(ctx context.Context, req models.CompletionRequest) (string, error) {
	messages := make([]map[string]string, 0, 2)
	if req.System != "" {
		messages = append(messages, map[string]string{"role": "system", "content": req.System})
	}
	messages = append(messages, map[string]string{"role": "user", "content": req.Prompt})

	body := map[string]any{
		"model":       p.model,
		"messages":    messages,
		"temperature": 0,
	}
	if req.JSONOnly {
		body["response_format"] = map[string]any{"type": "json_object"}
	}
	if req.MaxTokens > 0 {
		body["max_tokens"] = req.MaxTokens
	}

	headers := map[string]string{}
	if p.apiKey != "" {
		headers["Authorization"] = "Bearer " + p.apiKey
	}

	raw, err := transport.PostJSON(ctx, p.httpClient, p.baseURL+"/chat/completions", headers, body)
	if err != nil {
		return "", fmt.Errorf("%s completion: %w", p.name, err)
	}

	var cc chatResponse
	if err := json.Unmarshal(raw, &cc); err != nil {
		return "", fmt.Errorf("%s decode response: %w: %w", p.name, models.ErrBackendResponse, err)
	}
	if len(cc.Choices) == 0 {
		return "", fmt.Errorf("%s: %w: no choices", p.name, models.ErrBackendResponse)
	}
	content := strings.TrimSpace(cc.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("%s: %w: empty content", p.name, models.ErrBackendResponse)
	}
	return content, nil
}

var _ models.AIBackend = (*Provider)(nil)

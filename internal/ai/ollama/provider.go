package ollama

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

// Provider implements models.AIBackend using Ollama's /api/generate.
type Provider struct {
	cfg        config.OllamaConfig
	httpClient *http.Client
}

func NewProvider(cfg config.OllamaConfig) *Provider {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Provider{cfg: cfg, httpClient: &http.Client{}}
}

func (p *Provider) Name() string  { return "ollama" }
func (p *Provider) Model() string { return p.cfg.Model }

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error"`
}

func (p *Provider) Complete(ctx context.Context, req models.CompletionRequest) (string, error) {
	body := map[string]any{
		"model":   p.cfg.Model,
		"prompt":  req.Prompt,
		"stream":  false,
		"options": map[string]any{"temperature": 0},
	}
	if req.System != "" {
		body["system"] = req.System
	}
	if req.JSONOnly {
		body["format"] = "json"
	}
	if req.MaxTokens > 0 {
		body["options"].(map[string]any)["num_predict"] = req.MaxTokens
	}

	raw, err := transport.PostJSON(ctx, p.httpClient, p.cfg.BaseURL+"/api/generate", nil, body)
	if err != nil {
		return "", fmt.Errorf("ollama generate: %w", err)
	}

	var gr generateResponse
	if err := json.Unmarshal(raw, &gr); err != nil {
		return "", fmt.Errorf("ollama decode response: %w: %w", models.ErrBackendResponse, err)
	}
	if gr.Error != "" {
		return "", fmt.Errorf("ollama: %w: %s", models.ErrBackendResponse, gr.Error)
	}
	out := strings.TrimSpace(gr.Response)
	if out == "" {
		return "", fmt.Errorf("ollama: %w: empty response", models.ErrBackendResponse)
	}
	return out, nil
}

var _ models.AIBackend = (*Provider)(nil)

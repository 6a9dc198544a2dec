package ai

import (
	"fmt"

	"github.com/kiranshivaraju/steelsched/internal/ai/anthropic"
	"github.com/kiranshivaraju/steelsched/internal/ai/ollama"
	"github.com/kiranshivaraju/steelsched/internal/ai/openai"
	"github.com/kiranshivaraju/steelsched/internal/ai/vllm"
	"github.com/kiranshivaraju/steelsched/internal/config"
	"github.com/kiranshivaraju/steelsched/pkg/models"
)

// NewBackend constructs the configured extraction backend. Called once at startup.
// An empty provider returns (nil, nil): the pipeline then runs on the
// deterministic fallback extractor.
func NewBackend(cfg config.AIConfig) (models.AIBackend, error) {
	switch cfg.Provider {
	case "":
		return nil, nil
	case "ollama":
		return ollama.NewProvider(cfg.Ollama), nil
	case "vllm":
		return vllm.NewProvider(cfg.VLLM), nil
	case "openai":
		return openai.NewProvider(cfg.OpenAI), nil
	case "anthropic":
		return anthropic.NewProvider(cfg.Anthropic)
	default:
		return nil, fmt.Errorf("unknown AI provider %q: must be one of ollama, vllm, openai, anthropic", cfg.Provider)
	}
}

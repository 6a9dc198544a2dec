// Package vllm talks to a vLLM server through its OpenAI-compatible API.
package vllm

import (
	"strings"

	"github.com/kiranshivaraju/steelsched/internal/ai/openai"
	"github.com/kiranshivaraju/steelsched/internal/config"
)

// NewProvider returns a backend named "vllm". vLLM serves under /v1 and needs no key.
func NewProvider(cfg config.VLLMConfig) *openai.Provider {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if !strings.HasSuffix(base, "/v1") {
		base += "/v1"
	}
	return openai.NewCompatible("vllm", base, "", cfg.Model)
}

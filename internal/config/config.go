package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the steelsched server.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Blob     BlobConfig
	AI       AIConfig
	Pipeline PipelineConfig
	OCR      OCRConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port               int
	Env                string
	RateLimitPerMinute int
	MaxUploadMB        int
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

// BlobConfig selects the object store holding sources and packs.
type BlobConfig struct {
	Backend        string // "fs" or "postgres"
	Root           string
	ArtifactBucket string
}

type AIConfig struct {
	// Provider is optional; empty selects the deterministic fallback extractor.
	Provider          string
	InferenceTimeout  time.Duration
	RequestsPerSecond float64
	Ollama            OllamaConfig
	VLLM              VLLMConfig
	OpenAI            OpenAIConfig
	Anthropic         AnthropicConfig
}

type OllamaConfig struct {
	BaseURL string
	Model   string
}

type VLLMConfig struct {
	BaseURL string
	Model   string
}

type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

type AnthropicConfig struct {
	APIKey string
	Model  string
}

type PipelineConfig struct {
	ChunkBudgetChars  int
	PromptBudgetChars int
	MaxAttempts       int
	StaleAfter        time.Duration
	ReapInterval      time.Duration
	AliasesFile       string
}

type OCRConfig struct {
	Enabled   bool
	Pdftoppm  string
	Tesseract string
	Lang      string
	DPI       int
}

type LogConfig struct {
	Level string
	File  string
}

var validProviders = map[string]bool{
	"ollama":    true,
	"vllm":      true,
	"openai":    true,
	"anthropic": true,
}

var validBlobBackends = map[string]bool{
	"fs":       true,
	"postgres": true,
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := fromEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadLocal reads the same variables as Load but only validates the sections
// a single-process run needs: AI, pipeline and logging.
func LoadLocal() (*Config, error) {
	cfg := fromEnv()
	if err := cfg.validateLocal(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromEnv() *Config {
	return &Config{
		Server: ServerConfig{
			Port:               envInt("STEELSCHED_PORT", 8080),
			Env:                envString("STEELSCHED_ENV", "development"),
			RateLimitPerMinute: envInt("RATE_LIMIT_PER_MINUTE", 60),
			MaxUploadMB:        envInt("MAX_UPLOAD_MB", 50),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Blob: BlobConfig{
			Backend:        envString("BLOB_BACKEND", "fs"),
			Root:           envString("BLOB_ROOT", "./data/blobs"),
			ArtifactBucket: envString("ARTIFACT_BUCKET", "parsing"),
		},
		AI: AIConfig{
			Provider:          os.Getenv("AI_PROVIDER"),
			InferenceTimeout:  envDurationSecs("AI_INFERENCE_TIMEOUT_SECS", 60*time.Second),
			RequestsPerSecond: envFloat("AI_REQUESTS_PER_SECOND", 1),
			Ollama: OllamaConfig{
				BaseURL: envString("OLLAMA_BASE_URL", "http://localhost:11434"),
				Model:   envString("OLLAMA_MODEL", "llama3"),
			},
			VLLM: VLLMConfig{
				BaseURL: envString("VLLM_BASE_URL", "http://localhost:8000"),
				Model:   envString("VLLM_MODEL", ""),
			},
			OpenAI: OpenAIConfig{
				APIKey:  os.Getenv("OPENAI_API_KEY"),
				BaseURL: envString("OPENAI_BASE_URL", "https://api.openai.com/v1"),
				Model:   envString("OPENAI_MODEL", "gpt-4o-mini"),
			},
			Anthropic: AnthropicConfig{
				APIKey: os.Getenv("ANTHROPIC_API_KEY"),
				Model:  envString("ANTHROPIC_MODEL", "claude-sonnet-4-5-20250929"),
			},
		},
		Pipeline: PipelineConfig{
			ChunkBudgetChars:  envInt("CHUNK_BUDGET_CHARS", 12000),
			PromptBudgetChars: envInt("PROMPT_BUDGET_CHARS", 12000),
			MaxAttempts:       envInt("JOB_MAX_ATTEMPTS", 3),
			StaleAfter:        envDuration("JOB_STALE_AFTER", 10*time.Minute),
			ReapInterval:      envDuration("JOB_REAP_INTERVAL", time.Minute),
			AliasesFile:       os.Getenv("ALIASES_FILE"),
		},
		OCR: OCRConfig{
			Enabled:   envBool("OCR_ENABLED", false),
			Pdftoppm:  envString("OCR_PDFTOPPM", "pdftoppm"),
			Tesseract: envString("OCR_TESSERACT", "tesseract"),
			Lang:      envString("OCR_LANG", "eng"),
			DPI:       envInt("OCR_DPI", 300),
		},
		Log: LogConfig{
			Level: envString("LOG_LEVEL", "info"),
			File:  os.Getenv("LOG_FILE"),
		},
	}
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if !validBlobBackends[c.Blob.Backend] {
		return fmt.Errorf("BLOB_BACKEND must be one of fs, postgres; got %q", c.Blob.Backend)
	}
	if c.Blob.Backend == "fs" && c.Blob.Root == "" {
		return fmt.Errorf("BLOB_ROOT is required when BLOB_BACKEND is fs")
	}

	return c.validateLocal()
}

func (c *Config) validateLocal() error {
	if c.AI.Provider != "" && !validProviders[c.AI.Provider] {
		return fmt.Errorf("AI_PROVIDER must be empty or one of ollama, vllm, openai, anthropic; got %q", c.AI.Provider)
	}
	if c.AI.Provider == "openai" && c.AI.OpenAI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required when AI_PROVIDER is openai")
	}
	if c.AI.Provider == "anthropic" && c.AI.Anthropic.APIKey == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY is required when AI_PROVIDER is anthropic")
	}
	if c.AI.Provider == "vllm" && c.AI.VLLM.Model == "" {
		return fmt.Errorf("VLLM_MODEL is required when AI_PROVIDER is vllm")
	}
	if c.AI.Provider == "ollama" && !strings.HasPrefix(c.AI.Ollama.BaseURL, "http://") && !strings.HasPrefix(c.AI.Ollama.BaseURL, "https://") {
		return fmt.Errorf("OLLAMA_BASE_URL must start with http:// or https://, got %q", c.AI.Ollama.BaseURL)
	}

	if c.Pipeline.ChunkBudgetChars <= 0 {
		return fmt.Errorf("CHUNK_BUDGET_CHARS must be positive, got %d", c.Pipeline.ChunkBudgetChars)
	}
	if c.Pipeline.PromptBudgetChars <= 0 {
		return fmt.Errorf("PROMPT_BUDGET_CHARS must be positive, got %d", c.Pipeline.PromptBudgetChars)
	}
	if c.Pipeline.MaxAttempts < 1 {
		return fmt.Errorf("JOB_MAX_ATTEMPTS must be at least 1, got %d", c.Pipeline.MaxAttempts)
	}

	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func envBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/efebarandurmaz/pdfrag/internal/llm"
)

// EnvPrefix prefixes every configuration key read from the environment,
// e.g. PDFRAG_VECTOR_HOST for vector.host.
const EnvPrefix = "PDFRAG"

// Config holds all application configuration.
type Config struct {
	LLM       LLMConfig       `mapstructure:"llm"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Vector    VectorConfig    `mapstructure:"vector"`
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	Temporal  TemporalConfig  `mapstructure:"temporal"`
	Server    ServerConfig    `mapstructure:"server"`
	Chunking  ChunkingConfig  `mapstructure:"chunking"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Log       LogConfig       `mapstructure:"log"`
}

// LLMConfig selects the model that writes answers.
type LLMConfig struct {
	Provider          string        `mapstructure:"provider"`
	Model             string        `mapstructure:"model"`
	APIKey            string        `mapstructure:"api_key"`
	BaseURL           string        `mapstructure:"base_url"`
	Temperature       float64       `mapstructure:"temperature"`
	MaxTokens         int           `mapstructure:"max_tokens"`
	Timeout           time.Duration `mapstructure:"timeout"`
	MaxRetries        int           `mapstructure:"max_retries"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
	Burst             int           `mapstructure:"burst"`
}

// EmbeddingConfig selects the model that embeds chunks and questions.
// Empty APIKey and BaseURL are inherited from LLMConfig when both use the
// same provider.
type EmbeddingConfig struct {
	Provider          string        `mapstructure:"provider"`
	Model             string        `mapstructure:"model"`
	APIKey            string        `mapstructure:"api_key"`
	BaseURL           string        `mapstructure:"base_url"`
	Dimension         int           `mapstructure:"dimension"`
	BatchSize         int           `mapstructure:"batch_size"`
	Timeout           time.Duration `mapstructure:"timeout"`
	MaxRetries        int           `mapstructure:"max_retries"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
	Burst             int           `mapstructure:"burst"`
}

// VectorConfig points at the vector store.
type VectorConfig struct {
	Provider       string        `mapstructure:"provider"` // "qdrant" or "memory"
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	APIKey         string        `mapstructure:"api_key"`
	UseTLS         bool          `mapstructure:"use_tls"`
	Collection     string        `mapstructure:"collection"`
	StartupTimeout time.Duration `mapstructure:"startup_timeout"`
}

// CatalogConfig points at the optional Neo4j source catalog. An empty URI
// disables the catalog.
type CatalogConfig struct {
	URI      string `mapstructure:"uri"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

type TemporalConfig struct {
	Host      string `mapstructure:"host"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

// ServerConfig configures the HTTP API and the worker's health listener.
type ServerConfig struct {
	Addr       string        `mapstructure:"addr"`
	HealthAddr string        `mapstructure:"health_addr"`
	RunTimeout time.Duration `mapstructure:"run_timeout"`
}

// ChunkingConfig sizes are in whitespace-separated tokens.
type ChunkingConfig struct {
	Size      int    `mapstructure:"size"`
	Overlap   int    `mapstructure:"overlap"`
	Extractor string `mapstructure:"extractor"` // "auto", "pdftotext" or "native"
}

type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Environment string  `mapstructure:"environment"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// wellKnownKeys maps providers to the API key variables their own SDKs
// read, used when no PDFRAG_ key is set.
var wellKnownKeys = map[string]string{
	"gemini":    "GEMINI_API_KEY",
	"openai":    "OPENAI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
	"groq":      "GROQ_API_KEY",
	"together":  "TOGETHER_API_KEY",
	"deepseek":  "DEEPSEEK_API_KEY",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("llm.provider", "gemini")
	v.SetDefault("llm.model", "gemini-2.5-flash")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.temperature", 0.0)
	v.SetDefault("llm.max_tokens", 0)
	v.SetDefault("llm.timeout", 2*time.Minute)
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.requests_per_minute", 0)
	v.SetDefault("llm.burst", 0)

	v.SetDefault("embedding.provider", "openai")
	v.SetDefault("embedding.model", "text-embedding-3-large")
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.base_url", "")
	v.SetDefault("embedding.dimension", 3072)
	v.SetDefault("embedding.batch_size", 64)
	v.SetDefault("embedding.timeout", time.Minute)
	v.SetDefault("embedding.max_retries", 3)
	v.SetDefault("embedding.requests_per_minute", 0)
	v.SetDefault("embedding.burst", 0)

	v.SetDefault("vector.provider", "qdrant")
	v.SetDefault("vector.host", "localhost")
	v.SetDefault("vector.port", 6334)
	v.SetDefault("vector.api_key", "")
	v.SetDefault("vector.use_tls", false)
	v.SetDefault("vector.collection", "docs")
	v.SetDefault("vector.startup_timeout", 30*time.Second)

	v.SetDefault("catalog.uri", "")
	v.SetDefault("catalog.username", "neo4j")
	v.SetDefault("catalog.password", "")
	v.SetDefault("catalog.database", "")

	v.SetDefault("temporal.host", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "pdfrag")

	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.health_addr", ":8081")
	v.SetDefault("server.run_timeout", 5*time.Minute)

	v.SetDefault("chunking.size", 1000)
	v.SetDefault("chunking.overlap", 200)
	v.SetDefault("chunking.extractor", "auto")

	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.sample_rate", 1.0)
	v.SetDefault("tracing.environment", "dev")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Default returns the configuration with only built-in defaults applied.
func Default() *Config {
	cfg, err := load(viper.New())
	if err != nil {
		panic(err) // defaults always decode
	}
	return cfg
}

// Load reads configuration from the optional YAML file at path and the
// environment. A missing file is an error only when path is set
// explicitly. Validation warnings are logged, not returned.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	cfg, err := load(v)
	if err != nil {
		return nil, err
	}

	for _, warning := range cfg.Validate() {
		slog.Warn("config", "warning", warning)
	}
	return cfg, nil
}

func load(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	cfg.LLM.APIKey = keyFromEnv(cfg.LLM.Provider, cfg.LLM.APIKey)
	cfg.Embedding.inherit(cfg.LLM)
	cfg.Embedding.APIKey = keyFromEnv(cfg.Embedding.Provider, cfg.Embedding.APIKey)
	return &cfg, nil
}

func keyFromEnv(provider, key string) string {
	if key != "" {
		return key
	}
	if name, ok := wellKnownKeys[provider]; ok {
		return os.Getenv(name)
	}
	return ""
}

func (e *EmbeddingConfig) inherit(l LLMConfig) {
	if e.Provider != l.Provider {
		return
	}
	if e.APIKey == "" {
		e.APIKey = l.APIKey
	}
	if e.BaseURL == "" {
		e.BaseURL = l.BaseURL
	}
}

// ProviderConfig converts the generation settings for llm.ProviderFactory.
func (c LLMConfig) ProviderConfig() llm.ProviderConfig {
	pc := llm.DefaultProviderConfig()
	pc.Provider = c.Provider
	pc.APIKey = c.APIKey
	pc.Model = c.Model
	pc.BaseURL = c.BaseURL
	if c.Timeout > 0 {
		pc.Timeout = c.Timeout
	}
	pc.MaxRetries = c.MaxRetries
	pc.RequestsPerMinute = c.RequestsPerMinute
	pc.Burst = c.Burst
	return pc
}

// RequestOptions returns per-call options for answer generation.
func (c LLMConfig) RequestOptions() *llm.RequestOptions {
	opts := &llm.RequestOptions{}
	if c.MaxTokens > 0 {
		n := c.MaxTokens
		opts.MaxTokens = &n
	}
	if c.Temperature > 0 {
		t := c.Temperature
		opts.Temperature = &t
	}
	return opts
}

// ProviderConfig converts the embedding settings for llm.ProviderFactory.
// The embedding model doubles as the completion model; only Embed is used.
func (c EmbeddingConfig) ProviderConfig() llm.ProviderConfig {
	pc := llm.DefaultProviderConfig()
	pc.Provider = c.Provider
	pc.APIKey = c.APIKey
	pc.Model = c.Model
	pc.EmbedModel = c.Model
	pc.EmbedDimensions = c.Dimension
	pc.BaseURL = c.BaseURL
	if c.Timeout > 0 {
		pc.Timeout = c.Timeout
	}
	pc.MaxRetries = c.MaxRetries
	pc.RequestsPerMinute = c.RequestsPerMinute
	pc.Burst = c.Burst
	return pc
}

// ErrNoProvider is returned when a required provider is set to "none".
var ErrNoProvider = errors.New("no provider configured")

// Validate checks configuration for issues and returns warnings.
func (c *Config) Validate() []string {
	var warnings []string

	if c.LLM.Provider != "" && c.LLM.Provider != "none" && c.LLM.Provider != "ollama" && c.LLM.APIKey == "" {
		warnings = append(warnings, fmt.Sprintf("LLM provider '%s' is configured but api_key is empty", c.LLM.Provider))
	}
	if c.Embedding.Provider != "" && c.Embedding.Provider != "none" && c.Embedding.Provider != "ollama" && c.Embedding.APIKey == "" {
		warnings = append(warnings, fmt.Sprintf("embedding provider '%s' is configured but api_key is empty", c.Embedding.Provider))
	}
	if c.Embedding.Provider == "anthropic" {
		warnings = append(warnings, "embedding provider 'anthropic' does not support embeddings")
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2.0 {
		warnings = append(warnings, fmt.Sprintf("LLM temperature %.2f is outside recommended range [0.0, 2.0]", c.LLM.Temperature))
	}
	if c.LLM.MaxTokens < 0 {
		warnings = append(warnings, fmt.Sprintf("LLM max_tokens %d is negative", c.LLM.MaxTokens))
	}

	if c.Chunking.Size <= 0 {
		warnings = append(warnings, fmt.Sprintf("chunking size %d must be positive", c.Chunking.Size))
	} else if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size {
		warnings = append(warnings, fmt.Sprintf("chunking overlap %d must be in [0, %d)", c.Chunking.Overlap, c.Chunking.Size))
	}

	switch c.Vector.Provider {
	case "qdrant", "memory":
	default:
		warnings = append(warnings, fmt.Sprintf("unknown vector provider '%s'", c.Vector.Provider))
	}

	switch c.Chunking.Extractor {
	case "auto", "pdftotext", "native":
	default:
		warnings = append(warnings, fmt.Sprintf("unknown extractor '%s'", c.Chunking.Extractor))
	}

	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		warnings = append(warnings, fmt.Sprintf("tracing sample_rate %.2f is outside [0, 1]", c.Tracing.SampleRate))
	}

	return warnings
}

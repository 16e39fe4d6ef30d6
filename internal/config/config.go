package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Supported annotation providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderStub      = "stub"
)

// Default models per provider, used when prompt.model is not set.
const (
	DefaultOpenAIModel    = "gpt-4.1-2025-04-14"
	DefaultAnthropicModel = "claude-haiku-4-5-20251001"
	DefaultStubModel      = "stub"
)

// DefaultSystemPrompt asks for a one-or-two word classification of the
// decision's main driver.
const DefaultSystemPrompt = "You are an expert summarizer of central bank meeting minutes. " +
	"Given the following meeting minutes, extract and state the main reason for the monetary policy decision. " +
	"Focus on whether the main cause was domestic or international. One or two words only."

// Config holds the full application configuration.
type Config struct {
	Provider  string          `yaml:"provider" mapstructure:"provider"`
	OpenAI    OpenAIConfig    `yaml:"openai" mapstructure:"openai"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Stub      StubConfig      `yaml:"stub" mapstructure:"stub"`
	Prompt    PromptConfig    `yaml:"prompt" mapstructure:"prompt"`
	Batch     BatchConfig     `yaml:"batch" mapstructure:"batch"`
	Input     InputConfig     `yaml:"input" mapstructure:"input"`
	Output    OutputConfig    `yaml:"output" mapstructure:"output"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Pricing   PricingConfig   `yaml:"pricing" mapstructure:"pricing"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// OpenAIConfig holds OpenAI API settings.
type OpenAIConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// StubConfig configures the offline provider.
type StubConfig struct {
	Response string `yaml:"response" mapstructure:"response"`
}

// PromptConfig holds the fixed generation settings for every row.
type PromptConfig struct {
	System      string  `yaml:"system" mapstructure:"system"`
	Model       string  `yaml:"model" mapstructure:"model"`
	MaxTokens   int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64 `yaml:"temperature" mapstructure:"temperature"`
}

// BatchConfig configures row processing.
type BatchConfig struct {
	Concurrency        int `yaml:"concurrency" mapstructure:"concurrency"`
	RequestsPerMinute  int `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
	RequestTimeoutSecs int `yaml:"request_timeout_secs" mapstructure:"request_timeout_secs"`
}

// InputConfig locates the minutes table.
type InputConfig struct {
	Path       string `yaml:"path" mapstructure:"path"`
	IDColumn   string `yaml:"id_column" mapstructure:"id_column"`
	TextColumn string `yaml:"text_column" mapstructure:"text_column"`
}

// OutputConfig locates the results table.
type OutputConfig struct {
	Path             string `yaml:"path" mapstructure:"path"`
	AnnotationColumn string `yaml:"annotation_column" mapstructure:"annotation_column"`
	ErrorColumn      string `yaml:"error_column" mapstructure:"error_column"`
}

// StoreConfig configures the optional run history database. An empty
// driver disables it.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"` // postgres only; 0 = default
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// PricingConfig overrides per-model token pricing. Models is a list rather
// than a map because viper splits map keys on "." and most model names
// contain one.
type PricingConfig struct {
	Models []ModelPricing `yaml:"models" mapstructure:"models"`
}

// ModelPricing holds per-model token pricing (USD per million tokens).
type ModelPricing struct {
	Model         string  `yaml:"model" mapstructure:"model"`
	Input         float64 `yaml:"input" mapstructure:"input"`
	Output        float64 `yaml:"output" mapstructure:"output"`
	CacheWriteMul float64 `yaml:"cache_write_mul" mapstructure:"cache_write_mul"`
	CacheReadMul  float64 `yaml:"cache_read_mul" mapstructure:"cache_read_mul"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("MINUTES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Provider-native credential variables work as fallbacks.
	if err := v.BindEnv("openai.key", "MINUTES_OPENAI_KEY", "OPENAI_API_KEY"); err != nil {
		return nil, eris.Wrap(err, "config: bind openai key")
	}
	if err := v.BindEnv("anthropic.key", "MINUTES_ANTHROPIC_KEY", "ANTHROPIC_API_KEY"); err != nil {
		return nil, eris.Wrap(err, "config: bind anthropic key")
	}
	// No default for prompt.model: it depends on the provider.
	if err := v.BindEnv("prompt.model", "MINUTES_PROMPT_MODEL"); err != nil {
		return nil, eris.Wrap(err, "config: bind prompt model")
	}

	// Defaults
	v.SetDefault("provider", ProviderOpenAI)
	v.SetDefault("openai.base_url", "")
	v.SetDefault("anthropic.base_url", "")
	v.SetDefault("stub.response", "Domestic")
	v.SetDefault("prompt.system", DefaultSystemPrompt)
	v.SetDefault("prompt.max_tokens", 200)
	v.SetDefault("prompt.temperature", 0.2)
	v.SetDefault("batch.concurrency", 1)
	v.SetDefault("batch.requests_per_minute", 0)
	v.SetDefault("batch.request_timeout_secs", 60)
	v.SetDefault("input.path", "data/minutes_tbl.csv")
	v.SetDefault("input.id_column", "date")
	v.SetDefault("input.text_column", "text")
	v.SetDefault("output.path", "data/results.csv")
	v.SetDefault("output.annotation_column", "main_reason")
	v.SetDefault("output.error_column", "error")
	v.SetDefault("store.driver", "")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 0)
	v.SetDefault("store.min_conns", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	if cfg.Prompt.Model == "" {
		cfg.Prompt.Model = DefaultModel(cfg.Provider)
	}

	return &cfg, nil
}

// DefaultModel returns the model used for provider when none is configured.
func DefaultModel(provider string) string {
	switch provider {
	case ProviderAnthropic:
		return DefaultAnthropicModel
	case ProviderStub:
		return DefaultStubModel
	default:
		return DefaultOpenAIModel
	}
}

// Credential returns the API key for the selected provider.
func (c *Config) Credential() string {
	switch c.Provider {
	case ProviderOpenAI:
		return c.OpenAI.Key
	case ProviderAnthropic:
		return c.Anthropic.Key
	default:
		return ""
	}
}

// SetCredential overrides the API key for the selected provider.
func (c *Config) SetCredential(key string) {
	switch c.Provider {
	case ProviderOpenAI:
		c.OpenAI.Key = key
	case ProviderAnthropic:
		c.Anthropic.Key = key
	}
}

// Validate reports every problem that must stop a run before any row is
// processed.
func (c *Config) Validate() error {
	var problems []string

	switch c.Provider {
	case ProviderOpenAI:
		if strings.TrimSpace(c.OpenAI.Key) == "" {
			problems = append(problems, "missing credential: set MINUTES_OPENAI_KEY or OPENAI_API_KEY")
		}
	case ProviderAnthropic:
		if strings.TrimSpace(c.Anthropic.Key) == "" {
			problems = append(problems, "missing credential: set MINUTES_ANTHROPIC_KEY or ANTHROPIC_API_KEY")
		}
	case ProviderStub:
	default:
		problems = append(problems, fmt.Sprintf("unknown provider %q", c.Provider))
	}

	if strings.TrimSpace(c.Prompt.System) == "" {
		problems = append(problems, "prompt.system is empty")
	}
	if strings.TrimSpace(c.Prompt.Model) == "" {
		problems = append(problems, "prompt.model is empty")
	}
	if msg := c.modelMismatch(); msg != "" {
		problems = append(problems, msg)
	}
	if c.Prompt.MaxTokens <= 0 {
		problems = append(problems, "prompt.max_tokens must be positive")
	}
	if c.Prompt.Temperature < 0 {
		problems = append(problems, "prompt.temperature must not be negative")
	}
	if c.Batch.Concurrency < 1 || c.Batch.Concurrency > 50 {
		problems = append(problems, "batch.concurrency must be between 1 and 50")
	}
	if c.Batch.RequestsPerMinute < 0 {
		problems = append(problems, "batch.requests_per_minute must not be negative")
	}
	if c.Input.Path == "" {
		problems = append(problems, "input.path is empty")
	}
	if c.Output.Path == "" {
		problems = append(problems, "output.path is empty")
	}
	switch c.Store.Driver {
	case "", "sqlite":
	case "postgres":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required for postgres")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown store driver %q", c.Store.Driver))
	}
	for i, mp := range c.Pricing.Models {
		if strings.TrimSpace(mp.Model) == "" {
			problems = append(problems, fmt.Sprintf("pricing.models[%d].model is empty", i))
		}
		if mp.Input < 0 || mp.Output < 0 || mp.CacheWriteMul < 0 || mp.CacheReadMul < 0 {
			problems = append(problems, fmt.Sprintf("pricing.models[%d] has a negative rate", i))
		}
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// modelMismatch catches a model from the other provider's family, which
// would otherwise fail every row with a 404. Custom base URLs may serve
// arbitrary model names, so they are not checked.
func (c *Config) modelMismatch() string {
	model := strings.ToLower(c.Prompt.Model)
	switch c.Provider {
	case ProviderAnthropic:
		if c.Anthropic.BaseURL == "" && model != "" && !strings.HasPrefix(model, "claude") {
			return fmt.Sprintf("prompt.model %q is not an Anthropic model", c.Prompt.Model)
		}
	case ProviderOpenAI:
		if c.OpenAI.BaseURL == "" && strings.HasPrefix(model, "claude") {
			return fmt.Sprintf("prompt.model %q is not an OpenAI model", c.Prompt.Model)
		}
	}
	return ""
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}

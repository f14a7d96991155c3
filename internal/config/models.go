package config

import (
	"fmt"
	"time"
)

// LLMConfig represents the provider choice and the shared call discipline
type LLMConfig struct {
	Provider  string
	Timeout   time.Duration
	RateLimit float64
	Burst     int
	Retry     RetryConfig
}

// RetryConfig represents the backoff applied to transient service failures
type RetryConfig struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
}

// OpenAIConfig represents the configuration for OpenAI-compatible endpoints
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	ModelName   string
	Referer     string
	AppName     string
	MaxTokens   int
	Temperature float32
	TopP        float32
}

// GeminiConfig represents the configuration for Google Gemini
type GeminiConfig struct {
	APIKey      string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
}

// BedrockConfig represents the configuration for Amazon Bedrock
type BedrockConfig struct {
	Region      string
	ModelID     string
	MaxTokens   int
	Temperature float32
	TopP        float32
}

// PipelineConfig represents classification limits and routing lists
type PipelineConfig struct {
	Intents          []string
	MessageIntents   []string
	MinClassifyChars int
	MaxClassifyChars int
	CRMMaxChars      int
	Concurrency      int
	SchemaFile       string
}

// JournalConfig represents where the event store persists its records
type JournalConfig struct {
	Type             string
	Path             string
	SQLitePath       string
	MySQLDSN         string
	PostgresDSN      string
	ValidateOnReplay bool
}

// SMTPConfig represents the SMTP intake listener
type SMTPConfig struct {
	ListenAddress   string
	Domain          string
	AllowedDomains  []string
	MaxMessageBytes int64
}

// IntakeConfig represents how inputs enter the pipeline
type IntakeConfig struct {
	Type string
	SMTP SMTPConfig
}

// GetLLM returns the LLM configuration
func (c *Config) GetLLM() (LLMConfig, error) {
	timeout, err := c.GetDuration("llm.timeout")
	if err != nil {
		return LLMConfig{}, err
	}
	retry, err := c.GetRetry()
	if err != nil {
		return LLMConfig{}, err
	}
	return LLMConfig{
		Provider:  c.GetString("llm.provider"),
		Timeout:   timeout,
		RateLimit: c.GetFloat64("llm.rate_limit"),
		Burst:     c.GetInt("llm.burst"),
		Retry:     retry,
	}, nil
}

// GetRetry returns the retry configuration
func (c *Config) GetRetry() (RetryConfig, error) {
	initial, err := c.GetDuration("llm.retry.initial_interval")
	if err != nil {
		return RetryConfig{}, err
	}
	maxInterval, err := c.GetDuration("llm.retry.max_interval")
	if err != nil {
		return RetryConfig{}, err
	}
	attempts := c.GetInt("llm.retry.max_attempts")
	if attempts < 1 {
		return RetryConfig{}, fmt.Errorf("llm.retry.max_attempts must be at least 1, got %d", attempts)
	}
	return RetryConfig{
		MaxAttempts:     attempts,
		InitialInterval: initial,
		MaxInterval:     maxInterval,
		Multiplier:      c.GetFloat64("llm.retry.multiplier"),
	}, nil
}

// GetOpenAI returns the OpenAI configuration
func (c *Config) GetOpenAI() OpenAIConfig {
	return OpenAIConfig{
		APIKey:      c.GetString("openai.api_key"),
		BaseURL:     c.GetString("openai.base_url"),
		ModelName:   c.GetString("openai.model_name"),
		Referer:     c.GetString("openai.referer"),
		AppName:     c.GetString("openai.app_name"),
		MaxTokens:   c.GetInt("openai.max_tokens"),
		Temperature: float32(c.GetFloat64("openai.temperature")),
		TopP:        float32(c.GetFloat64("openai.top_p")),
	}
}

// GetGemini returns the Gemini configuration
func (c *Config) GetGemini() GeminiConfig {
	return GeminiConfig{
		APIKey:      c.GetString("gemini.api_key"),
		ModelName:   c.GetString("gemini.model_name"),
		MaxTokens:   c.GetInt("gemini.max_tokens"),
		Temperature: float32(c.GetFloat64("gemini.temperature")),
		TopP:        float32(c.GetFloat64("gemini.top_p")),
	}
}

// GetBedrock returns the Bedrock configuration
func (c *Config) GetBedrock() BedrockConfig {
	return BedrockConfig{
		Region:      c.GetString("bedrock.region"),
		ModelID:     c.GetString("bedrock.model_id"),
		MaxTokens:   c.GetInt("bedrock.max_tokens"),
		Temperature: float32(c.GetFloat64("bedrock.temperature")),
		TopP:        float32(c.GetFloat64("bedrock.top_p")),
	}
}

// GetPipeline returns the pipeline configuration
func (c *Config) GetPipeline() PipelineConfig {
	return PipelineConfig{
		Intents:          c.GetStringSlice("pipeline.intents"),
		MessageIntents:   c.GetStringSlice("pipeline.message_intents"),
		MinClassifyChars: c.GetInt("pipeline.min_classify_chars"),
		MaxClassifyChars: c.GetInt("pipeline.max_classify_chars"),
		CRMMaxChars:      c.GetInt("pipeline.crm_max_chars"),
		Concurrency:      c.GetInt("pipeline.concurrency"),
		SchemaFile:       c.GetString("pipeline.schema_file"),
	}
}

// GetJournal returns the journal configuration
func (c *Config) GetJournal() JournalConfig {
	return JournalConfig{
		Type:             c.GetString("journal.type"),
		Path:             c.GetString("journal.path"),
		SQLitePath:       c.GetString("journal.sqlite_path"),
		MySQLDSN:         c.GetString("journal.mysql_dsn"),
		PostgresDSN:      c.GetString("journal.postgres_dsn"),
		ValidateOnReplay: c.GetBool("journal.validate_on_replay"),
	}
}

// GetIntake returns the intake configuration
func (c *Config) GetIntake() IntakeConfig {
	return IntakeConfig{
		Type: c.GetString("intake.type"),
		SMTP: SMTPConfig{
			ListenAddress:   c.GetString("intake.smtp.listen_address"),
			Domain:          c.GetString("intake.smtp.domain"),
			AllowedDomains:  c.GetStringSlice("intake.smtp.allowed_domains"),
			MaxMessageBytes: c.v.GetInt64("intake.smtp.max_message_bytes"),
		},
	}
}

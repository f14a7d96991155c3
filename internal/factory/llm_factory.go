package factory

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/mikey/doc-router/internal/adapters/bedrock"
	"github.com/mikey/doc-router/internal/adapters/gemini"
	"github.com/mikey/doc-router/internal/adapters/openai"
	"github.com/mikey/doc-router/internal/config"
	"github.com/mikey/doc-router/internal/core"
	"github.com/mikey/doc-router/internal/retry"
)

// LLMFactory creates LLM clients
type LLMFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewLLMFactory creates a new LLM factory
func NewLLMFactory(cfg *config.Config, logger *zap.Logger) *LLMFactory {
	return &LLMFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateProviderClient creates the bare client for the configured provider
func (f *LLMFactory) CreateProviderClient(provider string) (core.LLMClient, error) {
	switch provider {
	case "bedrock":
		return bedrock.NewFactory(f.cfg, f.logger).CreateLLMClient()
	case "gemini":
		return gemini.NewFactory(f.cfg, f.logger).CreateLLMClient()
	case "openai", "openrouter":
		return openai.NewFactory(f.cfg, f.logger).CreateLLMClient()
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", provider)
	}
}

// CreateLLMClient creates the configured provider client wrapped in the retry policy
func (f *LLMFactory) CreateLLMClient() (*retry.Caller, error) {
	llmCfg, err := f.cfg.GetLLM()
	if err != nil {
		return nil, err
	}

	client, err := f.CreateProviderClient(llmCfg.Provider)
	if err != nil {
		return nil, err
	}

	f.logger.Info("Created LLM client",
		zap.String("provider", llmCfg.Provider),
		zap.Int("max_attempts", llmCfg.Retry.MaxAttempts),
		zap.Duration("timeout", llmCfg.Timeout))

	return retry.NewCaller(client, retry.Policy{
		MaxAttempts:     llmCfg.Retry.MaxAttempts,
		InitialInterval: llmCfg.Retry.InitialInterval,
		MaxInterval:     llmCfg.Retry.MaxInterval,
		Multiplier:      llmCfg.Retry.Multiplier,
	}, f.logger,
		retry.WithTimeout(llmCfg.Timeout),
		retry.WithRateLimit(llmCfg.RateLimit, llmCfg.Burst),
	), nil
}

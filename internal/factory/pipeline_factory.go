package factory

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/mikey/doc-router/internal/classifier"
	"github.com/mikey/doc-router/internal/config"
	"github.com/mikey/doc-router/internal/core"
	"github.com/mikey/doc-router/internal/crm"
	"github.com/mikey/doc-router/internal/extraction"
	"github.com/mikey/doc-router/internal/router"
	"github.com/mikey/doc-router/internal/schema"
	"github.com/mikey/doc-router/internal/utils"
)

// PipelineFactory assembles the classifier, handlers and router
type PipelineFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewPipelineFactory creates a new pipeline factory
func NewPipelineFactory(cfg *config.Config, logger *zap.Logger) *PipelineFactory {
	return &PipelineFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateTextProcessor creates the processor that prepares content for prompts
func (f *PipelineFactory) CreateTextProcessor() *utils.TextProcessor {
	return utils.NewTextProcessor(f.logger.Named("text"))
}

// CreateCatalog builds the intent catalog from configuration or the defaults
func (f *PipelineFactory) CreateCatalog() *core.Catalog {
	names := f.cfg.GetPipeline().Intents
	if len(names) == 0 {
		return core.NewCatalog(core.DefaultIntents)
	}
	return core.NewCatalog(toIntents(names))
}

// CreateRegistry builds the schema registry, merging any configured schema file over the defaults
func (f *PipelineFactory) CreateRegistry(catalog *core.Catalog) (*schema.Registry, error) {
	path := f.cfg.GetPipeline().SchemaFile
	registry, err := schema.Build(catalog, path)
	if err != nil {
		return nil, fmt.Errorf("failed to build schema registry: %w", err)
	}
	f.logger.Info("Loaded schemas", zap.Any("intents", registry.Intents()), zap.String("file", path))
	return registry, nil
}

// CreateRouter wires the pipeline components
func (f *PipelineFactory) CreateRouter(
	client core.LLMClient,
	catalog *core.Catalog,
	registry *schema.Registry,
	store core.EventStore,
	text *utils.TextProcessor,
) *router.Router {
	p := f.cfg.GetPipeline()

	clsCfg := classifier.DefaultConfig()
	if p.MinClassifyChars > 0 {
		clsCfg.MinChars = p.MinClassifyChars
	}
	if p.MaxClassifyChars > 0 {
		clsCfg.MaxChars = p.MaxClassifyChars
	}
	if len(p.MessageIntents) > 0 {
		clsCfg.MessageIntents = toIntents(p.MessageIntents)
	}

	crmCfg := crm.DefaultConfig()
	if p.CRMMaxChars > 0 {
		crmCfg.MaxChars = p.CRMMaxChars
	}

	return router.New(
		classifier.New(client, catalog, store, text, clsCfg, f.logger),
		extraction.New(registry, store, f.logger),
		crm.New(client, store, text, crmCfg, f.logger),
		store,
		p.Concurrency,
		f.logger,
	)
}

func toIntents(names []string) []core.Intent {
	intents := make([]core.Intent, len(names))
	for i, n := range names {
		intents[i] = core.Intent(n)
	}
	return intents
}

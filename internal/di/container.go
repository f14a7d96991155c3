package di

import (
	"context"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/doc-router/internal/config"
	"github.com/mikey/doc-router/internal/core"
	"github.com/mikey/doc-router/internal/eventstore"
	"github.com/mikey/doc-router/internal/factory"
	"github.com/mikey/doc-router/internal/logging"
	"github.com/mikey/doc-router/internal/ports"
	"github.com/mikey/doc-router/internal/router"
	"github.com/mikey/doc-router/internal/schema"
	"github.com/mikey/doc-router/internal/utils"
)

// BuildContainer creates a container configured from the standard config search path
func BuildContainer() (*dig.Container, error) {
	container := dig.New()

	// Register configuration
	if err := container.Provide(config.New); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}

	if err := providePipeline(container); err != nil {
		return nil, err
	}
	return container, nil
}

// providePipeline registers everything downstream of configuration and logging
func providePipeline(container *dig.Container) error {
	// Register factories
	for _, ctor := range []any{
		factory.NewLLMFactory,
		factory.NewJournalFactory,
		factory.NewPipelineFactory,
		factory.NewIntakeFactory,
	} {
		if err := container.Provide(ctor); err != nil {
			return err
		}
	}

	// Register LLM client with the retry policy applied
	if err := container.Provide(func(f *factory.LLMFactory) (core.LLMClient, error) {
		client, err := f.CreateLLMClient()
		if err != nil {
			return nil, err
		}
		return client, nil
	}); err != nil {
		return err
	}

	// Register text processor
	if err := container.Provide(func(f *factory.PipelineFactory) *utils.TextProcessor {
		return f.CreateTextProcessor()
	}); err != nil {
		return err
	}

	// Register journal and the event store replayed from it
	if err := container.Provide(func(f *factory.JournalFactory) (core.Journal, error) {
		return f.CreateJournal(context.Background())
	}); err != nil {
		return err
	}
	if err := container.Provide(func(journal core.Journal, logger *zap.Logger) (*eventstore.Store, error) {
		return eventstore.Open(context.Background(), journal, logger.Named("eventstore"))
	}); err != nil {
		return err
	}
	if err := container.Provide(func(s *eventstore.Store) core.EventStore { return s }); err != nil {
		return err
	}

	// Register intent catalog and schema registry
	if err := container.Provide(func(f *factory.PipelineFactory) *core.Catalog {
		return f.CreateCatalog()
	}); err != nil {
		return err
	}
	if err := container.Provide(func(f *factory.PipelineFactory, catalog *core.Catalog) (*schema.Registry, error) {
		return f.CreateRegistry(catalog)
	}); err != nil {
		return err
	}

	// Register router
	if err := container.Provide(func(
		f *factory.PipelineFactory,
		client core.LLMClient,
		catalog *core.Catalog,
		registry *schema.Registry,
		store core.EventStore,
		text *utils.TextProcessor,
	) *router.Router {
		return f.CreateRouter(client, catalog, registry, store, text)
	}); err != nil {
		return err
	}
	return container.Provide(func(r *router.Router) ports.Pipeline { return r })
}

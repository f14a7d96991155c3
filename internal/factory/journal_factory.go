package factory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/mikey/doc-router/internal/adapters/journal"
	"github.com/mikey/doc-router/internal/config"
	"github.com/mikey/doc-router/internal/core"
)

// JournalFactory creates event journals based on configuration
type JournalFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewJournalFactory creates a new journal factory
func NewJournalFactory(cfg *config.Config, logger *zap.Logger) *JournalFactory {
	return &JournalFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateJournal creates the configured journal
func (f *JournalFactory) CreateJournal(ctx context.Context) (core.Journal, error) {
	jc := f.cfg.GetJournal()

	switch jc.Type {
	case "memory":
		return journal.NewMemoryJournal(), nil
	case "file":
		return journal.NewFileJournal(jc.Path, jc.ValidateOnReplay, f.logger)
	case "sqlite":
		if err := os.MkdirAll(filepath.Dir(jc.SQLitePath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create SQLite directory: %w", err)
		}
		return journal.NewSQLiteJournal(ctx, jc.SQLitePath, jc.ValidateOnReplay, f.logger)
	case "mysql":
		return journal.NewMySQLJournal(ctx, jc.MySQLDSN, jc.ValidateOnReplay, f.logger)
	case "postgres":
		return journal.NewPostgresJournal(ctx, jc.PostgresDSN, jc.ValidateOnReplay, f.logger)
	default:
		return nil, fmt.Errorf("unsupported journal type: %s", jc.Type)
	}
}

// OpenReadOnly opens the configured journal for inspection. Only the file
// journal has a distinct read-only mode; database journals are opened normally.
func (f *JournalFactory) OpenReadOnly(ctx context.Context) (core.Journal, error) {
	jc := f.cfg.GetJournal()
	switch jc.Type {
	case "file":
		return journal.OpenFileJournalReadOnly(jc.Path, jc.ValidateOnReplay, f.logger)
	case "memory":
		return nil, fmt.Errorf("memory journal cannot be inspected from another process")
	default:
		return f.CreateJournal(ctx)
	}
}

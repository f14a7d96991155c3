package journal

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

var sqliteDialect = dialect{
	name: "sqlite",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS journal_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			event_id TEXT NOT NULL UNIQUE,
			correlation_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			created_at TEXT NOT NULL,
			component TEXT NOT NULL,
			status TEXT NOT NULL,
			digest TEXT NOT NULL,
			record TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_journal_correlation ON journal_events(correlation_id)`,
	},
	placeholder: questionMarks,
}

// NewSQLiteJournal opens a SQLite journal
func NewSQLiteJournal(ctx context.Context, dbPath string, validate bool, logger *zap.Logger) (*SQLJournal, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	db.SetMaxOpenConns(1)
	return newSQLJournal(ctx, db, sqliteDialect, validate, logger)
}

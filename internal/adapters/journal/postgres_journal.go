package journal

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

var postgresDialect = dialect{
	name: "postgres",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS journal_events (
			id BIGSERIAL PRIMARY KEY,
			event_id TEXT NOT NULL UNIQUE,
			correlation_id TEXT NOT NULL,
			seq BIGINT NOT NULL,
			created_at TEXT NOT NULL,
			component TEXT NOT NULL,
			status TEXT NOT NULL,
			digest TEXT NOT NULL,
			record TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_journal_correlation ON journal_events(correlation_id)`,
	},
	placeholder: dollarNumbers,
}

// NewPostgresJournal opens a PostgreSQL journal through the pgx database/sql driver
func NewPostgresJournal(ctx context.Context, dsn string, validate bool, logger *zap.Logger) (*SQLJournal, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open PostgreSQL database: %w", err)
	}
	return newSQLJournal(ctx, db, postgresDialect, validate, logger)
}

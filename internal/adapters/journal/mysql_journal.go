package journal

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
)

var mysqlDialect = dialect{
	name: "mysql",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS journal_events (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			event_id VARCHAR(32) NOT NULL UNIQUE,
			correlation_id VARCHAR(64) NOT NULL,
			seq BIGINT NOT NULL,
			created_at VARCHAR(40) NOT NULL,
			component VARCHAR(64) NOT NULL,
			status VARCHAR(16) NOT NULL,
			digest CHAR(64) NOT NULL,
			record LONGTEXT NOT NULL,
			INDEX idx_journal_correlation (correlation_id)
		)`,
	},
	placeholder: questionMarks,
}

// NewMySQLJournal opens a MySQL journal
func NewMySQLJournal(ctx context.Context, dsn string, validate bool, logger *zap.Logger) (*SQLJournal, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL database: %w", err)
	}
	return newSQLJournal(ctx, db, mysqlDialect, validate, logger)
}

package journal

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/doc-router/internal/core"
)

// dialect holds the statements that differ between SQL backends
type dialect struct {
	name        string
	schema      []string
	placeholder func(n int) string
}

func questionMarks(int) string { return "?" }

func dollarNumbers(n int) string { return fmt.Sprintf("$%d", n) }

// SQLJournal stores records in an events table ordered by an auto-increment key
type SQLJournal struct {
	db      *sql.DB
	dialect dialect
	decoder *Decoder
	logger  *zap.Logger
	insert  string
}

func newSQLJournal(ctx context.Context, db *sql.DB, d dialect, validate bool, logger *zap.Logger) (*SQLJournal, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	decoder, err := NewDecoder(validate)
	if err != nil {
		db.Close()
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to %s database: %w", d.name, err)
	}

	for _, stmt := range d.schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create %s journal schema: %w", d.name, err)
		}
	}

	cols := []string{"event_id", "correlation_id", "seq", "created_at", "component", "status", "digest", "record"}
	params := make([]string, len(cols))
	for i := range cols {
		params[i] = d.placeholder(i + 1)
	}

	insert := fmt.Sprintf("INSERT INTO journal_events (%s) VALUES (%s)",
		strings.Join(cols, ", "), strings.Join(params, ", "))

	return &SQLJournal{
		db:      db,
		dialect: d,
		decoder: decoder,
		logger:  logger,
		insert:  insert,
	}, nil
}

// Write implements core.Journal
func (j *SQLJournal) Write(ctx context.Context, event *core.Event) error {
	data, err := EncodeRecord(event)
	if err != nil {
		return err
	}
	digest, err := Digest(event)
	if err != nil {
		return err
	}

	_, err = j.db.ExecContext(ctx, j.insert,
		event.EventID,
		event.CorrelationID,
		int64(event.Seq),
		event.Timestamp.UTC().Format(time.RFC3339Nano),
		event.Component,
		string(event.Status),
		digest,
		string(data),
	)
	if err != nil {
		return fmt.Errorf("insert %s journal record: %w", j.dialect.name, err)
	}
	return nil
}

// Replay implements core.Journal. Records that fail to verify are logged and skipped.
func (j *SQLJournal) Replay(ctx context.Context, fn func(*core.Event) error) error {
	rows, err := j.db.QueryContext(ctx, "SELECT id, record FROM journal_events ORDER BY id")
	if err != nil {
		return fmt.Errorf("query %s journal: %w", j.dialect.name, err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var record string
		if err := rows.Scan(&id, &record); err != nil {
			return fmt.Errorf("scan %s journal row: %w", j.dialect.name, err)
		}
		event, err := j.decoder.Decode([]byte(record))
		if err != nil {
			j.logger.Warn("Skipping unreadable journal record",
				zap.String("backend", j.dialect.name),
				zap.Int64("id", id),
				zap.Error(err))
			continue
		}
		if err := fn(event); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Close implements core.Journal
func (j *SQLJournal) Close() error {
	return j.db.Close()
}

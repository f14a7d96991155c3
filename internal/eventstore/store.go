// Package eventstore is the correlation-keyed, append-only audit log.
//
// Appends are serialized by a single writer lock held across the durable
// journal write; the in-memory index is published only after the journal has
// been written (or has failed), so readers never block on disk I/O. A failed
// journal write is reported on the fallback logger and never reaches the caller.
package eventstore

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/mikey/doc-router/internal/core"
)

// Store implements core.EventStore
type Store struct {
	journal  core.Journal
	logger   *zap.Logger
	fallback *zap.Logger
	now      func() time.Time

	// writeMu serializes appends, including the durable write
	writeMu sync.Mutex
	seq     uint64
	entropy *ulid.MonotonicEntropy

	mu      sync.RWMutex
	records map[string][][]byte

	writeFailures atomic.Int64
}

// Option configures a Store
type Option func(*Store)

// WithFallbackLogger sets where journal write failures are reported
func WithFallbackLogger(l *zap.Logger) Option {
	return func(s *Store) {
		s.fallback = l
	}
}

// WithClock overrides the timestamp source
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates a store over journal. A nil journal keeps events in memory only.
func New(journal core.Journal, logger *zap.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		journal: journal,
		logger:  logger,
		now:     time.Now,
		entropy: ulid.Monotonic(rand.Reader, 0),
		records: make(map[string][][]byte),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.fallback == nil {
		s.fallback = newFallbackLogger()
	}
	return s
}

// Open creates a store and loads the journal's existing events
func Open(ctx context.Context, journal core.Journal, logger *zap.Logger, opts ...Option) (*Store, error) {
	s := New(journal, logger, opts...)
	if err := s.Replay(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func newFallbackLogger() *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	l, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return l.Named("eventstore")
}

// Replay rebuilds the index from the journal
func (s *Store) Replay(ctx context.Context) error {
	if s.journal == nil {
		return nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	records := make(map[string][][]byte)
	var maxSeq uint64
	count := 0
	err := s.journal.Replay(ctx, func(e *core.Event) error {
		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		records[e.CorrelationID] = append(records[e.CorrelationID], data)
		if e.Seq > maxSeq {
			maxSeq = e.Seq
		}
		count++
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to replay journal: %w", err)
	}

	s.mu.Lock()
	s.records = records
	s.mu.Unlock()
	if maxSeq > s.seq {
		s.seq = maxSeq
	}

	s.logger.Info("Event journal replayed",
		zap.Int("events", count),
		zap.Int("correlations", len(records)))
	return nil
}

// Append records the event and returns its id. The caller's event is not retained.
func (s *Store) Append(ctx context.Context, event *core.Event) string {
	if event == nil {
		return ""
	}
	if event.CorrelationID == "" {
		s.fallback.Error("Rejected event without correlation id",
			zap.String("component", event.Component),
			zap.String("status", string(event.Status)))
		return ""
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	now := s.now().UTC()
	stamped := *event
	stamped.Timestamp = now
	stamped.EventID = ulid.MustNew(ulid.Timestamp(now), s.entropy).String()
	s.seq++
	stamped.Seq = s.seq

	data, err := json.Marshal(&stamped)
	if err != nil {
		s.reportFailure(&stamped, fmt.Errorf("encode event: %w", err))
		return stamped.EventID
	}

	if s.journal != nil {
		frozen, err := decode(data)
		if err == nil {
			err = s.journal.Write(context.WithoutCancel(ctx), frozen)
		}
		if err != nil {
			s.reportFailure(&stamped, err)
		}
	}

	s.mu.Lock()
	s.records[stamped.CorrelationID] = append(s.records[stamped.CorrelationID], data)
	s.mu.Unlock()

	s.logger.Debug("Event appended",
		zap.String("correlation_id", stamped.CorrelationID),
		zap.String("event_id", stamped.EventID),
		zap.Uint64("seq", stamped.Seq),
		zap.String("component", stamped.Component),
		zap.String("status", string(stamped.Status)))

	return stamped.EventID
}

func (s *Store) reportFailure(event *core.Event, err error) {
	s.writeFailures.Add(1)
	s.fallback.Error("Event store write failed",
		zap.String("correlation_id", event.CorrelationID),
		zap.String("event_id", event.EventID),
		zap.String("component", event.Component),
		zap.String("status", string(event.Status)),
		zap.Error(fmt.Errorf("%w: %w", core.ErrStoreWrite, err)))
}

// History returns fresh copies of a correlation's events in append order
func (s *Store) History(correlationID string) []core.Event {
	s.mu.RLock()
	records := s.records[correlationID]
	snapshot := records[:len(records):len(records)]
	s.mu.RUnlock()

	events := make([]core.Event, 0, len(snapshot))
	for _, data := range snapshot {
		e, err := decode(data)
		if err != nil {
			s.fallback.Error("Failed to decode stored event",
				zap.String("correlation_id", correlationID),
				zap.Error(err))
			continue
		}
		events = append(events, *e)
	}
	return events
}

// Summary is the egress view of a correlation's trace
func (s *Store) Summary(correlationID string) []core.Event {
	return s.History(correlationID)
}

// Last returns the most recent event of a correlation
func (s *Store) Last(correlationID string) (core.Event, bool) {
	s.mu.RLock()
	records := s.records[correlationID]
	var data []byte
	if len(records) > 0 {
		data = records[len(records)-1]
	}
	s.mu.RUnlock()

	if data == nil {
		return core.Event{}, false
	}
	e, err := decode(data)
	if err != nil {
		return core.Event{}, false
	}
	return *e, true
}

// AllCorrelations returns every correlation id, sorted
func (s *Store) AllCorrelations() []string {
	s.mu.RLock()
	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// WriteFailures counts journal writes that failed since the store was created
func (s *Store) WriteFailures() int64 {
	return s.writeFailures.Load()
}

// Close closes the journal
func (s *Store) Close() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.fallback.Sync()
	if s.journal == nil {
		return nil
	}
	return s.journal.Close()
}

func decode(data []byte) (*core.Event, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var e core.Event
	if err := dec.Decode(&e); err != nil {
		return nil, err
	}
	if e.CorrelationID == "" {
		return nil, errors.New("event has no correlation id")
	}
	return &e, nil
}

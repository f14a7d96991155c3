package journal

import (
	"context"
	"sync"

	"github.com/mikey/doc-router/internal/core"
)

// MemoryJournal keeps encoded records in memory. It has no durability and is
// meant for dry runs and tests.
type MemoryJournal struct {
	mu      sync.RWMutex
	records [][]byte
	decoder *Decoder
}

// NewMemoryJournal creates a new in-memory journal
func NewMemoryJournal() *MemoryJournal {
	decoder, _ := NewDecoder(false)
	return &MemoryJournal{decoder: decoder}
}

// Write implements core.Journal
func (j *MemoryJournal) Write(ctx context.Context, event *core.Event) error {
	data, err := EncodeRecord(event)
	if err != nil {
		return err
	}
	j.mu.Lock()
	j.records = append(j.records, data)
	j.mu.Unlock()
	return nil
}

// Replay implements core.Journal
func (j *MemoryJournal) Replay(ctx context.Context, fn func(*core.Event) error) error {
	j.mu.RLock()
	records := j.records[:len(j.records):len(j.records)]
	j.mu.RUnlock()

	for _, data := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		event, err := j.decoder.Decode(data)
		if err != nil {
			return err
		}
		if err := fn(event); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of stored records
func (j *MemoryJournal) Len() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.records)
}

// Close implements core.Journal
func (j *MemoryJournal) Close() error {
	return nil
}

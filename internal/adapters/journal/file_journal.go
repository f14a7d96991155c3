package journal

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/mikey/doc-router/internal/core"
)

const maxRecordBytes = 16 << 20

// FileJournal stores one JSON record per line. Each Write appends a complete
// line and fsyncs before returning, so a crash can at worst lose the record
// being written, never corrupt earlier ones.
type FileJournal struct {
	path      string
	mu        sync.Mutex
	file      *os.File
	readOnly  bool
	maxRecord int
	decoder   *Decoder
	logger    *zap.Logger
}

// NewFileJournal opens (creating if needed) a JSON Lines journal for appending
func NewFileJournal(path string, validate bool, logger *zap.Logger) (*FileJournal, error) {
	decoder, err := NewDecoder(validate)
	if err != nil {
		return nil, err
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create journal directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o640)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal file: %w", err)
	}
	if err := terminateLastLine(f); err != nil {
		f.Close()
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileJournal{path: path, file: f, maxRecord: maxRecordBytes, decoder: decoder, logger: logger}, nil
}

// terminateLastLine ends a torn final record so the next append starts on a fresh line
func terminateLastLine(f *os.File) error {
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat journal file: %w", err)
	}
	if info.Size() == 0 {
		return nil
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, info.Size()-1); err != nil {
		return fmt.Errorf("read journal tail: %w", err)
	}
	if last[0] == '\n' {
		return nil
	}
	if _, err := f.Write([]byte{'\n'}); err != nil {
		return fmt.Errorf("terminate journal tail: %w", err)
	}
	return f.Sync()
}

// OpenFileJournalReadOnly opens an existing journal for replay only
func OpenFileJournalReadOnly(path string, validate bool, logger *zap.Logger) (*FileJournal, error) {
	decoder, err := NewDecoder(validate)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to open journal file: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileJournal{path: path, readOnly: true, maxRecord: maxRecordBytes, decoder: decoder, logger: logger}, nil
}

// Write implements core.Journal
func (j *FileJournal) Write(ctx context.Context, event *core.Event) error {
	if j.readOnly {
		return ErrReadOnly
	}
	data, err := EncodeRecord(event)
	if err != nil {
		return err
	}
	if len(data) > j.maxRecord {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrRecordTooLarge, len(data), j.maxRecord)
	}
	data = append(data, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return errors.New("journal is closed")
	}
	if _, err := j.file.Write(data); err != nil {
		return fmt.Errorf("append journal record: %w", err)
	}
	if err := j.file.Sync(); err != nil {
		return fmt.Errorf("sync journal file: %w", err)
	}
	return nil
}

// Replay implements core.Journal. Lines that fail to decode or verify are
// logged and skipped.
func (j *FileJournal) Replay(ctx context.Context, fn func(*core.Event) error) error {
	f, err := os.Open(j.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to open journal file: %w", err)
	}
	defer f.Close()

	reader := bufio.NewReaderSize(f, 64*1024)
	var buf []byte
	line := 0
	skipped := 0
	for {
		data, oversized, err := readRecord(reader, buf, j.maxRecord)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read journal file: %w", err)
		}
		buf = data
		line++
		if err := ctx.Err(); err != nil {
			return err
		}
		if oversized {
			skipped++
			j.logger.Warn("Skipping unreadable journal record",
				zap.String("path", j.path),
				zap.Int("line", line),
				zap.Error(ErrRecordTooLarge))
			continue
		}
		if len(data) == 0 {
			continue
		}
		event, err := j.decoder.Decode(data)
		if err != nil {
			skipped++
			j.logger.Warn("Skipping unreadable journal record",
				zap.String("path", j.path),
				zap.Int("line", line),
				zap.Error(err))
			continue
		}
		if err := fn(event); err != nil {
			return err
		}
	}
	if skipped > 0 {
		j.logger.Warn("Journal replay skipped records",
			zap.String("path", j.path),
			zap.Int("skipped", skipped))
	}
	return nil
}

// readRecord returns the next line without its terminator, reusing buf. A
// line longer than limit is consumed in full and reported as oversized with
// no data.
func readRecord(r *bufio.Reader, buf []byte, limit int) ([]byte, bool, error) {
	buf = buf[:0]
	oversized := false
	for {
		chunk, more, err := r.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) && (len(buf) > 0 || oversized) {
				return buf, oversized, nil
			}
			return nil, false, err
		}
		if !oversized {
			if len(buf)+len(chunk) > limit {
				oversized = true
				buf = buf[:0]
			} else {
				buf = append(buf, chunk...)
			}
		}
		if !more {
			return buf, oversized, nil
		}
	}
}

// Close implements core.Journal
func (j *FileJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return nil
	}
	err := j.file.Close()
	j.file = nil
	return err
}

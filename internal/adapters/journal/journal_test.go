package journal

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/mikey/doc-router/internal/core"
)

func sampleEvent(seq uint64, status core.Status) *core.Event {
	intent := core.Intent("RFQ")
	e := &core.Event{
		EventID:       "01J0000000000000000000000" + string(rune('A'+seq)),
		CorrelationID: "corr-1",
		Seq:           seq,
		Timestamp:     time.Date(2025, 6, 2, 10, 0, int(seq), 0, time.UTC),
		Component:     "Classifier",
		Status:        status,
		Source:        "rfq.json",
		Format:        core.FormatStructured,
		Intent:        &intent,
		ExtractedData: map[string]any{"rfq_id": "RFQ12345", "total": 1200.5},
		Details:       map[string]any{"reasoning": "asks for a quote"},
	}
	return e
}

func replayAll(t *testing.T, j core.Journal) []*core.Event {
	t.Helper()
	var events []*core.Event
	if err := j.Replay(context.Background(), func(e *core.Event) error {
		events = append(events, e)
		return nil
	}); err != nil {
		t.Fatalf("Replay() error = %v", err)
	}
	return events
}

func TestDigestIgnoresKeyOrder(t *testing.T) {
	a := sampleEvent(1, core.StatusReceived)
	b := sampleEvent(1, core.StatusReceived)
	b.ExtractedData = map[string]any{"total": 1200.5, "rfq_id": "RFQ12345"}

	da, err := Digest(a)
	if err != nil {
		t.Fatal(err)
	}
	db, err := Digest(b)
	if err != nil {
		t.Fatal(err)
	}
	if da != db || len(da) != 64 {
		t.Errorf("digests differ or malformed: %s vs %s", da, db)
	}
}

func TestDecoderRejectsTampering(t *testing.T) {
	data, err := EncodeRecord(sampleEvent(1, core.StatusReceived))
	if err != nil {
		t.Fatal(err)
	}
	tampered := []byte(strings.Replace(string(data), "RFQ12345", "RFQ99999", 1))

	dec, err := NewDecoder(true)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := dec.Decode(data); err != nil {
		t.Fatalf("Decode() of intact record error = %v", err)
	}
	if _, err := dec.Decode(tampered); !errors.Is(err, ErrDigestMismatch) {
		t.Errorf("Decode() of tampered record error = %v, want ErrDigestMismatch", err)
	}
	if _, err := dec.Decode([]byte(`{"correlation_id":"x"}`)); !errors.Is(err, ErrInvalidRecord) {
		t.Errorf("Decode() of partial record error = %v, want ErrInvalidRecord", err)
	}
}

func TestFileJournalRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "events.jsonl")
	j, err := NewFileJournal(path, true, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewFileJournal() error = %v", err)
	}

	ctx := context.Background()
	for i, status := range []core.Status{core.StatusReceived, core.StatusClassified, core.StatusProcessed} {
		if err := j.Write(ctx, sampleEvent(uint64(i+1), status)); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}
	if err := j.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := OpenFileJournalReadOnly(path, true, zaptest.NewLogger(t))
	if err != nil {
		t.Fatal(err)
	}
	events := replayAll(t, reopened)
	if len(events) != 3 {
		t.Fatalf("replayed %d events, want 3", len(events))
	}
	if events[2].Status != core.StatusProcessed || events[0].Seq != 1 {
		t.Errorf("unexpected order: %+v", events)
	}
	if events[0].ExtractedData["rfq_id"] != "RFQ12345" {
		t.Errorf("extracted data = %v", events[0].ExtractedData)
	}
	if err := reopened.Write(ctx, sampleEvent(4, core.StatusFailed)); !errors.Is(err, ErrReadOnly) {
		t.Errorf("Write() on read-only journal error = %v", err)
	}
}

func TestFileJournalSkipsCorruptLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	good, err := EncodeRecord(sampleEvent(1, core.StatusReceived))
	if err != nil {
		t.Fatal(err)
	}
	tampered := strings.Replace(string(good), "Classifier", "Router", 1)
	content := string(good) + "\n" + "not json\n" + tampered + "\n" + `{"event_id":"torn`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	obsCore, logs := observer.New(zap.WarnLevel)
	j, err := NewFileJournal(path, true, zap.New(obsCore))
	if err != nil {
		t.Fatal(err)
	}
	defer j.Close()

	// The torn tail must not swallow the next record
	if err := j.Write(context.Background(), sampleEvent(2, core.StatusProcessed)); err != nil {
		t.Fatal(err)
	}

	events := replayAll(t, j)
	if len(events) != 2 {
		t.Fatalf("replayed %d events, want 2", len(events))
	}
	if events[1].Status != core.StatusProcessed {
		t.Errorf("second event = %+v", events[1])
	}
	if n := logs.FilterMessage("Skipping unreadable journal record").Len(); n != 3 {
		t.Errorf("skip warnings = %d, want 3", n)
	}
}

func TestFileJournalOversizedRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	first, err := EncodeRecord(sampleEvent(1, core.StatusReceived))
	if err != nil {
		t.Fatal(err)
	}
	last, err := EncodeRecord(sampleEvent(3, core.StatusProcessed))
	if err != nil {
		t.Fatal(err)
	}
	huge := `{"event_id":"` + strings.Repeat("x", 8192) + `"}`
	content := string(first) + "\n" + huge + "\n" + string(last) + "\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	obsCore, logs := observer.New(zap.WarnLevel)
	j, err := NewFileJournal(path, true, zap.New(obsCore))
	if err != nil {
		t.Fatal(err)
	}
	defer j.Close()
	j.maxRecord = 2048

	big := sampleEvent(2, core.StatusProcessed)
	big.ExtractedData = map[string]any{"notes": strings.Repeat("n", 4096)}
	if err := j.Write(context.Background(), big); !errors.Is(err, ErrRecordTooLarge) {
		t.Fatalf("Write() of oversized event error = %v, want ErrRecordTooLarge", err)
	}

	events := replayAll(t, j)
	if len(events) != 2 {
		t.Fatalf("replayed %d events, want 2", len(events))
	}
	if events[0].Seq != 1 || events[1].Seq != 3 {
		t.Errorf("replayed seqs = %d, %d", events[0].Seq, events[1].Seq)
	}
	if n := logs.FilterMessage("Skipping unreadable journal record").Len(); n != 1 {
		t.Errorf("skip warnings = %d, want 1", n)
	}
}

func TestReadRecordOversizedTail(t *testing.T) {
	r := bufio.NewReaderSize(strings.NewReader("ok\n"+strings.Repeat("z", 100)), 16)
	line, oversized, err := readRecord(r, nil, 10)
	if err != nil || oversized || string(line) != "ok" {
		t.Fatalf("first line = %q, %v, %v", line, oversized, err)
	}
	_, oversized, err = readRecord(r, nil, 10)
	if err != nil || !oversized {
		t.Fatalf("unterminated long tail: oversized=%v err=%v", oversized, err)
	}
	if _, _, err := readRecord(r, nil, 10); !errors.Is(err, io.EOF) {
		t.Errorf("after tail error = %v, want EOF", err)
	}
}

func TestSQLiteJournalRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "events.db")
	j, err := NewSQLiteJournal(ctx, path, true, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewSQLiteJournal() error = %v", err)
	}
	defer j.Close()

	for i, status := range []core.Status{core.StatusReceived, core.StatusClassified} {
		if err := j.Write(ctx, sampleEvent(uint64(i+1), status)); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}
	if err := j.Write(ctx, sampleEvent(1, core.StatusReceived)); err == nil {
		t.Error("duplicate event id should be rejected")
	}

	events := replayAll(t, j)
	if len(events) != 2 || events[1].Status != core.StatusClassified {
		t.Fatalf("replayed %+v", events)
	}
	if events[0].Intent == nil || *events[0].Intent != "RFQ" {
		t.Errorf("intent = %v", events[0].Intent)
	}
}

func TestMemoryJournal(t *testing.T) {
	j := NewMemoryJournal()
	ctx := context.Background()
	if err := j.Write(ctx, sampleEvent(1, core.StatusReceived)); err != nil {
		t.Fatal(err)
	}
	if j.Len() != 1 {
		t.Errorf("Len() = %d", j.Len())
	}
	first := replayAll(t, j)
	second := replayAll(t, j)
	if len(first) != 1 || first[0] == second[0] {
		t.Error("replay should return fresh copies")
	}
}

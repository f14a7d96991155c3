package intake

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/emersion/go-smtp"
	"go.uber.org/zap/zaptest"

	"github.com/mikey/doc-router/internal/allowlist"
	"github.com/mikey/doc-router/internal/config"
	"github.com/mikey/doc-router/internal/core"
	"github.com/mikey/doc-router/internal/router"
)

type recordingPipeline struct {
	mu     sync.Mutex
	inputs []core.Input
}

func (p *recordingPipeline) Process(ctx context.Context, input core.Input) *router.Outcome {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inputs = append(p.inputs, input)
	return &router.Outcome{
		CorrelationID: "corr-" + input.Source,
		Source:        input.Source,
		Route:         core.RoutePassThrough,
		Status:        core.StatusProcessed,
	}
}

func (p *recordingPipeline) ProcessBatch(ctx context.Context, inputs []core.Input) []*router.Outcome {
	out := make([]*router.Outcome, len(inputs))
	for i, in := range inputs {
		out[i] = p.Process(ctx, in)
	}
	return out
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCLIIntakeDeclaresKindByExtension(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		writeFile(t, dir, "rfq.json", `{"rfq_id": "R-1"}`),
		writeFile(t, dir, "mail.eml", "From: a@b.com\nSubject: hi\n\nbody"),
		writeFile(t, dir, "note.txt", "please call me back"),
		writeFile(t, dir, "scan.pdf", "%PDF-1.4\x00\x01binary"),
	}
	writeFile(t, dir, "scan.txt", "Invoice INV-7 total due 400 EUR")

	pipeline := &recordingPipeline{}
	var out bytes.Buffer
	cli := NewCLIIntake(pipeline, nil, zaptest.NewLogger(t), &out, false)
	cli.AddFiles(files...)
	cli.AddText("", "Need a quote for 50 pumps", core.FormatPlainText)

	if err := cli.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	want := map[string]core.Format{
		"rfq.json": core.FormatStructured,
		"mail.eml": core.FormatMessage,
		"note.txt": core.FormatAuto,
		"scan.pdf": core.FormatDocument,
		"inline-1": core.FormatPlainText,
	}
	if len(pipeline.inputs) != len(want) {
		t.Fatalf("got %d inputs, want %d", len(pipeline.inputs), len(want))
	}
	for _, in := range pipeline.inputs {
		if in.Kind != want[in.Source] {
			t.Errorf("%s: kind = %q, want %q", in.Source, in.Kind, want[in.Source])
		}
		if in.Source == "scan.pdf" && string(in.Payload) != "Invoice INV-7 total due 400 EUR" {
			t.Errorf("pdf payload = %q, want sidecar text", in.Payload)
		}
	}

	if len(cli.Outcomes()) != len(want) {
		t.Errorf("got %d outcomes", len(cli.Outcomes()))
	}
	if !strings.Contains(out.String(), "Correlation ID: corr-rfq.json") {
		t.Errorf("summary missing correlation id:\n%s", out.String())
	}
}

func TestCLIIntakeMissingFile(t *testing.T) {
	dir := t.TempDir()
	pipeline := &recordingPipeline{}
	cli := NewCLIIntake(pipeline, nil, zaptest.NewLogger(t), &bytes.Buffer{}, false)
	cli.AddFiles(filepath.Join(dir, "missing.json"), writeFile(t, dir, "ok.txt", "hello there friend"))

	err := cli.Start(context.Background())
	if err == nil || !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
	if len(pipeline.inputs) != 1 || pipeline.inputs[0].Source != "ok.txt" {
		t.Errorf("readable file should still be processed, got %+v", pipeline.inputs)
	}
}

func TestCLIIntakeNoInputs(t *testing.T) {
	cli := NewCLIIntake(&recordingPipeline{}, nil, zaptest.NewLogger(t), &bytes.Buffer{}, false)
	if err := cli.Start(context.Background()); err == nil {
		t.Fatal("expected error with no inputs")
	}
}

func TestSidecarExtractor(t *testing.T) {
	dir := t.TempDir()
	pdf := writeFile(t, dir, "a.pdf", "%PDF\x00")
	writeFile(t, dir, "a.pdf.txt", "sidecar text")

	text, err := SidecarExtractor{}.ExtractText(context.Background(), pdf, []byte("%PDF\x00"))
	if err != nil || text != "sidecar text" {
		t.Errorf("ExtractText = %q, %v", text, err)
	}

	other := writeFile(t, dir, "b.pdf", "%PDF\x00")
	if _, err := (SidecarExtractor{}).ExtractText(context.Background(), other, []byte("%PDF\x00")); !errors.Is(err, ErrNoDocumentText) {
		t.Errorf("expected ErrNoDocumentText, got %v", err)
	}
}

func TestSMTPSessionSubmitsMessage(t *testing.T) {
	pipeline := &recordingPipeline{}
	intake := NewSMTPIntake(pipeline, allowlist.NewChecker([]string{"example.com"}, nil), config.SMTPConfig{}, zaptest.NewLogger(t))

	session, err := (&smtpBackend{intake: intake}).NewSession(nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := session.Mail("buyer@example.com", nil); err != nil {
		t.Fatalf("Mail: %v", err)
	}
	if err := session.Rcpt("sales@router.test", nil); err != nil {
		t.Fatalf("Rcpt: %v", err)
	}
	raw := "From: buyer@example.com\r\nSubject: RFQ\r\n\r\nPlease quote 10 valves.\r\n"
	if err := session.Data(strings.NewReader(raw)); err != nil {
		t.Fatalf("Data: %v", err)
	}

	if len(pipeline.inputs) != 1 {
		t.Fatalf("got %d inputs, want 1", len(pipeline.inputs))
	}
	in := pipeline.inputs[0]
	if in.Kind != core.FormatMessage || in.Source != "smtp:buyer@example.com" || string(in.Payload) != raw {
		t.Errorf("unexpected input: %+v", in)
	}
}

func TestSMTPSessionRejectsSender(t *testing.T) {
	pipeline := &recordingPipeline{}
	intake := NewSMTPIntake(pipeline, allowlist.NewChecker([]string{"example.com"}, nil), config.SMTPConfig{}, zaptest.NewLogger(t))

	session, _ := (&smtpBackend{intake: intake}).NewSession(nil)
	err := session.Mail("spammer@elsewhere.test", nil)

	var smtpErr *smtp.SMTPError
	if !errors.As(err, &smtpErr) || smtpErr.Code != 550 {
		t.Fatalf("expected 550 rejection, got %v", err)
	}
}

func TestSMTPSessionAfterStop(t *testing.T) {
	pipeline := &recordingPipeline{}
	intake := NewSMTPIntake(pipeline, nil, config.SMTPConfig{}, zaptest.NewLogger(t))
	intake.ctx, intake.cancel = context.WithCancel(context.Background())
	if err := intake.Stop(); err != nil {
		t.Fatal(err)
	}

	session, _ := (&smtpBackend{intake: intake}).NewSession(nil)
	_ = session.Mail("a@b.test", nil)
	err := session.Data(strings.NewReader("Subject: x\r\n\r\nbody"))

	var smtpErr *smtp.SMTPError
	if !errors.As(err, &smtpErr) || smtpErr.Code != 421 {
		t.Fatalf("expected 421, got %v", err)
	}
	if len(pipeline.inputs) != 0 {
		t.Error("no input should be submitted after stop")
	}
}

package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/mikey/doc-router/internal/adapters/journal"
	"github.com/mikey/doc-router/internal/classifier"
	"github.com/mikey/doc-router/internal/core"
	"github.com/mikey/doc-router/internal/crm"
	"github.com/mikey/doc-router/internal/eventstore"
	"github.com/mikey/doc-router/internal/extraction"
	"github.com/mikey/doc-router/internal/llmtest"
	"github.com/mikey/doc-router/internal/retry"
	"github.com/mikey/doc-router/internal/schema"
)

func newPipeline(t *testing.T, client core.LLMClient, store *eventstore.Store) *Router {
	t.Helper()
	logger := zaptest.NewLogger(t)
	catalog := core.NewCatalog(core.DefaultIntents)
	registry, err := schema.NewRegistry(catalog, schema.Defaults()...)
	if err != nil {
		t.Fatal(err)
	}
	caller := retry.NewCaller(client, retry.Policy{
		MaxAttempts:     3,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
	}, logger)

	cls := classifier.New(caller, catalog, store, nil, classifier.DefaultConfig(), logger)
	validator := extraction.New(registry, store, logger)
	extractor := crm.New(caller, store, nil, crm.DefaultConfig(), logger)
	return New(cls, validator, extractor, store, 4, logger)
}

// checkTrace verifies the lifecycle of a correlation's history
func checkTrace(t *testing.T, history []core.Event) {
	t.Helper()
	if len(history) == 0 {
		t.Fatal("history is empty")
	}
	if history[0].Status != core.StatusReceived {
		t.Errorf("first event = %s, want Received", history[0].Status)
	}
	terminals := 0
	for i, e := range history {
		if e.CorrelationID == "" {
			t.Errorf("event %d has no correlation id", i)
		}
		if e.Status.Terminal() {
			terminals++
			if i != len(history)-1 {
				t.Errorf("terminal event at %d is not last", i)
			}
		}
		if e.Status == core.StatusClassified && i == 0 {
			t.Error("Classified before Received")
		}
	}
	if terminals != 1 {
		t.Errorf("terminal events = %d, want 1", terminals)
	}
}

func statuses(history []core.Event) []core.Status {
	out := make([]core.Status, len(history))
	for i, e := range history {
		out[i] = e.Status
	}
	return out
}

func TestScenarioStructuredRFQ(t *testing.T) {
	store := eventstore.New(nil, zap.NewNop())
	r := newPipeline(t, llmtest.Text(`{"intent": "RFQ", "reasoning": "Quote request."}`), store)

	payload := `{"rfq_id":"RFQ12345","customer_name":"Acme","items":[{"product_id":"P1","quantity":10}]}`
	out := r.Process(context.Background(), core.Input{Source: "rfq.json", Payload: []byte(payload), Kind: core.FormatStructured})

	if out.Status != core.StatusProcessed || out.Route != core.RouteValidator {
		t.Fatalf("outcome = %+v", out)
	}
	if len(out.Extraction.Anomalies) != 0 {
		t.Errorf("anomalies = %+v", out.Extraction.Anomalies)
	}
	for _, field := range []string{"rfq_id", "customer_name", "items"} {
		if _, ok := out.Extraction.Fields[field]; !ok {
			t.Errorf("field %s missing", field)
		}
	}

	history := store.History(out.CorrelationID)
	checkTrace(t, history)
	want := []core.Status{core.StatusReceived, core.StatusClassified, core.StatusProcessed}
	if !reflect.DeepEqual(statuses(history), want) {
		t.Errorf("statuses = %v", statuses(history))
	}
	last := history[len(history)-1]
	if last.Component != extraction.ComponentName || last.Format != core.FormatStructured {
		t.Errorf("terminal event = %+v", last)
	}
}

func TestScenarioUrgentMessage(t *testing.T) {
	client := llmtest.ByTask(map[string]llmtest.Reply{
		classifier.TaskClassify: {Text: `{"intent": "Complaint", "reasoning": "Damaged goods."}`},
		crm.TaskExtract:         {Text: `{"summary": "Item arrived damaged.", "urgency": "High", "key_entities_actions": ["Replace item"]}`},
	})
	store := eventstore.New(nil, zap.NewNop())
	r := newPipeline(t, client, store)

	payload := "From: Jane Doe <jane@example.com>\r\nSubject: Urgent: damaged item\r\n\r\nThe item I received is broken.\r\n"
	out := r.Process(context.Background(), core.Input{Source: "complaint.eml", Payload: []byte(payload), Kind: core.FormatMessage})

	if out.Status != core.StatusProcessed || out.Route != core.RouteCRM {
		t.Fatalf("outcome = %+v", out)
	}
	if out.CRM.Urgency != core.UrgencyHigh {
		t.Errorf("Urgency = %s", out.CRM.Urgency)
	}
	if out.CRM.Sender != "Jane Doe <jane@example.com>" || out.CRM.Subject != "Urgent: damaged item" {
		t.Errorf("sender/subject = %q / %q", out.CRM.Sender, out.CRM.Subject)
	}
	checkTrace(t, store.History(out.CorrelationID))
}

func TestScenarioClassificationFailure(t *testing.T) {
	store := eventstore.New(nil, zap.NewNop())
	script := llmtest.Failing(core.Transient(errors.New("429 rate limited")))
	r := newPipeline(t, script, store)

	out := r.Process(context.Background(), core.Input{Source: "note.txt", Payload: []byte("Minutes of the quarterly planning meeting.")})

	if out.Classification.Intent != core.IntentUnknown {
		t.Errorf("Intent = %s, want Unknown", out.Classification.Intent)
	}
	if out.Status != core.StatusProcessed || out.Route != core.RoutePassThrough {
		t.Fatalf("outcome = %+v", out)
	}
	if n := len(script.Calls()); n != 3 {
		t.Errorf("service calls = %d, want 3", n)
	}

	history := store.History(out.CorrelationID)
	checkTrace(t, history)
	classified := history[1]
	if classified.Status != core.StatusClassified || classified.Error == nil {
		t.Fatalf("classified event = %+v", classified)
	}
	failure, _ := classified.Details["failure"].(map[string]any)
	if failure["kind"] != "ServiceUnavailable" {
		t.Errorf("failure detail = %v", classified.Details["failure"])
	}
	if last := history[len(history)-1]; last.Component != ComponentName || last.Status != core.StatusProcessed {
		t.Errorf("terminal event = %+v", last)
	}
}

func TestScenarioNoSchema(t *testing.T) {
	store := eventstore.New(nil, zap.NewNop())
	r := newPipeline(t, llmtest.Text(`{"intent": "Invoice", "reasoning": "Amount due."}`), store)

	payload := `{"invoice_no":"INV-7","amount":1200.50,"lines":[{"sku":"A","qty":1}]}`
	out := r.Process(context.Background(), core.Input{Source: "inv.json", Payload: []byte(payload)})

	if out.Status != core.StatusProcessed || out.Extraction == nil {
		t.Fatalf("outcome = %+v", out)
	}
	if out.Extraction.SchemaApplied || len(out.Extraction.Anomalies) != 0 {
		t.Errorf("extraction = %+v", out.Extraction)
	}
	got, _ := json.Marshal(out.Extraction.Fields)
	want := `{"amount":1200.50,"invoice_no":"INV-7","lines":[{"qty":1,"sku":"A"}]}`
	if string(got) != want {
		t.Errorf("fields = %s, want %s", got, want)
	}
	last := store.History(out.CorrelationID)[2]
	if last.Details["schema_applied"] != false {
		t.Errorf("details = %v", last.Details)
	}
}

func TestUndetectableInputFails(t *testing.T) {
	store := eventstore.New(nil, zap.NewNop())
	r := newPipeline(t, llmtest.Text("{}"), store)

	out := r.Process(context.Background(), core.Input{Source: "empty.txt", Payload: []byte("  ")})
	if out.Status != core.StatusFailed || !errors.Is(out.Err, core.ErrFormatUndetectable) {
		t.Fatalf("outcome = %+v", out)
	}
	history := store.History(out.CorrelationID)
	checkTrace(t, history)
	if !reflect.DeepEqual(statuses(history), []core.Status{core.StatusReceived, core.StatusFailed}) {
		t.Errorf("statuses = %v", statuses(history))
	}
}

func TestCancelledBeforeStart(t *testing.T) {
	store := eventstore.New(nil, zap.NewNop())
	script := llmtest.Text(`{"intent": "RFQ"}`)
	r := newPipeline(t, script, store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := r.Process(ctx, core.Input{Source: "x.txt", Payload: []byte("Quote for 10 units of P1 please.")})

	if out.Status != core.StatusFailed || !errors.Is(out.Err, context.Canceled) {
		t.Fatalf("outcome = %+v", out)
	}
	history := store.History(out.CorrelationID)
	checkTrace(t, history)
	if len(history) != 2 || history[1].Details["cancelled"] != true {
		t.Errorf("history = %+v", history)
	}
	if len(script.Calls()) != 0 {
		t.Error("service should not be called")
	}
}

func TestCancelledDuringClassification(t *testing.T) {
	store := eventstore.New(nil, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := llmtest.Func(func(callCtx context.Context, req *core.CompletionRequest) (*core.Completion, error) {
		cancel()
		<-callCtx.Done()
		return nil, callCtx.Err()
	})
	r := newPipeline(t, client, store)

	out := r.Process(ctx, core.Input{Source: "x.txt", Payload: []byte("Please review the attached supplier contract.")})
	if out.Status != core.StatusFailed {
		t.Fatalf("outcome = %+v", out)
	}
	history := store.History(out.CorrelationID)
	checkTrace(t, history)
	want := []core.Status{core.StatusReceived, core.StatusClassified, core.StatusFailed}
	if !reflect.DeepEqual(statuses(history), want) {
		t.Errorf("statuses = %v", statuses(history))
	}
}

func TestCancelledDuringCRMExtraction(t *testing.T) {
	store := eventstore.New(nil, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := llmtest.Func(func(callCtx context.Context, req *core.CompletionRequest) (*core.Completion, error) {
		if req.Task == crm.TaskExtract {
			cancel()
			<-callCtx.Done()
			return nil, callCtx.Err()
		}
		return &core.Completion{Text: `{"intent": "Complaint", "reasoning": "damaged item"}`}, nil
	})
	r := newPipeline(t, client, store)

	out := r.Process(ctx, core.Input{Source: "complaint.txt", Payload: []byte("The item I ordered arrived damaged, I want a refund.")})
	if out.Status != core.StatusFailed || !errors.Is(out.Err, context.Canceled) {
		t.Fatalf("outcome status=%s err=%v", out.Status, out.Err)
	}
	if out.Route != core.RouteCRM {
		t.Errorf("route = %s, want CRM", out.Route)
	}
	history := store.History(out.CorrelationID)
	checkTrace(t, history)
	want := []core.Status{core.StatusReceived, core.StatusClassified, core.StatusFailed}
	if !reflect.DeepEqual(statuses(history), want) {
		t.Fatalf("statuses = %v", statuses(history))
	}
	last := history[len(history)-1]
	failure, _ := last.Details["failure"].(map[string]any)
	if last.Component != ComponentName || failure["kind"] != "Cancelled" {
		t.Errorf("terminal event = %s %v", last.Component, last.Details)
	}
}

func TestProcessBatch(t *testing.T) {
	client := llmtest.ByTask(map[string]llmtest.Reply{
		classifier.TaskClassify: {Text: `{"intent": "Feedback", "reasoning": "Opinion."}`},
		crm.TaskExtract:         {Text: `{"summary": "Positive feedback.", "urgency": "Low", "key_entities_actions": []}`},
	})
	store := eventstore.New(journal.NewMemoryJournal(), zap.NewNop())
	r := newPipeline(t, client, store)

	var inputs []core.Input
	for i := 0; i < 24; i++ {
		switch i % 3 {
		case 0:
			inputs = append(inputs, core.Input{Source: fmt.Sprintf("in%d.json", i), Payload: []byte(fmt.Sprintf(`{"n": %d}`, i))})
		case 1:
			inputs = append(inputs, core.Input{Source: fmt.Sprintf("in%d.eml", i), Payload: []byte(fmt.Sprintf("From: u%d@example.com\nSubject: s%d\n\nGreat service, thanks!", i, i))})
		default:
			inputs = append(inputs, core.Input{Source: fmt.Sprintf("in%d.txt", i), Payload: []byte("I really enjoyed the workshop last week.")})
		}
	}

	outcomes := r.ProcessBatch(context.Background(), inputs)
	if len(outcomes) != len(inputs) {
		t.Fatalf("outcomes = %d", len(outcomes))
	}
	seen := make(map[string]bool)
	for i, out := range outcomes {
		if out.Source != inputs[i].Source {
			t.Errorf("outcome %d source = %s, want %s", i, out.Source, inputs[i].Source)
		}
		if seen[out.CorrelationID] {
			t.Errorf("duplicate correlation id %s", out.CorrelationID)
		}
		seen[out.CorrelationID] = true
		if out.Status != core.StatusProcessed {
			t.Errorf("outcome %d = %+v", i, out)
		}
		checkTrace(t, store.History(out.CorrelationID))
	}
	if len(store.AllCorrelations()) != len(inputs) {
		t.Errorf("correlations = %d", len(store.AllCorrelations()))
	}
}

func TestHistorySurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "events.jsonl")
	j, err := journal.NewFileJournal(path, true, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	store := eventstore.New(j, zap.NewNop())
	r := newPipeline(t, llmtest.Text(`{"intent": "RFQ", "reasoning": "Quote."}`), store)

	out := r.Process(ctx, core.Input{Source: "rfq.json", Payload: []byte(`{"rfq_id":"R1","customer_name":"A","items":[]}`)})
	live := store.History(out.CorrelationID)
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	reader, err := journal.OpenFileJournalReadOnly(path, true, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	reopened, err := eventstore.Open(ctx, reader, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	first := reopened.History(out.CorrelationID)
	second := reopened.History(out.CorrelationID)
	if !reflect.DeepEqual(first, second) || !reflect.DeepEqual(first, live) {
		t.Error("replayed history is not identical to the live history")
	}
	checkTrace(t, first)
}

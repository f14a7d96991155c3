package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/mikey/doc-router/internal/core"
	"github.com/mikey/doc-router/internal/llmtest"
)

var fastPolicy = Policy{
	MaxAttempts:     3,
	InitialInterval: time.Millisecond,
	MaxInterval:     2 * time.Millisecond,
	Multiplier:      2,
}

func TestCallerRetriesTransient(t *testing.T) {
	script := llmtest.NewScript(
		llmtest.Reply{Err: core.Transient(errors.New("429 too many requests"))},
		llmtest.Reply{Text: `{"intent":"RFQ"}`},
	)
	obsCore, logs := observer.New(zap.WarnLevel)
	caller := NewCaller(script, fastPolicy, zap.New(obsCore))

	got, err := caller.Complete(context.Background(), &core.CompletionRequest{Task: "classify"})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if got.Text != `{"intent":"RFQ"}` {
		t.Errorf("Complete() text = %q", got.Text)
	}
	if n := len(script.Calls()); n != 2 {
		t.Errorf("calls = %d, want 2", n)
	}
	if logs.FilterMessage("Service call failed, retrying").Len() != 1 {
		t.Errorf("expected one retry log entry, got %v", logs.All())
	}
}

func TestCallerExhaustsRetries(t *testing.T) {
	script := llmtest.Failing(core.Transient(errors.New("503 unavailable")))
	caller := NewCaller(script, fastPolicy, zap.NewNop())

	_, err := caller.Complete(context.Background(), &core.CompletionRequest{Task: "classify"})
	if !errors.Is(err, core.ErrServiceUnavailable) {
		t.Fatalf("Complete() error = %v, want ErrServiceUnavailable", err)
	}
	if core.IsTransient(err) {
		t.Error("exhausted error should not be transient")
	}
	if core.FailureKind(err) != "ServiceUnavailable" {
		t.Errorf("FailureKind() = %s", core.FailureKind(err))
	}
	if n := len(script.Calls()); n != fastPolicy.MaxAttempts {
		t.Errorf("calls = %d, want %d", n, fastPolicy.MaxAttempts)
	}
}

func TestCallerStopsOnPermanent(t *testing.T) {
	script := llmtest.Failing(errors.New("400 bad request"))
	caller := NewCaller(script, fastPolicy, zap.NewNop())

	_, err := caller.Complete(context.Background(), &core.CompletionRequest{Task: "crm"})
	if !errors.Is(err, core.ErrServiceUnavailable) {
		t.Fatalf("Complete() error = %v", err)
	}
	if n := len(script.Calls()); n != 1 {
		t.Errorf("calls = %d, want 1", n)
	}
}

func TestCallerAttemptTimeoutIsTransient(t *testing.T) {
	calls := 0
	slow := llmtest.Func(func(ctx context.Context, req *core.CompletionRequest) (*core.Completion, error) {
		calls++
		if calls == 1 {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return &core.Completion{Text: "{}"}, nil
	})
	caller := NewCaller(slow, fastPolicy, zap.NewNop(), WithTimeout(5*time.Millisecond))

	if _, err := caller.Complete(context.Background(), &core.CompletionRequest{}); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestCallerHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	script := llmtest.Text("{}")
	caller := NewCaller(script, fastPolicy, zap.NewNop(), WithRateLimit(100, 1))

	_, err := caller.Complete(ctx, &core.CompletionRequest{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Complete() error = %v, want context.Canceled", err)
	}
	if core.FailureKind(err) != "Cancelled" {
		t.Errorf("FailureKind() = %s, want Cancelled", core.FailureKind(err))
	}
}

func TestPolicyDefaults(t *testing.T) {
	p := Policy{}.withDefaults()
	if p != DefaultPolicy {
		t.Errorf("withDefaults() = %+v, want %+v", p, DefaultPolicy)
	}
}

type closingClient struct {
	llmtest.Func
	closed bool
}

func (c *closingClient) Close() error {
	c.closed = true
	return nil
}

func TestCallerClosesWrappedClient(t *testing.T) {
	inner := &closingClient{}
	if err := NewCaller(inner, fastPolicy, nil).Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !inner.closed {
		t.Error("wrapped client was not closed")
	}

	if err := NewCaller(llmtest.Text("{}"), fastPolicy, nil).Close(); err != nil {
		t.Errorf("Close() on a plain client = %v", err)
	}
}

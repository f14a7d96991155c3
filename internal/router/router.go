// Package router wires one input through classification and the handler its
// route selects, recording every step under a single correlation id.
package router

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mikey/doc-router/internal/classifier"
	"github.com/mikey/doc-router/internal/core"
	"github.com/mikey/doc-router/internal/crm"
	"github.com/mikey/doc-router/internal/extraction"
)

// ComponentName is recorded on the events the router emits itself
const ComponentName = "Router"

// Outcome summarizes how one input was processed
type Outcome struct {
	CorrelationID  string
	Source         string
	Classification *core.Classification
	Route          core.Route
	Extraction     *core.ExtractionResult
	CRM            *core.CRMResult
	// Status is the terminal status recorded for the input
	Status core.Status
	Err    error
}

// Router implements the orchestration state machine
type Router struct {
	classifier  *classifier.Classifier
	validator   *extraction.Validator
	crm         *crm.Extractor
	store       core.EventStore
	concurrency int
	logger      *zap.Logger
	newID       func() string
}

// New creates a new router. Concurrency bounds ProcessBatch.
func New(cls *classifier.Classifier, validator *extraction.Validator, extractor *crm.Extractor, store core.EventStore, concurrency int, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &Router{
		classifier:  cls,
		validator:   validator,
		crm:         extractor,
		store:       store,
		concurrency: concurrency,
		logger:      logger,
		newID:       uuid.NewString,
	}
}

// Process runs one input to its terminal event. It never retries; every
// input ends with exactly one Processed or Failed event.
func (r *Router) Process(ctx context.Context, input core.Input) *Outcome {
	trace := core.Trace{
		CorrelationID: r.newID(),
		Source:        input.Source,
		Format:        input.Kind,
	}
	out := &Outcome{CorrelationID: trace.CorrelationID, Source: input.Source}

	r.store.Append(ctx, trace.NewEvent(ComponentName, core.StatusReceived).
		WithDetail("declared_kind", string(input.Kind)).
		WithDetail("payload_bytes", len(input.Payload)))

	if err := ctx.Err(); err != nil {
		return r.abandon(ctx, trace, out, err)
	}

	cls, err := r.classifier.Classify(ctx, trace, input)
	if err != nil {
		// The classifier has already recorded the Failed event
		out.Status = core.StatusFailed
		out.Err = err
		r.logOutcome(out)
		return out
	}
	out.Classification = cls
	out.Route = cls.Route
	trace.Format = cls.Format

	if err := ctx.Err(); err != nil {
		return r.abandon(ctx, trace, out, err)
	}

	switch cls.Route {
	case core.RouteValidator:
		out.Extraction = r.validator.Validate(ctx, trace, cls.Content.Structured, cls.Intent)
		out.Status = core.StatusProcessed
	case core.RouteCRM:
		msg := core.MessageContent{Text: cls.Content.Text}
		if cls.Content.Message != nil {
			msg = *cls.Content.Message
		}
		res, err := r.crm.Extract(ctx, trace, msg, cls.Intent)
		out.CRM = res
		if err != nil {
			return r.abandon(ctx, trace, out, err)
		}
		out.Status = crm.TerminalStatus(out.CRM)
		if out.Status == core.StatusFailed {
			out.Err = fmt.Errorf("crm extraction failed: %s", out.CRM.Error)
		}
	default:
		out.Route = core.RoutePassThrough
		r.store.Append(ctx, trace.NewEvent(ComponentName, core.StatusProcessed).
			WithIntent(cls.Intent).
			WithDetail("route", string(core.RoutePassThrough)).
			WithDetail("message", fmt.Sprintf("No specialised handler for %s input with intent %q; processing ends here.", cls.Format, cls.Intent)))
		out.Status = core.StatusProcessed
	}

	r.logOutcome(out)
	return out
}

// abandon records the terminal Failed event for a cancelled input. The append
// must outlive the cancelled context so the trace stays complete.
func (r *Router) abandon(ctx context.Context, trace core.Trace, out *Outcome, cause error) *Outcome {
	out.Status = core.StatusFailed
	out.Err = fmt.Errorf("processing abandoned: %w", cause)

	event := trace.NewEvent(ComponentName, core.StatusFailed).
		WithDetail("failure", core.FailureDetail(out.Err)).
		WithDetail("cancelled", true).
		WithError(out.Err)
	if out.Classification != nil {
		event.WithIntent(out.Classification.Intent)
	}
	r.store.Append(context.WithoutCancel(ctx), event)

	r.logOutcome(out)
	return out
}

func (r *Router) logOutcome(out *Outcome) {
	fields := []zap.Field{
		zap.String("correlation_id", out.CorrelationID),
		zap.String("source", out.Source),
		zap.String("route", string(out.Route)),
		zap.String("status", string(out.Status)),
	}
	if out.Err != nil {
		r.logger.Warn("Input failed", append(fields, zap.Error(out.Err))...)
		return
	}
	r.logger.Info("Input processed", fields...)
}

// ProcessBatch processes inputs concurrently, bounded by the configured
// concurrency. Outcomes are returned in input order.
func (r *Router) ProcessBatch(ctx context.Context, inputs []core.Input) []*Outcome {
	outcomes := make([]*Outcome, len(inputs))

	g := new(errgroup.Group)
	g.SetLimit(r.concurrency)
	for i, input := range inputs {
		g.Go(func() error {
			outcomes[i] = r.Process(ctx, input)
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

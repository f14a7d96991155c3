// Package classifier detects an input's format, asks the text-generation
// service for its business intent and picks the handler that should process it.
package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mikey/doc-router/internal/core"
	"github.com/mikey/doc-router/internal/message"
	"github.com/mikey/doc-router/internal/normalizer"
	"github.com/mikey/doc-router/internal/utils"
)

// ComponentName is recorded on every event the classifier emits
const ComponentName = "Classifier"

// TaskClassify identifies classification requests to the service
const TaskClassify = "classify"

const systemPrompt = "You are an expert text classification assistant. " +
	"Your response MUST be a single, valid JSON object and nothing else. " +
	"Choose an intent from the provided list."

// Config tunes the classifier
type Config struct {
	// MinChars is the shortest content sent to the service
	MinChars int
	// MaxChars truncates content before it is sent
	MaxChars int
	// MessageIntents route plain text and documents to the CRM extractor
	MessageIntents []core.Intent
}

// DefaultConfig returns the stock limits
func DefaultConfig() Config {
	return Config{
		MinChars:       10,
		MaxChars:       3500,
		MessageIntents: core.DefaultMessageIntents,
	}
}

// Classifier implements format detection, intent classification and routing
type Classifier struct {
	client         core.LLMClient
	catalog        *core.Catalog
	store          core.EventStore
	text           *utils.TextProcessor
	cfg            Config
	messageIntents map[core.Intent]bool
	logger         *zap.Logger
}

// New creates a classifier. The client should already apply the retry policy.
func New(client core.LLMClient, catalog *core.Catalog, store core.EventStore, text *utils.TextProcessor, cfg Config, logger *zap.Logger) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	if text == nil {
		text = utils.NewTextProcessor(logger)
	}
	messageIntents := make(map[core.Intent]bool, len(cfg.MessageIntents))
	for _, in := range cfg.MessageIntents {
		if resolved, ok := catalog.Resolve(string(in)); ok {
			messageIntents[resolved] = true
		}
	}
	return &Classifier{
		client:         client,
		catalog:        catalog,
		store:          store,
		text:           text,
		cfg:            cfg,
		messageIntents: messageIntents,
		logger:         logger,
	}
}

type classificationReply struct {
	Intent    string `json:"intent"`
	Reasoning string `json:"reasoning"`
}

// Classify detects the format of input and classifies its intent. The only
// error return is an undetectable format, after a Failed event has been
// recorded; every other problem degrades the intent to Unknown and is
// recorded on the Classified event.
func (c *Classifier) Classify(ctx context.Context, trace core.Trace, input core.Input) (*core.Classification, error) {
	format, err := DetectFormat(input)
	if err != nil {
		c.logger.Warn("Unable to detect input format",
			zap.String("correlation_id", trace.CorrelationID),
			zap.String("source", input.Source),
			zap.Error(err))
		c.store.Append(ctx, trace.NewEvent(ComponentName, core.StatusFailed).
			WithDetail("failure", core.FailureDetail(err)).
			WithError(err))
		return nil, err
	}
	trace.Format = format

	result := &core.Classification{Format: format, Intent: core.IntentUnknown}
	event := trace.NewEvent(ComponentName, core.StatusClassified)

	content, err := c.prepare(format, input.Payload)
	if err != nil {
		// Content that cannot be prepared is still routed, as plain text
		c.logger.Warn("Failed to prepare content, treating as plain text",
			zap.String("correlation_id", trace.CorrelationID),
			zap.Error(err))
		event.WithDetail("preparation_error", err.Error())
		content = core.Content{Text: string(input.Payload)}
		if format == core.FormatStructured || format == core.FormatMessage {
			format = core.FormatPlainText
			result.Format = format
			event.Format = format
		}
	}
	result.Content = content

	if utils.CharCount(content.Text) < c.cfg.MinChars {
		result.Reasoning = "Content too short or empty for meaningful classification."
		event.WithDetail("skipped", "short_content")
	} else {
		c.classifyIntent(ctx, trace, result, event)
	}

	result.Route = c.Route(result)
	event.WithIntent(result.Intent).
		WithDetail("reasoning", result.Reasoning).
		WithDetail("route", string(result.Route))
	if result.RawResponse != nil {
		event.WithDetail("raw_response", *result.RawResponse)
	}
	if format == core.FormatMessage && content.Message != nil {
		event.WithDetail("headers", content.Message.Headers)
	}
	c.store.Append(ctx, event)

	c.logger.Info("Input classified",
		zap.String("correlation_id", trace.CorrelationID),
		zap.String("format", string(result.Format)),
		zap.String("intent", string(result.Intent)),
		zap.String("route", string(result.Route)))

	return result, nil
}

func (c *Classifier) classifyIntent(ctx context.Context, trace core.Trace, result *core.Classification, event *core.Event) {
	req := &core.CompletionRequest{
		Task:   TaskClassify,
		System: systemPrompt,
		Prompt: c.buildPrompt(c.text.ProcessText(result.Content.Text, c.cfg.MaxChars)),
	}

	completion, err := c.client.Complete(ctx, req)
	if err != nil {
		c.degrade(trace, result, event, err)
		return
	}
	raw := completion.Text
	result.RawResponse = &raw

	reply, err := normalizer.Decode[classificationReply](raw)
	if err == nil && strings.TrimSpace(reply.Intent) == "" {
		err = fmt.Errorf("%w: reply has no intent", core.ErrNormalization)
	}
	if err != nil {
		c.degrade(trace, result, event, err)
		return
	}

	result.Reasoning = reply.Reasoning
	intent, ok := c.catalog.Resolve(reply.Intent)
	if !ok {
		c.logger.Warn("Service returned an intent outside the catalog",
			zap.String("correlation_id", trace.CorrelationID),
			zap.String("intent", reply.Intent))
		event.WithDetail("unrecognized_intent", reply.Intent)
	}
	result.Intent = intent
}

func (c *Classifier) degrade(trace core.Trace, result *core.Classification, event *core.Event, err error) {
	c.logger.Warn("Intent classification failed, falling back to Unknown",
		zap.String("correlation_id", trace.CorrelationID),
		zap.String("kind", core.FailureKind(err)),
		zap.Error(err))
	result.Intent = core.IntentUnknown
	result.Reasoning = "Failed to get a valid classification from the service."
	result.Failure = err
	event.WithDetail("failure", core.FailureDetail(err)).WithError(err)
}

// Route picks the handler for a classification
func (c *Classifier) Route(cls *core.Classification) core.Route {
	switch cls.Format {
	case core.FormatStructured:
		return core.RouteValidator
	case core.FormatMessage:
		return core.RouteCRM
	case core.FormatPlainText, core.FormatDocument:
		if c.messageIntents[cls.Intent] {
			return core.RouteCRM
		}
	}
	return core.RoutePassThrough
}

func (c *Classifier) prepare(format core.Format, payload []byte) (core.Content, error) {
	switch format {
	case core.FormatStructured:
		data, err := decodeStructured(payload)
		if err != nil {
			return core.Content{}, fmt.Errorf("decode structured payload: %w", err)
		}
		pretty, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			return core.Content{}, fmt.Errorf("encode structured payload: %w", err)
		}
		return core.Content{Text: string(pretty), Structured: data}, nil
	case core.FormatMessage:
		msg, err := message.Parse(payload)
		if err != nil {
			return core.Content{}, err
		}
		return core.Content{Text: messageText(msg), Message: msg}, nil
	case core.FormatPlainText, core.FormatDocument:
		text := strings.TrimSpace(string(payload))
		if text == "" {
			return core.Content{}, errors.New("document has no text")
		}
		return core.Content{Text: text}, nil
	}
	return core.Content{}, fmt.Errorf("unsupported format %q", format)
}

func messageText(msg *core.MessageContent) string {
	subject := msg.Header("Subject")
	if subject == "" || strings.Contains(msg.Text, subject) {
		return msg.Text
	}
	return "Subject: " + subject + "\n\n" + msg.Text
}

func (c *Classifier) buildPrompt(content string) string {
	var b strings.Builder
	b.WriteString("Analyze the following text and classify its primary intent.\n")
	b.WriteString("Choose one intent from this list: ")
	b.WriteString(strings.Join(c.catalog.Names(), ", "))
	b.WriteString(".\nProvide a brief reasoning for your classification (1-2 sentences).\n\n")
	b.WriteString("Text:\n\"\"\"\n")
	b.WriteString(content)
	b.WriteString("\n\"\"\"\n\n")
	b.WriteString(`Respond ONLY in valid JSON format with keys "intent" and "reasoning".` + "\n")
	b.WriteString(`Example: {"intent": "RFQ", "reasoning": "The text mentions requesting a quote for specific items."}`)
	return b.String()
}

// Package crm derives a CRM-ready summary from message content.
package crm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/mail"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/mikey/doc-router/internal/core"
	"github.com/mikey/doc-router/internal/normalizer"
	"github.com/mikey/doc-router/internal/utils"
)

// ComponentName is recorded on every event the extractor emits
const ComponentName = "CRMExtractor"

// TaskExtract identifies CRM extraction requests to the service
const TaskExtract = "crm_extract"

const systemPrompt = "You are an expert email analysis assistant. Respond ONLY in valid JSON."

var addressPattern = regexp.MustCompile(`[\w.+-]+@[\w-]+(\.[\w-]+)+`)

// Config tunes the extractor
type Config struct {
	// MaxChars truncates message text before it is sent
	MaxChars int
}

// DefaultConfig returns the stock limits
func DefaultConfig() Config {
	return Config{MaxChars: 3000}
}

// Extractor implements the CRM extraction step
type Extractor struct {
	client core.LLMClient
	store  core.EventStore
	text   *utils.TextProcessor
	cfg    Config
	logger *zap.Logger
}

// New creates a new extractor. The client should already apply the retry policy.
func New(client core.LLMClient, store core.EventStore, text *utils.TextProcessor, cfg Config, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if text == nil {
		text = utils.NewTextProcessor(logger)
	}
	return &Extractor{client: client, store: store, text: text, cfg: cfg, logger: logger}
}

type extractionReply struct {
	SenderEmail string `json:"sender_email"`
	Summary     string `json:"summary"`
	Urgency     string `json:"urgency"`
	Actions     any    `json:"key_entities_actions"`
}

// Extract builds the CRM result for msg. Service and normalization failures
// degrade the result instead of being returned. The event is Failed only
// when the service failed and neither sender nor subject is known.
//
// If ctx is cancelled during the service call no event is recorded and the
// context error is returned; the caller owns the terminal event.
func (x *Extractor) Extract(ctx context.Context, trace core.Trace, msg core.MessageContent, intent core.Intent) (*core.CRMResult, error) {
	result := &core.CRMResult{
		Sender:  msg.Header("From"),
		Subject: msg.Header("Subject"),
		Intent:  intent,
		Urgency: core.UrgencyLow,
		Actions: []string{},
	}
	result.SenderAddress = SenderAddress(result.Sender)

	reply, raw, err := x.ask(ctx, trace, msg, intent, result.SenderAddress)
	if ctxErr := ctx.Err(); err != nil && ctxErr != nil {
		x.logger.Warn("CRM extraction abandoned",
			zap.String("correlation_id", trace.CorrelationID),
			zap.Error(err))
		result.Error = err.Error()
		return result, fmt.Errorf("crm extraction abandoned: %w", ctxErr)
	}

	event := trace.NewEvent(ComponentName, core.StatusProcessed).WithIntent(intent)
	if raw != "" {
		event.WithDetail("raw_response", raw)
	}
	if err != nil {
		x.logger.Warn("CRM extraction failed, using defaults",
			zap.String("correlation_id", trace.CorrelationID),
			zap.String("kind", core.FailureKind(err)),
			zap.Error(err))
		result.Error = err.Error()
		event.WithDetail("failure", core.FailureDetail(err)).WithError(err)
		event.Status = TerminalStatus(result)
	} else {
		x.apply(result, reply, event)
	}

	event.ExtractedData = toMap(result)
	x.store.Append(ctx, event)

	x.logger.Info("CRM extraction completed",
		zap.String("correlation_id", trace.CorrelationID),
		zap.String("intent", string(intent)),
		zap.String("urgency", string(result.Urgency)),
		zap.String("status", string(event.Status)))

	return result, nil
}

func (x *Extractor) ask(ctx context.Context, trace core.Trace, msg core.MessageContent, intent core.Intent, knownSender string) (*extractionReply, string, error) {
	req := &core.CompletionRequest{
		Task:   TaskExtract,
		System: systemPrompt,
		Prompt: buildPrompt(x.text.ProcessText(msg.Text, x.cfg.MaxChars), trace.Format, intent, knownSender),
	}
	completion, err := x.client.Complete(ctx, req)
	if err != nil {
		return nil, "", err
	}
	reply, err := normalizer.Decode[extractionReply](completion.Text)
	if err != nil {
		return nil, completion.Text, err
	}
	return &reply, completion.Text, nil
}

func (x *Extractor) apply(result *core.CRMResult, reply *extractionReply, event *core.Event) {
	urgency, ok := ParseUrgency(reply.Urgency)
	if !ok {
		event.WithDetail("unrecognized_urgency", reply.Urgency)
	}
	result.Urgency = urgency
	result.Summary = strings.TrimSpace(reply.Summary)
	result.Actions = actionList(reply.Actions)

	if result.Sender == "" && reply.SenderEmail != "" {
		result.Sender = reply.SenderEmail
		result.SenderAddress = SenderAddress(reply.SenderEmail)
		event.WithDetail("sender_source", "service")
	}
}

// TerminalStatus is Failed when the service failed and no header field was available
func TerminalStatus(result *core.CRMResult) core.Status {
	if result.Error != "" && result.Sender == "" && result.Subject == "" {
		return core.StatusFailed
	}
	return core.StatusProcessed
}

// ParseUrgency resolves an urgency case-insensitively. Unknown values map to Low.
func ParseUrgency(s string) (core.Urgency, bool) {
	s = strings.TrimSpace(s)
	for _, u := range []core.Urgency{core.UrgencyLow, core.UrgencyMedium, core.UrgencyHigh} {
		if strings.EqualFold(s, string(u)) {
			return u, true
		}
	}
	return core.UrgencyLow, false
}

// SenderAddress extracts the bare address from a From header value
func SenderAddress(from string) string {
	from = strings.TrimSpace(from)
	if from == "" {
		return ""
	}
	if addr, err := mail.ParseAddress(from); err == nil {
		return addr.Address
	}
	return addressPattern.FindString(from)
}

func actionList(v any) []string {
	switch a := v.(type) {
	case nil:
		return []string{}
	case string:
		if s := strings.TrimSpace(a); s != "" {
			return []string{s}
		}
		return []string{}
	case []any:
		out := make([]string, 0, len(a))
		for _, item := range a {
			switch it := item.(type) {
			case string:
				if s := strings.TrimSpace(it); s != "" {
					out = append(out, s)
				}
			case nil:
			default:
				data, err := json.Marshal(it)
				if err == nil {
					out = append(out, string(data))
				}
			}
		}
		return out
	}
	data, err := json.Marshal(v)
	if err != nil {
		return []string{}
	}
	return []string{string(data)}
}

func toMap(result *core.CRMResult) map[string]any {
	data, err := json.Marshal(result)
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}

func buildPrompt(text string, format core.Format, intent core.Intent, sender string) string {
	if format == "" {
		format = core.FormatMessage
	}
	if sender == "" {
		sender = "Unknown"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Analyze the following email content (originally from a %s document with classified intent: %s).\n", format, intent)
	b.WriteString("Extract the following information for CRM usage:\n")
	fmt.Fprintf(&b, "1. Sender Email (if identifiable from text, otherwise use '%s').\n", sender)
	b.WriteString("2. A concise summary of the email (max 50 words).\n")
	b.WriteString("3. Determine the urgency (Low, Medium, High).\n")
	b.WriteString("4. List key entities or action items.\n\n")
	b.WriteString("Email Text:\n\"\"\"\n")
	b.WriteString(text)
	b.WriteString("\n\"\"\"\n\n")
	b.WriteString(`Respond in JSON format with keys: "sender_email", "summary", "urgency", "key_entities_actions".` + "\n")
	b.WriteString(`Example: {"sender_email": "example@example.com", "summary": "Customer inquires about product X.", "urgency": "Medium", "key_entities_actions": ["Product X inquiry", "Follow up with customer"]}`)
	return b.String()
}

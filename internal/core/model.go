package core

import (
	"strings"
	"time"
)

// Format is the detected shape of an input payload
type Format string

const (
	FormatAuto       Format = ""
	FormatStructured Format = "structured"
	FormatMessage    Format = "message"
	FormatPlainText  Format = "plain_text"
	FormatDocument   Format = "document"
)

// ParseFormat converts a declared kind into a Format. Unrecognized kinds map to FormatAuto.
func ParseFormat(kind string) Format {
	switch Format(kind) {
	case FormatStructured, FormatMessage, FormatPlainText, FormatDocument:
		return Format(kind)
	}
	switch kind {
	case "json":
		return FormatStructured
	case "email", "eml":
		return FormatMessage
	case "text", "txt":
		return FormatPlainText
	case "pdf":
		return FormatDocument
	}
	return FormatAuto
}

// Input represents one document entering the pipeline
type Input struct {
	Source  string
	Payload []byte
	Kind    Format
}

// Trace identifies the input a component is working on and is copied into every event
type Trace struct {
	CorrelationID string
	Source        string
	Format        Format
}

// Status is the lifecycle stage recorded by an event
type Status string

const (
	StatusReceived   Status = "Received"
	StatusClassified Status = "Classified"
	StatusProcessed  Status = "Processed"
	StatusFailed     Status = "Failed"
)

// Terminal reports whether the status closes a correlation's trace
func (s Status) Terminal() bool {
	return s == StatusProcessed || s == StatusFailed
}

// Event is one immutable entry of the audit log
type Event struct {
	EventID       string         `json:"event_id"`
	CorrelationID string         `json:"correlation_id"`
	Seq           uint64         `json:"seq"`
	Timestamp     time.Time      `json:"timestamp"`
	Component     string         `json:"component"`
	Status        Status         `json:"status"`
	Source        string         `json:"source"`
	Format        Format         `json:"format"`
	Intent        *Intent        `json:"intent"`
	ExtractedData map[string]any `json:"extracted_data"`
	Details       map[string]any `json:"details"`
	Error         *string        `json:"error"`
}

// NewEvent starts an event for the given trace. EventID, Seq and Timestamp are assigned on append.
func (t Trace) NewEvent(component string, status Status) *Event {
	return &Event{
		CorrelationID: t.CorrelationID,
		Component:     component,
		Status:        status,
		Source:        t.Source,
		Format:        t.Format,
	}
}

// WithIntent sets the classified intent
func (e *Event) WithIntent(intent Intent) *Event {
	e.Intent = &intent
	return e
}

// WithDetail adds a free-form detail
func (e *Event) WithDetail(key string, value any) *Event {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithError records an error message
func (e *Event) WithError(err error) *Event {
	if err == nil {
		return e
	}
	msg := err.Error()
	e.Error = &msg
	return e
}

// AnomalyKind classifies a deviation between a payload and its schema
type AnomalyKind string

const (
	AnomalyMissingRequired AnomalyKind = "MissingRequired"
	AnomalyUnknownField    AnomalyKind = "UnknownField"
	AnomalyMalformedValue  AnomalyKind = "MalformedValue"
)

// Anomaly represents one schema deviation
type Anomaly struct {
	Kind   AnomalyKind `json:"kind"`
	Field  string      `json:"field"`
	Detail string      `json:"detail,omitempty"`
}

// ExtractionResult is the output of validating a structured payload
type ExtractionResult struct {
	Intent        Intent
	SchemaApplied bool
	Fields        map[string]any
	Anomalies     []Anomaly
}

// Urgency of a message as judged for CRM follow-up
type Urgency string

const (
	UrgencyLow    Urgency = "Low"
	UrgencyMedium Urgency = "Medium"
	UrgencyHigh   Urgency = "High"
)

// MessageContent is the text and headers handed to the CRM extractor
type MessageContent struct {
	Text    string
	Headers map[string]string
}

// Header returns a header value using a case-insensitive key match
func (m MessageContent) Header(name string) string {
	if v, ok := m.Headers[name]; ok {
		return v
	}
	for k, v := range m.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// CRMResult represents the CRM-ready summary of a message
type CRMResult struct {
	Sender        string   `json:"sender"`
	SenderAddress string   `json:"sender_address"`
	Subject       string   `json:"subject"`
	Intent        Intent   `json:"intent"`
	Urgency       Urgency  `json:"urgency"`
	Summary       string   `json:"summary"`
	Actions       []string `json:"key_entities_actions"`
	Error         string   `json:"error,omitempty"`
}

// Content is the prepared form of an input after format detection
type Content struct {
	// Text is what the text-generation service sees
	Text       string
	Structured any
	Message    *MessageContent
}

// Classification represents the outcome of format detection and intent classification
type Classification struct {
	Format      Format
	Intent      Intent
	Reasoning   string
	RawResponse *string
	Route       Route
	Content     Content
	// Failure holds the degraded-path error, if any. The classification is still usable.
	Failure error
}

// Route is the handler chosen for a classified input
type Route string

const (
	RouteValidator   Route = "extraction_validator"
	RouteCRM         Route = "crm_extractor"
	RoutePassThrough Route = "pass_through"
)

// CompletionRequest is one call to the text-generation service
type CompletionRequest struct {
	Task   string
	System string
	Prompt string
}

// Completion is the raw reply of the text-generation service
type Completion struct {
	Text       string
	Model      string
	ResponseID string
}

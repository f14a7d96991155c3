// Package extraction validates structured payloads against the schema
// registered for their intent.
package extraction

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/mikey/doc-router/internal/core"
	"github.com/mikey/doc-router/internal/schema"
)

// ComponentName is recorded on every event the validator emits
const ComponentName = "ExtractionValidator"

// RootField names a payload that is not an object
const RootField = "$"

// Validator checks payload fields against the schema registry
type Validator struct {
	registry *schema.Registry
	store    core.EventStore
	logger   *zap.Logger
}

// New creates a new validator
func New(registry *schema.Registry, store core.EventStore, logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{registry: registry, store: store, logger: logger}
}

// Validate extracts fields from payload. Anomalies never stop extraction and
// the method always records exactly one Processed event.
func (v *Validator) Validate(ctx context.Context, trace core.Trace, payload any, intent core.Intent) *core.ExtractionResult {
	result := Check(v.registry, payload, intent)

	event := trace.NewEvent(ComponentName, core.StatusProcessed).
		WithIntent(intent).
		WithDetail("schema_applied", result.SchemaApplied).
		WithDetail("anomaly_count", len(result.Anomalies))
	event.ExtractedData = result.Fields
	if len(result.Anomalies) > 0 {
		event.WithDetail("anomalies", result.Anomalies).
			WithDetail("kind", core.FailureKind(core.ErrSchemaAnomaly))
	}
	v.store.Append(ctx, event)

	v.logger.Info("Structured payload validated",
		zap.String("correlation_id", trace.CorrelationID),
		zap.String("intent", string(intent)),
		zap.Bool("schema_applied", result.SchemaApplied),
		zap.Int("anomalies", len(result.Anomalies)))

	return result
}

// Check is the pure validation step behind Validate
func Check(registry *schema.Registry, payload any, intent core.Intent) *core.ExtractionResult {
	result := &core.ExtractionResult{Intent: intent, Anomalies: []core.Anomaly{}}

	s, ok := registry.Lookup(intent)
	obj, isObject := payload.(map[string]any)
	if !ok {
		if isObject {
			result.Fields = obj
		} else {
			result.Fields = map[string]any{RootField: payload}
		}
		return result
	}

	result.SchemaApplied = true
	if !isObject {
		result.Fields = map[string]any{RootField: payload}
		result.Anomalies = append(result.Anomalies, core.Anomaly{
			Kind:   core.AnomalyMalformedValue,
			Field:  RootField,
			Detail: fmt.Sprintf("expected object, got %s", schema.DescribeValue(payload)),
		})
		return result
	}

	result.Fields = make(map[string]any, len(obj))
	c := &checker{}
	c.object("", s.Fields, obj, result.Fields)
	result.Anomalies = append(result.Anomalies, c.anomalies...)
	return result
}

type checker struct {
	anomalies []core.Anomaly
}

func (c *checker) add(kind core.AnomalyKind, field, detail string) {
	c.anomalies = append(c.anomalies, core.Anomaly{Kind: kind, Field: field, Detail: detail})
}

// object checks obj against fields. Known fields are copied into out when
// out is non-nil; unknown fields are reported and left out.
func (c *checker) object(prefix string, fields []schema.Field, obj map[string]any, out map[string]any) {
	known := make(map[string]bool, len(fields))
	for i := range fields {
		f := &fields[i]
		known[f.Name] = true
		path := join(prefix, f.Name)

		value, present := obj[f.Name]
		if !present {
			if f.Required {
				c.add(core.AnomalyMissingRequired, path, "required field is absent")
			}
			continue
		}
		if out != nil {
			out[f.Name] = value
		}
		c.value(path, f, value)
	}

	unknown := make([]string, 0)
	for key := range obj {
		if !known[key] {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)
	for _, key := range unknown {
		c.add(core.AnomalyUnknownField, join(prefix, key), "field is not part of the schema")
	}
}

func (c *checker) value(path string, f *schema.Field, value any) {
	if value == nil {
		c.add(core.AnomalyMalformedValue, path, "value is null")
		return
	}
	if !f.Type.Accepts(value) {
		c.add(core.AnomalyMalformedValue, path,
			fmt.Sprintf("expected %s, got %s", f.Type, schema.DescribeValue(value)))
		return
	}

	switch f.Type {
	case schema.TypeObject:
		if len(f.Fields) > 0 {
			c.object(path, f.Fields, value.(map[string]any), nil)
		}
	case schema.TypeList:
		if f.Items == nil {
			return
		}
		for i, item := range value.([]any) {
			c.value(fmt.Sprintf("%s[%d]", path, i), f.Items, item)
		}
	}
}

func join(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

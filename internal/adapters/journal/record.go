// Package journal provides the durable append-only media behind the event store.
// Every backend stores the same record: the event's attributes plus a digest of
// its RFC 8785 canonical form, verified again on replay.
package journal

import (
	"bytes"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gowebpki/jcs"
	"github.com/kaptinlin/jsonschema"

	"github.com/mikey/doc-router/internal/core"
)

//go:embed record.schema.json
var recordSchemaJSON []byte

var (
	// ErrDigestMismatch is returned when a stored record does not match its digest
	ErrDigestMismatch = errors.New("journal record digest mismatch")
	// ErrInvalidRecord is returned when a stored record fails schema validation
	ErrInvalidRecord = errors.New("journal record failed validation")
	// ErrReadOnly is returned by Write on a journal opened for inspection
	ErrReadOnly = errors.New("journal is read-only")
	// ErrRecordTooLarge is returned by Write when an encoded event would not fit on one readable line
	ErrRecordTooLarge = errors.New("journal record too large")
)

// Record is the stored form of an event
type Record struct {
	core.Event
	Digest string `json:"digest"`
}

// Digest returns the hex sha256 of the event's canonical JSON form
func Digest(e *core.Event) (string, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("encode event: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize event: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// EncodeRecord returns the single-line stored form of an event
func EncodeRecord(e *core.Event) ([]byte, error) {
	digest, err := Digest(e)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(Record{Event: *e, Digest: digest})
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return data, nil
}

// Decoder turns stored records back into events
type Decoder struct {
	schema *jsonschema.Schema
}

// NewDecoder creates a decoder. With validate set every record is also
// checked against the embedded record schema.
func NewDecoder(validate bool) (*Decoder, error) {
	d := &Decoder{}
	if !validate {
		return d, nil
	}
	compiler := jsonschema.NewCompiler()
	schema, err := compiler.Compile(recordSchemaJSON)
	if err != nil {
		return nil, fmt.Errorf("compile record schema: %w", err)
	}
	d.schema = schema
	return d, nil
}

// Decode parses and verifies one stored record
func (d *Decoder) Decode(data []byte) (*core.Event, error) {
	if d.schema != nil {
		result := d.schema.ValidateJSON(data)
		if !result.IsValid() {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, result.Errors)
		}
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var rec Record
	if err := dec.Decode(&rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	if rec.CorrelationID == "" {
		return nil, fmt.Errorf("%w: missing correlation id", ErrInvalidRecord)
	}

	digest, err := Digest(&rec.Event)
	if err != nil {
		return nil, err
	}
	if digest != rec.Digest {
		return nil, fmt.Errorf("%w: event %s", ErrDigestMismatch, rec.EventID)
	}

	event := rec.Event
	return &event, nil
}

// Package normalizer extracts a structured JSON payload from free-form
// text-generation output. Attempts run in a fixed order: strict parse,
// balanced-span scan, then a small set of repairs followed by both again.
package normalizer

import (
	"bytes"
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/mikey/doc-router/internal/core"
)

const (
	// maxSpanAttempts bounds how many candidate spans are validated
	maxSpanAttempts = 64
	// maxScanPasses bounds rescans after an unclosed bracket, keeping span
	// discovery linear in the reply length
	maxScanPasses = 8
)

var (
	errEmpty     = errors.New("empty response")
	errNoPayload = errors.New("no object or array found")
	errTrailing  = errors.New("trailing data after payload")
)

// NormalizationError is returned when no attempt produced a payload
type NormalizationError struct {
	Raw   string
	Cause error
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("%v: %v", core.ErrNormalization, e.Cause)
}

func (e *NormalizationError) Unwrap() []error {
	return []error{core.ErrNormalization, e.Cause}
}

// Extract returns the payload bytes found in raw
func Extract(raw string) ([]byte, error) {
	var payload []byte
	err := search(raw, func(p []byte) bool {
		payload = p
		return true
	})
	if err != nil {
		return nil, &NormalizationError{Raw: raw, Cause: err}
	}
	return payload, nil
}

// Normalize returns the decoded payload. Objects decode to map[string]any,
// arrays to []any and numbers to json.Number.
func Normalize(raw string) (any, error) {
	payload, err := Extract(raw)
	if err != nil {
		return nil, err
	}
	var v any
	if err := decodeStrict(payload, &v); err != nil {
		return nil, &NormalizationError{Raw: raw, Cause: err}
	}
	return v, nil
}

// Decode unmarshals the first payload in raw that fits T. A reply such as
// "see [1]: {...}" skips the array and decodes the object.
func Decode[T any](raw string) (T, error) {
	var result T
	var decodeErr error
	err := search(raw, func(p []byte) bool {
		var v T
		if err := json.Unmarshal(p, &v); err != nil {
			if decodeErr == nil {
				decodeErr = err
			}
			return false
		}
		result = v
		return true
	})
	if err == nil {
		return result, nil
	}
	if decodeErr != nil {
		err = decodeErr
	}
	return result, &NormalizationError{Raw: raw, Cause: err}
}

// search offers each valid payload to accept, in attempt order, until one is
// accepted. The repaired text is only searched when the original yields none.
func search(raw string, accept func([]byte) bool) error {
	text := strings.TrimSpace(raw)
	if text == "" {
		return errEmpty
	}

	found, err := locate(text, accept)
	if found {
		return nil
	}

	if repaired := repair(text); repaired != text {
		var rerr error
		found, rerr = locate(repaired, accept)
		if found {
			return nil
		}
		err = rerr
	}
	return err
}

func locate(text string, accept func([]byte) bool) (bool, error) {
	if err := validate(text); err == nil && accept([]byte(text)) {
		return true, nil
	}

	lastErr := errNoPayload
	for i, sp := range spans(text) {
		if i == maxSpanAttempts {
			break
		}
		if sp.start == 0 && sp.end == len(text) {
			continue
		}
		payload := text[sp.start:sp.end]
		if err := validate(payload); err != nil {
			lastErr = err
			continue
		}
		if accept([]byte(payload)) {
			return true, nil
		}
	}
	return false, lastErr
}

func validate(s string) error {
	s = strings.TrimSpace(s)
	if s == "" || (s[0] != '{' && s[0] != '[') {
		return errNoPayload
	}
	var v any
	return decodeStrict([]byte(s), &v)
}

func decodeStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); err != io.EOF {
		return errTrailing
	}
	return nil
}

type span struct {
	start, end int
}

// spans returns the balanced {...} and [...] spans of text ordered by start.
// Double quotes delimit strings only inside an open bracket, so prose quotes
// outside a payload are ignored. When a scan ends with a bracket still open,
// its quote tracking may have hidden later spans, and the text is scanned
// again from just past that bracket, at most maxScanPasses times.
func spans(text string) []span {
	var out []span
	seen := make(map[span]bool)
	from := 0
	for pass := 0; pass < maxScanPasses && from < len(text); pass++ {
		found, unclosed := scan(text, from)
		for _, sp := range found {
			if !seen[sp] {
				seen[sp] = true
				out = append(out, sp)
			}
		}
		if unclosed < 0 {
			break
		}
		from = unclosed + 1
	}
	slices.SortFunc(out, func(a, b span) int { return cmp.Compare(a.start, b.start) })
	return out
}

// scan walks text once from the given offset. It returns every balanced span
// it closed and the position of the outermost bracket left open, or -1.
// A mismatched closer abandons every bracket open at that point.
func scan(text string, from int) ([]span, int) {
	type opener struct {
		pos   int
		close byte
	}
	var found []span
	stack := make([]opener, 0, 8)
	inString := false
	escaped := false
	for i := from; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = len(stack) > 0
		case '{':
			stack = append(stack, opener{pos: i, close: '}'})
		case '[':
			stack = append(stack, opener{pos: i, close: ']'})
		case '}', ']':
			if len(stack) == 0 {
				continue
			}
			top := stack[len(stack)-1]
			if top.close != c {
				stack = stack[:0]
				continue
			}
			stack = stack[:len(stack)-1]
			found = append(found, span{start: top.pos, end: i + 1})
		}
	}
	if len(stack) > 0 {
		return found, stack[0].pos
	}
	return found, -1
}

func repair(text string) string {
	text = stripFences(text)
	if !strings.Contains(text, `"`) && strings.Contains(text, "'") {
		text = strings.ReplaceAll(text, "'", `"`)
	}
	return strings.TrimSpace(dropTrailingCommas(text))
}

func stripFences(text string) string {
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

// dropTrailingCommas removes a comma that directly precedes a closing bracket
func dropTrailingCommas(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	inString := false
	escaped := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			b.WriteByte(c)
			continue
		}
		if c == '"' {
			inString = true
		}
		if c == ',' {
			j := i + 1
			for j < len(text) && isSpace(text[j]) {
				j++
			}
			if j < len(text) && (text[j] == '}' || text[j] == ']') {
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

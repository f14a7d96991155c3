package classifier

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/mikey/doc-router/internal/core"
	"github.com/mikey/doc-router/internal/message"
)

// DetectFormat decides how an input should be treated. A declared kind wins
// unless its content contradicts it; otherwise the payload is sniffed.
func DetectFormat(input core.Input) (core.Format, error) {
	trimmed := bytes.TrimSpace(input.Payload)
	if len(trimmed) == 0 {
		return "", fmt.Errorf("%w: empty payload", core.ErrFormatUndetectable)
	}
	if bytes.IndexByte(trimmed, 0) >= 0 {
		return "", fmt.Errorf("%w: binary payload", core.ErrFormatUndetectable)
	}

	switch input.Kind {
	case core.FormatStructured:
		if isStructured(trimmed) {
			return core.FormatStructured, nil
		}
	case core.FormatMessage, core.FormatPlainText, core.FormatDocument:
		return input.Kind, nil
	}

	switch {
	case isStructured(trimmed):
		return core.FormatStructured, nil
	case message.LooksLikeMessage(string(trimmed)):
		return core.FormatMessage, nil
	}
	return core.FormatPlainText, nil
}

func isStructured(b []byte) bool {
	return (b[0] == '{' || b[0] == '[') && json.Valid(b)
}

func decodeStructured(b []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// Package schema holds the per-intent field contracts used to validate structured payloads.
package schema

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mikey/doc-router/internal/core"
)

// Type is the expected JSON shape of a field
type Type string

const (
	TypeString  Type = "string"
	TypeInteger Type = "integer"
	TypeNumber  Type = "number"
	TypeBoolean Type = "boolean"
	TypeObject  Type = "object"
	TypeList    Type = "list"
	TypeAny     Type = "any"
)

var typeAliases = map[string]Type{
	"str":     TypeString,
	"int":     TypeInteger,
	"float":   TypeNumber,
	"bool":    TypeBoolean,
	"dict":    TypeObject,
	"map":     TypeObject,
	"array":   TypeList,
	"":        TypeAny,
	"string":  TypeString,
	"integer": TypeInteger,
	"number":  TypeNumber,
	"boolean": TypeBoolean,
	"object":  TypeObject,
	"list":    TypeList,
	"any":     TypeAny,
}

// ParseType resolves a type name, accepting a few common aliases
func ParseType(name string) (Type, error) {
	t, ok := typeAliases[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return "", fmt.Errorf("unknown field type %q", name)
	}
	return t, nil
}

// Field describes one named entry of a schema. Fields applies to objects, Items to list elements.
type Field struct {
	Name     string  `yaml:"name"`
	Type     Type    `yaml:"type"`
	Required bool    `yaml:"required"`
	Fields   []Field `yaml:"fields,omitempty"`
	Items    *Field  `yaml:"items,omitempty"`
}

// Lookup finds a nested field by name
func (f *Field) Lookup(name string) (*Field, bool) {
	return lookup(f.Fields, name)
}

// Schema is the ordered field contract for one intent
type Schema struct {
	Intent core.Intent `yaml:"intent"`
	Fields []Field     `yaml:"fields"`
}

// Lookup finds a top-level field by name
func (s *Schema) Lookup(name string) (*Field, bool) {
	return lookup(s.Fields, name)
}

func lookup(fields []Field, name string) (*Field, bool) {
	for i := range fields {
		if fields[i].Name == name {
			return &fields[i], true
		}
	}
	return nil, false
}

// Accepts reports whether a decoded JSON value has the expected type.
// Numbers may arrive as json.Number or as any Go numeric type.
func (t Type) Accepts(v any) bool {
	switch t {
	case TypeAny:
		return v != nil
	case TypeString:
		_, ok := v.(string)
		return ok
	case TypeBoolean:
		_, ok := v.(bool)
		return ok
	case TypeObject:
		_, ok := v.(map[string]any)
		return ok
	case TypeList:
		_, ok := v.([]any)
		return ok
	case TypeNumber:
		switch n := v.(type) {
		case json.Number:
			_, err := n.Float64()
			return err == nil
		case float64, float32, int, int32, int64, uint, uint32, uint64:
			return true
		}
		return false
	case TypeInteger:
		switch n := v.(type) {
		case json.Number:
			return isIntegerLiteral(n.String())
		case float64:
			return n == float64(int64(n))
		case float32:
			return n == float32(int64(n))
		case int, int32, int64, uint, uint32, uint64:
			return true
		}
		return false
	}
	return false
}

func isIntegerLiteral(s string) bool {
	s = strings.TrimPrefix(s, "-")
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// DescribeValue returns a short JSON type name for anomaly details
func DescribeValue(v any) string {
	switch n := v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case map[string]any:
		return "object"
	case []any:
		return "list"
	case json.Number:
		if isIntegerLiteral(n.String()) {
			return "integer"
		}
		return "number"
	case float64, float32, int, int32, int64, uint, uint32, uint64:
		return "number"
	}
	return fmt.Sprintf("%T", v)
}

func (f *Field) normalize(path string) error {
	if f.Name == "" {
		return fmt.Errorf("field at %s has no name", path)
	}
	return f.normalizeShape(path + "." + f.Name)
}

func (f *Field) normalizeShape(path string) error {
	t, err := ParseType(string(f.Type))
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	f.Type = t

	if len(f.Fields) > 0 && f.Type != TypeObject {
		return fmt.Errorf("%s: nested fields require type object, got %s", path, f.Type)
	}
	if f.Items != nil && f.Type != TypeList {
		return fmt.Errorf("%s: items require type list, got %s", path, f.Type)
	}

	seen := make(map[string]bool, len(f.Fields))
	for i := range f.Fields {
		if seen[f.Fields[i].Name] {
			return fmt.Errorf("%s: duplicate field %q", path, f.Fields[i].Name)
		}
		seen[f.Fields[i].Name] = true
		if err := f.Fields[i].normalize(path); err != nil {
			return err
		}
	}
	if f.Items != nil {
		if err := f.Items.normalizeShape(path + "[]"); err != nil {
			return err
		}
	}
	return nil
}

func (s *Schema) normalize() error {
	if s.Intent == "" {
		return fmt.Errorf("schema has no intent")
	}
	root := Field{Name: string(s.Intent), Type: TypeObject, Fields: s.Fields}
	if err := root.normalizeShape(string(s.Intent)); err != nil {
		return err
	}
	s.Fields = root.Fields
	return nil
}

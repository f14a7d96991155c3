package schema

import (
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/mikey/doc-router/internal/core"
)

// Registry maps intents to schemas. It is built once and never mutated.
type Registry struct {
	schemas map[core.Intent]*Schema
}

// NewRegistry validates the schemas and indexes them by intent. When catalog is
// non-nil every schema intent must resolve against it and is stored under its
// canonical name.
func NewRegistry(catalog *core.Catalog, schemas ...*Schema) (*Registry, error) {
	r := &Registry{schemas: make(map[core.Intent]*Schema, len(schemas))}
	for _, s := range schemas {
		if s == nil {
			continue
		}
		if err := s.normalize(); err != nil {
			return nil, fmt.Errorf("invalid schema: %w", err)
		}
		if catalog != nil {
			canonical, ok := catalog.Resolve(string(s.Intent))
			if !ok {
				return nil, fmt.Errorf("schema intent %q is not in the intent catalog", s.Intent)
			}
			s.Intent = canonical
		}
		if _, dup := r.schemas[s.Intent]; dup {
			return nil, fmt.Errorf("duplicate schema for intent %q", s.Intent)
		}
		r.schemas[s.Intent] = s
	}
	return r, nil
}

// Lookup returns the schema registered for intent. A missing schema is a valid state.
func (r *Registry) Lookup(intent core.Intent) (*Schema, bool) {
	if r == nil {
		return nil, false
	}
	s, ok := r.schemas[intent]
	return s, ok
}

// Intents lists the intents that have a schema
func (r *Registry) Intents() []core.Intent {
	intents := make([]core.Intent, 0, len(r.schemas))
	for intent := range r.schemas {
		intents = append(intents, intent)
	}
	sort.Slice(intents, func(i, j int) bool { return intents[i] < intents[j] })
	return intents
}

type schemaFile struct {
	Schemas []*Schema `yaml:"schemas"`
}

// Load reads schemas from a YAML document
func Load(r io.Reader) ([]*Schema, error) {
	var file schemaFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to decode schema file: %w", err)
	}
	return file.Schemas, nil
}

// LoadFile reads schemas from a YAML file
func LoadFile(path string) ([]*Schema, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open schema file: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Build returns a registry holding the built-in schemas plus any loaded from path.
// A file schema replaces the built-in one for the same intent. Built-in
// schemas for intents missing from the catalog are left out.
func Build(catalog *core.Catalog, path string) (*Registry, error) {
	var schemas []*Schema
	for _, s := range Defaults() {
		if catalog == nil || catalog.Contains(canonical(catalog, s.Intent)) {
			schemas = append(schemas, s)
		}
	}
	if path != "" {
		loaded, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		byIntent := make(map[core.Intent]int, len(schemas))
		for i, s := range schemas {
			byIntent[canonical(catalog, s.Intent)] = i
		}
		for _, s := range loaded {
			if s == nil {
				continue
			}
			if i, ok := byIntent[canonical(catalog, s.Intent)]; ok {
				schemas[i] = s
				continue
			}
			schemas = append(schemas, s)
		}
	}
	return NewRegistry(catalog, schemas...)
}

func canonical(catalog *core.Catalog, intent core.Intent) core.Intent {
	if catalog == nil {
		return intent
	}
	if resolved, ok := catalog.Resolve(string(intent)); ok {
		return resolved
	}
	return intent
}

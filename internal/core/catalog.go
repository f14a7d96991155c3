package core

import (
	"strings"

	"golang.org/x/text/cases"
)

// Intent is the classified business purpose of a document
type Intent string

// IntentUnknown is the fallback when classification fails or is inconclusive
const IntentUnknown Intent = "Unknown"

// DefaultIntents is the catalog used when none is configured
var DefaultIntents = []Intent{
	"Invoice", "RFQ", "Complaint", "Regulation", "General Inquiry",
	"Order Confirmation", "Job Application", "Feedback", "Other",
}

// DefaultMessageIntents lists intents whose plain-text or document content is handled like a message
var DefaultMessageIntents = []Intent{
	"RFQ", "Complaint", "General Inquiry", "Invoice",
	"Order Confirmation", "Job Application", "Feedback", "Other",
}

// Catalog is the read-only set of intents the classifier may return.
// Matching ignores case, spaces, underscores and hyphens so "general_inquiry"
// and "GeneralInquiry" both resolve to "General Inquiry".
type Catalog struct {
	intents []Intent
	byKey   map[string]Intent
}

// NewCatalog builds a catalog. Unknown is always a member.
func NewCatalog(intents []Intent) *Catalog {
	c := &Catalog{byKey: make(map[string]Intent, len(intents)+1)}
	for _, in := range append(append([]Intent{}, intents...), IntentUnknown) {
		key := catalogKey(string(in))
		if key == "" {
			continue
		}
		if _, dup := c.byKey[key]; dup {
			continue
		}
		c.byKey[key] = in
		c.intents = append(c.intents, in)
	}
	return c
}

// Resolve maps a free-form intent name onto the catalog
func (c *Catalog) Resolve(name string) (Intent, bool) {
	in, ok := c.byKey[catalogKey(name)]
	if !ok {
		return IntentUnknown, false
	}
	return in, true
}

// Contains reports whether the intent is a catalog member
func (c *Catalog) Contains(in Intent) bool {
	_, ok := c.byKey[catalogKey(string(in))]
	return ok
}

// Intents returns the catalog in declaration order
func (c *Catalog) Intents() []Intent {
	return append([]Intent(nil), c.intents...)
}

// Names returns the catalog as plain strings
func (c *Catalog) Names() []string {
	out := make([]string, len(c.intents))
	for i, in := range c.intents {
		out[i] = string(in)
	}
	return out
}

func catalogKey(name string) string {
	folded := cases.Fold().String(strings.TrimSpace(name))
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '_', '-', '\t':
			return -1
		}
		return r
	}, folded)
}

package intake

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/mikey/doc-router/internal/core"
	"github.com/mikey/doc-router/internal/router"
)

// WriteOutcome prints a human-readable summary of one processed input
func WriteOutcome(w io.Writer, out *router.Outcome, verbose bool) {
	fmt.Fprintf(w, "\n=== %s ===\n", out.Source)
	fmt.Fprintf(w, "Correlation ID: %s\n", out.CorrelationID)
	if cls := out.Classification; cls != nil {
		fmt.Fprintf(w, "Format: %s\n", cls.Format)
		fmt.Fprintf(w, "Intent: %s\n", cls.Intent)
		if cls.Reasoning != "" {
			fmt.Fprintf(w, "Reasoning: %s\n", cls.Reasoning)
		}
		if cls.Failure != nil {
			fmt.Fprintf(w, "Classification degraded: %v\n", cls.Failure)
		}
	}
	if out.Route != "" {
		fmt.Fprintf(w, "Route: %s\n", out.Route)
	}
	fmt.Fprintf(w, "Status: %s\n", out.Status)
	if out.Err != nil {
		fmt.Fprintf(w, "Error: %v\n", out.Err)
	}

	if res := out.Extraction; res != nil {
		fmt.Fprintf(w, "\n--- Extraction ---\n")
		fmt.Fprintf(w, "Schema applied: %t\n", res.SchemaApplied)
		fmt.Fprintf(w, "Fields: %s\n", strings.Join(sortedKeys(res.Fields), ", "))
		if len(res.Anomalies) == 0 {
			fmt.Fprintf(w, "Anomalies: none\n")
		}
		for _, a := range res.Anomalies {
			fmt.Fprintf(w, "Anomaly: %s %s %s\n", a.Kind, a.Field, a.Detail)
		}
	}

	if res := out.CRM; res != nil {
		fmt.Fprintf(w, "\n--- CRM ---\n")
		fmt.Fprintf(w, "Sender: %s\n", res.Sender)
		fmt.Fprintf(w, "Subject: %s\n", res.Subject)
		fmt.Fprintf(w, "Urgency: %s\n", res.Urgency)
		fmt.Fprintf(w, "Summary: %s\n", res.Summary)
		for _, action := range res.Actions {
			fmt.Fprintf(w, "  - %s\n", action)
		}
		if res.Error != "" {
			fmt.Fprintf(w, "CRM error: %s\n", res.Error)
		}
	}

	if verbose && out.Classification != nil && out.Classification.RawResponse != nil {
		fmt.Fprintf(w, "\nRaw classification response:\n%s\n", *out.Classification.RawResponse)
	}
}

// WriteEvent prints one audit event on a single line
func WriteEvent(w io.Writer, e core.Event) {
	intent := "-"
	if e.Intent != nil {
		intent = string(*e.Intent)
	}
	fmt.Fprintf(w, "%4d  %s  %-20s %-10s format=%s intent=%s",
		e.Seq, e.Timestamp.Format("2006-01-02T15:04:05.000Z07:00"), e.Component, e.Status, e.Format, intent)
	if e.Error != nil {
		fmt.Fprintf(w, " error=%q", *e.Error)
	}
	fmt.Fprintln(w)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

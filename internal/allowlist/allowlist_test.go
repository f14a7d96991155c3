package allowlist

import (
	"testing"

	"go.uber.org/zap/zaptest"
)

func TestAllowed(t *testing.T) {
	checker := NewChecker([]string{" Example.com ", "partners.org.", ""}, zaptest.NewLogger(t))

	tests := []struct {
		address string
		want    bool
	}{
		{"buyer@example.com", true},
		{"Buyer@EXAMPLE.COM", true},
		{"<buyer@example.com>", true},
		{"ops@mail.example.com", true},
		{"x@partners.org", true},
		{"x@notexample.com", false},
		{"x@example.com.evil.net", false},
		{"no-at-sign", false},
		{"trailing@", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.address, func(t *testing.T) {
			if got := checker.Allowed(tt.address); got != tt.want {
				t.Errorf("Allowed(%q) = %v, want %v", tt.address, got, tt.want)
			}
		})
	}
}

func TestEmptyListAllowsAll(t *testing.T) {
	checker := NewChecker(nil, nil)
	if checker.Enabled() {
		t.Error("empty checker should not be enabled")
	}
	if !checker.Allowed("anyone@anywhere.test") || !checker.Allowed("") {
		t.Error("empty checker should allow every sender")
	}
}

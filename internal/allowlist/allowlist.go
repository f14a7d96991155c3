package allowlist

import (
	"strings"

	"go.uber.org/zap"
)

// Checker decides whether a sender's domain may submit inputs.
// An empty list allows every sender.
type Checker struct {
	domains []string
	logger  *zap.Logger
}

// NewChecker creates a new allowlist checker
func NewChecker(domains []string, logger *zap.Logger) *Checker {
	if logger == nil {
		logger = zap.NewNop()
	}

	normalized := make([]string, 0, len(domains))
	for _, domain := range domains {
		domain = strings.Trim(strings.ToLower(strings.TrimSpace(domain)), ".")
		if domain != "" {
			normalized = append(normalized, domain)
		}
	}

	if len(normalized) > 0 {
		logger.Info("Initialized sender allowlist", zap.Strings("domains", normalized))
	}

	return &Checker{
		domains: normalized,
		logger:  logger,
	}
}

// Enabled reports whether any domain restriction is configured
func (c *Checker) Enabled() bool {
	return len(c.domains) > 0
}

// Allowed reports whether the address's domain, or a parent of it, is listed
func (c *Checker) Allowed(address string) bool {
	if len(c.domains) == 0 {
		return true
	}

	domain := Domain(address)
	if domain == "" {
		return false
	}

	for _, allowed := range c.domains {
		if domain == allowed || strings.HasSuffix(domain, "."+allowed) {
			return true
		}
	}

	c.logger.Debug("Sender domain not allowed",
		zap.String("domain", domain),
		zap.String("address", address))
	return false
}

// Domain returns the lowercased domain part of an address, or "" if there is none
func Domain(address string) string {
	address = strings.Trim(strings.TrimSpace(address), "<>")
	at := strings.LastIndex(address, "@")
	if at < 0 || at == len(address)-1 {
		return ""
	}
	return strings.ToLower(address[at+1:])
}

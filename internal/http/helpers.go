package http

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"conti/internal/core"
)

// formatEuros renders cents as a euro string with comma separator.
func formatEuros(m core.Money) string {
	cents := m.Cents
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s€%d,%02d", sign, cents/100, cents%100)
}

// parseDate parses a YYYY-MM-DD form value. Empty input yields a zero
// time, which the filter treats as unbounded.
func parseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", value)
}

// sanitizeInput removes control characters that could break headers or
// log lines. Newlines and tabs are replaced with spaces.
func sanitizeInput(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n' || r == '\r' || r == '\t':
			b.WriteRune(' ')
		case r < 32 || r == 127:
			// drop
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// generateRequestID creates a short random ID for request tracing.
func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

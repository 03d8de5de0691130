// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request
// data: filter criteria, entry rows from the transaction form, and the
// JSON-or-form body parser used with HTMX.

package http

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"conti/internal/core"
)

// ParseCriteria extracts the transaction filter and ordering from query
// parameters. Invalid dates are reported so the user can correct them
// instead of silently seeing an unfiltered list.
func ParseCriteria(query url.Values) (core.Criteria, error) {
	c := core.Criteria{
		Search: strings.TrimSpace(sanitizeInput(query.Get("q"))),
		Sort:   core.SortByDate,
	}

	from, err := parseDate(query.Get("from"))
	if err != nil {
		return core.Criteria{}, err
	}
	c.From = from

	to, err := parseDate(query.Get("to"))
	if err != nil {
		return core.Criteria{}, err
	}
	// Both bounds are inclusive. The parsed date is midnight, so the
	// upper bound must stretch to the end of its day or transactions
	// stamped with a time of day would slip past it.
	if !to.IsZero() {
		to = to.Add(24*time.Hour - time.Nanosecond)
	}
	c.To = to

	switch core.SortKey(query.Get("sort")) {
	case core.SortByAmount:
		c.Sort = core.SortByAmount
	case core.SortByDescription:
		c.Sort = core.SortByDescription
	}

	// Date views default to newest first; explicit dir wins.
	c.Descending = c.Sort == core.SortByDate
	switch query.Get("dir") {
	case "asc":
		c.Descending = false
	case "desc":
		c.Descending = true
	}

	return c, nil
}

// ParseEntries reads the parallel entry_* form arrays into entry rows.
// Blank rows (no account and no amount) are skipped so the fixed-size
// form grid can be partially filled.
func ParseEntries(form url.Values) ([]core.Entry, error) {
	accounts := form["entry_account"]
	sides := form["entry_side"]
	amounts := form["entry_amount"]
	descriptions := form["entry_description"]

	entries := make([]core.Entry, 0, len(accounts))
	for i := range accounts {
		account := strings.TrimSpace(accounts[i])
		amount := ""
		if i < len(amounts) {
			amount = strings.TrimSpace(amounts[i])
		}
		if account == "" && amount == "" {
			continue
		}

		side := core.EntrySide("")
		if i < len(sides) {
			side = core.EntrySide(strings.TrimSpace(sides[i]))
		}
		if side != core.Debit && side != core.Credit {
			return nil, core.ErrInvalidSide
		}

		cents, err := core.ParseDecimalToCents(amount)
		if err != nil {
			return nil, err
		}

		description := ""
		if i < len(descriptions) {
			description = strings.TrimSpace(sanitizeInput(descriptions[i]))
		}

		entries = append(entries, core.Entry{
			AccountID:   account,
			Side:        side,
			Amount:      core.Money{Cents: cents},
			Description: description,
		})
	}

	return entries, nil
}

// RequestBodyParser handles different content types for request body parsing.
// It supports both JSON and form-encoded data, commonly used with HTMX.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]interface{}
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser creates a parser for the given request.
// It reads the body once and stores it for subsequent parsing.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}

	p.body, p.err = io.ReadAll(r.Body)
	return p
}

// Parse attempts to parse the body as JSON or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	if len(p.body) == 0 {
		p.formData = url.Values{}
		return nil
	}

	// Try JSON first if content looks like JSON
	if p.body[0] == '{' || p.body[0] == '[' {
		p.jsonData = make(map[string]interface{})
		if err := json.Unmarshal(p.body, &p.jsonData); err != nil {
			p.err = err
			return err
		}
		return nil
	}

	// Fall back to form parsing
	p.formData, p.err = url.ParseQuery(string(p.body))
	return p.err
}

// Get returns a string value from the parsed data (JSON or form).
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return strings.TrimSpace(sanitizeInput(stringValue(val)))
		}
	}
	if p.formData != nil {
		return strings.TrimSpace(sanitizeInput(p.formData.Get(key)))
	}
	return ""
}

// GetAll returns every value of a repeated form key. JSON bodies carry
// single values only, so the lookup falls back to Get.
func (p *RequestBodyParser) GetAll(key string) []string {
	if p.formData != nil {
		values := make([]string, 0, len(p.formData[key]))
		for _, v := range p.formData[key] {
			if trimmed := strings.TrimSpace(sanitizeInput(v)); trimmed != "" {
				values = append(values, trimmed)
			}
		}
		return values
	}
	if v := p.Get(key); v != "" {
		return []string{v}
	}
	return nil
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

// stringValue converts an interface{} to string.
func stringValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// RequireMethod checks if the request method matches the expected method(s).
// Returns an error response builder if the method doesn't match.
func RequireMethod(r *http.Request, methods ...string) *HTMXResponseBuilder {
	for _, m := range methods {
		if r.Method == m {
			return nil
		}
	}
	return MethodNotAllowedError(strings.Join(methods, ", "))
}

// RequirePOST is a convenience function for POST-only handlers.
func RequirePOST(r *http.Request) *HTMXResponseBuilder {
	return RequireMethod(r, http.MethodPost)
}

// RequireDeleteOrPOST is a convenience function for DELETE/POST handlers.
func RequireDeleteOrPOST(r *http.Request) *HTMXResponseBuilder {
	return RequireMethod(r, http.MethodDelete, http.MethodPost)
}

// ParseFormOrFail parses the request form and returns an error response on failure.
// Returns nil on success.
func ParseFormOrFail(r *http.Request) *HTMXResponseBuilder {
	if err := r.ParseForm(); err != nil {
		return BadRequestError("Invalid request format")
	}
	return nil
}

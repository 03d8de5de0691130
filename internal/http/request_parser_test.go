package http

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"conti/internal/core"
)

func TestParseCriteria(t *testing.T) {
	query := url.Values{
		"q":    {"  groceries "},
		"from": {"2025-01-01"},
		"to":   {"2025-06-30"},
		"sort": {"amount"},
		"dir":  {"asc"},
	}

	c, err := ParseCriteria(query)
	if err != nil {
		t.Fatalf("ParseCriteria: %v", err)
	}
	if c.Search != "groceries" {
		t.Errorf("Search = %q", c.Search)
	}
	if c.From != time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) {
		t.Errorf("From = %v", c.From)
	}
	if c.To != time.Date(2025, 6, 30, 23, 59, 59, int(time.Second-time.Nanosecond), time.UTC) {
		t.Errorf("To = %v, want end of 2025-06-30", c.To)
	}
	if c.Sort != core.SortByAmount {
		t.Errorf("Sort = %v", c.Sort)
	}
	if c.Descending {
		t.Errorf("explicit asc should not be descending")
	}
}

func TestParseCriteriaDefaults(t *testing.T) {
	c, err := ParseCriteria(url.Values{})
	if err != nil {
		t.Fatalf("ParseCriteria: %v", err)
	}
	if c.Sort != core.SortByDate {
		t.Errorf("default sort = %v, want date", c.Sort)
	}
	if !c.Descending {
		t.Errorf("date view should default to newest first")
	}
	if !c.From.IsZero() || !c.To.IsZero() {
		t.Errorf("empty bounds should stay zero")
	}
}

func TestParseCriteriaToBoundIncludesWholeDay(t *testing.T) {
	today := time.Now().UTC().Format("2006-01-02")
	c, err := ParseCriteria(url.Values{"to": {today}})
	if err != nil {
		t.Fatalf("ParseCriteria: %v", err)
	}

	// A transaction recorded today without an explicit date carries the
	// current time of day; filtering up to today must still include it.
	tx := core.Transaction{ID: "t1", Date: time.Now().UTC()}
	if got := core.Select([]core.Transaction{tx}, c); len(got) != 1 {
		t.Fatalf("transaction dated today should match to=%s, got %d results", today, len(got))
	}
}

func TestParseCriteriaInvalidDate(t *testing.T) {
	if _, err := ParseCriteria(url.Values{"from": {"01/02/2025"}}); err == nil {
		t.Fatalf("expected error for malformed date")
	}
}

func TestParseEntries(t *testing.T) {
	form := url.Values{
		"entry_account":     {"acc-food", "acc-cash", ""},
		"entry_side":        {"debit", "credit", "debit"},
		"entry_amount":      {"12,50", "12.50", ""},
		"entry_description": {"lunch", "", ""},
	}

	entries, err := ParseEntries(form)
	if err != nil {
		t.Fatalf("ParseEntries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len = %d, want 2 (blank row skipped)", len(entries))
	}
	if entries[0].Amount.Cents != 1250 || entries[1].Amount.Cents != 1250 {
		t.Errorf("both separators should parse to 1250 cents: %+v", entries)
	}
	if entries[0].Description != "lunch" || entries[1].Description != "" {
		t.Errorf("line descriptions wrong: %+v", entries)
	}
}

func TestParseEntriesRejectsBadSide(t *testing.T) {
	form := url.Values{
		"entry_account": {"acc"},
		"entry_side":    {"both"},
		"entry_amount":  {"1,00"},
	}
	if _, err := ParseEntries(form); !errors.Is(err, core.ErrInvalidSide) {
		t.Fatalf("err = %v, want ErrInvalidSide", err)
	}
}

func TestParseEntriesRejectsBadAmount(t *testing.T) {
	form := url.Values{
		"entry_account": {"acc"},
		"entry_side":    {"debit"},
		"entry_amount":  {"zero"},
	}
	if _, err := ParseEntries(form); !errors.Is(err, core.ErrInvalidAmount) {
		t.Fatalf("err = %v, want ErrInvalidAmount", err)
	}
}

func TestRequestBodyParserJSON(t *testing.T) {
	r, _ := http.NewRequest(http.MethodPost, "/", strings.NewReader(`{"id":"t1","color":"yellow"}`))
	r.Header.Set("Content-Type", "application/json")

	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !p.IsJSON() {
		t.Fatalf("should detect JSON")
	}
	if p.Get("id") != "t1" || p.Get("color") != "yellow" {
		t.Fatalf("unexpected values: %q %q", p.Get("id"), p.Get("color"))
	}
}

func TestRequestBodyParserForm(t *testing.T) {
	r, _ := http.NewRequest(http.MethodPost, "/", strings.NewReader("id=t1&color=blue"))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if p.IsJSON() {
		t.Fatalf("should detect form data")
	}
	if p.Get("color") != "blue" {
		t.Fatalf("color = %q", p.Get("color"))
	}
}

func TestSanitizeInput(t *testing.T) {
	got := sanitizeInput("desc\r\nwith\tweird\x00chars")
	if got != "desc  with weirdchars" {
		t.Fatalf("sanitizeInput = %q", got)
	}
}

func TestFormatEuros(t *testing.T) {
	tests := []struct {
		cents int64
		want  string
	}{
		{0, "€0,00"},
		{5, "€0,05"},
		{4500, "€45,00"},
		{123456, "€1234,56"},
		{-4500, "-€45,00"},
	}
	for _, tt := range tests {
		if got := formatEuros(core.Money{Cents: tt.cents}); got != tt.want {
			t.Errorf("formatEuros(%d) = %q, want %q", tt.cents, got, tt.want)
		}
	}
}

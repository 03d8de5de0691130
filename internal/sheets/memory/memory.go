// Package memory is an in-process TransactionWriter used in tests and
// when no spreadsheet is configured.
package memory

import (
	"context"
	"fmt"
	"sync"

	"conti/internal/sheets"
)

type Store struct {
	mu     sync.Mutex
	rows   map[string][]sheets.Row
	failOn map[string]error
}

func New() *Store {
	return &Store{
		rows:   make(map[string][]sheets.Row),
		failOn: make(map[string]error),
	}
}

var _ sheets.TransactionWriter = (*Store)(nil)

// Append stores the rows and returns a synthetic range reference.
func (s *Store) Append(_ context.Context, transactionID string, rows []sheets.Row) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.failOn[transactionID]; err != nil {
		return "", err
	}
	s.rows[transactionID] = append([]sheets.Row(nil), rows...)
	return fmt.Sprintf("mem:%s:%d", transactionID, len(rows)), nil
}

// Rows returns the exported rows of a transaction, or nil.
func (s *Store) Rows(transactionID string) []sheets.Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows[transactionID]
}

// FailWith makes Append fail for the given transaction.
func (s *Store) FailWith(transactionID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failOn[transactionID] = err
}

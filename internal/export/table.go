// Package export renders ledger rows as a fixed-column table.
//
// The column order is part of the contract with spreadsheet consumers and must
// not change. Amounts are plain two-decimal strings with no currency symbol.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"courtsplit/internal/core"
)

// Filename is the name suggested for CSV downloads.
const Filename = "badminton_settlement.csv"

var columns = []string{
	"Player",
	"Minutes Played",
	"Court Share",
	"Drinks Share",
	"Total Owed",
	"Total Contributed",
	"Net Balance",
}

// Header returns a copy of the column names in export order.
func Header() []string {
	return append([]string(nil), columns...)
}

// Record renders one ledger row in column order.
func Record(r core.LedgerRow) []string {
	return []string{
		r.Name,
		strconv.Itoa(r.MinutesPlayed),
		core.Format(r.CourtShare),
		core.Format(r.DrinksShare),
		core.Format(r.TotalOwed),
		core.Format(r.TotalContributed),
		core.Format(r.NetBalance),
	}
}

// Table returns the header followed by one record per row.
func Table(rows []core.LedgerRow) [][]string {
	out := make([][]string, 0, len(rows)+1)
	out = append(out, Header())
	for _, r := range rows {
		out = append(out, Record(r))
	}
	return out
}

// WriteCSV writes Table(rows) to w as CSV.
func WriteCSV(w io.Writer, rows []core.LedgerRow) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(Table(rows)); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

// TransferLines renders transfers as "From pays To: amount" using the
// participant names from rows; unknown IDs are printed as is.
func TransferLines(rows []core.LedgerRow, transfers []core.Transfer) []string {
	names := make(map[string]string, len(rows))
	for _, r := range rows {
		names[r.ParticipantID] = r.Name
	}
	name := func(id string) string {
		if n, ok := names[id]; ok && n != "" {
			return n
		}
		return id
	}
	out := make([]string, 0, len(transfers))
	for _, t := range transfers {
		out = append(out, fmt.Sprintf("%s pays %s: %s", name(t.FromParticipantID), name(t.ToParticipantID), core.Format(t.Amount)))
	}
	return out
}

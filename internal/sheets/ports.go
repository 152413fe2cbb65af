package sheets

import (
	"context"

	"courtsplit/internal/core"
)

// Ports for outbound adapters.
type (
	// LedgerWriter appends a titled settlement table (header plus one record per
	// ledger row) to an external sheet and returns a reference to where it landed.
	LedgerWriter interface {
		AppendLedger(ctx context.Context, title string, rows []core.LedgerRow) (ref string, err error)
	}
)

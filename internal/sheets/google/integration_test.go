//go:build integration

package google

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"courtsplit/internal/core"
)

// Integration tests require real Google Sheets credentials
// Run with: go test -tags=integration ./internal/sheets/google

func TestIntegration_AppendLedger(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	if os.Getenv("GOOGLE_SPREADSHEET_ID") == "" {
		t.Skip("GOOGLE_SPREADSHEET_ID not set, skipping integration test")
	}
	credentials := []byte(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	if len(credentials) == 0 {
		file := os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE")
		if file == "" {
			t.Skip("service account credentials not configured, skipping integration test")
		}
		var err error
		if credentials, err = os.ReadFile(file); err != nil {
			t.Fatalf("read service account file: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := NewFromCredentials(ctx, credentials, os.Getenv("GOOGLE_SPREADSHEET_ID"), os.Getenv("GOOGLE_SHEET_NAME"))
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	booking := core.BookingCost{Courts: 1, DurationHours: decimal.NewFromInt(1), HourlyRate: decimal.NewFromInt(600)}
	ps := []core.Participant{
		{ID: "p1", Name: "Integration A", MinutesPlayed: 60},
		{ID: "p2", Name: "Integration B", MinutesPlayed: 30},
	}
	rows, err := core.ComputeLedger(booking, ps, core.NoDrinks(), "p1")
	if err != nil {
		t.Fatalf("ComputeLedger: %v", err)
	}

	title := fmt.Sprintf("Integration %s", time.Now().Format(time.RFC3339))
	ref, err := client.AppendLedger(ctx, title, rows)
	if err != nil {
		t.Fatalf("AppendLedger: %v", err)
	}
	t.Logf("Appended ledger at %s", ref)
}

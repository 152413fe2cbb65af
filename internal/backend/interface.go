package backend

import (
	"context"

	"courtsplit/internal/sheets"
)

// Factory creates exporters based on configuration
type Factory interface {
	// CreateExporter creates a ledger writer for the configured backend
	CreateExporter(ctx context.Context, config Config) (sheets.LedgerWriter, error)
}

// Config holds configuration for exporter creation
type Config struct {
	// Backend type
	Type BackendType

	// Google Sheets specific
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string
}

// BackendType represents the type of export backend
type BackendType string

const (
	SheetsBackend BackendType = "sheets"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SheetsBackend, MemoryBackend:
		return true
	default:
		return false
	}
}

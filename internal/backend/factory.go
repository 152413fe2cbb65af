package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	goption "google.golang.org/api/option"

	"courtsplit/internal/amqp"
	"courtsplit/internal/config"
	"courtsplit/internal/sheets"
	gsheet "courtsplit/internal/sheets/google"
	"courtsplit/internal/sheets/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger

	// extra options for the Sheets client, used by tests to point at a fake endpoint
	sheetsOptions []goption.ClientOption
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// CreateExporter implements Factory.CreateExporter
func (f *DefaultFactory) CreateExporter(ctx context.Context, config Config) (sheets.LedgerWriter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SheetsBackend:
		return f.createSheetsExporter(ctx, config)
	case MemoryBackend:
		return f.createMemoryExporter()
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createSheetsExporter(ctx context.Context, config Config) (sheets.LedgerWriter, error) {
	credentials := []byte(config.GoogleServiceAccountJSON)
	if len(credentials) == 0 {
		var err error
		credentials, err = os.ReadFile(config.GoogleServiceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	}

	cli, err := gsheet.NewFromCredentials(ctx, credentials, config.GoogleSpreadsheetID, config.GoogleSheetName, f.sheetsOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}

	f.logger.Info("Initialized Google Sheets exporter",
		"spreadsheet_id", config.GoogleSpreadsheetID,
		"sheet", config.GoogleSheetName)

	return cli, nil
}

func (f *DefaultFactory) createMemoryExporter() (sheets.LedgerWriter, error) {
	f.logger.Info("Initialized memory exporter")

	return memory.New(), nil
}

// ConnectAMQP dials the broker when one is configured. A failed dial is
// logged and yields a nil client so the caller can run without messaging.
func ConnectAMQP(cfg *config.Config, logger *slog.Logger) *amqp.Client {
	if logger == nil {
		logger = slog.Default()
	}
	if !cfg.AMQPEnabled() {
		logger.Info("AMQP disabled")
		return nil
	}

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.SettlementQueue)
	if err != nil {
		logger.Warn("Failed to initialize AMQP client, continuing without messaging", "error", err)
		return nil
	}
	logger.Info("Initialized AMQP client",
		"exchange", cfg.AMQPExchange,
		"queue", cfg.SettlementQueue)
	return client
}

// AMQPReadyCheck reports not ready when a configured broker could not be
// reached at startup or its publisher is currently refusing work.
func AMQPReadyCheck(cfg *config.Config, client *amqp.Client) func(context.Context) error {
	return func(context.Context) error {
		if !cfg.AMQPEnabled() {
			return nil
		}
		if client == nil {
			return errors.New("amqp configured but not connected")
		}
		return client.Ready()
	}
}

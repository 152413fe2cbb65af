package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"courtsplit/internal/amqp"
	"courtsplit/internal/core"
	"courtsplit/internal/dto"
	"courtsplit/internal/log"
	"courtsplit/internal/sheets"
)

var (
	// ErrExportDisabled is returned by Export when no sheet writer is configured.
	ErrExportDisabled = errors.New("export backend not configured")
	// ErrQueueDisabled is returned by Enqueue when AMQP is not configured.
	ErrQueueDisabled = errors.New("amqp publisher not configured")
)

// ResultPublisher sends settlement results over AMQP. *amqp.Client implements it.
type ResultPublisher interface {
	PublishResult(ctx context.Context, replyTo, correlationID string, msg *amqp.SettlementResultMessage) error
}

// RequestPublisher enqueues settlement requests for the worker. *amqp.Client implements it.
type RequestPublisher interface {
	PublishSettlementRequest(ctx context.Context, msg *amqp.SettlementRequestMessage, replyTo string) error
}

// Publisher is the full AMQP surface the service can use.
type Publisher interface {
	ResultPublisher
	RequestPublisher
}

// SettlementService runs calculations and fans results out to the sheet
// exporter and the settlement.computed event stream. Both outputs are optional.
type SettlementService struct {
	exporter  sheets.LedgerWriter
	publisher Publisher
	logger    *log.StructuredLogger
	now       func() time.Time
}

func NewSettlementService(exporter sheets.LedgerWriter, publisher Publisher, logger *log.Logger) *SettlementService {
	if logger == nil {
		logger = log.New(log.DefaultConfig()).WithComponent(log.ComponentSettlement)
	}
	return &SettlementService{
		exporter:  exporter,
		publisher: publisher,
		logger:    log.NewStructuredLogger(logger),
		now:       time.Now,
	}
}

// Calculate converts and computes one request. It has no side effects besides logging.
func (s *SettlementService) Calculate(ctx context.Context, req dto.SettlementRequest) (core.Result, error) {
	in, err := req.ToInput()
	if err != nil {
		s.logger.LogSettlementRejected(ctx, req.Title, core.ErrorKind(err), err)
		return core.Result{}, err
	}
	res, err := core.Calculate(in)
	if err != nil {
		s.logger.LogSettlementRejected(ctx, req.Title, core.ErrorKind(err), err)
		return core.Result{}, err
	}

	s.logger.LogSettlementComputed(ctx, req.Title, len(res.Rows), res.Summary.PresentCount,
		len(res.Transfers), core.Format(res.Summary.GrandTotal))
	if res.Warning != nil {
		s.logger.LogError(ctx, "Ledger does not balance", res.Warning, log.ComponentSettlement, log.OpCalculate, nil)
	}
	return res, nil
}

// Settle calculates and publishes a settlement.computed event. Publishing is
// best effort: a failure is logged and the result is still returned.
func (s *SettlementService) Settle(ctx context.Context, requestID string, req dto.SettlementRequest) (core.Result, error) {
	res, err := s.Calculate(ctx, req)
	if err != nil {
		return core.Result{}, err
	}
	s.publishComputed(ctx, requestID, req.Title, res)
	return res, nil
}

// Export calculates, appends the table to the configured sheet and publishes
// the event. It returns the sheet reference.
func (s *SettlementService) Export(ctx context.Context, requestID string, req dto.SettlementRequest) (core.Result, string, error) {
	if s.exporter == nil {
		return core.Result{}, "", ErrExportDisabled
	}
	res, err := s.Calculate(ctx, req)
	if err != nil {
		return core.Result{}, "", err
	}

	ref, err := s.exporter.AppendLedger(ctx, s.title(req), res.Rows)
	if err != nil {
		s.logger.LogError(ctx, "Failed to export ledger", err, log.ComponentSheets, log.OpExport, nil)
		return core.Result{}, "", fmt.Errorf("export ledger: %w", err)
	}

	s.publishComputed(ctx, requestID, req.Title, res)
	return res, ref, nil
}

// Enqueue hands the request to the worker and returns the message's request ID.
func (s *SettlementService) Enqueue(ctx context.Context, req dto.SettlementRequest, replyTo string) (string, error) {
	if s.publisher == nil {
		return "", ErrQueueDisabled
	}
	// Reject what the worker would reject anyway.
	if _, err := s.Calculate(ctx, req); err != nil {
		return "", err
	}
	msg := amqp.NewSettlementRequestMessage(req)
	if err := s.publisher.PublishSettlementRequest(ctx, msg, replyTo); err != nil {
		return "", fmt.Errorf("enqueue settlement: %w", err)
	}
	return msg.RequestID, nil
}

// ExportEnabled reports whether Export can succeed.
func (s *SettlementService) ExportEnabled() bool {
	return s.exporter != nil
}

func (s *SettlementService) publishComputed(ctx context.Context, requestID, title string, res core.Result) {
	if s.publisher == nil {
		return
	}
	if requestID == "" {
		requestID = uuid.NewString()
	}
	msg := amqp.NewSettlementResult(requestID, title, dto.FromResult(res))
	if err := s.publisher.PublishResult(ctx, "", requestID, msg); err != nil {
		s.logger.LogError(ctx, "Failed to publish settlement event", err, log.ComponentAMQP, log.OpPublish,
			log.NewFields().WithRequestID(requestID))
	}
}

// title is the sheet heading for a settlement; untitled ones get a timestamp.
func (s *SettlementService) title(req dto.SettlementRequest) string {
	if t := strings.TrimSpace(req.Title); t != "" {
		return t
	}
	return "Session " + s.now().Format("2006-01-02 15:04")
}

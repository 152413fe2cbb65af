package worker

import (
	"context"
	"errors"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/errgroup"

	"courtsplit/internal/amqp"
	"courtsplit/internal/cache"
	"courtsplit/internal/core"
	"courtsplit/internal/dto"
	"courtsplit/internal/log"
	"courtsplit/internal/services"
)

// ErrDeliveriesClosed is returned by Run when the broker closes the delivery channel.
var ErrDeliveriesClosed = errors.New("delivery channel closed")

// Computed replies are kept so a requeued delivery is answered without
// recalculating.
const (
	replyCacheSize = 1024
	replyCacheTTL  = 10 * time.Minute
)

// SettlementWorker computes settlements requested over AMQP and replies with the result
type SettlementWorker struct {
	service     *services.SettlementService
	replies     services.ResultPublisher
	concurrency int
	logger      *log.Logger
	computed    *cache.LRU[*amqp.SettlementResultMessage]
}

func NewSettlementWorker(service *services.SettlementService, replies services.ResultPublisher, concurrency int, logger *log.Logger) *SettlementWorker {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = log.New(log.DefaultConfig()).WithComponent(log.ComponentWorker)
	}
	return &SettlementWorker{
		service:     service,
		replies:     replies,
		concurrency: concurrency,
		logger:      logger,
		computed:    cache.New[*amqp.SettlementResultMessage](replyCacheSize, replyCacheTTL),
	}
}

// RunCacheCleanup evicts expired replies every interval until ctx is done.
func (w *SettlementWorker) RunCacheCleanup(ctx context.Context, interval time.Duration) {
	cache.RunCleanup(ctx, interval, func(removed int) {
		w.logger.DebugContext(ctx, "Reply cache cleanup completed", "entries_removed", removed)
	}, w.computed)
}

// Run handles deliveries with at most concurrency in flight. It returns after
// in-flight deliveries finish, with ctx.Err() on cancellation or
// ErrDeliveriesClosed when the channel closes.
func (w *SettlementWorker) Run(ctx context.Context, deliveries <-chan amqp091.Delivery) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)

	for {
		select {
		case <-ctx.Done():
			_ = g.Wait()
			w.logger.InfoContext(ctx, "Stopping settlement worker", "reason", ctx.Err())
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				_ = g.Wait()
				return ErrDeliveriesClosed
			}
			g.Go(func() error {
				w.Handle(gctx, d)
				return nil
			})
		}
	}
}

// Handle processes one delivery. Undecodable messages are dropped, validation
// failures are answered with an error result and acked, and a failed reply is
// requeued.
func (w *SettlementWorker) Handle(ctx context.Context, d amqp091.Delivery) {
	msg, err := amqp.SettlementRequestMessageFromJSON(d.Body)
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to unmarshal settlement request", "error", err, "message_id", d.MessageId)
		if err := d.Nack(false, false); err != nil { // reject and don't requeue
			w.logger.ErrorContext(ctx, "Failed to nack message", "error", err)
		}
		return
	}

	w.logger.InfoContext(ctx, "Processing settlement request", log.FieldRequestID, msg.RequestID)

	reply, cached := w.computed.Get(msg.RequestID)
	if cached {
		w.logger.InfoContext(ctx, "Reusing computed reply", log.FieldRequestID, msg.RequestID, "redelivered", d.Redelivered)
	} else {
		res, err := w.service.Calculate(ctx, msg.Request)
		if err != nil {
			reply = amqp.NewSettlementFailure(msg.RequestID, msg.Request.Title, err)
		} else {
			reply = amqp.NewSettlementResult(msg.RequestID, msg.Request.Title, dto.FromResult(res))
		}
		w.computed.Set(msg.RequestID, reply)
	}

	if err := w.replies.PublishResult(ctx, d.ReplyTo, d.CorrelationId, reply); err != nil {
		w.logger.ErrorContext(ctx, "Failed to publish settlement result",
			"error", err,
			log.FieldRequestID, msg.RequestID)
		if err := d.Nack(false, true); err != nil { // reject and requeue
			w.logger.ErrorContext(ctx, "Failed to nack message", "error", err)
		}
		return
	}

	if err := d.Ack(false); err != nil {
		w.logger.ErrorContext(ctx, "Failed to ack message", "error", err, log.FieldRequestID, msg.RequestID)
		return
	}
	kind := ""
	if reply.Error != nil {
		kind = reply.Error.Error
	} else if reply.Result != nil && reply.Result.Warning != nil {
		kind = core.KindBalanceMismatch
	}
	w.logger.InfoContext(ctx, "Settlement request processed",
		log.FieldRequestID, msg.RequestID,
		log.FieldErrorKind, kind)
}

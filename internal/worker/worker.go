package worker

import (
	"context"
	"log"
	"time"

	"devis-service/internal/broker"
	"devis-service/internal/models"
	"devis-service/internal/redisclient"
	"devis-service/internal/service"
	"devis-service/internal/util"

	"go.uber.org/zap"
)

// ProcessedEventStore marks consumed events for idempotency.
type ProcessedEventStore interface {
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// NotificationWorker consumes transition events on behalf of the email and
// PDF collaborators. Delivery itself is out of scope; the worker is the
// subscription point the status machine's contract promises.
type NotificationWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	store        ProcessedEventStore
	logger       *zap.Logger
}

// NewNotificationWorker creates a new notification worker
func NewNotificationWorker(consumer *broker.Consumer, store ProcessedEventStore) *NotificationWorker {
	w := &NotificationWorker{
		consumer: consumer,
		store:    store,
		logger:   util.GetLogger(),
	}

	eventHandler := broker.NewEventHandler()
	eventHandler.OnQuoteSubmitted(w.handleQuoteSubmitted)
	eventHandler.OnQuoteTransitioned(w.handleQuoteTransitioned)
	w.eventHandler = eventHandler

	return w
}

// Start starts the worker
func (w *NotificationWorker) Start(ctx context.Context) error {
	log.Println("Starting notification worker...")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *NotificationWorker) Stop() error {
	log.Println("Stopping notification worker...")
	return w.consumer.Close()
}

func (w *NotificationWorker) handleQuoteSubmitted(ctx context.Context, event *models.QuoteSubmittedEvent) error {
	processed, err := w.store.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return err
	}
	if processed {
		return nil
	}

	w.logger.Info("Quote submitted, notifying back-office",
		zap.Int64("quote_id", event.QuoteID),
		zap.String("budget_bracket", string(event.BudgetBracket)))

	return w.store.MarkEventProcessed(ctx, event.EventID, event.EventType)
}

func (w *NotificationWorker) handleQuoteTransitioned(ctx context.Context, event *models.QuoteTransitionedEvent) error {
	processed, err := w.store.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return err
	}
	if processed {
		return nil
	}

	w.logger.Info("Quote transitioned, dispatching notifications",
		zap.Int64("quote_id", event.QuoteID),
		zap.String("from", string(event.FromStatus)),
		zap.String("to", string(event.ToStatus)),
		zap.String("actor", event.Actor))

	return w.store.MarkEventProcessed(ctx, event.EventID, event.EventType)
}

// ExpiryWorker periodically expires quotes left in soumis past the
// configured age. A redis lock keeps a single sweeper active across
// replicas.
type ExpiryWorker struct {
	quoteService *service.QuoteService
	redis        *redisclient.Client
	interval     time.Duration
	maxAge       time.Duration
	logger       *zap.Logger
	done         chan struct{}
}

// NewExpiryWorker creates a new expiry worker
func NewExpiryWorker(quoteService *service.QuoteService, redis *redisclient.Client, interval, maxAge time.Duration) *ExpiryWorker {
	return &ExpiryWorker{
		quoteService: quoteService,
		redis:        redis,
		interval:     interval,
		maxAge:       maxAge,
		logger:       util.GetLogger(),
		done:         make(chan struct{}),
	}
}

// Start runs the sweep loop until the context is cancelled
func (w *ExpiryWorker) Start(ctx context.Context) error {
	log.Println("Starting expiry worker...")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.done:
			return nil
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

// Stop stops the worker
func (w *ExpiryWorker) Stop() error {
	log.Println("Stopping expiry worker...")
	close(w.done)
	return nil
}

func (w *ExpiryWorker) sweep(ctx context.Context) {
	acquired, err := w.redis.AcquireLock(ctx, "quote-expiry-sweep", w.interval)
	if err != nil {
		w.logger.Error("Failed to acquire sweep lock", zap.Error(err))
		return
	}
	if !acquired {
		return
	}
	defer func() {
		if err := w.redis.ReleaseLock(ctx, "quote-expiry-sweep"); err != nil {
			w.logger.Error("Failed to release sweep lock", zap.Error(err))
		}
	}()

	expired, err := w.quoteService.ExpireStaleQuotes(ctx, time.Now().Add(-w.maxAge))
	if err != nil {
		w.logger.Error("Expiry sweep failed", zap.Error(err))
		return
	}
	if expired > 0 {
		w.logger.Info("Expiry sweep done", zap.Int("expired", expired))
	}
}

package worker

import (
	"context"
	"log"
	"time"

	"checkout-service/internal/broker"
	"checkout-service/internal/models"
	"checkout-service/internal/service"
	"checkout-service/internal/util"

	"go.uber.org/zap"
)

// SweepWorker periodically archives expired checkout sessions. A session the
// sweep could not finish stays pending and is retried on the next tick.
type SweepWorker struct {
	checkoutService *service.CheckoutService
	interval        time.Duration
	logger          *zap.Logger
}

// NewSweepWorker creates a new sweep worker
func NewSweepWorker(checkoutService *service.CheckoutService, interval time.Duration) *SweepWorker {
	return &SweepWorker{
		checkoutService: checkoutService,
		interval:        interval,
		logger:          util.GetLogger(),
	}
}

// Start runs the sweep loop until the context is cancelled
func (w *SweepWorker) Start(ctx context.Context) error {
	log.Println("Starting session sweep worker...")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Sweep worker context cancelled, stopping...")
			return ctx.Err()
		case <-ticker.C:
			archived, err := w.checkoutService.ArchiveExpiredSessions(ctx)
			if err != nil {
				w.logger.Error("Session sweep failed", zap.Error(err))
				continue
			}
			if archived > 0 {
				w.logger.Info("Archived expired checkout sessions",
					zap.Int("count", archived))
			}
		}
	}
}

// NotifyWorker consumes order events and queues customer confirmations.
// The actual mail transport is a separate system; this worker only records
// that a notification is due.
type NotifyWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewNotifyWorker creates a new notification worker
func NewNotifyWorker(consumer *broker.Consumer) *NotifyWorker {
	logger := util.GetLogger()
	eventHandler := broker.NewEventHandler()

	eventHandler.OnOrderCreated(func(ctx context.Context, event *models.OrderCreatedEvent) error {
		util.NotificationsQueuedTotal.Inc()
		logger.Info("Order confirmation queued",
			zap.String("order_id", event.OrderID),
			zap.String("email", event.BuyerEmail),
			zap.Int("delivery_minutes", event.DeliveryMinutes))
		return nil
	})

	eventHandler.OnTipRecorded(func(ctx context.Context, event *models.TipRecordedEvent) error {
		logger.Info("Tip receipt queued",
			zap.String("order_id", event.OrderID),
			zap.String("amount", event.Amount))
		return nil
	})

	return &NotifyWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
		logger:       logger,
	}
}

// Start starts the notification worker
func (w *NotifyWorker) Start(ctx context.Context) error {
	log.Println("Starting notification worker...")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the notification worker
func (w *NotifyWorker) Stop() error {
	log.Println("Stopping notification worker...")
	return w.consumer.Close()
}

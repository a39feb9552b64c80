package msgdispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coregx/msgdispatch/model"
	"github.com/coregx/msgdispatch/retry"
)

// QueueWorker dispatches outbox deliveries to listeners with automatic retry
// logic.
//
// Each delivery names a subscription, which binds a destination to a listener
// id. The worker rebuilds the stored message and hands it to that listener.
// Failed deliveries are retried with exponential backoff and moved to the
// Dead Letter Queue once they reach the strategy's threshold.
//
// Key responsibilities:
//   - Process pending deliveries (first attempt)
//   - Retry failed deliveries with exponential backoff
//   - Move exhausted deliveries to the DLQ
//   - Clean up expired deliveries
//   - Send notifications for delivery failures and DLQ additions
//
// Thread safety: Safe for concurrent use. Each batch is processed sequentially.
type QueueWorker struct {
	dr                  DeliveryRepository
	mr                  MessageRepository
	sr                  SubscriptionRepository
	dlqr                DeadLetterRepository
	handlers            map[string]MessageHandler
	retryStrategy       retry.Strategy
	logger              Logger
	notificationService NotificationService
	observer            Observer
	batchSize           int
}

// WorkerOption is a function that configures a QueueWorker.
//
// Example:
//
//	worker, err := msgdispatch.NewQueueWorker(
//	    msgdispatch.WithWorkerRepositories(deliveryRepo, msgRepo, subRepo, dlqRepo),
//	    msgdispatch.WithListeners(ordersListener, auditListener),
//	    msgdispatch.WithWorkerLogger(logger),
//	    msgdispatch.WithBatchSize(200), // optional
//	)
type WorkerOption func(*QueueWorker) error

// NewQueueWorker creates a new queue worker with the provided options.
//
// Required options:
//   - WithWorkerRepositories: delivery, message, subscription and dead letter repositories
//   - WithListeners or WithHandler: at least one delivery target
//   - WithWorkerLogger: logger instance
//
// Optional options:
//   - WithRetryStrategy: custom retry strategy (default: retry.DefaultStrategy())
//   - WithBatchSize: batch processing size (default: 100)
//   - WithNotifications: notification service (default: none)
//   - WithWorkerObserver: metrics hooks
func NewQueueWorker(opts ...WorkerOption) (*QueueWorker, error) {
	w := &QueueWorker{
		handlers:            map[string]MessageHandler{},
		retryStrategy:       retry.DefaultStrategy(),
		batchSize:           100,
		notificationService: &NoOpNotificationService{},
		observer:            NoopObserver{},
	}

	for _, opt := range opts {
		if err := opt(w); err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to apply worker option", err)
		}
	}

	if w.dr == nil {
		return nil, NewError(ErrCodeConfiguration, "DeliveryRepository is required (use WithWorkerRepositories)")
	}
	if w.mr == nil {
		return nil, NewError(ErrCodeConfiguration, "MessageRepository is required (use WithWorkerRepositories)")
	}
	if w.sr == nil {
		return nil, NewError(ErrCodeConfiguration, "SubscriptionRepository is required (use WithWorkerRepositories)")
	}
	if w.dlqr == nil {
		return nil, NewError(ErrCodeConfiguration, "DeadLetterRepository is required (use WithWorkerRepositories)")
	}
	if len(w.handlers) == 0 {
		return nil, NewError(ErrCodeConfiguration, "at least one listener is required (use WithListeners)")
	}
	if w.logger == nil {
		return nil, NewError(ErrCodeConfiguration, "Logger is required (use WithWorkerLogger)")
	}
	if err := w.retryStrategy.Validate(); err != nil {
		return nil, NewErrorWithCause(ErrCodeConfiguration, "invalid retry strategy", err)
	}

	return w, nil
}

// WithWorkerRepositories sets the required repository dependencies.
// All four repositories are required and must not be nil.
func WithWorkerRepositories(
	deliveryRepo DeliveryRepository,
	messageRepo MessageRepository,
	subscriptionRepo SubscriptionRepository,
	dlqRepo DeadLetterRepository,
) WorkerOption {
	return func(w *QueueWorker) error {
		if deliveryRepo == nil {
			return fmt.Errorf("deliveryRepo cannot be nil")
		}
		if messageRepo == nil {
			return fmt.Errorf("messageRepo cannot be nil")
		}
		if subscriptionRepo == nil {
			return fmt.Errorf("subscriptionRepo cannot be nil")
		}
		if dlqRepo == nil {
			return fmt.Errorf("dlqRepo cannot be nil")
		}

		w.dr = deliveryRepo
		w.mr = messageRepo
		w.sr = subscriptionRepo
		w.dlqr = dlqRepo
		return nil
	}
}

// WithListeners registers listeners as delivery targets, keyed by their id.
func WithListeners(listeners ...*Listener) WorkerOption {
	return func(w *QueueWorker) error {
		for _, l := range listeners {
			if l == nil {
				return fmt.Errorf("listener cannot be nil")
			}
			if err := w.register(l.ID(), l.AcceptFunc()); err != nil {
				return err
			}
		}
		return nil
	}
}

// WithHandler registers a plain handler as the delivery target of listenerID.
func WithHandler(listenerID string, handler MessageHandler) WorkerOption {
	return func(w *QueueWorker) error {
		if handler == nil {
			return fmt.Errorf("handler cannot be nil")
		}
		return w.register(listenerID, handler)
	}
}

func (w *QueueWorker) register(listenerID string, handler MessageHandler) error {
	if listenerID == "" {
		return fmt.Errorf("listener id cannot be blank")
	}
	if _, ok := w.handlers[listenerID]; ok {
		return fmt.Errorf("listener %q is already registered", listenerID)
	}
	w.handlers[listenerID] = handler
	return nil
}

// WithWorkerLogger sets the logger instance for the queue worker.
// Logger is required and must not be nil.
func WithWorkerLogger(logger Logger) WorkerOption {
	return func(w *QueueWorker) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		w.logger = logger
		return nil
	}
}

// WithRetryStrategy sets a custom retry strategy.
// If not provided, retry.DefaultStrategy() is used.
func WithRetryStrategy(strategy retry.Strategy) WorkerOption {
	return func(w *QueueWorker) error {
		w.retryStrategy = strategy
		return nil
	}
}

// WithBatchSize sets the number of deliveries to process per batch.
// Default is 100. Must be > 0.
func WithBatchSize(size int) WorkerOption {
	return func(w *QueueWorker) error {
		if size <= 0 {
			return fmt.Errorf("batch size must be > 0, got %d", size)
		}
		w.batchSize = size
		return nil
	}
}

// WithNotifications sets a notification service receiving delivery failures,
// DLQ additions and subscription changes.
func WithNotifications(service NotificationService) WorkerOption {
	return func(w *QueueWorker) error {
		if service == nil {
			return fmt.Errorf("notification service cannot be nil")
		}
		w.notificationService = service
		return nil
	}
}

// WithWorkerObserver sets the observer notified after each delivery attempt.
func WithWorkerObserver(o Observer) WorkerOption {
	return func(w *QueueWorker) error {
		if o == nil {
			return fmt.Errorf("observer cannot be nil")
		}
		w.observer = o
		return nil
	}
}

// ProcessPendingItems processes pending deliveries ready for their first
// attempt, oldest first.
//
// Returns the number of successfully delivered items. Individual failures are
// logged and don't stop batch processing.
func (w *QueueWorker) ProcessPendingItems(ctx context.Context) (int, error) {
	items, err := w.dr.FindPendingItems(ctx, w.batchSize)
	if err != nil {
		if errors.Is(err, ErrNoData) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to find pending items: %w", err)
	}

	processed := 0
	for i := range items {
		if err := w.processDelivery(ctx, &items[i]); err != nil {
			w.logger.Errorf("Failed to process delivery %d: %v", items[i].ID, err)
			continue
		}
		processed++
	}

	return processed, nil
}

// ProcessRetryableItems processes failed deliveries whose backoff elapsed.
//
// Returns the number of successfully delivered items. Individual failures are
// logged and don't stop batch processing.
func (w *QueueWorker) ProcessRetryableItems(ctx context.Context) (int, error) {
	items, err := w.dr.FindRetryableItems(ctx, w.batchSize)
	if err != nil {
		if errors.Is(err, ErrNoData) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to find retryable items: %w", err)
	}

	processed := 0
	for i := range items {
		if err := w.processDelivery(ctx, &items[i]); err != nil {
			w.logger.Errorf("Failed to process retryable delivery %d: %v", items[i].ID, err)
			continue
		}
		processed++
	}

	return processed, nil
}

// processDelivery dispatches a single delivery with retry logic.
func (w *QueueWorker) processDelivery(ctx context.Context, d *model.Delivery) error {
	if err := d.CanAttemptDelivery(w.retryStrategy.MaxAttempts); err != nil {
		w.logger.Debugf("Cannot attempt delivery %d: %v", d.ID, err)
		return err
	}

	sub, err := w.sr.Load(ctx, d.SubscriptionID)
	if err != nil {
		return fmt.Errorf("failed to load subscription: %w", err)
	}

	if !sub.IsActive {
		w.logger.Infof("Dropping delivery %d: subscription %d is inactive", d.ID, sub.ID)
		if err := w.dr.Delete(ctx, d); err != nil {
			return fmt.Errorf("failed to delete delivery of inactive subscription: %w", err)
		}
		return nil
	}

	stored, err := w.mr.Load(ctx, d.MessageID)
	if err != nil {
		return fmt.Errorf("failed to load message: %w", err)
	}

	deliveryErr := w.dispatch(ctx, sub, stored)
	if deliveryErr != nil {
		w.handleDeliveryFailure(ctx, d, sub, stored, deliveryErr)
		return NewErrorWithCause(ErrCodeDelivery, "delivery failed", deliveryErr)
	}

	w.handleDeliverySuccess(ctx, d, sub)
	return nil
}

// dispatch rebuilds the message and hands it to the subscribed listener.
func (w *QueueWorker) dispatch(ctx context.Context, sub model.Subscription, stored model.StoredMessage) error {
	handler, ok := w.handlers[sub.ListenerID]
	if !ok {
		return NewError(ErrCodeDelivery, fmt.Sprintf("no listener registered with id %q", sub.ListenerID))
	}

	msg, err := Restore(stored)
	if err != nil {
		return err
	}

	return handler(ctx, msg)
}

func (w *QueueWorker) handleDeliverySuccess(ctx context.Context, d *model.Delivery, sub model.Subscription) {
	d.MarkSent()
	w.observer.DeliveryCompleted(sub.ListenerID, "sent")

	if _, err := w.dr.Save(ctx, d); err != nil {
		w.logger.Errorf("Failed to mark delivery %d as sent: %v", d.ID, err)
		return
	}

	w.logger.Infof("Successfully delivered message %d to listener [%s] (delivery_id=%d, attempts=%d)",
		d.MessageID, sub.ListenerID, d.ID, d.AttemptCount)
}

func (w *QueueWorker) handleDeliveryFailure(ctx context.Context, d *model.Delivery, sub model.Subscription, stored model.StoredMessage, deliveryErr error) {
	retryDelay := w.retryStrategy.CalculateRetryDelay(d.AttemptCount + 1)

	d.MarkFailed(deliveryErr, retryDelay)

	if _, err := w.dr.Save(ctx, d); err != nil {
		w.logger.Errorf("Failed to update delivery %d after failure: %v", d.ID, err)
		return
	}

	if err := w.notificationService.NotifyDeliveryFailure(ctx, d, deliveryErr); err != nil {
		w.logger.Warnf("Failed to send delivery failure notification: %v", err)
	}

	if d.ShouldMoveToDLQ(w.retryStrategy.DLQThreshold) {
		w.logger.Warnf("Moving delivery %d to DLQ (attempts=%d, threshold=%d)",
			d.ID, d.AttemptCount, w.retryStrategy.DLQThreshold)

		if err := w.moveToDLQ(ctx, d, sub, stored); err != nil {
			w.logger.Errorf("Failed to move delivery %d to DLQ: %v", d.ID, err)
		}
		return
	}

	w.observer.DeliveryCompleted(sub.ListenerID, "failed")
	w.logger.Warnf("Delivery failed for message %d to listener [%s] (delivery_id=%d, attempts=%d, next_retry=%v): %v",
		d.MessageID, sub.ListenerID, d.ID, d.AttemptCount, retryDelay, deliveryErr)
}

// CleanupExpiredItems removes expired deliveries that were never sent.
// Returns the number of deleted items.
func (w *QueueWorker) CleanupExpiredItems(ctx context.Context) (int, error) {
	items, err := w.dr.FindExpiredItems(ctx, w.batchSize)
	if err != nil {
		if errors.Is(err, ErrNoData) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to find expired items: %w", err)
	}

	deleted := 0
	for i := range items {
		if err := w.dr.Delete(ctx, &items[i]); err != nil {
			w.logger.Errorf("Failed to delete expired delivery %d: %v", items[i].ID, err)
			continue
		}
		deleted++
	}

	if deleted > 0 {
		w.logger.Infof("Cleaned up %d expired deliveries", deleted)
	}
	return deleted, nil
}

// Run starts the worker loop. It processes one batch per interval until ctx
// is canceled.
//
// This method blocks and should typically be run in a goroutine.
//
// Example:
//
//	go worker.Run(ctx, 5*time.Second)
func (w *QueueWorker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.logger.Info("Queue worker started")

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Queue worker stopped")
			return
		case <-ticker.C:
			w.ProcessBatch(ctx)
		}
	}
}

// ProcessBatch processes one batch of pending, retryable and expired
// deliveries.
func (w *QueueWorker) ProcessBatch(ctx context.Context) {
	pendingCount, err := w.ProcessPendingItems(ctx)
	if err != nil {
		w.logger.Errorf("Error processing pending items: %v", err)
	}

	retryCount, err := w.ProcessRetryableItems(ctx)
	if err != nil {
		w.logger.Errorf("Error processing retryable items: %v", err)
	}

	expiredCount, err := w.CleanupExpiredItems(ctx)
	if err != nil {
		w.logger.Errorf("Error cleaning up expired items: %v", err)
	}

	if pendingCount > 0 || retryCount > 0 || expiredCount > 0 {
		w.logger.Infof("Batch processed: pending=%d, retries=%d, expired=%d",
			pendingCount, retryCount, expiredCount)
	}
}

// GetRetrySchedule returns a human-readable description of the retry schedule.
func (w *QueueWorker) GetRetrySchedule() string {
	return w.retryStrategy.GetRetrySchedule()
}

// moveToDLQ stores a dead letter for d and removes the delivery.
func (w *QueueWorker) moveToDLQ(ctx context.Context, d *model.Delivery, sub model.Subscription, stored model.StoredMessage) error {
	failureReason := fmt.Sprintf("Max retry attempts exceeded (%d >= %d)",
		d.AttemptCount, w.retryStrategy.DLQThreshold)

	entry, err := w.dlqr.Save(ctx, model.NewDeadLetter(*d, sub, stored, failureReason))
	if err != nil {
		return fmt.Errorf("failed to save DLQ entry: %w", err)
	}

	if err := w.dr.Delete(ctx, d); err != nil {
		// the dead letter already exists, so the delivery is only logged
		w.logger.Errorf("Failed to delete delivery %d after moving to DLQ: %v", d.ID, err)
	}

	w.observer.DeliveryCompleted(sub.ListenerID, "dead_lettered")
	w.logger.Infof("Moved message %d to DLQ (delivery_id=%d, dlq_id=%d, listener=%s, attempts=%d, reason=%s)",
		d.MessageID, d.ID, entry.ID, sub.ListenerID, d.AttemptCount, failureReason)

	if err := w.notificationService.NotifyDLQItemAdded(ctx, entry); err != nil {
		w.logger.Warnf("Failed to send DLQ notification: %v", err)
	}

	return nil
}

// GetDLQStats retrieves Dead Letter Queue statistics for monitoring.
func (w *QueueWorker) GetDLQStats(ctx context.Context) (model.DLQStats, error) {
	return w.dlqr.GetStats(ctx)
}

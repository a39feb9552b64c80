package msgdispatch

import (
	"context"
	"time"

	"github.com/coregx/msgdispatch/model"
)

// Filter represents query filtering options for subscriptions.
// Used by SubscriptionRepository.List to filter results.
type Filter struct {
	Destination string // Filter by destination (empty = no filter)
	ListenerID  string // Filter by listener id (empty = no filter)
	ActiveOnly  bool   // Skip deactivated subscriptions
}

// MessageRepository defines the persistence interface for outbox messages.
// Messages are immutable once created.
type MessageRepository interface {
	// Load retrieves a message by ID.
	// Returns ErrNoData if not found.
	Load(ctx context.Context, id int64) (model.StoredMessage, error)

	// Save creates a new message (if ID=0) or updates an existing one.
	// Returns the saved message with populated ID.
	Save(ctx context.Context, m model.StoredMessage) (model.StoredMessage, error)

	// Delete permanently removes a message from storage.
	Delete(ctx context.Context, m model.StoredMessage) error

	// FindOutdatedMessages finds messages older than the specified number of days.
	FindOutdatedMessages(ctx context.Context, days int) ([]model.StoredMessage, error)
}

// DeliveryRepository defines the persistence interface for deliveries.
//
// Implementations must be safe for concurrent use. Finders return ErrNoData
// when nothing matches.
type DeliveryRepository interface {
	// Load retrieves a delivery by ID.
	// Returns ErrNoData if not found.
	Load(ctx context.Context, id int64) (model.Delivery, error)

	// Save creates a new delivery (if ID=0) or updates an existing one.
	Save(ctx context.Context, d *model.Delivery) (*model.Delivery, error)

	// Delete permanently removes a delivery from storage.
	Delete(ctx context.Context, d *model.Delivery) error

	// FindBySubscriptionID retrieves all deliveries for a subscription.
	FindBySubscriptionID(ctx context.Context, subscriptionID int64) ([]model.Delivery, error)

	// FindPendingItems finds deliveries ready for their first attempt:
	// status=pending and next_retry_at <= now, oldest first.
	FindPendingItems(ctx context.Context, limit int) ([]model.Delivery, error)

	// FindRetryableItems finds deliveries ready for a retry:
	// status=failed and next_retry_at <= now, oldest first.
	FindRetryableItems(ctx context.Context, limit int) ([]model.Delivery, error)

	// FindExpiredItems finds deliveries with expires_at <= now and
	// status != sent, ordered by expires_at.
	FindExpiredItems(ctx context.Context, limit int) ([]model.Delivery, error)
}

// SubscriptionRepository defines the persistence interface for subscriptions,
// which bind a destination to a listener.
type SubscriptionRepository interface {
	// Load retrieves a subscription by ID.
	// Returns ErrNoData if not found.
	Load(ctx context.Context, id int64) (model.Subscription, error)

	// Save creates a new subscription (if ID=0) or updates an existing one.
	Save(ctx context.Context, m model.Subscription) (model.Subscription, error)

	// FindActiveByDestination returns the active subscriptions of a destination.
	// Returns ErrNoData if none found.
	FindActiveByDestination(ctx context.Context, destination string) ([]model.Subscription, error)

	// FindByDestinationAndListener returns the subscription binding the
	// destination to the listener, active or not.
	// Returns ErrNoData if not found.
	FindByDestinationAndListener(ctx context.Context, destination, listenerID string) (model.Subscription, error)

	// List retrieves subscriptions matching the filter criteria.
	// Returns ErrNoData if none found.
	List(ctx context.Context, filter Filter) ([]model.Subscription, error)
}

// DeadLetterRepository defines the persistence interface for the Dead Letter Queue.
// Finders return ErrNoData when nothing matches.
type DeadLetterRepository interface {
	// Load retrieves a dead letter by ID.
	// Returns ErrNoData if not found.
	Load(ctx context.Context, id int64) (model.DeadLetter, error)

	// Save creates a new dead letter (if ID=0) or updates an existing one.
	Save(ctx context.Context, m model.DeadLetter) (model.DeadLetter, error)

	// Delete permanently removes a dead letter from storage.
	Delete(ctx context.Context, m model.DeadLetter) error

	// FindBySubscription retrieves dead letters of a subscription, newest first.
	FindBySubscription(ctx context.Context, subscriptionID int64, limit int) ([]model.DeadLetter, error)

	// FindUnresolved retrieves unresolved dead letters, oldest first.
	FindUnresolved(ctx context.Context, limit int) ([]model.DeadLetter, error)

	// FindOlderThan retrieves unresolved dead letters older than threshold.
	FindOlderThan(ctx context.Context, threshold time.Duration, limit int) ([]model.DeadLetter, error)

	// FindByMessageID retrieves the dead letter of a message.
	// Returns ErrNoData if not found.
	FindByMessageID(ctx context.Context, messageID int64) (model.DeadLetter, error)

	// GetStats retrieves aggregated Dead Letter Queue statistics.
	GetStats(ctx context.Context) (model.DLQStats, error)

	// CountUnresolved returns the number of unresolved dead letters.
	CountUnresolved(ctx context.Context) (int, error)
}

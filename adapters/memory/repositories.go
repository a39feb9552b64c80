package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/coregx/msgdispatch"
	"github.com/coregx/msgdispatch/model"
)

// Repositories groups the in-memory outbox repositories.
type Repositories struct {
	Message      *MessageRepository
	Delivery     *DeliveryRepository
	Subscription *SubscriptionRepository
	DeadLetter   *DeadLetterRepository
}

// NewRepositories creates an empty set of repositories.
func NewRepositories() *Repositories {
	return &Repositories{
		Message:      NewMessageRepository(),
		Delivery:     NewDeliveryRepository(),
		Subscription: NewSubscriptionRepository(),
		DeadLetter:   NewDeadLetterRepository(),
	}
}

// table is a mutex guarded id -> row map with an id sequence.
type table[T any] struct {
	mu     sync.RWMutex
	rows   map[int64]T
	nextID int64
}

func newTable[T any]() *table[T] {
	return &table[T]{rows: make(map[int64]T)}
}

func (t *table[T]) load(id int64) (T, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	row, ok := t.rows[id]
	if !ok {
		var zero T
		return zero, msgdispatch.ErrNoData
	}
	return row, nil
}

// save stores row under *id, assigning the next id when *id is 0.
func (t *table[T]) save(id *int64, row func() T) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if *id == 0 {
		t.nextID++
		*id = t.nextID
	}
	t.rows[*id] = row()
}

func (t *table[T]) delete(id int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.rows, id)
}

// query returns the rows accepted by keep, sorted by less and cut to limit
// (limit <= 0 means no limit). An empty result is ErrNoData.
func (t *table[T]) query(keep func(T) bool, less func(a, b T) int, limit int) ([]T, error) {
	t.mu.RLock()
	var rows []T
	for _, row := range t.rows {
		if keep(row) {
			rows = append(rows, row)
		}
	}
	t.mu.RUnlock()

	if len(rows) == 0 {
		return nil, msgdispatch.ErrNoData
	}
	slices.SortFunc(rows, less)
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

// MessageRepository implements msgdispatch.MessageRepository in memory.
type MessageRepository struct {
	t *table[model.StoredMessage]
}

// NewMessageRepository creates an empty MessageRepository.
func NewMessageRepository() *MessageRepository {
	return &MessageRepository{t: newTable[model.StoredMessage]()}
}

// Load retrieves a message by ID.
func (r *MessageRepository) Load(_ context.Context, id int64) (model.StoredMessage, error) {
	return r.t.load(id)
}

// Save creates or updates a message.
func (r *MessageRepository) Save(_ context.Context, m model.StoredMessage) (model.StoredMessage, error) {
	r.t.save(&m.ID, func() model.StoredMessage { return m })
	return m, nil
}

// Delete removes a message.
func (r *MessageRepository) Delete(_ context.Context, m model.StoredMessage) error {
	r.t.delete(m.ID)
	return nil
}

// FindOutdatedMessages finds messages older than days.
func (r *MessageRepository) FindOutdatedMessages(_ context.Context, days int) ([]model.StoredMessage, error) {
	cutoff := time.Now().AddDate(0, 0, -days)
	return r.t.query(
		func(m model.StoredMessage) bool { return m.CreatedAt.Before(cutoff) },
		func(a, b model.StoredMessage) int { return cmp.Compare(a.ID, b.ID) },
		0,
	)
}

// DeliveryRepository implements msgdispatch.DeliveryRepository in memory.
type DeliveryRepository struct {
	t *table[model.Delivery]
}

// NewDeliveryRepository creates an empty DeliveryRepository.
func NewDeliveryRepository() *DeliveryRepository {
	return &DeliveryRepository{t: newTable[model.Delivery]()}
}

// Load retrieves a delivery by ID.
func (r *DeliveryRepository) Load(_ context.Context, id int64) (model.Delivery, error) {
	return r.t.load(id)
}

// Save creates or updates a delivery. d.ID is populated on insert.
func (r *DeliveryRepository) Save(_ context.Context, d *model.Delivery) (*model.Delivery, error) {
	r.t.save(&d.ID, func() model.Delivery { return *d })
	return d, nil
}

// Delete removes a delivery.
func (r *DeliveryRepository) Delete(_ context.Context, d *model.Delivery) error {
	r.t.delete(d.ID)
	return nil
}

// FindBySubscriptionID retrieves all deliveries of a subscription, newest first.
func (r *DeliveryRepository) FindBySubscriptionID(_ context.Context, subscriptionID int64) ([]model.Delivery, error) {
	return r.t.query(
		func(d model.Delivery) bool { return d.SubscriptionID == subscriptionID },
		func(a, b model.Delivery) int { return cmp.Compare(b.ID, a.ID) },
		0,
	)
}

// FindPendingItems retrieves pending deliveries ready for their first attempt.
func (r *DeliveryRepository) FindPendingItems(_ context.Context, limit int) ([]model.Delivery, error) {
	return r.findReady(model.DeliveryStatusPending, limit)
}

// FindRetryableItems retrieves failed deliveries whose backoff elapsed.
func (r *DeliveryRepository) FindRetryableItems(_ context.Context, limit int) ([]model.Delivery, error) {
	return r.findReady(model.DeliveryStatusFailed, limit)
}

func (r *DeliveryRepository) findReady(status model.DeliveryStatus, limit int) ([]model.Delivery, error) {
	now := time.Now()
	return r.t.query(
		func(d model.Delivery) bool {
			return d.Status == status &&
				d.NextRetryAt.Valid && !d.NextRetryAt.Time.After(now) &&
				d.ExpiresAt.After(now)
		},
		byID(func(d model.Delivery) int64 { return d.ID }),
		limit,
	)
}

// FindExpiredItems retrieves expired deliveries that were never sent.
func (r *DeliveryRepository) FindExpiredItems(_ context.Context, limit int) ([]model.Delivery, error) {
	now := time.Now()
	return r.t.query(
		func(d model.Delivery) bool {
			return !d.ExpiresAt.After(now) && d.Status != model.DeliveryStatusSent
		},
		func(a, b model.Delivery) int { return a.ExpiresAt.Compare(b.ExpiresAt) },
		limit,
	)
}

// SubscriptionRepository implements msgdispatch.SubscriptionRepository in memory.
type SubscriptionRepository struct {
	t *table[model.Subscription]
}

// NewSubscriptionRepository creates an empty SubscriptionRepository.
func NewSubscriptionRepository() *SubscriptionRepository {
	return &SubscriptionRepository{t: newTable[model.Subscription]()}
}

// Load retrieves a subscription by ID.
func (r *SubscriptionRepository) Load(_ context.Context, id int64) (model.Subscription, error) {
	return r.t.load(id)
}

// Save creates or updates a subscription.
func (r *SubscriptionRepository) Save(_ context.Context, m model.Subscription) (model.Subscription, error) {
	r.t.save(&m.ID, func() model.Subscription { return m })
	return m, nil
}

// FindActiveByDestination finds the active subscriptions of a destination.
func (r *SubscriptionRepository) FindActiveByDestination(ctx context.Context, destination string) ([]model.Subscription, error) {
	return r.List(ctx, msgdispatch.Filter{Destination: destination, ActiveOnly: true})
}

// FindByDestinationAndListener finds the subscription binding destination to listenerID.
func (r *SubscriptionRepository) FindByDestinationAndListener(ctx context.Context, destination, listenerID string) (model.Subscription, error) {
	subs, err := r.List(ctx, msgdispatch.Filter{Destination: destination, ListenerID: listenerID})
	if err != nil {
		return model.Subscription{}, err
	}
	return subs[0], nil
}

// List retrieves subscriptions matching the filter criteria, ordered by ID.
func (r *SubscriptionRepository) List(_ context.Context, filter msgdispatch.Filter) ([]model.Subscription, error) {
	return r.t.query(
		func(s model.Subscription) bool {
			return (filter.Destination == "" || s.Destination == filter.Destination) &&
				(filter.ListenerID == "" || s.ListenerID == filter.ListenerID) &&
				(!filter.ActiveOnly || s.IsActive)
		},
		byID(func(s model.Subscription) int64 { return s.ID }),
		0,
	)
}

// DeadLetterRepository implements msgdispatch.DeadLetterRepository in memory.
type DeadLetterRepository struct {
	t *table[model.DeadLetter]
}

// NewDeadLetterRepository creates an empty DeadLetterRepository.
func NewDeadLetterRepository() *DeadLetterRepository {
	return &DeadLetterRepository{t: newTable[model.DeadLetter]()}
}

// Load retrieves a dead letter by ID.
func (r *DeadLetterRepository) Load(_ context.Context, id int64) (model.DeadLetter, error) {
	return r.t.load(id)
}

// Save creates or updates a dead letter.
func (r *DeadLetterRepository) Save(_ context.Context, m model.DeadLetter) (model.DeadLetter, error) {
	r.t.save(&m.ID, func() model.DeadLetter { return m })
	return m, nil
}

// Delete removes a dead letter.
func (r *DeadLetterRepository) Delete(_ context.Context, m model.DeadLetter) error {
	r.t.delete(m.ID)
	return nil
}

// FindBySubscription retrieves dead letters of a subscription, newest first.
func (r *DeadLetterRepository) FindBySubscription(_ context.Context, subscriptionID int64, limit int) ([]model.DeadLetter, error) {
	return r.t.query(
		func(d model.DeadLetter) bool { return d.SubscriptionID == subscriptionID },
		func(a, b model.DeadLetter) int { return cmp.Compare(b.ID, a.ID) },
		limit,
	)
}

// FindUnresolved retrieves unresolved dead letters, oldest first.
func (r *DeadLetterRepository) FindUnresolved(_ context.Context, limit int) ([]model.DeadLetter, error) {
	return r.t.query(
		func(d model.DeadLetter) bool { return !d.IsResolved },
		byID(func(d model.DeadLetter) int64 { return d.ID }),
		limit,
	)
}

// FindOlderThan retrieves unresolved dead letters older than threshold.
func (r *DeadLetterRepository) FindOlderThan(_ context.Context, threshold time.Duration, limit int) ([]model.DeadLetter, error) {
	cutoff := time.Now().Add(-threshold)
	return r.t.query(
		func(d model.DeadLetter) bool { return !d.IsResolved && d.CreatedAt.Before(cutoff) },
		byID(func(d model.DeadLetter) int64 { return d.ID }),
		limit,
	)
}

// FindByMessageID retrieves the dead letter of a message.
func (r *DeadLetterRepository) FindByMessageID(_ context.Context, messageID int64) (model.DeadLetter, error) {
	dls, err := r.t.query(
		func(d model.DeadLetter) bool { return d.MessageID == messageID },
		byID(func(d model.DeadLetter) int64 { return d.ID }),
		1,
	)
	if err != nil {
		return model.DeadLetter{}, err
	}
	return dls[0], nil
}

// GetStats retrieves Dead Letter Queue statistics.
func (r *DeadLetterRepository) GetStats(_ context.Context) (model.DLQStats, error) {
	r.t.mu.RLock()
	defer r.t.mu.RUnlock()

	stats := model.DLQStats{TotalItems: len(r.t.rows), LastUpdated: time.Now()}
	for _, d := range r.t.rows {
		if d.IsResolved {
			stats.ResolvedItems++
		} else {
			stats.UnresolvedItems++
		}
	}
	return stats, nil
}

// CountUnresolved returns the number of unresolved dead letters.
func (r *DeadLetterRepository) CountUnresolved(ctx context.Context) (int, error) {
	stats, err := r.GetStats(ctx)
	return stats.UnresolvedItems, err
}

func byID[T any](id func(T) int64) func(a, b T) int {
	return func(a, b T) int { return cmp.Compare(id(a), id(b)) }
}

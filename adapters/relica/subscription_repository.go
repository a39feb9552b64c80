package relica

import (
	"context"
	"database/sql"
	"errors"

	"github.com/coregx/relica"

	"github.com/coregx/msgdispatch"
	"github.com/coregx/msgdispatch/model"
)

// SubscriptionRepository implements msgdispatch.SubscriptionRepository using Relica.
type SubscriptionRepository struct {
	db          *relica.DB
	tablePrefix string
}

// NewSubscriptionRepository creates a new SubscriptionRepository with default table prefix.
func NewSubscriptionRepository(sqlDB *sql.DB, driverName string) *SubscriptionRepository {
	return &SubscriptionRepository{db: relica.WrapDB(sqlDB, driverName), tablePrefix: DefaultTablePrefix}
}

// NewSubscriptionRepositoryWithPrefix creates a new SubscriptionRepository with custom table prefix.
func NewSubscriptionRepositoryWithPrefix(sqlDB *sql.DB, driverName, prefix string) *SubscriptionRepository {
	return &SubscriptionRepository{db: relica.WrapDB(sqlDB, driverName), tablePrefix: prefix}
}

func (r *SubscriptionRepository) tableName() string {
	return r.tablePrefix + "subscription"
}

// Load retrieves a subscription by ID.
func (r *SubscriptionRepository) Load(ctx context.Context, id int64) (model.Subscription, error) {
	var sub model.Subscription
	err := r.db.WithContext(ctx).Select("*").From(r.tableName()).Where("id = ?", id).WithContext(ctx).One(&sub)
	if errors.Is(err, sql.ErrNoRows) {
		return sub, msgdispatch.ErrNoData
	}
	if err != nil {
		return sub, msgdispatch.NewErrorWithCause(msgdispatch.ErrCodeDatabase, "failed to load subscription", err)
	}
	return sub, nil
}

// Save creates or updates a subscription.
func (r *SubscriptionRepository) Save(ctx context.Context, m model.Subscription) (model.Subscription, error) {
	if m.ID == 0 {
		if err := r.db.WithContext(ctx).Model(&m).Table(r.tableName()).Insert(); err != nil {
			return m, msgdispatch.NewErrorWithCause(msgdispatch.ErrCodeDatabase, "failed to insert subscription", err)
		}
		return m, nil
	}

	if err := r.db.WithContext(ctx).Model(&m).Table(r.tableName()).Update(); err != nil {
		return m, msgdispatch.NewErrorWithCause(msgdispatch.ErrCodeDatabase, "failed to update subscription", err)
	}
	return m, nil
}

// FindActiveByDestination finds the active subscriptions of a destination.
func (r *SubscriptionRepository) FindActiveByDestination(ctx context.Context, destination string) ([]model.Subscription, error) {
	return r.List(ctx, msgdispatch.Filter{Destination: destination, ActiveOnly: true})
}

// FindByDestinationAndListener finds the subscription binding destination to listenerID.
func (r *SubscriptionRepository) FindByDestinationAndListener(ctx context.Context, destination, listenerID string) (model.Subscription, error) {
	var sub model.Subscription
	err := r.db.WithContext(ctx).Select("*").
		From(r.tableName()).
		Where("destination = ? AND listener_id = ?", destination, listenerID).
		WithContext(ctx).
		One(&sub)
	if errors.Is(err, sql.ErrNoRows) {
		return sub, msgdispatch.ErrNoData
	}
	if err != nil {
		return sub, msgdispatch.NewErrorWithCause(msgdispatch.ErrCodeDatabase, "failed to find subscription", err)
	}
	return sub, nil
}

// List retrieves subscriptions matching the filter criteria.
func (r *SubscriptionRepository) List(ctx context.Context, filter msgdispatch.Filter) ([]model.Subscription, error) {
	var subs []model.Subscription
	q := r.db.WithContext(ctx).Select("*").From(r.tableName())
	if filter.Destination != "" {
		q = q.Where("destination = ?", filter.Destination)
	}
	if filter.ListenerID != "" {
		q = q.Where("listener_id = ?", filter.ListenerID)
	}
	if filter.ActiveOnly {
		q = q.Where("is_active = ?", true)
	}
	err := q.OrderBy("id ASC").WithContext(ctx).All(&subs)
	return found(subs, err, "failed to list subscriptions")
}

package relica

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/coregx/relica"

	"github.com/coregx/msgdispatch"
	"github.com/coregx/msgdispatch/model"
)

// DeliveryRepository implements msgdispatch.DeliveryRepository using Relica.
type DeliveryRepository struct {
	db          *relica.DB
	tablePrefix string
}

// NewDeliveryRepository creates a new DeliveryRepository with default table prefix.
func NewDeliveryRepository(sqlDB *sql.DB, driverName string) *DeliveryRepository {
	return &DeliveryRepository{
		db:          relica.WrapDB(sqlDB, driverName),
		tablePrefix: DefaultTablePrefix,
	}
}

// NewDeliveryRepositoryWithPrefix creates a new DeliveryRepository with custom table prefix.
func NewDeliveryRepositoryWithPrefix(sqlDB *sql.DB, driverName, prefix string) *DeliveryRepository {
	return &DeliveryRepository{
		db:          relica.WrapDB(sqlDB, driverName),
		tablePrefix: prefix,
	}
}

func (r *DeliveryRepository) tableName() string {
	return r.tablePrefix + "delivery"
}

// Load retrieves a delivery by ID.
func (r *DeliveryRepository) Load(ctx context.Context, id int64) (model.Delivery, error) {
	var d model.Delivery

	err := r.db.WithContext(ctx).Select("*").
		From(r.tableName()).
		Where("id = ?", id).
		WithContext(ctx).
		One(&d)

	if errors.Is(err, sql.ErrNoRows) {
		return d, msgdispatch.ErrNoData
	}
	if err != nil {
		return d, msgdispatch.NewErrorWithCause(msgdispatch.ErrCodeDatabase, "failed to load delivery", err)
	}

	return d, nil
}

// Save creates or updates a delivery.
func (r *DeliveryRepository) Save(ctx context.Context, d *model.Delivery) (*model.Delivery, error) {
	if d.ID == 0 {
		// Model().Insert() populates d.ID
		if err := r.db.WithContext(ctx).Model(d).Table(r.tableName()).Insert(); err != nil {
			return d, msgdispatch.NewErrorWithCause(msgdispatch.ErrCodeDatabase, "failed to insert delivery", err)
		}
		return d, nil
	}

	if err := r.db.WithContext(ctx).Model(d).Table(r.tableName()).Update(); err != nil {
		return d, msgdispatch.NewErrorWithCause(msgdispatch.ErrCodeDatabase, "failed to update delivery", err)
	}

	return d, nil
}

// Delete removes a delivery.
func (r *DeliveryRepository) Delete(ctx context.Context, d *model.Delivery) error {
	if err := r.db.WithContext(ctx).Model(d).Table(r.tableName()).Delete(); err != nil {
		return msgdispatch.NewErrorWithCause(msgdispatch.ErrCodeDatabase, "failed to delete delivery", err)
	}
	return nil
}

// FindBySubscriptionID retrieves all deliveries of a subscription, newest first.
func (r *DeliveryRepository) FindBySubscriptionID(ctx context.Context, subscriptionID int64) ([]model.Delivery, error) {
	var deliveries []model.Delivery

	err := r.db.WithContext(ctx).Select("*").
		From(r.tableName()).
		Where("subscription_id = ?", subscriptionID).
		OrderBy("created_at DESC").
		WithContext(ctx).
		All(&deliveries)

	return found(deliveries, err, "failed to find deliveries by subscription")
}

// FindPendingItems retrieves pending deliveries ready for their first attempt.
func (r *DeliveryRepository) FindPendingItems(ctx context.Context, limit int) ([]model.Delivery, error) {
	return r.findReady(ctx, model.DeliveryStatusPending, limit, "failed to find pending items")
}

// FindRetryableItems retrieves failed deliveries whose backoff elapsed.
func (r *DeliveryRepository) FindRetryableItems(ctx context.Context, limit int) ([]model.Delivery, error) {
	return r.findReady(ctx, model.DeliveryStatusFailed, limit, "failed to find retryable items")
}

func (r *DeliveryRepository) findReady(ctx context.Context, status model.DeliveryStatus, limit int, failure string) ([]model.Delivery, error) {
	var deliveries []model.Delivery

	err := r.db.WithContext(ctx).Select("*").
		From(r.tableName()).
		Where("status = ? AND next_retry_at <= ? AND expires_at > ?", status, time.Now(), time.Now()).
		OrderBy("created_at ASC").
		Limit(int64(limit)).
		WithContext(ctx).
		All(&deliveries)

	return found(deliveries, err, failure)
}

// FindExpiredItems retrieves expired deliveries that were never sent.
func (r *DeliveryRepository) FindExpiredItems(ctx context.Context, limit int) ([]model.Delivery, error) {
	var deliveries []model.Delivery

	err := r.db.WithContext(ctx).Select("*").
		From(r.tableName()).
		Where("expires_at <= ? AND status != ?", time.Now(), model.DeliveryStatusSent).
		OrderBy("expires_at ASC").
		Limit(int64(limit)).
		WithContext(ctx).
		All(&deliveries)

	return found(deliveries, err, "failed to find expired items")
}

// found maps the result of a list query to the repository contract: a
// database error, ErrNoData for an empty result, or the rows.
func found[T any](rows []T, err error, failure string) ([]T, error) {
	if err != nil {
		return nil, msgdispatch.NewErrorWithCause(msgdispatch.ErrCodeDatabase, failure, err)
	}
	if len(rows) == 0 {
		return nil, msgdispatch.ErrNoData
	}
	return rows, nil
}

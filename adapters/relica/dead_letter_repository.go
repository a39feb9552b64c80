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

// DeadLetterRepository implements msgdispatch.DeadLetterRepository using Relica.
type DeadLetterRepository struct {
	db          *relica.DB
	tablePrefix string
}

// NewDeadLetterRepository creates a new DeadLetterRepository with default table prefix.
func NewDeadLetterRepository(sqlDB *sql.DB, driverName string) *DeadLetterRepository {
	return &DeadLetterRepository{db: relica.WrapDB(sqlDB, driverName), tablePrefix: DefaultTablePrefix}
}

// NewDeadLetterRepositoryWithPrefix creates a new DeadLetterRepository with custom table prefix.
func NewDeadLetterRepositoryWithPrefix(sqlDB *sql.DB, driverName, prefix string) *DeadLetterRepository {
	return &DeadLetterRepository{db: relica.WrapDB(sqlDB, driverName), tablePrefix: prefix}
}

func (r *DeadLetterRepository) tableName() string {
	return r.tablePrefix + "dead_letter"
}

// Load retrieves a dead letter by ID.
func (r *DeadLetterRepository) Load(ctx context.Context, id int64) (model.DeadLetter, error) {
	var dl model.DeadLetter
	err := r.db.WithContext(ctx).Select("*").From(r.tableName()).Where("id = ?", id).One(&dl)
	if errors.Is(err, sql.ErrNoRows) {
		return dl, msgdispatch.ErrNoData
	}
	if err != nil {
		return dl, msgdispatch.NewErrorWithCause(msgdispatch.ErrCodeDatabase, "failed to load dead letter", err)
	}
	return dl, nil
}

// Save creates or updates a dead letter.
func (r *DeadLetterRepository) Save(ctx context.Context, m model.DeadLetter) (model.DeadLetter, error) {
	if m.ID == 0 {
		if err := r.db.WithContext(ctx).Model(&m).Table(r.tableName()).Insert(); err != nil {
			return m, msgdispatch.NewErrorWithCause(msgdispatch.ErrCodeDatabase, "failed to insert dead letter", err)
		}
		return m, nil
	}

	if err := r.db.WithContext(ctx).Model(&m).Table(r.tableName()).Update(); err != nil {
		return m, msgdispatch.NewErrorWithCause(msgdispatch.ErrCodeDatabase, "failed to update dead letter", err)
	}
	return m, nil
}

// Delete removes a dead letter.
func (r *DeadLetterRepository) Delete(ctx context.Context, m model.DeadLetter) error {
	if err := r.db.WithContext(ctx).Model(&m).Table(r.tableName()).Delete(); err != nil {
		return msgdispatch.NewErrorWithCause(msgdispatch.ErrCodeDatabase, "failed to delete dead letter", err)
	}
	return nil
}

// FindBySubscription retrieves dead letters of a subscription, newest first.
func (r *DeadLetterRepository) FindBySubscription(ctx context.Context, subscriptionID int64, limit int) ([]model.DeadLetter, error) {
	var dls []model.DeadLetter
	err := r.db.WithContext(ctx).Select("*").
		From(r.tableName()).
		Where("subscription_id = ?", subscriptionID).
		OrderBy("created_at DESC").
		Limit(int64(limit)).
		WithContext(ctx).
		All(&dls)
	return found(dls, err, "failed to find dead letters by subscription")
}

// FindUnresolved retrieves unresolved dead letters, oldest first.
func (r *DeadLetterRepository) FindUnresolved(ctx context.Context, limit int) ([]model.DeadLetter, error) {
	var dls []model.DeadLetter
	err := r.db.WithContext(ctx).Select("*").
		From(r.tableName()).
		Where("is_resolved = ?", false).
		OrderBy("created_at ASC").
		Limit(int64(limit)).
		WithContext(ctx).
		All(&dls)
	return found(dls, err, "failed to find unresolved dead letters")
}

// FindOlderThan retrieves unresolved dead letters older than threshold.
func (r *DeadLetterRepository) FindOlderThan(ctx context.Context, threshold time.Duration, limit int) ([]model.DeadLetter, error) {
	var dls []model.DeadLetter
	err := r.db.WithContext(ctx).Select("*").
		From(r.tableName()).
		Where("created_at < ? AND is_resolved = ?", time.Now().Add(-threshold), false).
		OrderBy("created_at ASC").
		Limit(int64(limit)).
		WithContext(ctx).
		All(&dls)
	return found(dls, err, "failed to find old dead letters")
}

// FindByMessageID retrieves the dead letter of a message.
func (r *DeadLetterRepository) FindByMessageID(ctx context.Context, messageID int64) (model.DeadLetter, error) {
	var dl model.DeadLetter
	err := r.db.WithContext(ctx).Select("*").From(r.tableName()).Where("message_id = ?", messageID).One(&dl)
	if errors.Is(err, sql.ErrNoRows) {
		return dl, msgdispatch.ErrNoData
	}
	if err != nil {
		return dl, msgdispatch.NewErrorWithCause(msgdispatch.ErrCodeDatabase, "failed to find dead letter by message", err)
	}
	return dl, nil
}

// GetStats retrieves Dead Letter Queue statistics.
func (r *DeadLetterRepository) GetStats(ctx context.Context) (model.DLQStats, error) {
	var stats model.DLQStats
	var total int64

	err := r.db.WithContext(ctx).Select("COUNT(*)").From(r.tableName()).One(&total)
	if err != nil {
		return stats, msgdispatch.NewErrorWithCause(msgdispatch.ErrCodeDatabase, "failed to count dead letters", err)
	}

	unresolved, err := r.CountUnresolved(ctx)
	if err != nil {
		return stats, err
	}

	stats.TotalItems = int(total)
	stats.UnresolvedItems = unresolved
	stats.ResolvedItems = stats.TotalItems - stats.UnresolvedItems
	stats.LastUpdated = time.Now()
	return stats, nil
}

// CountUnresolved returns the number of unresolved dead letters.
func (r *DeadLetterRepository) CountUnresolved(ctx context.Context) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).Select("COUNT(*)").From(r.tableName()).Where("is_resolved = ?", false).One(&count)
	if err != nil {
		return 0, msgdispatch.NewErrorWithCause(msgdispatch.ErrCodeDatabase, "failed to count unresolved dead letters", err)
	}
	return int(count), nil
}

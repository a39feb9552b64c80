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

// MessageRepository implements msgdispatch.MessageRepository using Relica.
type MessageRepository struct {
	db          *relica.DB
	tablePrefix string
}

// NewMessageRepository creates a new MessageRepository with default table prefix.
func NewMessageRepository(sqlDB *sql.DB, driverName string) *MessageRepository {
	return &MessageRepository{db: relica.WrapDB(sqlDB, driverName), tablePrefix: DefaultTablePrefix}
}

// NewMessageRepositoryWithPrefix creates a new MessageRepository with custom table prefix.
func NewMessageRepositoryWithPrefix(sqlDB *sql.DB, driverName, prefix string) *MessageRepository {
	return &MessageRepository{db: relica.WrapDB(sqlDB, driverName), tablePrefix: prefix}
}

func (r *MessageRepository) tableName() string {
	return r.tablePrefix + "message"
}

// Load retrieves a message by ID.
func (r *MessageRepository) Load(ctx context.Context, id int64) (model.StoredMessage, error) {
	var msg model.StoredMessage
	err := r.db.WithContext(ctx).Select("*").From(r.tableName()).Where("id = ?", id).WithContext(ctx).One(&msg)
	if errors.Is(err, sql.ErrNoRows) {
		return msg, msgdispatch.ErrNoData
	}
	if err != nil {
		return msg, msgdispatch.NewErrorWithCause(msgdispatch.ErrCodeDatabase, "failed to load message", err)
	}
	return msg, nil
}

// Save creates or updates a message.
func (r *MessageRepository) Save(ctx context.Context, m model.StoredMessage) (model.StoredMessage, error) {
	if m.ID == 0 {
		if err := r.db.WithContext(ctx).Model(&m).Table(r.tableName()).Insert(); err != nil {
			return m, msgdispatch.NewErrorWithCause(msgdispatch.ErrCodeDatabase, "failed to insert message", err)
		}
		return m, nil
	}

	if err := r.db.WithContext(ctx).Model(&m).Table(r.tableName()).Update(); err != nil {
		return m, msgdispatch.NewErrorWithCause(msgdispatch.ErrCodeDatabase, "failed to update message", err)
	}
	return m, nil
}

// Delete removes a message.
func (r *MessageRepository) Delete(ctx context.Context, m model.StoredMessage) error {
	if err := r.db.WithContext(ctx).Model(&m).Table(r.tableName()).Delete(); err != nil {
		return msgdispatch.NewErrorWithCause(msgdispatch.ErrCodeDatabase, "failed to delete message", err)
	}
	return nil
}

// FindOutdatedMessages finds messages older than the specified number of days.
func (r *MessageRepository) FindOutdatedMessages(ctx context.Context, days int) ([]model.StoredMessage, error) {
	var messages []model.StoredMessage
	cutoff := time.Now().AddDate(0, 0, -days)
	err := r.db.WithContext(ctx).Select("*").
		From(r.tableName()).
		Where("created_at < ?", cutoff).
		OrderBy("created_at ASC").
		WithContext(ctx).
		All(&messages)
	return found(messages, err, "failed to find outdated messages")
}

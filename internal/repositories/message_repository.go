package repositories

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"support-chat/internal/models"
)

const messageColumns = `id, seq, conversation_id, sender_role, body, user_id, email, created_at, read, read_at, is_broadcast, broadcast_type, reply_to`

// MessageRepository is the durable message store.
type MessageRepository interface {
	CreateMessage(ctx context.Context, conversationID *string, msg models.NewMessage) (models.Message, error)
	ListConversationMessages(ctx context.Context, conversationID string) ([]models.Message, error)
	ListBroadcasts(ctx context.Context, limit int) ([]models.Message, error)
	GetMessage(ctx context.Context, messageID string) (models.Message, error)
	DeleteMessage(ctx context.Context, messageID string) error
	DeleteMessages(ctx context.Context, messageIDs []string) (int64, error)
	DeleteConversationMessages(ctx context.Context, conversationID string) (int64, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

func validateNewMessage(msg models.NewMessage) (models.NewMessage, error) {
	msg.Body = strings.TrimSpace(msg.Body)
	if msg.Body == "" {
		return msg, ErrEmptyBody
	}
	if msg.SenderRole != models.RoleAdmin && msg.SenderRole != models.RoleUser {
		return msg, ErrInvalidRole
	}
	msg.Sender = msg.Sender.Normalize()
	if msg.ReplyTo != "" && !isUUID(msg.ReplyTo) {
		return msg, ErrMessageNotFound
	}
	return msg, nil
}

// insertMessage appends a message. created_at and seq are assigned by the
// database so ordering never depends on client clocks.
func insertMessage(ctx context.Context, q sqlx.QueryerContext, conversationID *string, msg models.NewMessage) (models.Message, error) {
	msg, err := validateNewMessage(msg)
	if err != nil {
		return models.Message{}, err
	}

	var stored models.Message
	err = sqlx.GetContext(ctx, q, &stored, `INSERT INTO messages
        (id, conversation_id, sender_role, body, user_id, email, is_broadcast, broadcast_type, reply_to)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        RETURNING `+messageColumns,
		uuid.NewString(), conversationID, msg.SenderRole, msg.Body,
		nullable(msg.Sender.UserID), nullable(msg.Sender.Email),
		msg.IsBroadcast, nullable(msg.BroadcastType), nullable(msg.ReplyTo))
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" {
			if pqErr.Constraint == "messages_reply_to_fkey" {
				return models.Message{}, ErrMessageNotFound
			}
			return models.Message{}, ErrConversationNotFound
		}
		return models.Message{}, storageErr("insert message", err)
	}
	return stored, nil
}

// CreateMessage stores a message outside any unread bookkeeping. Used for
// broadcast records; conversation sends go through ThreadRepo.
func (r *MessageRepo) CreateMessage(ctx context.Context, conversationID *string, msg models.NewMessage) (models.Message, error) {
	if conversationID != nil && !isUUID(*conversationID) {
		return models.Message{}, ErrConversationNotFound
	}
	return insertMessage(ctx, r.db, conversationID, msg)
}

// ListConversationMessages returns messages ordered by server timestamp,
// ties broken by insertion sequence.
func (r *MessageRepo) ListConversationMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	return listConversationMessages(ctx, r.db, conversationID)
}

func listConversationMessages(ctx context.Context, q sqlx.QueryerContext, conversationID string) ([]models.Message, error) {
	if !isUUID(conversationID) {
		return nil, ErrConversationNotFound
	}
	msgs := []models.Message{}
	err := sqlx.SelectContext(ctx, q, &msgs, `SELECT `+messageColumns+` FROM messages
        WHERE conversation_id=$1 ORDER BY created_at ASC, seq ASC`, conversationID)
	if err != nil {
		return nil, storageErr("list messages", err)
	}
	return msgs, nil
}

// ListBroadcasts returns the most recent broadcast records, oldest first.
func (r *MessageRepo) ListBroadcasts(ctx context.Context, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	msgs := []models.Message{}
	err := r.db.SelectContext(ctx, &msgs, `SELECT * FROM (
            SELECT `+messageColumns+` FROM messages WHERE is_broadcast = TRUE
            ORDER BY created_at DESC, seq DESC LIMIT $1
        ) recent ORDER BY created_at ASC, seq ASC`, limit)
	if err != nil {
		return nil, storageErr("list broadcasts", err)
	}
	return msgs, nil
}

// GetMessage retrieves a single message.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID string) (models.Message, error) {
	if !isUUID(messageID) {
		return models.Message{}, ErrMessageNotFound
	}
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, storageErr("get message", err)
}

// DeleteMessage hard-deletes one message.
func (r *MessageRepo) DeleteMessage(ctx context.Context, messageID string) error {
	if !isUUID(messageID) {
		return ErrMessageNotFound
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM messages WHERE id=$1`, messageID)
	if err != nil {
		return storageErr("delete message", err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return storageErr("delete message", err)
	}
	if count == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// DeleteMessages hard-deletes an id set; unknown ids are ignored.
func (r *MessageRepo) DeleteMessages(ctx context.Context, messageIDs []string) (int64, error) {
	ids := validIDs(messageIDs)
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM messages WHERE id = ANY($1::uuid[])`, pq.Array(ids))
	if err != nil {
		return 0, storageErr("delete messages", err)
	}
	count, err := res.RowsAffected()
	return count, storageErr("delete messages", err)
}

// DeleteConversationMessages clears a thread while keeping the conversation.
func (r *MessageRepo) DeleteConversationMessages(ctx context.Context, conversationID string) (int64, error) {
	if !isUUID(conversationID) {
		return 0, ErrConversationNotFound
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id=$1`, conversationID)
	if err != nil {
		return 0, storageErr("delete conversation messages", err)
	}
	count, err := res.RowsAffected()
	return count, storageErr("delete conversation messages", err)
}

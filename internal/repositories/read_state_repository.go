package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"support-chat/internal/models"
)

// ReadStateRepository maintains the unread indicator and read receipts.
//
// unread_count is a 0/1 flag meaning "the other party has something new",
// not a tally; it is never incremented.
type ReadStateRepository interface {
	MarkConsumed(ctx context.Context, conversationID string, consumer models.Role) (ConsumeResult, error)
}

// ConsumeResult is the outcome of MarkConsumed.
type ConsumeResult struct {
	Conversation models.Conversation
	MarkedRead   int64
}

// ReadStateRepo is a sqlx implementation of ReadStateRepository.
type ReadStateRepo struct {
	db *sqlx.DB
}

// NewReadStateRepo constructs a ReadStateRepo.
func NewReadStateRepo(db *sqlx.DB) *ReadStateRepo {
	return &ReadStateRepo{db: db}
}

func unreadAfterSend(sender models.Role) (int, error) {
	switch sender {
	case models.RoleAdmin:
		return 1, nil
	case models.RoleUser:
		return 0, nil
	}
	return 0, ErrInvalidRole
}

// applyMessageSent sets the unread flag for the sender's counterpart and
// advances lastMessageAt. It is a single-statement update so concurrent
// sends from both sides never lose an update. Every send path runs it in
// the transaction that stores the message.
func applyMessageSent(ctx context.Context, q sqlx.QueryerContext, conversationID string, sender models.Role, sentAt time.Time) (models.Conversation, error) {
	unread, err := unreadAfterSend(sender)
	if err != nil {
		return models.Conversation{}, err
	}
	if !isUUID(conversationID) {
		return models.Conversation{}, ErrConversationNotFound
	}

	var conv models.Conversation
	err = sqlx.GetContext(ctx, q, &conv, `UPDATE conversations
        SET unread_count = $2, last_message_at = GREATEST(last_message_at, $3)
        WHERE id = $1
        RETURNING `+conversationColumns, conversationID, unread, sentAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, ErrConversationNotFound
	}
	return conv, storageErr("apply message sent", err)
}

// MarkConsumed marks every unread message from the other role as read and
// clears the unread flag, in one transaction.
func (r *ReadStateRepo) MarkConsumed(ctx context.Context, conversationID string, consumer models.Role) (ConsumeResult, error) {
	if consumer != models.RoleAdmin && consumer != models.RoleUser {
		return ConsumeResult{}, ErrInvalidRole
	}

	var result ConsumeResult
	err := inTx(ctx, r.db, "mark consumed", func(tx *sqlx.Tx) error {
		var err error
		result, err = markConsumed(ctx, tx, conversationID, consumer)
		return err
	})
	return result, err
}

func markConsumed(ctx context.Context, tx *sqlx.Tx, conversationID string, consumer models.Role) (ConsumeResult, error) {
	if _, err := getConversation(ctx, tx, conversationID, true); err != nil {
		return ConsumeResult{}, err
	}

	res, err := tx.ExecContext(ctx, `UPDATE messages SET read = TRUE, read_at = NOW()
        WHERE conversation_id = $1 AND sender_role = $2 AND read = FALSE`, conversationID, consumer.Other())
	if err != nil {
		return ConsumeResult{}, storageErr("mark messages read", err)
	}
	marked, err := res.RowsAffected()
	if err != nil {
		return ConsumeResult{}, storageErr("mark messages read", err)
	}

	var conv models.Conversation
	if err := tx.GetContext(ctx, &conv, `UPDATE conversations SET unread_count = 0 WHERE id = $1
        RETURNING `+conversationColumns, conversationID); err != nil {
		return ConsumeResult{}, storageErr("reset unread", err)
	}
	return ConsumeResult{Conversation: conv, MarkedRead: marked}, nil
}

package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"support-chat/internal/models"
)

const conversationColumns = `id, user_id, email, created_at, last_message_at, unread_count, admin_initiated`

// ConversationRepository resolves identities to threads and removes them.
type ConversationRepository interface {
	FindByIdentity(ctx context.Context, identity models.Identity) (models.Conversation, error)
	GetConversation(ctx context.Context, conversationID string) (models.Conversation, error)
	ListConversations(ctx context.Context) ([]models.Conversation, error)
	DeleteConversation(ctx context.Context, conversationID string) (DeleteResult, error)
	DeleteConversations(ctx context.Context, conversationIDs []string) (DeleteResult, error)
	PurgeIdentity(ctx context.Context, identity models.Identity) (DeleteResult, error)
}

// DeleteResult reports how many rows a delete removed.
type DeleteResult struct {
	Conversations int64 `json:"conversationsDeleted"`
	Messages      int64 `json:"messagesDeleted"`
}

// ConversationRepo is a sqlx implementation of ConversationRepository.
type ConversationRepo struct {
	db *sqlx.DB
}

// NewConversationRepo constructs a ConversationRepo.
func NewConversationRepo(db *sqlx.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

type upsertedConversation struct {
	models.Conversation
	Inserted bool `db:"inserted"`
}

type createOptions struct {
	unreadCount    int
	adminInitiated bool
}

// resolveOrCreate is an atomic find-or-create keyed on the identity: two
// concurrent first contacts end up on the same row.
func resolveOrCreate(ctx context.Context, q sqlx.QueryerContext, identity models.Identity, opts createOptions) (models.Conversation, bool, error) {
	identity = identity.Normalize()
	if identity.IsZero() {
		return models.Conversation{}, false, ErrMissingIdentity
	}

	var (
		query string
		args  []any
	)
	// DO UPDATE with an unchanged key value makes RETURNING yield the existing row.
	if identity.HasUser() {
		query = `INSERT INTO conversations (id, user_id, email, unread_count, admin_initiated)
            VALUES ($1, $2, $3, $4, $5)
            ON CONFLICT (user_id) WHERE user_id IS NOT NULL
            DO UPDATE SET user_id = EXCLUDED.user_id
            RETURNING ` + conversationColumns + `, (xmax = 0) AS inserted`
		args = []any{uuid.NewString(), identity.UserID, nullable(identity.Email), opts.unreadCount, opts.adminInitiated}
	} else {
		query = `INSERT INTO conversations (id, user_id, email, unread_count, admin_initiated)
            VALUES ($1, NULL, $2, $3, $4)
            ON CONFLICT (email) WHERE user_id IS NULL
            DO UPDATE SET email = EXCLUDED.email
            RETURNING ` + conversationColumns + `, (xmax = 0) AS inserted`
		args = []any{uuid.NewString(), identity.Email, opts.unreadCount, opts.adminInitiated}
	}

	var row upsertedConversation
	if err := sqlx.GetContext(ctx, q, &row, query, args...); err != nil {
		return models.Conversation{}, false, storageErr("resolve conversation", err)
	}
	return row.Conversation, row.Inserted, nil
}

// FindByIdentity looks a conversation up without creating one.
func (r *ConversationRepo) FindByIdentity(ctx context.Context, identity models.Identity) (models.Conversation, error) {
	identity = identity.Normalize()
	if identity.IsZero() {
		return models.Conversation{}, ErrMissingIdentity
	}

	var conv models.Conversation
	var err error
	if identity.HasUser() {
		err = r.db.GetContext(ctx, &conv, `SELECT `+conversationColumns+` FROM conversations WHERE user_id=$1`, identity.UserID)
	} else {
		err = r.db.GetContext(ctx, &conv, `SELECT `+conversationColumns+` FROM conversations WHERE email=$1 AND user_id IS NULL`, identity.Email)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, ErrConversationNotFound
	}
	return conv, storageErr("find conversation", err)
}

// GetConversation fetches a conversation by id.
func (r *ConversationRepo) GetConversation(ctx context.Context, conversationID string) (models.Conversation, error) {
	return getConversation(ctx, r.db, conversationID, false)
}

func getConversation(ctx context.Context, q sqlx.QueryerContext, conversationID string, lock bool) (models.Conversation, error) {
	if !isUUID(conversationID) {
		return models.Conversation{}, ErrConversationNotFound
	}
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE id=$1`
	if lock {
		query += ` FOR UPDATE`
	}
	var conv models.Conversation
	err := sqlx.GetContext(ctx, q, &conv, query, conversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, ErrConversationNotFound
	}
	return conv, storageErr("get conversation", err)
}

// ListConversations returns every conversation, most recently active first.
func (r *ConversationRepo) ListConversations(ctx context.Context) ([]models.Conversation, error) {
	convs := []models.Conversation{}
	err := r.db.SelectContext(ctx, &convs, `SELECT `+conversationColumns+` FROM conversations ORDER BY last_message_at DESC, created_at DESC`)
	if err != nil {
		return nil, storageErr("list conversations", err)
	}
	return convs, nil
}

// DeleteConversation removes one conversation and its messages.
func (r *ConversationRepo) DeleteConversation(ctx context.Context, conversationID string) (DeleteResult, error) {
	if !isUUID(conversationID) {
		return DeleteResult{}, ErrConversationNotFound
	}
	res, err := r.DeleteConversations(ctx, []string{conversationID})
	if err != nil {
		return DeleteResult{}, err
	}
	if res.Conversations == 0 {
		return DeleteResult{}, ErrConversationNotFound
	}
	return res, nil
}

// DeleteConversations removes the given conversations and their messages.
// Ids that no longer exist are ignored.
func (r *ConversationRepo) DeleteConversations(ctx context.Context, conversationIDs []string) (DeleteResult, error) {
	ids := validIDs(conversationIDs)
	if len(ids) == 0 {
		return DeleteResult{}, nil
	}

	var result DeleteResult
	err := inTx(ctx, r.db, "delete conversations", func(tx *sqlx.Tx) error {
		var err error
		result, err = deleteConversations(ctx, tx, ids)
		return err
	})
	return result, err
}

func deleteConversations(ctx context.Context, tx *sqlx.Tx, ids []string) (DeleteResult, error) {
	var result DeleteResult
	res, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ANY($1::uuid[])`, pq.Array(ids))
	if err != nil {
		return result, storageErr("delete conversation messages", err)
	}
	if result.Messages, err = res.RowsAffected(); err != nil {
		return result, storageErr("delete conversation messages", err)
	}

	res, err = tx.ExecContext(ctx, `DELETE FROM conversations WHERE id = ANY($1::uuid[])`, pq.Array(ids))
	if err != nil {
		return result, storageErr("delete conversations", err)
	}
	if result.Conversations, err = res.RowsAffected(); err != nil {
		return result, storageErr("delete conversations", err)
	}
	return result, nil
}

// PurgeIdentity deletes every conversation and message tied to the user id
// or email. Used by account deletion.
func (r *ConversationRepo) PurgeIdentity(ctx context.Context, identity models.Identity) (DeleteResult, error) {
	identity = identity.Normalize()
	if identity.IsZero() {
		return DeleteResult{}, ErrMissingIdentity
	}

	var result DeleteResult
	err := inTx(ctx, r.db, "purge identity", func(tx *sqlx.Tx) error {
		var ids []string
		if err := tx.SelectContext(ctx, &ids, `SELECT id FROM conversations
            WHERE ($1 <> '' AND user_id = $1) OR ($2 <> '' AND email = $2)`, identity.UserID, identity.Email); err != nil {
			return storageErr("purge identity: select", err)
		}

		var err error
		if len(ids) > 0 {
			if result, err = deleteConversations(ctx, tx, ids); err != nil {
				return err
			}
		}

		// Messages can outlive their thread reference (broadcast or legacy rows).
		res, err := tx.ExecContext(ctx, `DELETE FROM messages
            WHERE ($1 <> '' AND user_id = $1) OR ($2 <> '' AND email = $2)`, identity.UserID, identity.Email)
		if err != nil {
			return storageErr("purge identity: messages", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return storageErr("purge identity: messages", err)
		}
		result.Messages += n
		return nil
	})
	return result, err
}

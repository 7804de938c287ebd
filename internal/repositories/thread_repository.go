package repositories

import (
	"context"
	"errors"

	"github.com/jmoiron/sqlx"

	"support-chat/internal/models"
)

// ThreadRepository runs the multi-step send and fetch flows, each inside
// one transaction spanning the resolver, the message store and the unread
// bookkeeping.
type ThreadRepository interface {
	SendFromUser(ctx context.Context, sender models.Identity, body string) (SendResult, error)
	SendFromAdmin(ctx context.Context, conversationID string, admin models.Identity, body, replyTo string) (SendResult, error)
	StartThread(ctx context.Context, admin models.Identity, targetUserID, body string) (SendResult, error)
	ConsumeThread(ctx context.Context, conversationID string, consumer models.Role) (models.ConversationThread, error)
	ConsumeUserThread(ctx context.Context, identity models.Identity) (models.ConversationThread, error)
}

// SendResult is a committed message together with its updated conversation.
type SendResult struct {
	Conversation models.Conversation
	Message      models.Message
	Created      bool
}

// ThreadRepo is a sqlx implementation of ThreadRepository.
type ThreadRepo struct {
	db *sqlx.DB
}

// NewThreadRepo constructs a ThreadRepo.
func NewThreadRepo(db *sqlx.DB) *ThreadRepo {
	return &ThreadRepo{db: db}
}

// SendFromUser resolves (or creates) the sender's conversation and appends
// the message.
func (r *ThreadRepo) SendFromUser(ctx context.Context, sender models.Identity, body string) (SendResult, error) {
	msg, err := validateNewMessage(models.NewMessage{SenderRole: models.RoleUser, Body: body, Sender: sender})
	if err != nil {
		return SendResult{}, err
	}
	if msg.Sender.IsZero() {
		return SendResult{}, ErrMissingIdentity
	}

	var result SendResult
	err = inTx(ctx, r.db, "send user message", func(tx *sqlx.Tx) error {
		conv, created, err := resolveOrCreate(ctx, tx, msg.Sender, createOptions{})
		if err != nil {
			return err
		}
		result.Created = created
		return appendMessage(ctx, tx, conv.ID, msg, &result)
	})
	return result, err
}

// SendFromAdmin appends an admin reply to an existing conversation.
func (r *ThreadRepo) SendFromAdmin(ctx context.Context, conversationID string, admin models.Identity, body, replyTo string) (SendResult, error) {
	msg, err := validateNewMessage(models.NewMessage{SenderRole: models.RoleAdmin, Body: body, Sender: admin, ReplyTo: replyTo})
	if err != nil {
		return SendResult{}, err
	}

	var result SendResult
	err = inTx(ctx, r.db, "send admin message", func(tx *sqlx.Tx) error {
		conv, err := getConversation(ctx, tx, conversationID, true)
		if err != nil {
			return err
		}
		return appendMessage(ctx, tx, conv.ID, msg, &result)
	})
	return result, err
}

// StartThread is an admin opening a conversation with a target user. The
// target must exist; an existing thread is reused unchanged.
func (r *ThreadRepo) StartThread(ctx context.Context, admin models.Identity, targetUserID, body string) (SendResult, error) {
	msg, err := validateNewMessage(models.NewMessage{SenderRole: models.RoleAdmin, Body: body, Sender: admin})
	if err != nil {
		return SendResult{}, err
	}
	if targetUserID == "" {
		return SendResult{}, ErrMissingIdentity
	}

	var result SendResult
	err = inTx(ctx, r.db, "start thread", func(tx *sqlx.Tx) error {
		user, err := getUser(ctx, tx, targetUserID)
		if err != nil {
			return err
		}
		target := models.Identity{UserID: user.ID}
		if user.Email != nil {
			target.Email = *user.Email
		}
		conv, created, err := resolveOrCreate(ctx, tx, target, createOptions{unreadCount: 1, adminInitiated: true})
		if err != nil {
			return err
		}
		result.Created = created
		return appendMessage(ctx, tx, conv.ID, msg, &result)
	})
	return result, err
}

func appendMessage(ctx context.Context, tx *sqlx.Tx, conversationID string, msg models.NewMessage, result *SendResult) error {
	id := conversationID
	stored, err := insertMessage(ctx, tx, &id, msg)
	if err != nil {
		return err
	}
	conv, err := applyMessageSent(ctx, tx, conversationID, msg.SenderRole, stored.CreatedAt)
	if err != nil {
		return err
	}
	result.Message = stored
	result.Conversation = conv
	return nil
}

// ConsumeThread is a participant opening a conversation: unread messages
// from the other role are marked read and the ordered thread is returned.
func (r *ThreadRepo) ConsumeThread(ctx context.Context, conversationID string, consumer models.Role) (models.ConversationThread, error) {
	if consumer != models.RoleAdmin && consumer != models.RoleUser {
		return models.ConversationThread{}, ErrInvalidRole
	}

	var thread models.ConversationThread
	err := inTx(ctx, r.db, "consume thread", func(tx *sqlx.Tx) error {
		res, err := markConsumed(ctx, tx, conversationID, consumer)
		if err != nil {
			return err
		}
		msgs, err := listConversationMessages(ctx, tx, conversationID)
		if err != nil {
			return err
		}
		thread = models.ConversationThread{Conversation: &res.Conversation, Messages: msgs}
		return nil
	})
	return thread, err
}

// ConsumeUserThread is ConsumeThread for a user addressed by identity. A
// user without a conversation gets an empty thread; nothing is created.
func (r *ThreadRepo) ConsumeUserThread(ctx context.Context, identity models.Identity) (models.ConversationThread, error) {
	conv, err := (&ConversationRepo{db: r.db}).FindByIdentity(ctx, identity)
	if errors.Is(err, ErrConversationNotFound) {
		return models.ConversationThread{Messages: []models.Message{}}, nil
	}
	if err != nil {
		return models.ConversationThread{}, err
	}
	return r.ConsumeThread(ctx, conv.ID, models.RoleUser)
}

package models

import "time"

// Message is a single chat entry. ConversationID is nil only for broadcast records.
type Message struct {
	ID             string     `db:"id" json:"id"`
	Seq            int64      `db:"seq" json:"-"`
	ConversationID *string    `db:"conversation_id" json:"conversationId,omitempty"`
	SenderRole     Role       `db:"sender_role" json:"sender"`
	Body           string     `db:"body" json:"message"`
	UserID         *string    `db:"user_id" json:"userId,omitempty"`
	Email          *string    `db:"email" json:"email,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"timestamp"`
	Read           bool       `db:"read" json:"read"`
	ReadAt         *time.Time `db:"read_at" json:"readAt,omitempty"`
	IsBroadcast    bool       `db:"is_broadcast" json:"isBroadcast,omitempty"`
	BroadcastType  *string    `db:"broadcast_type" json:"broadcastType,omitempty"`
	ReplyTo        *string    `db:"reply_to" json:"replyTo,omitempty"`
}

// NewMessage carries the caller-supplied fields of a message. Timestamps and
// ids are always assigned by the store.
type NewMessage struct {
	SenderRole    Role
	Body          string
	Sender        Identity
	ReplyTo       string
	IsBroadcast   bool
	BroadcastType string
}

package models

import "time"

// Conversation is the durable thread between one user identity and the admin pool.
type Conversation struct {
	ID             string    `db:"id" json:"id"`
	UserID         *string   `db:"user_id" json:"userId,omitempty"`
	Email          *string   `db:"email" json:"email,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
	LastMessageAt  time.Time `db:"last_message_at" json:"lastMessageAt"`
	UnreadCount    int       `db:"unread_count" json:"unreadCount"`
	AdminInitiated bool      `db:"admin_initiated" json:"adminInitiated"`
}

// Identity returns the key the conversation was resolved by.
func (c Conversation) Identity() Identity {
	var id Identity
	if c.UserID != nil {
		id.UserID = *c.UserID
	}
	if c.Email != nil {
		id.Email = *c.Email
	}
	return id
}

// ConversationThread is a conversation with its ordered messages.
type ConversationThread struct {
	Conversation *Conversation `json:"conversation"`
	Messages     []Message     `json:"messages"`
}

package ws

import (
	"encoding/json"
	"time"

	"support-chat/internal/models"
)

// Inbound event names.
const (
	EventUserJoin    = "user:join"
	EventMessageSend = "message:send"
	EventTypingStart = "typing:start"
	EventTypingStop  = "typing:stop"
	EventMessageRead = "message:read"
	EventAdminStatus = "admin:status"
	EventPing        = "ping"
)

// Outbound event names.
const (
	EventMessageReceived   = "message:received"
	EventMessageDelivered  = "message:delivered"
	EventUserTyping        = "user:typing"
	EventUserTypingStop    = "user:typing:stop"
	EventReadConfirm       = "message:read:confirm"
	EventAdminStatusUpdate = "admin:status:update"
	EventUsersOnline       = "users:online"
	EventAdminOnline       = "admin:online"
	EventAdminOffline      = "admin:offline"
	EventError             = "error"
	EventPong              = "pong"
)

// Error codes carried in error events.
const (
	CodeNotJoined       = "not_joined"
	CodeAlreadyJoined   = "already_joined"
	CodeIdentity        = "identity_mismatch"
	CodeInvalidPayload  = "invalid_payload"
	CodeUnknownEvent    = "unknown_event"
	CodeForbidden       = "forbidden"
	CodeMessageNotFound = "message_not_found"
	CodeRateLimited     = "rate_limited"
	CodeInternal        = "internal"
)

// Envelope is the frame format in both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type JoinPayload struct {
	UserID   string `json:"userId"`
	UserRole string `json:"userRole"`
	UserName string `json:"userName"`
}

// MessageRef identifies a stored message. Clients may send the whole
// message object; only the id is trusted.
type MessageRef struct {
	ID string `json:"id"`
}

type SendPayload struct {
	Message     MessageRef `json:"message"`
	MessageID   string     `json:"messageId"`
	RecipientID string     `json:"recipientId"`
	SenderRole  string     `json:"senderRole"`
	ChatRoomID  string     `json:"chatRoomId"`
}

func (p SendPayload) messageID() string {
	if p.Message.ID != "" {
		return p.Message.ID
	}
	return p.MessageID
}

type TypingPayload struct {
	ChatRoomID  string `json:"chatRoomId"`
	UserName    string `json:"userName"`
	RecipientID string `json:"recipientId,omitempty"`
}

type ReadPayload struct {
	MessageID   string `json:"messageId"`
	ChatRoomID  string `json:"chatRoomId"`
	RecipientID string `json:"recipientId,omitempty"`
}

type AdminStatusPayload struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type ReceivedPayload struct {
	Message     models.Message `json:"message"`
	ChatRoomID  string         `json:"chatRoomId,omitempty"`
	SenderRole  models.Role    `json:"senderRole"`
	RecipientID string         `json:"recipientId,omitempty"`
}

type DeliveredPayload struct {
	MessageID string    `json:"messageId"`
	Timestamp time.Time `json:"timestamp"`
}

type TypingUpdatePayload struct {
	ChatRoomID string      `json:"chatRoomId"`
	UserID     string      `json:"userId"`
	UserName   string      `json:"userName"`
	Role       models.Role `json:"userRole"`
}

type ReadConfirmPayload struct {
	MessageID  string    `json:"messageId"`
	ChatRoomID string    `json:"chatRoomId"`
	ReadBy     string    `json:"readBy"`
	ReadAt     time.Time `json:"readAt"`
}

type AdminStatusUpdatePayload struct {
	AdminID   string    `json:"adminId"`
	AdminName string    `json:"adminName"`
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type AdminPresencePayload struct {
	AdminID   string    `json:"adminId"`
	AdminName string    `json:"adminName"`
	Timestamp time.Time `json:"timestamp"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// encode marshals an outbound frame. Payload types above never fail to
// marshal, so the error is folded into an error frame.
func encode(eventType string, payload any) []byte {
	raw, err := json.Marshal(payload)
	if err != nil {
		raw, _ = json.Marshal(ErrorPayload{Code: CodeInternal, Message: "encode failed"})
		eventType = EventError
	}
	data, _ := json.Marshal(Envelope{Type: eventType, Payload: raw})
	return data
}

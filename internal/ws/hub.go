package ws

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"support-chat/internal/models"
	"support-chat/internal/observability"
	"support-chat/internal/presence"
	"support-chat/internal/repositories"
)

// MessageLookup loads stored messages for relay verification.
type MessageLookup interface {
	GetMessage(ctx context.Context, messageID string) (models.Message, error)
}

// ConversationLookup resolves the user a conversation belongs to.
type ConversationLookup interface {
	GetConversation(ctx context.Context, conversationID string) (models.Conversation, error)
}

// Hub ties presence, room membership and the scrollback buffer together and
// implements the realtime event handlers.
type Hub struct {
	router        *Router
	presence      *presence.Registry
	buffer        *Buffer
	messages      MessageLookup
	conversations ConversationLookup
	now           func() time.Time
}

func NewHub(registry *presence.Registry, buffer *Buffer, messages MessageLookup, conversations ConversationLookup) *Hub {
	return &Hub{
		router:        NewRouter(),
		presence:      registry,
		buffer:        buffer,
		messages:      messages,
		conversations: conversations,
		now:           time.Now,
	}
}

// Online returns the current presence snapshot.
func (h *Hub) Online() []models.PresenceEntry {
	return h.presence.ListOnline()
}

// UserOnline reports whether userID has at least one joined connection.
func (h *Hub) UserOnline(userID string) bool {
	return h.presence.IsUserOnline(userID)
}

// Stats is a point-in-time view of the realtime layer.
type Stats struct {
	Online    map[string]int `json:"online"`
	Rooms     map[Room]int   `json:"rooms"`
	Buffered  map[Room]int   `json:"buffered"`
	Published int            `json:"publishedIds"`
}

func (h *Hub) Stats() Stats {
	buffered, published := h.buffer.Sizes()
	return Stats{
		Online: map[string]int{
			models.RoleAdmin.String(): h.presence.Count(models.RoleAdmin),
			models.RoleUser.String():  h.presence.Count(models.RoleUser),
		},
		Rooms:     h.router.Sizes(),
		Buffered:  buffered,
		Published: published,
	}
}

// ForgetMessages drops deleted messages from the scrollback buffer.
func (h *Hub) ForgetMessages(ids ...string) int {
	return h.buffer.ForgetMessages(ids...)
}

// ForgetConversations drops every buffered frame of deleted or cleared
// conversations.
func (h *Hub) ForgetConversations(ids ...string) int {
	return h.buffer.ForgetConversations(ids...)
}

// ForgetIdentity drops every buffered frame of a purged identity.
func (h *Hub) ForgetIdentity(identity models.Identity) int {
	return h.buffer.ForgetIdentity(identity)
}

// Dispatch handles one inbound event for c. Only user:join is accepted
// before the connection has joined.
func (h *Hub) Dispatch(ctx context.Context, c *Client, env Envelope) {
	observability.IncWSEvent(c.principal.Role.String(), env.Type)

	if env.Type == EventPing {
		c.Send(encode(EventPong, nil))
		return
	}
	if !c.joined && env.Type != EventUserJoin {
		c.sendError(CodeNotJoined, "join before sending events")
		return
	}

	switch env.Type {
	case EventUserJoin:
		var p JoinPayload
		if !decode(c, env.Payload, &p) {
			return
		}
		h.join(c, p)
	case EventMessageSend:
		var p SendPayload
		if !decode(c, env.Payload, &p) {
			return
		}
		h.relay(ctx, c, p)
	case EventTypingStart, EventTypingStop:
		var p TypingPayload
		if !decode(c, env.Payload, &p) {
			return
		}
		h.typing(ctx, c, p, env.Type == EventTypingStart)
	case EventMessageRead:
		var p ReadPayload
		if !decode(c, env.Payload, &p) {
			return
		}
		h.read(ctx, c, p)
	case EventAdminStatus:
		var p AdminStatusPayload
		if !decode(c, env.Payload, &p) {
			return
		}
		h.adminStatus(c, p)
	default:
		c.sendError(CodeUnknownEvent, "unknown event "+env.Type)
	}
}

func decode(c *Client, raw json.RawMessage, dst any) bool {
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		c.sendError(CodeInvalidPayload, "malformed payload")
		return false
	}
	return true
}

// join registers presence and room membership. The claimed identity must
// match the token the connection was opened with.
func (h *Hub) join(c *Client, p JoinPayload) {
	if c.joined {
		c.sendError(CodeAlreadyJoined, "connection already joined")
		return
	}
	if p.UserID != "" && p.UserID != c.principal.UserID {
		c.sendError(CodeIdentity, "userId does not match token")
		return
	}
	if p.UserRole != "" {
		role, err := models.ParseRole(p.UserRole)
		if err != nil || role != c.principal.Role {
			c.sendError(CodeIdentity, "userRole does not match token")
			return
		}
	}
	if p.UserName != "" {
		c.name = p.UserName
	}

	rooms := RoomsFor(c.principal.Role, c.principal.UserID)
	if len(rooms) == 0 {
		c.sendError(CodeForbidden, "role cannot join")
		return
	}

	c.joined = true
	now := h.now()
	h.presence.Register(models.PresenceEntry{
		ConnID:   c.id,
		UserID:   c.principal.UserID,
		Role:     c.principal.Role,
		Name:     c.name,
		JoinedAt: now,
	})
	h.router.Join(c, rooms...)

	for _, frame := range h.buffer.Replay(rooms) {
		c.Send(frame)
	}

	if c.principal.Role.IsAdmin() {
		h.router.Emit([]Room{SupportRoom}, encode(EventAdminOnline, AdminPresencePayload{
			AdminID:   c.principal.UserID,
			AdminName: c.name,
			Timestamp: now,
		}), Exclude{ConnID: c.id})
	}
	h.broadcastOnline()

	log.Info().Str("conn_id", c.id).Str("user_id", c.principal.UserID).Str("role", c.principal.Role.String()).Msg("ws joined")
}

// Leave drops a connection from presence and every room. Safe to call for
// connections that never joined.
func (h *Hub) Leave(c *Client) {
	if !c.joined {
		return
	}
	c.joined = false
	h.router.Leave(c.id)
	entry, ok := h.presence.Unregister(c.id)
	if !ok {
		return
	}

	if entry.Role.IsAdmin() {
		h.router.Emit([]Room{SupportRoom}, encode(EventAdminOffline, AdminPresencePayload{
			AdminID:   entry.UserID,
			AdminName: entry.Name,
			Timestamp: h.now(),
		}), Exclude{ConnID: c.id})
	}
	h.broadcastOnline()

	log.Info().Str("conn_id", c.id).Str("user_id", entry.UserID).Msg("ws left")
}

func (h *Hub) broadcastOnline() {
	snapshot := h.presence.ListOnline()
	h.router.EmitAll(encode(EventUsersOnline, snapshot), Exclude{})
	observability.SetOnline(models.RoleAdmin.String(), h.presence.Count(models.RoleAdmin))
	observability.SetOnline(models.RoleUser.String(), h.presence.Count(models.RoleUser))
}

// relay fans out a message that is already in the store. The payload is
// only a reference; content always comes from the stored record.
func (h *Hub) relay(ctx context.Context, c *Client, p SendPayload) {
	id := p.messageID()
	if id == "" {
		c.sendError(CodeInvalidPayload, "message id is required")
		return
	}
	if p.SenderRole != "" {
		if role, err := models.ParseRole(p.SenderRole); err != nil || role != c.principal.Role {
			c.sendError(CodeIdentity, "senderRole does not match token")
			return
		}
	}

	msg, err := h.messages.GetMessage(ctx, id)
	if err != nil {
		h.lookupError(c, err)
		return
	}
	if msg.ConversationID == nil || msg.SenderRole != c.principal.Role {
		c.sendError(CodeForbidden, "message cannot be relayed by this connection")
		return
	}
	if p.ChatRoomID != "" && p.ChatRoomID != *msg.ConversationID {
		c.sendError(CodeInvalidPayload, "chatRoomId does not match message")
		return
	}

	conv, err := h.conversations.GetConversation(ctx, *msg.ConversationID)
	if err != nil {
		h.lookupError(c, err)
		return
	}
	if !c.principal.Role.IsAdmin() && !ownsConversation(c, conv) {
		c.sendError(CodeForbidden, "conversation belongs to another user")
		return
	}

	// A message already published by the REST path is only acknowledged.
	h.deliver(msg, conv, c.principal.Role, Exclude{ConnID: c.id})
	c.Send(encode(EventMessageDelivered, DeliveredPayload{MessageID: msg.ID, Timestamp: h.now()}))
}

func ownsConversation(c *Client, conv models.Conversation) bool {
	if conv.UserID != nil {
		return *conv.UserID == c.principal.UserID
	}
	identity := c.principal.Identity()
	return conv.Email != nil && identity.Email != "" && *conv.Email == identity.Email
}

func (h *Hub) lookupError(c *Client, err error) {
	if errors.Is(err, repositories.ErrNotFound) || errors.Is(err, repositories.ErrValidation) {
		c.sendError(CodeMessageNotFound, "message not found")
		return
	}
	log.Error().Err(err).Str("conn_id", c.id).Msg("ws relay lookup failed")
	c.sendError(CodeInternal, "lookup failed")
}

// PublishMessage fans out a stored conversation message. It is used by the
// REST send paths; exclude usually names the sending user.
func (h *Hub) PublishMessage(msg models.Message, conv models.Conversation, sender models.Role, exclude Exclude) int {
	return h.deliver(msg, conv, sender, exclude)
}

// deliver emits msg once per message id; later calls for the same id are
// no-ops and return 0.
func (h *Hub) deliver(msg models.Message, conv models.Conversation, sender models.Role, exclude Exclude) int {
	if !h.buffer.Claim(msg.ID) {
		return 0
	}
	recipient := ""
	if sender.IsAdmin() && conv.UserID != nil {
		recipient = *conv.UserID
	}
	targets := DeliveryTargets(sender, recipient)
	frame := encode(EventMessageReceived, ReceivedPayload{
		Message:     msg,
		ChatRoomID:  conv.ID,
		SenderRole:  sender,
		RecipientID: recipient,
	})
	h.buffer.Append(targets, BufferEntry{
		MessageID:      msg.ID,
		ConversationID: conv.ID,
		Owners:         []models.Identity{conv.Identity(), senderIdentity(msg)},
		Data:           frame,
	})
	return h.router.Emit(targets, frame, exclude)
}

func senderIdentity(msg models.Message) models.Identity {
	var id models.Identity
	if msg.UserID != nil {
		id.UserID = *msg.UserID
	}
	if msg.Email != nil {
		id.Email = *msg.Email
	}
	return id
}

// PublishBroadcast fans a stored broadcast out to every joined user and to
// the other admins.
func (h *Hub) PublishBroadcast(msg models.Message, exclude Exclude) int {
	if !h.buffer.Claim(msg.ID) {
		return 0
	}
	targets := []Room{SupportRoom, AdminRoom}
	frame := encode(EventMessageReceived, ReceivedPayload{
		Message:    msg,
		SenderRole: models.RoleAdmin,
	})
	h.buffer.Append(targets, BufferEntry{
		MessageID: msg.ID,
		Owners:    []models.Identity{senderIdentity(msg)},
		Data:      frame,
	})
	return h.router.Emit(targets, frame, exclude)
}

func (h *Hub) typing(ctx context.Context, c *Client, p TypingPayload, start bool) {
	targets, ok := h.targetsFor(ctx, c, p.ChatRoomID, p.RecipientID)
	if !ok {
		return
	}
	name := p.UserName
	if name == "" {
		name = c.name
	}
	event := EventUserTypingStop
	if start {
		event = EventUserTyping
	}
	h.router.Emit(targets, encode(event, TypingUpdatePayload{
		ChatRoomID: p.ChatRoomID,
		UserID:     c.principal.UserID,
		UserName:   name,
		Role:       c.principal.Role,
	}), Exclude{ConnID: c.id})
}

func (h *Hub) read(ctx context.Context, c *Client, p ReadPayload) {
	if p.MessageID == "" {
		c.sendError(CodeInvalidPayload, "messageId is required")
		return
	}
	targets, ok := h.targetsFor(ctx, c, p.ChatRoomID, p.RecipientID)
	if !ok {
		return
	}
	h.router.Emit(targets, encode(EventReadConfirm, ReadConfirmPayload{
		MessageID:  p.MessageID,
		ChatRoomID: p.ChatRoomID,
		ReadBy:     c.principal.UserID,
		ReadAt:     h.now(),
	}), Exclude{ConnID: c.id})
}

// targetsFor applies the delivery rule for ephemeral events. Admins must
// name the user either directly or through the conversation id.
func (h *Hub) targetsFor(ctx context.Context, c *Client, conversationID, recipientID string) ([]Room, bool) {
	if !c.principal.Role.IsAdmin() {
		return DeliveryTargets(c.principal.Role, ""), true
	}
	if recipientID == "" && conversationID != "" {
		conv, err := h.conversations.GetConversation(ctx, conversationID)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) || errors.Is(err, repositories.ErrValidation) {
				c.sendError(CodeInvalidPayload, "unknown chatRoomId")
			} else {
				log.Error().Err(err).Str("conn_id", c.id).Msg("ws conversation lookup failed")
				c.sendError(CodeInternal, "lookup failed")
			}
			return nil, false
		}
		if conv.UserID != nil {
			recipientID = *conv.UserID
		}
	}
	if recipientID == "" {
		c.sendError(CodeInvalidPayload, "recipientId or chatRoomId is required")
		return nil, false
	}
	return DeliveryTargets(models.RoleAdmin, recipientID), true
}

func (h *Hub) adminStatus(c *Client, p AdminStatusPayload) {
	if !c.principal.Role.IsAdmin() {
		c.sendError(CodeForbidden, "only admins can publish status")
		return
	}
	if p.Status == "" {
		c.sendError(CodeInvalidPayload, "status is required")
		return
	}
	h.router.Emit([]Room{SupportRoom, AdminRoom}, encode(EventAdminStatusUpdate, AdminStatusUpdatePayload{
		AdminID:   c.principal.UserID,
		AdminName: c.name,
		Status:    p.Status,
		Message:   p.Message,
		Timestamp: h.now(),
	}), Exclude{ConnID: c.id})
}

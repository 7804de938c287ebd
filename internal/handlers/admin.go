package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"support-chat/internal/middleware"
	"support-chat/internal/models"
	"support-chat/internal/observability"
	"support-chat/internal/repositories"
	"support-chat/internal/telemetry"
	"support-chat/internal/ws"
)

const maxBulkIDs = 500

// AdminHandler serves the support-staff endpoints.
type AdminHandler struct {
	threads       repositories.ThreadRepository
	conversations repositories.ConversationRepository
	messages      repositories.MessageRepository
	hub           Broadcaster
	audit         *telemetry.AuditEmitter
}

// NewAdminHandler builds an AdminHandler. audit may be nil.
func NewAdminHandler(threads repositories.ThreadRepository, conversations repositories.ConversationRepository, messages repositories.MessageRepository, hub Broadcaster, audit *telemetry.AuditEmitter) *AdminHandler {
	return &AdminHandler{
		threads:       threads,
		conversations: conversations,
		messages:      messages,
		hub:           hub,
		audit:         audit,
	}
}

// ListConversations returns every conversation, most recent activity first.
func (h *AdminHandler) ListConversations(c *gin.Context) {
	convs, err := h.conversations.ListConversations(c.Request.Context())
	if err != nil {
		respondError(c, err, "failed to load conversations")
		return
	}
	if convs == nil {
		convs = []models.Conversation{}
	}
	c.JSON(http.StatusOK, gin.H{"conversations": convs})
}

// GetConversationMessages returns the ordered thread and marks user
// messages read.
func (h *AdminHandler) GetConversationMessages(c *gin.Context) {
	thread, err := h.threads.ConsumeThread(c.Request.Context(), c.Param("id"), models.RoleAdmin)
	if err != nil {
		respondError(c, err, "failed to load messages")
		return
	}
	c.JSON(http.StatusOK, thread)
}

// Reply appends an admin message to an existing conversation.
func (h *AdminHandler) Reply(c *gin.Context) {
	var req struct {
		Message string `json:"message" binding:"required"`
		ReplyTo string `json:"replyTo"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	p, _ := middleware.GetPrincipal(c)
	res, err := h.threads.SendFromAdmin(c.Request.Context(), c.Param("id"), p.Identity(), req.Message, req.ReplyTo)
	if err != nil {
		respondError(c, err, "failed to store message")
		return
	}

	h.afterAdminSend(c, p.UserID, res)
	c.JSON(http.StatusCreated, gin.H{"message": res.Message, "conversation": res.Conversation})
}

// StartConversation opens a thread with a user who may not have written yet.
func (h *AdminHandler) StartConversation(c *gin.Context) {
	var req struct {
		UserID  string `json:"userId" binding:"required"`
		Message string `json:"message" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	p, _ := middleware.GetPrincipal(c)
	res, err := h.threads.StartThread(c.Request.Context(), p.Identity(), req.UserID, req.Message)
	if err != nil {
		respondError(c, err, "failed to start conversation")
		return
	}

	h.afterAdminSend(c, p.UserID, res)
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{
		"message":             res.Message,
		"conversation":        res.Conversation,
		"conversationCreated": res.Created,
	})
}

func (h *AdminHandler) afterAdminSend(c *gin.Context, adminID string, res repositories.SendResult) {
	observability.IncMessageStored(models.RoleAdmin.String())
	if h.hub != nil {
		h.hub.PublishMessage(res.Message, res.Conversation, models.RoleAdmin, ws.Exclude{UserID: adminID})
	}
	publishDomainEvent(c, eventMessageSent, messageSentPayload(res.Message, res.Conversation))
}

// Broadcast stores an announcement with no conversation and pushes it to
// every connected user.
func (h *AdminHandler) Broadcast(c *gin.Context) {
	var req struct {
		Message       string `json:"message" binding:"required"`
		BroadcastType string `json:"broadcastType"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.BroadcastType == "" {
		req.BroadcastType = "announcement"
	}

	p, _ := middleware.GetPrincipal(c)
	msg, err := h.messages.CreateMessage(c.Request.Context(), nil, models.NewMessage{
		SenderRole:    models.RoleAdmin,
		Body:          req.Message,
		Sender:        p.Identity(),
		IsBroadcast:   true,
		BroadcastType: req.BroadcastType,
	})
	if err != nil {
		respondError(c, err, "failed to store broadcast")
		return
	}

	observability.IncMessageStored(models.RoleAdmin.String())
	delivered := 0
	if h.hub != nil {
		delivered = h.hub.PublishBroadcast(msg, ws.Exclude{UserID: p.UserID})
	}
	h.emitAudit(c, "admin broadcast", map[string]any{"message_id": msg.ID, "broadcast_type": req.BroadcastType, "delivered": delivered})

	c.JSON(http.StatusCreated, gin.H{"message": msg, "delivered": delivered})
}

// DeleteConversation removes a conversation and all of its messages.
func (h *AdminHandler) DeleteConversation(c *gin.Context) {
	id := c.Param("id")
	res, err := h.conversations.DeleteConversation(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "failed to delete conversation")
		return
	}

	if h.hub != nil {
		h.hub.ForgetConversations(id)
	}
	h.emitAudit(c, "conversation deleted", map[string]any{"conversation_ids": []string{id}, "messages_deleted": res.Messages})
	publishDomainEvent(c, eventConversationDeleted, map[string]interface{}{
		"conversation_ids": []string{id},
		"messages_deleted": res.Messages,
	})
	c.JSON(http.StatusOK, res)
}

// ClearConversation deletes every message of a conversation but keeps the
// conversation itself.
func (h *AdminHandler) ClearConversation(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.conversations.GetConversation(c.Request.Context(), id); err != nil {
		respondError(c, err, "failed to load conversation")
		return
	}

	n, err := h.messages.DeleteConversationMessages(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "failed to clear conversation")
		return
	}

	if h.hub != nil {
		h.hub.ForgetConversations(id)
	}
	h.emitAudit(c, "conversation cleared", map[string]any{"conversation_id": id, "messages_deleted": n})
	c.JSON(http.StatusOK, gin.H{"messagesDeleted": n})
}

// BulkDeleteConversations removes a set of conversations. Unknown ids are
// ignored.
func (h *AdminHandler) BulkDeleteConversations(c *gin.Context) {
	ids, ok := bindIDs(c)
	if !ok {
		return
	}

	res, err := h.conversations.DeleteConversations(c.Request.Context(), ids)
	if err != nil {
		respondError(c, err, "failed to delete conversations")
		return
	}

	if h.hub != nil {
		h.hub.ForgetConversations(ids...)
	}
	h.emitAudit(c, "conversations bulk deleted", map[string]any{"conversation_ids": ids, "conversations_deleted": res.Conversations, "messages_deleted": res.Messages})
	publishDomainEvent(c, eventConversationDeleted, map[string]interface{}{
		"conversation_ids": ids,
		"messages_deleted": res.Messages,
	})
	c.JSON(http.StatusOK, res)
}

// DeleteMessage hard-deletes one message.
func (h *AdminHandler) DeleteMessage(c *gin.Context) {
	id := c.Param("id")
	if err := h.messages.DeleteMessage(c.Request.Context(), id); err != nil {
		respondError(c, err, "failed to delete message")
		return
	}

	if h.hub != nil {
		h.hub.ForgetMessages(id)
	}
	h.emitAudit(c, "message deleted", map[string]any{"message_ids": []string{id}})
	c.Status(http.StatusNoContent)
}

// BulkDeleteMessages hard-deletes a set of messages.
func (h *AdminHandler) BulkDeleteMessages(c *gin.Context) {
	ids, ok := bindIDs(c)
	if !ok {
		return
	}

	n, err := h.messages.DeleteMessages(c.Request.Context(), ids)
	if err != nil {
		respondError(c, err, "failed to delete messages")
		return
	}

	if h.hub != nil {
		h.hub.ForgetMessages(ids...)
	}
	h.emitAudit(c, "messages bulk deleted", map[string]any{"message_ids": ids, "messages_deleted": n})
	c.JSON(http.StatusOK, gin.H{"messagesDeleted": n})
}

// PurgeIdentity deletes every conversation and message of a user id and/or
// email.
func (h *AdminHandler) PurgeIdentity(c *gin.Context) {
	var req struct {
		UserID string `json:"userId"`
		Email  string `json:"email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	identity := models.Identity{UserID: req.UserID, Email: req.Email}.Normalize()
	res, err := h.conversations.PurgeIdentity(c.Request.Context(), identity)
	if err != nil {
		respondError(c, err, "failed to purge identity")
		return
	}

	if h.hub != nil {
		h.hub.ForgetIdentity(identity)
	}
	h.emitAudit(c, "identity purged", map[string]any{"user_id": identity.UserID, "email": identity.Email, "conversations_deleted": res.Conversations, "messages_deleted": res.Messages})
	publishDomainEvent(c, eventIdentityPurged, map[string]interface{}{
		"user_id":               identity.UserID,
		"email":                 identity.Email,
		"conversations_deleted": res.Conversations,
		"messages_deleted":      res.Messages,
	})
	c.JSON(http.StatusOK, res)
}

// Presence returns the live connection snapshot.
func (h *AdminHandler) Presence(c *gin.Context) {
	if userID := c.Query("userId"); userID != "" {
		c.JSON(http.StatusOK, gin.H{"userId": userID, "isOnline": h.hub != nil && h.hub.UserOnline(userID)})
		return
	}

	online := []models.PresenceEntry{}
	if h.hub != nil {
		online = h.hub.Online()
	}
	c.JSON(http.StatusOK, gin.H{"online": online})
}

func bindIDs(c *gin.Context) ([]string, bool) {
	var req struct {
		IDs []string `json:"ids" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}
	if len(req.IDs) > maxBulkIDs {
		c.JSON(http.StatusBadRequest, gin.H{"error": "too many ids"})
		return nil, false
	}
	return req.IDs, true
}

func (h *AdminHandler) emitAudit(c *gin.Context, text string, fields map[string]any) {
	h.audit.Emit(c.Request.Context(), "INFO", text, requestIDFromContext(c), userIDFromContext(c), fields)
}

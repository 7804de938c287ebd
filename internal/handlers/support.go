package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"support-chat/internal/middleware"
	"support-chat/internal/models"
	"support-chat/internal/observability"
	"support-chat/internal/repositories"
	"support-chat/internal/ws"
)

// SupportHandler serves the end-user side of the support thread.
type SupportHandler struct {
	threads       repositories.ThreadRepository
	conversations repositories.ConversationRepository
	messages      repositories.MessageRepository
	hub           Broadcaster
}

// NewSupportHandler builds a SupportHandler.
func NewSupportHandler(threads repositories.ThreadRepository, conversations repositories.ConversationRepository, messages repositories.MessageRepository, hub Broadcaster) *SupportHandler {
	return &SupportHandler{threads: threads, conversations: conversations, messages: messages, hub: hub}
}

// GetMessages returns the caller's thread and marks admin messages read.
func (h *SupportHandler) GetMessages(c *gin.Context) {
	p, _ := middleware.GetPrincipal(c)

	thread, err := h.threads.ConsumeUserThread(c.Request.Context(), p.Identity())
	if err != nil {
		respondError(c, err, "failed to load messages")
		return
	}

	c.JSON(http.StatusOK, thread)
}

// PostMessage stores a user message, creating the conversation on first
// contact, and mirrors it to the admins.
func (h *SupportHandler) PostMessage(c *gin.Context) {
	var req struct {
		Message string `json:"message" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	p, _ := middleware.GetPrincipal(c)
	res, err := h.threads.SendFromUser(c.Request.Context(), p.Identity(), req.Message)
	if err != nil {
		respondError(c, err, "failed to store message")
		return
	}

	observability.IncMessageStored(models.RoleUser.String())
	if h.hub != nil {
		h.hub.PublishMessage(res.Message, res.Conversation, models.RoleUser, ws.Exclude{UserID: p.UserID})
	}
	publishDomainEvent(c, eventMessageSent, messageSentPayload(res.Message, res.Conversation))

	c.JSON(http.StatusCreated, gin.H{
		"message":             res.Message,
		"conversation":        res.Conversation,
		"conversationCreated": res.Created,
	})
}

// GetUnread reports whether the caller has unseen admin messages.
func (h *SupportHandler) GetUnread(c *gin.Context) {
	p, _ := middleware.GetPrincipal(c)

	conv, err := h.conversations.FindByIdentity(c.Request.Context(), p.Identity())
	if errors.Is(err, repositories.ErrConversationNotFound) {
		c.JSON(http.StatusOK, gin.H{"unreadCount": 0})
		return
	}
	if err != nil {
		respondError(c, err, "failed to load unread count")
		return
	}

	c.JSON(http.StatusOK, gin.H{"unreadCount": conv.UnreadCount, "conversationId": conv.ID})
}

// GetBroadcasts returns recent announcements, oldest first.
func (h *SupportHandler) GetBroadcasts(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 || limit > 200 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}

	msgs, err := h.messages.ListBroadcasts(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err, "failed to load broadcasts")
		return
	}
	c.JSON(http.StatusOK, gin.H{"broadcasts": msgs})
}

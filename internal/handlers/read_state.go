package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"support-chat/internal/models"
	"support-chat/internal/repositories"
)

// ReadStateHandler lets an admin clear a thread's unread state without
// fetching its history.
type ReadStateHandler struct {
	readState repositories.ReadStateRepository
}

func NewReadStateHandler(readState repositories.ReadStateRepository) *ReadStateHandler {
	return &ReadStateHandler{readState: readState}
}

// MarkRead marks every user message of the conversation as read.
func (h *ReadStateHandler) MarkRead(c *gin.Context) {
	res, err := h.readState.MarkConsumed(c.Request.Context(), c.Param("id"), models.RoleAdmin)
	if err != nil {
		respondError(c, err, "failed to mark conversation read")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"conversation": res.Conversation,
		"markedRead":   res.MarkedRead,
	})
}

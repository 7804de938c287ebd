package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"support-chat/internal/repositories"
)

// respondError maps repository errors onto HTTP statuses. Storage failures
// are logged and hidden behind msg.
func respondError(c *gin.Context, err error, msg string) {
	switch {
	case errors.Is(err, repositories.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, repositories.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		log.Error().Err(err).Str("request_id", requestIDFromContext(c)).Str("path", c.FullPath()).Msg(msg)
		c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
	}
}

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"support-chat/internal/telemetry"
	"support-chat/internal/ws"
)

// RealtimeStats reports the state of the realtime layer.
type RealtimeStats interface {
	Stats() ws.Stats
}

// RegisterDebugRoutes wires operator endpoints under routes when enabled.
// routes is expected to already require an admin.
func RegisterDebugRoutes(routes gin.IRoutes, stats RealtimeStats, emitter *telemetry.AuditEmitter, enabled bool) {
	if !enabled {
		return
	}

	routes.GET("/debug/realtime", func(c *gin.Context) {
		if stats == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "realtime hub not configured"})
			return
		}
		snapshot := stats.Stats()
		if emitter != nil {
			emitter.Emit(c.Request.Context(), "INFO", "realtime stats inspected", requestIDFromContext(c), userIDFromContext(c), map[string]any{
				"rooms":         len(snapshot.Rooms),
				"published_ids": snapshot.Published,
			})
		}
		c.JSON(http.StatusOK, snapshot)
	})
}

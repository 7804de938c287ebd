package ws

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"

	"support-chat/internal/auth"
	"support-chat/internal/observability"
)

// Handler upgrades authenticated requests to websocket connections.
type Handler struct {
	hub      *Hub
	verifier auth.TokenVerifier
	limits   Limits
	ctx      context.Context
}

// NewHandler constructs a Handler. ctx bounds the lifetime of every
// connection event loop.
func NewHandler(ctx context.Context, hub *Hub, verifier auth.TokenVerifier, limits Limits) *Handler {
	return &Handler{hub: hub, verifier: verifier, limits: limits, ctx: ctx}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handle verifies the token and starts the connection tasks.
func (h *Handler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("support-chat/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	principal, err := h.verifier.Verify(tokenFromRequest(c))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      principal.UserID,
		Role:        principal.Role.String(),
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	client := newClient(h.hub, conn, principal, info, h.limits)

	observability.IncWSActive(info.Role)
	publishWSEvent(ctx, wsConnect, info, "")

	go client.writePump()
	go client.readPump()
	go func() {
		client.run(h.ctx)
		observability.DecWSActive(info.Role)
		publishWSEvent(context.Background(), wsDisconnect, info, client.closeReason)
	}()
}

func tokenFromRequest(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1]
		}
	}
	return c.Query("token")
}

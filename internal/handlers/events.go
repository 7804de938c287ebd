package handlers

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"

	"support-chat/internal/models"
	"support-chat/internal/observability"
	"support-chat/internal/ws"
)

// Domain event names.
const (
	eventMessageSent         = "message_sent"
	eventConversationDeleted = "conversation_deleted"
	eventIdentityPurged      = "identity_purged"
)

// Broadcaster is the realtime fan-out used after a successful write.
type Broadcaster interface {
	PublishMessage(msg models.Message, conv models.Conversation, sender models.Role, exclude ws.Exclude) int
	PublishBroadcast(msg models.Message, exclude ws.Exclude) int
	Online() []models.PresenceEntry
	UserOnline(userID string) bool
	ForgetMessages(ids ...string) int
	ForgetConversations(ids ...string) int
	ForgetIdentity(identity models.Identity) int
}

func publishDomainEvent(c *gin.Context, name string, payload map[string]interface{}) {
	ctx := c.Request.Context()
	traceID := ""
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		traceID = sc.TraceID().String()
	}
	_ = observability.PublishEvent(ctx, observability.RoutingDomainEvents, observability.EventEnvelope{
		EventType: "domain_events",
		EventName: name,
		Payload:   payload,
	}, observability.BuildHeaders(requestIDFromContext(c), traceID))
}

func messageSentPayload(msg models.Message, conv models.Conversation) map[string]interface{} {
	return map[string]interface{}{
		"message_id":      msg.ID,
		"conversation_id": conv.ID,
		"sender_role":     msg.SenderRole.String(),
		"unread_count":    conv.UnreadCount,
		"sent_at":         msg.CreatedAt,
	}
}

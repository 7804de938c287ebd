package ws

import (
	"context"
	"time"

	"support-chat/internal/observability"
)

// Connection lifecycle events published to the broker.
const (
	wsConnect    = "ws_connect"
	wsDisconnect = "ws_disconnect"
	wsError      = "ws_error"
)

func publishWSEvent(ctx context.Context, event string, info ConnInfo, reason string) {
	duration := int64(0)
	if event != wsConnect {
		duration = time.Since(info.ConnectedAt).Milliseconds()
	}
	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"kind":        "support",
			"event":       event,
			"conn_id":     info.ConnID,
			"duration_ms": duration,
			"reason":      reason,
		},
		"identity": map[string]interface{}{
			"user_id":   info.UserID,
			"role":      info.Role,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}

	observability.IncWSEvent(info.Role, event)
	_ = observability.PublishEvent(ctx, observability.RoutingWSEvents, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload:   payload,
	}, observability.BuildHeaders(info.RequestID, info.TraceID))
}

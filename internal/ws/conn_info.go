package ws

import "time"

// ConnInfo is the handshake context attached to lifecycle events.
type ConnInfo struct {
	ConnID      string
	UserID      string
	Role        string
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

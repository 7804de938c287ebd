package models

import "time"

// PresenceEntry describes one live connection. It is never persisted.
type PresenceEntry struct {
	ConnID   string    `json:"socketId"`
	UserID   string    `json:"userId"`
	Role     Role      `json:"userRole"`
	Name     string    `json:"userName"`
	JoinedAt time.Time `json:"joinedAt"`
	Online   bool      `json:"isOnline"`
}

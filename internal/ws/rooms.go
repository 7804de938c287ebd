package ws

import "support-chat/internal/models"

// Room is a named delivery group. Connections join rooms on user:join and
// leave them all on disconnect.
type Room string

const (
	AdminRoom   Room = "admin-room"
	SupportRoom Room = "support-room"
)

// UserRoom is the private room of one user; every connection of that user
// joins it.
func UserRoom(userID string) Room {
	return Room("user-" + userID)
}

// RoomsFor returns the rooms a joined connection belongs to.
func RoomsFor(role models.Role, userID string) []Room {
	switch role {
	case models.RoleAdmin:
		return []Room{AdminRoom}
	case models.RoleUser:
		return []Room{UserRoom(userID), SupportRoom}
	default:
		return nil
	}
}

// DeliveryTargets returns the rooms that receive a chat event. Admin events
// go to the addressed user and the other admins; user events go to admins.
func DeliveryTargets(sender models.Role, recipientID string) []Room {
	switch sender {
	case models.RoleAdmin:
		if recipientID == "" {
			return []Room{AdminRoom}
		}
		return []Room{UserRoom(recipientID), AdminRoom}
	case models.RoleUser:
		return []Room{AdminRoom}
	default:
		return nil
	}
}

package models

import "strings"

// Identity is the key a conversation is resolved by. UserID wins over Email
// whenever both are known.
type Identity struct {
	UserID string `json:"userId,omitempty"`
	Email  string `json:"email,omitempty"`
}

// Normalize trims both fields and lower-cases the email.
func (i Identity) Normalize() Identity {
	return Identity{
		UserID: strings.TrimSpace(i.UserID),
		Email:  strings.ToLower(strings.TrimSpace(i.Email)),
	}
}

func (i Identity) IsZero() bool {
	return i.UserID == "" && i.Email == ""
}

// HasUser reports whether the identity resolves by user id.
func (i Identity) HasUser() bool {
	return i.UserID != ""
}

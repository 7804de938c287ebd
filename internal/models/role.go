package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Role identifies which side of a support conversation a participant is on.
type Role uint8

const (
	RoleUnknown Role = iota
	RoleUser
	RoleAdmin
)

// ParseRole converts the wire representation into a Role.
func ParseRole(s string) (Role, error) {
	switch s {
	case "user":
		return RoleUser, nil
	case "admin":
		return RoleAdmin, nil
	}
	return RoleUnknown, fmt.Errorf("unknown role %q", s)
}

func (r Role) String() string {
	switch r {
	case RoleUser:
		return "user"
	case RoleAdmin:
		return "admin"
	}
	return "unknown"
}

// Other returns the opposite participant role.
func (r Role) Other() Role {
	switch r {
	case RoleUser:
		return RoleAdmin
	case RoleAdmin:
		return RoleUser
	}
	return RoleUnknown
}

func (r Role) IsAdmin() bool { return r == RoleAdmin }

func (r Role) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

func (r *Role) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseRole(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Value stores the role as text.
func (r Role) Value() (driver.Value, error) {
	if r == RoleUnknown {
		return nil, fmt.Errorf("cannot store unknown role")
	}
	return r.String(), nil
}

// Scan reads a text role column.
func (r *Role) Scan(src any) error {
	var s string
	switch v := src.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return fmt.Errorf("scan role: unsupported type %T", src)
	}
	parsed, err := ParseRole(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

package models

// User is the subset of an account record the support core reads.
type User struct {
	ID    string  `db:"id" json:"id"`
	Email *string `db:"email" json:"email,omitempty"`
	Name  string  `db:"name" json:"name"`
}

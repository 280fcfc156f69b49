// Package model defines domain entities for the application.
package model

import "time"

// User is a registered identity that owns tasks.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"` // Never serialize
	IsAdmin      bool      `json:"is_admin"`
	CreatedAt    time.Time `json:"created_at"`
}

// Identity holds the authenticated caller for a request.
// This is injected into the request context by auth middleware.
type Identity struct {
	UserID   string
	Username string
	IsAdmin  bool
	TokenID  string
}

// Owns reports whether the identity owns the task.
func (i *Identity) Owns(t *Task) bool {
	return t.IsOwnedBy(i.UserID)
}

// Package model defines the data structures used throughout the application.
package model

import "time"

// User represents a registered account.
//
// The password hash and the active token set never leave the server: they
// carry `json:"-"` so every JSON response built from a User omits them.
// The avatar blob is not part of the struct at all; it is read and written
// through dedicated repository calls.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Age          int       `json:"age"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Tokens       []string  `json:"-"` // active session tokens, oldest first
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// HasToken reports whether token is in the user's active set.
func (u *User) HasToken(token string) bool {
	for _, t := range u.Tokens {
		if t == token {
			return true
		}
	}
	return false
}

package domain

import "time"

// Account is a registered user. PasswordHash is an opaque encoded hash
// produced by internal/auth; this package never interprets it.
type Account struct {
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

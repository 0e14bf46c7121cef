package domain

import "errors"

// Sentinel errors used throughout the application.
// Handlers translate these to HTTP status codes via a single mapError function.
var (
	ErrNotFound           = errors.New("not found")
	ErrUsernameTaken      = errors.New("conflict: username already taken")
	ErrInvalidCredentials = errors.New("invalid credentials supplied, please validate the username and password")
	ErrSessionInvalid     = errors.New("missing or expired session")

	ErrInvalidUsername      = errors.New("usernames must be 5-15 characters, lowercase letters/digits/-/_ only, starting and ending with a letter or digit")
	ErrInvalidPassword      = errors.New("passwords must be between 8 and 30 characters")
	ErrInvalidTitle         = errors.New("title must be between 1 and 100 characters")
	ErrInvalidContent       = errors.New("content must be between 1 and 1000 characters")
	ErrInvalidNotifyAt      = errors.New("notify_at must be in the future")
	ErrInvalidRepetCount    = errors.New("repetitions.count must be between 1 and 10")
	ErrInvalidRepetInterval = errors.New("repetitions.interval must be between 1 second and 1 hour")
)

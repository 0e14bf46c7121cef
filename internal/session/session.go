// Package session implements the notify_session cookie: a private
// (signed + encrypted) cookie carrying {username, expires_at}, loaded
// from or generated into a single key file on first boot.
//
// Grounded on the original Rust service's session.rs, which wraps
// axum_extra's PrivateCookieJar with a cookie::Key loaded from
// COOKIE_KEY_PATH (generated and persisted on first run if absent).
// gorilla/securecookie is the Go equivalent primitive — it signs then
// encrypts a value with a hash key and a block key, exactly like
// cookie::Key's two internal halves. ilkeraydogdu-KolajAi's
// handlers.SessionManager (built on the sibling gorilla/sessions package,
// itself layered on securecookie) is the corpus's grounding for using
// this family of libraries as the session primitive.
package session

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/securecookie"
)

const (
	// CookieName is the session cookie's name, per spec.md §6.
	CookieName = "notify_session"
	// MaxAge is the session lifetime; renewed on each authenticated
	// response that re-sets the cookie.
	MaxAge = 30 * time.Minute

	hashKeyLen  = 32
	blockKeyLen = 32
)

// Payload is the data carried inside the cookie.
type Payload struct {
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Manager encodes and decodes the session cookie using a key loaded once
// at startup and held immutable thereafter (spec.md §5's "shared
// resources" list).
type Manager struct {
	sc *securecookie.SecureCookie
}

// LoadOrGenerate reads a 64-byte key from path (first 32 bytes: hash key,
// last 32: block/encryption key). If the file does not exist, a random
// key is generated and persisted there.
func LoadOrGenerate(path string) (*Manager, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("reading cookie key file %q: %w", path, err)
		}
		data, err = generateKey()
		if err != nil {
			return nil, fmt.Errorf("generating cookie key: %w", err)
		}
		if err := os.WriteFile(path, data, 0o600); err != nil {
			return nil, fmt.Errorf("persisting cookie key to %q: %w", path, err)
		}
	}

	if len(data) != hashKeyLen+blockKeyLen {
		return nil, fmt.Errorf("cookie key file %q: expected %d bytes, got %d", path, hashKeyLen+blockKeyLen, len(data))
	}

	hashKey := data[:hashKeyLen]
	blockKey := data[hashKeyLen:]
	return &Manager{sc: securecookie.New(hashKey, blockKey)}, nil
}

func generateKey() ([]byte, error) {
	buf := make([]byte, hashKeyLen+blockKeyLen)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// Set writes the session cookie for username, valid for MaxAge.
func (m *Manager) Set(w http.ResponseWriter, username string) error {
	payload := Payload{Username: username, ExpiresAt: time.Now().UTC().Add(MaxAge)}

	encoded, err := m.sc.Encode(CookieName, payload)
	if err != nil {
		return fmt.Errorf("encoding session cookie: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    encoded,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(MaxAge.Seconds()),
		Expires:  payload.ExpiresAt,
	})
	return nil
}

// Clear expires the session cookie immediately (used by /logout).
func (m *Manager) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

// Get reads and validates the session cookie from the request. It returns
// (nil, false) when the cookie is absent, malformed, or expired — the
// caller treats all three as "no session" (spec.md §7: rejected when
// expires_at < now()).
func (m *Manager) Get(r *http.Request) (*Payload, bool) {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return nil, false
	}

	var payload Payload
	if err := m.sc.Decode(CookieName, cookie.Value, &payload); err != nil {
		return nil, false
	}

	if payload.ExpiresAt.Before(time.Now().UTC()) {
		return nil, false
	}
	return &payload, true
}

type contextKey int

const usernameKey contextKey = 0

// WithUsername stores the authenticated username on the context.
func WithUsername(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, usernameKey, username)
}

// UsernameFromContext retrieves the username stored by the auth
// middleware. Returns "" if none is present.
func UsernameFromContext(ctx context.Context) string {
	v, _ := ctx.Value(usernameKey).(string)
	return v
}

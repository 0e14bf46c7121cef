// Package auth implements account credential handling: username policy,
// and password hashing/verification via Argon2id.
//
// Argon2 is grounded directly on the original Rust service's later
// register.rs, which hashes with argon2::Argon2::default() +
// PasswordHasher; golang.org/x/crypto/argon2 is the equivalent Go
// primitive, used here via the PHC-style encoded string format so the
// stored password_hash value (spec.md §3) stays self-describing and
// verifier-agnostic.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/crypto/argon2"

	"github.com/notify-svc/scheduler/internal/domain"
)

// usernameRe implements spec.md §3's username policy: first and last
// characters are a lowercase letter or digit, interior may include -/_.
// This is the "later version" / digit-allowing form per spec.md §9's
// Open Question.
var usernameRe = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*[a-z0-9]$`)

const (
	minUsernameLen = 5
	maxUsernameLen = 15

	minPasswordLen = 8
	maxPasswordLen = 30
)

// ValidateUsername checks the username policy from spec.md §3.
func ValidateUsername(username string) error {
	if len(username) < minUsernameLen || len(username) > maxUsernameLen {
		return domain.ErrInvalidUsername
	}
	if !usernameRe.MatchString(username) {
		return domain.ErrInvalidUsername
	}
	return nil
}

// ValidatePassword enforces the length bounds carried over from the
// original service's registration validation (spec.md is silent on
// password policy beyond "opaque hash"; this supplements it).
func ValidatePassword(password string) error {
	if len(password) < minPasswordLen || len(password) > maxPasswordLen {
		return domain.ErrInvalidPassword
	}
	return nil
}

// Argon2 parameters. These follow the x/crypto/argon2 package's documented
// suggestion for IDKey: time=1 with 64 MiB of memory.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024 // KiB
	argonThreads = 4
	argonKeyLen  = 32
	saltLen      = 16
)

// HashPassword returns a self-describing encoded hash:
//
//	argon2id$v=19$m=65536,t=1,p=4$<salt-b64>$<hash-b64>
func HashPassword(password string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	hash := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	encoded := fmt.Sprintf("argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argonMemory, argonTime, argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	)
	return encoded, nil
}

// VerifyPassword checks password against an encoded hash produced by
// HashPassword. It never returns an error for a bad password; mismatches
// and malformed hashes both simply report false.
func VerifyPassword(password, encoded string) bool {
	parts := strings.Split(encoded, "$")
	if len(parts) != 5 || parts[0] != "argon2id" {
		return false
	}

	var version int
	if _, err := fmt.Sscanf(parts[1], "v=%d", &version); err != nil {
		return false
	}

	var memory uint32
	var time uint32
	var threads uint8
	if _, err := fmt.Sscanf(parts[2], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[3])
	if err != nil {
		return false
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}

	got := argon2.IDKey([]byte(password), salt, time, memory, threads, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1
}

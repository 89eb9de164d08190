// Package model defines domain entities used by services, repositories and the session engine.
package model

import (
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"golang.org/x/text/unicode/norm"
)

// Identity is the externally authenticated principal. It is owned by the identity
// provider; the engine only holds a read-only copy for the duration of a session.
type Identity struct {
	ID          string
	Email       string
	DisplayName string // optional
	PhotoURL    string // optional
}

// Key returns the normalized profile key of the identity (may be empty).
func (i Identity) Key() string { return NormalizeKey(i.Email) }

// NormalizeKey maps an email to its profile key: NFC form, trimmed, lower-cased.
func NormalizeKey(email string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFC.String(email)))
}

// Tokens collects an issued session token.
type Tokens struct {
	AccessToken string
	ExpiresAt   time.Time // for diagnostics and token-file expiry
}

// User is an account known to the local identity provider. Passwords are never stored in plaintext.
type User struct {
	ID          uuid.UUID // PK
	Email       string    // unique, normalized
	DisplayName string
	PhotoURL    string
	PwdHash     string // encoded argon2id hash
	CreatedAt   time.Time
}

// Identity projects the account onto the provider-neutral identity shape.
func (u User) Identity() Identity {
	return Identity{ID: u.ID.String(), Email: u.Email, DisplayName: u.DisplayName, PhotoURL: u.PhotoURL}
}

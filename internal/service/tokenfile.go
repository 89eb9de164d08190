package service

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/and161185/identity-keeper/internal/model"
)

// ErrNoToken is returned when no valid persisted token exists.
var ErrNoToken = errors.New("no valid token")

// TokenFile persists a session token as JSON with owner-only permissions.
type TokenFile struct{ Path string }

type tokenFile struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// DefaultTokenPath is $XDG_CONFIG_HOME/identity-keeper/session.json (or ~/.config/...).
func DefaultTokenPath() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "identity-keeper", "session.json")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "identity-keeper", "session.json")
}

// Save writes the token, creating the directory if needed.
func (f *TokenFile) Save(t model.Tokens) error {
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o700); err != nil {
		return err
	}
	b, err := json.MarshalIndent(tokenFile{AccessToken: t.AccessToken, ExpiresAt: t.ExpiresAt}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(f.Path, b, 0o600)
}

// Load reads the token; ErrNoToken when it is missing, empty or expired.
func (f *TokenFile) Load() (model.Tokens, error) {
	b, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return model.Tokens{}, ErrNoToken
	}
	if err != nil {
		return model.Tokens{}, err
	}
	var tf tokenFile
	if err := json.Unmarshal(b, &tf); err != nil {
		return model.Tokens{}, err
	}
	if tf.AccessToken == "" || time.Now().After(tf.ExpiresAt) {
		return model.Tokens{}, ErrNoToken
	}
	return model.Tokens{AccessToken: tf.AccessToken, ExpiresAt: tf.ExpiresAt}, nil
}

// Remove deletes the token file; a missing file is not an error.
func (f *TokenFile) Remove() error {
	if err := os.Remove(f.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

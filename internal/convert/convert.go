// Package convert maps session snapshots and request bodies to and from their
// wire forms (JSON and protobuf Struct).
package convert

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/and161185/identity-keeper/internal/model"
	"github.com/and161185/identity-keeper/internal/session"
	"google.golang.org/protobuf/types/known/structpb"
)

// RegisterRequest creates a local account.
type RegisterRequest struct {
	Email       string `json:"email" validate:"required,email,max=320"`
	Password    string `json:"password" validate:"required,min=6,max=256"`
	DisplayName string `json:"displayName" validate:"max=200"`
}

// SignInRequest carries credentials for the identity provider.
type SignInRequest struct {
	Email    string `json:"email" validate:"required,email,max=320"`
	Password string `json:"password" validate:"required,max=256"`
}

// TokenView is returned after a successful sign-in.
type TokenView struct {
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// UserView is the identity part of a session view.
type UserView struct {
	ID          string `json:"id"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	PhotoURL    string `json:"photoURL,omitempty"`
}

// SessionView is the published, wire-level view of a snapshot.
type SessionView struct {
	State           string         `json:"state"`
	CheckingAuth    bool           `json:"checkingAuth"`
	AuthReady       bool           `json:"authReady"`
	DisplayChecking bool           `json:"displayChecking"`
	IsAdmin         bool           `json:"isAdmin"`
	Generation      uint64         `json:"generation"`
	User            *UserView      `json:"user,omitempty"`
	Profile         *model.Profile `json:"profile,omitempty"`
	Error           string         `json:"error,omitempty"`
}

// ToSessionView flattens s. Derived flags are computed once here so every
// transport reports the same decision.
func ToSessionView(s session.Snapshot) SessionView {
	v := SessionView{
		State:           s.State.String(),
		CheckingAuth:    s.CheckingAuth,
		AuthReady:       s.AuthReady,
		DisplayChecking: s.DisplayChecking,
		IsAdmin:         s.IsAdmin(),
		Generation:      s.Generation,
		Profile:         s.Profile,
	}
	if id := s.Identity; id != nil {
		v.User = &UserView{ID: id.ID, Email: id.Email, DisplayName: id.DisplayName, PhotoURL: id.PhotoURL}
	}
	if s.Err != nil {
		v.Error = s.Err.Error()
	}
	return v
}

// ToTokenView converts provider tokens.
func ToTokenView(t model.Tokens) TokenView {
	return TokenView{AccessToken: t.AccessToken, ExpiresAt: t.ExpiresAt.UTC()}
}

// ToStruct encodes any JSON-marshalable value as a protobuf Struct.
func ToStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("not an object: %w", err)
	}
	return structpb.NewStruct(m)
}

// FromStruct decodes s into dst through its JSON form. A nil Struct decodes as {}.
func FromStruct(s *structpb.Struct, dst any) error {
	b, err := json.Marshal(s.AsMap())
	if err != nil {
		return fmt.Errorf("marshal struct: %w", err)
	}
	return json.Unmarshal(b, dst)
}

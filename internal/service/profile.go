package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/and161185/identity-keeper/internal/errs"
	"github.com/and161185/identity-keeper/internal/model"
	"github.com/and161185/identity-keeper/internal/repository"
	"github.com/and161185/identity-keeper/internal/roles"
)

// HintsFunc reports client hints recorded in a new profile's lastLoginMeta.
type HintsFunc func() model.LoginMeta

// DefaultHints describes the running process and its local time zone.
func DefaultHints() model.LoginMeta {
	return model.LoginMeta{
		UA: fmt.Sprintf("identity-keeper (%s/%s; %s)", runtime.GOOS, runtime.GOARCH, runtime.Version()),
		TZ: time.Local.String(),
	}
}

// ProfileSynchronizer guarantees a profile document exists for an identity and
// is current with the allow-list. EnsureProfile is idempotent.
type ProfileSynchronizer struct {
	store  repository.ProfileRepository
	admins roles.AllowList
	hints  HintsFunc
}

// NewProfileSynchronizer constructs a synchronizer. hints may be nil.
func NewProfileSynchronizer(store repository.ProfileRepository, admins roles.AllowList, hints HintsFunc) *ProfileSynchronizer {
	if hints == nil {
		hints = DefaultHints
	}
	return &ProfileSynchronizer{store: store, admins: admins, hints: hints}
}

// EnsureProfile reads the profile for id and either creates it or merge-patches
// it. The returned profile is the stored document merged with the patch.
func (s *ProfileSynchronizer) EnsureProfile(ctx context.Context, id model.Identity) (*model.Profile, error) {
	key := id.Key()
	if key == "" {
		return nil, errs.ErrInvalidIdentity
	}
	admin := s.admins.Contains(key)

	stored, err := s.store.Get(ctx, key)
	if errors.Is(err, errs.ErrNotFound) {
		p, cerr := s.create(ctx, key, id, admin)
		if !errors.Is(cerr, errs.ErrAlreadyExists) {
			return p, cerr
		}
		// A concurrent first sign-in created it; continue as an update.
		stored, err = s.store.Get(ctx, key)
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return s.update(ctx, stored, key, admin)
}

func (s *ProfileSynchronizer) create(ctx context.Context, key string, id model.Identity, admin bool) (*model.Profile, error) {
	p := &model.Profile{
		Key:           key,
		Email:         key,
		DisplayName:   id.DisplayName,
		PhotoURL:      id.PhotoURL,
		Permissions:   model.ListOf(),
		Roles:         model.ObjectOf(map[string]any{model.AdminRole: admin}),
		LastLoginMeta: s.hints(),
	}
	if err := s.store.Create(ctx, p); err != nil {
		if errors.Is(err, errs.ErrAlreadyExists) {
			return nil, err
		}
		return nil, fmt.Errorf("create profile: %w", err)
	}
	return p, nil
}

func (s *ProfileSynchronizer) update(ctx context.Context, stored *model.Profile, key string, admin bool) (*model.Profile, error) {
	patch := model.Patch{Admin: &admin, TouchLastAccess: true}
	if stored.Email != key {
		patch.Email = &key
	}
	if err := s.store.MergePatch(ctx, key, &patch); err != nil {
		return nil, fmt.Errorf("patch profile: %w", err)
	}
	merged := stored.Clone()
	merged.Key = key
	merged.Apply(patch)
	return merged, nil
}

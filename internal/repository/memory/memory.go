// Package memory provides in-process repository implementations for development and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/and161185/identity-keeper/internal/errs"
	"github.com/and161185/identity-keeper/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/thejerf/abtime"
)

// ProfileRepo is an in-memory ProfileRepository. Its clock plays the role of
// the server clock; stamps are strictly increasing even if the clock stalls.
type ProfileRepo struct {
	mu    sync.Mutex
	clock abtime.AbstractTime
	last  time.Time
	docs  map[string]*model.Profile
}

// NewProfileRepo returns an empty store using clock (real time when nil).
func NewProfileRepo(clock abtime.AbstractTime) *ProfileRepo {
	if clock == nil {
		clock = abtime.NewRealTime()
	}
	return &ProfileRepo{clock: clock, docs: map[string]*model.Profile{}}
}

// Get returns a copy of the stored document.
func (r *ProfileRepo) Get(ctx context.Context, key string) (*model.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.docs[key]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return p.Clone(), nil
}

// Create stores a copy of p if the key is free.
func (r *ProfileRepo) Create(ctx context.Context, p *model.Profile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.docs[p.Key]; ok {
		return errs.ErrAlreadyExists
	}
	now := r.stamp()
	p.CreatedAt, p.LastAccessAt = now, now
	r.docs[p.Key] = p.Clone()
	return nil
}

// MergePatch applies patch to the stored document.
func (r *ProfileRepo) MergePatch(ctx context.Context, key string, patch *model.Patch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.docs[key]
	if !ok {
		return errs.ErrNotFound
	}
	if patch.TouchLastAccess {
		patch.LastAccessAt = r.stamp()
	}
	p.Apply(*patch)
	return nil
}

// Put replaces a document verbatim, timestamps included. Used to seed legacy shapes.
func (r *ProfileRepo) Put(p *model.Profile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs[p.Key] = p.Clone()
}

// Len returns the number of stored documents.
func (r *ProfileRepo) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.docs)
}

// stamp must be called with mu held.
func (r *ProfileRepo) stamp() time.Time {
	now := r.clock.Now().UTC()
	if !now.After(r.last) {
		now = r.last.Add(time.Nanosecond)
	}
	r.last = now
	return now
}

// UserRepo is an in-memory UserRepository.
type UserRepo struct {
	mu      sync.Mutex
	clock   abtime.AbstractTime
	byID    map[uuid.UUID]model.User
	byEmail map[string]uuid.UUID
}

// NewUserRepo returns an empty user store.
func NewUserRepo(clock abtime.AbstractTime) *UserRepo {
	if clock == nil {
		clock = abtime.NewRealTime()
	}
	return &UserRepo{clock: clock, byID: map[uuid.UUID]model.User{}, byEmail: map[string]uuid.UUID{}}
}

// Create inserts u unless the email is taken.
func (r *UserRepo) Create(_ context.Context, u *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byEmail[u.Email]; ok {
		return errs.ErrAlreadyExists
	}
	u.CreatedAt = r.clock.Now().UTC()
	r.byID[u.ID] = *u
	r.byEmail[u.Email] = u.ID
	return nil
}

// GetByID loads a user by ID.
func (r *UserRepo) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &u, nil
}

// GetByEmail loads a user by normalized email.
func (r *UserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byEmail[email]
	if !ok {
		return nil, errs.ErrNotFound
	}
	u := r.byID[id]
	return &u, nil
}

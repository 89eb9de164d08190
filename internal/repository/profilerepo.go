package repository

import (
	"context"

	"github.com/and161185/identity-keeper/internal/model"
)

// ProfileRepository is a document store of profiles keyed by normalized email.
// Timestamps are always stamped by the store's own clock, never the caller's.
type ProfileRepository interface {
	// Get loads the profile document; errs.ErrNotFound when absent.
	Get(ctx context.Context, key string) (*model.Profile, error)
	// Create writes p only if no document exists under p.Key (errs.ErrAlreadyExists
	// otherwise). CreatedAt and LastAccessAt are stamped and written back into p.
	Create(ctx context.Context, p *model.Profile) error
	// MergePatch applies the patch to an existing document (errs.ErrNotFound otherwise).
	// A requested lastAccessAt stamp is written back into patch.LastAccessAt.
	MergePatch(ctx context.Context, key string, patch *model.Patch) error
}

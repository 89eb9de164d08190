package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/and161185/identity-keeper/internal/errs"
	"github.com/and161185/identity-keeper/internal/model"
)

// ProfileRepo implements ProfileRepository over a jsonb document column.
// Timestamps live in their own columns and are always set with now().
type ProfileRepo struct{ db *DB }

// NewProfileRepo constructs a profile repository.
func NewProfileRepo(db *DB) *ProfileRepo { return &ProfileRepo{db: db} }

// Get loads a profile document by key.
func (r *ProfileRepo) Get(ctx context.Context, key string) (*model.Profile, error) {
	const q = `
SELECT doc, created_at, last_access_at
FROM profiles WHERE key=$1`
	var (
		doc          []byte
		createdAt    time.Time
		lastAccessAt time.Time
	)
	err := r.db.Pool.QueryRow(ctx, q, key).Scan(&doc, &createdAt, &lastAccessAt)
	if isNoRows(err) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select profile: %w", err)
	}
	p := &model.Profile{Key: key}
	if err := json.Unmarshal(doc, p); err != nil {
		return nil, fmt.Errorf("decode profile %q: %w", key, err)
	}
	p.CreatedAt, p.LastAccessAt = createdAt, lastAccessAt
	return p, nil
}

// Create inserts the document unless one already exists under the key.
func (r *ProfileRepo) Create(ctx context.Context, p *model.Profile) error {
	const q = `
INSERT INTO profiles (key, doc, created_at, last_access_at)
VALUES ($1, $2, now(), now())
ON CONFLICT (key) DO NOTHING
RETURNING created_at, last_access_at`
	doc, err := documentOf(p)
	if err != nil {
		return err
	}
	err = r.db.Pool.QueryRow(ctx, q, p.Key, doc).Scan(&p.CreatedAt, &p.LastAccessAt)
	if isNoRows(err) {
		return errs.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("insert profile: %w", err)
	}
	return nil
}

// MergePatch merges top-level fields and roles flags into the stored document in one statement.
func (r *ProfileRepo) MergePatch(ctx context.Context, key string, patch *model.Patch) error {
	const q = `
UPDATE profiles
SET doc = CASE
      WHEN $3::jsonb IS NULL THEN doc || $2::jsonb
      ELSE doc || $2::jsonb || jsonb_build_object('roles',
        CASE WHEN jsonb_typeof(doc->'roles') = 'object' THEN doc->'roles' ELSE '{}'::jsonb END || $3::jsonb)
    END,
    last_access_at = CASE WHEN $4::boolean THEN now() ELSE last_access_at END
WHERE key = $1
RETURNING last_access_at`
	top, roles, err := patchArgs(patch)
	if err != nil {
		return err
	}
	var lastAccessAt time.Time
	err = r.db.Pool.QueryRow(ctx, q, key, top, roles, patch.TouchLastAccess).Scan(&lastAccessAt)
	if isNoRows(err) {
		return errs.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("patch profile: %w", err)
	}
	if patch.TouchLastAccess {
		patch.LastAccessAt = lastAccessAt
	}
	return nil
}

// documentOf encodes the document body; timestamps are kept in columns only.
func documentOf(p *model.Profile) ([]byte, error) {
	body := *p
	body.CreatedAt, body.LastAccessAt = time.Time{}, time.Time{}
	doc, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode profile %q: %w", p.Key, err)
	}
	return doc, nil
}

// patchArgs splits a patch into the top-level merge object and the roles merge
// object (nil when roles are untouched).
func patchArgs(patch *model.Patch) (top []byte, roles []byte, err error) {
	fields := map[string]any{}
	if patch.Email != nil {
		fields["email"] = *patch.Email
	}
	if top, err = json.Marshal(fields); err != nil {
		return nil, nil, err
	}
	if patch.Admin != nil {
		if roles, err = json.Marshal(map[string]bool{model.AdminRole: *patch.Admin}); err != nil {
			return nil, nil, err
		}
	}
	return top, roles, nil
}

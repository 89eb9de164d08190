package model

import (
	"encoding/json"
	"maps"
	"slices"
	"time"
)

// Document keys of the canonical profile schema.
const (
	keyEmail         = "email"
	keyDisplayName   = "displayName"
	keyPhotoURL      = "photoURL"
	keyPermissions   = "permissions"
	keyRoles         = "roles"
	keyCreatedAt     = "createdAt"
	keyLastAccessAt  = "lastAccessAt"
	keyLastLoginMeta = "lastLoginMeta"
)

// AdminRole is the role name carried by administrator profiles.
const AdminRole = "admin"

// LoginMeta is a diagnostic bag written on profile creation. Logic never reads it back.
type LoginMeta struct {
	UA string `json:"ua"`
	TZ string `json:"tz"`
}

// Profile is the engine-owned durable record of a principal, keyed by normalized email.
type Profile struct {
	Key           string // normalized email, the document key; not part of the document body
	Email         string
	DisplayName   string
	PhotoURL      string
	Permissions   Container
	Roles         Container
	CreatedAt     time.Time
	LastAccessAt  time.Time
	LastLoginMeta LoginMeta

	// Extra holds document fields outside the canonical schema, verbatim.
	// Legacy role encodings (admin, isAdmin, is_admin, role, permisos) live here.
	Extra map[string]json.RawMessage
}

// Clone returns an independent copy of p.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	c := *p
	c.Permissions = p.Permissions.Clone()
	c.Roles = p.Roles.Clone()
	if p.Extra != nil {
		c.Extra = make(map[string]json.RawMessage, len(p.Extra))
		for k, v := range p.Extra {
			c.Extra[k] = slices.Clone(v)
		}
	}
	return &c
}

// Admin reports the canonical roles.admin flag.
func (p *Profile) Admin() bool { return p != nil && p.Roles.FlagTrue(AdminRole) }

// Patch is a merge patch: fields left nil are untouched by the store.
type Patch struct {
	Email *string
	Admin *bool // sets roles.admin, keeping other role flags

	// TouchLastAccess asks the store to stamp lastAccessAt with its own clock.
	// The store writes the resolved instant back into LastAccessAt.
	TouchLastAccess bool
	LastAccessAt    time.Time
}

// Empty reports whether the patch would change nothing.
func (pt Patch) Empty() bool {
	return pt.Email == nil && pt.Admin == nil && !pt.TouchLastAccess
}

// Apply merges the patch into p the same way stores do.
func (p *Profile) Apply(pt Patch) {
	if pt.Email != nil {
		p.Email = *pt.Email
		delete(p.Extra, keyEmail)
	}
	if pt.Admin != nil {
		p.Roles = p.Roles.WithFlag(AdminRole, *pt.Admin)
	}
	if pt.TouchLastAccess {
		p.LastAccessAt = pt.LastAccessAt
	}
}

// MarshalJSON encodes the profile document: canonical keys plus Extra.
// Zero timestamps and absent containers are omitted.
func (p Profile) MarshalJSON() ([]byte, error) {
	doc := make(map[string]any, len(p.Extra)+8)
	for k, v := range p.Extra {
		doc[k] = v
	}
	doc[keyEmail] = p.Email
	doc[keyDisplayName] = p.DisplayName
	doc[keyPhotoURL] = p.PhotoURL
	doc[keyLastLoginMeta] = p.LastLoginMeta
	if p.Permissions.Shape != ShapeAbsent {
		doc[keyPermissions] = p.Permissions
	}
	if p.Roles.Shape != ShapeAbsent {
		doc[keyRoles] = p.Roles
	}
	if !p.CreatedAt.IsZero() {
		doc[keyCreatedAt] = p.CreatedAt
	}
	if !p.LastAccessAt.IsZero() {
		doc[keyLastAccessAt] = p.LastAccessAt
	}
	return json.Marshal(doc)
}

// UnmarshalJSON decodes a document of any historical shape. Canonical keys whose
// value has an unexpected type stay in Extra rather than failing the decode.
func (p *Profile) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	key := p.Key
	*p = Profile{Key: key}

	take := func(name string, dst any) {
		v, ok := raw[name]
		if !ok {
			return
		}
		if err := json.Unmarshal(v, dst); err == nil {
			delete(raw, name)
		}
	}
	take(keyEmail, &p.Email)
	take(keyDisplayName, &p.DisplayName)
	take(keyPhotoURL, &p.PhotoURL)
	take(keyPermissions, &p.Permissions)
	take(keyRoles, &p.Roles)
	take(keyCreatedAt, &p.CreatedAt)
	take(keyLastAccessAt, &p.LastAccessAt)
	take(keyLastLoginMeta, &p.LastLoginMeta)

	if len(raw) > 0 {
		p.Extra = maps.Clone(raw)
	}
	return nil
}

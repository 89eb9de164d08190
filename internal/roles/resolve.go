package roles

import (
	"bytes"
	"encoding/json"
	"slices"
	"strings"

	"github.com/and161185/identity-keeper/internal/model"
)

// Claim is one encoding of "is admin" found in a profile document. The set of
// implementations is closed: NestedFlag, DirectFlag, RoleName, RoleList, PermissionFlag.
type Claim interface {
	claim()
}

// NestedFlag is the canonical roles.admin boolean.
type NestedFlag struct{ Admin bool }

// DirectFlag is a legacy top-level boolean (admin, isAdmin or is_admin).
type DirectFlag struct {
	Field string
	Admin bool
}

// RoleName is a legacy single role string.
type RoleName struct{ Name string }

// RoleList is a legacy roles array.
type RoleList struct{ Names []string }

// PermissionFlag is the legacy permissions.admin (or permisos.admin) boolean.
type PermissionFlag struct {
	Container string
	Admin     bool
}

func (NestedFlag) claim()     {}
func (DirectFlag) claim()     {}
func (RoleName) claim()       {}
func (RoleList) claim()       {}
func (PermissionFlag) claim() {}

var directFlagFields = []string{"admin", "isAdmin", "is_admin"}

// Claims decodes every role-bearing field present in p.
func Claims(p *model.Profile) []Claim {
	if p == nil {
		return nil
	}
	var out []Claim

	if v, ok := p.Roles.Flag(model.AdminRole); ok {
		b, _ := v.(bool)
		out = append(out, NestedFlag{Admin: b})
	}
	for _, f := range directFlagFields {
		if raw, ok := p.Extra[f]; ok {
			out = append(out, DirectFlag{Field: f, Admin: isJSONTrue(raw)})
		}
	}
	if raw, ok := p.Extra["role"]; ok {
		var name string
		if json.Unmarshal(raw, &name) == nil {
			out = append(out, RoleName{Name: name})
		}
	}
	if p.Roles.Shape == model.ShapeList {
		out = append(out, RoleList{Names: p.Roles.Strings()})
	}
	if v, ok := p.Permissions.Flag(model.AdminRole); ok {
		b, _ := v.(bool)
		out = append(out, PermissionFlag{Container: "permissions", Admin: b})
	}
	if raw, ok := p.Extra["permisos"]; ok {
		var perms model.Container
		if json.Unmarshal(raw, &perms) == nil {
			if v, ok := perms.Flag(model.AdminRole); ok {
				b, _ := v.(bool)
				out = append(out, PermissionFlag{Container: "permisos", Admin: b})
			}
		}
	}
	return out
}

// Grants reports whether a single claim confers administrator status.
func Grants(c Claim) bool {
	switch c := c.(type) {
	case NestedFlag:
		return c.Admin
	case DirectFlag:
		return c.Admin
	case RoleName:
		return strings.EqualFold(c.Name, model.AdminRole)
	case RoleList:
		return slices.Contains(c.Names, model.AdminRole)
	case PermissionFlag:
		return c.Admin
	default:
		return false
	}
}

// IsAdmin is the single authorization decision over every known encoding.
// It never panics and returns false for a nil profile.
// New consumers call this rather than reading role fields directly.
func IsAdmin(p *model.Profile) bool {
	for _, c := range Claims(p) {
		if Grants(c) {
			return true
		}
	}
	return false
}

func isJSONTrue(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("true"))
}

package roles

import (
	"encoding/json"
	"testing"

	"github.com/and161185/identity-keeper/internal/model"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, doc string) *model.Profile {
	t.Helper()
	var p model.Profile
	require.NoError(t, json.Unmarshal([]byte(doc), &p))
	return &p
}

func TestIsAdmin_EachLegacyShape(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"nested roles.admin":    `{"email":"a@x.io","roles":{"admin":true}}`,
		"direct admin":          `{"email":"a@x.io","admin":true}`,
		"direct isAdmin":        `{"email":"a@x.io","isAdmin":true}`,
		"direct is_admin":       `{"email":"a@x.io","is_admin":true}`,
		"role string":           `{"email":"a@x.io","role":"ADMIN"}`,
		"roles list":            `{"email":"a@x.io","roles":["editor","Admin"]}`,
		"permissions.admin":     `{"email":"a@x.io","permissions":{"admin":true}}`,
		"legacy permisos.admin": `{"email":"a@x.io","permisos":{"admin":true}}`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			require.True(t, IsAdmin(decode(t, doc)))
		})
	}
}

func TestIsAdmin_NoClaims(t *testing.T) {
	t.Parallel()

	require.False(t, IsAdmin(nil))
	require.False(t, IsAdmin(&model.Profile{}))

	none := []string{
		`{"email":"a@x.io","roles":{"admin":false},"permissions":[]}`,
		`{"admin":"true","isAdmin":1,"is_admin":null}`,
		`{"role":"administrator","roles":["editor"]}`,
		`{"role":true,"permissions":{"admin":"yes"}}`,
		`{"roles":"admin"}`,
	}
	for _, doc := range none {
		require.False(t, IsAdmin(decode(t, doc)), doc)
	}
}

func TestIsAdmin_ORAcrossShapes(t *testing.T) {
	t.Parallel()

	p := decode(t, `{"email":"user@example.com","roles":{"admin":false},"role":"Admin"}`)
	require.False(t, p.Admin())
	require.True(t, IsAdmin(p))
}

func TestClaims_DecodesUnion(t *testing.T) {
	t.Parallel()

	p := decode(t, `{"roles":{"admin":false},"isAdmin":true,"role":"viewer","permissions":{"admin":false}}`)
	got := Claims(p)
	require.ElementsMatch(t, []Claim{
		NestedFlag{Admin: false},
		DirectFlag{Field: "isAdmin", Admin: true},
		RoleName{Name: "viewer"},
		PermissionFlag{Container: "permissions", Admin: false},
	}, got)

	list := Claims(decode(t, `{"roles":["A","b",3]}`))
	require.Equal(t, []Claim{RoleList{Names: []string{"a", "b"}}}, list)
}

func TestAllowList(t *testing.T) {
	t.Parallel()

	a := NewAllowList(" Admin@Example.com ", "", "ops@example.com", "ADMIN@example.com")
	require.Equal(t, 2, a.Len())
	require.True(t, a.Contains("admin@EXAMPLE.com"))
	require.True(t, a.Contains("  ops@example.com"))
	require.False(t, a.Contains("user@example.com"))
	require.False(t, a.Contains(""))
	require.Equal(t, []string{"admin@example.com", "ops@example.com"}, a.Emails())

	var zero AllowList
	require.False(t, zero.Contains("admin@example.com"))
}

package convert

import (
	"errors"
	"testing"
	"time"

	"github.com/and161185/identity-keeper/internal/model"
	"github.com/and161185/identity-keeper/internal/session"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"
)

func TestToSessionView(t *testing.T) {
	t.Parallel()

	s := session.Snapshot{
		State:      session.StateAuthenticated,
		AuthReady:  true,
		Generation: 3,
		Identity:   &model.Identity{ID: "u1", Email: "A@x.io"},
		Profile: &model.Profile{
			Key:   "a@x.io",
			Email: "a@x.io",
			Roles: model.ObjectOf(map[string]any{model.AdminRole: true}),
		},
		Err: errors.New("last sync failed"),
	}
	v := ToSessionView(s)
	require.Equal(t, "authenticated", v.State)
	require.True(t, v.IsAdmin)
	require.Equal(t, "u1", v.User.ID)
	require.Equal(t, "last sync failed", v.Error)

	st, err := ToStruct(v)
	require.NoError(t, err)
	m := st.AsMap()
	require.Equal(t, "authenticated", m["state"])
	require.Equal(t, float64(3), m["generation"])
	prof := m["profile"].(map[string]any)
	require.Equal(t, true, prof["roles"].(map[string]any)["admin"])
}

func TestToSessionView_NotReadyIsNeverAdmin(t *testing.T) {
	t.Parallel()
	s := session.Snapshot{
		State:        session.StateReconciling,
		CheckingAuth: true,
		Profile:      &model.Profile{Key: "a@x.io", Roles: model.ObjectOf(map[string]any{model.AdminRole: true})},
	}
	v := ToSessionView(s)
	require.False(t, v.IsAdmin)
	require.Nil(t, v.User)
}

func TestFromStruct(t *testing.T) {
	t.Parallel()
	st, err := structpb.NewStruct(map[string]any{"email": "a@x.io", "password": "pw", "ignored": 1})
	require.NoError(t, err)

	var req SignInRequest
	require.NoError(t, FromStruct(st, &req))
	require.Equal(t, SignInRequest{Email: "a@x.io", Password: "pw"}, req)

	var empty SignInRequest
	require.NoError(t, FromStruct(nil, &empty))
	require.Zero(t, empty)
}

func TestToStruct_RejectsNonObject(t *testing.T) {
	t.Parallel()
	_, err := ToStruct([]int{1})
	require.Error(t, err)

	st, err := ToStruct(ToTokenView(model.Tokens{AccessToken: "t", ExpiresAt: time.Unix(0, 0)}))
	require.NoError(t, err)
	require.Equal(t, "1970-01-01T00:00:00Z", st.AsMap()["expiresAt"])
}

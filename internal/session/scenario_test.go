package session_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/and161185/identity-keeper/internal/model"
	"github.com/and161185/identity-keeper/internal/repository/memory"
	"github.com/and161185/identity-keeper/internal/roles"
	"github.com/and161185/identity-keeper/internal/service"
	"github.com/and161185/identity-keeper/internal/session"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestScenario_AllowListedAndLegacyRole(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	log := zaptest.NewLogger(t)

	identity := service.NewIdentityService(memory.NewUserRepo(nil), []byte("k"), time.Hour, service.WithIdentityLogger(log))
	profiles := memory.NewProfileRepo(nil)
	syncer := service.NewProfileSynchronizer(profiles, roles.NewAllowList("admin@example.com"), nil)
	e := session.New(identity, syncer, session.WithLogger(log))
	t.Cleanup(e.Close)
	require.NoError(t, e.Subscribe())

	for _, email := range []string{"admin@example.com", "user@example.com"} {
		_, err := identity.Register(ctx, email, "secret1", "")
		require.NoError(t, err)
	}

	// allow-listed principal
	require.NoError(t, e.SignIn(ctx, "Admin@Example.com", "secret1"))
	require.True(t, e.WaitForProfile(ctx, 3*time.Second))
	s := e.Snapshot()
	require.True(t, s.Profile.Admin())
	require.True(t, s.IsAdmin())

	// ordinary principal whose stored document carries a legacy role string
	e.SignOut(ctx)
	require.Eventually(t, func() bool { return e.Snapshot().State == session.StateAnonymous }, 2*time.Second, 2*time.Millisecond)
	profiles.Put(&model.Profile{
		Key:   "user@example.com",
		Email: "user@example.com",
		Extra: map[string]json.RawMessage{"role": json.RawMessage(`"Admin"`)},
	})

	require.NoError(t, e.SignIn(ctx, "user@example.com", "secret1"))
	require.True(t, e.WaitForProfile(ctx, 3*time.Second))
	s = e.Snapshot()
	require.False(t, s.Profile.Admin())
	require.True(t, s.IsAdmin())
}

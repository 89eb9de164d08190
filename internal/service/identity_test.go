package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/and161185/identity-keeper/internal/errs"
	"github.com/and161185/identity-keeper/internal/model"
	"github.com/and161185/identity-keeper/internal/repository"
	"github.com/and161185/identity-keeper/internal/repository/memory"
	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type recorder struct {
	mu     sync.Mutex
	events []*model.Identity
}

func (r *recorder) on(id *model.Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, id)
}

func (r *recorder) emails() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		if e == nil {
			out = append(out, "")
			continue
		}
		out = append(out, e.Email)
	}
	return out
}

func newIdentity(t *testing.T, opts ...IdentityOption) (*IdentityService, *memory.UserRepo) {
	t.Helper()
	users := memory.NewUserRepo(nil)
	opts = append([]IdentityOption{WithIdentityLogger(zaptest.NewLogger(t))}, opts...)
	return NewIdentityService(users, []byte("test-secret"), time.Minute, opts...), users
}

func TestIdentity_RegisterAndAuthenticate(t *testing.T) {
	t.Parallel()
	s, _ := newIdentity(t)
	ctx := context.Background()

	_, err := s.Register(ctx, "  ", "pwd", "")
	require.ErrorIs(t, err, errs.ErrInvalidIdentity)
	_, err = s.Register(ctx, "a@x.io", "", "")
	require.Error(t, err)

	reg, err := s.Register(ctx, "Alice@X.io", "pwd", "Alice")
	require.NoError(t, err)
	require.Equal(t, "alice@x.io", reg.Email)
	_, err = s.Register(ctx, "alice@x.io", "pwd2", "")
	require.ErrorIs(t, err, errs.ErrAlreadyExists)

	_, err = s.Authenticate(ctx, "alice@x.io", "wrong")
	require.ErrorIs(t, err, errs.ErrAuthentication)
	_, err = s.Authenticate(ctx, "nobody@x.io", "pwd")
	require.ErrorIs(t, err, errs.ErrAuthentication)
	require.Nil(t, s.Current())

	id, err := s.Authenticate(ctx, "ALICE@x.io", "pwd")
	require.NoError(t, err)
	require.Equal(t, reg, *id)
	require.Equal(t, reg, *s.Current())
	tok := s.Token()
	require.NotEmpty(t, tok.AccessToken)
	require.True(t, tok.ExpiresAt.After(time.Now()))
}

func TestIdentity_OnIdentityChange_Order(t *testing.T) {
	t.Parallel()
	s, _ := newIdentity(t)
	ctx := context.Background()
	_, err := s.Register(ctx, "a@x.io", "pa", "")
	require.NoError(t, err)
	_, err = s.Register(ctx, "b@x.io", "pb", "")
	require.NoError(t, err)

	rec := &recorder{}
	unsub := s.OnIdentityChange(rec.on)
	require.Equal(t, []string{""}, rec.emails(), "fires once at subscribe time")

	_, err = s.Authenticate(ctx, "a@x.io", "pa")
	require.NoError(t, err)
	_, err = s.Authenticate(ctx, "a@x.io", "pa")
	require.NoError(t, err)
	_, err = s.Authenticate(ctx, "b@x.io", "pb")
	require.NoError(t, err)
	require.NoError(t, s.EndSession(ctx))
	require.NoError(t, s.EndSession(ctx))

	require.Equal(t, []string{"", "a@x.io", "b@x.io", ""}, rec.emails(), "only changes are pushed")

	unsub()
	_, err = s.Authenticate(ctx, "a@x.io", "pa")
	require.NoError(t, err)
	require.Len(t, rec.emails(), 4)

	late := &recorder{}
	s.OnIdentityChange(late.on)
	require.Equal(t, []string{"a@x.io"}, late.emails())
}

func TestIdentity_TokenFileAndResume(t *testing.T) {
	t.Parallel()
	tf := &TokenFile{Path: filepath.Join(t.TempDir(), "ik", "session.json")}
	s, users := newIdentity(t, WithTokenFile(tf))
	ctx := context.Background()

	_, err := s.Register(ctx, "a@x.io", "pa", "")
	require.NoError(t, err)
	_, err = s.Authenticate(ctx, "a@x.io", "pa")
	require.NoError(t, err)

	saved, err := tf.Load()
	require.NoError(t, err)
	require.Equal(t, s.Token().AccessToken, saved.AccessToken)

	// A fresh process with the same key and user store resumes the session.
	restarted := NewIdentityService(users, []byte("test-secret"), time.Minute, WithTokenFile(tf))
	require.NoError(t, restarted.ResumeFromFile(ctx))
	require.NotNil(t, restarted.Current())
	require.Equal(t, "a@x.io", restarted.Current().Email)

	require.NoError(t, restarted.EndSession(ctx))
	_, err = tf.Load()
	require.ErrorIs(t, err, ErrNoToken)
	require.NoError(t, restarted.ResumeFromFile(ctx), "nothing to resume is not an error")
	require.Nil(t, restarted.Current())
}

func TestIdentity_ResumeRejectsBadTokens(t *testing.T) {
	t.Parallel()
	s, users := newIdentity(t)
	ctx := context.Background()

	require.ErrorIs(t, s.Resume(ctx, "not-a-jwt"), errs.ErrAuthentication)

	other := NewIdentityService(users, []byte("other-key"), time.Minute)
	_, err := other.Register(ctx, "a@x.io", "pa", "")
	require.NoError(t, err)
	_, err = other.Authenticate(ctx, "a@x.io", "pa")
	require.NoError(t, err)
	require.ErrorIs(t, s.Resume(ctx, other.Token().AccessToken), errs.ErrAuthentication)

	ghost, err := s.issueAccessToken(uuid.Must(uuid.NewV4()))
	require.NoError(t, err)
	require.ErrorIs(t, s.Resume(ctx, ghost.AccessToken), errs.ErrAuthentication)

	expired := NewIdentityService(users, []byte("test-secret"), -time.Hour)
	old, err := expired.issueAccessToken(uuid.Must(uuid.NewV4()))
	require.NoError(t, err)
	require.ErrorIs(t, s.Resume(ctx, old.AccessToken), errs.ErrAuthentication)
}

type brokenUsers struct{ repository.UserRepository }

func (brokenUsers) GetByEmail(context.Context, string) (*model.User, error) {
	return nil, errors.New("db down")
}

func TestIdentity_ProviderErrors(t *testing.T) {
	t.Parallel()
	s := NewIdentityService(brokenUsers{}, []byte("k"), time.Minute)
	_, err := s.Authenticate(context.Background(), "a@x.io", "pa")
	require.ErrorIs(t, err, errs.ErrProvider)
	require.NotErrorIs(t, err, errs.ErrAuthentication)

	users := memory.NewUserRepo(nil)
	require.NoError(t, users.Create(context.Background(), &model.User{ID: uuid.Must(uuid.NewV4()), Email: "m@x.io", PwdHash: "garbage"}))
	s = NewIdentityService(users, []byte("k"), time.Minute)
	_, err = s.Authenticate(context.Background(), "m@x.io", "pa")
	require.ErrorIs(t, err, errs.ErrProvider)
}

func TestTokenFile_SaveLoadRemove(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	tf := &TokenFile{Path: DefaultTokenPath()}
	require.Contains(t, tf.Path, filepath.Join("identity-keeper", "session.json"))

	_, err := tf.Load()
	require.ErrorIs(t, err, ErrNoToken)

	require.NoError(t, tf.Save(model.Tokens{AccessToken: "tok", ExpiresAt: time.Now().Add(time.Minute)}))
	got, err := tf.Load()
	require.NoError(t, err)
	require.Equal(t, "tok", got.AccessToken)

	require.NoError(t, tf.Save(model.Tokens{AccessToken: "tok2", ExpiresAt: time.Now().Add(-time.Minute)}))
	_, err = tf.Load()
	require.ErrorIs(t, err, ErrNoToken)

	require.NoError(t, tf.Remove())
	require.NoError(t, tf.Remove())
}

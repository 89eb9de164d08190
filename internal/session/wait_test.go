package session

import (
	"context"
	"testing"
	"time"

	"github.com/and161185/identity-keeper/internal/model"
	"github.com/stretchr/testify/require"
)

func slowEnsurer(d time.Duration) ensureFunc {
	return func(ctx context.Context, id model.Identity) (*model.Profile, error) {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return profileFor(id, false), nil
	}
}

func signedInEngine(t *testing.T, reconcile time.Duration) *Engine {
	t.Helper()
	p := newFakeProvider()
	p.current = &model.Identity{ID: "a", Email: "a@x.io"}
	e := newEngine(t, p, slowEnsurer(reconcile))
	require.NoError(t, e.Subscribe())
	return e
}

func TestWaitForProfile_ReturnsWhenSettled(t *testing.T) {
	t.Parallel()
	e := signedInEngine(t, 400*time.Millisecond)

	start := time.Now()
	require.True(t, e.WaitForProfile(context.Background(), 3*time.Second))
	require.Less(t, time.Since(start), 2*time.Second)
	require.True(t, e.Snapshot().HasProfile())

	// already ready: immediate
	require.True(t, e.WaitForProfile(context.Background(), 0))
}

func TestWaitForProfile_TimesOut(t *testing.T) {
	t.Parallel()
	e := signedInEngine(t, 400*time.Millisecond)
	require.False(t, e.WaitForProfile(context.Background(), 100*time.Millisecond))
	require.False(t, e.WaitForProfile(context.Background(), 0))
}

func TestWaitForProfile_Anonymous(t *testing.T) {
	t.Parallel()
	p := newFakeProvider()
	e := newEngine(t, p, instantEnsurer())
	require.NoError(t, e.Subscribe())
	waitReady(t, e)
	require.False(t, e.WaitForProfile(context.Background(), 50*time.Millisecond))
}

func TestWaitForProfile_ContextAndClose(t *testing.T) {
	t.Parallel()
	e := signedInEngine(t, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	require.False(t, e.WaitForProfile(ctx, time.Minute))

	go func() {
		time.Sleep(20 * time.Millisecond)
		e.Close()
	}()
	require.False(t, e.WaitForProfile(context.Background(), time.Minute))
}

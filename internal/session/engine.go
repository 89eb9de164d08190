// Package session implements the session state machine: it follows the identity
// provider, drives profile synchronization and publishes readiness signals.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/and161185/identity-keeper/internal/errs"
	"github.com/and161185/identity-keeper/internal/model"
	"github.com/thejerf/abtime"
	"go.uber.org/zap"
)

// Engine lifecycle errors.
var (
	ErrClosed     = errors.New("session engine closed")
	ErrSubscribed = errors.New("session engine already subscribed")
)

// IdentityProvider is the consumed identity provider contract.
type IdentityProvider interface {
	Authenticate(ctx context.Context, email, secret string) (*model.Identity, error)
	EndSession(ctx context.Context) error
	// OnIdentityChange fires once with the current identity and on every change.
	OnIdentityChange(fn func(*model.Identity)) (unsubscribe func())
}

// ProfileEnsurer brings the profile of an identity up to date.
type ProfileEnsurer interface {
	EnsureProfile(ctx context.Context, id model.Identity) (*model.Profile, error)
}

// Engine is the session state machine. All state lives in one Snapshot guarded
// by mu and is published as a whole.
type Engine struct {
	provider         IdentityProvider
	ensurer          ProfileEnsurer
	log              *zap.Logger
	clock            abtime.AbstractTime
	flickerDelay     time.Duration
	reconcileTimeout time.Duration
	report           func(error)
	gate             *Gate

	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu          sync.Mutex
	snap        Snapshot
	settled     chan struct{} // closed and replaced on every publish
	inflight    context.CancelFunc
	unsubscribe func()
	subscribed  bool
	closed      bool
	watchers    map[int]chan Snapshot
	nextWatcher int
}

// Option customizes an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(e *Engine) { e.log = l } }

// WithClock sets the clock used by the anti-flicker gate and the waiter.
func WithClock(c abtime.AbstractTime) Option { return func(e *Engine) { e.clock = c } }

// WithFlickerDelay sets how long checking must last before DisplayChecking shows it.
func WithFlickerDelay(d time.Duration) Option { return func(e *Engine) { e.flickerDelay = d } }

// WithReconcileTimeout bounds each profile synchronization; zero means unbounded.
func WithReconcileTimeout(d time.Duration) Option {
	return func(e *Engine) { e.reconcileTimeout = d }
}

// WithReporter receives every reconciliation failure.
func WithReporter(fn func(error)) Option { return func(e *Engine) { e.report = fn } }

// New builds an engine in the Initializing state. Call Subscribe (or Serve) to start it.
func New(provider IdentityProvider, ensurer ProfileEnsurer, opts ...Option) *Engine {
	e := &Engine{
		provider:     provider,
		ensurer:      ensurer,
		log:          zap.NewNop(),
		clock:        abtime.NewRealTime(),
		flickerDelay: DefaultFlickerDelay,
		settled:      make(chan struct{}),
		watchers:     map[int]chan Snapshot{},
	}
	for _, o := range opts {
		o(e)
	}
	e.baseCtx, e.baseCancel = context.WithCancel(context.Background())
	e.snap = Snapshot{State: StateInitializing, CheckingAuth: true, DisplayChecking: true}
	e.gate = NewGate(e.clock, e.flickerDelay, true, e.onGateShow)
	return e
}

// Subscribe starts following the identity provider.
func (e *Engine) Subscribe() error {
	e.mu.Lock()
	switch {
	case e.closed:
		e.mu.Unlock()
		return ErrClosed
	case e.subscribed:
		e.mu.Unlock()
		return ErrSubscribed
	}
	e.subscribed = true
	e.mu.Unlock()

	// The provider delivers the current identity synchronously; mu must be free.
	unsub := e.provider.OnIdentityChange(e.onIdentity)

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		unsub()
		return ErrClosed
	}
	e.unsubscribe = unsub
	e.mu.Unlock()
	return nil
}

// Serve subscribes, runs until ctx is done and tears the engine down.
func (e *Engine) Serve(ctx context.Context) error {
	if err := e.Subscribe(); err != nil {
		return err
	}
	<-ctx.Done()
	e.Close()
	return ctx.Err()
}

// Close unsubscribes and discards the results of in-flight reconciliations.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	if e.inflight != nil {
		e.inflight()
		e.inflight = nil
	}
	e.gate.Stop()
	close(e.settled)
	for id, ch := range e.watchers {
		close(ch)
		delete(e.watchers, id)
	}
	unsub := e.unsubscribe
	e.unsubscribe = nil
	e.mu.Unlock()

	e.baseCancel()
	if unsub != nil {
		unsub()
	}
}

// Snapshot returns the current session view.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snap
}

// Watch streams published snapshots, starting with the current one. Slow
// readers skip intermediate snapshots; they never see a torn one.
func (e *Engine) Watch() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		close(ch)
		return ch, func() {}
	}
	id := e.nextWatcher
	e.nextWatcher++
	e.watchers[id] = ch
	ch <- e.snap

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			if _, ok := e.watchers[id]; ok {
				delete(e.watchers, id)
				close(ch)
			}
		})
	}
}

// SignIn delegates to the identity provider. Session state changes only
// through the identity stream that follows a successful authentication.
func (e *Engine) SignIn(ctx context.Context, email, password string) error {
	if _, err := e.provider.Authenticate(ctx, email, password); err != nil {
		if errors.Is(err, errs.ErrAuthentication) {
			e.log.Info("sign-in rejected")
			return err
		}
		return fmt.Errorf("sign in: %w", err)
	}
	return nil
}

// SignOut ends the provider session. It is best-effort: failures are logged,
// the session follows whatever the provider's identity stream reports.
func (e *Engine) SignOut(ctx context.Context) {
	if err := e.provider.EndSession(ctx); err != nil {
		e.log.Warn("sign-out failed", zap.Error(err))
	}
}

func (e *Engine) onIdentity(id *model.Identity) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	if e.inflight != nil {
		e.inflight()
	}

	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if e.reconcileTimeout > 0 {
		ctx, cancel = context.WithTimeout(e.baseCtx, e.reconcileTimeout)
	} else {
		ctx, cancel = context.WithCancel(e.baseCtx)
	}
	e.inflight = cancel

	e.snap.Generation++
	e.snap.State = StateReconciling
	e.snap.CheckingAuth = true
	e.snap.AuthReady = false
	e.snap.Identity = id
	if id == nil || e.snap.Profile == nil || e.snap.Profile.Key != id.Key() {
		e.snap.Profile = nil
	}
	e.snap.DisplayChecking = e.gate.Set(true)
	e.publishLocked()

	go e.reconcile(ctx, cancel, e.snap.Generation, id)
}

func (e *Engine) reconcile(ctx context.Context, cancel context.CancelFunc, gen uint64, id *model.Identity) {
	defer cancel()

	var (
		p   *model.Profile
		err error
	)
	if id != nil {
		p, err = e.ensure(ctx, *id)
	}

	e.mu.Lock()
	if e.closed || gen != e.snap.Generation {
		e.mu.Unlock()
		e.log.Debug("discarding superseded reconciliation", zap.Uint64("generation", gen))
		return
	}
	e.inflight = nil
	switch {
	case id == nil:
		e.snap.State = StateAnonymous
		e.snap.Profile = nil
	case err == nil:
		e.snap.State = StateAuthenticated
		e.snap.Profile = p
	case errors.Is(err, errs.ErrInvalidIdentity):
		e.snap.State = StateAuthenticated
		e.snap.Profile = nil
	default:
		// last known profile of this identity, if any, stays in place
		e.snap.State = StateAuthenticated
	}
	e.snap.Err = err
	e.snap.CheckingAuth = false
	e.snap.AuthReady = true
	e.snap.DisplayChecking = e.gate.Set(false)
	e.publishLocked()
	e.mu.Unlock()

	if err != nil {
		e.observe(err, gen)
	}
}

// ensure runs the synchronizer, turning a panic into an error so the session still settles.
func (e *Engine) ensure(ctx context.Context, id model.Identity) (p *model.Profile, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("profile synchronization panic: %v", r)
		}
	}()
	return e.ensurer.EnsureProfile(ctx, id)
}

func (e *Engine) observe(err error, gen uint64) {
	if errors.Is(err, errs.ErrInvalidIdentity) {
		e.log.Warn("identity without usable email", zap.Uint64("generation", gen))
	} else {
		e.log.Error("profile synchronization failed", zap.Uint64("generation", gen), zap.Error(err))
	}
	if e.report != nil {
		e.report(err)
	}
}

func (e *Engine) onGateShow() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	if v := e.gate.Visible(); v != e.snap.DisplayChecking {
		e.snap.DisplayChecking = v
		e.publishLocked()
	}
}

// publishLocked must be called with mu held.
func (e *Engine) publishLocked() {
	close(e.settled)
	e.settled = make(chan struct{})
	for _, ch := range e.watchers {
		select {
		case ch <- e.snap:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- e.snap
		}
	}
}

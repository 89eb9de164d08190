// Package service contains application services: the local identity provider
// and the profile synchronizer.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	pkgcrypto "github.com/and161185/identity-keeper/internal/crypto"
	"github.com/and161185/identity-keeper/internal/errs"
	"github.com/and161185/identity-keeper/internal/model"
	"github.com/and161185/identity-keeper/internal/repository"
	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// IdentityService is the local identity provider: accounts live in a
// UserRepository, sessions are HS256 tokens, and every change of the current
// identity is pushed to subscribers in order.
type IdentityService struct {
	users     repository.UserRepository
	signKey   []byte
	accessTTL time.Duration
	log       *zap.Logger
	tokens    *TokenFile

	// emitMu serializes state changes with their delivery, so subscribers
	// observe identities in the order they became current.
	emitMu sync.Mutex

	mu      sync.Mutex
	current *model.Identity
	token   model.Tokens
	subs    map[int]func(*model.Identity)
	nextSub int
}

// IdentityOption customizes an IdentityService.
type IdentityOption func(*IdentityService)

// WithTokenFile persists the session token so a restarted process can resume it.
func WithTokenFile(f *TokenFile) IdentityOption {
	return func(s *IdentityService) { s.tokens = f }
}

// WithIdentityLogger sets the logger.
func WithIdentityLogger(l *zap.Logger) IdentityOption {
	return func(s *IdentityService) { s.log = l }
}

// NewIdentityService constructs the provider with required dependencies.
func NewIdentityService(users repository.UserRepository, signKey []byte, accessTTL time.Duration, opts ...IdentityOption) *IdentityService {
	s := &IdentityService{
		users:     users,
		signKey:   signKey,
		accessTTL: accessTTL,
		log:       zap.NewNop(),
		subs:      map[int]func(*model.Identity){},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Register creates a new account. It does not sign the account in.
func (s *IdentityService) Register(ctx context.Context, email, password, displayName string) (model.Identity, error) {
	key := model.NormalizeKey(email)
	if key == "" {
		return model.Identity{}, errs.ErrInvalidIdentity
	}
	if password == "" {
		return model.Identity{}, errors.New("empty password")
	}
	uid, err := uuid.NewV4()
	if err != nil {
		return model.Identity{}, err
	}
	hash, err := pkgcrypto.HashPassword(password)
	if err != nil {
		return model.Identity{}, err
	}
	u := &model.User{ID: uid, Email: key, DisplayName: displayName, PwdHash: hash}
	if err := s.users.Create(ctx, u); err != nil {
		return model.Identity{}, err
	}
	s.log.Info("account registered", zap.String("user_id", uid.String()))
	return u.Identity(), nil
}

// Authenticate verifies credentials and makes the account the current identity.
func (s *IdentityService) Authenticate(ctx context.Context, email, secret string) (*model.Identity, error) {
	u, err := s.users.GetByEmail(ctx, model.NormalizeKey(email))
	switch {
	case errors.Is(err, errs.ErrNotFound):
		// hide existence of the account
		return nil, errs.ErrAuthentication
	case err != nil:
		return nil, fmt.Errorf("%w: lookup: %v", errs.ErrProvider, err)
	}
	ok, err := pkgcrypto.VerifyPassword(secret, u.PwdHash)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrProvider, err)
	}
	if !ok {
		return nil, errs.ErrAuthentication
	}

	tok, err := s.issueAccessToken(u.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: issue token: %v", errs.ErrProvider, err)
	}
	if s.tokens != nil {
		if err := s.tokens.Save(tok); err != nil {
			s.log.Warn("token file save failed", zap.Error(err))
		}
	}
	id := u.Identity()
	s.setCurrent(&id, tok)
	return &id, nil
}

// EndSession signs the current identity out. The local state always collapses,
// even when forgetting the persisted token fails.
func (s *IdentityService) EndSession(_ context.Context) error {
	var rmErr error
	if s.tokens != nil {
		rmErr = s.tokens.Remove()
	}
	s.setCurrent(nil, model.Tokens{})
	if rmErr != nil {
		return fmt.Errorf("%w: forget token: %v", errs.ErrProvider, rmErr)
	}
	return nil
}

// OnIdentityChange subscribes fn. It fires once with the current identity
// (nil when signed out) and again on every change. fn must not block.
func (s *IdentityService) OnIdentityChange(fn func(*model.Identity)) (unsubscribe func()) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	cur := copyIdentity(s.current)
	s.mu.Unlock()

	fn(cur)

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Resume restores a session from a previously issued token.
func (s *IdentityService) Resume(ctx context.Context, token string) error {
	uid, exp, err := s.parseToken(token)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrAuthentication, err)
	}
	u, err := s.users.GetByID(ctx, uid)
	if errors.Is(err, errs.ErrNotFound) {
		return errs.ErrAuthentication
	}
	if err != nil {
		return fmt.Errorf("%w: lookup: %v", errs.ErrProvider, err)
	}
	id := u.Identity()
	s.setCurrent(&id, model.Tokens{AccessToken: token, ExpiresAt: exp})
	return nil
}

// ResumeFromFile resumes the session saved in the token file, if any.
// A missing or expired token is not an error: the process starts signed out.
func (s *IdentityService) ResumeFromFile(ctx context.Context) error {
	if s.tokens == nil {
		return nil
	}
	tok, err := s.tokens.Load()
	if err != nil {
		s.log.Debug("no session to resume", zap.Error(err))
		return nil
	}
	return s.Resume(ctx, tok.AccessToken)
}

// Token returns the current session token (zero when signed out).
func (s *IdentityService) Token() model.Tokens {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// Current returns the current identity or nil.
func (s *IdentityService) Current() *model.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyIdentity(s.current)
}

func (s *IdentityService) setCurrent(id *model.Identity, tok model.Tokens) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	changed := !sameIdentity(s.current, id)
	s.current = copyIdentity(id)
	s.token = tok
	fns := make([]func(*model.Identity), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	if !changed {
		return
	}
	for _, fn := range fns {
		fn(copyIdentity(id))
	}
}

// issueAccessToken creates a signed HS256 JWT for the given subject.
func (s *IdentityService) issueAccessToken(userID uuid.UUID) (model.Tokens, error) {
	now := time.Now()
	exp := now.Add(s.accessTTL)
	claims := jwt.RegisteredClaims{
		Subject:   userID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signKey)
	if err != nil {
		return model.Tokens{}, err
	}
	return model.Tokens{AccessToken: signed, ExpiresAt: exp}, nil
}

// parseToken verifies HS256 and returns the subject as UUID.
func (s *IdentityService) parseToken(tok string) (uuid.UUID, time.Time, error) {
	var claims jwt.RegisteredClaims
	parsed, err := jwt.ParseWithClaims(tok, &claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return s.signKey, nil
	}, jwt.WithLeeway(30*time.Second))
	if err != nil || !parsed.Valid {
		return uuid.Nil, time.Time{}, errors.New("invalid token")
	}
	id, err := uuid.FromString(claims.Subject)
	if err != nil {
		return uuid.Nil, time.Time{}, errors.New("bad subject")
	}
	var exp time.Time
	if claims.ExpiresAt != nil {
		exp = claims.ExpiresAt.Time
	}
	return id, exp, nil
}

func copyIdentity(id *model.Identity) *model.Identity {
	if id == nil {
		return nil
	}
	c := *id
	return &c
}

func sameIdentity(a, b *model.Identity) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

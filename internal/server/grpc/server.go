// Package grpcserver exposes the session engine over gRPC.
package grpcserver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/and161185/identity-keeper/internal/convert"
	"github.com/and161185/identity-keeper/internal/errs"
	"github.com/and161185/identity-keeper/internal/model"
	"github.com/and161185/identity-keeper/internal/session"
	"github.com/go-playground/validator/v10"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/durationpb"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// MaxWait caps WaitForProfile requests.
const MaxWait = time.Minute

// Engine is the part of session.Engine the transport uses.
type Engine interface {
	SignIn(ctx context.Context, email, password string) error
	SignOut(ctx context.Context)
	Snapshot() session.Snapshot
	WaitForProfile(ctx context.Context, maxWait time.Duration) bool
	Watch() (<-chan session.Snapshot, func())
}

// Accounts is the account side of the local identity provider.
type Accounts interface {
	Register(ctx context.Context, email, password, displayName string) (model.Identity, error)
	Resume(ctx context.Context, token string) error
	Token() model.Tokens
}

// Server wires the engine and the provider into gRPC handlers.
type Server struct {
	engine   Engine
	accounts Accounts
	validate *validator.Validate
}

var _ SessionServer = (*Server)(nil)

// New constructs a gRPC server with injected services.
func New(engine Engine, accounts Accounts) *Server {
	return &Server{engine: engine, accounts: accounts, validate: validator.New(validator.WithRequiredStructEnabled())}
}

// Register creates a new local account.
func (s *Server) Register(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req convert.RegisterRequest
	if err := s.decode(in, &req); err != nil {
		return nil, err
	}
	id, err := s.accounts.Register(ctx, req.Email, req.Password, req.DisplayName)
	if err != nil {
		return nil, toStatus("register", err)
	}
	return structOf(convert.UserView{ID: id.ID, Email: id.Email, DisplayName: id.DisplayName})
}

// SignIn authenticates with the identity provider and returns the session token.
// The session itself settles asynchronously; see WaitForProfile.
func (s *Server) SignIn(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req convert.SignInRequest
	if err := s.decode(in, &req); err != nil {
		return nil, err
	}
	if err := s.engine.SignIn(ctx, req.Email, req.Password); err != nil {
		return nil, toStatus("sign in", err)
	}
	return structOf(convert.ToTokenView(s.accounts.Token()))
}

// Resume restores the session of the bearer token in the request metadata.
func (s *Server) Resume(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	tok, err := bearerTokenFromMD(ctx)
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, "no auth")
	}
	if err := s.accounts.Resume(ctx, tok); err != nil {
		return nil, toStatus("resume", err)
	}
	return &emptypb.Empty{}, nil
}

// SignOut ends the provider session. It never fails.
func (s *Server) SignOut(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	s.engine.SignOut(ctx)
	return &emptypb.Empty{}, nil
}

// GetSession returns the current session view.
func (s *Server) GetSession(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	return structOf(convert.ToSessionView(s.engine.Snapshot()))
}

// WaitForProfile blocks until the profile is ready or the duration elapses.
func (s *Server) WaitForProfile(ctx context.Context, in *durationpb.Duration) (*wrapperspb.BoolValue, error) {
	if err := in.CheckValid(); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "bad duration: %v", err)
	}
	d := in.AsDuration()
	if d < 0 {
		return nil, status.Error(codes.InvalidArgument, "negative duration")
	}
	if d > MaxWait {
		d = MaxWait
	}
	return wrapperspb.Bool(s.engine.WaitForProfile(ctx, d)), nil
}

// Watch streams session views, starting with the current one.
func (s *Server) Watch(_ *emptypb.Empty, stream grpc.ServerStream) error {
	ch, stop := s.engine.Watch()
	defer stop()
	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case snap, ok := <-ch:
			if !ok {
				return status.Error(codes.Unavailable, "session engine stopped")
			}
			msg, err := structOf(convert.ToSessionView(snap))
			if err != nil {
				return err
			}
			if err := stream.SendMsg(msg); err != nil {
				return err
			}
		}
	}
}

func (s *Server) decode(in *structpb.Struct, dst any) error {
	if err := convert.FromStruct(in, dst); err != nil {
		return status.Errorf(codes.InvalidArgument, "bad request: %v", err)
	}
	if err := s.validate.Struct(dst); err != nil {
		return status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}
	return nil
}

func structOf(v any) (*structpb.Struct, error) {
	st, err := convert.ToStruct(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode: %v", err)
	}
	return st, nil
}

// toStatus maps domain errors onto gRPC codes.
func toStatus(op string, err error) error {
	switch {
	case errors.Is(err, errs.ErrAuthentication):
		return status.Error(codes.Unauthenticated, "bad credentials")
	case errors.Is(err, errs.ErrAlreadyExists):
		return status.Error(codes.AlreadyExists, "account exists")
	case errors.Is(err, errs.ErrInvalidIdentity):
		return status.Error(codes.InvalidArgument, "invalid email")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	default:
		return status.Error(codes.Internal, fmt.Sprintf("%s: %v", op, err))
	}
}

func bearerTokenFromMD(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", errors.New("no metadata")
	}
	for _, v := range md.Get("authorization") {
		v = strings.TrimSpace(v)
		if len(v) >= 7 && strings.EqualFold(v[:7], "bearer ") {
			t := strings.TrimSpace(v[7:])
			if t != "" {
				return t, nil
			}
		}
	}
	return "", errors.New("no bearer token")
}

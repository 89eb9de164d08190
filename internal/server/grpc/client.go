package grpcserver

import (
	"context"
	"fmt"
	"time"

	"github.com/and161185/identity-keeper/internal/convert"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/durationpb"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Client is a typed client of identitykeeper.v1.Session.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(cc grpc.ClientConnInterface) *Client { return &Client{cc: cc} }

// Register creates an account.
func (c *Client) Register(ctx context.Context, req convert.RegisterRequest) (convert.UserView, error) {
	var out convert.UserView
	err := c.invokeStruct(ctx, MethodRegister, req, &out)
	return out, err
}

// SignIn signs in and returns the session token.
func (c *Client) SignIn(ctx context.Context, req convert.SignInRequest) (convert.TokenView, error) {
	var out convert.TokenView
	err := c.invokeStruct(ctx, MethodSignIn, req, &out)
	return out, err
}

// Resume restores the session of token on the server.
func (c *Client) Resume(ctx context.Context, token string) error {
	ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token)
	return c.cc.Invoke(ctx, MethodResume, &emptypb.Empty{}, &emptypb.Empty{})
}

// SignOut ends the server session.
func (c *Client) SignOut(ctx context.Context) error {
	return c.cc.Invoke(ctx, MethodSignOut, &emptypb.Empty{}, &emptypb.Empty{})
}

// GetSession fetches the current session view.
func (c *Client) GetSession(ctx context.Context) (convert.SessionView, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, MethodGetSession, &emptypb.Empty{}, out); err != nil {
		return convert.SessionView{}, err
	}
	var v convert.SessionView
	err := convert.FromStruct(out, &v)
	return v, err
}

// WaitForProfile asks the server to wait up to maxWait for a ready profile.
func (c *Client) WaitForProfile(ctx context.Context, maxWait time.Duration) (bool, error) {
	out := new(wrapperspb.BoolValue)
	if err := c.cc.Invoke(ctx, MethodWaitForProfile, durationpb.New(maxWait), out); err != nil {
		return false, err
	}
	return out.GetValue(), nil
}

// Watch calls fn for every published session view until ctx is done or fn
// returns false.
func (c *Client) Watch(ctx context.Context, fn func(convert.SessionView) bool) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := c.cc.NewStream(ctx, &SessionServiceDesc.Streams[0], MethodWatch)
	if err != nil {
		return err
	}
	if err := stream.SendMsg(&emptypb.Empty{}); err != nil {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}
	for {
		msg := new(structpb.Struct)
		if err := stream.RecvMsg(msg); err != nil {
			return err
		}
		var v convert.SessionView
		if err := convert.FromStruct(msg, &v); err != nil {
			return fmt.Errorf("decode session: %w", err)
		}
		if !fn(v) {
			return nil
		}
	}
}

func (c *Client) invokeStruct(ctx context.Context, method string, req, dst any) error {
	in, err := convert.ToStruct(req)
	if err != nil {
		return err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out); err != nil {
		return err
	}
	return convert.FromStruct(out, dst)
}

package grpcserver

import (
	"context"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
)

// Runner serves a grpc.Server on Addr under a supervisor.
type Runner struct {
	Server *grpc.Server
	Addr   string
	Log    *zap.Logger
}

// Serve listens until ctx is done, then stops gracefully (forcefully after 5s).
func (r *Runner) Serve(ctx context.Context) error {
	lis, err := net.Listen("tcp", r.Addr)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		r.Log.Info("grpc listening", zap.String("addr", r.Addr))
		errCh <- r.Server.Serve(lis)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	done := make(chan struct{})
	go func() {
		r.Server.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		r.Server.Stop()
	}
	return ctx.Err()
}

func (r *Runner) String() string { return "grpc " + r.Addr }

package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Service runs an http.Server under a supervisor.
type Service struct {
	Server *http.Server
	Log    *zap.Logger
}

// Serve listens until ctx is done, then shuts down gracefully.
func (s *Service) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.Log.Info("http listening", zap.String("addr", s.Server.Addr))
		errCh <- s.Server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return ctx.Err()
}

func (s *Service) String() string { return "http " + s.Server.Addr }

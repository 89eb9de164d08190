// Command ik-server runs the session engine and exposes it over gRPC and HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/thejerf/suture/v4"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/and161185/identity-keeper/internal/config"
	"github.com/and161185/identity-keeper/internal/migrate"
	"github.com/and161185/identity-keeper/internal/repository"
	"github.com/and161185/identity-keeper/internal/repository/memory"
	"github.com/and161185/identity-keeper/internal/repository/postgres"
	"github.com/and161185/identity-keeper/internal/roles"
	grpcserver "github.com/and161185/identity-keeper/internal/server/grpc"
	httpserver "github.com/and161185/identity-keeper/internal/server/http"
	"github.com/and161185/identity-keeper/internal/service"
	"github.com/and161185/identity-keeper/internal/session"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// main loads configuration, wires stores, provider and engine, and supervises the servers.
func main() {
	cfg, err := config.Load()
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(2)
	}

	// Flags override the environment
	flag.StringVar(&cfg.GRPCAddr, "addr", cfg.GRPCAddr, "gRPC listen address")
	flag.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP listen address (empty disables)")
	flag.StringVar(&cfg.DatabaseDSN, "dsn", cfg.DatabaseDSN, "PostgreSQL DSN (empty: in-memory stores)")
	flag.StringVar(&cfg.JWTKey, "jwt-key", cfg.JWTKey, "HS256 signing key (required)")
	flag.DurationVar(&cfg.AccessTTL, "access-ttl", cfg.AccessTTL, "session token TTL")
	flag.DurationVar(&cfg.FlickerDelay, "flicker-delay", cfg.FlickerDelay, "delay before checking is displayed")
	flag.DurationVar(&cfg.ReconcileTimeout, "reconcile-timeout", cfg.ReconcileTimeout, "profile sync timeout (0: none)")
	flag.StringVar(&cfg.TokenFile, "token-file", cfg.TokenFile, "session token file (default: user config dir)")
	flag.StringVar(&cfg.TLSCert, "tls-cert", cfg.TLSCert, "TLS certificate (PEM)")
	flag.StringVar(&cfg.TLSKey, "tls-key", cfg.TLSKey, "TLS private key (PEM)")
	flag.BoolVar(&cfg.Dev, "dev", cfg.Dev, "enable server reflection (dev only)")
	flag.Parse()

	logger, _ := zap.NewProduction()
	if cfg.Dev {
		logger, _ = zap.NewDevelopment()
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.GRPCAddr),
	)

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	users, profiles, closeDB := openStores(ctx, cfg, logger)
	defer closeDB()

	// Provider, synchronizer, engine
	tokenPath := cfg.TokenFile
	if tokenPath == "" {
		tokenPath = service.DefaultTokenPath()
	}
	identity := service.NewIdentityService(users, []byte(cfg.JWTKey), cfg.AccessTTL,
		service.WithTokenFile(&service.TokenFile{Path: tokenPath}),
		service.WithIdentityLogger(logger.Named("identity")),
	)
	if err := identity.ResumeFromFile(ctx); err != nil {
		logger.Warn("saved session not resumed", zap.Error(err))
	}

	admins := roles.NewAllowList(cfg.AdminEmails...)
	logger.Info("admin allow-list loaded", zap.Int("entries", admins.Len()))
	syncer := service.NewProfileSynchronizer(profiles, admins, nil)

	engine := session.New(identity, syncer,
		session.WithLogger(logger.Named("session")),
		session.WithFlickerDelay(cfg.FlickerDelay),
		session.WithReconcileTimeout(cfg.ReconcileTimeout),
	)

	sup := suture.New("ik-server", suture.Spec{
		EventHook: func(e suture.Event) { logger.Warn("supervisor", zap.String("event", e.String())) },
	})
	sup.Add(engine)
	sup.Add(&grpcserver.Runner{Server: newGRPCServer(cfg, logger, engine, identity), Addr: cfg.GRPCAddr, Log: logger})
	if cfg.HTTPAddr != "" {
		sup.Add(&httpserver.Service{
			Server: &http.Server{
				Addr:              cfg.HTTPAddr,
				Handler:           httpserver.NewRouter(engine, identity, logger.Named("http")),
				ReadHeaderTimeout: 5 * time.Second,
			},
			Log: logger,
		})
	}

	if err := sup.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("supervisor stopped", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func openStores(ctx context.Context, cfg config.Config, logger *zap.Logger) (repository.UserRepository, repository.ProfileRepository, func()) {
	if cfg.DatabaseDSN == "" {
		logger.Warn("no database configured, using in-memory stores")
		return memory.NewUserRepo(nil), memory.NewProfileRepo(nil), func() {}
	}
	if err := migrate.Up(ctx, cfg.DatabaseDSN, logger.Named("migrate")); err != nil {
		logger.Fatal("migrate up", zap.Error(err))
	}
	db, err := postgres.New(ctx, cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("postgres", zap.Error(err))
	}
	return postgres.NewUserRepo(db), postgres.NewProfileRepo(db), db.Close
}

func newGRPCServer(cfg config.Config, logger *zap.Logger, engine *session.Engine, identity *service.IdentityService) *grpc.Server {
	opts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			grpcserver.RecoverUnary(logger),
			grpcserver.LoggingUnary(logger),
		),
		grpc.ChainStreamInterceptor(
			grpcserver.RecoverStream(logger),
			grpcserver.LoggingStream(logger),
		),
	}
	if cfg.TLSCert != "" {
		creds, err := credentials.NewServerTLSFromFile(cfg.TLSCert, cfg.TLSKey)
		if err != nil {
			logger.Fatal("failed to load TLS cert/key", zap.Error(err))
		}
		opts = append(opts, grpc.Creds(creds))
	}
	s := grpc.NewServer(opts...)
	grpcserver.RegisterSessionServer(s, grpcserver.New(engine, identity))

	// Health & reflection (dev)
	hs := health.NewServer()
	hs.SetServingStatus(grpcserver.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)
	if cfg.Dev {
		reflection.Register(s)
	}
	return s
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Overland-East-Bay/trip-tracker-api/internal/adapters/httpapi"
	memidempotency "github.com/Overland-East-Bay/trip-tracker-api/internal/adapters/memory/idempotency"
	memtriprepo "github.com/Overland-East-Bay/trip-tracker-api/internal/adapters/memory/triprepo"
	memuserrepo "github.com/Overland-East-Bay/trip-tracker-api/internal/adapters/memory/userrepo"
	"github.com/Overland-East-Bay/trip-tracker-api/internal/adapters/postgres"
	pgidempotency "github.com/Overland-East-Bay/trip-tracker-api/internal/adapters/postgres/idempotency"
	pgtriprepo "github.com/Overland-East-Bay/trip-tracker-api/internal/adapters/postgres/triprepo"
	pguserrepo "github.com/Overland-East-Bay/trip-tracker-api/internal/adapters/postgres/userrepo"
	"github.com/Overland-East-Bay/trip-tracker-api/internal/adapters/redis"
	"github.com/Overland-East-Bay/trip-tracker-api/internal/adapters/redis/tripcache"
	"github.com/Overland-East-Bay/trip-tracker-api/internal/app/trips"
	"github.com/Overland-East-Bay/trip-tracker-api/internal/app/users"
	"github.com/Overland-East-Bay/trip-tracker-api/internal/platform/auth/jwtverifier"
	platformclock "github.com/Overland-East-Bay/trip-tracker-api/internal/platform/clock"
	"github.com/Overland-East-Bay/trip-tracker-api/internal/platform/config"
	"github.com/Overland-East-Bay/trip-tracker-api/internal/platform/logging"
	idempotencyport "github.com/Overland-East-Bay/trip-tracker-api/internal/ports/out/idempotency"
	triprepoport "github.com/Overland-East-Bay/trip-tracker-api/internal/ports/out/triprepo"
	userrepoport "github.com/Overland-East-Bay/trip-tracker-api/internal/ports/out/userrepo"
)

type serveFlags struct {
	port    string
	migrate bool
}

func addServeFlags(cmd *cobra.Command, sf *serveFlags) {
	cmd.Flags().StringVar(&sf.port, "port", "", "listen port override (default $PORT or 8080)")
	cmd.Flags().BoolVar(&sf.migrate, "migrate", false, "apply database migrations before serving (postgres only)")
}

func newServeCmd(rf *rootFlags) *cobra.Command {
	var sf serveFlags
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, *rf, sf)
		},
	}
	addServeFlags(cmd, &sf)
	return cmd
}

func loadConfig(rf rootFlags) (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(rf.envFile)
	if err != nil {
		return config.Config{}, nil, err
	}
	if rf.logLevel != "" {
		cfg.LogLevel = rf.logLevel
	}
	if rf.logFormat != "" {
		cfg.LogFormat = rf.logFormat
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, log, nil
}

func runServe(cmd *cobra.Command, rf rootFlags, sf serveFlags) error {
	cfg, log, err := loadConfig(rf)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	if sf.port != "" {
		cfg.Port = sf.port
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Auth configuration:
	// - Production: require JWT_* env vars and enforce bearer auth
	// - Local dev: set AUTH_MODE=dev to bypass JWT verification and use X-Debug-Subject
	var authMW func(http.Handler) http.Handler
	switch cfg.AuthMode {
	case config.AuthModeDev:
		log.Warn("dev auth enabled; requests are trusted via X-Debug-Subject", zap.String("defaultSubject", cfg.DevSubject))
		authMW = httpapi.NewDevAuthMiddleware(cfg.DevSubject)
	default:
		authMW = httpapi.NewAuthMiddleware(jwtverifier.New(cfg.JWT))
	}

	clk := platformclock.NewSystemClock()

	var (
		userRepo  userrepoport.Repository
		tripRepo  triprepoport.Repository
		idemStore idempotencyport.Store
	)
	switch cfg.StorageBackend {
	case config.StoragePostgres:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, postgres.PoolOptions{MaxConns: cfg.DBMaxConns})
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer pool.Close()
		if sf.migrate {
			applied, err := postgres.Migrate(ctx, pool)
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			log.Info("migrations applied", zap.Strings("versions", applied))
		}
		userRepo = pguserrepo.NewRepo(pool, cfg.SubjectIssuer())
		tripRepo = pgtriprepo.NewRepo(pool)
		store := pgidempotency.NewStore(pool, cfg.SubjectIssuer(), clk).WithRetention(cfg.IdempotencyRetention)
		if cfg.IdempotencyRetention > 0 {
			go pruneIdempotencyKeys(ctx, store, idempotencyPruneInterval, log)
		}
		idemStore = store
	default:
		userRepo = memuserrepo.NewRepo()
		tripRepo = memtriprepo.NewRepo()
		idemStore = memidempotency.NewStoreWithRetention(cfg.IdempotencyRetention, clk)
	}

	if cfg.Redis.Addr != "" {
		client, err := redis.NewClient(ctx, redis.Options{
			Addr:        cfg.Redis.Addr,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			DialTimeout: 2 * time.Second,
		})
		if err != nil {
			return err
		}
		defer func() { _ = client.Close() }()
		tripRepo = tripcache.New(tripRepo, client, cfg.TripCacheTTL, log)
		log.Info("trip cache enabled", zap.String("addr", cfg.Redis.Addr), zap.Duration("ttl", cfg.TripCacheTTL))
	}

	usersSvc := users.NewService(userRepo, clk, log)
	tripsSvc := trips.NewService(tripRepo, userRepo, clk, log)
	api := httpapi.NewServer(usersSvc, tripsSvc, idemStore, clk, log)

	handler := httpapi.NewRouter(api, httpapi.RouterOptions{
		AuthMiddleware:     authMW,
		Logger:             log,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("api listening",
			zap.String("addr", srv.Addr),
			zap.String("storage", cfg.StorageBackend),
			zap.String("auth", cfg.AuthMode),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// expiredPruner removes idempotency records past their retention window.
type expiredPruner interface {
	PruneExpired(ctx context.Context) (int64, error)
}

// idempotencyPruneInterval is how often serve prunes expired idempotency rows.
const idempotencyPruneInterval = time.Hour

// pruneIdempotencyKeys runs PruneExpired every interval until ctx ends.
func pruneIdempotencyKeys(ctx context.Context, store expiredPruner, interval time.Duration, log *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.PruneExpired(ctx)
			if err != nil {
				log.Warn("idempotency prune failed", zap.Error(err))
				continue
			}
			if n > 0 {
				log.Debug("idempotency keys pruned", zap.Int64("rows", n))
			}
		}
	}
}

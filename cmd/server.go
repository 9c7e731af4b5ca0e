package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hellofresh/health-go/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/yakoovad/scrumboard/internal/api"
	"github.com/yakoovad/scrumboard/internal/auth"
	"github.com/yakoovad/scrumboard/internal/config"
	"github.com/yakoovad/scrumboard/internal/db"
	"github.com/yakoovad/scrumboard/internal/metrics"
	"github.com/yakoovad/scrumboard/internal/repository"
	"github.com/yakoovad/scrumboard/internal/service"
	"github.com/yakoovad/scrumboard/pkg/logger"
	"go.uber.org/zap"
)

const (
	version         = "v0.1.0"
	gracefulTimeout = 10 * time.Second
)

// storage is the set of repositories behind one backend.
type storage struct {
	tx         db.Transactor
	users      repository.UserRepository
	projects   repository.ProjectRepository
	members    repository.MemberRepository
	queue      repository.QueueRepository
	iterations repository.IterationRepository
	tasks      repository.TaskRepository

	checks []health.Config
	close  func()
}

func newServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			l, err := logger.NewLogger(cfg.LogLevel)
			if err != nil {
				return err
			}
			defer l.Sync()

			return runServer(cmd.Context(), cfg, l)
		},
	}
}

func runServer(ctx context.Context, cfg *config.Config, l *zap.Logger) error {
	l.Info("starting application", zap.String("storage", cfg.StorageDriver), zap.Bool("guarded_writes", cfg.GuardedWrites))

	auth.TokenSecretKey = cfg.Auth.Secret

	store, err := openStorage(ctx, cfg, l)
	if err != nil {
		return err
	}
	defer store.close()

	met, err := metrics.NewMetrics()
	if err != nil {
		return errors.Wrap(err, "init metrics")
	}

	checker, err := api.NewHealthChecker(version, store.checks...)
	if err != nil {
		return err
	}

	authService := service.NewAuthService().
		WithUserRepo(store.users).
		WithTokenTTL(cfg.Auth.TokenTTL).
		WithBcryptCost(cfg.Auth.BcryptCost)
	projects := service.NewProjectService(store.tx).
		WithUserRepo(store.users).
		WithProjectRepo(store.projects).
		WithMemberRepo(store.members).
		WithQueueRepo(store.queue).
		WithIterationRepo(store.iterations).
		WithTaskRepo(store.tasks).
		WithMetrics(met).
		WithGuardedWrites(cfg.GuardedWrites)
	iterations := service.NewIterationService(store.tx).
		WithProjectRepo(store.projects).
		WithMemberRepo(store.members).
		WithQueueRepo(store.queue).
		WithIterationRepo(store.iterations).
		WithTaskRepo(store.tasks).
		WithGuardedWrites(cfg.GuardedWrites)
	tasks := service.NewTaskService(store.tx).
		WithProjectRepo(store.projects).
		WithIterationRepo(store.iterations).
		WithTaskRepo(store.tasks).
		WithMetrics(met).
		WithGuardedWrites(cfg.GuardedWrites)

	e := echo.New()
	e.HideBanner = true

	api.NewHandler(l).
		WithHealthChecker(checker).
		WithMetrics(met).
		WithAuthService(authService).
		WithProjectService(projects).
		WithIterationService(iterations).
		WithTaskService(tasks).
		RegisterRoutes(e)

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		l.Info("server starting", zap.String("addr", cfg.HTTPAddr))
		if err := e.Start(cfg.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err = <-errCh:
		if err != nil {
			return errors.Wrap(err, "start server")
		}
		return nil
	case <-sigCtx.Done():
	}

	l.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), gracefulTimeout)
	defer cancel()

	return e.Shutdown(shutdownCtx)
}

func openStorage(ctx context.Context, cfg *config.Config, l *zap.Logger) (*storage, error) {
	switch cfg.StorageDriver {
	case config.StorageDriverMemory:
		m, err := repository.NewMemDB()
		if err != nil {
			return nil, errors.Wrap(err, "init memdb")
		}

		l.Info("using in-memory storage")
		return &storage{
			tx:         db.NewMemdbTransactor(m.MemDB),
			users:      repository.NewMemdbUserRepository(m),
			projects:   repository.NewMemdbProjectRepository(m),
			members:    repository.NewMemdbMemberRepository(m),
			queue:      repository.NewMemdbQueueRepository(m),
			iterations: repository.NewMemdbIterationRepository(m),
			tasks:      repository.NewMemdbTaskRepository(m),
			close:      func() {},
		}, nil
	case config.StorageDriverPostgres:
		if cfg.Postgres.AutoMigrate {
			if err := db.Migrate(cfg.Postgres.DSN); err != nil {
				return nil, err
			}
			l.Info("migrations applied")
		}

		pool, err := pgxpool.New(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, errors.Wrap(err, "connect to database")
		}
		if err = pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, errors.Wrap(err, "ping database")
		}

		l.Info("database connection established")
		return &storage{
			tx:         db.NewPgxTransactor(pool),
			users:      repository.NewPgxUserRepository(pool),
			projects:   repository.NewPgxProjectRepository(pool),
			members:    repository.NewPgxMemberRepository(pool),
			queue:      repository.NewPgxQueueRepository(pool),
			iterations: repository.NewPgxIterationRepository(pool),
			tasks:      repository.NewPgxTaskRepository(pool),
			checks: []health.Config{{
				Name:    "postgres",
				Timeout: 2 * time.Second,
				Check:   func(ctx context.Context) error { return pool.Ping(ctx) },
			}},
			close: pool.Close,
		}, nil
	}

	return nil, errors.Wrap(config.ErrUnknownStorageDriver, cfg.StorageDriver)
}

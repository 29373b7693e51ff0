package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go"

	"github.com/qrave1/TypeRace/internal/application/config"
	"github.com/qrave1/TypeRace/internal/application/constant"
	"github.com/qrave1/TypeRace/internal/application/metric"
	"github.com/qrave1/TypeRace/internal/domain"
	"github.com/qrave1/TypeRace/internal/infra/adapters/file"
	"github.com/qrave1/TypeRace/internal/infra/adapters/memory"
	"github.com/qrave1/TypeRace/internal/infra/adapters/natskv"
	"github.com/qrave1/TypeRace/internal/infra/adapters/postgres"
	"github.com/qrave1/TypeRace/internal/infra/adapters/postgres/repository"
	"github.com/qrave1/TypeRace/internal/infra/ports/http/handlers"
	"github.com/qrave1/TypeRace/internal/infra/ports/http/server"
	"github.com/qrave1/TypeRace/internal/usecase"
)

func runApp() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.New(envFiles...)
	if err != nil {
		slog.Error("parse config", slog.Any(constant.Error, err))
		os.Exit(1)
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}

	slog.SetDefault(
		slog.New(
			slog.NewJSONHandler(
				os.Stdout,
				&slog.HandlerOptions{Level: level},
			),
		),
	)

	slog.Info(
		"Running app",
		slog.Bool("debug", cfg.Debug),
		slog.String("store", cfg.StoreDriver),
		slog.String("content", cfg.ContentSource),
	)

	dbConn, err := postgres.NewPostgres(ctx, cfg.Postgres.DSN())
	if err != nil {
		slog.Error("connect to postgres", slog.Any(constant.Error, err))
		os.Exit(1)
	}
	defer dbConn.Close()

	roomRepo, roomsCheck, err := newRoomRepository(ctx, cfg)
	if err != nil {
		slog.Error("open room store", slog.Any(constant.Error, err))
		os.Exit(1)
	}
	defer func() {
		if err := roomRepo.Close(); err != nil {
			slog.Error("close room store", slog.Any(constant.Error, err))
		}
	}()

	contentProvider, err := newContentProvider(cfg, dbConn)
	if err != nil {
		slog.Error("init content provider", slog.Any(constant.Error, err))
		os.Exit(1)
	}

	userRepo := repository.NewUserRepo(dbConn)
	wsConnRepo := memory.NewWSConnectionRepository()

	scheduler := usecase.NewScheduler(clockwork.NewRealClock())
	defer scheduler.Stop()

	userUsecase := usecase.NewUserUsecase([]byte(cfg.JWTSecret), userRepo)
	roomUsecase := usecase.NewRoomUsecase(cfg.Game, roomRepo, wsConnRepo, contentProvider, userRepo, scheduler)

	authHandler := handlers.NewAuthHandler(cfg, userUsecase)
	wsHandler := handlers.NewWebSocketHandler(cfg, roomUsecase, wsConnRepo)

	echoSrv := server.New(cfg, authHandler, wsHandler)

	metricsSrv := metric.NewServer(map[string]metric.HealthCheck{
		"postgres": dbConn.PingContext,
		"rooms":    roomsCheck,
	})

	echoSrvCh := make(chan error, 1)
	metricsSrvCh := make(chan error, 1)

	// Запускаем HTTP сервер
	go func() {
		echoSrvCh <- echoSrv.Start(":" + cfg.Port)
	}()

	// Запускаем сервер метрик
	go func() {
		metricsSrvCh <- metricsSrv.Start(":" + cfg.MetricPort)
	}()

	slog.Info("servers started", slog.String("port", cfg.Port), slog.String("metric_port", cfg.MetricPort))

	select {
	case <-ctx.Done():
		slog.Info("Shutting down servers due to context cancel")
	case err := <-echoSrvCh:
		slog.Error(
			"HTTP server failed",
			slog.Any(constant.Error, err),
		)
		os.Exit(1)
	case err := <-metricsSrvCh:
		slog.Error(
			"Metrics server failed",
			slog.Any(constant.Error, err),
		)
		os.Exit(1)
	}

	// Graceful shutdown
	timeoutCtx, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer timeoutCancel()

	if err := echoSrv.Shutdown(timeoutCtx); err != nil {
		slog.Error("Failed to gracefully shutdown HTTP server", slog.Any(constant.Error, err))
	}

	if err := metricsSrv.Shutdown(timeoutCtx); err != nil {
		slog.Error("Failed to gracefully shutdown metric server", slog.Any(constant.Error, err))
	}
}

func newRoomRepository(ctx context.Context, cfg *config.Config) (domain.RoomRepository, metric.HealthCheck, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		slog.Warn("room store is in-memory, rooms are not shared between instances")

		return memory.NewRoomRepository(), func(context.Context) error { return nil }, nil
	case config.StoreDriverNATS:
		nc, err := natskv.Connect(cfg.NATS)
		if err != nil {
			return nil, nil, err
		}

		repo, err := natskv.NewRoomRepository(ctx, nc, cfg.NATS.Bucket, cfg.Game.UpdateRetries)
		if err != nil {
			nc.Close()
			return nil, nil, err
		}

		check := func(context.Context) error {
			if status := nc.Status(); status != nats.CONNECTED {
				return fmt.Errorf("nats connection is %s", status)
			}

			return nil
		}

		return repo, check, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

func newContentProvider(cfg *config.Config, db *sqlx.DB) (domain.ContentProvider, error) {
	switch cfg.ContentSource {
	case config.ContentSourceFile:
		return file.NewParagraphProvider(cfg.ParagraphsFile)
	case config.ContentSourcePostgres:
		return repository.NewParagraphRepo(db), nil
	default:
		return nil, fmt.Errorf("unknown content source %q", cfg.ContentSource)
	}
}

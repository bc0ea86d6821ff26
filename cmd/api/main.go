package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/tuniwaste/exchange/internal/app"
	"github.com/tuniwaste/exchange/internal/auth"
	"github.com/tuniwaste/exchange/internal/clock"
	"github.com/tuniwaste/exchange/internal/config"
	"github.com/tuniwaste/exchange/internal/fanout"
	"github.com/tuniwaste/exchange/internal/files"
	"github.com/tuniwaste/exchange/internal/realtime"
	"github.com/tuniwaste/exchange/internal/storage/mongodb"
	"github.com/tuniwaste/exchange/internal/storage/postgres"
	transporthttp "github.com/tuniwaste/exchange/internal/transport/http"
	"github.com/tuniwaste/exchange/internal/view"
	"github.com/tuniwaste/exchange/migrations"
)

const (
	startupTimeout = 10 * time.Second
	cacheSize      = 4096
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "api: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		return err
	}
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	for _, w := range cfg.Warnings {
		logger.Warn(w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startupCtx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	pool, err := pgxpool.New(startupCtx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect to db: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(startupCtx); err != nil {
		return fmt.Errorf("db ping: %w", err)
	}
	applied, err := migrations.Apply(startupCtx, pool)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	logger.Info("migrations applied", "files", applied)

	repos := app.Repositories{
		Tx:            postgres.NewTransactor(pool),
		Users:         postgres.NewUserRepository(pool),
		Listings:      postgres.NewListingRepository(pool),
		Bids:          postgres.NewBidRepository(pool),
		Transactions:  postgres.NewTransactionRepository(pool),
		Threads:       postgres.NewThreadRepository(pool),
		Messages:      postgres.NewMessageRepository(pool),
		Notifications: postgres.NewNotificationRepository(pool),
	}
	clk := clock.NewSystem()

	directory, err := auth.NewDirectory(app.NewUserService(repos.Users), cacheSize)
	if err != nil {
		return fmt.Errorf("user directory: %w", err)
	}

	resolver, err := newResolver(startupCtx, cfg)
	if err != nil {
		return err
	}
	render := view.NewRenderer(resolver, directory, logger)

	hub := realtime.NewHub(logger)
	fanoutOpts := []fanout.Option{
		fanout.WithBuffer(cfg.FanoutBuffer),
		fanout.WithLogger(logger),
		fanout.WithClock(clk),
	}
	var history transporthttp.HistoryReader
	if cfg.MongoURI != "" {
		repo, disconnect, err := newHistory(startupCtx, cfg)
		if err != nil {
			logger.Warn("status history disabled", "error", err)
		} else {
			defer disconnect()
			history = repo
			fanoutOpts = append(fanoutOpts, fanout.WithHistory(repo))
		}
	}
	dispatcher := fanout.New(hub, render, fanoutOpts...)

	svcOpts := []app.Option{app.WithPublisher(dispatcher), app.WithLogger(logger)}
	listingSvc := app.NewListingService(repos, clk, svcOpts...)
	bidSvc := app.NewBidService(repos, clk, svcOpts...)
	txnSvc := app.NewTransactionService(repos, clk, svcOpts...)
	messagingSvc := app.NewMessagingService(repos, clk, svcOpts...)
	notificationSvc := app.NewNotificationService(repos, clk, svcOpts...)

	participants, err := realtime.NewParticipantCache(messagingSvc, cacheSize)
	if err != nil {
		return fmt.Errorf("participant cache: %w", err)
	}
	verifier := auth.NewVerifier(cfg.JWTSecret)
	ws := realtime.NewServer(hub, verifier, participants,
		realtime.WithAllowedOrigins(cfg.CORSOrigins),
		realtime.WithServerLogger(logger),
	)

	handler := transporthttp.NewRouter(transporthttp.RouterConfig{
		Listings:      listingSvc,
		Bids:          bidSvc,
		Transactions:  txnSvc,
		Messaging:     messagingSvc,
		Notifications: notificationSvc,
		Auth:          verifier,
		Users:         directory,
		Renderer:      render,
		Realtime:      ws,
		History:       history,
		Health:        pool,
		CORSOrigins:   cfg.CORSOrigins,
		Logger:        logger,
	})

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("api listening", "addr", cfg.Addr)
	err = serve(ctx, server, dispatcher, hub.Close, cfg.ShutdownTimeout, logger)
	logger.Info("server stopped", "dropped_events", dispatcher.Dropped())
	return err
}

type httpServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

type eventLoop interface {
	Run(ctx context.Context) error
}

// serve runs the HTTP server and the event loop until ctx is done. The
// event loop is stopped only after the server has shut down, so events
// published by requests still in flight are not dropped.
func serve(ctx context.Context, server httpServer, loop eventLoop, closeConns func(), timeout time.Duration, logger *slog.Logger) error {
	loopCtx, stopLoop := context.WithCancel(context.WithoutCancel(ctx))
	defer stopLoop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return loop.Run(loopCtx)
	})
	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received, stopping server")
		defer stopLoop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if closeConns != nil {
			closeConns()
		}
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})
	return g.Wait()
}

func newLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// newResolver prefers presigned Spaces URLs, then a static base URL. With
// neither, names are served as stored.
func newResolver(ctx context.Context, cfg config.Config) (files.Resolver, error) {
	switch {
	case cfg.Spaces.Enabled():
		s, err := files.NewSpaces(ctx, files.SpacesConfig{
			Key:    cfg.Spaces.Key,
			Secret: cfg.Spaces.Secret,
			Region: cfg.Spaces.Region,
			Bucket: cfg.Spaces.Bucket,
			Root:   cfg.Spaces.Root,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	case cfg.FilesBaseURL != "":
		return files.NewLocal(cfg.FilesBaseURL), nil
	default:
		return nil, nil
	}
}

func newHistory(ctx context.Context, cfg config.Config) (*mongodb.HistoryRepository, func(), error) {
	client, err := mongodb.Connect(ctx, cfg.MongoURI)
	if err != nil {
		return nil, nil, err
	}
	disconnect := func() {
		dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Disconnect(dctx)
	}
	repo := mongodb.NewHistoryRepository(client, cfg.MongoDatabase)
	if err := repo.EnsureIndexes(ctx); err != nil {
		disconnect()
		return nil, nil, err
	}
	return repo, disconnect, nil
}

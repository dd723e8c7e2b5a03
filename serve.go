package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/erikbos/tvloop/api"
	"github.com/erikbos/tvloop/catalog"
	"github.com/erikbos/tvloop/database"
	"github.com/erikbos/tvloop/mailbox"
	"github.com/erikbos/tvloop/muxnormalizer"
	"github.com/erikbos/tvloop/scheduler"
	"github.com/erikbos/tvloop/thumbnail"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the playback and admin API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context())
		},
	}
}

// openRepository opens and seeds the document store and play counters.
func (a *app) openRepository(ctx context.Context) (*database.DatabaseRepo, error) {
	repo, err := database.New(&a.config.Database, a.logger.Named("database"))
	if err != nil {
		return nil, err
	}
	if err := repo.Seed(ctx); err != nil {
		repo.Close()
		return nil, err
	}
	return repo, nil
}

func (a *app) newLibrary(repo database.Repository) *catalog.Library {
	return catalog.New(&catalog.Options{
		Repo:         repo,
		VideoDir:     a.config.Content.VideoDir(),
		ThumbnailDir: a.config.Content.ThumbnailDir(),
		Prober:       catalog.FFProbe{Command: a.config.FFProbe.Command},
		ScanInterval: a.config.Library.ScanInterval,
		Logger:       a.logger,
	})
}

func (a *app) serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	logger := a.logger
	c := a.config

	repo, err := a.openRepository(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := repo.Close(); err != nil {
			logger.Error("closing database", zap.Error(err))
		}
	}()
	repo.StartBackgroundJobs(ctx)

	if err := os.MkdirAll(c.State.Dir, 0o755); err != nil {
		return err
	}
	mb := mailbox.New(&mailbox.Options{Dir: c.State.Dir, Logger: logger})

	library := a.newLibrary(repo)
	library.Init(ctx)
	go library.Background(ctx)

	sched := scheduler.New(&scheduler.Options{
		Repo:            repo,
		PendingTTL:      c.Scheduler.PendingTTL,
		StickyWindow:    c.Scheduler.StickyWindow,
		Cooldown:        c.Scheduler.Cooldown,
		Jitter:          c.Scheduler.Jitter,
		FallbackChannel: c.Channels.Fallback,
		Logger:          logger,
	})

	thumbnails := thumbnail.New(&thumbnail.Options{
		Dir:      c.Content.ThumbnailDir(),
		CacheDir: c.Cache.Dir,
		Logger:   logger,
	})

	r := mux.NewRouter()
	api.New(&api.Options{
		Repo:            repo,
		Scheduler:       sched,
		Library:         library,
		Mailbox:         mb,
		Thumbnails:      thumbnails,
		VideoDir:        c.Content.VideoDir(),
		FallbackChannel: c.Channels.Fallback,
		Logger:          logger,
	}).RegisterHandlers(r)

	normalizer, err := muxnormalizer.New(r)
	if err != nil {
		return err
	}
	recovery := handlers.RecoveryHandler(
		handlers.RecoveryLogger(zap.NewStdLog(logger.Named("panic"))),
		handlers.PrintRecoveryStack(true))

	srv := &http.Server{
		Addr:              c.Listen.Address,
		Handler:           recovery(HttpLog(logger, normalizer.Middleware(r))),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving HTTP", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
		_ = srv.Close()
	}
	logger.Info("server stopped")
	return nil
}

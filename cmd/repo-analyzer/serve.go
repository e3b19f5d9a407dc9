package main

import (
	"context"
	"io"
	"os/signal"
	"syscall"

	"repo-analyzer/internal/app"
	"repo-analyzer/internal/database"
	"repo-analyzer/internal/queue"
	"repo-analyzer/internal/service"
	"repo-analyzer/internal/worker"

	"github.com/spf13/cobra"
)

func newServeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API with the background job and sync workers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), cmd.ErrOrStderr(), opts)
		},
	}
}

func runServe(parent context.Context, logOut io.Writer, opts *options) error {
	cfg, logger, err := opts.load(logOut)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		store service.SnapshotStore
		q     queue.Queue
	)
	if cfg.Database.Enabled {
		db, err := database.New(ctx, cfg.GetDSN())
		if err != nil {
			logger.Error().Err(err).Msg("Failed to connect to database")
			return err
		}
		defer db.Close()

		store = db
		q = queue.NewPostgresQueue(db.SQL())
		logger.Info().Msg("Snapshot store and job queue backed by PostgreSQL")
	} else {
		q = queue.NewMemoryQueue()
		logger.Info().Msg("Database disabled, using in-memory job queue without snapshots")
	}

	svc := newService(cfg, logger, store)

	jobWorker := worker.NewJobWorker(q, svc, logger.With().Str("component", "job_worker").Logger())
	jobWorker.SetPollInterval(cfg.Analysis.JobPoll)
	go func() {
		if err := jobWorker.Start(ctx); err != nil && ctx.Err() == nil {
			logger.Error().Err(err).Msg("Job worker stopped")
		}
	}()

	syncWorker := worker.NewSyncWorker(q, cfg.Analysis.SyncInterval, cfg.Analysis.Watch,
		logger.With().Str("component", "sync_worker").Logger())

	application, err := app.New(cfg, logger.With().Str("component", "http").Logger(), svc, q, syncWorker)
	if err != nil {
		return err
	}

	return application.Run(ctx)
}

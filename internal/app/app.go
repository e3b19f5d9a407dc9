package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"repo-analyzer/internal/config"
	"repo-analyzer/internal/models"
	"repo-analyzer/internal/queue"
	"repo-analyzer/internal/worker"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// AnalysisService is the part of the service layer the HTTP API uses
type AnalysisService interface {
	AnalyzeUser(ctx context.Context, username string) (*models.AnalysisSummary, error)
	GetUserProfile(ctx context.Context, username string) (*models.UserProfile, error)
	GetUserActivity(ctx context.Context, username string) ([]models.ActivityEvent, error)
	GetCommitActivity(ctx context.Context, owner, repo string) ([]models.CommitWeek, error)
	ListSnapshots(ctx context.Context, username string, limit int) ([]*models.Snapshot, error)
	Stats() models.ClientStats
}

type App struct {
	cfg     *config.Config
	log     zerolog.Logger
	service AnalysisService
	server  *http.Server
	queue   queue.Queue
	worker  *worker.SyncWorker
}

// New wires the router. syncWorker may be nil, in which case the watch
// endpoints are not registered.
func New(cfg *config.Config, log zerolog.Logger, svc AnalysisService, q queue.Queue, syncWorker *worker.SyncWorker) (*App, error) {
	if svc == nil || q == nil {
		return nil, fmt.Errorf("app requires a service and a queue")
	}

	app := &App{
		cfg:     cfg,
		log:     log,
		service: svc,
		queue:   q,
		worker:  syncWorker,
	}

	router := mux.NewRouter()
	app.initializeRouter(router)

	app.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return app, nil
}

// Handler returns the configured router
func (a *App) Handler() http.Handler {
	return a.server.Handler
}

// Run serves HTTP until ctx is cancelled, then shuts the server down
func (a *App) Run(ctx context.Context) error {
	if a.worker != nil {
		go a.worker.Start(ctx)
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.log.Error().Err(err).Msg("Failed to shutdown server gracefully")
		}
	}()

	a.log.Info().Msgf("Starting server on port %d", a.cfg.Server.Port)
	if err := a.server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func (a *App) Shutdown(ctx context.Context) error {
	return a.server.Shutdown(ctx)
}

// Package service runs repository analyses: it lists a user's repositories,
// enriches each one concurrently and folds the result with the analyzer.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"repo-analyzer/internal/analyzer"
	apperrors "repo-analyzer/internal/errors"
	"repo-analyzer/internal/models"
	"repo-analyzer/internal/worker"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Service handles the core business logic
type Service struct {
	github GitHubClient
	store  SnapshotStore
	pool   *worker.Pool
	logger *zerolog.Logger
	now    func() time.Time
}

// New creates a new service instance. store may be nil, in which case
// analyses are not persisted.
func New(githubClient GitHubClient, store SnapshotStore, pool *worker.Pool, logger *zerolog.Logger) *Service {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if pool == nil {
		pool = worker.NewPool(worker.DefaultWorkers, *logger)
	}
	return &Service{
		github: githubClient,
		store:  store,
		pool:   pool,
		logger: logger,
		now:    time.Now,
	}
}

// HasStore reports whether analyses are persisted
func (s *Service) HasStore() bool {
	return s.store != nil
}

// AnalyzeUser lists, enriches and aggregates every public repository of
// username. A failed listing returns ErrListingFailed; a user without
// repositories yields a summary with RepoCount 0.
func (s *Service) AnalyzeUser(ctx context.Context, username string) (*models.AnalysisSummary, error) {
	username, err := normalize(username)
	if err != nil {
		return nil, err
	}

	started := s.now()
	repos, err := s.github.GetUserRepos(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrListingFailed, err)
	}

	details := make([]models.RepoDetail, len(repos))
	errs := make([]error, len(repos))
	err = s.pool.Run(ctx, len(repos), func(ctx context.Context, i int) {
		details[i], errs[i] = s.enrich(ctx, username, repos[i])
	})
	if err == nil {
		err = errors.Join(errs...)
	}
	if err != nil {
		return nil, fmt.Errorf("enrich repositories of %s: %w", username, err)
	}

	summary := analyzer.Analyze(username, details, s.now())

	s.logger.Info().
		Str("username", username).
		Int("repos", summary.RepoCount).
		Int("degraded_fetches", summary.DegradedFetches).
		Dur("took", s.now().Sub(started)).
		Msg("Analysis completed")

	if s.store != nil {
		if _, err := s.store.SaveSnapshot(ctx, summary); err != nil {
			s.logger.Error().Err(err).Str("username", username).Msg("Failed to save snapshot")
		}
	}

	return summary, nil
}

// enrich fetches the four sub-resources of one repository concurrently.
// Each failure degrades only its own field; only cancellation of ctx is
// returned as an error.
func (s *Service) enrich(ctx context.Context, username string, repo models.RepoRecord) (models.RepoDetail, error) {
	owner := repo.Owner
	if owner == "" {
		owner = username
	}

	var (
		languages    models.Result[map[string]int]
		contributors models.Result[int]
		commits      models.Result[int]
		readme       models.Result[*string]
		g            errgroup.Group
	)
	g.Go(func() error {
		languages = outcome(s.github.GetRepoLanguages(ctx, owner, repo.Name))
		return ctx.Err()
	})
	g.Go(func() error {
		contributors = outcome(s.github.GetRepoContributors(ctx, owner, repo.Name))
		return ctx.Err()
	})
	g.Go(func() error {
		commits = outcome(s.github.GetRepoCommits(ctx, owner, repo.Name))
		return ctx.Err()
	})
	g.Go(func() error {
		readme = outcome(s.github.GetRepoReadme(ctx, owner, repo.Name))
		return ctx.Err()
	})
	if err := g.Wait(); err != nil {
		return models.RepoDetail{}, err
	}

	if languages.Value == nil {
		languages.Value = make(map[string]int)
	}

	detail := models.RepoDetail{
		RepoRecord:   repo,
		Languages:    languages.Value,
		Contributors: contributors.Value,
		Commits:      commits.Value,
		Readme:       readme.Value,
		TechStack:    analyzer.ExtractTechStack(derefOr(readme.Value)),
		Enrichment: models.Enrichment{
			Languages:    errText(languages.Err),
			Contributors: errText(contributors.Err),
			Commits:      errText(commits.Err),
			Readme:       errText(readme.Err),
		},
	}

	if n := detail.Enrichment.DegradedCount(); n > 0 {
		s.logger.Debug().
			Str("repo", owner+"/"+repo.Name).
			Int("degraded", n).
			Msg("Repository enrichment degraded")
	}
	return detail, nil
}

// GetUserProfile fetches a user's profile
func (s *Service) GetUserProfile(ctx context.Context, username string) (*models.UserProfile, error) {
	username, err := normalize(username)
	if err != nil {
		return nil, err
	}
	return s.github.GetUserInfo(ctx, username)
}

// GetUserActivity returns a user's recent public events. Failures yield an
// empty list together with the error.
func (s *Service) GetUserActivity(ctx context.Context, username string) ([]models.ActivityEvent, error) {
	username, err := normalize(username)
	if err != nil {
		return []models.ActivityEvent{}, err
	}
	events, err := s.github.GetUserActivity(ctx, username)
	if events == nil {
		events = []models.ActivityEvent{}
	}
	return events, err
}

// GetCommitActivity returns the weekly commit totals of one repository
func (s *Service) GetCommitActivity(ctx context.Context, owner, repo string) ([]models.CommitWeek, error) {
	owner, err := normalize(owner)
	if err != nil {
		return []models.CommitWeek{}, err
	}
	repo, err = normalize(repo)
	if err != nil {
		return []models.CommitWeek{}, err
	}
	weeks, err := s.github.GetCommitActivity(ctx, owner, repo)
	if weeks == nil {
		weeks = []models.CommitWeek{}
	}
	return weeks, err
}

// ListSnapshots returns a user's stored analyses, newest first
func (s *Service) ListSnapshots(ctx context.Context, username string, limit int) ([]*models.Snapshot, error) {
	if s.store == nil {
		return nil, apperrors.ErrStoreDisabled
	}
	username, err := normalize(username)
	if err != nil {
		return nil, err
	}
	return s.store.ListSnapshots(ctx, username, limit)
}

// LatestSnapshot returns the most recent stored analysis of a user
func (s *Service) LatestSnapshot(ctx context.Context, username string) (*models.Snapshot, error) {
	if s.store == nil {
		return nil, apperrors.ErrStoreDisabled
	}
	username, err := normalize(username)
	if err != nil {
		return nil, err
	}
	snapshot, err := s.store.LatestSnapshot(ctx, username)
	if err != nil {
		return nil, err
	}
	if snapshot == nil {
		return nil, fmt.Errorf("no snapshot for %s: %w", username, apperrors.ErrNotFound)
	}
	return snapshot, nil
}

// Stats returns the client's request counter and rate-limit state
func (s *Service) Stats() models.ClientStats {
	return s.github.Stats()
}

func normalize(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.ContainsAny(name, "/ ") {
		return "", fmt.Errorf("invalid name %q: %w", name, apperrors.ErrInvalidInput)
	}
	return name, nil
}

func outcome[T any](v T, err error) models.Result[T] {
	if err != nil {
		return models.Degrade(v, err)
	}
	return models.Ok(v)
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func derefOr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

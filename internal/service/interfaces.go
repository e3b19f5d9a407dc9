package service

import (
	"context"

	"repo-analyzer/internal/models"
)

// GitHubClient defines the GitHub operations the service depends on.
// Sub-resource methods return a usable default alongside any error.
type GitHubClient interface {
	GetUserInfo(ctx context.Context, username string) (*models.UserProfile, error)
	GetUserRepos(ctx context.Context, username string) ([]models.RepoRecord, error)
	GetRepoLanguages(ctx context.Context, owner, repo string) (map[string]int, error)
	GetRepoContributors(ctx context.Context, owner, repo string) (int, error)
	GetRepoCommits(ctx context.Context, owner, repo string) (int, error)
	GetRepoReadme(ctx context.Context, owner, repo string) (*string, error)
	GetCommitActivity(ctx context.Context, owner, repo string) ([]models.CommitWeek, error)
	GetUserActivity(ctx context.Context, username string) ([]models.ActivityEvent, error)
	Stats() models.ClientStats
}

// SnapshotStore persists analysis summaries
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, summary *models.AnalysisSummary) (*models.Snapshot, error)
	ListSnapshots(ctx context.Context, username string, limit int) ([]*models.Snapshot, error)
	LatestSnapshot(ctx context.Context, username string) (*models.Snapshot, error)
}

package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	apperrors "repo-analyzer/internal/errors"
	"repo-analyzer/internal/models"
	"repo-analyzer/internal/worker"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type mockGitHubClient struct {
	mock.Mock
}

func (m *mockGitHubClient) GetUserInfo(ctx context.Context, username string) (*models.UserProfile, error) {
	args := m.Called(ctx, username)
	if p := args.Get(0); p != nil {
		return p.(*models.UserProfile), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockGitHubClient) GetUserRepos(ctx context.Context, username string) ([]models.RepoRecord, error) {
	args := m.Called(ctx, username)
	if r := args.Get(0); r != nil {
		return r.([]models.RepoRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockGitHubClient) GetRepoLanguages(ctx context.Context, owner, repo string) (map[string]int, error) {
	args := m.Called(ctx, owner, repo)
	return args.Get(0).(map[string]int), args.Error(1)
}

func (m *mockGitHubClient) GetRepoContributors(ctx context.Context, owner, repo string) (int, error) {
	args := m.Called(ctx, owner, repo)
	return args.Int(0), args.Error(1)
}

func (m *mockGitHubClient) GetRepoCommits(ctx context.Context, owner, repo string) (int, error) {
	args := m.Called(ctx, owner, repo)
	return args.Int(0), args.Error(1)
}

func (m *mockGitHubClient) GetRepoReadme(ctx context.Context, owner, repo string) (*string, error) {
	args := m.Called(ctx, owner, repo)
	if r := args.Get(0); r != nil {
		return r.(*string), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockGitHubClient) GetCommitActivity(ctx context.Context, owner, repo string) ([]models.CommitWeek, error) {
	args := m.Called(ctx, owner, repo)
	if w := args.Get(0); w != nil {
		return w.([]models.CommitWeek), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockGitHubClient) GetUserActivity(ctx context.Context, username string) ([]models.ActivityEvent, error) {
	args := m.Called(ctx, username)
	if e := args.Get(0); e != nil {
		return e.([]models.ActivityEvent), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockGitHubClient) Stats() models.ClientStats {
	return m.Called().Get(0).(models.ClientStats)
}

type memoryStore struct {
	mu        sync.Mutex
	snapshots []*models.Snapshot
	err       error
}

func (s *memoryStore) SaveSnapshot(_ context.Context, summary *models.AnalysisSummary) (*models.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	snapshot := &models.Snapshot{ID: int64(len(s.snapshots) + 1), Username: summary.Username, RepoCount: summary.RepoCount}
	s.snapshots = append(s.snapshots, snapshot)
	return snapshot, nil
}

func (s *memoryStore) ListSnapshots(_ context.Context, username string, _ int) ([]*models.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Snapshot, 0)
	for i := len(s.snapshots) - 1; i >= 0; i-- {
		if s.snapshots[i].Username == username {
			out = append(out, s.snapshots[i])
		}
	}
	return out, nil
}

func (s *memoryStore) LatestSnapshot(ctx context.Context, username string) (*models.Snapshot, error) {
	list, _ := s.ListSnapshots(ctx, username, 1)
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

func newTestService(client GitHubClient, store SnapshotStore) *Service {
	logger := zerolog.Nop()
	svc := New(client, store, worker.NewPool(3, logger), &logger)
	svc.now = func() time.Time { return testNow }
	return svc
}

func record(name, language string, stars int) models.RepoRecord {
	return models.RepoRecord{
		Name:       name,
		Owner:      "octocat",
		Language:   language,
		StarsCount: stars,
		CreatedAt:  testNow.AddDate(-1, 0, 0),
		UpdatedAt:  testNow.AddDate(0, 0, -5),
	}
}

func expectHealthyRepo(client *mockGitHubClient, name string, readme *string) {
	client.On("GetRepoLanguages", mock.Anything, "octocat", name).Return(map[string]int{"Go": 100}, nil)
	client.On("GetRepoContributors", mock.Anything, "octocat", name).Return(2, nil)
	client.On("GetRepoCommits", mock.Anything, "octocat", name).Return(10, nil)
	client.On("GetRepoReadme", mock.Anything, "octocat", name).Return(readme, nil)
}

func TestAnalyzeUser(t *testing.T) {
	ctx := context.Background()
	client := new(mockGitHubClient)
	store := &memoryStore{}
	svc := newTestService(client, store)

	readme := "Runs on Docker. docker compose up"
	client.On("GetUserRepos", mock.Anything, "octocat").Return([]models.RepoRecord{
		record("alpha", "Python", 10),
		record("beta", "Python", 5),
		record("gamma", "Go", 0),
	}, nil)
	expectHealthyRepo(client, "alpha", &readme)
	expectHealthyRepo(client, "beta", nil)
	expectHealthyRepo(client, "gamma", nil)

	summary, err := svc.AnalyzeUser(ctx, " octocat ")
	require.NoError(t, err)

	assert.Equal(t, "octocat", summary.Username)
	assert.Equal(t, 3, summary.RepoCount)
	assert.Equal(t, "Python", summary.MostUsedLanguage)
	assert.Equal(t, map[string]int{"Python": 2, "Go": 1}, summary.LanguageDistribution)
	assert.Equal(t, 15, summary.TotalStars)
	assert.InDelta(t, 5.0, summary.AvgStars, 1e-9)
	assert.Equal(t, 30, summary.TotalCommits)
	assert.Equal(t, 0, summary.DegradedFetches)
	assert.Equal(t, testNow, summary.GeneratedAt)

	// listing order is preserved regardless of completion order
	require.Len(t, summary.Repos, 3)
	assert.Equal(t, "alpha", summary.Repos[0].Name)
	assert.Equal(t, "gamma", summary.Repos[2].Name)
	assert.Equal(t, []string{"docker"}, summary.Repos[0].TechStack)
	assert.Equal(t, map[string]int{"docker": 1}, summary.TechStackDistribution)

	require.Len(t, store.snapshots, 1)
	assert.Equal(t, 3, store.snapshots[0].RepoCount)
	client.AssertExpectations(t)
}

func TestAnalyzeUserDegradedEnrichment(t *testing.T) {
	ctx := context.Background()
	client := new(mockGitHubClient)
	svc := newTestService(client, nil)

	boom := apperrors.NewGitHubStatusError("GetRepoCommits", "/repos/octocat/alpha/commits", 409, "Git Repository is empty.")
	client.On("GetUserRepos", mock.Anything, "octocat").Return([]models.RepoRecord{record("alpha", "Go", 1)}, nil)
	client.On("GetRepoLanguages", mock.Anything, "octocat", "alpha").Return(map[string]int{}, errors.New("timeout"))
	client.On("GetRepoContributors", mock.Anything, "octocat", "alpha").Return(4, nil)
	client.On("GetRepoCommits", mock.Anything, "octocat", "alpha").Return(0, boom)
	client.On("GetRepoReadme", mock.Anything, "octocat", "alpha").Return(nil,
		apperrors.NewGitHubStatusError("GetRepoReadme", "/repos/octocat/alpha/readme", 500, ""))

	summary, err := svc.AnalyzeUser(ctx, "octocat")
	require.NoError(t, err)

	require.Len(t, summary.Repos, 1)
	detail := summary.Repos[0]
	assert.Equal(t, 4, detail.Contributors)
	assert.Equal(t, 0, detail.Commits)
	assert.Empty(t, detail.Languages)
	assert.Nil(t, detail.Readme)
	assert.Equal(t, "timeout", detail.Enrichment.Languages)
	assert.Empty(t, detail.Enrichment.Contributors)
	assert.Contains(t, detail.Enrichment.Commits, "409")
	assert.NotEmpty(t, detail.Enrichment.Readme)
	assert.Equal(t, 3, summary.DegradedFetches)
}

func TestAnalyzeUserListingFailure(t *testing.T) {
	ctx := context.Background()
	client := new(mockGitHubClient)
	store := &memoryStore{}
	svc := newTestService(client, store)

	notFound := apperrors.NewGitHubStatusError("GetUserRepos", "/users/ghost/repos", 404, "Not Found")
	client.On("GetUserRepos", mock.Anything, "ghost").Return(nil, notFound)

	summary, err := svc.AnalyzeUser(ctx, "ghost")
	assert.Nil(t, summary)
	assert.True(t, errors.Is(err, apperrors.ErrListingFailed))
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	assert.Empty(t, store.snapshots)
	client.AssertNotCalled(t, "GetRepoLanguages", mock.Anything, mock.Anything, mock.Anything)
}

func TestAnalyzeUserWithoutRepositories(t *testing.T) {
	client := new(mockGitHubClient)
	svc := newTestService(client, nil)
	client.On("GetUserRepos", mock.Anything, "newbie").Return([]models.RepoRecord{}, nil)

	summary, err := svc.AnalyzeUser(context.Background(), "newbie")
	require.NoError(t, err)
	assert.Equal(t, 0, summary.RepoCount)
	assert.Equal(t, models.NoMostUsedLanguage, summary.MostUsedLanguage)
	assert.Zero(t, summary.AvgStars)
}

func TestAnalyzeUserInvalidName(t *testing.T) {
	svc := newTestService(new(mockGitHubClient), nil)

	for _, name := range []string{"", "   ", "a/b"} {
		_, err := svc.AnalyzeUser(context.Background(), name)
		assert.True(t, errors.Is(err, apperrors.ErrInvalidInput), "name %q", name)
	}
}

func TestAnalyzeUserSnapshotFailureIsNotFatal(t *testing.T) {
	client := new(mockGitHubClient)
	svc := newTestService(client, &memoryStore{err: apperrors.NewDatabaseError("SaveSnapshot", fmt.Errorf("down"))})
	client.On("GetUserRepos", mock.Anything, "octocat").Return([]models.RepoRecord{}, nil)

	summary, err := svc.AnalyzeUser(context.Background(), "octocat")
	require.NoError(t, err)
	assert.NotNil(t, summary)
}

func TestAnalyzeUserCancelled(t *testing.T) {
	client := new(mockGitHubClient)
	svc := newTestService(client, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	repos := make([]models.RepoRecord, 10)
	for i := range repos {
		repos[i] = record(fmt.Sprintf("r%d", i), "Go", i)
	}
	client.On("GetUserRepos", mock.Anything, "octocat").Return(repos, nil)
	client.On("GetRepoLanguages", mock.Anything, mock.Anything, mock.Anything).Return(map[string]int{}, context.Canceled).Maybe()
	client.On("GetRepoContributors", mock.Anything, mock.Anything, mock.Anything).Return(0, context.Canceled).Maybe()
	client.On("GetRepoCommits", mock.Anything, mock.Anything, mock.Anything).Return(0, context.Canceled).Maybe()
	client.On("GetRepoReadme", mock.Anything, mock.Anything, mock.Anything).Return(nil, context.Canceled).Maybe()

	summary, err := svc.AnalyzeUser(ctx, "octocat")
	assert.Nil(t, summary)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAnalyzeUserCancelledDuringEnrichment(t *testing.T) {
	client := new(mockGitHubClient)
	store := &memoryStore{}
	svc := newTestService(client, store)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client.On("GetUserRepos", mock.Anything, "octocat").Return([]models.RepoRecord{record("alpha", "Go", 1)}, nil)
	client.On("GetRepoLanguages", mock.Anything, "octocat", "alpha").
		Run(func(mock.Arguments) { cancel() }).
		Return(map[string]int{}, context.Canceled)
	client.On("GetRepoContributors", mock.Anything, "octocat", "alpha").Return(0, nil).Maybe()
	client.On("GetRepoCommits", mock.Anything, "octocat", "alpha").Return(0, nil).Maybe()
	client.On("GetRepoReadme", mock.Anything, "octocat", "alpha").Return(nil, nil).Maybe()

	summary, err := svc.AnalyzeUser(ctx, "octocat")
	assert.Nil(t, summary)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, store.snapshots)
}

func TestSnapshotsAndPassThroughs(t *testing.T) {
	ctx := context.Background()
	client := new(mockGitHubClient)

	t.Run("store disabled", func(t *testing.T) {
		svc := newTestService(client, nil)
		assert.False(t, svc.HasStore())
		_, err := svc.ListSnapshots(ctx, "octocat", 5)
		assert.ErrorIs(t, err, apperrors.ErrStoreDisabled)
		_, err = svc.LatestSnapshot(ctx, "octocat")
		assert.ErrorIs(t, err, apperrors.ErrStoreDisabled)
	})

	t.Run("latest snapshot missing", func(t *testing.T) {
		svc := newTestService(client, &memoryStore{})
		_, err := svc.LatestSnapshot(ctx, "octocat")
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})

	t.Run("activity failure yields empty list", func(t *testing.T) {
		svc := newTestService(client, nil)
		client.On("GetUserActivity", mock.Anything, "octocat").Return(nil, errors.New("boom")).Once()
		events, err := svc.GetUserActivity(ctx, "octocat")
		assert.Error(t, err)
		assert.NotNil(t, events)
		assert.Empty(t, events)
	})

	t.Run("commit activity", func(t *testing.T) {
		svc := newTestService(client, nil)
		weeks := []models.CommitWeek{{Week: testNow, Total: 3, Days: []int{0, 1, 2, 0, 0, 0, 0}}}
		client.On("GetCommitActivity", mock.Anything, "octocat", "alpha").Return(weeks, nil).Once()
		got, err := svc.GetCommitActivity(ctx, "octocat", "alpha")
		require.NoError(t, err)
		assert.Equal(t, weeks, got)
	})

	t.Run("stats", func(t *testing.T) {
		svc := newTestService(client, nil)
		stats := models.ClientStats{Requests: 12, Authenticated: true}
		client.On("Stats").Return(stats).Once()
		assert.Equal(t, stats, svc.Stats())
	})

	t.Run("profile", func(t *testing.T) {
		svc := newTestService(client, nil)
		client.On("GetUserInfo", mock.Anything, "octocat").Return(&models.UserProfile{Login: "octocat"}, nil).Once()
		profile, err := svc.GetUserProfile(ctx, "octocat")
		require.NoError(t, err)
		assert.Equal(t, "octocat", profile.Login)
	})
}

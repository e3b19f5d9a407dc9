package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	apperrors "repo-analyzer/internal/errors"
	"repo-analyzer/internal/models"

	gh "github.com/google/go-github/v62/github"
)

// GetUserInfo fetches a user's public profile
func (c *Client) GetUserInfo(ctx context.Context, username string) (*models.UserProfile, error) {
	path := fmt.Sprintf("/users/%s", url.PathEscape(username))
	resp, err := c.get(ctx, "GetUserInfo", path, nil)
	if err != nil {
		c.log.Error().Err(err).Str("username", username).Msg("Failed to fetch user profile")
		return nil, err
	}

	var user gh.User
	if err := resp.decode(&user); err != nil {
		return nil, apperrors.NewGitHubError("GetUserInfo", path, fmt.Errorf("decoding response: %w", err))
	}

	return &models.UserProfile{
		Login:       user.GetLogin(),
		Name:        user.GetName(),
		Bio:         user.GetBio(),
		Company:     user.GetCompany(),
		Location:    user.GetLocation(),
		Blog:        user.GetBlog(),
		PublicRepos: user.GetPublicRepos(),
		Followers:   user.GetFollowers(),
		Following:   user.GetFollowing(),
		AvatarURL:   user.GetAvatarURL(),
		URL:         user.GetHTMLURL(),
		CreatedAt:   user.GetCreatedAt().Time,
	}, nil
}

// GetUserRepos fetches every public repository of a user, most recently
// updated first. A nil slice with an error means the listing failed; a user
// without repositories yields an empty, non-nil slice.
func (c *Client) GetUserRepos(ctx context.Context, username string) ([]models.RepoRecord, error) {
	path := fmt.Sprintf("/users/%s/repos", url.PathEscape(username))
	query := url.Values{"sort": []string{"updated"}}

	repos := make([]models.RepoRecord, 0)
	err := paginate(ctx, c, "GetUserRepos", path, query, func(page []*gh.Repository) {
		for _, repo := range page {
			repos = append(repos, toRepoRecord(repo))
		}
	})
	if err != nil {
		c.log.Error().Err(err).Str("username", username).Msg("Failed to list repositories")
		return nil, err
	}

	c.log.Debug().Str("username", username).Int("repo_count", len(repos)).Msg("Listed repositories")
	return repos, nil
}

func toRepoRecord(repo *gh.Repository) models.RepoRecord {
	language := repo.GetLanguage()
	if language == "" {
		language = models.UnknownLanguage
	}
	license := repo.GetLicense().GetSPDXID()
	if license == "" {
		license = models.NoLicense
	}
	description := repo.GetDescription()
	if description == "" {
		description = models.NoDescription
	}

	return models.RepoRecord{
		Name:            repo.GetName(),
		FullName:        repo.GetFullName(),
		Owner:           repo.GetOwner().GetLogin(),
		Language:        language,
		StarsCount:      repo.GetStargazersCount(),
		ForksCount:      repo.GetForksCount(),
		WatchersCount:   repo.GetWatchersCount(),
		OpenIssuesCount: repo.GetOpenIssuesCount(),
		Size:            repo.GetSize(),
		CreatedAt:       repo.GetCreatedAt().Time,
		UpdatedAt:       repo.GetUpdatedAt().Time,
		License:         license,
		Fork:            repo.GetFork(),
		Archived:        repo.GetArchived(),
		DefaultBranch:   repo.GetDefaultBranch(),
		HasWiki:         repo.GetHasWiki(),
		HasPages:        repo.GetHasPages(),
		URL:             repo.GetHTMLURL(),
		Description:     description,
	}
}

func repoPath(owner, repo, suffix string) string {
	return fmt.Sprintf("/repos/%s/%s%s", url.PathEscape(owner), url.PathEscape(repo), suffix)
}

// GetRepoLanguages returns the language → bytes mapping. On failure the
// mapping is empty, never nil.
func (c *Client) GetRepoLanguages(ctx context.Context, owner, repo string) (map[string]int, error) {
	languages := make(map[string]int)
	path := repoPath(owner, repo, "/languages")

	resp, err := c.get(ctx, "GetRepoLanguages", path, nil)
	if err != nil {
		return languages, err
	}
	if err := resp.decode(&languages); err != nil {
		return make(map[string]int), apperrors.NewGitHubError("GetRepoLanguages", path, fmt.Errorf("decoding response: %w", err))
	}
	return languages, nil
}

// GetRepoContributors returns the number of contributors, 0 on failure
func (c *Client) GetRepoContributors(ctx context.Context, owner, repo string) (int, error) {
	count := 0
	err := paginate(ctx, c, "GetRepoContributors", repoPath(owner, repo, "/contributors"), nil, func(page []*gh.Contributor) {
		count += len(page)
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// GetRepoCommits counts commits made during the last 365 days, 0 on failure
func (c *Client) GetRepoCommits(ctx context.Context, owner, repo string) (int, error) {
	since := c.now().Add(-commitWindow).UTC()
	query := url.Values{"since": []string{since.Format(time.RFC3339)}}

	count := 0
	err := paginate(ctx, c, "GetRepoCommits", repoPath(owner, repo, "/commits"), query, func(page []*gh.RepositoryCommit) {
		count += len(page)
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// GetRepoReadme returns the decoded README text. A repository without a
// README yields nil and no error; other failures yield nil and the error.
func (c *Client) GetRepoReadme(ctx context.Context, owner, repo string) (*string, error) {
	path := repoPath(owner, repo, "/readme")
	resp, err := c.get(ctx, "GetRepoReadme", path, nil)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var content gh.RepositoryContent
	if err := resp.decode(&content); err != nil {
		return nil, apperrors.NewGitHubError("GetRepoReadme", path, fmt.Errorf("decoding response: %w", err))
	}
	text, err := content.GetContent()
	if err != nil {
		return nil, apperrors.NewGitHubError("GetRepoReadme", path, fmt.Errorf("decoding content: %w", err))
	}
	return &text, nil
}

// GetCommitActivity returns the weekly commit totals for the last year. GitHub
// answers 202 while the statistics are being computed; that yields an empty
// slice.
func (c *Client) GetCommitActivity(ctx context.Context, owner, repo string) ([]models.CommitWeek, error) {
	weeks := make([]models.CommitWeek, 0)
	path := repoPath(owner, repo, "/stats/commit_activity")

	resp, err := c.get(ctx, "GetCommitActivity", path, nil)
	if err != nil {
		return weeks, err
	}
	if resp.status == http.StatusAccepted {
		return weeks, nil
	}

	var activity []*gh.WeeklyCommitActivity
	if err := resp.decode(&activity); err != nil {
		return weeks, apperrors.NewGitHubError("GetCommitActivity", path, fmt.Errorf("decoding response: %w", err))
	}
	for _, week := range activity {
		weeks = append(weeks, models.CommitWeek{
			Week:  week.GetWeek().Time,
			Total: week.GetTotal(),
			Days:  week.Days,
		})
	}
	return weeks, nil
}

// GetUserActivity returns the user's recent public events, empty on failure
func (c *Client) GetUserActivity(ctx context.Context, username string) ([]models.ActivityEvent, error) {
	events := make([]models.ActivityEvent, 0)
	path := fmt.Sprintf("/users/%s/events", url.PathEscape(username))

	resp, err := c.get(ctx, "GetUserActivity", path, url.Values{"per_page": []string{"100"}})
	if err != nil {
		c.log.Warn().Err(err).Str("username", username).Msg("Failed to fetch user activity")
		return events, err
	}

	var raw []*gh.Event
	if err := resp.decode(&raw); err != nil {
		return events, apperrors.NewGitHubError("GetUserActivity", path, fmt.Errorf("decoding response: %w", err))
	}
	for _, event := range raw {
		events = append(events, models.ActivityEvent{
			ID:        event.GetID(),
			Type:      event.GetType(),
			Repo:      event.GetRepo().GetName(),
			CreatedAt: event.GetCreatedAt().Time,
		})
	}
	return events, nil
}

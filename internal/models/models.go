package models

import (
	"encoding/json"
	"time"
)

// Defaults applied when the listing endpoint returns null for a field.
const (
	UnknownLanguage    = "Unknown"
	NoLicense          = "None"
	NoDescription      = "No description"
	NoMostUsedLanguage = "None"
)

// RepoRecord represents a GitHub repository as returned by the listing endpoint
type RepoRecord struct {
	Name            string    `json:"name"`
	FullName        string    `json:"full_name"`
	Owner           string    `json:"owner"`
	Language        string    `json:"language"`
	StarsCount      int       `json:"stars"`
	ForksCount      int       `json:"forks"`
	WatchersCount   int       `json:"watchers"`
	OpenIssuesCount int       `json:"open_issues"`
	Size            int       `json:"size"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	License         string    `json:"license"`
	Fork            bool      `json:"fork"`
	Archived        bool      `json:"archived"`
	DefaultBranch   string    `json:"default_branch"`
	HasWiki         bool      `json:"has_wiki"`
	HasPages        bool      `json:"has_pages"`
	URL             string    `json:"url"`
	Description     string    `json:"description"`
}

// HasDescription reports whether the repository carries a real description
func (r RepoRecord) HasDescription() bool {
	return r.Description != "" && r.Description != NoDescription
}

// HasLicense reports whether the repository declares a license
func (r RepoRecord) HasLicense() bool {
	return r.License != "" && r.License != NoLicense
}

// Result is the outcome of a best-effort sub-fetch. A failed fetch still
// carries a usable default in Value.
type Result[T any] struct {
	Value T
	Err   error
}

// Ok wraps a successfully fetched value
func Ok[T any](v T) Result[T] {
	return Result[T]{Value: v}
}

// Degrade wraps a default value together with the error that forced it
func Degrade[T any](def T, err error) Result[T] {
	return Result[T]{Value: def, Err: err}
}

// Degraded reports whether the default value was substituted
func (r Result[T]) Degraded() bool {
	return r.Err != nil
}

// Enrichment records which sub-resources fell back to their defaults
type Enrichment struct {
	Languages    string `json:"languages,omitempty"`
	Contributors string `json:"contributors,omitempty"`
	Commits      string `json:"commits,omitempty"`
	Readme       string `json:"readme,omitempty"`
}

// DegradedCount returns the number of degraded sub-fetches
func (e Enrichment) DegradedCount() int {
	n := 0
	for _, s := range []string{e.Languages, e.Contributors, e.Commits, e.Readme} {
		if s != "" {
			n++
		}
	}
	return n
}

// RepoDetail is a RepoRecord enriched with per-repository sub-resources
type RepoDetail struct {
	RepoRecord
	Languages    map[string]int `json:"languages"`
	Contributors int            `json:"contributors"`
	Commits      int            `json:"commits_last_year"`
	TechStack    []string       `json:"tech_stack"`
	Readme       *string        `json:"-"`
	Enrichment   Enrichment     `json:"enrichment"`

	// Filled in by the analyzer relative to its "now".
	AgeDays         int    `json:"age_days"`
	DaysSinceUpdate int    `json:"days_since_update"`
	Health          Health `json:"health"`
}

// HasReadme reports whether a README was fetched for the repository
func (d RepoDetail) HasReadme() bool {
	return d.Readme != nil && *d.Readme != ""
}

// Health is the composite repository health score
type Health struct {
	Score            int    `json:"score"`
	Recency          int    `json:"recency"`
	Engagement       int    `json:"engagement"`
	Maintenance      int    `json:"maintenance"`
	ActivityLabel    string `json:"activity_label"`
	PopularityLabel  string `json:"popularity_label"`
	MaintenanceLabel string `json:"maintenance_label"`
}

// UserProfile represents a GitHub user profile
type UserProfile struct {
	Login       string    `json:"login"`
	Name        string    `json:"name"`
	Bio         string    `json:"bio"`
	Company     string    `json:"company"`
	Location    string    `json:"location"`
	Blog        string    `json:"blog"`
	PublicRepos int       `json:"public_repos"`
	Followers   int       `json:"followers"`
	Following   int       `json:"following"`
	AvatarURL   string    `json:"avatar_url"`
	URL         string    `json:"url"`
	CreatedAt   time.Time `json:"created_at"`
}

// ActivityEvent is a single public user event
type ActivityEvent struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Repo      string    `json:"repo,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// CommitWeek is one week of the commit activity statistics
type CommitWeek struct {
	Week  time.Time `json:"week"`
	Total int       `json:"total"`
	Days  []int     `json:"days"`
}

// RateLimitInfo stores GitHub API rate limit information
type RateLimitInfo struct {
	Remaining int       `json:"remaining"`
	Reset     time.Time `json:"reset"`
	Limit     int       `json:"limit"`
}

// ClientStats is the request accounting exposed for display
type ClientStats struct {
	Requests      int64         `json:"requests"`
	Authenticated bool          `json:"authenticated"`
	RateLimit     RateLimitInfo `json:"rate_limit"`
}

// RepoRank is a compact entry of the top repositories list
type RepoRank struct {
	Name     string `json:"name"`
	Stars    int    `json:"stars"`
	Forks    int    `json:"forks"`
	Language string `json:"language"`
	URL      string `json:"url"`
}

// LanguageCount is a chart-ready language bucket
type LanguageCount struct {
	Language string `json:"language"`
	Count    int    `json:"count"`
}

// AnalysisSummary is the folded result of one analysis run
type AnalysisSummary struct {
	Username              string          `json:"username"`
	GeneratedAt           time.Time       `json:"generated_at"`
	RepoCount             int             `json:"repo_count"`
	Repos                 []RepoDetail    `json:"repos"`
	MostUsedLanguage      string          `json:"most_used_language"`
	LanguageCount         int             `json:"language_count"`
	DistinctLanguages     int             `json:"distinct_languages"`
	LanguageDistribution  map[string]int  `json:"language_distribution"`
	ChartLanguages        []LanguageCount `json:"chart_languages"`
	LicenseDistribution   map[string]int  `json:"license_distribution"`
	TechStackDistribution map[string]int  `json:"tech_stack_distribution"`
	LanguageBytes         map[string]int  `json:"language_bytes"`
	TotalStars            int             `json:"total_stars"`
	TotalForks            int             `json:"total_forks"`
	TotalSize             int             `json:"total_size"`
	TotalWatchers         int             `json:"total_watchers"`
	TotalOpenIssues       int             `json:"total_open_issues"`
	TotalCommits          int             `json:"total_commits"`
	TotalContributors     int             `json:"total_contributors"`
	AvgStars              float64         `json:"avg_stars"`
	AvgForks              float64         `json:"avg_forks"`
	AvgSize               float64         `json:"avg_size"`
	AvgAgeDays            float64         `json:"avg_age_days"`
	MedianStars           float64         `json:"median_stars"`
	ActiveRepos           int             `json:"active_repos"`
	ArchivedRepos         int             `json:"archived_repos"`
	ForkedRepos           int             `json:"forked_repos"`
	AvgHealthScore        float64         `json:"avg_health_score"`
	TopRepos              []RepoRank      `json:"top_repos"`
	DegradedFetches       int             `json:"degraded_fetches"`
}

// Snapshot is a persisted analysis summary
type Snapshot struct {
	ID        int64           `json:"id" db:"id"`
	Username  string          `json:"username" db:"username"`
	RepoCount int             `json:"repo_count" db:"repo_count"`
	Summary   json.RawMessage `json:"summary" db:"summary"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

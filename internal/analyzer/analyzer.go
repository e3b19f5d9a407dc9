// Package analyzer folds enriched repository data into an analysis summary.
// Every function here is pure: the current time is always passed in.
package analyzer

import (
	"sort"
	"time"

	"repo-analyzer/internal/models"

	"github.com/montanaflynn/stats"
)

const (
	// ActiveWindowDays is how recently a repository must have been updated to count as active
	ActiveWindowDays = 90

	topRepoCount = 5
)

// Analyze computes the summary of a user's repositories relative to now.
// The returned repos carry their derived age, staleness and health fields.
func Analyze(username string, repos []models.RepoDetail, now time.Time) *models.AnalysisSummary {
	summary := &models.AnalysisSummary{
		Username:              username,
		GeneratedAt:           now,
		RepoCount:             len(repos),
		Repos:                 make([]models.RepoDetail, 0, len(repos)),
		MostUsedLanguage:      models.NoMostUsedLanguage,
		LanguageDistribution:  make(map[string]int),
		ChartLanguages:        make([]models.LanguageCount, 0),
		LicenseDistribution:   make(map[string]int),
		TechStackDistribution: make(map[string]int),
		LanguageBytes:         make(map[string]int),
		TopRepos:              make([]models.RepoRank, 0),
	}

	stars := make([]float64, 0, len(repos))
	totalAge, totalHealth := 0, 0

	for _, repo := range repos {
		detail := repo
		detail.Language = orDefault(detail.Language, models.UnknownLanguage)
		detail.License = orDefault(detail.License, models.NoLicense)
		detail.Description = orDefault(detail.Description, models.NoDescription)
		if detail.Languages == nil {
			detail.Languages = make(map[string]int)
		}
		if detail.TechStack == nil {
			detail.TechStack = ExtractTechStack(readmeText(detail.Readme))
		}
		detail.AgeDays = DaysBetween(detail.CreatedAt, now)
		detail.DaysSinceUpdate = DaysBetween(detail.UpdatedAt, now)
		detail.Health = ScoreHealth(detail, now)

		summary.TotalStars += detail.StarsCount
		summary.TotalForks += detail.ForksCount
		summary.TotalSize += detail.Size
		summary.TotalWatchers += detail.WatchersCount
		summary.TotalOpenIssues += detail.OpenIssuesCount
		summary.TotalCommits += detail.Commits
		summary.TotalContributors += detail.Contributors
		summary.DegradedFetches += detail.Enrichment.DegradedCount()
		totalAge += detail.AgeDays
		totalHealth += detail.Health.Score
		stars = append(stars, float64(detail.StarsCount))

		summary.LanguageDistribution[detail.Language]++
		summary.LicenseDistribution[detail.License]++
		for _, keyword := range detail.TechStack {
			summary.TechStackDistribution[keyword]++
		}
		for language, bytes := range detail.Languages {
			summary.LanguageBytes[language] += bytes
		}

		if !detail.UpdatedAt.IsZero() && detail.DaysSinceUpdate <= ActiveWindowDays {
			summary.ActiveRepos++
		}
		if detail.Archived {
			summary.ArchivedRepos++
		}
		if detail.Fork {
			summary.ForkedRepos++
		}

		summary.Repos = append(summary.Repos, detail)
	}

	summary.MostUsedLanguage = mostUsed(summary.LanguageDistribution)
	summary.LanguageCount = summary.LanguageDistribution[summary.MostUsedLanguage]
	summary.DistinctLanguages = len(summary.LanguageDistribution)
	summary.ChartLanguages = ChartLanguages(summary.LanguageDistribution)
	summary.TopRepos = topRepos(summary.Repos, topRepoCount)

	if n := len(repos); n > 0 {
		summary.AvgStars = float64(summary.TotalStars) / float64(n)
		summary.AvgForks = float64(summary.TotalForks) / float64(n)
		summary.AvgSize = float64(summary.TotalSize) / float64(n)
		summary.AvgAgeDays = float64(totalAge) / float64(n)
		summary.AvgHealthScore = float64(totalHealth) / float64(n)
		if median, err := stats.Median(stars); err == nil {
			summary.MedianStars = median
		}
	}

	return summary
}

// DaysBetween counts whole calendar days from t to now, both truncated to
// UTC dates. Zero timestamps and timestamps after now count as zero days.
func DaysBetween(t, now time.Time) int {
	if t.IsZero() {
		return 0
	}
	from := truncateDay(t)
	to := truncateDay(now)
	return max(int(to.Sub(from).Hours()/24), 0)
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// mostUsed returns the highest-frequency bucket. Ties go to the
// alphabetically first key so the result does not depend on map order.
func mostUsed(distribution map[string]int) string {
	best, bestCount := models.NoMostUsedLanguage, 0
	for language, count := range distribution {
		if count > bestCount || (count == bestCount && language < best) {
			best, bestCount = language, count
		}
	}
	return best
}

// ChartLanguages drops empty and "Unknown" buckets and orders the rest by
// count descending, then by name.
func ChartLanguages(distribution map[string]int) []models.LanguageCount {
	out := make([]models.LanguageCount, 0, len(distribution))
	for language, count := range distribution {
		if language == "" || language == models.UnknownLanguage {
			continue
		}
		out = append(out, models.LanguageCount{Language: language, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Language < out[j].Language
	})
	return out
}

func topRepos(repos []models.RepoDetail, n int) []models.RepoRank {
	ranked := make([]models.RepoRank, 0, len(repos))
	for _, repo := range repos {
		ranked = append(ranked, models.RepoRank{
			Name:     repo.Name,
			Stars:    repo.StarsCount,
			Forks:    repo.ForksCount,
			Language: repo.Language,
			URL:      repo.URL,
		})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Stars != ranked[j].Stars {
			return ranked[i].Stars > ranked[j].Stars
		}
		return ranked[i].Name < ranked[j].Name
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

func orDefault(value, def string) string {
	if value == "" {
		return def
	}
	return value
}

func readmeText(readme *string) string {
	if readme == nil {
		return ""
	}
	return *readme
}

package analyzer

import (
	"time"

	"repo-analyzer/internal/models"
)

// Point caps of the three health factors. They add up to 100.
const (
	maxRecency     = 40
	maxEngagement  = 30
	maxMaintenance = 30
)

// Labels attached to a health score
const (
	LabelActive   = "Active"
	LabelStale    = "Stale"
	LabelInactive = "Inactive"

	LabelPopular = "Popular"
	LabelGrowing = "Growing"
	LabelNiche   = "Niche"

	LabelWellMaintained = "Well Maintained"
	LabelMaintained     = "Maintained"
	LabelNeedsAttention = "Needs Attention"
)

// ScoreHealth rates a repository on recency, engagement and maintenance
func ScoreHealth(repo models.RepoDetail, now time.Time) models.Health {
	days := DaysBetween(repo.UpdatedAt, now)
	if repo.UpdatedAt.IsZero() {
		days = -1
	}

	h := models.Health{
		Recency:     recencyPoints(days),
		Engagement:  engagementPoints(repo),
		Maintenance: maintenancePoints(repo),
	}
	h.Score = h.Recency + h.Engagement + h.Maintenance

	switch {
	case days >= 0 && days <= ActiveWindowDays:
		h.ActivityLabel = LabelActive
	case days >= 0 && days <= 365:
		h.ActivityLabel = LabelStale
	default:
		h.ActivityLabel = LabelInactive
	}

	switch {
	case repo.StarsCount >= 100:
		h.PopularityLabel = LabelPopular
	case repo.StarsCount >= 10:
		h.PopularityLabel = LabelGrowing
	default:
		h.PopularityLabel = LabelNiche
	}

	switch {
	case h.Maintenance >= 25:
		h.MaintenanceLabel = LabelWellMaintained
	case h.Maintenance >= 15:
		h.MaintenanceLabel = LabelMaintained
	default:
		h.MaintenanceLabel = LabelNeedsAttention
	}

	return h
}

// recencyPoints: negative days means the update time is unknown
func recencyPoints(days int) int {
	switch {
	case days < 0:
		return 0
	case days <= 30:
		return maxRecency
	case days <= ActiveWindowDays:
		return 30
	case days <= 180:
		return 20
	case days <= 365:
		return 10
	default:
		return 0
	}
}

func engagementPoints(repo models.RepoDetail) int {
	points := min(repo.StarsCount, 15) + min(repo.ForksCount, 10) + min(repo.Contributors, 5)
	return min(max(points, 0), maxEngagement)
}

func maintenancePoints(repo models.RepoDetail) int {
	points := 0
	if repo.HasDescription() {
		points += 5
	}
	if repo.HasLicense() {
		points += 10
	}
	if !repo.Archived {
		points += 5
	}
	if repo.HasReadme() {
		points += 5
	}
	if repo.OpenIssuesCount < 20 {
		points += 5
	}
	return min(points, maxMaintenance)
}

package app

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	apperrors "repo-analyzer/internal/errors"
	"repo-analyzer/internal/queue"
	"repo-analyzer/internal/response"

	"github.com/gorilla/mux"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// healthCheck handles the health check endpoint
func (a *App) healthCheck(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, response.Success("Service is healthy", map[string]string{"status": "ok"}))
}

// getRateLimit reports the GitHub request counter and last known quota
func (a *App) getRateLimit(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, response.Success("Rate limit retrieved successfully", a.service.Stats()))
}

// getUser handles retrieving a user's profile
func (a *App) getUser(w http.ResponseWriter, r *http.Request) {
	username := mux.Vars(r)["username"]

	a.log.Debug().Str("username", username).Msg("Getting user profile")

	profile, err := a.service.GetUserProfile(r.Context(), username)
	if err != nil {
		a.log.Error().Err(err).Str("username", username).Msg("Failed to get user profile")
		code := statusFor(err)
		if code == http.StatusBadGateway {
			code = http.StatusNotFound
		}
		response.JSON(w, code, response.Error(code, fmt.Sprintf("Could not fetch user %s", username)))
		return
	}

	response.JSON(w, http.StatusOK, response.Success("User retrieved successfully", profile))
}

// analyzeUser runs a synchronous analysis
func (a *App) analyzeUser(w http.ResponseWriter, r *http.Request) {
	username := mux.Vars(r)["username"]

	a.log.Debug().Str("username", username).Msg("Analyzing user")

	summary, err := a.service.AnalyzeUser(r.Context(), username)
	if err != nil {
		a.log.Error().Err(err).Str("username", username).Msg("Failed to analyze user")
		code := statusFor(err)
		response.JSON(w, code, response.Error(code, fmt.Sprintf("Could not fetch repositories for %s: %v", username, err)))
		return
	}

	if summary.RepoCount == 0 {
		response.JSON(w, http.StatusOK, response.Success(fmt.Sprintf("User %s has no public repositories", username), summary))
		return
	}

	a.log.Info().
		Str("username", username).
		Int("repo_count", summary.RepoCount).
		Msg("Successfully analyzed user")

	response.JSON(w, http.StatusOK, response.Success("Analysis completed successfully", summary))
}

// enqueueAnalysis schedules an asynchronous analysis job
func (a *App) enqueueAnalysis(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(mux.Vars(r)["username"])
	if username == "" {
		response.JSON(w, http.StatusBadRequest, response.Error(http.StatusBadRequest, "Username is required"))
		return
	}

	job, err := queue.NewAnalyzeJob(username)
	if err == nil {
		err = a.queue.Enqueue(r.Context(), job)
	}
	if err != nil {
		a.log.Error().Err(err).Str("username", username).Msg("Failed to enqueue analysis job")
		response.JSON(w, http.StatusInternalServerError, response.Error(http.StatusInternalServerError, "Failed to enqueue analysis job"))
		return
	}

	a.log.Info().Str("username", username).Str("job_id", job.ID).Msg("Analysis job enqueued")
	response.JSON(w, http.StatusAccepted, response.Success("Analysis job enqueued", job))
}

// getActivity returns a user's recent events. Failures yield an empty list.
func (a *App) getActivity(w http.ResponseWriter, r *http.Request) {
	username := mux.Vars(r)["username"]

	events, err := a.service.GetUserActivity(r.Context(), username)
	if err != nil {
		if errors.Is(err, apperrors.ErrInvalidInput) {
			response.JSON(w, http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
			return
		}
		a.log.Warn().Err(err).Str("username", username).Msg("Activity unavailable")
		response.JSON(w, http.StatusOK, response.SuccessList("Activity unavailable", events, len(events)))
		return
	}

	response.JSON(w, http.StatusOK, response.SuccessList("Activity retrieved successfully", events, len(events)))
}

// getCommitActivity returns weekly commit totals of one repository
func (a *App) getCommitActivity(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	owner, repo := vars["owner"], vars["repo"]

	weeks, err := a.service.GetCommitActivity(r.Context(), owner, repo)
	if err != nil {
		if errors.Is(err, apperrors.ErrInvalidInput) {
			response.JSON(w, http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
			return
		}
		a.log.Warn().Err(err).Str("owner", owner).Str("repo", repo).Msg("Commit activity unavailable")
		response.JSON(w, http.StatusOK, response.SuccessList("Commit activity unavailable", weeks, len(weeks)))
		return
	}

	response.JSON(w, http.StatusOK, response.SuccessList("Commit activity retrieved successfully", weeks, len(weeks)))
}

// listSnapshots returns a user's stored analyses
func (a *App) listSnapshots(w http.ResponseWriter, r *http.Request) {
	username := mux.Vars(r)["username"]
	limit := parseLimit(r)

	snapshots, err := a.service.ListSnapshots(r.Context(), username, limit)
	if err != nil {
		a.log.Error().Err(err).Str("username", username).Int("limit", limit).Msg("Failed to list snapshots")
		code := statusFor(err)
		response.JSON(w, code, response.Error(code, fmt.Sprintf("Failed to list snapshots: %v", err)))
		return
	}

	response.JSON(w, http.StatusOK, response.SuccessList("Snapshots retrieved successfully", snapshots, len(snapshots)))
}

// listJobs returns the most recent jobs
func (a *App) listJobs(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r)

	jobs, err := a.queue.GetJobs(r.Context(), limit)
	if err != nil {
		a.log.Error().Err(err).Msg("Failed to list jobs")
		response.JSON(w, http.StatusInternalServerError, response.Error(http.StatusInternalServerError, "Failed to list jobs"))
		return
	}

	response.JSON(w, http.StatusOK, response.SuccessList("Jobs retrieved successfully", jobs, len(jobs)))
}

// getJob returns one job including its result when complete
func (a *App) getJob(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["job_id"]

	job, err := a.queue.GetJob(r.Context(), jobID)
	if err != nil {
		code := statusFor(err)
		if code != http.StatusNotFound {
			a.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		}
		response.JSON(w, code, response.Error(code, fmt.Sprintf("Job %s not found", jobID)))
		return
	}

	response.JSON(w, http.StatusOK, response.Success("Job retrieved successfully", job))
}

// listWatched returns the users refreshed by the sync worker
func (a *App) listWatched(w http.ResponseWriter, r *http.Request) {
	users := a.worker.Users()
	response.JSON(w, http.StatusOK, response.SuccessList("Watched users retrieved successfully", users, len(users)))
}

// addWatched starts refreshing a user periodically
func (a *App) addWatched(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(mux.Vars(r)["username"])
	if username == "" {
		response.JSON(w, http.StatusBadRequest, response.Error(http.StatusBadRequest, "Username is required"))
		return
	}

	a.worker.AddUser(username)
	a.log.Info().Str("username", username).Msg("Watching user")
	response.JSON(w, http.StatusOK, response.Success(fmt.Sprintf("Watching %s", username), a.worker.Users()))
}

// removeWatched stops refreshing a user
func (a *App) removeWatched(w http.ResponseWriter, r *http.Request) {
	username := mux.Vars(r)["username"]

	a.worker.RemoveUser(username)
	a.log.Info().Str("username", username).Msg("Stopped watching user")
	response.JSON(w, http.StatusOK, response.Success(fmt.Sprintf("Stopped watching %s", username), a.worker.Users()))
}

// statusFor maps service errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperrors.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperrors.ErrRateLimit):
		return http.StatusTooManyRequests
	case errors.Is(err, apperrors.ErrStoreDisabled):
		return http.StatusServiceUnavailable
	case errors.Is(err, apperrors.ErrListingFailed), errors.Is(err, apperrors.ErrGitHubAPI):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func parseLimit(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit < 1 {
		return defaultListLimit
	}
	return min(limit, maxListLimit)
}

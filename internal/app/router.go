package app

import (
	"net/http"

	"repo-analyzer/internal/response"

	"github.com/gorilla/mux"
)

// initializeRouter configures all routes for the application
func (a *App) initializeRouter(router *mux.Router) {
	setErrorHandlers(router)

	// Apply common middleware
	router.Use(a.loggingMiddleware)
	router.Use(a.recoveryMiddleware)

	// Health check endpoints
	router.HandleFunc("/", a.healthCheck).Methods(http.MethodGet)
	router.HandleFunc("/health", a.healthCheck).Methods(http.MethodGet)

	// API v1 routes
	api := subrouter(router, "/api/v1")
	api.HandleFunc("/health", a.healthCheck).Methods(http.MethodGet)
	api.HandleFunc("/rate-limit", a.getRateLimit).Methods(http.MethodGet)

	initUserRoutes(subrouter(api, "/users/{username}"), a)

	api.HandleFunc("/repos/{owner}/{repo}/commit-activity", a.getCommitActivity).Methods(http.MethodGet)

	// Jobs endpoints
	api.HandleFunc("/jobs", a.listJobs).Methods(http.MethodGet)
	api.HandleFunc("/jobs/{job_id}", a.getJob).Methods(http.MethodGet)

	if a.worker != nil {
		initWatchRoutes(subrouter(api, "/watch"), a)
	}
}

// subrouter mounts a prefixed router that answers unmatched paths and
// methods with the JSON envelopes instead of falling through as 404
func subrouter(parent *mux.Router, prefix string) *mux.Router {
	router := parent.PathPrefix(prefix).Subrouter()
	setErrorHandlers(router)
	return router
}

// setErrorHandlers sets custom error handlers for 404 and 405 responses
func setErrorHandlers(router *mux.Router) {
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, http.StatusNotFound, response.Error(http.StatusNotFound, "Route not found"))
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, http.StatusMethodNotAllowed, response.Error(http.StatusMethodNotAllowed, "Method not allowed"))
	})
}

// initUserRoutes configures all per-user routes
func initUserRoutes(router *mux.Router, a *App) {
	router.HandleFunc("", a.getUser).Methods(http.MethodGet)
	router.HandleFunc("/analysis", a.analyzeUser).Methods(http.MethodGet)
	router.HandleFunc("/analysis", a.enqueueAnalysis).Methods(http.MethodPost)
	router.HandleFunc("/activity", a.getActivity).Methods(http.MethodGet)
	router.HandleFunc("/snapshots", a.listSnapshots).Methods(http.MethodGet)
}

// initWatchRoutes configures the watched-users routes of the sync worker
func initWatchRoutes(router *mux.Router, a *App) {
	router.HandleFunc("", a.listWatched).Methods(http.MethodGet)
	router.HandleFunc("/{username}", a.addWatched).Methods(http.MethodPut)
	router.HandleFunc("/{username}", a.removeWatched).Methods(http.MethodDelete)
}

// loggingMiddleware logs information about each request
func (a *App) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Msg("Incoming request")

		next.ServeHTTP(w, r)
	})
}

// recoveryMiddleware recovers from panics and returns a 500 error
func (a *App) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				a.log.Error().
					Interface("error", err).
					Str("path", r.URL.Path).
					Msg("Panic recovered in request handler")

				response.JSON(w, http.StatusInternalServerError, response.Error(http.StatusInternalServerError, "Internal server error"))
			}
		}()

		next.ServeHTTP(w, r)
	})
}

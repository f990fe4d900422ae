package ui

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/thep200/github-star-sweeper/cfg"
	crawlinfo "github.com/thep200/github-star-sweeper/internal/crawl_info"
	"github.com/thep200/github-star-sweeper/internal/model"
	"github.com/thep200/github-star-sweeper/pkg/db"
	"github.com/thep200/github-star-sweeper/pkg/log"
)

// StatsFunc returns the stats of the current sweep, false when none has run.
type StatsFunc func() (crawlinfo.Stats, bool)

// Handler serves the read-only status API. Without a database only health, metrics and sweep stats are served.
type Handler struct {
	Logger   log.Logger
	Config   *cfg.Config
	Database *db.Database
	RepoMd   *model.Repo
	stats    StatsFunc
}

func NewHandler(logger log.Logger, config *cfg.Config, database *db.Database, stats StatsFunc) (*Handler, error) {
	if database == nil && stats == nil {
		return nil, errors.New("status handler needs a database or a sweep")
	}
	var repoMd *model.Repo
	if database != nil {
		var err error
		if repoMd, err = model.NewRepo(config, logger, database); err != nil {
			return nil, err
		}
	}
	return &Handler{
		Logger:   logger,
		Config:   config,
		Database: database,
		RepoMd:   repoMd,
		stats:    stats,
	}, nil
}

// Routes builds the router
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Second))

	r.Get("/healthz", h.healthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		if h.RepoMd != nil {
			r.Get("/repos", h.getRepos)
			r.Get("/repos/{owner}/{name}", h.getRepo)
		}
		r.Get("/sweep", h.getSweep)
	})
	return r
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	if h.Database == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "database": "not configured"})
		return
	}
	if err := h.Database.Ping(); err != nil {
		h.Logger.Warn(r.Context(), "Health check failed: %v", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) getSweep(w http.ResponseWriter, r *http.Request) {
	if h.stats == nil {
		writeError(w, http.StatusNotFound, "no sweep in this process")
		return
	}
	stats, ok := h.stats()
	if !ok {
		writeError(w, http.StatusNotFound, "no sweep has run yet")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

package ui

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"
)

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

type Repository struct {
	Name        string `json:"name"`
	Stars       int64  `json:"stars"`
	LastUpdated string `json:"lastUpdated"`
}

type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"pageSize"`
	TotalCount int64 `json:"totalCount"`
	TotalPages int64 `json:"totalPages"`
}

type RepositoriesResponse struct {
	Repositories []Repository `json:"repositories"`
	Pagination   Pagination   `json:"pagination"`
}

func (h *Handler) getRepos(w http.ResponseWriter, r *http.Request) {
	// Parse query parameters
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		page = 1
	}
	pageSize, err := strconv.Atoi(r.URL.Query().Get("pageSize"))
	if err != nil || pageSize < 1 || pageSize > maxPageSize {
		pageSize = defaultPageSize
	}
	search := r.URL.Query().Get("search")

	repos, total, err := h.RepoMd.List(r.Context(), search, (page-1)*pageSize, pageSize)
	if err != nil {
		h.Logger.Error(r.Context(), "Failed to fetch repositories: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to fetch repositories")
		return
	}

	// Response format
	repositories := make([]Repository, 0, len(repos))
	for _, repo := range repos {
		repositories = append(repositories, Repository{
			Name:        repo.Name,
			Stars:       repo.Stars,
			LastUpdated: repo.LastUpdated.UTC().Format("2006-01-02T15:04:05Z"),
		})
	}

	writeJSON(w, http.StatusOK, RepositoriesResponse{
		Repositories: repositories,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			TotalCount: total,
			TotalPages: (total + int64(pageSize) - 1) / int64(pageSize),
		},
	})
}

func (h *Handler) getRepo(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "owner") + "/" + chi.URLParam(r, "name")
	repo, err := h.RepoMd.Find(r.Context(), name)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		writeError(w, http.StatusNotFound, "repository not found")
		return
	}
	if err != nil {
		h.Logger.Error(r.Context(), "Failed to fetch repository %s: %v", name, err)
		writeError(w, http.StatusInternalServerError, "failed to fetch repository")
		return
	}
	writeJSON(w, http.StatusOK, Repository{
		Name:        repo.Name,
		Stars:       repo.Stars,
		LastUpdated: repo.LastUpdated.UTC().Format("2006-01-02T15:04:05Z"),
	})
}

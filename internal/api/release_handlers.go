// A handler file for the published-release API endpoints.

package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleListReleases(w http.ResponseWriter, r *http.Request) {
	section := r.URL.Query().Get("section")
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			RespondWithError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}

	releases, err := s.store.ListReleases(section, limit)
	if err != nil {
		RespondWithError(w, http.StatusInternalServerError, "Failed to retrieve releases")
		return
	}
	RespondWithJSON(w, http.StatusOK, releases)
}

func (s *Server) handleDeleteRelease(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "releaseID"), 10, 64)
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid release id")
		return
	}
	if err := s.store.DeleteRelease(id); err != nil {
		RespondWithError(w, http.StatusInternalServerError, "Failed to delete release")
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// A handler file for the operation-registry API endpoints.

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleListOperations(w http.ResponseWriter, r *http.Request) {
	RespondWithJSON(w, http.StatusOK, s.app.Registry().GetAll())
}

func (s *Server) handleListActiveOperations(w http.ResponseWriter, r *http.Request) {
	RespondWithJSON(w, http.StatusOK, s.app.Registry().GetActive())
}

func (s *Server) handleOperationStats(w http.ResponseWriter, r *http.Request) {
	RespondWithJSON(w, http.StatusOK, s.app.Registry().Statistics())
}

func (s *Server) handleGetOperation(w http.ResponseWriter, r *http.Request) {
	opID := chi.URLParam(r, "opID")
	op, ok := s.app.Registry().Get(opID)
	if !ok {
		RespondWithError(w, http.StatusNotFound, "Operation not found")
		return
	}
	RespondWithJSON(w, http.StatusOK, op)
}

func (s *Server) handleRemoveOperation(w http.ResponseWriter, r *http.Request) {
	opID := chi.URLParam(r, "opID")
	if !s.app.Registry().Remove(opID) {
		RespondWithError(w, http.StatusNotFound, "Operation not found")
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (s *Server) handleListHosts(w http.ResponseWriter, r *http.Request) {
	set := s.app.Hosts()
	RespondWithJSON(w, http.StatusOK, map[string][]string{
		"download": set.DownloadHosts(),
		"upload":   set.UploadHosts(),
	})
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg := s.app.Config()
	RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"host_priority":     cfg.Download.HostPriority,
		"upload_hosts":      cfg.Upload.Hosts,
		"max_concurrent":    cfg.Download.MaxConcurrent,
		"min_success_hosts": cfg.Upload.MinSuccessHosts,
	})
}

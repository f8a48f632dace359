// A handler file for the upload API endpoints.

package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/smahi/mirrorbot/internal/models"
	"github.com/smahi/mirrorbot/internal/uploader"
)

// UploadPayload is the expected structure for submitting an upload.
type UploadPayload struct {
	Section      string   `json:"section"`
	ItemTitle    string   `json:"item_title"`
	ArtifactPath string   `json:"artifact_path"`
	Hosts        []string `json:"hosts,omitempty"` // defaults to the configured upload hosts
}

func (s *Server) handleSubmitUpload(w http.ResponseWriter, r *http.Request) {
	var payload UploadPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if payload.ItemTitle == "" || payload.ArtifactPath == "" {
		RespondWithError(w, http.StatusBadRequest, "item_title and artifact_path are required")
		return
	}
	hosts := payload.Hosts
	if len(hosts) == 0 {
		hosts = s.app.Config().Upload.Hosts
	}
	if len(hosts) == 0 {
		RespondWithError(w, http.StatusBadRequest, "No upload hosts configured or provided")
		return
	}
	if err := s.app.Hosts().ValidateUploadHosts(hosts); err != nil {
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	go s.runUpload(context.Background(), models.UploadJob{
		Section:      payload.Section,
		ItemTitle:    payload.ItemTitle,
		ArtifactPath: payload.ArtifactPath,
		Hosts:        hosts,
	})

	RespondWithJSON(w, http.StatusAccepted, map[string]string{
		"message": "Upload started.",
	})
}

// UploadActionPayload identifies an upload batch and what to do with it.
type UploadActionPayload struct {
	Action    string `json:"action"` // "retry" or "cancel"
	Section   string `json:"section"`
	ItemTitle string `json:"item_title"`
}

func (s *Server) handleUploadAction(w http.ResponseWriter, r *http.Request) {
	var payload UploadActionPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	batch, ok := s.batchFor(payload.Section, payload.ItemTitle)
	if !ok {
		RespondWithError(w, http.StatusNotFound, "No upload batch known for that item")
		return
	}

	switch payload.Action {
	case "retry":
		go func() {
			outcome, err := batch.Retry(context.Background())
			if err != nil {
				log.Printf("Retry of '%s' rejected: %v", payload.ItemTitle, err)
				return
			}
			if outcome == uploader.OutcomeSuccess {
				s.recordBatch(payload.Section, payload.ItemTitle, batch)
			}
		}()
		RespondWithJSON(w, http.StatusAccepted, map[string]string{"message": "Retry started."})
	case "cancel":
		batch.Cancel()
		RespondWithJSON(w, http.StatusOK, map[string]string{"status": "success"})
	default:
		RespondWithError(w, http.StatusBadRequest, "Invalid action")
	}
}

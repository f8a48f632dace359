// A handler file for the download-batch API endpoints.

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/smahi/mirrorbot/internal/models"
)

// DownloadBatchPayload is the expected structure for submitting a batch.
type DownloadBatchPayload struct {
	Items []models.ContentItem `json:"items"`
}

func (s *Server) handleSubmitDownloads(w http.ResponseWriter, r *http.Request) {
	var payload DownloadBatchPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if len(payload.Items) == 0 {
		RespondWithError(w, http.StatusBadRequest, "No items provided")
		return
	}
	for _, item := range payload.Items {
		if item.Title == "" {
			RespondWithError(w, http.StatusBadRequest, "Every item needs a title")
			return
		}
	}

	s.mu.Lock()
	if s.dlRunning {
		s.mu.Unlock()
		RespondWithError(w, http.StatusConflict, "A download batch is already running")
		return
	}
	s.dlRunning = true
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			s.dlRunning = false
			s.mu.Unlock()
		}()
		if err := s.dl.Run(context.Background(), payload.Items); err != nil {
			// Cancellation lands here too; the batch operation reflects it.
			log.Printf("Download batch finished with: %v", err)
		}
	}()

	RespondWithJSON(w, http.StatusAccepted, map[string]string{
		"message": fmt.Sprintf("Batch of %d items accepted.", len(payload.Items)),
	})
}

func (s *Server) handleDownloadAction(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Action string `json:"action"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	switch payload.Action {
	case "pause_all":
		s.dl.SetPaused(true)
	case "resume_all":
		s.dl.SetPaused(false)
	case "cancel":
		s.dl.Cancel()
	default:
		RespondWithError(w, http.StatusBadRequest, "Invalid action")
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

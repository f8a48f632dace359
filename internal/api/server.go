// It defines the API server, sets up the routes (endpoints)
// using chi, and links them to the handler functions.

package api

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/smahi/mirrorbot/internal/core"
	"github.com/smahi/mirrorbot/internal/downloader"
	"github.com/smahi/mirrorbot/internal/models"
	"github.com/smahi/mirrorbot/internal/store"
	"github.com/smahi/mirrorbot/internal/transform"
	"github.com/smahi/mirrorbot/internal/uploader"
	"github.com/smahi/mirrorbot/internal/websocket"
)

// Server holds the dependencies for our API.
type Server struct {
	app       *core.App
	store     *store.Store
	dl        *downloader.Scheduler
	ul        *uploader.Scheduler
	processor *transform.Processor

	mu        sync.Mutex
	dlRunning bool
	batches   map[string]*uploader.Batch
}

// Store returns the store instance.
func (s *Server) Store() *store.Store {
	return s.store
}

// Downloader returns the download scheduler, mainly for tests.
func (s *Server) Downloader() *downloader.Scheduler {
	return s.dl
}

// NewServer creates a new Server instance and wires the full pipeline:
// download batch, repackage, multi-host upload, release record.
func NewServer(app *core.App) *Server {
	cfg := app.Config()
	s := &Server{
		app:     app,
		store:   app.Store(),
		batches: make(map[string]*uploader.Batch),
	}
	s.processor = transform.New(app.Registry(), cfg.Staging.Dir)
	s.ul = uploader.New(app.Registry(), app.Hosts(), uploader.Config{
		MinSuccessHosts: cfg.Upload.MinSuccessHosts,
		MaxRetries:      cfg.Upload.MaxRetries,
	})
	s.dl = downloader.New(app.Registry(), app.Hosts(), app.Bulk(), downloader.Config{
		DestDir:         cfg.Download.Dir,
		HostPriority:    cfg.Download.HostPriority,
		MaxConcurrent:   cfg.Download.MaxConcurrent,
		BulkConcurrent:  cfg.Download.BulkConcurrent,
		TransferTimeout: time.Duration(cfg.TransferTimeoutMinutes) * time.Minute,
	}, s.handleProcessedItem)
	return s
}

// handleProcessedItem is the download scheduler's post-processing hook. It
// repackages the item's files and pushes the artifact to the upload hosts.
func (s *Server) handleProcessedItem(section, title string, files []string) error {
	ctx := context.Background()
	artifact, err := s.processor.Process(ctx, section, title, files)
	if err != nil {
		return err
	}

	hosts := s.app.Config().Upload.Hosts
	if len(hosts) == 0 {
		log.Printf("No upload hosts configured; artifact for '%s' left at %s", title, artifact)
		return nil
	}
	s.runUpload(ctx, models.UploadJob{
		Section:      section,
		ItemTitle:    title,
		ArtifactPath: artifact,
		Hosts:        hosts,
	})
	return nil
}

// runUpload executes one upload job, remembers its batch for manual retries
// and records the published URLs on success.
func (s *Server) runUpload(ctx context.Context, job models.UploadJob) {
	batch, outcome, err := s.ul.RunWithRetries(ctx, job)
	if batch != nil {
		s.mu.Lock()
		s.batches[job.Section+"/"+job.ItemTitle] = batch
		s.mu.Unlock()
	}
	if err != nil {
		log.Printf("Upload of '%s' gave up: %v", job.ItemTitle, err)
	}
	if outcome == uploader.OutcomeSuccess {
		s.recordBatch(job.Section, job.ItemTitle, batch)
	}
}

func (s *Server) recordBatch(section, title string, batch *uploader.Batch) {
	if err := s.store.RecordBatch(section, title, batch.SuccessfulURLs()); err != nil {
		log.Printf("Failed to record releases for '%s': %v", title, err)
	}
}

func (s *Server) batchFor(section, title string) (*uploader.Batch, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.batches[section+"/"+title]
	return b, ok
}

// Router sets up and returns the main router for the application.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)    // Logs requests to the console
	r.Use(middleware.Recoverer) // Recovers from panics
	r.Use(middleware.Timeout(60 * time.Second))

	r.Route("/api", func(r chi.Router) {
		r.Get("/config", s.handleGetConfig)
		r.Get("/hosts", s.handleListHosts)

		// Operation registry
		r.Get("/operations", s.handleListOperations)
		r.Get("/operations/active", s.handleListActiveOperations)
		r.Get("/operations/stats", s.handleOperationStats)
		r.Get("/operations/{opID}", s.handleGetOperation)
		r.Delete("/operations/{opID}", s.handleRemoveOperation)

		// Download batches
		r.Post("/downloads", s.handleSubmitDownloads)
		r.Post("/downloads/action", s.handleDownloadAction)

		// Uploads
		r.Post("/uploads", s.handleSubmitUpload)
		r.Post("/uploads/action", s.handleUploadAction)

		// Published releases
		r.Get("/releases", s.handleListReleases)
		r.Delete("/releases/{releaseID}", s.handleDeleteRelease)

		// Background Job Triggers
		r.Get("/jobs/status", s.handleGetJobsStatus)
		r.Post("/jobs/run", s.handleRunJob)
	})

	// WebSocket route
	r.Get("/ws/progress", func(w http.ResponseWriter, r *http.Request) {
		websocket.ServeWs(s.app.WsHub(), w, r)
	})

	r.Get("/api/health", func(w http.ResponseWriter, r *http.Request) {
		if err := s.app.DB().Ping(); err != nil {
			RespondWithError(w, http.StatusServiceUnavailable, "Database connection failed")
			return
		}
		RespondWithJSON(w, http.StatusOK, map[string]interface{}{
			"status":         "ok",
			"bulk_available": s.app.Bulk().Available(r.Context()),
		})
	})

	return r
}

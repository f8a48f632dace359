package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/smahi/mirrorbot/internal/api"
	"github.com/smahi/mirrorbot/internal/bulk"
	"github.com/smahi/mirrorbot/internal/core"
	"github.com/smahi/mirrorbot/internal/hosts/direct"
	"github.com/smahi/mirrorbot/internal/hosts/fileport"
	"github.com/smahi/mirrorbot/internal/jobs"
)

func main() {
	log.SetOutput(os.Stdout)
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Initialize the core application components
	app, err := core.New()
	if err != nil {
		log.Fatalf("Fatal error during application setup: %v", err)
	}
	defer app.Close()

	registerHosts(app)

	// Every configured upload host must have a capability before any work runs.
	if err := app.Hosts().ValidateUploadHosts(app.Config().Upload.Hosts); err != nil {
		log.Fatalf("Invalid upload host configuration: %v", err)
	}

	// Start the background job scheduler (status sweep, bulk health probe).
	jobs.StartJobs(app)

	// Setup the API server
	server := api.NewServer(app)
	addr := fmt.Sprintf(":%d", app.Config().Port)
	httpServer := &http.Server{
		Addr:    addr,
		Handler: server.Router(),
	}

	// --- Graceful Shutdown ---
	// Start the server in a goroutine so it doesn't block.
	go func() {
		log.Printf("Starting web server on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not start server: %v", err)
		}
	}()

	// Wait for an interrupt signal.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Stop accepting downloads and let in-flight transfers wind down.
	server.Downloader().Cancel()

	// Create a context with a timeout to allow existing connections to finish.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Attempt a graceful shutdown.
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exiting.")
}

// registerHosts populates the capability set from the configured host
// accounts. Unknown downloader kinds are a configuration error.
func registerHosts(app *core.App) {
	cfg := app.Config()
	timeout := time.Duration(cfg.TransferTimeoutMinutes) * time.Minute

	for _, hc := range cfg.Hosts {
		if hc.Name == "" {
			log.Fatalf("Host entry without a name in configuration")
		}

		switch hc.Downloader {
		case "direct":
			app.Hosts().RegisterDownloader(direct.New(hc.Name, timeout))
		case "bulk":
			if cfg.Bulk.URL == "" {
				log.Fatalf("Host '%s' wants the bulk engine but bulk.url is not set", hc.Name)
			}
			app.Hosts().RegisterDownloader(bulk.NewDownloader(app.Bulk(), hc.Name))
		case "":
			// upload-only host
		default:
			log.Fatalf("Host '%s' has unknown downloader kind '%s'", hc.Name, hc.Downloader)
		}

		if hc.Upload.BaseURL != "" {
			app.Hosts().RegisterUploader(fileport.New(fileport.Config{
				Host:    hc.Name,
				BaseURL: hc.Upload.BaseURL,
				Login:   hc.Upload.Login,
				APIKey:  hc.Upload.APIKey,
				Timeout: timeout,
			}))
		}
	}

	log.Printf("Registered hosts: download=%v upload=%v",
		app.Hosts().DownloadHosts(), app.Hosts().UploadHosts())
}

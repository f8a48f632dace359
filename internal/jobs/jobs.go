package jobs

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron"
)

// RegisterDefaults wires up the built-in background jobs.
func RegisterDefaults(jm *JobManager) {
	jm.Register("status-sweep", "Purge finished operations", runStatusSweep)
	jm.Register("bulk-health", "Check bulk engine reachability", runBulkHealth)
}

// StartJobs starts the background job scheduler.
func StartJobs(app JobContext) {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()

	startSweepJob(s, app)
	startBulkHealthJob(s, app)

	log.Println("Starting background job scheduler...")
	s.StartAsync()
}

func startSweepJob(s *gocron.Scheduler, app JobContext) {
	interval := app.Config().Status.SweepIntervalSeconds
	if interval <= 0 {
		interval = 10
	}
	scheduleJob(s, app, "status-sweep", interval)
}

func startBulkHealthJob(s *gocron.Scheduler, app JobContext) {
	if app.Config().Bulk.URL == "" {
		log.Println("No bulk engine configured, health checks disabled.")
		return
	}
	interval := app.Config().Bulk.HealthIntervalSeconds
	if interval <= 0 {
		interval = 30
	}
	scheduleJob(s, app, "bulk-health", interval)
}

func scheduleJob(s *gocron.Scheduler, app JobContext, jobID string, intervalSeconds int) {
	log.Printf("Scheduling job '%s' to run every %d seconds.", jobID, intervalSeconds)
	_, err := s.Every(intervalSeconds).Seconds().Do(func() {
		if err := app.JobManager().RunJob(jobID, app); err != nil {
			log.Printf("Scheduled job '%s' could not start: %v", jobID, err)
		}
	})
	if err != nil {
		log.Printf("Error scheduling '%s' job: %v", jobID, err)
	}
}

// runStatusSweep purges terminal operations older than the grace window.
func runStatusSweep(ctx JobContext) {
	if removed := ctx.Registry().Sweep(); removed > 0 {
		log.Printf("Status sweep removed %d finished operations.", removed)
	}
}

// runBulkHealth probes the external bulk engine so the download scheduler's
// adaptive concurrency has a fresh availability reading.
func runBulkHealth(ctx JobContext) {
	client := ctx.Bulk()
	if client == nil {
		return
	}
	probeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if !client.Available(probeCtx) {
		log.Println("Bulk engine is unreachable; downloads fall back to the local worker cap.")
	}
}

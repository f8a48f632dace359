package jobs

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/smahi/mirrorbot/internal/bulk"
	"github.com/smahi/mirrorbot/internal/config"
	"github.com/smahi/mirrorbot/internal/status"
)

// JobContext is an interface that provides the dependencies a background job
// needs. The core.App struct implements this interface.
type JobContext interface {
	Config() *config.Config
	Registry() *status.Registry
	Bulk() *bulk.Client
	JobManager() *JobManager
}

type jobTask func(ctx JobContext)

type JobStatus struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Status    string    `json:"status"` // "idle", "running", "success", "failed"
	Message   string    `json:"message"`
	StartTime time.Time `json:"start_time,omitempty"`
	EndTime   time.Time `json:"end_time,omitempty"`
}

type JobManager struct {
	mu      sync.Mutex
	jobs    map[string]jobTask
	status  map[string]*JobStatus
	running bool
	appCtx  JobContext
}

func NewManager(appCtx JobContext) *JobManager {
	return &JobManager{
		jobs:   make(map[string]jobTask),
		status: make(map[string]*JobStatus),
		appCtx: appCtx,
	}
}

func (jm *JobManager) Register(id, name string, task jobTask) {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	jm.jobs[id] = task
	jm.status[id] = &JobStatus{ID: id, Name: name, Status: "idle"}
}

// RunJob starts a registered job in the background. Only one job runs at a
// time; a second request while one is running is rejected.
func (jm *JobManager) RunJob(id string, ctx JobContext) error {
	jm.mu.Lock()
	if jm.running {
		jm.mu.Unlock()
		return fmt.Errorf("a job is already running")
	}

	task, ok := jm.jobs[id]
	if !ok {
		jm.mu.Unlock()
		return fmt.Errorf("job '%s' not found", id)
	}

	jm.running = true
	st := jm.status[id]
	st.Status = "running"
	st.StartTime = time.Now()
	st.Message = "Job started..."
	jm.mu.Unlock()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("Job '%s' panicked: %v", id, r)
				jm.mu.Lock()
				st.Status = "failed"
				st.Message = fmt.Sprintf("Job panicked: %v", r)
				jm.mu.Unlock()
			}

			jm.mu.Lock()
			st.EndTime = time.Now()
			if st.Status == "running" {
				st.Status = "success"
				st.Message = "Job completed successfully."
			}
			jm.running = false
			jm.mu.Unlock()
		}()

		task(ctx)
	}()
	return nil
}

// GetStatus returns a snapshot of every registered job, sorted by id.
func (jm *JobManager) GetStatus() []JobStatus {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	var statuses []JobStatus
	for _, s := range jm.status {
		statuses = append(statuses, *s)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].ID < statuses[j].ID })
	return statuses
}

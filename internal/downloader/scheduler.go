// Package downloader fetches the link sets of content items through the
// registered host capabilities, with bounded concurrency, host-priority
// fallback and per-item completion aggregation.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/smahi/mirrorbot/internal/bulk"
	"github.com/smahi/mirrorbot/internal/hosts"
	"github.com/smahi/mirrorbot/internal/models"
	"github.com/smahi/mirrorbot/internal/status"
)

// PostProcessFunc receives a fully downloaded item. Its failure is reported
// but never aborts other items in the batch.
type PostProcessFunc func(section, title string, files []string) error

// Config carries the scheduler's tunables, taken from the application config.
type Config struct {
	DestDir         string
	HostPriority    []string
	MaxConcurrent   int
	BulkConcurrent  int
	TransferTimeout time.Duration
}

// itemState aggregates job completion for one content item. doneCount counts
// finished jobs whether they succeeded or not, so one dead link can never
// deadlock its siblings.
type itemState struct {
	section    string
	title      string
	totalLinks int
	doneCount  int
	files      []string
	fallback   []string
	processed  bool
}

// Scheduler is the download coordinator. One goroutine (Run) owns all
// scheduling state; byte-moving I/O happens on dispatched job goroutines
// that touch shared state only under the mutex.
type Scheduler struct {
	registry    *status.Registry
	hosts       *hosts.Set
	bulk        *bulk.Client
	postProcess PostProcessFunc
	cfg         Config
	tick        time.Duration

	mu        sync.Mutex
	paused    bool
	cancelled bool
	cancelRun context.CancelFunc
	queue     []*models.DownloadJob
	active    map[string]*models.DownloadJob
	finished  []*models.DownloadJob
	items     map[string]*itemState
	workerSeq int
}

// New builds a scheduler. bulkClient may be nil when no external bulk engine
// is configured; the conservative concurrency cap is used then.
func New(registry *status.Registry, set *hosts.Set, bulkClient *bulk.Client, cfg Config, post PostProcessFunc) *Scheduler {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}
	if cfg.BulkConcurrent <= 0 {
		cfg.BulkConcurrent = 256
	}
	return &Scheduler{
		registry:    registry,
		hosts:       set,
		bulk:        bulkClient,
		postProcess: post,
		cfg:         cfg,
		tick:        100 * time.Millisecond,
		active:      make(map[string]*models.DownloadJob),
		items:       make(map[string]*itemState),
	}
}

// SetPaused pauses or resumes the coordinator. In-flight transfers are not
// aborted; their progress callbacks hold until resumed.
func (s *Scheduler) SetPaused(paused bool) {
	s.mu.Lock()
	s.paused = paused
	s.mu.Unlock()
	if paused {
		log.Println("downloader: queue paused")
	} else {
		log.Println("downloader: queue resumed")
	}
}

// Paused reports whether the queue is currently paused.
func (s *Scheduler) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// Cancel stops the current batch: the local queue is drained, the run context
// is cancelled and any external bulk engine gets a best-effort hard stop.
// Safe to call from any goroutine, repeatedly.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	if s.cancelled {
		s.mu.Unlock()
		return
	}
	s.cancelled = true
	s.queue = nil
	cancel := s.cancelRun
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if s.bulk != nil {
		stopCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		s.bulk.HardStop(stopCtx)
		done()
	}
}

func (s *Scheduler) isCancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

// Run downloads every link of every item and hands completed items to the
// post-processing hook. It blocks until the batch finishes or is cancelled.
func (s *Scheduler) Run(ctx context.Context, items []models.ContentItem) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	s.cancelled = false
	s.cancelRun = cancel
	s.queue = nil
	s.active = make(map[string]*models.DownloadJob)
	s.finished = nil
	s.items = make(map[string]*itemState)
	s.workerSeq = 0

	total := 0
	for _, item := range items {
		jobs, chain := planItem(item, s.cfg.HostPriority, s.cfg.DestDir)
		if len(jobs) == 0 {
			log.Printf("downloader: item '%s' has no links, skipping", item.Title)
			continue
		}
		s.items[itemKey(item)] = &itemState{
			section:    item.Section,
			title:      item.Title,
			totalLinks: len(jobs),
			fallback:   chain,
		}
		s.queue = append(s.queue, jobs...)
		total++
	}
	s.mu.Unlock()

	if total == 0 {
		return nil
	}

	batchID := s.registry.Create("Tracking", fmt.Sprintf("Download batch (%d items)", total),
		models.KindTracking,
		status.WithWorkerID("download-coordinator"),
		status.WithDetails("Queued"),
	)
	processed := 0

	for {
		if runCtx.Err() != nil || s.isCancelled() {
			s.drain(runCtx, cancel)
			s.registry.Update(batchID,
				status.WithStatus(models.StatusCancelled),
				status.WithDetails(fmt.Sprintf("Cancelled after %d/%d items", processed, total)),
			)
			return hosts.ErrCancelled
		}
		if s.Paused() {
			time.Sleep(s.tick)
			continue
		}

		limit := s.currentCap(runCtx)
		s.mu.Lock()
		for len(s.active) < limit && len(s.queue) > 0 && !s.cancelled {
			job := s.queue[0]
			s.queue = s.queue[1:]
			s.active[job.ID] = job
			s.workerSeq++
			workerID := fmt.Sprintf("download-%d", s.workerSeq)
			go s.runJob(runCtx, job, workerID)
		}
		idle := len(s.active) == 0 && len(s.queue) == 0
		s.mu.Unlock()

		for _, it := range s.reap() {
			s.process(it)
			processed++
		}
		s.registry.Update(batchID,
			status.WithProgress(float64(processed)/float64(total)),
			status.WithDetails(fmt.Sprintf("%d/%d items processed", processed, total)),
		)

		if idle && !s.pendingReap() {
			break
		}
		time.Sleep(s.tick)
	}

	s.registry.Update(batchID,
		status.WithStatus(models.StatusCompleted),
		status.WithProgress(1.0),
		status.WithDetails(fmt.Sprintf("All %d items processed", total)),
	)
	return nil
}

// drain waits for in-flight jobs to observe cancellation and wind down.
func (s *Scheduler) drain(ctx context.Context, cancel context.CancelFunc) {
	s.mu.Lock()
	s.cancelled = true
	s.queue = nil
	s.mu.Unlock()
	cancel()
	for {
		s.mu.Lock()
		n := len(s.active)
		s.mu.Unlock()
		if n == 0 {
			return
		}
		time.Sleep(s.tick)
	}
}

// currentCap chooses the concurrency limit: effectively unbounded ingest when
// the bulk engine is reachable, a conservative cap otherwise.
func (s *Scheduler) currentCap(ctx context.Context) int {
	if s.bulk != nil && s.bulk.Available(ctx) {
		return s.cfg.BulkConcurrent
	}
	return s.cfg.MaxConcurrent
}

// reap collects finished jobs, advances their items' done counters and
// returns the items that just became complete.
func (s *Scheduler) reap() []*itemState {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ready []*itemState
	for _, job := range s.finished {
		it := s.items[job.ItemKey]
		if it == nil {
			continue
		}
		it.doneCount++
		it.files = append(it.files, job.Files...)
		if it.doneCount >= it.totalLinks && !it.processed {
			it.processed = true
			ready = append(ready, it)
		}
	}
	s.finished = nil
	return ready
}

func (s *Scheduler) pendingReap() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.finished) > 0
}

// process hands one complete item to the post-processing hook. A hook failure
// is surfaced as a failed transform operation and the batch moves on.
func (s *Scheduler) process(it *itemState) {
	if s.postProcess == nil {
		return
	}
	if err := s.postProcess(it.section, it.title, it.files); err != nil {
		log.Printf("downloader: post-processing '%s' failed: %v", it.title, err)
		rep := status.NewReporter(s.registry, "post-process")
		id := rep.StartTransform(it.section, it.title, "")
		rep.Fail(err.Error(), "", id)
	}
}

// nextFallback pops the next link from the item's shared fallback chain.
func (s *Scheduler) nextFallback(itemKey string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it := s.items[itemKey]
	if it == nil || len(it.fallback) == 0 {
		return "", false
	}
	url := it.fallback[0]
	it.fallback = it.fallback[1:]
	return url, true
}

// runJob executes one download job: the primary link first, then fallback
// links until one succeeds or the chain runs dry. Every attempt gets its own
// operation so observers see the failed primary and the successful fallback
// as distinct records.
func (s *Scheduler) runJob(ctx context.Context, job *models.DownloadJob, workerID string) {
	defer func() {
		s.mu.Lock()
		job.Completed = true
		delete(s.active, job.ID)
		s.finished = append(s.finished, job)
		s.mu.Unlock()
	}()

	rep := status.NewReporter(s.registry, workerID)
	url := job.URL
	for {
		opID := rep.StartDownload(job.Section, job.ItemTitle, url)
		path, err := s.attempt(ctx, rep, url, job.Destination)
		if err == nil {
			rep.Complete(path, "", opID)
			job.Succeeded = true
			job.Files = append(job.Files, path)
			return
		}
		if errors.Is(err, hosts.ErrCancelled) || ctx.Err() != nil {
			rep.Cancel("", opID)
			return
		}
		rep.Fail(err.Error(), "", opID)
		next, ok := s.nextFallback(job.ItemKey)
		if !ok {
			return
		}
		log.Printf("downloader: '%s' falling back to %s", job.ItemTitle, next)
		url = next
	}
}

// attempt runs a single transfer. Progress is forwarded to the registry only
// after the first nonzero byte, so queued or negotiating transfers never show
// up as phantom active rows.
func (s *Scheduler) attempt(parent context.Context, rep *status.Reporter, url, destDir string) (string, error) {
	d, ok := s.hosts.DownloaderForURL(url)
	if !ok {
		return "", fmt.Errorf("%w for url %s", hosts.ErrNoCapability, url)
	}

	ctx := parent
	if s.cfg.TransferTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, s.cfg.TransferTimeout)
		defer cancel()
	}

	start := time.Now()
	progress := func(done, total int64) {
		s.waitWhilePaused(ctx)
		if done <= 0 {
			return
		}
		var speed float64
		if elapsed := time.Since(start).Seconds(); elapsed > 0 {
			speed = float64(done) / elapsed
		}
		rep.UpdateTransferProgress(done, total, speed)
	}

	path, err := d.Download(ctx, url, destDir, progress)
	if err != nil && parent.Err() == nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "", &hosts.TransferError{Host: d.Host(), Err: context.DeadlineExceeded}
	}
	return path, err
}

// waitWhilePaused holds progress callbacks while the queue is paused without
// aborting the underlying transfer.
func (s *Scheduler) waitWhilePaused(ctx context.Context) {
	for s.Paused() && !s.isCancelled() && ctx.Err() == nil {
		time.Sleep(50 * time.Millisecond)
	}
}

// Package uploader pushes local artifacts to the configured upload hosts
// concurrently, tracks each host's outcome independently and supports
// retrying only the hosts that previously failed.
package uploader

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/smahi/mirrorbot/internal/hosts"
	"github.com/smahi/mirrorbot/internal/models"
	"github.com/smahi/mirrorbot/internal/status"
)

// Outcome is the overall result of one upload pass.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeFailed
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailed:
		return "failed"
	case OutcomeCancelled:
		return "cancelled"
	}
	return "unknown"
}

// Config carries the upload policy knobs.
type Config struct {
	// MinSuccessHosts is how many hosts must succeed before a batch counts
	// as usable. Defaults to 1.
	MinSuccessHosts int
	// MaxRetries bounds how many failed passes may be retried. Defaults to
	// 3. A cancelled pass never draws on this budget.
	MaxRetries int
}

// Scheduler creates upload batches against the registered host capabilities.
type Scheduler struct {
	registry *status.Registry
	hosts    *hosts.Set
	cfg      Config
}

func New(registry *status.Registry, set *hosts.Set, cfg Config) *Scheduler {
	if cfg.MinSuccessHosts <= 0 {
		cfg.MinSuccessHosts = 1
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &Scheduler{registry: registry, hosts: set, cfg: cfg}
}

// Batch holds one artifact's per-host results across run and retry passes.
// Succeeded hosts keep their recorded URLs; only the rest are re-attempted.
type Batch struct {
	s   *Scheduler
	job models.UploadJob

	mu          sync.Mutex
	results     map[string]models.HostResult
	cancelled   bool
	cancelRun   context.CancelFunc
	retryCount  int
	lastOutcome Outcome
}

// NewBatch prepares a batch with every host pending. Hosts without a
// registered capability are kept; they fail individually at run time rather
// than blocking the rest.
func (s *Scheduler) NewBatch(job models.UploadJob) (*Batch, error) {
	if len(job.Hosts) == 0 {
		return nil, errors.New("upload batch has no hosts")
	}
	results := make(map[string]models.HostResult, len(job.Hosts))
	for _, h := range job.Hosts {
		results[h] = models.HostResult{Status: models.HostPending}
	}
	return &Batch{s: s, job: job, results: results, lastOutcome: OutcomeFailed}, nil
}

// Results returns a snapshot of the per-host results.
func (b *Batch) Results() map[string]models.HostResult {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]models.HostResult, len(b.results))
	for h, r := range b.results {
		urls := make([]string, len(r.URLs))
		copy(urls, r.URLs)
		r.URLs = urls
		out[h] = r
	}
	return out
}

// SuccessfulURLs returns the recorded URLs of every succeeded host.
func (b *Batch) SuccessfulURLs() map[string][]string {
	out := make(map[string][]string)
	for h, r := range b.Results() {
		if r.Status == models.HostSuccess {
			out[h] = r.URLs
		}
	}
	return out
}

// Cancel stops the in-flight pass. Remaining host tasks are stopped and the
// pass reports OutcomeCancelled. Safe to call from any goroutine, repeatedly.
func (b *Batch) Cancel() {
	b.mu.Lock()
	if b.cancelled {
		b.mu.Unlock()
		return
	}
	b.cancelled = true
	cancel := b.cancelRun
	b.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (b *Batch) isCancelled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cancelled
}

// Run executes the first pass over every pending host.
func (b *Batch) Run(ctx context.Context) Outcome {
	return b.run(ctx)
}

// Retry re-attempts only the hosts that have not succeeded yet. Recorded
// URLs of succeeded hosts are never touched. A retry after a cancelled pass
// is a restart, not a retry: it never counts against MaxRetries, so a
// cancelled batch can always be brought to a clean finish.
func (b *Batch) Retry(ctx context.Context) (Outcome, error) {
	b.mu.Lock()
	counted := b.lastOutcome != OutcomeCancelled
	if counted {
		b.retryCount++
	}
	n := b.retryCount
	b.mu.Unlock()
	if counted && n > b.s.cfg.MaxRetries {
		return OutcomeFailed, fmt.Errorf("retry limit of %d reached", b.s.cfg.MaxRetries)
	}
	return b.run(ctx), nil
}

func (b *Batch) run(ctx context.Context) Outcome {
	out := b.runPass(ctx)
	b.mu.Lock()
	b.lastOutcome = out
	b.mu.Unlock()
	return out
}

// runPass uploads to every host whose result is not success. Each pass gets
// its own operation so a pass after a cancel starts from a clean record;
// prior successes are pre-marked on the new operation.
func (b *Batch) runPass(ctx context.Context) Outcome {
	b.mu.Lock()
	// Restart safety: a fresh pass clears residue from an aborted one.
	b.cancelled = false
	var pending []string
	for _, h := range b.job.Hosts {
		r := b.results[h]
		if r.Status != models.HostSuccess {
			r.Status = models.HostPending
			r.Error = ""
			b.results[h] = r
			pending = append(pending, h)
		}
	}
	b.mu.Unlock()

	if len(pending) == 0 {
		return OutcomeSuccess
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	b.mu.Lock()
	b.cancelRun = cancel
	b.mu.Unlock()

	rep := status.NewReporter(b.s.registry, "upload-worker")
	opID := rep.StartMultiUpload(b.job.Section, b.job.ItemTitle, b.job.ArtifactPath, b.job.Hosts)
	for h, r := range b.Results() {
		if r.Status == models.HostSuccess {
			b.s.registry.Update(opID, status.WithHostResult(h, r))
		}
	}

	g := new(errgroup.Group)
	for i, host := range b.job.Hosts {
		r := b.Results()[host]
		if r.Status == models.HostSuccess {
			continue
		}
		idx, host := i, host
		g.Go(func() error {
			b.uploadHost(runCtx, rep, opID, idx, host)
			return nil
		})
	}
	g.Wait()

	if b.isCancelled() {
		rep.Cancel("Upload cancelled", opID)
		return OutcomeCancelled
	}

	succeeded := 0
	for _, r := range b.Results() {
		if r.Status == models.HostSuccess {
			succeeded++
		}
	}
	if succeeded >= b.s.cfg.MinSuccessHosts {
		rep.Complete("", fmt.Sprintf("Uploaded to %d/%d hosts", succeeded, len(b.job.Hosts)), opID)
		return OutcomeSuccess
	}
	rep.Fail(fmt.Sprintf("only %d of %d hosts succeeded (need %d)",
		succeeded, len(b.job.Hosts), b.s.cfg.MinSuccessHosts), "", opID)
	return OutcomeFailed
}

// uploadHost pushes the artifact to one host and records the result. Errors
// never escape; they become the host's failed state.
func (b *Batch) uploadHost(ctx context.Context, rep *status.Reporter, opID string, idx int, host string) {
	up, ok := b.s.hosts.Uploader(host)
	if !ok {
		b.record(rep, opID, idx, host, nil, fmt.Errorf("%w: %s", hosts.ErrNoCapability, host))
		return
	}

	b.setHostStatus(opID, host, models.HostRunning)

	progress := func(done, total int64) {
		if b.isCancelled() {
			return
		}
		var p float64
		if total > 0 {
			p = float64(done) / float64(total)
		}
		// Completion is recorded explicitly once the host returns its URL.
		if p > 0.99 {
			p = 0.99
		}
		rep.UpdateMultiUploadProgress(idx, host, p, "", opID)
	}

	url, err := up.Upload(ctx, b.job.ArtifactPath, progress)
	b.record(rep, opID, idx, host, []string{url}, err)
}

func (b *Batch) setHostStatus(opID, host string, s models.HostStatus) {
	b.mu.Lock()
	r := b.results[host]
	r.Status = s
	b.results[host] = r
	b.mu.Unlock()
	b.s.registry.Update(opID, status.WithHostResult(host, models.HostResult{Status: s}))
}

// record stores one host's final result for this pass and mirrors it onto
// the operation.
func (b *Batch) record(rep *status.Reporter, opID string, idx int, host string, urls []string, err error) {
	b.mu.Lock()
	r := b.results[host]
	switch {
	case err == nil:
		r.Status = models.HostSuccess
		r.URLs = urls
		r.Error = ""
	case errors.Is(err, hosts.ErrCancelled):
		// Left pending so a retry pass picks it up again.
		r.Status = models.HostPending
		r.Error = ""
	default:
		r.Status = models.HostFailed
		r.Error = err.Error()
	}
	b.results[host] = r
	b.mu.Unlock()

	switch r.Status {
	case models.HostSuccess:
		rep.UpdateMultiUploadProgress(idx, host, 1.0, "Done", opID)
		b.s.registry.Update(opID, status.WithHostResult(host, r))
	case models.HostFailed:
		log.Printf("uploader: host %s failed: %v", host, err)
		b.s.registry.Update(opID, status.WithHostResult(host, r))
	}
}

// RunWithRetries runs a batch and keeps retrying the failed hosts until the
// success policy is met, cancellation is observed or the retry budget runs
// out. The batch is returned so callers can inspect per-host results.
func (s *Scheduler) RunWithRetries(ctx context.Context, job models.UploadJob) (*Batch, Outcome, error) {
	batch, err := s.NewBatch(job)
	if err != nil {
		return nil, OutcomeFailed, err
	}
	outcome := batch.Run(ctx)
	for outcome == OutcomeFailed {
		var retryErr error
		outcome, retryErr = batch.Retry(ctx)
		if retryErr != nil {
			return batch, OutcomeFailed, retryErr
		}
	}
	return batch, outcome, nil
}

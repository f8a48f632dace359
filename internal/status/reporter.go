package status

import (
	"fmt"
	"sync"

	"github.com/smahi/mirrorbot/internal/models"
	"github.com/smahi/mirrorbot/internal/util"
)

// Reporter is a thin per-worker facade over the Registry. It remembers the
// worker's current operation so call sites don't have to thread ids through
// every progress callback. All methods are pass-through calls into the
// registry and inherit its non-throwing guarantee.
//
// Every method takes an optional trailing operation id; when omitted the
// remembered current operation is used.
type Reporter struct {
	registry *Registry
	workerID string

	mu      sync.Mutex
	current string
}

// NewReporter binds a reporter to one logical worker.
func NewReporter(registry *Registry, workerID string) *Reporter {
	return &Reporter{registry: registry, workerID: workerID}
}

// Registry exposes the underlying registry, mainly for observers that want
// to subscribe alongside a reporter.
func (rp *Reporter) Registry() *Registry { return rp.registry }

// CurrentOperationID returns the remembered operation id, if any.
func (rp *Reporter) CurrentOperationID() string {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	return rp.current
}

func (rp *Reporter) setCurrent(id string) {
	rp.mu.Lock()
	rp.current = id
	rp.mu.Unlock()
}

// target resolves the optional trailing id argument used by every method.
func (rp *Reporter) target(opID []string) string {
	if len(opID) > 0 && opID[0] != "" {
		return opID[0]
	}
	return rp.CurrentOperationID()
}

// clearIfCurrent forgets the remembered id if it matches, so a finished
// operation doesn't swallow updates meant for the next one.
func (rp *Reporter) clearIfCurrent(id string) {
	rp.mu.Lock()
	if rp.current == id {
		rp.current = ""
	}
	rp.mu.Unlock()
}

// StartDownload creates a download operation and remembers it.
func (rp *Reporter) StartDownload(section, item, url string, extra ...Change) string {
	changes := append([]Change{
		WithDownloadURL(url),
		WithWorkerID(rp.workerID),
		WithDetails("Preparing download..."),
	}, extra...)

	kind := models.KindDownload
	if section == "Tracking" {
		kind = models.KindTracking
	}
	id := rp.registry.Create(section, item, kind, changes...)
	rp.setCurrent(id)
	return id
}

// StartUpload creates a single-host upload operation and remembers it.
func (rp *Reporter) StartUpload(section, item, host, path string, extra ...Change) string {
	changes := append([]Change{
		WithHost(host),
		WithSourcePath(path),
		WithWorkerID(rp.workerID),
		WithDetails(fmt.Sprintf("Preparing upload to %s...", host)),
	}, extra...)

	id := rp.registry.Create(section, item, models.KindUpload, changes...)
	rp.setCurrent(id)
	return id
}

// StartMultiUpload creates an upload operation with every host pre-recorded
// as pending, so observers see the full host set immediately.
func (rp *Reporter) StartMultiUpload(section, item, path string, hosts []string, extra ...Change) string {
	changes := append([]Change{
		WithHosts(hosts),
		WithSourcePath(path),
		WithWorkerID(rp.workerID),
		WithDetails(fmt.Sprintf("Starting upload to %d hosts...", len(hosts))),
	}, extra...)

	id := rp.registry.Create(section, item, models.KindUpload, changes...)
	rp.setCurrent(id)
	return id
}

// StartTransform creates a file-transform operation (extract/repackage).
func (rp *Reporter) StartTransform(section, item, sourcePath string, extra ...Change) string {
	changes := append([]Change{
		WithSourcePath(sourcePath),
		WithWorkerID(rp.workerID),
		WithDetails("Preparing files..."),
	}, extra...)

	id := rp.registry.Create(section, item, models.KindFileTransform, changes...)
	rp.setCurrent(id)
	return id
}

// UpdateProgress reports fractional progress (0.0 to 1.0).
func (rp *Reporter) UpdateProgress(progress float64, details string, opID ...string) bool {
	id := rp.target(opID)
	if id == "" {
		return false
	}
	changes := []Change{WithProgress(progress)}
	if details != "" {
		changes = append(changes, WithDetails(details))
	}
	return rp.registry.Update(id, changes...)
}

// UpdateTransferProgress reports byte-level progress and derives a
// human-readable details string with percentage, sizes and ETA.
func (rp *Reporter) UpdateTransferProgress(done, total int64, speed float64, opID ...string) bool {
	id := rp.target(opID)
	if id == "" {
		return false
	}
	var progress float64
	if total > 0 {
		progress = float64(done) / float64(total)
	}
	return rp.registry.Update(id,
		WithProgress(progress),
		WithTransfer(done, total, speed),
		WithDetails(util.TransferDetails(done, total, speed)),
	)
}

// UpdateMultiUploadProgress reports one host's fractional progress inside a
// multi-host upload. Overall progress is the number of finished hosts plus
// the reporting host's fraction, over the total host count.
func (rp *Reporter) UpdateMultiUploadProgress(hostIndex int, hostName string, hostProgress float64, details string, opID ...string) bool {
	id := rp.target(opID)
	if id == "" {
		return false
	}
	op, ok := rp.registry.Get(id)
	if !ok || op.TotalHosts == 0 {
		return false
	}

	finished := 0
	for _, r := range op.HostResults {
		if r.Status == models.HostSuccess || r.Status == models.HostFailed {
			finished++
		}
	}
	overall := (float64(finished) + hostProgress) / float64(op.TotalHosts)
	if overall > 1 {
		overall = 1
	}

	if details == "" {
		details = fmt.Sprintf("%d%%", int(hostProgress*100))
	}
	line := fmt.Sprintf("Host %d/%d (%s): %s", hostIndex+1, op.TotalHosts, hostName, details)

	hostStatus := models.HostRunning
	if hostProgress >= 1 {
		hostStatus = models.HostSuccess
	}
	prev := op.HostResults[hostName]
	prev.Status = hostStatus

	return rp.registry.Update(id,
		WithProgress(overall),
		WithHostResult(hostName, prev),
		WithDetails(line),
	)
}

// Complete finalizes the operation as completed and clears the remembered id.
func (rp *Reporter) Complete(resultURL, details string, opID ...string) bool {
	id := rp.target(opID)
	if id == "" {
		return false
	}
	if details == "" {
		details = "Completed successfully"
	}
	changes := []Change{
		WithStatus(models.StatusCompleted),
		WithProgress(1.0),
		WithDetails(details),
	}
	if resultURL != "" {
		if op, ok := rp.registry.Get(id); ok && op.Kind == models.KindDownload {
			changes = append(changes, WithTargetPath(resultURL))
		} else {
			changes = append(changes, WithUploadURL(resultURL))
		}
	}
	ok := rp.registry.Update(id, changes...)
	if ok {
		rp.clearIfCurrent(id)
	}
	return ok
}

// Fail finalizes the operation as failed and clears the remembered id.
func (rp *Reporter) Fail(errMsg, details string, opID ...string) bool {
	id := rp.target(opID)
	if id == "" {
		return false
	}
	if details == "" {
		details = "Failed: " + errMsg
	}
	ok := rp.registry.Update(id,
		WithStatus(models.StatusFailed),
		WithError(errMsg),
		WithDetails(details),
	)
	if ok {
		rp.clearIfCurrent(id)
	}
	return ok
}

// Cancel finalizes the operation as cancelled and clears the remembered id.
func (rp *Reporter) Cancel(details string, opID ...string) bool {
	id := rp.target(opID)
	if id == "" {
		return false
	}
	if details == "" {
		details = "Cancelled by user"
	}
	ok := rp.registry.Update(id,
		WithStatus(models.StatusCancelled),
		WithDetails(details),
	)
	if ok {
		rp.clearIfCurrent(id)
	}
	return ok
}

// SetPaused flips the operation between paused and running.
func (rp *Reporter) SetPaused(paused bool, opID ...string) bool {
	id := rp.target(opID)
	if id == "" {
		return false
	}
	s := models.StatusRunning
	d := "Resumed"
	if paused {
		s = models.StatusPaused
		d = "Paused"
	}
	return rp.registry.Update(id, WithStatus(s), WithDetails(d))
}

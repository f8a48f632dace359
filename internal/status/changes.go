package status

import "github.com/smahi/mirrorbot/internal/models"

// Change is a partial update to an operation, applied atomically by
// Registry.Create and Registry.Update.
type Change func(*changeSet)

type changeSet struct {
	status   *models.OperationStatus
	progress *float64
	details  *string

	bytesTransferred *int64
	totalBytes       *int64
	transferSpeed    *float64

	sourcePath  *string
	targetPath  *string
	downloadURL *string
	uploadURL   *string
	host        *string
	workerID    *string

	totalHosts  *int
	hostResults map[string]models.HostResult

	errMsg     *string
	retryCount *int
	maxRetries *int
}

func WithStatus(s models.OperationStatus) Change {
	return func(c *changeSet) { c.status = &s }
}

func WithProgress(p float64) Change {
	return func(c *changeSet) { c.progress = &p }
}

func WithDetails(d string) Change {
	return func(c *changeSet) { c.details = &d }
}

// WithTransfer records byte-level transfer metrics in one shot.
func WithTransfer(done, total int64, speed float64) Change {
	return func(c *changeSet) {
		c.bytesTransferred = &done
		c.totalBytes = &total
		c.transferSpeed = &speed
	}
}

func WithSourcePath(p string) Change {
	return func(c *changeSet) { c.sourcePath = &p }
}

func WithTargetPath(p string) Change {
	return func(c *changeSet) { c.targetPath = &p }
}

func WithDownloadURL(u string) Change {
	return func(c *changeSet) { c.downloadURL = &u }
}

func WithUploadURL(u string) Change {
	return func(c *changeSet) { c.uploadURL = &u }
}

func WithHost(h string) Change {
	return func(c *changeSet) { c.host = &h }
}

func WithWorkerID(id string) Change {
	return func(c *changeSet) { c.workerID = &id }
}

// WithHosts pre-populates the per-host result map with every host pending,
// so a multi-host upload row is complete from its first event.
func WithHosts(hosts []string) Change {
	return func(c *changeSet) {
		n := len(hosts)
		c.totalHosts = &n
		if c.hostResults == nil {
			c.hostResults = make(map[string]models.HostResult, n)
		}
		for _, h := range hosts {
			c.hostResults[h] = models.HostResult{Status: models.HostPending}
		}
	}
}

// WithHostResult records the outcome (or interim state) of one host.
func WithHostResult(host string, r models.HostResult) Change {
	return func(c *changeSet) {
		if c.hostResults == nil {
			c.hostResults = make(map[string]models.HostResult, 1)
		}
		c.hostResults[host] = r
	}
}

func WithError(msg string) Change {
	return func(c *changeSet) { c.errMsg = &msg }
}

func WithRetryCount(n int) Change {
	return func(c *changeSet) { c.retryCount = &n }
}

func WithMaxRetries(n int) Change {
	return func(c *changeSet) { c.maxRetries = &n }
}

// applyTo copies every populated field onto the operation. Host results are
// merged key by key so concurrent host updates never wipe each other.
func (c *changeSet) applyTo(op *models.Operation) {
	if c.status != nil {
		op.Status = *c.status
	}
	if c.progress != nil {
		op.Progress = *c.progress
	}
	if c.details != nil {
		op.Details = *c.details
	}
	if c.bytesTransferred != nil {
		op.BytesTransferred = *c.bytesTransferred
	}
	if c.totalBytes != nil {
		op.TotalBytes = *c.totalBytes
	}
	if c.transferSpeed != nil {
		op.TransferSpeed = *c.transferSpeed
	}
	if c.sourcePath != nil {
		op.SourcePath = *c.sourcePath
	}
	if c.targetPath != nil {
		op.TargetPath = *c.targetPath
	}
	if c.downloadURL != nil {
		op.DownloadURL = *c.downloadURL
	}
	if c.uploadURL != nil {
		op.UploadURL = *c.uploadURL
	}
	if c.host != nil {
		op.Host = *c.host
	}
	if c.workerID != nil {
		op.WorkerID = *c.workerID
	}
	if c.totalHosts != nil {
		op.TotalHosts = *c.totalHosts
	}
	if len(c.hostResults) > 0 {
		if op.HostResults == nil {
			op.HostResults = make(map[string]models.HostResult, len(c.hostResults))
		}
		for h, r := range c.hostResults {
			op.HostResults[h] = r
		}
	}
	if c.errMsg != nil {
		op.Error = *c.errMsg
	}
	if c.retryCount != nil {
		op.RetryCount = *c.retryCount
	}
	if c.maxRetries != nil {
		op.MaxRetries = *c.maxRetries
	}
}

// Core data model for tracked operations. An Operation is the unit of work
// the status registry knows about: one download, one multi-host upload, one
// repackaging step, and so on.
package models

import "time"

// OperationKind categorizes what an operation is doing.
type OperationKind string

const (
	KindDownload      OperationKind = "download"
	KindUpload        OperationKind = "upload"
	KindFileTransform OperationKind = "file_transform"
	KindTracking      OperationKind = "tracking"
	KindPosting       OperationKind = "posting"
)

// OperationStatus is the lifecycle state of an operation.
type OperationStatus string

const (
	StatusPending      OperationStatus = "pending"
	StatusInitializing OperationStatus = "initializing"
	StatusRunning      OperationStatus = "running"
	StatusPaused       OperationStatus = "paused"
	StatusCompleted    OperationStatus = "completed"
	StatusFailed       OperationStatus = "failed"
	StatusCancelled    OperationStatus = "cancelled"
)

// IsTerminal reports whether the status is a final state.
func (s OperationStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// IsActive reports whether the operation is doing (or about to do) work.
func (s OperationStatus) IsActive() bool {
	return s == StatusInitializing || s == StatusRunning || s == StatusPaused
}

// HostStatus is the per-host outcome inside a multi-host upload.
type HostStatus string

const (
	HostPending HostStatus = "pending"
	HostRunning HostStatus = "running"
	HostSuccess HostStatus = "success"
	HostFailed  HostStatus = "failed"
)

// HostResult holds the outcome of one host in a multi-host upload.
type HostResult struct {
	Status HostStatus `json:"status"`
	URLs   []string   `json:"urls,omitempty"`
	Error  string     `json:"error,omitempty"`
}

// Operation is the complete state of one tracked unit of work. Instances are
// owned by the status registry; callers receive copies.
type Operation struct {
	ID      string          `json:"id"`
	Section string          `json:"section"`
	Item    string          `json:"item"`
	Kind    OperationKind   `json:"kind"`
	Status  OperationStatus `json:"status"`

	Progress float64 `json:"progress"` // 0.0 to 1.0
	Details  string  `json:"details"`

	// Transfer metrics, optional.
	BytesTransferred int64   `json:"bytes_transferred,omitempty"`
	TotalBytes       int64   `json:"total_bytes,omitempty"`
	TransferSpeed    float64 `json:"transfer_speed,omitempty"` // bytes/sec

	// File/URL information.
	SourcePath  string `json:"source_path,omitempty"`
	TargetPath  string `json:"target_path,omitempty"`
	DownloadURL string `json:"download_url,omitempty"`
	UploadURL   string `json:"upload_url,omitempty"`
	Host        string `json:"host,omitempty"`

	// Multi-host upload specifics.
	TotalHosts  int                   `json:"total_hosts,omitempty"`
	HostResults map[string]HostResult `json:"host_results,omitempty"`

	Error      string `json:"error,omitempty"`
	RetryCount int    `json:"retry_count"`
	MaxRetries int    `json:"max_retries"`

	WorkerID  string     `json:"worker_id,omitempty"`
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty"`
}

// Duration returns how long the operation has been (or was) running.
func (o *Operation) Duration() time.Duration {
	if o.EndTime != nil {
		return o.EndTime.Sub(o.StartTime)
	}
	return time.Since(o.StartTime)
}

// Clone returns a deep copy safe to hand to observers.
func (o *Operation) Clone() Operation {
	c := *o
	if o.EndTime != nil {
		t := *o.EndTime
		c.EndTime = &t
	}
	if o.HostResults != nil {
		c.HostResults = make(map[string]HostResult, len(o.HostResults))
		for h, r := range o.HostResults {
			urls := make([]string, len(r.URLs))
			copy(urls, r.URLs)
			r.URLs = urls
			c.HostResults[h] = r
		}
	}
	return c
}

// ProgressUpdate is the payload broadcast to websocket observers whenever the
// registry emits an event.
type ProgressUpdate struct {
	Event       string    `json:"event"` // "created", "updated", "completed", "removed"
	OperationID string    `json:"operation_id"`
	Operation   Operation `json:"operation"`
}

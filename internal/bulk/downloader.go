package bulk

import (
	"context"
	"fmt"
	"time"

	"github.com/smahi/mirrorbot/internal/hosts"
)

// Downloader adapts the engine to the hosts.Downloader capability so the
// scheduler can route any supported host through it when it is reachable.
type Downloader struct {
	client       *Client
	host         string
	pollInterval time.Duration
}

// NewDownloader wraps the engine client as a capability for one host name.
func NewDownloader(client *Client, host string) *Downloader {
	return &Downloader{
		client:       client,
		host:         host,
		pollInterval: time.Second,
	}
}

func (d *Downloader) Host() string { return d.host }

// Download submits the link to the engine and polls until the package
// finishes, forwarding byte progress. Files are picked up from the delivery
// directory by a Monitor because the engine does not report paths.
func (d *Downloader) Download(ctx context.Context, url, destDir string, progress hosts.ProgressFunc) (string, error) {
	monitor, err := NewMonitor(destDir)
	if err != nil {
		return "", fmt.Errorf("watch delivery dir: %w", err)
	}
	defer monitor.Close()

	before := make(map[string]struct{})
	for _, f := range monitor.Files() {
		before[f] = struct{}{}
	}

	id, err := d.client.Submit(ctx, []string{url}, destDir)
	if err != nil {
		return "", &hosts.TransferError{Host: d.host, Err: err}
	}

	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Best-effort stop; the cancel context is already dead, so use a
			// short detached one for the stop call.
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			d.client.HardStop(stopCtx)
			cancel()
			return "", hosts.ErrCancelled
		case <-ticker.C:
		}

		status, err := d.client.Status(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return "", hosts.ErrCancelled
			}
			return "", &hosts.TransferError{Host: d.host, Err: err}
		}

		if progress != nil && status.BytesDone > 0 {
			progress(status.BytesDone, status.BytesTotal)
		}

		switch status.State {
		case StateFinished:
			for _, f := range monitor.Files() {
				if _, seen := before[f]; !seen {
					return f, nil
				}
			}
			return "", &hosts.TransferError{Host: d.host, Err: fmt.Errorf("engine finished but delivered no files")}
		case StateFailed:
			return "", &hosts.TransferError{Host: d.host, Err: fmt.Errorf("engine failure: %s", status.Error)}
		}
	}
}

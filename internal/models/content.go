package models

// ContentItem is one logical release (e.g. an ebook) that may need several
// file downloads before it can be repackaged. Links are grouped by the host
// that serves them; the download scheduler picks a primary host from the
// configured priority list and treats every other host's links as fallbacks.
type ContentItem struct {
	Section     string              `json:"section"`
	Title       string              `json:"title"`
	LinksByHost map[string][]string `json:"links_by_host"`
}

// DownloadJob is one URL to fetch. Jobs are owned exclusively by the download
// scheduler and never shared across items; fallback links live on the item's
// shared chain, not on the job.
type DownloadJob struct {
	ID          string
	ItemKey     string
	Section     string
	ItemTitle   string
	Host        string
	URL         string
	Destination string
	Completed   bool
	Succeeded   bool
	Files       []string
}

// UploadJob is one local artifact to push to every configured host.
type UploadJob struct {
	Section      string
	ItemTitle    string
	ArtifactPath string
	Hosts        []string
}

// PublishedRelease is one successfully published (item, host, url) record
// kept in the audit store after a multi-host upload finishes.
type PublishedRelease struct {
	ID        int64  `json:"id"`
	Section   string `json:"section"`
	ItemTitle string `json:"item_title"`
	Host      string `json:"host"`
	URL       string `json:"url"`
	CreatedAt string `json:"created_at"`
}

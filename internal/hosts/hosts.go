// Package hosts defines the capability contracts for the interchangeable
// file-hosting services and the registry that maps host names to their
// implementations. Capabilities are registered at configuration time so the
// configured host lists can be validated exhaustively before any work runs.
package hosts

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ProgressFunc receives byte-level transfer progress. total may be zero when
// the remote side does not report a size.
type ProgressFunc func(done, total int64)

// Downloader fetches one URL into a destination directory. Implementations
// must honor ctx cancellation and call progress as bytes arrive.
type Downloader interface {
	// Host returns the host name this capability serves, e.g. "rapidgator.net".
	Host() string
	// Download fetches url into destDir and returns the local file path.
	Download(ctx context.Context, url, destDir string, progress ProgressFunc) (string, error)
}

// Uploader publishes one local file to its host. Implementations manage
// their own credential refresh internally.
type Uploader interface {
	Host() string
	// Upload pushes the file at localPath and returns the public URL.
	Upload(ctx context.Context, localPath string, progress ProgressFunc) (string, error)
}

// Set is an explicit host→capability map. It replaces any "look up the
// method by host name" dispatch with a structure that can be validated.
type Set struct {
	mu          sync.RWMutex
	downloaders map[string]Downloader
	uploaders   map[string]Uploader
}

// NewSet returns an empty capability set.
func NewSet() *Set {
	return &Set{
		downloaders: make(map[string]Downloader),
		uploaders:   make(map[string]Uploader),
	}
}

// RegisterDownloader adds a download capability. Registering the same host
// twice is a developer error during setup, so it panics like the provider
// registry it replaces.
func (s *Set) RegisterDownloader(d Downloader) {
	s.mu.Lock()
	defer s.mu.Unlock()
	host := normalize(d.Host())
	if _, exists := s.downloaders[host]; exists {
		panic(fmt.Sprintf("download capability for host '%s' is already registered", host))
	}
	s.downloaders[host] = d
}

// RegisterUploader adds an upload capability.
func (s *Set) RegisterUploader(u Uploader) {
	s.mu.Lock()
	defer s.mu.Unlock()
	host := normalize(u.Host())
	if _, exists := s.uploaders[host]; exists {
		panic(fmt.Sprintf("upload capability for host '%s' is already registered", host))
	}
	s.uploaders[host] = u
}

// Downloader returns the download capability for a host.
func (s *Set) Downloader(host string) (Downloader, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.downloaders[normalize(host)]
	return d, ok
}

// Uploader returns the upload capability for a host.
func (s *Set) Uploader(host string) (Uploader, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.uploaders[normalize(host)]
	return u, ok
}

// DownloaderForURL resolves a capability by matching the url's host part
// against the registered download hosts.
func (s *Set) DownloaderForURL(url string) (Downloader, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lower := strings.ToLower(url)
	for host, d := range s.downloaders {
		if strings.Contains(lower, host) {
			return d, true
		}
	}
	return nil, false
}

// DownloadHosts returns the registered download host names, sorted.
func (s *Set) DownloadHosts() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.downloaders))
	for h := range s.downloaders {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}

// UploadHosts returns the registered upload host names, sorted.
func (s *Set) UploadHosts() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.uploaders))
	for h := range s.uploaders {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}

// ValidateUploadHosts checks a configured host list against the registered
// upload capabilities and reports every missing one at once.
func (s *Set) ValidateUploadHosts(hosts []string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var missing []string
	for _, h := range hosts {
		if _, ok := s.uploaders[normalize(h)]; !ok {
			missing = append(missing, h)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("no upload capability registered for: %s", strings.Join(missing, ", "))
	}
	return nil
}

func normalize(host string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(host)), "www.")
}

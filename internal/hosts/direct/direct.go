// Package direct implements a download capability for hosts that serve
// files over plain HTTP once given a premium link. It supports resuming a
// partial file with a Range request.
package direct

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/smahi/mirrorbot/internal/hosts"
	"github.com/smahi/mirrorbot/internal/util"
)

// Client downloads direct links for one host.
type Client struct {
	host       string
	httpClient *http.Client
}

// New returns a direct-link downloader for the given host name. timeout
// bounds a single transfer end to end; degenerate transfers surface as a
// TransferError instead of hanging forever.
func New(host string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Minute
	}
	return &Client{
		host:       host,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) Host() string { return c.host }

// Download fetches rawURL into destDir, resuming any partial file already
// present, and returns the local path.
func (c *Client) Download(ctx context.Context, rawURL, destDir string, progress hosts.ProgressFunc) (string, error) {
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", fmt.Errorf("create destination dir: %w", err)
	}

	dest := filepath.Join(destDir, filenameFor(rawURL))

	var existing int64
	if info, err := os.Stat(dest); err == nil {
		existing = info.Size()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", &hosts.TransferError{Host: c.host, Err: err}
	}
	if existing > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", existing))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", hosts.ErrCancelled
		}
		return "", &hosts.TransferError{Host: c.host, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", &hosts.AuthError{Host: c.host, Err: fmt.Errorf("status %s", resp.Status)}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return "", &hosts.TransferError{Host: c.host, Err: fmt.Errorf("bad status: %s", resp.Status)}
	}

	// The server ignored the Range request; start over.
	if existing > 0 && resp.StatusCode != http.StatusPartialContent {
		existing = 0
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if existing > 0 {
		flags = os.O_WRONLY | os.O_APPEND
	}
	file, err := os.OpenFile(dest, flags, 0644)
	if err != nil {
		return "", fmt.Errorf("open destination file: %w", err)
	}
	defer file.Close()

	total := existing + resp.ContentLength
	if resp.ContentLength < 0 {
		total = 0
	}

	written, err := c.copyWithProgress(ctx, file, resp.Body, existing, total, progress)
	if err != nil {
		if ctx.Err() != nil {
			return "", hosts.ErrCancelled
		}
		return "", &hosts.TransferError{Host: c.host, Err: err}
	}

	log.Printf("direct: downloaded %s from %s (%s)", filepath.Base(dest), c.host, util.FormatBytes(existing+written))
	return dest, nil
}

// copyWithProgress streams src to dst, checking for cancellation between
// reads and reporting cumulative progress.
func (c *Client) copyWithProgress(ctx context.Context, dst io.Writer, src io.Reader, offset, total int64, progress hosts.ProgressFunc) (int64, error) {
	buf := make([]byte, 32*1024)
	var written int64

	for {
		select {
		case <-ctx.Done():
			return written, ctx.Err()
		default:
		}

		nr, rerr := src.Read(buf)
		if nr > 0 {
			nw, werr := dst.Write(buf[:nr])
			written += int64(nw)
			if werr != nil {
				return written, werr
			}
			if nw != nr {
				return written, io.ErrShortWrite
			}
			if progress != nil {
				progress(offset+written, total)
			}
		}
		if rerr != nil {
			if rerr == io.EOF {
				return written, nil
			}
			return written, rerr
		}
	}
}

func filenameFor(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || path.Base(u.Path) == "" || path.Base(u.Path) == "/" || path.Base(u.Path) == "." {
		return util.SanitizeName(rawURL)
	}
	return util.SanitizeName(path.Base(u.Path))
}

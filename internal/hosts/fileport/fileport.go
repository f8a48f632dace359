// Package fileport implements an upload capability for token-authenticated
// file hosts that take a multipart POST and hand back a public link. Most of
// the supported premium hosts follow this shape and differ only in their
// base URL and credential pair.
package fileport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/smahi/mirrorbot/internal/hosts"
)

// Config describes one host account.
type Config struct {
	// Host is the host name the account belongs to, e.g. "rapidgator.net".
	Host string
	// BaseURL is the host's API base, e.g. "https://api.fileport.example".
	BaseURL string
	Login   string
	APIKey  string
	// Timeout bounds one upload end to end.
	Timeout time.Duration
	// TokenTTL is the token refresh margin; defaults to 30 minutes.
	TokenTTL time.Duration
}

// Client uploads files to one host, refreshing its session token when it
// expires. A refresh failure turns the attempt into an immediate AuthError
// rather than a hang.
type Client struct {
	cfg        Config
	httpClient *http.Client

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Minute
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 30 * time.Minute
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *Client) Host() string { return c.cfg.Host }

// Upload pushes the file and returns its public URL. An expired token is
// refreshed once; a second auth failure is surfaced as an AuthError.
func (c *Client) Upload(ctx context.Context, localPath string, progress hosts.ProgressFunc) (string, error) {
	token, err := c.ensureToken(ctx, false)
	if err != nil {
		return "", err
	}

	url, err := c.doUpload(ctx, token, localPath, progress)
	if err == nil {
		return url, nil
	}
	if !hosts.IsAuth(err) {
		return "", err
	}

	// Token went stale mid-session; refresh once and retry.
	log.Printf("fileport: token expired for %s, refreshing", c.cfg.Host)
	token, refreshErr := c.ensureToken(ctx, true)
	if refreshErr != nil {
		return "", refreshErr
	}
	return c.doUpload(ctx, token, localPath, progress)
}

// ensureToken returns a valid session token, logging in when none is cached
// or force is set.
func (c *Client) ensureToken(ctx context.Context, force bool) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !force && c.token != "" && time.Now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	body, err := json.Marshal(map[string]string{
		"login":   c.cfg.Login,
		"api_key": c.cfg.APIKey,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/api/token", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", hosts.ErrCancelled
		}
		return "", &hosts.AuthError{Host: c.cfg.Host, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &hosts.AuthError{Host: c.cfg.Host, Err: fmt.Errorf("token request: %s", resp.Status)}
	}

	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil || out.Token == "" {
		return "", &hosts.AuthError{Host: c.cfg.Host, Err: fmt.Errorf("malformed token response")}
	}

	c.token = out.Token
	c.tokenExpiry = time.Now().Add(c.cfg.TokenTTL)
	return c.token, nil
}

func (c *Client) doUpload(ctx context.Context, token, localPath string, progress hosts.ProgressFunc) (string, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open artifact: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return "", fmt.Errorf("stat artifact: %w", err)
	}

	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)

	go func() {
		part, err := writer.CreateFormFile("file", filepath.Base(localPath))
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		counted := &countingReader{r: file, total: info.Size(), progress: progress}
		if _, err := io.Copy(part, counted); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(writer.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/api/upload", pr)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", hosts.ErrCancelled
		}
		return "", &hosts.TransferError{Host: c.cfg.Host, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", &hosts.AuthError{Host: c.cfg.Host, Err: fmt.Errorf("status %s", resp.Status)}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return "", &hosts.TransferError{Host: c.cfg.Host, Err: fmt.Errorf("bad status: %s", resp.Status)}
	}

	var out struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil || out.URL == "" {
		return "", &hosts.TransferError{Host: c.cfg.Host, Err: fmt.Errorf("malformed upload response")}
	}
	return out.URL, nil
}

// countingReader reports cumulative read progress against a known total.
type countingReader struct {
	r        io.Reader
	done     int64
	total    int64
	progress hosts.ProgressFunc
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.done += int64(n)
		if c.progress != nil {
			c.progress(c.done, c.total)
		}
	}
	return n, err
}

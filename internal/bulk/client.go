// Package bulk integrates an external bulk download manager (a JDownloader
// style engine exposing a small HTTP API). When the engine is reachable the
// download scheduler raises its concurrency cap and routes transfers through
// it; when it is not, downloads fall back to the per-host capabilities with
// a conservative cap.
package bulk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"
)

// PackageState mirrors the engine's lifecycle for one submitted link set.
type PackageState string

const (
	StateQueued   PackageState = "queued"
	StateRunning  PackageState = "running"
	StateFinished PackageState = "finished"
	StateFailed   PackageState = "failed"
)

// PackageStatus is the engine's progress report for one package.
type PackageStatus struct {
	ID         string       `json:"id"`
	State      PackageState `json:"state"`
	BytesDone  int64        `json:"bytes_done"`
	BytesTotal int64        `json:"bytes_total"`
	Error      string       `json:"error,omitempty"`
}

// Client talks to the engine. A zero base URL means "no engine configured";
// every probe then reports unavailable.
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu        sync.Mutex
	available bool
	checkedAt time.Time
}

// availabilityTTL caches the health probe so the scheduler loop doesn't
// hammer the engine.
const availabilityTTL = 10 * time.Second

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Available probes the engine's health endpoint, caching the result briefly.
func (c *Client) Available(ctx context.Context) bool {
	if c.baseURL == "" {
		return false
	}

	c.mu.Lock()
	if time.Since(c.checkedAt) < availabilityTTL {
		ok := c.available
		c.mu.Unlock()
		return ok
	}
	c.mu.Unlock()

	ok := c.probe(ctx)

	c.mu.Lock()
	c.available = ok
	c.checkedAt = time.Now()
	c.mu.Unlock()
	return ok
}

func (c *Client) probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Submit hands a set of links to the engine for delivery into destDir and
// returns the engine's package id.
func (c *Client) Submit(ctx context.Context, urls []string, destDir string) (string, error) {
	body, err := json.Marshal(map[string]interface{}{
		"urls":        urls,
		"destination": destDir,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/packages", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("submit package: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("submit package: %s", resp.Status)
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil || out.ID == "" {
		return "", fmt.Errorf("malformed submit response")
	}
	return out.ID, nil
}

// Status fetches the current progress of one package.
func (c *Client) Status(ctx context.Context, id string) (PackageStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/packages/"+id, nil)
	if err != nil {
		return PackageStatus{}, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return PackageStatus{}, fmt.Errorf("package status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return PackageStatus{}, fmt.Errorf("package status: %s", resp.Status)
	}

	var status PackageStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return PackageStatus{}, fmt.Errorf("malformed status response: %w", err)
	}
	return status, nil
}

// HardStop aborts everything the engine is doing. Best effort: failures are
// logged, never propagated, because it only runs during cancellation.
func (c *Client) HardStop(ctx context.Context) {
	if c.baseURL == "" {
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/stop", nil)
	if err != nil {
		return
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("bulk: hard stop failed: %v", err)
		return
	}
	resp.Body.Close()
	log.Println("bulk: hard stop issued")
}

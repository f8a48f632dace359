// Package mockhost provides a scriptable in-memory host capability for
// development and testing. It simulates transfers with configurable tick
// counts and failures without touching the network.
package mockhost

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/smahi/mirrorbot/internal/hosts"
	"github.com/smahi/mirrorbot/internal/util"
)

// Behavior scripts how one URL or path behaves during a transfer.
type Behavior struct {
	Ticks     int           // progress callbacks before completion; default 2
	Fail      bool          // fail after the ticks run out
	AuthFail  bool          // fail with an AuthError instead of a TransferError
	TickDelay time.Duration // pause between ticks; default 1ms
	Size      int64         // reported total bytes; default 1 MiB
}

// Host is a fake file-hosting service implementing both capabilities.
type Host struct {
	name string

	mu        sync.Mutex
	behaviors map[string]Behavior
	downloads []string
	uploads   []string
	seq       int
}

func New(name string) *Host {
	return &Host{
		name:      name,
		behaviors: make(map[string]Behavior),
	}
}

func (h *Host) Host() string { return h.name }

// Script sets the behavior for one URL or local path. Unscripted transfers
// succeed with the default behavior.
func (h *Host) Script(key string, b Behavior) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.behaviors[key] = b
}

// Downloads returns every URL passed to Download, in call order.
func (h *Host) Downloads() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.downloads))
	copy(out, h.downloads)
	return out
}

// Uploads returns every path passed to Upload, in call order.
func (h *Host) Uploads() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.uploads))
	copy(out, h.uploads)
	return out
}

func (h *Host) behaviorFor(key string) Behavior {
	h.mu.Lock()
	defer h.mu.Unlock()
	b := h.behaviors[key]
	if b.Ticks <= 0 {
		b.Ticks = 2
	}
	if b.TickDelay <= 0 {
		b.TickDelay = time.Millisecond
	}
	if b.Size <= 0 {
		b.Size = 1 << 20
	}
	return b
}

func (h *Host) run(ctx context.Context, key string, b Behavior, progress hosts.ProgressFunc) error {
	for i := 1; i <= b.Ticks; i++ {
		select {
		case <-ctx.Done():
			return hosts.ErrCancelled
		case <-time.After(b.TickDelay):
		}
		if progress != nil {
			progress(b.Size*int64(i)/int64(b.Ticks), b.Size)
		}
	}
	if b.AuthFail {
		return &hosts.AuthError{Host: h.name, Err: fmt.Errorf("scripted auth failure for %s", key)}
	}
	if b.Fail {
		return &hosts.TransferError{Host: h.name, Err: fmt.Errorf("scripted failure for %s", key)}
	}
	return nil
}

// Download simulates a fetch and writes a small placeholder file.
func (h *Host) Download(ctx context.Context, url, destDir string, progress hosts.ProgressFunc) (string, error) {
	h.mu.Lock()
	h.downloads = append(h.downloads, url)
	h.seq++
	seq := h.seq
	h.mu.Unlock()

	b := h.behaviorFor(url)
	if err := h.run(ctx, url, b, progress); err != nil {
		return "", err
	}

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", err
	}
	dest := filepath.Join(destDir, fmt.Sprintf("%s_%03d.bin", util.SanitizeName(h.name), seq))
	if err := os.WriteFile(dest, []byte(url), 0644); err != nil {
		return "", err
	}
	return dest, nil
}

// Upload simulates a publish and returns a deterministic fake URL.
func (h *Host) Upload(ctx context.Context, localPath string, progress hosts.ProgressFunc) (string, error) {
	h.mu.Lock()
	h.uploads = append(h.uploads, localPath)
	h.seq++
	seq := h.seq
	h.mu.Unlock()

	b := h.behaviorFor(localPath)
	if err := h.run(ctx, localPath, b, progress); err != nil {
		return "", err
	}
	return fmt.Sprintf("https://%s/f/%d/%s", h.name, seq, filepath.Base(localPath)), nil
}

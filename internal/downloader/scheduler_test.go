package downloader

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smahi/mirrorbot/internal/hosts"
	"github.com/smahi/mirrorbot/internal/hosts/mockhost"
	"github.com/smahi/mirrorbot/internal/models"
	"github.com/smahi/mirrorbot/internal/status"
)

func newTestScheduler(t *testing.T, set *hosts.Set, post PostProcessFunc) (*Scheduler, *status.Registry) {
	t.Helper()
	registry := status.New(status.DefaultGrace)
	s := New(registry, set, nil, Config{
		DestDir:      t.TempDir(),
		HostPriority: []string{"h1.example", "h2.example"},
	}, post)
	s.tick = 10 * time.Millisecond
	return s, registry
}

func TestFallbackCompletesItem(t *testing.T) {
	h1 := mockhost.New("h1.example")
	h2 := mockhost.New("h2.example")
	h1.Script("https://h1.example/f/2", mockhost.Behavior{Fail: true})

	set := hosts.NewSet()
	set.RegisterDownloader(h1)
	set.RegisterDownloader(h2)

	var postCalls atomic.Int32
	var gotFiles []string
	s, _ := newTestScheduler(t, set, func(section, title string, files []string) error {
		postCalls.Add(1)
		gotFiles = files
		return nil
	})

	item := models.ContentItem{
		Section: "Ebooks",
		Title:   "Fallback Release",
		LinksByHost: map[string][]string{
			"h1.example": {"https://h1.example/f/1", "https://h1.example/f/2"},
			"h2.example": {"https://h2.example/alt/1"},
		},
	}

	require.NoError(t, s.Run(context.Background(), []models.ContentItem{item}))

	assert.Equal(t, int32(1), postCalls.Load(), "post-processing must run exactly once")
	assert.Len(t, gotFiles, 2, "both required links delivered, one via fallback")
	assert.Len(t, h2.Downloads(), 1, "the fallback host served exactly one link")
}

func TestEndToEndOperationRecords(t *testing.T) {
	h1 := mockhost.New("h1.example")
	h2 := mockhost.New("h2.example")
	h1.Script("https://h1.example/f/2", mockhost.Behavior{Fail: true})
	h2.Script("https://h2.example/alt/1", mockhost.Behavior{Ticks: 3})

	set := hosts.NewSet()
	set.RegisterDownloader(h1)
	set.RegisterDownloader(h2)

	var postCalls atomic.Int32
	s, registry := newTestScheduler(t, set, func(section, title string, files []string) error {
		postCalls.Add(1)
		assert.Len(t, files, 2)
		return nil
	})

	item := models.ContentItem{
		Section: "Ebooks",
		Title:   "Three Links",
		LinksByHost: map[string][]string{
			"h1.example": {"https://h1.example/f/1", "https://h1.example/f/2"},
			"h2.example": {"https://h2.example/alt/1"},
		},
	}
	require.NoError(t, s.Run(context.Background(), []models.ContentItem{item}))

	var completed, failed int
	for _, op := range registry.GetAll() {
		if op.Kind != models.KindDownload {
			continue
		}
		switch op.Status {
		case models.StatusCompleted:
			completed++
		case models.StatusFailed:
			failed++
		}
	}
	assert.Equal(t, 2, completed, "the good primary link plus the fallback")
	assert.Equal(t, 1, failed, "the dead primary link stays visible as failed")
	assert.Equal(t, int32(1), postCalls.Load())
}

// gateHost counts concurrent Download calls so tests can observe the cap.
type gateHost struct {
	name  string
	delay time.Duration

	mu        sync.Mutex
	active    int
	maxActive int
	calls     int
}

func (g *gateHost) Host() string { return g.name }

func (g *gateHost) Download(ctx context.Context, url, destDir string, progress hosts.ProgressFunc) (string, error) {
	g.mu.Lock()
	g.active++
	g.calls++
	if g.active > g.maxActive {
		g.maxActive = g.active
	}
	g.mu.Unlock()
	defer func() {
		g.mu.Lock()
		g.active--
		g.mu.Unlock()
	}()

	select {
	case <-ctx.Done():
		return "", hosts.ErrCancelled
	case <-time.After(g.delay):
	}
	return filepath.Join(destDir, filepath.Base(url)), nil
}

func (g *gateHost) stats() (maxActive, calls int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.maxActive, g.calls
}

func TestConcurrencyBound(t *testing.T) {
	gate := &gateHost{name: "h1.example", delay: 30 * time.Millisecond}
	set := hosts.NewSet()
	set.RegisterDownloader(gate)

	var postCalls atomic.Int32
	s, _ := newTestScheduler(t, set, func(section, title string, files []string) error {
		postCalls.Add(1)
		return nil
	})
	s.cfg.MaxConcurrent = 4

	links := make([]string, 20)
	for i := range links {
		links[i] = "https://h1.example/f/" + string(rune('a'+i))
	}
	item := models.ContentItem{
		Section:     "Ebooks",
		Title:       "Big Batch",
		LinksByHost: map[string][]string{"h1.example": links},
	}

	require.NoError(t, s.Run(context.Background(), []models.ContentItem{item}))

	maxActive, calls := gate.stats()
	assert.Equal(t, 20, calls, "every job ran")
	assert.LessOrEqual(t, maxActive, 4, "never more than the cap in flight")
	assert.Equal(t, int32(1), postCalls.Load())
}

func TestCancelDrainsQueue(t *testing.T) {
	gate := &gateHost{name: "h1.example", delay: 5 * time.Second}
	set := hosts.NewSet()
	set.RegisterDownloader(gate)

	s, _ := newTestScheduler(t, set, nil)
	s.cfg.MaxConcurrent = 2

	item := models.ContentItem{
		Section: "Ebooks",
		Title:   "Doomed Batch",
		LinksByHost: map[string][]string{"h1.example": {
			"https://h1.example/1", "https://h1.example/2",
			"https://h1.example/3", "https://h1.example/4",
			"https://h1.example/5", "https://h1.example/6",
		}},
	}

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background(), []models.ContentItem{item}) }()

	time.Sleep(50 * time.Millisecond)
	s.Cancel()
	s.Cancel() // idempotent

	select {
	case err := <-done:
		assert.ErrorIs(t, err, hosts.ErrCancelled)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	_, calls := gate.stats()
	assert.LessOrEqual(t, calls, 2, "queued jobs were drained, not dispatched")
}

func TestPauseHoldsDispatch(t *testing.T) {
	h1 := mockhost.New("h1.example")
	set := hosts.NewSet()
	set.RegisterDownloader(h1)

	s, _ := newTestScheduler(t, set, nil)
	s.SetPaused(true)

	item := models.ContentItem{
		Section:     "Ebooks",
		Title:       "Held Batch",
		LinksByHost: map[string][]string{"h1.example": {"https://h1.example/1"}},
	}

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background(), []models.ContentItem{item}) }()

	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, h1.Downloads(), "nothing dispatched while paused")

	s.SetPaused(false)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not finish after resume")
	}
	assert.Len(t, h1.Downloads(), 1)
}

func TestExhaustedFallbackStillAdvancesItem(t *testing.T) {
	h1 := mockhost.New("h1.example")
	h1.Script("https://h1.example/f/1", mockhost.Behavior{Fail: true})

	set := hosts.NewSet()
	set.RegisterDownloader(h1)

	var postCalls atomic.Int32
	var gotFiles []string
	s, _ := newTestScheduler(t, set, func(section, title string, files []string) error {
		postCalls.Add(1)
		gotFiles = files
		return nil
	})

	item := models.ContentItem{
		Section: "Ebooks",
		Title:   "Partial Release",
		LinksByHost: map[string][]string{
			"h1.example": {"https://h1.example/f/1", "https://h1.example/f/2"},
		},
	}
	require.NoError(t, s.Run(context.Background(), []models.ContentItem{item}))

	assert.Equal(t, int32(1), postCalls.Load(), "a dead link never deadlocks its siblings")
	assert.Len(t, gotFiles, 1, "only the successful link's file is collected")
}

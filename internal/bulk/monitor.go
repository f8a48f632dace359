package bulk

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Monitor watches a delivery directory for files the engine drops there.
// The engine reports byte progress but not file names, so the monitor is
// how we learn what actually arrived.
type Monitor struct {
	dir     string
	watcher *fsnotify.Watcher

	mu    sync.Mutex
	files map[string]struct{}

	closeOnce sync.Once
	done      chan struct{}
}

// NewMonitor starts watching dir. Files already present are counted too, so
// a monitor started late still reports a complete set.
func NewMonitor(dir string) (*Monitor, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}

	m := &Monitor{
		dir:     dir,
		watcher: watcher,
		files:   make(map[string]struct{}),
		done:    make(chan struct{}),
	}

	entries, err := os.ReadDir(dir)
	if err == nil {
		for _, e := range entries {
			if !e.IsDir() && !isPartial(e.Name()) {
				m.files[filepath.Join(dir, e.Name())] = struct{}{}
			}
		}
	}

	go m.loop()
	return m, nil
}

func (m *Monitor) loop() {
	for {
		select {
		case <-m.done:
			return
		case ev, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			name := filepath.Base(ev.Name)
			if isPartial(name) {
				continue
			}
			if info, err := os.Stat(ev.Name); err != nil || info.IsDir() {
				continue
			}
			m.mu.Lock()
			m.files[ev.Name] = struct{}{}
			m.mu.Unlock()
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("bulk: watcher error on %s: %v", m.dir, err)
		}
	}
}

// Files returns the paths seen so far.
func (m *Monitor) Files() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.files))
	for f := range m.files {
		out = append(out, f)
	}
	return out
}

// Close stops the watcher. Safe to call more than once, from any goroutine.
func (m *Monitor) Close() {
	m.closeOnce.Do(func() {
		close(m.done)
		m.watcher.Close()
	})
}

// isPartial filters the engine's in-progress temp files.
func isPartial(name string) bool {
	return strings.HasSuffix(name, ".part") ||
		strings.HasSuffix(name, ".tmp") ||
		strings.HasSuffix(name, ".partial")
}

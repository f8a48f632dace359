package downloader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smahi/mirrorbot/internal/models"
)

func TestPlanItemPrimarySelection(t *testing.T) {
	item := models.ContentItem{
		Section: "Ebooks",
		Title:   "Some Release",
		LinksByHost: map[string][]string{
			"katfile.com":    {"https://katfile.com/a", "https://katfile.com/b"},
			"rapidgator.net": {"https://rapidgator.net/x"},
			"mega.nz":        {"https://mega.nz/y"},
		},
	}
	priority := []string{"rapidgator.net", "katfile.com", "mega.nz"}

	jobs, chain := planItem(item, priority, t.TempDir())
	require.Len(t, jobs, 1, "rapidgator is first in priority and has one link")
	assert.Equal(t, "rapidgator.net", jobs[0].Host)
	assert.Equal(t, "https://rapidgator.net/x", jobs[0].URL)

	// Fallbacks keep the priority order: katfile's two links before mega's.
	require.Len(t, chain, 3)
	assert.Equal(t, "https://katfile.com/a", chain[0])
	assert.Equal(t, "https://katfile.com/b", chain[1])
	assert.Equal(t, "https://mega.nz/y", chain[2])
}

func TestPlanItemSkipsEmptyPriorityHosts(t *testing.T) {
	item := models.ContentItem{
		Section: "Ebooks",
		Title:   "Another Release",
		LinksByHost: map[string][]string{
			"rapidgator.net": {},
			"Katfile.com":    {"https://katfile.com/a"},
		},
	}
	priority := []string{"rapidgator.net", "katfile.com"}

	jobs, chain := planItem(item, priority, t.TempDir())
	require.Len(t, jobs, 1)
	assert.Equal(t, "katfile.com", jobs[0].Host, "empty host skipped, names matched case-insensitively")
	assert.Empty(t, chain)
}

func TestPlanItemUnknownHostsStillWork(t *testing.T) {
	item := models.ContentItem{
		Section: "Ebooks",
		Title:   "Off List",
		LinksByHost: map[string][]string{
			"zzz.example": {"https://zzz.example/1"},
			"aaa.example": {"https://aaa.example/1"},
		},
	}

	jobs, chain := planItem(item, []string{"rapidgator.net"}, t.TempDir())
	require.Len(t, jobs, 1)
	assert.Equal(t, "aaa.example", jobs[0].Host, "deterministic pick when no priority host has links")
	require.Len(t, chain, 1)
	assert.Equal(t, "https://zzz.example/1", chain[0])
}

func TestPlanItemNoLinks(t *testing.T) {
	jobs, chain := planItem(models.ContentItem{Title: "Empty"}, nil, t.TempDir())
	assert.Nil(t, jobs)
	assert.Nil(t, chain)
}

package downloader

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/smahi/mirrorbot/internal/models"
	"github.com/smahi/mirrorbot/internal/util"
)

// planItem selects the primary host for one content item and builds its jobs.
// The configured priority list is walked in order; the first host that has at
// least one link becomes the primary, and its links are the required work.
// Links on every other host are pooled into a shared fallback chain that any
// of the item's jobs may draw from once its own attempt fails.
func planItem(item models.ContentItem, priority []string, destDir string) ([]*models.DownloadJob, []string) {
	links := make(map[string][]string, len(item.LinksByHost))
	var present []string
	for h, ls := range item.LinksByHost {
		if len(ls) == 0 {
			continue
		}
		n := normalizeHost(h)
		if _, seen := links[n]; !seen {
			present = append(present, n)
		}
		links[n] = append(links[n], ls...)
	}
	if len(present) == 0 {
		return nil, nil
	}
	sort.Strings(present)

	primary := ""
	for _, p := range priority {
		if len(links[normalizeHost(p)]) > 0 {
			primary = normalizeHost(p)
			break
		}
	}
	if primary == "" {
		// No priority host carries links; fall back to the first host name
		// alphabetically so the choice stays deterministic.
		primary = present[0]
	}

	// Fallback links keep the priority order, then any remaining hosts sorted.
	taken := map[string]bool{primary: true}
	var chain []string
	for _, p := range priority {
		n := normalizeHost(p)
		if taken[n] {
			continue
		}
		taken[n] = true
		chain = append(chain, links[n]...)
	}
	for _, h := range present {
		if taken[h] {
			continue
		}
		taken[h] = true
		chain = append(chain, links[h]...)
	}

	key := itemKey(item)
	dest := filepath.Join(destDir, util.SanitizeName(item.Title))
	jobs := make([]*models.DownloadJob, 0, len(links[primary]))
	for i, u := range links[primary] {
		jobs = append(jobs, &models.DownloadJob{
			ID:          fmt.Sprintf("%s#%d", key, i+1),
			ItemKey:     key,
			Section:     item.Section,
			ItemTitle:   item.Title,
			Host:        primary,
			URL:         u,
			Destination: dest,
		})
	}
	return jobs, chain
}

func itemKey(item models.ContentItem) string {
	return item.Section + "/" + item.Title
}

func normalizeHost(host string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(host)), "www.")
}

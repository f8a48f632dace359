// To handle all database interactions. This is our data access layer,
// keeping SQL queries separate from business logic.

package store

import (
	"database/sql"
	"time"

	"github.com/smahi/mirrorbot/internal/models"
)

// Store provides all functions to interact with the database.
type Store struct {
	db *sql.DB
}

// New creates a new Store instance.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// RecordRelease saves one published (item, host, url) row. Re-recording the
// same row is a no-op, so upload retries can safely replay their results.
func (s *Store) RecordRelease(section, itemTitle, host, url string) error {
	_, err := s.db.Exec(`
        INSERT OR IGNORE INTO published_releases (section, item_title, host, url, created_at)
        VALUES (?, ?, ?, ?, ?)
    `, section, itemTitle, host, url, time.Now())
	return err
}

// RecordBatch saves every URL of a finished multi-host upload in a single
// transaction.
func (s *Store) RecordBatch(section, itemTitle string, urlsByHost map[string][]string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
        INSERT OR IGNORE INTO published_releases (section, item_title, host, url, created_at)
        VALUES (?, ?, ?, ?, ?)
    `)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now()
	for host, urls := range urlsByHost {
		for _, u := range urls {
			if _, err := stmt.Exec(section, itemTitle, host, u, now); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

// ListReleases returns recent releases, newest first, optionally filtered by
// section. limit <= 0 means no limit.
func (s *Store) ListReleases(section string, limit int) ([]*models.PublishedRelease, error) {
	query := "SELECT id, section, item_title, host, url, created_at FROM published_releases"
	args := []interface{}{}
	if section != "" {
		query += " WHERE section = ?"
		args = append(args, section)
	}
	query += " ORDER BY created_at DESC, id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanReleases(rows)
}

// ReleasesForItem returns every recorded release of one item.
func (s *Store) ReleasesForItem(section, itemTitle string) ([]*models.PublishedRelease, error) {
	rows, err := s.db.Query(`
        SELECT id, section, item_title, host, url, created_at
        FROM published_releases
        WHERE section = ? AND item_title = ?
        ORDER BY host ASC, id ASC
    `, section, itemTitle)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanReleases(rows)
}

// DeleteRelease removes one release row.
func (s *Store) DeleteRelease(id int64) error {
	_, err := s.db.Exec("DELETE FROM published_releases WHERE id = ?", id)
	return err
}

func scanReleases(rows *sql.Rows) ([]*models.PublishedRelease, error) {
	var releases []*models.PublishedRelease
	for rows.Next() {
		var r models.PublishedRelease
		var createdAt time.Time
		if err := rows.Scan(&r.ID, &r.Section, &r.ItemTitle, &r.Host, &r.URL, &createdAt); err != nil {
			return nil, err
		}
		r.CreatedAt = createdAt.Format(time.RFC3339)
		releases = append(releases, &r)
	}
	return releases, rows.Err()
}

package store_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smahi/mirrorbot/internal/store"
	"github.com/smahi/mirrorbot/internal/testutil"
)

func TestRecordAndListReleases(t *testing.T) {
	s := store.New(testutil.SetupTestDB(t))

	require.NoError(t, s.RecordRelease("Ebooks", "Release A", "h1.example", "https://h1.example/f/1"))
	require.NoError(t, s.RecordRelease("Ebooks", "Release A", "h2.example", "https://h2.example/f/9"))
	require.NoError(t, s.RecordRelease("Audio", "Release B", "h1.example", "https://h1.example/f/2"))

	all, err := s.ListReleases("", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	ebooks, err := s.ListReleases("Ebooks", 0)
	require.NoError(t, err)
	assert.Len(t, ebooks, 2)

	one, err := s.ListReleases("", 1)
	require.NoError(t, err)
	assert.Len(t, one, 1)
}

func TestRecordReleaseIsIdempotent(t *testing.T) {
	s := store.New(testutil.SetupTestDB(t))

	require.NoError(t, s.RecordRelease("Ebooks", "Release A", "h1.example", "https://h1.example/f/1"))
	require.NoError(t, s.RecordRelease("Ebooks", "Release A", "h1.example", "https://h1.example/f/1"))

	all, err := s.ListReleases("", 0)
	require.NoError(t, err)
	assert.Len(t, all, 1, "replaying an upload result must not duplicate rows")
}

func TestRecordBatch(t *testing.T) {
	s := store.New(testutil.SetupTestDB(t))

	err := s.RecordBatch("Ebooks", "Release A", map[string][]string{
		"h1.example": {"https://h1.example/f/1"},
		"h2.example": {"https://h2.example/f/2", "https://h2.example/f/3"},
	})
	require.NoError(t, err)

	releases, err := s.ReleasesForItem("Ebooks", "Release A")
	require.NoError(t, err)
	require.Len(t, releases, 3)
	assert.Equal(t, "h1.example", releases[0].Host, "sorted by host")
}

func TestDeleteRelease(t *testing.T) {
	s := store.New(testutil.SetupTestDB(t))

	require.NoError(t, s.RecordRelease("Ebooks", "Release A", "h1.example", "https://h1.example/f/1"))
	all, err := s.ListReleases("", 0)
	require.NoError(t, err)
	require.Len(t, all, 1)

	require.NoError(t, s.DeleteRelease(all[0].ID))
	all, err = s.ListReleases("", 0)
	require.NoError(t, err)
	assert.Empty(t, all)
}

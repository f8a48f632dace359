package db_test

import (
	"testing"

	"github.com/smahi/mirrorbot/internal/testutil"
)

func TestMigrationsCreateSchema(t *testing.T) {
	database := testutil.SetupTestDB(t)

	var foreignKeysEnabled int
	if err := database.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeysEnabled); err != nil {
		t.Fatalf("Failed to check foreign keys status: %v", err)
	}

	// The releases table exists and enforces its uniqueness constraint.
	_, err := database.Exec(
		"INSERT INTO published_releases (section, item_title, host, url) VALUES (?, ?, ?, ?)",
		"Ebooks", "Some Release", "h1.example", "https://h1.example/f/1")
	if err != nil {
		t.Fatalf("Failed to insert release: %v", err)
	}
	_, err = database.Exec(
		"INSERT INTO published_releases (section, item_title, host, url) VALUES (?, ?, ?, ?)",
		"Ebooks", "Some Release", "h1.example", "https://h1.example/f/1")
	if err == nil {
		t.Error("Duplicate (item, host, url) insert should violate the unique constraint")
	}
}

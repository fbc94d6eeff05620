package store

import (
	"bytes"
	"path/filepath"
	"testing"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrateIdempotent(t *testing.T) {
	db := testDB(t)

	// testDB already ran Migrate; a second run must be a no-op.
	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if result.Changed {
		t.Error("second Migrate() should report Changed=false")
	}
	if result.Version != 1 {
		t.Errorf("version = %d, want 1", result.Version)
	}
}

func TestLoadMissingIsNotAnError(t *testing.T) {
	db := testDB(t)

	blob, found, err := db.LoadCredentials("default")
	if err != nil {
		t.Fatalf("LoadCredentials() error = %v", err)
	}
	if found {
		t.Error("found = true for a fresh store, want false")
	}
	if blob != nil {
		t.Errorf("blob = %v, want nil", blob)
	}
}

func TestSaveAndLoad(t *testing.T) {
	db := testDB(t)

	want := []byte(`{"jid":"5585999000000@s.whatsapp.net"}`)
	if err := db.SaveCredentials("default", want); err != nil {
		t.Fatalf("SaveCredentials() error = %v", err)
	}

	got, found, err := db.LoadCredentials("default")
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Fatal("found = false after save")
	}
	if !bytes.Equal(got, want) {
		t.Errorf("blob = %q, want %q", got, want)
	}
}

func TestSaveUpdatesInPlace(t *testing.T) {
	db := testDB(t)

	if err := db.SaveCredentials("default", []byte("old")); err != nil {
		t.Fatal(err)
	}
	if err := db.SaveCredentials("default", []byte("new")); err != nil {
		t.Fatal(err)
	}

	got, _, err := db.LoadCredentials("default")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "new" {
		t.Errorf("blob = %q, want %q (upsert must replace)", got, "new")
	}

	// One row per session, updated not duplicated.
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM credentials`).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("rows = %d, want 1", count)
	}
}

func TestDelete(t *testing.T) {
	db := testDB(t)

	if err := db.SaveCredentials("default", []byte("blob")); err != nil {
		t.Fatal(err)
	}
	if err := db.DeleteCredentials("default"); err != nil {
		t.Fatalf("DeleteCredentials() error = %v", err)
	}

	_, found, err := db.LoadCredentials("default")
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Error("found = true after delete")
	}

	// Deleting again is fine.
	if err := db.DeleteCredentials("default"); err != nil {
		t.Errorf("second DeleteCredentials() error = %v", err)
	}
}

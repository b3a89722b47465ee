package filestore

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"companion/internal/session"
)

func sample(id string, created time.Time) session.Persisted {
	return session.Persisted{
		ID:        id,
		Name:      "name-" + id,
		CWD:       "/tmp",
		Messages:  []session.ChatMessage{{Role: session.RoleUser, Content: "hi", Timestamp: created}},
		Tasks:     []session.TaskItem{{ID: "1", Subject: "t", Status: session.TaskCompleted}},
		CreatedAt: created,
		Archived:  true,
	}
}

func TestStore_SaveAndLoadRoundTrip(t *testing.T) {
	t.Parallel()

	baseDir := t.TempDir()
	store, err := New(filepath.Join(baseDir, "sessions"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := store.Save(sample("a", created)); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	// Use a fresh store to ensure data round-trips through disk
	reloaded, err := New(filepath.Join(baseDir, "sessions"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	got, err := reloaded.Load("a")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !got.Archived || got.Name != "name-a" || len(got.Messages) != 1 || len(got.Tasks) != 1 {
		t.Fatalf("unexpected round-trip result: %+v", got)
	}
	if !got.CreatedAt.Equal(created) {
		t.Fatalf("expected created_at %v, got %v", created, got.CreatedAt)
	}
}

func TestStore_SaveOverwritesWithoutLeftovers(t *testing.T) {
	t.Parallel()

	baseDir := t.TempDir()
	store, err := New(baseDir)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	p := sample("a", time.Now())
	if err := store.Save(p); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	p.Name = "renamed"
	if err := store.Save(p); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	entries, err := os.ReadDir(baseDir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "a.json" {
		t.Fatalf("expected only a.json, got %v", entries)
	}
	got, _ := store.Load("a")
	if got.Name != "renamed" {
		t.Fatalf("expected overwrite, got %q", got.Name)
	}
}

func TestStore_LoadAllSkipsCorruptFilesAndSorts(t *testing.T) {
	t.Parallel()

	baseDir := t.TempDir()
	store, err := New(baseDir)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, p := range []session.Persisted{
		sample("late", base.Add(time.Hour)),
		sample("early", base),
		sample("b-tie", base.Add(time.Minute)),
		sample("a-tie", base.Add(time.Minute)),
	} {
		if err := store.Save(p); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}
	if err := os.WriteFile(filepath.Join(baseDir, "broken.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}
	if err := os.WriteFile(filepath.Join(baseDir, "notes.txt"), []byte("ignored"), 0o644); err != nil {
		t.Fatalf("write stray file: %v", err)
	}

	all, err := store.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}
	want := []string{"early", "a-tie", "b-tie", "late"}
	if len(all) != len(want) {
		t.Fatalf("expected %d sessions, got %d", len(want), len(all))
	}
	for i, id := range want {
		if all[i].ID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, all[i].ID)
		}
	}
}

func TestStore_DeleteIsIdempotent(t *testing.T) {
	t.Parallel()

	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := store.Save(sample("gone", time.Now())); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := store.Delete("gone"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := store.Delete("gone"); err != nil {
		t.Fatalf("second Delete() error = %v", err)
	}
	if _, err := store.Load("gone"); err == nil {
		t.Fatalf("expected Load() to fail after delete")
	}
}

func TestStore_SaveRequiresID(t *testing.T) {
	t.Parallel()

	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := store.Save(session.Persisted{}); err == nil {
		t.Fatalf("expected error for missing id")
	}
}

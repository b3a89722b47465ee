package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"companion/internal/logging"
	"companion/internal/session"
	"companion/internal/session/filestore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	saved   map[string]session.Persisted
	deleted []string
	loadErr error
}

func newMemStore() *memStore {
	return &memStore{saved: map[string]session.Persisted{}}
}

func (m *memStore) Save(p session.Persisted) error {
	m.saved[p.ID] = p
	return nil
}

func (m *memStore) Delete(id string) error {
	m.deleted = append(m.deleted, id)
	delete(m.saved, id)
	return nil
}

func (m *memStore) LoadAll() ([]session.Persisted, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	out := make([]session.Persisted, 0, len(m.saved))
	for _, p := range m.saved {
		out = append(out, p)
	}
	return out, nil
}

type abortCounter struct{ n int }

func (a *abortCounter) Abort() { a.n++ }

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func newTestRegistry(store Store) *Registry {
	return New(store, WithIDGenerator(sequentialIDs()), WithLogger(logging.Nop()))
}

func TestCreateActivatesAndSchedulesSpawn(t *testing.T) {
	r := newTestRegistry(nil)
	s := r.Create("", "/tmp", "work")

	assert.Equal(t, "id-1", s.ID)
	assert.NotEmpty(t, s.Name)
	assert.Equal(t, "work", s.EnvProfile)
	assert.Equal(t, s.ID, r.ActiveID())
	assert.Equal(t, []string{"id-1"}, r.TakeSpawns())
	assert.Empty(t, r.TakeSpawns())

	r.CreateDetached("manual", "/tmp", "")
	assert.Equal(t, "id-2", r.ActiveID())
	assert.Empty(t, r.TakeSpawns())
}

func TestScheduleSpawnDeduplicates(t *testing.T) {
	r := newTestRegistry(nil)
	r.ScheduleSpawn("a")
	r.ScheduleSpawn("a")
	assert.Equal(t, []string{"a"}, r.TakeSpawns())
}

func TestNavigationSkipsArchived(t *testing.T) {
	r := newTestRegistry(nil)
	a := r.CreateDetached("a", "/", "")
	b := r.CreateDetached("b", "/", "")
	c := r.CreateDetached("c", "/", "")
	b.Archived = true

	require.True(t, r.SwitchTo(a.ID))
	assert.True(t, r.Next())
	assert.Equal(t, c.ID, r.ActiveID())
	assert.True(t, r.Next())
	assert.Equal(t, a.ID, r.ActiveID())
	assert.True(t, r.Prev())
	assert.Equal(t, c.ID, r.ActiveID())

	assert.True(t, r.SwitchToIndex(0))
	assert.Equal(t, a.ID, r.ActiveID())
	assert.False(t, r.SwitchToIndex(2))
	assert.Equal(t, a.ID, r.ActiveID())
	assert.False(t, r.SwitchTo("missing"))

	assert.Len(t, r.Visible(), 2)
	assert.Len(t, r.All(), 3)
	assert.Equal(t, 0, r.ActiveIndex())
}

func TestNextWithSingleVisibleIsNoop(t *testing.T) {
	r := newTestRegistry(nil)
	a := r.CreateDetached("a", "/", "")
	assert.False(t, r.Next())
	assert.Equal(t, a.ID, r.ActiveID())
}

func TestKillRemovesAndReassigns(t *testing.T) {
	store := newMemStore()
	r := newTestRegistry(store)
	a := r.Create("a", "/", "")
	b := r.Create("b", "/", "")
	require.NoError(t, r.Persist(a.ID))
	require.NoError(t, r.Persist(b.ID))
	proc := &abortCounter{}
	b.SetProcess(proc)

	killed, err := r.Kill()
	require.NoError(t, err)
	assert.Equal(t, b.ID, killed.ID)
	assert.Equal(t, 1, proc.n)
	assert.Equal(t, []string{b.ID}, store.deleted)
	assert.Equal(t, a.ID, r.ActiveID())
	assert.Equal(t, 1, r.Len())
	assert.Equal(t, []string{a.ID}, r.TakeSpawns())

	_, err = r.Kill()
	assert.ErrorIs(t, err, ErrLastSession)
	assert.Equal(t, 1, r.Len())
}

func TestKillArchivedActiveFallsBackToVisible(t *testing.T) {
	r := newTestRegistry(nil)
	a := r.CreateDetached("a", "/", "")
	b := r.CreateDetached("b", "/", "")
	b.Archived = true

	_, err := r.Kill()
	require.NoError(t, err)
	assert.Equal(t, a.ID, r.ActiveID())
}

func TestArchiveAndUnarchive(t *testing.T) {
	store := newMemStore()
	r := newTestRegistry(store)
	a := r.CreateDetached("a", "/", "")
	b := r.CreateDetached("b", "/", "")

	archived, err := r.Archive()
	require.NoError(t, err)
	assert.Equal(t, b.ID, archived.ID)
	assert.True(t, store.saved[b.ID].Archived)
	assert.Equal(t, a.ID, r.ActiveID())

	_, err = r.Archive()
	assert.ErrorIs(t, err, ErrLastSession)
	assert.False(t, a.Archived)

	restored, err := r.Unarchive(1)
	require.NoError(t, err)
	assert.Equal(t, b.ID, restored.ID)
	assert.False(t, store.saved[b.ID].Archived)

	_, err = r.Unarchive(7)
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestLoadRestoresFromFileStore(t *testing.T) {
	dir := t.TempDir()
	store, err := filestore.New(dir)
	require.NoError(t, err)

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.Save(session.Persisted{ID: "old", Name: "old", CreatedAt: base, Archived: true}))
	require.NoError(t, store.Save(session.Persisted{ID: "new", Name: "new", CreatedAt: base.Add(time.Hour)}))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "corrupt.json"), []byte("nope"), 0o644))

	r := newTestRegistry(store)
	n, err := r.Load()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "new", r.ActiveID())
	assert.Equal(t, []string{"old", "new"}, []string{r.All()[0].ID, r.All()[1].ID})

	for _, s := range r.All() {
		assert.Equal(t, session.StatusWaitingForCLI, s.Status)
	}
}

func TestLoadPropagatesStoreError(t *testing.T) {
	store := newMemStore()
	store.loadErr = errors.New("boom")
	_, err := newTestRegistry(store).Load()
	require.Error(t, err)
}

func TestPersistAllWritesEverySession(t *testing.T) {
	store := newMemStore()
	r := newTestRegistry(store)
	r.CreateDetached("a", "/", "")
	r.CreateDetached("b", "/", "")
	require.NoError(t, r.PersistAll())
	assert.Len(t, store.saved, 2)
}

func TestLoadProfiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "work.json"), []byte(`{"description":"Work account","vars":{"ANTHROPIC_API_KEY":"k"}}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bare.json"), []byte(`{}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte(`{`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.md"), []byte(`x`), 0o644))

	profiles, err := LoadProfiles(dir, nil)
	require.NoError(t, err)
	require.Len(t, profiles, 2)
	assert.Equal(t, "bare", profiles[0].Name)
	assert.Equal(t, "work", profiles[1].Name)
	assert.Equal(t, "Work account", profiles[1].Description)

	r := New(nil, WithProfiles(profiles))
	assert.Equal(t, "k", r.ProfileVars("work")["ANTHROPIC_API_KEY"])
	assert.Nil(t, r.ProfileVars("missing"))
	assert.Nil(t, r.ProfileVars(""))

	missing, err := LoadProfiles(filepath.Join(dir, "nope"), nil)
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestGenerateName(t *testing.T) {
	for i := 0; i < 20; i++ {
		parts := strings.Split(GenerateName(), "-")
		require.Len(t, parts, 2)
		assert.Contains(t, adjectives, parts[0])
		assert.Contains(t, nouns, parts[1])
	}
}

package packages

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFileBackedStore(t *testing.T, dir string, clock *fakeClock) *Store {
	t.Helper()
	store, err := NewStore(StoreConfig{
		Submitter:   &submitterStub{},
		Persister:   NewFileStore(dir),
		Pricer:      StaticPricer{Default: 12},
		CountryCode: "258",
		Now:         clock.Now,
	})
	require.NoError(t, err)
	return store
}

func TestFileStore_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	clock := &fakeClock{t: t0}
	store := newFileBackedStore(t, dir, clock)

	for _, ref := range []string{"R1", "R2", "R3"} {
		_, err := store.Create(context.Background(), CreateRequest{Reference: ref, Phone: "841234567", GroupID: "g", PlanKind: "5"})
		require.NoError(t, err)
		clock.Advance(time.Minute)
	}
	clock.Set(t0.Add(RenewalSpacing + time.Hour))
	require.Equal(t, 3, store.Tick(context.Background()).Renewed)
	_, err := store.Cancel("841234567", "R2")
	require.NoError(t, err)

	reloaded := newFileBackedStore(t, dir, clock)

	assert.Equal(t, store.ListActive(""), reloaded.ListActive(""))
	assert.Equal(t, store.History(0), reloaded.History(0))

	_, err = reloaded.Create(context.Background(), CreateRequest{Reference: "R2", Phone: "841234567", PlanKind: "5"})
	assert.ErrorIs(t, err, ErrDuplicateReference, "history survives a restart")
}

func TestFileStore_LoadMissingDirectoryIsEmpty(t *testing.T) {
	fs := NewFileStore(filepath.Join(t.TempDir(), "nope"))

	snap, err := fs.Load()

	require.NoError(t, err)
	assert.Empty(t, snap.Active)
	assert.NotNil(t, snap.Active)
	assert.Empty(t, snap.History)
}

func TestFileStore_FallsBackToBackup(t *testing.T) {
	dir := t.TempDir()
	fs := NewFileStore(dir)
	first := Snapshot{
		Active:  map[string]Subscription{"p_r": {ID: "p_r", Reference: "r", Phone: "p", PlanDays: 3, DaysRemaining: 3}},
		History: []HistoryEntry{{ID: "h1", DerivedReference: "xD2"}},
	}
	require.NoError(t, fs.Save(first))

	second := Snapshot{
		Active:  map[string]Subscription{},
		History: []HistoryEntry{{ID: "h1", DerivedReference: "xD2"}, {ID: "h2", DerivedReference: "xD3"}},
	}
	require.NoError(t, fs.Save(second))

	backup, err := os.ReadFile(filepath.Join(dir, ActiveFileName+".backup"))
	require.NoError(t, err)
	assert.Contains(t, string(backup), `"p_r"`)

	require.NoError(t, os.WriteFile(filepath.Join(dir, ActiveFileName), []byte("{corrupt"), 0o600))

	snap, err := fs.Load()
	require.NoError(t, err)
	assert.Contains(t, snap.Active, "p_r")
	assert.Len(t, snap.History, 2)
}

func TestFileStore_BothFilesCorrupt(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, HistoryFileName), []byte("nope"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, HistoryFileName+".backup"), []byte("nope"), 0o600))

	_, err := NewFileStore(dir).Load()

	assert.ErrorIs(t, err, ErrPersistenceFailure)
}

func TestFileStore_RefusesToEmptyHistory(t *testing.T) {
	dir := t.TempDir()
	fs := NewFileStore(dir)
	require.NoError(t, fs.Save(Snapshot{History: []HistoryEntry{{ID: "h1"}}}))

	err := fs.Save(Snapshot{Active: map[string]Subscription{}})

	require.ErrorIs(t, err, ErrPersistenceFailure)
	snap, err := fs.Load()
	require.NoError(t, err)
	assert.Len(t, snap.History, 1)
}

func TestFileStore_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	fs := NewFileStore(dir)
	require.NoError(t, fs.Save(Snapshot{}))
	require.NoError(t, fs.Save(Snapshot{}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp")
	}
}

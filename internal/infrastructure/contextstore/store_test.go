package contextstore

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loanflow-server/internal/config"
	"loanflow-server/internal/domain/conversation"
)

func testStore(t *testing.T, dir string) *Store {
	t.Helper()
	store, err := NewStore(&config.Config{ContextStoragePath: dir}, zerolog.Nop())
	require.NoError(t, err)
	return store
}

func TestCreateSessionWritesFile(t *testing.T) {
	dir := t.TempDir()
	store := testStore(t, dir)

	ctx, err := store.CreateSession("CUST001")
	require.NoError(t, err)

	assert.NotEmpty(t, ctx.SessionID)
	assert.Equal(t, conversation.StageInitiation, ctx.Stage)
	assert.FileExists(t, filepath.Join(dir, ctx.SessionID+".json"))
	assert.Equal(t, 1, store.Count())
}

func TestGetFallsBackToDisk(t *testing.T) {
	dir := t.TempDir()
	store := testStore(t, dir)

	ctx, err := store.CreateSession("CUST001")
	require.NoError(t, err)
	ctx.AddCollectedData("name", "Rajesh Kumar")
	require.NoError(t, store.Save(ctx))

	// a fresh store has an empty cache and must read the file
	reopened := testStore(t, dir)
	got, ok := reopened.Get(ctx.SessionID)
	require.True(t, ok)
	name, ok := got.GetCollectedValue("name")
	require.True(t, ok)
	assert.Equal(t, "Rajesh Kumar", name)

	_, ok = reopened.Get("sess_missing")
	assert.False(t, ok)
}

func TestRecoverStampsRecoveryInfo(t *testing.T) {
	dir := t.TempDir()
	store := testStore(t, dir)

	ctx, err := store.CreateSession("CUST001")
	require.NoError(t, err)

	recovered, err := store.Recover(ctx.SessionID)
	require.NoError(t, err)
	_, ok := recovered.GetCollectedValue("recovery_info")
	assert.True(t, ok)

	_, err = store.Recover("sess_missing")
	assert.Error(t, err)
}

func TestDeleteRemovesFileAndCache(t *testing.T) {
	dir := t.TempDir()
	store := testStore(t, dir)

	ctx, err := store.CreateSession("CUST001")
	require.NoError(t, err)
	require.NoError(t, store.Delete(ctx.SessionID))

	assert.NoFileExists(t, filepath.Join(dir, ctx.SessionID+".json"))
	assert.Equal(t, 0, store.Count())

	// deleting twice is not an error
	assert.NoError(t, store.Delete(ctx.SessionID))
}

func TestListFiltersAndOrders(t *testing.T) {
	store := testStore(t, t.TempDir())

	a, err := store.CreateSession("CUST001")
	require.NoError(t, err)
	a.UpdatedAt = time.Now().UTC().Add(-time.Hour)
	b, err := store.CreateSession("CUST001")
	require.NoError(t, err)
	b.UpdatedAt = time.Now().UTC()
	_, err = store.CreateSession("CUST002")
	require.NoError(t, err)

	list := store.List("CUST001", 0)
	require.Len(t, list, 2)
	assert.Equal(t, b.SessionID, list[0].SessionID, "newest first")

	assert.Len(t, store.List("", 0), 3)
	assert.Len(t, store.List("", 2), 2)
}

func TestCleanupRemovesOldSessionFiles(t *testing.T) {
	dir := t.TempDir()
	store := testStore(t, dir)

	old, err := store.CreateSession("CUST001")
	require.NoError(t, err)
	fresh, err := store.CreateSession("CUST002")
	require.NoError(t, err)

	stale := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(dir, old.SessionID+".json"), stale, stale))

	removed, err := store.Cleanup(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, ok := store.Get(old.SessionID)
	assert.False(t, ok)
	_, ok = store.Get(fresh.SessionID)
	assert.True(t, ok)
}

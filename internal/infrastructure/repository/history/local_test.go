package history

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	domain "loanflow-server/internal/domain/history"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecord(sessionID, status string, requested, approved float64) *domain.Application {
	app := domain.NewApplication(sessionID)
	app.CustomerName = "Rajesh Kumar"
	app.RequestedAmount = requested
	app.ApprovedAmount = approved
	app.Status = status
	return app
}

func TestLocalStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStore(dir, zerolog.Nop())
	require.NoError(t, err)

	recorded := testRecord("sess_1", domain.StatusApproved, 400000, 400000)
	require.NoError(t, store.Record(recorded))

	// A fresh store picks up what the previous instance persisted.
	reopened, err := NewLocalStore(dir, zerolog.Nop())
	require.NoError(t, err)

	byID, err := reopened.ByID(context.Background(), recorded.ID)
	require.NoError(t, err)
	assert.Equal(t, "Rajesh Kumar", byID.CustomerName)
	assert.Equal(t, domain.StatusApproved, byID.Status)

	bySession, err := reopened.BySession(context.Background(), "sess_1")
	require.NoError(t, err)
	assert.Equal(t, recorded.ID, bySession.ID)
}

func TestLocalStoreListFiltersAndOrders(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, store.Record(testRecord("sess_1", domain.StatusApproved, 300000, 300000)))
	require.NoError(t, store.Record(testRecord("sess_2", domain.StatusRejected, 900000, 0)))
	newest := testRecord("sess_3", domain.StatusApproved, 200000, 200000)
	require.NoError(t, store.Record(newest))

	all, err := store.List(context.Background(), "", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "sess_3", all[0].SessionID)

	approved, err := store.List(context.Background(), domain.StatusApproved, 0)
	require.NoError(t, err)
	require.Len(t, approved, 2)
	assert.Equal(t, newest.ID, approved[0].ID)

	limited, err := store.List(context.Background(), "", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestLocalStoreMissingLookups(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)

	_, err = store.ByID(context.Background(), "app_missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")

	_, err = store.BySession(context.Background(), "sess_missing")
	require.Error(t, err)
}

func TestLocalStoreToleratesCorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, localFileName), []byte("{not json"), 0o644))

	store, err := NewLocalStore(dir, zerolog.Nop())
	require.NoError(t, err)

	apps, err := store.List(context.Background(), "", 0)
	require.NoError(t, err)
	assert.Empty(t, apps)
}

func TestSummaryAggregatesOutcomes(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, store.Record(testRecord("sess_1", domain.StatusApproved, 300000, 300000)))
	require.NoError(t, store.Record(testRecord("sess_2", domain.StatusApproved, 500000, 500000)))
	require.NoError(t, store.Record(testRecord("sess_3", domain.StatusRejected, 900000, 0)))
	require.NoError(t, store.Record(testRecord("sess_4", domain.StatusPending, 100000, 0)))

	summary, err := store.Summary(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, summary.TotalApplications)
	assert.Equal(t, 2, summary.Approved)
	assert.Equal(t, 1, summary.Rejected)
	assert.Equal(t, 1, summary.Pending)
	assert.InDelta(t, 800000, summary.TotalApprovedSum, 0.01)
	assert.InDelta(t, 450000, summary.AverageAmount, 0.01)
	assert.InDelta(t, 50, summary.ApprovalRate, 0.01)
}

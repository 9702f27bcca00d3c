package verificationstore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loanflow-server/internal/config"
	"loanflow-server/internal/domain/verification"
)

func testStore(t *testing.T, path string) *Store {
	t.Helper()
	store, err := NewStore(&config.Config{VerificationStorePath: path}, zerolog.Nop())
	require.NoError(t, err)
	return store
}

func TestStartVerificationCreatesRecord(t *testing.T) {
	store := testStore(t, filepath.Join(t.TempDir(), "records.json"))

	record, err := store.StartVerification("CUST001", "sess_1", verification.MethodAutomaticCRM)
	require.NoError(t, err)

	assert.Equal(t, verification.StatusInProgress, record.Status)
	assert.Equal(t, 1, record.Attempts)

	got, ok := store.Get("CUST001", "sess_1")
	require.True(t, ok)
	assert.Equal(t, record.Key(), got.Key())
}

func TestStartVerificationReusesValidRecord(t *testing.T) {
	store := testStore(t, filepath.Join(t.TempDir(), "records.json"))

	_, err := store.StartVerification("CUST001", "sess_1", verification.MethodAutomaticCRM)
	require.NoError(t, err)
	_, err = store.Update("CUST001", "sess_1", func(r *verification.Record) {
		r.UpdateStatus(verification.StatusVerified)
	})
	require.NoError(t, err)

	again, err := store.StartVerification("CUST001", "sess_1", verification.MethodDocumentBased)
	require.NoError(t, err)
	assert.Equal(t, verification.StatusVerified, again.Status)
	assert.Equal(t, 1, again.Attempts, "valid record is reused, not restarted")
}

func TestStartVerificationRestartsExpiredRecord(t *testing.T) {
	store := testStore(t, filepath.Join(t.TempDir(), "records.json"))

	_, err := store.StartVerification("CUST001", "sess_1", verification.MethodAutomaticCRM)
	require.NoError(t, err)
	past := time.Now().UTC().Add(-time.Hour)
	_, err = store.Update("CUST001", "sess_1", func(r *verification.Record) {
		r.Status = verification.StatusVerified
		r.ExpiresAt = &past
	})
	require.NoError(t, err)

	again, err := store.StartVerification("CUST001", "sess_1", verification.MethodAutomaticCRM)
	require.NoError(t, err)
	assert.Equal(t, verification.StatusInProgress, again.Status)
	assert.Equal(t, 2, again.Attempts)
	assert.Nil(t, again.ExpiresAt)
}

func TestGetFlipsExpiredStatus(t *testing.T) {
	store := testStore(t, filepath.Join(t.TempDir(), "records.json"))

	_, err := store.StartVerification("CUST001", "sess_1", verification.MethodAutomaticCRM)
	require.NoError(t, err)
	past := time.Now().UTC().Add(-time.Minute)
	_, err = store.Update("CUST001", "sess_1", func(r *verification.Record) {
		r.Status = verification.StatusVerified
		r.ExpiresAt = &past
	})
	require.NoError(t, err)

	got, ok := store.Get("CUST001", "sess_1")
	require.True(t, ok)
	assert.Equal(t, verification.StatusExpired, got.Status)
	assert.False(t, store.IsCustomerVerified("CUST001"))
}

func TestRecordsSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.json")

	store := testStore(t, path)
	_, err := store.StartVerification("CUST001", "sess_1", verification.MethodHybrid)
	require.NoError(t, err)
	_, err = store.Update("CUST001", "sess_1", func(r *verification.Record) {
		r.UpdateStatus(verification.StatusVerified)
		r.Score = 95
	})
	require.NoError(t, err)

	reopened := testStore(t, path)
	got, ok := reopened.Get("CUST001", "sess_1")
	require.True(t, ok)
	assert.Equal(t, verification.StatusVerified, got.Status)
	assert.Equal(t, 95, got.Score)
	assert.True(t, reopened.IsCustomerVerified("CUST001"))
}

func TestLatestForCustomer(t *testing.T) {
	store := testStore(t, filepath.Join(t.TempDir(), "records.json"))

	first, err := store.StartVerification("CUST001", "sess_1", verification.MethodAutomaticCRM)
	require.NoError(t, err)
	first.StartedAt = time.Now().UTC().Add(-time.Hour)
	_, err = store.StartVerification("CUST001", "sess_2", verification.MethodDocumentBased)
	require.NoError(t, err)

	latest, ok := store.LatestForCustomer("CUST001")
	require.True(t, ok)
	assert.Equal(t, "sess_2", latest.SessionID)

	_, ok = store.LatestForCustomer("CUST999")
	assert.False(t, ok)
}

func TestStatistics(t *testing.T) {
	store := testStore(t, filepath.Join(t.TempDir(), "records.json"))

	_, err := store.StartVerification("CUST001", "sess_1", verification.MethodAutomaticCRM)
	require.NoError(t, err)
	_, err = store.Update("CUST001", "sess_1", func(r *verification.Record) {
		r.UpdateStatus(verification.StatusVerified)
	})
	require.NoError(t, err)
	_, err = store.StartVerification("CUST002", "sess_2", verification.MethodDocumentBased)
	require.NoError(t, err)
	_, err = store.Update("CUST002", "sess_2", func(r *verification.Record) {
		r.UpdateStatus(verification.StatusFailed)
	})
	require.NoError(t, err)

	stats := store.Statistics(30)
	assert.Equal(t, 2, stats.Total)
	assert.InDelta(t, 0.5, stats.SuccessRate, 0.001)
	assert.Equal(t, 1, stats.StatusDistribution[string(verification.StatusVerified)])
	assert.Equal(t, 1, stats.MethodDistribution[string(verification.MethodDocumentBased)])
}

func TestCleanupDropsExpiredAndStale(t *testing.T) {
	store := testStore(t, filepath.Join(t.TempDir(), "records.json"))

	_, err := store.StartVerification("CUST001", "sess_1", verification.MethodAutomaticCRM)
	require.NoError(t, err)
	_, err = store.Update("CUST001", "sess_1", func(r *verification.Record) {
		r.Status = verification.StatusExpired
	})
	require.NoError(t, err)

	stale, err := store.StartVerification("CUST002", "sess_2", verification.MethodAutomaticCRM)
	require.NoError(t, err)
	stale.StartedAt = time.Now().UTC().AddDate(0, 0, -120)

	fresh, err := store.StartVerification("CUST003", "sess_3", verification.MethodAutomaticCRM)
	require.NoError(t, err)

	removed, err := store.Cleanup(90)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	_, ok := store.Get(fresh.CustomerID, fresh.SessionID)
	assert.True(t, ok)
	_, ok = store.Get("CUST002", "sess_2")
	assert.False(t, ok)
}

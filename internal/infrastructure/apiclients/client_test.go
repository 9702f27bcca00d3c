package apiclients

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"loanflow-server/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClientsConfig(crmURL, creditURL, offerURL string) *config.Config {
	return &config.Config{
		CRMAPIURL:               crmURL,
		CreditBureauAPIURL:      creditURL,
		OfferMartAPIURL:         offerURL,
		CRMTimeout:              2 * time.Second,
		CreditBureauTimeout:     2 * time.Second,
		OfferMartTimeout:        2 * time.Second,
		BreakerFailureThreshold: 5,
		BreakerSuccessThreshold: 3,
		BreakerRecoveryTimeout:  50 * time.Millisecond,
		RetryMaxAttempts:        2,
		RetryBaseDelay:          time.Millisecond,
		RetryMaxDelay:           10 * time.Millisecond,
	}
}

func TestCustomerProfileFromLiveAPI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/crm/CUST001", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(CRMCustomer{
			ID:     "CUST001",
			Name:   "Rajesh Kumar",
			Phone:  "+919876543210",
			City:   "Bangalore",
			Age:    32,
			Salary: 85000,
		})
	}))
	defer srv.Close()

	c := NewClients(testClientsConfig(srv.URL, srv.URL, srv.URL))
	result := c.CustomerProfile(context.Background(), "CUST001")

	assert.Equal(t, SourceAPI, result.Source)
	assert.Equal(t, 1, result.Attempts)
	assert.Equal(t, "Rajesh Kumar", result.Customer.Name)
	assert.Equal(t, "Bangalore", result.Customer.City)
}

func TestCustomerProfileFallbackOnNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := NewClients(testClientsConfig(srv.URL, srv.URL, srv.URL))
	result := c.CustomerProfile(context.Background(), "UNKNOWN")

	assert.Equal(t, SourceFallback, result.Source)
	assert.Equal(t, "Valued Customer", result.Customer.Name)
	assert.Equal(t, "manual_verification_required", result.Customer.Verification)
	// 404 is permanent, no second attempt.
	assert.Equal(t, 1, result.Attempts)
}

func TestCreditScoreFallbackWhenUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := NewClients(testClientsConfig(srv.URL, srv.URL, srv.URL))
	result := c.CreditScore(context.Background(), "CUST001")

	assert.Equal(t, SourceFallback, result.Source)
	assert.Equal(t, 650, result.Report.CreditScore)
	assert.True(t, result.Report.Estimated)
	assert.Equal(t, 2, result.Attempts)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats["credit_bureau"].Calls)
	assert.Equal(t, int64(1), stats["credit_bureau"].Fallbacks)
}

func TestCreditScoreRejectsOutOfRangeScore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(CreditReport{Success: true, CreditScore: 95})
	}))
	defer srv.Close()

	c := NewClients(testClientsConfig(srv.URL, srv.URL, srv.URL))
	result := c.CreditScore(context.Background(), "CUST001")

	assert.Equal(t, SourceFallback, result.Source)
	assert.Equal(t, 650, result.Report.CreditScore)
}

func TestOffersFromLiveAPI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/offers/CUST001", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(OfferSheet{
			Success:          true,
			PreApprovedLimit: 500000,
			InterestRate:     12.5,
		})
	}))
	defer srv.Close()

	c := NewClients(testClientsConfig(srv.URL, srv.URL, srv.URL))
	result := c.Offers(context.Background(), "CUST001")

	assert.Equal(t, SourceAPI, result.Source)
	assert.Equal(t, 500000.0, result.Sheet.PreApprovedLimit)
	assert.Equal(t, 12.5, result.Sheet.InterestRate)
}

func TestOffersFallbackIsConservative(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := NewClients(testClientsConfig(srv.URL, srv.URL, srv.URL))
	result := c.Offers(context.Background(), "CUST001")

	assert.Equal(t, SourceFallback, result.Source)
	assert.Equal(t, 100000.0, result.Sheet.PreApprovedLimit)
	assert.Equal(t, 18.0, result.Sheet.InterestRate)
	assert.Len(t, result.Sheet.Offers, 2)
}

func TestFinancialSnapshotFansOut(t *testing.T) {
	creditSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(CreditReport{Success: true, CreditScore: 785})
	}))
	defer creditSrv.Close()

	offerSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(OfferSheet{Success: true, PreApprovedLimit: 500000, InterestRate: 11.0})
	}))
	defer offerSrv.Close()

	c := NewClients(testClientsConfig(creditSrv.URL, creditSrv.URL, offerSrv.URL))
	snapshot, err := c.FinancialSnapshot(context.Background(), "CUST001")
	require.NoError(t, err)

	assert.Equal(t, 785, snapshot.Credit.Report.CreditScore)
	assert.Equal(t, SourceAPI, snapshot.Credit.Source)
	assert.Equal(t, 500000.0, snapshot.Offers.Sheet.PreApprovedLimit)
}

func TestBreakerRejectsAfterRepeatedFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	cfg := testClientsConfig(srv.URL, srv.URL, srv.URL)
	cfg.RetryMaxAttempts = 1
	c := NewClients(cfg)

	for i := 0; i < 5; i++ {
		result := c.CustomerProfile(context.Background(), "CUST001")
		assert.Equal(t, SourceFallback, result.Source)
	}
	require.Equal(t, StateOpen, c.crmCB.GetState())

	// Circuit is open: fallback without touching the network.
	result := c.CustomerProfile(context.Background(), "CUST001")
	assert.Equal(t, SourceFallback, result.Source)
	assert.Equal(t, 0, result.Attempts)
}

func TestHealthCheckReportsBreakerState(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := NewClients(testClientsConfig(srv.URL, srv.URL, srv.URL))
	health := c.HealthCheck(context.Background())

	require.Len(t, health, 3)
	for _, h := range health {
		assert.True(t, h.Healthy)
		assert.Equal(t, "CLOSED", h.BreakerState)
	}
}

package apiclients

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"loanflow-server/internal/config"
	"loanflow-server/internal/infrastructure/metrics"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const (
	apiCRM          = "crm"
	apiCreditBureau = "credit_bureau"
	apiOfferMart    = "offer_mart"
)

// callStats tracks per-API counters for the health endpoint.
type callStats struct {
	Calls     int64 `json:"calls"`
	Failures  int64 `json:"failures"`
	Fallbacks int64 `json:"fallbacks"`
}

// Clients bundles the resilient HTTP clients for the three mocked upstream
// services. Every fetch degrades to static fallback data instead of failing,
// so the conversation never stalls on a dead dependency.
type Clients struct {
	crmClient    *resty.Client
	creditClient *resty.Client
	offerClient  *resty.Client

	crmCB    *CircuitBreaker
	creditCB *CircuitBreaker
	offerCB  *CircuitBreaker

	retryConfig RetryConfig

	statsMu sync.Mutex
	stats   map[string]*callStats
}

// NewClients wires one resty client and one circuit breaker per upstream API.
func NewClients(cfg *config.Config) *Clients {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}

	newHTTP := func(baseURL string, timeout time.Duration) *resty.Client {
		return resty.New().
			SetBaseURL(baseURL).
			SetHeader("User-Agent", "loanflow-api/1.0").
			SetTimeout(timeout).
			SetRetryCount(0).
			SetTransport(transport)
	}

	cbConfig := CircuitBreakerConfig{
		FailureThreshold: cfg.BreakerFailureThreshold,
		SuccessThreshold: cfg.BreakerSuccessThreshold,
		RecoveryTimeout:  cfg.BreakerRecoveryTimeout,
		MaxHalfOpenCalls: cfg.BreakerSuccessThreshold,
	}

	retryConfig := DefaultRetryConfig()
	if cfg.RetryMaxAttempts > 0 {
		retryConfig.MaxAttempts = cfg.RetryMaxAttempts
	}
	if cfg.RetryBaseDelay > 0 {
		retryConfig.InitialDelay = cfg.RetryBaseDelay
	}
	if cfg.RetryMaxDelay > 0 {
		retryConfig.MaxDelay = cfg.RetryMaxDelay
	}

	return &Clients{
		crmClient:    newHTTP(cfg.CRMAPIURL, cfg.CRMTimeout),
		creditClient: newHTTP(cfg.CreditBureauAPIURL, cfg.CreditBureauTimeout),
		offerClient:  newHTTP(cfg.OfferMartAPIURL, cfg.OfferMartTimeout),
		crmCB:        NewCircuitBreaker(apiCRM, cbConfig),
		creditCB:     NewCircuitBreaker(apiCreditBureau, cbConfig),
		offerCB:      NewCircuitBreaker(apiOfferMart, cbConfig),
		retryConfig:  retryConfig,
		stats: map[string]*callStats{
			apiCRM:          {},
			apiCreditBureau: {},
			apiOfferMart:    {},
		},
	}
}

// CustomerProfile looks up a customer in the CRM. On exhausted retries or an
// open circuit it returns the manual-verification fallback record.
func (c *Clients) CustomerProfile(ctx context.Context, customerID string) *CRMResult {
	attempts := 0
	customer, err := fetchResilient(ctx, c, apiCRM, c.crmCB, &attempts, func() (*CRMCustomer, error) {
		var out CRMCustomer
		resp, err := c.crmClient.R().
			SetContext(ctx).
			SetResult(&out).
			Get("/crm/" + customerID)
		if err != nil {
			return nil, fmt.Errorf("CRM request failed: %w", err)
		}
		if resp.IsError() {
			return nil, fmt.Errorf("CRM error (status %d): %s", resp.StatusCode(), resp.String())
		}
		if err := ValidateCustomer(&out); err != nil {
			return nil, err
		}
		return &out, nil
	})

	if err != nil {
		c.recordFallback(apiCRM, err)
		return &CRMResult{
			Customer: fallbackCustomer(customerID),
			Source:   SourceFallback,
			APIName:  apiCRM,
			Attempts: attempts,
		}
	}
	return &CRMResult{Customer: customer, Source: SourceAPI, APIName: apiCRM, Attempts: attempts}
}

// CreditScore fetches the bureau score. Fallback is an estimated 650.
func (c *Clients) CreditScore(ctx context.Context, customerID string) *CreditResult {
	attempts := 0
	report, err := fetchResilient(ctx, c, apiCreditBureau, c.creditCB, &attempts, func() (*CreditReport, error) {
		var out CreditReport
		resp, err := c.creditClient.R().
			SetContext(ctx).
			SetResult(&out).
			Get("/credit-score/" + customerID)
		if err != nil {
			return nil, fmt.Errorf("credit bureau request failed: %w", err)
		}
		if resp.IsError() {
			return nil, fmt.Errorf("credit bureau error (status %d): %s", resp.StatusCode(), resp.String())
		}
		if err := ValidateCreditReport(&out); err != nil {
			return nil, err
		}
		return &out, nil
	})

	if err != nil {
		c.recordFallback(apiCreditBureau, err)
		return &CreditResult{
			Report:   fallbackCreditReport(customerID),
			Source:   SourceFallback,
			APIName:  apiCreditBureau,
			Attempts: attempts,
		}
	}
	return &CreditResult{Report: report, Source: SourceAPI, APIName: apiCreditBureau, Attempts: attempts}
}

// Offers fetches the pre-approved offer sheet. Fallback is a conservative
// 100k limit at 18%.
func (c *Clients) Offers(ctx context.Context, customerID string) *OffersResult {
	attempts := 0
	sheet, err := fetchResilient(ctx, c, apiOfferMart, c.offerCB, &attempts, func() (*OfferSheet, error) {
		var out OfferSheet
		resp, err := c.offerClient.R().
			SetContext(ctx).
			SetResult(&out).
			Get("/offers/" + customerID)
		if err != nil {
			return nil, fmt.Errorf("offer mart request failed: %w", err)
		}
		if resp.IsError() {
			return nil, fmt.Errorf("offer mart error (status %d): %s", resp.StatusCode(), resp.String())
		}
		if err := ValidateOfferSheet(&out); err != nil {
			return nil, err
		}
		return &out, nil
	})

	if err != nil {
		c.recordFallback(apiOfferMart, err)
		return &OffersResult{
			Sheet:    fallbackOfferSheet(customerID),
			Source:   SourceFallback,
			APIName:  apiOfferMart,
			Attempts: attempts,
		}
	}
	return &OffersResult{Sheet: sheet, Source: SourceAPI, APIName: apiOfferMart, Attempts: attempts}
}

// FinancialSnapshot fetches the credit score and offer sheet concurrently.
// Both legs fall back internally, so the combined fetch cannot fail short of
// context cancellation.
func (c *Clients) FinancialSnapshot(ctx context.Context, customerID string) (*FinancialSnapshot, error) {
	snapshot := &FinancialSnapshot{}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		snapshot.Credit = c.CreditScore(gctx, customerID)
		return nil
	})
	g.Go(func() error {
		snapshot.Offers = c.Offers(gctx, customerID)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return snapshot, nil
}

// fetchResilient runs one breaker-guarded retry loop and updates call
// metrics. Generic over the payload so each client keeps its typed decode.
func fetchResilient[T any](ctx context.Context, c *Clients, api string, cb *CircuitBreaker, attempts *int, fn RetryableFunc[*T]) (*T, error) {
	c.bumpCalls(api)

	if !cb.CanExecute() {
		err := fmt.Errorf("%s circuit breaker is %s", api, cb.GetState())
		metrics.ExternalAPICallsTotal.WithLabelValues(api, string(SourceFallback), "rejected").Inc()
		return nil, err
	}

	result, err := WithRetry(ctx, c.retryConfig, api+"_fetch", func() (*T, error) {
		*attempts++
		return fn()
	})
	cb.RecordResult(api+"_fetch", err)

	if err != nil {
		metrics.ExternalAPICallsTotal.WithLabelValues(api, string(SourceFallback), "error").Inc()
		return nil, err
	}
	metrics.ExternalAPICallsTotal.WithLabelValues(api, string(SourceAPI), "success").Inc()
	return result, nil
}

func (c *Clients) bumpCalls(api string) {
	c.statsMu.Lock()
	c.stats[api].Calls++
	c.statsMu.Unlock()
}

func (c *Clients) recordFallback(api string, err error) {
	c.statsMu.Lock()
	c.stats[api].Failures++
	c.stats[api].Fallbacks++
	c.statsMu.Unlock()

	log.Warn().
		Err(err).
		Str("api", api).
		Msg("upstream API unavailable, serving fallback data")
}

// Stats returns per-API call counters.
func (c *Clients) Stats() map[string]callStats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()

	out := make(map[string]callStats, len(c.stats))
	for name, s := range c.stats {
		out[name] = *s
	}
	return out
}

// BreakerMetrics returns breaker snapshots keyed by API name.
func (c *Clients) BreakerMetrics() map[string]map[string]any {
	return map[string]map[string]any{
		apiCRM:          c.crmCB.GetMetrics(),
		apiCreditBureau: c.creditCB.GetMetrics(),
		apiOfferMart:    c.offerCB.GetMetrics(),
	}
}

// APIHealth is one upstream health probe result.
type APIHealth struct {
	API          string `json:"api"`
	Healthy      bool   `json:"healthy"`
	BreakerState string `json:"breaker_state"`
	LatencyMS    int64  `json:"latency_ms"`
	Error        string `json:"error,omitempty"`
}

// HealthCheck probes all three upstreams concurrently with a short timeout.
func (c *Clients) HealthCheck(ctx context.Context) map[string]APIHealth {
	probe := func(api string, client *resty.Client, cb *CircuitBreaker) APIHealth {
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		start := time.Now()
		resp, err := client.R().SetContext(pctx).Get("/health")
		health := APIHealth{
			API:          api,
			BreakerState: cb.GetState().String(),
			LatencyMS:    time.Since(start).Milliseconds(),
		}
		switch {
		case err != nil:
			health.Error = err.Error()
		case resp.IsError():
			health.Error = fmt.Sprintf("status %d", resp.StatusCode())
		default:
			health.Healthy = true
		}
		return health
	}

	var mu sync.Mutex
	out := make(map[string]APIHealth, 3)
	g, _ := errgroup.WithContext(ctx)
	for _, target := range []struct {
		api    string
		client *resty.Client
		cb     *CircuitBreaker
	}{
		{apiCRM, c.crmClient, c.crmCB},
		{apiCreditBureau, c.creditClient, c.creditCB},
		{apiOfferMart, c.offerClient, c.offerCB},
	} {
		target := target
		g.Go(func() error {
			h := probe(target.api, target.client, target.cb)
			mu.Lock()
			out[target.api] = h
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// ResetBreakers closes all circuits, used by the admin reset endpoint.
func (c *Clients) ResetBreakers() {
	c.crmCB.Reset()
	c.creditCB.Reset()
	c.offerCB.Reset()
}

package verificationstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"loanflow-server/internal/config"
	"loanflow-server/internal/domain/verification"
)

// Store keeps every verification record in one JSON file, rewritten on
// each mutation under a mutex, and loaded whole at startup.
type Store struct {
	path    string
	log     zerolog.Logger
	mu      sync.Mutex
	records map[string]*verification.Record
}

// Statistics summarises verification outcomes over a window.
type Statistics struct {
	Total              int            `json:"total"`
	SuccessRate        float64        `json:"success_rate"`
	AverageAttempts    float64        `json:"average_attempts"`
	StatusDistribution map[string]int `json:"status_distribution"`
	MethodDistribution map[string]int `json:"method_distribution"`
	WindowDays         int            `json:"window_days"`
}

// NewStore loads existing records from disk, starting empty when the
// file does not exist yet.
func NewStore(cfg *config.Config, log zerolog.Logger) (*Store, error) {
	logger := log.With().Str("component", "verification-store").Logger()

	path := strings.TrimSpace(cfg.VerificationStorePath)
	if path == "" {
		path = "data/verification_records.json"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create verification store directory: %w", err)
	}

	s := &Store{
		path:    path,
		log:     logger,
		records: make(map[string]*verification.Record),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read verification store: %w", err)
		}
	} else if len(data) > 0 {
		if err := json.Unmarshal(data, &s.records); err != nil {
			return nil, fmt.Errorf("unmarshal verification store: %w", err)
		}
	}

	logger.Info().Int("records", len(s.records)).Str("path", path).Msg("verification store loaded")
	return s, nil
}

// StartVerification begins a verification run, reusing an existing
// valid verified record instead of starting over.
func (s *Store) StartVerification(customerID, sessionID string, method verification.Method) (*verification.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := verification.Key(customerID, sessionID)
	if existing, ok := s.records[key]; ok {
		if existing.IsValid() {
			return existing, nil
		}
		existing.Status = verification.StatusInProgress
		existing.Attempts++
		existing.StartedAt = time.Now().UTC()
		existing.CompletedAt = nil
		existing.ExpiresAt = nil
		if err := s.persistLocked(); err != nil {
			return nil, err
		}
		return existing, nil
	}

	record := verification.NewRecord(customerID, sessionID, method)
	s.records[key] = record
	if err := s.persistLocked(); err != nil {
		return nil, err
	}
	return record, nil
}

// Update applies a mutation to the record and persists the store.
func (s *Store) Update(customerID, sessionID string, mutate func(*verification.Record)) (*verification.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[verification.Key(customerID, sessionID)]
	if !ok {
		return nil, fmt.Errorf("verification record not found for %s", verification.Key(customerID, sessionID))
	}
	mutate(record)
	if err := s.persistLocked(); err != nil {
		return nil, err
	}
	return record, nil
}

// Get returns the record for a (customer, session) pair, flipping
// verified records past their expiry to EXPIRED first.
func (s *Store) Get(customerID, sessionID string) (*verification.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[verification.Key(customerID, sessionID)]
	if !ok {
		return nil, false
	}
	if record.IsExpired() {
		record.Status = verification.StatusExpired
		if err := s.persistLocked(); err != nil {
			s.log.Warn().Err(err).Msg("failed to persist expired status")
		}
	}
	return record, true
}

// IsCustomerVerified reports whether any session holds a valid verified
// record for the customer.
func (s *Store) IsCustomerVerified(customerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, record := range s.records {
		if record.CustomerID == customerID && record.IsValid() {
			return true
		}
	}
	return false
}

// LatestForCustomer returns the most recently started record for the
// customer.
func (s *Store) LatestForCustomer(customerID string) (*verification.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var candidates []*verification.Record
	for _, record := range s.records {
		if record.CustomerID == customerID {
			candidates = append(candidates, record)
		}
	}
	if len(candidates) == 0 {
		return nil, false
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].StartedAt.After(candidates[j].StartedAt)
	})
	return candidates[0], true
}

// Statistics aggregates outcomes for records started in the last N days.
func (s *Store) Statistics(days int) Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	stats := Statistics{
		StatusDistribution: make(map[string]int),
		MethodDistribution: make(map[string]int),
		WindowDays:         days,
	}

	verified := 0
	attempts := 0
	for _, record := range s.records {
		if record.StartedAt.Before(cutoff) {
			continue
		}
		stats.Total++
		attempts += record.Attempts
		stats.StatusDistribution[string(record.Status)]++
		stats.MethodDistribution[string(record.Method)]++
		if record.Status == verification.StatusVerified {
			verified++
		}
	}
	if stats.Total > 0 {
		stats.SuccessRate = float64(verified) / float64(stats.Total)
		stats.AverageAttempts = float64(attempts) / float64(stats.Total)
	}
	return stats
}

// Cleanup drops EXPIRED records and records started more than
// retentionDays ago. Returns the number removed.
func (s *Store) Cleanup(retentionDays int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	removed := 0
	for key, record := range s.records {
		if record.Status == verification.StatusExpired || record.StartedAt.Before(cutoff) {
			delete(s.records, key)
			removed++
		}
	}
	if removed > 0 {
		if err := s.persistLocked(); err != nil {
			return removed, err
		}
		s.log.Info().Int("removed", removed).Msg("verification records cleaned up")
	}
	return removed, nil
}

func (s *Store) persistLocked() error {
	data, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal verification records: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write verification store: %w", err)
	}
	return nil
}

package verification

import (
	"fmt"
	"time"
)

// Status tracks a verification record through its lifecycle.
type Status string

const (
	StatusNotStarted        Status = "not_started"
	StatusInProgress        Status = "in_progress"
	StatusVerified          Status = "verified"
	StatusFailed            Status = "failed"
	StatusRequiresDocuments Status = "requires_documents"
	StatusExpired           Status = "expired"
)

// Method names how a verification was performed.
type Method string

const (
	MethodAutomaticCRM  Method = "automatic_crm"
	MethodDocumentBased Method = "document_based"
	MethodManualReview  Method = "manual_review"
	MethodHybrid        Method = "hybrid"
)

// VerifiedValidity is how long a verified record stays valid.
const VerifiedValidity = 30 * 24 * time.Hour

// Record is one verification run for a (customer, session) pair.
type Record struct {
	CustomerID        string     `json:"customer_id"`
	SessionID         string     `json:"session_id"`
	Status            Status     `json:"status"`
	Method            Method     `json:"method"`
	Score             int        `json:"verification_score"`
	Issues            []string   `json:"issues,omitempty"`
	VerifiedFields    []string   `json:"verified_fields,omitempty"`
	RequiredDocuments []string   `json:"required_documents,omitempty"`
	Attempts          int        `json:"attempts"`
	StartedAt         time.Time  `json:"started_at"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty"`
}

// Key builds the store key for a (customer, session) pair.
func Key(customerID, sessionID string) string {
	return fmt.Sprintf("%s_%s", customerID, sessionID)
}

// NewRecord starts an in-progress verification record.
func NewRecord(customerID, sessionID string, method Method) *Record {
	return &Record{
		CustomerID: customerID,
		SessionID:  sessionID,
		Status:     StatusInProgress,
		Method:     method,
		Attempts:   1,
		StartedAt:  time.Now().UTC(),
	}
}

// Key returns the record's store key.
func (r *Record) Key() string {
	return Key(r.CustomerID, r.SessionID)
}

// UpdateStatus transitions the record. Verified records get an expiry
// 30 days out; verified and failed records get a completion time.
func (r *Record) UpdateStatus(status Status) {
	r.Status = status
	now := time.Now().UTC()
	switch status {
	case StatusVerified:
		r.CompletedAt = &now
		expires := now.Add(VerifiedValidity)
		r.ExpiresAt = &expires
	case StatusFailed:
		r.CompletedAt = &now
	}
}

// IsExpired reports whether a verified record has passed its expiry.
// Only VERIFIED records can expire.
func (r *Record) IsExpired() bool {
	if r.Status != StatusVerified || r.ExpiresAt == nil {
		return false
	}
	return time.Now().UTC().After(*r.ExpiresAt)
}

// IsValid reports whether the record is verified and still current.
func (r *Record) IsValid() bool {
	return r.Status == StatusVerified && !r.IsExpired()
}

package history

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// Status values recorded for a processed application.
const (
	StatusApproved = "approved"
	StatusRejected = "rejected"
	StatusPending  = "pending"
)

// Application is one loan application outcome kept for reporting.
type Application struct {
	ID                 string    `json:"id" gorm:"primaryKey;column:id"`
	SessionID          string    `json:"session_id" gorm:"column:session_id;index"`
	CustomerName       string    `json:"customer_name" gorm:"column:customer_name"`
	CustomerPhone      string    `json:"customer_phone,omitempty" gorm:"column:customer_phone"`
	CustomerCity       string    `json:"customer_city,omitempty" gorm:"column:customer_city"`
	RequestedAmount    float64   `json:"requested_amount" gorm:"column:requested_amount"`
	ApprovedAmount     float64   `json:"approved_amount,omitempty" gorm:"column:approved_amount"`
	Tenure             int       `json:"tenure" gorm:"column:tenure"`
	InterestRate       float64   `json:"interest_rate" gorm:"column:interest_rate"`
	EMI                float64   `json:"emi,omitempty" gorm:"column:emi"`
	Status             string    `json:"status" gorm:"column:status;index"`
	CreditScore        int       `json:"credit_score,omitempty" gorm:"column:credit_score"`
	RejectionReason    string    `json:"rejection_reason,omitempty" gorm:"column:rejection_reason"`
	VerificationStatus string    `json:"verification_status,omitempty" gorm:"column:verification_status"`
	SanctionLetterPath string    `json:"sanction_letter_path,omitempty" gorm:"column:sanction_letter_path"`
	CreatedAt          time.Time `json:"created_at" gorm:"column:created_at"`
}

func (Application) TableName() string {
	return "loan_applications"
}

// NewApplication stamps a new history record with an id and timestamp.
func NewApplication(sessionID string) *Application {
	return &Application{
		ID:        "app_" + ulid.Make().String(),
		SessionID: sessionID,
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}
}

// Summary aggregates application outcomes for reporting.
type Summary struct {
	TotalApplications int     `json:"total_applications"`
	Approved          int     `json:"approved"`
	Rejected          int     `json:"rejected"`
	Pending           int     `json:"pending"`
	TotalApprovedSum  float64 `json:"total_approved_amount"`
	AverageAmount     float64 `json:"average_requested_amount"`
	ApprovalRate      float64 `json:"approval_rate"`
}

package loan

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a loan application.
type Status string

const (
	StatusPending           Status = "pending"
	StatusApproved          Status = "approved"
	StatusRejected          Status = "rejected"
	StatusRequiresDocuments Status = "requires_documents"
)

// DecisionType classifies underwriting outcomes.
type DecisionType string

const (
	DecisionInstantApproval            DecisionType = "instant_approval"
	DecisionConditionalApproval        DecisionType = "conditional_approval"
	DecisionRejectionLowCredit         DecisionType = "rejection_low_credit"
	DecisionRejectionExcessAmount      DecisionType = "rejection_excess_amount"
	DecisionRequiresSalaryVerification DecisionType = "requires_salary_verification"
)

var phonePattern = regexp.MustCompile(`^(\+91)?[6-9]\d{9}$`)

var validEmploymentTypes = map[string]struct{}{
	"salaried":      {},
	"self_employed": {},
	"business":      {},
	"professional":  {},
	"retired":       {},
}

// ExistingLoan describes a loan already held by the customer.
type ExistingLoan struct {
	ID           string    `json:"id"`
	Amount       float64   `json:"amount"`
	Tenure       int       `json:"tenure"`
	InterestRate float64   `json:"interest_rate"`
	EMI          float64   `json:"emi"`
	Status       string    `json:"status"`
	StartDate    time.Time `json:"start_date"`
}

// CustomerProfile is the validated customer record used by every
// decision path. Boundary code converts loose map payloads into this
// type exactly once.
type CustomerProfile struct {
	ID               string         `json:"id"`
	Name             string         `json:"name"`
	Age              int            `json:"age"`
	City             string         `json:"city"`
	Phone            string         `json:"phone"`
	Address          string         `json:"address"`
	CurrentLoans     []ExistingLoan `json:"current_loans,omitempty"`
	CreditScore      int            `json:"credit_score"`
	PreApprovedLimit float64        `json:"pre_approved_limit"`
	Salary           float64        `json:"salary,omitempty"`
	EmploymentType   string         `json:"employment_type"`
}

// Validate checks profile fields against the business constraints.
func (p *CustomerProfile) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("name cannot be empty")
	}
	if p.Age < 18 || p.Age > 100 {
		return fmt.Errorf("age %d out of range 18-100", p.Age)
	}
	if p.CreditScore < 300 || p.CreditScore > 900 {
		return fmt.Errorf("credit score %d out of range 300-900", p.CreditScore)
	}
	if p.PreApprovedLimit < 0 {
		return fmt.Errorf("pre-approved limit cannot be negative")
	}
	if p.Phone != "" {
		cleaned := strings.ReplaceAll(p.Phone, " ", "")
		if !phonePattern.MatchString(cleaned) {
			return fmt.Errorf("invalid Indian phone number format")
		}
		p.Phone = cleaned
	}
	if p.EmploymentType != "" {
		et := strings.ToLower(p.EmploymentType)
		if _, ok := validEmploymentTypes[et]; !ok {
			return fmt.Errorf("unknown employment type %q", p.EmploymentType)
		}
		p.EmploymentType = et
	}
	return nil
}

// DebtToIncomeRatio returns the existing EMI burden as a percentage of
// salary, or false when salary is unknown.
func (p *CustomerProfile) DebtToIncomeRatio() (float64, bool) {
	if p.Salary <= 0 {
		return 0, false
	}
	var totalEMI float64
	for _, l := range p.CurrentLoans {
		totalEMI += l.EMI
	}
	return (totalEMI / p.Salary) * 100, true
}

// AvailableIncome returns monthly income left after existing EMIs, or
// false when salary is unknown.
func (p *CustomerProfile) AvailableIncome() (float64, bool) {
	if p.Salary <= 0 {
		return 0, false
	}
	var totalEMI float64
	for _, l := range p.CurrentLoans {
		totalEMI += l.EMI
	}
	available := p.Salary - totalEMI
	if available < 0 {
		available = 0
	}
	return available, true
}

// Application is one loan request under evaluation.
type Application struct {
	ID              string     `json:"id"`
	CustomerID      string     `json:"customer_id"`
	RequestedAmount float64    `json:"requested_amount"`
	Tenure          int        `json:"tenure"`
	InterestRate    float64    `json:"interest_rate"`
	EMI             float64    `json:"emi"`
	Status          Status     `json:"status"`
	CreatedAt       time.Time  `json:"created_at"`
	ApprovedAt      *time.Time `json:"approved_at,omitempty"`
	RejectionReason string     `json:"rejection_reason,omitempty"`
}

// NewApplication creates a pending application and computes its EMI.
func NewApplication(customerID string, amount float64, tenure int, rate float64) (*Application, error) {
	app := &Application{
		ID:              uuid.NewString(),
		CustomerID:      customerID,
		RequestedAmount: amount,
		Tenure:          tenure,
		InterestRate:    rate,
		Status:          StatusPending,
		CreatedAt:       time.Now().UTC(),
	}
	if err := app.Validate(); err != nil {
		return nil, err
	}
	app.UpdateEMI()
	return app, nil
}

// Validate enforces the application bounds.
func (a *Application) Validate() error {
	if a.RequestedAmount <= 0 {
		return fmt.Errorf("loan amount must be positive")
	}
	if a.RequestedAmount > 10000000 {
		return fmt.Errorf("loan amount cannot exceed 1 crore")
	}
	if a.Tenure < 6 {
		return fmt.Errorf("minimum tenure is 6 months")
	}
	if a.Tenure > 360 {
		return fmt.Errorf("maximum tenure is 360 months")
	}
	if a.InterestRate < 0 || a.InterestRate > 50 {
		return fmt.Errorf("interest rate %v out of range 0-50", a.InterestRate)
	}
	return nil
}

// UpdateEMI recomputes the EMI from the current amount, rate and tenure.
func (a *Application) UpdateEMI() {
	a.EMI = CalculateEMI(a.RequestedAmount, a.InterestRate, a.Tenure)
}

// Approve marks the application approved.
func (a *Application) Approve() {
	now := time.Now().UTC()
	a.Status = StatusApproved
	a.ApprovedAt = &now
	a.RejectionReason = ""
}

// Reject marks the application rejected with the given reason.
func (a *Application) Reject(reason string) {
	a.Status = StatusRejected
	a.RejectionReason = reason
	a.ApprovedAt = nil
}

// RequireDocuments marks the application as waiting for documents.
func (a *Application) RequireDocuments() {
	a.Status = StatusRequiresDocuments
}

// Terms is a concrete loan offer.
type Terms struct {
	Amount        float64 `json:"amount"`
	Tenure        int     `json:"tenure"`
	InterestRate  float64 `json:"interest_rate"`
	EMI           float64 `json:"emi"`
	TotalPayable  float64 `json:"total_payable"`
	TotalInterest float64 `json:"total_interest"`
	ProcessingFee float64 `json:"processing_fee"`
}

// Affordability summarises whether terms fit a customer's income.
type Affordability struct {
	IsAffordable        bool    `json:"is_affordable"`
	EMIRatio            float64 `json:"emi_ratio"`
	RiskLevel           string  `json:"risk_level"`
	MaxAffordableAmount float64 `json:"max_affordable_amount"`
	Notes               string  `json:"notes,omitempty"`
}

// UnderwritingDecision records the outcome of an underwriting run.
type UnderwritingDecision struct {
	ApplicationID    string         `json:"application_id"`
	Decision         Status         `json:"decision"`
	DecisionType     DecisionType   `json:"decision_type"`
	CreditScore      int            `json:"credit_score"`
	PreApprovedLimit float64        `json:"pre_approved_limit"`
	Factors          map[string]any `json:"decision_factors,omitempty"`
	Message          string         `json:"message"`
	NextAction       string         `json:"next_action"`
	SuggestedAmount  float64        `json:"suggested_amount,omitempty"`
	RequiredDocs     []string       `json:"required_documents,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
}

package apiclients

// Source tells consumers whether a payload came from the live API or the
// static fallback provider.
type Source string

const (
	SourceAPI      Source = "api"
	SourceFallback Source = "fallback"
)

// CRMCustomer is the customer record served by the CRM service.
type CRMCustomer struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Phone          string  `json:"phone"`
	Address        string  `json:"address"`
	Age            int     `json:"age,omitempty"`
	City           string  `json:"city,omitempty"`
	Salary         float64 `json:"salary,omitempty"`
	EmploymentType string  `json:"employmentType,omitempty"`
	Verification   string  `json:"verification,omitempty"`
}

// CreditReport is the credit bureau response.
type CreditReport struct {
	Success     bool   `json:"success"`
	CustomerID  string `json:"customerId,omitempty"`
	CreditScore int    `json:"creditScore"`
	Estimated   bool   `json:"estimated,omitempty"`
}

// LoanOffer is a single pre-approved offer from the offer mart.
type LoanOffer struct {
	Name         string  `json:"name"`
	Amount       float64 `json:"amount"`
	InterestRate float64 `json:"interestRate"`
	TenureMonths int     `json:"tenureMonths"`
}

// OfferSheet is the offer mart response.
type OfferSheet struct {
	Success          bool        `json:"success"`
	CustomerID       string      `json:"customerId,omitempty"`
	PreApprovedLimit float64     `json:"preApprovedLimit"`
	InterestRate     float64     `json:"interestRate,omitempty"`
	Offers           []LoanOffer `json:"offers,omitempty"`
}

// CRMResult wraps a customer lookup with its provenance.
type CRMResult struct {
	Customer *CRMCustomer `json:"customer"`
	Source   Source       `json:"source"`
	APIName  string       `json:"api_name"`
	Attempts int          `json:"attempts"`
}

// CreditResult wraps a credit score lookup with its provenance.
type CreditResult struct {
	Report   *CreditReport `json:"report"`
	Source   Source        `json:"source"`
	APIName  string        `json:"api_name"`
	Attempts int           `json:"attempts"`
}

// OffersResult wraps an offer mart lookup with its provenance.
type OffersResult struct {
	Sheet    *OfferSheet `json:"sheet"`
	Source   Source      `json:"source"`
	APIName  string      `json:"api_name"`
	Attempts int         `json:"attempts"`
}

// FinancialSnapshot combines the credit bureau and offer mart responses the
// underwriting agent consumes together.
type FinancialSnapshot struct {
	Credit *CreditResult `json:"credit"`
	Offers *OffersResult `json:"offers"`
}

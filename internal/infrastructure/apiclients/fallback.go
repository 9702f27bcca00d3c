package apiclients

// Static fallback payloads returned when retries exhaust or a circuit is
// open. Values are deliberately conservative so downstream decisions stay on
// the safe side.

const (
	fallbackCreditScore      = 650
	fallbackPreApprovedLimit = 100000
	fallbackInterestRate     = 18.0
)

func fallbackCustomer(customerID string) *CRMCustomer {
	return &CRMCustomer{
		ID:           customerID,
		Name:         "Valued Customer",
		Verification: "manual_verification_required",
	}
}

func fallbackCreditReport(customerID string) *CreditReport {
	return &CreditReport{
		Success:     true,
		CustomerID:  customerID,
		CreditScore: fallbackCreditScore,
		Estimated:   true,
	}
}

func fallbackOfferSheet(customerID string) *OfferSheet {
	return &OfferSheet{
		Success:          true,
		CustomerID:       customerID,
		PreApprovedLimit: fallbackPreApprovedLimit,
		InterestRate:     fallbackInterestRate,
		Offers: []LoanOffer{
			{
				Name:         "Standard Personal Loan",
				Amount:       fallbackPreApprovedLimit,
				InterestRate: fallbackInterestRate,
				TenureMonths: 36,
			},
			{
				Name:         "Small Ticket Loan",
				Amount:       fallbackPreApprovedLimit / 2,
				InterestRate: fallbackInterestRate,
				TenureMonths: 24,
			},
		},
	}
}

package loan

import (
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"
)

// EMI ratio thresholds against monthly income.
const (
	MaxEMIRatio          = 0.50
	SafeEMIRatio         = 0.40
	ConservativeEMIRatio = 0.30
)

// Loan bounds.
const (
	MinTenureMonths = 6
	MaxTenureMonths = 360
	MinLoanAmount   = 10000
	MaxLoanAmount   = 10000000
	MinInterestRate = 8.0
	MaxInterestRate = 25.0
)

// Processing fee schedule.
const (
	FeeTypeStandard    = "standard"
	FeeTypePremium     = "premium"
	FeeTypePromotional = "promotional"

	maxProcessingFee = 50000
)

var processingFeeRates = map[string]float64{
	FeeTypeStandard:    0.02,
	FeeTypePremium:     0.015,
	FeeTypePromotional: 0.01,
}

// standardTenures are the tenure options offered when adjusting terms.
var standardTenures = []int{24, 36, 48, 60, 84, 120}

func round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// CalculateEMI computes the equated monthly installment.
//
// EMI = P * r * (1+r)^n / ((1+r)^n - 1), r = annual rate / 1200.
// Degenerates to P/n at zero rate.
func CalculateEMI(principal, annualRate float64, tenureMonths int) float64 {
	monthlyRate := annualRate / (12 * 100)
	if monthlyRate == 0 {
		return round2(principal / float64(tenureMonths))
	}
	factor := math.Pow(1+monthlyRate, float64(tenureMonths))
	emi := principal * monthlyRate * factor / (factor - 1)
	return round2(emi)
}

// Calculator performs loan math and affordability assessment.
type Calculator struct{}

func NewCalculator() *Calculator {
	return &Calculator{}
}

func (c *Calculator) validateInputs(principal, rate float64, tenure int) error {
	if principal <= 0 {
		return fmt.Errorf("principal amount must be positive")
	}
	if rate < 0 {
		return fmt.Errorf("interest rate cannot be negative")
	}
	if tenure <= 0 {
		return fmt.Errorf("tenure must be positive")
	}
	if principal > MaxLoanAmount {
		return fmt.Errorf("principal exceeds maximum loan amount of %d", MaxLoanAmount)
	}
	if tenure > MaxTenureMonths {
		return fmt.Errorf("tenure exceeds maximum of %d months", MaxTenureMonths)
	}
	return nil
}

// CalculateEMI validates inputs and computes the EMI.
func (c *Calculator) CalculateEMI(principal, annualRate float64, tenureMonths int) (float64, error) {
	if err := c.validateInputs(principal, annualRate, tenureMonths); err != nil {
		return 0, err
	}
	return CalculateEMI(principal, annualRate, tenureMonths), nil
}

// CalculateLoanTerms builds the full terms for a principal, rate and tenure.
func (c *Calculator) CalculateLoanTerms(principal, annualRate float64, tenureMonths int, feeType string) (Terms, error) {
	emi, err := c.CalculateEMI(principal, annualRate, tenureMonths)
	if err != nil {
		return Terms{}, err
	}
	totalPayable := emi * float64(tenureMonths)
	return Terms{
		Amount:        principal,
		Tenure:        tenureMonths,
		InterestRate:  annualRate,
		EMI:           emi,
		TotalPayable:  totalPayable,
		TotalInterest: totalPayable - principal,
		ProcessingFee: c.ProcessingFee(principal, feeType),
	}, nil
}

// ProcessingFee applies the fee schedule with the absolute cap.
func (c *Calculator) ProcessingFee(amount float64, feeType string) float64 {
	rate, ok := processingFeeRates[feeType]
	if !ok {
		rate = processingFeeRates[FeeTypeStandard]
	}
	fee := amount * rate
	if fee > maxProcessingFee {
		fee = maxProcessingFee
	}
	return round2(fee)
}

// AssessAffordability evaluates proposed terms against the customer's income.
func (c *Calculator) AssessAffordability(profile *CustomerProfile, terms Terms) Affordability {
	var currentBurden float64
	for _, l := range profile.CurrentLoans {
		currentBurden += l.EMI
	}

	if profile.Salary > 0 {
		newRatio := terms.EMI / profile.Salary
		totalRatio := (currentBurden + terms.EMI) / profile.Salary
		maxAffordableEMI := profile.Salary*MaxEMIRatio - currentBurden
		if maxAffordableEMI < 0 {
			maxAffordableEMI = 0
		}
		maxAmount := c.MaxLoanAmount(maxAffordableEMI, terms.InterestRate, terms.Tenure)

		affordable := totalRatio <= MaxEMIRatio &&
			terms.EMI <= maxAffordableEMI &&
			profile.CreditScore >= 650

		risk := "high"
		switch {
		case totalRatio <= ConservativeEMIRatio:
			risk = "low"
		case totalRatio <= SafeEMIRatio:
			risk = "medium"
		}

		return Affordability{
			IsAffordable:        affordable,
			EMIRatio:            newRatio,
			RiskLevel:           risk,
			MaxAffordableAmount: maxAmount,
		}
	}

	// No salary information, conservative assessment
	return Affordability{
		IsAffordable:        profile.CreditScore >= 700 && terms.Amount <= profile.PreApprovedLimit,
		EMIRatio:            0,
		RiskLevel:           "medium",
		MaxAffordableAmount: profile.PreApprovedLimit,
		Notes:               "salary information not available",
	}
}

// MaxLoanAmount inverts the EMI formula to the principal:
// P = EMI * ((1+r)^n - 1) / (r * (1+r)^n).
func (c *Calculator) MaxLoanAmount(targetEMI, annualRate float64, tenureMonths int) float64 {
	monthlyRate := annualRate / (12 * 100)
	if monthlyRate == 0 {
		return targetEMI * float64(tenureMonths)
	}
	factor := math.Pow(1+monthlyRate, float64(tenureMonths))
	denominator := monthlyRate * factor
	if denominator == 0 {
		return 0
	}
	return targetEMI * (factor - 1) / denominator
}

// TenureForEMI inverts the EMI formula to the tenure:
// n = ln(EMI / (EMI - P*r)) / ln(1+r), rounded up to whole months.
// Fails when the EMI does not even cover the monthly interest.
func (c *Calculator) TenureForEMI(principal, annualRate, targetEMI float64) (int, error) {
	monthlyRate := annualRate / (12 * 100)
	if monthlyRate == 0 {
		return int(principal / targetEMI), nil
	}
	if targetEMI <= principal*monthlyRate {
		return 0, fmt.Errorf("EMI too low to cover interest")
	}
	tenure := math.Log(targetEMI/(targetEMI-principal*monthlyRate)) / math.Log(1+monthlyRate)
	return int(math.Ceil(tenure)), nil
}

// RemainingPrincipal computes the outstanding balance after monthsPaid
// using the amortization formula.
func (c *Calculator) RemainingPrincipal(principal, annualRate, emi float64, monthsPaid int) float64 {
	monthlyRate := annualRate / (12 * 100)
	if monthlyRate == 0 {
		remaining := principal - emi*float64(monthsPaid)
		if remaining < 0 {
			return 0
		}
		return remaining
	}
	factor := math.Pow(1+monthlyRate, float64(monthsPaid))
	remaining := principal*factor - emi*((factor-1)/monthlyRate)
	if remaining < 0 {
		return 0
	}
	return remaining
}

func futureInterest(principal, emi float64, remainingMonths int) float64 {
	interest := emi*float64(remainingMonths) - principal
	if interest < 0 {
		return 0
	}
	return interest
}

// PrepaymentScenario summarises the effect of a lump-sum prepayment.
type PrepaymentScenario struct {
	LoanClosed       bool    `json:"loan_closed"`
	PrepaymentAmount float64 `json:"prepayment_amount"`
	NewPrincipal     float64 `json:"new_principal,omitempty"`
	NewTenure        int     `json:"new_tenure"`
	TenureReducedBy  int     `json:"tenure_reduced_by,omitempty"`
	InterestSaved    float64 `json:"interest_saved"`
	NewEMI           float64 `json:"new_emi"`
}

// CalculatePrepayment analyses a prepayment at the given month, holding the
// EMI constant and shortening the tenure.
func (c *Calculator) CalculatePrepayment(terms Terms, prepaymentAmount float64, prepaymentMonth int) (PrepaymentScenario, error) {
	remaining := c.RemainingPrincipal(terms.Amount, terms.InterestRate, terms.EMI, prepaymentMonth)
	if prepaymentAmount > remaining {
		prepaymentAmount = remaining
	}

	newPrincipal := remaining - prepaymentAmount
	remainingTenure := terms.Tenure - prepaymentMonth

	if newPrincipal <= 0 {
		return PrepaymentScenario{
			LoanClosed:       true,
			PrepaymentAmount: prepaymentAmount,
			InterestSaved:    futureInterest(remaining, terms.EMI, remainingTenure),
		}, nil
	}

	newTenure, err := c.TenureForEMI(newPrincipal, terms.InterestRate, terms.EMI)
	if err != nil {
		return PrepaymentScenario{}, fmt.Errorf("calculate prepayment scenario: %w", err)
	}

	saved := futureInterest(remaining, terms.EMI, remainingTenure) -
		futureInterest(newPrincipal, terms.EMI, newTenure)

	return PrepaymentScenario{
		LoanClosed:       false,
		PrepaymentAmount: prepaymentAmount,
		NewPrincipal:     newPrincipal,
		NewTenure:        newTenure,
		TenureReducedBy:  remainingTenure - newTenure,
		InterestSaved:    saved,
		NewEMI:           terms.EMI,
	}, nil
}

// AdjustTermsForAffordability generates up to five alternative terms that
// fit the customer's EMI capacity: a tenure-stretch option at the desired
// amount plus amount-reduced options at the standard tenures.
func (c *Calculator) AdjustTermsForAffordability(profile *CustomerProfile, desiredAmount, interestRate float64) []Terms {
	var targetEMIs []float64
	if profile.Salary > 0 {
		var currentBurden float64
		for _, l := range profile.CurrentLoans {
			currentBurden += l.EMI
		}
		targetEMIs = []float64{
			profile.Salary*ConservativeEMIRatio - currentBurden,
			profile.Salary*SafeEMIRatio - currentBurden,
			profile.Salary*MaxEMIRatio - currentBurden,
		}
	} else {
		estimated := profile.PreApprovedLimit * 0.02
		targetEMIs = []float64{estimated * 0.8, estimated, estimated * 1.2}
	}

	var options []Terms
	for _, targetEMI := range targetEMIs {
		if targetEMI <= 0 {
			continue
		}

		if tenure, err := c.TenureForEMI(desiredAmount, interestRate, targetEMI); err == nil {
			if tenure >= MinTenureMonths && tenure <= MaxTenureMonths {
				if terms, err := c.CalculateLoanTerms(desiredAmount, interestRate, tenure, FeeTypeStandard); err == nil {
					options = append(options, terms)
				}
			}
		}

		for _, tenure := range standardTenures {
			maxAmount := c.MaxLoanAmount(targetEMI, interestRate, tenure)
			if maxAmount < MinLoanAmount {
				continue
			}
			amount := math.Min(desiredAmount, maxAmount)
			terms, err := c.CalculateLoanTerms(amount, interestRate, tenure, FeeTypeStandard)
			if err != nil {
				continue
			}
			if terms.EMI <= targetEMI*1.05 {
				options = append(options, terms)
			}
		}
	}

	type comboKey struct {
		amount int64
		tenure int
		emi    int64
	}
	seen := make(map[comboKey]struct{})
	unique := options[:0]
	for _, option := range options {
		key := comboKey{int64(math.Round(option.Amount)), option.Tenure, int64(math.Round(option.EMI))}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, option)
	}

	sort.SliceStable(unique, func(i, j int) bool {
		if unique[i].Amount != unique[j].Amount {
			return unique[i].Amount > unique[j].Amount
		}
		return unique[i].EMI < unique[j].EMI
	})

	if len(unique) > 5 {
		unique = unique[:5]
	}
	return unique
}

// TermsValidation reports rule violations, warnings and recommendations
// for a proposed offer.
type TermsValidation struct {
	IsValid         bool     `json:"is_valid"`
	Errors          []string `json:"errors"`
	Warnings        []string `json:"warnings"`
	Recommendations []string `json:"recommendations"`
}

// ValidateLoanTerms checks terms against the hard bounds and the
// customer's profile.
func (c *Calculator) ValidateLoanTerms(terms Terms, profile *CustomerProfile) TermsValidation {
	result := TermsValidation{IsValid: true}

	addError := func(msg string) {
		result.Errors = append(result.Errors, msg)
		result.IsValid = false
	}

	if terms.Amount < MinLoanAmount {
		addError(fmt.Sprintf("loan amount %.0f is below minimum %d", terms.Amount, MinLoanAmount))
	}
	if terms.Amount > MaxLoanAmount {
		addError(fmt.Sprintf("loan amount %.0f exceeds maximum %d", terms.Amount, MaxLoanAmount))
	}
	if terms.Tenure < MinTenureMonths {
		addError(fmt.Sprintf("tenure %d months is below minimum %d months", terms.Tenure, MinTenureMonths))
	}
	if terms.Tenure > MaxTenureMonths {
		addError(fmt.Sprintf("tenure %d months exceeds maximum %d months", terms.Tenure, MaxTenureMonths))
	}
	if terms.InterestRate < MinInterestRate {
		addError(fmt.Sprintf("interest rate %.2f%% is below minimum %.1f%%", terms.InterestRate, MinInterestRate))
	}
	if terms.InterestRate > MaxInterestRate {
		addError(fmt.Sprintf("interest rate %.2f%% exceeds maximum %.1f%%", terms.InterestRate, MaxInterestRate))
	}
	if terms.Amount > profile.PreApprovedLimit*2 {
		addError(fmt.Sprintf("loan amount exceeds 2x pre-approved limit of %.0f", profile.PreApprovedLimit*2))
	}
	if profile.CreditScore < 650 {
		addError(fmt.Sprintf("credit score %d is below minimum requirement of 650", profile.CreditScore))
	}

	affordability := c.AssessAffordability(profile, terms)
	if !affordability.IsAffordable {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("EMI of %.0f may exceed customer's repayment capacity", terms.EMI))
	}
	if affordability.RiskLevel == "high" {
		result.Warnings = append(result.Warnings, "high risk: EMI-to-income ratio exceeds safe limits")
	}
	if terms.Amount > profile.PreApprovedLimit {
		result.Recommendations = append(result.Recommendations,
			"consider reducing loan amount to within pre-approved limit for instant approval")
	}
	if affordability.EMIRatio > SafeEMIRatio {
		result.Recommendations = append(result.Recommendations,
			"consider extending tenure to reduce the EMI")
	}
	return result
}

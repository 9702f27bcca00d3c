package loan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func calcProfile(creditScore int, salary, limit float64) *CustomerProfile {
	return &CustomerProfile{
		ID:               "CUST001",
		Name:             "Rajesh Kumar",
		Age:              32,
		CreditScore:      creditScore,
		Salary:           salary,
		PreApprovedLimit: limit,
		EmploymentType:   "salaried",
	}
}

func TestCalculateEMI(t *testing.T) {
	tests := []struct {
		name      string
		principal float64
		rate      float64
		tenure    int
		want      float64
	}{
		{"one lakh one year", 100000, 12.0, 12, 8884.88},
		{"five lakh five years", 500000, 10.5, 60, 10747.05},
		{"zero rate splits evenly", 120000, 0, 24, 5000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, CalculateEMI(tt.principal, tt.rate, tt.tenure), 1.0)
		})
	}
}

func TestCalculateEMIRejectsBadInputs(t *testing.T) {
	c := NewCalculator()

	_, err := c.CalculateEMI(-1000, 12, 60)
	assert.Error(t, err)
	_, err = c.CalculateEMI(100000, -1, 60)
	assert.Error(t, err)
	_, err = c.CalculateEMI(100000, 12, 0)
	assert.Error(t, err)
	_, err = c.CalculateEMI(MaxLoanAmount+1, 12, 60)
	assert.Error(t, err)
	_, err = c.CalculateEMI(100000, 12, MaxTenureMonths+1)
	assert.Error(t, err)
}

func TestTenureForEMIRoundTrip(t *testing.T) {
	c := NewCalculator()

	emi, err := c.CalculateEMI(400000, 12.0, 60)
	require.NoError(t, err)

	tenure, err := c.TenureForEMI(400000, 12.0, emi)
	require.NoError(t, err)
	assert.Equal(t, 60, tenure)
}

func TestTenureForEMIZeroRate(t *testing.T) {
	c := NewCalculator()

	tenure, err := c.TenureForEMI(100000, 0, 5000)
	require.NoError(t, err)
	assert.Equal(t, 20, tenure)
}

func TestTenureForEMITooLowToCoverInterest(t *testing.T) {
	c := NewCalculator()

	// Monthly interest on 400000 at 12% is 4000.
	_, err := c.TenureForEMI(400000, 12.0, 3000)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too low")
}

func TestMaxLoanAmountInvertsEMI(t *testing.T) {
	c := NewCalculator()

	emi := CalculateEMI(750000, 13.5, 84)
	assert.InDelta(t, 750000, c.MaxLoanAmount(emi, 13.5, 84), 1.0)
}

func TestProcessingFee(t *testing.T) {
	c := NewCalculator()

	assert.InDelta(t, 4000, c.ProcessingFee(200000, FeeTypeStandard), 0.01)
	assert.InDelta(t, 7500, c.ProcessingFee(500000, FeeTypePremium), 0.01)
	assert.InDelta(t, 1000, c.ProcessingFee(100000, FeeTypePromotional), 0.01)
	assert.InDelta(t, 4000, c.ProcessingFee(200000, "unknown"), 0.01)
	assert.InDelta(t, 50000, c.ProcessingFee(5000000, FeeTypeStandard), 0.01, "fee is capped")
}

func TestAssessAffordability(t *testing.T) {
	c := NewCalculator()

	t.Run("comfortable ratio is low risk", func(t *testing.T) {
		result := c.AssessAffordability(calcProfile(720, 80000, 500000), Terms{EMI: 20000, InterestRate: 12, Tenure: 60})
		assert.True(t, result.IsAffordable)
		assert.Equal(t, "low", result.RiskLevel)
		assert.InDelta(t, 0.25, result.EMIRatio, 0.001)
	})

	t.Run("near the cap is high risk but affordable", func(t *testing.T) {
		result := c.AssessAffordability(calcProfile(720, 80000, 500000), Terms{EMI: 36000, InterestRate: 12, Tenure: 60})
		assert.True(t, result.IsAffordable)
		assert.Equal(t, "high", result.RiskLevel)
	})

	t.Run("existing loans eat into capacity", func(t *testing.T) {
		profile := calcProfile(720, 80000, 500000)
		profile.CurrentLoans = []ExistingLoan{{EMI: 30000}}
		result := c.AssessAffordability(profile, Terms{EMI: 15000, InterestRate: 12, Tenure: 60})
		// total burden 45000 of 80000 exceeds the 50% cap via max affordable EMI
		assert.False(t, result.IsAffordable)
	})

	t.Run("no salary falls back to the pre-approved limit", func(t *testing.T) {
		result := c.AssessAffordability(calcProfile(720, 0, 500000), Terms{Amount: 400000, EMI: 9000, InterestRate: 12, Tenure: 60})
		assert.True(t, result.IsAffordable)
		assert.Equal(t, "medium", result.RiskLevel)
		assert.NotEmpty(t, result.Notes)
	})
}

func TestAdjustTermsForAffordability(t *testing.T) {
	c := NewCalculator()

	options := c.AdjustTermsForAffordability(calcProfile(720, 80000, 500000), 500000, 12.0)
	require.NotEmpty(t, options)
	assert.LessOrEqual(t, len(options), 5)

	maxEMI := 80000 * MaxEMIRatio * 1.05
	for i, option := range options {
		assert.LessOrEqual(t, option.EMI, maxEMI)
		assert.LessOrEqual(t, option.Amount, 500000.0)
		if i > 0 {
			assert.LessOrEqual(t, option.Amount, options[i-1].Amount, "sorted by amount descending")
		}
	}
}

func TestValidateLoanTerms(t *testing.T) {
	c := NewCalculator()

	t.Run("valid terms pass", func(t *testing.T) {
		terms, err := c.CalculateLoanTerms(400000, 12.0, 60, FeeTypeStandard)
		require.NoError(t, err)
		result := c.ValidateLoanTerms(terms, calcProfile(760, 85000, 500000))
		assert.True(t, result.IsValid)
		assert.Empty(t, result.Errors)
	})

	t.Run("out-of-bounds terms collect errors", func(t *testing.T) {
		result := c.ValidateLoanTerms(Terms{Amount: 5000, Tenure: 400, InterestRate: 30, EMI: 2000},
			calcProfile(600, 85000, 500000))
		assert.False(t, result.IsValid)
		assert.GreaterOrEqual(t, len(result.Errors), 4)
	})
}

func TestCalculatePrepayment(t *testing.T) {
	c := NewCalculator()

	terms, err := c.CalculateLoanTerms(400000, 12.0, 60, FeeTypeStandard)
	require.NoError(t, err)

	t.Run("partial prepayment shortens tenure", func(t *testing.T) {
		scenario, err := c.CalculatePrepayment(terms, 100000, 12)
		require.NoError(t, err)
		assert.False(t, scenario.LoanClosed)
		assert.Less(t, scenario.NewTenure, 48)
		assert.Greater(t, scenario.InterestSaved, 0.0)
		assert.InDelta(t, terms.EMI, scenario.NewEMI, 0.01)
	})

	t.Run("prepaying the full balance closes the loan", func(t *testing.T) {
		scenario, err := c.CalculatePrepayment(terms, 10000000, 12)
		require.NoError(t, err)
		assert.True(t, scenario.LoanClosed)
	})
}

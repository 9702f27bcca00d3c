package agents

import (
	"testing"

	"loanflow-server/internal/application/errorhandler"
	"loanflow-server/internal/domain/conversation"
	"loanflow-server/internal/domain/loan"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyObjection(t *testing.T) {
	cases := []struct {
		message string
		want    string
	}{
		{"The interest rate seems expensive", objectionHighInterest},
		{"This EMI is more than I can pay monthly", objectionHighEMI},
		{"Five years is too long a duration for me", objectionLongTenure},
		{"Why are the processing charges so steep?", objectionProcessingFee},
		{"I need to think about it", objectionGeneralConcern},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, classifyObjection(tc.message), tc.message)
	}
}

func TestProcessingFeeType(t *testing.T) {
	s := NewSalesAgent(errorhandler.New())

	premium := testProfile(820, 1000000, 150000)
	assert.Equal(t, loan.FeeTypePremium, s.processingFeeType(600000, premium))

	standard := testProfile(760, 500000, 80000)
	assert.Equal(t, loan.FeeTypePromotional, s.processingFeeType(80000, standard))
	assert.Equal(t, loan.FeeTypeStandard, s.processingFeeType(300000, standard))
}

func TestFormatINR(t *testing.T) {
	assert.Equal(t, "Rs.1,234,567", formatINR(1234567))
	assert.Equal(t, "Rs.500", formatINR(500))
	assert.Equal(t, "Rs.0", formatINR(0))
}

func TestNegotiateLoanTermsProducesOptions(t *testing.T) {
	s := NewSalesAgent(errorhandler.New())
	conv := conversation.NewContext("session_sales", "CUST001")
	profile := testProfile(780, 500000, 80000)

	result, err := s.NegotiateLoanTerms(conv, profile, 400000)
	require.NoError(t, err)

	assert.Equal(t, true, result["negotiation_successful"])
	options := result["loan_options"].([]map[string]any)
	require.NotEmpty(t, options)
	assert.LessOrEqual(t, len(options), 3)
	for _, option := range options {
		assert.InDelta(t, 400000, option["amount"].(float64), 0.01)
		assert.Greater(t, option["emi"].(float64), 0.0)
	}

	presentation := result["presentation_message"].(string)
	assert.Contains(t, presentation, "Rajesh Kumar")
	assert.Contains(t, presentation, "Option 1 (RECOMMENDED)")

	shared, ok := conv.GetSharedData(conversation.AgentMaster, "loan_options")
	require.True(t, ok)
	assert.Len(t, shared.([]map[string]any), len(options))
}

func TestNegotiationFallsBackWithoutProfile(t *testing.T) {
	s := NewSalesAgent(errorhandler.New())
	conv := conversation.NewContext("session_sales", "CUST001")

	result, err := s.startNegotiation(map[string]any{}, conv)
	require.NoError(t, err)

	assert.Equal(t, false, result["negotiation_successful"])
	assert.Contains(t, result["fallback_message"], "basic information")
}

func TestHandleEMIObjectionOffersTwoAlternatives(t *testing.T) {
	s := NewSalesAgent(errorhandler.New())
	conv := conversation.NewContext("session_sales", "CUST001")

	currentTerms := map[string]any{
		"amount":        400000.0,
		"interest_rate": 13.0,
		"tenure":        60,
		"emi":           9100.0,
	}

	result := s.HandleCustomerObjection(conv, "the EMI is too much for my monthly budget", currentTerms)

	assert.Equal(t, true, result["objection_handled"])
	assert.Equal(t, objectionHighEMI, result["objection_type"])

	alternatives := result["alternative_options"].([]map[string]any)
	require.Len(t, alternatives, 2)
	assert.Equal(t, 84, alternatives[0]["tenure"])
	assert.InDelta(t, 320000, alternatives[1]["amount"].(float64), 0.01)

	shared, ok := conv.GetSharedData(conversation.AgentMaster, "objections_handled")
	require.True(t, ok)
	assert.Equal(t, objectionHighEMI, shared.(map[string]any)["objection_type"])
}

func TestHandleInterestObjectionLowersRate(t *testing.T) {
	s := NewSalesAgent(errorhandler.New())

	result := s.HandleCustomerObjection(nil, "the interest rate is too expensive", map[string]any{
		"amount":        300000.0,
		"interest_rate": 14.0,
		"tenure":        60,
		"emi":           6980.0,
	})

	assert.Equal(t, objectionHighInterest, result["objection_type"])
	alternatives := result["alternative_options"].([]map[string]any)
	require.Len(t, alternatives, 1)
	assert.InDelta(t, 13.5, alternatives[0]["interest_rate"].(float64), 0.001)
	assert.Contains(t, result["response_message"], "13.5%")
}

func TestAssessFinancialCapacityLevels(t *testing.T) {
	s := NewSalesAgent(errorhandler.New())
	profile := testProfile(760, 500000, 80000)

	within := s.assessFinancialCapacity(profile, 400000)
	assert.Equal(t, "excellent", within["capacity_level"])
	assert.Equal(t, true, within["within_pre_approved"])

	stretch := s.assessFinancialCapacity(profile, 800000)
	assert.Equal(t, "good", stretch["capacity_level"])

	excess := s.assessFinancialCapacity(profile, 1500000)
	assert.Equal(t, "limited", excess["capacity_level"])
}

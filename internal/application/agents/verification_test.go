package agents

import (
	"testing"

	"loanflow-server/internal/application/errorhandler"
	"loanflow-server/internal/domain/conversation"
	"loanflow-server/internal/domain/verification"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testVerificationAgent() *VerificationAgent {
	v := NewVerificationAgent(errorhandler.New(), nil, nil)
	v.scoreVariation = func() int { return 0 }
	return v
}

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"+91 98765 43210", "9876543210"},
		{"919876543210", "9876543210"},
		{"09876543210", "9876543210"},
		{"98765-43210", "9876543210"},
		{"9876543210", "9876543210"},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, normalizePhone(tc.in), tc.in)
	}
}

func TestTokenSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, tokenSimilarity("MG Road Bangalore", "mg road bangalore"))
	assert.Equal(t, 0.0, tokenSimilarity("Mumbai", "Chennai"))
	assert.InDelta(t, 1.0/3.0, tokenSimilarity("MG Road Bangalore Karnataka", "MG Road Pune Maharashtra"), 0.01)
	assert.Equal(t, 0.0, tokenSimilarity("", "anything"))
}

func TestVerifyPhoneMatchesAcrossFormats(t *testing.T) {
	v := testVerificationAgent()

	match := v.verifyPhone("+91 98765 43210", "9876543210")
	assert.Equal(t, verificationVerified, match.Status)

	mismatch := v.verifyPhone("9876543211", "9876543210")
	assert.Equal(t, verificationFailed, mismatch.Status)
	assert.Contains(t, mismatch.Issues, "Phone number mismatch")

	missing := v.verifyPhone("", "9876543210")
	assert.Equal(t, verificationFailed, missing.Status)
	assert.Contains(t, missing.Issues, "Missing phone number data")
}

func TestVerifyAddressUsesSimilarityThreshold(t *testing.T) {
	v := testVerificationAgent()

	match := v.verifyAddress("12 MG Road Bangalore Karnataka", "12 MG Road Bangalore Karnataka")
	assert.Equal(t, verificationVerified, match.Status)

	mismatch := v.verifyAddress("45 Park Street Kolkata", "12 MG Road Bangalore Karnataka")
	assert.Equal(t, verificationFailed, mismatch.Status)
	assert.Contains(t, mismatch.Issues, "Address mismatch")
}

func TestDocumentVerificationScoring(t *testing.T) {
	v := testVerificationAgent()
	conv := conversation.NewContext("session_docs", "CUST001")

	passed := v.documentVerification(map[string]any{
		"documents": []any{
			map[string]any{"type": "aadhaar"},
			map[string]any{"type": "pan"},
			map[string]any{"type": "utility_bill"},
		},
	}, conv)

	result := passed["verification_result"].(map[string]any)
	assert.Equal(t, verificationVerified, result["status"])
	assert.Equal(t, "proceed_to_underwriting", passed["next_action"])

	shared, ok := conv.GetSharedData(conversation.AgentMaster, "kyc_verified")
	require.True(t, ok)
	assert.Equal(t, true, shared)
	method, ok := conv.GetSharedData(conversation.AgentMaster, "verification_method")
	require.True(t, ok)
	assert.Equal(t, string(verification.MethodDocumentBased), method)
}

func TestDocumentVerificationInsufficientScore(t *testing.T) {
	v := testVerificationAgent()

	failed := v.documentVerification(map[string]any{
		"documents": []any{
			map[string]any{"type": "voter_id"},
		},
	}, nil)

	result := failed["verification_result"].(map[string]any)
	assert.Equal(t, verificationFailed, result["status"])
	assert.Equal(t, "request_additional_documents", failed["next_action"])
}

func TestDocumentVerificationRequiresDocuments(t *testing.T) {
	v := testVerificationAgent()

	empty := v.documentVerification(map[string]any{}, nil)
	result := empty["verification_result"].(map[string]any)
	assert.Equal(t, verificationFailed, result["status"])
	assert.Contains(t, empty["message"], "upload the required documents")
}

func TestRequiredDocumentsForIssues(t *testing.T) {
	docs := requiredDocuments([]string{"Phone number mismatch", "Address mismatch"})
	assert.Equal(t, []string{"utility_bill", "bank_statement", "aadhaar", "passport"}, docs)

	fallback := requiredDocuments([]string{"something else"})
	assert.Equal(t, []string{"aadhaar", "pan"}, fallback)
}

func TestVerificationScore(t *testing.T) {
	results := []checkResult{
		{Status: verificationVerified},
		{Status: verificationVerified},
		{Status: verificationFailed},
	}
	assert.Equal(t, 66, verificationScore(results))
	assert.Equal(t, 0, verificationScore(nil))
}

func TestVerificationFailureMessages(t *testing.T) {
	assert.Contains(t, verificationFailureMessage([]string{"Phone number mismatch"}), "phone number")
	assert.Contains(t, verificationFailureMessage([]string{"Address mismatch"}), "address")
	assert.Contains(t, verificationFailureMessage([]string{"a", "b"}), "additional documentation")
	assert.Contains(t, verificationFailureMessage(nil), "additional documentation")
}

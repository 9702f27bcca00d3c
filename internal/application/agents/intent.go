package agents

import (
	"regexp"
	"strconv"
	"strings"

	"loanflow-server/internal/domain/conversation"
)

// Intent is the classified purpose of one customer message.
type Intent string

const (
	IntentLoanInterest         Intent = "loan_interest"
	IntentCustomerDetails      Intent = "customer_details"
	IntentFormSubmission       Intent = "form_submission"
	IntentInformationRequest   Intent = "information_request"
	IntentAgreement            Intent = "agreement"
	IntentVerificationComplete Intent = "verification_complete"
	IntentDisagreement         Intent = "disagreement"
	IntentObjection            Intent = "objection"
	IntentDocumentRelated      Intent = "document_related"
	IntentSanctionLetter       Intent = "sanction_letter_request"
	IntentFullApplication      Intent = "comprehensive_loan_application"
	IntentGeneralInquiry       Intent = "general_inquiry"
)

// IntentAnalysis is the result of classifying a message.
type IntentAnalysis struct {
	Intent     Intent   `json:"intent"`
	Confidence float64  `json:"confidence"`
	AllIntents []Intent `json:"all_intents"`
	Stage      conversation.Stage
}

// ordered keyword rules; earlier rules win when several match.
var intentKeywords = []struct {
	intent   Intent
	keywords []string
}{
	{IntentLoanInterest, []string{"loan", "borrow", "money", "credit", "finance", "amount"}},
	{IntentCustomerDetails, []string{"name", "age", "city", "bangalore", "mumbai", "delhi", "years old", "my name is"}},
	{IntentFormSubmission, []string{"form submitted", "form_data"}},
	{IntentInformationRequest, []string{"how", "what", "when", "where", "why", "tell me"}},
	{IntentAgreement, []string{"yes", "okay", "sure", "agree", "proceed", "continue", "approve"}},
	{IntentVerificationComplete, []string{"verification complete", "kyc complete", "verified", "identity verified", "check my credit", "credit check"}},
	{IntentDisagreement, []string{"no", "not", "disagree", "cancel", "stop"}},
	{IntentObjection, []string{"but", "however", "expensive", "high", "too much", "cannot"}},
	{IntentDocumentRelated, []string{"document", "upload", "file", "salary", "slip", "proof"}},
	{IntentSanctionLetter, []string{"sanction letter", "approval letter", "generate letter", "pdf", "download"}},
}

var applicationIndicators = []string{
	"apply for", "loan application", "want a loan", "need a loan",
	"personal loan", "home loan", "car loan", "business loan",
}

func containsAny(message string, needles ...string) bool {
	lower := strings.ToLower(message)
	for _, n := range needles {
		if strings.Contains(lower, n) {
			return true
		}
	}
	return false
}

// AnalyzeIntent classifies a customer message. Comprehensive applications,
// verification confirmations and sanction letter requests are checked before
// the generic keyword rules.
func AnalyzeIntent(message string, stage conversation.Stage) IntentAnalysis {
	lower := strings.ToLower(message)

	hasName := containsAny(lower, "name", "my name is")
	hasAge := agePattern.MatchString(message)
	hasIncome := containsAny(lower, "income", "salary", "rs")
	hasEmployment := containsAny(lower, "work", "job", "employed", "engineer", "company")
	hasCreditScore := containsAny(lower, "credit score", "cibil")
	hasAmount := amountPattern.MatchString(message)
	hasCity := containsAny(lower, "city", "bangalore", "mumbai", "delhi", "chennai", "kolkata", "pune", "hyderabad")

	detailCount := 0
	for _, present := range []bool{hasName, hasAge, hasIncome, hasEmployment, hasCreditScore, hasAmount} {
		if present {
			detailCount++
		}
	}
	isApplication := containsAny(lower, applicationIndicators...)

	if (isApplication && detailCount >= 3) || detailCount >= 4 {
		return IntentAnalysis{
			Intent:     IntentFullApplication,
			Confidence: 0.9,
			AllIntents: []Intent{IntentFullApplication, IntentCustomerDetails, IntentLoanInterest},
			Stage:      stage,
		}
	}

	if containsAny(lower, "verification complete", "kyc complete", "eligibility") ||
		(strings.Contains(lower, "verified") && strings.Contains(lower, "proceed")) ||
		(strings.Contains(lower, "check") && strings.Contains(lower, "credit")) ||
		(strings.Contains(lower, "credit") && strings.Contains(lower, "score")) {
		return IntentAnalysis{
			Intent:     IntentVerificationComplete,
			Confidence: 0.95,
			AllIntents: []Intent{IntentVerificationComplete, IntentAgreement},
			Stage:      stage,
		}
	}

	if (strings.Contains(lower, "sanction") && strings.Contains(lower, "letter")) || strings.Contains(lower, "generate") {
		return IntentAnalysis{
			Intent:     IntentSanctionLetter,
			Confidence: 0.95,
			AllIntents: []Intent{IntentSanctionLetter, IntentAgreement},
			Stage:      stage,
		}
	}

	identityCount := 0
	for _, present := range []bool{hasName, hasAge, hasCity, hasAmount} {
		if present {
			identityCount++
		}
	}

	var detected []Intent
	if identityCount >= 2 {
		detected = []Intent{IntentCustomerDetails}
	} else {
		for _, rule := range intentKeywords {
			if containsAny(lower, rule.keywords...) {
				detected = append(detected, rule.intent)
			}
		}
	}

	if len(detected) == 0 {
		return IntentAnalysis{Intent: IntentGeneralInquiry, Confidence: 0.3, AllIntents: nil, Stage: stage}
	}
	return IntentAnalysis{Intent: detected[0], Confidence: 0.8, AllIntents: detected, Stage: stage}
}

// NextAction pairs a conversation action with the stage it moves to.
type NextAction struct {
	Action    string
	NextStage conversation.Stage
}

type stageIntent struct {
	stage  conversation.Stage
	intent Intent
}

var actionMap = map[stageIntent]NextAction{
	{conversation.StageInitiation, IntentLoanInterest}:                    {"collect_information", conversation.StageInformationCollection},
	{conversation.StageInitiation, IntentGeneralInquiry}:                  {"provide_information", conversation.StageInitiation},
	{conversation.StageInitiation, IntentFullApplication}:                 {"process_complete_application", conversation.StageUnderwriting},
	{conversation.StageInformationCollection, IntentCustomerDetails}:      {"start_sales", conversation.StageSalesNegotiation},
	{conversation.StageInformationCollection, IntentFormSubmission}:       {"start_sales", conversation.StageSalesNegotiation},
	{conversation.StageInformationCollection, IntentAgreement}:            {"start_sales", conversation.StageSalesNegotiation},
	{conversation.StageInformationCollection, IntentFullApplication}:      {"process_complete_application", conversation.StageUnderwriting},
	{conversation.StageSalesNegotiation, IntentAgreement}:                 {"start_verification", conversation.StageVerification},
	{conversation.StageSalesNegotiation, IntentVerificationComplete}:      {"start_underwriting", conversation.StageUnderwriting},
	{conversation.StageSalesNegotiation, IntentObjection}:                 {"handle_objection", conversation.StageSalesNegotiation},
	{conversation.StageSalesNegotiation, IntentFullApplication}:           {"process_complete_application", conversation.StageUnderwriting},
	{conversation.StageVerification, IntentAgreement}:                     {"start_underwriting", conversation.StageUnderwriting},
	{conversation.StageVerification, IntentVerificationComplete}:          {"start_underwriting", conversation.StageUnderwriting},
	{conversation.StageVerification, IntentGeneralInquiry}:                {"start_underwriting", conversation.StageUnderwriting},
	{conversation.StageUnderwriting, IntentDocumentRelated}:               {"request_documents", conversation.StageDocumentUpload},
	{conversation.StageUnderwriting, IntentAgreement}:                     {"generate_sanction_letter", conversation.StageSanctionGeneration},
	{conversation.StageUnderwriting, IntentSanctionLetter}:                {"generate_sanction_letter", conversation.StageSanctionGeneration},
	{conversation.StageUnderwriting, IntentVerificationComplete}:          {"generate_sanction_letter", conversation.StageSanctionGeneration},
	{conversation.StageSanctionGeneration, IntentSanctionLetter}:          {"generate_sanction_letter", conversation.StageSanctionGeneration},
	{conversation.StageSanctionGeneration, IntentAgreement}:               {"generate_sanction_letter", conversation.StageSanctionGeneration},
}

// DetermineNextAction maps (stage, intent) to the conversation action.
func DetermineNextAction(analysis IntentAnalysis, stage conversation.Stage) NextAction {
	if action, ok := actionMap[stageIntent{stage, analysis.Intent}]; ok {
		return action
	}
	return NextAction{Action: "continue_conversation", NextStage: stage}
}

var (
	agePattern    = regexp.MustCompile(`(?i)\bage[:\s]+(\d{2})\b|\b(\d{2})\s*years?\s*old\b`)
	amountPattern = regexp.MustCompile(`(?:₹|rs\.?\s*)(\d+(?:,\d+)*)|\b(\d{5,8})\b`)

	namePattern   = regexp.MustCompile(`(?i)(?:my name is|name[:\s]+|i am )([a-zA-Z ]+?)(?:\n|,| age|$)`)
	incomePattern = regexp.MustCompile(`(?i)(?:income|salary)[:\s]+(?:₹|rs\.?\s*)?(\d+(?:,\d+)*)`)
	creditPattern = regexp.MustCompile(`(?i)credit score[:\s]+(\d{3})`)
	cityList      = []string{"bangalore", "mumbai", "delhi", "chennai", "kolkata", "pune", "hyderabad"}
)

// ExtractedDetails holds whatever customer facts a message revealed.
type ExtractedDetails struct {
	Name        string
	Age         int
	City        string
	Salary      float64
	CreditScore int
	Amount      float64
	Employment  string
}

// ExtractDetails pulls customer facts out of free text. Zero values mean the
// message did not mention the field.
func ExtractDetails(message string) ExtractedDetails {
	lower := strings.ToLower(message)
	var out ExtractedDetails

	if m := namePattern.FindStringSubmatch(message); m != nil {
		out.Name = titleCase(strings.TrimSpace(m[1]))
	}
	if m := agePattern.FindStringSubmatch(message); m != nil {
		raw := m[1]
		if raw == "" {
			raw = m[2]
		}
		if age, err := strconv.Atoi(raw); err == nil && age >= 18 && age <= 100 {
			out.Age = age
		}
	}
	if m := incomePattern.FindStringSubmatch(message); m != nil {
		if v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64); err == nil {
			out.Salary = v
		}
	}
	if m := creditPattern.FindStringSubmatch(message); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil {
			out.CreditScore = v
		}
	}
	if m := amountPattern.FindStringSubmatch(message); m != nil {
		raw := m[1]
		if raw == "" {
			raw = m[2]
		}
		if v, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", ""), 64); err == nil {
			out.Amount = v
		}
	}
	for _, city := range cityList {
		if strings.Contains(lower, city) {
			out.City = titleCase(city)
			break
		}
	}
	switch {
	case containsAny(lower, "engineer", "salaried", "employed"):
		out.Employment = "salaried"
	case containsAny(lower, "business", "self employed"):
		out.Employment = "self_employed"
	}
	return out
}

func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

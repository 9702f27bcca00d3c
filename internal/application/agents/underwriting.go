package agents

import (
	"context"
	"fmt"

	"loanflow-server/internal/application/errorhandler"
	"loanflow-server/internal/domain/conversation"
	"loanflow-server/internal/domain/history"
	"loanflow-server/internal/domain/loan"
	"loanflow-server/internal/infrastructure/apiclients"
	"loanflow-server/internal/infrastructure/metrics"
)

// Underwriting business rules.
const (
	minCreditScore       = 700
	maxAmountMultiplier  = 2.0
	maxUnderwritingEMI   = 0.50
	minApplicantAge      = 21
	maxApplicantAge      = 65
	instantApprovalRatio = 1.0
)

// HistoryRecorder persists processed applications for reporting. The
// agent tolerates recording failures; the decision is already made.
type HistoryRecorder interface {
	Record(app *history.Application) error
}

// UnderwritingAgent applies the deterministic approval rules: credit
// floor, amount multiplier against the pre-approved limit and EMI
// affordability against salary.
type UnderwritingAgent struct {
	Base
	apis    *apiclients.Clients
	calc    *loan.Calculator
	history HistoryRecorder
}

func NewUnderwritingAgent(errs *errorhandler.Handler, apis *apiclients.Clients, recorder HistoryRecorder) *UnderwritingAgent {
	return &UnderwritingAgent{
		Base:    NewBase(conversation.AgentUnderwriting, errs),
		apis:    apis,
		calc:    loan.NewCalculator(),
		history: recorder,
	}
}

func (u *UnderwritingAgent) CanExecute(task *conversation.AgentTask) bool {
	return task.Type == conversation.TaskUnderwriting
}

func (u *UnderwritingAgent) Execute(ctx context.Context, task *conversation.AgentTask, conv *conversation.Context) (map[string]any, error) {
	return u.ExecuteTask(ctx, task, conv, u.runTask)
}

func (u *UnderwritingAgent) runTask(ctx context.Context, task *conversation.AgentTask, conv *conversation.Context) (map[string]any, error) {
	action := mapString(task.Input, "action", "full_underwriting")
	u.log.Info().Str("action", action).Msg("executing underwriting task")

	switch action {
	case "full_underwriting":
		return u.fullUnderwriting(ctx, task.Input, conv)
	case "credit_score_check":
		return u.creditScoreCheck(ctx, task.Input), nil
	case "affordability_assessment":
		return u.affordabilityAssessment(task.Input), nil
	case "business_rules_validation":
		return u.businessRulesValidation(task.Input), nil
	default:
		return nil, fmt.Errorf("unknown underwriting action: %s", action)
	}
}

// fullUnderwriting fetches the financial snapshot and runs the decision
// rules against the collected customer profile.
func (u *UnderwritingAgent) fullUnderwriting(ctx context.Context, input map[string]any, conv *conversation.Context) (map[string]any, error) {
	customerID := mapString(input, "customer_id", "")
	if customerID == "" {
		return nil, fmt.Errorf("customer id is required for underwriting")
	}

	var payload map[string]any
	if conv != nil {
		if shared, ok := conv.GetSharedData(conversation.AgentUnderwriting, "customer_profile"); ok {
			payload, _ = shared.(map[string]any)
		}
	}
	if payload == nil {
		payload, _ = input["customer_profile"].(map[string]any)
	}
	if payload == nil {
		return nil, fmt.Errorf("customer profile not available in context")
	}
	profile := profileFromMap(payload)

	snapshot, err := u.apis.FinancialSnapshot(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("fetch financial snapshot: %w", err)
	}
	profile.CreditScore = snapshot.Credit.Report.CreditScore
	if snapshot.Offers.Sheet.PreApprovedLimit > 0 {
		profile.PreApprovedLimit = snapshot.Offers.Sheet.PreApprovedLimit
	}

	requestedAmount := mapFloat(input, "requested_amount", mapFloat(payload, "requested_amount", profile.PreApprovedLimit))
	tenure := mapInt(input, "tenure", 60)
	rate := u.interestRate(profile, requestedAmount)

	application, err := loan.NewApplication(customerID, requestedAmount, tenure, rate)
	if err != nil {
		return nil, fmt.Errorf("build loan application: %w", err)
	}

	decision := u.Decide(profile, application)
	metrics.UnderwritingDecisionsTotal.WithLabelValues(string(decision.DecisionType)).Inc()

	if conv != nil {
		conv.ShareData(conversation.AgentUnderwriting, conversation.AgentMaster, "credit_check_done", true)
		conv.ShareData(conversation.AgentUnderwriting, conversation.AgentMaster, "credit_score", profile.CreditScore)
		conv.ShareData(conversation.AgentUnderwriting, conversation.AgentMaster, "eligibility_decision", string(decision.DecisionType))
		if decision.Decision == loan.StatusApproved {
			conv.ShareData(conversation.AgentUnderwriting, conversation.AgentMaster, "loan_approved", true)
			conv.ShareData(conversation.AgentUnderwriting, conversation.AgentMaster, "approved_loan", map[string]any{
				"amount":        application.RequestedAmount,
				"tenure":        application.Tenure,
				"interest_rate": application.InterestRate,
				"emi":           application.EMI,
				"credit_score":  profile.CreditScore,
			})
		}
	}

	u.recordHistory(conv, profile, application, decision)

	return map[string]any{
		"decision":           string(decision.Decision),
		"decision_type":      string(decision.DecisionType),
		"credit_score":       profile.CreditScore,
		"credit_source":      string(snapshot.Credit.Source),
		"pre_approved_limit": profile.PreApprovedLimit,
		"emi":                application.EMI,
		"interest_rate":      application.InterestRate,
		"message":            decision.Message,
		"next_action":        decision.NextAction,
		"approved":           decision.Decision == loan.StatusApproved,
		"suggested_amount":   decision.SuggestedAmount,
		"required_documents": decision.RequiredDocs,
		"factors":            decision.Factors,
	}, nil
}

// Decide applies the approval rules in order: credit floor, amount
// multiplier, instant approval, then EMI-checked conditional approval.
func (u *UnderwritingAgent) Decide(profile *loan.CustomerProfile, application *loan.Application) loan.UnderwritingDecision {
	decision := loan.UnderwritingDecision{
		ApplicationID:    application.ID,
		CreditScore:      profile.CreditScore,
		PreApprovedLimit: profile.PreApprovedLimit,
		Factors:          map[string]any{},
		CreatedAt:        application.CreatedAt,
	}

	if profile.CreditScore < minCreditScore {
		decision.Factors["credit_score_rejection"] = map[string]any{
			"credit_score":     profile.CreditScore,
			"minimum_required": minCreditScore,
		}
		application.Reject(fmt.Sprintf("credit score %d is below minimum requirement of %d", profile.CreditScore, minCreditScore))
		decision.Decision = loan.StatusRejected
		decision.DecisionType = loan.DecisionRejectionLowCredit
		decision.Message = fmt.Sprintf("We're sorry, but we cannot approve your loan application at this time. Your credit score of %d is below our minimum requirement of %d. We recommend improving your credit score and applying again in the future.", profile.CreditScore, minCreditScore)
		decision.NextAction = "end_conversation"
		return decision
	}

	amountRatio := maxAmountMultiplier + 1
	if profile.PreApprovedLimit > 0 {
		amountRatio = application.RequestedAmount / profile.PreApprovedLimit
	}

	if amountRatio > maxAmountMultiplier {
		maxAllowed := profile.PreApprovedLimit * maxAmountMultiplier
		decision.Factors["excess_amount_rejection"] = map[string]any{
			"requested_amount":   application.RequestedAmount,
			"pre_approved_limit": profile.PreApprovedLimit,
			"maximum_allowed":    maxAllowed,
			"amount_ratio":       amountRatio,
		}
		application.Reject(fmt.Sprintf("requested amount %s exceeds maximum allowed %s", formatINR(application.RequestedAmount), formatINR(maxAllowed)))
		decision.Decision = loan.StatusRejected
		decision.DecisionType = loan.DecisionRejectionExcessAmount
		decision.Message = fmt.Sprintf("We're unable to approve the requested amount of %s. The maximum amount we can offer you is %s. Would you like to proceed with a lower amount?", formatINR(application.RequestedAmount), formatINR(maxAllowed))
		decision.NextAction = "offer_reduced_amount"
		decision.SuggestedAmount = maxAllowed
		return decision
	}

	if amountRatio <= instantApprovalRatio {
		decision.Factors["instant_approval"] = map[string]any{
			"requested_amount":   application.RequestedAmount,
			"pre_approved_limit": profile.PreApprovedLimit,
			"amount_ratio":       amountRatio,
			"credit_score":       profile.CreditScore,
		}
		application.Approve()
		decision.Decision = loan.StatusApproved
		decision.DecisionType = loan.DecisionInstantApproval
		decision.Message = fmt.Sprintf("Congratulations! Your loan application for %s has been instantly approved. Your EMI will be %s for %d months.", formatINR(application.RequestedAmount), formatINR(application.EMI), application.Tenure)
		decision.NextAction = "generate_sanction_letter"
		return decision
	}

	// Between 1x and 2x the limit: conditional approval gated on EMI
	// affordability, or salary verification when salary is unknown.
	if profile.Salary > 0 {
		terms, _ := u.calc.CalculateLoanTerms(application.RequestedAmount, application.InterestRate, application.Tenure, loan.FeeTypeStandard)
		affordability := u.calc.AssessAffordability(profile, terms)
		emiRatio := application.EMI / profile.Salary

		decision.Factors["conditional_approval_emi_check"] = map[string]any{
			"requested_amount": application.RequestedAmount,
			"amount_ratio":     amountRatio,
			"salary":           profile.Salary,
			"emi":              application.EMI,
			"emi_ratio":        emiRatio,
			"max_emi_ratio":    maxUnderwritingEMI,
			"is_affordable":    affordability.IsAffordable,
		}

		if emiRatio <= maxUnderwritingEMI && affordability.IsAffordable {
			application.Approve()
			decision.Decision = loan.StatusApproved
			decision.DecisionType = loan.DecisionConditionalApproval
			decision.Message = fmt.Sprintf("Great news! Your loan application for %s has been approved. Your EMI of %s is well within your repayment capacity.", formatINR(application.RequestedAmount), formatINR(application.EMI))
			decision.NextAction = "generate_sanction_letter"
			return decision
		}

		application.Reject(fmt.Sprintf("EMI %s exceeds 50%% of salary", formatINR(application.EMI)))
		decision.Decision = loan.StatusRejected
		decision.DecisionType = loan.DecisionRejectionExcessAmount
		decision.Message = fmt.Sprintf("We're unable to approve the requested amount as the EMI of %s would exceed 50%% of your salary. We can offer you a lower amount with an affordable EMI.", formatINR(application.EMI))
		decision.NextAction = "offer_reduced_amount"
		decision.SuggestedAmount = affordability.MaxAffordableAmount
		return decision
	}

	decision.Factors["salary_verification_required"] = map[string]any{
		"requested_amount":   application.RequestedAmount,
		"pre_approved_limit": profile.PreApprovedLimit,
		"amount_ratio":       amountRatio,
	}
	application.RequireDocuments()
	decision.Decision = loan.StatusRequiresDocuments
	decision.DecisionType = loan.DecisionRequiresSalaryVerification
	decision.Message = fmt.Sprintf("To process your loan application for %s, we need to verify your salary. Please upload your latest salary slip to continue.", formatINR(application.RequestedAmount))
	decision.NextAction = "request_salary_slip"
	decision.RequiredDocs = []string{"salary_slip"}
	return decision
}

func (u *UnderwritingAgent) creditScoreCheck(ctx context.Context, input map[string]any) map[string]any {
	customerID := mapString(input, "customer_id", defaultCustomerID)
	result := u.apis.CreditScore(ctx, customerID)
	return map[string]any{
		"credit_check_completed": true,
		"credit_score":           result.Report.CreditScore,
		"estimated":              result.Report.Estimated,
		"source":                 string(result.Source),
		"attempts":               result.Attempts,
	}
}

func (u *UnderwritingAgent) affordabilityAssessment(input map[string]any) map[string]any {
	payload, _ := input["customer_profile"].(map[string]any)
	termsData, _ := input["loan_terms"].(map[string]any)
	if payload == nil || termsData == nil {
		return map[string]any{
			"assessment_completed": false,
			"error":                "missing customer profile or loan terms data",
		}
	}

	profile := profileFromMap(payload)
	terms := loan.Terms{
		Amount:       mapFloat(termsData, "amount", 0),
		Tenure:       mapInt(termsData, "tenure", 0),
		InterestRate: mapFloat(termsData, "interest_rate", 0),
		EMI:          mapFloat(termsData, "emi", 0),
	}
	affordability := u.calc.AssessAffordability(profile, terms)

	return map[string]any{
		"assessment_completed": true,
		"affordability_result": map[string]any{
			"is_affordable":         affordability.IsAffordable,
			"emi_ratio":             affordability.EMIRatio,
			"risk_level":            affordability.RiskLevel,
			"max_affordable_amount": affordability.MaxAffordableAmount,
		},
	}
}

// businessRulesValidation runs the full rule checklist without rendering
// a decision, for diagnostics and pre-checks.
func (u *UnderwritingAgent) businessRulesValidation(input map[string]any) map[string]any {
	payload, _ := input["customer_profile"].(map[string]any)
	appData, _ := input["loan_application"].(map[string]any)
	if payload == nil || appData == nil {
		return map[string]any{
			"validation_completed": false,
			"error":                "missing customer profile or loan application data",
		}
	}

	profile := profileFromMap(payload)
	requestedAmount := mapFloat(appData, "requested_amount", 0)
	emi := mapFloat(appData, "emi", 0)

	result := map[string]any{"is_valid": true}
	checks := map[string]any{}
	var violations []string
	var warnings []string

	ageValid := profile.Age >= minApplicantAge && profile.Age <= maxApplicantAge
	checks["age_check"] = map[string]any{"valid": ageValid, "customer_age": profile.Age, "min_age": minApplicantAge, "max_age": maxApplicantAge}
	if !ageValid {
		violations = append(violations, fmt.Sprintf("age %d is outside allowed range %d-%d", profile.Age, minApplicantAge, maxApplicantAge))
	}

	scoreValid := profile.CreditScore >= minCreditScore
	checks["credit_score_check"] = map[string]any{"valid": scoreValid, "customer_score": profile.CreditScore, "min_score": minCreditScore}
	if !scoreValid {
		violations = append(violations, fmt.Sprintf("credit score %d is below minimum %d", profile.CreditScore, minCreditScore))
	}

	amountRatio := maxAmountMultiplier + 1
	if profile.PreApprovedLimit > 0 {
		amountRatio = requestedAmount / profile.PreApprovedLimit
	}
	amountValid := amountRatio <= maxAmountMultiplier
	checks["amount_check"] = map[string]any{"valid": amountValid, "requested_amount": requestedAmount, "pre_approved_limit": profile.PreApprovedLimit, "amount_ratio": amountRatio}
	if !amountValid {
		violations = append(violations, fmt.Sprintf("requested amount %s exceeds maximum %s", formatINR(requestedAmount), formatINR(profile.PreApprovedLimit*maxAmountMultiplier)))
	}

	if profile.Salary > 0 && emi > 0 {
		emiRatio := emi / profile.Salary
		emiValid := emiRatio <= maxUnderwritingEMI
		checks["emi_check"] = map[string]any{"valid": emiValid, "emi": emi, "salary": profile.Salary, "emi_ratio": emiRatio}
		if !emiValid {
			violations = append(violations, fmt.Sprintf("EMI %s exceeds 50%% of salary", formatINR(emi)))
		}
	} else {
		warnings = append(warnings, "salary information not available for EMI validation")
	}

	result["rule_checks"] = checks
	result["violations"] = violations
	result["warnings"] = warnings
	result["is_valid"] = len(violations) == 0

	return map[string]any{
		"validation_completed": true,
		"validation_result":    result,
	}
}

// OptimalTerms reworks the desired amount into affordable options using
// the calculator's adjustment engine.
func (u *UnderwritingAgent) OptimalTerms(profile *loan.CustomerProfile, desiredAmount float64) map[string]any {
	rate := u.interestRate(profile, desiredAmount)
	adjusted := u.calc.AdjustTermsForAffordability(profile, desiredAmount, rate)
	if len(adjusted) == 0 {
		return map[string]any{
			"calculation_successful": false,
			"error":                  "unable to generate suitable loan terms",
		}
	}

	var options []map[string]any
	for _, terms := range adjusted {
		affordability := u.calc.AssessAffordability(profile, terms)
		option := termsToOption(terms, affordabilityScore(affordability))
		option["is_affordable"] = affordability.IsAffordable
		option["risk_level"] = affordability.RiskLevel
		options = append(options, option)
	}

	return map[string]any{
		"calculation_successful": true,
		"optimal_terms":          options,
		"recommended_option":     options[0],
	}
}

func (u *UnderwritingAgent) interestRate(profile *loan.CustomerProfile, amount float64) float64 {
	return priceInterestRate(profile, amount)
}

func (u *UnderwritingAgent) recordHistory(conv *conversation.Context, profile *loan.CustomerProfile, application *loan.Application, decision loan.UnderwritingDecision) {
	if u.history == nil {
		return
	}

	sessionID := "unknown"
	if conv != nil {
		sessionID = conv.SessionID
	}

	record := history.NewApplication(sessionID)
	record.CustomerName = profile.Name
	record.CustomerPhone = profile.Phone
	record.CustomerCity = profile.City
	record.RequestedAmount = application.RequestedAmount
	record.Tenure = application.Tenure
	record.InterestRate = application.InterestRate
	record.EMI = application.EMI
	record.CreditScore = profile.CreditScore

	switch decision.Decision {
	case loan.StatusApproved:
		record.Status = history.StatusApproved
		record.ApprovedAmount = application.RequestedAmount
		record.VerificationStatus = "verified"
	case loan.StatusRejected:
		record.Status = history.StatusRejected
		record.RejectionReason = application.RejectionReason
	default:
		record.Status = history.StatusPending
	}

	if err := u.history.Record(record); err != nil {
		u.log.Warn().Err(err).Str("session_id", sessionID).Msg("failed to record application history")
	}
}

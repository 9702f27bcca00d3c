package agents

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"loanflow-server/internal/application/errorhandler"
	"loanflow-server/internal/domain/conversation"
	"loanflow-server/internal/domain/loan"
)

// Sales task actions carried in the task input under "action".
const (
	salesActionStartNegotiation    = "start_negotiation"
	salesActionPresentTerms        = "present_terms"
	salesActionHandleObjection     = "handle_objection"
	salesActionFinalizeTerms       = "finalize_terms"
	salesActionAssessCapacity      = "assess_capacity"
	salesActionProvideAlternatives = "provide_alternatives"
)

// Objection categories recognised from customer messages.
const (
	objectionHighInterest   = "high_interest"
	objectionHighEMI        = "high_emi"
	objectionLongTenure     = "long_tenure"
	objectionProcessingFee  = "processing_fee"
	objectionGeneralConcern = "general_concern"
)

// tenureOptions are the tenures offered during negotiation, in months.
var tenureOptions = []int{6, 12, 18, 24, 36, 48, 60, 72, 84, 96, 120}

type rateBand struct {
	min float64
	max float64
}

// interestRateMatrix maps credit category to the annual rate band.
var interestRateMatrix = map[string]rateBand{
	"excellent": {min: 10.5, max: 12.0},
	"good":      {min: 12.0, max: 14.5},
	"fair":      {min: 14.5, max: 17.0},
	"poor":      {min: 17.0, max: 20.0},
}

// SalesAgent negotiates loan terms: it prices the loan from the
// customer's credit profile, generates affordable tenure options and
// handles objections with concrete alternatives.
type SalesAgent struct {
	Base
	calc *loan.Calculator
}

func NewSalesAgent(errs *errorhandler.Handler) *SalesAgent {
	return &SalesAgent{
		Base: NewBase(conversation.AgentSales, errs),
		calc: loan.NewCalculator(),
	}
}

func (s *SalesAgent) CanExecute(task *conversation.AgentTask) bool {
	return task.Type == conversation.TaskSales
}

func (s *SalesAgent) Execute(ctx context.Context, task *conversation.AgentTask, conv *conversation.Context) (map[string]any, error) {
	return s.ExecuteTask(ctx, task, conv, s.runTask)
}

func (s *SalesAgent) runTask(ctx context.Context, task *conversation.AgentTask, conv *conversation.Context) (map[string]any, error) {
	action := salesActionStartNegotiation
	if v, ok := task.Input["action"].(string); ok && v != "" {
		action = v
	}

	switch action {
	case salesActionStartNegotiation:
		return s.startNegotiation(task.Input, conv)
	case salesActionPresentTerms:
		return s.presentTerms(task.Input, conv), nil
	case salesActionHandleObjection:
		return s.processObjection(task.Input, conv), nil
	case salesActionFinalizeTerms:
		return s.finalizeTerms(task.Input, conv), nil
	case salesActionAssessCapacity:
		return s.assessCapacityTask(task.Input, conv)
	case salesActionProvideAlternatives:
		return s.provideAlternatives(task.Input, conv)
	default:
		return nil, fmt.Errorf("unknown sales action: %s", action)
	}
}

func (s *SalesAgent) startNegotiation(input map[string]any, conv *conversation.Context) (map[string]any, error) {
	customerData, _ := conv.GetSharedData(conversation.AgentSales, "customer_profile")
	payload, _ := customerData.(map[string]any)
	if payload == nil {
		payload, _ = input["customer_profile"].(map[string]any)
	}
	if payload == nil {
		return map[string]any{
			"negotiation_successful": false,
			"error":                  "customer profile not available",
			"fallback_message":       "I need some basic information to calculate your loan options. Could you please provide your details?",
		}, nil
	}

	profile := profileFromMap(payload)

	requestedAmount := mapFloat(payload, "requested_amount", 0)
	if requestedAmount <= 0 {
		requestedAmount = mapFloat(input, "requested_amount", profile.PreApprovedLimit)
	}

	s.log.Info().
		Str("customer", profile.Name).
		Float64("requested_amount", requestedAmount).
		Msg("starting loan negotiation")

	return s.NegotiateLoanTerms(conv, profile, requestedAmount)
}

// NegotiateLoanTerms prices the loan, builds the top three tenure
// options and shares them with the conversation for the next stage.
func (s *SalesAgent) NegotiateLoanTerms(conv *conversation.Context, profile *loan.CustomerProfile, requestedAmount float64) (map[string]any, error) {
	assessment := s.assessFinancialCapacity(profile, requestedAmount)
	rate := s.interestRate(profile, requestedAmount)
	feeType := s.processingFeeType(requestedAmount, profile)

	var options []map[string]any
	for _, tenure := range s.suitableTenures(requestedAmount, rate, profile, 0) {
		terms, err := s.calc.CalculateLoanTerms(requestedAmount, rate, tenure, feeType)
		if err != nil {
			continue
		}
		affordability := s.calc.AssessAffordability(profile, terms)
		options = append(options, termsToOption(terms, affordabilityScore(affordability)))
		if len(options) == 3 {
			break
		}
	}

	if len(options) == 0 {
		return map[string]any{
			"negotiation_successful": false,
			"error":                  "no affordable loan options found",
			"fallback_message":       fmt.Sprintf("I'm working on calculating the best loan options for %s. Let me present some preliminary options.", formatINR(requestedAmount)),
		}, nil
	}

	presentation := s.loanPresentation(options, profile, requestedAmount)

	if conv != nil {
		conv.ShareData(conversation.AgentSales, conversation.AgentMaster, "loan_options", options)
		conv.ShareData(conversation.AgentSales, conversation.AgentMaster, "capacity_assessment", assessment)
		conv.ShareData(conversation.AgentSales, conversation.AgentMaster, "negotiation_stage", "options_presented")
	}

	return map[string]any{
		"negotiation_successful": true,
		"loan_options":           options,
		"interest_rate":          rate,
		"capacity_assessment":    assessment,
		"presentation_message":   presentation,
	}, nil
}

func (s *SalesAgent) presentTerms(input map[string]any, conv *conversation.Context) map[string]any {
	options, _ := input["loan_options"].([]map[string]any)
	if len(options) == 0 {
		if shared, ok := conv.GetSharedData(conversation.AgentSales, "loan_options"); ok {
			options, _ = shared.([]map[string]any)
		}
	}
	if len(options) == 0 {
		return map[string]any{
			"presentation_generated": false,
			"presentation_message":   "I apologize, but I'm unable to generate suitable loan options at this time. Let me review your requirements again.",
		}
	}
	return map[string]any{
		"presentation_generated": true,
		"presentation_message":   s.loanPresentation(options, nil, mapFloat(options[0], "amount", 0)),
		"options_count":          len(options),
	}
}

func (s *SalesAgent) processObjection(input map[string]any, conv *conversation.Context) map[string]any {
	objection, _ := input["objection"].(string)
	currentTerms, _ := input["current_terms"].(map[string]any)
	if currentTerms == nil {
		if shared, ok := conv.GetSharedData(conversation.AgentSales, "loan_options"); ok {
			if options, ok := shared.([]map[string]any); ok && len(options) > 0 {
				currentTerms = options[0]
			}
		}
	}
	if currentTerms == nil {
		currentTerms = map[string]any{}
	}

	return s.HandleCustomerObjection(conv, objection, currentTerms)
}

// HandleCustomerObjection classifies the objection and answers it with
// alternative terms where possible.
func (s *SalesAgent) HandleCustomerObjection(conv *conversation.Context, objection string, currentTerms map[string]any) map[string]any {
	objectionType := classifyObjection(objection)

	var handled objectionResponse
	switch objectionType {
	case objectionHighInterest:
		handled = s.answerInterestObjection(currentTerms)
	case objectionHighEMI:
		handled = s.answerEMIObjection(currentTerms)
	case objectionLongTenure:
		handled = s.answerTenureObjection(currentTerms)
	case objectionProcessingFee:
		handled = s.answerFeeObjection(currentTerms)
	default:
		handled = objectionResponse{
			response:   "I understand your concerns. Let me address them and see how we can make this work better for you. Could you tell me specifically what aspect you'd like me to adjust - the EMI amount, tenure, or loan amount?",
			nextAction: "clarify_objection",
		}
	}

	if conv != nil {
		conv.ShareData(conversation.AgentSales, conversation.AgentMaster, "objections_handled", map[string]any{
			"objection_text": objection,
			"objection_type": objectionType,
			"timestamp":      time.Now().UTC().Format(time.RFC3339),
		})
	}

	s.log.Info().Str("objection_type", objectionType).Msg("handled customer objection")

	return map[string]any{
		"objection_handled":   true,
		"objection_type":      objectionType,
		"response_message":    handled.response,
		"alternative_options": handled.alternatives,
		"next_action":         handled.nextAction,
	}
}

func (s *SalesAgent) finalizeTerms(input map[string]any, conv *conversation.Context) map[string]any {
	selected, _ := input["selected_option"].(map[string]any)
	if selected == nil {
		selected = map[string]any{}
	}

	if conv != nil {
		conv.ShareData(conversation.AgentSales, conversation.AgentMaster, "finalized_terms", selected)
		conv.ShareData(conversation.AgentSales, conversation.AgentMaster, "negotiation_stage", "terms_agreed")
	}

	return map[string]any{
		"terms_finalized": true,
		"final_terms":     selected,
		"next_stage":      string(conversation.StageVerification),
	}
}

func (s *SalesAgent) assessCapacityTask(input map[string]any, conv *conversation.Context) (map[string]any, error) {
	shared, ok := conv.GetSharedData(conversation.AgentSales, "customer_profile")
	if !ok {
		return nil, fmt.Errorf("customer profile not available")
	}
	payload, _ := shared.(map[string]any)
	profile := profileFromMap(payload)
	requestedAmount := mapFloat(input, "requested_amount", profile.PreApprovedLimit)

	assessment := s.assessFinancialCapacity(profile, requestedAmount)
	conv.ShareData(conversation.AgentSales, conversation.AgentMaster, "financial_assessment", assessment)

	return map[string]any{
		"assessment_completed": true,
		"capacity_result":      assessment,
		"recommendation":       capacityRecommendation(assessment),
	}, nil
}

func (s *SalesAgent) provideAlternatives(input map[string]any, conv *conversation.Context) (map[string]any, error) {
	shared, ok := conv.GetSharedData(conversation.AgentSales, "customer_profile")
	if !ok {
		return nil, fmt.Errorf("customer profile not available")
	}
	payload, _ := shared.(map[string]any)
	profile := profileFromMap(payload)
	constraints, _ := input["constraints"].(map[string]any)

	alternatives := s.alternativeOptions(profile, constraints)

	return map[string]any{
		"alternatives_generated": true,
		"alternative_options":    alternatives,
		"options_count":          len(alternatives),
	}, nil
}

// assessFinancialCapacity measures the request against the pre-approved
// limit and the customer's EMI headroom.
func (s *SalesAgent) assessFinancialCapacity(profile *loan.CustomerProfile, requestedAmount float64) map[string]any {
	assessment := map[string]any{
		"customer_id":        profile.ID,
		"requested_amount":   requestedAmount,
		"pre_approved_limit": profile.PreApprovedLimit,
		"credit_score":       profile.CreditScore,
	}
	if ratio, ok := profile.DebtToIncomeRatio(); ok {
		assessment["current_debt_ratio"] = ratio
	}
	if available, ok := profile.AvailableIncome(); ok {
		assessment["available_income"] = available
	}

	withinLimit := requestedAmount <= profile.PreApprovedLimit
	withinTwiceLimit := requestedAmount <= profile.PreApprovedLimit*2
	assessment["within_pre_approved"] = withinLimit
	assessment["within_2x_limit"] = withinTwiceLimit

	switch {
	case withinLimit:
		assessment["capacity_level"] = "excellent"
	case withinTwiceLimit:
		assessment["capacity_level"] = "good"
	default:
		assessment["capacity_level"] = "limited"
	}

	if profile.Salary > 0 {
		var currentBurden float64
		for _, l := range profile.CurrentLoans {
			currentBurden += l.EMI
		}
		availableEMI := profile.Salary*loan.MaxEMIRatio - currentBurden
		assessment["available_emi_capacity"] = availableEMI

		if availableEMI > 0 {
			rate := s.interestRate(profile, requestedAmount)
			maxAmount := s.calc.MaxLoanAmount(availableEMI, rate, 60)
			if cap := profile.PreApprovedLimit * 2; maxAmount > cap {
				maxAmount = cap
			}
			assessment["recommended_amount"] = maxAmount
		} else {
			assessment["recommended_amount"] = 0.0
		}
	} else {
		assessment["recommended_amount"] = profile.PreApprovedLimit
	}

	return assessment
}

func (s *SalesAgent) interestRate(profile *loan.CustomerProfile, amount float64) float64 {
	return priceInterestRate(profile, amount)
}

// priceInterestRate prices the loan from the credit category band,
// moving up the band as the amount grows relative to the pre-approved
// limit. Sales and underwriting share this so negotiated and
// underwritten rates agree.
func priceInterestRate(profile *loan.CustomerProfile, amount float64) float64 {
	var category string
	switch {
	case profile.CreditScore >= 800:
		category = "excellent"
	case profile.CreditScore >= 750:
		category = "good"
	case profile.CreditScore >= 700:
		category = "fair"
	default:
		category = "poor"
	}
	band := interestRateMatrix[category]

	amountRatio := 2.0
	if profile.PreApprovedLimit > 0 {
		amountRatio = amount / profile.PreApprovedLimit
	}

	var rate float64
	switch {
	case amountRatio <= 0.5:
		rate = band.min
	case amountRatio <= 1.0:
		rate = band.min + (band.max-band.min)*0.3
	case amountRatio <= 2.0:
		rate = band.min + (band.max-band.min)*0.7
	default:
		rate = band.max
	}
	return roundRate(rate)
}

// suitableTenures filters the standard tenure list to affordable
// options, placing the preferred tenure first when it qualifies.
func (s *SalesAgent) suitableTenures(amount, rate float64, profile *loan.CustomerProfile, preferredTenure int) []int {
	var suitable []int
	for _, tenure := range tenureOptions {
		terms, err := s.calc.CalculateLoanTerms(amount, rate, tenure, loan.FeeTypeStandard)
		if err != nil {
			continue
		}
		affordability := s.calc.AssessAffordability(profile, terms)
		if affordability.IsAffordable || profile.Salary <= 0 {
			suitable = append(suitable, tenure)
		}
	}

	if preferredTenure > 0 {
		for i, tenure := range suitable {
			if tenure == preferredTenure {
				suitable = append(suitable[:i], suitable[i+1:]...)
				suitable = append([]int{preferredTenure}, suitable...)
				break
			}
		}
	}

	if len(suitable) > 5 {
		suitable = suitable[:5]
	}
	return suitable
}

func (s *SalesAgent) processingFeeType(amount float64, profile *loan.CustomerProfile) string {
	switch {
	case profile.CreditScore >= 800 && amount >= 500000:
		return loan.FeeTypePremium
	case amount <= 100000:
		return loan.FeeTypePromotional
	default:
		return loan.FeeTypeStandard
	}
}

func (s *SalesAgent) alternativeOptions(profile *loan.CustomerProfile, constraints map[string]any) []map[string]any {
	baseAmount := mapFloat(constraints, "max_amount", profile.PreApprovedLimit)
	maxEMI := mapFloat(constraints, "max_emi", 0)
	maxTenure := mapInt(constraints, "max_tenure", 120)

	var alternatives []map[string]any
	for _, amount := range []float64{baseAmount * 0.7, baseAmount * 0.85, baseAmount} {
		rate := s.interestRate(profile, amount)
		for _, tenure := range tenureOptions {
			if tenure > maxTenure {
				continue
			}
			terms, err := s.calc.CalculateLoanTerms(amount, rate, tenure, loan.FeeTypeStandard)
			if err != nil {
				continue
			}
			if maxEMI > 0 && terms.EMI > maxEMI {
				continue
			}
			affordability := s.calc.AssessAffordability(profile, terms)
			alternatives = append(alternatives, termsToOption(terms, affordabilityScore(affordability)))
			break
		}
	}
	return alternatives
}

// GenerateAdjustedTerms reworks the desired amount into affordable
// variants using the calculator's adjustment engine.
func (s *SalesAgent) GenerateAdjustedTerms(profile *loan.CustomerProfile, desiredAmount, interestRate float64) []map[string]any {
	var options []map[string]any
	for _, terms := range s.calc.AdjustTermsForAffordability(profile, desiredAmount, interestRate) {
		affordability := s.calc.AssessAffordability(profile, terms)
		option := termsToOption(terms, affordabilityScore(affordability))
		option["is_affordable"] = affordability.IsAffordable
		option["risk_level"] = affordability.RiskLevel
		options = append(options, option)
	}
	return options
}

type objectionResponse struct {
	response     string
	alternatives []map[string]any
	nextAction   string
}

func (s *SalesAgent) answerInterestObjection(currentTerms map[string]any) objectionResponse {
	currentRate := mapFloat(currentTerms, "interest_rate", 15.0)
	amount := mapFloat(currentTerms, "amount", 0)
	tenure := mapInt(currentTerms, "tenure", 60)

	if currentRate > 12.0 {
		betterRate := currentRate - 0.5
		if betterRate < 10.5 {
			betterRate = 10.5
		}
		terms, err := s.calc.CalculateLoanTerms(amount, betterRate, tenure, loan.FeeTypeStandard)
		if err != nil {
			return objectionResponse{response: "I understand your concern. Let me see what other options I can offer you.", nextAction: "continue_negotiation"}
		}
		alternative := cloneTerms(currentTerms)
		alternative["interest_rate"] = betterRate
		alternative["emi"] = terms.EMI
		alternative["total_payable"] = terms.EMI * float64(tenure)
		return objectionResponse{
			response:     fmt.Sprintf("I understand your concern about the interest rate. Let me see if I can offer you a better rate of %.1f%% which would bring your EMI down to %s. This is a competitive rate given your profile.", betterRate, formatINR(terms.EMI)),
			alternatives: []map[string]any{alternative},
			nextAction:   "present_alternatives",
		}
	}

	longerTenure := tenure + 24
	if longerTenure > 120 {
		longerTenure = 120
	}
	terms, err := s.calc.CalculateLoanTerms(amount, currentRate, longerTenure, loan.FeeTypeStandard)
	if err != nil {
		return objectionResponse{response: "I understand your concern. Let me see what other options I can offer you.", nextAction: "continue_negotiation"}
	}
	alternative := cloneTerms(currentTerms)
	alternative["tenure"] = longerTenure
	alternative["emi"] = terms.EMI
	alternative["total_payable"] = terms.EMI * float64(longerTenure)
	return objectionResponse{
		response:     fmt.Sprintf("I understand your concern. The rate of %.1f%% is actually quite competitive in the current market. However, let me show you how choosing a longer tenure can reduce your monthly EMI.", currentRate),
		alternatives: []map[string]any{alternative},
		nextAction:   "present_alternatives",
	}
}

func (s *SalesAgent) answerEMIObjection(currentTerms map[string]any) objectionResponse {
	currentEMI := mapFloat(currentTerms, "emi", 0)
	amount := mapFloat(currentTerms, "amount", 0)
	rate := mapFloat(currentTerms, "interest_rate", 15.0)
	tenure := mapInt(currentTerms, "tenure", 60)

	longerTenure := tenure + 24
	if longerTenure > 120 {
		longerTenure = 120
	}
	longerTerms, err := s.calc.CalculateLoanTerms(amount, rate, longerTenure, loan.FeeTypeStandard)
	if err != nil {
		return objectionResponse{response: "I understand your concern. Let me see what other options I can offer you.", nextAction: "continue_negotiation"}
	}

	reducedAmount := amount * 0.8
	reducedTerms, err := s.calc.CalculateLoanTerms(reducedAmount, rate, tenure, loan.FeeTypeStandard)
	if err != nil {
		return objectionResponse{response: "I understand your concern. Let me see what other options I can offer you.", nextAction: "continue_negotiation"}
	}

	longerOption := cloneTerms(currentTerms)
	longerOption["tenure"] = longerTenure
	longerOption["emi"] = longerTerms.EMI
	longerOption["total_payable"] = longerTerms.EMI * float64(longerTenure)

	reducedOption := cloneTerms(currentTerms)
	reducedOption["amount"] = reducedAmount
	reducedOption["emi"] = reducedTerms.EMI
	reducedOption["total_payable"] = reducedTerms.EMI * float64(tenure)

	return objectionResponse{
		response: fmt.Sprintf("I understand the EMI of %s might be a stretch. I have two solutions: Option 1 - Extend the tenure to %d months, reducing your EMI to %s. Option 2 - Reduce the loan amount to %s with an EMI of %s.",
			formatINR(currentEMI), longerTenure, formatINR(longerTerms.EMI), formatINR(reducedAmount), formatINR(reducedTerms.EMI)),
		alternatives: []map[string]any{longerOption, reducedOption},
		nextAction:   "present_alternatives",
	}
}

func (s *SalesAgent) answerTenureObjection(currentTerms map[string]any) objectionResponse {
	tenure := mapInt(currentTerms, "tenure", 60)
	amount := mapFloat(currentTerms, "amount", 0)
	rate := mapFloat(currentTerms, "interest_rate", 15.0)

	shorterTenure := tenure - 24
	if shorterTenure < 12 {
		shorterTenure = 12
	}
	terms, err := s.calc.CalculateLoanTerms(amount, rate, shorterTenure, loan.FeeTypeStandard)
	if err != nil {
		return objectionResponse{response: "I understand your concern. Let me see what other options I can offer you.", nextAction: "continue_negotiation"}
	}

	response := fmt.Sprintf("I understand you'd prefer a shorter repayment period. With a %d-month tenure, your EMI would be %s, but you'll save significantly on total interest.", shorterTenure, formatINR(terms.EMI))
	savings := mapFloat(currentTerms, "emi", 0)*float64(tenure) - terms.EMI*float64(shorterTenure)
	if savings > 0 {
		response += fmt.Sprintf(" You'll save %s in total interest payments.", formatINR(savings))
	}

	alternative := cloneTerms(currentTerms)
	alternative["tenure"] = shorterTenure
	alternative["emi"] = terms.EMI
	alternative["total_payable"] = terms.EMI * float64(shorterTenure)

	return objectionResponse{
		response:     response,
		alternatives: []map[string]any{alternative},
		nextAction:   "present_alternatives",
	}
}

func (s *SalesAgent) answerFeeObjection(currentTerms map[string]any) objectionResponse {
	currentFee := mapFloat(currentTerms, "processing_fee", 0)
	reducedFee := currentFee * 0.5

	alternative := cloneTerms(currentTerms)
	alternative["processing_fee"] = reducedFee

	return objectionResponse{
		response: fmt.Sprintf("I understand your concern about the processing fee. As a special offer, I can reduce it from %s to %s. This covers our administrative costs while giving you a better deal.",
			formatINR(currentFee), formatINR(reducedFee)),
		alternatives: []map[string]any{alternative},
		nextAction:   "present_alternatives",
	}
}

// loanPresentation renders the customer-facing summary of the options.
func (s *SalesAgent) loanPresentation(options []map[string]any, profile *loan.CustomerProfile, requestedAmount float64) string {
	if len(options) == 0 {
		return fmt.Sprintf("I'm working on calculating the best loan options for %s. Let me present some preliminary options.", formatINR(requestedAmount))
	}

	customerName := defaultCustomerName
	if profile != nil && profile.Name != "" {
		customerName = profile.Name
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Excellent news %s! I've calculated personalized loan options for %s based on your profile:\n\n", customerName, formatINR(requestedAmount))

	for i, option := range options {
		if i == 3 {
			break
		}
		tenure := mapInt(option, "tenure", 12)
		years := tenure / 12
		months := tenure % 12
		tenureText := fmt.Sprintf("%d years", years)
		if months > 0 {
			tenureText += fmt.Sprintf(" %d months", months)
		}

		badge := ""
		if i == 0 {
			badge = " (RECOMMENDED)"
		}
		fmt.Fprintf(&b, "Option %d%s:\n", i+1, badge)
		fmt.Fprintf(&b, "- Monthly EMI: %s\n", formatINR(mapFloat(option, "emi", 0)))
		fmt.Fprintf(&b, "- Tenure: %s (%d months)\n", tenureText, tenure)
		fmt.Fprintf(&b, "- Interest Rate: %.1f%% per annum\n", mapFloat(option, "interest_rate", 12.0))
		fmt.Fprintf(&b, "- Total Amount: %s\n", formatINR(mapFloat(option, "total_payable", 0)))
		fmt.Fprintf(&b, "- Processing Fee: %s\n", formatINR(mapFloat(option, "processing_fee", 0)))

		score := mapFloat(option, "affordability_score", 70)
		switch {
		case score >= 80:
			b.WriteString("- Excellent fit, comfortably within your budget\n")
		case score >= 60:
			b.WriteString("- Good option, well-suited for your income\n")
		default:
			b.WriteString("- Consider carefully, higher EMI relative to income\n")
		}
		b.WriteString("\n")
	}

	b.WriteString("Which option interests you most, or would you like me to adjust any terms? I can modify the loan amount, tenure, or show you more options!")
	return b.String()
}

func classifyObjection(objection string) string {
	lower := strings.ToLower(objection)
	switch {
	case containsAny(lower, "interest", "rate", "expensive", "high rate"):
		return objectionHighInterest
	case containsAny(lower, "emi", "monthly", "payment", "installment"):
		return objectionHighEMI
	case containsAny(lower, "tenure", "duration", "long", "years"):
		return objectionLongTenure
	case containsAny(lower, "fee", "charges", "processing"):
		return objectionProcessingFee
	default:
		return objectionGeneralConcern
	}
}

func capacityRecommendation(assessment map[string]any) string {
	requested := mapFloat(assessment, "requested_amount", 0)
	switch assessment["capacity_level"] {
	case "excellent":
		return fmt.Sprintf("Excellent! You're well within your financial capacity. The requested amount of %s is easily manageable.", formatINR(requested))
	case "good":
		return fmt.Sprintf("Good news! While %s is above your pre-approved limit, it's still within a manageable range. We can proceed with additional verification.", formatINR(requested))
	default:
		recommended := mapFloat(assessment, "recommended_amount", 0)
		return fmt.Sprintf("The requested amount of %s exceeds your current capacity. I'd recommend considering an amount around %s instead.", formatINR(requested), formatINR(recommended))
	}
}

func affordabilityScore(a loan.Affordability) float64 {
	switch a.RiskLevel {
	case "low":
		return 100.0
	case "medium":
		return 70.0
	default:
		return 40.0
	}
}

func termsToOption(terms loan.Terms, score float64) map[string]any {
	return map[string]any{
		"amount":              terms.Amount,
		"tenure":              terms.Tenure,
		"interest_rate":       terms.InterestRate,
		"emi":                 terms.EMI,
		"total_payable":       terms.TotalPayable,
		"processing_fee":      terms.ProcessingFee,
		"affordability_score": score,
	}
}

func cloneTerms(terms map[string]any) map[string]any {
	clone := make(map[string]any, len(terms))
	for k, v := range terms {
		clone[k] = v
	}
	return clone
}

func roundRate(rate float64) float64 {
	v, _ := strconv.ParseFloat(fmt.Sprintf("%.2f", rate), 64)
	return v
}

// formatINR renders an amount as Rs. with thousands separators.
func formatINR(amount float64) string {
	whole := strconv.FormatFloat(amount, 'f', 0, 64)
	negative := strings.HasPrefix(whole, "-")
	if negative {
		whole = whole[1:]
	}
	var b strings.Builder
	for i, digit := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(digit)
	}
	out := "Rs." + b.String()
	if negative {
		out = "Rs.-" + b.String()
	}
	return out
}

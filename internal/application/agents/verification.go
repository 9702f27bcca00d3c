package agents

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"loanflow-server/internal/application/errorhandler"
	"loanflow-server/internal/domain/conversation"
	"loanflow-server/internal/domain/verification"
	"loanflow-server/internal/infrastructure/apiclients"
	"loanflow-server/internal/infrastructure/verificationstore"
)

// Verification outcome states reported to the conversation flow.
const (
	verificationVerified          = "verified"
	verificationFailed            = "failed"
	verificationRequiresDocuments = "requires_documents"
)

// Similarity thresholds for matching customer input against CRM records.
const (
	addressSimilarityThreshold = 0.8
	nameSimilarityThreshold    = 0.7
	maxAgeDifference           = 2
	documentScoreThreshold     = 80
	minDocumentScore           = 15
)

// documentScores is the base verification weight per document type.
var documentScores = map[string]int{
	"aadhaar":         40,
	"pan":             35,
	"passport":        45,
	"driving_license": 30,
	"voter_id":        25,
	"utility_bill":    20,
	"bank_statement":  25,
}

// VerificationAgent performs KYC checks against the CRM record: phone,
// address and personal-detail matching, with a document-based path when
// the automatic checks fail.
type VerificationAgent struct {
	Base
	crm     *apiclients.Clients
	tracker *verificationstore.Store

	// scoreVariation simulates OCR confidence jitter on document checks.
	scoreVariation func() int
}

func NewVerificationAgent(errs *errorhandler.Handler, crm *apiclients.Clients, tracker *verificationstore.Store) *VerificationAgent {
	return &VerificationAgent{
		Base:           NewBase(conversation.AgentVerification, errs),
		crm:            crm,
		tracker:        tracker,
		scoreVariation: func() int { return rand.Intn(16) - 5 },
	}
}

func (v *VerificationAgent) CanExecute(task *conversation.AgentTask) bool {
	return task.Type == conversation.TaskVerification
}

func (v *VerificationAgent) Execute(ctx context.Context, task *conversation.AgentTask, conv *conversation.Context) (map[string]any, error) {
	return v.ExecuteTask(ctx, task, conv, v.runTask)
}

func (v *VerificationAgent) runTask(ctx context.Context, task *conversation.AgentTask, conv *conversation.Context) (map[string]any, error) {
	verificationType := "full_kyc"
	if t, ok := task.Input["verification_type"].(string); ok && t != "" {
		verificationType = t
	}

	v.log.Info().Str("verification_type", verificationType).Msg("executing verification task")

	switch verificationType {
	case "full_kyc":
		return v.fullKYC(ctx, task.Input, conv)
	case "phone_verification":
		return v.phoneOnly(ctx, task.Input)
	case "address_verification":
		return v.addressOnly(ctx, task.Input)
	case "document_verification":
		return v.documentVerification(task.Input, conv), nil
	default:
		return nil, fmt.Errorf("unknown verification type: %s", verificationType)
	}
}

// checkResult is the outcome of one verification check.
type checkResult struct {
	Status  string         `json:"status"`
	Details map[string]any `json:"details"`
	Issues  []string       `json:"issues,omitempty"`
}

func (r checkResult) toMap() map[string]any {
	return map[string]any{
		"status":    r.Status,
		"details":   r.Details,
		"issues":    r.Issues,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
}

// fullKYC verifies phone, address and personal details against the CRM
// record and tracks the outcome in the verification store.
func (v *VerificationAgent) fullKYC(ctx context.Context, input map[string]any, conv *conversation.Context) (map[string]any, error) {
	customerID := mapString(input, "customer_id", defaultCustomerID)
	sessionID := mapString(input, "session_id", "default_session")
	provided, _ := input["provided_details"].(map[string]any)
	if provided == nil {
		provided = map[string]any{}
	}

	v.log.Info().Str("customer_id", customerID).Msg("starting full KYC verification")

	if _, err := v.tracker.StartVerification(customerID, sessionID, verification.MethodAutomaticCRM); err != nil {
		return nil, fmt.Errorf("start verification tracking: %w", err)
	}

	crmResult := v.crm.CustomerProfile(ctx, customerID)
	if crmResult.Source == apiclients.SourceFallback {
		issues := []string{"CRM data unavailable"}
		v.tracker.Update(customerID, sessionID, func(r *verification.Record) {
			r.UpdateStatus(verification.StatusFailed)
			r.Issues = issues
		})
		return map[string]any{
			"verification_result": checkResult{
				Status:  verificationFailed,
				Details: map[string]any{"error": "unable to fetch customer data from CRM"},
				Issues:  issues,
			}.toMap(),
			"next_action": "request_manual_verification",
			"message":     "We're unable to verify your details automatically. Please provide additional documentation.",
		}, nil
	}

	crmData := crmResult.Customer
	phoneResult := v.verifyPhone(mapString(provided, "phone", ""), crmData.Phone)
	addressResult := v.verifyAddress(mapString(provided, "address", ""), crmData.Address)
	personalResult := v.verifyPersonalDetails(provided, crmData)

	results := []checkResult{phoneResult, addressResult, personalResult}
	score := verificationScore(results)

	var issues []string
	for _, r := range results {
		if r.Status == verificationFailed {
			issues = append(issues, r.Issues...)
		}
	}

	if len(issues) > 0 {
		requiredDocs := requiredDocuments(issues)
		v.tracker.Update(customerID, sessionID, func(r *verification.Record) {
			r.UpdateStatus(verification.StatusRequiresDocuments)
			r.Issues = issues
			r.RequiredDocuments = requiredDocs
			r.Score = score
		})
		if conv != nil {
			conv.ShareData(conversation.AgentVerification, conversation.AgentMaster, "required_documents", requiredDocs)
		}
		return map[string]any{
			"verification_result": checkResult{
				Status: verificationRequiresDocuments,
				Details: map[string]any{
					"phone_verification":    phoneResult.toMap(),
					"address_verification":  addressResult.toMap(),
					"personal_verification": personalResult.toMap(),
				},
				Issues: issues,
			}.toMap(),
			"next_action":        "request_additional_documents",
			"message":            verificationFailureMessage(issues),
			"required_documents": requiredDocs,
		}, nil
	}

	v.tracker.Update(customerID, sessionID, func(r *verification.Record) {
		r.UpdateStatus(verification.StatusVerified)
		r.Score = score
		r.VerifiedFields = []string{"phone", "address", "personal_details"}
	})

	if conv != nil {
		conv.ShareData(conversation.AgentVerification, conversation.AgentMaster, "kyc_verified", true)
		conv.ShareData(conversation.AgentVerification, conversation.AgentMaster, "verification_score", score)
	}

	return map[string]any{
		"verification_result": checkResult{
			Status: verificationVerified,
			Details: map[string]any{
				"phone_verification":    phoneResult.toMap(),
				"address_verification":  addressResult.toMap(),
				"personal_verification": personalResult.toMap(),
				"verification_score":    score,
			},
		}.toMap(),
		"verification_score": score,
		"next_action":        "proceed_to_underwriting",
		"message":            "Great! Your identity has been successfully verified. We can now proceed with your loan application.",
	}, nil
}

func (v *VerificationAgent) phoneOnly(ctx context.Context, input map[string]any) (map[string]any, error) {
	customerID := mapString(input, "customer_id", defaultCustomerID)
	crmResult := v.crm.CustomerProfile(ctx, customerID)
	if crmResult.Source == apiclients.SourceFallback {
		return map[string]any{
			"verification_result": checkResult{
				Status:  verificationFailed,
				Details: map[string]any{"error": "CRM data unavailable"},
				Issues:  []string{"Unable to fetch customer data"},
			}.toMap(),
		}, nil
	}
	result := v.verifyPhone(mapString(input, "phone", ""), crmResult.Customer.Phone)
	return map[string]any{"verification_result": result.toMap()}, nil
}

func (v *VerificationAgent) addressOnly(ctx context.Context, input map[string]any) (map[string]any, error) {
	customerID := mapString(input, "customer_id", defaultCustomerID)
	crmResult := v.crm.CustomerProfile(ctx, customerID)
	if crmResult.Source == apiclients.SourceFallback {
		return map[string]any{
			"verification_result": checkResult{
				Status:  verificationFailed,
				Details: map[string]any{"error": "CRM data unavailable"},
				Issues:  []string{"Unable to fetch customer data"},
			}.toMap(),
		}, nil
	}
	result := v.verifyAddress(mapString(input, "address", ""), crmResult.Customer.Address)
	return map[string]any{"verification_result": result.toMap()}, nil
}

// documentVerification scores uploaded documents when automatic checks
// could not verify the customer.
func (v *VerificationAgent) documentVerification(input map[string]any, conv *conversation.Context) map[string]any {
	documents, _ := input["documents"].([]any)
	if len(documents) == 0 {
		return map[string]any{
			"verification_result": checkResult{
				Status:  verificationFailed,
				Details: map[string]any{"error": "no documents provided"},
				Issues:  []string{"Documents required for verification"},
			}.toMap(),
			"message": "Please upload the required documents to complete verification.",
		}
	}

	totalScore := 0
	var verifiedDocs []string
	for _, entry := range documents {
		doc, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		docType := strings.ToLower(mapString(doc, "type", ""))
		score := v.scoreDocument(docType)
		if score > minDocumentScore {
			totalScore += score
			verifiedDocs = append(verifiedDocs, docType)
		}
	}

	if totalScore >= documentScoreThreshold {
		if conv != nil {
			conv.ShareData(conversation.AgentVerification, conversation.AgentMaster, "kyc_verified", true)
			conv.ShareData(conversation.AgentVerification, conversation.AgentMaster, "verification_method", string(verification.MethodDocumentBased))
		}
		return map[string]any{
			"verification_result": checkResult{
				Status: verificationVerified,
				Details: map[string]any{
					"verification_score": totalScore,
					"verified_documents": verifiedDocs,
					"document_count":     len(documents),
				},
			}.toMap(),
			"next_action": "proceed_to_underwriting",
			"message":     "Thank you! Your documents have been verified successfully.",
		}
	}

	return map[string]any{
		"verification_result": checkResult{
			Status: verificationFailed,
			Details: map[string]any{
				"verification_score": totalScore,
				"verified_documents": verifiedDocs,
				"required_score":     documentScoreThreshold,
			},
			Issues: []string{"Insufficient document verification score"},
		}.toMap(),
		"next_action": "request_additional_documents",
		"message":     "We need additional documents to complete your verification. Please upload clear copies of the required documents.",
	}
}

func (v *VerificationAgent) scoreDocument(docType string) int {
	base, ok := documentScores[docType]
	if !ok {
		base = 10
	}
	score := base + v.scoreVariation()
	if score < 0 {
		score = 0
	}
	if score > 50 {
		score = 50
	}
	return score
}

func (v *VerificationAgent) verifyPhone(provided, crmPhone string) checkResult {
	if provided == "" || crmPhone == "" {
		return checkResult{
			Status:  verificationFailed,
			Details: map[string]any{"provided": provided, "crm": crmPhone},
			Issues:  []string{"Missing phone number data"},
		}
	}

	normalizedProvided := normalizePhone(provided)
	normalizedCRM := normalizePhone(crmPhone)

	if normalizedProvided == normalizedCRM {
		return checkResult{
			Status:  verificationVerified,
			Details: map[string]any{"provided": provided, "crm": crmPhone, "normalized_match": true},
		}
	}
	return checkResult{
		Status: verificationFailed,
		Details: map[string]any{
			"provided":            provided,
			"crm":                 crmPhone,
			"normalized_provided": normalizedProvided,
			"normalized_crm":      normalizedCRM,
		},
		Issues: []string{"Phone number mismatch"},
	}
}

func (v *VerificationAgent) verifyAddress(provided, crmAddress string) checkResult {
	if provided == "" || crmAddress == "" {
		return checkResult{
			Status:  verificationFailed,
			Details: map[string]any{"provided": provided, "crm": crmAddress},
			Issues:  []string{"Missing address data"},
		}
	}

	similarity := tokenSimilarity(provided, crmAddress)
	if similarity >= addressSimilarityThreshold {
		return checkResult{
			Status:  verificationVerified,
			Details: map[string]any{"provided": provided, "crm": crmAddress, "similarity_score": similarity},
		}
	}
	return checkResult{
		Status: verificationFailed,
		Details: map[string]any{
			"provided":         provided,
			"crm":              crmAddress,
			"similarity_score": similarity,
			"threshold":        addressSimilarityThreshold,
		},
		Issues: []string{"Address mismatch"},
	}
}

func (v *VerificationAgent) verifyPersonalDetails(provided map[string]any, crmData *apiclients.CRMCustomer) checkResult {
	var issues []string
	details := map[string]any{}

	providedName := strings.TrimSpace(mapString(provided, "name", ""))
	if providedName != "" && crmData.Name != "" {
		similarity := tokenSimilarity(providedName, crmData.Name)
		details["name_verification"] = map[string]any{
			"provided":   providedName,
			"crm":        crmData.Name,
			"similarity": similarity,
		}
		if similarity < nameSimilarityThreshold {
			issues = append(issues, "Name mismatch")
		}
	}

	if providedAge := mapInt(provided, "age", 0); providedAge > 0 && crmData.Age > 0 {
		diff := providedAge - crmData.Age
		if diff < 0 {
			diff = -diff
		}
		details["age_verification"] = map[string]any{
			"provided":   providedAge,
			"crm":        crmData.Age,
			"difference": diff,
		}
		if diff > maxAgeDifference {
			issues = append(issues, "Age mismatch")
		}
	}

	if len(issues) > 0 {
		return checkResult{Status: verificationFailed, Details: details, Issues: issues}
	}
	return checkResult{Status: verificationVerified, Details: details}
}

// VerificationStatus reports the current verification state for a
// customer, preferring the session-scoped record.
func (v *VerificationAgent) VerificationStatus(customerID, sessionID string) map[string]any {
	if sessionID != "" {
		if record, ok := v.tracker.Get(customerID, sessionID); ok {
			status := map[string]any{
				"customer_id":        customerID,
				"session_id":         sessionID,
				"verified":           record.Status == verification.StatusVerified,
				"status":             string(record.Status),
				"verification_score": record.Score,
				"verified_fields":    record.VerifiedFields,
				"issues":             record.Issues,
			}
			if record.ExpiresAt != nil {
				status["expires_at"] = record.ExpiresAt.Format(time.RFC3339)
			}
			return status
		}
	}

	status := map[string]any{
		"customer_id": customerID,
		"verified":    v.tracker.IsCustomerVerified(customerID),
	}
	if latest, ok := v.tracker.LatestForCustomer(customerID); ok {
		status["latest_verification"] = map[string]any{
			"status":             string(latest.Status),
			"method":             string(latest.Method),
			"verification_score": latest.Score,
			"started_at":         latest.StartedAt.Format(time.RFC3339),
		}
	}
	return status
}

// normalizePhone strips formatting and the Indian country code so two
// renderings of the same number compare equal.
func normalizePhone(phone string) string {
	var digits strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	switch {
	case strings.HasPrefix(d, "91") && len(d) == 12:
		return d[2:]
	case strings.HasPrefix(d, "0") && len(d) == 11:
		return d[1:]
	default:
		return d
	}
}

// tokenSimilarity is the Jaccard similarity of the lowercased word sets.
func tokenSimilarity(a, b string) float64 {
	tokensA := tokenSet(a)
	tokensB := tokenSet(b)
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0
	}
	intersection := 0
	union := len(tokensB)
	for token := range tokensA {
		if _, ok := tokensB[token]; ok {
			intersection++
		} else {
			union++
		}
	}
	return float64(intersection) / float64(union)
}

func tokenSet(s string) map[string]struct{} {
	set := map[string]struct{}{}
	for _, token := range strings.Fields(strings.ToLower(s)) {
		set[token] = struct{}{}
	}
	return set
}

func verificationScore(results []checkResult) int {
	if len(results) == 0 {
		return 0
	}
	verified := 0
	for _, r := range results {
		if r.Status == verificationVerified {
			verified++
		}
	}
	return verified * 100 / len(results)
}

func verificationFailureMessage(issues []string) string {
	if len(issues) == 0 {
		return "We encountered some issues during verification. Please provide additional documentation."
	}
	if len(issues) == 1 {
		issue := strings.ToLower(issues[0])
		switch {
		case strings.Contains(issue, "phone"):
			return "We couldn't verify your phone number. Please ensure you've provided the correct number registered with us."
		case strings.Contains(issue, "address"):
			return "We couldn't verify your address. Please confirm your current address matches our records."
		case strings.Contains(issue, "name"):
			return "We couldn't verify your name. Please ensure it matches exactly with your official documents."
		default:
			return fmt.Sprintf("We encountered an issue with your %s. Please provide additional documentation.", issue)
		}
	}
	return "We couldn't verify some of your details automatically. Please provide additional documentation to complete the verification process."
}

// requiredDocuments maps verification issues to the documents that can
// resolve them.
func requiredDocuments(issues []string) []string {
	seen := map[string]struct{}{}
	var docs []string
	add := func(names ...string) {
		for _, name := range names {
			if _, ok := seen[name]; !ok {
				seen[name] = struct{}{}
				docs = append(docs, name)
			}
		}
	}
	for _, issue := range issues {
		lower := strings.ToLower(issue)
		switch {
		case strings.Contains(lower, "phone"):
			add("utility_bill", "bank_statement")
		case strings.Contains(lower, "address"):
			add("utility_bill", "aadhaar", "passport")
		case strings.Contains(lower, "name"):
			add("aadhaar", "pan", "passport")
		}
	}
	if len(docs) == 0 {
		docs = []string{"aadhaar", "pan"}
	}
	return docs
}

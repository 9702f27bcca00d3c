package agents

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"loanflow-server/internal/application/errorhandler"
	"loanflow-server/internal/application/sanction"
	"loanflow-server/internal/domain/conversation"
	"loanflow-server/internal/domain/document"
	"loanflow-server/internal/infrastructure/apiclients"
	"loanflow-server/internal/infrastructure/metrics"
	"loanflow-server/internal/infrastructure/verificationstore"
)

// Worker failure thresholds for the master's supervision loop.
const (
	escalationFailureCount = 3
	healthFailurePenalty   = 20
	degradedFailureCount   = 3
	criticalFailureCount   = 5
)

// Recovery actions the master takes when a worker keeps failing.
const (
	recoveryRetryTask         = "retry_task"
	recoveryRestartAgent      = "restart_agent"
	recoveryUseAlternative    = "use_alternative_agent"
	recoveryFallbackToManual  = "fallback_to_manual"
	recoveryNotifyCustomer    = "notify_customer"
	recoveryPrepareEscalation = "prepare_escalation"
)

const escalationMessage = "I apologize, but I'm experiencing some technical difficulties processing your request. " +
	"A member of our team will reach out to you shortly to continue your application. " +
	"You can also call us at 1800-209-8800 for immediate assistance."

// Response is the master agent's reply to one customer message.
type Response struct {
	SessionID   string                   `json:"session_id"`
	Message     string                   `json:"message"`
	MessageType conversation.MessageType `json:"message_type"`
	AgentType   conversation.AgentType   `json:"agent_type"`
	Stage       conversation.Stage       `json:"conversation_stage"`
	Metadata    map[string]any           `json:"metadata,omitempty"`
}

// MasterAgent orchestrates the loan conversation: it classifies each
// message, drives stage transitions and delegates work to the session's
// worker agents, supervising their health as it goes.
type MasterAgent struct {
	Base
	sessions *SessionManager
	manager  *ConversationManager
	apis     *apiclients.Clients
	approval *sanction.Workflow

	mu       sync.Mutex
	failures map[conversation.AgentType]int
}

func NewMasterAgent(errs *errorhandler.Handler, sessions *SessionManager, manager *ConversationManager, apis *apiclients.Clients, approval *sanction.Workflow) *MasterAgent {
	return &MasterAgent{
		Base:     NewBase(conversation.AgentMaster, errs),
		sessions: sessions,
		manager:  manager,
		apis:     apis,
		approval: approval,
		failures: make(map[conversation.AgentType]int),
	}
}

// NewWorkerFactory builds the per-session worker agents the session
// manager hands out on demand.
func NewWorkerFactory(errs *errorhandler.Handler, apis *apiclients.Clients, tracker *verificationstore.Store, recorder HistoryRecorder, gen *sanction.Generator) WorkerFactory {
	return func(agentType conversation.AgentType) (Agent, error) {
		switch agentType {
		case conversation.AgentSales:
			return NewSalesAgent(errs), nil
		case conversation.AgentVerification:
			return NewVerificationAgent(errs, apis, tracker), nil
		case conversation.AgentUnderwriting:
			return NewUnderwritingAgent(errs, apis, recorder), nil
		case conversation.AgentSanction, conversation.AgentSanctionLetter:
			return NewSanctionLetterAgent(errs, gen), nil
		default:
			return nil, fmt.Errorf("unknown agent type: %s", agentType)
		}
	}
}

// InitiateConversation starts a session and greets the customer.
func (m *MasterAgent) InitiateConversation(customerID, customerName, referralSource, initialMessage string) (*Response, error) {
	conv, err := m.sessions.StartSession(customerID)
	if err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}

	greeting := m.manager.GenerateGreeting(customerName, referralSource, initialMessage)
	message := greeting.Message + "\n\n" + greeting.FollowUp

	if customerName != "" {
		conv.AddCollectedData("name", customerName)
	}
	conv.AddMessage(conversation.SenderAgent, conversation.MessageText, message, conversation.AgentMaster)
	if err := m.sessions.Save(conv); err != nil {
		return nil, err
	}

	return &Response{
		SessionID:   conv.SessionID,
		Message:     message,
		MessageType: conversation.MessageText,
		AgentType:   conversation.AgentMaster,
		Stage:       conv.Stage,
		Metadata: map[string]any{
			"customer_type":        greeting.CustomerType,
			"conversation_starter": greeting.Starter,
		},
	}, nil
}

// ProcessMessage runs one customer message through the pipeline:
// intent analysis, stage transition and the action that follows.
func (m *MasterAgent) ProcessMessage(ctx context.Context, sessionID, message string) (*Response, error) {
	conv, ok := m.sessions.Context(sessionID)
	if !ok {
		return nil, fmt.Errorf("session %s not found", sessionID)
	}

	start := time.Now()
	conv.AddMessage(conversation.SenderUser, conversation.MessageText, message, conv.CurrentAgent)

	if isBareGreeting(message) {
		return m.finishResponse(conv, m.greetingReply(conv), nil)
	}

	details := ExtractDetails(message)
	m.rememberDetails(conv, details)

	analysis := AnalyzeIntent(message, conv.Stage)
	action := DetermineNextAction(analysis, conv.Stage)

	m.log.Info().
		Str("session_id", sessionID).
		Str("intent", string(analysis.Intent)).
		Str("action", action.Action).
		Str("stage", string(conv.Stage)).
		Msg("processing message")

	transitionMsg := ""
	if action.NextStage != conv.Stage {
		if msg, err := m.manager.Transition(conv, action.NextStage, map[string]any{
			"intent": string(analysis.Intent),
			"action": action.Action,
		}); err == nil {
			transitionMsg = msg
		} else {
			m.log.Warn().Err(err).Str("session_id", sessionID).Msg("stage transition rejected")
		}
	}

	var resp *Response
	switch action.Action {
	case "collect_information":
		resp = m.collectInformation(conv, details)
	case "provide_information":
		resp = m.provideInformation(conv)
	case "start_sales":
		resp = m.startSales(ctx, conv)
	case "handle_objection":
		resp = m.handleObjection(ctx, conv, message)
	case "start_verification":
		resp = m.startVerification(ctx, conv)
	case "start_underwriting":
		resp = m.startUnderwriting(ctx, conv)
	case "request_documents":
		resp = m.requestDocuments(conv)
	case "generate_sanction_letter":
		resp = m.generateSanctionLetter(ctx, conv)
	case "process_complete_application":
		resp = m.processCompleteApplication(ctx, conv, details)
	default:
		resp = m.continueConversation(conv, analysis)
	}

	if transitionMsg != "" && resp.MessageType == conversation.MessageText {
		resp.Message = transitionMsg + "\n\n" + resp.Message
	}
	if resp.Metadata == nil {
		resp.Metadata = map[string]any{}
	}
	resp.Metadata["intent"] = string(analysis.Intent)
	resp.Metadata["confidence"] = analysis.Confidence
	resp.Metadata["action"] = action.Action

	metrics.MessagesProcessedTotal.WithLabelValues(string(conv.Stage), string(analysis.Intent)).Inc()
	m.log.Debug().Dur("elapsed", time.Since(start)).Str("session_id", sessionID).Msg("message processed")
	return m.finishResponse(conv, resp, nil)
}

// finishResponse records the agent turn on the transcript and persists
// the context.
func (m *MasterAgent) finishResponse(conv *conversation.Context, resp *Response, err error) (*Response, error) {
	if err != nil {
		return nil, err
	}
	resp.SessionID = conv.SessionID
	resp.Stage = conv.Stage
	conv.AddMessage(conversation.SenderAgent, resp.MessageType, resp.Message, resp.AgentType)
	if saveErr := m.sessions.Save(conv); saveErr != nil {
		m.log.Error().Err(saveErr).Str("session_id", conv.SessionID).Msg("failed to persist context")
	}
	return resp, nil
}

func isBareGreeting(message string) bool {
	switch strings.ToLower(strings.TrimRight(strings.TrimSpace(message), "!. ")) {
	case "hello", "hi", "hey", "good morning", "good afternoon", "good evening":
		return true
	}
	return false
}

func (m *MasterAgent) greetingReply(conv *conversation.Context) *Response {
	greeting := m.manager.GenerateGreeting(collectedString(conv, "name"), "", "")
	return &Response{
		Message:     greeting.Message + "\n\n" + greeting.FollowUp,
		MessageType: conversation.MessageText,
		AgentType:   conversation.AgentMaster,
	}
}

// rememberDetails stores extracted customer facts on the context.
func (m *MasterAgent) rememberDetails(conv *conversation.Context, details ExtractedDetails) {
	if details.Name != "" {
		conv.AddCollectedData("name", details.Name)
	}
	if details.Age > 0 {
		conv.AddCollectedData("age", details.Age)
	}
	if details.City != "" {
		conv.AddCollectedData("city", details.City)
	}
	if details.Salary > 0 {
		conv.AddCollectedData("salary", details.Salary)
	}
	if details.CreditScore > 0 {
		conv.AddCollectedData("credit_score_claimed", details.CreditScore)
	}
	if details.Amount > 0 {
		conv.AddCollectedData("loan_amount", details.Amount)
	}
	if details.Employment != "" {
		conv.AddCollectedData("employment_type", details.Employment)
	}
}

func (m *MasterAgent) collectInformation(conv *conversation.Context, details ExtractedDetails) *Response {
	completion := m.manager.CheckStageCompletion(conv)
	if completion.Completed {
		return &Response{
			Message:     "Thank you! I have all the information I need. Let me prepare some loan options for you.",
			MessageType: conversation.MessageText,
			AgentType:   conversation.AgentMaster,
		}
	}

	prompts := map[string]string{
		"name":        "your full name",
		"age":         "your age",
		"city":        "the city you live in",
		"loan_amount": "the loan amount you're looking for",
	}
	var asks []string
	for _, key := range completion.MissingData {
		if prompt, ok := prompts[key]; ok {
			asks = append(asks, prompt)
		}
	}

	message := "I'd be happy to help you with a personal loan! To find the best options for you, could you please share " +
		strings.Join(asks, ", ") + "?"
	if details.Name != "" {
		message = fmt.Sprintf("Nice to meet you, %s! ", details.Name) + message
	}

	return &Response{
		Message:     message,
		MessageType: conversation.MessageText,
		AgentType:   conversation.AgentMaster,
		Metadata:    map[string]any{"missing_data": completion.MissingData},
	}
}

func (m *MasterAgent) provideInformation(conv *conversation.Context) *Response {
	return &Response{
		Message: "We offer personal loans from Rs. 50,000 to Rs. 40,00,000 with competitive interest rates starting at 10.5% per annum " +
			"and flexible tenures from 6 months to 10 years. The entire process is digital and approval can be instant for eligible customers. " +
			"Would you like to check your eligibility?",
		MessageType: conversation.MessageText,
		AgentType:   conversation.AgentMaster,
	}
}

func (m *MasterAgent) startSales(ctx context.Context, conv *conversation.Context) *Response {
	payload := m.customerPayload(ctx, conv)
	if err := m.sessions.ShareData(conv.SessionID, conversation.AgentMaster, conversation.AgentSales, map[string]any{"customer_profile": payload}); err != nil {
		return m.workerFallback(conversation.AgentSales, err)
	}

	result, err := m.runWorkerTask(ctx, conv, conversation.AgentSales, conversation.TaskSales, map[string]any{
		"action":           salesActionStartNegotiation,
		"requested_amount": payload["requested_amount"],
	})
	if err != nil {
		return m.workerFallback(conversation.AgentSales, err)
	}

	message := mapString(result, "presentation_message", mapString(result, "fallback_message",
		"Let me prepare some loan options for you."))
	return &Response{
		Message:     message,
		MessageType: conversation.MessageText,
		AgentType:   conversation.AgentSales,
		Metadata: map[string]any{
			"loan_options":        result["loan_options"],
			"capacity_assessment": result["capacity_assessment"],
		},
	}
}

func (m *MasterAgent) handleObjection(ctx context.Context, conv *conversation.Context, message string) *Response {
	result, err := m.runWorkerTask(ctx, conv, conversation.AgentSales, conversation.TaskSales, map[string]any{
		"action":    salesActionHandleObjection,
		"objection": message,
	})
	if err != nil {
		return m.workerFallback(conversation.AgentSales, err)
	}

	return &Response{
		Message:     mapString(result, "response_message", "Let me see what I can adjust for you."),
		MessageType: conversation.MessageText,
		AgentType:   conversation.AgentSales,
		Metadata: map[string]any{
			"objection_type":      result["objection_type"],
			"alternative_options": result["alternative_options"],
		},
	}
}

func (m *MasterAgent) startVerification(ctx context.Context, conv *conversation.Context) *Response {
	payload := m.customerPayload(ctx, conv)
	if err := m.sessions.ShareData(conv.SessionID, conversation.AgentMaster, conversation.AgentVerification, map[string]any{"customer_profile": payload}); err != nil {
		return m.workerFallback(conversation.AgentVerification, err)
	}

	input := map[string]any{
		"verification_type": "full_kyc",
		"customer_id":       conv.CustomerID,
		"session_id":        conv.SessionID,
		"provided_details": map[string]any{
			"name":    payload["name"],
			"age":     payload["age"],
			"phone":   payload["phone"],
			"address": payload["address"],
		},
	}
	result, err := m.runWorkerTask(ctx, conv, conversation.AgentVerification, conversation.TaskVerification, input)
	if err != nil {
		return m.workerFallback(conversation.AgentVerification, err)
	}

	var status any
	if vr, ok := result["verification_result"].(map[string]any); ok {
		status = vr["status"]
	}
	return &Response{
		Message:     mapString(result, "message", "Your verification is in progress."),
		MessageType: conversation.MessageText,
		AgentType:   conversation.AgentVerification,
		Metadata: map[string]any{
			"verification_status": status,
			"required_documents":  result["required_documents"],
		},
	}
}

func (m *MasterAgent) startUnderwriting(ctx context.Context, conv *conversation.Context) *Response {
	payload := m.customerPayload(ctx, conv)
	if err := m.sessions.ShareData(conv.SessionID, conversation.AgentMaster, conversation.AgentUnderwriting, map[string]any{"customer_profile": payload}); err != nil {
		return m.workerFallback(conversation.AgentUnderwriting, err)
	}

	result, err := m.runWorkerTask(ctx, conv, conversation.AgentUnderwriting, conversation.TaskUnderwriting, map[string]any{
		"action":           "full_underwriting",
		"customer_id":      conv.CustomerID,
		"requested_amount": payload["requested_amount"],
	})
	if err != nil {
		return m.workerFallback(conversation.AgentUnderwriting, err)
	}

	resp := &Response{
		Message:     mapString(result, "message", "Your application is being assessed."),
		MessageType: conversation.MessageText,
		AgentType:   conversation.AgentUnderwriting,
		Metadata: map[string]any{
			"decision":           result["decision"],
			"decision_type":      result["decision_type"],
			"credit_score":       result["credit_score"],
			"suggested_amount":   result["suggested_amount"],
			"required_documents": result["required_documents"],
		},
	}

	if approved, _ := result["approved"].(bool); approved && mapString(result, "next_action", "") == "generate_sanction_letter" {
		return m.completeApproval(ctx, conv, resp)
	}
	return resp
}

// completeApproval runs the sanction letter workflow right after an
// instant approval so the customer gets the letter in the same turn.
func (m *MasterAgent) completeApproval(ctx context.Context, conv *conversation.Context, approvalResp *Response) *Response {
	approved := m.approvedLoanPayload(conv)
	if approved == nil {
		return approvalResp
	}

	result, err := m.approval.ProcessLoanApproval(ctx, conv, approved)
	if err != nil {
		m.recordWorkerFailure(conversation.AgentSanctionLetter)
		approvalResp.Message += "\n\nWe are preparing your sanction letter and will email it to you within 24 hours."
		return approvalResp
	}

	return &Response{
		Message:     approvalResp.Message + "\n\n" + mapString(result, "message", ""),
		MessageType: conversation.MessageDownloadLink,
		AgentType:   conversation.AgentSanctionLetter,
		Metadata: map[string]any{
			"decision":      approvalResp.Metadata["decision"],
			"credit_score":  approvalResp.Metadata["credit_score"],
			"download_link": result["download_link"],
			"filename":      result["filename"],
		},
	}
}

func (m *MasterAgent) requestDocuments(conv *conversation.Context) *Response {
	docs := []string{"salary_slip"}
	if shared, ok := conv.GetSharedData(conversation.AgentMaster, "required_documents"); ok {
		switch list := shared.(type) {
		case []string:
			if len(list) > 0 {
				docs = list
			}
		case []any:
			// Contexts reloaded from disk decode the shared list as []any.
			var names []string
			for _, item := range list {
				if s, ok := item.(string); ok {
					names = append(names, s)
				}
			}
			if len(names) > 0 {
				docs = names
			}
		}
	}

	readable := make([]string, len(docs))
	for i, doc := range docs {
		readable[i] = strings.ReplaceAll(doc, "_", " ")
	}
	return &Response{
		Message: "To complete your application, please upload the following documents: " +
			strings.Join(readable, ", ") + ". You can upload them right here in the chat.",
		MessageType: conversation.MessageText,
		AgentType:   conversation.AgentMaster,
		Metadata:    map[string]any{"required_documents": docs},
	}
}

func (m *MasterAgent) generateSanctionLetter(ctx context.Context, conv *conversation.Context) *Response {
	approved := m.approvedLoanPayload(conv)
	if approved == nil {
		return &Response{
			Message: "I don't have an approved loan on this session yet. Let me first complete your eligibility assessment - " +
				"could you confirm you'd like to proceed with the credit check?",
			MessageType: conversation.MessageText,
			AgentType:   conversation.AgentMaster,
		}
	}

	result, err := m.approval.ProcessLoanApproval(ctx, conv, approved)
	if err != nil {
		m.recordWorkerFailure(conversation.AgentSanctionLetter)
		return m.workerFallback(conversation.AgentSanctionLetter, err)
	}

	return &Response{
		Message:     mapString(result, "message", "Your sanction letter is ready."),
		MessageType: conversation.MessageDownloadLink,
		AgentType:   conversation.AgentSanctionLetter,
		Metadata: map[string]any{
			"download_link": result["download_link"],
			"filename":      result["filename"],
		},
	}
}

// processCompleteApplication fast-tracks a message that carries the
// whole application in one go: straight to underwriting.
func (m *MasterAgent) processCompleteApplication(ctx context.Context, conv *conversation.Context, details ExtractedDetails) *Response {
	m.rememberDetails(conv, details)
	if conv.Stage != conversation.StageUnderwriting {
		conv.SwitchAgent(conversation.AgentUnderwriting, conversation.StageUnderwriting)
	}
	return m.startUnderwriting(ctx, conv)
}

func (m *MasterAgent) continueConversation(conv *conversation.Context, analysis IntentAnalysis) *Response {
	message := "I'm here to help you with your personal loan. Could you tell me a bit more about what you're looking for?"
	switch conv.Stage {
	case conversation.StageSalesNegotiation:
		message = "Would you like to proceed with one of the loan options I shared, or should I adjust the amount or tenure for you?"
	case conversation.StageVerification:
		message = "We're verifying your details. Shall I proceed with the eligibility check once that's done?"
	case conversation.StageUnderwriting:
		message = "Your application is with our credit team. Would you like me to run the eligibility check now?"
	case conversation.StageCompletion:
		message = "Your application is complete! Is there anything else I can help you with?"
	}
	return &Response{
		Message:     message,
		MessageType: conversation.MessageText,
		AgentType:   conversation.AgentMaster,
	}
}

// SessionContext exposes the conversation context for read-only use.
func (m *MasterAgent) SessionContext(sessionID string) (*conversation.Context, bool) {
	return m.sessions.Context(sessionID)
}

// ProcessDocumentUpload records an uploaded document on the session
// and, for salary slips, feeds the extracted salary back into
// underwriting so the assessment can complete.
func (m *MasterAgent) ProcessDocumentUpload(ctx context.Context, sessionID string, doc *document.Document, extraction *document.SalaryExtraction) (*Response, error) {
	conv, ok := m.sessions.Context(sessionID)
	if !ok {
		return nil, fmt.Errorf("session %s not found", sessionID)
	}

	conv.AddCollectedData("uploaded_document", map[string]any{
		"document_id":   doc.ID,
		"document_type": doc.Type,
		"filename":      doc.Filename,
	})
	conv.AddCollectedData("document_processed", true)

	if doc.Type != document.TypeSalarySlip || extraction == nil {
		resp := &Response{
			Message:     fmt.Sprintf("Thank you! I've received your %s and added it to your application.", strings.ReplaceAll(doc.Type, "_", " ")),
			MessageType: conversation.MessageText,
			AgentType:   conversation.AgentMaster,
		}
		return m.finishResponse(conv, resp, nil)
	}

	conv.AddCollectedData("salary", extraction.MonthlySalary)
	conv.AddCollectedData("salary_slip_uploaded", true)

	if conv.Stage == conversation.StageDocumentUpload {
		if _, err := m.manager.Transition(conv, conversation.StageUnderwriting, map[string]any{
			"reason": "salary slip processed",
		}); err != nil {
			conv.SwitchAgent(conversation.AgentUnderwriting, conversation.StageUnderwriting)
		}
	}

	resp := m.startUnderwriting(ctx, conv)
	resp.Message = fmt.Sprintf("Thank you! I've verified your salary slip showing a monthly income of %s.\n\n%s",
		formatINR(extraction.MonthlySalary), resp.Message)
	if resp.Metadata == nil {
		resp.Metadata = map[string]any{}
	}
	resp.Metadata["extracted_salary"] = extraction.MonthlySalary
	return m.finishResponse(conv, resp, nil)
}

// customerPayload assembles the profile shared with workers: collected
// conversation data enriched with the CRM record.
func (m *MasterAgent) customerPayload(ctx context.Context, conv *conversation.Context) map[string]any {
	payload := map[string]any{
		"customer_id": conv.CustomerID,
	}
	copyCollected := func(from, to string) {
		if v, ok := conv.GetCollectedValue(from); ok {
			payload[to] = v
		}
	}
	copyCollected("name", "name")
	copyCollected("age", "age")
	copyCollected("city", "city")
	copyCollected("salary", "salary")
	copyCollected("employment_type", "employment_type")
	copyCollected("loan_amount", "requested_amount")

	crm := m.apis.CustomerProfile(ctx, conv.CustomerID)
	if crm.Customer != nil {
		if _, ok := payload["name"]; !ok && crm.Customer.Name != "" {
			payload["name"] = crm.Customer.Name
		}
		if crm.Customer.Phone != "" {
			payload["phone"] = crm.Customer.Phone
		}
		if crm.Customer.Address != "" {
			payload["address"] = crm.Customer.Address
		}
		if _, ok := payload["city"]; !ok && crm.Customer.City != "" {
			payload["city"] = crm.Customer.City
		}
		if _, ok := payload["salary"]; !ok && crm.Customer.Salary > 0 {
			payload["salary"] = crm.Customer.Salary
		}
	}
	return payload
}

// approvedLoanPayload collects the approved loan shared by the
// underwriting agent, annotated for the sanction workflow.
func (m *MasterAgent) approvedLoanPayload(conv *conversation.Context) map[string]any {
	approved, ok := conv.GetSharedData(conversation.AgentMaster, "approved_loan")
	if !ok {
		return nil
	}
	loanData, ok := approved.(map[string]any)
	if !ok {
		return nil
	}

	payload := map[string]any{
		"approved":    true,
		"customer_id": conv.CustomerID,
	}
	for key, value := range loanData {
		payload[key] = value
	}
	if name, ok := conv.GetCollectedValue("name"); ok {
		payload["name"] = name
	}
	return payload
}

// runWorkerTask executes a worker task and supervises the outcome:
// repeated failures of one agent type trigger recovery and, past the
// threshold, escalation.
func (m *MasterAgent) runWorkerTask(ctx context.Context, conv *conversation.Context, agentType conversation.AgentType, taskType conversation.TaskType, input map[string]any) (map[string]any, error) {
	result, err := m.sessions.ExecuteAgentTask(ctx, conv.SessionID, agentType, taskType, input)
	if err == nil {
		m.clearWorkerFailures(agentType)
		return result, nil
	}

	failures := m.recordWorkerFailure(agentType)
	action := m.recoveryAction(failures)
	m.log.Warn().
		Err(err).
		Str("agent_type", string(agentType)).
		Int("failures", failures).
		Str("recovery_action", action).
		Msg("worker task failed")

	switch action {
	case recoveryRestartAgent:
		m.sessions.ReplaceAgent(conv.SessionID, agentType)
	case recoveryPrepareEscalation:
		conv.AddError(
			fmt.Sprintf("%s agent escalated after %d failures", agentType, failures),
			conversation.SeverityCritical,
			map[string]any{"agent_type": string(agentType), "recovery_action": recoveryFallbackToManual},
		)
		metrics.EscalationsTotal.WithLabelValues(string(agentType)).Inc()
	}
	return nil, err
}

func (m *MasterAgent) recoveryAction(failures int) string {
	switch {
	case failures >= escalationFailureCount:
		return recoveryPrepareEscalation
	case failures == 2:
		return recoveryRestartAgent
	default:
		return recoveryRetryTask
	}
}

func (m *MasterAgent) recordWorkerFailure(agentType conversation.AgentType) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[agentType]++
	return m.failures[agentType]
}

func (m *MasterAgent) clearWorkerFailures(agentType conversation.AgentType) {
	m.mu.Lock()
	delete(m.failures, agentType)
	m.mu.Unlock()
}

func (m *MasterAgent) workerFailures(agentType conversation.AgentType) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failures[agentType]
}

func (m *MasterAgent) workerFallback(agentType conversation.AgentType, err error) *Response {
	message := "I'm having a little trouble with that step right now. Let me try again in a moment."
	if m.workerFailures(agentType) >= escalationFailureCount {
		message = escalationMessage
	}
	return &Response{
		Message:     message,
		MessageType: conversation.MessageText,
		AgentType:   conversation.AgentMaster,
		Metadata:    map[string]any{"error": err.Error()},
	}
}

// HealthReport summarizes the master's own supervision state plus the
// per-session worker health reports.
func (m *MasterAgent) HealthReport(sessionID string) map[string]any {
	m.mu.Lock()
	totalFailures := 0
	perAgent := make(map[string]int, len(m.failures))
	for agentType, count := range m.failures {
		perAgent[string(agentType)] = count
		totalFailures += count
	}
	m.mu.Unlock()

	score := 100 - healthFailurePenalty*totalFailures
	if score < 0 {
		score = 0
	}
	status := "healthy"
	switch {
	case totalFailures >= criticalFailureCount:
		status = "critical"
	case totalFailures >= degradedFailureCount:
		status = "degraded"
	}

	report := map[string]any{
		"status":          status,
		"health_score":    score,
		"recent_failures": perAgent,
	}
	if sessionID != "" {
		report["workers"] = m.sessions.AgentHealth(sessionID)
	}
	return report
}

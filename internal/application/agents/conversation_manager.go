package agents

import (
	"fmt"
	"math/rand"
	"time"

	"loanflow-server/internal/domain/conversation"

	"github.com/rs/zerolog/log"
)

// stageConfig describes one node of the conversation stage graph.
type stageConfig struct {
	Description    string
	NextStages     []conversation.Stage
	RequiredData   []string
	TimeoutMinutes int
}

var stageGraph = map[conversation.Stage]stageConfig{
	conversation.StageInitiation: {
		Description:    "Initial greeting and conversation startup",
		NextStages:     []conversation.Stage{conversation.StageInformationCollection, conversation.StageUnderwriting, conversation.StageErrorHandling},
		TimeoutMinutes: 5,
	},
	conversation.StageInformationCollection: {
		Description:    "Collecting basic customer information",
		NextStages:     []conversation.Stage{conversation.StageSalesNegotiation, conversation.StageUnderwriting, conversation.StageErrorHandling},
		RequiredData:   []string{"name", "age", "city", "loan_amount"},
		TimeoutMinutes: 10,
	},
	conversation.StageSalesNegotiation: {
		Description:    "Negotiating loan terms and conditions",
		NextStages:     []conversation.Stage{conversation.StageVerification, conversation.StageUnderwriting, conversation.StageErrorHandling},
		RequiredData:   []string{"agreed_amount", "agreed_tenure", "agreed_rate"},
		TimeoutMinutes: 15,
	},
	conversation.StageVerification: {
		Description:    "Verifying customer identity and details",
		NextStages:     []conversation.Stage{conversation.StageUnderwriting, conversation.StageErrorHandling},
		RequiredData:   []string{"kyc_verified", "phone_verified", "address_verified"},
		TimeoutMinutes: 10,
	},
	conversation.StageUnderwriting: {
		Description:    "Credit assessment and loan approval decision",
		NextStages:     []conversation.Stage{conversation.StageSanctionGeneration, conversation.StageDocumentUpload, conversation.StageCompletion, conversation.StageErrorHandling},
		RequiredData:   []string{"credit_score", "eligibility_decision"},
		TimeoutMinutes: 5,
	},
	conversation.StageDocumentUpload: {
		Description:    "Customer document upload and processing",
		NextStages:     []conversation.Stage{conversation.StageUnderwriting, conversation.StageErrorHandling},
		RequiredData:   []string{"salary_slip_uploaded", "document_processed"},
		TimeoutMinutes: 20,
	},
	conversation.StageSanctionGeneration: {
		Description:    "Generating loan sanction letter",
		NextStages:     []conversation.Stage{conversation.StageCompletion, conversation.StageErrorHandling},
		RequiredData:   []string{"sanction_letter_generated"},
		TimeoutMinutes: 5,
	},
	conversation.StageCompletion: {
		Description:  "Conversation completion and closure",
		RequiredData: []string{"completion_summary"},
	},
	conversation.StageErrorHandling: {
		Description:    "Handling errors and recovery",
		NextStages:     []conversation.Stage{conversation.StageInitiation, conversation.StageCompletion},
		TimeoutMinutes: 10,
	},
}

// orderedStages is the happy path used for progress reporting.
var orderedStages = []conversation.Stage{
	conversation.StageInitiation,
	conversation.StageInformationCollection,
	conversation.StageSalesNegotiation,
	conversation.StageVerification,
	conversation.StageUnderwriting,
	conversation.StageSanctionGeneration,
	conversation.StageCompletion,
}

var greetingTemplates = map[string][]string{
	"new_customer": {
		"Hello! Welcome to our personal loan service. I'm your AI assistant, and I'm here to help you find the perfect loan solution tailored to your needs.",
		"Hi there! Thanks for visiting us today. I'm here to make your loan application process as smooth and quick as possible.",
		"Welcome! I'm your personal loan advisor. Let's work together to find you the best loan option that fits your requirements.",
	},
	"returning_customer": {
		"Hello %s! Welcome back. I see you're interested in our loan services again. How can I help you today?",
		"Hi %s! Great to see you again. I'm here to assist you with your loan needs.",
		"Welcome back, %s! I'm ready to help you with another loan application.",
	},
	"referred_customer": {
		"Hello! I understand you were referred to us for a personal loan. Welcome! I'm here to make this process easy for you.",
		"Hi! Thanks for choosing us based on a referral. I'm excited to help you with your loan requirements.",
	},
}

type closureTemplate struct {
	Message  string
	FollowUp string
}

var closureTemplates = map[string]closureTemplate{
	"approved": {
		Message:  "Congratulations, %s! Your loan of %s has been approved. Your sanction letter is ready for download. Thank you for choosing our services!",
		FollowUp: "You can download your sanction letter using the link provided. If you have any questions, feel free to contact our support team.",
	},
	"rejected": {
		Message:  "Thank you for your interest, %s. Unfortunately, we're unable to approve your loan application at this time based on our current lending criteria.",
		FollowUp: "We appreciate your time and encourage you to apply again in the future when your financial profile may better align with our requirements.",
	},
	"cancelled": {
		Message:  "I understand you've decided not to proceed with the loan application at this time, %s.",
		FollowUp: "Thank you for considering our services. Feel free to reach out whenever you need financial assistance in the future.",
	},
	"error": {
		Message:  "I apologize, %s, but we encountered some technical difficulties during your application process.",
		FollowUp: "Our team will review your application and contact you shortly. Thank you for your patience.",
	},
}

// ConversationManager owns the stage graph: greeting generation, transition
// validation, progress tracking, closure and timeout handling.
type ConversationManager struct{}

// NewConversationManager returns the stage graph manager.
func NewConversationManager() *ConversationManager {
	return &ConversationManager{}
}

// Greeting is a personalized conversation opener.
type Greeting struct {
	Message      string `json:"greeting_message"`
	FollowUp     string `json:"follow_up_message"`
	CustomerType string `json:"customer_type"`
	Personalized bool   `json:"personalized"`
	Starter      string `json:"conversation_starter"`
}

// GenerateGreeting picks a greeting template from the customer's situation.
func (m *ConversationManager) GenerateGreeting(customerName, referralSource, initialMessage string) Greeting {
	customerType := "new_customer"
	switch {
	case customerName != "":
		customerType = "returning_customer"
	case referralSource != "":
		customerType = "referred_customer"
	}

	templates := greetingTemplates[customerType]
	selected := templates[rand.Intn(len(templates))]

	message := selected
	if customerType == "returning_customer" {
		message = fmt.Sprintf(selected, customerName)
	}

	return Greeting{
		Message:      message,
		FollowUp:     greetingFollowUp(initialMessage, customerType),
		CustomerType: customerType,
		Personalized: customerName != "",
		Starter:      conversationStarter(initialMessage),
	}
}

func greetingFollowUp(initialMessage, customerType string) string {
	if initialMessage != "" && containsAny(initialMessage, "loan") {
		return "I see you're interested in a personal loan. I'll be happy to help you find the best option for your needs."
	}
	if customerType == "returning_customer" {
		return "What can I help you with today?"
	}
	return "Whether you're looking for a personal loan or just exploring your options, I'm here to guide you through the process."
}

func conversationStarter(initialMessage string) string {
	if initialMessage == "" {
		return "greeting_only"
	}
	switch {
	case containsAny(initialMessage, "loan", "borrow", "money", "credit"):
		return "loan_interest"
	case containsAny(initialMessage, "help", "information", "tell me"):
		return "information_request"
	default:
		return "general_inquiry"
	}
}

// StageCompletion reports how much of the current stage's required data is
// present.
type StageCompletion struct {
	Completed   bool     `json:"completed"`
	Percentage  float64  `json:"completion_percentage"`
	MissingData []string `json:"missing_data"`
}

// CheckStageCompletion checks required data for the context's current stage.
func (m *ConversationManager) CheckStageCompletion(conv *conversation.Context) StageCompletion {
	cfg := stageGraph[conv.Stage]
	if len(cfg.RequiredData) == 0 {
		return StageCompletion{Completed: true, Percentage: 100, MissingData: []string{}}
	}

	missing := make([]string, 0, len(cfg.RequiredData))
	for _, key := range cfg.RequiredData {
		if _, ok := conv.GetCollectedValue(key); !ok {
			missing = append(missing, key)
		}
	}

	completed := len(cfg.RequiredData) - len(missing)
	return StageCompletion{
		Completed:   len(missing) == 0,
		Percentage:  float64(completed) / float64(len(cfg.RequiredData)) * 100,
		MissingData: missing,
	}
}

// ValidateTransition checks the stage graph. It does not mutate the context;
// SetStage is a separate unconditional step so recovery paths can force a
// stage.
func (m *ConversationManager) ValidateTransition(from, to conversation.Stage) error {
	cfg, ok := stageGraph[from]
	if !ok {
		return fmt.Errorf("unknown stage %q", from)
	}
	for _, next := range cfg.NextStages {
		if next == to {
			return nil
		}
	}
	return fmt.Errorf("invalid transition from %s to %s (allowed: %v)", from, to, cfg.NextStages)
}

// Transition validates and performs a stage change, switching the owning
// agent and recording transition metadata on the context.
func (m *ConversationManager) Transition(conv *conversation.Context, target conversation.Stage, transitionData map[string]any) (string, error) {
	from := conv.Stage
	if err := m.ValidateTransition(from, target); err != nil {
		return "", err
	}

	conv.SwitchAgent(AgentForStage(target), target)
	conv.AddCollectedData("stage_transition", map[string]any{
		"from_stage":      string(from),
		"to_stage":        string(target),
		"transition_time": time.Now().UTC().Format(time.RFC3339),
		"transition_data": transitionData,
	})

	log.Info().
		Str("session_id", conv.SessionID).
		Str("from", string(from)).
		Str("to", string(target)).
		Msg("stage transition")

	return TransitionMessage(from, target), nil
}

// AgentForStage maps a stage to the agent that owns it.
func AgentForStage(stage conversation.Stage) conversation.AgentType {
	switch stage {
	case conversation.StageSalesNegotiation:
		return conversation.AgentSales
	case conversation.StageVerification, conversation.StageDocumentUpload:
		return conversation.AgentVerification
	case conversation.StageUnderwriting:
		return conversation.AgentUnderwriting
	case conversation.StageSanctionGeneration:
		return conversation.AgentSanction
	default:
		return conversation.AgentMaster
	}
}

// TransitionMessage returns the customer-facing copy for a stage change.
func TransitionMessage(from, to conversation.Stage) string {
	type edge struct{ from, to conversation.Stage }
	messages := map[edge]string{
		{conversation.StageInitiation, conversation.StageInformationCollection}:        "Great! Let me collect some basic information to get started.",
		{conversation.StageInformationCollection, conversation.StageSalesNegotiation}:  "Perfect! Now let me present you with some attractive loan options.",
		{conversation.StageSalesNegotiation, conversation.StageVerification}:           "Excellent! Let me verify your details to proceed with the application.",
		{conversation.StageVerification, conversation.StageUnderwriting}:               "Great! Now I'll assess your loan eligibility.",
		{conversation.StageUnderwriting, conversation.StageSanctionGeneration}:         "Congratulations! Your loan has been approved. Let me generate your sanction letter.",
		{conversation.StageUnderwriting, conversation.StageDocumentUpload}:             "I need some additional documentation to complete your application.",
		{conversation.StageDocumentUpload, conversation.StageUnderwriting}:             "Thank you for the documents. Let me complete the assessment.",
		{conversation.StageSanctionGeneration, conversation.StageCompletion}:           "Your sanction letter is ready! Let me provide you with the details.",
	}
	if msg, ok := messages[edge{from, to}]; ok {
		return msg
	}
	return "Moving to the next step of your application process."
}

// Progress summarizes how far along the happy path the conversation is.
type Progress struct {
	Percentage      float64 `json:"progress_percentage"`
	CurrentIndex    int     `json:"current_stage_index"`
	TotalStages     int     `json:"total_stages"`
	StagesRemaining int     `json:"stages_remaining"`
}

// ConversationProgress reports position on the happy path. Off-path stages
// (document_upload, error_handling) report zero progress.
func (m *ConversationManager) ConversationProgress(conv *conversation.Context) Progress {
	for i, stage := range orderedStages {
		if stage == conv.Stage {
			return Progress{
				Percentage:      float64(i) / float64(len(orderedStages)-1) * 100,
				CurrentIndex:    i,
				TotalStages:     len(orderedStages),
				StagesRemaining: len(orderedStages) - i - 1,
			}
		}
	}
	return Progress{CurrentIndex: -1, TotalStages: len(orderedStages), StagesRemaining: len(orderedStages)}
}

// Closure is the end-of-conversation summary.
type Closure struct {
	CompletionType string         `json:"completion_type"`
	Message        string         `json:"closure_message"`
	FollowUp       string         `json:"follow_up_message"`
	Summary        map[string]any `json:"conversation_summary"`
}

// GenerateClosure produces the closing message and summary for a finished
// conversation. completionType is approved, rejected, cancelled or error.
func (m *ConversationManager) GenerateClosure(conv *conversation.Context, completionType string, outcome map[string]any) Closure {
	tmpl, ok := closureTemplates[completionType]
	if !ok {
		completionType = "error"
		tmpl = closureTemplates["error"]
	}

	name := "there"
	if v, ok := conv.GetCollectedValue("name"); ok {
		if s, ok := v.(string); ok && s != "" {
			name = s
		}
	}
	amount := "requested amount"
	if v, ok := conv.GetCollectedValue("loan_amount"); ok {
		switch n := v.(type) {
		case float64:
			amount = fmt.Sprintf("Rs.%.0f", n)
		case int:
			amount = fmt.Sprintf("Rs.%d", n)
		case string:
			amount = n
		}
	}

	message := tmpl.Message
	switch completionType {
	case "approved":
		message = fmt.Sprintf(tmpl.Message, name, amount)
	default:
		message = fmt.Sprintf(tmpl.Message, name)
	}

	return Closure{
		CompletionType: completionType,
		Message:        message,
		FollowUp:       tmpl.FollowUp,
		Summary: map[string]any{
			"session_id":         conv.SessionID,
			"customer_name":      name,
			"loan_amount":        amount,
			"final_stage":        string(conv.Stage),
			"errors_encountered": len(conv.Errors),
			"outcome":            outcome,
		},
	}
}

// TimeoutResult describes how a stalled conversation is handled.
type TimeoutResult struct {
	Message        string `json:"timeout_message"`
	RecoveryAction string `json:"recovery_action"`
	Stage          string `json:"stage_at_timeout"`
	TimeoutMinutes int    `json:"timeout_duration"`
}

// StageTimeout returns the idle budget for a stage, zero for completion.
func (m *ConversationManager) StageTimeout(stage conversation.Stage) time.Duration {
	return time.Duration(stageGraph[stage].TimeoutMinutes) * time.Minute
}

// HandleTimeout records a timeout error on the context and picks a recovery
// action for the stalled stage.
func (m *ConversationManager) HandleTimeout(conv *conversation.Context) TimeoutResult {
	cfg := stageGraph[conv.Stage]

	conv.AddError(
		fmt.Sprintf("conversation timeout in stage: %s", conv.Stage),
		conversation.SeverityMedium,
		map[string]any{
			"stage":           string(conv.Stage),
			"timeout_minutes": cfg.TimeoutMinutes,
		},
	)

	action := "resume_stage"
	switch conv.Stage {
	case conversation.StageInitiation, conversation.StageInformationCollection:
		action = "restart_conversation"
	case conversation.StageCompletion:
		action = "close_conversation"
	}

	log.Warn().
		Str("session_id", conv.SessionID).
		Str("stage", string(conv.Stage)).
		Msg("conversation timeout")

	return TimeoutResult{
		Message:        "I notice we haven't heard from you in a while. Are you still there? I'm here to help you continue with your loan application.",
		RecoveryAction: action,
		Stage:          string(conv.Stage),
		TimeoutMinutes: cfg.TimeoutMinutes,
	}
}

package agents

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"loanflow-server/internal/application/errorhandler"
	"loanflow-server/internal/application/sanction"
	"loanflow-server/internal/domain/conversation"
	"loanflow-server/internal/domain/loan"
	"loanflow-server/internal/infrastructure/metrics"
)

// SanctionLetterAgent produces the approval letter, its download link
// and the customer notification once underwriting approves a loan.
type SanctionLetterAgent struct {
	Base
	gen *sanction.Generator
}

func NewSanctionLetterAgent(errs *errorhandler.Handler, gen *sanction.Generator) *SanctionLetterAgent {
	return &SanctionLetterAgent{
		Base: NewBase(conversation.AgentSanctionLetter, errs),
		gen:  gen,
	}
}

func (a *SanctionLetterAgent) CanExecute(task *conversation.AgentTask) bool {
	switch task.Type {
	case conversation.TaskGenerateSanctionLetter,
		conversation.TaskDocumentGeneration,
		conversation.TaskCreateDownloadLink,
		conversation.TaskNotifyCustomer:
		return true
	}
	return false
}

func (a *SanctionLetterAgent) Execute(ctx context.Context, task *conversation.AgentTask, conv *conversation.Context) (map[string]any, error) {
	return a.ExecuteTask(ctx, task, conv, a.runTask)
}

func (a *SanctionLetterAgent) runTask(_ context.Context, task *conversation.AgentTask, conv *conversation.Context) (map[string]any, error) {
	a.log.Info().Str("task_type", string(task.Type)).Msg("executing sanction letter task")

	switch task.Type {
	case conversation.TaskGenerateSanctionLetter, conversation.TaskDocumentGeneration:
		return a.generateLetter(task.Input, conv)
	case conversation.TaskCreateDownloadLink:
		return a.createDownloadLink(task.Input)
	case conversation.TaskNotifyCustomer:
		return a.notifyCustomer(task.Input)
	default:
		return nil, fmt.Errorf("unsupported sanction letter task: %s", task.Type)
	}
}

// generateLetter renders the letter for the approved loan carried in
// the task input and shares the artefacts back to the master agent.
func (a *SanctionLetterAgent) generateLetter(input map[string]any, conv *conversation.Context) (map[string]any, error) {
	application := a.applicationFromInput(input, conv)
	if application == nil {
		return nil, fmt.Errorf("approved loan details are required to generate a sanction letter")
	}
	profile := a.profileForLetter(input, conv)

	path, err := a.gen.Generate(application, profile)
	if err != nil {
		metrics.SanctionLettersTotal.WithLabelValues("failed").Inc()
		return a.generationFallback(profile, err), nil
	}
	metrics.SanctionLettersTotal.WithLabelValues("generated").Inc()

	link := a.gen.DownloadLink(path)
	if conv != nil {
		conv.ShareData(conversation.AgentSanctionLetter, conversation.AgentMaster, "sanction_letter_path", path)
		conv.ShareData(conversation.AgentSanctionLetter, conversation.AgentMaster, "download_link", link)
		conv.ShareData(conversation.AgentSanctionLetter, conversation.AgentMaster, "sanction_letter_generated", true)
	}

	return map[string]any{
		"status":               "generated",
		"sanction_letter_path": path,
		"filename":             filepath.Base(path),
		"download_link":        link,
		"message":              a.notificationMessage(profile, application, link),
		"message_type":         string(conversation.MessageDownloadLink),
		"next_action":          "notify_customer",
	}, nil
}

func (a *SanctionLetterAgent) createDownloadLink(input map[string]any) (map[string]any, error) {
	path := mapString(input, "sanction_letter_path", "")
	if path == "" {
		return nil, fmt.Errorf("sanction_letter_path is required")
	}

	info, err := a.gen.FileInfo(path)
	if err != nil {
		return nil, fmt.Errorf("sanction letter unavailable: %w", err)
	}

	return map[string]any{
		"status":        "link_created",
		"download_link": a.gen.DownloadLink(path),
		"file_info":     info,
	}, nil
}

func (a *SanctionLetterAgent) notifyCustomer(input map[string]any) (map[string]any, error) {
	profile := profileFromMap(input)
	application := &loan.Application{
		RequestedAmount: mapFloat(input, "amount", 0),
		InterestRate:    mapFloat(input, "interest_rate", 0),
		Tenure:          mapInt(input, "tenure", 0),
		EMI:             mapFloat(input, "emi", 0),
	}
	link := mapString(input, "download_link", "")

	return map[string]any{
		"status":       "notified",
		"message":      a.notificationMessage(profile, application, link),
		"message_type": string(conversation.MessageDownloadLink),
	}, nil
}

// applicationFromInput rebuilds the approved application from the task
// input, falling back to the loan shared by the underwriting agent.
func (a *SanctionLetterAgent) applicationFromInput(input map[string]any, conv *conversation.Context) *loan.Application {
	payload := input
	if mapFloat(payload, "amount", 0) <= 0 && conv != nil {
		if shared, ok := conv.GetSharedData(conversation.AgentSanctionLetter, "approved_loan"); ok {
			if m, ok := shared.(map[string]any); ok {
				payload = m
			}
		}
	}

	amount := mapFloat(payload, "amount", 0)
	if amount <= 0 {
		return nil
	}

	application := &loan.Application{
		ID:              mapString(payload, "loan_id", mapString(payload, "application_id", "")),
		CustomerID:      mapString(payload, "customer_id", defaultCustomerID),
		RequestedAmount: amount,
		Tenure:          mapInt(payload, "tenure", 60),
		InterestRate:    mapFloat(payload, "interest_rate", 0),
		EMI:             mapFloat(payload, "emi", 0),
		Status:          loan.StatusApproved,
	}
	if application.ID == "" {
		application.ID = "loan_" + application.CustomerID
	}
	return application
}

func (a *SanctionLetterAgent) profileForLetter(input map[string]any, conv *conversation.Context) *loan.CustomerProfile {
	if conv != nil {
		if shared, ok := conv.GetSharedData(conversation.AgentSanctionLetter, "customer_profile"); ok {
			if m, ok := shared.(map[string]any); ok {
				return profileFromMap(m)
			}
		}
	}
	if m, ok := input["customer_profile"].(map[string]any); ok {
		return profileFromMap(m)
	}
	return profileFromMap(input)
}

// generationFallback keeps the conversation alive when rendering fails;
// the letter is re-attempted offline and mailed instead.
func (a *SanctionLetterAgent) generationFallback(profile *loan.CustomerProfile, err error) map[string]any {
	a.log.Error().Err(err).Msg("sanction letter generation failed")

	name := displayName(profile)
	message := fmt.Sprintf(
		"Congratulations %s! Your loan has been approved.\n\n"+
			"We are preparing your sanction letter and will email it to you within 24 hours. "+
			"For any queries, please call our customer care at 1800-209-8800.",
		name)

	return map[string]any{
		"status":       "generation_failed",
		"message":      message,
		"message_type": string(conversation.MessageText),
		"next_action":  "notify_customer",
		"error":        err.Error(),
	}
}

func (a *SanctionLetterAgent) notificationMessage(profile *loan.CustomerProfile, application *loan.Application, link string) string {
	name := displayName(profile)

	var b strings.Builder
	fmt.Fprintf(&b, "Congratulations %s! Your personal loan has been APPROVED.\n\n", name)
	fmt.Fprintf(&b, "Approved Amount: %s\n", formatINR(application.RequestedAmount))
	if application.Tenure > 0 {
		fmt.Fprintf(&b, "Tenure: %d months\n", application.Tenure)
	}
	if application.InterestRate > 0 {
		fmt.Fprintf(&b, "Interest Rate: %.2f%% per annum\n", application.InterestRate)
	}
	if application.EMI > 0 {
		fmt.Fprintf(&b, "Monthly EMI: %s\n", formatINR(application.EMI))
	}
	b.WriteString("\nYour sanction letter is ready.")
	if link != "" {
		fmt.Fprintf(&b, " Download it here: %s", link)
	}
	b.WriteString("\n\nOur relationship manager will contact you within 2 business days ")
	b.WriteString("to complete the disbursement formalities. ")
	b.WriteString("For assistance, call 1800-209-8800.\n\nThank you for choosing Tata Capital Limited.")
	return b.String()
}

func displayName(profile *loan.CustomerProfile) string {
	if profile == nil || profile.Name == "" || profile.Name == defaultCustomerID {
		return defaultCustomerName
	}
	return profile.Name
}

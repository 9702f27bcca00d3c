package sanction

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"loanflow-server/internal/domain/conversation"
)

// LetterAgent executes sanction letter tasks. Satisfied by the agent in
// the agents package; the indirection keeps this package free of it.
type LetterAgent interface {
	Execute(ctx context.Context, task *conversation.AgentTask, conv *conversation.Context) (map[string]any, error)
}

// Workflow drives the post-approval sequence: hand the conversation to
// the sanction letter agent, generate the letter, record the artefacts
// and return control to the master agent.
type Workflow struct {
	agent LetterAgent
	gen   *Generator
	log   zerolog.Logger
}

func NewWorkflow(agent LetterAgent, gen *Generator, log zerolog.Logger) *Workflow {
	return &Workflow{
		agent: agent,
		gen:   gen,
		log:   log.With().Str("component", "sanction-workflow").Logger(),
	}
}

// ProcessLoanApproval generates the sanction letter for an approved
// loan. The conversation is moved to the sanction generation stage for
// the duration and lands on completion, or error handling on failure.
func (w *Workflow) ProcessLoanApproval(ctx context.Context, conv *conversation.Context, approved map[string]any) (map[string]any, error) {
	if approved == nil {
		return nil, fmt.Errorf("approved loan details are required")
	}
	if !isApproved(approved) {
		return nil, fmt.Errorf("loan is not approved, cannot generate sanction letter")
	}

	conv.SwitchAgent(conversation.AgentSanctionLetter, conversation.StageSanctionGeneration)

	task := conversation.NewTask(conversation.AgentSanctionLetter, conversation.TaskGenerateSanctionLetter, approved)
	conv.AddPendingTask(task)

	result, err := w.agent.Execute(ctx, task, conv)
	if err != nil {
		conv.AddError("sanction letter generation failed: "+err.Error(), conversation.SeverityHigh, map[string]any{
			"task_id": task.ID,
		})
		conv.SwitchAgent(conversation.AgentMaster, conversation.StageErrorHandling)
		return nil, fmt.Errorf("process loan approval: %w", err)
	}

	conv.AddCollectedData("sanction_letter_completed", true)
	if link, ok := result["download_link"].(string); ok && link != "" {
		conv.AddCollectedData("final_download_link", link)
	}
	conv.SwitchAgent(conversation.AgentMaster, conversation.StageCompletion)

	w.log.Info().Str("session_id", conv.SessionID).Msg("loan approval processed")
	return result, nil
}

// Regenerate re-renders the letter for a loan whose first attempt
// failed or whose file expired.
func (w *Workflow) Regenerate(ctx context.Context, conv *conversation.Context, approved map[string]any) (map[string]any, error) {
	w.log.Info().Str("session_id", conv.SessionID).Msg("regenerating sanction letter")
	return w.ProcessLoanApproval(ctx, conv, approved)
}

// LetterStatus reports whether a generated letter is still available.
func (w *Workflow) LetterStatus(path string) map[string]any {
	info, err := w.gen.FileInfo(path)
	if err != nil {
		return map[string]any{"available": false}
	}
	info["available"] = true
	info["download_link"] = w.gen.DownloadLink(path)
	return info
}

// Cleanup removes letters past the retention window.
func (w *Workflow) Cleanup(retentionDays int) (int, error) {
	return w.gen.CleanupOldFiles(retentionDays)
}

func isApproved(payload map[string]any) bool {
	if v, ok := payload["approved"].(bool); ok && v {
		return true
	}
	if s, ok := payload["status"].(string); ok && s == "approved" {
		return true
	}
	if s, ok := payload["decision"].(string); ok && s == "approved" {
		return true
	}
	return false
}

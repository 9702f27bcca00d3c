package agents

import (
	"testing"

	"loanflow-server/internal/domain/conversation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateTransitionFollowsStageGraph(t *testing.T) {
	m := NewConversationManager()

	assert.NoError(t, m.ValidateTransition(conversation.StageInitiation, conversation.StageInformationCollection))
	assert.NoError(t, m.ValidateTransition(conversation.StageUnderwriting, conversation.StageSanctionGeneration))
	assert.NoError(t, m.ValidateTransition(conversation.StageDocumentUpload, conversation.StageUnderwriting))
	assert.NoError(t, m.ValidateTransition(conversation.StageSalesNegotiation, conversation.StageVerification))
	assert.Error(t, m.ValidateTransition(conversation.StageSalesNegotiation, conversation.StageCompletion))

	err := m.ValidateTransition(conversation.StageInitiation, conversation.StageSanctionGeneration)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid transition")

	// Completion is terminal.
	assert.Error(t, m.ValidateTransition(conversation.StageCompletion, conversation.StageInitiation))
}

func TestTransitionSwitchesAgentAndRecordsMetadata(t *testing.T) {
	m := NewConversationManager()
	conv := conversation.NewContext("session_cm", "CUST001")
	conv.SwitchAgent(conversation.AgentMaster, conversation.StageVerification)

	msg, err := m.Transition(conv, conversation.StageUnderwriting, map[string]any{"reason": "kyc done"})
	require.NoError(t, err)

	assert.Equal(t, conversation.StageUnderwriting, conv.Stage)
	assert.Equal(t, conversation.AgentUnderwriting, conv.CurrentAgent)
	assert.Equal(t, "Great! Now I'll assess your loan eligibility.", msg)

	recorded, ok := conv.GetCollectedValue("stage_transition")
	require.True(t, ok)
	transition := recorded.(map[string]any)
	assert.Equal(t, string(conversation.StageVerification), transition["from_stage"])
	assert.Equal(t, string(conversation.StageUnderwriting), transition["to_stage"])
}

func TestTransitionRejectsInvalidTarget(t *testing.T) {
	m := NewConversationManager()
	conv := conversation.NewContext("session_cm", "CUST001")

	_, err := m.Transition(conv, conversation.StageSanctionGeneration, nil)
	require.Error(t, err)
	assert.Equal(t, conversation.StageInitiation, conv.Stage)
}

func TestAgentForStage(t *testing.T) {
	assert.Equal(t, conversation.AgentSales, AgentForStage(conversation.StageSalesNegotiation))
	assert.Equal(t, conversation.AgentVerification, AgentForStage(conversation.StageVerification))
	assert.Equal(t, conversation.AgentVerification, AgentForStage(conversation.StageDocumentUpload))
	assert.Equal(t, conversation.AgentUnderwriting, AgentForStage(conversation.StageUnderwriting))
	assert.Equal(t, conversation.AgentSanction, AgentForStage(conversation.StageSanctionGeneration))
	assert.Equal(t, conversation.AgentMaster, AgentForStage(conversation.StageInitiation))
}

func TestCheckStageCompletionTracksMissingData(t *testing.T) {
	m := NewConversationManager()
	conv := conversation.NewContext("session_cm", "CUST001")
	conv.SetStage(conversation.StageInformationCollection)

	initial := m.CheckStageCompletion(conv)
	assert.False(t, initial.Completed)
	assert.Equal(t, []string{"name", "age", "city", "loan_amount"}, initial.MissingData)

	conv.AddCollectedData("name", "Rajesh Kumar")
	conv.AddCollectedData("age", 32)
	partial := m.CheckStageCompletion(conv)
	assert.False(t, partial.Completed)
	assert.InDelta(t, 50, partial.Percentage, 0.01)

	conv.AddCollectedData("city", "Bangalore")
	conv.AddCollectedData("loan_amount", 400000.0)
	done := m.CheckStageCompletion(conv)
	assert.True(t, done.Completed)
	assert.InDelta(t, 100, done.Percentage, 0.01)
}

func TestConversationProgress(t *testing.T) {
	m := NewConversationManager()
	conv := conversation.NewContext("session_cm", "CUST001")

	start := m.ConversationProgress(conv)
	assert.Equal(t, 0, start.CurrentIndex)
	assert.InDelta(t, 0, start.Percentage, 0.01)

	conv.SetStage(conversation.StageUnderwriting)
	mid := m.ConversationProgress(conv)
	assert.Equal(t, 4, mid.CurrentIndex)
	assert.Equal(t, 2, mid.StagesRemaining)

	conv.SetStage(conversation.StageCompletion)
	end := m.ConversationProgress(conv)
	assert.InDelta(t, 100, end.Percentage, 0.01)

	conv.SetStage(conversation.StageErrorHandling)
	off := m.ConversationProgress(conv)
	assert.Equal(t, -1, off.CurrentIndex)
}

func TestStageTimeoutFallsBackToDefault(t *testing.T) {
	m := NewConversationManager()
	assert.Equal(t, m.StageTimeout(conversation.StageDocumentUpload).Minutes(), 20.0)
}

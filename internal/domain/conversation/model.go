package conversation

import (
	"time"

	"github.com/google/uuid"
)

// AgentType identifies the agent owning a conversation turn or task.
type AgentType string

const (
	AgentMaster         AgentType = "master"
	AgentSales          AgentType = "sales"
	AgentVerification   AgentType = "verification"
	AgentUnderwriting   AgentType = "underwriting"
	AgentSanction       AgentType = "sanction"
	AgentSanctionLetter AgentType = "sanction_letter"
)

// Stage is a named phase of the loan conversation.
type Stage string

const (
	StageInitiation            Stage = "initiation"
	StageInformationCollection Stage = "information_collection"
	StageSalesNegotiation      Stage = "sales_negotiation"
	StageVerification          Stage = "verification"
	StageUnderwriting          Stage = "underwriting"
	StageDocumentUpload        Stage = "document_upload"
	StageSanctionGeneration    Stage = "sanction_generation"
	StageCompletion            Stage = "completion"
	StageErrorHandling         Stage = "error_handling"
)

// TaskType classifies agent work items.
type TaskType string

const (
	TaskSales                  TaskType = "sales"
	TaskVerification           TaskType = "verification"
	TaskUnderwriting           TaskType = "underwriting"
	TaskDocumentGeneration     TaskType = "document_generation"
	TaskGenerateSanctionLetter TaskType = "generate_sanction_letter"
	TaskCreateDownloadLink     TaskType = "create_download_link"
	TaskNotifyCustomer         TaskType = "notify_customer"
)

// TaskStatus tracks a task through its lifecycle.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// ErrorSeverity ranks logged conversation errors.
type ErrorSeverity string

const (
	SeverityLow      ErrorSeverity = "low"
	SeverityMedium   ErrorSeverity = "medium"
	SeverityHigh     ErrorSeverity = "high"
	SeverityCritical ErrorSeverity = "critical"
)

// MessageSender identifies who produced a chat message.
type MessageSender string

const (
	SenderUser  MessageSender = "user"
	SenderAgent MessageSender = "agent"
)

// MessageType categorises chat message payloads.
type MessageType string

const (
	MessageText         MessageType = "text"
	MessageFile         MessageType = "file"
	MessageSystem       MessageType = "system"
	MessageDownloadLink MessageType = "download_link"
)

// CollectedValue wraps a collected data point with its capture time.
type CollectedValue struct {
	Value     any       `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorLog records one error encountered during a conversation.
type ErrorLog struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Message   string         `json:"message"`
	Severity  ErrorSeverity  `json:"severity"`
	Context   map[string]any `json:"context,omitempty"`
}

// ChatMessage is one turn in the conversation transcript.
type ChatMessage struct {
	ID        string        `json:"id"`
	Sender    MessageSender `json:"sender"`
	Type      MessageType   `json:"type"`
	Content   string        `json:"content"`
	AgentType AgentType     `json:"agent_type,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// AgentTask is an ephemeral unit of work delegated to an agent.
type AgentTask struct {
	ID          string         `json:"id"`
	Type        TaskType       `json:"type"`
	AgentType   AgentType      `json:"agent_type"`
	Status      TaskStatus     `json:"status"`
	Input       map[string]any `json:"input,omitempty"`
	Output      map[string]any `json:"output,omitempty"`
	Error       string         `json:"error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// NewTask creates a pending task for the given agent and type.
func NewTask(agentType AgentType, taskType TaskType, input map[string]any) *AgentTask {
	return &AgentTask{
		ID:        uuid.NewString(),
		Type:      taskType,
		AgentType: agentType,
		Status:    TaskPending,
		Input:     input,
		CreatedAt: time.Now().UTC(),
	}
}

// Start marks the task in progress.
func (t *AgentTask) Start() {
	now := time.Now().UTC()
	t.Status = TaskInProgress
	t.StartedAt = &now
}

// Complete marks the task completed with its output.
func (t *AgentTask) Complete(output map[string]any) {
	now := time.Now().UTC()
	t.Status = TaskCompleted
	t.Output = output
	t.CompletedAt = &now
}

// Fail marks the task failed with the error message.
func (t *AgentTask) Fail(message string) {
	now := time.Now().UTC()
	t.Status = TaskFailed
	t.Error = message
	t.CompletedAt = &now
}

// Reset returns the task to pending so it can be retried from scratch.
func (t *AgentTask) Reset() {
	t.Status = TaskPending
	t.StartedAt = nil
	t.CompletedAt = nil
	t.Error = ""
}

// Context is the per-session shared state all agents read and write.
// It is the sole inter-agent memory; agents never hold references to
// each other.
type Context struct {
	SessionID      string                    `json:"session_id"`
	CustomerID     string                    `json:"customer_id,omitempty"`
	CurrentAgent   AgentType                 `json:"current_agent"`
	Stage          Stage                     `json:"conversation_stage"`
	CollectedData  map[string]CollectedValue `json:"collected_data"`
	PendingTasks   []*AgentTask              `json:"pending_tasks"`
	CompletedTasks []*AgentTask              `json:"completed_tasks"`
	Errors         []ErrorLog                `json:"errors"`
	Messages       []ChatMessage             `json:"messages"`
	CreatedAt      time.Time                 `json:"created_at"`
	UpdatedAt      time.Time                 `json:"updated_at"`
}

// NewContext creates a fresh context at the initiation stage.
func NewContext(sessionID, customerID string) *Context {
	now := time.Now().UTC()
	return &Context{
		SessionID:     sessionID,
		CustomerID:    customerID,
		CurrentAgent:  AgentMaster,
		Stage:         StageInitiation,
		CollectedData: make(map[string]CollectedValue),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func (c *Context) touch() {
	c.UpdatedAt = time.Now().UTC()
}

// AddCollectedData stores a value under key, stamping the capture time.
func (c *Context) AddCollectedData(key string, value any) {
	if c.CollectedData == nil {
		c.CollectedData = make(map[string]CollectedValue)
	}
	c.CollectedData[key] = CollectedValue{Value: value, Timestamp: time.Now().UTC()}
	c.touch()
}

// GetCollectedValue returns the raw value stored under key.
func (c *Context) GetCollectedValue(key string) (any, bool) {
	entry, ok := c.CollectedData[key]
	if !ok {
		return nil, false
	}
	return entry.Value, true
}

// AddError appends an error log entry.
func (c *Context) AddError(message string, severity ErrorSeverity, errCtx map[string]any) {
	c.Errors = append(c.Errors, ErrorLog{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Message:   message,
		Severity:  severity,
		Context:   errCtx,
	})
	c.touch()
}

// AddPendingTask queues a task on the context.
func (c *Context) AddPendingTask(task *AgentTask) {
	c.PendingTasks = append(c.PendingTasks, task)
	c.touch()
}

// CompleteTask moves a pending task to the completed list.
func (c *Context) CompleteTask(taskID string) {
	for i, task := range c.PendingTasks {
		if task.ID == taskID {
			c.PendingTasks = append(c.PendingTasks[:i], c.PendingTasks[i+1:]...)
			c.CompletedTasks = append(c.CompletedTasks, task)
			c.touch()
			return
		}
	}
}

// SwitchAgent hands the conversation to another agent and stage.
func (c *Context) SwitchAgent(target AgentType, stage Stage) {
	c.CurrentAgent = target
	c.Stage = stage
	c.touch()
}

// SetStage unconditionally moves the conversation to the target stage.
// Transition validation lives in the conversation manager; some callers
// bypass it on purpose.
func (c *Context) SetStage(target Stage) {
	c.Stage = target
	c.touch()
}

// AddMessage appends a chat message to the transcript.
func (c *Context) AddMessage(sender MessageSender, msgType MessageType, content string, agentType AgentType) {
	c.Messages = append(c.Messages, ChatMessage{
		ID:        uuid.NewString(),
		Sender:    sender,
		Type:      msgType,
		Content:   content,
		AgentType: agentType,
		Timestamp: time.Now().UTC(),
	})
	c.touch()
}

// TrimErrors keeps only the most recent n error entries.
func (c *Context) TrimErrors(n int) {
	if len(c.Errors) > n {
		c.Errors = c.Errors[len(c.Errors)-n:]
		c.touch()
	}
}

package agents

import (
	"context"
	"fmt"
	"sync"

	"loanflow-server/internal/domain/conversation"
	"loanflow-server/internal/infrastructure/contextstore"
	"loanflow-server/internal/infrastructure/metrics"

	"github.com/rs/zerolog/log"
)

// WorkerFactory builds a worker agent of the requested type. The master agent
// installs it so the session manager can lazily spin up workers per session.
type WorkerFactory func(agentType conversation.AgentType) (Agent, error)

// SessionManager coordinates sessions: context persistence plus a per-session
// registry of worker agents.
type SessionManager struct {
	store   *contextstore.Store
	factory WorkerFactory

	mu     sync.RWMutex
	agents map[string]map[conversation.AgentType]Agent
}

// NewSessionManager wires session coordination over the context store.
func NewSessionManager(store *contextstore.Store, factory WorkerFactory) *SessionManager {
	return &SessionManager{
		store:   store,
		factory: factory,
		agents:  make(map[string]map[conversation.AgentType]Agent),
	}
}

// StartSession creates a new conversation session.
func (m *SessionManager) StartSession(customerID string) (*conversation.Context, error) {
	conv, err := m.store.CreateSession(customerID)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.agents[conv.SessionID] = make(map[conversation.AgentType]Agent)
	m.mu.Unlock()

	metrics.ActiveSessions.Inc()
	log.Info().Str("session_id", conv.SessionID).Str("customer_id", customerID).Msg("session started")
	return conv, nil
}

// Context returns the conversation context for a session.
func (m *SessionManager) Context(sessionID string) (*conversation.Context, bool) {
	return m.store.Get(sessionID)
}

// Save persists a mutated conversation context.
func (m *SessionManager) Save(conv *conversation.Context) error {
	return m.store.Save(conv)
}

// AgentFor returns the session's worker of the given type, creating it on
// first use. The master agent is never auto-created.
func (m *SessionManager) AgentFor(sessionID string, agentType conversation.AgentType) (Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	registry, ok := m.agents[sessionID]
	if !ok {
		registry = make(map[conversation.AgentType]Agent)
		m.agents[sessionID] = registry
	}
	if agent, ok := registry[agentType]; ok {
		return agent, nil
	}
	if agentType == conversation.AgentMaster {
		return nil, fmt.Errorf("master agent is not session-scoped")
	}

	agent, err := m.factory(agentType)
	if err != nil {
		return nil, fmt.Errorf("create %s agent: %w", agentType, err)
	}
	registry[agentType] = agent

	log.Info().Str("session_id", sessionID).Str("agent_type", string(agentType)).Msg("worker agent created")
	return agent, nil
}

// ReplaceAgent drops the session's worker so the next request gets a fresh
// one. Used when a worker goes unhealthy.
func (m *SessionManager) ReplaceAgent(sessionID string, agentType conversation.AgentType) {
	m.mu.Lock()
	if registry, ok := m.agents[sessionID]; ok {
		delete(registry, agentType)
	}
	m.mu.Unlock()

	log.Warn().Str("session_id", sessionID).Str("agent_type", string(agentType)).Msg("worker agent replaced")
}

// SwitchAgent validates that the target worker exists and moves the context
// to it.
func (m *SessionManager) SwitchAgent(sessionID string, agentType conversation.AgentType, stage conversation.Stage) error {
	conv, ok := m.store.Get(sessionID)
	if !ok {
		return fmt.Errorf("session %s not found", sessionID)
	}
	if agentType != conversation.AgentMaster {
		if _, err := m.AgentFor(sessionID, agentType); err != nil {
			return err
		}
	}

	conv.SwitchAgent(agentType, stage)
	return m.store.Save(conv)
}

// ExecuteAgentTask queues and runs a task on the session's worker of the
// given type, persisting the context around execution.
func (m *SessionManager) ExecuteAgentTask(ctx context.Context, sessionID string, agentType conversation.AgentType, taskType conversation.TaskType, input map[string]any) (map[string]any, error) {
	conv, ok := m.store.Get(sessionID)
	if !ok {
		return nil, fmt.Errorf("session %s not found", sessionID)
	}

	agent, err := m.AgentFor(sessionID, agentType)
	if err != nil {
		return nil, err
	}
	task := conversation.NewTask(agentType, taskType, input)
	if !agent.CanExecute(task) {
		return nil, fmt.Errorf("%s agent cannot execute %s tasks", agentType, taskType)
	}
	conv.AddPendingTask(task)
	if err := m.store.Save(conv); err != nil {
		return nil, err
	}

	result, execErr := agent.Execute(ctx, task, conv)

	if saveErr := m.store.Save(conv); saveErr != nil {
		log.Error().Err(saveErr).Str("session_id", sessionID).Msg("failed to persist context after task")
	}
	return result, execErr
}

// UpdateStage sets the conversation stage without transition validation.
// Recovery and reset paths rely on this being unconditional.
func (m *SessionManager) UpdateStage(sessionID string, stage conversation.Stage) error {
	conv, ok := m.store.Get(sessionID)
	if !ok {
		return fmt.Errorf("session %s not found", sessionID)
	}
	conv.SetStage(stage)
	return m.store.Save(conv)
}

// AddSessionData stores one collected value on the session.
func (m *SessionManager) AddSessionData(sessionID, key string, value any) error {
	conv, ok := m.store.Get(sessionID)
	if !ok {
		return fmt.Errorf("session %s not found", sessionID)
	}
	conv.AddCollectedData(key, value)
	return m.store.Save(conv)
}

// SessionData reads one collected value from the session.
func (m *SessionManager) SessionData(sessionID, key string) (any, bool) {
	conv, ok := m.store.Get(sessionID)
	if !ok {
		return nil, false
	}
	return conv.GetCollectedValue(key)
}

// ShareData forwards data from one agent to another through the context.
func (m *SessionManager) ShareData(sessionID string, from, to conversation.AgentType, data map[string]any) error {
	conv, ok := m.store.Get(sessionID)
	if !ok {
		return fmt.Errorf("session %s not found", sessionID)
	}
	for key, value := range data {
		conv.ShareData(from, to, key, value)
	}
	return m.store.Save(conv)
}

// EndSession moves the context to completion and tears down the session's
// worker registry.
func (m *SessionManager) EndSession(sessionID string) error {
	conv, ok := m.store.Get(sessionID)
	if !ok {
		return fmt.Errorf("session %s not found", sessionID)
	}

	conv.SetStage(conversation.StageCompletion)
	if err := m.store.Save(conv); err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.agents, sessionID)
	m.mu.Unlock()

	metrics.ActiveSessions.Dec()
	log.Info().Str("session_id", sessionID).Msg("session ended")
	return nil
}

// ResetSession returns a session to the initiation stage. A soft reset
// drops pending tasks and errors but keeps collected data and the
// session id. A hard reset ends the session and starts a fresh one for
// the same customer; callers must use the returned context's session id.
func (m *SessionManager) ResetSession(sessionID string, hard bool) (*conversation.Context, error) {
	conv, ok := m.store.Get(sessionID)
	if !ok {
		return nil, fmt.Errorf("session %s not found", sessionID)
	}

	if hard {
		if err := m.EndSession(sessionID); err != nil {
			return nil, err
		}
		fresh, err := m.StartSession(conv.CustomerID)
		if err != nil {
			return nil, err
		}
		log.Info().Str("session_id", sessionID).Str("new_session_id", fresh.SessionID).Msg("session hard reset")
		return fresh, nil
	}

	conv.SwitchAgent(conversation.AgentMaster, conversation.StageInitiation)
	conv.PendingTasks = nil
	conv.Errors = nil
	if err := m.store.Save(conv); err != nil {
		return nil, err
	}
	log.Info().Str("session_id", sessionID).Msg("session soft reset")
	return conv, nil
}

// RecoverSession reloads a session from disk after a restart and
// reinitializes its agent registry.
func (m *SessionManager) RecoverSession(sessionID string) (*conversation.Context, error) {
	conv, err := m.store.Recover(sessionID)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.agents[sessionID] = make(map[conversation.AgentType]Agent)
	m.mu.Unlock()

	log.Info().Str("session_id", sessionID).Msg("session recovered")
	return conv, nil
}

// ListSessions returns active sessions, newest first.
func (m *SessionManager) ListSessions(customerID string, limit int) []*conversation.Context {
	return m.store.List(customerID, limit)
}

// Statistics summarizes session and registry state.
func (m *SessionManager) Statistics() map[string]any {
	m.mu.RLock()
	sessionsWithAgents := len(m.agents)
	totalAgents := 0
	for _, registry := range m.agents {
		totalAgents += len(registry)
	}
	m.mu.RUnlock()

	return map[string]any{
		"stored_sessions":      m.store.Count(),
		"sessions_with_agents": sessionsWithAgents,
		"registered_agents":    totalAgents,
	}
}

// AgentHealth reports per-worker health for a session.
func (m *SessionManager) AgentHealth(sessionID string) map[string]map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]map[string]any)
	for agentType, agent := range m.agents[sessionID] {
		report := agent.StatusReport()
		report["healthy"] = agent.IsHealthy()
		out[string(agentType)] = report
	}
	return out
}

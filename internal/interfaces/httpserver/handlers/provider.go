package handlers

import (
	"github.com/rs/zerolog"

	"loanflow-server/internal/application/agents"
	"loanflow-server/internal/application/sanction"
	"loanflow-server/internal/config"
	"loanflow-server/internal/domain/document"
	"loanflow-server/internal/infrastructure/apiclients"
	historyrepo "loanflow-server/internal/infrastructure/repository/history"
	"loanflow-server/internal/infrastructure/storage"
)

// Provider wires HTTP handlers.
type Provider struct {
	Chat      *ChatHandler
	History   *HistoryHandler
	Documents *DocumentHandler
	Health    *HealthHandler
}

func NewProvider(
	cfg *config.Config,
	master *agents.MasterAgent,
	sessions *agents.SessionManager,
	manager *agents.ConversationManager,
	historyStore historyrepo.Store,
	docs *document.Service,
	letters *sanction.Generator,
	apis *apiclients.Clients,
	store *storage.LocalStorage,
	log zerolog.Logger,
) *Provider {
	return &Provider{
		Chat:      NewChatHandler(master, sessions, manager, log),
		History:   NewHistoryHandler(historyStore, log),
		Documents: NewDocumentHandler(cfg, docs, master, letters, log),
		Health:    NewHealthHandler(apis, store, log),
	}
}

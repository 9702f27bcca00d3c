//go:build wireinject

package main

import (
	"context"

	"github.com/google/wire"
	"github.com/rs/zerolog"

	"loanflow-server/internal/application/agents"
	"loanflow-server/internal/application/errorhandler"
	"loanflow-server/internal/application/sanction"
	"loanflow-server/internal/config"
	"loanflow-server/internal/domain/document"
	"loanflow-server/internal/infrastructure/apiclients"
	"loanflow-server/internal/infrastructure/contextstore"
	"loanflow-server/internal/infrastructure/logger"
	historyrepo "loanflow-server/internal/infrastructure/repository/history"
	"loanflow-server/internal/infrastructure/scheduler"
	"loanflow-server/internal/infrastructure/storage"
	"loanflow-server/internal/infrastructure/verificationstore"
	"loanflow-server/internal/interfaces/httpserver"
	"loanflow-server/internal/interfaces/httpserver/handlers"
)

var storeSet = wire.NewSet(
	contextstore.NewStore,
	verificationstore.NewStore,
	newHistoryStore,
	newHistoryRecorder,
	storage.NewLocalStorage,
	wire.Bind(new(document.Storage), new(*storage.LocalStorage)),
)

var agentSet = wire.NewSet(
	errorhandler.New,
	apiclients.NewClients,
	sanction.NewGenerator,
	agents.NewSanctionLetterAgent,
	wire.Bind(new(sanction.LetterAgent), new(*agents.SanctionLetterAgent)),
	sanction.NewWorkflow,
	agents.NewWorkerFactory,
	agents.NewSessionManager,
	agents.NewConversationManager,
	agents.NewMasterAgent,
)

// BuildApplication assembles the loan origination API with Wire.
func BuildApplication(ctx context.Context) (*Application, error) {
	wire.Build(
		config.Load,
		newLogger,
		storeSet,
		agentSet,
		document.NewService,
		handlers.NewProvider,
		httpserver.New,
		scheduler.New,
		NewApplication,
	)
	return nil, nil
}

func newLogger(cfg *config.Config) (zerolog.Logger, error) {
	return logger.New(cfg.LogLevel, cfg.LogFormat)
}

func newHistoryRecorder(store historyrepo.Store) agents.HistoryRecorder {
	return store
}

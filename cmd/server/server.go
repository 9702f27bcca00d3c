package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	gormlogger "gorm.io/gorm/logger"

	"loanflow-server/internal/application/agents"
	"loanflow-server/internal/application/errorhandler"
	"loanflow-server/internal/application/sanction"
	"loanflow-server/internal/config"
	"loanflow-server/internal/domain/document"
	"loanflow-server/internal/infrastructure/apiclients"
	"loanflow-server/internal/infrastructure/contextstore"
	"loanflow-server/internal/infrastructure/database"
	"loanflow-server/internal/infrastructure/logger"
	"loanflow-server/internal/infrastructure/observability"
	historyrepo "loanflow-server/internal/infrastructure/repository/history"
	"loanflow-server/internal/infrastructure/scheduler"
	"loanflow-server/internal/infrastructure/storage"
	"loanflow-server/internal/infrastructure/verificationstore"
	"loanflow-server/internal/interfaces/httpserver"
	"loanflow-server/internal/interfaces/httpserver/handlers"
)

// Application bundles the HTTP server with the background cleanup
// scheduler so both share one lifecycle.
type Application struct {
	httpServer *httpserver.HttpServer
	scheduler  *scheduler.Scheduler
	log        zerolog.Logger
}

func NewApplication(httpServer *httpserver.HttpServer, sched *scheduler.Scheduler, log zerolog.Logger) *Application {
	return &Application{
		httpServer: httpServer,
		scheduler:  sched,
		log:        log,
	}
}

func (a *Application) Start(ctx context.Context) error {
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return a.httpServer.Run(groupCtx)
	})
	group.Go(func() error {
		return a.scheduler.Run(groupCtx)
	})
	return group.Wait()
}

func main() {
	loadEnvFiles()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		panic(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observability.Setup(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize observability")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown telemetry")
		}
	}()

	contexts, err := contextstore.NewStore(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize context store")
	}

	verifications, err := verificationstore.NewStore(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize verification store")
	}

	historyStore, err := newHistoryStore(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize application history store")
	}

	uploadStorage, err := storage.NewLocalStorage(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize upload storage")
	}

	letterGenerator, err := sanction.NewGenerator(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize sanction letter generator")
	}

	apis := apiclients.NewClients(cfg)
	errs := errorhandler.New()
	documents := document.NewService(cfg, uploadStorage, log)

	letterAgent := agents.NewSanctionLetterAgent(errs, letterGenerator)
	approval := sanction.NewWorkflow(letterAgent, letterGenerator, log)

	factory := agents.NewWorkerFactory(errs, apis, verifications, historyStore, letterGenerator)
	sessions := agents.NewSessionManager(contexts, factory)
	manager := agents.NewConversationManager()
	master := agents.NewMasterAgent(errs, sessions, manager, apis, approval)

	provider := handlers.NewProvider(cfg, master, sessions, manager, historyStore, documents, letterGenerator, apis, uploadStorage, log)
	httpServer := httpserver.New(cfg, log, provider)
	sched := scheduler.New(cfg, contexts, verifications, approval, log)

	app := NewApplication(httpServer, sched, log)
	if err := app.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("application stopped with error")
	}

	log.Info().Msg("application exited cleanly")
}

// newHistoryStore picks Postgres when a DSN is configured and falls
// back to the local JSON store otherwise.
func newHistoryStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (historyrepo.Store, error) {
	if !cfg.UseDatabaseHistory() {
		log.Info().Str("path", cfg.HistoryStoragePath).Msg("using local application history store")
		return historyrepo.NewLocalStore(cfg.HistoryStoragePath, log)
	}

	db, err := database.Connect(database.Config{
		DSN:             cfg.DBPostgresqlDSN,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		ConnMaxLifetime: cfg.DBConnLifetime,
		LogLevel:        gormlogger.Warn,
	})
	if err != nil {
		return nil, err
	}
	if err := database.AutoMigrate(ctx, db, log); err != nil {
		return nil, err
	}
	return historyrepo.NewRepository(db), nil
}

func loadEnvFiles() {
	paths := []string{".env", "../.env"}
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Overload(path); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to load %s: %v\n", path, err)
			}
		}
	}
}

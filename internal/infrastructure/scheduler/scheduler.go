package scheduler

import (
	"context"

	"github.com/mileusna/crontab"
	"github.com/rs/zerolog"

	"loanflow-server/internal/application/sanction"
	"loanflow-server/internal/config"
	"loanflow-server/internal/infrastructure/contextstore"
	"loanflow-server/internal/infrastructure/verificationstore"
)

// Scheduler runs the retention cleanup jobs: stale conversation
// contexts hourly, expired verification records and old sanction
// letters daily.
type Scheduler struct {
	ctab     *crontab.Crontab
	cfg      *config.Config
	contexts *contextstore.Store
	records  *verificationstore.Store
	letters  *sanction.Workflow
	log      zerolog.Logger
}

func New(cfg *config.Config, contexts *contextstore.Store, records *verificationstore.Store, letters *sanction.Workflow, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		ctab:     crontab.New(),
		cfg:      cfg,
		contexts: contexts,
		records:  records,
		letters:  letters,
		log:      log.With().Str("component", "scheduler").Logger(),
	}
}

// Run installs the cleanup jobs and blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.cfg.CleanupEnabled {
		s.log.Info().Msg("cleanup jobs disabled")
		<-ctx.Done()
		return nil
	}

	if err := s.ctab.AddJob("0 * * * *", s.cleanupContexts); err != nil {
		return err
	}
	if err := s.ctab.AddJob("30 2 * * *", s.cleanupVerifications); err != nil {
		return err
	}
	if err := s.ctab.AddJob("0 3 * * *", s.cleanupSanctionLetters); err != nil {
		return err
	}

	s.log.Info().
		Dur("context_retention", s.cfg.ContextRetention).
		Int("verification_retention_days", s.cfg.VerificationRetentionDays).
		Int("sanction_retention_days", s.cfg.SanctionRetentionDays).
		Msg("cleanup jobs scheduled")

	<-ctx.Done()
	s.ctab.Shutdown()
	return nil
}

func (s *Scheduler) cleanupContexts() {
	removed, err := s.contexts.Cleanup(s.cfg.ContextRetention)
	if err != nil {
		s.log.Error().Err(err).Msg("context cleanup failed")
		return
	}
	if removed > 0 {
		s.log.Info().Int("removed", removed).Msg("expired conversation contexts removed")
	}
}

func (s *Scheduler) cleanupVerifications() {
	removed, err := s.records.Cleanup(s.cfg.VerificationRetentionDays)
	if err != nil {
		s.log.Error().Err(err).Msg("verification cleanup failed")
		return
	}
	if removed > 0 {
		s.log.Info().Int("removed", removed).Msg("expired verification records removed")
	}
}

func (s *Scheduler) cleanupSanctionLetters() {
	removed, err := s.letters.Cleanup(s.cfg.SanctionRetentionDays)
	if err != nil {
		s.log.Error().Err(err).Msg("sanction letter cleanup failed")
		return
	}
	if removed > 0 {
		s.log.Info().Int("removed", removed).Msg("old sanction letters removed")
	}
}

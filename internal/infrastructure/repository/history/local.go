package history

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	domain "loanflow-server/internal/domain/history"
)

const localFileName = "applications.json"

// LocalStore keeps application history in a JSON file. It is the
// fallback backend when no database DSN is configured.
type LocalStore struct {
	path string
	log  zerolog.Logger

	mu   sync.RWMutex
	apps []domain.Application
}

func NewLocalStore(dir string, log zerolog.Logger) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}

	s := &LocalStore{
		path: filepath.Join(dir, localFileName),
		log:  log.With().Str("component", "history-localstore").Logger(),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *LocalStore) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read history file: %w", err)
	}
	if err := json.Unmarshal(data, &s.apps); err != nil {
		// Corrupt history is not worth failing startup over.
		s.log.Warn().Err(err).Str("path", s.path).Msg("history file unreadable, starting empty")
		s.apps = nil
	}
	return nil
}

func (s *LocalStore) persistLocked() error {
	data, err := json.MarshalIndent(s.apps, "", "  ")
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write history: %w", err)
	}
	return os.Rename(tmp, s.path)
}

func (s *LocalStore) Record(app *domain.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apps = append(s.apps, *app)
	return s.persistLocked()
}

func (s *LocalStore) List(_ context.Context, status string, limit int) ([]domain.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Newest first.
	out := make([]domain.Application, 0, len(s.apps))
	for i := len(s.apps) - 1; i >= 0; i-- {
		app := s.apps[i]
		if status != "" && app.Status != status {
			continue
		}
		out = append(out, app)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *LocalStore) ByID(_ context.Context, id string) (*domain.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := len(s.apps) - 1; i >= 0; i-- {
		if s.apps[i].ID == id {
			app := s.apps[i]
			return &app, nil
		}
	}
	return nil, fmt.Errorf("loan application %s not found", id)
}

func (s *LocalStore) BySession(_ context.Context, sessionID string) (*domain.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := len(s.apps) - 1; i >= 0; i-- {
		if s.apps[i].SessionID == sessionID {
			app := s.apps[i]
			return &app, nil
		}
	}
	return nil, fmt.Errorf("no loan application for session %s", sessionID)
}

func (s *LocalStore) Summary(_ context.Context) (domain.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return summarize(s.apps), nil
}

package contextstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"loanflow-server/internal/config"
	"loanflow-server/internal/domain/conversation"
	"loanflow-server/utils/prefixid"
)

// Store persists conversation contexts as one JSON file per session and
// keeps a write-through in-memory cache. All access goes through a
// single mutex so concurrent requests on the same session cannot race
// the cache or the file.
type Store struct {
	dir   string
	log   zerolog.Logger
	mu    sync.Mutex
	cache map[string]*conversation.Context
}

// NewStore creates the storage directory and an empty cache.
func NewStore(cfg *config.Config, log zerolog.Logger) (*Store, error) {
	logger := log.With().Str("component", "context-store").Logger()

	dir := strings.TrimSpace(cfg.ContextStoragePath)
	if dir == "" {
		dir = "data/conversation_contexts"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create context storage directory: %w", err)
	}

	logger.Info().Str("path", dir).Msg("context store initialized")

	return &Store{
		dir:   dir,
		log:   logger,
		cache: make(map[string]*conversation.Context),
	}, nil
}

func (s *Store) filePath(sessionID string) string {
	return filepath.Join(s.dir, sessionID+".json")
}

// CreateSession builds a fresh context with a new session id and
// persists it.
func (s *Store) CreateSession(customerID string) (*conversation.Context, error) {
	ctx := conversation.NewContext(prefixid.Sessions.New(), customerID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.persistLocked(ctx); err != nil {
		return nil, err
	}
	s.cache[ctx.SessionID] = ctx

	s.log.Info().
		Str("session_id", ctx.SessionID).
		Str("customer_id", customerID).
		Msg("session created")
	return ctx, nil
}

// Get returns the cached context, falling back to the session file.
func (s *Store) Get(sessionID string) (*conversation.Context, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ctx, ok := s.cache[sessionID]; ok {
		return ctx, true
	}

	ctx, err := s.loadLocked(sessionID)
	if err != nil {
		return nil, false
	}
	s.cache[sessionID] = ctx
	return ctx, true
}

// Save persists the context and refreshes the cache entry.
func (s *Store) Save(ctx *conversation.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.persistLocked(ctx); err != nil {
		return err
	}
	s.cache[ctx.SessionID] = ctx
	return nil
}

// Delete evicts the session from cache and removes its file.
func (s *Store) Delete(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.cache, sessionID)
	if err := os.Remove(s.filePath(sessionID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove session file: %w", err)
	}
	return nil
}

// Recover reloads a context from disk, bypassing the cache, and stamps
// recovery info onto it.
func (s *Store) Recover(sessionID string) (*conversation.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, err := s.loadLocked(sessionID)
	if err != nil {
		return nil, err
	}
	ctx.AddCollectedData("recovery_info", map[string]any{
		"recovered_at": time.Now().UTC().Format(time.RFC3339),
		"reason":       "context restored from disk",
	})
	if err := s.persistLocked(ctx); err != nil {
		return nil, err
	}
	s.cache[sessionID] = ctx

	s.log.Info().Str("session_id", sessionID).Msg("context recovered from disk")
	return ctx, nil
}

// List returns active contexts, optionally filtered by customer,
// newest first, capped at limit.
func (s *Store) List(customerID string, limit int) []*conversation.Context {
	s.mu.Lock()
	defer s.mu.Unlock()

	var contexts []*conversation.Context
	for _, ctx := range s.cache {
		if customerID != "" && ctx.CustomerID != customerID {
			continue
		}
		contexts = append(contexts, ctx)
	}
	sort.Slice(contexts, func(i, j int) bool {
		return contexts[i].UpdatedAt.After(contexts[j].UpdatedAt)
	})
	if limit > 0 && len(contexts) > limit {
		contexts = contexts[:limit]
	}
	return contexts
}

// Count reports the number of cached sessions.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cache)
}

// Cleanup removes session files older than maxAge and evicts their
// cache entries. Returns the number of sessions removed.
func (s *Store) Cleanup(maxAge time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("read context storage directory: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil {
			s.log.Warn().Err(err).Str("file", entry.Name()).Msg("failed to remove expired session file")
			continue
		}
		delete(s.cache, strings.TrimSuffix(entry.Name(), ".json"))
		removed++
	}

	if removed > 0 {
		s.log.Info().Int("removed", removed).Msg("expired session files cleaned up")
	}
	return removed, nil
}

func (s *Store) persistLocked(ctx *conversation.Context) error {
	data, err := json.MarshalIndent(ctx, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal context: %w", err)
	}
	if err := os.WriteFile(s.filePath(ctx.SessionID), data, 0o644); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	return nil
}

func (s *Store) loadLocked(sessionID string) (*conversation.Context, error) {
	data, err := os.ReadFile(s.filePath(sessionID))
	if err != nil {
		return nil, fmt.Errorf("read session file: %w", err)
	}
	var ctx conversation.Context
	if err := json.Unmarshal(data, &ctx); err != nil {
		return nil, fmt.Errorf("unmarshal context: %w", err)
	}
	return &ctx, nil
}

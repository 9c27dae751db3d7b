package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"datalens-core/internal/domain/repository"
)

const (
	assistantName         = "Data Analysis Assistant"
	assistantInstructions = "You are a senior data analyst. Analyze the attached dataset and " +
		"answer questions about it. When a visualization helps, emit each chart as a JSON " +
		"object between CHART_START and CHART_END markers with id, type, title, description, " +
		"data and config fields. Scatter charts must include every row of the dataset with " +
		"no aggregation; other chart types should aggregate by category or time bucket."
)

type cacheEntry struct {
	id       string
	cachedAt time.Time
}

func (e cacheEntry) fresh(now time.Time, ttl time.Duration) bool {
	return e.id != "" && now.Sub(e.cachedAt) < ttl
}

// SessionCache memoizes the remote assistant and thread handles so repeated
// operations within the TTL reuse the same remote objects. It is owned by one
// Orchestrator instance; there are no package-level singletons.
type SessionCache struct {
	api repository.AssistantAPI
	ttl time.Duration
	log *slog.Logger
	now func() time.Time

	mu        sync.Mutex
	assistant cacheEntry
	thread    cacheEntry
}

func NewSessionCache(api repository.AssistantAPI, ttl time.Duration, log *slog.Logger) *SessionCache {
	return &SessionCache{
		api: api,
		ttl: ttl,
		log: log,
		now: time.Now,
	}
}

// GetOrCreateAssistant returns the cached assistant id, creating a new remote
// assistant when none is cached or the entry has outlived the TTL.
func (s *SessionCache) GetOrCreateAssistant(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.assistant.fresh(s.now(), s.ttl) {
		return s.assistant.id, nil
	}

	id, err := s.api.CreateAssistant(ctx, assistantName, assistantInstructions)
	if err != nil {
		return "", err
	}
	s.assistant = cacheEntry{id: id, cachedAt: s.now()}
	s.log.Info("created remote assistant", "assistant_id", id)
	return id, nil
}

// GetOrCreateThread returns the cached thread id, creating a new remote
// thread on expiry. A fresh entry supersedes the old one; expired handles are
// never mutated in place.
func (s *SessionCache) GetOrCreateThread(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.thread.fresh(s.now(), s.ttl) {
		return s.thread.id, nil
	}

	id, err := s.api.CreateThread(ctx)
	if err != nil {
		return "", err
	}
	s.thread = cacheEntry{id: id, cachedAt: s.now()}
	s.log.Info("created remote thread", "thread_id", id)
	return id, nil
}

// Active reports whether a usable thread is currently cached.
func (s *SessionCache) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.thread.fresh(s.now(), s.ttl)
}

// Reset drops both cached handles.
func (s *SessionCache) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assistant = cacheEntry{}
	s.thread = cacheEntry{}
}

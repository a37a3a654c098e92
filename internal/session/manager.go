package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/loqalabs/loqa-translate/internal/config"
	"github.com/loqalabs/loqa-translate/internal/convlog"
	"github.com/loqalabs/loqa-translate/internal/recognition"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionClosed   = errors.New("session closed")
	ErrTooManySessions = errors.New("too many sessions")
)

// SourceFactory returns the capture source for a new session, or nil when
// speech capture is unavailable.
type SourceFactory func(sessionID string) recognition.Source

type ManagerOptions struct {
	Config        config.SessionConfig
	ClientTimeout time.Duration
	Sources       SourceFactory
	Translator    Translator
	Store         convlog.Store
	Publisher     Publisher
	Logger        *slog.Logger
}

type Manager struct {
	opts   ManagerOptions
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(opts ManagerOptions) *Manager {
	return &Manager{
		opts:     opts,
		logger:   opts.Logger.With(slog.String("component", "session-manager")),
		sessions: make(map[string]*Session),
	}
}

// Create starts a session. Empty languages fall back to the configured
// defaults.
func (m *Manager) Create(sourceLang, targetLang string) (*Session, error) {
	if sourceLang == "" {
		sourceLang = m.opts.Config.SourceLang
	}
	if targetLang == "" {
		targetLang = m.opts.Config.TargetLang
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if limit := m.opts.Config.MaxSessions; limit > 0 && len(m.sessions) >= limit {
		return nil, fmt.Errorf("%w: limit is %d", ErrTooManySessions, limit)
	}

	id := uuid.NewString()
	var source recognition.Source
	if m.opts.Sources != nil {
		source = m.opts.Sources(id)
	}
	s := New(Options{
		ID:            id,
		SourceLang:    sourceLang,
		TargetLang:    targetLang,
		Policy:        m.opts.Config.Policy,
		ClientTimeout: m.opts.ClientTimeout,
		Source:        source,
		Translator:    m.opts.Translator,
		Store:         m.opts.Store,
		Publisher:     m.opts.Publisher,
		Logger:        m.opts.Logger,
	})
	m.sessions[id] = s
	m.logger.Info("session created", slog.String("session_id", id),
		slog.String("source_lang", sourceLang), slog.String("target_lang", targetLang))
	return s, nil
}

func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Remove closes the session and forgets its conversation log.
func (m *Manager) Remove(ctx context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	s.Close()
	if err := m.opts.Store.Forget(ctx, id); err != nil {
		return fmt.Errorf("forget session log: %w", err)
	}
	m.logger.Info("session removed", slog.String("session_id", id))
	return nil
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close closes every session. Logs are kept.
func (m *Manager) Close() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for id, s := range m.sessions {
		sessions = append(sessions, s)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Close()
		}()
	}
	wg.Wait()
}

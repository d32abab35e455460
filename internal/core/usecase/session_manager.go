package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/museum-docent/internal/core/domain"
	"github.com/kirillkom/museum-docent/internal/core/ports"
)

// SessionDeps are the collaborators shared by every docent session.
type SessionDeps struct {
	Model  ports.ChatModel
	Images ports.ImageSource
	Router *ToolRouter
	Now    func() time.Time
}

// SessionManager owns the live docent sessions.
type SessionManager struct {
	database     *domain.ArtifactSet
	guideProgram string
	deps         SessionDeps
	ttl          time.Duration
	logger       *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*DocentSession
}

func NewSessionManager(database *domain.ArtifactSet, guideProgram string, deps SessionDeps, ttl time.Duration) *SessionManager {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &SessionManager{
		database:     database,
		guideProgram: guideProgram,
		deps:         deps,
		ttl:          ttl,
		logger:       slog.Default(),
		sessions:     make(map[string]*DocentSession),
	}
}

func (m *SessionManager) WithLogger(logger *slog.Logger) *SessionManager {
	if logger != nil {
		m.logger = logger
	}
	return m
}

// Create starts a session on its own copy of the catalog and presents the first artifact.
func (m *SessionManager) Create(ctx context.Context) (*DocentSession, error) {
	session := newDocentSession(uuid.NewString(), m.database.Clone(), m.guideProgram, m.deps)
	if err := session.Move(ctx, true); err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}

	m.mu.Lock()
	m.sessions[session.ID()] = session
	m.mu.Unlock()
	return session, nil
}

func (m *SessionManager) Get(id string) (*DocentSession, error) {
	m.mu.RLock()
	session, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, domain.WrapError(domain.ErrSessionNotFound, "get session", fmt.Errorf("id=%s", id))
	}
	return session, nil
}

func (m *SessionManager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return domain.WrapError(domain.ErrSessionNotFound, "delete session", fmt.Errorf("id=%s", id))
	}
	delete(m.sessions, id)
	return nil
}

func (m *SessionManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// EvictIdle drops sessions unused for longer than the ttl and returns how many were removed.
func (m *SessionManager) EvictIdle() int {
	deadline := m.deps.Now().Add(-m.ttl)

	m.mu.Lock()
	defer m.mu.Unlock()
	evicted := 0
	for id, session := range m.sessions {
		if session.LastActive().Before(deadline) {
			delete(m.sessions, id)
			evicted++
		}
	}
	return evicted
}

// Run evicts idle sessions until ctx is cancelled.
func (m *SessionManager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.EvictIdle(); n > 0 {
				m.logger.Info("sessions_evicted", "count", n, "active", m.Len())
			}
		}
	}
}

// Start creates a session and returns its first view.
func (m *SessionManager) Start(ctx context.Context) (domain.SessionView, error) {
	session, err := m.Create(ctx)
	if err != nil {
		return domain.SessionView{}, err
	}
	return session.View(), nil
}

func (m *SessionManager) View(id string) (domain.SessionView, error) {
	session, err := m.Get(id)
	if err != nil {
		return domain.SessionView{}, err
	}
	return session.View(), nil
}

func (m *SessionManager) Move(ctx context.Context, id string, next bool) (domain.SessionView, error) {
	session, err := m.Get(id)
	if err != nil {
		return domain.SessionView{}, err
	}
	if err := session.Move(ctx, next); err != nil {
		return domain.SessionView{}, err
	}
	return session.View(), nil
}

func (m *SessionManager) Answer(ctx context.Context, id, input string) (string, domain.SessionView, error) {
	session, err := m.Get(id)
	if err != nil {
		return "", domain.SessionView{}, err
	}
	reply, err := session.Answer(ctx, input)
	if err != nil {
		return "", domain.SessionView{}, err
	}
	return reply, session.View(), nil
}

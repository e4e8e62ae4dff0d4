package session

import (
	"context"
	"sort"
	"sync"

	"stacingest/domain/core"
	"stacingest/domain/ingest"
	"stacingest/internal"
	apperrors "stacingest/internal/errors"
	"stacingest/internal/reconcile"
	"stacingest/internal/submission"
	"stacingest/ports"
)

// ManagerConfig holds what every new session is built from. Repository
// may be nil, in which case sessions live only in memory.
type ManagerConfig struct {
	Validator  reconcile.Validator
	Resolver   Resolver
	Submission submission.Deps
	Repository ports.SessionRepository
	Logger     *internal.Logger
}

// Manager creates, caches and persists sessions
type Manager struct {
	mu       sync.RWMutex
	sessions map[core.SessionID]*Session
	cfg      ManagerConfig
	logger   *internal.Logger
}

// NewManager creates a manager
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = internal.DefaultLogger
	}
	if cfg.Submission.Logger == nil {
		cfg.Submission.Logger = cfg.Logger
	}
	return &Manager{
		sessions: make(map[core.SessionID]*Session),
		cfg:      cfg,
		logger:   cfg.Logger,
	}
}

// Create starts an empty session owned by owner
func (m *Manager) Create(ctx context.Context, typ ingest.IngestionType, strict bool, owner string) (*Session, error) {
	if !typ.Valid() {
		return nil, apperrors.InvalidInput("ingestion type must be dataset or collection")
	}
	s, err := m.build(core.NewSessionID(), typ, strict, owner)
	if err != nil {
		return nil, err
	}
	s.updatedAt = core.Now()

	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()

	m.logger.Info("[SessionManager] created %s session %s for %s", typ, s.id, owner)
	if err := m.Save(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Get returns a cached session, restoring it from the repository when
// needed
func (m *Manager) Get(ctx context.Context, id core.SessionID) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if ok {
		return s, nil
	}
	if m.cfg.Repository == nil {
		return nil, core.ErrSessionNotFound
	}

	rec, err := m.cfg.Repository.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s, err = m.restore(rec)
	if err != nil {
		return nil, apperrors.Wrapf(err, "restore session %s", id)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.sessions[id]; ok {
		return existing, nil
	}
	m.sessions[id] = s
	m.logger.Debug("[SessionManager] restored session %s", id)
	return s, nil
}

// Save persists a snapshot of s
func (m *Manager) Save(ctx context.Context, s *Session) error {
	if m.cfg.Repository == nil {
		return nil
	}
	if err := m.cfg.Repository.Save(ctx, s.Record()); err != nil {
		m.logger.Error("[SessionManager] save session %s: %v", s.id, err)
		return err
	}
	return nil
}

// Delete drops the session from memory and storage
func (m *Manager) Delete(ctx context.Context, id core.SessionID) error {
	m.mu.Lock()
	s, cached := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if cached {
		s.Clear()
	}
	if m.cfg.Repository != nil {
		if err := m.cfg.Repository.Delete(ctx, id); err != nil {
			if cached && core.IsNotFoundError(err) {
				return nil
			}
			return err
		}
		return nil
	}
	if !cached {
		return core.ErrSessionNotFound
	}
	return nil
}

// List returns persisted sessions, most recent first, or the cached ones
// when there is no repository
func (m *Manager) List(ctx context.Context, limit int) ([]*ports.SessionRecord, error) {
	if m.cfg.Repository != nil {
		return m.cfg.Repository.List(ctx, limit)
	}

	m.mu.RLock()
	out := make([]*ports.SessionRecord, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.Record())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.UnixMilli() > out[j].UpdatedAt.UnixMilli() })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Manager) build(id core.SessionID, typ ingest.IngestionType, strict bool, owner string) (*Session, error) {
	engine, err := reconcile.New(reconcile.Options{
		Type:      typ,
		Validator: m.cfg.Validator,
		Strict:    strict,
	})
	if err != nil {
		return nil, apperrors.Wrap(err, "create reconciliation engine")
	}
	return &Session{
		id:       id,
		owner:    owner,
		engine:   engine,
		orch:     submission.New(typ, m.cfg.Submission),
		resolver: m.cfg.Resolver,
		logger:   m.logger,
	}, nil
}

func (m *Manager) restore(rec *ports.SessionRecord) (*Session, error) {
	s, err := m.build(rec.ID, rec.IngestionType, rec.Strict, rec.Owner)
	if err != nil {
		return nil, err
	}

	snap := reconcile.Snapshot{
		Document:  rec.Document,
		Summaries: rec.Summaries,
		Strict:    rec.Strict,
	}
	for _, ext := range rec.Extensions {
		snap.Extensions = append(snap.Extensions, fromExtensionRecord(ext))
	}
	if rec.Edit != nil {
		identity, ok := rec.IngestionType.Identity(rec.Document)
		if !ok {
			return nil, core.ErrMissingIdentity
		}
		snap.Identity, snap.Editing = identity, true
		s.orch.SetEdit(rec.Edit)
	}
	if snap.Document == nil {
		snap.Document = ingest.Document{}
	}
	if err := s.engine.Restore(snap); err != nil {
		return nil, err
	}
	s.updatedAt = rec.UpdatedAt
	return s, nil
}

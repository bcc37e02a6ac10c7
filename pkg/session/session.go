// Package session keeps one focus engine per monitored subject.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-focus/pkg/focus"
	"github.com/teslashibe/go-focus/pkg/frame"
)

// DefaultID is the session used by requests that do not name one.
const DefaultID = "default"

// ErrNotFound is returned for unknown session ids.
var ErrNotFound = errors.New("session not found")

// Factory builds the engine for a new session.
type Factory func(id string) *focus.Engine

// Observer is notified after every analyzed frame.
type Observer interface {
	Observe(id string, res focus.Result)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(id string, res focus.Result)

func (f ObserverFunc) Observe(id string, res focus.Result) { f(id, res) }

// Session is one engine plus the lock that serializes its frames.
type Session struct {
	ID      string
	Created time.Time

	mu       sync.Mutex
	engine   *focus.Engine
	lastSeen time.Time
}

// Info describes a session for listings.
type Info struct {
	ID       string      `json:"id"`
	Created  time.Time   `json:"created"`
	LastSeen time.Time   `json:"last_seen"`
	Stats    focus.Stats `json:"stats"`
}

// Manager owns the sessions.
type Manager struct {
	mu        sync.RWMutex
	sessions  map[string]*Session
	factory   Factory
	observers []Observer
	onRemove  []func(id string)
	idleTTL   time.Duration
	now       func() time.Time
	log       *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithIdleTTL evicts sessions idle for longer than ttl when Run is active.
func WithIdleTTL(ttl time.Duration) Option {
	return func(m *Manager) { m.idleTTL = ttl }
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// WithObserver registers an observer for analyzed frames.
func WithObserver(o Observer) Option {
	return func(m *Manager) { m.observers = append(m.observers, o) }
}

// WithOnRemove registers fn to run after a session is deleted or evicted.
func WithOnRemove(fn func(id string)) Option {
	return func(m *Manager) { m.onRemove = append(m.onRemove, fn) }
}

// NewManager creates a manager; the default session is created lazily.
func NewManager(factory Factory, opts ...Option) *Manager {
	m := &Manager{
		sessions: make(map[string]*Session),
		factory:  factory,
		idleTTL:  30 * time.Minute,
		now:      time.Now,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create starts a new session with a random id.
func (m *Manager) Create() *Session {
	return m.create(uuid.NewString())
}

func (m *Manager) create(id string) *Session {
	now := m.now()
	s := &Session{ID: id, Created: now, lastSeen: now, engine: m.factory(id)}

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	m.log.Info("session created", "session", id)
	return s
}

// Get returns the session with id. The default session always exists.
func (m *Manager) Get(id string) (*Session, error) {
	if id == "" || id == DefaultID {
		return m.Default(), nil
	}
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Default returns the default session, creating it on first use.
func (m *Manager) Default() *Session {
	m.mu.RLock()
	s, ok := m.sessions[DefaultID]
	m.mu.RUnlock()
	if ok {
		return s
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[DefaultID]; ok {
		return s
	}
	now := m.now()
	s = &Session{ID: DefaultID, Created: now, lastSeen: now, engine: m.factory(DefaultID)}
	m.sessions[DefaultID] = s
	return s
}

// Delete removes a session. Deleting the default session resets it.
func (m *Manager) Delete(id string) error {
	if id == "" {
		id = DefaultID
	}
	m.mu.Lock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok && id != DefaultID {
		return ErrNotFound
	}
	m.log.Info("session deleted", "session", id)
	m.removed(id)
	return nil
}

func (m *Manager) removed(id string) {
	for _, fn := range m.onRemove {
		fn(id)
	}
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// List describes every session, ordered by id.
func (m *Manager) List() []Info {
	m.mu.RLock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.mu.RUnlock()

	out := make([]Info, 0, len(all))
	for _, s := range all {
		s.mu.Lock()
		out = append(out, Info{ID: s.ID, Created: s.Created, LastSeen: s.lastSeen, Stats: s.engine.Stats()})
		s.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Analyze runs one frame through the session's engine. Frames for the same
// session are processed one at a time.
func (m *Manager) Analyze(id string, f *frame.Frame) (focus.Result, error) {
	s, err := m.Get(id)
	if err != nil {
		return focus.Result{}, err
	}
	res := s.Analyze(f, m.now())
	for _, o := range m.observers {
		o.Observe(s.ID, res)
	}
	return res, nil
}

// AnalyzeBytes decodes data and analyzes it in session id.
func (m *Manager) AnalyzeBytes(id string, data []byte) (focus.Result, error) {
	s, err := m.Get(id)
	if err != nil {
		return focus.Result{}, err
	}
	s.mu.Lock()
	s.lastSeen = m.now()
	res := s.engine.AnalyzeBytes(data)
	s.mu.Unlock()
	for _, o := range m.observers {
		o.Observe(s.ID, res)
	}
	return res, nil
}

// Analyze runs f through the engine under the session lock.
func (s *Session) Analyze(f *frame.Frame, now time.Time) focus.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = now
	return s.engine.Analyze(f)
}

// Stats returns the engine's stats summary.
func (s *Session) Stats() focus.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Stats()
}

// Overlay returns the annotations of the session's last frame.
func (s *Session) Overlay() (focus.Overlay, focus.SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Overlay(), s.engine.Session()
}

// LastSeen returns when the session last analyzed a frame.
func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// Evict removes non-default sessions idle for longer than the TTL and
// returns their ids.
func (m *Manager) Evict() []string {
	if m.idleTTL <= 0 {
		return nil
	}
	cutoff := m.now().Add(-m.idleTTL)

	// LastSeen waits on a session mid-analysis, so idle sessions are found
	// without holding the manager lock.
	m.mu.RLock()
	candidates := make(map[string]*Session, len(m.sessions))
	for id, s := range m.sessions {
		if id != DefaultID {
			candidates[id] = s
		}
	}
	m.mu.RUnlock()

	var idle []string
	for id, s := range candidates {
		if s.LastSeen().Before(cutoff) {
			idle = append(idle, id)
		}
	}
	if len(idle) == 0 {
		return nil
	}

	m.mu.Lock()
	evicted := idle[:0]
	for _, id := range idle {
		if m.sessions[id] == candidates[id] {
			delete(m.sessions, id)
			evicted = append(evicted, id)
		}
	}
	m.mu.Unlock()

	sort.Strings(evicted)
	for _, id := range evicted {
		m.log.Info("session evicted", "session", id, "idle_ttl", m.idleTTL)
		m.removed(id)
	}
	return evicted
}

// Run evicts idle sessions every interval until ctx is cancelled.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Evict()
		}
	}
}

package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dpup/prefab/errors"
	"github.com/dpup/prefab/logging"
	"github.com/google/uuid"

	"github.com/dpup/rooftrace/server/internal/cache"
	"github.com/dpup/rooftrace/server/internal/clients/simulation"
	"github.com/dpup/rooftrace/server/internal/config"
	"github.com/dpup/rooftrace/server/internal/lib/area"
	"github.com/dpup/rooftrace/server/internal/lib/capture"
	"github.com/dpup/rooftrace/server/internal/metrics"
)

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrNoResult         = errors.New("no simulation result for the current outline")
	ErrOutlineChanged   = errors.New("outline was cleared while the simulation was running")
	ErrSimulationFailed = errors.New("simulation failed")
)

// Simulator runs the energy simulation for an outline
type Simulator interface {
	Calculate(ctx context.Context, request simulation.CalculationRequest) (*simulation.Results, error)
}

// Session is one user's outline capture, held in memory until deleted or
// idle for longer than the configured timeout
type Session struct {
	ID        string
	Store     *capture.Store
	CreatedAt time.Time

	mu       sync.Mutex
	settings simulation.Settings
	lastSeen time.Time

	// bumped on every invalidation, so a calculation that raced a clear
	// does not cache a result for the old outline
	generation atomic.Uint64
}

// Settings returns the session's current simulation settings
func (s *Session) Settings() simulation.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = now
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// SessionService owns the capture sessions and connects them to the area
// engine, the simulation backend and the result cache
type SessionService struct {
	config    *config.Config
	simulator Simulator
	cache     *cache.Cache
	engine    area.Engine
	after     capture.AfterFunc
	now       func() time.Time
	ctx       context.Context // outlives requests; stores log through it

	mu       sync.RWMutex
	sessions map[string]*Session
}

// Option configures a SessionService
type Option func(*SessionService)

// WithEngine shares an area engine between all sessions
func WithEngine(e area.Engine) Option {
	return func(s *SessionService) { s.engine = e }
}

// WithAfterFunc replaces the click-coalescing timer of new sessions
func WithAfterFunc(after capture.AfterFunc) Option {
	return func(s *SessionService) { s.after = after }
}

// WithClock replaces time.Now for idle tracking
func WithClock(now func() time.Time) Option {
	return func(s *SessionService) { s.now = now }
}

// NewSessionService creates a new SessionService
func NewSessionService(cfg *config.Config, simulator Simulator, resultCache *cache.Cache, opts ...Option) *SessionService {
	s := &SessionService{
		config:    cfg,
		simulator: simulator,
		cache:     resultCache,
		after:     capture.RealAfterFunc,
		now:       time.Now,
		ctx:       logging.EnsureLogger(context.Background()),
		sessions:  make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.engine == nil {
		s.engine = area.NewEngine()
	}
	return s
}

// CreateSession starts an empty capture session. Nil settings use the
// configured defaults.
func (s *SessionService) CreateSession(ctx context.Context, settings *simulation.Settings) (*Session, error) {
	ctx = logging.EnsureLogger(ctx)
	effective := s.config.Simulation.Defaults
	if settings != nil {
		effective = *settings
	}
	if err := effective.ValidateRanges(); err != nil {
		return nil, fmt.Errorf("%w: %v", simulation.ErrInvalidSettings, err)
	}

	now := s.now()
	sess := &Session{
		ID:        uuid.NewString(),
		CreatedAt: now,
		settings:  effective,
		lastSeen:  now,
	}

	resultInvalidator := s.cache.ResultInvalidator(sess.ID)
	sess.Store = capture.NewStore(
		capture.WithContext(s.ctx),
		capture.WithEngine(s.engine),
		capture.WithDebounceWindow(s.config.Capture.DebounceWindow),
		capture.WithAfterFunc(s.after),
		capture.WithThreshold(effective.MonthlyBill),
		capture.WithInvalidator(capture.InvalidatorFunc(func() {
			sess.generation.Add(1)
			resultInvalidator.Invalidate()
		})),
	)

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	count := len(s.sessions)
	s.mu.Unlock()

	metrics.ActiveSessions.Set(float64(count))
	logging.Infow(ctx, "Session created", "session_id", sess.ID, "active_sessions", count)
	return sess, nil
}

// GetSession looks up a session and marks it as active
func (s *SessionService) GetSession(id string) (*Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrSessionNotFound
	}
	sess.touch(s.now())
	return sess, nil
}

// DeleteSession drops a session together with its cached result
func (s *SessionService) DeleteSession(ctx context.Context, id string) error {
	ctx = logging.EnsureLogger(ctx)
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	count := len(s.sessions)
	s.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}

	// Clearing cancels a pending click timer and invalidates the result.
	sess.Store.ClearPolygon()
	metrics.ActiveSessions.Set(float64(count))
	logging.Infow(ctx, "Session deleted", "session_id", id, "active_sessions", count)
	return nil
}

// SessionCount returns the number of live sessions
func (s *SessionService) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// UpdateSettings replaces the session settings and feeds the monthly bill to
// the store as its threshold
func (s *SessionService) UpdateSettings(sess *Session, settings simulation.Settings) error {
	if err := settings.ValidateRanges(); err != nil {
		return fmt.Errorf("%w: %v", simulation.ErrInvalidSettings, err)
	}

	sess.mu.Lock()
	sess.settings = settings
	sess.mu.Unlock()

	sess.Store.SetThreshold(settings.MonthlyBill)
	return nil
}

// Calculate sends the session's outline to the simulation backend and caches
// the result until the outline is cleared or the TTL passes
func (s *SessionService) Calculate(ctx context.Context, sess *Session) (*simulation.Results, error) {
	ctx = logging.EnsureLogger(ctx)
	generation := sess.generation.Load()

	request, err := simulation.BuildRequest(sess.Store.Points(), sess.Settings())
	if err != nil {
		return nil, err
	}

	results, err := s.simulator.Calculate(ctx, request)
	if err != nil {
		logging.Warnw(ctx, "Simulation failed", "session_id", sess.ID, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrSimulationFailed, err)
	}

	if sess.generation.Load() != generation {
		logging.Infow(ctx, "Discarding simulation result for cleared outline", "session_id", sess.ID)
		return nil, ErrOutlineChanged
	}

	if err := s.cache.SetResult(sess.ID, results, s.config.Sessions.ResultTTL); err != nil {
		logging.Errorw(ctx, "Failed to cache simulation result", "session_id", sess.ID, "error", err)
	}

	logging.Infow(ctx, "Simulation completed",
		"session_id", sess.ID,
		"roof_area_sqm", results.SiteDetails.RoofAreaSqm,
		"system_size_kwp", results.EnergyOutput.RecommendedSystemSizeKwp)
	return results, nil
}

// Result returns the cached simulation result of a session
func (s *SessionService) Result(sess *Session) (*simulation.Results, time.Time, error) {
	results, createdAt, found, err := s.cache.GetResult(sess.ID)
	if err != nil {
		return nil, time.Time{}, err
	}
	if !found {
		return nil, time.Time{}, ErrNoResult
	}
	return results, createdAt, nil
}

// ReapIdle deletes sessions idle for longer than the configured timeout
func (s *SessionService) ReapIdle(ctx context.Context) int {
	ctx = logging.EnsureLogger(ctx)
	cutoff := s.now().Add(-s.config.Sessions.IdleTimeout)

	s.mu.Lock()
	var idle []*Session
	for id, sess := range s.sessions {
		if sess.idleSince().Before(cutoff) {
			idle = append(idle, sess)
			delete(s.sessions, id)
		}
	}
	count := len(s.sessions)
	s.mu.Unlock()

	for _, sess := range idle {
		sess.Store.ClearPolygon()
		logging.Debugw(ctx, "Session expired", "session_id", sess.ID, "created_at", sess.CreatedAt)
	}
	metrics.ActiveSessions.Set(float64(count))
	return len(idle)
}

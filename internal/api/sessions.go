package api

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wesm/livefind/internal/livesearch"
)

// CoordinatorFactory creates a ready coordinator that publishes to pub.
type CoordinatorFactory func(pub livesearch.Publisher) (*livesearch.Coordinator, error)

var (
	errSessionNotFound = errors.New("session not found")
	errTooManySessions = errors.New("too many open sessions")
	errStreamActive    = errors.New("session already has an event stream")
)

// Session limits.
const (
	defaultMaxSessions = 64
	defaultSessionTTL  = 10 * time.Minute
	sessionEventBuffer = 16
)

// session is one client's live search: a coordinator plus the stream its
// publications go to. It records the newest publication for clients that
// poll instead of streaming.
type session struct {
	id     string
	coord  *livesearch.Coordinator
	events *livesearch.ChannelPublisher

	mu        sync.Mutex
	last      livesearch.Event
	lastUsed  time.Time
	streaming bool
}

func (s *session) OnResultsPublished(cookie uint64, rs *livesearch.ResultSet) {
	s.record(livesearch.Event{Kind: livesearch.EventResults, Cookie: cookie, Results: rs})
	s.events.OnResultsPublished(cookie, rs)
}

func (s *session) OnResultsCleared(cookie uint64) {
	s.record(livesearch.Event{Kind: livesearch.EventCleared, Cookie: cookie})
	s.events.OnResultsCleared(cookie)
}

func (s *session) OnQueryFailed(cookie uint64, err error) {
	s.record(livesearch.Event{Kind: livesearch.EventFailed, Cookie: cookie, Err: err})
	s.events.OnQueryFailed(cookie, err)
}

func (s *session) record(ev livesearch.Event) {
	s.mu.Lock()
	s.last = ev
	s.mu.Unlock()
}

func (s *session) touch(now time.Time) {
	s.mu.Lock()
	s.lastUsed = now
	s.mu.Unlock()
}

func (s *session) lastEvent() livesearch.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// claimStream marks the session as streamed; only one stream may read the
// event channel.
func (s *session) claimStream() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.streaming {
		return false
	}
	s.streaming = true
	return true
}

func (s *session) releaseStream() {
	s.mu.Lock()
	s.streaming = false
	s.mu.Unlock()
}

// sessionManager owns the open sessions.
type sessionManager struct {
	factory CoordinatorFactory
	max     int
	ttl     time.Duration
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
	pending  int // slots reserved by creates still in the factory
}

func newSessionManager(factory CoordinatorFactory) *sessionManager {
	return &sessionManager{
		factory:  factory,
		max:      defaultMaxSessions,
		ttl:      defaultSessionTTL,
		now:      time.Now,
		sessions: make(map[string]*session),
	}
}

// create reserves a slot before running the factory so concurrent creates
// cannot overshoot max while coordinators are being primed.
func (m *sessionManager) create() (*session, error) {
	m.mu.Lock()
	if len(m.sessions)+m.pending >= m.max {
		m.mu.Unlock()
		return nil, errTooManySessions
	}
	m.pending++
	m.mu.Unlock()

	s := &session{
		id:       uuid.NewString(),
		events:   livesearch.NewChannelPublisher(sessionEventBuffer),
		lastUsed: m.now(),
	}
	coord, err := m.factory(s)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending--
	if err != nil {
		return nil, err
	}
	s.coord = coord
	m.sessions[s.id] = s
	return s, nil
}

func (m *sessionManager) get(id string) (*session, error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return nil, errSessionNotFound
	}
	s.touch(m.now())
	return s, nil
}

func (m *sessionManager) close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return errSessionNotFound
	}
	s.coord.Close()
	return nil
}

func (m *sessionManager) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// reapIdle closes sessions unused for longer than the TTL. Streaming
// sessions are kept.
func (m *sessionManager) reapIdle() int {
	cutoff := m.now().Add(-m.ttl)
	var idle []*session

	m.mu.Lock()
	for id, s := range m.sessions {
		s.mu.Lock()
		expired := !s.streaming && s.lastUsed.Before(cutoff)
		s.mu.Unlock()
		if expired {
			idle = append(idle, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range idle {
		s.coord.Close()
	}
	return len(idle)
}

func (m *sessionManager) closeAll() {
	m.mu.Lock()
	all := m.sessions
	m.sessions = make(map[string]*session)
	m.mu.Unlock()
	for _, s := range all {
		s.coord.Close()
	}
}

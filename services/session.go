package services

import (
	"sync"
	"time"

	"github.com/marciolins2020/reddata-sovereign-ai-sub000/models"
)

// SessionState is the chat session controller's state.
type SessionState int

const (
	StateIdle SessionState = iota
	StateComposing
	StateSending
	StateStreaming
	StateBlocked
	StateErrored
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateComposing:
		return "composing"
	case StateSending:
		return "sending"
	case StateStreaming:
		return "streaming"
	case StateBlocked:
		return "blocked"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// ChatSession holds the per-session controller state: the visible transcript,
// the rate limiter and the one-shot flags. One session exists per identity
// scope and is discarded after the idle TTL, which resets the warning state
// exactly like a page reload does.
type ChatSession struct {
	mu sync.Mutex

	state      SessionState
	limiter    *RateLimiter
	transcript []models.ChatMessage

	// warningShown marks the one-time 90% usage warning for this session.
	warningShown bool
	// signInPromptShown marks the sign-in prompt for the current anonymous
	// exhaustion episode. Reset by a successful exchange.
	signInPromptShown bool

	lastActive time.Time
}

// State returns the controller's current state.
func (s *ChatSession) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Transcript returns a copy of the session's visible transcript.
func (s *ChatSession) Transcript() []models.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ChatMessage, len(s.transcript))
	copy(out, s.transcript)
	return out
}

// SessionRegistry hands out chat sessions keyed by identity scope and prunes
// sessions idle past their TTL.
type SessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*ChatSession
	interval time.Duration
	ttl      time.Duration
}

// NewSessionRegistry creates a registry whose sessions rate-limit sends at the
// given interval and expire after the idle TTL.
func NewSessionRegistry(interval, ttl time.Duration) *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[string]*ChatSession),
		interval: interval,
		ttl:      ttl,
	}
}

// Session returns the identity's chat session, creating it on first use.
func (r *SessionRegistry) Session(identity models.Identity) *ChatSession {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.pruneLocked()

	key := identity.ScopeKey()
	session, ok := r.sessions[key]
	if !ok {
		session = &ChatSession{
			state:   StateIdle,
			limiter: NewRateLimiter(r.interval),
		}
		r.sessions[key] = session
	}
	session.lastActive = time.Now()
	return session
}

// Close discards the identity's session. A closed and reopened widget starts
// from a clean transcript and fresh one-shot flags.
func (r *SessionRegistry) Close(identity models.Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, identity.ScopeKey())
}

func (r *SessionRegistry) pruneLocked() {
	if r.ttl <= 0 {
		return
	}
	cutoff := time.Now().Add(-r.ttl)
	for key, session := range r.sessions {
		if session.lastActive.Before(cutoff) {
			delete(r.sessions, key)
		}
	}
}

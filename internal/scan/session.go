package scan

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrThrottled is returned for a decode submitted inside the throttle window.
var ErrThrottled = errors.New("scan submitted too soon")

// Session accumulates a borrower and a basket between scans.
type Session struct {
	mu       sync.Mutex
	id       string
	personID string
	basket   []Entry
	throttle *Throttle
	lastSeen time.Time
}

// SessionView is a snapshot of a session.
type SessionView struct {
	ID       string    `json:"id"`
	PersonID string    `json:"person_id,omitempty"`
	Basket   []Entry   `json:"basket"`
	LastSeen time.Time `json:"last_seen"`
}

func (s *Session) view() SessionView {
	basket := make([]Entry, len(s.basket))
	copy(basket, s.basket)
	return SessionView{ID: s.id, PersonID: s.personID, Basket: basket, LastSeen: s.lastSeen}
}

// add puts quantity more of e's target in the basket.
func (s *Session) add(e Entry) {
	for i := range s.basket {
		if s.basket[i].Target() == e.Target() {
			s.basket[i].Quantity += e.Quantity
			return
		}
	}
	s.basket = append(s.basket, e)
}

// Registry holds open sessions and forgets them after ttl of inactivity.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	ttl      time.Duration
	interval time.Duration
	now      func() time.Time
}

// NewRegistry returns a registry whose sessions admit one decode per interval.
func NewRegistry(ttl, interval time.Duration) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		interval: interval,
		now:      time.Now,
	}
}

// Open starts a new session.
func (r *Registry) Open() SessionView {
	s := &Session{
		id:       uuid.NewString(),
		basket:   []Entry{},
		throttle: NewThrottle(r.interval),
		lastSeen: r.now(),
	}

	r.mu.Lock()
	r.sessions[s.id] = s
	r.mu.Unlock()
	return s.view()
}

// get returns a live session and marks it as used.
func (r *Registry) get(id string) (*Session, bool) {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ttl > 0 && now.Sub(s.lastSeen) > r.ttl {
		delete(r.sessions, id)
		return nil, false
	}
	s.lastSeen = now
	return s, true
}

// Close forgets a session.
func (r *Registry) Close(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[id]
	delete(r.sessions, id)
	return ok
}

// Len returns the number of open sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep drops sessions idle for longer than ttl.
func (r *Registry) Sweep() int {
	if r.ttl <= 0 {
		return 0
	}
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	dropped := 0
	for id, s := range r.sessions {
		s.mu.Lock()
		idle := now.Sub(s.lastSeen)
		s.mu.Unlock()
		if idle > r.ttl {
			delete(r.sessions, id)
			dropped++
		}
	}
	return dropped
}

// Run sweeps every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

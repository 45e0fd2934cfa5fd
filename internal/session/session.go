// Package session implements the Session Registry: the map of live
// connections a user can have open at once, and the fan-out primitives
// (send-to-session, send-to-user, broadcast-all) every other component
// pushes frames through. Grounded on the teacher's ws/hub.go userClients
// map and sendToClientLocked drop-then-disconnect policy, generalized out
// of the Hub into a standalone component so the Channel Hub, Voice Room
// Controller, and SFU can all reach a user without routing through each
// other.
package session

import (
	"log/slog"
	"sync"
	"time"

	"relay/internal/constants"
)

// Sink is how the registry hands a session its outbound frames. The WS
// transport layer implements this over a buffered channel drained by a
// per-connection writer goroutine.
type Sink interface {
	// Send enqueues frame for delivery. It must not block; returns false if
	// the sink's buffer is full (a dropped frame).
	Send(frame []byte) bool
	Close()
}

type Session struct {
	ID       string
	UserID   string
	sink     Sink
	mu       sync.Mutex
	dropped  int
	lastSeen time.Time
}

func (s *Session) Touch() {
	s.mu.Lock()
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// send pushes frame through the sink, tracking consecutive drops so a
// chronically slow consumer gets disconnected rather than buffered forever.
func (s *Session) send(frame []byte) (shouldDisconnect bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sink.Send(frame) {
		s.dropped = 0
		return false
	}

	s.dropped++
	return s.dropped >= constants.MaxDroppedMessagesBeforeDisconnect
}

// Registry is the Session Registry (spec component C): tracks every live
// session, keyed by session ID and grouped by user ID, and offers the
// send/broadcast primitives other components use to reach connected users.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	byUser   map[string]map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		byUser:   make(map[string]map[string]struct{}),
	}
}

func (r *Registry) Register(sessionID, userID string, sink Sink) *Session {
	s := &Session{ID: sessionID, UserID: userID, sink: sink, lastSeen: time.Now()}

	r.mu.Lock()
	r.sessions[sessionID] = s
	if r.byUser[userID] == nil {
		r.byUser[userID] = make(map[string]struct{})
	}
	r.byUser[userID][sessionID] = struct{}{}
	r.mu.Unlock()

	return s
}

func (r *Registry) Deregister(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	delete(r.sessions, sessionID)
	if sessions := r.byUser[s.UserID]; sessions != nil {
		delete(sessions, sessionID)
		if len(sessions) == 0 {
			delete(r.byUser, s.UserID)
		}
	}
}

func (r *Registry) Get(sessionID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sessionID]
	return s, ok
}

// IsUserOnline reports whether userID has at least one live session.
func (r *Registry) IsUserOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID]) > 0
}

func (r *Registry) SessionsForUser(userID string) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.byUser[userID]
	out := make([]*Session, 0, len(ids))
	for id := range ids {
		if s, ok := r.sessions[id]; ok {
			out = append(out, s)
		}
	}
	return out
}

func (r *Registry) SendToSession(sessionID string, frame []byte) {
	r.mu.RLock()
	s, ok := r.sessions[sessionID]
	r.mu.RUnlock()
	if !ok {
		return
	}
	r.deliverOrDrop(s, frame)
}

func (r *Registry) SendToUser(userID string, frame []byte) {
	for _, s := range r.SessionsForUser(userID) {
		r.deliverOrDrop(s, frame)
	}
}

func (r *Registry) SendToUsers(userIDs []string, frame []byte) {
	for _, id := range userIDs {
		r.SendToUser(id, frame)
	}
}

func (r *Registry) BroadcastAll(frame []byte) {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	for _, s := range sessions {
		r.deliverOrDrop(s, frame)
	}
}

func (r *Registry) deliverOrDrop(s *Session, frame []byte) {
	if s.send(frame) {
		slog.Warn("disconnecting session after too many dropped frames", "component", "session_registry", "session_id", s.ID, "user_id", s.UserID)
		r.Deregister(s.ID)
		s.sink.Close()
	}
}

// DisconnectUser forcibly closes every live session for userID, used by
// moderation kick/ban so the broadcast reaches the user before the socket
// drops.
func (r *Registry) DisconnectUser(userID string) {
	for _, s := range r.SessionsForUser(userID) {
		r.Deregister(s.ID)
		s.sink.Close()
	}
}

// SweepStale disconnects sessions whose last heartbeat predates cutoff and
// returns how many were removed.
func (r *Registry) SweepStale(cutoff time.Time) int {
	r.mu.RLock()
	var stale []*Session
	for _, s := range r.sessions {
		if s.LastSeen().Before(cutoff) {
			stale = append(stale, s)
		}
	}
	r.mu.RUnlock()

	for _, s := range stale {
		r.Deregister(s.ID)
		s.sink.Close()
	}
	return len(stale)
}

// Package sessions implements the process-wide session registry: the mapping
// from transport connection ids to live sessions and their optional room
// binding. The registry is the first lock in the session -> room lock order;
// nothing in this package ever takes a room lock.
package sessions

import (
	"sync"
	"time"

	"github.com/thaasbai/coordinator/internal/v1/events"
)

// Sender is the outbound half of a transport connection. Send must never
// block.
type Sender interface {
	Send(frame []byte)
	Close()
}

// Binding ties a session to a seat in a room.
type Binding struct {
	GameType events.GameType
	RoomCode string
	Position int
}

// Session is one live connection. Fields other than SID are guarded by the
// owning Registry's lock.
type Session struct {
	SID          string
	IP           string
	ConnectedAt  time.Time
	LastActivity time.Time

	sender Sender
	bound  bool
	b      Binding
}

// Send enqueues an outbound frame on the session's transport.
func (s *Session) Send(frame []byte) {
	if s.sender != nil {
		s.sender.Send(frame)
	}
}

// Close tears the session's transport down without a final frame.
func (s *Session) Close() {
	if s.sender != nil {
		s.sender.Close()
	}
}

// Registry is the process-wide sid -> Session map.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry returns an empty session registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Add registers a freshly connected session.
func (r *Registry) Add(sid, ip string, sender Sender) *Session {
	now := time.Now()
	s := &Session{
		SID:          sid,
		IP:           ip,
		ConnectedAt:  now,
		LastActivity: now,
		sender:       sender,
	}
	r.mu.Lock()
	r.sessions[sid] = s
	r.mu.Unlock()
	return s
}

// Remove drops a session from the registry. Idempotent.
func (r *Registry) Remove(sid string) {
	r.mu.Lock()
	delete(r.sessions, sid)
	r.mu.Unlock()
}

// Lookup returns the session for sid, or nil.
func (r *Registry) Lookup(sid string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[sid]
}

// Touch stamps the session's last-activity time.
func (r *Registry) Touch(sid string) {
	r.mu.Lock()
	if s, ok := r.sessions[sid]; ok {
		s.LastActivity = time.Now()
	}
	r.mu.Unlock()
}

// Bind attaches a session to a room seat. A session is bound to at most one
// room; rebinding overwrites the previous binding.
func (r *Registry) Bind(sid string, gt events.GameType, code string, position int) {
	r.mu.Lock()
	if s, ok := r.sessions[sid]; ok {
		s.bound = true
		s.b = Binding{GameType: gt, RoomCode: code, Position: position}
	}
	r.mu.Unlock()
}

// Unbind clears a session's room binding. Idempotent.
func (r *Registry) Unbind(sid string) {
	r.mu.Lock()
	if s, ok := r.sessions[sid]; ok {
		s.bound = false
		s.b = Binding{}
	}
	r.mu.Unlock()
}

// BindingOf returns the session's room binding, if any.
func (r *Registry) BindingOf(sid string) (Binding, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.sessions[sid]; ok && s.bound {
		return s.b, true
	}
	return Binding{}, false
}

// CountByIP reports how many live sessions share the given remote IP. Used by
// the admission layer for the per-IP connection cap.
func (r *Registry) CountByIP(ip string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, s := range r.sessions {
		if s.IP == ip {
			n++
		}
	}
	return n
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// ForEachInRoom calls fn for every session bound to the given room. The
// registry lock is held for the duration; fn must not call back into the
// registry or take a room lock.
func (r *Registry) ForEachInRoom(gt events.GameType, code string, fn func(*Session)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sessions {
		if s.bound && s.b.GameType == gt && s.b.RoomCode == code {
			fn(s)
		}
	}
}

// Snapshot returns a point-in-time copy of all sessions for the admin surface.
func (r *Registry) Snapshot() []SessionView {
	r.mu.RLock()
	defer r.mu.RUnlock()
	views := make([]SessionView, 0, len(r.sessions))
	for _, s := range r.sessions {
		v := SessionView{
			SID:          s.SID,
			IP:           s.IP,
			ConnectedAt:  s.ConnectedAt,
			LastActivity: s.LastActivity,
		}
		if s.bound {
			v.GameType = string(s.b.GameType)
			v.RoomCode = s.b.RoomCode
			v.Position = &s.b.Position
		}
		views = append(views, v)
	}
	return views
}

// Responsive reports whether the registry lock can be acquired within the
// given window. The health endpoint uses this as a cheap deadlock probe.
func (r *Registry) Responsive(window time.Duration) bool {
	deadline := time.Now().Add(window)
	for {
		if r.mu.TryLock() {
			r.mu.Unlock()
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(time.Millisecond)
	}
}

// SessionView is a session as rendered in the admin snapshot.
type SessionView struct {
	SID          string    `json:"sid"`
	IP           string    `json:"ip"`
	ConnectedAt  time.Time `json:"connectedAt"`
	LastActivity time.Time `json:"lastActivity"`
	GameType     string    `json:"gameType,omitempty"`
	RoomCode     string    `json:"roomCode,omitempty"`
	Position     *int      `json:"position,omitempty"`
}

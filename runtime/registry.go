package runtime

import (
	"log/slog"
	"sync"
	"time"

	"roadlink/domain"
)

// SessionRegistry owns every live session. Rooms hold only session ids;
// resolving an id back to a connection goes through here, so a connection
// is managed in a single place even when its user sits in several rooms.
type SessionRegistry struct {
	mu             sync.RWMutex
	log            *slog.Logger
	sessions       map[domain.SessionID]*Session
	bufferSize     int
	deliverTimeout time.Duration
}

func NewSessionRegistry(log *slog.Logger, bufferSize int, deliverTimeout time.Duration) *SessionRegistry {
	return &SessionRegistry{
		log:            log,
		sessions:       make(map[domain.SessionID]*Session),
		bufferSize:     bufferSize,
		deliverTimeout: deliverTimeout,
	}
}

// Register always succeeds and assigns a fresh session id. The identity
// stays unresolved (anonymous) until authentication completes.
func (r *SessionRegistry) Register() *Session {
	s := newSession(r.bufferSize, r.deliverTimeout)
	r.mu.Lock()
	r.sessions[s.id] = s
	r.mu.Unlock()
	r.log.Debug("session registered", "session", s.id)
	return s
}

// AttachIdentity overwrites the unresolved identity. Idempotent.
func (r *SessionRegistry) AttachIdentity(id domain.SessionID, identity domain.Identity) bool {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	s.attachIdentity(identity)
	return true
}

func (r *SessionRegistry) Get(id domain.SessionID) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Remove takes the session out of the table. Safe to call multiple times;
// the second call reports false. Membership cleanup is the caller's duty.
func (r *SessionRegistry) Remove(id domain.SessionID) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	return s, ok
}

// Snapshot returns the current set of live sessions, for global broadcast.
func (r *SessionRegistry) Snapshot() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

func (r *SessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Membership maps incidents to the set of subscribed session ids. It holds
// non-owning references only; join/leave/membersOf are linearizable under
// one mutex so fanout never observes a half-added member.
type Membership struct {
	mu      sync.RWMutex
	members map[domain.IncidentID]map[domain.SessionID]struct{}
}

func NewMembership() *Membership {
	return &Membership{members: make(map[domain.IncidentID]map[domain.SessionID]struct{})}
}

func (m *Membership) Join(id domain.SessionID, inc domain.IncidentID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.members[inc]; !ok {
		m.members[inc] = make(map[domain.SessionID]struct{})
	}
	m.members[inc][id] = struct{}{}
}

// Leave removes the membership (no-op if absent) and returns how many
// members remain, so the caller can retire an empty room.
func (m *Membership) Leave(id domain.SessionID, inc domain.IncidentID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.members[inc]
	if !ok {
		return 0
	}
	delete(set, id)
	if len(set) == 0 {
		delete(m.members, inc)
		return 0
	}
	return len(set)
}

// MembersOf snapshots the member set at call time.
func (m *Membership) MembersOf(inc domain.IncidentID) []domain.SessionID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	set, ok := m.members[inc]
	if !ok {
		return nil
	}
	out := make([]domain.SessionID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

func (m *Membership) IsMember(id domain.SessionID, inc domain.IncidentID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.members[inc][id]
	return ok
}

// DropSession removes the session from every room it belongs to and
// returns the incidents it was subscribed to. Empty rooms are cleaned up
// to avoid leaking map entries over time.
func (m *Membership) DropSession(id domain.SessionID) []domain.IncidentID {
	m.mu.Lock()
	defer m.mu.Unlock()
	var incidents []domain.IncidentID
	for inc, set := range m.members {
		if _, ok := set[id]; !ok {
			continue
		}
		delete(set, id)
		incidents = append(incidents, inc)
		if len(set) == 0 {
			delete(m.members, inc)
		}
	}
	return incidents
}

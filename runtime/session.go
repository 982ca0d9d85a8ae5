// Package runtime hosts the live chat core: session registry, room
// membership, per-incident workers and the orchestrator that wires them.
// It carries no business rules beyond the delivery guarantees.
package runtime

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"roadlink/domain"
	"roadlink/domain/event"
)

// Session is one live connection. It owns a bounded event buffer that the
// transport drains; the fanout path only ever hands events over through
// Push and never blocks on a slow consumer beyond the configured timeout.
type Session struct {
	id             domain.SessionID
	deliverTimeout time.Duration

	mu       sync.RWMutex
	identity domain.Identity

	events    chan event.Event
	done      chan struct{}
	closeOnce sync.Once
}

func newSession(bufferSize int, deliverTimeout time.Duration) *Session {
	return &Session{
		id:             domain.SessionID(uuid.NewString()),
		deliverTimeout: deliverTimeout,
		events:         make(chan event.Event, bufferSize),
		done:           make(chan struct{}),
	}
}

func (s *Session) SID() domain.SessionID { return s.id }

func (s *Session) Who() domain.Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity
}

func (s *Session) attachIdentity(identity domain.Identity) {
	s.mu.Lock()
	s.identity = identity
	s.mu.Unlock()
}

// Events is drained by the transport (the websocket write pump).
func (s *Session) Events() <-chan event.Event { return s.events }

// Done closes when the session has been terminated.
func (s *Session) Done() <-chan struct{} { return s.done }

// Push hands an event to the session. The fast path is non-blocking; when
// the buffer is full a single bounded wait absorbs momentary bursts. A
// false return means the session could not keep up (or is already
// terminated) and must be treated as dead by the caller.
func (s *Session) Push(e event.Event) bool {
	select {
	case <-s.done:
		return false
	default:
	}

	select {
	case s.events <- e:
		return true
	default:
	}

	timer := time.NewTimer(s.deliverTimeout)
	defer timer.Stop()
	select {
	case s.events <- e:
		return true
	case <-s.done:
		return false
	case <-timer.C:
		return false
	}
}

// Terminate cancels all pending deliveries. It is safe to call multiple
// times; the reason of the first call wins. A best-effort
// SessionTerminated event is queued for the transport to flush.
func (s *Session) Terminate(reason string) {
	s.closeOnce.Do(func() {
		select {
		case s.events <- event.SessionTerminated{Reason: reason}:
		default:
		}
		close(s.done)
	})
}

//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"

	"roadlink/domain"
	"roadlink/domain/event"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself; the supervisor recovers panics and restarts.
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker,
// used for logging and supervision without manual naming.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// Subscriber is a live session as seen by the fanout path. Push is bounded:
// it returns false when the event could not be handed over in time, at which
// point the caller treats the session as dead.
type Subscriber interface {
	SID() domain.SessionID
	Who() domain.Identity
	Push(e event.Event) bool
	Terminate(reason string)
}

// SessionDirectory resolves session ids into live subscribers.
// Deregister is idempotent and triggers membership cleanup via the owner.
type SessionDirectory interface {
	Get(id domain.SessionID) (Subscriber, bool)
	Snapshot() []Subscriber
	Deregister(id domain.SessionID)
}

// MembershipTable maps incidents to their member session ids.
// Join/Leave/MembersOf are linearizable with respect to each other.
type MembershipTable interface {
	Join(id domain.SessionID, inc domain.IncidentID)
	Leave(id domain.SessionID, inc domain.IncidentID) int
	MembersOf(inc domain.IncidentID) []domain.SessionID
	IsMember(id domain.SessionID, inc domain.IncidentID) bool
	DropSession(id domain.SessionID) []domain.IncidentID
}

package workers

import (
	"log/slog"

	"roadlink/contract"
	"roadlink/domain"
	"roadlink/domain/event"
)

// Dispatcher broadcasts domain events to the sessions subscribed to a room.
//
// It provides best-effort fan-out with no guarantees regarding delivery,
// durability, or retries. Per-session ordering holds because rooms call it
// from a single goroutine. A session that cannot absorb an event within its
// bounded delivery window is terminated and deregistered; senders never see
// a delivery failure.
//
// Dispatcher is safe for concurrent use by multiple goroutines.
type Dispatcher struct {
	log        *slog.Logger
	directory  contract.SessionDirectory
	membership contract.MembershipTable
	metrics    DeliveryMetrics
}

// DeliveryMetrics receives delivery telemetry. Optional; nil disables it.
type DeliveryMetrics interface {
	AddEventsDelivered(n uint64)
	IncrSlowConsumerKick()
}

func NewDispatcher(log *slog.Logger, directory contract.SessionDirectory, membership contract.MembershipTable) *Dispatcher {
	return &Dispatcher{log: log, directory: directory, membership: membership}
}

func (d *Dispatcher) WithMetrics(m DeliveryMetrics) *Dispatcher {
	d.metrics = m
	return d
}

// DeliverToRoom pushes the event to every current member of its incident.
// The member set is snapshotted once; sessions that joined after the
// snapshot pick the message up through backlog replay instead.
func (d *Dispatcher) DeliverToRoom(e event.Event) {
	for _, id := range d.membership.MembersOf(e.IncidentID()) {
		sub, ok := d.directory.Get(id)
		if !ok {
			continue
		}
		d.push(sub, e)
	}
}

// DeliverToAll broadcasts to every live session regardless of membership,
// for platform-wide announcements such as new incidents.
func (d *Dispatcher) DeliverToAll(e event.Event) {
	for _, sub := range d.directory.Snapshot() {
		d.push(sub, e)
	}
}

func (d *Dispatcher) push(sub contract.Subscriber, e event.Event) {
	if sub.Push(e) {
		if d.metrics != nil {
			d.metrics.AddEventsDelivered(1)
		}
		return
	}
	d.log.Warn("Dropping slow consumer", "session", sub.SID(), "user", sub.Who().UserID)
	sub.Terminate("delivery buffer overflow")
	d.evict(sub.SID())
	if d.metrics != nil {
		d.metrics.IncrSlowConsumerKick()
	}
}

func (d *Dispatcher) evict(id domain.SessionID) {
	d.directory.Deregister(id)
}

// Package projection builds local timelines from observed events.
// Handles ordering, deduplication, and projections.
// Does not emit events or interact with storage directly.
package projection

import (
	"sort"
	"sync"

	"roadlink/domain"
	"roadlink/domain/event"
)

// Timeline is a local, per-incident view of the message stream. Replayed
// backlog and live fanout may overlap at the watermark boundary; the
// timeline absorbs duplicates so consumers see each sequence number once.
type Timeline struct {
	mu       sync.Mutex
	incident domain.IncidentID
	seen     map[uint64]struct{}
	messages []domain.Message
}

func NewTimeline(incident domain.IncidentID) *Timeline {
	return &Timeline{
		incident: incident,
		seen:     make(map[uint64]struct{}),
	}
}

func (t *Timeline) Consume(e event.Event) {
	evt, ok := e.(event.NewMessage)
	if !ok || evt.Message.Incident != t.incident {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, dup := t.seen[evt.Message.Seq]; dup {
		return
	}
	t.seen[evt.Message.Seq] = struct{}{}
	t.messages = append(t.messages, evt.Message)
	sort.Slice(t.messages, func(i, j int) bool {
		return t.messages[i].Seq < t.messages[j].Seq
	})
}

// Messages returns the ordered view accumulated so far.
func (t *Timeline) Messages() []domain.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]domain.Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// Seqs is a convenience for asserting gap-free delivery.
func (t *Timeline) Seqs() []uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]uint64, 0, len(t.messages))
	for _, m := range t.messages {
		out = append(out, m.Seq)
	}
	return out
}

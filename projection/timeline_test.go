package projection

import (
	"testing"

	"github.com/stretchr/testify/require"

	"roadlink/domain"
	"roadlink/domain/event"
)

func msg(incident domain.IncidentID, seq uint64, body string) event.NewMessage {
	return event.NewMessage{Message: domain.Message{
		Incident: incident,
		Seq:      seq,
		Body:     body,
	}}
}

func TestTimeline_OrdersOutOfOrderDelivery(t *testing.T) {
	req := require.New(t)
	tl := NewTimeline(7)

	tl.Consume(msg(7, 3, "c"))
	tl.Consume(msg(7, 1, "a"))
	tl.Consume(msg(7, 2, "b"))

	req.Equal([]uint64{1, 2, 3}, tl.Seqs())
	req.Equal("a", tl.Messages()[0].Body)
}

func TestTimeline_AbsorbsReplayDuplicates(t *testing.T) {
	req := require.New(t)
	tl := NewTimeline(7)

	// Backlog replay and live fanout can both carry the watermark message.
	tl.Consume(msg(7, 1, "replayed"))
	tl.Consume(msg(7, 1, "live"))
	tl.Consume(msg(7, 2, "next"))

	req.Equal([]uint64{1, 2}, tl.Seqs())
	req.Equal("replayed", tl.Messages()[0].Body)
}

func TestTimeline_IgnoresOtherIncidentsAndEvents(t *testing.T) {
	req := require.New(t)
	tl := NewTimeline(7)

	tl.Consume(msg(8, 1, "wrong room"))
	tl.Consume(event.NewIncident{Incident: domain.Incident{ID: 7}})
	tl.Consume(event.SessionTerminated{Reason: "bye"})

	req.Empty(tl.Messages())
}

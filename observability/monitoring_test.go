package observability

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fixedGauges struct {
	sessions int
	rooms    int
}

func (g fixedGauges) LiveSessions() int { return g.sessions }
func (g fixedGauges) OpenRooms() int    { return g.rooms }

func TestMonitor_RefreshFoldsCountersAndGauges(t *testing.T) {
	req := require.New(t)
	m := NewMonitor(slog.Default(), fixedGauges{sessions: 3, rooms: 2}, 10*time.Millisecond)

	m.IncrMessagesPosted()
	m.IncrMessagesPosted()
	m.IncrMessagesBlocked()
	m.IncrIncidentsReported()
	m.IncrSlowConsumerKick()
	m.AddEventsDelivered(7)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		req.NoError(m.Run(ctx))
		close(done)
	}()

	req.Eventually(func() bool {
		return m.GetLatest().UpdatedAt != ""
	}, 2*time.Second, 5*time.Millisecond)

	stats := m.GetLatest()
	req.Equal(3, stats.LiveSessions)
	req.Equal(2, stats.OpenRooms)
	req.Equal(uint64(2), stats.MessagesPosted)
	req.Equal(uint64(1), stats.MessagesBlocked)
	req.Equal(uint64(1), stats.IncidentsReported)
	req.Equal(uint64(1), stats.SlowConsumerKicks)
	req.Equal(uint64(7), stats.EventsDelivered)
	req.Positive(stats.NumGoroutine)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		req.Fail("monitor did not stop on context cancel")
	}
}

func TestMonitor_GetLatestBeforeFirstTick(t *testing.T) {
	req := require.New(t)
	m := NewMonitor(slog.Default(), nil, time.Second)

	// The zero snapshot is served until the first refresh lands.
	req.Equal(Stats{}, m.GetLatest())
}

package runtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"roadlink/domain"
	"roadlink/domain/event"
)

func TestSession_PushFastPath(t *testing.T) {
	req := require.New(t)
	s := newSession(2, 10*time.Millisecond)

	req.True(s.Push(event.NewMessage{Message: domain.Message{Seq: 1}}))
	req.True(s.Push(event.NewMessage{Message: domain.Message{Seq: 2}}))

	first := <-s.Events()
	req.Equal(uint64(1), first.(event.NewMessage).Message.Seq)
}

func TestSession_PushTimesOutWhenFull(t *testing.T) {
	req := require.New(t)
	s := newSession(1, 10*time.Millisecond)

	req.True(s.Push(event.NewMessage{Message: domain.Message{Seq: 1}}))

	// Buffer full and nobody draining: the bounded wait expires
	start := time.Now()
	req.False(s.Push(event.NewMessage{Message: domain.Message{Seq: 2}}))
	req.Less(time.Since(start), 500*time.Millisecond)
}

func TestSession_PushUnblocksWhenDrained(t *testing.T) {
	req := require.New(t)
	s := newSession(1, 200*time.Millisecond)

	req.True(s.Push(event.NewMessage{Message: domain.Message{Seq: 1}}))

	go func() {
		time.Sleep(20 * time.Millisecond)
		<-s.Events()
	}()

	// The second push succeeds within the bounded wait once a slot frees up
	req.True(s.Push(event.NewMessage{Message: domain.Message{Seq: 2}}))
}

func TestSession_TerminateIdempotent(t *testing.T) {
	req := require.New(t)
	s := newSession(4, 10*time.Millisecond)

	s.Terminate("first reason")
	s.Terminate("second reason")

	select {
	case <-s.Done():
	default:
		req.Fail("done channel should be closed")
	}

	// The first termination queued its notice; pushes after death fail
	evt := <-s.Events()
	term, ok := evt.(event.SessionTerminated)
	req.True(ok)
	req.Equal("first reason", term.Reason)

	req.False(s.Push(event.NewMessage{Message: domain.Message{Seq: 3}}))
}

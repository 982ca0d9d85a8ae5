package workers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/abadojack/whatlanggo"

	"roadlink/contract"
	"roadlink/domain"
	"roadlink/domain/event"
	"roadlink/errors"
	"roadlink/moderation"
	"roadlink/repositories"
)

// RoomWorker is the serialization point for one incident chatroom.
// Every join, leave and post for the incident flows through its single
// goroutine, so sequence assignment, backlog replay and membership updates
// never race with each other.
type RoomWorker struct {
	incident   domain.IncidentID
	commands   chan domain.Command
	log        *slog.Logger
	filter     *moderation.Filter
	incidents  repositories.IIncidentRepository
	messages   repositories.IMessageRepository
	dispatcher *Dispatcher
	directory  contract.SessionDirectory
	membership contract.MembershipTable
	done       func(domain.IncidentID)
}

func NewRoomWorker(
	incident domain.IncidentID,
	commands chan domain.Command,
	log *slog.Logger,
	filter *moderation.Filter,
	incidents repositories.IIncidentRepository,
	messages repositories.IMessageRepository,
	dispatcher *Dispatcher,
	directory contract.SessionDirectory,
	membership contract.MembershipTable,
	done func(domain.IncidentID),
) *RoomWorker {
	return &RoomWorker{
		incident:   incident,
		commands:   commands,
		log:        log.With("incident", incident),
		filter:     filter,
		incidents:  incidents,
		messages:   messages,
		dispatcher: dispatcher,
		directory:  directory,
		membership: membership,
		done:       done,
	}
}

func (w *RoomWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Stopping room worker")
			return ctx.Err()
		case cmd, ok := <-w.commands:
			if !ok {
				return nil
			}
			switch c := cmd.(type) {
			case domain.JoinCommand:
				reply(c.Reply, w.handleJoin(c))
			case domain.PostCommand:
				reply(c.Reply, w.handlePost(c))
			case domain.LeaveCommand:
				w.handleLeave(c)
			}
			// Completion is reported after the command fully settled, so
			// the orchestrator only retires the room when it is quiescent.
			if w.done != nil {
				w.done(w.incident)
			}
		}
	}
}

// handleJoin admits the session, replays the backlog it missed, and marks
// it live, all in one step. The watermark is read before replay and the
// membership insert happens after it, so no message can fall between the
// replayed range and the live stream.
func (w *RoomWorker) handleJoin(c domain.JoinCommand) domain.JoinResult {
	active, err := w.incidents.ChatActive(c.Incident)
	if err != nil {
		return domain.JoinResult{Err: err}
	}
	if !active {
		return domain.JoinResult{Err: errors.ErrRoomInactive}
	}

	sub, ok := w.directory.Get(c.Session)
	if !ok {
		return domain.JoinResult{Err: errors.ErrUnknownSession}
	}

	watermark, err := w.messages.LastSeq(c.Incident)
	if err != nil {
		return domain.JoinResult{Err: err}
	}

	if w.membership.IsMember(c.Session, c.Incident) {
		// Rejoin of a live member: already receiving the stream,
		// just report where it stands.
		return domain.JoinResult{Watermark: watermark}
	}

	if c.LastSeen < watermark {
		backlog, err := w.messages.ReadRange(c.Incident, c.LastSeen, watermark)
		if err != nil {
			return domain.JoinResult{Err: err}
		}
		for _, msg := range backlog {
			if !sub.Push(event.NewMessage{Message: msg}) {
				w.log.Warn("Session stalled during backlog replay", "session", c.Session)
				sub.Terminate("delivery buffer overflow")
				w.directory.Deregister(c.Session)
				return domain.JoinResult{Err: errors.ErrSessionBufferFull}
			}
		}
	}

	w.membership.Join(c.Session, c.Incident)
	w.log.Debug("Session joined", "session", c.Session, "watermark", watermark)
	return domain.JoinResult{Watermark: watermark}
}

// handlePost filters, persists, then fans out, in that order. A message
// that fails moderation or persistence is never delivered to anyone;
// delivery problems after persistence are the dispatcher's business and
// never reach the sender.
func (w *RoomWorker) handlePost(c domain.PostCommand) domain.PostResult {
	if len(c.Body) > domain.MaxMessageBody {
		return domain.PostResult{Err: errors.ErrMessageTooLong}
	}
	if verdict := w.filter.Classify(c.Body); verdict.Blocked {
		w.log.Info("Message blocked", "session", c.Session, "reason", verdict.Reason)
		return domain.PostResult{Err: &errors.BlockedError{Reason: verdict.Reason}}
	}

	active, err := w.incidents.ChatActive(c.Incident)
	if err != nil {
		return domain.PostResult{Err: err}
	}
	if !active {
		return domain.PostResult{Err: errors.ErrRoomInactive}
	}

	lang := whatlanggo.Detect(c.Body).Lang.Iso6391()
	msg, err := w.messages.Append(c.Incident, c.Author, c.Body, c.Kind, lang)
	if err != nil {
		return domain.PostResult{Err: fmt.Errorf("appending message: %w", err)}
	}

	w.dispatcher.DeliverToRoom(event.NewMessage{Message: msg})
	return domain.PostResult{Seq: msg.Seq}
}

// handleLeave only updates membership. Retirement of a room left empty
// happens through the completion callback in Run.
func (w *RoomWorker) handleLeave(c domain.LeaveCommand) {
	remaining := w.membership.Leave(c.Session, c.Incident)
	w.log.Debug("Session left", "session", c.Session, "remaining", remaining)
}

// reply delivers a result without ever blocking the room goroutine.
// Reply channels are buffered; a caller that vanished simply misses it.
func reply[T any](ch chan T, res T) {
	if ch == nil {
		return
	}
	select {
	case ch <- res:
	default:
	}
}

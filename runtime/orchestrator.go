package runtime

import (
	"context"
	"log/slog"
	"sync"

	"roadlink/contract"
	"roadlink/domain"
	"roadlink/domain/event"
	"roadlink/errors"
	"roadlink/moderation"
	"roadlink/repositories"
	"roadlink/runtime/workers"
)

// Orchestrator is the front door of the chat runtime. It owns the room
// workers (one goroutine per active incident), routes commands to them,
// and implements the session directory used by the fanout path.
//
// Command channels are only ever written under o.mu with a non-blocking
// send, and only ever closed under o.mu once a room is empty, so a send
// can never hit a closed channel.
type Orchestrator struct {
	mu         sync.Mutex
	log        *slog.Logger
	registry   *SessionRegistry
	membership *Membership
	filter     *moderation.Filter
	incidents  repositories.IIncidentRepository
	messages   repositories.IMessageRepository
	supervisor contract.ISupervisor
	dispatcher *workers.Dispatcher
	roomBuffer int
	ctx        context.Context
	rooms      map[domain.IncidentID]*roomHandle
	closed     bool
}

type roomHandle struct {
	commands chan domain.Command
	// pending counts commands enqueued but not yet fully processed by the
	// room worker. Retirement requires pending == 0, so a room can never be
	// closed out from under a join or post in flight.
	pending int
}

func NewOrchestrator(
	log *slog.Logger,
	registry *SessionRegistry,
	membership *Membership,
	filter *moderation.Filter,
	incidents repositories.IIncidentRepository,
	messages repositories.IMessageRepository,
	supervisor contract.ISupervisor,
	roomBuffer int,
) *Orchestrator {
	o := &Orchestrator{
		log:        log,
		registry:   registry,
		membership: membership,
		filter:     filter,
		incidents:  incidents,
		messages:   messages,
		supervisor: supervisor,
		roomBuffer: roomBuffer,
		ctx:        context.Background(),
		rooms:      make(map[domain.IncidentID]*roomHandle),
	}
	o.dispatcher = workers.NewDispatcher(log, o, membership)
	return o
}

// Start records the lifetime context under which room workers run.
// Must be called before the first Join.
func (o *Orchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	o.ctx = ctx
	o.mu.Unlock()
}

// Instrument attaches delivery telemetry to the fanout path.
func (o *Orchestrator) Instrument(m workers.DeliveryMetrics) {
	o.dispatcher.WithMetrics(m)
}

// LiveSessions reports the number of registered sessions.
func (o *Orchestrator) LiveSessions() int { return o.registry.Len() }

// OpenRooms reports the number of rooms with a running worker.
func (o *Orchestrator) OpenRooms() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.rooms)
}

// Register opens a new anonymous session.
func (o *Orchestrator) Register() *Session {
	return o.registry.Register()
}

// AttachIdentity binds an authenticated identity to a live session.
func (o *Orchestrator) AttachIdentity(id domain.SessionID, identity domain.Identity) error {
	if !o.registry.AttachIdentity(id, identity) {
		return errors.ErrUnknownSession
	}
	return nil
}

// Get implements contract.SessionDirectory.
func (o *Orchestrator) Get(id domain.SessionID) (contract.Subscriber, bool) {
	s, ok := o.registry.Get(id)
	if !ok {
		return nil, false
	}
	return s, true
}

// Snapshot implements contract.SessionDirectory.
func (o *Orchestrator) Snapshot() []contract.Subscriber {
	sessions := o.registry.Snapshot()
	out := make([]contract.Subscriber, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s)
	}
	return out
}

// Deregister tears a session down: removes it from the registry, closes
// its delivery channel, purges every room membership it held, and retires
// rooms left empty. Idempotent; the second call is a no-op.
func (o *Orchestrator) Deregister(id domain.SessionID) {
	s, ok := o.registry.Remove(id)
	if !ok {
		return
	}
	s.Terminate("session closed")
	for _, inc := range o.membership.DropSession(id) {
		o.maybeRetire(inc)
	}
	o.log.Debug("Session deregistered", "session", id)
}

// Join subscribes the session to an incident room and returns the room
// watermark. Backlog between lastSeen and the watermark is replayed on the
// session's delivery channel before any live message.
func (o *Orchestrator) Join(ctx context.Context, session domain.SessionID, incident domain.IncidentID, lastSeen uint64) (uint64, error) {
	if _, ok := o.registry.Get(session); !ok {
		return 0, errors.ErrUnknownSession
	}
	replyCh := make(chan domain.JoinResult, 1)
	if err := o.send(domain.JoinCommand{
		Incident: incident,
		Session:  session,
		LastSeen: lastSeen,
		Reply:    replyCh,
	}); err != nil {
		return 0, err
	}
	select {
	case res := <-replyCh:
		return res.Watermark, res.Err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Leave unsubscribes the session from the room. The room retires itself
// once its last member is gone.
func (o *Orchestrator) Leave(session domain.SessionID, incident domain.IncidentID) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	h, ok := o.rooms[incident]
	if !ok {
		// Room already retired; nothing to serialize against.
		o.membership.Leave(session, incident)
		return nil
	}
	select {
	case h.commands <- domain.LeaveCommand{Incident: incident, Session: session}:
		h.pending++
		return nil
	default:
		return errors.ErrRoomBusy
	}
}

// Send posts a chat message to the incident room and returns the sequence
// number it was persisted under. Only authenticated sessions may post.
func (o *Orchestrator) Send(ctx context.Context, session domain.SessionID, incident domain.IncidentID, body string) (uint64, error) {
	s, ok := o.registry.Get(session)
	if !ok {
		return 0, errors.ErrUnknownSession
	}
	author := s.Who()
	if author.Anonymous() {
		return 0, errors.ErrUnauthenticated
	}
	return o.post(ctx, session, incident, author, body, domain.KindText)
}

// PostSystem emits a system notice into the room, sequenced and persisted
// like any other message.
func (o *Orchestrator) PostSystem(ctx context.Context, incident domain.IncidentID, body string) (uint64, error) {
	return o.post(ctx, "", incident, domain.Identity{Name: "system"}, body, domain.KindSystem)
}

func (o *Orchestrator) post(ctx context.Context, session domain.SessionID, incident domain.IncidentID, author domain.Identity, body, kind string) (uint64, error) {
	replyCh := make(chan domain.PostResult, 1)
	if err := o.send(domain.PostCommand{
		Incident: incident,
		Session:  session,
		Author:   author,
		Body:     body,
		Kind:     kind,
		Reply:    replyCh,
	}); err != nil {
		return 0, err
	}
	select {
	case res := <-replyCh:
		return res.Seq, res.Err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// BroadcastIncident announces a freshly reported incident to every live
// session, members or not.
func (o *Orchestrator) BroadcastIncident(inc domain.Incident) {
	o.dispatcher.DeliverToAll(event.NewIncident{Incident: inc})
}

// send routes a command to its room, spinning the room worker up on first
// use. The enqueue is non-blocking: a full room queue is reported to the
// caller instead of stalling it.
func (o *Orchestrator) send(cmd domain.Command) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return errors.ErrRoomInactive
	}
	inc := cmd.IncidentID()
	h, ok := o.rooms[inc]
	if !ok {
		h = &roomHandle{commands: make(chan domain.Command, o.roomBuffer)}
		o.rooms[inc] = h
		worker := workers.NewRoomWorker(
			inc, h.commands, o.log, o.filter,
			o.incidents, o.messages, o.dispatcher,
			o, o.membership, o.commandDone,
		)
		o.supervisor.Start(o.ctx, worker)
		o.log.Debug("Room opened", "incident", inc)
	}
	select {
	case h.commands <- cmd:
		h.pending++
		return nil
	default:
		return errors.ErrRoomBusy
	}
}

// commandDone is called by the room worker after each command completes.
// It is the room's own retirement trigger: once the last command of an
// empty room finishes, the room closes at its serialization point.
func (o *Orchestrator) commandDone(inc domain.IncidentID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	h, ok := o.rooms[inc]
	if !ok {
		// Already retired or shutting down.
		return
	}
	h.pending--
	o.retireLocked(inc, h)
}

// maybeRetire closes the room when nobody is left and nothing is queued or
// in flight. All checks happen under o.mu, the same lock every enqueue
// takes, so the close cannot race a send.
func (o *Orchestrator) maybeRetire(inc domain.IncidentID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	h, ok := o.rooms[inc]
	if !ok {
		return
	}
	o.retireLocked(inc, h)
}

// retireLocked requires o.mu. A room with any command pending stays open:
// the worker re-runs this check through commandDone when the command ends,
// so an in-flight join can never lose its room to a concurrent deregister.
func (o *Orchestrator) retireLocked(inc domain.IncidentID, h *roomHandle) {
	if h.pending > 0 || len(o.membership.MembersOf(inc)) > 0 {
		return
	}
	delete(o.rooms, inc)
	close(h.commands)
	o.log.Debug("Room retired", "incident", inc)
}

// Stop retires every room and terminates every session. Room workers
// drain their queues and exit once their channels close.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	o.closed = true
	for inc, h := range o.rooms {
		delete(o.rooms, inc)
		close(h.commands)
	}
	o.mu.Unlock()

	for _, s := range o.registry.Snapshot() {
		o.Deregister(s.SID())
	}
}

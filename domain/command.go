package domain

// SessionID identifies one live connection. Rooms hold only this
// non-owning reference; the session itself belongs to the registry.
type SessionID string

type Command interface {
	IncidentID() IncidentID
}

// JoinCommand subscribes a session to an incident's room. LastSeen is the
// highest sequence number the client already holds (0 for a fresh join);
// the room worker replays everything in (LastSeen, watermark] before the
// session goes live.
type JoinCommand struct {
	Incident IncidentID
	Session  SessionID
	LastSeen uint64
	Reply    chan JoinResult
}

func (c JoinCommand) IncidentID() IncidentID { return c.Incident }

type JoinResult struct {
	Watermark uint64
	Err       error
}

type LeaveCommand struct {
	Incident IncidentID
	Session  SessionID
}

func (c LeaveCommand) IncidentID() IncidentID { return c.Incident }

// PostCommand appends a message to the incident log and fans it out.
// Kind distinguishes user text from system notices.
type PostCommand struct {
	Incident IncidentID
	Session  SessionID
	Author   Identity
	Body     string
	Kind     string
	Reply    chan PostResult
}

func (c PostCommand) IncidentID() IncidentID { return c.Incident }

type PostResult struct {
	Seq uint64
	Err error
}

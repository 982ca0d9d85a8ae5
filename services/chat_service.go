package services

import (
	"context"
	goerrors "errors"

	"roadlink/domain"
	"roadlink/errors"
	"roadlink/observability"
	"roadlink/runtime"
)

// ChatService fronts the chat runtime for the transport layer. Sessions
// are opaque handles; everything stateful lives in the orchestrator.
type ChatService struct {
	orchestrator *runtime.Orchestrator
	monitor      *observability.Monitor
}

func NewChatService(o *runtime.Orchestrator, monitor *observability.Monitor) *ChatService {
	return &ChatService{orchestrator: o, monitor: monitor}
}

func (s *ChatService) OpenSession() *runtime.Session {
	return s.orchestrator.Register()
}

func (s *ChatService) CloseSession(id domain.SessionID) {
	s.orchestrator.Deregister(id)
}

func (s *ChatService) Authenticate(id domain.SessionID, identity domain.Identity) error {
	return s.orchestrator.AttachIdentity(id, identity)
}

func (s *ChatService) Join(ctx context.Context, session domain.SessionID, incident domain.IncidentID, lastSeen uint64) (uint64, error) {
	return s.orchestrator.Join(ctx, session, incident, lastSeen)
}

func (s *ChatService) Leave(session domain.SessionID, incident domain.IncidentID) error {
	return s.orchestrator.Leave(session, incident)
}

func (s *ChatService) Send(ctx context.Context, session domain.SessionID, incident domain.IncidentID, body string) (uint64, error) {
	seq, err := s.orchestrator.Send(ctx, session, incident, body)
	if s.monitor != nil {
		var blocked *errors.BlockedError
		switch {
		case err == nil:
			s.monitor.IncrMessagesPosted()
		case goerrors.As(err, &blocked):
			s.monitor.IncrMessagesBlocked()
		}
	}
	return seq, err
}

// Package event defines the push events delivered to live sessions.
package event

import (
	"roadlink/domain"
)

type Event interface {
	IncidentID() domain.IncidentID
}

// NewMessage carries a persisted chat message to room members.
// It is only ever built after the message obtained its sequence number.
type NewMessage struct {
	Message domain.Message
}

func (e NewMessage) IncidentID() domain.IncidentID { return e.Message.Incident }

// NewIncident is broadcast to every connected session, bypassing rooms.
type NewIncident struct {
	Incident domain.Incident
}

func (e NewIncident) IncidentID() domain.IncidentID { return e.Incident.ID }

// SessionTerminated is the last event a session receives before its
// buffer is abandoned (slow consumer, explicit disconnect, server stop).
type SessionTerminated struct {
	Reason string
}

func (e SessionTerminated) IncidentID() domain.IncidentID { return 0 }

// This file defines Message events and related rules.
// Messages are immutable and validated by the domain.
package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	KindText   = "text"
	KindSystem = "system"
)

// MaxMessageBody bounds a chat message body in bytes.
const MaxMessageBody = 2000

// Message is an immutable chat event. Seq is assigned exactly once at
// persistence time, strictly increasing and gap-free per incident.
type Message struct {
	ID       uuid.UUID
	Incident IncidentID
	Seq      uint64
	Author   Identity
	Body     string
	Kind     string
	Lang     string
	At       time.Time
}

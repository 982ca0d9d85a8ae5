package web

import (
	"encoding/json"
	"time"

	"roadlink/domain"
	"roadlink/domain/event"
)

// Inbound and outbound frames share one envelope. Event names follow the
// platform's original wire protocol so existing clients keep working.
const (
	EvtAuth          = "auth"
	EvtJoinIncident  = "join-incident"
	EvtLeaveIncident = "leave-incident"
	EvtSendMessage   = "send-message"

	EvtJoined            = "joined"
	EvtNewMessage        = "new-message"
	EvtNewIncident       = "new-incident"
	EvtMessageError      = "message-error"
	EvtSessionTerminated = "session-terminated"
)

type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type AuthFrame struct {
	Token string `json:"token"`
}

type JoinFrame struct {
	IncidentID int64  `json:"incidentId"`
	LastSeen   uint64 `json:"lastSeen"`
}

type LeaveFrame struct {
	IncidentID int64 `json:"incidentId"`
}

type SendFrame struct {
	IncidentID int64  `json:"incidentId"`
	Text       string `json:"text"`
}

type JoinedFrame struct {
	IncidentID int64  `json:"incidentId"`
	Watermark  uint64 `json:"watermark"`
}

type ErrorFrame struct {
	IncidentID int64  `json:"incidentId,omitempty"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

type MessageDTO struct {
	ID         string    `json:"id"`
	IncidentID int64     `json:"incidentId"`
	Seq        uint64    `json:"seq"`
	UserID     string    `json:"userId,omitempty"`
	UserName   string    `json:"userName,omitempty"`
	Text       string    `json:"text"`
	Kind       string    `json:"kind"`
	Lang       string    `json:"lang,omitempty"`
	At         time.Time `json:"at"`
}

type IncidentDTO struct {
	ID             int64     `json:"id"`
	Lat            float64   `json:"lat"`
	Lng            float64   `json:"lng"`
	Type           string    `json:"type"`
	Severity       string    `json:"severity"`
	Description    string    `json:"description,omitempty"`
	Location       string    `json:"location,omitempty"`
	ReportedBy     string    `json:"reportedBy,omitempty"`
	ReporterName   string    `json:"reporterName,omitempty"`
	ChatRoomActive bool      `json:"chatRoomActive"`
	Resolved       bool      `json:"resolved"`
	CreatedAt      time.Time `json:"createdAt"`
}

func toMessageDTO(m domain.Message) MessageDTO {
	return MessageDTO{
		ID:         m.ID.String(),
		IncidentID: int64(m.Incident),
		Seq:        m.Seq,
		UserID:     m.Author.UserID,
		UserName:   m.Author.Name,
		Text:       m.Body,
		Kind:       m.Kind,
		Lang:       m.Lang,
		At:         m.At,
	}
}

func toIncidentDTO(inc domain.Incident) IncidentDTO {
	return IncidentDTO{
		ID:             int64(inc.ID),
		Lat:            inc.Lat,
		Lng:            inc.Lng,
		Type:           inc.Type,
		Severity:       inc.Severity,
		Description:    inc.Description,
		Location:       inc.Location,
		ReportedBy:     inc.ReportedBy,
		ReporterName:   inc.ReporterName,
		ChatRoomActive: inc.ChatRoomActive,
		Resolved:       inc.Resolved,
		CreatedAt:      inc.CreatedAt,
	}
}

func toIncidentDTOs(incs []domain.Incident) []IncidentDTO {
	out := make([]IncidentDTO, 0, len(incs))
	for _, inc := range incs {
		out = append(out, toIncidentDTO(inc))
	}
	return out
}

// envelopeFor translates a runtime event into its wire frame.
func envelopeFor(e event.Event) (Envelope, bool) {
	switch evt := e.(type) {
	case event.NewMessage:
		return mustEnvelope(EvtNewMessage, toMessageDTO(evt.Message)), true
	case event.NewIncident:
		return mustEnvelope(EvtNewIncident, toIncidentDTO(evt.Incident)), true
	case event.SessionTerminated:
		return mustEnvelope(EvtSessionTerminated, map[string]string{"reason": evt.Reason}), true
	default:
		return Envelope{}, false
	}
}

func mustEnvelope(name string, data any) Envelope {
	raw, err := json.Marshal(data)
	if err != nil {
		// All frame payloads are plain structs; marshalling cannot fail.
		panic(err)
	}
	return Envelope{Event: name, Data: raw}
}

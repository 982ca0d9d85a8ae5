package domain

import "time"

type IncidentID int64

// Incident types as reported from the field.
const (
	TypeAccident     = "accident"
	TypeFlooding     = "flooding"
	TypeProtest      = "protest"
	TypeConstruction = "construction"
	TypeBreakdown    = "breakdown"
	TypeTrafficJam   = "traffic_jam"
	TypeFire         = "fire"
	TypeVIP          = "vip"
	TypeWeather      = "weather"
)

const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// Incident is a reported road event with location and an associated chatroom.
// ChatRoomActive gates whether new members and messages are accepted into its room.
type Incident struct {
	ID             IncidentID
	Lat            float64
	Lng            float64
	Type           string
	Severity       string
	Description    string
	Location       string
	ReportedBy     string
	ReporterName   string
	ChatRoomActive bool
	Resolved       bool
	CreatedAt      time.Time
}

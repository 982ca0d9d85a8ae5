//go:generate go run go.uber.org/mock/mockgen -source=incident_service.go -destination=../mocks/mock_incident_service.go -package=mocks
package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"roadlink/domain"
	"roadlink/errors"
	"roadlink/observability"
	"roadlink/repositories"
	"roadlink/runtime"
	"roadlink/search"
)

type ReportRequest struct {
	Lat         float64 `json:"lat" validate:"required,latitude"`
	Lng         float64 `json:"lng" validate:"required,longitude"`
	Type        string  `json:"type" validate:"required,oneof=accident flooding protest construction breakdown traffic_jam fire vip weather"`
	Severity    string  `json:"severity" validate:"omitempty,oneof=low medium high critical"`
	Description string  `json:"description" validate:"omitempty,max=1000"`
	Location    string  `json:"location" validate:"omitempty,max=200"`
}

type UserStats struct {
	IncidentsReported uint64 `json:"incidents_reported"`
	MessagesSent      uint64 `json:"messages_sent"`
}

type IIncidentService interface {
	Report(ctx context.Context, reporter domain.Identity, req ReportRequest) (domain.Incident, error)
	Get(id domain.IncidentID) (domain.Incident, error)
	ListUnresolved() ([]domain.Incident, error)
	Nearby(lat, lng, radiusKm float64) ([]domain.Incident, error)
	Search(ctx context.Context, query string, limit int) ([]domain.Incident, error)
	Messages(incident domain.IncidentID, afterSeq uint64) ([]domain.Message, error)
	Resolve(ctx context.Context, actor domain.Identity, id domain.IncidentID) error
	Stats(userID string) (UserStats, error)
}

type IncidentService struct {
	log          *slog.Logger
	incidents    repositories.IIncidentRepository
	messages     repositories.IMessageRepository
	index        search.IIncidentIndex
	orchestrator *runtime.Orchestrator
	monitor      *observability.Monitor
	validate     *validator.Validate
}

func NewIncidentService(
	log *slog.Logger,
	incidents repositories.IIncidentRepository,
	messages repositories.IMessageRepository,
	index search.IIncidentIndex,
	orchestrator *runtime.Orchestrator,
	monitor *observability.Monitor,
) IIncidentService {
	return &IncidentService{
		log:          log,
		incidents:    incidents,
		messages:     messages,
		index:        index,
		orchestrator: orchestrator,
		monitor:      monitor,
		validate:     validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Report persists a new incident, indexes it for search, and announces it
// to every connected session. The chatroom opens active.
func (s *IncidentService) Report(ctx context.Context, reporter domain.Identity, req ReportRequest) (domain.Incident, error) {
	if err := s.validate.Struct(req); err != nil {
		return domain.Incident{}, fmt.Errorf("invalid incident report: %w", err)
	}

	severity := req.Severity
	if severity == "" {
		severity = domain.SeverityMedium
	}

	inc, err := s.incidents.Create(domain.Incident{
		Lat:            req.Lat,
		Lng:            req.Lng,
		Type:           req.Type,
		Severity:       severity,
		Description:    req.Description,
		Location:       req.Location,
		ReportedBy:     reporter.UserID,
		ReporterName:   reporter.Name,
		ChatRoomActive: true,
	})
	if err != nil {
		return domain.Incident{}, err
	}

	// Search is a secondary view; a failed indexing never rolls back the report.
	if err := s.index.Index(inc); err != nil {
		s.log.Error("Failed to index incident", "incident", inc.ID, "error", err)
	}

	s.orchestrator.BroadcastIncident(inc)
	if s.monitor != nil {
		s.monitor.IncrIncidentsReported()
	}
	s.log.Info("Incident reported", "incident", inc.ID, "type", inc.Type, "by", reporter.UserID)
	return inc, nil
}

func (s *IncidentService) Get(id domain.IncidentID) (domain.Incident, error) {
	return s.incidents.Get(id)
}

func (s *IncidentService) ListUnresolved() ([]domain.Incident, error) {
	return s.incidents.ListUnresolved()
}

func (s *IncidentService) Nearby(lat, lng, radiusKm float64) ([]domain.Incident, error) {
	return s.incidents.Nearby(lat, lng, radiusKm)
}

// Search resolves a free-text query through the index, then hydrates the
// hits from the store. Ids whose incident vanished are skipped.
func (s *IncidentService) Search(ctx context.Context, query string, limit int) ([]domain.Incident, error) {
	if limit <= 0 {
		limit = 20
	}
	ids, _, err := s.index.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Incident, 0, len(ids))
	for _, id := range ids {
		inc, err := s.incidents.Get(id)
		if err != nil {
			continue
		}
		out = append(out, inc)
	}
	return out, nil
}

// Messages returns the persisted history after the given sequence number.
func (s *IncidentService) Messages(incident domain.IncidentID, afterSeq uint64) ([]domain.Message, error) {
	last, err := s.messages.LastSeq(incident)
	if err != nil {
		return nil, err
	}
	if afterSeq >= last {
		return nil, nil
	}
	return s.messages.ReadRange(incident, afterSeq, last)
}

// Resolve closes the incident and its chatroom. Only admins may resolve.
// A system notice is posted so members learn why the room went quiet.
func (s *IncidentService) Resolve(ctx context.Context, actor domain.Identity, id domain.IncidentID) error {
	if actor.Role != domain.RoleAdmin {
		return errors.ErrUnauthenticated
	}

	// Notice goes out while the room is still active; resolving first
	// would make the room reject its own closing announcement.
	if _, err := s.orchestrator.PostSystem(ctx, id, "This incident has been resolved. The chatroom is now closed."); err != nil {
		s.log.Warn("Could not post resolution notice", "incident", id, "error", err)
	}

	if err := s.incidents.Resolve(id); err != nil {
		return err
	}
	s.log.Info("Incident resolved", "incident", id, "by", actor.UserID)
	return nil
}

func (s *IncidentService) Stats(userID string) (UserStats, error) {
	reported, err := s.incidents.CountByReporter(userID)
	if err != nil {
		return UserStats{}, err
	}
	sent, err := s.messages.CountByAuthor(userID)
	if err != nil {
		return UserStats{}, err
	}
	return UserStats{IncidentsReported: reported, MessagesSent: sent}, nil
}

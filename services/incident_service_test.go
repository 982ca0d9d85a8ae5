package services

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"

	"roadlink/domain"
	"roadlink/domain/event"
	"roadlink/errors"
	"roadlink/moderation"
	"roadlink/repositories"
	"roadlink/runtime"
	"roadlink/runtime/workers"
	"roadlink/search"
)

type serviceStack struct {
	incidents IIncidentService
	chat      *ChatService
	runtime   *runtime.Orchestrator
}

func newServiceStack(t *testing.T) *serviceStack {
	t.Helper()
	log := slog.Default()

	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).
		WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	writer, err := bluge.OpenWriter(bluge.DefaultConfig(t.TempDir()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = writer.Close() })

	filter, err := moderation.NewFilter([]string{"stupid"})
	require.NoError(t, err)

	incidentRepo := repositories.NewIncidentRepository(db, log)
	messageRepo := repositories.NewMessageRepository(db, log)
	index := search.NewIncidentIndex(writer, log)
	supervisor := workers.NewSupervisor(log)
	registry := runtime.NewSessionRegistry(log, 64, 50*time.Millisecond)
	membership := runtime.NewMembership()

	o := runtime.NewOrchestrator(log, registry, membership, filter, incidentRepo, messageRepo, supervisor, 64)
	ctx, cancel := context.WithCancel(context.Background())
	o.Start(ctx)
	t.Cleanup(func() {
		o.Stop()
		cancel()
	})

	return &serviceStack{
		incidents: NewIncidentService(log, incidentRepo, messageRepo, index, o, nil),
		chat:      NewChatService(o, nil),
		runtime:   o,
	}
}

func reporter() domain.Identity {
	return domain.Identity{UserID: "u1", Name: "Priya", Role: domain.RoleUser}
}

func admin() domain.Identity {
	return domain.Identity{UserID: "a1", Name: "Ops", Role: domain.RoleAdmin}
}

func accidentReport() ReportRequest {
	return ReportRequest{
		Lat: 48.8566, Lng: 2.3522,
		Type:        domain.TypeAccident,
		Severity:    domain.SeverityHigh,
		Description: "Truck jackknifed across both lanes",
		Location:    "Porte de Bagnolet",
	}
}

func TestIncidentService_ReportOpensActiveRoom(t *testing.T) {
	req := require.New(t)
	stack := newServiceStack(t)

	inc, err := stack.incidents.Report(context.Background(), reporter(), accidentReport())

	req.NoError(err)
	req.NotZero(inc.ID)
	req.True(inc.ChatRoomActive)
	req.Equal("u1", inc.ReportedBy)
	req.Equal(domain.SeverityHigh, inc.Severity)

	got, err := stack.incidents.Get(inc.ID)
	req.NoError(err)
	req.Equal(inc.ID, got.ID)
}

func TestIncidentService_ReportDefaultsSeverity(t *testing.T) {
	req := require.New(t)
	stack := newServiceStack(t)

	r := accidentReport()
	r.Severity = ""
	inc, err := stack.incidents.Report(context.Background(), reporter(), r)

	req.NoError(err)
	req.Equal(domain.SeverityMedium, inc.Severity)
}

func TestIncidentService_ReportValidation(t *testing.T) {
	req := require.New(t)
	stack := newServiceStack(t)

	r := accidentReport()
	r.Type = "alien_invasion"
	_, err := stack.incidents.Report(context.Background(), reporter(), r)
	req.Error(err)

	r = accidentReport()
	r.Lat = 123.0
	_, err = stack.incidents.Report(context.Background(), reporter(), r)
	req.Error(err)
}

func TestIncidentService_ReportAnnouncesToSessions(t *testing.T) {
	req := require.New(t)
	stack := newServiceStack(t)

	session := stack.chat.OpenSession()

	inc, err := stack.incidents.Report(context.Background(), reporter(), accidentReport())
	req.NoError(err)

	select {
	case e := <-session.Events():
		announced, ok := e.(event.NewIncident)
		req.True(ok, "expected NewIncident, got %T", e)
		req.Equal(inc.ID, announced.Incident.ID)
	case <-time.After(2 * time.Second):
		req.Fail("session never saw the new incident announcement")
	}
}

func TestIncidentService_SearchFindsReportedIncident(t *testing.T) {
	req := require.New(t)
	stack := newServiceStack(t)
	ctx := context.Background()

	inc, err := stack.incidents.Report(ctx, reporter(), accidentReport())
	req.NoError(err)

	found, err := stack.incidents.Search(ctx, "jackknifed", 10)
	req.NoError(err)
	req.Len(found, 1)
	req.Equal(inc.ID, found[0].ID)

	none, err := stack.incidents.Search(ctx, "wildfire", 10)
	req.NoError(err)
	req.Empty(none)
}

func TestIncidentService_MessagesReturnsHistoryAfterSeq(t *testing.T) {
	req := require.New(t)
	stack := newServiceStack(t)
	ctx := context.Background()

	inc, err := stack.incidents.Report(ctx, reporter(), accidentReport())
	req.NoError(err)

	session := stack.chat.OpenSession()
	req.NoError(stack.chat.Authenticate(session.SID(), reporter()))
	_, err = stack.chat.Join(ctx, session.SID(), inc.ID, 0)
	req.NoError(err)

	for _, body := range []string{"one", "two", "three"} {
		_, err := stack.chat.Send(ctx, session.SID(), inc.ID, body)
		req.NoError(err)
	}

	history, err := stack.incidents.Messages(inc.ID, 1)
	req.NoError(err)
	req.Len(history, 2)
	req.Equal("two", history[0].Body)
	req.Equal("three", history[1].Body)

	uptodate, err := stack.incidents.Messages(inc.ID, 3)
	req.NoError(err)
	req.Empty(uptodate)
}

func TestIncidentService_ResolveRequiresAdmin(t *testing.T) {
	req := require.New(t)
	stack := newServiceStack(t)
	ctx := context.Background()

	inc, err := stack.incidents.Report(ctx, reporter(), accidentReport())
	req.NoError(err)

	err = stack.incidents.Resolve(ctx, reporter(), inc.ID)
	req.ErrorIs(err, errors.ErrUnauthenticated)

	got, err := stack.incidents.Get(inc.ID)
	req.NoError(err)
	req.False(got.Resolved)
}

func TestIncidentService_ResolveClosesRoomAfterNotice(t *testing.T) {
	req := require.New(t)
	stack := newServiceStack(t)
	ctx := context.Background()

	inc, err := stack.incidents.Report(ctx, reporter(), accidentReport())
	req.NoError(err)

	member := stack.chat.OpenSession()
	req.NoError(stack.chat.Authenticate(member.SID(), reporter()))
	_, err = stack.chat.Join(ctx, member.SID(), inc.ID, 0)
	req.NoError(err)

	req.NoError(stack.incidents.Resolve(ctx, admin(), inc.ID))

	got, err := stack.incidents.Get(inc.ID)
	req.NoError(err)
	req.True(got.Resolved)
	req.False(got.ChatRoomActive)

	// The member heard the closing notice before the room shut.
	history, err := stack.incidents.Messages(inc.ID, 0)
	req.NoError(err)
	req.Len(history, 1)
	req.Equal(domain.KindSystem, history[0].Kind)

	// Posting into a resolved incident is refused.
	_, err = stack.chat.Send(ctx, member.SID(), inc.ID, "anyone still here?")
	req.ErrorIs(err, errors.ErrRoomInactive)
}

func TestIncidentService_Stats(t *testing.T) {
	req := require.New(t)
	stack := newServiceStack(t)
	ctx := context.Background()

	inc, err := stack.incidents.Report(ctx, reporter(), accidentReport())
	req.NoError(err)
	_, err = stack.incidents.Report(ctx, reporter(), accidentReport())
	req.NoError(err)

	session := stack.chat.OpenSession()
	req.NoError(stack.chat.Authenticate(session.SID(), reporter()))
	_, err = stack.chat.Join(ctx, session.SID(), inc.ID, 0)
	req.NoError(err)
	_, err = stack.chat.Send(ctx, session.SID(), inc.ID, "on my way")
	req.NoError(err)

	stats, err := stack.incidents.Stats("u1")
	req.NoError(err)
	req.Equal(uint64(2), stats.IncidentsReported)
	req.Equal(uint64(1), stats.MessagesSent)
}

func TestChatService_SendBlockedMessage(t *testing.T) {
	req := require.New(t)
	stack := newServiceStack(t)
	ctx := context.Background()

	inc, err := stack.incidents.Report(ctx, reporter(), accidentReport())
	req.NoError(err)

	session := stack.chat.OpenSession()
	req.NoError(stack.chat.Authenticate(session.SID(), reporter()))
	_, err = stack.chat.Join(ctx, session.SID(), inc.ID, 0)
	req.NoError(err)

	_, err = stack.chat.Send(ctx, session.SID(), inc.ID, "what a stupid detour")
	var blocked *errors.BlockedError
	req.ErrorAs(err, &blocked)
}

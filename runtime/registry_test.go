package runtime

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"roadlink/domain"
)

func TestSessionRegistry_RegisterAndGet(t *testing.T) {
	req := require.New(t)
	registry := NewSessionRegistry(slog.Default(), 8, 20*time.Millisecond)

	s := registry.Register()
	req.NotEmpty(s.SID())
	req.True(s.Who().Anonymous())

	got, ok := registry.Get(s.SID())
	req.True(ok)
	req.Equal(s, got)
	req.Equal(1, registry.Len())
}

func TestSessionRegistry_AttachIdentity(t *testing.T) {
	req := require.New(t)
	registry := NewSessionRegistry(slog.Default(), 8, 20*time.Millisecond)
	s := registry.Register()

	identity := domain.Identity{UserID: "u1", Name: "Alice", Role: domain.RoleUser}
	req.True(registry.AttachIdentity(s.SID(), identity))
	req.Equal(identity, s.Who())

	// Attaching twice is harmless
	req.True(registry.AttachIdentity(s.SID(), identity))

	// Unknown sessions report false
	req.False(registry.AttachIdentity("ghost", identity))
}

func TestSessionRegistry_RemoveIdempotent(t *testing.T) {
	req := require.New(t)
	registry := NewSessionRegistry(slog.Default(), 8, 20*time.Millisecond)
	s := registry.Register()

	removed, ok := registry.Remove(s.SID())
	req.True(ok)
	req.Equal(s, removed)

	_, ok = registry.Remove(s.SID())
	req.False(ok)
	req.Equal(0, registry.Len())
}

func TestMembership_JoinLeave(t *testing.T) {
	req := require.New(t)
	m := NewMembership()

	m.Join("s1", 1)
	m.Join("s2", 1)
	req.True(m.IsMember("s1", 1))
	req.ElementsMatch([]domain.SessionID{"s1", "s2"}, m.MembersOf(1))

	// Leave reports the remaining member count
	req.Equal(1, m.Leave("s1", 1))
	req.False(m.IsMember("s1", 1))
	req.Equal(0, m.Leave("s2", 1))
	req.Empty(m.MembersOf(1))

	// Leaving a room you are not in is a no-op
	req.Equal(0, m.Leave("s1", 99))
}

func TestMembership_DropSession(t *testing.T) {
	req := require.New(t)
	m := NewMembership()

	m.Join("s1", 1)
	m.Join("s1", 2)
	m.Join("s2", 2)

	incidents := m.DropSession("s1")
	req.ElementsMatch([]domain.IncidentID{1, 2}, incidents)
	req.Empty(m.MembersOf(1))
	req.ElementsMatch([]domain.SessionID{"s2"}, m.MembersOf(2))

	// Dropping an unknown session touches nothing
	req.Empty(m.DropSession("ghost"))
}

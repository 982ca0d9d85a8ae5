package repositories

import (
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"

	"roadlink/domain"
	"roadlink/errors"
)

func openTestDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).
		WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seedIncident(t *testing.T, db *badger.DB) domain.Incident {
	t.Helper()
	repo := NewIncidentRepository(db, slog.Default())
	inc, err := repo.Create(domain.Incident{
		Lat: 48.85, Lng: 2.35,
		Type:           domain.TypeAccident,
		Severity:       domain.SeverityHigh,
		Description:    "pileup on the ring road",
		ChatRoomActive: true,
	})
	require.NoError(t, err)
	return inc
}

func TestMessageRepository_AppendAssignsContiguousSeq(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	inc := seedIncident(t, db)
	repo := NewMessageRepository(db, slog.Default())
	author := domain.Identity{UserID: "u1", Name: "Alice", Role: domain.RoleUser}

	// When appending several messages
	for i := 1; i <= 5; i++ {
		msg, err := repo.Append(inc.ID, author, fmt.Sprintf("message %d", i), domain.KindText, "en")
		req.NoError(err)

		// Then each one gets the next sequence number, starting at 1
		req.Equal(uint64(i), msg.Seq)
		req.NotEqual("", msg.ID.String())
		req.False(msg.At.IsZero())
	}

	last, err := repo.LastSeq(inc.ID)
	req.NoError(err)
	req.Equal(uint64(5), last)
}

func TestMessageRepository_AppendUnknownIncident(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	repo := NewMessageRepository(db, slog.Default())

	_, err := repo.Append(999, domain.Identity{UserID: "u1"}, "hello", domain.KindText, "en")

	req.ErrorIs(err, errors.ErrIncidentNotFound)
}

func TestMessageRepository_ConcurrentAppendsStayGapFree(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	inc := seedIncident(t, db)
	repo := NewMessageRepository(db, slog.Default())

	const senders = 100
	const perSender = 10

	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := make(map[uint64]int)

	// When many goroutines append concurrently
	for g := 0; g < senders; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			author := domain.Identity{UserID: fmt.Sprintf("u%d", g), Name: "sender"}
			for i := 0; i < perSender; i++ {
				msg, err := repo.Append(inc.ID, author, "load", domain.KindText, "en")
				if err != nil {
					continue
				}
				mu.Lock()
				seen[msg.Seq]++
				mu.Unlock()
			}
		}(g)
	}
	wg.Wait()

	// Then every assigned number is unique and the range 1..N has no gap
	req.Len(seen, senders*perSender)
	for s := uint64(1); s <= senders*perSender; s++ {
		req.Equal(1, seen[s], "sequence %d must be assigned exactly once", s)
	}
}

func TestMessageRepository_ReadRangeBounds(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	inc := seedIncident(t, db)
	repo := NewMessageRepository(db, slog.Default())
	author := domain.Identity{UserID: "u1", Name: "Alice"}

	for i := 1; i <= 10; i++ {
		_, err := repo.Append(inc.ID, author, fmt.Sprintf("m%d", i), domain.KindText, "en")
		req.NoError(err)
	}

	// (3, 7] returns sequences 4..7 in order
	msgs, err := repo.ReadRange(inc.ID, 3, 7)
	req.NoError(err)
	req.Len(msgs, 4)
	for i, m := range msgs {
		req.Equal(uint64(4+i), m.Seq)
		req.Equal("Alice", m.Author.Name)
	}

	// (10, 10] and beyond is empty
	msgs, err = repo.ReadRange(inc.ID, 10, 10)
	req.NoError(err)
	req.Empty(msgs)

	// (0, watermark] replays everything
	msgs, err = repo.ReadRange(inc.ID, 0, 10)
	req.NoError(err)
	req.Len(msgs, 10)
}

func TestMessageRepository_LastSeqEmptyRoom(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	inc := seedIncident(t, db)
	repo := NewMessageRepository(db, slog.Default())

	last, err := repo.LastSeq(inc.ID)

	req.NoError(err)
	req.Equal(uint64(0), last)
}

func TestMessageRepository_CountByAuthor(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	inc := seedIncident(t, db)
	repo := NewMessageRepository(db, slog.Default())

	alice := domain.Identity{UserID: "u1", Name: "Alice"}
	for i := 0; i < 3; i++ {
		_, err := repo.Append(inc.ID, alice, "hi", domain.KindText, "en")
		req.NoError(err)
	}
	// Anonymous system notices do not count toward anyone's stats
	_, err := repo.Append(inc.ID, domain.Identity{Name: "system"}, "notice", domain.KindSystem, "en")
	req.NoError(err)

	count, err := repo.CountByAuthor("u1")
	req.NoError(err)
	req.Equal(uint64(3), count)

	count, err = repo.CountByAuthor("nobody")
	req.NoError(err)
	req.Equal(uint64(0), count)
}

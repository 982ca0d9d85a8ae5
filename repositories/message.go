//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"roadlink/domain"
	"roadlink/errors"
)

type IMessageRepository interface {
	Append(incident domain.IncidentID, author domain.Identity, body, kind, lang string) (domain.Message, error)
	ReadRange(incident domain.IncidentID, fromExclusive, toInclusive uint64) ([]domain.Message, error)
	LastSeq(incident domain.IncidentID) (uint64, error)
	CountByAuthor(userID string) (uint64, error)
}

// MessageRepository is the durable, append-only per-incident message log.
// Sequence numbers are assigned here, inside the append transaction, and
// nowhere else. Callers serialize appends per incident (one room worker
// per incident), so the read-increment-write on the counter never races.
type MessageRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewMessageRepository(db *badger.DB, log *slog.Logger) MessageRepository {
	return MessageRepository{db: db, log: log}
}

// DiskMessage is the stored representation of a chat message.
type DiskMessage struct {
	ID         uuid.UUID `json:"id"`
	Incident   int64     `json:"incident"`
	Seq        uint64    `json:"seq"`
	AuthorID   string    `json:"author_id"`
	AuthorName string    `json:"author_name"`
	AuthorRole string    `json:"author_role"`
	Body       string    `json:"body"`
	Kind       string    `json:"kind"`
	Lang       string    `json:"lang,omitempty"`
	At         time.Time `json:"at"`
}

// Key layout. The sequence number is zero padded to 20 digits so that a
// lexicographic prefix scan returns messages in sequence order.
func messageKey(incident domain.IncidentID, seq uint64) []byte {
	return []byte(fmt.Sprintf("msg:%d:%020d", incident, seq))
}

func messagePrefix(incident domain.IncidentID) []byte {
	return []byte(fmt.Sprintf("msg:%d:", incident))
}

func seqKey(incident domain.IncidentID) []byte {
	return []byte(fmt.Sprintf("seq:%d", incident))
}

func messageStatsKey(userID string) []byte {
	return []byte("stats:messages:" + userID)
}

// Append persists a message and assigns it the next sequence number for its
// incident, all in one transaction. It fails with ErrIncidentNotFound when
// the incident does not exist and wraps any storage failure in
// ErrStoreUnavailable. Blocked content must never reach this method.
func (m MessageRepository) Append(incident domain.IncidentID, author domain.Identity, body, kind, lang string) (domain.Message, error) {
	msg := domain.Message{
		ID:       uuid.New(),
		Incident: incident,
		Author:   author,
		Body:     body,
		Kind:     kind,
		Lang:     lang,
		At:       time.Now().UTC(),
	}

	// Badger transactions are optimistic; concurrent writers on the same
	// counter conflict instead of queueing, so the transaction retries
	// until it lands. The room worker serializes the hot path, retries
	// only matter for out-of-band writers such as system notices.
	err := m.updateWithRetry(func(txn *badger.Txn) error {
		if _, err := txn.Get(incidentKey(incident)); err != nil {
			if err == badger.ErrKeyNotFound {
				return errors.ErrIncidentNotFound
			}
			return err
		}

		last, err := readCounter(txn, seqKey(incident))
		if err != nil {
			return err
		}
		msg.Seq = last + 1
		if err := txn.Set(seqKey(incident), encodeCounter(msg.Seq)); err != nil {
			return err
		}

		bytes, err := json.Marshal(fromMessage(msg))
		if err != nil {
			return err
		}
		if err := txn.Set(messageKey(incident, msg.Seq), bytes); err != nil {
			return err
		}

		if !author.Anonymous() {
			return incrementCounter(txn, messageStatsKey(author.UserID))
		}
		return nil
	})

	if err != nil {
		if err == errors.ErrIncidentNotFound {
			return domain.Message{}, err
		}
		return domain.Message{}, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	return msg, nil
}

func (m MessageRepository) updateWithRetry(fn func(txn *badger.Txn) error) error {
	for {
		err := m.db.Update(fn)
		if err != badger.ErrConflict {
			return err
		}
	}
}

// ReadRange returns the messages of an incident with sequence numbers in
// (fromExclusive, toInclusive], in ascending sequence order. An empty or
// inverted range returns nil.
func (m MessageRepository) ReadRange(incident domain.IncidentID, fromExclusive, toInclusive uint64) ([]domain.Message, error) {
	if toInclusive <= fromExclusive {
		return nil, nil
	}

	var diskMessages []DiskMessage
	err := m.db.View(func(txn *badger.Txn) error {
		prefix := messagePrefix(incident)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(messageKey(incident, fromExclusive+1)); it.ValidForPrefix(prefix); it.Next() {
			var dm DiskMessage
			err := it.Item().Value(func(value []byte) error {
				return json.Unmarshal(value, &dm)
			})
			if err != nil {
				return err
			}
			if dm.Seq > toInclusive {
				break
			}
			diskMessages = append(diskMessages, dm)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}

	return lo.Map(diskMessages, func(dm DiskMessage, _ int) domain.Message {
		return toMessage(dm)
	}), nil
}

// LastSeq returns the highest sequence number assigned for an incident so
// far (0 when no message exists). This is the join watermark.
func (m MessageRepository) LastSeq(incident domain.IncidentID) (uint64, error) {
	var last uint64
	err := m.db.View(func(txn *badger.Txn) error {
		var err error
		last, err = readCounter(txn, seqKey(incident))
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	return last, nil
}

// CountByAuthor returns how many messages a user has posted, maintained as
// a counter inside the append transaction.
func (m MessageRepository) CountByAuthor(userID string) (uint64, error) {
	var count uint64
	err := m.db.View(func(txn *badger.Txn) error {
		var err error
		count, err = readCounter(txn, messageStatsKey(userID))
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	return count, nil
}

func fromMessage(msg domain.Message) DiskMessage {
	return DiskMessage{
		ID:         msg.ID,
		Incident:   int64(msg.Incident),
		Seq:        msg.Seq,
		AuthorID:   msg.Author.UserID,
		AuthorName: msg.Author.Name,
		AuthorRole: msg.Author.Role,
		Body:       msg.Body,
		Kind:       msg.Kind,
		Lang:       msg.Lang,
		At:         msg.At,
	}
}

func toMessage(dm DiskMessage) domain.Message {
	return domain.Message{
		ID:       dm.ID,
		Incident: domain.IncidentID(dm.Incident),
		Seq:      dm.Seq,
		Author: domain.Identity{
			UserID: dm.AuthorID,
			Name:   dm.AuthorName,
			Role:   dm.AuthorRole,
		},
		Body: dm.Body,
		Kind: dm.Kind,
		Lang: dm.Lang,
		At:   dm.At.UTC(),
	}
}

func readCounter(txn *badger.Txn, key []byte) (uint64, error) {
	item, err := txn.Get(key)
	if err == badger.ErrKeyNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var value uint64
	err = item.Value(func(val []byte) error {
		if len(val) != 8 {
			return fmt.Errorf("corrupt counter at %q", key)
		}
		value = binary.BigEndian.Uint64(val)
		return nil
	})
	return value, err
}

func encodeCounter(value uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, value)
	return buf
}

func incrementCounter(txn *badger.Txn, key []byte) error {
	current, err := readCounter(txn, key)
	if err != nil {
		return err
	}
	return txn.Set(key, encodeCounter(current+1))
}

//go:generate go run go.uber.org/mock/mockgen -source=incident.go -destination=../mocks/mock_incident_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"

	"roadlink/domain"
	"roadlink/errors"
)

type IIncidentRepository interface {
	Create(inc domain.Incident) (domain.Incident, error)
	Get(id domain.IncidentID) (domain.Incident, error)
	ListUnresolved() ([]domain.Incident, error)
	Nearby(lat, lng, radiusKm float64) ([]domain.Incident, error)
	Resolve(id domain.IncidentID) error
	ChatActive(id domain.IncidentID) (bool, error)
	CountByReporter(userID string) (uint64, error)
}

type IncidentRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewIncidentRepository(db *badger.DB, log *slog.Logger) IncidentRepository {
	return IncidentRepository{db: db, log: log}
}

type DiskIncident struct {
	ID             int64     `json:"id"`
	Lat            float64   `json:"lat"`
	Lng            float64   `json:"lng"`
	Type           string    `json:"type"`
	Severity       string    `json:"severity"`
	Description    string    `json:"description"`
	Location       string    `json:"location"`
	ReportedBy     string    `json:"reported_by,omitempty"`
	ReporterName   string    `json:"reporter_name,omitempty"`
	ChatRoomActive bool      `json:"chat_room_active"`
	Resolved       bool      `json:"resolved"`
	CreatedAt      time.Time `json:"created_at"`
}

// The counter key deliberately has no colon so the "incident:" prefix scan
// never picks it up.
var incidentCounterKey = []byte("incident_seq")

func incidentKey(id domain.IncidentID) []byte {
	return []byte(fmt.Sprintf("incident:%020d", id))
}

func incidentStatsKey(userID string) []byte {
	return []byte("stats:incidents:" + userID)
}

// Create assigns a fresh incident id and persists the incident. The caller's
// ID and CreatedAt fields are overwritten.
func (r IncidentRepository) Create(inc domain.Incident) (domain.Incident, error) {
	// Retried on conflict: concurrent reports race on the shared counter.
	err := r.updateWithRetry(func(txn *badger.Txn) error {
		last, err := readCounter(txn, incidentCounterKey)
		if err != nil {
			return err
		}
		inc.ID = domain.IncidentID(last + 1)
		inc.CreatedAt = time.Now().UTC()
		if err := txn.Set(incidentCounterKey, encodeCounter(last+1)); err != nil {
			return err
		}

		bytes, err := json.Marshal(fromIncident(inc))
		if err != nil {
			return err
		}
		if err := txn.Set(incidentKey(inc.ID), bytes); err != nil {
			return err
		}

		if inc.ReportedBy != "" {
			return incrementCounter(txn, incidentStatsKey(inc.ReportedBy))
		}
		return nil
	})
	if err != nil {
		return domain.Incident{}, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	return inc, nil
}

func (r IncidentRepository) updateWithRetry(fn func(txn *badger.Txn) error) error {
	for {
		err := r.db.Update(fn)
		if err != badger.ErrConflict {
			return err
		}
	}
}

func (r IncidentRepository) Get(id domain.IncidentID) (domain.Incident, error) {
	var di DiskIncident
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(incidentKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &di)
		})
	})
	if err == badger.ErrKeyNotFound {
		return domain.Incident{}, errors.ErrIncidentNotFound
	}
	if err != nil {
		return domain.Incident{}, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	return toIncident(di), nil
}

// ListUnresolved returns all open incidents, newest first.
func (r IncidentRepository) ListUnresolved() ([]domain.Incident, error) {
	var disk []DiskIncident
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := []byte("incident:")
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		// Reverse scan from the highest possible id yields newest first
		seekKey := append([]byte{}, prefix...)
		seekKey = append(seekKey, []byte("99999999999999999999")...)
		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			var di DiskIncident
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &di)
			})
			if err != nil {
				return err
			}
			if !di.Resolved {
				disk = append(disk, di)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}

	return lo.Map(disk, func(di DiskIncident, _ int) domain.Incident {
		return toIncident(di)
	}), nil
}

// Nearby filters unresolved incidents by great-circle distance.
func (r IncidentRepository) Nearby(lat, lng, radiusKm float64) ([]domain.Incident, error) {
	all, err := r.ListUnresolved()
	if err != nil {
		return nil, err
	}
	return lo.Filter(all, func(inc domain.Incident, _ int) bool {
		return haversineKm(lat, lng, inc.Lat, inc.Lng) <= radiusKm
	}), nil
}

// Resolve marks an incident resolved and closes its chatroom. Subsequent
// join and send attempts fail with ErrRoomInactive.
func (r IncidentRepository) Resolve(id domain.IncidentID) error {
	err := r.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(incidentKey(id))
		if err != nil {
			return err
		}
		var di DiskIncident
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &di)
		}); err != nil {
			return err
		}
		di.Resolved = true
		di.ChatRoomActive = false
		bytes, err := json.Marshal(di)
		if err != nil {
			return err
		}
		return txn.Set(incidentKey(id), bytes)
	})
	if err == badger.ErrKeyNotFound {
		return errors.ErrIncidentNotFound
	}
	if err != nil {
		return fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	return nil
}

// ChatActive reports whether the incident's chatroom accepts members and
// messages. Unknown incidents fail with ErrIncidentNotFound.
func (r IncidentRepository) ChatActive(id domain.IncidentID) (bool, error) {
	inc, err := r.Get(id)
	if err != nil {
		return false, err
	}
	return inc.ChatRoomActive && !inc.Resolved, nil
}

func (r IncidentRepository) CountByReporter(userID string) (uint64, error) {
	var count uint64
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		count, err = readCounter(txn, incidentStatsKey(userID))
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	return count, nil
}

func fromIncident(inc domain.Incident) DiskIncident {
	return DiskIncident{
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

func toIncident(di DiskIncident) domain.Incident {
	return domain.Incident{
		ID:             domain.IncidentID(di.ID),
		Lat:            di.Lat,
		Lng:            di.Lng,
		Type:           di.Type,
		Severity:       di.Severity,
		Description:    di.Description,
		Location:       di.Location,
		ReportedBy:     di.ReportedBy,
		ReporterName:   di.ReporterName,
		ChatRoomActive: di.ChatRoomActive,
		Resolved:       di.Resolved,
		CreatedAt:      di.CreatedAt.UTC(),
	}
}

const earthRadiusKm = 6371.0

func haversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180
	dLng := (lng2 - lng1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

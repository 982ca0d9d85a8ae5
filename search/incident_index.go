//go:generate go run go.uber.org/mock/mockgen -source=incident_index.go -destination=../mocks/mock_incident_index.go -package=mocks
package search

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/blugelabs/bluge"

	"roadlink/domain"
)

type IIncidentIndex interface {
	Index(inc domain.Incident) error
	Remove(id domain.IncidentID) error
	Search(ctx context.Context, query string, limit int) ([]domain.IncidentID, uint64, error)
}

// IncidentIndex is the full-text view over reported incidents. Badger
// stays the source of truth; the index only resolves free-text queries
// into incident ids.
type IncidentIndex struct {
	writer *bluge.Writer
	log    *slog.Logger
}

func NewIncidentIndex(writer *bluge.Writer, log *slog.Logger) *IncidentIndex {
	return &IncidentIndex{writer: writer, log: log}
}

func (x *IncidentIndex) Index(inc domain.Incident) error {
	doc := bluge.NewDocument(strconv.FormatInt(int64(inc.ID), 10)).
		AddField(bluge.NewTextField("description", inc.Description).StoreValue()).
		AddField(bluge.NewTextField("location", inc.Location)).
		AddField(bluge.NewKeywordField("type", inc.Type)).
		AddField(bluge.NewKeywordField("severity", inc.Severity))
	if err := x.writer.Update(doc.ID(), doc); err != nil {
		return fmt.Errorf("indexing incident %d: %w", inc.ID, err)
	}
	return nil
}

func (x *IncidentIndex) Remove(id domain.IncidentID) error {
	doc := bluge.NewDocument(strconv.FormatInt(int64(id), 10))
	return x.writer.Delete(doc.ID())
}

// Search matches the query against description, location and type and
// returns the ids of the best matches plus the total hit count.
func (x *IncidentIndex) Search(ctx context.Context, query string, limit int) ([]domain.IncidentID, uint64, error) {
	reader, err := x.writer.Reader()
	if err != nil {
		return nil, 0, fmt.Errorf("opening index reader: %w", err)
	}
	defer reader.Close()

	q := bluge.NewBooleanQuery().
		AddShould(bluge.NewMatchQuery(query).SetField("description")).
		AddShould(bluge.NewMatchQuery(query).SetField("location")).
		AddShould(bluge.NewMatchQuery(query).SetField("type")).
		SetMinShould(1)

	req := bluge.NewTopNSearch(limit, q).WithStandardAggregations()
	iter, err := reader.Search(ctx, req)
	if err != nil {
		return nil, 0, fmt.Errorf("searching incidents: %w", err)
	}

	var ids []domain.IncidentID
	match, err := iter.Next()
	for err == nil && match != nil {
		visitErr := match.VisitStoredFields(func(field string, value []byte) bool {
			if field == "_id" {
				if id, parseErr := strconv.ParseInt(string(value), 10, 64); parseErr == nil {
					ids = append(ids, domain.IncidentID(id))
				}
			}
			return true
		})
		if visitErr != nil {
			x.log.Warn("Skipping unreadable search hit", "error", visitErr)
		}
		match, err = iter.Next()
	}
	if err != nil {
		return nil, 0, fmt.Errorf("iterating search hits: %w", err)
	}
	return ids, iter.Aggregations().Count(), nil
}

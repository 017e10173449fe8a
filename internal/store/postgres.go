// Package store provides candidate store implementations for the resolver.
package store

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"horse.fit/sift/internal/db"
	"horse.fit/sift/internal/dedup"
)

// Postgres serves candidate queries from sift.records.
type Postgres struct {
	pool   *db.Pool
	logger zerolog.Logger
}

func NewPostgres(pool *db.Pool, logger zerolog.Logger) *Postgres {
	return &Postgres{pool: pool, logger: logger}
}

const fetchCandidatesQuery = `
SELECT
	r.record_id,
	r.owner_id,
	COALESCE(r.text, ''),
	COALESCE(r.title, ''),
	COALESCE(r.body, ''),
	COALESCE(r.description, ''),
	r.fingerprint
FROM sift.records r
WHERE r.owner_id = $1
	AND r.deleted_at IS NULL
	AND r.normalized_length >= $2
	AND ($3 <= 0 OR r.normalized_length <= $3)
ORDER BY r.record_id
`

// FetchCandidates returns the owner's stored records inside the band,
// ordered by id.
func (s *Postgres) FetchCandidates(ctx context.Context, ownerID string, band dedup.LengthBand) ([]dedup.StoredRecord, error) {
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("store is not initialized")
	}

	rows, err := s.pool.Query(ctx, fetchCandidatesQuery, ownerID, band.Min, band.Max)
	if err != nil {
		return nil, fmt.Errorf("query candidates for owner %s: %w", ownerID, err)
	}
	defer rows.Close()

	candidates := make([]dedup.StoredRecord, 0, 64)
	for rows.Next() {
		var rec dedup.StoredRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.OwnerID,
			&rec.Text,
			&rec.Title,
			&rec.Body,
			&rec.Description,
			&rec.Fingerprint,
		); err != nil {
			return nil, fmt.Errorf("scan candidate row: %w", err)
		}
		candidates = append(candidates, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candidate rows: %w", err)
	}

	s.logger.Debug().
		Str("owner_id", ownerID).
		Int("candidates", len(candidates)).
		Msg("fetched stored candidates")

	return candidates, nil
}

package store

import (
	"context"

	"horse.fit/sift/internal/dedup"
)

// Null serves no candidates. Resolution against it degrades to
// batch-local comparison only.
type Null struct{}

func (Null) FetchCandidates(context.Context, string, dedup.LengthBand) ([]dedup.StoredRecord, error) {
	return nil, nil
}

package db

import (
	"context"
	"fmt"
	"time"
)

// ResolutionRunSummary is the read model for run listings.
type ResolutionRunSummary struct {
	RunUUID               string     `json:"run_uuid"`
	Strategy              string     `json:"strategy"`
	Status                string     `json:"status"`
	OwnerCount            int        `json:"owner_count"`
	RecordsTotal          int        `json:"records_total"`
	RecordsUnique         int        `json:"records_unique"`
	DuplicatesExternal    int        `json:"duplicates_external"`
	DuplicatesInternal    int        `json:"duplicates_internal"`
	NormalizationFailures int        `json:"normalization_failures"`
	RecordsPersisted      int        `json:"records_persisted"`
	ErrorMessage          *string    `json:"error_message,omitempty"`
	StartedAt             time.Time  `json:"started_at"`
	FinishedAt            *time.Time `json:"finished_at,omitempty"`
}

// QueryRecentRuns returns resolution runs ordered newest first.
func (p *Pool) QueryRecentRuns(ctx context.Context, limit, offset int) ([]ResolutionRunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	const query = `
SELECT
	rr.run_uuid::text,
	rr.strategy,
	rr.status::TEXT,
	rr.owner_count,
	rr.records_total,
	rr.records_unique,
	rr.duplicates_external,
	rr.duplicates_internal,
	rr.normalization_failures,
	rr.records_persisted,
	rr.error_message,
	rr.started_at,
	rr.finished_at
FROM sift.resolution_runs rr
ORDER BY rr.started_at DESC, rr.run_id DESC
LIMIT $1 OFFSET $2
`

	rows, err := p.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query recent runs: %w", err)
	}
	defer rows.Close()

	runs := make([]ResolutionRunSummary, 0, limit)
	for rows.Next() {
		var row ResolutionRunSummary
		if err := rows.Scan(
			&row.RunUUID,
			&row.Strategy,
			&row.Status,
			&row.OwnerCount,
			&row.RecordsTotal,
			&row.RecordsUnique,
			&row.DuplicatesExternal,
			&row.DuplicatesInternal,
			&row.NormalizationFailures,
			&row.RecordsPersisted,
			&row.ErrorMessage,
			&row.StartedAt,
			&row.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		runs = append(runs, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run rows: %w", err)
	}

	return runs, nil
}

// QueryRunByUUID returns one resolution run, or ErrNoRows when the UUID is
// unknown.
func (p *Pool) QueryRunByUUID(ctx context.Context, runUUID string) (*ResolutionRunSummary, error) {
	const query = `
SELECT
	rr.run_uuid::text,
	rr.strategy,
	rr.status::TEXT,
	rr.owner_count,
	rr.records_total,
	rr.records_unique,
	rr.duplicates_external,
	rr.duplicates_internal,
	rr.normalization_failures,
	rr.records_persisted,
	rr.error_message,
	rr.started_at,
	rr.finished_at
FROM sift.resolution_runs rr
WHERE rr.run_uuid = $1::uuid
`

	var row ResolutionRunSummary
	err := p.QueryRow(ctx, query, runUUID).Scan(
		&row.RunUUID,
		&row.Strategy,
		&row.Status,
		&row.OwnerCount,
		&row.RecordsTotal,
		&row.RecordsUnique,
		&row.DuplicatesExternal,
		&row.DuplicatesInternal,
		&row.NormalizationFailures,
		&row.RecordsPersisted,
		&row.ErrorMessage,
		&row.StartedAt,
		&row.FinishedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, ErrNoRows
		}
		return nil, fmt.Errorf("query run %q: %w", runUUID, err)
	}

	return &row, nil
}

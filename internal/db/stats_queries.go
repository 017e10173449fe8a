package db

import (
	"context"
	"fmt"
	"time"
)

// StatsOwnerCount stores per-owner record counts.
type StatsOwnerCount struct {
	OwnerID      string    `json:"owner_id"`
	Records      int64     `json:"records"`
	LastStoredAt time.Time `json:"last_stored_at"`
}

// StatsRunCounts stores resolution run counts by status.
type StatsRunCounts struct {
	Running   int64 `json:"running"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// StoreThroughput stores daily throughput counters.
type StoreThroughput struct {
	RecordsStoredToday int64 `json:"records_stored_today"`
	RunsStartedToday   int64 `json:"runs_started_today"`
}

// StoreStats is the read model returned by the stats command.
type StoreStats struct {
	Day          string            `json:"day"`
	Owners       []StatsOwnerCount `json:"owners"`
	TotalRecords int64             `json:"total_records"`
	Runs         StatsRunCounts    `json:"runs"`
	Throughput   StoreThroughput   `json:"throughput"`
}

// QueryStoreStats returns per-owner record counts, run counts by status, and daily throughput.
func (p *Pool) QueryStoreStats(ctx context.Context, dayStart, dayEnd time.Time) (*StoreStats, error) {
	startUTC := dayStart.UTC()
	endUTC := dayEnd.UTC()
	if !startUTC.Before(endUTC) {
		return nil, fmt.Errorf("dayStart must be before dayEnd")
	}

	stats := &StoreStats{
		Day:    startUTC.Format("2006-01-02"),
		Owners: make([]StatsOwnerCount, 0, 16),
	}

	const ownersQuery = `
SELECT
	r.owner_id,
	COUNT(*)::BIGINT AS records,
	MAX(r.created_at) AS last_stored_at
FROM sift.records r
WHERE r.deleted_at IS NULL
GROUP BY r.owner_id
ORDER BY 1
`

	rows, err := p.Query(ctx, ownersQuery)
	if err != nil {
		return nil, fmt.Errorf("query stats owner counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var row StatsOwnerCount
		if err := rows.Scan(&row.OwnerID, &row.Records, &row.LastStoredAt); err != nil {
			return nil, fmt.Errorf("scan stats owner row: %w", err)
		}
		stats.Owners = append(stats.Owners, row)
		stats.TotalRecords += row.Records
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stats owner rows: %w", err)
	}

	const runsQuery = `
SELECT
	COUNT(*) FILTER (WHERE rr.status = 'running') AS running,
	COUNT(*) FILTER (WHERE rr.status = 'completed') AS completed,
	COUNT(*) FILTER (WHERE rr.status = 'failed') AS failed
FROM sift.resolution_runs rr
`

	if err := p.QueryRow(ctx, runsQuery).Scan(
		&stats.Runs.Running,
		&stats.Runs.Completed,
		&stats.Runs.Failed,
	); err != nil {
		return nil, fmt.Errorf("query stats run counts: %w", err)
	}

	const throughputQuery = `
SELECT
	(SELECT COUNT(*) FROM sift.records r WHERE r.created_at >= $1 AND r.created_at < $2 AND r.deleted_at IS NULL) AS records_stored_today,
	(SELECT COUNT(*) FROM sift.resolution_runs rr WHERE rr.started_at >= $1 AND rr.started_at < $2) AS runs_started_today
`

	if err := p.QueryRow(ctx, throughputQuery, startUTC, endUTC).Scan(
		&stats.Throughput.RecordsStoredToday,
		&stats.Throughput.RunsStartedToday,
	); err != nil {
		return nil, fmt.Errorf("query stats throughput: %w", err)
	}

	return stats, nil
}

package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"horse.fit/sift/internal/db"
	"horse.fit/sift/internal/dedup"
	"horse.fit/sift/internal/globaltime"
	"horse.fit/sift/internal/langdetect"
	"horse.fit/sift/internal/language"
	"horse.fit/sift/internal/reader"
	payloadschema "horse.fit/sift/schema"
)

const (
	maxRunErrorLength     = 4000
	maxExtractedTextRunes = 10000
)

// Service persists resolved batches and keeps the resolution run ledger.
type Service struct {
	pool       *db.Pool
	logger     zerolog.Logger
	normalizer *dedup.Normalizer
}

// Item is one batch record together with the persistence-only payload fields
// that the resolver does not consume.
type Item struct {
	Record   dedup.Record
	Language string
	HTML     string
}

type Request struct {
	Strategy  dedup.Strategy
	Items     []Item
	Partition dedup.Partition
}

type Result struct {
	RunID            int64
	RunUUID          string
	RecordsPersisted int
	Status           string
}

func NewService(pool *db.Pool, logger zerolog.Logger) *Service {
	return &Service{
		pool:       pool,
		logger:     logger,
		normalizer: dedup.NewNormalizer(nil),
	}
}

// RecordFromPayload converts a validated wire payload into a batch item.
// When the payload carries HTML but no plain text, the readable text is
// extracted so the record has something to compare and persist.
func RecordFromPayload(payload *payloadschema.RecordPayload, logger zerolog.Logger) Item {
	if payload == nil {
		return Item{}
	}

	record := dedup.Record{
		ID:           strings.TrimSpace(payload.RecordID),
		OwnerID:      strings.TrimSpace(payload.OwnerID),
		Text:         optionalString(payload.Text),
		Title:        optionalString(payload.Title),
		Body:         optionalString(payload.Body),
		Description:  optionalString(payload.Description),
		CanonicalURL: optionalString(payload.CanonicalURL),
	}

	item := Item{
		Record:   record,
		Language: optionalString(payload.Language),
		HTML:     optionalString(payload.HTML),
	}

	if item.HTML == "" || record.Text != "" {
		return item
	}

	extracted, err := reader.ExtractText(item.HTML, record.CanonicalURL, record.Title)
	if err != nil {
		logger.Warn().
			Err(err).
			Str("owner_id", record.OwnerID).
			Str("record_id", record.ID).
			Msg("html extraction failed")
		return item
	}

	bounded, truncated := reader.TruncateText(extracted, maxExtractedTextRunes)
	if truncated {
		logger.Debug().
			Str("owner_id", record.OwnerID).
			Str("record_id", record.ID).
			Int("max_runes", maxExtractedTextRunes).
			Msg("extracted text truncated")
	}

	item.Record.Text = bounded
	return item
}

// Records projects the resolver input out of a batch of items, preserving
// batch order.
func Records(items []Item) []dedup.Record {
	records := make([]dedup.Record, len(items))
	for i, item := range items {
		records[i] = item.Record
	}
	return records
}

// CommitPartition writes the unique survivors of a resolved batch to storage
// under a fresh resolution run. The run row is created in running state first
// so a failed persist still leaves an inspectable ledger entry.
func (s *Service) CommitPartition(ctx context.Context, req Request) (Result, error) {
	if s == nil || s.pool == nil {
		return Result{}, fmt.Errorf("ingest service is not initialized")
	}

	strategy, err := dedup.ParseStrategy(string(req.Strategy))
	if err != nil {
		return Result{}, err
	}

	runStart := globaltime.UTC()
	runID, runUUID, err := s.insertRun(ctx, string(strategy), countOwners(req.Items), req.Partition.Stats, runStart)
	if err != nil {
		return Result{}, fmt.Errorf("insert resolution run: %w", err)
	}

	persisted, persistErr := s.insertUniqueRecords(ctx, runID, req)
	if persistErr != nil {
		failedAt := globaltime.UTC()
		if markErr := s.markRunFailed(ctx, runID, persistErr, failedAt); markErr != nil {
			return Result{}, fmt.Errorf("persist records failed (%v); failed to mark run failed: %w", persistErr, markErr)
		}
		return Result{}, persistErr
	}

	finishedAt := globaltime.UTC()
	if err := s.markRunCompleted(ctx, runID, persisted, finishedAt); err != nil {
		return Result{}, fmt.Errorf("mark resolution run completed: %w", err)
	}

	s.logger.Info().
		Int64("run_id", runID).
		Str("strategy", string(strategy)).
		Int("unique", len(req.Partition.Unique)).
		Int("persisted", persisted).
		Msg("resolution run committed")

	return Result{
		RunID:            runID,
		RunUUID:          runUUID,
		RecordsPersisted: persisted,
		Status:           "completed",
	}, nil
}

func (s *Service) insertRun(
	ctx context.Context,
	strategy string,
	ownerCount int,
	stats dedup.Stats,
	startedAt time.Time,
) (int64, string, error) {
	const q = `
INSERT INTO sift.resolution_runs (
	strategy,
	status,
	owner_count,
	records_total,
	records_unique,
	duplicates_external,
	duplicates_internal,
	normalization_failures,
	records_persisted,
	started_at,
	created_at,
	updated_at
)
VALUES ($1, 'running', $2, $3, $4, $5, $6, $7, 0, $8, $8, $8)
RETURNING run_id, run_uuid::text
`

	var runID int64
	var runUUID string
	err := s.pool.QueryRow(
		ctx,
		q,
		strategy,
		ownerCount,
		stats.Total,
		stats.UniqueCount,
		stats.ExternalDuplicateCount,
		stats.InternalDuplicateCount,
		stats.NormalizationFailures,
		startedAt,
	).Scan(&runID, &runUUID)
	if err != nil {
		return 0, "", err
	}
	return runID, runUUID, nil
}

type storedRow struct {
	ownerID          string
	sourceRecordID   *string
	text             *string
	title            *string
	body             *string
	description      *string
	canonicalURL     *string
	language         string
	fingerprint      []byte
	normalizedLength int
	runID            int64
	createdAt        time.Time
}

func (s *Service) insertUniqueRecords(ctx context.Context, runID int64, req Request) (int, error) {
	if len(req.Partition.Unique) == 0 {
		return 0, nil
	}

	extras := make(map[string]Item, len(req.Items))
	for _, item := range req.Items {
		extras[item.Record.ID] = item
	}

	tx, err := s.pool.BeginTx(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	now := globaltime.UTC()
	persisted := 0
	for _, record := range req.Partition.Unique {
		row, ok := s.buildStoredRow(extras[record.ID], record, runID, now)
		if !ok {
			s.logger.Warn().
				Str("owner_id", record.OwnerID).
				Str("record_id", record.ID).
				Msg("record has no comparable text; skipping persist")
			continue
		}

		inserted, err := insertStoredRow(ctx, tx, row)
		if err != nil {
			return 0, fmt.Errorf("insert record %q: %w", record.ID, err)
		}
		if inserted {
			persisted++
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}

	return persisted, nil
}

func (s *Service) buildStoredRow(item Item, record dedup.Record, runID int64, now time.Time) (storedRow, bool) {
	raw := s.normalizer.RecordSourceText(record)
	normalized := s.normalizer.Normalize(raw)
	if normalized == "" {
		return storedRow{}, false
	}

	fp := dedup.FingerprintText(normalized)
	return storedRow{
		ownerID:          record.OwnerID,
		sourceRecordID:   normalizeNullableString(record.ID),
		text:             normalizeNullableString(record.Text),
		title:            normalizeNullableString(record.Title),
		body:             normalizeNullableString(record.Body),
		description:      normalizeNullableString(record.Description),
		canonicalURL:     normalizeNullableString(record.CanonicalURL),
		language:         resolveLanguage(item.Language, raw),
		fingerprint:      fp.Bytes(),
		normalizedLength: utf8.RuneCountInString(normalized),
		runID:            runID,
		createdAt:        now,
	}, true
}

func insertStoredRow(ctx context.Context, tx db.Tx, row storedRow) (bool, error) {
	const q = `
INSERT INTO sift.records (
	owner_id,
	source_record_id,
	text,
	title,
	body,
	description,
	canonical_url,
	language,
	fingerprint,
	normalized_length,
	run_id,
	created_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (owner_id, fingerprint) WHERE deleted_at IS NULL DO NOTHING
RETURNING record_id
`

	var recordID int64
	err := tx.QueryRow(
		ctx,
		q,
		row.ownerID,
		row.sourceRecordID,
		row.text,
		row.title,
		row.body,
		row.description,
		row.canonicalURL,
		row.language,
		row.fingerprint,
		row.normalizedLength,
		row.runID,
		row.createdAt,
	).Scan(&recordID)
	if err != nil {
		if db.IsNoRows(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *Service) markRunCompleted(ctx context.Context, runID int64, persisted int, finishedAt time.Time) error {
	const q = `
UPDATE sift.resolution_runs
SET
	status = 'completed',
	records_persisted = $2,
	finished_at = $3,
	updated_at = $3,
	error_message = NULL
WHERE run_id = $1
`
	_, err := s.pool.Exec(ctx, q, runID, persisted, finishedAt)
	return err
}

func (s *Service) markRunFailed(ctx context.Context, runID int64, cause error, finishedAt time.Time) error {
	const q = `
UPDATE sift.resolution_runs
SET
	status = 'failed',
	error_message = $2,
	finished_at = $3,
	updated_at = $3
WHERE run_id = $1
`

	_, err := s.pool.Exec(ctx, q, runID, truncateRunError(cause.Error()), finishedAt)
	return err
}

// truncateRunError clips the failure message to maxRunErrorLength runes.
func truncateRunError(message string) string {
	message = strings.TrimSpace(message)
	if len(message) <= maxRunErrorLength {
		return message
	}
	runes := []rune(message)
	if len(runes) <= maxRunErrorLength {
		return message
	}
	return string(runes[:maxRunErrorLength])
}

func resolveLanguage(hint, sample string) string {
	if code := language.NormalizeCode(hint); code != "" {
		return code
	}
	return langdetect.DetectISO6391(sample)
}

func countOwners(items []Item) int {
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		if item.Record.OwnerID == "" {
			continue
		}
		seen[item.Record.OwnerID] = struct{}{}
	}
	return len(seen)
}

func optionalString(value *string) string {
	if value == nil {
		return ""
	}
	return strings.TrimSpace(*value)
}

func normalizeNullableString(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

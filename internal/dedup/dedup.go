// Package dedup partitions batches of text records into unique records and
// duplicates. Records are compared within the batch and against previously
// stored records of the same owner, never across owners.
package dedup

import (
	"context"
	"fmt"
	"strings"
)

// Strategy selects the fuzzy similarity measure.
type Strategy string

const (
	StrategySequence    Strategy = "sequence"
	StrategyWordOverlap Strategy = "word_overlap"
)

// ParseStrategy validates a strategy name. Empty selects sequence.
func ParseStrategy(raw string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(raw))) {
	case "", StrategySequence:
		return StrategySequence, nil
	case StrategyWordOverlap:
		return StrategyWordOverlap, nil
	default:
		return "", fmt.Errorf("unknown strategy %q", raw)
	}
}

// Record is one batch input awaiting resolution. Any text field may be
// empty; the first usable one in priority order becomes the comparison
// source.
type Record struct {
	ID           string `json:"id"`
	OwnerID      string `json:"owner_id"`
	Text         string `json:"text,omitempty"`
	Title        string `json:"title,omitempty"`
	Body         string `json:"body,omitempty"`
	Description  string `json:"description,omitempty"`
	CanonicalURL string `json:"canonical_url,omitempty"`
}

// StoredRecord is a previously persisted record fetched for comparison.
// Fingerprint holds the persisted exact-match digest and is recomputed
// when absent or malformed.
type StoredRecord struct {
	ID          int64
	OwnerID     string
	Text        string
	Title       string
	Body        string
	Description string
	Fingerprint []byte
}

// OutcomeKind names how a record resolved.
type OutcomeKind string

const (
	OutcomeUnique            OutcomeKind = "unique"
	OutcomeDuplicateOfBatch  OutcomeKind = "duplicate_of_batch"
	OutcomeDuplicateOfStored OutcomeKind = "duplicate_of_stored"
)

// Outcome describes the resolution of a single record.
type Outcome struct {
	Kind           OutcomeKind `json:"kind"`
	BatchRecordID  string      `json:"batch_record_id,omitempty"`
	StoredRecordID int64       `json:"stored_record_id,omitempty"`
}

// ResolvedRecord pairs a duplicate record with what it duplicates.
type ResolvedRecord struct {
	Record  Record  `json:"record"`
	Outcome Outcome `json:"outcome"`
}

// Stats summarizes one resolution run.
type Stats struct {
	Total                  int `json:"total"`
	UniqueCount            int `json:"unique_count"`
	DuplicateCount         int `json:"duplicate_count"`
	ExternalDuplicateCount int `json:"external_duplicate_count"`
	InternalDuplicateCount int `json:"internal_duplicate_count"`
	NormalizationFailures  int `json:"normalization_failures"`
}

// Partition is the output of one resolution run, in batch order.
type Partition struct {
	Unique     []Record         `json:"unique"`
	Duplicates []ResolvedRecord `json:"duplicates"`
	Stats      Stats            `json:"stats"`
}

// LengthBand bounds the normalized length of candidate records, inclusive.
type LengthBand struct {
	Min int
	Max int
}

// CandidateStore fetches an owner's stored records whose normalized length
// falls inside the band. Stored records of other owners must never leak
// through. Implementations return candidates ordered by id.
type CandidateStore interface {
	FetchCandidates(ctx context.Context, ownerID string, band LengthBand) ([]StoredRecord, error)
}

// QueryError reports a candidate store failure that aborted a run.
type QueryError struct {
	OwnerID   string
	Processed int
	Err       error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("fetch candidates for owner %q after %d records: %v", e.OwnerID, e.Processed, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

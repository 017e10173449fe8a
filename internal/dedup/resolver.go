package dedup

import (
	"context"
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

// preparedRecord carries the derived comparison state of one batch record.
type preparedRecord struct {
	index      int
	raw        string
	rawLength  int
	normalized string
	length     int
	fp         Fingerprint
}

// ownerGroup holds the batch positions belonging to one owner, in batch order.
type ownerGroup struct {
	ownerID string
	indexes []int
}

// Resolver partitions batches into unique records and duplicates. It reads
// from the candidate store and never writes to it.
type Resolver struct {
	store      CandidateStore
	cfg        Config
	normalizer *Normalizer
	logger     zerolog.Logger
}

// NewResolver validates the configuration and builds a resolver.
func NewResolver(store CandidateStore, cfg Config, logger zerolog.Logger) (*Resolver, error) {
	if store == nil {
		return nil, fmt.Errorf("candidate store is required")
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("resolver config: %w", err)
	}
	return &Resolver{
		store:      store,
		cfg:        cfg,
		normalizer: NewNormalizer(cfg.Placeholders),
		logger:     logger,
	}, nil
}

// Normalizer exposes the resolver's normalizer so collaborators persisting
// records derive the same fingerprints.
func (r *Resolver) Normalizer() *Normalizer {
	if r == nil {
		return NewNormalizer(nil)
	}
	return r.normalizer
}

// Resolve runs a single pass over the batch. Owners are processed
// independently, each with exactly one candidate store query; records
// within an owner are processed in batch order. A store failure aborts the
// whole run with a QueryError.
func (r *Resolver) Resolve(ctx context.Context, batch []Record, strategy Strategy) (*Partition, error) {
	if r == nil || r.store == nil {
		return nil, fmt.Errorf("resolver is not initialized")
	}
	strategy, err := ParseStrategy(string(strategy))
	if err != nil {
		return nil, err
	}

	outcomes := make([]Outcome, len(batch))
	for i := range outcomes {
		outcomes[i] = Outcome{Kind: OutcomeUnique}
	}

	groups := groupByOwner(batch)

	var (
		mu        sync.Mutex
		processed int
		failures  int
		firstErr  error
	)

	runOwner := func(group ownerGroup) {
		mu.Lock()
		aborted := firstErr != nil
		mu.Unlock()
		if aborted {
			return
		}

		ownerProcessed, ownerFailures, err := r.resolveOwner(ctx, batch, group, strategy, outcomes)

		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			if firstErr == nil {
				firstErr = &QueryError{OwnerID: group.ownerID, Processed: processed, Err: err}
			}
			return
		}
		processed += ownerProcessed
		failures += ownerFailures
	}

	workers := r.cfg.OwnerWorkers
	if workers > len(groups) {
		workers = len(groups)
	}
	if workers <= 1 {
		for _, group := range groups {
			runOwner(group)
		}
	} else {
		jobs := make(chan ownerGroup)
		var wg sync.WaitGroup
		wg.Add(workers)
		for w := 0; w < workers; w++ {
			go func() {
				defer wg.Done()
				for group := range jobs {
					runOwner(group)
				}
			}()
		}
		for _, group := range groups {
			jobs <- group
		}
		close(jobs)
		wg.Wait()
	}

	if firstErr != nil {
		return nil, firstErr
	}

	partition := &Partition{
		Unique:     make([]Record, 0, len(batch)),
		Duplicates: make([]ResolvedRecord, 0),
	}
	for i, rec := range batch {
		outcome := outcomes[i]
		switch outcome.Kind {
		case OutcomeDuplicateOfBatch:
			partition.Stats.InternalDuplicateCount++
			partition.Duplicates = append(partition.Duplicates, ResolvedRecord{Record: rec, Outcome: outcome})
		case OutcomeDuplicateOfStored:
			partition.Stats.ExternalDuplicateCount++
			partition.Duplicates = append(partition.Duplicates, ResolvedRecord{Record: rec, Outcome: outcome})
		default:
			partition.Unique = append(partition.Unique, rec)
		}
	}
	partition.Stats.Total = len(batch)
	partition.Stats.UniqueCount = len(partition.Unique)
	partition.Stats.DuplicateCount = len(partition.Duplicates)
	partition.Stats.NormalizationFailures = failures

	r.logger.Debug().
		Str("strategy", string(strategy)).
		Int("total", partition.Stats.Total).
		Int("unique", partition.Stats.UniqueCount).
		Int("external_duplicates", partition.Stats.ExternalDuplicateCount).
		Int("internal_duplicates", partition.Stats.InternalDuplicateCount).
		Int("normalization_failures", partition.Stats.NormalizationFailures).
		Msg("batch resolved")

	return partition, nil
}

// resolveOwner resolves the records of one owner and writes their outcomes
// into the shared slice. Owners touch disjoint outcome positions.
func (r *Resolver) resolveOwner(ctx context.Context, batch []Record, group ownerGroup, strategy Strategy, outcomes []Outcome) (int, int, error) {
	prepared := make([]*preparedRecord, 0, len(group.indexes))
	failures := 0
	for _, i := range group.indexes {
		rec := batch[i]
		raw := r.normalizer.RecordSourceText(rec)
		normalized := ""
		if raw != "" {
			normalized = r.normalizer.Normalize(raw)
		}
		if normalized == "" {
			failures++
			r.logger.Warn().
				Str("owner_id", group.ownerID).
				Str("record_id", rec.ID).
				Msg("record has no comparable text")
			continue
		}
		prepared = append(prepared, &preparedRecord{
			index:      i,
			raw:        raw,
			rawLength:  utf8.RuneCountInString(raw),
			normalized: normalized,
			length:     utf8.RuneCountInString(normalized),
			fp:         FingerprintText(normalized),
		})
	}

	if len(prepared) == 0 {
		return len(group.indexes), failures, nil
	}

	candidates, err := r.store.FetchCandidates(ctx, group.ownerID, groupBand(prepared, r.cfg.LengthBandRatio))
	if err != nil {
		return 0, 0, err
	}
	stored := newStoredIndex(r.normalizer, candidates, r.cfg.MinFuzzyLength)

	// Exact phase. Stored matches take precedence over batch matches;
	// survivors claim their fingerprint in the batch index.
	batchSeen := newBatchIndex(len(prepared))
	survivors := make([]*preparedRecord, 0, len(prepared))
	for _, prep := range prepared {
		if id, ok := stored.lookupExact(prep.raw, prep.fp); ok {
			outcomes[prep.index] = Outcome{Kind: OutcomeDuplicateOfStored, StoredRecordID: id}
			continue
		}
		if pos, ok := batchSeen.lookup(prep.fp); ok {
			outcomes[prep.index] = Outcome{Kind: OutcomeDuplicateOfBatch, BatchRecordID: batch[pos].ID}
			continue
		}
		batchSeen.insert(prep.fp, prep.index)
		survivors = append(survivors, prep)
	}

	// Fuzzy phase. Each unresolved survivor scores against stored
	// candidates first, then sweeps forward over later survivors inside
	// the window. The longer raw text survives a batch pair; stored
	// records always survive.
	taken := make([]bool, len(survivors))
	for si, prep := range survivors {
		if taken[si] {
			continue
		}
		if prep.length < r.cfg.MinFuzzyLength {
			continue
		}
		if id, ok := r.matchStored(prep, stored.fuzzy, strategy); ok {
			outcomes[prep.index] = Outcome{Kind: OutcomeDuplicateOfStored, StoredRecordID: id}
			taken[si] = true
			continue
		}
		for sj := si + 1; sj < len(survivors); sj++ {
			other := survivors[sj]
			if other.index-prep.index > r.cfg.BatchWindow {
				break
			}
			if taken[sj] || other.length < r.cfg.MinFuzzyLength {
				continue
			}
			if !withinBand(prep.length, other.length, r.cfg.LengthBandRatio) {
				continue
			}
			if r.similarity(strategy, prep.normalized, other.normalized) < r.threshold(strategy) {
				continue
			}
			if other.rawLength > prep.rawLength {
				outcomes[prep.index] = Outcome{Kind: OutcomeDuplicateOfBatch, BatchRecordID: batch[other.index].ID}
				taken[si] = true
				break
			}
			outcomes[other.index] = Outcome{Kind: OutcomeDuplicateOfBatch, BatchRecordID: batch[prep.index].ID}
			taken[sj] = true
		}
	}

	r.logger.Debug().
		Str("owner_id", group.ownerID).
		Int("records", len(group.indexes)).
		Int("stored_candidates", len(candidates)).
		Msg("owner resolved")

	return len(group.indexes), failures, nil
}

// matchStored returns the first stored candidate, in id order, crossing the
// threshold.
func (r *Resolver) matchStored(prep *preparedRecord, candidates []storedCandidate, strategy Strategy) (int64, bool) {
	for _, cand := range candidates {
		if !withinBand(prep.length, cand.length, r.cfg.LengthBandRatio) {
			continue
		}
		if r.similarity(strategy, prep.normalized, cand.normalized) >= r.threshold(strategy) {
			return cand.id, true
		}
	}
	return 0, false
}

func groupByOwner(batch []Record) []ownerGroup {
	order := make([]string, 0)
	byOwner := make(map[string][]int)
	for i, rec := range batch {
		if _, ok := byOwner[rec.OwnerID]; !ok {
			order = append(order, rec.OwnerID)
		}
		byOwner[rec.OwnerID] = append(byOwner[rec.OwnerID], i)
	}

	groups := make([]ownerGroup, 0, len(order))
	for _, owner := range order {
		groups = append(groups, ownerGroup{ownerID: owner, indexes: byOwner[owner]})
	}
	return groups
}

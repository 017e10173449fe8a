package dedup

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

type stubStore struct {
	mu      sync.Mutex
	records map[string][]StoredRecord
	calls   map[string]int
	err     error
	errFor  string
}

func newStubStore() *stubStore {
	return &stubStore{
		records: make(map[string][]StoredRecord),
		calls:   make(map[string]int),
	}
}

func (s *stubStore) FetchCandidates(_ context.Context, ownerID string, _ LengthBand) ([]StoredRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[ownerID]++
	if s.err != nil && (s.errFor == "" || s.errFor == ownerID) {
		return nil, s.err
	}
	return s.records[ownerID], nil
}

func (s *stubStore) callCount(ownerID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[ownerID]
}

func newTestResolver(t *testing.T, store CandidateStore, cfg Config) *Resolver {
	t.Helper()
	r, err := NewResolver(store, cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}
	return r
}

func outcomeFor(t *testing.T, p *Partition, recordID string) Outcome {
	t.Helper()
	for _, dup := range p.Duplicates {
		if dup.Record.ID == recordID {
			return dup.Outcome
		}
	}
	for _, rec := range p.Unique {
		if rec.ID == recordID {
			return Outcome{Kind: OutcomeUnique}
		}
	}
	t.Fatalf("record %q missing from partition", recordID)
	return Outcome{}
}

func TestResolveCaseAndPunctuationVariant(t *testing.T) {
	t.Parallel()

	store := newStubStore()
	r := newTestResolver(t, store, DefaultConfig())

	batch := []Record{
		{ID: "a", OwnerID: "u1", Text: "Breaking News: Markets Rally Across Europe"},
		{ID: "b", OwnerID: "u1", Text: "breaking news markets rally across europe"},
	}
	p, err := r.Resolve(context.Background(), batch, StrategySequence)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	got := outcomeFor(t, p, "b")
	if got.Kind != OutcomeDuplicateOfBatch || got.BatchRecordID != "a" {
		t.Fatalf("unexpected outcome for b: %+v", got)
	}
	if len(p.Unique) != 1 || p.Unique[0].ID != "a" {
		t.Fatalf("unexpected unique set: %+v", p.Unique)
	}
	if p.Stats.InternalDuplicateCount != 1 || p.Stats.ExternalDuplicateCount != 0 {
		t.Fatalf("unexpected stats: %+v", p.Stats)
	}
}

func TestResolvePunctuationVariantIsExactDuplicate(t *testing.T) {
	t.Parallel()

	store := newStubStore()
	r := newTestResolver(t, store, DefaultConfig())

	// The second record differs only in case and trailing punctuation that
	// survives normalization. It must collide on the exact path, where the
	// first record seen wins, not on the fuzzy path, where the longer text
	// would win.
	batch := []Record{
		{ID: "first", OwnerID: "u1", Text: "Fuel prices rise sharply"},
		{ID: "second", OwnerID: "u1", Text: "FUEL PRICES RISE SHARPLY!!"},
	}
	p, err := r.Resolve(context.Background(), batch, StrategySequence)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	got := outcomeFor(t, p, "second")
	if got.Kind != OutcomeDuplicateOfBatch || got.BatchRecordID != "first" {
		t.Fatalf("unexpected outcome for second: %+v", got)
	}
	if len(p.Unique) != 1 || p.Unique[0].ID != "first" {
		t.Fatalf("expected the first record to survive, got %+v", p.Unique)
	}
	if p.Stats.InternalDuplicateCount != 1 || p.Stats.ExternalDuplicateCount != 0 {
		t.Fatalf("unexpected stats: %+v", p.Stats)
	}
}

func TestResolveNearDuplicateRetainsLonger(t *testing.T) {
	t.Parallel()

	store := newStubStore()
	r := newTestResolver(t, store, DefaultConfig())

	batch := []Record{
		{ID: "short", OwnerID: "u1", Text: "The quick brown fox jumps over the lazy dog"},
		{ID: "long", OwnerID: "u1", Text: "The quick brown fox jumps over the lazy dog today"},
	}
	p, err := r.Resolve(context.Background(), batch, StrategySequence)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	got := outcomeFor(t, p, "short")
	if got.Kind != OutcomeDuplicateOfBatch || got.BatchRecordID != "long" {
		t.Fatalf("unexpected outcome for short: %+v", got)
	}
	if len(p.Unique) != 1 || p.Unique[0].ID != "long" {
		t.Fatalf("expected the longer record to survive, got %+v", p.Unique)
	}
}

func TestResolveEqualLengthRetainsEarlier(t *testing.T) {
	t.Parallel()

	store := newStubStore()
	r := newTestResolver(t, store, DefaultConfig())

	batch := []Record{
		{ID: "first", OwnerID: "u1", Text: "alpha beta gamma delta epsilon zeta"},
		{ID: "second", OwnerID: "u1", Text: "zeta epsilon delta gamma beta alpha"},
	}
	p, err := r.Resolve(context.Background(), batch, StrategyWordOverlap)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	got := outcomeFor(t, p, "second")
	if got.Kind != OutcomeDuplicateOfBatch || got.BatchRecordID != "first" {
		t.Fatalf("unexpected outcome for second: %+v", got)
	}
	if len(p.Unique) != 1 || p.Unique[0].ID != "first" {
		t.Fatalf("expected the earlier record to survive, got %+v", p.Unique)
	}
}

func TestResolveOwnerScopingAgainstStore(t *testing.T) {
	t.Parallel()

	store := newStubStore()
	store.records["u1"] = []StoredRecord{
		{ID: 7, OwnerID: "u1", Text: "Quarterly results beat expectations"},
	}
	r := newTestResolver(t, store, DefaultConfig())

	batch := []Record{
		{ID: "a", OwnerID: "u1", Text: "Quarterly results beat expectations"},
		{ID: "b", OwnerID: "u2", Text: "Quarterly results beat expectations"},
	}
	p, err := r.Resolve(context.Background(), batch, StrategySequence)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	gotA := outcomeFor(t, p, "a")
	if gotA.Kind != OutcomeDuplicateOfStored || gotA.StoredRecordID != 7 {
		t.Fatalf("unexpected outcome for a: %+v", gotA)
	}
	if got := outcomeFor(t, p, "b"); got.Kind != OutcomeUnique {
		t.Fatalf("expected record of another owner to stay unique, got %+v", got)
	}
	if store.callCount("u1") != 1 || store.callCount("u2") != 1 {
		t.Fatalf("expected one store query per owner, got u1=%d u2=%d", store.callCount("u1"), store.callCount("u2"))
	}
}

func TestResolvePlaceholderRecordIsUniqueAndCounted(t *testing.T) {
	t.Parallel()

	store := newStubStore()
	r := newTestResolver(t, store, DefaultConfig())

	batch := []Record{
		{ID: "empty1", OwnerID: "u1", Text: "None", Title: "   ", Body: "null", Description: "unknown"},
		{ID: "empty2", OwnerID: "u1", Text: "null"},
	}
	p, err := r.Resolve(context.Background(), batch, StrategySequence)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if len(p.Unique) != 2 || len(p.Duplicates) != 0 {
		t.Fatalf("expected both placeholder records unique, got %+v", p)
	}
	if p.Stats.NormalizationFailures != 2 {
		t.Fatalf("unexpected normalization failure count: %d", p.Stats.NormalizationFailures)
	}
	if p.Stats.DuplicateCount != 0 {
		t.Fatalf("placeholder records must never be compared: %+v", p.Stats)
	}
}

func TestResolveExactPrecedesFuzzy(t *testing.T) {
	t.Parallel()

	store := newStubStore()
	store.records["u1"] = []StoredRecord{
		{ID: 3, OwnerID: "u1", Text: "Annual shareholder meeting set for March twenty"},
	}
	r := newTestResolver(t, store, DefaultConfig())

	batch := []Record{
		{ID: "a", OwnerID: "u1", Text: "Annual shareholder meeting set for March"},
		{ID: "b", OwnerID: "u1", Text: "Annual shareholder meeting set for March"},
	}
	p, err := r.Resolve(context.Background(), batch, StrategySequence)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	// b is an exact batch duplicate of a even though the stored record is
	// close enough to match it fuzzily.
	gotB := outcomeFor(t, p, "b")
	if gotB.Kind != OutcomeDuplicateOfBatch || gotB.BatchRecordID != "a" {
		t.Fatalf("unexpected outcome for b: %+v", gotB)
	}
	gotA := outcomeFor(t, p, "a")
	if gotA.Kind != OutcomeDuplicateOfStored || gotA.StoredRecordID != 3 {
		t.Fatalf("unexpected outcome for a: %+v", gotA)
	}
	if p.Stats.ExternalDuplicateCount != 1 || p.Stats.InternalDuplicateCount != 1 {
		t.Fatalf("unexpected stats: %+v", p.Stats)
	}
}

func TestResolveStoredExactPrecedesBatchExact(t *testing.T) {
	t.Parallel()

	store := newStubStore()
	store.records["u1"] = []StoredRecord{
		{ID: 5, OwnerID: "u1", Text: "Exact same stored headline"},
	}
	r := newTestResolver(t, store, DefaultConfig())

	batch := []Record{
		{ID: "a1", OwnerID: "u1", Text: "Exact same stored headline"},
		{ID: "a2", OwnerID: "u1", Text: "Exact same stored headline"},
	}
	p, err := r.Resolve(context.Background(), batch, StrategySequence)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	for _, id := range []string{"a1", "a2"} {
		got := outcomeFor(t, p, id)
		if got.Kind != OutcomeDuplicateOfStored || got.StoredRecordID != 5 {
			t.Fatalf("unexpected outcome for %s: %+v", id, got)
		}
	}
	if p.Stats.ExternalDuplicateCount != 2 {
		t.Fatalf("unexpected stats: %+v", p.Stats)
	}
}

func TestResolveStoredRecordAlwaysRetained(t *testing.T) {
	t.Parallel()

	store := newStubStore()
	store.records["u1"] = []StoredRecord{
		{ID: 11, OwnerID: "u1", Text: "The quick brown fox jumps over the lazy dog"},
	}
	r := newTestResolver(t, store, DefaultConfig())

	batch := []Record{
		{ID: "longer", OwnerID: "u1", Text: "The quick brown fox jumps over the lazy dog today"},
	}
	p, err := r.Resolve(context.Background(), batch, StrategySequence)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	got := outcomeFor(t, p, "longer")
	if got.Kind != OutcomeDuplicateOfStored || got.StoredRecordID != 11 {
		t.Fatalf("expected the stored record to win regardless of length, got %+v", got)
	}
	if len(p.Unique) != 0 {
		t.Fatalf("unexpected unique set: %+v", p.Unique)
	}
}

func TestResolveStoredFuzzyPrefersLowestID(t *testing.T) {
	t.Parallel()

	store := newStubStore()
	store.records["u1"] = []StoredRecord{
		{ID: 9, OwnerID: "u1", Text: "Central bank holds interest rates steady today"},
		{ID: 4, OwnerID: "u1", Text: "Central bank holds interest rates steady now"},
	}
	r := newTestResolver(t, store, DefaultConfig())

	batch := []Record{
		{ID: "probe", OwnerID: "u1", Text: "Central bank holds interest rates steady"},
	}
	p, err := r.Resolve(context.Background(), batch, StrategySequence)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	got := outcomeFor(t, p, "probe")
	if got.Kind != OutcomeDuplicateOfStored || got.StoredRecordID != 4 {
		t.Fatalf("expected the lowest stored id to win, got %+v", got)
	}
}

func TestResolveClusterCollectsMultipleDuplicates(t *testing.T) {
	t.Parallel()

	store := newStubStore()
	r := newTestResolver(t, store, DefaultConfig())

	batch := []Record{
		{ID: "keep", OwnerID: "u1", Text: "The quick brown fox jumps over the lazy dog today"},
		{ID: "dup1", OwnerID: "u1", Text: "The quick brown fox jumps over the lazy dog"},
		{ID: "dup2", OwnerID: "u1", Text: "The quick brown fox jumps over a lazy dog"},
	}
	p, err := r.Resolve(context.Background(), batch, StrategySequence)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	for _, id := range []string{"dup1", "dup2"} {
		got := outcomeFor(t, p, id)
		if got.Kind != OutcomeDuplicateOfBatch || got.BatchRecordID != "keep" {
			t.Fatalf("unexpected outcome for %s: %+v", id, got)
		}
	}
	if len(p.Unique) != 1 || p.Unique[0].ID != "keep" {
		t.Fatalf("unexpected unique set: %+v", p.Unique)
	}
}

func TestResolveShortTextExactOnly(t *testing.T) {
	t.Parallel()

	store := newStubStore()
	r := newTestResolver(t, store, DefaultConfig())

	batch := []Record{
		{ID: "a", OwnerID: "u1", Text: "abcdefgh"},
		{ID: "b", OwnerID: "u1", Text: "abcdefg"},
		{ID: "c", OwnerID: "u1", Text: "cat"},
		{ID: "d", OwnerID: "u1", Text: "cat"},
	}
	p, err := r.Resolve(context.Background(), batch, StrategySequence)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	// a and b are similar but below the fuzzy length floor.
	if got := outcomeFor(t, p, "a"); got.Kind != OutcomeUnique {
		t.Fatalf("unexpected outcome for a: %+v", got)
	}
	if got := outcomeFor(t, p, "b"); got.Kind != OutcomeUnique {
		t.Fatalf("unexpected outcome for b: %+v", got)
	}
	got := outcomeFor(t, p, "d")
	if got.Kind != OutcomeDuplicateOfBatch || got.BatchRecordID != "c" {
		t.Fatalf("expected exact match to work at any length, got %+v", got)
	}
}

func TestResolveWindowBoundsForwardComparison(t *testing.T) {
	t.Parallel()

	batch := []Record{
		{ID: "a", OwnerID: "u1", Text: "The quick brown fox jumps over the lazy dog"},
		{ID: "mid", OwnerID: "u1", Text: "Completely unrelated filler content about weather patterns"},
		{ID: "a2", OwnerID: "u1", Text: "The quick brown fox jumps over the lazy dog today"},
	}

	narrow := DefaultConfig()
	narrow.BatchWindow = 1
	r := newTestResolver(t, newStubStore(), narrow)
	p, err := r.Resolve(context.Background(), batch, StrategySequence)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(p.Unique) != 3 {
		t.Fatalf("expected the window to block the comparison, got %+v", p.Duplicates)
	}

	wide := newTestResolver(t, newStubStore(), DefaultConfig())
	p, err = wide.Resolve(context.Background(), batch, StrategySequence)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	got := outcomeFor(t, p, "a")
	if got.Kind != OutcomeDuplicateOfBatch || got.BatchRecordID != "a2" {
		t.Fatalf("unexpected outcome for a with the default window: %+v", got)
	}
}

func TestResolveDeterminism(t *testing.T) {
	t.Parallel()

	store := newStubStore()
	store.records["u1"] = []StoredRecord{
		{ID: 2, OwnerID: "u1", Text: "Stored baseline article about market movement"},
	}
	r := newTestResolver(t, store, DefaultConfig())

	batch := []Record{
		{ID: "r1", OwnerID: "u1", Text: "Stored baseline article about market movement"},
		{ID: "r2", OwnerID: "u1", Text: "A fresh take on currency fluctuations in Asia"},
		{ID: "r3", OwnerID: "u1", Text: "A fresh take on currency fluctuations in Asia today"},
		{ID: "r4", OwnerID: "u2", Text: "A fresh take on currency fluctuations in Asia"},
		{ID: "r5", OwnerID: "u2", Text: "None"},
		{ID: "r6", OwnerID: "u2", Text: "Entirely different subject matter on local sports"},
	}

	first, err := r.Resolve(context.Background(), batch, StrategySequence)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	second, err := r.Resolve(context.Background(), batch, StrategySequence)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("partitions differ between identical runs:\n%+v\n%+v", first, second)
	}
}

func TestResolveQueryErrorContext(t *testing.T) {
	t.Parallel()

	sentinel := errors.New("connection refused")
	store := newStubStore()
	store.err = sentinel
	store.errFor = "u2"
	store.records["u1"] = nil

	cfg := DefaultConfig()
	cfg.OwnerWorkers = 1
	r := newTestResolver(t, store, cfg)

	batch := []Record{
		{ID: "a", OwnerID: "u1", Text: "First article body with enough text"},
		{ID: "b", OwnerID: "u1", Text: "Second article body with enough text"},
		{ID: "c", OwnerID: "u2", Text: "Third article body with enough text"},
		{ID: "d", OwnerID: "u3", Text: "Fourth article body with enough text"},
	}
	p, err := r.Resolve(context.Background(), batch, StrategySequence)
	if err == nil {
		t.Fatalf("expected a run-level error, got partition %+v", p)
	}

	var qe *QueryError
	if !errors.As(err, &qe) {
		t.Fatalf("expected a QueryError, got %T: %v", err, err)
	}
	if qe.OwnerID != "u2" {
		t.Fatalf("unexpected owner in error: %q", qe.OwnerID)
	}
	if qe.Processed != 2 {
		t.Fatalf("unexpected processed count: %d", qe.Processed)
	}
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected the store error to be wrapped")
	}
	if store.callCount("u3") != 0 {
		t.Fatalf("expected the run to abort before owner u3")
	}
}

func TestResolveEmptyBatch(t *testing.T) {
	t.Parallel()

	store := newStubStore()
	r := newTestResolver(t, store, DefaultConfig())

	p, err := r.Resolve(context.Background(), nil, StrategySequence)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if p.Stats.Total != 0 || len(p.Unique) != 0 || len(p.Duplicates) != 0 {
		t.Fatalf("unexpected partition for empty batch: %+v", p)
	}
}

func TestResolveUnknownStrategy(t *testing.T) {
	t.Parallel()

	r := newTestResolver(t, newStubStore(), DefaultConfig())
	if _, err := r.Resolve(context.Background(), []Record{{ID: "a", OwnerID: "u1", Text: "anything"}}, Strategy("nope")); err == nil {
		t.Fatalf("expected an error for an unknown strategy")
	}
}

func TestNewResolverRejectsBadConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.SequenceThreshold = 1.5
	if _, err := NewResolver(newStubStore(), cfg, zerolog.Nop()); err == nil {
		t.Fatalf("expected an error for a threshold above 1")
	}

	cfg = DefaultConfig()
	cfg.BatchWindow = 0
	if _, err := NewResolver(newStubStore(), cfg, zerolog.Nop()); err == nil {
		t.Fatalf("expected an error for a zero window")
	}

	if _, err := NewResolver(nil, DefaultConfig(), zerolog.Nop()); err == nil {
		t.Fatalf("expected an error for a nil store")
	}
}

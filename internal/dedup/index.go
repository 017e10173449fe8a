package dedup

import (
	"sort"
	"unicode/utf8"
)

// batchIndex is the incrementally built exact-match index over one owner's
// batch records. The first insert for a fingerprint wins.
type batchIndex struct {
	byFingerprint map[Fingerprint]int
}

func newBatchIndex(capacity int) *batchIndex {
	return &batchIndex{byFingerprint: make(map[Fingerprint]int, capacity)}
}

func (x *batchIndex) lookup(fp Fingerprint) (int, bool) {
	pos, ok := x.byFingerprint[fp]
	return pos, ok
}

func (x *batchIndex) insert(fp Fingerprint, pos int) {
	if _, ok := x.byFingerprint[fp]; ok {
		return
	}
	x.byFingerprint[fp] = pos
}

// storedCandidate is a stored record prepared for fuzzy comparison.
type storedCandidate struct {
	id         int64
	normalized string
	length     int
}

// storedIndex answers exact and fuzzy probes against one owner's stored
// records. On key collisions the lowest stored id wins.
type storedIndex struct {
	byFingerprint map[Fingerprint]int64
	byRawText     map[string]int64
	fuzzy         []storedCandidate
}

func newStoredIndex(n *Normalizer, records []StoredRecord, minFuzzyLength int) *storedIndex {
	sorted := make([]StoredRecord, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	idx := &storedIndex{
		byFingerprint: make(map[Fingerprint]int64, len(sorted)),
		byRawText:     make(map[string]int64, len(sorted)),
	}
	for _, rec := range sorted {
		raw := n.StoredSourceText(rec)
		if raw == "" {
			continue
		}
		normalized := n.Normalize(raw)
		if normalized == "" {
			continue
		}
		fp, ok := fingerprintFromBytes(rec.Fingerprint)
		if !ok {
			fp = FingerprintText(normalized)
		}
		if _, exists := idx.byFingerprint[fp]; !exists {
			idx.byFingerprint[fp] = rec.ID
		}
		if _, exists := idx.byRawText[raw]; !exists {
			idx.byRawText[raw] = rec.ID
		}
		if length := utf8.RuneCountInString(normalized); length >= minFuzzyLength {
			idx.fuzzy = append(idx.fuzzy, storedCandidate{
				id:         rec.ID,
				normalized: normalized,
				length:     length,
			})
		}
	}
	return idx
}

// lookupExact matches by fingerprint first, then by raw source text.
func (x *storedIndex) lookupExact(raw string, fp Fingerprint) (int64, bool) {
	if id, ok := x.byFingerprint[fp]; ok {
		return id, true
	}
	if id, ok := x.byRawText[raw]; ok {
		return id, true
	}
	return 0, false
}

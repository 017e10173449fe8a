package dedup

import (
	"crypto/sha256"
	"regexp"
	"strings"
	"unicode"
)

// Fingerprint is the exact-match key derived from normalized text.
type Fingerprint [sha256.Size]byte

// FingerprintText digests normalized text into an exact-match key. The key
// is computed over a canonical form with the kept punctuation stripped, so
// case, whitespace, and punctuation variants share a fingerprint while the
// fuzzy pass still compares the punctuated text.
func FingerprintText(normalized string) Fingerprint {
	return sha256.Sum256([]byte(canonicalKey(normalized)))
}

// canonicalKey strips the punctuation Normalize keeps and re-collapses the
// whitespace left behind.
func canonicalKey(normalized string) string {
	var b strings.Builder
	b.Grow(len(normalized))
	lastSpace := false
	for _, r := range normalized {
		switch r {
		case '.', ',', '?', '!', '-':
		case ' ':
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		default:
			b.WriteRune(r)
			lastSpace = false
		}
	}
	return strings.TrimSpace(b.String())
}

// Bytes returns the fingerprint as a slice for storage.
func (f Fingerprint) Bytes() []byte {
	return f[:]
}

func fingerprintFromBytes(raw []byte) (Fingerprint, bool) {
	var fp Fingerprint
	if len(raw) != len(fp) {
		return fp, false
	}
	copy(fp[:], raw)
	return fp, true
}

var urlPattern = regexp.MustCompile(`[a-z][a-z0-9+.\-]*://\S+`)

// Normalizer derives the comparison text of a record.
type Normalizer struct {
	placeholders map[string]struct{}
}

// NewNormalizer builds a normalizer treating the given values as absent
// fields. A nil list selects DefaultPlaceholders.
func NewNormalizer(placeholders []string) *Normalizer {
	if placeholders == nil {
		placeholders = DefaultPlaceholders
	}
	set := make(map[string]struct{}, len(placeholders))
	for _, p := range placeholders {
		trimmed := strings.ToLower(strings.TrimSpace(p))
		if trimmed == "" {
			continue
		}
		set[trimmed] = struct{}{}
	}
	return &Normalizer{placeholders: set}
}

// SourceText returns the first field holding real content, trimmed. Empty,
// whitespace-only, and placeholder values are skipped.
func (n *Normalizer) SourceText(fields ...string) string {
	for _, field := range fields {
		trimmed := strings.TrimSpace(field)
		if trimmed == "" {
			continue
		}
		if _, ok := n.placeholders[strings.ToLower(trimmed)]; ok {
			continue
		}
		return trimmed
	}
	return ""
}

// RecordSourceText applies the content priority order to a batch record.
func (n *Normalizer) RecordSourceText(rec Record) string {
	return n.SourceText(rec.Text, rec.Title, rec.Body, rec.Description)
}

// StoredSourceText applies the content priority order to a stored record.
func (n *Normalizer) StoredSourceText(rec StoredRecord) string {
	return n.SourceText(rec.Text, rec.Title, rec.Body, rec.Description)
}

// Normalize lowercases the text, strips URLs, keeps only letters, digits,
// underscores, spaces and ".,?!-", and collapses whitespace runs. Applying
// it twice changes nothing.
func (n *Normalizer) Normalize(raw string) string {
	lowered := strings.ToLower(strings.TrimSpace(raw))
	if lowered == "" {
		return ""
	}
	lowered = urlPattern.ReplaceAllString(lowered, " ")

	var b strings.Builder
	b.Grow(len(lowered))
	lastSpace := false
	for _, r := range lowered {
		switch {
		case unicode.IsSpace(r):
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '_', r == '.', r == ',', r == '?', r == '!', r == '-':
			b.WriteRune(r)
			lastSpace = false
		}
	}
	return strings.TrimSpace(b.String())
}

package dedup

import (
	"math"
	"testing"
)

func TestSequenceRatioIdentical(t *testing.T) {
	t.Parallel()

	if got := sequenceRatio("the quick brown fox", "the quick brown fox"); got != 1 {
		t.Fatalf("unexpected ratio for identical text: %v", got)
	}
}

func TestSequenceRatioDisjoint(t *testing.T) {
	t.Parallel()

	if got := sequenceRatio("aaaa", "zzzz"); got != 0 {
		t.Fatalf("unexpected ratio for disjoint text: %v", got)
	}
}

func TestSequenceRatioKnownValue(t *testing.T) {
	t.Parallel()

	// LCS("abcd", "abd") = 3, so the ratio is 2*3/7.
	got := sequenceRatio("abcd", "abd")
	want := 6.0 / 7.0
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("unexpected ratio: got %v want %v", got, want)
	}
}

func TestSequenceRatioSymmetric(t *testing.T) {
	t.Parallel()

	a := "the quick brown fox jumps"
	b := "the quick brown fox jumps today"
	if got, mirrored := sequenceRatio(a, b), sequenceRatio(b, a); got != mirrored {
		t.Fatalf("ratio not symmetric: %v vs %v", got, mirrored)
	}
}

func TestSequenceRatioEmptySides(t *testing.T) {
	t.Parallel()

	if got := sequenceRatio("", ""); got != 1 {
		t.Fatalf("unexpected ratio for two empty texts: %v", got)
	}
	if got := sequenceRatio("", "abc"); got != 0 {
		t.Fatalf("unexpected ratio for one empty text: %v", got)
	}
}

func TestWordOverlapRatio(t *testing.T) {
	t.Parallel()

	got := wordOverlapRatio("the quick brown fox", "the quick red fox")
	want := 3.0 / 5.0
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("unexpected ratio: got %v want %v", got, want)
	}
	if got := wordOverlapRatio("same words here", "same words here"); got != 1 {
		t.Fatalf("unexpected ratio for identical word sets: %v", got)
	}
	if got := wordOverlapRatio("", "anything"); got != 0 {
		t.Fatalf("unexpected ratio for empty side: %v", got)
	}
}

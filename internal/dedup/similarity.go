package dedup

import "strings"

func (r *Resolver) similarity(strategy Strategy, a, b string) float64 {
	if strategy == StrategyWordOverlap {
		return wordOverlapRatio(a, b)
	}
	return sequenceRatio(a, b)
}

func (r *Resolver) threshold(strategy Strategy) float64 {
	if strategy == StrategyWordOverlap {
		return r.cfg.WordOverlapThreshold
	}
	return r.cfg.SequenceThreshold
}

// sequenceRatio is the character-sequence similarity of two normalized
// texts, 2*LCS/(len(a)+len(b)) over runes.
func sequenceRatio(a, b string) float64 {
	ar := []rune(a)
	br := []rune(b)
	if len(ar) == 0 && len(br) == 0 {
		return 1
	}
	if len(ar) == 0 || len(br) == 0 {
		return 0
	}
	if len(br) > len(ar) {
		ar, br = br, ar
	}

	prev := make([]int, len(br)+1)
	curr := make([]int, len(br)+1)
	for i := 1; i <= len(ar); i++ {
		for j := 1; j <= len(br); j++ {
			switch {
			case ar[i-1] == br[j-1]:
				curr[j] = prev[j-1] + 1
			case prev[j] >= curr[j-1]:
				curr[j] = prev[j]
			default:
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	return 2 * float64(prev[len(br)]) / float64(len(ar)+len(br))
}

// wordOverlapRatio is the Jaccard similarity of the two word sets.
func wordOverlapRatio(a, b string) float64 {
	setA := wordSet(a)
	setB := wordSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	intersection := 0
	for word := range setA {
		if _, ok := setB[word]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func wordSet(s string) map[string]struct{} {
	words := strings.Fields(s)
	set := make(map[string]struct{}, len(words))
	for _, word := range words {
		set[word] = struct{}{}
	}
	return set
}

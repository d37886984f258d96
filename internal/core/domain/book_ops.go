package domain

import (
	"sort"
	"strings"
)

const (
	DefaultSelectionThreshold = 0.42
	DefaultSelectionMax       = 8
)

// DedupKey is the backend id when present, otherwise lower(title)|lower(author).
func DedupKey(book BookInfo) string {
	if id := strings.TrimSpace(book.ID); id != "" && !book.IDSynthesized {
		return "id:" + id
	}
	return "ta:" + strings.ToLower(strings.TrimSpace(book.Title)) + "|" + strings.ToLower(strings.TrimSpace(book.Author))
}

func scoreOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

// betterScore reports whether a outranks b on (finalScore, similarityScore, rating).
func betterScore(a, b BookInfo) bool {
	pairs := [][2]float64{
		{scoreOrZero(a.FinalScore), scoreOrZero(b.FinalScore)},
		{scoreOrZero(a.SimilarityScore), scoreOrZero(b.SimilarityScore)},
		{scoreOrZero(a.Rating), scoreOrZero(b.Rating)},
	}
	for _, p := range pairs {
		if p[0] != p[1] {
			return p[0] > p[1]
		}
	}
	return false
}

// DedupeBooks collapses books sharing a key. The higher-scored record wins and takes
// the slot of the first occurrence; ties keep the first.
func DedupeBooks(books []BookInfo) []BookInfo {
	if len(books) == 0 {
		return []BookInfo{}
	}
	out := make([]BookInfo, 0, len(books))
	index := make(map[string]int, len(books))
	for _, book := range books {
		key := DedupKey(book)
		if pos, ok := index[key]; ok {
			if betterScore(book, out[pos]) {
				out[pos] = book
			}
			continue
		}
		index[key] = len(out)
		out = append(out, book)
	}
	return out
}

// RelevanceScore picks the first available of similarity, final and reranker scores.
func RelevanceScore(book BookInfo) (float64, bool) {
	for _, v := range []*float64{book.SimilarityScore, book.FinalScore, book.RerankerScore} {
		if v != nil {
			return *v, true
		}
	}
	return 0, false
}

// FilterBySimilarity drops books scored below threshold. Unscored books are kept.
func FilterBySimilarity(books []BookInfo, threshold float64) []BookInfo {
	out := make([]BookInfo, 0, len(books))
	for _, book := range books {
		score, ok := RelevanceScore(book)
		if ok && score < threshold {
			continue
		}
		out = append(out, book)
	}
	return out
}

func FilterByIDs(books []BookInfo, ids []string) []BookInfo {
	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			wanted[id] = struct{}{}
		}
	}
	out := make([]BookInfo, 0, len(ids))
	for _, book := range books {
		if _, ok := wanted[book.ID]; ok {
			out = append(out, book)
		}
	}
	return out
}

// SelectForInterpretation returns the user's selection when it matches anything,
// otherwise the top max books above threshold, otherwise the top max overall.
func SelectForInterpretation(books []BookInfo, selectedIDs []string, threshold float64, max int) []BookInfo {
	if max <= 0 {
		max = DefaultSelectionMax
	}
	if len(selectedIDs) > 0 {
		if selected := FilterByIDs(books, selectedIDs); len(selected) > 0 {
			return selected
		}
	}
	candidates := FilterBySimilarity(books, threshold)
	if len(candidates) == 0 {
		candidates = append([]BookInfo(nil), books...)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		a, _ := RelevanceScore(candidates[i])
		b, _ := RelevanceScore(candidates[j])
		return a > b
	})
	if len(candidates) > max {
		candidates = candidates[:max]
	}
	return candidates
}

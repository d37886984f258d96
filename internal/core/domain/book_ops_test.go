package domain

import "testing"

func TestDedupeBooksKeepsHigherScoreInFirstSlot(t *testing.T) {
	books := []BookInfo{
		{ID: "b-1", Title: "三体", FinalScore: Float64Ptr(0.4)},
		{ID: "b-2", Title: "球状闪电"},
		{ID: "b-1", Title: "三体", FinalScore: Float64Ptr(0.9)},
	}

	out := DedupeBooks(books)
	if len(out) != 2 {
		t.Fatalf("expected 2 books, got %d", len(out))
	}
	if out[0].ID != "b-1" || *out[0].FinalScore != 0.9 {
		t.Fatalf("expected higher scored b-1 in first slot, got %+v", out[0])
	}
	if out[1].ID != "b-2" {
		t.Fatalf("expected b-2 second, got %s", out[1].ID)
	}
}

func TestDedupeBooksComparesScoresLexicographically(t *testing.T) {
	books := []BookInfo{
		{ID: "x", FinalScore: Float64Ptr(0.5), SimilarityScore: Float64Ptr(0.1), Rating: Float64Ptr(9.5)},
		{ID: "x", FinalScore: Float64Ptr(0.5), SimilarityScore: Float64Ptr(0.3), Rating: Float64Ptr(1)},
	}
	out := DedupeBooks(books)
	if len(out) != 1 || *out[0].SimilarityScore != 0.3 {
		t.Fatalf("expected similarity tie-break winner, got %+v", out)
	}

	tied := []BookInfo{
		{ID: "y", Title: "first", Rating: Float64Ptr(8)},
		{ID: "y", Title: "second", Rating: Float64Ptr(8)},
	}
	out = DedupeBooks(tied)
	if out[0].Title != "first" {
		t.Fatalf("expected full tie to keep the first record, got %s", out[0].Title)
	}
}

func TestDedupeBooksFallsBackToTitleAuthor(t *testing.T) {
	books := []BookInfo{
		{ID: "text-search-0", IDSynthesized: true, Title: "Dune", Author: "Frank Herbert"},
		{ID: "text-search-1", IDSynthesized: true, Title: "dune ", Author: "FRANK HERBERT", Rating: Float64Ptr(9)},
		{ID: "text-search-2", IDSynthesized: true, Title: "Dune", Author: "Someone Else"},
	}
	out := DedupeBooks(books)
	if len(out) != 2 {
		t.Fatalf("expected 2 books after title/author dedup, got %d", len(out))
	}
	if out[0].Rating == nil || *out[0].Rating != 9 {
		t.Fatalf("expected rated duplicate to win, got %+v", out[0])
	}
}

func TestDedupeBooksIdempotent(t *testing.T) {
	books := []BookInfo{
		{ID: "a", FinalScore: Float64Ptr(0.2)},
		{ID: "b"},
		{ID: "a", FinalScore: Float64Ptr(0.7)},
		{Title: "t", Author: "u"},
		{Title: "T", Author: "U"},
	}
	once := DedupeBooks(books)
	twice := DedupeBooks(once)
	if len(once) != len(twice) {
		t.Fatalf("expected idempotent dedup, got %d then %d", len(once), len(twice))
	}
	for i := range once {
		if DedupKey(once[i]) != DedupKey(twice[i]) {
			t.Fatalf("order changed at %d: %s vs %s", i, DedupKey(once[i]), DedupKey(twice[i]))
		}
	}
}

func TestDedupeBooksEmpty(t *testing.T) {
	out := DedupeBooks(nil)
	if out == nil || len(out) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", out)
	}
}

func TestFilterBySimilarityKeepsUnscored(t *testing.T) {
	books := []BookInfo{
		{ID: "low", SimilarityScore: Float64Ptr(0.1)},
		{ID: "high", SimilarityScore: Float64Ptr(0.8)},
		{ID: "final-only", FinalScore: Float64Ptr(0.5)},
		{ID: "unscored"},
	}
	out := FilterBySimilarity(books, 0.42)
	if len(out) != 3 {
		t.Fatalf("expected 3 books, got %d", len(out))
	}
	for _, b := range out {
		if b.ID == "low" {
			t.Fatalf("expected low scored book to be dropped")
		}
	}
}

func TestSelectForInterpretationPrefersSelection(t *testing.T) {
	books := []BookInfo{
		{ID: "a", SimilarityScore: Float64Ptr(0.9)},
		{ID: "b", SimilarityScore: Float64Ptr(0.1)},
	}
	out := SelectForInterpretation(books, []string{"b"}, DefaultSelectionThreshold, DefaultSelectionMax)
	if len(out) != 1 || out[0].ID != "b" {
		t.Fatalf("expected selected book b, got %+v", out)
	}
}

func TestSelectForInterpretationTopNAboveThreshold(t *testing.T) {
	books := make([]BookInfo, 0, 12)
	for i := 0; i < 12; i++ {
		books = append(books, BookInfo{ID: string(rune('a' + i)), SimilarityScore: Float64Ptr(0.3 + float64(i)*0.05)})
	}
	out := SelectForInterpretation(books, []string{"missing"}, DefaultSelectionThreshold, 8)
	if len(out) != 8 {
		t.Fatalf("expected cap of 8, got %d", len(out))
	}
	if out[0].ID != "l" {
		t.Fatalf("expected highest scored first, got %s", out[0].ID)
	}
	for _, b := range out {
		if *b.SimilarityScore < DefaultSelectionThreshold {
			t.Fatalf("book %s below threshold selected", b.ID)
		}
	}
}

func TestSelectForInterpretationFallsBackWhenNothingPasses(t *testing.T) {
	books := []BookInfo{
		{ID: "a", SimilarityScore: Float64Ptr(0.1)},
		{ID: "b", SimilarityScore: Float64Ptr(0.2)},
	}
	out := SelectForInterpretation(books, nil, DefaultSelectionThreshold, 8)
	if len(out) != 2 || out[0].ID != "b" {
		t.Fatalf("expected fallback to all books sorted, got %+v", out)
	}
}

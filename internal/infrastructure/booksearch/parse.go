package booksearch

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/kirillkom/bookshelf-aibot/internal/core/domain"
)

// DefaultPlainTextPattern matches "【title】highlight - 9.3分".
const DefaultPlainTextPattern = `^【(.+?)】\s*(.*?)\s*-\s*([0-9]+(?:\.[0-9]+)?)分\s*$`

type plainTextParser struct {
	line *regexp.Regexp
}

// newPlainTextParser compiles pattern, which must carry three groups: title, highlight, rating.
func newPlainTextParser(pattern string) (*plainTextParser, error) {
	if strings.TrimSpace(pattern) == "" {
		pattern = DefaultPlainTextPattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile plain text pattern: %w", err)
	}
	if re.NumSubexp() < 3 {
		return nil, fmt.Errorf("plain text pattern needs 3 groups, has %d", re.NumSubexp())
	}
	return &plainTextParser{line: re}, nil
}

func (p *plainTextParser) parse(text string, searchType domain.SearchType) []domain.BookInfo {
	books := make([]domain.BookInfo, 0)
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		index := len(books)
		book := domain.BookInfo{
			ID:            syntheticID(searchType, index),
			IDSynthesized: true,
		}
		if m := p.line.FindStringSubmatch(line); m != nil {
			book.Title = strings.TrimSpace(m[1])
			if highlight := strings.TrimSpace(m[2]); highlight != "" {
				book.Highlights = []string{highlight}
				book.Description = highlight
			}
			if rating, err := strconv.ParseFloat(m[3], 64); err == nil {
				book.Rating = &rating
			}
		} else {
			book.Title = line
			book.Description = line
		}
		books = append(books, book)
	}
	return books
}

func syntheticID(searchType domain.SearchType, index int) string {
	return fmt.Sprintf("%s-%d", searchType, index)
}

// mapResult turns one backend record into a BookInfo using the candidate tables.
func mapResult(item map[string]any, searchType domain.SearchType, index int) domain.BookInfo {
	book := domain.BookInfo{
		ID:              firstString(item, idCandidates),
		Title:           firstString(item, titleCandidates),
		Author:          firstString(item, authorCandidates),
		Publisher:       firstString(item, publisherCandidates),
		ISBN:            firstString(item, isbnCandidates),
		Description:     firstString(item, descriptionCandidates),
		CoverURL:        firstString(item, coverCandidates),
		PublishYear:     firstString(item, publishYearCandidates),
		CallNumber:      firstString(item, callNumberCandidates),
		Highlights:      firstList(item, highlightCandidates),
		Tags:            firstList(item, tagCandidates),
		Rating:          firstFloat(item, ratingCandidates),
		SimilarityScore: firstFloat(item, similarityCandidates),
		FusedScore:      firstFloat(item, fusedCandidates),
		RerankerScore:   firstFloat(item, rerankerCandidates),
		FinalScore:      firstFloat(item, finalCandidates),
	}
	if book.ID == "" {
		book.ID = syntheticID(searchType, index)
		book.IDSynthesized = true
	}
	return book
}

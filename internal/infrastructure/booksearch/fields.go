package booksearch

import (
	"encoding/json"
	"strconv"
	"strings"
)

// candidate reads one possible spelling of a logical field from a result record.
type candidate func(item map[string]any) (any, bool)

func key(name string) candidate {
	return func(item map[string]any) (any, bool) {
		v, ok := item[name]
		if !ok || v == nil {
			return nil, false
		}
		return v, true
	}
}

func nested(parent, name string) candidate {
	return func(item map[string]any) (any, bool) {
		inner, ok := item[parent].(map[string]any)
		if !ok {
			return nil, false
		}
		return key(name)(inner)
	}
}

// Candidate tables, tried in order. The backend schema differs between pipeline
// versions, including Chinese-keyed exports.
var (
	idCandidates = []candidate{
		key("book_id"), key("embedding_id"), key("id"), key("bookId"), nested("metadata", "book_id"),
	}
	titleCandidates = []candidate{
		key("title"), key("book_title"), key("豆瓣书名"), key("书名"), key("name"), nested("metadata", "title"),
	}
	authorCandidates = []candidate{
		key("author"), key("authors"), key("豆瓣作者"), key("作者"), nested("metadata", "author"),
	}
	publisherCandidates = []candidate{
		key("publisher"), key("豆瓣出版社"), key("出版社"), nested("metadata", "publisher"),
	}
	isbnCandidates = []candidate{
		key("isbn"), key("ISBN"), key("豆瓣ISBN"), nested("metadata", "isbn"),
	}
	descriptionCandidates = []candidate{
		key("description"), key("summary"), key("豆瓣内容简介"), key("内容简介"), key("content"), key("text"),
	}
	coverCandidates = []candidate{
		key("cover_url"), key("coverUrl"), key("cover"), key("image"), key("豆瓣封面"),
	}
	publishYearCandidates = []candidate{
		key("publish_year"), key("publishYear"), key("pub_year"), key("豆瓣出版年"), key("出版年"),
	}
	callNumberCandidates = []candidate{
		key("call_number"), key("callNumber"), key("索书号"), nested("metadata", "call_number"),
	}
	highlightCandidates = []candidate{
		key("highlights"), key("highlight"), key("reason"),
	}
	tagCandidates = []candidate{
		key("tags"), key("豆瓣标签"), key("标签"),
	}
	ratingCandidates = []candidate{
		key("rating"), key("douban_rating"), key("豆瓣评分"), nested("metadata", "rating"),
	}
	similarityCandidates = []candidate{
		key("similarity_score"), key("similarityScore"), key("similarity"), key("score"),
	}
	fusedCandidates = []candidate{
		key("fused_score"), key("fusedScore"), key("rrf_score"),
	}
	rerankerCandidates = []candidate{
		key("reranker_score"), key("rerankerScore"), key("rerank_score"),
	}
	finalCandidates = []candidate{
		key("final_score"), key("finalScore"),
	}
)

func firstString(item map[string]any, candidates []candidate) string {
	for _, c := range candidates {
		v, ok := c(item)
		if !ok {
			continue
		}
		if s := toString(v); s != "" {
			return s
		}
	}
	return ""
}

func firstFloat(item map[string]any, candidates []candidate) *float64 {
	for _, c := range candidates {
		v, ok := c(item)
		if !ok {
			continue
		}
		if f, ok := toFloat(v); ok {
			return &f
		}
	}
	return nil
}

func firstList(item map[string]any, candidates []candidate) []string {
	for _, c := range candidates {
		v, ok := c(item)
		if !ok {
			continue
		}
		if list := toList(v); len(list) > 0 {
			return list
		}
	}
	return nil
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case []any:
		return strings.Join(toList(t), ", ")
	default:
		return ""
	}
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func toList(v any) []string {
	switch t := v.(type) {
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s := toString(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		parts := strings.FieldsFunc(t, func(r rune) bool {
			return r == ',' || r == '，' || r == '、' || r == ';' || r == '|'
		})
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	default:
		if s := toString(v); s != "" {
			return []string{s}
		}
		return nil
	}
}

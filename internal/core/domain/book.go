package domain

import "time"

// BookInfo is one normalized record from the book-search backend.
type BookInfo struct {
	ID              string   `json:"id"`
	Title           string   `json:"title"`
	Author          string   `json:"author,omitempty"`
	Publisher       string   `json:"publisher,omitempty"`
	ISBN            string   `json:"isbn,omitempty"`
	Description     string   `json:"description,omitempty"`
	CoverURL        string   `json:"coverUrl,omitempty"`
	PublishYear     string   `json:"publishYear,omitempty"`
	CallNumber      string   `json:"callNumber,omitempty"`
	Highlights      []string `json:"highlights,omitempty"`
	Tags            []string `json:"tags,omitempty"`
	SimilarityScore *float64 `json:"similarityScore,omitempty"`
	FusedScore      *float64 `json:"fusedScore,omitempty"`
	RerankerScore   *float64 `json:"rerankerScore,omitempty"`
	FinalScore      *float64 `json:"finalScore,omitempty"`
	Rating          *float64 `json:"rating,omitempty"`

	// IDSynthesized marks ids built from the result position rather than the backend.
	IDSynthesized bool `json:"-"`
}

type SearchType string

const (
	SearchTypeText       SearchType = "text-search"
	SearchTypeMultiQuery SearchType = "multi-query"
)

type RetrievalResultData struct {
	Books       []BookInfo     `json:"books"`
	TotalCount  int            `json:"totalCount"`
	SearchQuery string         `json:"searchQuery"`
	SearchType  SearchType     `json:"searchType"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

type TextSearchRequest struct {
	Query          string  `json:"query"`
	TopK           int     `json:"top_k"`
	ResponseFormat string  `json:"response_format"`
	MinRating      float64 `json:"min_rating"`
}

type MultiQueryRequest struct {
	MarkdownText   string  `json:"markdown_text"`
	TopK           int     `json:"top_k"`
	ResponseFormat string  `json:"response_format"`
	MinRating      float64 `json:"min_rating"`
	PerQueryTopK   int     `json:"per_query_top_k,omitempty"`
}

func Float64Ptr(v float64) *float64 {
	return &v
}

type InterpretationRequest struct {
	OriginalQuery string        `json:"originalQuery"`
	SelectedBooks []BookInfo    `json:"selectedBooks"`
	Messages      []ChatMessage `json:"messages"`
	SessionID     string        `json:"sessionId,omitempty"`
}

type DraftBookSearchRequest struct {
	DraftMarkdown string   `json:"draftMarkdown"`
	UserInput     string   `json:"userInput,omitempty"`
	SelectedIDs   []string `json:"selectedIds,omitempty"`
	TopK          int      `json:"topK,omitempty"`
	MinRating     *float64 `json:"minRating,omitempty"`
	SessionID     string   `json:"sessionId,omitempty"`
}

type DraftBookSearchResult struct {
	Result    *RetrievalResultData `json:"result"`
	Suggested []BookInfo           `json:"suggested"`
}

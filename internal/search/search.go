package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultIdea    ResultType = "idea"
	ResultComment ResultType = "comment"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type     ResultType `json:"type"`
	ID       string     `json:"id"`
	Title    string     `json:"title"`
	Snippet  string     `json:"snippet"`
	IdeaID   string     `json:"ideaId"`
	Category string     `json:"category,omitempty"`
	Status   string     `json:"status,omitempty"`
}

// Query describes a search request.
type Query struct {
	Text           string
	FilterType     ResultType // empty = all types
	FilterCategory string
	FilterStatus   string
	Limit          int
	Offset         int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push entities into a search index.
type Indexer interface {
	IndexIdea(idea IdeaRecord) error
	IndexComment(comment CommentRecord) error
	DeleteIdea(id string) error
	DeleteComment(id string) error
}

// IdeaRecord is the data we index for an idea.
type IdeaRecord struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Impact      string   `json:"impact"`
	Category    string   `json:"category"`
	Status      string   `json:"status"`
	Department  string   `json:"department"`
	Tags        []string `json:"tags"`
}

// CommentRecord is the data we index for a comment. The parent idea's title
// and category ride along so hits render with context.
type CommentRecord struct {
	ID        string `json:"id"`
	Body      string `json:"body"`
	IdeaID    string `json:"ideaId"`
	IdeaTitle string `json:"ideaTitle"`
	Category  string `json:"category"`
	Status    string `json:"status"`
}

package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultRequest ResultType = "request"
	ResultNote    ResultType = "note"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type      ResultType `json:"type"`
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Snippet   string     `json:"snippet"`
	RequestID string     `json:"requestId"`
	Category  string     `json:"category"`
	Location  string     `json:"location,omitempty"`
}

// Query describes a search request.
type Query struct {
	Text           string
	FilterType     ResultType // empty = all types
	FilterCategory string
	FilterLocation string
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
	IndexRequest(r RequestRecord) error
	IndexNote(n NoteRecord) error
	DeleteRequest(id string) error
}

// RequestRecord is the data we index for a service request. Only open
// requests are searchable by professionals; raw status rides along so the
// facade can filter closed ones without a store round trip.
type RequestRecord struct {
	ID          string `json:"id"`
	Category    string `json:"category"`
	Subcategory string `json:"subcategory"`
	Location    string `json:"location"`
	Description string `json:"description"`
	RawStatus   string `json:"rawStatus"`
}

// NoteRecord is the data we index for a public timeline note. Private
// timeline entries never reach the index.
type NoteRecord struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	RequestID   string `json:"requestId"`
	Category    string `json:"category"`
}

package search

// Kind identifies the kind of entity in a search result.
type Kind string

const (
	KindTask     Kind = "task"
	KindDocument Kind = "document"
	KindComment  Kind = "comment"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Kind        Kind    `json:"kind"`
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Snippet     string  `json:"snippet"`
	WorkspaceID string  `json:"workspaceId"`
	TaskID      string  `json:"taskId,omitempty"`
	Rank        float64 `json:"rank"`
}

// Query describes a search request. WorkspaceID is mandatory; results
// never cross workspaces.
type Query struct {
	WorkspaceID string
	Text        string
	FilterKind  Kind // empty = all kinds
	Limit       int
	Offset      int
}

// Response is the envelope returned to the caller.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a workspace-scoped search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push entities into a search index.
type Indexer interface {
	IndexTask(t TaskRecord) error
	IndexDocument(d DocumentRecord) error
	IndexComment(c CommentRecord) error
	DeleteTask(id string) error
	DeleteDocument(id string) error
	DeleteComment(id string) error
}

// TaskRecord is the data we index for a task.
type TaskRecord struct {
	ID          string `json:"id"`
	WorkspaceID string `json:"workspaceId"`
	Title       string `json:"title"`
	Description string `json:"description"`
	StatusID    string `json:"statusId"`
	Priority    string `json:"priority"`
}

// DocumentRecord is the data we index for a document.
type DocumentRecord struct {
	ID          string `json:"id"`
	WorkspaceID string `json:"workspaceId"`
	Title       string `json:"title"`
	Content     string `json:"content"`
	Path        string `json:"path"`
}

// CommentRecord is the data we index for a comment.
type CommentRecord struct {
	ID          string `json:"id"`
	WorkspaceID string `json:"workspaceId"`
	TaskID      string `json:"taskId"`
	Content     string `json:"content"`
}

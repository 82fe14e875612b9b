package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Hybrid implements Searcher on PostgreSQL, combining full-text ranking
// with trigram similarity so misspelled queries still match. A lexical
// hit always outranks a trigram-only hit: results are ordered first by
// whether ts_rank is positive, then by the fused score, then by id for a
// stable order between equal scores.
type Hybrid struct {
	db *sql.DB
}

// trigramWeight scales the similarity contribution in the fused score.
// It only orders results within the same tier, so its exact value does
// not let a fuzzy match overtake a lexical one.
const trigramWeight = 0.35

const headlineOpts = "StartSel=<<, StopSel=>>, MaxFragments=1, MaxWords=30"

// NewHybrid creates a PostgreSQL-backed searcher.
func NewHybrid(db *sql.DB) *Hybrid {
	return &Hybrid{db: db}
}

// Healthy always returns true; if Postgres is down the whole app is down.
func (h *Hybrid) Healthy() bool {
	return true
}

// Search executes a UNION ALL query across tasks, documents, and
// comments. Each subquery pre-filters on the workspace, so tenant
// isolation does not depend on ranking.
func (h *Hybrid) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	// $1 = query text, $2 = workspace id.
	tsQuery := "plainto_tsquery('english', $1)"
	args := []any{q.Text, q.WorkspaceID}

	var subQueries []string
	if q.FilterKind == "" || q.FilterKind == KindTask {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'task'::text AS kind, t.id::text, t.title,
				ts_headline('english', coalesce(t.description, ''), %s, '%s') AS snippet,
				''::text AS task_id,
				ts_rank(t.fts, %s) AS lex,
				GREATEST(word_similarity($1, t.title), word_similarity($1, coalesce(t.description, ''))) AS trgm
			FROM tasks t
			WHERE t.workspace_id = $2
				AND (t.fts @@ %s OR $1 <%% t.title OR $1 <%% coalesce(t.description, ''))`,
			tsQuery, headlineOpts, tsQuery, tsQuery))
	}
	if q.FilterKind == "" || q.FilterKind == KindDocument {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'document'::text AS kind, d.id::text, d.title,
				ts_headline('english', coalesce(d.content, ''), %s, '%s') AS snippet,
				''::text AS task_id,
				ts_rank(d.fts, %s) AS lex,
				GREATEST(word_similarity($1, d.title), word_similarity($1, coalesce(d.content, ''))) AS trgm
			FROM documents d
			WHERE d.workspace_id = $2
				AND (d.fts @@ %s OR $1 <%% d.title OR $1 <%% coalesce(d.content, ''))`,
			tsQuery, headlineOpts, tsQuery, tsQuery))
	}
	if q.FilterKind == "" || q.FilterKind == KindComment {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'comment'::text AS kind, c.id::text, t.title,
				ts_headline('english', c.content, %s, '%s') AS snippet,
				c.task_id::text AS task_id,
				ts_rank(c.fts, %s) AS lex,
				word_similarity($1, c.content) AS trgm
			FROM comments c
			JOIN tasks t ON t.id = c.task_id
			WHERE t.workspace_id = $2
				AND (c.fts @@ %s OR $1 <%% c.content)`,
			tsQuery, headlineOpts, tsQuery, tsQuery))
	}
	if len(subQueries) == 0 {
		return nil, 0, nil
	}
	union := strings.Join(subQueries, " UNION ALL ")

	ctx := context.Background()

	var total int
	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub", union)
	if err := h.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("hybrid count: %w", err)
	}

	dataSQL := fmt.Sprintf(`
		SELECT kind, id, title, snippet, task_id, lex + %f * trgm AS rank
		FROM (%s) sub
		ORDER BY (lex > 0) DESC, lex + %f * trgm DESC, id
		LIMIT %d OFFSET %d`,
		trigramWeight, union, trigramWeight, limit, offset)

	rows, err := h.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("hybrid query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var kind string
		if err := rows.Scan(&kind, &r.ID, &r.Title, &r.Snippet, &r.TaskID, &r.Rank); err != nil {
			return nil, 0, fmt.Errorf("hybrid scan: %w", err)
		}
		r.Kind = Kind(kind)
		r.WorkspaceID = q.WorkspaceID
		// ts_headline leaves trigram-only hits unmarked; fall back to a
		// fuzzy highlight so the caller always sees why something matched.
		if !strings.Contains(r.Snippet, "<<") {
			r.Snippet = HighlightFuzzy(r.Snippet, q.Text)
		}
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns every searchable record for full reindexing.
func (h *Hybrid) LoadAllRecords(ctx context.Context) ([]TaskRecord, []DocumentRecord, []CommentRecord, error) {
	taskRows, err := h.db.QueryContext(ctx, `
		SELECT id, workspace_id, title, coalesce(description, ''), status_id, coalesce(priority, '')
		FROM tasks
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load tasks: %w", err)
	}
	defer taskRows.Close()

	tasks := make([]TaskRecord, 0)
	for taskRows.Next() {
		var t TaskRecord
		if err := taskRows.Scan(&t.ID, &t.WorkspaceID, &t.Title, &t.Description, &t.StatusID, &t.Priority); err != nil {
			return nil, nil, nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := taskRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate tasks: %w", err)
	}

	docRows, err := h.db.QueryContext(ctx, `
		SELECT id, workspace_id, title, coalesce(content, ''), path
		FROM documents
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load documents: %w", err)
	}
	defer docRows.Close()

	documents := make([]DocumentRecord, 0)
	for docRows.Next() {
		var d DocumentRecord
		if err := docRows.Scan(&d.ID, &d.WorkspaceID, &d.Title, &d.Content, &d.Path); err != nil {
			return nil, nil, nil, fmt.Errorf("scan document: %w", err)
		}
		documents = append(documents, d)
	}
	if err := docRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate documents: %w", err)
	}

	commentRows, err := h.db.QueryContext(ctx, `
		SELECT c.id, t.workspace_id, c.task_id, c.content
		FROM comments c
		JOIN tasks t ON t.id = c.task_id
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load comments: %w", err)
	}
	defer commentRows.Close()

	comments := make([]CommentRecord, 0)
	for commentRows.Next() {
		var c CommentRecord
		if err := commentRows.Scan(&c.ID, &c.WorkspaceID, &c.TaskID, &c.Content); err != nil {
			return nil, nil, nil, fmt.Errorf("scan comment: %w", err)
		}
		comments = append(comments, c)
	}
	if err := commentRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate comments: %w", err)
	}

	return tasks, documents, comments, nil
}

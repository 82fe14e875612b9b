package app

import (
	"context"

	"github.com/ruslan-korneev/todo-server/internal/rbac"
	"github.com/ruslan-korneev/todo-server/internal/search"
)

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 100
)

type SearchInput struct {
	Text   string      `json:"text"`
	Kind   search.Kind `json:"kind"`
	Limit  int         `json:"limit"`
	Offset int         `json:"offset"`
}

// Search runs a workspace-scoped full text search across tasks,
// documents and comments.
func (s *Service) Search(ctx context.Context, actorID, workspaceID string, in SearchInput) (search.Response, error) {
	if _, err := s.authorize(ctx, workspaceID, actorID, rbac.ActionSearch); err != nil {
		return search.Response{}, err
	}
	text := trimmed(in.Text)
	if text == "" {
		return search.Response{}, validation("search text is required")
	}
	switch in.Kind {
	case "", search.KindTask, search.KindDocument, search.KindComment:
	default:
		return search.Response{}, validation("kind must be task, document or comment")
	}

	limit := in.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}
	offset := in.Offset
	if offset < 0 {
		offset = 0
	}

	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: text}, nil
	}
	return s.search.Search(search.Query{
		WorkspaceID: workspaceID,
		Text:        text,
		FilterKind:  in.Kind,
		Limit:       limit,
		Offset:      offset,
	}), nil
}

// ReindexAll rebuilds the external search index from the database.
func (s *Service) ReindexAll(ctx context.Context) {
	if s.search == nil {
		return
	}
	s.search.ReindexAllFromDB(ctx)
}

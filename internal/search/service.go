package search

import (
	"context"

	"github.com/ruslan-korneev/todo-server/internal/logger"
)

// Service fronts the two engines. The Postgres hybrid query is
// authoritative because its ranking tiers are part of the contract;
// Meilisearch serves as a mirror that answers when the hybrid query
// fails and keeps typo tolerance available off the primary database.
type Service struct {
	hybrid *Hybrid
	meili  *Meili
}

// NewService creates a search service. meili may be nil when
// Meilisearch is not configured.
func NewService(hybrid *Hybrid, meili *Meili) *Service {
	return &Service{hybrid: hybrid, meili: meili}
}

// Search runs the hybrid query and falls back to Meilisearch on error.
func (s *Service) Search(q Query) Response {
	results, total, err := s.hybrid.Search(q)
	if err == nil {
		return Response{Results: nonNil(results), Total: total, Query: q.Text}
	}
	logger.Warn().Err(err).Msg("hybrid search failed")

	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		logger.Warn().Err(err).Msg("meilisearch fallback failed")
	}
	return Response{Results: []Result{}, Total: 0, Query: q.Text}
}

// IndexTask mirrors a task into Meilisearch, fire-and-forget.
func (s *Service) IndexTask(t TaskRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexTask(t); err != nil {
			logger.Warn().Err(err).Str("task", t.ID).Msg("index task")
		}
	}()
}

// IndexDocument mirrors a document into Meilisearch, fire-and-forget.
func (s *Service) IndexDocument(d DocumentRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexDocument(d); err != nil {
			logger.Warn().Err(err).Str("document", d.ID).Msg("index document")
		}
	}()
}

// IndexComment mirrors a comment into Meilisearch, fire-and-forget.
func (s *Service) IndexComment(c CommentRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexComment(c); err != nil {
			logger.Warn().Err(err).Str("comment", c.ID).Msg("index comment")
		}
	}()
}

// DeleteTask removes a task from the mirror, fire-and-forget.
func (s *Service) DeleteTask(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteTask(id); err != nil {
			logger.Warn().Err(err).Str("task", id).Msg("delete task from index")
		}
	}()
}

// DeleteDocument removes a document from the mirror, fire-and-forget.
func (s *Service) DeleteDocument(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteDocument(id); err != nil {
			logger.Warn().Err(err).Str("document", id).Msg("delete document from index")
		}
	}()
}

// DeleteComment removes a comment from the mirror, fire-and-forget.
func (s *Service) DeleteComment(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteComment(id); err != nil {
			logger.Warn().Err(err).Str("comment", id).Msg("delete comment from index")
		}
	}()
}

// ReindexAll pushes full record sets into Meilisearch.
func (s *Service) ReindexAll(tasks []TaskRecord, documents []DocumentRecord, comments []CommentRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	if err := s.meili.IndexTasks(tasks); err != nil {
		logger.Error().Err(err).Msg("reindex tasks")
	}
	if err := s.meili.IndexDocuments(documents); err != nil {
		logger.Error().Err(err).Msg("reindex documents")
	}
	if err := s.meili.IndexComments(comments); err != nil {
		logger.Error().Err(err).Msg("reindex comments")
	}
}

// ReindexAllFromDB loads every searchable record from Postgres and
// mirrors it into Meilisearch.
func (s *Service) ReindexAllFromDB(ctx context.Context) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	tasks, documents, comments, err := s.hybrid.LoadAllRecords(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("reindex load failed")
		return
	}
	s.ReindexAll(tasks, documents, comments)
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}

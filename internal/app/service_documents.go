package app

import (
	"context"

	"github.com/ruslan-korneev/todo-server/internal/hierarchy"
	"github.com/ruslan-korneev/todo-server/internal/rbac"
	"github.com/ruslan-korneev/todo-server/internal/search"
	"github.com/ruslan-korneev/todo-server/internal/store"
)

type CreateDocumentInput struct {
	Title    string  `json:"title"`
	Content  string  `json:"content"`
	ParentID *string `json:"parentId"`
}

type UpdateDocumentInput struct {
	Title   *string `json:"title"`
	Content *string `json:"content"`
}

type MoveDocumentInput struct {
	ParentID *string `json:"parentId"`
	Position int     `json:"position"`
}

func (s *Service) ListDocuments(ctx context.Context, actorID, workspaceID string) ([]store.Document, error) {
	if _, err := s.authorize(ctx, workspaceID, actorID, rbac.ActionViewDocument); err != nil {
		return nil, err
	}
	return s.store.ListDocuments(ctx, workspaceID)
}

// ListDocumentTree returns the workspace's documents as a nested tree,
// children ordered by position.
func (s *Service) ListDocumentTree(ctx context.Context, actorID, workspaceID string) ([]store.DocumentTreeNode, error) {
	docs, err := s.ListDocuments(ctx, actorID, workspaceID)
	if err != nil {
		return nil, err
	}
	return buildDocumentTree(docs), nil
}

// buildDocumentTree nests a flat, (parent_path, position)-ordered list.
// Parents always precede their children in that order, so a single pass
// over individually allocated nodes suffices.
func buildDocumentTree(docs []store.Document) []store.DocumentTreeNode {
	rootPtrs := make([]*store.DocumentTreeNode, 0)
	children := make(map[string][]*store.DocumentTreeNode, len(docs))
	index := make(map[string]*store.DocumentTreeNode, len(docs))

	for _, doc := range docs {
		node := &store.DocumentTreeNode{Document: doc}
		index[doc.Path] = node
		if doc.ParentPath == "" {
			rootPtrs = append(rootPtrs, node)
			continue
		}
		parent, ok := index[doc.ParentPath]
		if !ok {
			// Orphaned row, surface it at the root rather than drop it.
			rootPtrs = append(rootPtrs, node)
			continue
		}
		node.Depth = parent.Depth + 1
		children[parent.Path] = append(children[parent.Path], node)
	}

	var materialize func(ptrs []*store.DocumentTreeNode) []store.DocumentTreeNode
	materialize = func(ptrs []*store.DocumentTreeNode) []store.DocumentTreeNode {
		nodes := make([]store.DocumentTreeNode, 0, len(ptrs))
		for _, p := range ptrs {
			p.Children = materialize(children[p.Path])
			nodes = append(nodes, *p)
		}
		return nodes
	}
	return materialize(rootPtrs)
}

func (s *Service) GetDocument(ctx context.Context, actorID, workspaceID, documentID string) (store.Document, error) {
	if _, err := s.authorize(ctx, workspaceID, actorID, rbac.ActionViewDocument); err != nil {
		return store.Document{}, err
	}
	doc, err := s.store.GetDocument(ctx, workspaceID, documentID)
	if err != nil {
		return store.Document{}, mapStoreErr(err, "document")
	}
	return doc, nil
}

func (s *Service) CreateDocument(ctx context.Context, actorID, workspaceID string, in CreateDocumentInput) (store.Document, error) {
	if _, err := s.authorize(ctx, workspaceID, actorID, rbac.ActionCreateDocument); err != nil {
		return store.Document{}, err
	}
	title := trimmed(in.Title)
	if title == "" {
		return store.Document{}, validation("title is required")
	}
	slug := hierarchy.Slugify(title)
	if slug == "" {
		return store.Document{}, validation("title must contain letters or digits")
	}

	doc, err := s.store.InsertDocument(ctx, workspaceID, title, slug, in.Content, in.ParentID, actorID)
	if err != nil {
		return store.Document{}, mapStoreErr(err, "document")
	}
	s.indexDocument(doc)
	return doc, nil
}

// UpdateDocument renames or rewrites a document. The slug, and therefore
// the path, stays fixed after creation.
func (s *Service) UpdateDocument(ctx context.Context, actorID, workspaceID, documentID string, in UpdateDocumentInput) (store.Document, error) {
	if _, err := s.authorize(ctx, workspaceID, actorID, rbac.ActionEditDocument); err != nil {
		return store.Document{}, err
	}
	if in.Title != nil && trimmed(*in.Title) == "" {
		return store.Document{}, validation("title cannot be blank")
	}

	doc, err := s.store.UpdateDocument(ctx, workspaceID, documentID, store.DocumentPatch{
		Title:   in.Title,
		Content: in.Content,
	})
	if err != nil {
		return store.Document{}, mapStoreErr(err, "document")
	}
	s.indexDocument(doc)
	return doc, nil
}

// MoveDocument reparents a document, carrying its whole subtree with it.
func (s *Service) MoveDocument(ctx context.Context, actorID, workspaceID, documentID string, in MoveDocumentInput) (store.Document, error) {
	if _, err := s.authorize(ctx, workspaceID, actorID, rbac.ActionMoveDocument); err != nil {
		return store.Document{}, err
	}
	if in.Position < 0 {
		return store.Document{}, validation("position cannot be negative")
	}
	if in.ParentID != nil && *in.ParentID == documentID {
		return store.Document{}, invalidTransition("cannot move a document under its own subtree")
	}

	doc, err := s.store.MoveDocument(ctx, workspaceID, documentID, in.ParentID, in.Position)
	if err != nil {
		return store.Document{}, mapStoreErr(err, "document")
	}
	s.indexDocument(doc)
	return doc, nil
}

// DeleteDocument removes a document and every descendant. The search
// index catches up on the next reindex since descendant ids are not
// returned.
func (s *Service) DeleteDocument(ctx context.Context, actorID, workspaceID, documentID string) (int, error) {
	if _, err := s.authorize(ctx, workspaceID, actorID, rbac.ActionDeleteDocument); err != nil {
		return 0, err
	}
	deleted, err := s.store.DeleteDocument(ctx, workspaceID, documentID)
	if err != nil {
		return 0, mapStoreErr(err, "document")
	}
	if s.search != nil {
		s.search.DeleteDocument(documentID)
	}
	return deleted, nil
}

func (s *Service) LinkTaskDocument(ctx context.Context, actorID, workspaceID, taskID, documentID string) error {
	if _, err := s.authorize(ctx, workspaceID, actorID, rbac.ActionLinkDocument); err != nil {
		return err
	}
	return mapStoreErr(s.store.LinkTaskDocument(ctx, workspaceID, taskID, documentID), "link")
}

func (s *Service) UnlinkTaskDocument(ctx context.Context, actorID, workspaceID, taskID, documentID string) error {
	if _, err := s.authorize(ctx, workspaceID, actorID, rbac.ActionLinkDocument); err != nil {
		return err
	}
	return mapStoreErr(s.store.UnlinkTaskDocument(ctx, workspaceID, taskID, documentID), "link")
}

func (s *Service) ListLinkedTasks(ctx context.Context, actorID, workspaceID, documentID string) ([]store.LinkedTask, error) {
	if _, err := s.authorize(ctx, workspaceID, actorID, rbac.ActionViewDocument); err != nil {
		return nil, err
	}
	tasks, err := s.store.ListLinkedTasks(ctx, workspaceID, documentID)
	if err != nil {
		return nil, mapStoreErr(err, "document")
	}
	return tasks, nil
}

func (s *Service) ListLinkedDocuments(ctx context.Context, actorID, workspaceID, taskID string) ([]store.LinkedDocument, error) {
	if _, err := s.authorize(ctx, workspaceID, actorID, rbac.ActionViewTask); err != nil {
		return nil, err
	}
	docs, err := s.store.ListLinkedDocuments(ctx, workspaceID, taskID)
	if err != nil {
		return nil, mapStoreErr(err, "task")
	}
	return docs, nil
}

func (s *Service) indexDocument(doc store.Document) {
	if s.search == nil {
		return
	}
	s.search.IndexDocument(search.DocumentRecord{
		ID:          doc.ID,
		WorkspaceID: doc.WorkspaceID,
		Title:       doc.Title,
		Content:     doc.Content,
		Path:        doc.Path,
	})
}

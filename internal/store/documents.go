package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ruslan-korneev/todo-server/internal/hierarchy"
	"github.com/ruslan-korneev/todo-server/internal/ordering"
)

const documentColumns = `
	id, workspace_id, title, slug, COALESCE(content, ''), path, parent_path,
	parent_id, position, created_by, created_at, updated_at
`

func scanDocument(row interface{ Scan(...any) error }) (Document, error) {
	var d Document
	err := row.Scan(
		&d.ID, &d.WorkspaceID, &d.Title, &d.Slug, &d.Content, &d.Path, &d.ParentPath,
		&d.ParentID, &d.Position, &d.CreatedBy, &d.CreatedAt, &d.UpdatedAt,
	)
	return d, err
}

// ListDocuments returns every document of the workspace ordered by
// parent path then sibling position, which is the traversal order for
// building the tree.
func (s *PostgresStore) ListDocuments(ctx context.Context, workspaceID string) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+documentColumns+`
		FROM documents
		WHERE workspace_id = $1
		ORDER BY parent_path, position
	`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	items := make([]Document, 0)
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		items = append(items, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, workspaceID, documentID string) (Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+documentColumns+`
		FROM documents
		WHERE id = $1 AND workspace_id = $2
	`, documentID, workspaceID)
	return scanDocument(row)
}

// InsertDocument creates a document under parentID (nil for top level),
// appended after its last sibling.
func (s *PostgresStore) InsertDocument(ctx context.Context, workspaceID, title, slug, content string, parentID *string, createdBy string) (Document, error) {
	for attempt := 0; attempt < positionRetries; attempt++ {
		d, err := s.insertDocumentOnce(ctx, workspaceID, title, slug, content, parentID, createdBy)
		if errors.Is(err, ErrOrderingConflict) {
			continue
		}
		return d, err
	}
	return Document{}, ErrOrderingConflict
}

func (s *PostgresStore) insertDocumentOnce(ctx context.Context, workspaceID, title, slug, content string, parentID *string, createdBy string) (Document, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Document{}, fmt.Errorf("begin insert document: %w", err)
	}
	defer tx.Rollback()

	parentPath := ""
	if parentID != nil {
		err := tx.QueryRowContext(ctx, `
			SELECT path FROM documents WHERE id = $1 AND workspace_id = $2
		`, *parentID, workspaceID).Scan(&parentPath)
		if err != nil {
			return Document{}, err
		}
	}
	path := hierarchy.Child(parentPath, slug)

	row := tx.QueryRowContext(ctx, `
		INSERT INTO documents (workspace_id, title, slug, content, path, parent_path, parent_id, position, created_by)
		SELECT $1, $2, $3, NULLIF($4, ''), $5, $6, $7, COALESCE(MAX(position), 0) + $8, $9
		FROM documents WHERE workspace_id = $1 AND parent_path = $6
		RETURNING `+documentColumns+`
	`, workspaceID, title, slug, content, path, parentPath, parentID, ordering.Stride, createdBy)
	d, err := scanDocument(row)
	if err != nil {
		switch {
		case isUniqueViolation(err, "documents_workspace_id_slug_key"),
			isUniqueViolation(err, "documents_workspace_id_path_key"):
			return Document{}, ErrPathCollision
		case isUniqueViolation(err, "idx_documents_sibling_position"):
			return Document{}, ErrOrderingConflict
		}
		return Document{}, fmt.Errorf("insert document: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Document{}, fmt.Errorf("commit insert document: %w", err)
	}
	return d, nil
}

// UpdateDocument patches title and content. The slug and path never
// change on rename, so links and subtrees stay stable.
func (s *PostgresStore) UpdateDocument(ctx context.Context, workspaceID, documentID string, patch DocumentPatch) (Document, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE documents
		SET title = COALESCE($3, title),
			content = COALESCE($4, content),
			updated_at = NOW()
		WHERE id = $1 AND workspace_id = $2
		RETURNING `+documentColumns+`
	`, documentID, workspaceID, patch.Title, patch.Content)
	return scanDocument(row)
}

// MoveDocument reparents a document and its whole subtree. Every path in
// the subtree is rewritten by one prefix replacement; descendants keep
// their sibling positions because they move together.
func (s *PostgresStore) MoveDocument(ctx context.Context, workspaceID, documentID string, newParentID *string, at int) (Document, error) {
	for attempt := 0; attempt < positionRetries; attempt++ {
		d, err := s.moveDocumentOnce(ctx, workspaceID, documentID, newParentID, at)
		if errors.Is(err, ErrOrderingConflict) {
			continue
		}
		return d, err
	}
	return Document{}, ErrOrderingConflict
}

func (s *PostgresStore) moveDocumentOnce(ctx context.Context, workspaceID, documentID string, newParentID *string, at int) (Document, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Document{}, fmt.Errorf("begin move document: %w", err)
	}
	defer tx.Rollback()

	var oldPath, slug string
	err = tx.QueryRowContext(ctx, `
		SELECT path, slug FROM documents WHERE id = $1 AND workspace_id = $2
	`, documentID, workspaceID).Scan(&oldPath, &slug)
	if err != nil {
		return Document{}, err
	}

	newParentPath := ""
	if newParentID != nil {
		err := tx.QueryRowContext(ctx, `
			SELECT path FROM documents WHERE id = $1 AND workspace_id = $2
		`, *newParentID, workspaceID).Scan(&newParentPath)
		if err != nil {
			return Document{}, err
		}
		if hierarchy.IsSelfOrDescendant(oldPath, newParentPath) {
			return Document{}, ErrCyclicMove
		}
	}
	newPath := hierarchy.Child(newParentPath, slug)

	if newPath != oldPath {
		var occupied bool
		err = tx.QueryRowContext(ctx, `
			SELECT EXISTS(SELECT 1 FROM documents WHERE workspace_id = $1 AND path = $2)
		`, workspaceID, newPath).Scan(&occupied)
		if err != nil {
			return Document{}, fmt.Errorf("check target path: %w", err)
		}
		if occupied {
			return Document{}, ErrPathCollision
		}
	}

	neighbors, err := siblingPositions(ctx, tx, `
		SELECT position FROM documents
		WHERE workspace_id = $1 AND parent_path = $2 AND id <> $3
		ORDER BY position
	`, workspaceID, newParentPath, documentID)
	if err != nil {
		return Document{}, fmt.Errorf("read sibling positions: %w", err)
	}

	pos, needRebalance := ordering.PlanInsert(neighbors, at)
	if needRebalance {
		if err := rebalanceSiblings(ctx, tx, workspaceID, newParentPath, documentID); err != nil {
			return Document{}, err
		}
		neighbors = ordering.Rebalanced(len(neighbors))
		pos, _ = ordering.PlanInsert(neighbors, at)
	}

	// One prefix rewrite covers the node and its subtree. The node's own
	// parent_path, parent_id and position change; descendants only get
	// the prefix swap. Slugs contain '_', a LIKE wildcard, so the prefix
	// test compares with left() instead of a LIKE pattern.
	_, err = tx.ExecContext(ctx, `
		UPDATE documents
		SET path = $4 || substr(path, length($3::text) + 1),
			parent_path = CASE WHEN id = $2 THEN $5 ELSE $4 || substr(parent_path, length($3::text) + 1) END,
			parent_id = CASE WHEN id = $2 THEN $6 ELSE parent_id END,
			position = CASE WHEN id = $2 THEN $7 ELSE position END,
			updated_at = CASE WHEN id = $2 THEN NOW() ELSE updated_at END
		WHERE workspace_id = $1 AND (path = $3 OR left(path, length($3::text) + 1) = $3 || '.')
	`, workspaceID, documentID, oldPath, newPath, newParentPath, newParentID, pos)
	if err != nil {
		if isUniqueViolation(err, "idx_documents_sibling_position") {
			return Document{}, ErrOrderingConflict
		}
		if isUniqueViolation(err, "documents_workspace_id_path_key") {
			return Document{}, ErrPathCollision
		}
		return Document{}, fmt.Errorf("move document: %w", err)
	}

	d, err := s.getDocumentTx(ctx, tx, workspaceID, documentID)
	if err != nil {
		return Document{}, err
	}

	if err := tx.Commit(); err != nil {
		return Document{}, fmt.Errorf("commit move document: %w", err)
	}
	return d, nil
}

func (s *PostgresStore) getDocumentTx(ctx context.Context, tx *sql.Tx, workspaceID, documentID string) (Document, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT `+documentColumns+`
		FROM documents
		WHERE id = $1 AND workspace_id = $2
	`, documentID, workspaceID)
	return scanDocument(row)
}

// rebalanceSiblings rewrites the sibling positions under parentPath with
// fresh gaps, excluding the moving document.
func rebalanceSiblings(ctx context.Context, tx *sql.Tx, workspaceID, parentPath, excludeID string) error {
	if _, err := tx.ExecContext(ctx, `
		UPDATE documents SET position = -position - 1
		WHERE workspace_id = $1 AND parent_path = $2 AND id <> $3
	`, workspaceID, parentPath, excludeID); err != nil {
		return fmt.Errorf("park sibling positions: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE documents d
		SET position = v.position
		FROM (
			SELECT id, ROW_NUMBER() OVER (ORDER BY position DESC) * $4 AS position
			FROM documents WHERE workspace_id = $1 AND parent_path = $2 AND id <> $3
		) v
		WHERE d.id = v.id
	`, workspaceID, parentPath, excludeID, ordering.Stride); err != nil {
		return fmt.Errorf("rebalance siblings: %w", err)
	}
	return nil
}

// DeleteDocument removes a document and its entire subtree. Task links
// go with it through the foreign keys.
func (s *PostgresStore) DeleteDocument(ctx context.Context, workspaceID, documentID string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin delete document: %w", err)
	}
	defer tx.Rollback()

	var path string
	err = tx.QueryRowContext(ctx, `
		SELECT path FROM documents WHERE id = $1 AND workspace_id = $2
	`, documentID, workspaceID).Scan(&path)
	if err != nil {
		return 0, err
	}

	res, err := tx.ExecContext(ctx, `
		DELETE FROM documents
		WHERE workspace_id = $1 AND (path = $2 OR left(path, length($2) + 1) = $2 || '.')
	`, workspaceID, path)
	if err != nil {
		return 0, fmt.Errorf("delete document subtree: %w", err)
	}
	n, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit delete document: %w", err)
	}
	return int(n), nil
}

// LinkTaskDocument connects a task and a document of the same workspace.
// Linking twice is a no-op.
func (s *PostgresStore) LinkTaskDocument(ctx context.Context, workspaceID, taskID, documentID string) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO task_documents (task_id, document_id)
		SELECT t.id, d.id
		FROM tasks t, documents d
		WHERE t.id = $1 AND t.workspace_id = $3 AND d.id = $2 AND d.workspace_id = $3
		ON CONFLICT (task_id, document_id) DO NOTHING
	`, taskID, documentID, workspaceID)
	if err != nil {
		return fmt.Errorf("link task document: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var linked bool
		err := s.db.QueryRowContext(ctx, `
			SELECT EXISTS(SELECT 1 FROM task_documents WHERE task_id = $1 AND document_id = $2)
		`, taskID, documentID).Scan(&linked)
		if err != nil {
			return fmt.Errorf("check link: %w", err)
		}
		if !linked {
			return sql.ErrNoRows
		}
	}
	return nil
}

func (s *PostgresStore) UnlinkTaskDocument(ctx context.Context, workspaceID, taskID, documentID string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM task_documents td
		USING tasks t
		WHERE td.task_id = $1 AND td.document_id = $2 AND t.id = td.task_id AND t.workspace_id = $3
	`, taskID, documentID, workspaceID)
	if err != nil {
		return fmt.Errorf("unlink task document: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) ListLinkedTasks(ctx context.Context, workspaceID, documentID string) ([]LinkedTask, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.title, t.status_id, td.linked_at
		FROM task_documents td
		JOIN tasks t ON t.id = td.task_id
		WHERE td.document_id = $1 AND t.workspace_id = $2
		ORDER BY td.linked_at
	`, documentID, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list linked tasks: %w", err)
	}
	defer rows.Close()

	items := make([]LinkedTask, 0)
	for rows.Next() {
		var lt LinkedTask
		if err := rows.Scan(&lt.TaskID, &lt.Title, &lt.StatusID, &lt.LinkedAt); err != nil {
			return nil, fmt.Errorf("scan linked task: %w", err)
		}
		items = append(items, lt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate linked tasks: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ListLinkedDocuments(ctx context.Context, workspaceID, taskID string) ([]LinkedDocument, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.id, d.title, d.path, td.linked_at
		FROM task_documents td
		JOIN documents d ON d.id = td.document_id
		WHERE td.task_id = $1 AND d.workspace_id = $2
		ORDER BY td.linked_at
	`, taskID, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list linked documents: %w", err)
	}
	defer rows.Close()

	items := make([]LinkedDocument, 0)
	for rows.Next() {
		var ld LinkedDocument
		if err := rows.Scan(&ld.DocumentID, &ld.Title, &ld.Path, &ld.LinkedAt); err != nil {
			return nil, fmt.Errorf("scan linked document: %w", err)
		}
		items = append(items, ld)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate linked documents: %w", err)
	}
	return items, nil
}

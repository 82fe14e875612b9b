package store

import (
	"context"
	"database/sql"
	"fmt"
)

func (s *PostgresStore) ListComments(ctx context.Context, workspaceID, taskID string) ([]Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.task_id, c.user_id, u.display_name, c.content, c.created_at, c.updated_at
		FROM comments c
		JOIN users u ON u.id = c.user_id
		JOIN tasks t ON t.id = c.task_id
		WHERE c.task_id = $1 AND t.workspace_id = $2
		ORDER BY c.created_at
	`, taskID, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	items := make([]Comment, 0)
	for rows.Next() {
		var c Comment
		if err := rows.Scan(&c.ID, &c.TaskID, &c.AuthorID, &c.AuthorName, &c.Content, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		items = append(items, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertComment(ctx context.Context, workspaceID, taskID, authorID, content string) (Comment, error) {
	var c Comment
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO comments (task_id, user_id, content)
		SELECT t.id, $3, $4 FROM tasks t WHERE t.id = $1 AND t.workspace_id = $2
		RETURNING id, task_id, user_id, content, created_at, updated_at
	`, taskID, workspaceID, authorID, content).Scan(
		&c.ID, &c.TaskID, &c.AuthorID, &c.Content, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return Comment{}, err
	}
	return c, nil
}

func (s *PostgresStore) GetComment(ctx context.Context, workspaceID, commentID string) (Comment, error) {
	var c Comment
	err := s.db.QueryRowContext(ctx, `
		SELECT c.id, c.task_id, c.user_id, u.display_name, c.content, c.created_at, c.updated_at
		FROM comments c
		JOIN users u ON u.id = c.user_id
		JOIN tasks t ON t.id = c.task_id
		WHERE c.id = $1 AND t.workspace_id = $2
	`, commentID, workspaceID).Scan(&c.ID, &c.TaskID, &c.AuthorID, &c.AuthorName, &c.Content, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return Comment{}, err
	}
	return c, nil
}

func (s *PostgresStore) UpdateComment(ctx context.Context, workspaceID, commentID, content string) (Comment, error) {
	var c Comment
	err := s.db.QueryRowContext(ctx, `
		UPDATE comments c
		SET content = $3, updated_at = NOW()
		FROM tasks t
		WHERE c.id = $1 AND c.task_id = t.id AND t.workspace_id = $2
		RETURNING c.id, c.task_id, c.user_id, c.content, c.created_at, c.updated_at
	`, commentID, workspaceID, content).Scan(&c.ID, &c.TaskID, &c.AuthorID, &c.Content, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return Comment{}, err
	}
	return c, nil
}

func (s *PostgresStore) DeleteComment(ctx context.Context, workspaceID, commentID string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM comments c
		USING tasks t
		WHERE c.id = $1 AND c.task_id = t.id AND t.workspace_id = $2
	`, commentID, workspaceID)
	if err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

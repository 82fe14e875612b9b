package store

import (
	"context"
	"database/sql"
	"fmt"
)

func (s *PostgresStore) ListTags(ctx context.Context, workspaceID string) ([]Tag, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workspace_id, name, COALESCE(color, ''), created_at
		FROM tags
		WHERE workspace_id = $1
		ORDER BY name
	`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()

	items := make([]Tag, 0)
	for rows.Next() {
		var t Tag
		if err := rows.Scan(&t.ID, &t.WorkspaceID, &t.Name, &t.Color, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		items = append(items, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tags: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertTag(ctx context.Context, workspaceID, name, color string) (Tag, error) {
	var t Tag
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO tags (workspace_id, name, color)
		VALUES ($1, $2, NULLIF($3, ''))
		RETURNING id, workspace_id, name, COALESCE(color, ''), created_at
	`, workspaceID, name, color).Scan(&t.ID, &t.WorkspaceID, &t.Name, &t.Color, &t.CreatedAt)
	if err != nil {
		if isUniqueViolation(err, "tags_workspace_id_name_key") {
			return Tag{}, ErrSlugTaken
		}
		return Tag{}, fmt.Errorf("insert tag: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) UpdateTag(ctx context.Context, workspaceID, tagID string, name, color *string) (Tag, error) {
	var t Tag
	err := s.db.QueryRowContext(ctx, `
		UPDATE tags
		SET name = COALESCE($3, name),
			color = COALESCE($4, color)
		WHERE id = $1 AND workspace_id = $2
		RETURNING id, workspace_id, name, COALESCE(color, ''), created_at
	`, tagID, workspaceID, name, color).Scan(&t.ID, &t.WorkspaceID, &t.Name, &t.Color, &t.CreatedAt)
	if err != nil {
		if isUniqueViolation(err, "tags_workspace_id_name_key") {
			return Tag{}, ErrSlugTaken
		}
		return Tag{}, err
	}
	return t, nil
}

func (s *PostgresStore) DeleteTag(ctx context.Context, workspaceID, tagID string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM tags WHERE id = $1 AND workspace_id = $2
	`, tagID, workspaceID)
	if err != nil {
		return fmt.Errorf("delete tag: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SetTaskTags replaces a task's tag set. Tag IDs from another workspace
// are silently dropped by the join.
func (s *PostgresStore) SetTaskTags(ctx context.Context, workspaceID, taskID string, tagIDs []string) ([]Tag, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin set task tags: %w", err)
	}
	defer tx.Rollback()

	var exists bool
	err = tx.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM tasks WHERE id = $1 AND workspace_id = $2)
	`, taskID, workspaceID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("check task: %w", err)
	}
	if !exists {
		return nil, sql.ErrNoRows
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM task_tags WHERE task_id = $1`, taskID); err != nil {
		return nil, fmt.Errorf("clear task tags: %w", err)
	}

	if len(tagIDs) > 0 {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO task_tags (task_id, tag_id)
			SELECT $1, g.id FROM tags g WHERE g.id = ANY($2::uuid[]) AND g.workspace_id = $3
		`, taskID, tagIDs, workspaceID); err != nil {
			return nil, fmt.Errorf("insert task tags: %w", err)
		}
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT g.id, g.workspace_id, g.name, COALESCE(g.color, ''), g.created_at
		FROM task_tags tt
		JOIN tags g ON g.id = tt.tag_id
		WHERE tt.task_id = $1
		ORDER BY g.name
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("load task tags: %w", err)
	}
	defer rows.Close()

	tags := make([]Tag, 0)
	for rows.Next() {
		var t Tag
		if err := rows.Scan(&t.ID, &t.WorkspaceID, &t.Name, &t.Color, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tags: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit set task tags: %w", err)
	}
	return tags, nil
}

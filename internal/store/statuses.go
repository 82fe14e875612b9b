package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ruslan-korneev/todo-server/internal/ordering"
)

func (s *PostgresStore) ListStatuses(ctx context.Context, workspaceID string) ([]Status, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workspace_id, name, slug, COALESCE(color, ''), position, is_done, created_at
		FROM task_statuses
		WHERE workspace_id = $1
		ORDER BY position
	`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list statuses: %w", err)
	}
	defer rows.Close()

	items := make([]Status, 0)
	for rows.Next() {
		var st Status
		if err := rows.Scan(&st.ID, &st.WorkspaceID, &st.Name, &st.Slug, &st.Color, &st.Position, &st.IsDone, &st.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan status: %w", err)
		}
		items = append(items, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate statuses: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetStatus(ctx context.Context, workspaceID, statusID string) (Status, error) {
	var st Status
	err := s.db.QueryRowContext(ctx, `
		SELECT id, workspace_id, name, slug, COALESCE(color, ''), position, is_done, created_at
		FROM task_statuses
		WHERE id = $1 AND workspace_id = $2
	`, statusID, workspaceID).Scan(&st.ID, &st.WorkspaceID, &st.Name, &st.Slug, &st.Color, &st.Position, &st.IsDone, &st.CreatedAt)
	if err != nil {
		return Status{}, err
	}
	return st, nil
}

// InsertStatus appends a status column at the end of the board.
func (s *PostgresStore) InsertStatus(ctx context.Context, workspaceID, name, slug, color string, isDone bool) (Status, error) {
	var st Status
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO task_statuses (workspace_id, name, slug, color, position, is_done)
		SELECT $1, $2, $3, NULLIF($4, ''), COALESCE(MAX(position), 0) + $5, $6
		FROM task_statuses WHERE workspace_id = $1
		RETURNING id, workspace_id, name, slug, COALESCE(color, ''), position, is_done, created_at
	`, workspaceID, name, slug, color, ordering.Stride, isDone).Scan(
		&st.ID, &st.WorkspaceID, &st.Name, &st.Slug, &st.Color, &st.Position, &st.IsDone, &st.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "task_statuses_workspace_id_slug_key") {
			return Status{}, ErrSlugTaken
		}
		if isUniqueViolation(err, "idx_statuses_position") {
			return Status{}, ErrOrderingConflict
		}
		return Status{}, fmt.Errorf("insert status: %w", err)
	}
	return st, nil
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, workspaceID, statusID string, name, color *string, isDone *bool) (Status, error) {
	var st Status
	err := s.db.QueryRowContext(ctx, `
		UPDATE task_statuses
		SET name = COALESCE($3, name),
			color = COALESCE($4, color),
			is_done = COALESCE($5, is_done)
		WHERE id = $1 AND workspace_id = $2
		RETURNING id, workspace_id, name, slug, COALESCE(color, ''), position, is_done, created_at
	`, statusID, workspaceID, name, color, isDone).Scan(
		&st.ID, &st.WorkspaceID, &st.Name, &st.Slug, &st.Color, &st.Position, &st.IsDone, &st.CreatedAt,
	)
	if err != nil {
		return Status{}, err
	}
	return st, nil
}

// DeleteStatus removes an empty status column. A column that still holds
// tasks cannot be deleted, and neither can the last column of a board.
func (s *PostgresStore) DeleteStatus(ctx context.Context, workspaceID, statusID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete status: %w", err)
	}
	defer tx.Rollback()

	var taskCount, statusCount int
	err = tx.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM tasks WHERE status_id = $1),
			(SELECT COUNT(*) FROM task_statuses WHERE workspace_id = $2)
	`, statusID, workspaceID).Scan(&taskCount, &statusCount)
	if err != nil {
		return fmt.Errorf("count status usage: %w", err)
	}
	if taskCount > 0 {
		return ErrStatusNotEmpty
	}
	if statusCount <= 1 {
		return ErrLastStatus
	}

	res, err := tx.ExecContext(ctx, `
		DELETE FROM task_statuses WHERE id = $1 AND workspace_id = $2
	`, statusID, workspaceID)
	if err != nil {
		return fmt.Errorf("delete status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete status: %w", err)
	}
	return nil
}

// ReorderStatuses rewrites the whole column order in one statement, so
// the position index is checked only against the final layout. statusIDs
// must name every status of the workspace exactly once.
func (s *PostgresStore) ReorderStatuses(ctx context.Context, workspaceID string, statusIDs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reorder statuses: %w", err)
	}
	defer tx.Rollback()

	var total int
	if err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM task_statuses WHERE workspace_id = $1
	`, workspaceID).Scan(&total); err != nil {
		return fmt.Errorf("count statuses: %w", err)
	}
	if total != len(statusIDs) {
		return fmt.Errorf("reorder needs all %d statuses, got %d", total, len(statusIDs))
	}

	// Park every row on the negative range first; the unique position
	// index is checked per row, so assigning final positions directly
	// could trip over a slot that another row has not vacated yet.
	if _, err := tx.ExecContext(ctx, `
		UPDATE task_statuses SET position = -position - 1 WHERE workspace_id = $1
	`, workspaceID); err != nil {
		return fmt.Errorf("park status positions: %w", err)
	}

	query, args := reorderQuery("task_statuses", workspaceID, statusIDs)
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("reorder statuses: %w", err)
	}
	if n, _ := res.RowsAffected(); int(n) != len(statusIDs) {
		return sql.ErrNoRows
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reorder statuses: %w", err)
	}
	return nil
}

// reorderQuery builds one UPDATE ... FROM (VALUES ...) assigning spaced
// positions in the given order. Callers park the rows on a disjoint
// range first so no final slot is still occupied.
func reorderQuery(table, workspaceID string, ids []string) (string, []any) {
	args := make([]any, 0, len(ids)+1)
	args = append(args, workspaceID)
	values := ""
	for i, id := range ids {
		if i > 0 {
			values += ", "
		}
		values += fmt.Sprintf("($%d::uuid, %d)", i+2, ordering.Spaced(i))
		args = append(args, id)
	}
	query := fmt.Sprintf(`
		UPDATE %s AS t
		SET position = v.position
		FROM (VALUES %s) AS v(id, position)
		WHERE t.id = v.id AND t.workspace_id = $1
	`, table, values)
	return query, args
}

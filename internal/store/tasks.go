package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/ruslan-korneev/todo-server/internal/ordering"
)

// positionRetries bounds the optimistic insert/move loop. Each attempt
// re-reads neighbor positions; exhausting the budget surfaces as
// ErrOrderingConflict.
const positionRetries = 3

const taskColumns = `
	id, workspace_id, status_id, title, COALESCE(description, ''),
	COALESCE(priority, ''), position, created_by, assigned_to, due_date,
	time_estimate_minutes, completed_at, external_refs::text, created_at, updated_at
`

// taskColumnsQualified is taskColumns with a "t" alias for queries that
// join other tables sharing column names.
const taskColumnsQualified = `
	t.id, t.workspace_id, t.status_id, t.title, COALESCE(t.description, ''),
	COALESCE(t.priority, ''), t.position, t.created_by, t.assigned_to, t.due_date,
	t.time_estimate_minutes, t.completed_at, t.external_refs::text, t.created_at, t.updated_at
`

func scanTask(row interface{ Scan(...any) error }) (Task, error) {
	var t Task
	err := row.Scan(
		&t.ID, &t.WorkspaceID, &t.StatusID, &t.Title, &t.Description,
		&t.Priority, &t.Position, &t.CreatedBy, &t.AssignedTo, &t.DueDate,
		&t.TimeEstimateMinutes, &t.CompletedAt, &t.ExternalRefs, &t.CreatedAt, &t.UpdatedAt,
	)
	return t, err
}

// escapeLike neutralizes LIKE metacharacters so a user query matches
// them literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func (s *PostgresStore) ListTasks(ctx context.Context, workspaceID string, filter TaskListFilter) ([]Task, int, error) {
	where := []string{"t.workspace_id = $1"}
	args := []any{workspaceID}

	add := func(clause string, value any) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filter.StatusID != "" {
		add("t.status_id = $%d", filter.StatusID)
	}
	if filter.AssignedTo != "" {
		add("t.assigned_to = $%d", filter.AssignedTo)
	}
	if filter.Priority != "" {
		add("t.priority = $%d", filter.Priority)
	}
	if filter.TagID != "" {
		add("EXISTS(SELECT 1 FROM task_tags tt WHERE tt.task_id = t.id AND tt.tag_id = $%d)", filter.TagID)
	}
	if filter.DueBefore != nil {
		add("t.due_date <= $%d", *filter.DueBefore)
	}
	if filter.Query != "" {
		add("(t.title ILIKE $%[1]d OR t.description ILIKE $%[1]d)", "%"+escapeLike(filter.Query)+"%")
	}
	cond := strings.Join(where, " AND ")

	var total int
	countQuery := "SELECT COUNT(*) FROM tasks t WHERE " + cond
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count tasks: %w", err)
	}

	query := `
		SELECT ` + taskColumnsQualified + `
		FROM tasks t
		JOIN task_statuses s ON s.id = t.status_id
		WHERE ` + cond + `
		ORDER BY s.position, t.position`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	items := make([]Task, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan task: %w", err)
		}
		items = append(items, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate tasks: %w", err)
	}

	if err := s.attachTags(ctx, items); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (s *PostgresStore) GetTask(ctx context.Context, workspaceID, taskID string) (Task, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE id = $1 AND workspace_id = $2
	`, taskID, workspaceID)
	t, err := scanTask(row)
	if err != nil {
		return Task{}, err
	}
	tasks := []Task{t}
	if err := s.attachTags(ctx, tasks); err != nil {
		return Task{}, err
	}
	return tasks[0], nil
}

// attachTags loads tags for every task in items in one query.
func (s *PostgresStore) attachTags(ctx context.Context, items []Task) error {
	if len(items) == 0 {
		return nil
	}
	ids := make([]string, len(items))
	index := make(map[string]int, len(items))
	for i := range items {
		ids[i] = items[i].ID
		index[items[i].ID] = i
		items[i].Tags = []Tag{}
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT tt.task_id, g.id, g.workspace_id, g.name, COALESCE(g.color, ''), g.created_at
		FROM task_tags tt
		JOIN tags g ON g.id = tt.tag_id
		WHERE tt.task_id = ANY($1::uuid[])
		ORDER BY g.name
	`, ids)
	if err != nil {
		return fmt.Errorf("load task tags: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var taskID string
		var tag Tag
		if err := rows.Scan(&taskID, &tag.ID, &tag.WorkspaceID, &tag.Name, &tag.Color, &tag.CreatedAt); err != nil {
			return fmt.Errorf("scan task tag: %w", err)
		}
		i := index[taskID]
		items[i].Tags = append(items[i].Tags, tag)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate task tags: %w", err)
	}
	return nil
}

// InsertTask appends a task at the tail of its status column. Concurrent
// appends race for the same slot; losers re-read the tail and try again.
func (s *PostgresStore) InsertTask(ctx context.Context, t Task) (Task, error) {
	for attempt := 0; attempt < positionRetries; attempt++ {
		row := s.db.QueryRowContext(ctx, `
			INSERT INTO tasks (workspace_id, status_id, title, description, priority,
				position, created_by, assigned_to, due_date, time_estimate_minutes, external_refs)
			SELECT $1, $2, $3, NULLIF($4, ''), NULLIF($5, ''),
				COALESCE(MAX(position), 0) + $6, $7, $8, $9, $10, COALESCE(NULLIF($11, ''), '{}')::jsonb
			FROM tasks WHERE status_id = $2
			RETURNING `+taskColumns+`
		`, t.WorkspaceID, t.StatusID, t.Title, t.Description, t.Priority,
			ordering.Stride, t.CreatedBy, t.AssignedTo, t.DueDate, t.TimeEstimateMinutes, t.ExternalRefs)
		inserted, err := scanTask(row)
		if err == nil {
			inserted.Tags = []Tag{}
			return inserted, nil
		}
		if isUniqueViolation(err, "idx_tasks_position") {
			continue
		}
		if isForeignKeyViolation(err) {
			return Task{}, sql.ErrNoRows
		}
		return Task{}, fmt.Errorf("insert task: %w", err)
	}
	return Task{}, ErrOrderingConflict
}

func (s *PostgresStore) UpdateTask(ctx context.Context, workspaceID, taskID string, patch TaskPatch) (Task, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE tasks
		SET title = COALESCE($3, title),
			description = COALESCE($4, description),
			priority = COALESCE($5, priority),
			assigned_to = CASE WHEN $6 THEN NULL ELSE COALESCE($7, assigned_to) END,
			due_date = CASE WHEN $8 THEN NULL ELSE COALESCE($9, due_date) END,
			time_estimate_minutes = COALESCE($10, time_estimate_minutes),
			external_refs = COALESCE($11::jsonb, external_refs),
			updated_at = NOW()
		WHERE id = $1 AND workspace_id = $2
		RETURNING `+taskColumns+`
	`, taskID, workspaceID, patch.Title, patch.Description, patch.Priority,
		patch.ClearAssignee, patch.AssignedTo, patch.ClearDueDate, patch.DueDate,
		patch.TimeEstimateMinutes, patch.ExternalRefs)
	t, err := scanTask(row)
	if err != nil {
		return Task{}, err
	}
	tasks := []Task{t}
	if err := s.attachTags(ctx, tasks); err != nil {
		return Task{}, err
	}
	return tasks[0], nil
}

func (s *PostgresStore) DeleteTask(ctx context.Context, workspaceID, taskID string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM tasks WHERE id = $1 AND workspace_id = $2
	`, taskID, workspaceID)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// MoveTask places a task at index at inside toStatusID. The target slot
// comes from the gap between the new neighbors; when the gap is exhausted
// the column is rebalanced first. A concurrent move that grabs the same
// slot surfaces as a unique violation and the whole attempt is retried
// with fresh neighbors.
func (s *PostgresStore) MoveTask(ctx context.Context, workspaceID, taskID, toStatusID string, at int) (Task, error) {
	for attempt := 0; attempt < positionRetries; attempt++ {
		t, err := s.moveTaskOnce(ctx, workspaceID, taskID, toStatusID, at)
		if errors.Is(err, ErrOrderingConflict) {
			continue
		}
		return t, err
	}
	return Task{}, ErrOrderingConflict
}

func (s *PostgresStore) moveTaskOnce(ctx context.Context, workspaceID, taskID, toStatusID string, at int) (Task, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Task{}, fmt.Errorf("begin move task: %w", err)
	}
	defer tx.Rollback()

	var fromStatusID string
	err = tx.QueryRowContext(ctx, `
		SELECT status_id FROM tasks WHERE id = $1 AND workspace_id = $2
	`, taskID, workspaceID).Scan(&fromStatusID)
	if err != nil {
		return Task{}, err
	}

	var isDone bool
	err = tx.QueryRowContext(ctx, `
		SELECT is_done FROM task_statuses WHERE id = $1 AND workspace_id = $2
	`, toStatusID, workspaceID).Scan(&isDone)
	if err != nil {
		return Task{}, err
	}

	neighbors, err := siblingPositions(ctx, tx, `
		SELECT position FROM tasks WHERE status_id = $1 AND id <> $2 ORDER BY position
	`, toStatusID, taskID)
	if err != nil {
		return Task{}, fmt.Errorf("read column positions: %w", err)
	}

	pos, needRebalance := ordering.PlanInsert(neighbors, at)
	if needRebalance {
		if err := rebalanceColumn(ctx, tx, toStatusID, taskID); err != nil {
			return Task{}, err
		}
		neighbors = ordering.Rebalanced(len(neighbors))
		pos, _ = ordering.PlanInsert(neighbors, at)
	}

	row := tx.QueryRowContext(ctx, `
		UPDATE tasks
		SET status_id = $3,
			position = $4,
			completed_at = CASE
				WHEN $5 AND completed_at IS NULL THEN NOW()
				WHEN NOT $5 THEN NULL
				ELSE completed_at
			END,
			updated_at = NOW()
		WHERE id = $1 AND workspace_id = $2
		RETURNING `+taskColumns+`
	`, taskID, workspaceID, toStatusID, pos, isDone)
	t, err := scanTask(row)
	if err != nil {
		if isUniqueViolation(err, "idx_tasks_position") {
			return Task{}, ErrOrderingConflict
		}
		return Task{}, fmt.Errorf("move task: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Task{}, fmt.Errorf("commit move task: %w", err)
	}
	tasks := []Task{t}
	if err := s.attachTags(ctx, tasks); err != nil {
		return Task{}, err
	}
	return tasks[0], nil
}

// rebalanceColumn rewrites a status column with fresh spaced positions.
// The moving task is excluded; it gets its slot from the caller.
func rebalanceColumn(ctx context.Context, tx *sql.Tx, statusID, excludeTaskID string) error {
	// Park on the negative range first; the unique index is checked per
	// row and final slots may still be occupied.
	if _, err := tx.ExecContext(ctx, `
		UPDATE tasks SET position = -position - 1 WHERE status_id = $1 AND id <> $2
	`, statusID, excludeTaskID); err != nil {
		return fmt.Errorf("park column positions: %w", err)
	}
	// Parking negates positions, so the original ascending order is now
	// descending.
	if _, err := tx.ExecContext(ctx, `
		UPDATE tasks t
		SET position = v.position
		FROM (
			SELECT id, ROW_NUMBER() OVER (ORDER BY position DESC) * $3 AS position
			FROM tasks WHERE status_id = $1 AND id <> $2
		) v
		WHERE t.id = v.id
	`, statusID, excludeTaskID, ordering.Stride); err != nil {
		return fmt.Errorf("rebalance column: %w", err)
	}
	return nil
}

func siblingPositions(ctx context.Context, tx *sql.Tx, query string, args ...any) ([]int, error) {
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	positions := make([]int, 0)
	for rows.Next() {
		var p int
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ruslan-korneev/todo-server/internal/ordering"
	"github.com/ruslan-korneev/todo-server/internal/rbac"
)

// defaultStatuses seeds every new workspace. The last one is terminal.
var defaultStatuses = []struct {
	Name   string
	Slug   string
	IsDone bool
}{
	{"To Do", "to_do", false},
	{"In Progress", "in_progress", false},
	{"Done", "done", true},
}

// CreateWorkspace inserts a workspace with its owner membership and the
// default status columns, all in one transaction. The first workspace a
// user owns becomes their default.
func (s *PostgresStore) CreateWorkspace(ctx context.Context, ownerID, name, slug, description string) (Workspace, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Workspace{}, fmt.Errorf("begin create workspace: %w", err)
	}
	defer tx.Rollback()

	var ws Workspace
	err = tx.QueryRowContext(ctx, `
		INSERT INTO workspaces (name, slug, description, owner_id, is_default)
		VALUES ($1, $2, $3, $4, NOT EXISTS(SELECT 1 FROM workspaces WHERE owner_id = $4 AND is_default))
		RETURNING id, name, slug, COALESCE(description, ''), owner_id, is_default, settings_json::text, created_at, updated_at
	`, name, slug, description, ownerID).Scan(
		&ws.ID, &ws.Name, &ws.Slug, &ws.Description, &ws.OwnerID, &ws.IsDefault, &ws.Settings, &ws.CreatedAt, &ws.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "workspaces_slug_key") {
			return Workspace{}, ErrSlugTaken
		}
		return Workspace{}, fmt.Errorf("insert workspace: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO workspace_members (workspace_id, user_id, role)
		VALUES ($1, $2, $3)
	`, ws.ID, ownerID, string(rbac.RoleOwner)); err != nil {
		return Workspace{}, fmt.Errorf("insert owner membership: %w", err)
	}

	for i, st := range defaultStatuses {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO task_statuses (workspace_id, name, slug, position, is_done)
			VALUES ($1, $2, $3, $4, $5)
		`, ws.ID, st.Name, st.Slug, ordering.Spaced(i), st.IsDone); err != nil {
			return Workspace{}, fmt.Errorf("seed status %s: %w", st.Slug, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Workspace{}, fmt.Errorf("commit create workspace: %w", err)
	}
	return ws, nil
}

func (s *PostgresStore) ListWorkspacesForUser(ctx context.Context, userID string) ([]WorkspaceWithRole, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT w.id, w.name, w.slug, COALESCE(w.description, ''), w.owner_id, w.is_default,
			w.settings_json::text, w.created_at, w.updated_at, m.role
		FROM workspaces w
		JOIN workspace_members m ON m.workspace_id = w.id
		WHERE m.user_id = $1
		ORDER BY w.created_at
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list workspaces: %w", err)
	}
	defer rows.Close()

	items := make([]WorkspaceWithRole, 0)
	for rows.Next() {
		var item WorkspaceWithRole
		if err := rows.Scan(
			&item.ID, &item.Name, &item.Slug, &item.Description, &item.OwnerID, &item.IsDefault,
			&item.Settings, &item.CreatedAt, &item.UpdatedAt, &item.Role,
		); err != nil {
			return nil, fmt.Errorf("scan workspace: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate workspaces: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetWorkspace(ctx context.Context, workspaceID string) (Workspace, error) {
	var ws Workspace
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, slug, COALESCE(description, ''), owner_id, is_default, settings_json::text, created_at, updated_at
		FROM workspaces WHERE id = $1
	`, workspaceID).Scan(
		&ws.ID, &ws.Name, &ws.Slug, &ws.Description, &ws.OwnerID, &ws.IsDefault, &ws.Settings, &ws.CreatedAt, &ws.UpdatedAt,
	)
	if err != nil {
		return Workspace{}, err
	}
	return ws, nil
}

func (s *PostgresStore) UpdateWorkspace(ctx context.Context, workspaceID string, patch WorkspacePatch) (Workspace, error) {
	var ws Workspace
	err := s.db.QueryRowContext(ctx, `
		UPDATE workspaces
		SET name = COALESCE($2, name),
			description = COALESCE($3, description),
			settings_json = COALESCE($4::jsonb, settings_json),
			updated_at = NOW()
		WHERE id = $1
		RETURNING id, name, slug, COALESCE(description, ''), owner_id, is_default, settings_json::text, created_at, updated_at
	`, workspaceID, patch.Name, patch.Description, patch.Settings).Scan(
		&ws.ID, &ws.Name, &ws.Slug, &ws.Description, &ws.OwnerID, &ws.IsDefault, &ws.Settings, &ws.CreatedAt, &ws.UpdatedAt,
	)
	if err != nil {
		return Workspace{}, err
	}
	return ws, nil
}

// SetDefaultWorkspace flips the owner's default flag to workspaceID. The
// clear and set run in one transaction so the partial unique index never
// sees two defaults.
func (s *PostgresStore) SetDefaultWorkspace(ctx context.Context, ownerID, workspaceID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin set default: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		UPDATE workspaces SET is_default = FALSE WHERE owner_id = $1 AND is_default AND id <> $2
	`, ownerID, workspaceID); err != nil {
		return fmt.Errorf("clear default workspace: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE workspaces SET is_default = TRUE WHERE id = $1 AND owner_id = $2
	`, workspaceID, ownerID)
	if err != nil {
		return fmt.Errorf("set default workspace: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit set default: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteWorkspace(ctx context.Context, workspaceID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM workspaces WHERE id = $1`, workspaceID)
	if err != nil {
		return fmt.Errorf("delete workspace: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// GetMemberRole returns sql.ErrNoRows when the user is not a member, so
// the caller cannot tell a foreign workspace from a missing one.
func (s *PostgresStore) GetMemberRole(ctx context.Context, workspaceID, userID string) (string, error) {
	var role string
	err := s.db.QueryRowContext(ctx, `
		SELECT role FROM workspace_members WHERE workspace_id = $1 AND user_id = $2
	`, workspaceID, userID).Scan(&role)
	if err != nil {
		return "", err
	}
	return role, nil
}

func (s *PostgresStore) ListMembers(ctx context.Context, workspaceID string) ([]MemberWithUser, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.workspace_id, m.user_id, m.role, m.joined_at, u.email, u.display_name
		FROM workspace_members m
		JOIN users u ON u.id = m.user_id
		WHERE m.workspace_id = $1
		ORDER BY m.joined_at
	`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	items := make([]MemberWithUser, 0)
	for rows.Next() {
		var item MemberWithUser
		if err := rows.Scan(&item.WorkspaceID, &item.UserID, &item.Role, &item.JoinedAt, &item.Email, &item.DisplayName); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpdateMemberRole(ctx context.Context, workspaceID, userID, role string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE workspace_members SET role = $3 WHERE workspace_id = $1 AND user_id = $2
	`, workspaceID, userID, role)
	if err != nil {
		return fmt.Errorf("update member role: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) RemoveMember(ctx context.Context, workspaceID, userID string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM workspace_members WHERE workspace_id = $1 AND user_id = $2
	`, workspaceID, userID)
	if err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

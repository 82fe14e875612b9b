package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// CreateInvite inserts a pending invitation. Expired pending rows for the
// same address are purged in the same transaction so the partial unique
// index only guards live invites.
func (s *PostgresStore) CreateInvite(ctx context.Context, workspaceID, email, role, token, invitedBy string, ttl time.Duration) (Invite, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Invite{}, fmt.Errorf("begin create invite: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM workspace_invites
		WHERE workspace_id = $1 AND LOWER(email) = LOWER($2)
			AND accepted_at IS NULL AND expires_at <= NOW()
	`, workspaceID, email); err != nil {
		return Invite{}, fmt.Errorf("purge expired invites: %w", err)
	}

	var inv Invite
	err = tx.QueryRowContext(ctx, `
		INSERT INTO workspace_invites (workspace_id, email, role, token, invited_by, expires_at)
		VALUES ($1, LOWER($2), $3, $4, $5, NOW() + make_interval(secs => $6))
		RETURNING id, workspace_id, email, role, token, invited_by, created_at, expires_at, accepted_at
	`, workspaceID, email, role, token, invitedBy, ttl.Seconds()).Scan(
		&inv.ID, &inv.WorkspaceID, &inv.Email, &inv.Role, &inv.Token, &inv.InvitedBy,
		&inv.CreatedAt, &inv.ExpiresAt, &inv.AcceptedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "idx_invites_pending") {
			return Invite{}, ErrInvitePending
		}
		return Invite{}, fmt.Errorf("insert invite: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Invite{}, fmt.Errorf("commit create invite: %w", err)
	}
	return inv, nil
}

func (s *PostgresStore) ListInvites(ctx context.Context, workspaceID string) ([]Invite, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workspace_id, email, role, token, invited_by, created_at, expires_at, accepted_at
		FROM workspace_invites
		WHERE workspace_id = $1 AND accepted_at IS NULL AND expires_at > NOW()
		ORDER BY created_at
	`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list invites: %w", err)
	}
	defer rows.Close()

	items := make([]Invite, 0)
	for rows.Next() {
		var inv Invite
		if err := rows.Scan(
			&inv.ID, &inv.WorkspaceID, &inv.Email, &inv.Role, &inv.Token, &inv.InvitedBy,
			&inv.CreatedAt, &inv.ExpiresAt, &inv.AcceptedAt,
		); err != nil {
			return nil, fmt.Errorf("scan invite: %w", err)
		}
		items = append(items, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate invites: %w", err)
	}
	return items, nil
}

// GetInviteDetails resolves a token to the preview shown before
// accepting. Expired and accepted invites still resolve here; the caller
// decides how to present them.
func (s *PostgresStore) GetInviteDetails(ctx context.Context, token string) (InviteDetails, error) {
	var d InviteDetails
	err := s.db.QueryRowContext(ctx, `
		SELECT i.id, i.workspace_id, i.email, i.role, i.token, i.invited_by,
			i.created_at, i.expires_at, i.accepted_at, w.name, u.display_name
		FROM workspace_invites i
		JOIN workspaces w ON w.id = i.workspace_id
		JOIN users u ON u.id = i.invited_by
		WHERE i.token = $1
	`, token).Scan(
		&d.ID, &d.WorkspaceID, &d.Email, &d.Role, &d.Token, &d.InvitedBy,
		&d.CreatedAt, &d.ExpiresAt, &d.AcceptedAt, &d.WorkspaceName, &d.InviterName,
	)
	if err != nil {
		return InviteDetails{}, err
	}
	return d, nil
}

// AcceptInvite consumes a pending invitation and adds userID as a member
// with the invited role. The invite row is locked for the duration of the
// transaction, so a token is spent exactly once.
func (s *PostgresStore) AcceptInvite(ctx context.Context, token, userID string) (Member, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Member{}, fmt.Errorf("begin accept invite: %w", err)
	}
	defer tx.Rollback()

	var inv Invite
	err = tx.QueryRowContext(ctx, `
		SELECT id, workspace_id, role, expires_at, accepted_at
		FROM workspace_invites
		WHERE token = $1
		FOR UPDATE
	`, token).Scan(&inv.ID, &inv.WorkspaceID, &inv.Role, &inv.ExpiresAt, &inv.AcceptedAt)
	if err != nil {
		return Member{}, err
	}
	if inv.AcceptedAt != nil {
		return Member{}, ErrInviteAlreadyAccepted
	}
	if time.Now().After(inv.ExpiresAt) {
		return Member{}, ErrInviteExpired
	}

	var member Member
	err = tx.QueryRowContext(ctx, `
		INSERT INTO workspace_members (workspace_id, user_id, role, invited_by)
		SELECT workspace_id, $2, role, invited_by FROM workspace_invites WHERE id = $1
		RETURNING workspace_id, user_id, role, joined_at
	`, inv.ID, userID).Scan(&member.WorkspaceID, &member.UserID, &member.Role, &member.JoinedAt)
	if err != nil {
		if isUniqueViolation(err, "workspace_members_pkey") {
			return Member{}, ErrAlreadyMember
		}
		return Member{}, fmt.Errorf("insert membership: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE workspace_invites SET accepted_at = NOW() WHERE id = $1
	`, inv.ID); err != nil {
		return Member{}, fmt.Errorf("stamp invite accepted: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Member{}, fmt.Errorf("commit accept invite: %w", err)
	}
	return member, nil
}

// RevokeInvite deletes a pending invitation.
func (s *PostgresStore) RevokeInvite(ctx context.Context, workspaceID, inviteID string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM workspace_invites
		WHERE id = $1 AND workspace_id = $2 AND accepted_at IS NULL
	`, inviteID, workspaceID)
	if err != nil {
		return fmt.Errorf("revoke invite: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// IsMemberByEmail reports whether the address already belongs to a member.
func (s *PostgresStore) IsMemberByEmail(ctx context.Context, workspaceID, email string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM workspace_members m
			JOIN users u ON u.id = m.user_id
			WHERE m.workspace_id = $1 AND LOWER(u.email) = LOWER($2)
		)
	`, workspaceID, email).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check member by email: %w", err)
	}
	return exists, nil
}

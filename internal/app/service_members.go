package app

import (
	"context"
	"errors"
	"strings"

	"github.com/ruslan-korneev/todo-server/internal/hierarchy"
	"github.com/ruslan-korneev/todo-server/internal/rbac"
	"github.com/ruslan-korneev/todo-server/internal/store"
	"github.com/ruslan-korneev/todo-server/internal/util"
)

type CreateWorkspaceInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type UpdateWorkspaceInput struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Settings    *string `json:"settings"`
}

type InviteMemberInput struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

// CreateWorkspace makes the actor the owner of a new workspace. A slug
// collision with an existing workspace gets one disambiguation attempt.
func (s *Service) CreateWorkspace(ctx context.Context, actorID string, in CreateWorkspaceInput) (store.Workspace, error) {
	name := trimmed(in.Name)
	if name == "" {
		return store.Workspace{}, validation("name is required")
	}
	return s.createWorkspace(ctx, actorID, name, trimmed(in.Description))
}

func (s *Service) createWorkspace(ctx context.Context, ownerID, name, description string) (store.Workspace, error) {
	slug := hierarchy.Slugify(name)
	if slug == "" {
		return store.Workspace{}, validation("name must contain letters or digits")
	}

	ws, err := s.store.CreateWorkspace(ctx, ownerID, name, slug, description)
	if errors.Is(err, store.ErrSlugTaken) {
		ws, err = s.store.CreateWorkspace(ctx, ownerID, name, slug+"_"+util.NewID()[:8], description)
	}
	if err != nil {
		return store.Workspace{}, mapStoreErr(err, "workspace")
	}
	return ws, nil
}

func (s *Service) ListWorkspaces(ctx context.Context, actorID string) ([]store.WorkspaceWithRole, error) {
	return s.store.ListWorkspacesForUser(ctx, actorID)
}

func (s *Service) GetWorkspace(ctx context.Context, actorID, workspaceID string) (store.WorkspaceWithRole, error) {
	role, err := s.authorize(ctx, workspaceID, actorID, rbac.ActionViewWorkspace)
	if err != nil {
		return store.WorkspaceWithRole{}, err
	}
	ws, err := s.store.GetWorkspace(ctx, workspaceID)
	if err != nil {
		return store.WorkspaceWithRole{}, mapStoreErr(err, "workspace")
	}
	return store.WorkspaceWithRole{Workspace: ws, Role: string(role)}, nil
}

func (s *Service) UpdateWorkspace(ctx context.Context, actorID, workspaceID string, in UpdateWorkspaceInput) (store.Workspace, error) {
	if _, err := s.authorize(ctx, workspaceID, actorID, rbac.ActionUpdateWorkspace); err != nil {
		return store.Workspace{}, err
	}
	if in.Name != nil && trimmed(*in.Name) == "" {
		return store.Workspace{}, validation("name cannot be blank")
	}
	ws, err := s.store.UpdateWorkspace(ctx, workspaceID, store.WorkspacePatch{
		Name:        in.Name,
		Description: in.Description,
		Settings:    in.Settings,
	})
	if err != nil {
		return store.Workspace{}, mapStoreErr(err, "workspace")
	}
	return ws, nil
}

// SetDefaultWorkspace marks one of the actor's owned workspaces as their
// default. Workspaces owned by someone else behave as missing.
func (s *Service) SetDefaultWorkspace(ctx context.Context, actorID, workspaceID string) error {
	if _, err := s.authorize(ctx, workspaceID, actorID, rbac.ActionViewWorkspace); err != nil {
		return err
	}
	return mapStoreErr(s.store.SetDefaultWorkspace(ctx, actorID, workspaceID), "workspace")
}

func (s *Service) DeleteWorkspace(ctx context.Context, actorID, workspaceID string) error {
	if _, err := s.authorize(ctx, workspaceID, actorID, rbac.ActionDeleteWorkspace); err != nil {
		return err
	}
	if err := s.store.DeleteWorkspace(ctx, workspaceID); err != nil {
		return mapStoreErr(err, "workspace")
	}
	if s.roles != nil {
		if err := s.roles.InvalidateWorkspace(ctx, workspaceID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) ListMembers(ctx context.Context, actorID, workspaceID string) ([]store.MemberWithUser, error) {
	if _, err := s.authorize(ctx, workspaceID, actorID, rbac.ActionViewMembers); err != nil {
		return nil, err
	}
	return s.store.ListMembers(ctx, workspaceID)
}

// ChangeMemberRole updates another member's role. The actor must be
// allowed to assign both the member's current role and the new one, so
// an admin can neither touch the owner nor demote a fellow admin.
func (s *Service) ChangeMemberRole(ctx context.Context, actorID, workspaceID, userID, newRole string) error {
	actorRole, err := s.authorize(ctx, workspaceID, actorID, rbac.ActionChangeRole)
	if err != nil {
		return err
	}
	if !rbac.Valid(rbac.Role(newRole)) {
		return validation("role must be one of owner, admin, editor, reader")
	}
	if userID == actorID {
		return validation("cannot change your own role")
	}

	currentRole, err := s.store.GetMemberRole(ctx, workspaceID, userID)
	if err != nil {
		return mapStoreErr(err, "member")
	}
	if !rbac.CanAssignRole(actorRole, rbac.Role(currentRole)) || !rbac.CanAssignRole(actorRole, rbac.Role(newRole)) {
		return forbidden("cannot assign this role")
	}

	if err := s.store.UpdateMemberRole(ctx, workspaceID, userID, newRole); err != nil {
		return mapStoreErr(err, "member")
	}
	s.invalidateRole(ctx, workspaceID, userID)
	return nil
}

// RemoveMember removes a member, or lets a member leave on their own.
// The owner can do neither; ownership has to be resolved by deleting the
// workspace.
func (s *Service) RemoveMember(ctx context.Context, actorID, workspaceID, userID string) error {
	actorRole, err := s.resolveRole(ctx, workspaceID, actorID)
	if err != nil {
		return err
	}

	if actorID == userID {
		if actorRole == rbac.RoleOwner {
			return invalidTransition("the owner cannot leave their workspace")
		}
	} else {
		if err := rbac.Authorize(actorRole, rbac.ActionRemoveMember); err != nil {
			return forbidden(err.Error())
		}
		currentRole, err := s.store.GetMemberRole(ctx, workspaceID, userID)
		if err != nil {
			return mapStoreErr(err, "member")
		}
		if !rbac.CanAssignRole(actorRole, rbac.Role(currentRole)) {
			return forbidden("cannot remove this member")
		}
	}

	if err := s.store.RemoveMember(ctx, workspaceID, userID); err != nil {
		return mapStoreErr(err, "member")
	}
	s.invalidateRole(ctx, workspaceID, userID)
	return nil
}

// InviteMember creates a pending invitation for an email address.
func (s *Service) InviteMember(ctx context.Context, actorID, workspaceID string, in InviteMemberInput) (store.Invite, error) {
	actorRole, err := s.authorize(ctx, workspaceID, actorID, rbac.ActionInviteMember)
	if err != nil {
		return store.Invite{}, err
	}

	email := trimmed(strings.ToLower(in.Email))
	if email == "" || !strings.Contains(email, "@") {
		return store.Invite{}, validation("a valid email address is required")
	}
	role := rbac.Role(in.Role)
	if !rbac.Valid(role) || role == rbac.RoleOwner {
		return store.Invite{}, validation("invited role must be admin, editor, or reader")
	}
	if !rbac.CanAssignRole(actorRole, role) {
		return store.Invite{}, forbidden("cannot invite with this role")
	}

	member, err := s.store.IsMemberByEmail(ctx, workspaceID, email)
	if err != nil {
		return store.Invite{}, err
	}
	if member {
		return store.Invite{}, conflict("ALREADY_MEMBER", "user is already a workspace member")
	}

	inv, err := s.store.CreateInvite(ctx, workspaceID, email, string(role), util.NewToken(), actorID, s.cfg.InviteTTL)
	if err != nil {
		return store.Invite{}, mapStoreErr(err, "workspace")
	}
	return inv, nil
}

func (s *Service) ListInvites(ctx context.Context, actorID, workspaceID string) ([]store.Invite, error) {
	if _, err := s.authorize(ctx, workspaceID, actorID, rbac.ActionInviteMember); err != nil {
		return nil, err
	}
	return s.store.ListInvites(ctx, workspaceID)
}

func (s *Service) RevokeInvite(ctx context.Context, actorID, workspaceID, inviteID string) error {
	if _, err := s.authorize(ctx, workspaceID, actorID, rbac.ActionInviteMember); err != nil {
		return err
	}
	return mapStoreErr(s.store.RevokeInvite(ctx, workspaceID, inviteID), "invite")
}

// GetInviteDetails previews an invitation by token. Possession of the
// token is the only credential needed.
func (s *Service) GetInviteDetails(ctx context.Context, token string) (store.InviteDetails, error) {
	details, err := s.store.GetInviteDetails(ctx, token)
	if err != nil {
		return store.InviteDetails{}, mapStoreErr(err, "invite")
	}
	return details, nil
}

// AcceptInvite consumes an invitation token and joins the actor to the
// workspace with the invited role.
func (s *Service) AcceptInvite(ctx context.Context, actorID, token string) (store.Member, error) {
	member, err := s.store.AcceptInvite(ctx, token, actorID)
	if err != nil {
		return store.Member{}, mapStoreErr(err, "invite")
	}
	s.invalidateRole(ctx, member.WorkspaceID, actorID)
	return member, nil
}

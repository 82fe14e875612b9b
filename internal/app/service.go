package app

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/ruslan-korneev/todo-server/internal/config"
	"github.com/ruslan-korneev/todo-server/internal/logger"
	"github.com/ruslan-korneev/todo-server/internal/rbac"
	"github.com/ruslan-korneev/todo-server/internal/search"
	"github.com/ruslan-korneev/todo-server/internal/store"
)

var allowedPriorities = map[string]struct{}{
	"lowest":  {},
	"low":     {},
	"medium":  {},
	"high":    {},
	"highest": {},
}

type dataStore interface {
	EnsureUserByEmail(context.Context, string, string) (store.User, error)
	CountUsers(context.Context) (int, error)

	CreateWorkspace(context.Context, string, string, string, string) (store.Workspace, error)
	ListWorkspacesForUser(context.Context, string) ([]store.WorkspaceWithRole, error)
	GetWorkspace(context.Context, string) (store.Workspace, error)
	UpdateWorkspace(context.Context, string, store.WorkspacePatch) (store.Workspace, error)
	SetDefaultWorkspace(context.Context, string, string) error
	DeleteWorkspace(context.Context, string) error

	GetMemberRole(context.Context, string, string) (string, error)
	ListMembers(context.Context, string) ([]store.MemberWithUser, error)
	UpdateMemberRole(context.Context, string, string, string) error
	RemoveMember(context.Context, string, string) error

	CreateInvite(context.Context, string, string, string, string, string, time.Duration) (store.Invite, error)
	ListInvites(context.Context, string) ([]store.Invite, error)
	GetInviteDetails(context.Context, string) (store.InviteDetails, error)
	AcceptInvite(context.Context, string, string) (store.Member, error)
	RevokeInvite(context.Context, string, string) error
	IsMemberByEmail(context.Context, string, string) (bool, error)

	ListStatuses(context.Context, string) ([]store.Status, error)
	GetStatus(context.Context, string, string) (store.Status, error)
	InsertStatus(context.Context, string, string, string, string, bool) (store.Status, error)
	UpdateStatus(context.Context, string, string, *string, *string, *bool) (store.Status, error)
	DeleteStatus(context.Context, string, string) error
	ReorderStatuses(context.Context, string, []string) error

	ListTasks(context.Context, string, store.TaskListFilter) ([]store.Task, int, error)
	GetTask(context.Context, string, string) (store.Task, error)
	InsertTask(context.Context, store.Task) (store.Task, error)
	UpdateTask(context.Context, string, string, store.TaskPatch) (store.Task, error)
	DeleteTask(context.Context, string, string) error
	MoveTask(context.Context, string, string, string, int) (store.Task, error)

	ListComments(context.Context, string, string) ([]store.Comment, error)
	InsertComment(context.Context, string, string, string, string) (store.Comment, error)
	GetComment(context.Context, string, string) (store.Comment, error)
	UpdateComment(context.Context, string, string, string) (store.Comment, error)
	DeleteComment(context.Context, string, string) error

	ListTags(context.Context, string) ([]store.Tag, error)
	InsertTag(context.Context, string, string, string) (store.Tag, error)
	UpdateTag(context.Context, string, string, *string, *string) (store.Tag, error)
	DeleteTag(context.Context, string, string) error
	SetTaskTags(context.Context, string, string, []string) ([]store.Tag, error)

	ListDocuments(context.Context, string) ([]store.Document, error)
	GetDocument(context.Context, string, string) (store.Document, error)
	InsertDocument(context.Context, string, string, string, string, *string, string) (store.Document, error)
	UpdateDocument(context.Context, string, string, store.DocumentPatch) (store.Document, error)
	MoveDocument(context.Context, string, string, *string, int) (store.Document, error)
	DeleteDocument(context.Context, string, string) (int, error)

	LinkTaskDocument(context.Context, string, string, string) error
	UnlinkTaskDocument(context.Context, string, string, string) error
	ListLinkedTasks(context.Context, string, string) ([]store.LinkedTask, error)
	ListLinkedDocuments(context.Context, string, string) ([]store.LinkedDocument, error)
}

type searchService interface {
	Search(q search.Query) search.Response
	IndexTask(t search.TaskRecord)
	IndexDocument(d search.DocumentRecord)
	IndexComment(c search.CommentRecord)
	DeleteTask(id string)
	DeleteDocument(id string)
	DeleteComment(id string)
	ReindexAllFromDB(ctx context.Context)
}

type roleCache interface {
	Get(ctx context.Context, workspaceID, userID string) (string, error)
	Set(ctx context.Context, workspaceID, userID, role string) error
	Invalidate(ctx context.Context, workspaceID, userID string) error
	InvalidateWorkspace(ctx context.Context, workspaceID string) error
}

type Service struct {
	cfg    config.Config
	store  dataStore
	search searchService
	roles  roleCache
}

// New wires the service. search and roles may be nil when the
// corresponding backend is not configured.
func New(cfg config.Config, dataStore dataStore, searchService searchService, roles roleCache) *Service {
	return &Service{
		cfg:    cfg,
		store:  dataStore,
		search: searchService,
		roles:  roles,
	}
}

// Bootstrap seeds the first user and their default workspace on an empty
// database.
func (s *Service) Bootstrap(ctx context.Context) error {
	if s.cfg.BootstrapEmail == "" {
		return nil
	}
	count, err := s.store.CountUsers(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	name := s.cfg.BootstrapName
	if name == "" {
		name = "Workspace Owner"
	}
	user, err := s.store.EnsureUserByEmail(ctx, s.cfg.BootstrapEmail, name)
	if err != nil {
		return err
	}
	ws, err := s.createWorkspace(ctx, user.ID, "Personal", "")
	if err != nil {
		return err
	}
	logger.Info().Str("workspace", ws.ID).Str("user", user.ID).Msg("bootstrapped first workspace")
	return nil
}

// resolveRole returns the actor's role in the workspace. Non-members get
// NotFound, so a foreign workspace is indistinguishable from a missing
// one.
func (s *Service) resolveRole(ctx context.Context, workspaceID, actorID string) (rbac.Role, error) {
	if s.roles != nil {
		if cached, err := s.roles.Get(ctx, workspaceID, actorID); err == nil {
			return rbac.Role(cached), nil
		}
	}

	role, err := s.store.GetMemberRole(ctx, workspaceID, actorID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", notFound("workspace")
		}
		return "", err
	}

	if s.roles != nil {
		if err := s.roles.Set(ctx, workspaceID, actorID, role); err != nil {
			logger.Debug().Err(err).Msg("cache role")
		}
	}
	return rbac.Role(role), nil
}

// authorize resolves the actor's role and checks it against the action.
func (s *Service) authorize(ctx context.Context, workspaceID, actorID string, action rbac.Action) (rbac.Role, error) {
	role, err := s.resolveRole(ctx, workspaceID, actorID)
	if err != nil {
		return "", err
	}
	if err := rbac.Authorize(role, action); err != nil {
		return "", forbidden(err.Error())
	}
	return role, nil
}

// invalidateRole drops a cached role after a membership mutation.
func (s *Service) invalidateRole(ctx context.Context, workspaceID, userID string) {
	if s.roles == nil {
		return
	}
	if err := s.roles.Invalidate(ctx, workspaceID, userID); err != nil {
		logger.Warn().Err(err).Msg("invalidate cached role")
	}
}

// requireMember verifies the user belongs to the workspace before they
// can be referenced, for example as a task assignee.
func (s *Service) requireMember(ctx context.Context, workspaceID, userID string) error {
	_, err := s.store.GetMemberRole(ctx, workspaceID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return validation("assignee must be a workspace member")
	}
	return err
}

// mapStoreErr translates store sentinels into DomainErrors. Unknown
// errors pass through for the caller to log.
func mapStoreErr(err error, resource string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return notFound(resource)
	case errors.Is(err, store.ErrOrderingConflict):
		return conflict("ORDERING_CONFLICT", "a concurrent write took this position, retry the operation")
	case errors.Is(err, store.ErrSlugTaken):
		return conflict("SLUG_TAKEN", "this name is already in use")
	case errors.Is(err, store.ErrPathCollision):
		return conflict("PATH_COLLISION", "a document with this slug already exists")
	case errors.Is(err, store.ErrCyclicMove):
		return invalidTransition("cannot move a document under its own subtree")
	case errors.Is(err, store.ErrInviteExpired):
		return invalidTransition("invitation has expired")
	case errors.Is(err, store.ErrInviteAlreadyAccepted):
		return invalidTransition("invitation was already accepted")
	case errors.Is(err, store.ErrAlreadyMember):
		return conflict("ALREADY_MEMBER", "user is already a workspace member")
	case errors.Is(err, store.ErrInvitePending):
		return conflict("INVITE_PENDING", "a pending invitation already exists for this address")
	case errors.Is(err, store.ErrStatusNotEmpty):
		return conflict("STATUS_NOT_EMPTY", "move or delete the tasks in this status first")
	case errors.Is(err, store.ErrLastStatus):
		return conflict("LAST_STATUS", "a workspace needs at least one status")
	default:
		return err
	}
}

func trimmed(s string) string {
	return strings.TrimSpace(s)
}

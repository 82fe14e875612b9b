// Package rbac evaluates workspace roles against actions. It is a pure
// lookup with no storage access so the full matrix is testable by
// enumeration.
package rbac

import "fmt"

type Role string
type Action string

const (
	RoleReader Role = "reader"
	RoleEditor Role = "editor"
	RoleAdmin  Role = "admin"
	RoleOwner  Role = "owner"
)

const (
	ActionViewWorkspace    Action = "view-workspace"
	ActionUpdateWorkspace  Action = "update-workspace"
	ActionDeleteWorkspace  Action = "delete-workspace"
	ActionViewTask         Action = "view-task"
	ActionCreateTask       Action = "create-task"
	ActionEditTask         Action = "edit-task"
	ActionMoveTask         Action = "move-task"
	ActionDeleteTask       Action = "delete-task"
	ActionCommentTask      Action = "comment-task"
	ActionModerateComments Action = "moderate-comments"
	ActionManageTags       Action = "manage-tags"
	ActionViewDocument     Action = "view-document"
	ActionCreateDocument   Action = "create-document"
	ActionEditDocument     Action = "edit-document"
	ActionMoveDocument     Action = "move-document"
	ActionDeleteDocument   Action = "delete-document"
	ActionLinkDocument     Action = "link-document"
	ActionManageStatuses   Action = "manage-statuses"
	ActionDeleteStatus     Action = "delete-status"
	ActionViewMembers      Action = "view-members"
	ActionInviteMember     Action = "invite-member"
	ActionChangeRole       Action = "change-role"
	ActionRemoveMember     Action = "remove-member"
	ActionSearch           Action = "search"
)

// rank orders roles: reader < editor < admin < owner.
var rank = map[Role]int{
	RoleReader: 1,
	RoleEditor: 2,
	RoleAdmin:  3,
	RoleOwner:  4,
}

// minRole is the action catalog: the weakest role allowed each action.
var minRole = map[Action]Role{
	ActionViewWorkspace:    RoleReader,
	ActionUpdateWorkspace:  RoleAdmin,
	ActionDeleteWorkspace:  RoleOwner,
	ActionViewTask:         RoleReader,
	ActionCreateTask:       RoleEditor,
	ActionEditTask:         RoleEditor,
	ActionMoveTask:         RoleEditor,
	ActionDeleteTask:       RoleEditor,
	ActionCommentTask:      RoleEditor,
	ActionModerateComments: RoleAdmin,
	ActionManageTags:       RoleEditor,
	ActionViewDocument:     RoleReader,
	ActionCreateDocument:   RoleEditor,
	ActionEditDocument:     RoleEditor,
	ActionMoveDocument:     RoleEditor,
	ActionDeleteDocument:   RoleEditor,
	ActionLinkDocument:     RoleEditor,
	ActionManageStatuses:   RoleEditor,
	ActionDeleteStatus:     RoleAdmin,
	ActionViewMembers:      RoleReader,
	ActionInviteMember:     RoleAdmin,
	ActionChangeRole:       RoleAdmin,
	ActionRemoveMember:     RoleAdmin,
	ActionSearch:           RoleReader,
}

// Actions lists the full catalog, for matrix enumeration.
func Actions() []Action {
	actions := make([]Action, 0, len(minRole))
	for action := range minRole {
		actions = append(actions, action)
	}
	return actions
}

// MinRole reports the weakest role allowed to perform action.
func MinRole(action Action) (Role, bool) {
	role, ok := minRole[action]
	return role, ok
}

// Can reports whether role may perform action. Unknown roles and unknown
// actions are always denied.
func Can(role Role, action Action) bool {
	required, ok := minRole[action]
	if !ok {
		return false
	}
	return rank[role] >= rank[required]
}

// Authorize returns nil when role may perform action, or a deny reason.
func Authorize(role Role, action Action) error {
	if Can(role, action) {
		return nil
	}
	required, ok := minRole[action]
	if !ok {
		return fmt.Errorf("unknown action %q", action)
	}
	return fmt.Errorf("action %q requires role %q or above, actor is %q", action, required, role)
}

// CanAssignRole reports whether an actor may grant or set target as a
// member role. Ownership is never assignable through role changes, and
// only an owner may grant admin.
func CanAssignRole(actor, target Role) bool {
	if target == RoleOwner {
		return false
	}
	if rank[target] >= rank[RoleAdmin] {
		return actor == RoleOwner
	}
	return rank[actor] >= rank[RoleAdmin]
}

// Valid reports whether role is one of the four known roles.
func Valid(role Role) bool {
	_, ok := rank[role]
	return ok
}

// Normalize maps an unknown role string to the weakest role.
func Normalize(role string) Role {
	if Valid(Role(role)) {
		return Role(role)
	}
	return RoleReader
}

// Stronger reports whether a outranks b.
func Stronger(a, b Role) bool {
	return rank[a] > rank[b]
}

package store

import "time"

type User struct {
	ID          string
	Email       string
	DisplayName string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Workspace struct {
	ID          string
	Name        string
	Slug        string
	Description string
	OwnerID     string
	IsDefault   bool
	Settings    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// WorkspaceWithRole carries the requesting member's role alongside the
// workspace it was resolved in.
type WorkspaceWithRole struct {
	Workspace
	Role string
}

type WorkspacePatch struct {
	Name        *string
	Description *string
	Settings    *string
}

type Member struct {
	WorkspaceID string
	UserID      string
	Role        string
	JoinedAt    time.Time
}

// MemberWithUser includes joined user fields for listings.
type MemberWithUser struct {
	Member
	Email       string
	DisplayName string
}

type Invite struct {
	ID          string
	WorkspaceID string
	Email       string
	Role        string
	Token       string
	InvitedBy   string
	CreatedAt   time.Time
	ExpiresAt   time.Time
	AcceptedAt  *time.Time
}

// InviteDetails is the token-lookup view shown before accepting.
type InviteDetails struct {
	Invite
	WorkspaceName string
	InviterName   string
}

type Status struct {
	ID          string
	WorkspaceID string
	Name        string
	Slug        string
	Color       string
	Position    int
	IsDone      bool
	CreatedAt   time.Time
}

type Task struct {
	ID                  string
	WorkspaceID         string
	StatusID            string
	Title               string
	Description         string
	Priority            string
	Position            int
	CreatedBy           string
	AssignedTo          *string
	DueDate             *time.Time
	TimeEstimateMinutes *int
	CompletedAt         *time.Time
	ExternalRefs        string
	CreatedAt           time.Time
	UpdatedAt           time.Time
	Tags                []Tag
}

type TaskPatch struct {
	Title               *string
	Description         *string
	Priority            *string
	AssignedTo          *string
	ClearAssignee       bool
	DueDate             *time.Time
	ClearDueDate        bool
	TimeEstimateMinutes *int
	ExternalRefs        *string
}

// TaskListFilter narrows ListTasks. Zero values mean "no constraint".
type TaskListFilter struct {
	StatusID   string
	AssignedTo string
	Priority   string
	TagID      string
	DueBefore  *time.Time
	Query      string
	Limit      int
	Offset     int
}

type Comment struct {
	ID         string
	TaskID     string
	AuthorID   string
	AuthorName string
	Content    string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Document struct {
	ID          string
	WorkspaceID string
	Title       string
	Slug        string
	Content     string
	Path        string
	ParentPath  string
	ParentID    *string
	Position    int
	CreatedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// DocumentTreeNode represents a document in the tree hierarchy.
type DocumentTreeNode struct {
	Document
	Children []DocumentTreeNode
	Depth    int
}

type DocumentPatch struct {
	Title   *string
	Content *string
}

type Tag struct {
	ID          string
	WorkspaceID string
	Name        string
	Color       string
	CreatedAt   time.Time
}

// LinkedTask is a task referenced from a document.
type LinkedTask struct {
	TaskID   string
	Title    string
	StatusID string
	LinkedAt time.Time
}

// LinkedDocument is a document referenced from a task.
type LinkedDocument struct {
	DocumentID string
	Title      string
	Path       string
	LinkedAt   time.Time
}

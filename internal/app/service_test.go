package app

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/ruslan-korneev/todo-server/internal/config"
	"github.com/ruslan-korneev/todo-server/internal/search"
	"github.com/ruslan-korneev/todo-server/internal/store"
)

type fakeStore struct {
	ensureUserByEmailFn   func(context.Context, string, string) (store.User, error)
	countUsersFn          func(context.Context) (int, error)
	createWorkspaceFn     func(context.Context, string, string, string, string) (store.Workspace, error)
	getWorkspaceFn        func(context.Context, string) (store.Workspace, error)
	getMemberRoleFn       func(context.Context, string, string) (string, error)
	updateMemberRoleFn    func(context.Context, string, string, string) error
	removeMemberFn        func(context.Context, string, string) error
	createInviteFn        func(context.Context, string, string, string, string, string, time.Duration) (store.Invite, error)
	acceptInviteFn        func(context.Context, string, string) (store.Member, error)
	isMemberByEmailFn     func(context.Context, string, string) (bool, error)
	getStatusFn           func(context.Context, string, string) (store.Status, error)
	insertStatusFn        func(context.Context, string, string, string, string, bool) (store.Status, error)
	deleteStatusFn        func(context.Context, string, string) error
	insertTaskFn          func(context.Context, store.Task) (store.Task, error)
	updateTaskFn          func(context.Context, string, string, store.TaskPatch) (store.Task, error)
	moveTaskFn            func(context.Context, string, string, string, int) (store.Task, error)
	deleteTaskFn          func(context.Context, string, string) error
	getCommentFn          func(context.Context, string, string) (store.Comment, error)
	deleteCommentFn       func(context.Context, string, string) error
	listDocumentsFn       func(context.Context, string) ([]store.Document, error)
	insertDocumentFn      func(context.Context, string, string, string, string, *string, string) (store.Document, error)
	moveDocumentFn        func(context.Context, string, string, *string, int) (store.Document, error)
	deleteDocumentFn      func(context.Context, string, string) (int, error)
	reorderStatusesFn     func(context.Context, string, []string) error
	setDefaultWorkspaceFn func(context.Context, string, string) error
}

func (f *fakeStore) EnsureUserByEmail(ctx context.Context, email, name string) (store.User, error) {
	if f.ensureUserByEmailFn != nil {
		return f.ensureUserByEmailFn(ctx, email, name)
	}
	return store.User{ID: "user-1", Email: email, DisplayName: name}, nil
}
func (f *fakeStore) CountUsers(ctx context.Context) (int, error) {
	if f.countUsersFn != nil {
		return f.countUsersFn(ctx)
	}
	return 0, nil
}

func (f *fakeStore) CreateWorkspace(ctx context.Context, ownerID, name, slug, description string) (store.Workspace, error) {
	if f.createWorkspaceFn != nil {
		return f.createWorkspaceFn(ctx, ownerID, name, slug, description)
	}
	return store.Workspace{ID: "ws-1", OwnerID: ownerID, Name: name, Slug: slug}, nil
}
func (f *fakeStore) ListWorkspacesForUser(context.Context, string) ([]store.WorkspaceWithRole, error) {
	return nil, nil
}
func (f *fakeStore) GetWorkspace(ctx context.Context, id string) (store.Workspace, error) {
	if f.getWorkspaceFn != nil {
		return f.getWorkspaceFn(ctx, id)
	}
	return store.Workspace{ID: id}, nil
}
func (f *fakeStore) UpdateWorkspace(context.Context, string, store.WorkspacePatch) (store.Workspace, error) {
	return store.Workspace{}, nil
}
func (f *fakeStore) SetDefaultWorkspace(ctx context.Context, userID, workspaceID string) error {
	if f.setDefaultWorkspaceFn != nil {
		return f.setDefaultWorkspaceFn(ctx, userID, workspaceID)
	}
	return nil
}
func (f *fakeStore) DeleteWorkspace(context.Context, string) error { return nil }

func (f *fakeStore) GetMemberRole(ctx context.Context, workspaceID, userID string) (string, error) {
	if f.getMemberRoleFn != nil {
		return f.getMemberRoleFn(ctx, workspaceID, userID)
	}
	return "", sql.ErrNoRows
}
func (f *fakeStore) ListMembers(context.Context, string) ([]store.MemberWithUser, error) {
	return nil, nil
}
func (f *fakeStore) UpdateMemberRole(ctx context.Context, workspaceID, userID, role string) error {
	if f.updateMemberRoleFn != nil {
		return f.updateMemberRoleFn(ctx, workspaceID, userID, role)
	}
	return nil
}
func (f *fakeStore) RemoveMember(ctx context.Context, workspaceID, userID string) error {
	if f.removeMemberFn != nil {
		return f.removeMemberFn(ctx, workspaceID, userID)
	}
	return nil
}

func (f *fakeStore) CreateInvite(ctx context.Context, workspaceID, email, role, token, invitedBy string, ttl time.Duration) (store.Invite, error) {
	if f.createInviteFn != nil {
		return f.createInviteFn(ctx, workspaceID, email, role, token, invitedBy, ttl)
	}
	return store.Invite{ID: "inv-1", WorkspaceID: workspaceID, Email: email, Role: role}, nil
}
func (f *fakeStore) ListInvites(context.Context, string) ([]store.Invite, error) { return nil, nil }
func (f *fakeStore) GetInviteDetails(context.Context, string) (store.InviteDetails, error) {
	return store.InviteDetails{}, nil
}
func (f *fakeStore) AcceptInvite(ctx context.Context, token, userID string) (store.Member, error) {
	if f.acceptInviteFn != nil {
		return f.acceptInviteFn(ctx, token, userID)
	}
	return store.Member{WorkspaceID: "ws-1", UserID: userID, Role: "editor"}, nil
}
func (f *fakeStore) RevokeInvite(context.Context, string, string) error { return nil }
func (f *fakeStore) IsMemberByEmail(ctx context.Context, workspaceID, email string) (bool, error) {
	if f.isMemberByEmailFn != nil {
		return f.isMemberByEmailFn(ctx, workspaceID, email)
	}
	return false, nil
}

func (f *fakeStore) ListStatuses(context.Context, string) ([]store.Status, error) { return nil, nil }
func (f *fakeStore) GetStatus(ctx context.Context, workspaceID, statusID string) (store.Status, error) {
	if f.getStatusFn != nil {
		return f.getStatusFn(ctx, workspaceID, statusID)
	}
	return store.Status{ID: statusID, WorkspaceID: workspaceID}, nil
}
func (f *fakeStore) InsertStatus(ctx context.Context, workspaceID, name, slug, color string, isDone bool) (store.Status, error) {
	if f.insertStatusFn != nil {
		return f.insertStatusFn(ctx, workspaceID, name, slug, color, isDone)
	}
	return store.Status{ID: "st-1", WorkspaceID: workspaceID, Name: name, Slug: slug}, nil
}
func (f *fakeStore) UpdateStatus(context.Context, string, string, *string, *string, *bool) (store.Status, error) {
	return store.Status{}, nil
}
func (f *fakeStore) DeleteStatus(ctx context.Context, workspaceID, statusID string) error {
	if f.deleteStatusFn != nil {
		return f.deleteStatusFn(ctx, workspaceID, statusID)
	}
	return nil
}
func (f *fakeStore) ReorderStatuses(ctx context.Context, workspaceID string, ids []string) error {
	if f.reorderStatusesFn != nil {
		return f.reorderStatusesFn(ctx, workspaceID, ids)
	}
	return nil
}

func (f *fakeStore) ListTasks(context.Context, string, store.TaskListFilter) ([]store.Task, int, error) {
	return nil, 0, nil
}
func (f *fakeStore) GetTask(context.Context, string, string) (store.Task, error) {
	return store.Task{}, nil
}
func (f *fakeStore) InsertTask(ctx context.Context, task store.Task) (store.Task, error) {
	if f.insertTaskFn != nil {
		return f.insertTaskFn(ctx, task)
	}
	task.ID = "task-1"
	return task, nil
}
func (f *fakeStore) UpdateTask(ctx context.Context, workspaceID, taskID string, patch store.TaskPatch) (store.Task, error) {
	if f.updateTaskFn != nil {
		return f.updateTaskFn(ctx, workspaceID, taskID, patch)
	}
	return store.Task{ID: taskID, WorkspaceID: workspaceID}, nil
}
func (f *fakeStore) DeleteTask(ctx context.Context, workspaceID, taskID string) error {
	if f.deleteTaskFn != nil {
		return f.deleteTaskFn(ctx, workspaceID, taskID)
	}
	return nil
}
func (f *fakeStore) MoveTask(ctx context.Context, workspaceID, taskID, statusID string, position int) (store.Task, error) {
	if f.moveTaskFn != nil {
		return f.moveTaskFn(ctx, workspaceID, taskID, statusID, position)
	}
	return store.Task{ID: taskID, WorkspaceID: workspaceID, StatusID: statusID}, nil
}

func (f *fakeStore) ListComments(context.Context, string, string) ([]store.Comment, error) {
	return nil, nil
}
func (f *fakeStore) InsertComment(ctx context.Context, workspaceID, taskID, authorID, content string) (store.Comment, error) {
	return store.Comment{ID: "c-1", TaskID: taskID, AuthorID: authorID, Content: content}, nil
}
func (f *fakeStore) GetComment(ctx context.Context, workspaceID, commentID string) (store.Comment, error) {
	if f.getCommentFn != nil {
		return f.getCommentFn(ctx, workspaceID, commentID)
	}
	return store.Comment{ID: commentID}, nil
}
func (f *fakeStore) UpdateComment(ctx context.Context, workspaceID, commentID, content string) (store.Comment, error) {
	return store.Comment{ID: commentID, Content: content}, nil
}
func (f *fakeStore) DeleteComment(ctx context.Context, workspaceID, commentID string) error {
	if f.deleteCommentFn != nil {
		return f.deleteCommentFn(ctx, workspaceID, commentID)
	}
	return nil
}

func (f *fakeStore) ListTags(context.Context, string) ([]store.Tag, error) { return nil, nil }
func (f *fakeStore) InsertTag(context.Context, string, string, string) (store.Tag, error) {
	return store.Tag{}, nil
}
func (f *fakeStore) UpdateTag(context.Context, string, string, *string, *string) (store.Tag, error) {
	return store.Tag{}, nil
}
func (f *fakeStore) DeleteTag(context.Context, string, string) error { return nil }
func (f *fakeStore) SetTaskTags(context.Context, string, string, []string) ([]store.Tag, error) {
	return nil, nil
}

func (f *fakeStore) ListDocuments(ctx context.Context, workspaceID string) ([]store.Document, error) {
	if f.listDocumentsFn != nil {
		return f.listDocumentsFn(ctx, workspaceID)
	}
	return nil, nil
}
func (f *fakeStore) GetDocument(context.Context, string, string) (store.Document, error) {
	return store.Document{}, nil
}
func (f *fakeStore) InsertDocument(ctx context.Context, workspaceID, title, slug, content string, parentID *string, createdBy string) (store.Document, error) {
	if f.insertDocumentFn != nil {
		return f.insertDocumentFn(ctx, workspaceID, title, slug, content, parentID, createdBy)
	}
	return store.Document{ID: "doc-1", WorkspaceID: workspaceID, Title: title, Slug: slug, Path: slug}, nil
}
func (f *fakeStore) UpdateDocument(context.Context, string, string, store.DocumentPatch) (store.Document, error) {
	return store.Document{}, nil
}
func (f *fakeStore) MoveDocument(ctx context.Context, workspaceID, documentID string, parentID *string, position int) (store.Document, error) {
	if f.moveDocumentFn != nil {
		return f.moveDocumentFn(ctx, workspaceID, documentID, parentID, position)
	}
	return store.Document{ID: documentID, WorkspaceID: workspaceID}, nil
}
func (f *fakeStore) DeleteDocument(ctx context.Context, workspaceID, documentID string) (int, error) {
	if f.deleteDocumentFn != nil {
		return f.deleteDocumentFn(ctx, workspaceID, documentID)
	}
	return 1, nil
}

func (f *fakeStore) LinkTaskDocument(context.Context, string, string, string) error   { return nil }
func (f *fakeStore) UnlinkTaskDocument(context.Context, string, string, string) error { return nil }
func (f *fakeStore) ListLinkedTasks(context.Context, string, string) ([]store.LinkedTask, error) {
	return nil, nil
}
func (f *fakeStore) ListLinkedDocuments(context.Context, string, string) ([]store.LinkedDocument, error) {
	return nil, nil
}

type fakeSearch struct {
	indexedTasks     []search.TaskRecord
	indexedDocuments []search.DocumentRecord
	indexedComments  []search.CommentRecord
	deletedTasks     []string
	deletedDocuments []string
	deletedComments  []string
	searchFn         func(search.Query) search.Response
}

func (f *fakeSearch) Search(q search.Query) search.Response {
	if f.searchFn != nil {
		return f.searchFn(q)
	}
	return search.Response{Results: []search.Result{}, Query: q.Text}
}
func (f *fakeSearch) IndexTask(t search.TaskRecord) { f.indexedTasks = append(f.indexedTasks, t) }
func (f *fakeSearch) IndexDocument(d search.DocumentRecord) {
	f.indexedDocuments = append(f.indexedDocuments, d)
}
func (f *fakeSearch) IndexComment(c search.CommentRecord) {
	f.indexedComments = append(f.indexedComments, c)
}
func (f *fakeSearch) DeleteTask(id string)             { f.deletedTasks = append(f.deletedTasks, id) }
func (f *fakeSearch) DeleteDocument(id string)         { f.deletedDocuments = append(f.deletedDocuments, id) }
func (f *fakeSearch) DeleteComment(id string)          { f.deletedComments = append(f.deletedComments, id) }
func (f *fakeSearch) ReindexAllFromDB(context.Context) {}

type fakeRoles struct {
	entries       map[string]string
	invalidated   []string
	invalidatedWS []string
}

func newFakeRoles() *fakeRoles {
	return &fakeRoles{entries: make(map[string]string)}
}
func (f *fakeRoles) Get(_ context.Context, workspaceID, userID string) (string, error) {
	role, ok := f.entries[workspaceID+":"+userID]
	if !ok {
		return "", errors.New("miss")
	}
	return role, nil
}
func (f *fakeRoles) Set(_ context.Context, workspaceID, userID, role string) error {
	f.entries[workspaceID+":"+userID] = role
	return nil
}
func (f *fakeRoles) Invalidate(_ context.Context, workspaceID, userID string) error {
	key := workspaceID + ":" + userID
	delete(f.entries, key)
	f.invalidated = append(f.invalidated, key)
	return nil
}
func (f *fakeRoles) InvalidateWorkspace(_ context.Context, workspaceID string) error {
	f.invalidatedWS = append(f.invalidatedWS, workspaceID)
	return nil
}

// memberStore returns a fakeStore whose GetMemberRole answers from a
// fixed userID to role table.
func memberStore(roles map[string]string) *fakeStore {
	return &fakeStore{
		getMemberRoleFn: func(_ context.Context, _, userID string) (string, error) {
			role, ok := roles[userID]
			if !ok {
				return "", sql.ErrNoRows
			}
			return role, nil
		},
	}
}

func newTestService(fs *fakeStore) *Service {
	return New(config.Config{InviteTTL: 168 * time.Hour}, fs, nil, nil)
}

func assertKind(t *testing.T, err error, kind Kind) *DomainError {
	t.Helper()
	var de *DomainError
	if !errors.As(err, &de) {
		t.Fatalf("expected DomainError of kind %s, got %v", kind, err)
	}
	if de.Kind != kind {
		t.Fatalf("expected kind %s, got %s (%s)", kind, de.Kind, de.Code)
	}
	return de
}

func TestReaderCannotCreateTask(t *testing.T) {
	svc := newTestService(memberStore(map[string]string{"reader-1": "reader"}))

	_, err := svc.CreateTask(context.Background(), "reader-1", "ws-1", CreateTaskInput{
		StatusID: "st-1",
		Title:    "write release notes",
	})
	assertKind(t, err, KindForbidden)
}

func TestNonMemberSeesWorkspaceAsMissing(t *testing.T) {
	svc := newTestService(memberStore(map[string]string{}))

	_, err := svc.GetWorkspace(context.Background(), "stranger", "ws-1")
	de := assertKind(t, err, KindNotFound)
	if de.Message != "workspace not found" {
		t.Fatalf("unexpected message: %s", de.Message)
	}
}

func TestCreateTaskValidation(t *testing.T) {
	svc := newTestService(memberStore(map[string]string{"editor-1": "editor"}))

	cases := []struct {
		name string
		in   CreateTaskInput
	}{
		{"blank title", CreateTaskInput{StatusID: "st-1", Title: "   "}},
		{"missing status", CreateTaskInput{Title: "task"}},
		{"unknown priority", CreateTaskInput{StatusID: "st-1", Title: "task", Priority: "urgent"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateTask(context.Background(), "editor-1", "ws-1", tc.in)
			assertKind(t, err, KindValidation)
		})
	}

	t.Run("assignee must be a member", func(t *testing.T) {
		outsider := "outsider-1"
		_, err := svc.CreateTask(context.Background(), "editor-1", "ws-1", CreateTaskInput{
			StatusID:   "st-1",
			Title:      "task",
			AssignedTo: &outsider,
		})
		assertKind(t, err, KindValidation)
	})
}

func TestCreateTaskIndexesSearch(t *testing.T) {
	fs := memberStore(map[string]string{"editor-1": "editor"})
	idx := &fakeSearch{}
	svc := New(config.Config{}, fs, idx, nil)

	task, err := svc.CreateTask(context.Background(), "editor-1", "ws-1", CreateTaskInput{
		StatusID: "st-1",
		Title:    "index me",
		Priority: "high",
	})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if len(idx.indexedTasks) != 1 {
		t.Fatalf("expected 1 indexed task, got %d", len(idx.indexedTasks))
	}
	if idx.indexedTasks[0].ID != task.ID || idx.indexedTasks[0].Title != "index me" {
		t.Fatalf("unexpected indexed record: %+v", idx.indexedTasks[0])
	}
}

func TestDeleteTaskRemovesFromIndex(t *testing.T) {
	fs := memberStore(map[string]string{"editor-1": "editor"})
	idx := &fakeSearch{}
	svc := New(config.Config{}, fs, idx, nil)

	if err := svc.DeleteTask(context.Background(), "editor-1", "ws-1", "task-9"); err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}
	if len(idx.deletedTasks) != 1 || idx.deletedTasks[0] != "task-9" {
		t.Fatalf("unexpected deletions: %v", idx.deletedTasks)
	}
}

func TestMoveTaskMapsOrderingConflict(t *testing.T) {
	fs := memberStore(map[string]string{"editor-1": "editor"})
	fs.moveTaskFn = func(context.Context, string, string, string, int) (store.Task, error) {
		return store.Task{}, store.ErrOrderingConflict
	}
	svc := newTestService(fs)

	_, err := svc.MoveTask(context.Background(), "editor-1", "ws-1", "task-1", MoveTaskInput{StatusID: "st-2"})
	de := assertKind(t, err, KindConflict)
	if de.Code != "ORDERING_CONFLICT" {
		t.Fatalf("unexpected error code: %s", de.Code)
	}
}

func TestUpdateTaskChangesStatus(t *testing.T) {
	newStatus := "st-2"

	t.Run("moves to the new column", func(t *testing.T) {
		fs := memberStore(map[string]string{"editor-1": "editor"})
		fs.updateTaskFn = func(_ context.Context, workspaceID, taskID string, _ store.TaskPatch) (store.Task, error) {
			return store.Task{ID: taskID, WorkspaceID: workspaceID, StatusID: "st-1"}, nil
		}
		var movedTo string
		fs.moveTaskFn = func(_ context.Context, workspaceID, taskID, statusID string, _ int) (store.Task, error) {
			movedTo = statusID
			return store.Task{ID: taskID, WorkspaceID: workspaceID, StatusID: statusID}, nil
		}
		svc := newTestService(fs)

		task, err := svc.UpdateTask(context.Background(), "editor-1", "ws-1", "task-1", UpdateTaskInput{StatusID: &newStatus})
		if err != nil {
			t.Fatalf("UpdateTask: %v", err)
		}
		if movedTo != newStatus || task.StatusID != newStatus {
			t.Fatalf("task ended in status %q (moved to %q), want %q", task.StatusID, movedTo, newStatus)
		}
	})

	t.Run("same status does not move", func(t *testing.T) {
		fs := memberStore(map[string]string{"editor-1": "editor"})
		fs.updateTaskFn = func(_ context.Context, workspaceID, taskID string, _ store.TaskPatch) (store.Task, error) {
			return store.Task{ID: taskID, WorkspaceID: workspaceID, StatusID: newStatus}, nil
		}
		fs.moveTaskFn = func(context.Context, string, string, string, int) (store.Task, error) {
			t.Fatal("unchanged status should not trigger a move")
			return store.Task{}, nil
		}
		svc := newTestService(fs)

		if _, err := svc.UpdateTask(context.Background(), "editor-1", "ws-1", "task-1", UpdateTaskInput{StatusID: &newStatus}); err != nil {
			t.Fatalf("UpdateTask: %v", err)
		}
	})

	t.Run("unknown status", func(t *testing.T) {
		fs := memberStore(map[string]string{"editor-1": "editor"})
		fs.getStatusFn = func(context.Context, string, string) (store.Status, error) {
			return store.Status{}, sql.ErrNoRows
		}
		svc := newTestService(fs)

		_, err := svc.UpdateTask(context.Background(), "editor-1", "ws-1", "task-1", UpdateTaskInput{StatusID: &newStatus})
		assertKind(t, err, KindNotFound)
	})
}

func TestChangeMemberRoleGuards(t *testing.T) {
	members := map[string]string{
		"owner-1":  "owner",
		"admin-1":  "admin",
		"admin-2":  "admin",
		"editor-1": "editor",
	}

	cases := []struct {
		name    string
		actor   string
		target  string
		newRole string
		kind    Kind
	}{
		{"editor cannot change roles", "editor-1", "admin-1", "reader", KindForbidden},
		{"self change rejected", "admin-1", "admin-1", "editor", KindValidation},
		{"invalid role rejected", "owner-1", "editor-1", "superuser", KindValidation},
		{"admin cannot demote admin", "admin-1", "admin-2", "editor", KindForbidden},
		{"admin cannot promote to admin", "admin-1", "editor-1", "admin", KindForbidden},
		{"admin cannot touch owner", "admin-1", "owner-1", "editor", KindForbidden},
		{"nobody becomes owner", "owner-1", "editor-1", "owner", KindForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := newTestService(memberStore(members))
			err := svc.ChangeMemberRole(context.Background(), tc.actor, "ws-1", tc.target, tc.newRole)
			assertKind(t, err, tc.kind)
		})
	}

	t.Run("owner promotes editor to admin", func(t *testing.T) {
		fs := memberStore(members)
		var gotRole string
		fs.updateMemberRoleFn = func(_ context.Context, _, _, role string) error {
			gotRole = role
			return nil
		}
		svc := newTestService(fs)
		if err := svc.ChangeMemberRole(context.Background(), "owner-1", "ws-1", "editor-1", "admin"); err != nil {
			t.Fatalf("ChangeMemberRole: %v", err)
		}
		if gotRole != "admin" {
			t.Fatalf("expected admin, got %s", gotRole)
		}
	})
}

func TestChangeMemberRoleInvalidatesCache(t *testing.T) {
	fs := memberStore(map[string]string{"owner-1": "owner", "editor-1": "editor"})
	roles := newFakeRoles()
	svc := New(config.Config{}, fs, nil, roles)

	if err := svc.ChangeMemberRole(context.Background(), "owner-1", "ws-1", "editor-1", "admin"); err != nil {
		t.Fatalf("ChangeMemberRole: %v", err)
	}
	if len(roles.invalidated) != 1 || roles.invalidated[0] != "ws-1:editor-1" {
		t.Fatalf("unexpected invalidations: %v", roles.invalidated)
	}
}

func TestResolveRolePrefersCache(t *testing.T) {
	fs := &fakeStore{
		getMemberRoleFn: func(context.Context, string, string) (string, error) {
			t.Fatal("store should not be hit on a cache hit")
			return "", nil
		},
	}
	roles := newFakeRoles()
	roles.entries["ws-1:editor-1"] = "editor"
	svc := New(config.Config{}, fs, nil, roles)

	if _, err := svc.ListTasks(context.Background(), "editor-1", "ws-1", TaskListInput{}); err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
}

func TestRemoveMemberSelfLeave(t *testing.T) {
	t.Run("member may leave", func(t *testing.T) {
		svc := newTestService(memberStore(map[string]string{"reader-1": "reader"}))
		if err := svc.RemoveMember(context.Background(), "reader-1", "ws-1", "reader-1"); err != nil {
			t.Fatalf("RemoveMember: %v", err)
		}
	})
	t.Run("owner may not leave", func(t *testing.T) {
		svc := newTestService(memberStore(map[string]string{"owner-1": "owner"}))
		err := svc.RemoveMember(context.Background(), "owner-1", "ws-1", "owner-1")
		assertKind(t, err, KindInvalidTransition)
	})
	t.Run("editor may not remove others", func(t *testing.T) {
		svc := newTestService(memberStore(map[string]string{"editor-1": "editor", "reader-1": "reader"}))
		err := svc.RemoveMember(context.Background(), "editor-1", "ws-1", "reader-1")
		assertKind(t, err, KindForbidden)
	})
	t.Run("admin may not remove owner", func(t *testing.T) {
		svc := newTestService(memberStore(map[string]string{"admin-1": "admin", "owner-1": "owner"}))
		err := svc.RemoveMember(context.Background(), "admin-1", "ws-1", "owner-1")
		assertKind(t, err, KindForbidden)
	})
}

func TestInviteMemberValidation(t *testing.T) {
	members := map[string]string{"admin-1": "admin", "editor-1": "editor"}

	cases := []struct {
		name  string
		actor string
		in    InviteMemberInput
		kind  Kind
	}{
		{"editor cannot invite", "editor-1", InviteMemberInput{Email: "a@b.io", Role: "reader"}, KindForbidden},
		{"bad email", "admin-1", InviteMemberInput{Email: "nope", Role: "reader"}, KindValidation},
		{"owner role rejected", "admin-1", InviteMemberInput{Email: "a@b.io", Role: "owner"}, KindValidation},
		{"admin cannot invite admin", "admin-1", InviteMemberInput{Email: "a@b.io", Role: "admin"}, KindForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := newTestService(memberStore(members))
			_, err := svc.InviteMember(context.Background(), tc.actor, "ws-1", tc.in)
			assertKind(t, err, tc.kind)
		})
	}

	t.Run("existing member conflicts", func(t *testing.T) {
		fs := memberStore(members)
		fs.isMemberByEmailFn = func(context.Context, string, string) (bool, error) { return true, nil }
		svc := newTestService(fs)
		_, err := svc.InviteMember(context.Background(), "admin-1", "ws-1", InviteMemberInput{Email: "a@b.io", Role: "reader"})
		de := assertKind(t, err, KindConflict)
		if de.Code != "ALREADY_MEMBER" {
			t.Fatalf("unexpected code: %s", de.Code)
		}
	})

	t.Run("email is normalized", func(t *testing.T) {
		fs := memberStore(members)
		var gotEmail string
		fs.createInviteFn = func(_ context.Context, _, email, _, _, _ string, _ time.Duration) (store.Invite, error) {
			gotEmail = email
			return store.Invite{Email: email}, nil
		}
		svc := newTestService(fs)
		if _, err := svc.InviteMember(context.Background(), "admin-1", "ws-1", InviteMemberInput{Email: "  New.User@B.IO ", Role: "reader"}); err != nil {
			t.Fatalf("InviteMember: %v", err)
		}
		if gotEmail != "new.user@b.io" {
			t.Fatalf("expected normalized email, got %q", gotEmail)
		}
	})
}

func TestAcceptInviteMapsStoreErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		kind Kind
		code string
	}{
		{"expired", store.ErrInviteExpired, KindInvalidTransition, "INVALID_TRANSITION"},
		{"already accepted", store.ErrInviteAlreadyAccepted, KindInvalidTransition, "INVALID_TRANSITION"},
		{"already member", store.ErrAlreadyMember, KindConflict, "ALREADY_MEMBER"},
		{"unknown token", sql.ErrNoRows, KindNotFound, "NOT_FOUND"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fs := &fakeStore{
				acceptInviteFn: func(context.Context, string, string) (store.Member, error) {
					return store.Member{}, tc.err
				},
			}
			svc := newTestService(fs)
			_, err := svc.AcceptInvite(context.Background(), "user-1", "token")
			de := assertKind(t, err, tc.kind)
			if de.Code != tc.code {
				t.Fatalf("unexpected code: %s", de.Code)
			}
		})
	}
}

func TestAcceptInviteInvalidatesCachedRole(t *testing.T) {
	roles := newFakeRoles()
	svc := New(config.Config{}, &fakeStore{}, nil, roles)

	member, err := svc.AcceptInvite(context.Background(), "user-1", "token")
	if err != nil {
		t.Fatalf("AcceptInvite: %v", err)
	}
	if len(roles.invalidated) != 1 || roles.invalidated[0] != member.WorkspaceID+":user-1" {
		t.Fatalf("unexpected invalidations: %v", roles.invalidated)
	}
}

func TestCreateWorkspaceRetriesTakenSlug(t *testing.T) {
	var slugs []string
	fs := &fakeStore{
		createWorkspaceFn: func(_ context.Context, ownerID, name, slug, _ string) (store.Workspace, error) {
			slugs = append(slugs, slug)
			if len(slugs) == 1 {
				return store.Workspace{}, store.ErrSlugTaken
			}
			return store.Workspace{ID: "ws-2", OwnerID: ownerID, Name: name, Slug: slug}, nil
		},
	}
	svc := newTestService(fs)

	ws, err := svc.CreateWorkspace(context.Background(), "user-1", CreateWorkspaceInput{Name: "My Project"})
	if err != nil {
		t.Fatalf("CreateWorkspace: %v", err)
	}
	if len(slugs) != 2 || slugs[0] != "my_project" {
		t.Fatalf("unexpected slug attempts: %v", slugs)
	}
	if slugs[1] == slugs[0] || len(slugs[1]) <= len(slugs[0]) {
		t.Fatalf("second attempt should carry a suffix, got %q", slugs[1])
	}
	if ws.ID != "ws-2" {
		t.Fatalf("unexpected workspace: %+v", ws)
	}
}

func TestCreateWorkspaceValidation(t *testing.T) {
	svc := newTestService(&fakeStore{})
	for _, name := range []string{"", "   ", "!!!"} {
		if _, err := svc.CreateWorkspace(context.Background(), "user-1", CreateWorkspaceInput{Name: name}); !IsKind(err, KindValidation) {
			t.Fatalf("name %q: expected validation error, got %v", name, err)
		}
	}
}

func TestDeleteStatusRequiresAdmin(t *testing.T) {
	svc := newTestService(memberStore(map[string]string{"editor-1": "editor", "admin-1": "admin"}))

	err := svc.DeleteStatus(context.Background(), "editor-1", "ws-1", "st-1")
	assertKind(t, err, KindForbidden)

	if err := svc.DeleteStatus(context.Background(), "admin-1", "ws-1", "st-1"); err != nil {
		t.Fatalf("DeleteStatus as admin: %v", err)
	}
}

func TestDeleteStatusMapsGuards(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code string
	}{
		{"status with tasks", store.ErrStatusNotEmpty, "STATUS_NOT_EMPTY"},
		{"last status", store.ErrLastStatus, "LAST_STATUS"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fs := memberStore(map[string]string{"admin-1": "admin"})
			fs.deleteStatusFn = func(context.Context, string, string) error { return tc.err }
			svc := newTestService(fs)
			err := svc.DeleteStatus(context.Background(), "admin-1", "ws-1", "st-1")
			de := assertKind(t, err, KindConflict)
			if de.Code != tc.code {
				t.Fatalf("unexpected code: %s", de.Code)
			}
		})
	}
}

func TestReorderStatusesRejectsDuplicates(t *testing.T) {
	svc := newTestService(memberStore(map[string]string{"editor-1": "editor"}))
	err := svc.ReorderStatuses(context.Background(), "editor-1", "ws-1", []string{"a", "b", "a"})
	assertKind(t, err, KindValidation)
}

func TestCommentEditPermissions(t *testing.T) {
	fs := memberStore(map[string]string{"editor-1": "editor", "editor-2": "editor", "admin-1": "admin"})
	fs.getCommentFn = func(_ context.Context, _, commentID string) (store.Comment, error) {
		return store.Comment{ID: commentID, TaskID: "task-1", AuthorID: "editor-1", Content: "old"}, nil
	}
	svc := newTestService(fs)

	t.Run("author edits", func(t *testing.T) {
		if _, err := svc.UpdateComment(context.Background(), "editor-1", "ws-1", "c-1", "new text"); err != nil {
			t.Fatalf("UpdateComment: %v", err)
		}
	})
	t.Run("non-author cannot edit", func(t *testing.T) {
		_, err := svc.UpdateComment(context.Background(), "editor-2", "ws-1", "c-1", "new text")
		assertKind(t, err, KindForbidden)
	})
	t.Run("non-author cannot delete", func(t *testing.T) {
		err := svc.DeleteComment(context.Background(), "editor-2", "ws-1", "c-1")
		assertKind(t, err, KindForbidden)
	})
	t.Run("admin may delete", func(t *testing.T) {
		if err := svc.DeleteComment(context.Background(), "admin-1", "ws-1", "c-1"); err != nil {
			t.Fatalf("DeleteComment as admin: %v", err)
		}
	})
}

func TestMoveDocumentMapsStoreErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		kind Kind
	}{
		{"cycle", store.ErrCyclicMove, KindInvalidTransition},
		{"path collision", store.ErrPathCollision, KindConflict},
		{"missing", sql.ErrNoRows, KindNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fs := memberStore(map[string]string{"editor-1": "editor"})
			fs.moveDocumentFn = func(context.Context, string, string, *string, int) (store.Document, error) {
				return store.Document{}, tc.err
			}
			svc := newTestService(fs)
			_, err := svc.MoveDocument(context.Background(), "editor-1", "ws-1", "doc-1", MoveDocumentInput{})
			assertKind(t, err, tc.kind)
		})
	}
}

func TestListDocumentTreeNestsByParentPath(t *testing.T) {
	fs := memberStore(map[string]string{"reader-1": "reader"})
	fs.listDocumentsFn = func(context.Context, string) ([]store.Document, error) {
		return []store.Document{
			{ID: "d1", Path: "guides", ParentPath: "", Position: 0},
			{ID: "d2", Path: "guides.setup", ParentPath: "guides", Position: 0},
			{ID: "d3", Path: "guides.setup.linux", ParentPath: "guides.setup", Position: 0},
			{ID: "d4", Path: "guides.faq", ParentPath: "guides", Position: 1000},
			{ID: "d5", Path: "notes", ParentPath: "", Position: 0},
		}, nil
	}
	svc := newTestService(fs)

	tree, err := svc.ListDocumentTree(context.Background(), "reader-1", "ws-1")
	if err != nil {
		t.Fatalf("ListDocumentTree: %v", err)
	}
	if len(tree) != 2 {
		t.Fatalf("expected 2 roots, got %d", len(tree))
	}
	guides := tree[0]
	if guides.ID != "d1" || len(guides.Children) != 2 {
		t.Fatalf("unexpected root: %+v", guides)
	}
	if guides.Children[0].ID != "d2" || guides.Children[1].ID != "d4" {
		t.Fatalf("unexpected child order: %+v", guides.Children)
	}
	setup := guides.Children[0]
	if len(setup.Children) != 1 || setup.Children[0].ID != "d3" {
		t.Fatalf("expected nested grandchild, got %+v", setup.Children)
	}
	if setup.Children[0].Depth != 2 {
		t.Fatalf("expected depth 2, got %d", setup.Children[0].Depth)
	}
}

func TestSearchValidation(t *testing.T) {
	svc := New(config.Config{}, memberStore(map[string]string{"reader-1": "reader"}), &fakeSearch{}, nil)

	_, err := svc.Search(context.Background(), "reader-1", "ws-1", SearchInput{Text: "  "})
	assertKind(t, err, KindValidation)

	_, err = svc.Search(context.Background(), "reader-1", "ws-1", SearchInput{Text: "x", Kind: "tag"})
	assertKind(t, err, KindValidation)
}

func TestSearchClampsLimit(t *testing.T) {
	var got search.Query
	idx := &fakeSearch{searchFn: func(q search.Query) search.Response {
		got = q
		return search.Response{Query: q.Text}
	}}
	svc := New(config.Config{}, memberStore(map[string]string{"reader-1": "reader"}), idx, nil)

	if _, err := svc.Search(context.Background(), "reader-1", "ws-1", SearchInput{Text: "deploy", Limit: 5000, Offset: -3}); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if got.Limit != maxSearchLimit || got.Offset != 0 {
		t.Fatalf("unexpected clamped query: %+v", got)
	}
	if got.WorkspaceID != "ws-1" {
		t.Fatalf("query must stay workspace scoped, got %q", got.WorkspaceID)
	}

	if _, err := svc.Search(context.Background(), "reader-1", "ws-1", SearchInput{Text: "deploy"}); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if got.Limit != defaultSearchLimit {
		t.Fatalf("expected default limit, got %d", got.Limit)
	}
}

func TestBootstrapSeedsOnlyEmptyDatabase(t *testing.T) {
	t.Run("empty database gets seeded", func(t *testing.T) {
		var createdFor string
		fs := &fakeStore{
			createWorkspaceFn: func(_ context.Context, ownerID, name, slug, _ string) (store.Workspace, error) {
				createdFor = ownerID
				return store.Workspace{ID: "ws-1", Name: name, Slug: slug}, nil
			},
		}
		svc := New(config.Config{BootstrapEmail: "owner@example.com"}, fs, nil, nil)
		if err := svc.Bootstrap(context.Background()); err != nil {
			t.Fatalf("Bootstrap: %v", err)
		}
		if createdFor != "user-1" {
			t.Fatalf("expected workspace for seeded user, got %q", createdFor)
		}
	})

	t.Run("populated database untouched", func(t *testing.T) {
		fs := &fakeStore{
			countUsersFn: func(context.Context) (int, error) { return 3, nil },
			createWorkspaceFn: func(context.Context, string, string, string, string) (store.Workspace, error) {
				t.Fatal("must not create a workspace")
				return store.Workspace{}, nil
			},
		}
		svc := New(config.Config{BootstrapEmail: "owner@example.com"}, fs, nil, nil)
		if err := svc.Bootstrap(context.Background()); err != nil {
			t.Fatalf("Bootstrap: %v", err)
		}
	})

	t.Run("no bootstrap email is a noop", func(t *testing.T) {
		fs := &fakeStore{
			countUsersFn: func(context.Context) (int, error) {
				t.Fatal("must not query users")
				return 0, nil
			},
		}
		svc := New(config.Config{}, fs, nil, nil)
		if err := svc.Bootstrap(context.Background()); err != nil {
			t.Fatalf("Bootstrap: %v", err)
		}
	})
}

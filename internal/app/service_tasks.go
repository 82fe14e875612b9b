package app

import (
	"context"
	"math"
	"time"

	"github.com/ruslan-korneev/todo-server/internal/hierarchy"
	"github.com/ruslan-korneev/todo-server/internal/rbac"
	"github.com/ruslan-korneev/todo-server/internal/search"
	"github.com/ruslan-korneev/todo-server/internal/store"
)

type CreateStatusInput struct {
	Name   string `json:"name"`
	Color  string `json:"color"`
	IsDone bool   `json:"isDone"`
}

type UpdateStatusInput struct {
	Name   *string `json:"name"`
	Color  *string `json:"color"`
	IsDone *bool   `json:"isDone"`
}

type CreateTaskInput struct {
	StatusID            string     `json:"statusId"`
	Title               string     `json:"title"`
	Description         string     `json:"description"`
	Priority            string     `json:"priority"`
	AssignedTo          *string    `json:"assignedTo"`
	DueDate             *time.Time `json:"dueDate"`
	TimeEstimateMinutes *int       `json:"timeEstimateMinutes"`
	ExternalRefs        string     `json:"externalRefs"`
}

type UpdateTaskInput struct {
	Title               *string    `json:"title"`
	Description         *string    `json:"description"`
	StatusID            *string    `json:"statusId"`
	Priority            *string    `json:"priority"`
	AssignedTo          *string    `json:"assignedTo"`
	ClearAssignee       bool       `json:"clearAssignee"`
	DueDate             *time.Time `json:"dueDate"`
	ClearDueDate        bool       `json:"clearDueDate"`
	TimeEstimateMinutes *int       `json:"timeEstimateMinutes"`
	ExternalRefs        *string    `json:"externalRefs"`
}

type MoveTaskInput struct {
	StatusID string `json:"statusId"`
	Position int    `json:"position"`
}

type TaskListInput struct {
	StatusID   string     `json:"statusId"`
	AssignedTo string     `json:"assignedTo"`
	Priority   string     `json:"priority"`
	TagID      string     `json:"tagId"`
	DueBefore  *time.Time `json:"dueBefore"`
	Query      string     `json:"q"`
	Limit      int        `json:"limit"`
	Offset     int        `json:"offset"`
}

type TaskList struct {
	Tasks []store.Task `json:"tasks"`
	Total int          `json:"total"`
}

func (s *Service) ListStatuses(ctx context.Context, actorID, workspaceID string) ([]store.Status, error) {
	if _, err := s.authorize(ctx, workspaceID, actorID, rbac.ActionViewTask); err != nil {
		return nil, err
	}
	return s.store.ListStatuses(ctx, workspaceID)
}

func (s *Service) CreateStatus(ctx context.Context, actorID, workspaceID string, in CreateStatusInput) (store.Status, error) {
	if _, err := s.authorize(ctx, workspaceID, actorID, rbac.ActionManageStatuses); err != nil {
		return store.Status{}, err
	}
	name := trimmed(in.Name)
	if name == "" {
		return store.Status{}, validation("name is required")
	}
	slug := hierarchy.Slugify(name)
	if slug == "" {
		return store.Status{}, validation("name must contain letters or digits")
	}

	status, err := s.store.InsertStatus(ctx, workspaceID, name, slug, in.Color, in.IsDone)
	if err != nil {
		return store.Status{}, mapStoreErr(err, "status")
	}
	return status, nil
}

func (s *Service) UpdateStatus(ctx context.Context, actorID, workspaceID, statusID string, in UpdateStatusInput) (store.Status, error) {
	if _, err := s.authorize(ctx, workspaceID, actorID, rbac.ActionManageStatuses); err != nil {
		return store.Status{}, err
	}
	if in.Name != nil && trimmed(*in.Name) == "" {
		return store.Status{}, validation("name cannot be blank")
	}
	status, err := s.store.UpdateStatus(ctx, workspaceID, statusID, in.Name, in.Color, in.IsDone)
	if err != nil {
		return store.Status{}, mapStoreErr(err, "status")
	}
	return status, nil
}

func (s *Service) DeleteStatus(ctx context.Context, actorID, workspaceID, statusID string) error {
	if _, err := s.authorize(ctx, workspaceID, actorID, rbac.ActionDeleteStatus); err != nil {
		return err
	}
	return mapStoreErr(s.store.DeleteStatus(ctx, workspaceID, statusID), "status")
}

// ReorderStatuses rewrites the board's column order. statusIDs must name
// every status exactly once.
func (s *Service) ReorderStatuses(ctx context.Context, actorID, workspaceID string, statusIDs []string) error {
	if _, err := s.authorize(ctx, workspaceID, actorID, rbac.ActionManageStatuses); err != nil {
		return err
	}
	if len(statusIDs) == 0 {
		return validation("statusIds is required")
	}
	seen := make(map[string]bool, len(statusIDs))
	for _, id := range statusIDs {
		if seen[id] {
			return validation("statusIds contains duplicates")
		}
		seen[id] = true
	}
	return mapStoreErr(s.store.ReorderStatuses(ctx, workspaceID, statusIDs), "status")
}

func (s *Service) ListTasks(ctx context.Context, actorID, workspaceID string, in TaskListInput) (TaskList, error) {
	if _, err := s.authorize(ctx, workspaceID, actorID, rbac.ActionViewTask); err != nil {
		return TaskList{}, err
	}
	if in.Priority != "" {
		if _, ok := allowedPriorities[in.Priority]; !ok {
			return TaskList{}, validation("unknown priority")
		}
	}
	tasks, total, err := s.store.ListTasks(ctx, workspaceID, store.TaskListFilter{
		StatusID:   in.StatusID,
		AssignedTo: in.AssignedTo,
		Priority:   in.Priority,
		TagID:      in.TagID,
		DueBefore:  in.DueBefore,
		Query:      trimmed(in.Query),
		Limit:      in.Limit,
		Offset:     in.Offset,
	})
	if err != nil {
		return TaskList{}, err
	}
	return TaskList{Tasks: tasks, Total: total}, nil
}

func (s *Service) GetTask(ctx context.Context, actorID, workspaceID, taskID string) (store.Task, error) {
	if _, err := s.authorize(ctx, workspaceID, actorID, rbac.ActionViewTask); err != nil {
		return store.Task{}, err
	}
	task, err := s.store.GetTask(ctx, workspaceID, taskID)
	if err != nil {
		return store.Task{}, mapStoreErr(err, "task")
	}
	return task, nil
}

func (s *Service) CreateTask(ctx context.Context, actorID, workspaceID string, in CreateTaskInput) (store.Task, error) {
	if _, err := s.authorize(ctx, workspaceID, actorID, rbac.ActionCreateTask); err != nil {
		return store.Task{}, err
	}
	title := trimmed(in.Title)
	if title == "" {
		return store.Task{}, validation("title is required")
	}
	if in.StatusID == "" {
		return store.Task{}, validation("statusId is required")
	}
	if in.Priority != "" {
		if _, ok := allowedPriorities[in.Priority]; !ok {
			return store.Task{}, validation("priority must be one of lowest, low, medium, high, highest")
		}
	}

	// The status lookup also pins the status to this workspace.
	if _, err := s.store.GetStatus(ctx, workspaceID, in.StatusID); err != nil {
		return store.Task{}, mapStoreErr(err, "status")
	}
	if in.AssignedTo != nil {
		if err := s.requireMember(ctx, workspaceID, *in.AssignedTo); err != nil {
			return store.Task{}, err
		}
	}

	task, err := s.store.InsertTask(ctx, store.Task{
		WorkspaceID:         workspaceID,
		StatusID:            in.StatusID,
		Title:               title,
		Description:         in.Description,
		Priority:            in.Priority,
		CreatedBy:           actorID,
		AssignedTo:          in.AssignedTo,
		DueDate:             in.DueDate,
		TimeEstimateMinutes: in.TimeEstimateMinutes,
		ExternalRefs:        in.ExternalRefs,
	})
	if err != nil {
		return store.Task{}, mapStoreErr(err, "task")
	}
	s.indexTask(task)
	return task, nil
}

func (s *Service) UpdateTask(ctx context.Context, actorID, workspaceID, taskID string, in UpdateTaskInput) (store.Task, error) {
	if _, err := s.authorize(ctx, workspaceID, actorID, rbac.ActionEditTask); err != nil {
		return store.Task{}, err
	}
	if in.Title != nil && trimmed(*in.Title) == "" {
		return store.Task{}, validation("title cannot be blank")
	}
	if in.Priority != nil {
		if _, ok := allowedPriorities[*in.Priority]; !ok {
			return store.Task{}, validation("priority must be one of lowest, low, medium, high, highest")
		}
	}
	if in.AssignedTo != nil && !in.ClearAssignee {
		if err := s.requireMember(ctx, workspaceID, *in.AssignedTo); err != nil {
			return store.Task{}, err
		}
	}
	if in.StatusID != nil {
		if _, err := s.store.GetStatus(ctx, workspaceID, *in.StatusID); err != nil {
			return store.Task{}, mapStoreErr(err, "status")
		}
	}

	task, err := s.store.UpdateTask(ctx, workspaceID, taskID, store.TaskPatch{
		Title:               in.Title,
		Description:         in.Description,
		Priority:            in.Priority,
		AssignedTo:          in.AssignedTo,
		ClearAssignee:       in.ClearAssignee,
		DueDate:             in.DueDate,
		ClearDueDate:        in.ClearDueDate,
		TimeEstimateMinutes: in.TimeEstimateMinutes,
		ExternalRefs:        in.ExternalRefs,
	})
	if err != nil {
		return store.Task{}, mapStoreErr(err, "task")
	}
	// A status change appends the task to the new column and stamps or
	// clears completed_at the same way an explicit move does.
	if in.StatusID != nil && task.StatusID != *in.StatusID {
		task, err = s.store.MoveTask(ctx, workspaceID, taskID, *in.StatusID, math.MaxInt)
		if err != nil {
			return store.Task{}, mapStoreErr(err, "task")
		}
	}
	s.indexTask(task)
	return task, nil
}

// MoveTask places a task at a position inside a status column, stamping
// or clearing completion when it crosses a terminal boundary.
func (s *Service) MoveTask(ctx context.Context, actorID, workspaceID, taskID string, in MoveTaskInput) (store.Task, error) {
	if _, err := s.authorize(ctx, workspaceID, actorID, rbac.ActionMoveTask); err != nil {
		return store.Task{}, err
	}
	if in.StatusID == "" {
		return store.Task{}, validation("statusId is required")
	}
	if in.Position < 0 {
		return store.Task{}, validation("position cannot be negative")
	}

	task, err := s.store.MoveTask(ctx, workspaceID, taskID, in.StatusID, in.Position)
	if err != nil {
		return store.Task{}, mapStoreErr(err, "task")
	}
	s.indexTask(task)
	return task, nil
}

func (s *Service) DeleteTask(ctx context.Context, actorID, workspaceID, taskID string) error {
	if _, err := s.authorize(ctx, workspaceID, actorID, rbac.ActionDeleteTask); err != nil {
		return err
	}
	if err := s.store.DeleteTask(ctx, workspaceID, taskID); err != nil {
		return mapStoreErr(err, "task")
	}
	if s.search != nil {
		s.search.DeleteTask(taskID)
	}
	return nil
}

func (s *Service) ListComments(ctx context.Context, actorID, workspaceID, taskID string) ([]store.Comment, error) {
	if _, err := s.authorize(ctx, workspaceID, actorID, rbac.ActionViewTask); err != nil {
		return nil, err
	}
	return s.store.ListComments(ctx, workspaceID, taskID)
}

func (s *Service) CreateComment(ctx context.Context, actorID, workspaceID, taskID, content string) (store.Comment, error) {
	if _, err := s.authorize(ctx, workspaceID, actorID, rbac.ActionCommentTask); err != nil {
		return store.Comment{}, err
	}
	content = trimmed(content)
	if content == "" {
		return store.Comment{}, validation("content is required")
	}
	comment, err := s.store.InsertComment(ctx, workspaceID, taskID, actorID, content)
	if err != nil {
		return store.Comment{}, mapStoreErr(err, "task")
	}
	if s.search != nil {
		s.search.IndexComment(search.CommentRecord{
			ID:          comment.ID,
			WorkspaceID: workspaceID,
			TaskID:      comment.TaskID,
			Content:     comment.Content,
		})
	}
	return comment, nil
}

// UpdateComment edits a comment. The author may edit their own; admins
// and the owner may edit anyone's.
func (s *Service) UpdateComment(ctx context.Context, actorID, workspaceID, commentID, content string) (store.Comment, error) {
	role, err := s.authorize(ctx, workspaceID, actorID, rbac.ActionCommentTask)
	if err != nil {
		return store.Comment{}, err
	}
	content = trimmed(content)
	if content == "" {
		return store.Comment{}, validation("content is required")
	}

	existing, err := s.store.GetComment(ctx, workspaceID, commentID)
	if err != nil {
		return store.Comment{}, mapStoreErr(err, "comment")
	}
	if existing.AuthorID != actorID && !rbac.Can(role, rbac.ActionModerateComments) {
		return store.Comment{}, forbidden("only the author or an admin can edit a comment")
	}

	comment, err := s.store.UpdateComment(ctx, workspaceID, commentID, content)
	if err != nil {
		return store.Comment{}, mapStoreErr(err, "comment")
	}
	if s.search != nil {
		s.search.IndexComment(search.CommentRecord{
			ID:          comment.ID,
			WorkspaceID: workspaceID,
			TaskID:      comment.TaskID,
			Content:     comment.Content,
		})
	}
	return comment, nil
}

func (s *Service) DeleteComment(ctx context.Context, actorID, workspaceID, commentID string) error {
	role, err := s.authorize(ctx, workspaceID, actorID, rbac.ActionCommentTask)
	if err != nil {
		return err
	}

	existing, err := s.store.GetComment(ctx, workspaceID, commentID)
	if err != nil {
		return mapStoreErr(err, "comment")
	}
	if existing.AuthorID != actorID && !rbac.Can(role, rbac.ActionModerateComments) {
		return forbidden("only the author or an admin can delete a comment")
	}

	if err := s.store.DeleteComment(ctx, workspaceID, commentID); err != nil {
		return mapStoreErr(err, "comment")
	}
	if s.search != nil {
		s.search.DeleteComment(commentID)
	}
	return nil
}

func (s *Service) ListTags(ctx context.Context, actorID, workspaceID string) ([]store.Tag, error) {
	if _, err := s.authorize(ctx, workspaceID, actorID, rbac.ActionViewTask); err != nil {
		return nil, err
	}
	return s.store.ListTags(ctx, workspaceID)
}

func (s *Service) CreateTag(ctx context.Context, actorID, workspaceID, name, color string) (store.Tag, error) {
	if _, err := s.authorize(ctx, workspaceID, actorID, rbac.ActionManageTags); err != nil {
		return store.Tag{}, err
	}
	name = trimmed(name)
	if name == "" {
		return store.Tag{}, validation("name is required")
	}
	tag, err := s.store.InsertTag(ctx, workspaceID, name, color)
	if err != nil {
		return store.Tag{}, mapStoreErr(err, "tag")
	}
	return tag, nil
}

func (s *Service) UpdateTag(ctx context.Context, actorID, workspaceID, tagID string, name, color *string) (store.Tag, error) {
	if _, err := s.authorize(ctx, workspaceID, actorID, rbac.ActionManageTags); err != nil {
		return store.Tag{}, err
	}
	if name != nil && trimmed(*name) == "" {
		return store.Tag{}, validation("name cannot be blank")
	}
	tag, err := s.store.UpdateTag(ctx, workspaceID, tagID, name, color)
	if err != nil {
		return store.Tag{}, mapStoreErr(err, "tag")
	}
	return tag, nil
}

func (s *Service) DeleteTag(ctx context.Context, actorID, workspaceID, tagID string) error {
	if _, err := s.authorize(ctx, workspaceID, actorID, rbac.ActionManageTags); err != nil {
		return err
	}
	return mapStoreErr(s.store.DeleteTag(ctx, workspaceID, tagID), "tag")
}

func (s *Service) GetTaskTags(ctx context.Context, actorID, workspaceID, taskID string) ([]store.Tag, error) {
	if _, err := s.authorize(ctx, workspaceID, actorID, rbac.ActionViewTask); err != nil {
		return nil, err
	}
	task, err := s.store.GetTask(ctx, workspaceID, taskID)
	if err != nil {
		return nil, mapStoreErr(err, "task")
	}
	return task.Tags, nil
}

// SetTaskTags replaces a task's tag set.
func (s *Service) SetTaskTags(ctx context.Context, actorID, workspaceID, taskID string, tagIDs []string) ([]store.Tag, error) {
	if _, err := s.authorize(ctx, workspaceID, actorID, rbac.ActionManageTags); err != nil {
		return nil, err
	}
	tags, err := s.store.SetTaskTags(ctx, workspaceID, taskID, tagIDs)
	if err != nil {
		return nil, mapStoreErr(err, "task")
	}
	return tags, nil
}

// indexTask mirrors the task into the search index, fire-and-forget.
func (s *Service) indexTask(task store.Task) {
	if s.search == nil {
		return
	}
	s.search.IndexTask(search.TaskRecord{
		ID:          task.ID,
		WorkspaceID: task.WorkspaceID,
		Title:       task.Title,
		Description: task.Description,
		StatusID:    task.StatusID,
		Priority:    task.Priority,
	})
}

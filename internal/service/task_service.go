package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/yakoovad/scrumboard/internal/db"
	"github.com/yakoovad/scrumboard/internal/metrics"
	"github.com/yakoovad/scrumboard/internal/model"
	"github.com/yakoovad/scrumboard/internal/repository"
	"github.com/yakoovad/scrumboard/pkg/logger"
	"go.uber.org/zap"
)

// TaskService places tasks on the project board. Every task sits in exactly
// one location: the project backlog or one stage of one iteration.
type TaskService struct {
	tx db.Transactor

	projects   repository.ProjectRepository
	iterations repository.IterationRepository
	tasks      repository.TaskRepository

	metrics *metrics.Metrics
	guarded bool
}

func NewTaskService(tx db.Transactor) *TaskService {
	return &TaskService{
		tx:      tx,
		guarded: true,
	}
}

// CreateTask adds a task to the TODO stage of iterationID, or to the project
// backlog when iterationID is empty.
func (s *TaskService) CreateTask(ctx context.Context, projectID, iterationID string, content model.TaskContent) (*model.Task, *Error) {
	l := logger.FromContext(ctx)
	var res *model.Task

	err := s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		loc := model.Backlog
		if iterationID != "" {
			if err := s.ownIteration(txCtx, projectID, iterationID); err != nil {
				return err
			}
			loc = model.InIteration(iterationID, model.StageTodo)
		} else if err := s.checkProject(txCtx, projectID); err != nil {
			return err
		}

		t := &repository.Task{
			ID:          uuid.NewString(),
			ProjectID:   projectID,
			Title:       content.Title,
			Description: content.Description,
			StoryPoints: content.StoryPoints,
			IterationID: loc.IterationID,
			Stage:       loc.Stage,
		}
		err := s.tasks.Create(txCtx, t)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return NewError(ErrorCodeNotFound, "No project found")
		case err != nil:
			l.Error("failed to create task", zap.String("project_id", projectID), zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to create task")
		}

		res = toTask(t)
		return nil
	})
	if err != nil {
		return nil, asError(err, "failed to create task")
	}

	l.Info("task created", zap.String("task_id", res.ID), zap.Stringer("location", res.Location))
	return res, nil
}

// UpdateContent replaces title, description and story points. The location
// is left untouched.
func (s *TaskService) UpdateContent(ctx context.Context, projectID, taskID string, content model.TaskContent) (*model.Task, *Error) {
	var res *model.Task

	err := s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		if _, err := s.ownTask(txCtx, projectID, taskID); err != nil {
			return err
		}

		t, err := s.tasks.Patch(txCtx, &repository.TaskPatch{
			ID:          taskID,
			Title:       &content.Title,
			Description: &content.Description,
			StoryPoints: &content.StoryPoints,
		})
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return NewError(ErrorCodeNotFound, "No task found")
		case err != nil:
			logger.FromContext(ctx).Error("failed to update task", zap.String("task_id", taskID), zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to update task")
		}

		res = toTask(t)
		return nil
	})

	return res, asError(err, "failed to update task")
}

// Move relocates a task from spec.From to the end of spec.To. The caller's
// view of the source is verified: if the task is not at spec.From nothing
// changes and INVALID_REQUEST is returned. With guarded writes the project
// row is locked and the relocation only commits while the task still sits
// at spec.From.
func (s *TaskService) Move(ctx context.Context, projectID, taskID string, spec model.MoveSpec) (string, *Error) {
	l := logger.FromContext(ctx).With(
		zap.String("project_id", projectID),
		zap.String("task_id", taskID),
		zap.Stringer("from", spec.From),
		zap.Stringer("to", spec.To))

	if !validLocation(spec.From) || !validLocation(spec.To) {
		s.metrics.AddTaskMove(metrics.MoveInvalid)
		return "", NewError(ErrorCodeInvalidRequest, "Incorrect request payload")
	}

	err := s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		var err error
		if s.guarded {
			_, err = s.projects.GetForUpdate(txCtx, projectID)
		} else {
			_, err = s.projects.Get(txCtx, projectID)
		}
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return NewError(ErrorCodeNotFound, "No project found")
		case err != nil:
			l.Error("failed to get project", zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to get project")
		}

		t, err := s.ownTask(txCtx, projectID, taskID)
		if err != nil {
			return err
		}

		if !spec.From.IsBacklog() {
			if err = s.ownIteration(txCtx, projectID, spec.From.IterationID); err != nil {
				return err
			}
		}

		if t.Location() != spec.From {
			return NewError(ErrorCodeInvalidRequest, "Task is not in the declared source location")
		}

		if !spec.To.IsBacklog() {
			if err = s.ownIteration(txCtx, projectID, spec.To.IterationID); err != nil {
				return err
			}
		}

		var from *model.Location
		if s.guarded {
			from = &spec.From
		}

		err = s.tasks.Relocate(txCtx, taskID, from, spec.To)
		switch {
		case errors.Is(err, repository.ErrLocationMismatch):
			return NewError(ErrorCodeInvalidRequest, "Task is not in the declared source location")
		case errors.Is(err, repository.ErrNotFound):
			return NewError(ErrorCodeNotFound, "No task found")
		case err != nil:
			l.Error("failed to relocate task", zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to move task")
		}
		return nil
	})
	if err != nil {
		res := asError(err, "failed to move task")
		s.metrics.AddTaskMove(moveResult(res))
		l.Warn("task move rejected", zap.String("code", string(res.Code)), zap.String("reason", res.Message))
		return "", res
	}

	s.metrics.AddTaskMove(metrics.MoveOK)
	l.Info("task moved")
	return taskID, nil
}

func (s *TaskService) DeleteTask(ctx context.Context, projectID, taskID string) (string, *Error) {
	l := logger.FromContext(ctx)

	err := s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		if _, err := s.ownTask(txCtx, projectID, taskID); err != nil {
			return err
		}

		err := s.tasks.Delete(txCtx, taskID)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return NewError(ErrorCodeNotFound, "No task found")
		case err != nil:
			l.Error("failed to delete task", zap.String("task_id", taskID), zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to delete task")
		}
		return nil
	})
	if err != nil {
		return "", asError(err, "failed to delete task")
	}

	l.Info("task deleted", zap.String("task_id", taskID))
	return taskID, nil
}

func (s *TaskService) checkProject(ctx context.Context, projectID string) error {
	_, err := s.projects.Get(ctx, projectID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return NewError(ErrorCodeNotFound, "No project found")
	case err != nil:
		return NewError(ErrorCodeUnspecified, "failed to get project")
	}
	return nil
}

func (s *TaskService) ownTask(ctx context.Context, projectID, taskID string) (*repository.Task, error) {
	t, err := s.tasks.Get(ctx, taskID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil, NewError(ErrorCodeNotFound, "No task found")
	case err != nil:
		return nil, NewError(ErrorCodeUnspecified, "failed to get task")
	}

	if t.ProjectID != projectID {
		return nil, NewError(ErrorCodeNotFound, "No task found")
	}
	return t, nil
}

func (s *TaskService) ownIteration(ctx context.Context, projectID, iterationID string) error {
	it, err := s.iterations.Get(ctx, iterationID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return NewError(ErrorCodeNotFound, "No iteration found")
	case err != nil:
		return NewError(ErrorCodeUnspecified, "failed to get iteration")
	}

	if it.ProjectID != projectID {
		return NewError(ErrorCodeNotFound, "No iteration found")
	}
	return nil
}

func validLocation(l model.Location) bool {
	if l.IsBacklog() {
		return l.Stage == ""
	}
	return l.Stage.Valid()
}

func moveResult(err *Error) string {
	switch err.Code {
	case ErrorCodeInvalidRequest:
		return metrics.MoveMismatch
	case ErrorCodeNotFound:
		return metrics.MoveNotFound
	}
	return metrics.MoveInternalError
}

func (s *TaskService) WithProjectRepo(repo repository.ProjectRepository) *TaskService {
	s.projects = repo
	return s
}

func (s *TaskService) WithIterationRepo(repo repository.IterationRepository) *TaskService {
	s.iterations = repo
	return s
}

func (s *TaskService) WithTaskRepo(repo repository.TaskRepository) *TaskService {
	s.tasks = repo
	return s
}

func (s *TaskService) WithMetrics(m *metrics.Metrics) *TaskService {
	s.metrics = m
	return s
}

// WithGuardedWrites switches moves between the conditional relocation under
// a project lock and a plain read-compare-write.
func (s *TaskService) WithGuardedWrites(guarded bool) *TaskService {
	s.guarded = guarded
	return s
}

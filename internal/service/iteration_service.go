package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/yakoovad/scrumboard/internal/db"
	"github.com/yakoovad/scrumboard/internal/model"
	"github.com/yakoovad/scrumboard/internal/repository"
	"github.com/yakoovad/scrumboard/pkg/logger"
	"go.uber.org/zap"
)

type IterationService struct {
	tx db.Transactor

	projects   repository.ProjectRepository
	members    repository.MemberRepository
	queue      repository.QueueRepository
	iterations repository.IterationRepository
	tasks      repository.TaskRepository

	guarded bool
}

func NewIterationService(tx db.Transactor) *IterationService {
	return &IterationService{
		tx:      tx,
		guarded: true,
	}
}

func (s *IterationService) CreateIteration(ctx context.Context, projectID, title string, deadline time.Time) (*model.Iteration, *Error) {
	l := logger.FromContext(ctx)

	it := &repository.Iteration{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		Title:     title,
		Deadline:  deadline,
	}

	err := s.iterations.Create(ctx, it)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil, NewError(ErrorCodeNotFound, "No project found")
	case err != nil:
		l.Error("failed to create iteration", zap.String("project_id", projectID), zap.Error(err))
		return nil, NewError(ErrorCodeUnspecified, "failed to create iteration")
	}

	l.Info("iteration created", zap.String("project_id", projectID), zap.String("iteration_id", it.ID))
	return toIteration(it, nil), nil
}

// UpdateIteration replaces title and deadline. The board is left untouched.
func (s *IterationService) UpdateIteration(ctx context.Context, projectID, iterationID, title string, deadline time.Time) (*model.Iteration, *Error) {
	l := logger.FromContext(ctx)
	var res *model.Iteration

	err := s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		if err := s.ownIteration(txCtx, projectID, iterationID); err != nil {
			return err
		}

		it, err := s.iterations.Patch(txCtx, &repository.IterationPatch{
			ID:       iterationID,
			Title:    &title,
			Deadline: &deadline,
		})
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return NewError(ErrorCodeNotFound, "No iteration found")
		case err != nil:
			l.Error("failed to update iteration", zap.String("iteration_id", iterationID), zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to update iteration")
		}

		tasks, err := s.tasks.ListByIteration(txCtx, iterationID)
		if err != nil {
			l.Error("failed to list iteration tasks", zap.String("iteration_id", iterationID), zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to update iteration")
		}

		res = toIteration(it, tasks)
		return nil
	})

	return res, asError(err, "failed to update iteration")
}

// DeleteIteration removes the iteration. Its tasks are deleted when
// deleteTasks is set and moved to the backlog otherwise, TODO first, then
// DOING, then DONE. The hydrated project is returned as seen by callerID.
func (s *IterationService) DeleteIteration(ctx context.Context, projectID, iterationID string, deleteTasks bool, callerID string) (*model.Project, *Error) {
	l := logger.FromContext(ctx)
	var res *model.Project

	err := s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		var (
			pr  *repository.Project
			err error
		)
		if s.guarded {
			pr, err = s.projects.GetForUpdate(txCtx, projectID)
		} else {
			pr, err = s.projects.Get(txCtx, projectID)
		}
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return NewError(ErrorCodeNotFound, "No project found")
		case err != nil:
			return NewError(ErrorCodeUnspecified, "failed to get project")
		}

		if err = s.ownIteration(txCtx, projectID, iterationID); err != nil {
			return err
		}

		if deleteTasks {
			n, err := s.tasks.DeleteByIteration(txCtx, iterationID)
			if err != nil {
				l.Error("failed to delete iteration tasks", zap.String("iteration_id", iterationID), zap.Error(err))
				return NewError(ErrorCodeUnspecified, "failed to delete iteration")
			}
			l.Debug("iteration tasks deleted", zap.String("iteration_id", iterationID), zap.Int64("count", n))
		} else if err = s.demoteTasks(txCtx, iterationID); err != nil {
			l.Error("failed to move iteration tasks to backlog", zap.String("iteration_id", iterationID), zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to delete iteration")
		}

		err = s.iterations.Delete(txCtx, iterationID)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return NewError(ErrorCodeNotFound, "No iteration found")
		case err != nil:
			l.Error("failed to delete iteration", zap.String("iteration_id", iterationID), zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to delete iteration")
		}

		reader := projectReader{members: s.members, queue: s.queue, iterations: s.iterations, tasks: s.tasks}
		if res, err = reader.view(txCtx, pr, callerID); err != nil {
			l.Error("failed to hydrate project", zap.String("project_id", projectID), zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to get project")
		}
		return nil
	})
	if err != nil {
		return nil, asError(err, "failed to delete iteration")
	}

	l.Info("iteration deleted",
		zap.String("project_id", projectID),
		zap.String("iteration_id", iterationID),
		zap.Bool("delete_tasks", deleteTasks))
	return res, nil
}

func (s *IterationService) demoteTasks(ctx context.Context, iterationID string) error {
	tasks, err := s.tasks.ListByIteration(ctx, iterationID)
	if err != nil {
		return err
	}

	for _, stage := range model.Stages {
		for _, t := range tasks {
			if t.Stage != stage {
				continue
			}
			if err = s.tasks.Relocate(ctx, t.ID, nil, model.Backlog); err != nil {
				return errors.Wrapf(err, "relocate task %s", t.ID)
			}
		}
	}
	return nil
}

// ownIteration fails with NOT_FOUND unless the iteration belongs to the project.
func (s *IterationService) ownIteration(ctx context.Context, projectID, iterationID string) error {
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

func (s *IterationService) WithProjectRepo(repo repository.ProjectRepository) *IterationService {
	s.projects = repo
	return s
}

func (s *IterationService) WithMemberRepo(repo repository.MemberRepository) *IterationService {
	s.members = repo
	return s
}

func (s *IterationService) WithQueueRepo(repo repository.QueueRepository) *IterationService {
	s.queue = repo
	return s
}

func (s *IterationService) WithIterationRepo(repo repository.IterationRepository) *IterationService {
	s.iterations = repo
	return s
}

func (s *IterationService) WithTaskRepo(repo repository.TaskRepository) *IterationService {
	s.tasks = repo
	return s
}

// WithGuardedWrites toggles row locking of the project on iteration deletion.
func (s *IterationService) WithGuardedWrites(guarded bool) *IterationService {
	s.guarded = guarded
	return s
}

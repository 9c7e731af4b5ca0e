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

// ProjectService runs the membership workflow of projects.
type ProjectService struct {
	tx db.Transactor

	users      repository.UserRepository
	projects   repository.ProjectRepository
	members    repository.MemberRepository
	queue      repository.QueueRepository
	iterations repository.IterationRepository
	tasks      repository.TaskRepository

	metrics *metrics.Metrics
	guarded bool
}

func NewProjectService(tx db.Transactor) *ProjectService {
	return &ProjectService{
		tx:      tx,
		guarded: true,
	}
}

func (p *ProjectService) reader() projectReader {
	return projectReader{members: p.members, queue: p.queue, iterations: p.iterations, tasks: p.tasks}
}

// loadProject reads the project, holding its row lock when writes are guarded.
func (p *ProjectService) loadProject(ctx context.Context, projectID string) (*repository.Project, error) {
	if p.guarded {
		return p.projects.GetForUpdate(ctx, projectID)
	}
	return p.projects.Get(ctx, projectID)
}

func (p *ProjectService) CreateProject(ctx context.Context, adminID, title, description string) (*model.Project, *Error) {
	l := logger.FromContext(ctx)

	if adminID == "" {
		return nil, NewError(ErrorCodeUnauthorized, "Not authenticated")
	}

	res := &model.Project{}
	err := p.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		admin, err := p.users.Get(txCtx, adminID)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return NewError(ErrorCodeUnauthorized, "Not authenticated")
		case err != nil:
			l.Error("failed to get admin", zap.String("user_id", adminID), zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to get user")
		}

		pr := &repository.Project{
			ID:          uuid.NewString(),
			Title:       title,
			Description: description,
			AdminID:     admin.ID,
		}
		if err = p.projects.Create(txCtx, pr); err != nil {
			l.Error("failed to create project", zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to create project")
		}

		if err = p.members.Add(txCtx, pr.ID, admin.ID); err != nil {
			l.Error("failed to add admin to project", zap.String("project_id", pr.ID), zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to create project")
		}

		*res = model.Project{
			ID:          pr.ID,
			Title:       pr.Title,
			Description: pr.Description,
			AdminID:     pr.AdminID,
			Members:     []*model.Member{{ID: admin.ID, Username: admin.Username}},
			Queue:       make([]*model.QueueEntry, 0),
			Backlog:     make([]*model.Task, 0),
			Iterations:  make([]*model.Iteration, 0),
			CreatedAt:   pr.CreatedAt,
			UpdatedAt:   pr.UpdatedAt,
		}
		return nil
	})
	if err != nil {
		return nil, asError(err, "failed to create project")
	}

	l.Info("project created", zap.String("project_id", res.ID), zap.String("admin_id", adminID))
	return res, nil
}

func (p *ProjectService) ListProjects(ctx context.Context, userID string) ([]*model.ProjectSummary, *Error) {
	projects, err := p.projects.ListByMember(ctx, userID)
	if err != nil {
		logger.FromContext(ctx).Error("failed to list projects", zap.String("user_id", userID), zap.Error(err))
		return nil, NewError(ErrorCodeUnspecified, "failed to list projects")
	}

	res := make([]*model.ProjectSummary, 0, len(projects))
	for _, pr := range projects {
		res = append(res, &model.ProjectSummary{ID: pr.ID, Title: pr.Title, CreatedAt: pr.CreatedAt})
	}
	return res, nil
}

// GetProject returns the hydrated project. The join queue is hidden unless
// callerID is the admin.
func (p *ProjectService) GetProject(ctx context.Context, projectID, callerID string) (*model.Project, *Error) {
	var res *model.Project

	err := p.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		pr, err := p.projects.Get(txCtx, projectID)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return NewError(ErrorCodeNotFound, "No project found")
		case err != nil:
			return NewError(ErrorCodeUnspecified, "failed to get project")
		}

		if res, err = p.reader().view(txCtx, pr, callerID); err != nil {
			logger.FromContext(ctx).Error("failed to hydrate project", zap.String("project_id", projectID), zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to get project")
		}
		return nil
	})

	return res, asError(err, "failed to get project")
}

func (p *ProjectService) UpdateProject(ctx context.Context, projectID, title, description string) (*model.ProjectInfo, *Error) {
	pr, err := p.projects.Patch(ctx, &repository.ProjectPatch{
		ID:          projectID,
		Title:       &title,
		Description: &description,
	})
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil, NewError(ErrorCodeNotFound, "No project found")
	case err != nil:
		logger.FromContext(ctx).Error("failed to update project", zap.String("project_id", projectID), zap.Error(err))
		return nil, NewError(ErrorCodeUnspecified, "failed to update project")
	}

	return &model.ProjectInfo{ID: pr.ID, Title: pr.Title, Description: pr.Description}, nil
}

// RequestJoin puts userID into the join queue of the project.
func (p *ProjectService) RequestJoin(ctx context.Context, projectID, userID string) *Error {
	l := logger.FromContext(ctx)

	err := p.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		_, err := p.loadProject(txCtx, projectID)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return NewError(ErrorCodeNotFound, "No project found")
		case err != nil:
			l.Error("failed to get project", zap.String("project_id", projectID), zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to get project")
		}

		user, err := p.users.Get(txCtx, userID)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return NewError(ErrorCodeNotFound, "No user found")
		case err != nil:
			l.Error("failed to get user", zap.String("user_id", userID), zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to get user")
		}

		isMember, err := p.members.IsMember(txCtx, projectID, userID)
		if err != nil {
			l.Error("failed to check membership", zap.String("project_id", projectID), zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to check membership")
		}
		if isMember {
			return NewError(ErrorCodeConflict, "User is already in project")
		}

		queued, err := p.queue.Contains(txCtx, projectID, userID)
		if err != nil {
			l.Error("failed to check queue", zap.String("project_id", projectID), zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to join project")
		}
		if queued {
			return NewError(ErrorCodeConflict, "User is already in queue")
		}

		err = p.queue.Push(txCtx, &repository.QueueEntry{
			ProjectID: projectID,
			UserID:    user.ID,
			Username:  user.Username,
			Email:     user.Email,
		})
		switch {
		case errors.Is(err, repository.ErrAlreadyExists):
			return NewError(ErrorCodeConflict, "User is already in queue")
		case err != nil:
			l.Error("failed to enqueue user", zap.String("project_id", projectID), zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to join project")
		}
		return nil
	})
	if err != nil {
		res := asError(err, "failed to join project")
		l.Warn("join request rejected", zap.String("project_id", projectID), zap.String("user_id", userID), zap.String("reason", res.Message))
		return res
	}

	p.metrics.AddMembershipEvent(metrics.EventJoinRequested)
	l.Info("user requested to join", zap.String("project_id", projectID), zap.String("user_id", userID))
	return nil
}

func (p *ProjectService) LeaveProject(ctx context.Context, projectID, userID string) *Error {
	l := logger.FromContext(ctx)

	err := p.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		pr, err := p.loadProject(txCtx, projectID)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return NewError(ErrorCodeNotFound, "No project found")
		case err != nil:
			l.Error("failed to get project", zap.String("project_id", projectID), zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to get project")
		}

		if pr.AdminID == userID {
			return NewError(ErrorCodeForbidden, "Admin can't leave project")
		}

		if err = p.members.Remove(txCtx, projectID, userID); err != nil {
			l.Error("failed to remove member", zap.String("project_id", projectID), zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to leave project")
		}
		return nil
	})
	if err != nil {
		return asError(err, "failed to leave project")
	}

	p.metrics.AddMembershipEvent(metrics.EventLeft)
	l.Info("user left project", zap.String("project_id", projectID), zap.String("user_id", userID))
	return nil
}

// AcceptUser moves userID from the join queue into the members. The user
// does not have to be queued.
func (p *ProjectService) AcceptUser(ctx context.Context, projectID, userID string) (*model.Member, *Error) {
	l := logger.FromContext(ctx)
	res := &model.Member{}

	err := p.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		user, err := p.queuedUser(txCtx, projectID, userID)
		if err != nil {
			return err
		}

		if err = p.queue.Remove(txCtx, projectID, userID); err != nil {
			l.Error("failed to dequeue user", zap.String("project_id", projectID), zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to accept user")
		}

		if err = p.members.Add(txCtx, projectID, userID); err != nil {
			l.Error("failed to add member", zap.String("project_id", projectID), zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to accept user")
		}

		res.ID = user.ID
		res.Username = user.Username
		return nil
	})
	if err != nil {
		return nil, asError(err, "failed to accept user")
	}

	p.metrics.AddMembershipEvent(metrics.EventAccepted)
	l.Info("user accepted", zap.String("project_id", projectID), zap.String("user_id", userID))
	return res, nil
}

// RejectUser drops userID from the join queue. Membership is not touched.
func (p *ProjectService) RejectUser(ctx context.Context, projectID, userID string) *Error {
	l := logger.FromContext(ctx)

	err := p.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		if _, err := p.queuedUser(txCtx, projectID, userID); err != nil {
			return err
		}

		if err := p.queue.Remove(txCtx, projectID, userID); err != nil {
			l.Error("failed to dequeue user", zap.String("project_id", projectID), zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to reject user")
		}
		return nil
	})
	if err != nil {
		return asError(err, "failed to reject user")
	}

	p.metrics.AddMembershipEvent(metrics.EventRejected)
	l.Info("user rejected", zap.String("project_id", projectID), zap.String("user_id", userID))
	return nil
}

// queuedUser resolves the project and the user an admin decides on.
func (p *ProjectService) queuedUser(ctx context.Context, projectID, userID string) (*repository.User, error) {
	_, err := p.loadProject(ctx, projectID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil, NewError(ErrorCodeNotFound, "No project found")
	case err != nil:
		return nil, NewError(ErrorCodeUnspecified, "failed to get project")
	}

	user, err := p.users.Get(ctx, userID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil, NewError(ErrorCodeNotFound, "No user found")
	case err != nil:
		return nil, NewError(ErrorCodeUnspecified, "failed to get user")
	}
	return user, nil
}

// DeleteProject removes the project with all its iterations and tasks.
func (p *ProjectService) DeleteProject(ctx context.Context, projectID string) *Error {
	l := logger.FromContext(ctx)

	err := p.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		_, err := p.loadProject(txCtx, projectID)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return NewError(ErrorCodeNotFound, "No project found")
		case err != nil:
			return NewError(ErrorCodeUnspecified, "failed to get project")
		}

		if err = p.tasks.DeleteByProject(txCtx, projectID); err != nil {
			l.Error("failed to delete project tasks", zap.String("project_id", projectID), zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to delete project")
		}
		if err = p.iterations.DeleteByProject(txCtx, projectID); err != nil {
			l.Error("failed to delete project iterations", zap.String("project_id", projectID), zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to delete project")
		}
		if err = p.queue.DeleteByProject(txCtx, projectID); err != nil {
			l.Error("failed to delete project queue", zap.String("project_id", projectID), zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to delete project")
		}
		if err = p.members.DeleteByProject(txCtx, projectID); err != nil {
			l.Error("failed to delete project members", zap.String("project_id", projectID), zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to delete project")
		}
		if err = p.projects.Delete(txCtx, projectID); err != nil {
			l.Error("failed to delete project", zap.String("project_id", projectID), zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to delete project")
		}
		return nil
	})
	if err != nil {
		return asError(err, "failed to delete project")
	}

	l.Info("project deleted", zap.String("project_id", projectID))
	return nil
}

// CheckAdmin fails unless userID exists and administrates the project.
func (p *ProjectService) CheckAdmin(ctx context.Context, projectID, userID string) *Error {
	_, err := p.users.Get(ctx, userID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return NewError(ErrorCodeUnauthorized, "Not authenticated")
	case err != nil:
		return NewError(ErrorCodeUnspecified, "failed to get user")
	}

	pr, err := p.projects.Get(ctx, projectID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return NewError(ErrorCodeNotFound, "Project not found")
	case err != nil:
		return NewError(ErrorCodeUnspecified, "failed to get project")
	}

	if pr.AdminID != userID {
		return NewError(ErrorCodeForbidden, "User not admin")
	}
	return nil
}

// CheckMember fails unless userID is a member of the project.
func (p *ProjectService) CheckMember(ctx context.Context, projectID, userID string) *Error {
	_, err := p.projects.Get(ctx, projectID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return NewError(ErrorCodeNotFound, "Project not found")
	case err != nil:
		return NewError(ErrorCodeUnspecified, "failed to get project")
	}

	ok, err := p.members.IsMember(ctx, projectID, userID)
	if err != nil {
		return NewError(ErrorCodeUnspecified, "failed to check membership")
	}
	if !ok {
		return NewError(ErrorCodeForbidden, "User is not a member of project")
	}
	return nil
}

func (p *ProjectService) WithUserRepo(repo repository.UserRepository) *ProjectService {
	p.users = repo
	return p
}

func (p *ProjectService) WithProjectRepo(repo repository.ProjectRepository) *ProjectService {
	p.projects = repo
	return p
}

func (p *ProjectService) WithMemberRepo(repo repository.MemberRepository) *ProjectService {
	p.members = repo
	return p
}

func (p *ProjectService) WithQueueRepo(repo repository.QueueRepository) *ProjectService {
	p.queue = repo
	return p
}

func (p *ProjectService) WithIterationRepo(repo repository.IterationRepository) *ProjectService {
	p.iterations = repo
	return p
}

func (p *ProjectService) WithTaskRepo(repo repository.TaskRepository) *ProjectService {
	p.tasks = repo
	return p
}

func (p *ProjectService) WithMetrics(m *metrics.Metrics) *ProjectService {
	p.metrics = m
	return p
}

// WithGuardedWrites toggles row locking of the project on membership writes.
func (p *ProjectService) WithGuardedWrites(guarded bool) *ProjectService {
	p.guarded = guarded
	return p
}

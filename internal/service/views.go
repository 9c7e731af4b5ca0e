package service

import (
	"context"

	"github.com/pkg/errors"
	"github.com/yakoovad/scrumboard/internal/model"
	"github.com/yakoovad/scrumboard/internal/repository"
)

func toTask(t *repository.Task) *model.Task {
	return &model.Task{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		StoryPoints: t.StoryPoints,
		ProjectID:   t.ProjectID,
		Location:    t.Location(),
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

// toIteration builds the board of it from tasks, which must be ordered by
// position.
func toIteration(it *repository.Iteration, tasks []*repository.Task) *model.Iteration {
	res := &model.Iteration{
		ID:        it.ID,
		ProjectID: it.ProjectID,
		Title:     it.Title,
		Deadline:  it.Deadline,
		Tasks:     model.NewStageTasks(),
		CreatedAt: it.CreatedAt,
		UpdatedAt: it.UpdatedAt,
	}
	for _, t := range tasks {
		if t.IterationID == it.ID {
			res.Tasks.Append(t.Stage, toTask(t))
		}
	}
	return res
}

// projectReader assembles hydrated project views.
type projectReader struct {
	members    repository.MemberRepository
	queue      repository.QueueRepository
	iterations repository.IterationRepository
	tasks      repository.TaskRepository
}

// view hydrates pr. The join queue is only filled for the project admin.
func (r projectReader) view(ctx context.Context, pr *repository.Project, callerID string) (*model.Project, error) {
	res := &model.Project{
		ID:          pr.ID,
		Title:       pr.Title,
		Description: pr.Description,
		AdminID:     pr.AdminID,
		Members:     make([]*model.Member, 0),
		Queue:       make([]*model.QueueEntry, 0),
		Backlog:     make([]*model.Task, 0),
		Iterations:  make([]*model.Iteration, 0),
		CreatedAt:   pr.CreatedAt,
		UpdatedAt:   pr.UpdatedAt,
	}

	members, err := r.members.List(ctx, pr.ID)
	if err != nil {
		return nil, errors.Wrap(err, "list members")
	}
	for _, m := range members {
		res.Members = append(res.Members, &model.Member{ID: m.ID, Username: m.Username})
	}

	if callerID == pr.AdminID {
		queue, err := r.queue.List(ctx, pr.ID)
		if err != nil {
			return nil, errors.Wrap(err, "list queue")
		}
		for _, q := range queue {
			res.Queue = append(res.Queue, &model.QueueEntry{UserID: q.UserID, Username: q.Username, Email: q.Email})
		}
	}

	tasks, err := r.tasks.ListByProject(ctx, pr.ID)
	if err != nil {
		return nil, errors.Wrap(err, "list tasks")
	}
	for _, t := range tasks {
		if t.IterationID == "" {
			res.Backlog = append(res.Backlog, toTask(t))
		}
	}

	iterations, err := r.iterations.ListByProject(ctx, pr.ID)
	if err != nil {
		return nil, errors.Wrap(err, "list iterations")
	}
	for _, it := range iterations {
		res.Iterations = append(res.Iterations, toIteration(it, tasks))
	}

	return res, nil
}

package service

import (
	"context"

	"github.com/yakoovad/scrumboard/internal/model"
	"github.com/yakoovad/scrumboard/pkg/logger"
	"go.uber.org/zap"
)

// PlacementViolation reports a task whose board occurrences disagree with
// its stored location.
type PlacementViolation struct {
	TaskID string           `json:"taskId"`
	Stored model.Location   `json:"stored"`
	Found  []model.Location `json:"found"`
}

// AuditPlacement walks the backlog and every stage of every iteration of
// the project and checks that each task shows up exactly once, at its stored
// location. An empty result means the board is consistent.
//
// Board lists are read from the same iteration_id and stage columns the
// stored location comes from, so the audit cannot catch a task that sits in
// the wrong list of its own project. It does report tasks listed in no
// board (an iteration outside the project, or a half-set location), tasks
// of another project listed on one of its iterations, stages outside
// TODO, DOING and DONE.
func (s *TaskService) AuditPlacement(ctx context.Context, projectID string) ([]*PlacementViolation, *Error) {
	l := logger.FromContext(ctx)
	violations := make([]*PlacementViolation, 0)

	err := s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		if err := s.checkProject(txCtx, projectID); err != nil {
			return err
		}

		tasks, err := s.tasks.ListByProject(txCtx, projectID)
		if err != nil {
			return NewError(ErrorCodeUnspecified, "failed to list tasks")
		}
		iterations, err := s.iterations.ListByProject(txCtx, projectID)
		if err != nil {
			return NewError(ErrorCodeUnspecified, "failed to list iterations")
		}

		found := make(map[string][]model.Location, len(tasks))
		for _, t := range tasks {
			if t.IterationID == "" {
				found[t.ID] = append(found[t.ID], model.Backlog)
			}
		}

		for _, it := range iterations {
			board, err := s.tasks.ListByIteration(txCtx, it.ID)
			if err != nil {
				return NewError(ErrorCodeUnspecified, "failed to list iteration tasks")
			}
			for _, t := range board {
				loc := model.InIteration(it.ID, t.Stage)
				if t.ProjectID != projectID || !t.Stage.Valid() {
					violations = append(violations, &PlacementViolation{
						TaskID: t.ID,
						Stored: t.Location(),
						Found:  []model.Location{loc},
					})
					continue
				}
				found[t.ID] = append(found[t.ID], loc)
			}
		}

		for _, t := range tasks {
			locs := found[t.ID]
			if len(locs) == 1 && locs[0] == t.Location() {
				continue
			}
			violations = append(violations, &PlacementViolation{
				TaskID: t.ID,
				Stored: t.Location(),
				Found:  locs,
			})
		}
		return nil
	})
	if err != nil {
		return nil, asError(err, "failed to audit placement")
	}

	if len(violations) > 0 {
		l.Warn("placement violations found", zap.String("project_id", projectID), zap.Int("count", len(violations)))
	}
	return violations, nil
}

package repository

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/hashicorp/go-memdb"
	"github.com/yakoovad/scrumboard/internal/db"
	"github.com/yakoovad/scrumboard/internal/model"
)

type memdbTaskRepository struct {
	db *MemDB
}

func NewMemdbTaskRepository(m *MemDB) TaskRepository {
	return &memdbTaskRepository{db: m}
}

func (r *memdbTaskRepository) Create(ctx context.Context, task *Task) error {
	return db.MemdbWrite(ctx, r.db.MemDB, func(txn *memdb.Txn) error {
		if raw, err := txn.First(tblTasks, "id", task.ID); err != nil {
			return fmt.Errorf("find task: %w", err)
		} else if raw != nil {
			return ErrAlreadyExists
		}
		if _, err := findProject(txn, task.ProjectID); err != nil {
			return err
		}
		if task.IterationID != "" {
			if _, err := findIteration(txn, task.IterationID); err != nil {
				return err
			}
		}

		now := time.Now()
		task.Position = r.db.nextPosition()
		task.CreatedAt, task.UpdatedAt = now, now
		stored := *task
		if err := txn.Insert(tblTasks, &stored); err != nil {
			return fmt.Errorf("insert task: %w", err)
		}
		return nil
	})
}

func (r *memdbTaskRepository) Get(ctx context.Context, taskID string) (*Task, error) {
	var t *Task
	err := db.MemdbRead(ctx, r.db.MemDB, func(txn *memdb.Txn) error {
		found, err := findTask(txn, taskID)
		if err != nil {
			return err
		}
		t = found
		return nil
	})
	return t, err
}

func (r *memdbTaskRepository) Patch(ctx context.Context, patch *TaskPatch) (*Task, error) {
	var t *Task
	err := db.MemdbWrite(ctx, r.db.MemDB, func(txn *memdb.Txn) error {
		found, err := findTask(txn, patch.ID)
		if err != nil {
			return err
		}
		if patch.Title != nil {
			found.Title = *patch.Title
		}
		if patch.Description != nil {
			found.Description = *patch.Description
		}
		if patch.StoryPoints != nil {
			found.StoryPoints = *patch.StoryPoints
		}
		found.UpdatedAt = time.Now()

		stored := *found
		if err = txn.Insert(tblTasks, &stored); err != nil {
			return fmt.Errorf("update task: %w", err)
		}
		t = found
		return nil
	})
	return t, err
}

func (r *memdbTaskRepository) Delete(ctx context.Context, taskID string) error {
	return db.MemdbWrite(ctx, r.db.MemDB, func(txn *memdb.Txn) error {
		raw, err := txn.First(tblTasks, "id", taskID)
		if err != nil {
			return fmt.Errorf("find task: %w", err)
		}
		if raw == nil {
			return ErrNotFound
		}
		if err = txn.Delete(tblTasks, raw); err != nil {
			return fmt.Errorf("delete task: %w", err)
		}
		return nil
	})
}

func (r *memdbTaskRepository) ListByProject(ctx context.Context, projectID string) ([]*Task, error) {
	return r.list(ctx, "project_id", projectID)
}

func (r *memdbTaskRepository) ListByIteration(ctx context.Context, iterationID string) ([]*Task, error) {
	return r.list(ctx, "iteration_id", iterationID)
}

func (r *memdbTaskRepository) list(ctx context.Context, index, value string) ([]*Task, error) {
	tasks := make([]*Task, 0)
	err := db.MemdbRead(ctx, r.db.MemDB, func(txn *memdb.Txn) error {
		it, err := txn.Get(tblTasks, index, value)
		if err != nil {
			return fmt.Errorf("find tasks by %s: %w", index, err)
		}
		for raw := it.Next(); raw != nil; raw = it.Next() {
			t := *raw.(*Task)
			tasks = append(tasks, &t)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(tasks, func(i, j int) bool { return tasks[i].Position < tasks[j].Position })
	return tasks, nil
}

func (r *memdbTaskRepository) Relocate(ctx context.Context, taskID string, from *model.Location, to model.Location) error {
	return db.MemdbWrite(ctx, r.db.MemDB, func(txn *memdb.Txn) error {
		raw, err := txn.First(tblTasks, "id", taskID)
		if err != nil {
			return fmt.Errorf("find task: %w", err)
		}
		if raw == nil {
			return ErrNotFound
		}

		t := *raw.(*Task)
		if from != nil && t.Location() != *from {
			return ErrLocationMismatch
		}
		if !to.IsBacklog() {
			if _, err = findIteration(txn, to.IterationID); err != nil {
				return err
			}
		}

		t.IterationID = to.IterationID
		t.Stage = to.Stage
		t.Position = r.db.nextPosition()
		t.UpdatedAt = time.Now()
		if err = txn.Insert(tblTasks, &t); err != nil {
			return fmt.Errorf("relocate task: %w", err)
		}
		return nil
	})
}

func (r *memdbTaskRepository) DeleteByIteration(ctx context.Context, iterationID string) (int64, error) {
	var n int
	err := db.MemdbWrite(ctx, r.db.MemDB, func(txn *memdb.Txn) error {
		var err error
		if n, err = txn.DeleteAll(tblTasks, "iteration_id", iterationID); err != nil {
			return fmt.Errorf("delete iteration tasks: %w", err)
		}
		return nil
	})
	return int64(n), err
}

func (r *memdbTaskRepository) DeleteByProject(ctx context.Context, projectID string) error {
	return db.MemdbWrite(ctx, r.db.MemDB, func(txn *memdb.Txn) error {
		if _, err := txn.DeleteAll(tblTasks, "project_id", projectID); err != nil {
			return fmt.Errorf("delete project tasks: %w", err)
		}
		return nil
	})
}

func findTask(txn *memdb.Txn, taskID string) (*Task, error) {
	raw, err := txn.First(tblTasks, "id", taskID)
	if err != nil {
		return nil, fmt.Errorf("find task: %w", err)
	}
	if raw == nil {
		return nil, ErrNotFound
	}
	t := *raw.(*Task)
	return &t, nil
}

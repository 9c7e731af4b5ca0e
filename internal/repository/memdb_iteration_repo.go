package repository

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/hashicorp/go-memdb"
	"github.com/yakoovad/scrumboard/internal/db"
)

type memdbIterationRepository struct {
	db *MemDB
}

func NewMemdbIterationRepository(m *MemDB) IterationRepository {
	return &memdbIterationRepository{db: m}
}

func (r *memdbIterationRepository) Create(ctx context.Context, iteration *Iteration) error {
	return db.MemdbWrite(ctx, r.db.MemDB, func(txn *memdb.Txn) error {
		if raw, err := txn.First(tblIterations, "id", iteration.ID); err != nil {
			return fmt.Errorf("find iteration: %w", err)
		} else if raw != nil {
			return ErrAlreadyExists
		}
		if _, err := findProject(txn, iteration.ProjectID); err != nil {
			return err
		}

		now := time.Now()
		iteration.Position = r.db.nextPosition()
		iteration.CreatedAt, iteration.UpdatedAt = now, now
		stored := *iteration
		if err := txn.Insert(tblIterations, &stored); err != nil {
			return fmt.Errorf("insert iteration: %w", err)
		}
		return nil
	})
}

func (r *memdbIterationRepository) Get(ctx context.Context, iterationID string) (*Iteration, error) {
	var it *Iteration
	err := db.MemdbRead(ctx, r.db.MemDB, func(txn *memdb.Txn) error {
		found, err := findIteration(txn, iterationID)
		if err != nil {
			return err
		}
		it = found
		return nil
	})
	return it, err
}

func (r *memdbIterationRepository) Patch(ctx context.Context, patch *IterationPatch) (*Iteration, error) {
	var it *Iteration
	err := db.MemdbWrite(ctx, r.db.MemDB, func(txn *memdb.Txn) error {
		found, err := findIteration(txn, patch.ID)
		if err != nil {
			return err
		}
		if patch.Title != nil {
			found.Title = *patch.Title
		}
		if patch.Deadline != nil {
			found.Deadline = *patch.Deadline
		}
		found.UpdatedAt = time.Now()

		stored := *found
		if err = txn.Insert(tblIterations, &stored); err != nil {
			return fmt.Errorf("update iteration: %w", err)
		}
		it = found
		return nil
	})
	return it, err
}

// Delete refuses to drop an iteration that still holds tasks, like the
// foreign key of the Postgres schema does.
func (r *memdbIterationRepository) Delete(ctx context.Context, iterationID string) error {
	return db.MemdbWrite(ctx, r.db.MemDB, func(txn *memdb.Txn) error {
		raw, err := txn.First(tblIterations, "id", iterationID)
		if err != nil {
			return fmt.Errorf("find iteration: %w", err)
		}
		if raw == nil {
			return ErrNotFound
		}

		task, err := txn.First(tblTasks, "iteration_id", iterationID)
		if err != nil {
			return fmt.Errorf("find iteration tasks: %w", err)
		}
		if task != nil {
			return ErrReferenced
		}

		if err = txn.Delete(tblIterations, raw); err != nil {
			return fmt.Errorf("delete iteration: %w", err)
		}
		return nil
	})
}

func (r *memdbIterationRepository) ListByProject(ctx context.Context, projectID string) ([]*Iteration, error) {
	iterations := make([]*Iteration, 0)
	err := db.MemdbRead(ctx, r.db.MemDB, func(txn *memdb.Txn) error {
		it, err := txn.Get(tblIterations, "project_id", projectID)
		if err != nil {
			return fmt.Errorf("find iterations: %w", err)
		}
		for raw := it.Next(); raw != nil; raw = it.Next() {
			found := *raw.(*Iteration)
			iterations = append(iterations, &found)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(iterations, func(i, j int) bool { return iterations[i].Position < iterations[j].Position })
	return iterations, nil
}

func (r *memdbIterationRepository) DeleteByProject(ctx context.Context, projectID string) error {
	return db.MemdbWrite(ctx, r.db.MemDB, func(txn *memdb.Txn) error {
		tasks, err := txn.Get(tblTasks, "project_id", projectID)
		if err != nil {
			return fmt.Errorf("find project tasks: %w", err)
		}
		for raw := tasks.Next(); raw != nil; raw = tasks.Next() {
			if raw.(*Task).IterationID != "" {
				return ErrReferenced
			}
		}

		if _, err = txn.DeleteAll(tblIterations, "project_id", projectID); err != nil {
			return fmt.Errorf("delete iterations: %w", err)
		}
		return nil
	})
}

func findIteration(txn *memdb.Txn, iterationID string) (*Iteration, error) {
	raw, err := txn.First(tblIterations, "id", iterationID)
	if err != nil {
		return nil, fmt.Errorf("find iteration: %w", err)
	}
	if raw == nil {
		return nil, ErrNotFound
	}
	it := *raw.(*Iteration)
	return &it, nil
}

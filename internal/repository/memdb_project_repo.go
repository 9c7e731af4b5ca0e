package repository

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/hashicorp/go-memdb"
	"github.com/yakoovad/scrumboard/internal/db"
)

type memdbProjectRepository struct {
	db *MemDB
}

func NewMemdbProjectRepository(m *MemDB) ProjectRepository {
	return &memdbProjectRepository{db: m}
}

func (r *memdbProjectRepository) Create(ctx context.Context, project *Project) error {
	return db.MemdbWrite(ctx, r.db.MemDB, func(txn *memdb.Txn) error {
		if raw, err := txn.First(tblProjects, "id", project.ID); err != nil {
			return fmt.Errorf("find project: %w", err)
		} else if raw != nil {
			return ErrAlreadyExists
		}
		if raw, err := txn.First(tblUsers, "id", project.AdminID); err != nil {
			return fmt.Errorf("find admin: %w", err)
		} else if raw == nil {
			return ErrNotFound
		}

		now := time.Now()
		project.CreatedAt, project.UpdatedAt = now, now
		stored := *project
		if err := txn.Insert(tblProjects, &stored); err != nil {
			return fmt.Errorf("insert project: %w", err)
		}
		return nil
	})
}

func (r *memdbProjectRepository) Get(ctx context.Context, projectID string) (*Project, error) {
	var pr *Project
	err := db.MemdbRead(ctx, r.db.MemDB, func(txn *memdb.Txn) error {
		found, err := findProject(txn, projectID)
		if err != nil {
			return err
		}
		pr = found
		return nil
	})
	return pr, err
}

// GetForUpdate is Get: memdb write transactions are already exclusive.
func (r *memdbProjectRepository) GetForUpdate(ctx context.Context, projectID string) (*Project, error) {
	return r.Get(ctx, projectID)
}

func (r *memdbProjectRepository) Patch(ctx context.Context, patch *ProjectPatch) (*Project, error) {
	var pr *Project
	err := db.MemdbWrite(ctx, r.db.MemDB, func(txn *memdb.Txn) error {
		found, err := findProject(txn, patch.ID)
		if err != nil {
			return err
		}
		if patch.Title != nil {
			found.Title = *patch.Title
		}
		if patch.Description != nil {
			found.Description = *patch.Description
		}
		found.UpdatedAt = time.Now()

		stored := *found
		if err = txn.Insert(tblProjects, &stored); err != nil {
			return fmt.Errorf("update project: %w", err)
		}
		pr = found
		return nil
	})
	return pr, err
}

func (r *memdbProjectRepository) Delete(ctx context.Context, projectID string) error {
	return db.MemdbWrite(ctx, r.db.MemDB, func(txn *memdb.Txn) error {
		raw, err := txn.First(tblProjects, "id", projectID)
		if err != nil {
			return fmt.Errorf("find project: %w", err)
		}
		if raw == nil {
			return ErrNotFound
		}
		if err = txn.Delete(tblProjects, raw); err != nil {
			return fmt.Errorf("delete project: %w", err)
		}
		return nil
	})
}

func (r *memdbProjectRepository) ListByMember(ctx context.Context, userID string) ([]*Project, error) {
	var projects []*Project
	err := db.MemdbRead(ctx, r.db.MemDB, func(txn *memdb.Txn) error {
		it, err := txn.Get(tblMembers, "user_id", userID)
		if err != nil {
			return fmt.Errorf("find memberships: %w", err)
		}
		for raw := it.Next(); raw != nil; raw = it.Next() {
			pr, err := findProject(txn, raw.(*memberRecord).ProjectID)
			if err != nil {
				return err
			}
			projects = append(projects, pr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(projects, func(i, j int) bool {
		return projects[i].CreatedAt.Before(projects[j].CreatedAt)
	})
	return projects, nil
}

func findProject(txn *memdb.Txn, projectID string) (*Project, error) {
	raw, err := txn.First(tblProjects, "id", projectID)
	if err != nil {
		return nil, fmt.Errorf("find project: %w", err)
	}
	if raw == nil {
		return nil, ErrNotFound
	}
	pr := *raw.(*Project)
	return &pr, nil
}

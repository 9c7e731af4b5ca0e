package repository

import (
	"context"
	"fmt"
	"sort"

	"github.com/hashicorp/go-memdb"
	"github.com/yakoovad/scrumboard/internal/db"
)

type memberRecord struct {
	ProjectID string
	UserID    string
	Position  int64
}

type memdbMemberRepository struct {
	db *MemDB
}

func NewMemdbMemberRepository(m *MemDB) MemberRepository {
	return &memdbMemberRepository{db: m}
}

func (r *memdbMemberRepository) Add(ctx context.Context, projectID, userID string) error {
	return db.MemdbWrite(ctx, r.db.MemDB, func(txn *memdb.Txn) error {
		raw, err := txn.First(tblMembers, "id", projectID, userID)
		if err != nil {
			return fmt.Errorf("find member: %w", err)
		}
		if raw != nil {
			return nil
		}

		if raw, err = txn.First(tblUsers, "id", userID); err != nil {
			return fmt.Errorf("find user: %w", err)
		} else if raw == nil {
			return ErrNotFound
		}
		if raw, err = txn.First(tblProjects, "id", projectID); err != nil {
			return fmt.Errorf("find project: %w", err)
		} else if raw == nil {
			return ErrNotFound
		}

		if err = txn.Insert(tblMembers, &memberRecord{
			ProjectID: projectID,
			UserID:    userID,
			Position:  r.db.nextPosition(),
		}); err != nil {
			return fmt.Errorf("insert member: %w", err)
		}
		return nil
	})
}

func (r *memdbMemberRepository) Remove(ctx context.Context, projectID, userID string) error {
	return db.MemdbWrite(ctx, r.db.MemDB, func(txn *memdb.Txn) error {
		if _, err := txn.DeleteAll(tblMembers, "id", projectID, userID); err != nil {
			return fmt.Errorf("delete member: %w", err)
		}
		return nil
	})
}

func (r *memdbMemberRepository) IsMember(ctx context.Context, projectID, userID string) (bool, error) {
	var found bool
	err := db.MemdbRead(ctx, r.db.MemDB, func(txn *memdb.Txn) error {
		raw, err := txn.First(tblMembers, "id", projectID, userID)
		if err != nil {
			return fmt.Errorf("find member: %w", err)
		}
		found = raw != nil
		return nil
	})
	return found, err
}

func (r *memdbMemberRepository) List(ctx context.Context, projectID string) ([]*User, error) {
	var records []*memberRecord
	users := make(map[string]*User)

	err := db.MemdbRead(ctx, r.db.MemDB, func(txn *memdb.Txn) error {
		it, err := txn.Get(tblMembers, "project_id", projectID)
		if err != nil {
			return fmt.Errorf("find members: %w", err)
		}
		for raw := it.Next(); raw != nil; raw = it.Next() {
			rec := raw.(*memberRecord)

			u, err := txn.First(tblUsers, "id", rec.UserID)
			if err != nil {
				return fmt.Errorf("find user: %w", err)
			}
			if u == nil {
				continue
			}
			found := *u.(*User)
			users[rec.UserID] = &found
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(records, func(i, j int) bool { return records[i].Position < records[j].Position })

	members := make([]*User, 0, len(records))
	for _, rec := range records {
		members = append(members, users[rec.UserID])
	}
	return members, nil
}

func (r *memdbMemberRepository) DeleteByProject(ctx context.Context, projectID string) error {
	return db.MemdbWrite(ctx, r.db.MemDB, func(txn *memdb.Txn) error {
		if _, err := txn.DeleteAll(tblMembers, "project_id", projectID); err != nil {
			return fmt.Errorf("delete members: %w", err)
		}
		return nil
	})
}

package repository

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/hashicorp/go-memdb"
	"github.com/yakoovad/scrumboard/internal/db"
)

type memdbQueueRepository struct {
	db *MemDB
}

func NewMemdbQueueRepository(m *MemDB) QueueRepository {
	return &memdbQueueRepository{db: m}
}

func (r *memdbQueueRepository) Push(ctx context.Context, entry *QueueEntry) error {
	return db.MemdbWrite(ctx, r.db.MemDB, func(txn *memdb.Txn) error {
		raw, err := txn.First(tblQueue, "id", entry.ProjectID, entry.UserID)
		if err != nil {
			return fmt.Errorf("find queue entry: %w", err)
		}
		if raw != nil {
			return ErrAlreadyExists
		}

		entry.Position = r.db.nextPosition()
		entry.RequestedAt = time.Now()
		stored := *entry
		if err = txn.Insert(tblQueue, &stored); err != nil {
			return fmt.Errorf("insert queue entry: %w", err)
		}
		return nil
	})
}

func (r *memdbQueueRepository) Remove(ctx context.Context, projectID, userID string) error {
	return db.MemdbWrite(ctx, r.db.MemDB, func(txn *memdb.Txn) error {
		if _, err := txn.DeleteAll(tblQueue, "id", projectID, userID); err != nil {
			return fmt.Errorf("delete queue entry: %w", err)
		}
		return nil
	})
}

func (r *memdbQueueRepository) Contains(ctx context.Context, projectID, userID string) (bool, error) {
	var found bool
	err := db.MemdbRead(ctx, r.db.MemDB, func(txn *memdb.Txn) error {
		raw, err := txn.First(tblQueue, "id", projectID, userID)
		if err != nil {
			return fmt.Errorf("find queue entry: %w", err)
		}
		found = raw != nil
		return nil
	})
	return found, err
}

func (r *memdbQueueRepository) List(ctx context.Context, projectID string) ([]*QueueEntry, error) {
	entries := make([]*QueueEntry, 0)
	err := db.MemdbRead(ctx, r.db.MemDB, func(txn *memdb.Txn) error {
		it, err := txn.Get(tblQueue, "project_id", projectID)
		if err != nil {
			return fmt.Errorf("find queue: %w", err)
		}
		for raw := it.Next(); raw != nil; raw = it.Next() {
			e := *raw.(*QueueEntry)
			entries = append(entries, &e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Position < entries[j].Position })
	return entries, nil
}

func (r *memdbQueueRepository) DeleteByProject(ctx context.Context, projectID string) error {
	return db.MemdbWrite(ctx, r.db.MemDB, func(txn *memdb.Txn) error {
		if _, err := txn.DeleteAll(tblQueue, "project_id", projectID); err != nil {
			return fmt.Errorf("delete queue: %w", err)
		}
		return nil
	})
}

package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-memdb"
	"github.com/yakoovad/scrumboard/internal/db"
)

type memdbUserRepository struct {
	db *MemDB
}

func NewMemdbUserRepository(m *MemDB) UserRepository {
	return &memdbUserRepository{db: m}
}

func (r *memdbUserRepository) Create(ctx context.Context, user *User) error {
	return db.MemdbWrite(ctx, r.db.MemDB, func(txn *memdb.Txn) error {
		raw, err := txn.First(tblUsers, "email", user.Email)
		if err != nil {
			return fmt.Errorf("find user by email: %w", err)
		}
		if raw != nil {
			return ErrAlreadyExists
		}

		user.CreatedAt = time.Now()
		stored := *user
		if err = txn.Insert(tblUsers, &stored); err != nil {
			return fmt.Errorf("insert user: %w", err)
		}
		return nil
	})
}

func (r *memdbUserRepository) Get(ctx context.Context, userID string) (*User, error) {
	return r.getBy(ctx, "id", userID)
}

func (r *memdbUserRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	return r.getBy(ctx, "email", email)
}

func (r *memdbUserRepository) getBy(ctx context.Context, index, value string) (*User, error) {
	var u *User
	err := db.MemdbRead(ctx, r.db.MemDB, func(txn *memdb.Txn) error {
		raw, err := txn.First(tblUsers, index, value)
		if err != nil {
			return fmt.Errorf("find user by %s: %w", index, err)
		}
		if raw == nil {
			return ErrNotFound
		}
		found := *raw.(*User)
		u = &found
		return nil
	})
	return u, err
}

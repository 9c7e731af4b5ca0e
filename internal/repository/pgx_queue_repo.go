package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/stephenafamo/bob/dialect/psql"
	"github.com/stephenafamo/bob/dialect/psql/dm"
	"github.com/stephenafamo/bob/dialect/psql/im"
	"github.com/stephenafamo/bob/dialect/psql/sm"
	"github.com/yakoovad/scrumboard/internal/db"
)

// QueueEntry is a pending join request. Username and Email are copied from
// the user at request time.
type QueueEntry struct {
	ProjectID   string    `db:"project_id"`
	UserID      string    `db:"user_id"`
	Username    string    `db:"username"`
	Email       string    `db:"email"`
	Position    int64     `db:"position"`
	RequestedAt time.Time `db:"requested_at"`
}

type QueueRepository interface {
	// Push appends entry; a second request of the same user yields ErrAlreadyExists.
	Push(ctx context.Context, entry *QueueEntry) error
	Remove(ctx context.Context, projectID, userID string) error
	Contains(ctx context.Context, projectID, userID string) (bool, error)
	List(ctx context.Context, projectID string) ([]*QueueEntry, error)
	DeleteByProject(ctx context.Context, projectID string) error
}

type pgxQueueRepository struct {
	pool *pgxpool.Pool
}

func NewPgxQueueRepository(pool *pgxpool.Pool) QueueRepository {
	return &pgxQueueRepository{pool: pool}
}

func (p *pgxQueueRepository) Push(ctx context.Context, entry *QueueEntry) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Insert(
		im.Into("project_queue", "project_id", "user_id", "username", "email"),
		im.Values(psql.Arg(entry.ProjectID), psql.Arg(entry.UserID), psql.Arg(entry.Username), psql.Arg(entry.Email)),
		im.Returning("position", "requested_at"),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return err
	}

	err = e.QueryRow(ctx, sql, args...).Scan(&entry.Position, &entry.RequestedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return ErrAlreadyExists
		case "23503":
			return ErrNotFound
		}
	}
	return err
}

func (p *pgxQueueRepository) Remove(ctx context.Context, projectID, userID string) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Delete(
		dm.From("project_queue"),
		dm.Where(
			psql.Quote("project_id").EQ(psql.Arg(projectID)).
				And(psql.Quote("user_id").EQ(psql.Arg(userID))),
		),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return err
	}

	_, err = e.Exec(ctx, sql, args...)
	return err
}

func (p *pgxQueueRepository) Contains(ctx context.Context, projectID, userID string) (bool, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns("user_id"),
		sm.From("project_queue"),
		sm.Where(
			psql.Quote("project_id").EQ(psql.Arg(projectID)).
				And(psql.Quote("user_id").EQ(psql.Arg(userID))),
		),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return false, err
	}

	var id string
	if err = e.QueryRow(ctx, sql, args...).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (p *pgxQueueRepository) List(ctx context.Context, projectID string) ([]*QueueEntry, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns("project_id", "user_id", "username", "email", "position", "requested_at"),
		sm.From("project_queue"),
		sm.Where(psql.Quote("project_id").EQ(psql.Arg(projectID))),
		sm.OrderBy("position"),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := e.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*QueueEntry, error) {
		q := &QueueEntry{}
		if err := row.Scan(&q.ProjectID, &q.UserID, &q.Username, &q.Email, &q.Position, &q.RequestedAt); err != nil {
			return nil, err
		}
		return q, nil
	})
}

func (p *pgxQueueRepository) DeleteByProject(ctx context.Context, projectID string) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Delete(
		dm.From("project_queue"),
		dm.Where(psql.Quote("project_id").EQ(psql.Arg(projectID))),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return err
	}

	_, err = e.Exec(ctx, sql, args...)
	return err
}

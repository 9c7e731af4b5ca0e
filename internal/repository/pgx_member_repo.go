package repository

import (
	"context"

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

// MemberRepository stores the member set of each project.
type MemberRepository interface {
	// Add is idempotent: adding an existing member is not an error.
	Add(ctx context.Context, projectID, userID string) error
	Remove(ctx context.Context, projectID, userID string) error
	IsMember(ctx context.Context, projectID, userID string) (bool, error)
	// List returns the member users in join order.
	List(ctx context.Context, projectID string) ([]*User, error)
	DeleteByProject(ctx context.Context, projectID string) error
}

type pgxMemberRepository struct {
	pool *pgxpool.Pool
}

func NewPgxMemberRepository(pool *pgxpool.Pool) MemberRepository {
	return &pgxMemberRepository{pool: pool}
}

func (p *pgxMemberRepository) Add(ctx context.Context, projectID, userID string) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Insert(
		im.Into("project_members", "project_id", "user_id"),
		im.Values(psql.Arg(projectID), psql.Arg(userID)),
		im.OnConflict(psql.Quote("project_id"), psql.Quote("user_id")).DoNothing(),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return err
	}

	_, err = e.Exec(ctx, sql, args...)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return ErrNotFound
	}

	return err
}

func (p *pgxMemberRepository) Remove(ctx context.Context, projectID, userID string) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Delete(
		dm.From("project_members"),
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

func (p *pgxMemberRepository) IsMember(ctx context.Context, projectID, userID string) (bool, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns("user_id"),
		sm.From("project_members"),
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

func (p *pgxMemberRepository) List(ctx context.Context, projectID string) ([]*User, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns(
			psql.Quote("users", "id"),
			psql.Quote("users", "email"),
			psql.Quote("users", "username"),
		),
		sm.From("project_members"),
		sm.InnerJoin("users").On(psql.Quote("users", "id").EQ(psql.Quote("project_members", "user_id"))),
		sm.Where(psql.Quote("project_members", "project_id").EQ(psql.Arg(projectID))),
		sm.OrderBy(psql.Quote("project_members", "joined_at")),
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

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*User, error) {
		u := &User{}
		if err := row.Scan(&u.ID, &u.Email, &u.Username); err != nil {
			return nil, err
		}
		return u, nil
	})
}

func (p *pgxMemberRepository) DeleteByProject(ctx context.Context, projectID string) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Delete(
		dm.From("project_members"),
		dm.Where(psql.Quote("project_id").EQ(psql.Arg(projectID))),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return err
	}

	_, err = e.Exec(ctx, sql, args...)
	return err
}

package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/stephenafamo/bob"
	"github.com/stephenafamo/bob/dialect/psql"
	"github.com/stephenafamo/bob/dialect/psql/dialect"
	"github.com/stephenafamo/bob/dialect/psql/dm"
	"github.com/stephenafamo/bob/dialect/psql/im"
	"github.com/stephenafamo/bob/dialect/psql/sm"
	"github.com/stephenafamo/bob/dialect/psql/um"
	"github.com/yakoovad/scrumboard/internal/db"
)

type Iteration struct {
	ID        string    `db:"id"`
	ProjectID string    `db:"project_id"`
	Title     string    `db:"title"`
	Deadline  time.Time `db:"deadline"`
	Position  int64     `db:"position"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

type IterationPatch struct {
	ID       string     `db:"id"`
	Title    *string    `db:"title"`
	Deadline *time.Time `db:"deadline"`
}

type IterationRepository interface {
	Create(ctx context.Context, iteration *Iteration) error
	Get(ctx context.Context, iterationID string) (*Iteration, error)
	Patch(ctx context.Context, patch *IterationPatch) (*Iteration, error)
	Delete(ctx context.Context, iterationID string) error
	// ListByProject returns the iterations of a project in creation order.
	ListByProject(ctx context.Context, projectID string) ([]*Iteration, error)
	DeleteByProject(ctx context.Context, projectID string) error
}

var iterationColumns = []any{"id", "project_id", "title", "deadline", "position", "created_at", "updated_at"}

type pgxIterationRepository struct {
	pool *pgxpool.Pool
}

func NewPgxIterationRepository(pool *pgxpool.Pool) IterationRepository {
	return &pgxIterationRepository{pool: pool}
}

func scanIteration(row pgx.Row) (*Iteration, error) {
	it := &Iteration{}
	err := row.Scan(
		&it.ID,
		&it.ProjectID,
		&it.Title,
		&it.Deadline,
		&it.Position,
		&it.CreatedAt,
		&it.UpdatedAt,
	)
	return it, err
}

func (p *pgxIterationRepository) Create(ctx context.Context, iteration *Iteration) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Insert(
		im.Into("iterations", "id", "project_id", "title", "deadline"),
		im.Values(psql.Arg(iteration.ID), psql.Arg(iteration.ProjectID), psql.Arg(iteration.Title), psql.Arg(iteration.Deadline)),
		im.Returning("position", "created_at", "updated_at"),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return err
	}

	err = e.QueryRow(ctx, sql, args...).Scan(&iteration.Position, &iteration.CreatedAt, &iteration.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return ErrAlreadyExists
		case "23503": // project_id does not exist
			return ErrNotFound
		}
	}
	return err
}

func (p *pgxIterationRepository) Get(ctx context.Context, iterationID string) (*Iteration, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns(iterationColumns...),
		sm.From("iterations"),
		sm.Where(psql.Quote("id").EQ(psql.Arg(iterationID))),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}

	it, err := scanIteration(e.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return it, nil
}

func (p *pgxIterationRepository) Patch(ctx context.Context, patch *IterationPatch) (*Iteration, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	sets := make([]bob.Mod[*dialect.UpdateQuery], 0, 3)
	if patch.Title != nil {
		sets = append(sets, um.SetCol("title").ToArg(*patch.Title))
	}
	if patch.Deadline != nil {
		sets = append(sets, um.SetCol("deadline").ToArg(*patch.Deadline))
	}
	sets = append(sets, um.SetCol("updated_at").ToArg(time.Now()))

	q := psql.Update(
		um.Table("iterations"),
		um.Where(psql.Quote("id").EQ(psql.Arg(patch.ID))),
		um.Returning(iterationColumns...),
	)

	q.Apply(sets...)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}

	it, err := scanIteration(e.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return it, nil
}

func (p *pgxIterationRepository) Delete(ctx context.Context, iterationID string) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Delete(
		dm.From("iterations"),
		dm.Where(psql.Quote("id").EQ(psql.Arg(iterationID))),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return err
	}

	commandTag, err := e.Exec(ctx, sql, args...)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" { // tasks still point at it
		return ErrReferenced
	}
	if err != nil {
		return err
	}

	if commandTag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

func (p *pgxIterationRepository) ListByProject(ctx context.Context, projectID string) ([]*Iteration, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns(iterationColumns...),
		sm.From("iterations"),
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

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Iteration, error) {
		return scanIteration(row)
	})
}

func (p *pgxIterationRepository) DeleteByProject(ctx context.Context, projectID string) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Delete(
		dm.From("iterations"),
		dm.Where(psql.Quote("project_id").EQ(psql.Arg(projectID))),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return err
	}

	_, err = e.Exec(ctx, sql, args...)
	return err
}

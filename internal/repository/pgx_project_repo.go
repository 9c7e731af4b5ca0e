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

type Project struct {
	ID          string    `db:"id"`
	Title       string    `db:"title"`
	Description string    `db:"description"`
	AdminID     string    `db:"admin_id"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

type ProjectPatch struct {
	ID          string  `db:"id"`
	Title       *string `db:"title"`
	Description *string `db:"description"`
}

type ProjectRepository interface {
	Create(ctx context.Context, project *Project) error
	Get(ctx context.Context, projectID string) (*Project, error)
	// GetForUpdate reads the project and holds its row lock until the
	// surrounding transaction ends.
	GetForUpdate(ctx context.Context, projectID string) (*Project, error)
	Patch(ctx context.Context, patch *ProjectPatch) (*Project, error)
	Delete(ctx context.Context, projectID string) error
	ListByMember(ctx context.Context, userID string) ([]*Project, error)
}

var projectColumns = []any{"id", "title", "description", "admin_id", "created_at", "updated_at"}

type pgxProjectRepository struct {
	pool *pgxpool.Pool
}

func NewPgxProjectRepository(pool *pgxpool.Pool) ProjectRepository {
	return &pgxProjectRepository{pool: pool}
}

func (p *pgxProjectRepository) Create(ctx context.Context, project *Project) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Insert(
		im.Into("projects", "id", "title", "description", "admin_id"),
		im.Values(psql.Arg(project.ID), psql.Arg(project.Title), psql.Arg(project.Description), psql.Arg(project.AdminID)),
		im.Returning("created_at", "updated_at"),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return err
	}

	err = e.QueryRow(ctx, sql, args...).Scan(&project.CreatedAt, &project.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return ErrAlreadyExists
		case "23503": // admin_id does not exist
			return ErrNotFound
		}
	}
	return err
}

func (p *pgxProjectRepository) Get(ctx context.Context, projectID string) (*Project, error) {
	return p.get(ctx, projectID, false)
}

func (p *pgxProjectRepository) GetForUpdate(ctx context.Context, projectID string) (*Project, error) {
	return p.get(ctx, projectID, true)
}

func (p *pgxProjectRepository) get(ctx context.Context, projectID string, lock bool) (*Project, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns(projectColumns...),
		sm.From("projects"),
		sm.Where(psql.Quote("id").EQ(psql.Arg(projectID))),
	)
	if lock {
		q.Apply(sm.ForUpdate("projects"))
	}

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}

	pr := &Project{}
	if err = e.QueryRow(ctx, sql, args...).Scan(
		&pr.ID,
		&pr.Title,
		&pr.Description,
		&pr.AdminID,
		&pr.CreatedAt,
		&pr.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return pr, nil
}

func (p *pgxProjectRepository) Patch(ctx context.Context, patch *ProjectPatch) (*Project, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	sets := make([]bob.Mod[*dialect.UpdateQuery], 0, 3)
	if patch.Title != nil {
		sets = append(sets, um.SetCol("title").ToArg(*patch.Title))
	}
	if patch.Description != nil {
		sets = append(sets, um.SetCol("description").ToArg(*patch.Description))
	}
	sets = append(sets, um.SetCol("updated_at").ToArg(time.Now()))

	q := psql.Update(
		um.Table("projects"),
		um.Where(psql.Quote("id").EQ(psql.Arg(patch.ID))),
		um.Returning(projectColumns...),
	)

	q.Apply(sets...)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}

	pr := &Project{}
	if err = e.QueryRow(ctx, sql, args...).Scan(
		&pr.ID,
		&pr.Title,
		&pr.Description,
		&pr.AdminID,
		&pr.CreatedAt,
		&pr.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return pr, nil
}

func (p *pgxProjectRepository) Delete(ctx context.Context, projectID string) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Delete(
		dm.From("projects"),
		dm.Where(psql.Quote("id").EQ(psql.Arg(projectID))),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return err
	}

	commandTag, err := e.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}

	if commandTag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

func (p *pgxProjectRepository) ListByMember(ctx context.Context, userID string) ([]*Project, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns(
			psql.Quote("projects", "id"),
			psql.Quote("projects", "title"),
			psql.Quote("projects", "description"),
			psql.Quote("projects", "admin_id"),
			psql.Quote("projects", "created_at"),
			psql.Quote("projects", "updated_at"),
		),
		sm.From("projects"),
		sm.InnerJoin("project_members").On(psql.Quote("project_members", "project_id").EQ(psql.Quote("projects", "id"))),
		sm.Where(psql.Quote("project_members", "user_id").EQ(psql.Arg(userID))),
		sm.OrderBy(psql.Quote("projects", "created_at")),
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

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Project, error) {
		pr := &Project{}
		if err := row.Scan(&pr.ID, &pr.Title, &pr.Description, &pr.AdminID, &pr.CreatedAt, &pr.UpdatedAt); err != nil {
			return nil, err
		}
		return pr, nil
	})
}

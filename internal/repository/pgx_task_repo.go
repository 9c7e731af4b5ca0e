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
	"github.com/yakoovad/scrumboard/internal/model"
)

// Task is a stored task. An empty IterationID places the task in the
// project backlog; Position orders tasks within a location.
type Task struct {
	ID          string      `db:"id"`
	ProjectID   string      `db:"project_id"`
	Title       string      `db:"title"`
	Description string      `db:"description"`
	StoryPoints int         `db:"story_points"`
	IterationID string      `db:"iteration_id"`
	Stage       model.Stage `db:"stage"`
	Position    int64       `db:"position"`
	CreatedAt   time.Time   `db:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at"`
}

func (t *Task) Location() model.Location {
	return model.Location{IterationID: t.IterationID, Stage: t.Stage}
}

type TaskPatch struct {
	ID          string  `db:"id"`
	Title       *string `db:"title"`
	Description *string `db:"description"`
	StoryPoints *int    `db:"story_points"`
}

type TaskRepository interface {
	Create(ctx context.Context, task *Task) error
	Get(ctx context.Context, taskID string) (*Task, error)
	Patch(ctx context.Context, patch *TaskPatch) (*Task, error)
	Delete(ctx context.Context, taskID string) error
	// ListByProject returns every task of a project ordered by position.
	ListByProject(ctx context.Context, projectID string) ([]*Task, error)
	ListByIteration(ctx context.Context, iterationID string) ([]*Task, error)
	// Relocate moves a task to the end of location to. With from set the
	// write only happens while the task still sits at *from, otherwise
	// ErrLocationMismatch is returned.
	Relocate(ctx context.Context, taskID string, from *model.Location, to model.Location) error
	DeleteByIteration(ctx context.Context, iterationID string) (int64, error)
	DeleteByProject(ctx context.Context, projectID string) error
}

var taskColumns = []any{
	"id", "project_id", "title", "description", "story_points",
	"iteration_id", "stage", "position", "created_at", "updated_at",
}

type pgxTaskRepository struct {
	pool *pgxpool.Pool
}

func NewPgxTaskRepository(pool *pgxpool.Pool) TaskRepository {
	return &pgxTaskRepository{pool: pool}
}

func nullString[T ~string](s T) *string {
	if s == "" {
		return nil
	}
	v := string(s)
	return &v
}

func scanTask(row pgx.Row) (*Task, error) {
	t := &Task{}
	var iterationID, stage *string
	if err := row.Scan(
		&t.ID,
		&t.ProjectID,
		&t.Title,
		&t.Description,
		&t.StoryPoints,
		&iterationID,
		&stage,
		&t.Position,
		&t.CreatedAt,
		&t.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if iterationID != nil {
		t.IterationID = *iterationID
	}
	if stage != nil {
		t.Stage = model.Stage(*stage)
	}
	return t, nil
}

func (p *pgxTaskRepository) Create(ctx context.Context, task *Task) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Insert(
		im.Into("tasks", "id", "project_id", "title", "description", "story_points", "iteration_id", "stage"),
		im.Values(
			psql.Arg(task.ID),
			psql.Arg(task.ProjectID),
			psql.Arg(task.Title),
			psql.Arg(task.Description),
			psql.Arg(task.StoryPoints),
			psql.Arg(nullString(task.IterationID)),
			psql.Arg(nullString(task.Stage)),
		),
		im.Returning("position", "created_at", "updated_at"),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return err
	}

	err = e.QueryRow(ctx, sql, args...).Scan(&task.Position, &task.CreatedAt, &task.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return ErrAlreadyExists
		case "23503": // project_id or iteration_id does not exist
			return ErrNotFound
		}
	}
	return err
}

func (p *pgxTaskRepository) Get(ctx context.Context, taskID string) (*Task, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns(taskColumns...),
		sm.From("tasks"),
		sm.Where(psql.Quote("id").EQ(psql.Arg(taskID))),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}

	t, err := scanTask(e.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return t, nil
}

func (p *pgxTaskRepository) Patch(ctx context.Context, patch *TaskPatch) (*Task, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	sets := make([]bob.Mod[*dialect.UpdateQuery], 0, 4)
	if patch.Title != nil {
		sets = append(sets, um.SetCol("title").ToArg(*patch.Title))
	}
	if patch.Description != nil {
		sets = append(sets, um.SetCol("description").ToArg(*patch.Description))
	}
	if patch.StoryPoints != nil {
		sets = append(sets, um.SetCol("story_points").ToArg(*patch.StoryPoints))
	}
	sets = append(sets, um.SetCol("updated_at").ToArg(time.Now()))

	q := psql.Update(
		um.Table("tasks"),
		um.Where(psql.Quote("id").EQ(psql.Arg(patch.ID))),
		um.Returning(taskColumns...),
	)

	q.Apply(sets...)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}

	t, err := scanTask(e.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return t, nil
}

func (p *pgxTaskRepository) Delete(ctx context.Context, taskID string) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Delete(
		dm.From("tasks"),
		dm.Where(psql.Quote("id").EQ(psql.Arg(taskID))),
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

func (p *pgxTaskRepository) ListByProject(ctx context.Context, projectID string) ([]*Task, error) {
	return p.list(ctx, "project_id", projectID)
}

func (p *pgxTaskRepository) ListByIteration(ctx context.Context, iterationID string) ([]*Task, error) {
	return p.list(ctx, "iteration_id", iterationID)
}

func (p *pgxTaskRepository) list(ctx context.Context, column, value string) ([]*Task, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns(taskColumns...),
		sm.From("tasks"),
		sm.Where(psql.Quote(column).EQ(psql.Arg(value))),
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

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Task, error) {
		return scanTask(row)
	})
}

func (p *pgxTaskRepository) Relocate(ctx context.Context, taskID string, from *model.Location, to model.Location) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Update(
		um.Table("tasks"),
		um.SetCol("iteration_id").ToArg(nullString(to.IterationID)),
		um.SetCol("stage").ToArg(nullString(to.Stage)),
		um.SetCol("position").To(psql.Raw("nextval('task_position_seq')")),
		um.SetCol("updated_at").ToArg(time.Now()),
		um.Where(psql.Quote("id").EQ(psql.Arg(taskID))),
	)

	if from != nil {
		if from.IsBacklog() {
			q.Apply(um.Where(psql.Raw("iteration_id IS NULL")))
		} else {
			q.Apply(
				um.Where(psql.Quote("iteration_id").EQ(psql.Arg(from.IterationID))),
				um.Where(psql.Quote("stage").EQ(psql.Arg(string(from.Stage)))),
			)
		}
	}

	sql, args, err := q.Build(ctx)
	if err != nil {
		return err
	}

	commandTag, err := e.Exec(ctx, sql, args...)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	if commandTag.RowsAffected() == 0 {
		if from == nil {
			return ErrNotFound
		}
		// The guard on the source location filtered the row out, unless the
		// task is gone altogether.
		if _, err = p.Get(ctx, taskID); err != nil {
			return err
		}
		return ErrLocationMismatch
	}

	return nil
}

func (p *pgxTaskRepository) DeleteByIteration(ctx context.Context, iterationID string) (int64, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Delete(
		dm.From("tasks"),
		dm.Where(psql.Quote("iteration_id").EQ(psql.Arg(iterationID))),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return 0, err
	}

	commandTag, err := e.Exec(ctx, sql, args...)
	if err != nil {
		return 0, err
	}

	return commandTag.RowsAffected(), nil
}

func (p *pgxTaskRepository) DeleteByProject(ctx context.Context, projectID string) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Delete(
		dm.From("tasks"),
		dm.Where(psql.Quote("project_id").EQ(psql.Arg(projectID))),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return err
	}

	_, err = e.Exec(ctx, sql, args...)
	return err
}

package service

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yakoovad/scrumboard/internal/db"
	"github.com/yakoovad/scrumboard/internal/metrics"
	"github.com/yakoovad/scrumboard/internal/model"
	"github.com/yakoovad/scrumboard/internal/repository"
	"golang.org/x/crypto/bcrypt"
)

type board struct {
	auth       *AuthService
	projects   *ProjectService
	iterations *IterationService
	tasks      *TaskService
}

func newBoard(t *testing.T, guarded bool) *board {
	t.Helper()

	m, err := repository.NewMemDB()
	require.NoError(t, err)
	met, err := metrics.NewMetrics()
	require.NoError(t, err)

	tx := db.NewMemdbTransactor(m.MemDB)
	users := repository.NewMemdbUserRepository(m)
	projects := repository.NewMemdbProjectRepository(m)
	members := repository.NewMemdbMemberRepository(m)
	queue := repository.NewMemdbQueueRepository(m)
	iterations := repository.NewMemdbIterationRepository(m)
	tasks := repository.NewMemdbTaskRepository(m)

	return &board{
		auth: NewAuthService().WithUserRepo(users).WithBcryptCost(bcrypt.MinCost),
		projects: NewProjectService(tx).
			WithUserRepo(users).
			WithProjectRepo(projects).
			WithMemberRepo(members).
			WithQueueRepo(queue).
			WithIterationRepo(iterations).
			WithTaskRepo(tasks).
			WithMetrics(met).
			WithGuardedWrites(guarded),
		iterations: NewIterationService(tx).
			WithProjectRepo(projects).
			WithMemberRepo(members).
			WithQueueRepo(queue).
			WithIterationRepo(iterations).
			WithTaskRepo(tasks).
			WithGuardedWrites(guarded),
		tasks: NewTaskService(tx).
			WithProjectRepo(projects).
			WithIterationRepo(iterations).
			WithTaskRepo(tasks).
			WithMetrics(met).
			WithGuardedWrites(guarded),
	}
}

func (b *board) signup(t *testing.T, email, username string) string {
	t.Helper()
	id, err := b.auth.Signup(context.Background(), email, username, "secret1")
	require.Nil(t, err)
	return id
}

func (b *board) project(t *testing.T, adminID string) string {
	t.Helper()
	p, err := b.projects.CreateProject(context.Background(), adminID, "board", "the board")
	require.Nil(t, err)
	return p.ID
}

func (b *board) iteration(t *testing.T, projectID string) string {
	t.Helper()
	it, err := b.iterations.CreateIteration(context.Background(), projectID, "sprint", time.Now().Add(7*24*time.Hour))
	require.Nil(t, err)
	return it.ID
}

func (b *board) task(t *testing.T, projectID, iterationID, title string) string {
	t.Helper()
	task, err := b.tasks.CreateTask(context.Background(), projectID, iterationID, model.TaskContent{Title: title, Description: "d", StoryPoints: 3})
	require.Nil(t, err)
	return task.ID
}

func (b *board) view(t *testing.T, projectID, callerID string) *model.Project {
	t.Helper()
	p, err := b.projects.GetProject(context.Background(), projectID, callerID)
	require.Nil(t, err)
	return p
}

// assertPlacement checks that every task of the project sits in exactly one
// location.
func (b *board) assertPlacement(t *testing.T, projectID string) {
	t.Helper()
	violations, err := b.tasks.AuditPlacement(context.Background(), projectID)
	require.Nil(t, err)
	assert.Empty(t, violations)
}

func taskIDs(tasks []*model.Task) []string {
	ids := make([]string, 0, len(tasks))
	for _, t := range tasks {
		ids = append(ids, t.ID)
	}
	return ids
}

func TestBoard_MembershipScenario(t *testing.T) {
	b := newBoard(t, true)
	ctx := context.Background()

	admin := b.signup(t, "a@example.com", "alice")
	bob := b.signup(t, "b@example.com", "bob")
	p := b.project(t, admin)

	view := b.view(t, p, admin)
	require.Len(t, view.Members, 1)
	assert.Equal(t, admin, view.Members[0].ID)

	require.Nil(t, b.projects.RequestJoin(ctx, p, bob))
	view = b.view(t, p, admin)
	require.Len(t, view.Queue, 1)
	assert.Equal(t, bob, view.Queue[0].UserID)
	assert.Equal(t, "bob", view.Queue[0].Username)

	err := b.projects.RequestJoin(ctx, p, bob)
	require.NotNil(t, err)
	assert.Equal(t, ErrorCodeConflict, err.Code)

	accepted, err := b.projects.AcceptUser(ctx, p, bob)
	require.Nil(t, err)
	assert.Equal(t, "bob", accepted.Username)

	view = b.view(t, p, admin)
	assert.Len(t, view.Members, 2)
	assert.Empty(t, view.Queue)
	assert.True(t, view.HasMember(bob))
	assert.False(t, view.HasQueued(bob))

	err = b.projects.RequestJoin(ctx, p, bob)
	require.NotNil(t, err)
	assert.Equal(t, ErrorCodeConflict, err.Code)

	err = b.projects.LeaveProject(ctx, p, admin)
	require.NotNil(t, err)
	assert.Equal(t, ErrorCodeForbidden, err.Code)
	assert.True(t, b.view(t, p, admin).HasMember(admin))

	require.Nil(t, b.projects.LeaveProject(ctx, p, bob))
	assert.False(t, b.view(t, p, admin).HasMember(bob))
}

func TestBoard_QueueHiddenFromMembers(t *testing.T) {
	b := newBoard(t, true)
	ctx := context.Background()

	admin := b.signup(t, "a@example.com", "alice")
	bob := b.signup(t, "b@example.com", "bob")
	carol := b.signup(t, "c@example.com", "carol")
	p := b.project(t, admin)

	require.Nil(t, b.projects.RequestJoin(ctx, p, bob))
	_, err := b.projects.AcceptUser(ctx, p, bob)
	require.Nil(t, err)
	require.Nil(t, b.projects.RequestJoin(ctx, p, carol))

	assert.Len(t, b.view(t, p, admin).Queue, 1)
	assert.Empty(t, b.view(t, p, bob).Queue)

	require.Nil(t, b.projects.RejectUser(ctx, p, carol))
	assert.Empty(t, b.view(t, p, admin).Queue)
	assert.False(t, b.view(t, p, admin).HasMember(carol))
}

func TestBoard_MoveScenario(t *testing.T) {
	for _, guarded := range []bool{true, false} {
		t.Run(map[bool]string{true: "guarded", false: "unguarded"}[guarded], func(t *testing.T) {
			b := newBoard(t, guarded)
			ctx := context.Background()

			admin := b.signup(t, "a@example.com", "alice")
			p := b.project(t, admin)
			it := b.iteration(t, p)
			task := b.task(t, p, it, "T")

			view := b.view(t, p, admin)
			assert.Equal(t, []string{task}, taskIDs(view.Iterations[0].Tasks.Todo))

			spec := model.MoveSpec{From: model.InIteration(it, model.StageTodo), To: model.Backlog}
			id, err := b.tasks.Move(ctx, p, task, spec)
			require.Nil(t, err)
			assert.Equal(t, task, id)

			view = b.view(t, p, admin)
			assert.Empty(t, view.Iterations[0].Tasks.Todo)
			assert.Equal(t, []string{task}, taskIDs(view.Backlog))

			_, err = b.tasks.Move(ctx, p, task, spec)
			require.NotNil(t, err)
			assert.Equal(t, ErrorCodeInvalidRequest, err.Code)
			assert.Equal(t, []string{task}, taskIDs(b.view(t, p, admin).Backlog))

			b.assertPlacement(t, p)
		})
	}
}

func TestBoard_MoveErrors(t *testing.T) {
	for _, guarded := range []bool{true, false} {
		t.Run(map[bool]string{true: "guarded", false: "unguarded"}[guarded], func(t *testing.T) {
			testMoveErrors(t, guarded)
		})
	}
}

func testMoveErrors(t *testing.T, guarded bool) {
	b := newBoard(t, guarded)
	ctx := context.Background()

	admin := b.signup(t, "a@example.com", "alice")
	p := b.project(t, admin)
	other := b.project(t, admin)
	it := b.iteration(t, p)
	foreign := b.iteration(t, other)
	task := b.task(t, p, "", "T")

	tests := []struct {
		name      string
		projectID string
		taskID    string
		spec      model.MoveSpec
		errorCode ErrorCode
	}{
		{
			name:      "unknown project",
			projectID: "ghost",
			taskID:    task,
			spec:      model.MoveSpec{From: model.Backlog, To: model.InIteration(it, model.StageTodo)},
			errorCode: ErrorCodeNotFound,
		},
		{
			name:      "unknown task",
			projectID: p,
			taskID:    "ghost",
			spec:      model.MoveSpec{From: model.Backlog, To: model.InIteration(it, model.StageTodo)},
			errorCode: ErrorCodeNotFound,
		},
		{
			name:      "task of another project",
			projectID: other,
			taskID:    task,
			spec:      model.MoveSpec{From: model.Backlog, To: model.Backlog},
			errorCode: ErrorCodeNotFound,
		},
		{
			name:      "unknown source iteration",
			projectID: p,
			taskID:    task,
			spec:      model.MoveSpec{From: model.InIteration("ghost", model.StageTodo), To: model.Backlog},
			errorCode: ErrorCodeNotFound,
		},
		{
			name:      "source mismatch",
			projectID: p,
			taskID:    task,
			spec:      model.MoveSpec{From: model.InIteration(it, model.StageDoing), To: model.Backlog},
			errorCode: ErrorCodeInvalidRequest,
		},
		{
			name:      "source mismatch wins over unknown destination",
			projectID: p,
			taskID:    task,
			spec:      model.MoveSpec{From: model.InIteration(it, model.StageDone), To: model.InIteration("ghost", model.StageTodo)},
			errorCode: ErrorCodeInvalidRequest,
		},
		{
			name:      "unknown destination iteration",
			projectID: p,
			taskID:    task,
			spec:      model.MoveSpec{From: model.Backlog, To: model.InIteration("ghost", model.StageTodo)},
			errorCode: ErrorCodeNotFound,
		},
		{
			name:      "destination iteration of another project",
			projectID: p,
			taskID:    task,
			spec:      model.MoveSpec{From: model.Backlog, To: model.InIteration(foreign, model.StageTodo)},
			errorCode: ErrorCodeNotFound,
		},
		{
			name:      "invalid stage",
			projectID: p,
			taskID:    task,
			spec:      model.MoveSpec{From: model.Backlog, To: model.InIteration(it, "REVIEW")},
			errorCode: ErrorCodeInvalidRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := b.tasks.Move(ctx, tt.projectID, tt.taskID, tt.spec)

			require.NotNil(t, err)
			assert.Equal(t, tt.errorCode, err.Code)
			assert.Equal(t, []string{task}, taskIDs(b.view(t, p, admin).Backlog))
			b.assertPlacement(t, p)
		})
	}
}

func TestBoard_MoveRoundTrip(t *testing.T) {
	b := newBoard(t, true)
	ctx := context.Background()

	admin := b.signup(t, "a@example.com", "alice")
	p := b.project(t, admin)
	it := b.iteration(t, p)
	t1 := b.task(t, p, "", "T1")
	t2 := b.task(t, p, "", "T2")
	t3 := b.task(t, p, it, "T3")

	snapshot := func() map[string][]string {
		view := b.view(t, p, admin)
		lists := map[string][]string{
			"backlog": taskIDs(view.Backlog),
			"TODO":    taskIDs(view.Iterations[0].Tasks.Todo),
			"DOING":   taskIDs(view.Iterations[0].Tasks.Doing),
			"DONE":    taskIDs(view.Iterations[0].Tasks.Done),
		}
		for _, ids := range lists {
			sort.Strings(ids)
		}
		return lists
	}

	before := snapshot()

	a := model.Backlog
	c := model.InIteration(it, model.StageDoing)
	_, err := b.tasks.Move(ctx, p, t1, model.MoveSpec{From: a, To: c})
	require.Nil(t, err)
	b.assertPlacement(t, p)

	_, err = b.tasks.Move(ctx, p, t1, model.MoveSpec{From: c, To: a})
	require.Nil(t, err)
	b.assertPlacement(t, p)

	assert.Equal(t, before, snapshot())
	assert.ElementsMatch(t, []string{t1, t2}, before["backlog"])
	assert.Equal(t, []string{t3}, before["TODO"])
}

func TestBoard_MoveToSameLocationAppends(t *testing.T) {
	b := newBoard(t, true)
	ctx := context.Background()

	admin := b.signup(t, "a@example.com", "alice")
	p := b.project(t, admin)
	t1 := b.task(t, p, "", "T1")
	t2 := b.task(t, p, "", "T2")

	_, err := b.tasks.Move(ctx, p, t1, model.MoveSpec{From: model.Backlog, To: model.Backlog})
	require.Nil(t, err)

	assert.Equal(t, []string{t2, t1}, taskIDs(b.view(t, p, admin).Backlog))
	b.assertPlacement(t, p)
}

func TestBoard_ConcurrentMoves(t *testing.T) {
	b := newBoard(t, true)
	ctx := context.Background()

	admin := b.signup(t, "a@example.com", "alice")
	p := b.project(t, admin)
	it := b.iteration(t, p)
	task := b.task(t, p, "", "T")

	destinations := []model.Location{
		model.InIteration(it, model.StageTodo),
		model.InIteration(it, model.StageDoing),
		model.InIteration(it, model.StageDone),
		model.InIteration(it, model.StageTodo),
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	for _, to := range destinations {
		wg.Add(1)
		go func(to model.Location) {
			defer wg.Done()
			_, err := b.tasks.Move(ctx, p, task, model.MoveSpec{From: model.Backlog, To: to})

			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
			} else if err.Code == ErrorCodeInvalidRequest {
				rejected++
			}
		}(to)
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, len(destinations)-1, rejected)
	b.assertPlacement(t, p)
}

func TestBoard_DeleteIteration(t *testing.T) {
	tests := []struct {
		name        string
		deleteTasks bool
	}{
		{name: "tasks demoted to backlog", deleteTasks: false},
		{name: "tasks deleted", deleteTasks: true},
	}

	for _, guarded := range []bool{true, false} {
		for _, tt := range tests {
			name := tt.name
			if !guarded {
				name += " unguarded"
			}
			t.Run(name, func(t *testing.T) {
				b := newBoard(t, guarded)
				ctx := context.Background()

				admin := b.signup(t, "a@example.com", "alice")
				p := b.project(t, admin)
				it := b.iteration(t, p)
				kept := b.iteration(t, p)
				backlog := b.task(t, p, "", "B")
				t1 := b.task(t, p, it, "T1")
				t2 := b.task(t, p, it, "T2")
				t3 := b.task(t, p, it, "T3")
				other := b.task(t, p, kept, "O")

				doing := model.InIteration(it, model.StageDoing)
				for _, id := range []string{t1, t2} {
					_, err := b.tasks.Move(ctx, p, id, model.MoveSpec{From: model.InIteration(it, model.StageTodo), To: doing})
					require.Nil(t, err)
				}

				view, err := b.iterations.DeleteIteration(ctx, p, it, tt.deleteTasks, admin)
				require.Nil(t, err)

				require.Len(t, view.Iterations, 1)
				assert.Equal(t, kept, view.Iterations[0].ID)
				assert.Equal(t, []string{other}, taskIDs(view.Iterations[0].Tasks.Todo))

				if tt.deleteTasks {
					assert.Equal(t, []string{backlog}, taskIDs(view.Backlog))
					for _, id := range []string{t1, t2, t3} {
						_, err := b.tasks.DeleteTask(ctx, p, id)
						require.NotNil(t, err)
						assert.Equal(t, ErrorCodeNotFound, err.Code)
					}
				} else {
					assert.Equal(t, []string{backlog, t3, t1, t2}, taskIDs(view.Backlog))
				}

				b.assertPlacement(t, p)
			})
		}
	}
}

func TestBoard_DeleteIterationErrors(t *testing.T) {
	b := newBoard(t, true)
	ctx := context.Background()

	admin := b.signup(t, "a@example.com", "alice")
	p := b.project(t, admin)
	other := b.project(t, admin)
	foreign := b.iteration(t, other)

	_, err := b.iterations.DeleteIteration(ctx, "ghost", foreign, false, admin)
	require.NotNil(t, err)
	assert.Equal(t, ErrorCodeNotFound, err.Code)

	_, err = b.iterations.DeleteIteration(ctx, p, "ghost", false, admin)
	require.NotNil(t, err)
	assert.Equal(t, ErrorCodeNotFound, err.Code)

	_, err = b.iterations.DeleteIteration(ctx, p, foreign, true, admin)
	require.NotNil(t, err)
	assert.Equal(t, ErrorCodeNotFound, err.Code)
	assert.Len(t, b.view(t, other, admin).Iterations, 1)
}

func TestBoard_UpdateIterationKeepsBoard(t *testing.T) {
	b := newBoard(t, true)
	ctx := context.Background()

	admin := b.signup(t, "a@example.com", "alice")
	p := b.project(t, admin)
	it := b.iteration(t, p)
	task := b.task(t, p, it, "T")

	deadline := time.Date(2030, 1, 2, 0, 0, 0, 0, time.UTC)
	updated, err := b.iterations.UpdateIteration(ctx, p, it, "renamed", deadline)
	require.Nil(t, err)

	assert.Equal(t, "renamed", updated.Title)
	assert.True(t, deadline.Equal(updated.Deadline))
	assert.Equal(t, []string{task}, taskIDs(updated.Tasks.Todo))

	_, err = b.iterations.UpdateIteration(ctx, p, "ghost", "renamed", deadline)
	require.NotNil(t, err)
	assert.Equal(t, ErrorCodeNotFound, err.Code)
}

func TestBoard_TaskLifecycle(t *testing.T) {
	b := newBoard(t, true)
	ctx := context.Background()

	admin := b.signup(t, "a@example.com", "alice")
	p := b.project(t, admin)
	it := b.iteration(t, p)

	_, err := b.tasks.CreateTask(ctx, p, "ghost", model.TaskContent{Title: "T"})
	require.NotNil(t, err)
	assert.Equal(t, ErrorCodeNotFound, err.Code)

	_, err = b.tasks.CreateTask(ctx, "ghost", "", model.TaskContent{Title: "T"})
	require.NotNil(t, err)
	assert.Equal(t, ErrorCodeNotFound, err.Code)

	task := b.task(t, p, it, "T")
	_, err = b.tasks.Move(ctx, p, task, model.MoveSpec{From: model.InIteration(it, model.StageTodo), To: model.InIteration(it, model.StageDone)})
	require.Nil(t, err)

	updated, err := b.tasks.UpdateContent(ctx, p, task, model.TaskContent{Title: "new", Description: "desc", StoryPoints: 5})
	require.Nil(t, err)
	assert.Equal(t, "new", updated.Title)
	assert.Equal(t, 5, updated.StoryPoints)
	assert.Equal(t, model.InIteration(it, model.StageDone), updated.Location)

	id, err := b.tasks.DeleteTask(ctx, p, task)
	require.Nil(t, err)
	assert.Equal(t, task, id)

	view := b.view(t, p, admin)
	assert.Empty(t, view.Iterations[0].Tasks.Done)
	b.assertPlacement(t, p)

	_, err = b.tasks.DeleteTask(ctx, p, task)
	require.NotNil(t, err)
	assert.Equal(t, ErrorCodeNotFound, err.Code)
}

func TestBoard_DeleteProject(t *testing.T) {
	b := newBoard(t, true)
	ctx := context.Background()

	admin := b.signup(t, "a@example.com", "alice")
	p := b.project(t, admin)
	it := b.iteration(t, p)
	b.task(t, p, "", "B")
	b.task(t, p, it, "T")

	require.Nil(t, b.projects.DeleteProject(ctx, p))

	_, err := b.projects.GetProject(ctx, p, admin)
	require.NotNil(t, err)
	assert.Equal(t, ErrorCodeNotFound, err.Code)

	list, err := b.projects.ListProjects(ctx, admin)
	require.Nil(t, err)
	assert.Empty(t, list)

	err = b.projects.DeleteProject(ctx, p)
	require.NotNil(t, err)
	assert.Equal(t, ErrorCodeNotFound, err.Code)
}

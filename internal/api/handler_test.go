package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yakoovad/scrumboard/internal/auth"
	"github.com/yakoovad/scrumboard/internal/db"
	"github.com/yakoovad/scrumboard/internal/metrics"
	"github.com/yakoovad/scrumboard/internal/repository"
	"github.com/yakoovad/scrumboard/internal/service"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type testServer struct {
	e *echo.Echo
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	auth.TokenSecretKey = "test-secret"

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

	h := NewHandler(zap.NewNop()).
		WithMetrics(met).
		WithAuthService(service.NewAuthService().WithUserRepo(users).WithBcryptCost(bcrypt.MinCost)).
		WithProjectService(service.NewProjectService(tx).
			WithUserRepo(users).
			WithProjectRepo(projects).
			WithMemberRepo(members).
			WithQueueRepo(queue).
			WithIterationRepo(iterations).
			WithTaskRepo(tasks).
			WithMetrics(met)).
		WithIterationService(service.NewIterationService(tx).
			WithProjectRepo(projects).
			WithMemberRepo(members).
			WithQueueRepo(queue).
			WithIterationRepo(iterations).
			WithTaskRepo(tasks)).
		WithTaskService(service.NewTaskService(tx).
			WithProjectRepo(projects).
			WithIterationRepo(iterations).
			WithTaskRepo(tasks).
			WithMetrics(met))

	e := echo.New()
	h.RegisterRoutes(e)

	return &testServer{e: e}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)

	res := map[string]any{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	}
	return rec.Code, res
}

// login signs a user up and returns its id and token.
func (s *testServer) login(t *testing.T, email, username string) (string, string) {
	t.Helper()

	code, res := s.do(t, http.MethodPut, "/auth/signup", "", echo.Map{
		"email": email, "username": username, "password": "secret1",
	})
	require.Equal(t, http.StatusCreated, code, res)

	code, res = s.do(t, http.MethodPost, "/auth/login", "", echo.Map{
		"email": email, "password": "secret1",
	})
	require.Equal(t, http.StatusOK, code, res)

	return res["userId"].(string), res["token"].(string)
}

func (s *testServer) createProject(t *testing.T, token string) string {
	t.Helper()

	code, res := s.do(t, http.MethodPut, "/projects", token, echo.Map{"title": "Board", "description": "Team board"})
	require.Equal(t, http.StatusCreated, code, res)
	return res["project"].(map[string]any)["_id"].(string)
}

func (s *testServer) createIteration(t *testing.T, token, projectID string) string {
	t.Helper()

	code, res := s.do(t, http.MethodPut, "/projects/"+projectID+"/iterations", token, echo.Map{
		"title": "Sprint 1", "deadline": "2030-01-15",
	})
	require.Equal(t, http.StatusCreated, code, res)
	return res["iteration"].(map[string]any)["_id"].(string)
}

func (s *testServer) createTask(t *testing.T, token, projectID string, body echo.Map) string {
	t.Helper()

	code, res := s.do(t, http.MethodPut, "/projects/"+projectID+"/tasks", token, body)
	require.Equal(t, http.StatusCreated, code, res)
	return res["task"].(map[string]any)["_id"].(string)
}

func TestHandler_Signup(t *testing.T) {
	s := newTestServer(t)
	s.login(t, "ann@example.com", "ann")

	tests := []struct {
		name       string
		body       echo.Map
		wantStatus int
	}{
		{
			name:       "duplicate email",
			body:       echo.Map{"email": "ANN@example.com", "username": "ann2", "password": "secret1"},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "bad username",
			body:       echo.Map{"email": "bob@example.com", "username": "bob!", "password": "secret1"},
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "cyrillic username",
			body:       echo.Map{"email": "ivan@example.com", "username": "Иван_1", "password": "secret1"},
			wantStatus: http.StatusCreated,
		},
		{
			name:       "short password",
			body:       echo.Map{"email": "eve@example.com", "username": "eve", "password": "abc"},
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "bad email",
			body:       echo.Map{"email": "nope", "username": "nope", "password": "secret1"},
			wantStatus: http.StatusUnprocessableEntity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, res := s.do(t, http.MethodPut, "/auth/signup", "", tt.body)
			assert.Equal(t, tt.wantStatus, code, res)
			assert.NotEmpty(t, res["message"])
		})
	}
}

func TestHandler_Login(t *testing.T) {
	s := newTestServer(t)
	s.login(t, "ann@example.com", "ann")

	code, res := s.do(t, http.MethodPost, "/auth/login", "", echo.Map{"email": "ann@example.com", "password": "wrong12"})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "Password is incorrect.", res["message"])

	code, res = s.do(t, http.MethodPost, "/auth/login", "", echo.Map{"email": "bob@example.com", "password": "secret1"})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "No user with this email found.", res["message"])
}

func TestHandler_Guards(t *testing.T) {
	s := newTestServer(t)
	_, adminToken := s.login(t, "ann@example.com", "ann")
	_, otherToken := s.login(t, "bob@example.com", "bob")
	projectID := s.createProject(t, adminToken)

	tests := []struct {
		name       string
		method     string
		path       string
		token      string
		wantStatus int
	}{
		{"no token", http.MethodGet, "/projects", "", http.StatusUnauthorized},
		{"garbage token", http.MethodGet, "/projects", "garbage", http.StatusUnauthorized},
		{"not admin", http.MethodDelete, "/projects/" + projectID, otherToken, http.StatusForbidden},
		{"admin of missing project", http.MethodDelete, "/projects/missing", adminToken, http.StatusNotFound},
		{"not member", http.MethodPut, "/projects/" + projectID + "/tasks", otherToken, http.StatusForbidden},
		{"member of missing project", http.MethodPut, "/projects/missing/tasks", adminToken, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, res := s.do(t, tt.method, tt.path, tt.token, echo.Map{})
			assert.Equal(t, tt.wantStatus, code, res)
		})
	}
}

func TestHandler_Membership(t *testing.T) {
	s := newTestServer(t)
	_, adminToken := s.login(t, "ann@example.com", "ann")
	bobID, bobToken := s.login(t, "bob@example.com", "bob")
	projectID := s.createProject(t, adminToken)

	code, _ := s.do(t, http.MethodPost, "/projects/"+projectID+"/join", bobToken, nil)
	require.Equal(t, http.StatusOK, code)

	code, res := s.do(t, http.MethodPost, "/projects/"+projectID+"/join", bobToken, nil)
	assert.Equal(t, http.StatusBadRequest, code, res)

	code, res = s.do(t, http.MethodGet, "/projects/"+projectID, adminToken, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, res["project"].(map[string]any)["queue"], 1)

	code, res = s.do(t, http.MethodPost, "/projects/"+projectID+"/acceptUser/"+bobID, adminToken, nil)
	require.Equal(t, http.StatusOK, code, res)

	code, res = s.do(t, http.MethodGet, "/projects/"+projectID, bobToken, nil)
	require.Equal(t, http.StatusOK, code)
	project := res["project"].(map[string]any)
	assert.Len(t, project["users"], 2)
	assert.Empty(t, project["queue"])

	code, res = s.do(t, http.MethodGet, "/projects", bobToken, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, res["projects"], 1)
}

func TestHandler_MoveTask(t *testing.T) {
	s := newTestServer(t)
	_, token := s.login(t, "ann@example.com", "ann")
	projectID := s.createProject(t, token)
	iterationID := s.createIteration(t, token, projectID)
	taskID := s.createTask(t, token, projectID, echo.Map{"title": "T", "description": "D", "storyPoints": 3})

	movePath := "/projects/" + projectID + "/tasks/" + taskID + "/storage"
	fromBacklog := echo.Map{"storageData": echo.Map{
		"moveFromBacklog": true,
		"moveToIteration": echo.Map{"iterationId": iterationID, "storage": "DOING"},
	}}

	code, res := s.do(t, http.MethodPost, movePath, token, fromBacklog)
	require.Equal(t, http.StatusOK, code, res)
	assert.Equal(t, taskID, res["taskId"])

	code, res = s.do(t, http.MethodPost, movePath, token, fromBacklog)
	assert.Equal(t, http.StatusUnprocessableEntity, code, res)

	code, res = s.do(t, http.MethodGet, "/projects/"+projectID, token, nil)
	require.Equal(t, http.StatusOK, code)
	project := res["project"].(map[string]any)
	assert.Empty(t, project["backlog"])
	board := project["iterations"].([]any)[0].(map[string]any)["tasks"].(map[string]any)
	assert.Len(t, board["DOING"], 1)
	assert.Empty(t, board["TODO"])
}

func TestHandler_MoveTask_InvalidPayload(t *testing.T) {
	s := newTestServer(t)
	_, token := s.login(t, "ann@example.com", "ann")
	projectID := s.createProject(t, token)
	iterationID := s.createIteration(t, token, projectID)
	taskID := s.createTask(t, token, projectID, echo.Map{"title": "T", "description": "D", "storyPoints": 1})

	movePath := "/projects/" + projectID + "/tasks/" + taskID + "/storage"
	to := echo.Map{"iterationId": iterationID, "storage": "TODO"}

	tests := []struct {
		name string
		data echo.Map
	}{
		{"no source", echo.Map{"moveToIteration": to}},
		{"two sources", echo.Map{"moveFromBacklog": true, "moveFromIteration": to, "moveToBacklog": true}},
		{"no destination", echo.Map{"moveFromBacklog": true}},
		{"unknown stage", echo.Map{"moveFromBacklog": true, "moveToIteration": echo.Map{"iterationId": iterationID, "storage": "REVIEW"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, res := s.do(t, http.MethodPost, movePath, token, echo.Map{"storageData": tt.data})
			assert.Equal(t, http.StatusUnprocessableEntity, code, res)
		})
	}
}

func TestHandler_CreateTask_Validation(t *testing.T) {
	s := newTestServer(t)
	_, token := s.login(t, "ann@example.com", "ann")
	projectID := s.createProject(t, token)

	tests := []struct {
		name       string
		body       echo.Map
		wantStatus int
	}{
		{"zero points", echo.Map{"title": "T", "description": "D", "storyPoints": 0}, http.StatusCreated},
		{"max points", echo.Map{"title": "T", "description": "D", "storyPoints": 5}, http.StatusCreated},
		{"too many points", echo.Map{"title": "T", "description": "D", "storyPoints": 6}, http.StatusUnprocessableEntity},
		{"missing points", echo.Map{"title": "T", "description": "D"}, http.StatusUnprocessableEntity},
		{"missing title", echo.Map{"description": "D", "storyPoints": 2}, http.StatusUnprocessableEntity},
		{"blank title", echo.Map{"title": " ", "description": "D", "storyPoints": 2}, http.StatusUnprocessableEntity},
		{"blank description", echo.Map{"title": "T", "description": "   ", "storyPoints": 2}, http.StatusUnprocessableEntity},
		{"unknown iteration", echo.Map{"title": "T", "description": "D", "storyPoints": 2, "iterationId": "missing"}, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, res := s.do(t, http.MethodPut, "/projects/"+projectID+"/tasks", token, tt.body)
			assert.Equal(t, tt.wantStatus, code, res)
		})
	}
}

func TestHandler_CreateProject_Validation(t *testing.T) {
	s := newTestServer(t)
	_, token := s.login(t, "ann@example.com", "ann")

	tests := []struct {
		name       string
		body       echo.Map
		wantStatus int
		wantTitle  string
	}{
		{"valid", echo.Map{"title": "Board", "description": "Team board"}, http.StatusCreated, "Board"},
		{"padded title is trimmed", echo.Map{"title": "  Board  ", "description": " Team board "}, http.StatusCreated, "Board"},
		{"blank title", echo.Map{"title": "   ", "description": "Team board"}, http.StatusUnprocessableEntity, ""},
		{"blank description", echo.Map{"title": "Board", "description": "   "}, http.StatusUnprocessableEntity, ""},
		{"short after trim", echo.Map{"title": " ab ", "description": "Team board"}, http.StatusUnprocessableEntity, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, res := s.do(t, http.MethodPut, "/projects", token, tt.body)
			require.Equal(t, tt.wantStatus, code, res)
			if tt.wantStatus == http.StatusCreated {
				assert.Equal(t, tt.wantTitle, res["project"].(map[string]any)["title"])
			}
		})
	}
}

func TestHandler_UpdateTask_TrimsContent(t *testing.T) {
	s := newTestServer(t)
	_, token := s.login(t, "ann@example.com", "ann")
	projectID := s.createProject(t, token)
	taskID := s.createTask(t, token, projectID, echo.Map{"title": "T", "description": "D", "storyPoints": 1})

	path := "/projects/" + projectID + "/tasks/" + taskID
	code, res := s.do(t, http.MethodPatch, path, token, echo.Map{"title": "  ", "description": "D", "storyPoints": 1})
	assert.Equal(t, http.StatusUnprocessableEntity, code, res)

	code, res = s.do(t, http.MethodPatch, path, token, echo.Map{"title": " Fix login ", "description": "D", "storyPoints": 1})
	require.Equal(t, http.StatusOK, code, res)
	assert.Equal(t, "Fix login", res["task"].(map[string]any)["title"])
}

func TestHandler_DeleteIteration(t *testing.T) {
	s := newTestServer(t)
	_, token := s.login(t, "ann@example.com", "ann")
	projectID := s.createProject(t, token)
	iterationID := s.createIteration(t, token, projectID)
	s.createTask(t, token, projectID, echo.Map{"title": "T", "description": "D", "storyPoints": 2, "iterationId": iterationID})

	code, res := s.do(t, http.MethodDelete, "/projects/"+projectID+"/iterations/"+iterationID, token, nil)
	require.Equal(t, http.StatusOK, code, res)
	project := res["project"].(map[string]any)
	assert.Empty(t, project["iterations"])
	assert.Len(t, project["backlog"], 1)

	code, _ = s.do(t, http.MethodDelete, "/projects/"+projectID+"/iterations/"+iterationID, token, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestHandler_DeleteIteration_WithTasks(t *testing.T) {
	s := newTestServer(t)
	_, token := s.login(t, "ann@example.com", "ann")
	projectID := s.createProject(t, token)
	iterationID := s.createIteration(t, token, projectID)
	s.createTask(t, token, projectID, echo.Map{"title": "T", "description": "D", "storyPoints": 2, "iterationId": iterationID})

	code, res := s.do(t, http.MethodDelete, "/projects/"+projectID+"/iterations/"+iterationID+"?deleteTasks=true", token, nil)
	require.Equal(t, http.StatusOK, code, res)
	project := res["project"].(map[string]any)
	assert.Empty(t, project["iterations"])
	assert.Empty(t, project["backlog"])
}

func TestHandler_CreateIteration_Deadline(t *testing.T) {
	s := newTestServer(t)
	_, token := s.login(t, "ann@example.com", "ann")
	projectID := s.createProject(t, token)

	tests := []struct {
		name       string
		deadline   string
		wantStatus int
	}{
		{"date", "2030-01-15", http.StatusCreated},
		{"timestamp", "2030-01-15T10:00:00Z", http.StatusCreated},
		{"garbage", "next week", http.StatusUnprocessableEntity},
		{"padded date", " 2030-01-15 ", http.StatusCreated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, res := s.do(t, http.MethodPut, "/projects/"+projectID+"/iterations", token, echo.Map{
				"title": "Sprint", "deadline": tt.deadline,
			})
			assert.Equal(t, tt.wantStatus, code, res)
		})
	}
}

func TestHandler_Metrics(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

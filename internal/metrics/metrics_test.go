package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	m, err := NewMetrics()
	require.NoError(t, err)

	m.AddTaskMove(MoveOK)
	m.AddTaskMove(MoveOK)
	m.AddTaskMove(MoveMismatch)
	m.AddMembershipEvent(EventAccepted)
	m.ObserveHTTPRequest(http.MethodGet, "/projects", http.StatusOK, 0.01)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.taskMovesTotal.WithLabelValues(MoveOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.taskMovesTotal.WithLabelValues(MoveMismatch)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.membershipEventsTotal.WithLabelValues(EventAccepted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues(http.MethodGet, "/projects", "200")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "scrumboard_tasks_moves_total")
}

func TestMetrics_Nil(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.AddTaskMove(MoveOK)
		m.AddMembershipEvent(EventLeft)
		m.ObserveHTTPRequest(http.MethodGet, "/", http.StatusOK, 0)
	})
}

package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/IANDYI/health-markers-service/internal/adapters/handler"
	"github.com/IANDYI/health-markers-service/internal/adapters/repository"
	"github.com/IANDYI/health-markers-service/internal/core/domain"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockClassifier is a mock implementation of ports.Classifier
type MockClassifier struct {
	mock.Mock
}

func (m *MockClassifier) Predict(ctx context.Context, features domain.FeatureVector) (domain.CategoryCode, error) {
	args := m.Called(ctx, features)
	return args.Get(0).(domain.CategoryCode), args.Error(1)
}

func (m *MockClassifier) Ready(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func decodeHealth(t *testing.T, rec *httptest.ResponseRecorder) handler.HealthResponse {
	t.Helper()
	var body handler.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealthHandler_HealthAndLive(t *testing.T) {
	h := handler.NewHealthHandler(nil, nil)

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeHealth(t, rec).Status)

	rec = httptest.NewRecorder()
	h.Live(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alive", decodeHealth(t, rec).Status)
}

func TestHealthHandler_Ready_ModelLoaded(t *testing.T) {
	classifier := new(MockClassifier)
	classifier.On("Ready", mock.Anything).Return(nil)

	rec := httptest.NewRecorder()
	handler.NewHealthHandler(classifier, nil).Ready(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeHealth(t, rec)
	assert.Equal(t, "ready", body.Status)
	assert.Equal(t, map[string]string{"model": "ok"}, body.Checks)
}

func TestHealthHandler_Ready_ModelMissing(t *testing.T) {
	classifier := new(MockClassifier)
	classifier.On("Ready", mock.Anything).Return(domain.ErrModelNotLoaded)

	rec := httptest.NewRecorder()
	handler.NewHealthHandler(classifier, nil).Ready(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decodeHealth(t, rec)
	assert.Equal(t, "not ready", body.Status)
	assert.Equal(t, "model not loaded", body.Checks["model"])
}

func TestHealthHandler_Ready_NoClassifier(t *testing.T) {
	rec := httptest.NewRecorder()
	handler.NewHealthHandler(nil, nil).Ready(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealthHandler_Ready_Database(t *testing.T) {
	tests := []struct {
		name       string
		pingErr    error
		wantStatus int
		wantCheck  string
	}{
		{"database up", nil, http.StatusOK, "ok"},
		{"database down", errors.New("connection refused"), http.StatusServiceUnavailable, "connection refused"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, sqlMock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
			require.NoError(t, err)
			defer db.Close()
			sqlMock.ExpectPing().WillReturnError(tt.pingErr)

			classifier := new(MockClassifier)
			classifier.On("Ready", mock.Anything).Return(nil)

			rec := httptest.NewRecorder()
			repo := repository.NewSQLRepository(db, gobreaker.Settings{})
			handler.NewHealthHandler(classifier, repo).Ready(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCheck, decodeHealth(t, rec).Checks["database"])
			assert.NoError(t, sqlMock.ExpectationsWereMet())
		})
	}
}

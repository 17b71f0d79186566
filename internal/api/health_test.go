package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/webhooker-io/webhooker/internal/actions"
)

type fakeHealth struct {
	err error
}

func (f *fakeHealth) HealthCheck(context.Context) error { return f.err }

func healthServer(db HealthChecker) http.Handler {
	return NewRouter(&Server{
		Endpoints: &fakeEndpoints{},
		Pipeline:  &fakePipeline{},
		Registry:  actions.NewRegistry(),
		DB:        db,
	})
}

func TestHandleHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	healthServer(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestHandleHealthReady(t *testing.T) {
	rec := httptest.NewRecorder()
	healthServer(&fakeHealth{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	healthServer(&fakeHealth{err: errors.New("connection refused")}).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "not_ready")
}

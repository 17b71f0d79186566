package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webhooker-io/webhooker/internal/actions"
	"github.com/webhooker-io/webhooker/internal/domain"
	"github.com/webhooker-io/webhooker/internal/submission"
)

type fakeEndpoints struct {
	endpoint *domain.Endpoint
}

func (f *fakeEndpoints) GetByID(_ context.Context, id uuid.UUID) (*domain.Endpoint, error) {
	if f.endpoint != nil && f.endpoint.ID == id {
		return f.endpoint, nil
	}
	return nil, nil
}

type fakePipeline struct {
	result  *submission.Result
	err     error
	lastReq submission.Request
}

func (f *fakePipeline) Process(_ context.Context, _ *domain.Endpoint, req submission.Request) (*submission.Result, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func testServer(endpoint *domain.Endpoint, pipe *fakePipeline) http.Handler {
	return NewRouter(&Server{
		Endpoints: &fakeEndpoints{endpoint: endpoint},
		Pipeline:  pipe,
		Registry:  actions.NewRegistry(),
	})
}

func contactEndpoint(settings string) *domain.Endpoint {
	ep := &domain.Endpoint{
		ID:        uuid.New(),
		ProjectID: uuid.New(),
		Name:      "Contact",
		Slug:      "contact",
	}
	if settings != "" {
		ep.Settings = json.RawMessage(settings)
	}
	return ep
}

func postJSON(t *testing.T, handler http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var m map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	return m
}

func TestHandleIngest_Created(t *testing.T) {
	ep := contactEndpoint("")
	subID := uuid.New()
	pipe := &fakePipeline{result: &submission.Result{Outcome: submission.OutcomeCreated, SubmissionID: subID}}
	handler := testServer(ep, pipe)

	rec := postJSON(t, handler, "/v1/e/"+ep.ID.String(), `{"name":"Alice"}`)

	assert.Equal(t, http.StatusCreated, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "created", body["status"])
	assert.Equal(t, subID.String(), body["submission_id"])
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "application/json", pipe.lastReq.ContentType)
}

func TestHandleIngest_SpamAcceptedSilently(t *testing.T) {
	ep := contactEndpoint("")
	pipe := &fakePipeline{result: &submission.Result{Outcome: submission.OutcomeSpam}}
	handler := testServer(ep, pipe)

	rec := postJSON(t, handler, "/v1/e/"+ep.ID.String(), `{"_gotcha":"bot"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])
}

func TestHandleIngest_Redirect(t *testing.T) {
	ep := contactEndpoint(`{"redirect_url":"https://example.com/thanks"}`)
	pipe := &fakePipeline{result: &submission.Result{
		Outcome:     submission.OutcomeRedirect,
		RedirectURL: "https://example.com/thanks",
	}}
	handler := testServer(ep, pipe)

	req := httptest.NewRequest(http.MethodPost, "/v1/e/"+ep.ID.String(),
		bytes.NewBufferString("name=Alice"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "https://example.com/thanks", rec.Header().Get("Location"))
}

func TestHandleIngest_UnknownEndpoint(t *testing.T) {
	handler := testServer(contactEndpoint(""), &fakePipeline{})

	rec := postJSON(t, handler, "/v1/e/"+uuid.NewString(), `{}`)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Endpoint not found", decodeBody(t, rec)["error"])
}

func TestHandleIngest_MalformedIDLooksLikeUnknown(t *testing.T) {
	handler := testServer(contactEndpoint(""), &fakePipeline{})

	rec := postJSON(t, handler, "/v1/e/not-a-uuid", `{}`)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Endpoint not found", decodeBody(t, rec)["error"])
}

func TestHandleIngest_ParseError(t *testing.T) {
	ep := contactEndpoint("")
	pipe := &fakePipeline{err: &submission.ParseError{Reason: "Invalid JSON body"}}
	handler := testServer(ep, pipe)

	rec := postJSON(t, handler, "/v1/e/"+ep.ID.String(), `{"broken`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid JSON body", decodeBody(t, rec)["error"])
}

func TestHandleIngest_RateLimited(t *testing.T) {
	ep := contactEndpoint("")
	pipe := &fakePipeline{err: &submission.RateLimitedError{RetryAfter: 42}}
	handler := testServer(ep, pipe)

	rec := postJSON(t, handler, "/v1/e/"+ep.ID.String(), `{}`)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "Rate limited. Retry after 42s", decodeBody(t, rec)["error"])
	assert.Equal(t, "42", rec.Header().Get("Retry-After"))
}

func TestHandleIngest_InternalErrorIsGeneric(t *testing.T) {
	ep := contactEndpoint("")
	pipe := &fakePipeline{err: assert.AnError}
	handler := testServer(ep, pipe)

	rec := postJSON(t, handler, "/v1/e/"+ep.ID.String(), `{}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Internal server error", decodeBody(t, rec)["error"])
}

func TestHandleIngest_BodyTooLarge(t *testing.T) {
	ep := contactEndpoint("")
	pipe := &fakePipeline{result: &submission.Result{Outcome: submission.OutcomeCreated}}
	handler := NewRouter(&Server{
		Endpoints:   &fakeEndpoints{endpoint: ep},
		Pipeline:    pipe,
		Registry:    actions.NewRegistry(),
		MaxBodySize: 16,
	})

	rec := postJSON(t, handler, "/v1/e/"+ep.ID.String(), `{"name":"a very long payload indeed"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Request body too large", decodeBody(t, rec)["error"])
}

func TestHandleIngestPreflight(t *testing.T) {
	ep := contactEndpoint(`{"cors_origins":["https://a.example","https://b.example"]}`)
	handler := testServer(ep, &fakePipeline{})

	req := httptest.NewRequest(http.MethodOptions, "/v1/e/"+ep.ID.String(), nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://a.example,https://b.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "POST, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "Content-Type", rec.Header().Get("Access-Control-Allow-Headers"))
	assert.Equal(t, "86400", rec.Header().Get("Access-Control-Max-Age"))
}

func TestHandleIngestPreflight_UnknownEndpoint(t *testing.T) {
	handler := testServer(contactEndpoint(""), &fakePipeline{})

	req := httptest.NewRequest(http.MethodOptions, "/v1/e/"+uuid.NewString(), nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

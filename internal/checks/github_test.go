package checks

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	Method string
	Path   string
	Header http.Header
	Body   map[string]any
}

func newGitHubServer(t *testing.T, status int, response string) (*httptest.Server, *[]recordedRequest) {
	t.Helper()
	var reqs []recordedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		var body map[string]any
		assert.NoError(t, json.Unmarshal(raw, &body))
		reqs = append(reqs, recordedRequest{Method: r.Method, Path: r.URL.Path, Header: r.Header.Clone(), Body: body})

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, response)
	}))
	t.Cleanup(srv.Close)
	return srv, &reqs
}

func TestGitHub_Create(t *testing.T) {
	srv, reqs := newGitHubServer(t, http.StatusCreated, `{"id": 42, "name": "ci", "status": "in_progress"}`)
	client := NewGitHub("tok", WithBaseURL(srv.URL+"/"))

	h, err := client.Create(context.Background(), "acme", "widgets", Started("ci", "abc123"))
	require.NoError(t, err)
	assert.Equal(t, Handle{ID: 42, Name: "ci", Status: StatusInProgress}, h)

	require.Len(t, *reqs, 1)
	got := (*reqs)[0]
	assert.Equal(t, http.MethodPost, got.Method)
	assert.Equal(t, "/repos/acme/widgets/check-runs", got.Path)
	assert.Equal(t, "Bearer tok", got.Header.Get("Authorization"))
	assert.Equal(t, "2022-11-28", got.Header.Get("X-GitHub-Api-Version"))
	assert.Equal(t, "smoked-tofu", got.Header.Get("User-Agent"))
	assert.Equal(t, "abc123", got.Body["head_sha"])
	assert.Equal(t, "in_progress", got.Body["status"])
	_, hasConclusion := got.Body["conclusion"]
	assert.False(t, hasConclusion, "conclusion must not be sent on create")
}

func TestGitHub_Update(t *testing.T) {
	srv, reqs := newGitHubServer(t, http.StatusOK, `{"id": 42, "name": "ci", "status": "completed"}`)
	client := NewGitHub("tok", WithBaseURL(srv.URL))

	run := CheckRun{
		Name:       "ci",
		HeadSHA:    "abc123",
		Status:     StatusCompleted,
		Conclusion: conclusionPtr(ConclusionSuccess),
		Output:     &Output{Title: "t", Summary: "s"},
	}

	h, err := client.Update(context.Background(), "acme", "widgets", Handle{ID: 42}, run)
	require.NoError(t, err)
	assert.Equal(t, int64(42), h.ID)

	require.Len(t, *reqs, 1)
	got := (*reqs)[0]
	assert.Equal(t, http.MethodPatch, got.Method)
	assert.Equal(t, "/repos/acme/widgets/check-runs/42", got.Path)
	assert.Equal(t, "completed", got.Body["status"])
	assert.Equal(t, "success", got.Body["conclusion"])
}

func TestGitHub_Errors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		response string
	}{
		{name: "non-2xx", status: http.StatusUnprocessableEntity, response: `{"message": "Validation Failed"}`},
		{name: "unauthorized", status: http.StatusUnauthorized, response: `{"message": "Bad credentials"}`},
		{name: "garbage body", status: http.StatusCreated, response: `not json`},
		{name: "missing id", status: http.StatusCreated, response: `{"name": "ci"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newGitHubServer(t, tt.status, tt.response)
			client := NewGitHub("tok", WithBaseURL(srv.URL))

			_, err := client.Create(context.Background(), "acme", "widgets", Started("ci", "abc"))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrAPI))

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, "create", apiErr.Op)
			assert.Equal(t, tt.status, apiErr.StatusCode)
		})
	}
}

func TestGitHub_ErrorKeepsMessage(t *testing.T) {
	srv, _ := newGitHubServer(t, http.StatusUnprocessableEntity, `{"message": "Validation Failed"}`)
	client := NewGitHub("tok", WithBaseURL(srv.URL))

	_, err := client.Update(context.Background(), "acme", "widgets", Handle{ID: 5}, Started("ci", "abc"))
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "update", apiErr.Op)
	assert.Equal(t, "Validation Failed", apiErr.Body)
	assert.Contains(t, err.Error(), "status 422")
}

func TestGitHub_EnterpriseBasePath(t *testing.T) {
	srv, reqs := newGitHubServer(t, http.StatusCreated, `{"id": 3}`)
	client := NewGitHub("tok", WithBaseURL(srv.URL+"/api/v3"))

	_, err := client.Create(context.Background(), "acme", "widgets", Started("ci", "abc"))
	require.NoError(t, err)
	require.Len(t, *reqs, 1)
	assert.Equal(t, "/api/v3/repos/acme/widgets/check-runs", (*reqs)[0].Path)
}

func TestGitHub_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	client := NewGitHub("tok", WithBaseURL(srv.URL))
	_, err := client.Update(context.Background(), "acme", "widgets", Handle{ID: 1}, Started("ci", "abc"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAPI))

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 0, apiErr.StatusCode)
}

func TestGitHub_HTTPClientTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	client := NewGitHub("tok",
		WithBaseURL(srv.URL),
		WithHTTPClient(&http.Client{Timeout: 50 * time.Millisecond}),
	)
	_, err := client.Create(context.Background(), "acme", "widgets", Started("ci", "abc"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAPI)
}

func TestGitHub_RejectsInvalidRun(t *testing.T) {
	client := NewGitHub("tok", WithBaseURL("http://127.0.0.1:1"))
	run := Started("ci", "abc")
	run.Conclusion = conclusionPtr(ConclusionSuccess)

	_, err := client.Create(context.Background(), "acme", "widgets", run)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAPI))
}

func conclusionPtr(c Conclusion) *Conclusion { return &c }

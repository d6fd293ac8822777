package api_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/crewsync/internal/api"
)

type staticToken string

func (s staticToken) Token(context.Context) (string, error) { return string(s), nil }

type failingToken struct{ err error }

func (f failingToken) Token(context.Context) (string, error) { return "", f.err }

func newServer(t *testing.T, h http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func TestResource_ListShapes(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bare array", `[{"id":"1"},{"id":"2"}]`},
		{"data envelope", `{"data":[{"id":"1"},{"id":"2"}]}`},
		{"items envelope", `{"items":[{"id":"1"},{"id":"2"}]}`},
		{"results envelope", `{"results":[{"id":"1"},{"id":"2"}]}`},
		{"named envelope", `{"jobs":[{"id":"1"},{"id":"2"}],"total":2}`},
		{"non-object elements dropped", `[{"id":"1"},"junk",null,{"id":"2"}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodGet, r.Method)
				assert.Equal(t, "/api/jobs", r.URL.Path)
				io.WriteString(w, tt.body)
			})

			records, err := api.Jobs(api.NewClient(srv.URL)).List(context.Background())
			require.NoError(t, err)
			require.Len(t, records, 2)
			assert.Equal(t, "1", records[0]["id"])
			assert.Equal(t, "2", records[1]["id"])
		})
	}
}

func TestResource_ListNotAList(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"message":"ok"}`)
	})

	_, err := api.Jobs(api.NewClient(srv.URL)).List(context.Background())
	assert.Error(t, err)
}

func TestResource_ListKeepsNumbers(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `[{"id":12345678901234}]`)
	})

	records, err := api.Employees(api.NewClient(srv.URL)).List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, json.Number("12345678901234"), records[0]["id"])
}

func TestClient_BearerToken(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		io.WriteString(w, `[]`)
	})

	c := api.NewClient(srv.URL+"/", api.WithTokenSource(staticToken("secret")))
	_, err := api.Chat(c).List(context.Background())
	require.NoError(t, err)
}

func TestClient_TokenSourceError(t *testing.T) {
	var calls atomic.Int32
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	})

	errNoToken := errors.New("no token")
	c := api.NewClient(srv.URL, api.WithTokenSource(failingToken{errNoToken}))
	_, err := api.Jobs(c).List(context.Background())
	assert.ErrorIs(t, err, errNoToken)
	assert.Zero(t, calls.Load())
}

func TestClient_Unauthorized(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"message":"token expired"}`)
	})

	_, err := api.Jobs(api.NewClient(srv.URL)).List(context.Background())
	require.Error(t, err)
	assert.True(t, api.IsAuthError(err))

	var authErr *api.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "token expired", authErr.Message)
}

func TestClient_StatusError(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `{"error":"boom"}`)
	})

	_, err := api.Jobs(api.NewClient(srv.URL)).List(context.Background())

	var statusErr *api.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
	assert.Equal(t, "boom", statusErr.Message)
	assert.False(t, api.IsAuthError(err))
}

func TestClient_RetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		io.WriteString(w, `[]`)
	})

	c := api.NewClient(srv.URL, api.WithBackoff(time.Millisecond))
	_, err := api.Jobs(c).List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_RateLimitExhausted(t *testing.T) {
	var calls atomic.Int32
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	})

	c := api.NewClient(srv.URL, api.WithBackoff(time.Millisecond), api.WithMaxRetries(2))
	_, err := api.Jobs(c).List(context.Background())

	var statusErr *api.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusTooManyRequests, statusErr.StatusCode)
	assert.Equal(t, int32(3), calls.Load())
}

func TestResource_CreateUpdateDelete(t *testing.T) {
	var seen []string
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Method+" "+r.URL.Path)
		switch r.Method {
		case http.MethodPost:
			var body map[string]any
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			body["id"] = "srv-1"
			json.NewEncoder(w).Encode(map[string]any{"data": body})
		case http.MethodPut:
			io.WriteString(w, `{"id":"srv-1","title":"Updated"}`)
		case http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		}
	})

	jobs := api.Jobs(api.NewClient(srv.URL))
	ctx := context.Background()

	created, err := jobs.Create(ctx, map[string]any{"title": "Roof repair"})
	require.NoError(t, err)
	assert.Equal(t, "srv-1", created["id"])
	assert.Equal(t, "Roof repair", created["title"])

	updated, err := jobs.Update(ctx, "srv 1", map[string]any{"title": "Updated"})
	require.NoError(t, err)
	assert.Equal(t, "Updated", updated["title"])

	require.NoError(t, jobs.Delete(ctx, "srv-1"))

	assert.Equal(t, []string{
		"POST /api/jobs",
		"PUT /api/jobs/srv 1",
		"DELETE /api/jobs/srv-1",
	}, seen)
}

func TestResource_DeleteNotAllowed(t *testing.T) {
	var calls atomic.Int32
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	})

	c := api.NewClient(srv.URL)
	for _, r := range []*api.Resource{api.Notifications(c), api.Chat(c)} {
		err := r.Delete(context.Background(), "1")
		assert.ErrorIs(t, err, api.ErrMethodNotAllowed, r.Name())
	}
	assert.Zero(t, calls.Load())
}

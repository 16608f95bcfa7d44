package gerrit

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	r := chi.NewRouter()
	r.Get("/changes/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(")]}'\n[{\"_number\":1,\"q\":\"" + r.URL.Query().Get("q") + "\"}]\n"))
	})
	r.Get("/a/changes/", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		bearer := r.Header.Get("Authorization")
		switch {
		case ok && user == "jane" && pass == "secret":
			_, _ = w.Write([]byte(")]}'\n[{\"_number\":2}]"))
		case bearer == "Bearer tok-123":
			_, _ = w.Write([]byte(")]}'\n[{\"_number\":3}]"))
		default:
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
		}
	})
	r.Get("/changes/{number}/revisions/{revision}/files/{file}/diff", func(w http.ResponseWriter, r *http.Request) {
		if chi.URLParam(r, "number") == "404" {
			http.Error(w, "Not found: 404", http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(")]}'\n{\"change_type\":\"MODIFIED\"}"))
	})
	r.Get("/broken", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(")]}'\n{not json"))
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, url string, auth Auth) Client {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	c, err := NewClient(context.Background(), url, auth, 5*time.Second, logger)
	require.NoError(t, err)
	return c
}

func TestClient_GetStripsXSSIPrefix(t *testing.T) {
	srv := newTestServer(t)
	c := newTestClient(t, srv.URL+"/", Auth{})

	body, err := c.Get(context.Background(), "/changes/?q=status%3Aopen&start=0")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"_number":1,"q":"status:open"}]`, string(body))
}

func TestClient_Auth(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name    string
		auth    Auth
		want    string
		wantErr error
	}{
		{name: "basic auth", auth: Auth{Username: "jane", Password: "secret"}, want: `[{"_number":2}]`},
		{name: "bearer token", auth: Auth{Token: "tok-123"}, want: `[{"_number":3}]`},
		{name: "wrong password", auth: Auth{Username: "jane", Password: "nope"}, wantErr: ErrUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, srv.URL, tt.auth)
			body, err := c.Get(context.Background(), "/changes/?q=is:open")
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr))
				return
			}
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(body))
		})
	}
}

func TestClient_GetErrors(t *testing.T) {
	srv := newTestServer(t)
	c := newTestClient(t, srv.URL, Auth{})

	_, err := c.Get(context.Background(), "/changes/404/revisions/1/files/a.go/diff")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)

	_, err = c.Get(context.Background(), "/broken")
	assert.Error(t, err)
}

func TestClient_EscapedFilePath(t *testing.T) {
	srv := newTestServer(t)
	c := newTestClient(t, srv.URL, Auth{})

	body, err := c.Get(context.Background(), "/changes/5/revisions/2/files/src%2Fmain%2FApp.java/diff")
	require.NoError(t, err)
	assert.JSONEq(t, `{"change_type":"MODIFIED"}`, string(body))
}

func TestNewClient_InvalidURL(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	_, err := NewClient(context.Background(), "", Auth{}, time.Second, logger)
	assert.Error(t, err)

	_, err = NewClient(context.Background(), "review.example.org", Auth{}, time.Second, logger)
	assert.Error(t, err)
}

package apitest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func redirectServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new", http.StatusFound)
	})
	mux.HandleFunc("/new", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/echo", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"content_type": r.Header.Get("Content-Type"),
			"body":         body,
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_DoesNotFollowRedirectsByDefault(t *testing.T) {
	srv := redirectServer(t)
	client := newClient(srv.URL, srv.Client())

	resp, err := client.Get(context.Background(), "/old")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/new", resp.Header.Get("Location"))
}

func TestClient_WithFollowRedirects(t *testing.T) {
	srv := redirectServer(t)
	client := newClient(srv.URL, srv.Client(), WithFollowRedirects())

	resp, err := client.Get(context.Background(), "/old")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "/new", resp.Request.URL.Path)
}

func TestClient_PostJSON(t *testing.T) {
	srv := redirectServer(t)
	client := newClient(srv.URL, srv.Client())

	resp, err := client.PostJSON(context.Background(), "/echo", map[string]string{"name": "Leia"})
	require.NoError(t, err)

	var got struct {
		ContentType string         `json:"content_type"`
		Body        map[string]any `json:"body"`
	}
	require.NoError(t, DecodeJSON(resp, &got))
	assert.Equal(t, "application/json", got.ContentType)
	assert.Equal(t, "Leia", got.Body["name"])
}

func TestClient_URL(t *testing.T) {
	client := newClient("http://127.0.0.1:1234/", http.DefaultClient)

	assert.Equal(t, "http://127.0.0.1:1234/api/users", client.URL("/api/users"))
	assert.Equal(t, "http://127.0.0.1:1234/api/users", client.URL("api/users"))
}

func TestClient_WithTimeout(t *testing.T) {
	client := newClient("http://127.0.0.1:1234", http.DefaultClient, WithTimeout(3*time.Second))
	assert.Equal(t, 3*time.Second, client.HTTPClient().Timeout)
	assert.NotNil(t, client.HTTPClient().CheckRedirect)
}

//go:build integration

package integration

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"userapi/internal/apitest"
	"userapi/internal/app"
	"userapi/internal/core"
)

// API endpoints
const (
	usersPath  = "/api/users"
	healthPath = "/health"
)

// newFactory returns a factory on the shared database, closed when t ends.
func newFactory(t *testing.T, overrides ...app.Override) *apitest.Factory {
	t.Helper()
	f, err := apitest.New(pgDatabase, overrides...)
	require.NoError(t, err, "failed to create factory")
	t.Cleanup(func() { _ = f.Close() })
	return f
}

// newClient returns a client from a fresh factory; the database has been cleaned.
func newClient(t *testing.T) *apitest.Client {
	t.Helper()
	client, err := newFactory(t).Client(testCtx)
	require.NoError(t, err, "failed to create client")
	return client
}

// createUser POSTs a user and returns the decoded response.
func createUser(t *testing.T, client *apitest.Client, name, email string) (core.User, *http.Response) {
	t.Helper()
	resp, err := client.PostJSON(testCtx, usersPath, core.CreateUserRequest{Name: name, Email: email})
	require.NoError(t, err, "failed to send create request")
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created core.User
	require.NoError(t, apitest.DecodeJSON(resp, &created))
	return created, resp
}

// listUsers GETs the user collection.
func listUsers(t *testing.T, client *apitest.Client) []core.User {
	t.Helper()
	resp, err := client.Get(testCtx, usersPath)
	require.NoError(t, err, "failed to send list request")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var users []core.User
	require.NoError(t, apitest.DecodeJSON(resp, &users))
	return users
}

// closeBody is a helper to close response body in defer statements.
func closeBody(resp *http.Response) {
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
}

package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lightforgemedia/go-musicassistant/pkg/api"
	"github.com/lightforgemedia/go-musicassistant/pkg/auth"
	"github.com/lightforgemedia/go-musicassistant/pkg/testutil"
)

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestLogin(t *testing.T) {
	ms := testutil.NewMockServer(testutil.WithCredentials("alice", "hunter2"))
	t.Cleanup(ms.Close)
	ctx := testContext(t)

	user, accessToken, err := auth.Login(ctx, ms.URL, "alice", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.NotEmpty(t, accessToken)
	assert.Equal(t, 1, ms.LoginCalls())
}

func TestLoginBadCredentials(t *testing.T) {
	ms := testutil.NewMockServer(testutil.WithCredentials("alice", "hunter2"))
	t.Cleanup(ms.Close)
	ctx := testContext(t)

	_, _, err := auth.Login(ctx, ms.URL, "alice", "wrong")
	assert.ErrorIs(t, err, api.ErrLoginFailed)
}

func TestLoginInvalidURL(t *testing.T) {
	_, _, err := auth.Login(testContext(t), "ftp://nope", "alice", "hunter2")
	assert.ErrorIs(t, err, api.ErrInvalidURL)
}

func TestTokenLifecycle(t *testing.T) {
	ms := testutil.NewMockServer(testutil.WithCredentials("alice", "hunter2"))
	t.Cleanup(ms.Close)
	ctx := testContext(t)

	_, accessToken, err := auth.Login(ctx, ms.URL, "alice", "hunter2")
	require.NoError(t, err)

	token, err := auth.CreateLongLivedToken(ctx, ms.URL, accessToken, "living-room-panel")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, 1, ms.TokenCreateCalls())

	tokens, err := auth.ListTokens(ctx, ms.URL, accessToken)
	require.NoError(t, err)
	require.Len(t, tokens, 2) // session token plus the long-lived one

	var longLived api.AuthToken
	for _, rec := range tokens {
		if rec.IsLongLived {
			longLived = rec
		}
	}
	require.NotEmpty(t, longLived.TokenID)
	assert.Equal(t, "living-room-panel", longLived.Name)

	require.NoError(t, auth.RevokeToken(ctx, ms.URL, accessToken, longLived.TokenID))

	tokens, err = auth.ListTokens(ctx, ms.URL, accessToken)
	require.NoError(t, err)
	assert.Len(t, tokens, 1)
}

func TestCreateTokenRejectsInvalidAccessToken(t *testing.T) {
	ms := testutil.NewMockServer()
	t.Cleanup(ms.Close)

	_, err := auth.CreateLongLivedToken(testContext(t), ms.URL, "bogus", "panel")
	assert.ErrorIs(t, err, api.ErrAuthenticationFailed)
}

func TestGetCurrentUser(t *testing.T) {
	ms := testutil.NewMockServer(testutil.WithCredentials("alice", "hunter2"))
	t.Cleanup(ms.Close)
	ctx := testContext(t)

	_, accessToken, err := auth.Login(ctx, ms.URL, "alice", "hunter2")
	require.NoError(t, err)

	user, err := auth.GetCurrentUser(ctx, ms.URL, accessToken)
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.True(t, user.IsAdmin)

	_, err = auth.GetCurrentUser(ctx, ms.URL, "bogus")
	assert.ErrorIs(t, err, api.ErrAuthenticationFailed)
}

func TestLoginWithToken(t *testing.T) {
	ms := testutil.NewMockServer(testutil.WithCredentials("alice", "hunter2"))
	t.Cleanup(ms.Close)

	user, token, err := auth.LoginWithToken(testContext(t), ms.URL, "alice", "hunter2", "panel")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.NotEmpty(t, token)
	assert.Equal(t, 1, ms.TokenCreateCalls())
}

func TestLoginWithTokenBadCredentials(t *testing.T) {
	ms := testutil.NewMockServer(testutil.WithCredentials("alice", "hunter2"))
	t.Cleanup(ms.Close)

	_, token, err := auth.LoginWithToken(testContext(t), ms.URL, "alice", "wrong", "panel")
	assert.ErrorIs(t, err, api.ErrLoginFailed)
	assert.Empty(t, token)
	// Login failed, so no token creation was attempted.
	assert.Equal(t, 0, ms.TokenCreateCalls())
}

func TestGetServerInfo(t *testing.T) {
	ms := testutil.NewMockServer(
		testutil.WithSchemaVersion(28),
		testutil.WithServerVersion("2.7.1"),
	)
	t.Cleanup(ms.Close)

	info, err := auth.GetServerInfo(testContext(t), ms.URL)
	require.NoError(t, err)
	assert.Equal(t, "2.7.1", info.ServerVersion)
	assert.Equal(t, 28, info.SchemaVersion)
}

func TestGetServerInfoUnreachable(t *testing.T) {
	ms := testutil.NewMockServer()
	url := ms.URL
	ms.Close()

	_, err := auth.GetServerInfo(testContext(t), url)
	assert.ErrorIs(t, err, api.ErrCannotConnect)
}

package okrlinesdk

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"okrline/internal/app"
	"okrline/internal/config"
	"okrline/internal/db"
	"okrline/internal/engine"
	"okrline/internal/migrate"
	"okrline/internal/server"
)

const secret = "sdk-secret"

func newClient(t *testing.T) *Client {
	t.Helper()
	ctx := context.Background()
	conn, dialect, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn, dialect))
	cfg := config.Default()
	e := engine.New(conn, dialect, cfg)
	require.NoError(t, app.SyncRBAC(ctx, e.Repo, cfg))
	_, err = app.CreateTeam(ctx, e.Repo, "acme", "Acme", "alice")
	require.NoError(t, err)

	handler, err := server.New(server.Config{
		Engine:   e,
		BasePath: "/v0",
		Auth:     server.AuthConfig{JWTSecret: secret},
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "alice",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	return New(srv.URL+"/v0", "acme").WithBearerToken(token)
}

func ptr[T any](v T) *T { return &v }

func TestClientObjectiveFlow(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()

	me, err := c.WhoAmI(ctx)
	require.NoError(t, err)
	assert.Equal(t, "alice", me.ActorID)
	assert.Equal(t, "owner", me.Role)

	o, err := c.CreateObjective(ctx, ObjectiveInput{
		Title:     "Grow revenue",
		StartDate: "2024-01-01",
		EndDate:   "2024-12-31",
		KeyResults: []KeyResultInput{
			{Title: "ARR", TargetValue: ptr(10.0), Unit: ptr("M$")},
		},
	})
	require.NoError(t, err)
	require.Len(t, o.KeyResults, 1)
	assert.Equal(t, "ACTIVE", o.Status)
	kr := o.KeyResults[0]

	kr, err = c.UpdateProgress(ctx, o.ID, kr.ID, 4)
	require.NoError(t, err)
	assert.Equal(t, 4.0, kr.CurrentValue)

	kr, err = c.PatchKeyResult(ctx, o.ID, kr.ID, map[string]any{"unit": nil, "status": "ACHIEVED"})
	require.NoError(t, err)
	assert.Nil(t, kr.Unit)
	assert.Equal(t, "ACHIEVED", kr.Status)

	o, err = c.PatchObjective(ctx, o.ID, map[string]any{"title": "Grow ARR"})
	require.NoError(t, err)
	assert.Equal(t, "Grow ARR", o.Title)
	require.Len(t, o.KeyResults, 1)

	// A nil KeyResults keeps the existing ones.
	o, err = c.ReplaceObjective(ctx, o.ID, ObjectiveInput{Title: "Grow", Status: "COMPLETED", StartDate: "2024-01-01", EndDate: "2024-06-30"})
	require.NoError(t, err)
	require.Len(t, o.KeyResults, 1)
	assert.Equal(t, kr.ID, o.KeyResults[0].ID)

	// An empty non-nil slice clears them.
	o, err = c.ReplaceObjective(ctx, o.ID, ObjectiveInput{Title: "Grow", Status: "COMPLETED", StartDate: "2024-01-01", EndDate: "2024-06-30", KeyResults: []KeyResultInput{}})
	require.NoError(t, err)
	assert.Empty(t, o.KeyResults)

	added, err := c.CreateKeyResult(ctx, o.ID, KeyResultInput{Title: "Logos", TargetValue: ptr(5.0)})
	require.NoError(t, err)
	link, err := c.LinkJiraIssue(ctx, o.ID, added.ID, "SALES-1", "https://jira.example.com/browse/SALES-1")
	require.NoError(t, err)
	assert.Equal(t, "SALES-1", link.IssueKey)
	links, err := c.ListJiraLinks(ctx, o.ID, added.ID)
	require.NoError(t, err)
	assert.Len(t, links, 1)

	_, err = c.CreateInitiative(ctx, o.ID, "Launch pricing", "")
	require.NoError(t, err)
	items, err := c.ListInitiatives(ctx, o.ID)
	require.NoError(t, err)
	assert.Len(t, items, 1)

	page, err := c.ListObjectives(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)

	require.NoError(t, c.DeleteKeyResult(ctx, o.ID, added.ID))
	require.NoError(t, c.DeleteObjective(ctx, o.ID))
	_, err = c.GetObjective(ctx, o.ID)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "not_found", apiErr.Code)
}

func TestClientSurfacesValidationErrors(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()
	o, err := c.CreateObjective(ctx, ObjectiveInput{Title: "Q3", StartDate: "2024-07-01", EndDate: "2024-09-30"})
	require.NoError(t, err)

	_, err = c.PatchObjective(ctx, o.ID, map[string]any{"keyResults": []any{}})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "validation_failed", apiErr.Code)
	assert.Equal(t, "no valid fields to update", apiErr.Message)
}

func TestClientRejectsMissingCredentials(t *testing.T) {
	c := newClient(t)
	anon := New(c.http.BaseURL, "acme")
	_, err := anon.ListObjectives(context.Background(), 0, 0)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
}

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"okrline/internal/app"
	"okrline/internal/config"
	"okrline/internal/db"
	"okrline/internal/domain"
	"okrline/internal/engine"
	"okrline/internal/logger"
	"okrline/internal/migrate"
	"okrline/internal/repo"
)

const (
	testSecret = "test-secret"
	teamSlug   = "acme"
)

type testServer struct {
	*httptest.Server
	engine engine.Engine
	apiKey string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()
	conn, dialect, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn, dialect))
	cfg := config.Default()
	e := engine.New(conn, dialect, cfg)
	require.NoError(t, app.SyncRBAC(ctx, e.Repo, cfg))
	_, err = app.CreateTeam(ctx, e.Repo, teamSlug, "Acme", "alice")
	require.NoError(t, err)
	_, err = app.AddMember(ctx, e.Repo, cfg, teamSlug, "val", "viewer")
	require.NoError(t, err)
	_, err = app.CreateTeam(ctx, e.Repo, "other", "Other", "mallory")
	require.NoError(t, err)

	key := "okr_" + uuid.NewString()
	require.NoError(t, e.Repo.InsertAPIKey(ctx, nil, domain.APIKey{
		ID:      uuid.NewString(),
		ActorID: "alice",
		Name:    "ci",
		KeyHash: repo.HashAPIKey(key),
	}))

	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v0",
		Auth:     AuthConfig{JWTSecret: testSecret, DevLogin: true},
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, engine: e, apiKey: key}
}

func tokenFor(t *testing.T, actorID string) map[string]string {
	t.Helper()
	token, err := signDevToken(testSecret, actorID, time.Now())
	require.NoError(t, err)
	return map[string]string{"Authorization": "Bearer " + token}
}

func (s *testServer) do(t *testing.T, method, path string, body any, headers map[string]string) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, s.URL+"/v0"+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := s.Client().Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res.StatusCode, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(data, &out), string(data))
	return out
}

type errorEnvelope struct {
	Error apiErrorBody `json:"error"`
}

func objectivePayload() map[string]any {
	return map[string]any{
		"title":       "Grow revenue",
		"description": "FY24",
		"status":      "ACTIVE",
		"startDate":   "2024-01-01",
		"endDate":     "2024-12-31",
		"keyResults": []map[string]any{
			{"title": "ARR", "targetValue": 10, "unit": "M$"},
			{"title": "Logos", "targetValue": 50},
		},
	}
}

func (s *testServer) createObjective(t *testing.T) domain.Objective {
	t.Helper()
	status, data := s.do(t, http.MethodPost, "/teams/acme/objectives", objectivePayload(), tokenFor(t, "alice"))
	require.Equal(t, http.StatusCreated, status, string(data))
	return decode[ObjectiveEnvelope](t, data).Data
}

func TestObjectiveLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	alice := tokenFor(t, "alice")
	o := srv.createObjective(t)
	require.Len(t, o.KeyResults, 2)
	assert.Equal(t, "ARR", o.KeyResults[0].Title)
	assert.Equal(t, "IN_PROGRESS", o.KeyResults[0].Status)

	// Patch ignores keyResults and unknown keys.
	status, data := srv.do(t, http.MethodPatch, "/teams/acme/objectives/"+o.ID, map[string]any{
		"title":      "Grow ARR",
		"keyResults": []any{},
		"owner":      "bob",
	}, alice)
	require.Equal(t, http.StatusOK, status, string(data))
	patched := decode[ObjectiveEnvelope](t, data).Data
	assert.Equal(t, "Grow ARR", patched.Title)
	assert.Equal(t, "FY24", patched.Description)
	require.Len(t, patched.KeyResults, 2)
	assert.Equal(t, o.KeyResults[0].ID, patched.KeyResults[0].ID)

	// An invalid status alone is dropped and nothing changes.
	status, data = srv.do(t, http.MethodPatch, "/teams/acme/objectives/"+o.ID, map[string]any{"status": "BOGUS"}, alice)
	require.Equal(t, http.StatusOK, status, string(data))
	assert.Equal(t, "ACTIVE", decode[ObjectiveEnvelope](t, data).Data.Status)

	// Replace with keyResults recreates the set.
	body := objectivePayload()
	body["keyResults"] = []map[string]any{{"title": "NPS", "targetValue": 60, "currentValue": 40}}
	status, data = srv.do(t, http.MethodPut, "/teams/acme/objectives/"+o.ID, body, alice)
	require.Equal(t, http.StatusOK, status, string(data))
	replaced := decode[ObjectiveEnvelope](t, data).Data
	require.Len(t, replaced.KeyResults, 1)
	kr := replaced.KeyResults[0]
	assert.Equal(t, "NPS", kr.Title)
	assert.NotEqual(t, o.KeyResults[0].ID, kr.ID)

	// Replace without keyResults keeps them.
	body = objectivePayload()
	delete(body, "keyResults")
	body["title"] = "Grow revenue again"
	status, data = srv.do(t, http.MethodPut, "/teams/acme/objectives/"+o.ID, body, alice)
	require.Equal(t, http.StatusOK, status, string(data))
	kept := decode[ObjectiveEnvelope](t, data).Data
	require.Len(t, kept.KeyResults, 1)
	assert.Equal(t, kr.ID, kept.KeyResults[0].ID)

	krPath := "/teams/acme/objectives/" + o.ID + "/key-results/" + kr.ID
	status, data = srv.do(t, http.MethodPut, krPath, map[string]any{"currentValue": 55}, alice)
	require.Equal(t, http.StatusOK, status, string(data))
	assert.Equal(t, 55.0, decode[KeyResultEnvelope](t, data).Data.CurrentValue)

	status, data = srv.do(t, http.MethodPatch, krPath, map[string]any{"unit": "pts", "objectiveId": "x"}, alice)
	require.Equal(t, http.StatusOK, status, string(data))
	patchedKR := decode[KeyResultEnvelope](t, data).Data
	require.NotNil(t, patchedKR.Unit)
	assert.Equal(t, "pts", *patchedKR.Unit)

	status, _ = srv.do(t, http.MethodDelete, krPath, nil, alice)
	assert.Equal(t, http.StatusNoContent, status)
	status, data = srv.do(t, http.MethodDelete, krPath, nil, alice)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "not_found", decode[errorEnvelope](t, data).Error.Code)

	status, data = srv.do(t, http.MethodGet, "/teams/acme/objectives", nil, alice)
	require.Equal(t, http.StatusOK, status, string(data))
	list := decode[ObjectiveListEnvelope](t, data)
	assert.Equal(t, 1, list.Total)
	require.Len(t, list.Data, 1)
	assert.Empty(t, list.Data[0].KeyResults)

	status, _ = srv.do(t, http.MethodDelete, "/teams/acme/objectives/"+o.ID, nil, alice)
	assert.Equal(t, http.StatusNoContent, status)
	status, _ = srv.do(t, http.MethodGet, "/teams/acme/objectives/"+o.ID, nil, alice)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestValidationErrorsUseEnvelope(t *testing.T) {
	srv := newTestServer(t)
	alice := tokenFor(t, "alice")
	o := srv.createObjective(t)
	objPath := "/teams/acme/objectives/" + o.ID

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		code   string
	}{
		{"empty patch", http.MethodPatch, objPath, map[string]any{}, "validation_failed"},
		{"only unknown keys", http.MethodPatch, objPath, map[string]any{"keyResults": []any{}}, "validation_failed"},
		{"blank title", http.MethodPatch, objPath, map[string]any{"title": ""}, "validation_failed"},
		{"bad date", http.MethodPatch, objPath, map[string]any{"startDate": "Jan 1"}, "validation_failed"},
		{"end before start", http.MethodPatch, objPath, map[string]any{"endDate": "2023-01-01"}, "validation_failed"},
		{"replace missing title", http.MethodPut, objPath, map[string]any{"startDate": "2024-01-01", "endDate": "2024-12-31"}, "validation_failed"},
		{"non numeric progress", http.MethodPut, objPath + "/key-results/" + o.KeyResults[0].ID, map[string]any{"currentValue": "abc"}, "bad_request"},
		{"missing progress", http.MethodPut, objPath + "/key-results/" + o.KeyResults[0].ID, map[string]any{}, "validation_failed"},
		{"string progress", http.MethodPut, objPath + "/key-results/" + o.KeyResults[0].ID, map[string]any{"currentValue": "5"}, "bad_request"},
		{"unknown key result status", http.MethodPatch, objPath + "/key-results/" + o.KeyResults[0].ID, map[string]any{"status": "nope"}, "validation_failed"},
		{"page out of range", http.MethodGet, "/teams/acme/objectives?page=9223372036854775807", nil, "validation_failed"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, data := srv.do(t, tc.method, tc.path, tc.body, alice)
			require.Equal(t, http.StatusBadRequest, status, string(data))
			env := decode[errorEnvelope](t, data)
			assert.Equal(t, tc.code, env.Error.Code)
			assert.NotEmpty(t, env.Error.Message)
		})
	}

	status, data := srv.do(t, http.MethodPatch, objPath, map[string]any{"title": ""}, alice)
	require.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "title", decode[errorEnvelope](t, data).Error.Details["field"])

	status, data = srv.do(t, http.MethodPatch, objPath+"/key-results/"+o.KeyResults[0].ID, map[string]any{"status": "nope", "title": "renamed"}, alice)
	require.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "status", decode[errorEnvelope](t, data).Error.Details["field"])

	status, data = srv.do(t, http.MethodGet, objPath, nil, alice)
	require.Equal(t, http.StatusOK, status)
	got := decode[ObjectiveEnvelope](t, data).Data
	assert.Equal(t, "Grow revenue", got.Title)
	assert.Equal(t, "ARR", got.KeyResults[0].Title)
	assert.Equal(t, 0.0, got.KeyResults[0].CurrentValue)
}

func TestReplaceObjectiveKeyResultsOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	alice := tokenFor(t, "alice")
	o := srv.createObjective(t)
	objPath := "/teams/acme/objectives/" + o.ID

	body := objectivePayload()
	delete(body, "keyResults")
	status, data := srv.do(t, http.MethodPut, objPath, body, alice)
	require.Equal(t, http.StatusOK, status, string(data))
	assert.Len(t, decode[ObjectiveEnvelope](t, data).Data.KeyResults, 2)

	body["keyResults"] = []any{}
	status, data = srv.do(t, http.MethodPut, objPath, body, alice)
	require.Equal(t, http.StatusOK, status, string(data))
	assert.Empty(t, decode[ObjectiveEnvelope](t, data).Data.KeyResults)

	status, data = srv.do(t, http.MethodGet, objPath, nil, alice)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, decode[ObjectiveEnvelope](t, data).Data.KeyResults)
	for _, kr := range o.KeyResults {
		status, _ = srv.do(t, http.MethodDelete, objPath+"/key-results/"+kr.ID, nil, alice)
		assert.Equal(t, http.StatusNotFound, status)
	}
}

func TestOversizedBodyIsRejected(t *testing.T) {
	srv := newTestServer(t)
	o := srv.createObjective(t)

	status, data := srv.do(t, http.MethodPatch, "/teams/acme/objectives/"+o.ID, map[string]any{
		"description": strings.Repeat("x", maxBodyBytes+1),
	}, tokenFor(t, "alice"))
	require.Equal(t, http.StatusRequestEntityTooLarge, status, string(data))
	assert.Equal(t, "body_too_large", decode[errorEnvelope](t, data).Error.Code)

	status, data = srv.do(t, http.MethodGet, "/teams/acme/objectives/"+o.ID, nil, tokenFor(t, "alice"))
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "FY24", decode[ObjectiveEnvelope](t, data).Data.Description)
}

func TestUnclassifiedErrorsLogStack(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithWriter(&buf, "okrline", "debug")
	ctx := log.WithContext(context.Background())

	se := handleError(ctx, errors.New("disk on fire"))
	require.Equal(t, http.StatusInternalServerError, se.GetStatus())
	assert.Equal(t, "internal error", se.Error())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), buf.String())
	assert.Equal(t, "request failed", entry["message"])
	assert.Equal(t, "disk on fire", entry["error"])
	assert.NotEmpty(t, entry["stack"])

	buf.Reset()
	se = handleError(ctx, engine.ValidationError{Field: "title", Message: "is required"})
	assert.Equal(t, http.StatusBadRequest, se.GetStatus())
	assert.Zero(t, buf.Len())
}

func TestAuthentication(t *testing.T) {
	srv := newTestServer(t)

	status, data := srv.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, status, string(data))

	status, data = srv.do(t, http.MethodGet, "/teams/acme/objectives", nil, nil)
	require.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "unauthorized", decode[errorEnvelope](t, data).Error.Code)

	status, data = srv.do(t, http.MethodGet, "/teams/acme/objectives", nil, map[string]string{"Authorization": "Bearer nope"})
	require.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "invalid_credentials", decode[errorEnvelope](t, data).Error.Code)

	status, _ = srv.do(t, http.MethodGet, "/teams/acme/objectives", nil, map[string]string{"X-Actor-Id": "alice"})
	assert.Equal(t, http.StatusUnauthorized, status, "legacy header is off by default")

	status, data = srv.do(t, http.MethodGet, "/teams/acme/objectives", nil, map[string]string{"X-Api-Key": srv.apiKey})
	assert.Equal(t, http.StatusOK, status, string(data))

	status, data = srv.do(t, http.MethodPost, "/auth/dev/login", map[string]any{"actorId": "alice"}, nil)
	require.Equal(t, http.StatusOK, status, string(data))
	login := decode[DevLoginResponse](t, data)
	status, data = srv.do(t, http.MethodGet, "/me?team=acme", nil, map[string]string{"Authorization": "Bearer " + login.Token})
	require.Equal(t, http.StatusOK, status, string(data))
	me := decode[WhoAmIResponse](t, data)
	assert.Equal(t, "alice", me.ActorID)
	assert.Equal(t, app.OwnerRole, me.Role)
	assert.Contains(t, me.Permissions, config.PermOKRDelete)
}

func TestAuthorization(t *testing.T) {
	srv := newTestServer(t)
	o := srv.createObjective(t)
	objPath := "/teams/acme/objectives/" + o.ID

	viewer := tokenFor(t, "val")
	status, _ := srv.do(t, http.MethodGet, objPath, nil, viewer)
	assert.Equal(t, http.StatusOK, status)
	status, data := srv.do(t, http.MethodPatch, objPath, map[string]any{"title": "Mine"}, viewer)
	require.Equal(t, http.StatusForbidden, status)
	env := decode[errorEnvelope](t, data)
	assert.Equal(t, "forbidden", env.Error.Code)
	assert.Equal(t, config.PermOKRUpdate, env.Error.Details["permission"])

	outsider := tokenFor(t, "mallory")
	status, data = srv.do(t, http.MethodGet, objPath, nil, outsider)
	require.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "not_member", decode[errorEnvelope](t, data).Error.Code)

	// Objectives are invisible from another team's path.
	status, _ = srv.do(t, http.MethodGet, "/teams/other/objectives/"+o.ID, nil, outsider)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = srv.do(t, http.MethodGet, "/teams/missing/objectives", nil, tokenFor(t, "alice"))
	assert.Equal(t, http.StatusNotFound, status)
}

func TestInitiativesAndJiraLinks(t *testing.T) {
	srv := newTestServer(t)
	alice := tokenFor(t, "alice")
	o := srv.createObjective(t)
	base := "/teams/acme/objectives/" + o.ID

	status, data := srv.do(t, http.MethodPost, base+"/initiatives", map[string]any{"title": "Pricing page"}, alice)
	require.Equal(t, http.StatusCreated, status, string(data))
	assert.Equal(t, "PLANNED", decode[InitiativeEnvelope](t, data).Data.Status)

	status, data = srv.do(t, http.MethodGet, base+"/initiatives", nil, alice)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[InitiativeListEnvelope](t, data).Data, 1)

	linkPath := base + "/key-results/" + o.KeyResults[0].ID + "/jira-links"
	status, data = srv.do(t, http.MethodPost, linkPath, map[string]any{"issueKey": "sales-42"}, alice)
	require.Equal(t, http.StatusCreated, status, string(data))
	assert.Equal(t, "SALES-42", decode[JiraLinkEnvelope](t, data).Data.IssueKey)

	status, _ = srv.do(t, http.MethodPost, linkPath, map[string]any{"issueKey": "not a key"}, alice)
	assert.Equal(t, http.StatusBadRequest, status)

	status, data = srv.do(t, http.MethodGet, base, nil, alice)
	require.Equal(t, http.StatusOK, status)
	got := decode[ObjectiveEnvelope](t, data).Data
	require.Len(t, got.KeyResults[0].JiraLinks, 1)
	assert.Empty(t, got.KeyResults[1].JiraLinks)
}

func TestOpenAPIDocument(t *testing.T) {
	srv := newTestServer(t)
	status, data := srv.do(t, http.MethodGet, "/openapi.json", nil, nil)
	require.Equal(t, http.StatusOK, status)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	paths, ok := doc["paths"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, paths, "/v0/teams/{slug}/objectives/{objectiveId}")
}

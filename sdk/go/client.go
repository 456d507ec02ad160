package okrlinesdk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Client is a minimal okrline HTTP API client scoped to one team.
type Client struct {
	TeamSlug string
	http     *resty.Client
}

// New creates a client with sane defaults. baseURL includes the API base path, e.g. http://host:8080/v0.
func New(baseURL, teamSlug string) *Client {
	c := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("Content-Type", "application/json").
		SetTimeout(10 * time.Second)
	return &Client{TeamSlug: teamSlug, http: c}
}

// WithBearerToken authenticates requests with a JWT.
func (c *Client) WithBearerToken(token string) *Client {
	c.http.SetAuthToken(token)
	return c
}

// WithAPIKey authenticates requests with an API key.
func (c *Client) WithAPIKey(key string) *Client {
	c.http.SetHeader("X-Api-Key", key)
	return c
}

// WithTimeout overrides the request timeout.
func (c *Client) WithTimeout(d time.Duration) *Client {
	c.http.SetTimeout(d)
	return c
}

type KeyResult struct {
	ID           string          `json:"id"`
	ObjectiveID  string          `json:"objectiveId"`
	Title        string          `json:"title"`
	TargetValue  float64         `json:"targetValue"`
	CurrentValue float64         `json:"currentValue"`
	Unit         *string         `json:"unit,omitempty"`
	Status       string          `json:"status"`
	JiraLinks    []JiraIssueLink `json:"jiraLinks"`
	CreatedAt    string          `json:"createdAt"`
	UpdatedAt    string          `json:"updatedAt"`
}

type Objective struct {
	ID          string       `json:"id"`
	TeamID      string       `json:"teamId"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Status      string       `json:"status"`
	StartDate   string       `json:"startDate"`
	EndDate     string       `json:"endDate"`
	KeyResults  []KeyResult  `json:"keyResults"`
	Initiatives []Initiative `json:"initiatives"`
	CreatedAt   string       `json:"createdAt"`
	UpdatedAt   string       `json:"updatedAt"`
}

type Initiative struct {
	ID          string `json:"id"`
	ObjectiveID string `json:"objectiveId"`
	Title       string `json:"title"`
	Status      string `json:"status"`
	CreatedAt   string `json:"createdAt"`
}

type JiraIssueLink struct {
	ID          string `json:"id"`
	KeyResultID string `json:"keyResultId,omitempty"`
	IssueKey    string `json:"issueKey"`
	URL         string `json:"url,omitempty"`
	SyncedAt    string `json:"syncedAt"`
}

type ObjectivePage struct {
	Data  []Objective `json:"data"`
	Total int         `json:"total"`
}

type WhoAmI struct {
	ActorID     string   `json:"actorId"`
	Source      string   `json:"source"`
	Team        string   `json:"team,omitempty"`
	Role        string   `json:"role,omitempty"`
	Permissions []string `json:"permissions"`
}

type KeyResultInput struct {
	Title        string   `json:"title"`
	TargetValue  *float64 `json:"targetValue,omitempty"`
	CurrentValue *float64 `json:"currentValue,omitempty"`
	Unit         *string  `json:"unit,omitempty"`
	Status       string   `json:"status,omitempty"`
}

// ObjectiveInput is the body of create and replace. A nil KeyResults leaves key results alone on
// replace; a non-nil slice, even empty, replaces all of them.
type ObjectiveInput struct {
	Title       string
	Description string
	Status      string
	StartDate   string
	EndDate     string
	KeyResults  []KeyResultInput
}

func (in ObjectiveInput) MarshalJSON() ([]byte, error) {
	body := map[string]any{
		"title":       in.Title,
		"description": in.Description,
		"status":      in.Status,
		"startDate":   in.StartDate,
		"endDate":     in.EndDate,
	}
	if in.KeyResults != nil {
		body["keyResults"] = in.KeyResults
	}
	return json.Marshal(body)
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    map[string]any
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

type errorEnvelope struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

// WhoAmI reports the authenticated actor, with its role in the client's team.
func (c *Client) WhoAmI(ctx context.Context) (WhoAmI, error) {
	var resp WhoAmI
	err := c.do(ctx, http.MethodGet, "me?team="+url.QueryEscape(c.TeamSlug), nil, &resp)
	return resp, err
}

// ListObjectives returns one page of objectives; zero page or limit uses the server default.
func (c *Client) ListObjectives(ctx context.Context, page, limit int) (ObjectivePage, error) {
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	endpoint := c.teamPath("objectives")
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp ObjectivePage
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) GetObjective(ctx context.Context, id string) (Objective, error) {
	return c.objective(ctx, http.MethodGet, c.objectivePath(id), nil)
}

func (c *Client) CreateObjective(ctx context.Context, in ObjectiveInput) (Objective, error) {
	return c.objective(ctx, http.MethodPost, c.teamPath("objectives"), in)
}

// ReplaceObjective overwrites every field. See ObjectiveInput for key result handling.
func (c *Client) ReplaceObjective(ctx context.Context, id string, in ObjectiveInput) (Objective, error) {
	return c.objective(ctx, http.MethodPut, c.objectivePath(id), in)
}

// PatchObjective sends fields as-is; the server applies title, description, status, startDate and endDate.
func (c *Client) PatchObjective(ctx context.Context, id string, fields map[string]any) (Objective, error) {
	return c.objective(ctx, http.MethodPatch, c.objectivePath(id), fields)
}

func (c *Client) DeleteObjective(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, c.objectivePath(id), nil, nil)
}

func (c *Client) CreateKeyResult(ctx context.Context, objectiveID string, in KeyResultInput) (KeyResult, error) {
	return c.keyResult(ctx, http.MethodPost, c.objectivePath(objectiveID)+"/key-results", in)
}

// PatchKeyResult applies title, currentValue, targetValue, unit and status; a nil unit clears it.
func (c *Client) PatchKeyResult(ctx context.Context, objectiveID, keyResultID string, fields map[string]any) (KeyResult, error) {
	return c.keyResult(ctx, http.MethodPatch, c.keyResultPath(objectiveID, keyResultID), fields)
}

// UpdateProgress sets the key result's current value.
func (c *Client) UpdateProgress(ctx context.Context, objectiveID, keyResultID string, value float64) (KeyResult, error) {
	return c.keyResult(ctx, http.MethodPut, c.keyResultPath(objectiveID, keyResultID), map[string]any{"currentValue": value})
}

func (c *Client) DeleteKeyResult(ctx context.Context, objectiveID, keyResultID string) error {
	return c.do(ctx, http.MethodDelete, c.keyResultPath(objectiveID, keyResultID), nil, nil)
}

func (c *Client) CreateInitiative(ctx context.Context, objectiveID, title, status string) (Initiative, error) {
	var resp struct {
		Data Initiative `json:"data"`
	}
	body := map[string]any{"title": title}
	if status != "" {
		body["status"] = status
	}
	err := c.do(ctx, http.MethodPost, c.objectivePath(objectiveID)+"/initiatives", body, &resp)
	return resp.Data, err
}

func (c *Client) ListInitiatives(ctx context.Context, objectiveID string) ([]Initiative, error) {
	var resp struct {
		Data []Initiative `json:"data"`
	}
	err := c.do(ctx, http.MethodGet, c.objectivePath(objectiveID)+"/initiatives", nil, &resp)
	return resp.Data, err
}

// LinkJiraIssue attaches an issue key, and optionally its URL, to a key result.
func (c *Client) LinkJiraIssue(ctx context.Context, objectiveID, keyResultID, issueKey, issueURL string) (JiraIssueLink, error) {
	var resp struct {
		Data JiraIssueLink `json:"data"`
	}
	body := map[string]any{"issueKey": issueKey}
	if issueURL != "" {
		body["url"] = issueURL
	}
	err := c.do(ctx, http.MethodPost, c.keyResultPath(objectiveID, keyResultID)+"/jira-links", body, &resp)
	return resp.Data, err
}

func (c *Client) ListJiraLinks(ctx context.Context, objectiveID, keyResultID string) ([]JiraIssueLink, error) {
	var resp struct {
		Data []JiraIssueLink `json:"data"`
	}
	err := c.do(ctx, http.MethodGet, c.keyResultPath(objectiveID, keyResultID)+"/jira-links", nil, &resp)
	return resp.Data, err
}

func (c *Client) objective(ctx context.Context, method, endpoint string, body any) (Objective, error) {
	var resp struct {
		Data Objective `json:"data"`
	}
	err := c.do(ctx, method, endpoint, body, &resp)
	return resp.Data, err
}

func (c *Client) keyResult(ctx context.Context, method, endpoint string, body any) (KeyResult, error) {
	var resp struct {
		Data KeyResult `json:"data"`
	}
	err := c.do(ctx, method, endpoint, body, &resp)
	return resp.Data, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	req := c.http.R().SetContext(ctx)
	if body != nil {
		req.SetBody(body)
	}
	if out != nil {
		req.SetResult(out)
	}
	resp, err := req.Execute(method, "/"+strings.TrimLeft(endpoint, "/"))
	if err != nil {
		return fmt.Errorf("okrline request: %w", err)
	}
	if resp.IsError() {
		apiErr := &APIError{StatusCode: resp.StatusCode(), Body: resp.String()}
		var env errorEnvelope
		if json.Unmarshal(resp.Body(), &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
			apiErr.Details = env.Error.Details
		}
		return apiErr
	}
	return nil
}

func (c *Client) teamPath(p string) string {
	return fmt.Sprintf("teams/%s/%s", url.PathEscape(c.TeamSlug), strings.TrimLeft(p, "/"))
}

func (c *Client) objectivePath(id string) string {
	return c.teamPath("objectives/" + url.PathEscape(id))
}

func (c *Client) keyResultPath(objectiveID, keyResultID string) string {
	return c.objectivePath(objectiveID) + "/key-results/" + url.PathEscape(keyResultID)
}

package engine

import (
	"context"
	"database/sql"
	"net/url"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"okrline/internal/domain"
)

const defaultInitiativeStatus = "PLANNED"

var issueKeyPattern = regexp.MustCompile(`^[A-Z][A-Z0-9_]*-[0-9]+$`)

type InitiativeInput struct {
	Title  string
	Status string
}

type JiraLinkInput struct {
	IssueKey string
	URL      string
}

// CreateInitiative attaches a work item to the objective. Status is free text, PLANNED when empty.
func (e Engine) CreateInitiative(ctx context.Context, objectiveID, teamID string, in InitiativeInput) (domain.Initiative, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return domain.Initiative{}, invalid("title", "is required")
	}
	status := strings.TrimSpace(in.Status)
	if status == "" {
		status = defaultInitiativeStatus
	}
	item := domain.Initiative{
		ID:          uuid.NewString(),
		ObjectiveID: objectiveID,
		Title:       title,
		Status:      status,
		CreatedAt:   e.timestamp(),
	}
	err := e.Repo.WithTx(ctx, func(tx *sql.Tx) error {
		if err := e.requireObjective(ctx, tx, objectiveID, teamID); err != nil {
			return err
		}
		return e.Repo.InsertInitiative(ctx, tx, item)
	})
	if err != nil {
		return domain.Initiative{}, err
	}
	return item, nil
}

func (e Engine) ListInitiatives(ctx context.Context, objectiveID, teamID string) ([]domain.Initiative, error) {
	if err := e.requireObjective(ctx, nil, objectiveID, teamID); err != nil {
		return nil, err
	}
	inits, err := e.Repo.ListInitiatives(ctx, nil, objectiveID)
	if err != nil {
		return nil, err
	}
	if inits == nil {
		inits = []domain.Initiative{}
	}
	return inits, nil
}

// AddJiraLink records a Jira issue against a key result. The sync time is the call time.
func (e Engine) AddJiraLink(ctx context.Context, objectiveID, keyResultID, teamID string, in JiraLinkInput) (domain.JiraIssueLink, error) {
	key := strings.ToUpper(strings.TrimSpace(in.IssueKey))
	if key == "" {
		return domain.JiraIssueLink{}, invalid("issueKey", "is required")
	}
	if !issueKeyPattern.MatchString(key) {
		return domain.JiraIssueLink{}, invalid("issueKey", "must look like PROJ-123")
	}
	link := strings.TrimSpace(in.URL)
	if link != "" {
		u, err := url.Parse(link)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return domain.JiraIssueLink{}, invalid("url", "must be an absolute http(s) URL")
		}
	}
	krID := keyResultID
	l := domain.JiraIssueLink{
		ID:          uuid.NewString(),
		KeyResultID: &krID,
		IssueKey:    key,
		URL:         link,
		SyncedAt:    e.timestamp(),
	}
	err := e.Repo.WithTx(ctx, func(tx *sql.Tx) error {
		if err := e.requireKeyResult(ctx, tx, objectiveID, keyResultID, teamID); err != nil {
			return err
		}
		return e.Repo.InsertJiraLink(ctx, tx, l)
	})
	if err != nil {
		return domain.JiraIssueLink{}, err
	}
	return l, nil
}

// ListJiraLinks returns a key result's links, most recently synced first.
func (e Engine) ListJiraLinks(ctx context.Context, objectiveID, keyResultID, teamID string) ([]domain.JiraIssueLink, error) {
	if err := e.requireKeyResult(ctx, nil, objectiveID, keyResultID, teamID); err != nil {
		return nil, err
	}
	links, err := e.Repo.ListJiraLinksByKeyResult(ctx, nil, keyResultID)
	if err != nil {
		return nil, err
	}
	if links == nil {
		links = []domain.JiraIssueLink{}
	}
	return links, nil
}

func (e Engine) requireKeyResult(ctx context.Context, tx *sql.Tx, objectiveID, keyResultID, teamID string) error {
	if err := e.requireObjective(ctx, tx, objectiveID, teamID); err != nil {
		return err
	}
	_, err := e.Repo.GetKeyResult(ctx, tx, keyResultID, objectiveID)
	return wrapNotFound(err, "key result", keyResultID)
}

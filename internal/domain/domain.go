package domain

import (
	"fmt"
	"strings"
	"time"
)

const (
	ObjectiveActive    = "ACTIVE"
	ObjectiveCompleted = "COMPLETED"
	ObjectiveArchived  = "ARCHIVED"

	KeyResultInProgress = "IN_PROGRESS"
	KeyResultAchieved   = "ACHIEVED"
	KeyResultBlocked    = "BLOCKED"
	KeyResultDropped    = "DROPPED"
)

// DateLayout is the storage and wire format of calendar dates.
const DateLayout = "2006-01-02"

var (
	objectiveStatuses = []string{ObjectiveActive, ObjectiveCompleted, ObjectiveArchived}
	keyResultStatuses = []string{KeyResultInProgress, KeyResultAchieved, KeyResultBlocked, KeyResultDropped}
)

type Team struct {
	ID        string `json:"id"`
	Slug      string `json:"slug"`
	Name      string `json:"name"`
	CreatedAt string `json:"createdAt" format:"date-time"`
}

type Member struct {
	TeamID    string `json:"teamId"`
	ActorID   string `json:"actorId"`
	Role      string `json:"role"`
	CreatedAt string `json:"createdAt" format:"date-time"`
}

type Objective struct {
	ID          string       `json:"id"`
	TeamID      string       `json:"teamId"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Status      string       `json:"status" enum:"ACTIVE,COMPLETED,ARCHIVED"`
	StartDate   string       `json:"startDate" format:"date"`
	EndDate     string       `json:"endDate" format:"date"`
	KeyResults  []KeyResult  `json:"keyResults"`
	Initiatives []Initiative `json:"initiatives"`
	CreatedAt   string       `json:"createdAt" format:"date-time"`
	UpdatedAt   string       `json:"updatedAt" format:"date-time"`
}

type KeyResult struct {
	ID           string          `json:"id"`
	ObjectiveID  string          `json:"objectiveId"`
	Title        string          `json:"title"`
	TargetValue  float64         `json:"targetValue"`
	CurrentValue float64         `json:"currentValue"`
	Unit         *string         `json:"unit,omitempty"`
	Status       string          `json:"status" enum:"IN_PROGRESS,ACHIEVED,BLOCKED,DROPPED"`
	Position     int             `json:"-"`
	JiraLinks    []JiraIssueLink `json:"jiraLinks"`
	CreatedAt    string          `json:"createdAt" format:"date-time"`
	UpdatedAt    string          `json:"updatedAt" format:"date-time"`
}

type Initiative struct {
	ID          string `json:"id"`
	ObjectiveID string `json:"objectiveId"`
	Title       string `json:"title"`
	Status      string `json:"status"`
	CreatedAt   string `json:"createdAt" format:"date-time"`
}

type JiraIssueLink struct {
	ID           string  `json:"id"`
	KeyResultID  *string `json:"keyResultId,omitempty"`
	InitiativeID *string `json:"initiativeId,omitempty"`
	IssueKey     string  `json:"issueKey"`
	URL          string  `json:"url,omitempty"`
	SyncedAt     string  `json:"syncedAt" format:"date-time"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actorId"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"-"`
	CreatedAt string `json:"createdAt" format:"date-time"`
}

// NormalizeObjectiveStatus upper-cases s and reports whether it is a known objective status.
func NormalizeObjectiveStatus(s string) (string, bool) {
	return normalizeEnum(s, objectiveStatuses)
}

// NormalizeKeyResultStatus upper-cases s and reports whether it is a known key result status.
func NormalizeKeyResultStatus(s string) (string, bool) {
	return normalizeEnum(s, keyResultStatuses)
}

func ObjectiveStatuses() []string { return append([]string(nil), objectiveStatuses...) }

func KeyResultStatuses() []string { return append([]string(nil), keyResultStatuses...) }

func normalizeEnum(s string, allowed []string) (string, bool) {
	upper := strings.ToUpper(strings.TrimSpace(s))
	for _, v := range allowed {
		if v == upper {
			return upper, true
		}
	}
	return upper, false
}

// ParseDate accepts YYYY-MM-DD or an RFC 3339 timestamp and returns the calendar date.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}

// FormatDate renders t as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

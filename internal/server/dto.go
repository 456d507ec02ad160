package server

import (
	"okrline/internal/domain"
	"okrline/internal/engine"
)

// Request payloads. Unknown keys are accepted so the whitelist rules decide what is applied.

type KeyResultRequest struct {
	_            struct{} `json:"-" additionalProperties:"true"`
	Title        string   `json:"title,omitempty"`
	TargetValue  *float64 `json:"targetValue,omitempty"`
	CurrentValue *float64 `json:"currentValue,omitempty"`
	Unit         *string  `json:"unit,omitempty" nullable:"true"`
	Status       string   `json:"status,omitempty" example:"IN_PROGRESS"`
}

type ObjectiveRequest struct {
	_           struct{}           `json:"-" additionalProperties:"true"`
	Title       string             `json:"title,omitempty"`
	Description *string            `json:"description,omitempty" nullable:"true"`
	Status      string             `json:"status,omitempty" example:"ACTIVE"`
	StartDate   string             `json:"startDate,omitempty" example:"2024-01-01"`
	EndDate     string             `json:"endDate,omitempty" example:"2024-12-31"`
	KeyResults  []KeyResultRequest `json:"keyResults,omitempty"`
}

type ObjectivePatchRequest struct {
	_           struct{} `json:"-" additionalProperties:"true"`
	Title       *string  `json:"title,omitempty"`
	Description *string  `json:"description,omitempty" nullable:"true"`
	Status      *string  `json:"status,omitempty"`
	StartDate   *string  `json:"startDate,omitempty"`
	EndDate     *string  `json:"endDate,omitempty"`
}

type KeyResultPatchRequest struct {
	_            struct{} `json:"-" additionalProperties:"true"`
	Title        *string  `json:"title,omitempty"`
	CurrentValue *float64 `json:"currentValue,omitempty"`
	TargetValue  *float64 `json:"targetValue,omitempty"`
	Unit         *string  `json:"unit,omitempty" nullable:"true"`
	Status       *string  `json:"status,omitempty"`
}

type ProgressRequest struct {
	CurrentValue *float64 `json:"currentValue,omitempty" example:"4"`
}

type InitiativeRequest struct {
	Title  string `json:"title"`
	Status string `json:"status,omitempty" example:"PLANNED"`
}

type JiraLinkRequest struct {
	IssueKey string `json:"issueKey" example:"SALES-42"`
	URL      string `json:"url,omitempty" format:"uri"`
}

type DevLoginRequest struct {
	ActorID string `json:"actorId"`
}

// Response payloads

type ObjectiveEnvelope struct {
	Data domain.Objective `json:"data"`
}

type ObjectiveListEnvelope struct {
	Data  []domain.Objective `json:"data"`
	Total int                `json:"total"`
}

type KeyResultEnvelope struct {
	Data domain.KeyResult `json:"data"`
}

type InitiativeEnvelope struct {
	Data domain.Initiative `json:"data"`
}

type InitiativeListEnvelope struct {
	Data []domain.Initiative `json:"data"`
}

type JiraLinkEnvelope struct {
	Data domain.JiraIssueLink `json:"data"`
}

type JiraLinkListEnvelope struct {
	Data []domain.JiraIssueLink `json:"data"`
}

type WhoAmIResponse struct {
	ActorID     string   `json:"actorId"`
	Source      string   `json:"source"`
	Team        string   `json:"team,omitempty"`
	Role        string   `json:"role,omitempty"`
	Permissions []string `json:"permissions"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

func objectiveInput(req ObjectiveRequest) engine.ObjectiveInput {
	in := engine.ObjectiveInput{
		Title:     req.Title,
		Status:    req.Status,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
	}
	if req.Description != nil {
		in.Description = *req.Description
	}
	if req.KeyResults != nil {
		in.KeyResults = make([]engine.KeyResultInput, 0, len(req.KeyResults))
		for _, kr := range req.KeyResults {
			in.KeyResults = append(in.KeyResults, keyResultInput(kr))
		}
	}
	return in
}

func keyResultInput(req KeyResultRequest) engine.KeyResultInput {
	return engine.KeyResultInput{
		Title:        req.Title,
		TargetValue:  req.TargetValue,
		CurrentValue: req.CurrentValue,
		Unit:         req.Unit,
		Status:       req.Status,
	}
}

func nonNilSlice(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

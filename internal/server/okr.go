package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"okrline/internal/config"
	"okrline/internal/domain"
	"okrline/internal/engine"
)

func objectiveResponse(o domain.Objective) *struct {
	Body ObjectiveEnvelope `json:"body"`
} {
	return &struct {
		Body ObjectiveEnvelope `json:"body"`
	}{Body: ObjectiveEnvelope{Data: o}}
}

func keyResultResponse(kr domain.KeyResult) *struct {
	Body KeyResultEnvelope `json:"body"`
} {
	return &struct {
		Body KeyResultEnvelope `json:"body"`
	}{Body: KeyResultEnvelope{Data: kr}}
}

// withKeyResultsPresence marks the key results as supplied when the raw body carries a non-null
// keyResults key, so an explicit empty array still clears the set.
func withKeyResultsPresence(ctx context.Context, in engine.ObjectiveInput) engine.ObjectiveInput {
	if v, ok := bodyMap(ctx)["keyResults"]; ok && v != nil && in.KeyResults == nil {
		in.KeyResults = []engine.KeyResultInput{}
	}
	return in
}

func registerObjectives(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID: "objectives-list",
		Method:      http.MethodGet,
		Path:        "/teams/{slug}/objectives",
		Summary:     "List objectives",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Slug  string `path:"slug" doc:"Team slug"`
		Page  int    `query:"page" minimum:"0"`
		Limit int    `query:"limit" minimum:"0"`
	}) (*struct {
		Body ObjectiveListEnvelope `json:"body"`
	}, error) {
		m, err := requireTeamPermission(ctx, h.rbac, input.Slug, config.PermOKRRead)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		page, err := h.engine.ListObjectives(ctx, m.Team.ID, input.Page, input.Limit)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body ObjectiveListEnvelope `json:"body"`
		}{Body: ObjectiveListEnvelope{Data: page.Items, Total: page.Total}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "objectives-create",
		Method:        http.MethodPost,
		Path:          "/teams/{slug}/objectives",
		Summary:       "Create an objective",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Slug string           `path:"slug" doc:"Team slug"`
		Body ObjectiveRequest `json:"body"`
	}) (*struct {
		Body ObjectiveEnvelope `json:"body"`
	}, error) {
		m, err := requireTeamPermission(ctx, h.rbac, input.Slug, config.PermOKRCreate)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		o, err := h.engine.CreateObjective(ctx, m.Team.ID, withKeyResultsPresence(ctx, objectiveInput(input.Body)))
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return objectiveResponse(o), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "objectives-get",
		Method:      http.MethodGet,
		Path:        "/teams/{slug}/objectives/{objectiveId}",
		Summary:     "Get an objective with its key results",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Slug        string `path:"slug" doc:"Team slug"`
		ObjectiveID string `path:"objectiveId"`
	}) (*struct {
		Body ObjectiveEnvelope `json:"body"`
	}, error) {
		m, err := requireTeamPermission(ctx, h.rbac, input.Slug, config.PermOKRRead)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		o, err := h.engine.GetObjective(ctx, input.ObjectiveID, m.Team.ID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return objectiveResponse(o), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "objectives-replace",
		Method:      http.MethodPut,
		Path:        "/teams/{slug}/objectives/{objectiveId}",
		Summary:     "Replace an objective",
		Description: "All objective fields are required. When keyResults is present the existing key results are deleted and recreated from the array.",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Slug        string           `path:"slug" doc:"Team slug"`
		ObjectiveID string           `path:"objectiveId"`
		Body        ObjectiveRequest `json:"body"`
	}) (*struct {
		Body ObjectiveEnvelope `json:"body"`
	}, error) {
		m, err := requireTeamPermission(ctx, h.rbac, input.Slug, config.PermOKRUpdate)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		o, err := h.engine.ReplaceObjective(ctx, input.ObjectiveID, m.Team.ID, withKeyResultsPresence(ctx, objectiveInput(input.Body)))
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return objectiveResponse(o), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "objectives-patch",
		Method:      http.MethodPatch,
		Path:        "/teams/{slug}/objectives/{objectiveId}",
		Summary:     "Partially update an objective",
		Description: "Only title, description, status, startDate and endDate are applied. Key results are never modified.",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Slug        string                `path:"slug" doc:"Team slug"`
		ObjectiveID string                `path:"objectiveId"`
		Body        ObjectivePatchRequest `json:"body"`
	}) (*struct {
		Body ObjectiveEnvelope `json:"body"`
	}, error) {
		m, err := requireTeamPermission(ctx, h.rbac, input.Slug, config.PermOKRUpdate)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		o, err := h.engine.PatchObjective(ctx, input.ObjectiveID, m.Team.ID, bodyMap(ctx))
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return objectiveResponse(o), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "objectives-delete",
		Method:        http.MethodDelete,
		Path:          "/teams/{slug}/objectives/{objectiveId}",
		Summary:       "Delete an objective and everything under it",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Slug        string `path:"slug" doc:"Team slug"`
		ObjectiveID string `path:"objectiveId"`
	}) (*struct{}, error) {
		m, err := requireTeamPermission(ctx, h.rbac, input.Slug, config.PermOKRDelete)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		if err := h.engine.DeleteObjective(ctx, input.ObjectiveID, m.Team.ID); err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct{}{}, nil
	})
}

func registerKeyResults(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID:   "key-results-create",
		Method:        http.MethodPost,
		Path:          "/teams/{slug}/objectives/{objectiveId}/key-results",
		Summary:       "Append a key result",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Slug        string           `path:"slug" doc:"Team slug"`
		ObjectiveID string           `path:"objectiveId"`
		Body        KeyResultRequest `json:"body"`
	}) (*struct {
		Body KeyResultEnvelope `json:"body"`
	}, error) {
		m, err := requireTeamPermission(ctx, h.rbac, input.Slug, config.PermOKRCreate)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		kr, err := h.engine.CreateKeyResult(ctx, input.ObjectiveID, m.Team.ID, keyResultInput(input.Body))
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return keyResultResponse(kr), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "key-results-patch",
		Method:      http.MethodPatch,
		Path:        "/teams/{slug}/objectives/{objectiveId}/key-results/{krId}",
		Summary:     "Partially update a key result",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Slug        string                `path:"slug" doc:"Team slug"`
		ObjectiveID string                `path:"objectiveId"`
		KeyResultID string                `path:"krId"`
		Body        KeyResultPatchRequest `json:"body"`
	}) (*struct {
		Body KeyResultEnvelope `json:"body"`
	}, error) {
		m, err := requireTeamPermission(ctx, h.rbac, input.Slug, config.PermOKRUpdate)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		kr, err := h.engine.PatchKeyResult(ctx, input.KeyResultID, input.ObjectiveID, m.Team.ID, bodyMap(ctx))
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return keyResultResponse(kr), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "key-results-progress",
		Method:      http.MethodPut,
		Path:        "/teams/{slug}/objectives/{objectiveId}/key-results/{krId}",
		Summary:     "Set the current value of a key result",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Slug        string          `path:"slug" doc:"Team slug"`
		ObjectiveID string          `path:"objectiveId"`
		KeyResultID string          `path:"krId"`
		Body        ProgressRequest `json:"body"`
	}) (*struct {
		Body KeyResultEnvelope `json:"body"`
	}, error) {
		m, err := requireTeamPermission(ctx, h.rbac, input.Slug, config.PermOKRUpdate)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		kr, err := h.engine.ReplaceKeyResultProgress(ctx, input.KeyResultID, input.ObjectiveID, m.Team.ID, bodyMap(ctx)["currentValue"])
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return keyResultResponse(kr), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "key-results-delete",
		Method:        http.MethodDelete,
		Path:          "/teams/{slug}/objectives/{objectiveId}/key-results/{krId}",
		Summary:       "Delete a key result",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Slug        string `path:"slug" doc:"Team slug"`
		ObjectiveID string `path:"objectiveId"`
		KeyResultID string `path:"krId"`
	}) (*struct{}, error) {
		m, err := requireTeamPermission(ctx, h.rbac, input.Slug, config.PermOKRDelete)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		if err := h.engine.DeleteKeyResult(ctx, input.KeyResultID, input.ObjectiveID, m.Team.ID); err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct{}{}, nil
	})
}

func registerInitiatives(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID: "initiatives-list",
		Method:      http.MethodGet,
		Path:        "/teams/{slug}/objectives/{objectiveId}/initiatives",
		Summary:     "List initiatives of an objective",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Slug        string `path:"slug" doc:"Team slug"`
		ObjectiveID string `path:"objectiveId"`
	}) (*struct {
		Body InitiativeListEnvelope `json:"body"`
	}, error) {
		m, err := requireTeamPermission(ctx, h.rbac, input.Slug, config.PermOKRRead)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		items, err := h.engine.ListInitiatives(ctx, input.ObjectiveID, m.Team.ID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		if items == nil {
			items = []domain.Initiative{}
		}
		return &struct {
			Body InitiativeListEnvelope `json:"body"`
		}{Body: InitiativeListEnvelope{Data: items}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "initiatives-create",
		Method:        http.MethodPost,
		Path:          "/teams/{slug}/objectives/{objectiveId}/initiatives",
		Summary:       "Add an initiative to an objective",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Slug        string            `path:"slug" doc:"Team slug"`
		ObjectiveID string            `path:"objectiveId"`
		Body        InitiativeRequest `json:"body"`
	}) (*struct {
		Body InitiativeEnvelope `json:"body"`
	}, error) {
		m, err := requireTeamPermission(ctx, h.rbac, input.Slug, config.PermOKRCreate)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		item, err := h.engine.CreateInitiative(ctx, input.ObjectiveID, m.Team.ID, engine.InitiativeInput{
			Title:  input.Body.Title,
			Status: input.Body.Status,
		})
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body InitiativeEnvelope `json:"body"`
		}{Body: InitiativeEnvelope{Data: item}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "jira-links-list",
		Method:      http.MethodGet,
		Path:        "/teams/{slug}/objectives/{objectiveId}/key-results/{krId}/jira-links",
		Summary:     "List Jira issues linked to a key result",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Slug        string `path:"slug" doc:"Team slug"`
		ObjectiveID string `path:"objectiveId"`
		KeyResultID string `path:"krId"`
	}) (*struct {
		Body JiraLinkListEnvelope `json:"body"`
	}, error) {
		m, err := requireTeamPermission(ctx, h.rbac, input.Slug, config.PermOKRRead)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		links, err := h.engine.ListJiraLinks(ctx, input.ObjectiveID, input.KeyResultID, m.Team.ID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		if links == nil {
			links = []domain.JiraIssueLink{}
		}
		return &struct {
			Body JiraLinkListEnvelope `json:"body"`
		}{Body: JiraLinkListEnvelope{Data: links}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "jira-links-create",
		Method:        http.MethodPost,
		Path:          "/teams/{slug}/objectives/{objectiveId}/key-results/{krId}/jira-links",
		Summary:       "Link a Jira issue to a key result",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Slug        string          `path:"slug" doc:"Team slug"`
		ObjectiveID string          `path:"objectiveId"`
		KeyResultID string          `path:"krId"`
		Body        JiraLinkRequest `json:"body"`
	}) (*struct {
		Body JiraLinkEnvelope `json:"body"`
	}, error) {
		m, err := requireTeamPermission(ctx, h.rbac, input.Slug, config.PermOKRUpdate)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		link, err := h.engine.AddJiraLink(ctx, input.ObjectiveID, input.KeyResultID, m.Team.ID, engine.JiraLinkInput{
			IssueKey: input.Body.IssueKey,
			URL:      input.Body.URL,
		})
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body JiraLinkEnvelope `json:"body"`
		}{Body: JiraLinkEnvelope{Data: link}}, nil
	})
}

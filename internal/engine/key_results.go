package engine

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"

	"okrline/internal/domain"
	"okrline/internal/repo"
)

var keyResultPatchFields = []string{"title", "currentValue", "targetValue", "unit", "status"}

// validateKeyResult applies create defaults: currentValue 0, status IN_PROGRESS, no unit.
func validateKeyResult(in KeyResultInput) (domain.KeyResult, error) {
	kr := domain.KeyResult{Status: domain.KeyResultInProgress}
	kr.Title = strings.TrimSpace(in.Title)
	if kr.Title == "" {
		return kr, invalid("title", "is required")
	}
	if in.TargetValue == nil {
		return kr, invalid("targetValue", "is required")
	}
	var err error
	if kr.TargetValue, err = number("targetValue", *in.TargetValue); err != nil {
		return kr, err
	}
	if in.CurrentValue != nil {
		if kr.CurrentValue, err = number("currentValue", *in.CurrentValue); err != nil {
			return kr, err
		}
	}
	kr.Unit = nonEmptyPtr(in.Unit)
	if strings.TrimSpace(in.Status) != "" {
		s, ok := domain.NormalizeKeyResultStatus(in.Status)
		if !ok {
			return kr, invalid("status", "must be one of %s", strings.Join(domain.KeyResultStatuses(), ", "))
		}
		kr.Status = s
	}
	return kr, nil
}

// requireObjective confirms the objective exists within teamID before a child is touched.
func (e Engine) requireObjective(ctx context.Context, tx *sql.Tx, objectiveID, teamID string) error {
	_, err := e.Repo.GetObjective(ctx, tx, objectiveID, teamID)
	return wrapNotFound(err, "objective", objectiveID)
}

// CreateKeyResult appends a key result to the objective.
func (e Engine) CreateKeyResult(ctx context.Context, objectiveID, teamID string, in KeyResultInput) (domain.KeyResult, error) {
	kr, err := validateKeyResult(in)
	if err != nil {
		return domain.KeyResult{}, err
	}
	err = e.Repo.WithTx(ctx, func(tx *sql.Tx) error {
		if err := e.requireObjective(ctx, tx, objectiveID, teamID); err != nil {
			return err
		}
		pos, err := e.Repo.NextKeyResultPosition(ctx, tx, objectiveID)
		if err != nil {
			return err
		}
		now := e.timestamp()
		kr.ID = uuid.NewString()
		kr.ObjectiveID = objectiveID
		kr.Position = pos
		kr.CreatedAt = now
		kr.UpdatedAt = now
		return e.Repo.InsertKeyResult(ctx, tx, kr)
	})
	if err != nil {
		return domain.KeyResult{}, err
	}
	kr.JiraLinks = []domain.JiraIssueLink{}
	return kr, nil
}

// PatchKeyResult applies the whitelisted keys of body to the key result (id, objectiveID).
// An unknown status is always rejected, unlike PatchObjective which drops it by default.
func (e Engine) PatchKeyResult(ctx context.Context, id, objectiveID, teamID string, body map[string]any) (domain.KeyResult, error) {
	fields := pickFields(body, keyResultPatchFields...)
	if len(fields) == 0 {
		return domain.KeyResult{}, noValidFields()
	}
	var u repo.KeyResultUpdate
	for _, k := range keyResultPatchFields {
		v, ok := fields[k]
		if !ok {
			continue
		}
		switch k {
		case "title":
			s, err := requiredString(k, v)
			if err != nil {
				return domain.KeyResult{}, err
			}
			u.Title = &s
		case "currentValue", "targetValue":
			f, err := number(k, v)
			if err != nil {
				return domain.KeyResult{}, err
			}
			if k == "currentValue" {
				u.CurrentValue = &f
			} else {
				u.TargetValue = &f
			}
		case "unit":
			s, err := optionalString(k, v)
			if err != nil {
				return domain.KeyResult{}, err
			}
			u.UnitSet = true
			u.Unit = nonEmptyPtr(&s)
		case "status":
			raw, isString := v.(string)
			if !isString {
				return domain.KeyResult{}, invalid(k, "must be a string")
			}
			s, ok := domain.NormalizeKeyResultStatus(raw)
			if !ok {
				return domain.KeyResult{}, invalid(k, "must be one of %s", strings.Join(domain.KeyResultStatuses(), ", "))
			}
			u.Status = &s
		}
	}
	return e.updateKeyResult(ctx, id, objectiveID, teamID, u)
}

// ReplaceKeyResultProgress sets currentValue only. value must be numeric; strings such as "5" are rejected.
func (e Engine) ReplaceKeyResultProgress(ctx context.Context, id, objectiveID, teamID string, value any) (domain.KeyResult, error) {
	if value == nil {
		return domain.KeyResult{}, invalid("currentValue", "is required")
	}
	f, err := number("currentValue", value)
	if err != nil {
		return domain.KeyResult{}, err
	}
	return e.updateKeyResult(ctx, id, objectiveID, teamID, repo.KeyResultUpdate{CurrentValue: &f})
}

func (e Engine) updateKeyResult(ctx context.Context, id, objectiveID, teamID string, u repo.KeyResultUpdate) (domain.KeyResult, error) {
	var out domain.KeyResult
	err := e.Repo.WithTx(ctx, func(tx *sql.Tx) error {
		if err := e.requireObjective(ctx, tx, objectiveID, teamID); err != nil {
			return err
		}
		if u.Title != nil || u.TargetValue != nil || u.CurrentValue != nil || u.UnitSet || u.Status != nil {
			u.UpdatedAt = e.timestamp()
		}
		if err := e.Repo.UpdateKeyResult(ctx, tx, id, objectiveID, u); err != nil {
			return wrapNotFound(err, "key result", id)
		}
		kr, err := e.Repo.GetKeyResult(ctx, tx, id, objectiveID)
		if err != nil {
			return wrapNotFound(err, "key result", id)
		}
		if err := e.attachLinks(ctx, tx, &kr); err != nil {
			return err
		}
		out = kr
		return nil
	})
	return out, err
}

// DeleteKeyResult removes the key result only when it belongs to objectiveID within teamID.
func (e Engine) DeleteKeyResult(ctx context.Context, id, objectiveID, teamID string) error {
	return e.Repo.WithTx(ctx, func(tx *sql.Tx) error {
		if err := e.requireObjective(ctx, tx, objectiveID, teamID); err != nil {
			return err
		}
		return wrapNotFound(e.Repo.DeleteKeyResult(ctx, tx, id, objectiveID), "key result", id)
	})
}

func (e Engine) attachLinks(ctx context.Context, tx *sql.Tx, kr *domain.KeyResult) error {
	links, err := e.Repo.ListJiraLinksByKeyResult(ctx, tx, kr.ID)
	if err != nil {
		return err
	}
	if links == nil {
		links = []domain.JiraIssueLink{}
	}
	kr.JiraLinks = links
	return nil
}

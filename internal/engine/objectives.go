package engine

import (
	"context"
	"database/sql"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"okrline/internal/domain"
	"okrline/internal/repo"
)

// KeyResultInput describes a key result to create. Nil pointers take defaults.
type KeyResultInput struct {
	Title        string
	TargetValue  *float64
	CurrentValue *float64
	Unit         *string
	Status       string
}

// ObjectiveInput is the full field set for create and replace.
type ObjectiveInput struct {
	Title       string
	Description string
	Status      string
	StartDate   string
	EndDate     string
	// KeyResults nil leaves existing key results alone. Any non-nil slice, even empty,
	// replaces the whole set.
	KeyResults []KeyResultInput
}

// ObjectivePage is one page of a team's objectives plus the team-wide count.
type ObjectivePage struct {
	Items []domain.Objective
	Total int
	Page  int
	Limit int
}

// maxOffset bounds (page-1)*limit so the OFFSET stays positive on every dialect.
const maxOffset = math.MaxInt32

var objectivePatchFields = []string{"title", "description", "status", "startDate", "endDate"}

type objectiveFields struct {
	title, description, status, startDate, endDate string
}

func validateObjective(in ObjectiveInput) (objectiveFields, error) {
	var f objectiveFields
	f.title = strings.TrimSpace(in.Title)
	if f.title == "" {
		return f, invalid("title", "is required")
	}
	var err error
	if f.startDate, err = normalizeDate("startDate", in.StartDate); err != nil {
		return f, err
	}
	if f.endDate, err = normalizeDate("endDate", in.EndDate); err != nil {
		return f, err
	}
	if err := checkDateOrder(f.startDate, f.endDate); err != nil {
		return f, err
	}
	f.status = domain.ObjectiveActive
	if strings.TrimSpace(in.Status) != "" {
		s, ok := domain.NormalizeObjectiveStatus(in.Status)
		if !ok {
			return f, invalid("status", "must be one of %s", strings.Join(domain.ObjectiveStatuses(), ", "))
		}
		f.status = s
	}
	f.description = in.Description
	for i, kr := range in.KeyResults {
		if _, err := validateKeyResult(kr); err != nil {
			if ve, ok := err.(ValidationError); ok {
				ve.Field = "keyResults[" + strconv.Itoa(i) + "]." + ve.Field
				return f, ve
			}
			return f, err
		}
	}
	return f, nil
}

// CreateObjective stores a new objective for teamID together with any supplied key results.
func (e Engine) CreateObjective(ctx context.Context, teamID string, in ObjectiveInput) (domain.Objective, error) {
	f, err := validateObjective(in)
	if err != nil {
		return domain.Objective{}, err
	}
	now := e.timestamp()
	o := domain.Objective{
		ID:          uuid.NewString(),
		TeamID:      teamID,
		Title:       f.title,
		Description: f.description,
		Status:      f.status,
		StartDate:   f.startDate,
		EndDate:     f.endDate,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	var out domain.Objective
	err = e.Repo.WithTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.InsertObjective(ctx, tx, o); err != nil {
			return err
		}
		if err := e.insertKeyResults(ctx, tx, o.ID, in.KeyResults, now); err != nil {
			return err
		}
		out, err = e.loadObjective(ctx, tx, o.ID, teamID)
		return err
	})
	return out, err
}

// GetObjective returns the objective with its key results and initiatives.
func (e Engine) GetObjective(ctx context.Context, id, teamID string) (domain.Objective, error) {
	return e.loadObjective(ctx, nil, id, teamID)
}

// ListObjectives pages through a team's objectives, newest first.
func (e Engine) ListObjectives(ctx context.Context, teamID string, page, limit int) (ObjectivePage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageSize
	}
	if e.Config != nil {
		if ceiling := e.Config.PageSizeLimit(); limit > ceiling {
			limit = ceiling
		}
	}
	if page-1 > maxOffset/limit {
		return ObjectivePage{}, invalid("page", "is too large")
	}
	res := ObjectivePage{Page: page, Limit: limit, Items: []domain.Objective{}}
	total, err := e.Repo.CountObjectives(ctx, teamID)
	if err != nil {
		return res, err
	}
	res.Total = total
	items, err := e.Repo.ListObjectives(ctx, teamID, (page-1)*limit, limit)
	if err != nil {
		return res, err
	}
	for _, o := range items {
		if err := e.attachChildren(ctx, nil, &o); err != nil {
			return res, err
		}
		res.Items = append(res.Items, o)
	}
	return res, nil
}

// ReplaceObjective overwrites every field of the objective. A non-nil in.KeyResults deletes all
// existing key results and recreates the supplied ones with new ids, in one transaction.
func (e Engine) ReplaceObjective(ctx context.Context, id, teamID string, in ObjectiveInput) (domain.Objective, error) {
	f, err := validateObjective(in)
	if err != nil {
		return domain.Objective{}, err
	}
	var out domain.Objective
	err = e.Repo.WithTx(ctx, func(tx *sql.Tx) error {
		now := e.timestamp()
		err := e.Repo.UpdateObjective(ctx, tx, id, teamID, repo.ObjectiveUpdate{
			Title:       &f.title,
			Description: &f.description,
			Status:      &f.status,
			StartDate:   &f.startDate,
			EndDate:     &f.endDate,
			UpdatedAt:   now,
		})
		if err != nil {
			return wrapNotFound(err, "objective", id)
		}
		if in.KeyResults != nil {
			if _, err := e.Repo.DeleteKeyResults(ctx, tx, id); err != nil {
				return err
			}
			if err := e.insertKeyResults(ctx, tx, id, in.KeyResults, now); err != nil {
				return err
			}
		}
		out, err = e.loadObjective(ctx, tx, id, teamID)
		return err
	})
	return out, err
}

// PatchObjective applies the whitelisted keys of body. Unknown keys are ignored. An unknown
// status is dropped unless strict status checking is configured; the emptiness check runs first.
func (e Engine) PatchObjective(ctx context.Context, id, teamID string, body map[string]any) (domain.Objective, error) {
	fields := pickFields(body, objectivePatchFields...)
	if len(fields) == 0 {
		return domain.Objective{}, noValidFields()
	}
	var u repo.ObjectiveUpdate
	for _, k := range objectivePatchFields {
		v, ok := fields[k]
		if !ok {
			continue
		}
		switch k {
		case "title":
			s, err := requiredString(k, v)
			if err != nil {
				return domain.Objective{}, err
			}
			u.Title = &s
		case "description":
			s, err := optionalString(k, v)
			if err != nil {
				return domain.Objective{}, err
			}
			u.Description = &s
		case "status":
			raw, isString := v.(string)
			if !isString {
				return domain.Objective{}, invalid(k, "must be a string")
			}
			s, ok := domain.NormalizeObjectiveStatus(raw)
			if !ok {
				if e.strictStatus() {
					return domain.Objective{}, invalid(k, "must be one of %s", strings.Join(domain.ObjectiveStatuses(), ", "))
				}
				continue
			}
			u.Status = &s
		case "startDate", "endDate":
			s, err := dateString(k, v)
			if err != nil {
				return domain.Objective{}, err
			}
			if k == "startDate" {
				u.StartDate = &s
			} else {
				u.EndDate = &s
			}
		}
	}
	var out domain.Objective
	err := e.Repo.WithTx(ctx, func(tx *sql.Tx) error {
		cur, err := e.Repo.GetObjective(ctx, tx, id, teamID)
		if err != nil {
			return wrapNotFound(err, "objective", id)
		}
		if !u.Empty() {
			start, end := cur.StartDate, cur.EndDate
			if u.StartDate != nil {
				start = *u.StartDate
			}
			if u.EndDate != nil {
				end = *u.EndDate
			}
			if err := checkDateOrder(start, end); err != nil {
				return err
			}
			u.UpdatedAt = e.timestamp()
			if err := e.Repo.UpdateObjective(ctx, tx, id, teamID, u); err != nil {
				return wrapNotFound(err, "objective", id)
			}
		}
		out, err = e.loadObjective(ctx, tx, id, teamID)
		return err
	})
	return out, err
}

// DeleteObjective removes the objective; its key results, initiatives and links go with it.
func (e Engine) DeleteObjective(ctx context.Context, id, teamID string) error {
	return wrapNotFound(e.Repo.DeleteObjective(ctx, nil, id, teamID), "objective", id)
}

func (e Engine) insertKeyResults(ctx context.Context, tx *sql.Tx, objectiveID string, inputs []KeyResultInput, now string) error {
	for i, in := range inputs {
		kr, err := validateKeyResult(in)
		if err != nil {
			return err
		}
		kr.ID = uuid.NewString()
		kr.ObjectiveID = objectiveID
		kr.Position = i
		kr.CreatedAt = now
		kr.UpdatedAt = now
		if err := e.Repo.InsertKeyResult(ctx, tx, kr); err != nil {
			return err
		}
	}
	return nil
}

func (e Engine) loadObjective(ctx context.Context, tx *sql.Tx, id, teamID string) (domain.Objective, error) {
	o, err := e.Repo.GetObjective(ctx, tx, id, teamID)
	if err != nil {
		return domain.Objective{}, wrapNotFound(err, "objective", id)
	}
	if err := e.attachChildren(ctx, tx, &o); err != nil {
		return domain.Objective{}, err
	}
	return o, nil
}

func (e Engine) attachChildren(ctx context.Context, tx *sql.Tx, o *domain.Objective) error {
	krs, err := e.Repo.ListKeyResults(ctx, tx, o.ID)
	if err != nil {
		return err
	}
	o.KeyResults = make([]domain.KeyResult, 0, len(krs))
	for _, kr := range krs {
		if err := e.attachLinks(ctx, tx, &kr); err != nil {
			return err
		}
		o.KeyResults = append(o.KeyResults, kr)
	}
	inits, err := e.Repo.ListInitiatives(ctx, tx, o.ID)
	if err != nil {
		return err
	}
	if inits == nil {
		inits = []domain.Initiative{}
	}
	o.Initiatives = inits
	return nil
}

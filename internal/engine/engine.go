package engine

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"okrline/internal/config"
	"okrline/internal/db"
	"okrline/internal/domain"
	"okrline/internal/repo"
)

const defaultPageSize = 20

// timestampLayout is fixed-width so stored timestamps sort as strings.
const timestampLayout = "2006-01-02T15:04:05.000000Z07:00"

// Engine applies OKR operations against the repository. It holds no entity state between calls.
type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Config *config.Config
	Now    func() time.Time
}

func New(conn *sql.DB, dialect db.Dialect, cfg *config.Config) Engine {
	return Engine{
		DB:     conn,
		Repo:   repo.New(conn, dialect),
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) timestamp() string {
	return e.now().UTC().Format(timestampLayout)
}

func (e Engine) strictStatus() bool {
	return e.Config != nil && e.Config.OKR.StrictStatus
}

// ErrNoValidFields is returned (wrapped in a ValidationError) when a patch body has nothing to apply.
var ErrNoValidFields = errors.New("no valid fields to update")

// ValidationError reports input rejected before any write.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + " " + e.Message
}

func (e ValidationError) Unwrap() error { return e.Err }

func invalid(field, format string, args ...any) error {
	return ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func noValidFields() error {
	return ValidationError{Message: ErrNoValidFields.Error(), Err: ErrNoValidFields}
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, repo.ErrNotFound)
}

// wrapNotFound gives repo.ErrNotFound a subject; other errors pass through.
func wrapNotFound(err error, kind, id string) error {
	if errors.Is(err, repo.ErrNotFound) {
		return notFound(kind, id)
	}
	return err
}

// pickFields keeps only whitelisted keys present in body.
func pickFields(body map[string]any, allowed ...string) map[string]any {
	out := make(map[string]any, len(allowed))
	for _, k := range allowed {
		if v, ok := body[k]; ok {
			out[k] = v
		}
	}
	return out
}

func requiredString(field string, v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", invalid(field, "must be a string")
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", invalid(field, "must not be empty")
	}
	return s, nil
}

// optionalString treats JSON null as the empty string.
func optionalString(field string, v any) (string, error) {
	if v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", invalid(field, "must be a string")
	}
	return s, nil
}

func dateString(field string, v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", invalid(field, "must be a date string")
	}
	return normalizeDate(field, s)
}

func normalizeDate(field, s string) (string, error) {
	if strings.TrimSpace(s) == "" {
		return "", invalid(field, "is required")
	}
	t, err := domain.ParseDate(s)
	if err != nil {
		return "", invalid(field, "must be a valid date (YYYY-MM-DD)")
	}
	return domain.FormatDate(t), nil
}

// number accepts the numeric types a decoded JSON body or a Go caller may hold.
func number(field string, v any) (float64, error) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, invalid(field, "must be a number")
		}
		f = parsed
	default:
		return 0, invalid(field, "must be a number")
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, invalid(field, "must be a finite number")
	}
	return f, nil
}

func checkDateOrder(start, end string) error {
	// YYYY-MM-DD compares correctly as a string.
	if end < start {
		return invalid("endDate", "must not be before startDate")
	}
	return nil
}

func nonEmptyPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

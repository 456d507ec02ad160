package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"okrline/internal/domain"
)

const objectiveColumns = `id, team_id, title, description, status, start_date, end_date, created_at, updated_at`

// ObjectiveUpdate carries the columns to change; nil fields are left untouched.
type ObjectiveUpdate struct {
	Title       *string
	Description *string
	Status      *string
	StartDate   *string
	EndDate     *string
	UpdatedAt   string
}

func (u ObjectiveUpdate) Empty() bool {
	return u.Title == nil && u.Description == nil && u.Status == nil && u.StartDate == nil && u.EndDate == nil
}

func scanObjective(scan func(dest ...any) error) (domain.Objective, error) {
	var o domain.Objective
	err := scan(&o.ID, &o.TeamID, &o.Title, &o.Description, &o.Status, &o.StartDate, &o.EndDate, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

func (r Repo) InsertObjective(ctx context.Context, tx *sql.Tx, o domain.Objective) error {
	_, err := r.exec(ctx, tx, `INSERT INTO objectives(`+objectiveColumns+`) VALUES (?,?,?,?,?,?,?,?,?)`,
		o.ID, o.TeamID, o.Title, o.Description, o.Status, o.StartDate, o.EndDate, o.CreatedAt, o.UpdatedAt)
	return err
}

// GetObjective returns the objective only when it belongs to teamID.
func (r Repo) GetObjective(ctx context.Context, tx *sql.Tx, id, teamID string) (domain.Objective, error) {
	row := r.queryRow(ctx, tx, `SELECT `+objectiveColumns+` FROM objectives WHERE id=? AND team_id=?`, id, teamID)
	o, err := scanObjective(row.Scan)
	if err == sql.ErrNoRows {
		return o, ErrNotFound
	}
	return o, err
}

// ListObjectives pages through a team's objectives, newest first. limit <= 0 means no limit.
func (r Repo) ListObjectives(ctx context.Context, teamID string, offset, limit int) ([]domain.Objective, error) {
	query := `SELECT ` + objectiveColumns + ` FROM objectives WHERE team_id=? ORDER BY created_at DESC, id DESC`
	args := []any{teamID}
	if limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, offset)
	}
	rows, err := r.query(ctx, nil, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Objective
	for rows.Next() {
		o, err := scanObjective(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, o)
	}
	return res, rows.Err()
}

func (r Repo) CountObjectives(ctx context.Context, teamID string) (int, error) {
	var n int
	err := r.queryRow(ctx, nil, `SELECT COUNT(*) FROM objectives WHERE team_id=?`, teamID).Scan(&n)
	return n, err
}

// UpdateObjective applies u to the objective matching (id, teamID).
func (r Repo) UpdateObjective(ctx context.Context, tx *sql.Tx, id, teamID string, u ObjectiveUpdate) error {
	var (
		fields []string
		args   []any
	)
	if u.Title != nil {
		fields = append(fields, "title=?")
		args = append(args, *u.Title)
	}
	if u.Description != nil {
		fields = append(fields, "description=?")
		args = append(args, *u.Description)
	}
	if u.Status != nil {
		fields = append(fields, "status=?")
		args = append(args, *u.Status)
	}
	if u.StartDate != nil {
		fields = append(fields, "start_date=?")
		args = append(args, *u.StartDate)
	}
	if u.EndDate != nil {
		fields = append(fields, "end_date=?")
		args = append(args, *u.EndDate)
	}
	if u.UpdatedAt != "" {
		fields = append(fields, "updated_at=?")
		args = append(args, u.UpdatedAt)
	}
	if len(fields) == 0 {
		_, err := r.GetObjective(ctx, tx, id, teamID)
		return err
	}
	args = append(args, id, teamID)
	res, err := r.exec(ctx, tx, fmt.Sprintf(`UPDATE objectives SET %s WHERE id=? AND team_id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

// DeleteObjective removes the objective; key results, initiatives and their links cascade.
func (r Repo) DeleteObjective(ctx context.Context, tx *sql.Tx, id, teamID string) error {
	res, err := r.exec(ctx, tx, `DELETE FROM objectives WHERE id=? AND team_id=?`, id, teamID)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

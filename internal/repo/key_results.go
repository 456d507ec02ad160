package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"okrline/internal/domain"
)

const keyResultColumns = `id, objective_id, title, target_value, current_value, unit, status, position, created_at, updated_at`

// KeyResultUpdate carries the columns to change; nil fields are left untouched.
// UnitSet distinguishes "clear the unit" (UnitSet with nil Unit) from "leave it".
type KeyResultUpdate struct {
	Title        *string
	TargetValue  *float64
	CurrentValue *float64
	UnitSet      bool
	Unit         *string
	Status       *string
	UpdatedAt    string
}

func scanKeyResult(scan func(dest ...any) error) (domain.KeyResult, error) {
	var kr domain.KeyResult
	var unit sql.NullString
	err := scan(&kr.ID, &kr.ObjectiveID, &kr.Title, &kr.TargetValue, &kr.CurrentValue, &unit, &kr.Status, &kr.Position, &kr.CreatedAt, &kr.UpdatedAt)
	kr.Unit = stringPtr(unit)
	return kr, err
}

func (r Repo) InsertKeyResult(ctx context.Context, tx *sql.Tx, kr domain.KeyResult) error {
	_, err := r.exec(ctx, tx, `INSERT INTO key_results(`+keyResultColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		kr.ID, kr.ObjectiveID, kr.Title, kr.TargetValue, kr.CurrentValue, nullableStringPtr(kr.Unit), kr.Status, kr.Position, kr.CreatedAt, kr.UpdatedAt)
	return err
}

// ListKeyResults returns an objective's key results in creation order.
func (r Repo) ListKeyResults(ctx context.Context, tx *sql.Tx, objectiveID string) ([]domain.KeyResult, error) {
	rows, err := r.query(ctx, tx, `SELECT `+keyResultColumns+` FROM key_results WHERE objective_id=? ORDER BY created_at ASC, position ASC, id ASC`, objectiveID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.KeyResult
	for rows.Next() {
		kr, err := scanKeyResult(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, kr)
	}
	return res, rows.Err()
}

// GetKeyResult returns the key result only when it belongs to objectiveID.
func (r Repo) GetKeyResult(ctx context.Context, tx *sql.Tx, id, objectiveID string) (domain.KeyResult, error) {
	row := r.queryRow(ctx, tx, `SELECT `+keyResultColumns+` FROM key_results WHERE id=? AND objective_id=?`, id, objectiveID)
	kr, err := scanKeyResult(row.Scan)
	if err == sql.ErrNoRows {
		return kr, ErrNotFound
	}
	return kr, err
}

// NextKeyResultPosition returns the position for a key result appended to objectiveID.
func (r Repo) NextKeyResultPosition(ctx context.Context, tx *sql.Tx, objectiveID string) (int, error) {
	var n int
	err := r.queryRow(ctx, tx, `SELECT COALESCE(MAX(position), -1) + 1 FROM key_results WHERE objective_id=?`, objectiveID).Scan(&n)
	return n, err
}

// UpdateKeyResult applies u to the key result matching (id, objectiveID).
func (r Repo) UpdateKeyResult(ctx context.Context, tx *sql.Tx, id, objectiveID string, u KeyResultUpdate) error {
	var (
		fields []string
		args   []any
	)
	if u.Title != nil {
		fields = append(fields, "title=?")
		args = append(args, *u.Title)
	}
	if u.TargetValue != nil {
		fields = append(fields, "target_value=?")
		args = append(args, *u.TargetValue)
	}
	if u.CurrentValue != nil {
		fields = append(fields, "current_value=?")
		args = append(args, *u.CurrentValue)
	}
	if u.UnitSet {
		fields = append(fields, "unit=?")
		args = append(args, nullableStringPtr(u.Unit))
	}
	if u.Status != nil {
		fields = append(fields, "status=?")
		args = append(args, *u.Status)
	}
	if u.UpdatedAt != "" {
		fields = append(fields, "updated_at=?")
		args = append(args, u.UpdatedAt)
	}
	if len(fields) == 0 {
		_, err := r.GetKeyResult(ctx, tx, id, objectiveID)
		return err
	}
	args = append(args, id, objectiveID)
	res, err := r.exec(ctx, tx, fmt.Sprintf(`UPDATE key_results SET %s WHERE id=? AND objective_id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

// DeleteKeyResults removes every key result of objectiveID and reports how many were removed.
func (r Repo) DeleteKeyResults(ctx context.Context, tx *sql.Tx, objectiveID string) (int64, error) {
	res, err := r.exec(ctx, tx, `DELETE FROM key_results WHERE objective_id=?`, objectiveID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r Repo) DeleteKeyResult(ctx context.Context, tx *sql.Tx, id, objectiveID string) error {
	res, err := r.exec(ctx, tx, `DELETE FROM key_results WHERE id=? AND objective_id=?`, id, objectiveID)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

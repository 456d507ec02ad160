package repo

import (
	"context"
	"database/sql"

	"okrline/internal/domain"
)

func (r Repo) InsertInitiative(ctx context.Context, tx *sql.Tx, in domain.Initiative) error {
	_, err := r.exec(ctx, tx, `INSERT INTO initiatives(id, objective_id, title, status, created_at) VALUES (?,?,?,?,?)`,
		in.ID, in.ObjectiveID, in.Title, in.Status, in.CreatedAt)
	return err
}

// ListInitiatives returns an objective's initiatives, newest first.
func (r Repo) ListInitiatives(ctx context.Context, tx *sql.Tx, objectiveID string) ([]domain.Initiative, error) {
	rows, err := r.query(ctx, tx, `SELECT id, objective_id, title, status, created_at FROM initiatives WHERE objective_id=? ORDER BY created_at DESC, id DESC`, objectiveID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Initiative
	for rows.Next() {
		var in domain.Initiative
		if err := rows.Scan(&in.ID, &in.ObjectiveID, &in.Title, &in.Status, &in.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, in)
	}
	return res, rows.Err()
}

func (r Repo) InsertJiraLink(ctx context.Context, tx *sql.Tx, l domain.JiraIssueLink) error {
	_, err := r.exec(ctx, tx, `INSERT INTO jira_issue_links(id, key_result_id, initiative_id, issue_key, url, synced_at) VALUES (?,?,?,?,?,?)`,
		l.ID, nullableStringPtr(l.KeyResultID), nullableStringPtr(l.InitiativeID), l.IssueKey, nullable(l.URL), l.SyncedAt)
	return err
}

// ListJiraLinksByKeyResult returns links attached to a key result, most recently synced first.
func (r Repo) ListJiraLinksByKeyResult(ctx context.Context, tx *sql.Tx, keyResultID string) ([]domain.JiraIssueLink, error) {
	rows, err := r.query(ctx, tx, `SELECT id, key_result_id, initiative_id, issue_key, COALESCE(url,''), synced_at FROM jira_issue_links WHERE key_result_id=? ORDER BY synced_at DESC, id DESC`, keyResultID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.JiraIssueLink
	for rows.Next() {
		var l domain.JiraIssueLink
		var krID, initID sql.NullString
		if err := rows.Scan(&l.ID, &krID, &initID, &l.IssueKey, &l.URL, &l.SyncedAt); err != nil {
			return nil, err
		}
		l.KeyResultID = stringPtr(krID)
		l.InitiativeID = stringPtr(initID)
		res = append(res, l)
	}
	return res, rows.Err()
}

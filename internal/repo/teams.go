package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"okrline/internal/domain"
)

func (r Repo) InsertTeam(ctx context.Context, tx *sql.Tx, t domain.Team) error {
	if strings.TrimSpace(t.Slug) == "" {
		return errors.New("slug required")
	}
	_, err := r.exec(ctx, tx, `INSERT INTO teams(id, slug, name, created_at) VALUES (?,?,?,?)`, t.ID, t.Slug, t.Name, t.CreatedAt)
	return err
}

func (r Repo) GetTeamBySlug(ctx context.Context, tx *sql.Tx, slug string) (domain.Team, error) {
	var t domain.Team
	err := r.queryRow(ctx, tx, `SELECT id, slug, name, created_at FROM teams WHERE slug=?`, slug).
		Scan(&t.ID, &t.Slug, &t.Name, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	return t, err
}

func (r Repo) ListTeams(ctx context.Context) ([]domain.Team, error) {
	rows, err := r.query(ctx, nil, `SELECT id, slug, name, created_at FROM teams ORDER BY created_at DESC, slug`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Team
	for rows.Next() {
		var t domain.Team
		if err := rows.Scan(&t.ID, &t.Slug, &t.Name, &t.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) EnsureActor(ctx context.Context, tx *sql.Tx, actorID string, now string) error {
	_, err := r.exec(ctx, tx, `INSERT INTO actors(id, created_at) VALUES (?,?) ON CONFLICT DO NOTHING`, actorID, now)
	return err
}

func (r Repo) InsertRole(ctx context.Context, tx *sql.Tx, id, desc string) error {
	_, err := r.exec(ctx, tx, `INSERT INTO roles(id, description) VALUES (?,?) ON CONFLICT DO NOTHING`, id, desc)
	return err
}

func (r Repo) InsertPermission(ctx context.Context, tx *sql.Tx, id, desc string) error {
	_, err := r.exec(ctx, tx, `INSERT INTO permissions(id, description) VALUES (?,?) ON CONFLICT DO NOTHING`, id, desc)
	return err
}

func (r Repo) AddRolePermission(ctx context.Context, tx *sql.Tx, roleID, permID string) error {
	_, err := r.exec(ctx, tx, `INSERT INTO role_permissions(role_id, permission_id) VALUES (?,?) ON CONFLICT DO NOTHING`, roleID, permID)
	return err
}

// ClearRolePermissions drops every grant of roleID so config changes can be re-applied.
func (r Repo) ClearRolePermissions(ctx context.Context, tx *sql.Tx, roleID string) error {
	_, err := r.exec(ctx, tx, `DELETE FROM role_permissions WHERE role_id=?`, roleID)
	return err
}

// UpsertMember assigns role to actorID within teamID, replacing any previous role.
func (r Repo) UpsertMember(ctx context.Context, tx *sql.Tx, m domain.Member) error {
	_, err := r.exec(ctx, tx, `INSERT INTO team_members(team_id, actor_id, role, created_at) VALUES (?,?,?,?)
ON CONFLICT(team_id, actor_id) DO UPDATE SET role=excluded.role`, m.TeamID, m.ActorID, m.Role, m.CreatedAt)
	return err
}

func (r Repo) GetMember(ctx context.Context, tx *sql.Tx, teamID, actorID string) (domain.Member, error) {
	var m domain.Member
	err := r.queryRow(ctx, tx, `SELECT team_id, actor_id, role, created_at FROM team_members WHERE team_id=? AND actor_id=?`, teamID, actorID).
		Scan(&m.TeamID, &m.ActorID, &m.Role, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return m, ErrNotFound
	}
	return m, err
}

func (r Repo) ListMembers(ctx context.Context, teamID string) ([]domain.Member, error) {
	rows, err := r.query(ctx, nil, `SELECT team_id, actor_id, role, created_at FROM team_members WHERE team_id=? ORDER BY created_at, actor_id`, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Member
	for rows.Next() {
		var m domain.Member
		if err := rows.Scan(&m.TeamID, &m.ActorID, &m.Role, &m.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

func (r Repo) RemoveMember(ctx context.Context, tx *sql.Tx, teamID, actorID string) error {
	res, err := r.exec(ctx, tx, `DELETE FROM team_members WHERE team_id=? AND actor_id=?`, teamID, actorID)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

// RolePermissions lists the permissions granted to roleID.
func (r Repo) RolePermissions(ctx context.Context, tx *sql.Tx, roleID string) ([]string, error) {
	rows, err := r.query(ctx, tx, `SELECT permission_id FROM role_permissions WHERE role_id=? ORDER BY permission_id`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

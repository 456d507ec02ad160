package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"okrline/internal/domain"
	"okrline/internal/repo"
)

// ErrNotMember means the actor has no membership in the requested team.
var ErrNotMember = errors.New("not a member of this team")

// ForbiddenError indicates missing permission.
type ForbiddenError struct {
	Permission string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("permission %s required", e.Permission)
}

// Membership is the resolved caller context handed to OKR operations.
type Membership struct {
	Team        domain.Team
	Member      domain.Member
	Permissions []string
}

func (m Membership) Has(perm string) bool {
	for _, p := range m.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}

// Service provides RBAC helpers backed by SQL.
type Service struct {
	Repo repo.Repo
}

// Resolve loads the team by slug and the actor's role permissions within it.
func (s Service) Resolve(ctx context.Context, tx *sql.Tx, teamSlug, actorID string) (Membership, error) {
	team, err := s.Repo.GetTeamBySlug(ctx, tx, teamSlug)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return Membership{}, fmt.Errorf("team %s: %w", teamSlug, repo.ErrNotFound)
		}
		return Membership{}, err
	}
	m, err := s.Repo.GetMember(ctx, tx, team.ID, actorID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return Membership{}, ErrNotMember
		}
		return Membership{}, err
	}
	perms, err := s.Repo.RolePermissions(ctx, tx, m.Role)
	if err != nil {
		return Membership{}, err
	}
	return Membership{Team: team, Member: m, Permissions: perms}, nil
}

// Authorize resolves the membership and requires perm on it.
func (s Service) Authorize(ctx context.Context, teamSlug, actorID, perm string) (Membership, error) {
	m, err := s.Resolve(ctx, nil, teamSlug, actorID)
	if err != nil {
		return Membership{}, err
	}
	if !m.Has(perm) {
		return Membership{}, ForbiddenError{Permission: perm}
	}
	return m, nil
}

package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"okrline/internal/config"
	"okrline/internal/db"
	"okrline/internal/domain"
	"okrline/internal/engine"
	"okrline/internal/migrate"
	"okrline/internal/repo"
)

const OwnerRole = "owner"

var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,62}$`)

// Open connects to the configured database, applies migrations and syncs RBAC roles from cfg.
// An explicit driver or dsn overrides the config file.
func Open(ctx context.Context, workspace string, cfg *config.Config, driver, dsn string) (*sql.DB, engine.Engine, error) {
	if driver == "" {
		driver = cfg.Database.Driver
	}
	if dsn == "" {
		dsn = cfg.Database.DSN
	}
	conn, dialect, err := db.Open(db.Config{Workspace: workspace, Driver: driver, DSN: dsn})
	if err != nil {
		return nil, engine.Engine{}, err
	}
	if err := migrate.Migrate(conn, dialect); err != nil {
		conn.Close()
		return nil, engine.Engine{}, fmt.Errorf("migrate: %w", err)
	}
	eng := engine.New(conn, dialect, cfg)
	if err := SyncRBAC(ctx, eng.Repo, cfg); err != nil {
		conn.Close()
		return nil, engine.Engine{}, fmt.Errorf("sync rbac: %w", err)
	}
	return conn, eng, nil
}

// SyncRBAC makes the roles table mirror the configured roles and their permissions.
func SyncRBAC(ctx context.Context, r repo.Repo, cfg *config.Config) error {
	roleIDs := make([]string, 0, len(cfg.RBAC.Roles))
	for id := range cfg.RBAC.Roles {
		roleIDs = append(roleIDs, id)
	}
	sort.Strings(roleIDs)
	return r.WithTx(ctx, func(tx *sql.Tx) error {
		for _, roleID := range roleIDs {
			role := cfg.RBAC.Roles[roleID]
			if err := r.InsertRole(ctx, tx, roleID, role.Description); err != nil {
				return fmt.Errorf("role %s: %w", roleID, err)
			}
			if err := r.ClearRolePermissions(ctx, tx, roleID); err != nil {
				return err
			}
			for _, perm := range role.Permissions {
				if err := r.InsertPermission(ctx, tx, perm, ""); err != nil {
					return fmt.Errorf("permission %s: %w", perm, err)
				}
				if err := r.AddRolePermission(ctx, tx, roleID, perm); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// CreateTeam inserts a team and makes ownerID its owner.
func CreateTeam(ctx context.Context, r repo.Repo, slug, name, ownerID string) (domain.Team, error) {
	slug = strings.ToLower(strings.TrimSpace(slug))
	if !slugPattern.MatchString(slug) {
		return domain.Team{}, engine.ValidationError{Field: "slug", Message: "must be lowercase letters, digits and dashes"}
	}
	if strings.TrimSpace(ownerID) == "" {
		return domain.Team{}, engine.ValidationError{Field: "owner", Message: "is required"}
	}
	if strings.TrimSpace(name) == "" {
		name = slug
	}
	now := time.Now().UTC().Format(time.RFC3339)
	t := domain.Team{ID: uuid.NewString(), Slug: slug, Name: strings.TrimSpace(name), CreatedAt: now}
	err := r.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := r.GetTeamBySlug(ctx, tx, slug); err == nil {
			return engine.ValidationError{Field: "slug", Message: fmt.Sprintf("%s already exists", slug)}
		} else if !errors.Is(err, repo.ErrNotFound) {
			return err
		}
		if err := r.InsertTeam(ctx, tx, t); err != nil {
			return fmt.Errorf("insert team: %w", err)
		}
		if err := r.EnsureActor(ctx, tx, ownerID, now); err != nil {
			return fmt.Errorf("ensure actor: %w", err)
		}
		return r.UpsertMember(ctx, tx, domain.Member{TeamID: t.ID, ActorID: ownerID, Role: OwnerRole, CreatedAt: now})
	})
	if err != nil {
		return domain.Team{}, err
	}
	return t, nil
}

// AddMember grants role (or the configured default role) to actorID in the team.
func AddMember(ctx context.Context, r repo.Repo, cfg *config.Config, slug, actorID, role string) (domain.Member, error) {
	if strings.TrimSpace(actorID) == "" {
		return domain.Member{}, engine.ValidationError{Field: "actor", Message: "is required"}
	}
	if role == "" {
		role = cfg.RBAC.DefaultRole
	}
	if _, ok := cfg.RBAC.Roles[role]; !ok {
		return domain.Member{}, engine.ValidationError{Field: "role", Message: fmt.Sprintf("unknown role %q", role)}
	}
	now := time.Now().UTC().Format(time.RFC3339)
	var m domain.Member
	err := r.WithTx(ctx, func(tx *sql.Tx) error {
		t, err := r.GetTeamBySlug(ctx, tx, slug)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return fmt.Errorf("team %s: %w", slug, repo.ErrNotFound)
			}
			return err
		}
		if err := r.EnsureActor(ctx, tx, actorID, now); err != nil {
			return err
		}
		m = domain.Member{TeamID: t.ID, ActorID: actorID, Role: role, CreatedAt: now}
		return r.UpsertMember(ctx, tx, m)
	})
	return m, err
}

// ResolveTeam looks up a team by slug for callers that bypass HTTP auth, such as the local CLI.
func ResolveTeam(ctx context.Context, r repo.Repo, slug string) (domain.Team, error) {
	if strings.TrimSpace(slug) == "" {
		return domain.Team{}, fmt.Errorf("team not specified; use --team")
	}
	t, err := r.GetTeamBySlug(ctx, nil, slug)
	if errors.Is(err, repo.ErrNotFound) {
		return t, fmt.Errorf("team %s: %w", slug, repo.ErrNotFound)
	}
	return t, err
}

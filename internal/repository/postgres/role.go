package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/asso-tools/assobot/internal/models"
	"github.com/asso-tools/assobot/internal/repository"
)

type roleRepository struct {
	db *sql.DB
}

// NewRoleRepository creates a new role repository
func NewRoleRepository(db *sql.DB) repository.RoleRepository {
	return &roleRepository{db: db}
}

// List returns every role with its external groups loaded
func (r *roleRepository) List(ctx context.Context) ([]*models.AssoRole, error) {
	query := `
		SELECT id, name, is_member, is_subscriber, is_past_subscriber, is_manager, is_owner,
		       updated_at, updated_by_id
		FROM asso_roles
		ORDER BY id ASC`

	var roles []*models.AssoRole
	byID := make(map[int64]*models.AssoRole)
	err := queryEach(ctx, r.db, query, func(rows *sql.Rows) error {
		role := &models.AssoRole{}
		if err := rows.Scan(
			&role.ID, &role.Name, &role.IsMember, &role.IsSubscriber, &role.IsPastSubscriber,
			&role.IsManager, &role.IsOwner, &role.UpdatedAt, &role.UpdatedByID,
		); err != nil {
			return err
		}
		roles = append(roles, role)
		byID[role.ID] = role
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}

	err = queryEach(ctx, r.db, `
		SELECT rg.role_id, g.id, g.name
		FROM asso_role_groups rg
		INNER JOIN external_role_groups g ON g.id = rg.group_id
		ORDER BY g.name ASC`,
		func(rows *sql.Rows) error {
			var (
				roleID int64
				group  models.ExternalRoleGroup
			)
			if err := rows.Scan(&roleID, &group.ID, &group.Name); err != nil {
				return err
			}
			if role, ok := byID[roleID]; ok {
				role.Groups = append(role.Groups, group)
			}
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("failed to load role groups: %w", err)
	}

	return roles, nil
}

// Upsert creates or updates a role by name and replaces its group mapping
func (r *roleRepository) Upsert(ctx context.Context, role *models.AssoRole, author int64) (*models.AssoRole, error) {
	if err := requireAuthor(author); err != nil {
		return nil, err
	}

	now := time.Now()
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			INSERT INTO asso_roles (name, is_member, is_subscriber, is_past_subscriber, is_manager, is_owner, updated_at, updated_by_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (name) DO UPDATE
			SET is_member = $2, is_subscriber = $3, is_past_subscriber = $4, is_manager = $5, is_owner = $6,
			    updated_at = $7, updated_by_id = $8
			RETURNING id`,
			role.Name, role.IsMember, role.IsSubscriber, role.IsPastSubscriber, role.IsManager, role.IsOwner, now, author,
		).Scan(&role.ID)
		if err != nil {
			return fmt.Errorf("failed to upsert role: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM asso_role_groups WHERE role_id = $1`, role.ID); err != nil {
			return fmt.Errorf("failed to clear role groups: %w", err)
		}
		for _, g := range role.Groups {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO external_role_groups (id, name) VALUES ($1, $2)
				ON CONFLICT (id) DO UPDATE SET name = $2`, g.ID, g.Name); err != nil {
				return fmt.Errorf("failed to upsert external group: %w", err)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO asso_role_groups (role_id, group_id) VALUES ($1, $2)`, role.ID, g.ID); err != nil {
				return fmt.Errorf("failed to map role group: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	role.UpdatedAt = now
	role.UpdatedByID = &author
	return role, nil
}

func (r *roleRepository) Assign(ctx context.Context, a *models.RoleAssignment, author int64) (*models.RoleAssignment, error) {
	if err := requireAuthor(author); err != nil {
		return nil, err
	}

	now := time.Now()
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO role_assignments (member_id, role_id, start_date, end_date, updated_at, updated_by_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		a.MemberID, a.RoleID, a.Start, a.End, now, author,
	).Scan(&a.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to assign role: %w", err)
	}

	a.UpdatedAt = now
	a.UpdatedByID = &author
	return a, nil
}

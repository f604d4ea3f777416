package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/asso-tools/assobot/internal/models"
	"github.com/asso-tools/assobot/internal/repository"
)

type membershipRepository struct {
	db *sql.DB
}

// NewMembershipRepository creates a new membership repository
func NewMembershipRepository(db *sql.DB) repository.MembershipRepository {
	return &membershipRepository{db: db}
}

func (r *membershipRepository) ListBySeason(ctx context.Context, seasonID int64) ([]*models.Membership, error) {
	query := `
		SELECT id, member_id, season_id, date, statutes_accepted, has_insurance, image_rights,
		       updated_at, updated_by_id
		FROM memberships
		WHERE season_id = $1
		ORDER BY member_id ASC`

	var memberships []*models.Membership
	err := queryEach(ctx, r.db, query, func(rows *sql.Rows) error {
		ms := &models.Membership{}
		if err := rows.Scan(
			&ms.ID, &ms.MemberID, &ms.SeasonID, &ms.Date, &ms.StatutesAccepted, &ms.HasInsurance,
			&ms.ImageRights, &ms.UpdatedAt, &ms.UpdatedByID,
		); err != nil {
			return err
		}
		memberships = append(memberships, ms)
		return nil
	}, seasonID)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	return memberships, nil
}

func (r *membershipRepository) Upsert(ctx context.Context, ms *models.Membership, author int64) (*models.Membership, error) {
	if err := requireAuthor(author); err != nil {
		return nil, err
	}

	now := time.Now()
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO memberships (member_id, season_id, date, statutes_accepted, has_insurance, image_rights, updated_at, updated_by_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (member_id, season_id) DO UPDATE
		SET date = $3, statutes_accepted = $4, has_insurance = $5, image_rights = $6, updated_at = $7, updated_by_id = $8
		RETURNING id`,
		ms.MemberID, ms.SeasonID, ms.Date, ms.StatutesAccepted, ms.HasInsurance, ms.ImageRights, now, author,
	).Scan(&ms.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert membership: %w", err)
	}

	ms.UpdatedAt = now
	ms.UpdatedByID = &author
	return ms, nil
}

package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/asso-tools/assobot/internal/errs"
	"github.com/asso-tools/assobot/internal/models"
	"github.com/asso-tools/assobot/internal/repository"
)

type memberRepository struct {
	db *sql.DB
}

// NewMemberRepository creates a new member repository
func NewMemberRepository(db *sql.DB) repository.MemberRepository {
	return &memberRepository{db: db}
}

const memberColumns = `
		SELECT m.id, m.handle, m.updated_at, m.updated_by_id,
		       c.id, c.first_name, c.last_name, c.birthdate, c.updated_at, c.updated_by_id
		FROM members m
		LEFT JOIN credentials c ON c.member_id = m.id`

func scanMember(rows interface{ Scan(...any) error }) (*models.Member, error) {
	member := &models.Member{}
	var (
		credID      *int64
		first, last *string
		birthdate   *time.Time
		credUpdated *time.Time
		credAuthor  *int64
	)
	if err := rows.Scan(
		&member.ID,
		&member.Handle,
		&member.UpdatedAt,
		&member.UpdatedByID,
		&credID,
		&first,
		&last,
		&birthdate,
		&credUpdated,
		&credAuthor,
	); err != nil {
		return nil, err
	}
	if credID != nil {
		member.Credential = &models.Credential{
			ID:        *credID,
			MemberID:  member.ID,
			Birthdate: birthdate,
			Audit:     models.Audit{UpdatedByID: credAuthor},
		}
		if first != nil {
			member.Credential.FirstName = *first
		}
		if last != nil {
			member.Credential.LastName = *last
		}
		if credUpdated != nil {
			member.Credential.UpdatedAt = *credUpdated
		}
	}
	return member, nil
}

func (r *memberRepository) List(ctx context.Context, filter repository.MemberFilter, depth repository.LoadDepth) ([]*models.Member, error) {
	query := memberColumns + `
		WHERE ($1::bigint IS NULL OR m.id = $1)
		  AND ($2::text IS NULL OR m.handle = $2)
		ORDER BY m.id ASC`

	var members []*models.Member
	err := queryEach(ctx, r.db, query, func(rows *sql.Rows) error {
		member, err := scanMember(rows)
		if err != nil {
			return err
		}
		members = append(members, member)
		return nil
	}, filter.ID, filter.Handle)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}

	if depth == repository.LoadFull && len(members) > 0 {
		if err := r.loadRelations(ctx, members); err != nil {
			return nil, err
		}
	}

	return members, nil
}

func (r *memberRepository) GetByID(ctx context.Context, id int64, depth repository.LoadDepth) (*models.Member, error) {
	members, err := r.List(ctx, repository.MemberFilter{ID: &id}, depth)
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, nil
	}
	return members[0], nil
}

// loadRelations fetches one-to-many relations for all members with one query per table
func (r *memberRepository) loadRelations(ctx context.Context, members []*models.Member) error {
	byID := make(map[int64]*models.Member, len(members))
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		byID[m.ID] = m
		ids = append(ids, m.ID)
	}
	arg := pq.Array(ids)

	err := queryEach(ctx, r.db, `
		SELECT id, member_id, address, principal, updated_at, updated_by_id
		FROM emails WHERE member_id = ANY($1) ORDER BY id ASC`,
		func(rows *sql.Rows) error {
			var e models.Email
			if err := rows.Scan(&e.ID, &e.MemberID, &e.Address, &e.Principal, &e.UpdatedAt, &e.UpdatedByID); err != nil {
				return err
			}
			byID[e.MemberID].Emails = append(byID[e.MemberID].Emails, e)
			return nil
		}, arg)
	if err != nil {
		return fmt.Errorf("failed to load emails: %w", err)
	}

	err = queryEach(ctx, r.db, `
		SELECT id, member_id, number, principal, updated_at, updated_by_id
		FROM phones WHERE member_id = ANY($1) ORDER BY id ASC`,
		func(rows *sql.Rows) error {
			var p models.Phone
			if err := rows.Scan(&p.ID, &p.MemberID, &p.Number, &p.Principal, &p.UpdatedAt, &p.UpdatedByID); err != nil {
				return err
			}
			byID[p.MemberID].Phones = append(byID[p.MemberID].Phones, p)
			return nil
		}, arg)
	if err != nil {
		return fmt.Errorf("failed to load phones: %w", err)
	}

	err = queryEach(ctx, r.db, `
		SELECT id, member_id, street, postal_code, city, principal, updated_at, updated_by_id
		FROM addresses WHERE member_id = ANY($1) ORDER BY id ASC`,
		func(rows *sql.Rows) error {
			var a models.Address
			if err := rows.Scan(&a.ID, &a.MemberID, &a.Street, &a.PostalCode, &a.City, &a.Principal, &a.UpdatedAt, &a.UpdatedByID); err != nil {
				return err
			}
			byID[a.MemberID].Addresses = append(byID[a.MemberID].Addresses, a)
			return nil
		}, arg)
	if err != nil {
		return fmt.Errorf("failed to load addresses: %w", err)
	}

	err = queryEach(ctx, r.db, `
		SELECT ms.id, ms.member_id, ms.season_id, ms.date, ms.statutes_accepted, ms.has_insurance,
		       ms.image_rights, ms.updated_at, ms.updated_by_id, s.name, s.start_date, s.end_date
		FROM memberships ms
		INNER JOIN seasons s ON s.id = ms.season_id
		WHERE ms.member_id = ANY($1)
		ORDER BY s.start_date ASC`,
		func(rows *sql.Rows) error {
			var ms models.Membership
			season := &models.Season{}
			if err := rows.Scan(
				&ms.ID, &ms.MemberID, &ms.SeasonID, &ms.Date, &ms.StatutesAccepted, &ms.HasInsurance,
				&ms.ImageRights, &ms.UpdatedAt, &ms.UpdatedByID, &season.Name, &season.Start, &season.End,
			); err != nil {
				return err
			}
			season.ID = ms.SeasonID
			ms.Season = season
			byID[ms.MemberID].Memberships = append(byID[ms.MemberID].Memberships, ms)
			return nil
		}, arg)
	if err != nil {
		return fmt.Errorf("failed to load memberships: %w", err)
	}

	err = queryEach(ctx, r.db, `
		SELECT a.id, a.event_id, a.member_id, a.presence, a.comment, a.updated_at, a.updated_by_id,
		       e.date, e.name, e.season_id
		FROM attendances a
		INNER JOIN events e ON e.id = a.event_id
		WHERE a.member_id = ANY($1)
		ORDER BY e.date ASC`,
		func(rows *sql.Rows) error {
			var a models.Attendance
			event := &models.Event{}
			if err := rows.Scan(
				&a.ID, &a.EventID, &a.MemberID, &a.Presence, &a.Comment, &a.UpdatedAt, &a.UpdatedByID,
				&event.Date, &event.Name, &event.SeasonID,
			); err != nil {
				return err
			}
			event.ID = a.EventID
			a.Event = event
			owner := byID[*a.MemberID]
			owner.Attendances = append(owner.Attendances, a)
			return nil
		}, arg)
	if err != nil {
		return fmt.Errorf("failed to load attendances: %w", err)
	}

	err = queryEach(ctx, r.db, `
		SELECT ra.id, ra.member_id, ra.role_id, ra.start_date, ra.end_date, ra.updated_at, ra.updated_by_id,
		       r.name, r.is_member, r.is_subscriber, r.is_past_subscriber, r.is_manager, r.is_owner
		FROM role_assignments ra
		INNER JOIN asso_roles r ON r.id = ra.role_id
		WHERE ra.member_id = ANY($1)
		ORDER BY ra.start_date ASC, ra.id ASC`,
		func(rows *sql.Rows) error {
			var ra models.RoleAssignment
			role := &models.AssoRole{}
			if err := rows.Scan(
				&ra.ID, &ra.MemberID, &ra.RoleID, &ra.Start, &ra.End, &ra.UpdatedAt, &ra.UpdatedByID,
				&role.Name, &role.IsMember, &role.IsSubscriber, &role.IsPastSubscriber, &role.IsManager, &role.IsOwner,
			); err != nil {
				return err
			}
			role.ID = ra.RoleID
			ra.Role = role
			byID[ra.MemberID].RoleAssignments = append(byID[ra.MemberID].RoleAssignments, ra)
			return nil
		}, arg)
	if err != nil {
		return fmt.Errorf("failed to load role assignments: %w", err)
	}

	return nil
}

func (r *memberRepository) Create(ctx context.Context, member *models.Member, author int64) (*models.Member, error) {
	if err := requireAuthor(author); err != nil {
		return nil, err
	}

	now := time.Now()
	member.UpdatedAt = now
	member.UpdatedByID = &author

	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		var row *sql.Row
		if member.ID > 0 {
			row = tx.QueryRowContext(ctx, `
				INSERT INTO members (id, handle, updated_at, updated_by_id)
				VALUES ($1, $2, $3, $4)
				RETURNING id`,
				member.ID, member.Handle, now, author)
		} else {
			row = tx.QueryRowContext(ctx, `
				INSERT INTO members (handle, updated_at, updated_by_id)
				VALUES ($1, $2, $3)
				RETURNING id`,
				member.Handle, now, author)
		}
		if err := row.Scan(&member.ID); err != nil {
			return fmt.Errorf("failed to create member: %w", err)
		}
		return upsertCredential(ctx, tx, member, author, now)
	})
	if err != nil {
		return nil, err
	}

	return member, nil
}

func (r *memberRepository) Update(ctx context.Context, member *models.Member, author int64) (*models.Member, error) {
	if err := requireAuthor(author); err != nil {
		return nil, err
	}

	now := time.Now()

	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE members
			SET handle = $2, updated_at = $3, updated_by_id = $4
			WHERE id = $1`,
			member.ID, member.Handle, now, author)
		if err != nil {
			return fmt.Errorf("failed to update member: %w", err)
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return errs.NotFound("member", member.ID)
		}
		return upsertCredential(ctx, tx, member, author, now)
	})
	if err != nil {
		return nil, err
	}

	member.UpdatedAt = now
	member.UpdatedByID = &author
	return member, nil
}

func upsertCredential(ctx context.Context, tx *sql.Tx, member *models.Member, author int64, now time.Time) error {
	c := member.Credential
	if c == nil {
		return nil
	}
	c.MemberID = member.ID
	err := tx.QueryRowContext(ctx, `
		INSERT INTO credentials (member_id, first_name, last_name, birthdate, updated_at, updated_by_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (member_id) DO UPDATE
		SET first_name = $2, last_name = $3, birthdate = $4, updated_at = $5, updated_by_id = $6
		RETURNING id`,
		c.MemberID, c.FirstName, c.LastName, c.Birthdate, now, author,
	).Scan(&c.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert credential: %w", err)
	}
	c.UpdatedAt = now
	c.UpdatedByID = &author
	return nil
}

func (r *memberRepository) ExistingIDs(ctx context.Context, ids []int64) ([]int64, error) {
	var existing []int64
	err := queryEach(ctx, r.db, `SELECT id FROM members WHERE id = ANY($1) ORDER BY id ASC`,
		func(rows *sql.Rows) error {
			var id int64
			if err := rows.Scan(&id); err != nil {
				return err
			}
			existing = append(existing, id)
			return nil
		}, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to check member ids: %w", err)
	}
	return existing, nil
}

// SyncSequence moves the id sequence past imported explicit ids
func (r *memberRepository) SyncSequence(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx,
		`SELECT setval(pg_get_serial_sequence('members', 'id'), COALESCE((SELECT MAX(id) FROM members), 1))`)
	if err != nil {
		return fmt.Errorf("failed to sync member sequence: %w", err)
	}
	return nil
}

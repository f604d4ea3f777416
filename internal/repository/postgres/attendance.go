package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/asso-tools/assobot/internal/models"
	"github.com/asso-tools/assobot/internal/repository"
)

type attendanceRepository struct {
	db *sql.DB
}

// NewAttendanceRepository creates a new attendance repository
func NewAttendanceRepository(db *sql.DB) repository.AttendanceRepository {
	return &attendanceRepository{db: db}
}

func (r *attendanceRepository) ListByEvent(ctx context.Context, eventID int64) ([]*models.Attendance, error) {
	query := `
		SELECT id, event_id, member_id, presence, comment, updated_at, updated_by_id
		FROM attendances
		WHERE event_id = $1
		ORDER BY id ASC`

	var attendances []*models.Attendance
	err := queryEach(ctx, r.db, query, func(rows *sql.Rows) error {
		a := &models.Attendance{}
		if err := rows.Scan(&a.ID, &a.EventID, &a.MemberID, &a.Presence, &a.Comment, &a.UpdatedAt, &a.UpdatedByID); err != nil {
			return err
		}
		attendances = append(attendances, a)
		return nil
	}, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attendances: %w", err)
	}
	return attendances, nil
}

func (r *attendanceRepository) Add(ctx context.Context, a *models.Attendance, author int64) (*models.Attendance, error) {
	if err := requireAuthor(author); err != nil {
		return nil, err
	}

	now := time.Now()
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO attendances (event_id, member_id, presence, comment, updated_at, updated_by_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		a.EventID, a.MemberID, a.Presence, a.Comment, now, author,
	).Scan(&a.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to add attendance: %w", err)
	}

	a.UpdatedAt = now
	a.UpdatedByID = &author
	return a, nil
}

func (r *attendanceRepository) Sync(ctx context.Context, eventID int64, add, remove []int64, author int64) error {
	if err := requireAuthor(author); err != nil {
		return err
	}
	if len(add) == 0 && len(remove) == 0 {
		return nil
	}

	now := time.Now()
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if len(remove) > 0 {
			_, err := tx.ExecContext(ctx,
				`DELETE FROM attendances WHERE event_id = $1 AND member_id = ANY($2)`,
				eventID, pq.Array(remove))
			if err != nil {
				return fmt.Errorf("failed to remove attendances: %w", err)
			}
		}
		if len(add) > 0 {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO attendances (event_id, member_id, presence, comment, updated_at, updated_by_id)
				SELECT $1, m, true, '', $3, $4 FROM unnest($2::bigint[]) AS m
				ON CONFLICT (event_id, member_id) DO NOTHING`,
				eventID, pq.Array(add), now, author)
			if err != nil {
				return fmt.Errorf("failed to add attendances: %w", err)
			}
		}
		return nil
	})
}

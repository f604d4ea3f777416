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

type eventRepository struct {
	db *sql.DB
}

// NewEventRepository creates a new event repository
func NewEventRepository(db *sql.DB) repository.EventRepository {
	return &eventRepository{db: db}
}

func (r *eventRepository) List(ctx context.Context, filter repository.EventFilter, depth repository.LoadDepth) ([]*models.Event, error) {
	query := `
		SELECT e.id, e.date, e.name, e.season_id, e.updated_at, e.updated_by_id,
		       s.name, s.start_date, s.end_date
		FROM events e
		INNER JOIN seasons s ON s.id = e.season_id
		WHERE ($1::date IS NULL OR e.date = $1)
		  AND ($2::bigint IS NULL OR e.season_id = $2)
		  AND ($3::bigint IS NULL OR e.id = $3)
		ORDER BY e.date ASC`

	var date *time.Time
	if filter.Date != nil {
		d := models.Day(*filter.Date)
		date = &d
	}

	var events []*models.Event
	err := queryEach(ctx, r.db, query, func(rows *sql.Rows) error {
		e := &models.Event{}
		season := &models.Season{}
		if err := rows.Scan(
			&e.ID, &e.Date, &e.Name, &e.SeasonID, &e.UpdatedAt, &e.UpdatedByID,
			&season.Name, &season.Start, &season.End,
		); err != nil {
			return err
		}
		season.ID = e.SeasonID
		e.Season = season
		events = append(events, e)
		return nil
	}, date, filter.SeasonID, filter.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	if depth == repository.LoadFull && len(events) > 0 {
		if err := r.loadAttendances(ctx, events); err != nil {
			return nil, err
		}
	}
	return events, nil
}

func (r *eventRepository) loadAttendances(ctx context.Context, events []*models.Event) error {
	byID := make(map[int64]*models.Event, len(events))
	ids := make([]int64, 0, len(events))
	for _, e := range events {
		byID[e.ID] = e
		ids = append(ids, e.ID)
	}

	query := `
		SELECT a.id, a.event_id, a.member_id, a.presence, a.comment, a.updated_at, a.updated_by_id,
		       c.first_name, c.last_name
		FROM attendances a
		LEFT JOIN credentials c ON c.member_id = a.member_id
		WHERE a.event_id = ANY($1)
		ORDER BY a.id ASC`

	err := queryEach(ctx, r.db, query, func(rows *sql.Rows) error {
		var (
			a           models.Attendance
			first, last *string
		)
		if err := rows.Scan(
			&a.ID, &a.EventID, &a.MemberID, &a.Presence, &a.Comment, &a.UpdatedAt, &a.UpdatedByID,
			&first, &last,
		); err != nil {
			return err
		}
		if a.MemberID != nil {
			a.Member = &models.Member{ID: *a.MemberID}
			if first != nil && last != nil {
				a.Member.Credential = &models.Credential{MemberID: *a.MemberID, FirstName: *first, LastName: *last}
			}
		}
		event := byID[a.EventID]
		event.Attendances = append(event.Attendances, a)
		return nil
	}, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to load event attendances: %w", err)
	}
	return nil
}

func (r *eventRepository) GetByID(ctx context.Context, id int64, depth repository.LoadDepth) (*models.Event, error) {
	events, err := r.List(ctx, repository.EventFilter{ID: &id}, depth)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}
	return events[0], nil
}

func (r *eventRepository) Create(ctx context.Context, event *models.Event, author int64) (*models.Event, error) {
	if err := requireAuthor(author); err != nil {
		return nil, err
	}

	now := time.Now()
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO events (date, name, season_id, updated_at, updated_by_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		models.Day(event.Date), event.Name, event.SeasonID, now, author,
	).Scan(&event.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create event: %w", err)
	}

	event.UpdatedAt = now
	event.UpdatedByID = &author
	return event, nil
}

func (r *eventRepository) Update(ctx context.Context, event *models.Event, author int64) (*models.Event, error) {
	if err := requireAuthor(author); err != nil {
		return nil, err
	}

	now := time.Now()
	result, err := r.db.ExecContext(ctx, `
		UPDATE events
		SET date = $2, name = $3, season_id = $4, updated_at = $5, updated_by_id = $6
		WHERE id = $1`,
		event.ID, models.Day(event.Date), event.Name, event.SeasonID, now, author)
	if err != nil {
		return nil, fmt.Errorf("failed to update event: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, errs.NotFound("event", event.ID)
	}

	event.UpdatedAt = now
	event.UpdatedByID = &author
	return event, nil
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/asso-tools/assobot/internal/models"
	"github.com/asso-tools/assobot/internal/repository"
)

type seasonRepository struct {
	db *sql.DB
}

// NewSeasonRepository creates a new season repository
func NewSeasonRepository(db *sql.DB) repository.SeasonRepository {
	return &seasonRepository{db: db}
}

const seasonColumns = `SELECT id, name, start_date, end_date, updated_at, updated_by_id FROM seasons`

func scanSeason(row interface{ Scan(...any) error }) (*models.Season, error) {
	s := &models.Season{}
	if err := row.Scan(&s.ID, &s.Name, &s.Start, &s.End, &s.UpdatedAt, &s.UpdatedByID); err != nil {
		return nil, err
	}
	return s, nil
}

func (r *seasonRepository) List(ctx context.Context) ([]*models.Season, error) {
	var seasons []*models.Season
	err := queryEach(ctx, r.db, seasonColumns+` ORDER BY start_date ASC`, func(rows *sql.Rows) error {
		s, err := scanSeason(rows)
		if err != nil {
			return err
		}
		seasons = append(seasons, s)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list seasons: %w", err)
	}
	return seasons, nil
}

func (r *seasonRepository) GetByName(ctx context.Context, name string) (*models.Season, error) {
	s, err := scanSeason(r.db.QueryRowContext(ctx, seasonColumns+` WHERE name = $1`, name))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get season by name: %w", err)
	}
	return s, nil
}

func (r *seasonRepository) GetForDate(ctx context.Context, date time.Time) (*models.Season, error) {
	query := seasonColumns + `
		WHERE start_date <= $1 AND end_date >= $1
		ORDER BY start_date DESC
		LIMIT 1`

	s, err := scanSeason(r.db.QueryRowContext(ctx, query, models.Day(date)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get season for date: %w", err)
	}
	return s, nil
}

func (r *seasonRepository) Upsert(ctx context.Context, season *models.Season, author int64) (*models.Season, error) {
	if err := requireAuthor(author); err != nil {
		return nil, err
	}

	now := time.Now()
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO seasons (name, start_date, end_date, updated_at, updated_by_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (name) DO UPDATE
		SET start_date = $2, end_date = $3, updated_at = $4, updated_by_id = $5
		RETURNING id`,
		season.Name, season.Start, season.End, now, author,
	).Scan(&season.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert season: %w", err)
	}

	season.UpdatedAt = now
	season.UpdatedByID = &author
	return season, nil
}

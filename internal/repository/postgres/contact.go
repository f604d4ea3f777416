package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/asso-tools/assobot/internal/models"
	"github.com/asso-tools/assobot/internal/repository"
)

type contactRepository struct {
	db *sql.DB
}

// NewContactRepository creates a new contact repository
func NewContactRepository(db *sql.DB) repository.ContactRepository {
	return &contactRepository{db: db}
}

// addContact inserts a contact row. A principal contact demotes any previous
// principal of the same table and member first.
func (r *contactRepository) addContact(ctx context.Context, table string, memberID int64, principal bool, author int64, insert func(tx *sql.Tx, now time.Time) error) error {
	if err := requireAuthor(author); err != nil {
		return err
	}
	now := time.Now()
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if principal {
			demote := fmt.Sprintf(`
				UPDATE %s SET principal = false, updated_at = $2, updated_by_id = $3
				WHERE member_id = $1 AND principal`, table)
			if _, err := tx.ExecContext(ctx, demote, memberID, now, author); err != nil {
				return fmt.Errorf("failed to demote principal %s: %w", table, err)
			}
		}
		return insert(tx, now)
	})
}

func (r *contactRepository) AddEmail(ctx context.Context, email *models.Email, author int64) (*models.Email, error) {
	err := r.addContact(ctx, "emails", email.MemberID, email.Principal, author, func(tx *sql.Tx, now time.Time) error {
		email.UpdatedAt = now
		email.UpdatedByID = &author
		err := tx.QueryRowContext(ctx, `
			INSERT INTO emails (member_id, address, principal, updated_at, updated_by_id)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id`,
			email.MemberID, email.Address, email.Principal, now, author,
		).Scan(&email.ID)
		if err != nil {
			return fmt.Errorf("failed to add email: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return email, nil
}

func (r *contactRepository) AddPhone(ctx context.Context, phone *models.Phone, author int64) (*models.Phone, error) {
	err := r.addContact(ctx, "phones", phone.MemberID, phone.Principal, author, func(tx *sql.Tx, now time.Time) error {
		phone.UpdatedAt = now
		phone.UpdatedByID = &author
		err := tx.QueryRowContext(ctx, `
			INSERT INTO phones (member_id, number, principal, updated_at, updated_by_id)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id`,
			phone.MemberID, phone.Number, phone.Principal, now, author,
		).Scan(&phone.ID)
		if err != nil {
			return fmt.Errorf("failed to add phone: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return phone, nil
}

func (r *contactRepository) AddAddress(ctx context.Context, address *models.Address, author int64) (*models.Address, error) {
	err := r.addContact(ctx, "addresses", address.MemberID, address.Principal, author, func(tx *sql.Tx, now time.Time) error {
		address.UpdatedAt = now
		address.UpdatedByID = &author
		err := tx.QueryRowContext(ctx, `
			INSERT INTO addresses (member_id, street, postal_code, city, principal, updated_at, updated_by_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id`,
			address.MemberID, address.Street, address.PostalCode, address.City, address.Principal, now, author,
		).Scan(&address.ID)
		if err != nil {
			return fmt.Errorf("failed to add address: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return address, nil
}

package repository

import (
	"context"
	"time"

	"github.com/asso-tools/assobot/internal/models"
)

// LoadDepth controls how much related data a query fetches
type LoadDepth int

const (
	// LoadShallow fetches the rows themselves plus one-to-one data (credentials, seasons)
	LoadShallow LoadDepth = iota
	// LoadFull additionally fetches every one-to-many relation in batched queries
	LoadFull
)

func (d LoadDepth) String() string {
	if d == LoadFull {
		return "full"
	}
	return "shallow"
}

// MemberRepository defines the interface for member data operations
type MemberRepository interface {
	List(ctx context.Context, filter MemberFilter, depth LoadDepth) ([]*models.Member, error)
	GetByID(ctx context.Context, id int64, depth LoadDepth) (*models.Member, error)
	Create(ctx context.Context, member *models.Member, author int64) (*models.Member, error)
	Update(ctx context.Context, member *models.Member, author int64) (*models.Member, error)
	ExistingIDs(ctx context.Context, ids []int64) ([]int64, error)
	SyncSequence(ctx context.Context) error
}

// ContactRepository defines the interface for member contact records
type ContactRepository interface {
	AddEmail(ctx context.Context, email *models.Email, author int64) (*models.Email, error)
	AddPhone(ctx context.Context, phone *models.Phone, author int64) (*models.Phone, error)
	AddAddress(ctx context.Context, address *models.Address, author int64) (*models.Address, error)
}

// SeasonRepository defines the interface for season operations
type SeasonRepository interface {
	List(ctx context.Context) ([]*models.Season, error)
	GetByName(ctx context.Context, name string) (*models.Season, error)
	GetForDate(ctx context.Context, date time.Time) (*models.Season, error)
	Upsert(ctx context.Context, season *models.Season, author int64) (*models.Season, error)
}

// MembershipRepository defines the interface for season subscriptions
type MembershipRepository interface {
	ListBySeason(ctx context.Context, seasonID int64) ([]*models.Membership, error)
	Upsert(ctx context.Context, membership *models.Membership, author int64) (*models.Membership, error)
}

// EventRepository defines the interface for event operations
type EventRepository interface {
	List(ctx context.Context, filter EventFilter, depth LoadDepth) ([]*models.Event, error)
	GetByID(ctx context.Context, id int64, depth LoadDepth) (*models.Event, error)
	Create(ctx context.Context, event *models.Event, author int64) (*models.Event, error)
	Update(ctx context.Context, event *models.Event, author int64) (*models.Event, error)
}

// AttendanceRepository defines the interface for event attendance operations
type AttendanceRepository interface {
	ListByEvent(ctx context.Context, eventID int64) ([]*models.Attendance, error)
	Add(ctx context.Context, attendance *models.Attendance, author int64) (*models.Attendance, error)
	// Sync adds and removes member attendances of one event in a single transaction
	Sync(ctx context.Context, eventID int64, add, remove []int64, author int64) error
}

// RoleRepository defines the interface for roles, their external groups and manual assignments
type RoleRepository interface {
	List(ctx context.Context) ([]*models.AssoRole, error)
	Upsert(ctx context.Context, role *models.AssoRole, author int64) (*models.AssoRole, error)
	Assign(ctx context.Context, assignment *models.RoleAssignment, author int64) (*models.RoleAssignment, error)
}

// MemberFilter selects members. An empty filter selects everyone.
type MemberFilter struct {
	ID     *int64
	Handle *string
}

// EventFilter selects events. An empty filter selects every event.
type EventFilter struct {
	ID       *int64
	Date     *time.Time
	SeasonID *int64
}

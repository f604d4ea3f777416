package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/asso-tools/assobot/internal/cache"
	"github.com/asso-tools/assobot/internal/errs"
	"github.com/asso-tools/assobot/internal/models"
	"github.com/asso-tools/assobot/internal/repository"
	"github.com/asso-tools/assobot/internal/resolve"
	"github.com/asso-tools/assobot/internal/status"
)

// Cache operation names. Writes invalidate the operations they affect.
const (
	opMembers = "members"
	opEvents  = "events"
	opSeasons = "seasons"
	opRoles   = "roles"
)

// Repositories groups every store the service depends on
type Repositories struct {
	Members     repository.MemberRepository
	Contacts    repository.ContactRepository
	Seasons     repository.SeasonRepository
	Memberships repository.MembershipRepository
	Events      repository.EventRepository
	Attendances repository.AttendanceRepository
	Roles       repository.RoleRepository
}

// Service is the central business logic layer that holds all repositories
// and provides high-level methods for the application.
type Service struct {
	logger   *logrus.Logger
	repos    Repositories
	cache    *cache.Cache
	resolver *resolve.Resolver
	now      func() time.Time
}

// Option configures a Service
type Option func(*Service)

// WithClock replaces the clock used as "now" by every temporal query
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithResolver replaces the member resolver
func WithResolver(r *resolve.Resolver) Option {
	return func(s *Service) { s.resolver = r }
}

// New creates a new Service with all required dependencies.
func New(logger *logrus.Logger, repos Repositories, c *cache.Cache, opts ...Option) *Service {
	s := &Service{
		logger:   logger,
		repos:    repos,
		cache:    c,
		resolver: resolve.New(resolve.MentionLookup{}),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cache == nil {
		s.cache = cache.New(0)
	}
	return s
}

// Now returns the instant temporal predicates are evaluated at
func (s *Service) Now() time.Time {
	return s.now()
}

// InvalidateCache drops every cached query result
func (s *Service) InvalidateCache() {
	s.cache.Invalidate()
	s.logger.Debug("Cache invalidated")
}

func (s *Service) invalidate(ops ...string) {
	for _, op := range ops {
		s.cache.InvalidatePrefix(op)
	}
}

// AllMembers returns every member loaded at depth
func (s *Service) AllMembers(ctx context.Context, depth repository.LoadDepth) ([]*models.Member, error) {
	return cache.Fetch(s.cache, opMembers, cache.Key(opMembers, depth), func() ([]*models.Member, error) {
		return s.repos.Members.List(ctx, repository.MemberFilter{}, depth)
	})
}

// AllEvents returns every event loaded at depth
func (s *Service) AllEvents(ctx context.Context, depth repository.LoadDepth) ([]*models.Event, error) {
	return cache.Fetch(s.cache, opEvents, cache.Key(opEvents, depth), func() ([]*models.Event, error) {
		return s.repos.Events.List(ctx, repository.EventFilter{}, depth)
	})
}

// Seasons returns every season
func (s *Service) Seasons(ctx context.Context) ([]*models.Season, error) {
	return cache.Fetch(s.cache, opSeasons, opSeasons, func() ([]*models.Season, error) {
		return s.repos.Seasons.List(ctx)
	})
}

// Catalog returns the role catalog with each role's external groups
func (s *Service) Catalog(ctx context.Context) (*status.Catalog, error) {
	return cache.Fetch(s.cache, opRoles, opRoles, func() (*status.Catalog, error) {
		roles, err := s.repos.Roles.List(ctx)
		if err != nil {
			return nil, err
		}
		return status.NewCatalog(roles), nil
	})
}

// CurrentSeason returns the season containing now, or nil
func (s *Service) CurrentSeason(ctx context.Context) (*models.Season, error) {
	seasons, err := s.Seasons(ctx)
	if err != nil {
		return nil, err
	}
	return status.CurrentSeason(seasons, s.now()), nil
}

// Season returns the season named name
func (s *Service) Season(ctx context.Context, name string) (*models.Season, error) {
	seasons, err := s.Seasons(ctx)
	if err != nil {
		return nil, err
	}
	for _, season := range seasons {
		if season.Name == name {
			return season, nil
		}
	}
	return nil, errs.NotFound("season", name)
}

func requireAuthor(author int64) error {
	if author <= 0 {
		return errs.MissingAuthor
	}
	return nil
}

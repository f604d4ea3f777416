package service

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/asso-tools/assobot/internal/cache"
	"github.com/asso-tools/assobot/internal/errs"
	"github.com/asso-tools/assobot/internal/models"
	"github.com/asso-tools/assobot/internal/repository"
)

// store is an in-memory backend implementing every repository interface
type store struct {
	mu          sync.Mutex
	members     map[int64]*models.Member
	seasons     []*models.Season
	events      map[int64]*models.Event
	attendances []*models.Attendance
	memberships []*models.Membership
	roles       []*models.AssoRole
	assignments []*models.RoleAssignment
	nextID      int64
	listCalls   int
	syncCalls   int
	failSync    error
}

func newStore() *store {
	return &store{members: map[int64]*models.Member{}, events: map[int64]*models.Event{}, nextID: 100}
}

func (s *store) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *store) repos() Repositories {
	return Repositories{
		Members:     memberRepo{s},
		Contacts:    contactRepo{s},
		Seasons:     seasonRepo{s},
		Memberships: membershipRepo{s},
		Events:      eventRepo{s},
		Attendances: attendanceRepo{s},
		Roles:       roleRepo{s},
	}
}

func (s *store) seasonByID(id int64) *models.Season {
	for _, season := range s.seasons {
		if season.ID == id {
			return season
		}
	}
	return nil
}

// full rebuilds the relations of a member snapshot
func (s *store) full(m *models.Member) *models.Member {
	cp := *m
	cp.Memberships = nil
	cp.Attendances = nil
	cp.RoleAssignments = nil
	for _, ms := range s.memberships {
		if ms.MemberID == m.ID {
			row := *ms
			row.Season = s.seasonByID(ms.SeasonID)
			cp.Memberships = append(cp.Memberships, row)
		}
	}
	for _, a := range s.attendances {
		if a.MemberID != nil && *a.MemberID == m.ID {
			row := *a
			row.Event = s.events[a.EventID]
			cp.Attendances = append(cp.Attendances, row)
		}
	}
	for _, a := range s.assignments {
		if a.MemberID == m.ID {
			cp.RoleAssignments = append(cp.RoleAssignments, *a)
		}
	}
	return &cp
}

func requireAuthorID(author int64) error {
	if author <= 0 {
		return errs.MissingAuthor
	}
	return nil
}

type memberRepo struct{ s *store }

func (r memberRepo) List(_ context.Context, f repository.MemberFilter, depth repository.LoadDepth) ([]*models.Member, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.listCalls++
	var out []*models.Member
	for _, m := range r.s.members {
		if f.ID != nil && m.ID != *f.ID {
			continue
		}
		if depth == repository.LoadFull {
			out = append(out, r.s.full(m))
		} else {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memberRepo) GetByID(ctx context.Context, id int64, depth repository.LoadDepth) (*models.Member, error) {
	found, err := r.List(ctx, repository.MemberFilter{ID: &id}, depth)
	if err != nil || len(found) == 0 {
		return nil, err
	}
	return found[0], nil
}

func (r memberRepo) Create(_ context.Context, m *models.Member, author int64) (*models.Member, error) {
	if err := requireAuthorID(author); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if m.ID == 0 {
		m.ID = r.s.id()
	}
	m.UpdatedByID = &author
	cp := *m
	r.s.members[m.ID] = &cp
	return m, nil
}

func (r memberRepo) Update(_ context.Context, m *models.Member, author int64) (*models.Member, error) {
	if err := requireAuthorID(author); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.members[m.ID]; !ok {
		return nil, errs.NotFound("member", m.ID)
	}
	m.UpdatedByID = &author
	cp := *m
	r.s.members[m.ID] = &cp
	return m, nil
}

func (r memberRepo) ExistingIDs(_ context.Context, ids []int64) ([]int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []int64
	for _, id := range ids {
		if _, ok := r.s.members[id]; ok {
			out = append(out, id)
		}
	}
	return out, nil
}

func (r memberRepo) SyncSequence(context.Context) error { return nil }

type contactRepo struct{ s *store }

func (r contactRepo) AddEmail(_ context.Context, e *models.Email, author int64) (*models.Email, error) {
	if err := requireAuthorID(author); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m := r.s.members[e.MemberID]
	if m == nil {
		return nil, errs.NotFound("member", e.MemberID)
	}
	if e.Principal {
		for i := range m.Emails {
			m.Emails[i].Principal = false
		}
	}
	e.ID = r.s.id()
	m.Emails = append(m.Emails, *e)
	return e, nil
}

func (r contactRepo) AddPhone(_ context.Context, p *models.Phone, author int64) (*models.Phone, error) {
	if err := requireAuthorID(author); err != nil {
		return nil, err
	}
	p.ID = r.s.id()
	return p, nil
}

func (r contactRepo) AddAddress(_ context.Context, a *models.Address, author int64) (*models.Address, error) {
	if err := requireAuthorID(author); err != nil {
		return nil, err
	}
	a.ID = r.s.id()
	return a, nil
}

type seasonRepo struct{ s *store }

func (r seasonRepo) List(context.Context) ([]*models.Season, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return append([]*models.Season(nil), r.s.seasons...), nil
}

func (r seasonRepo) GetByName(_ context.Context, name string) (*models.Season, error) {
	for _, season := range r.s.seasons {
		if season.Name == name {
			return season, nil
		}
	}
	return nil, nil
}

func (r seasonRepo) GetForDate(_ context.Context, date time.Time) (*models.Season, error) {
	for _, season := range r.s.seasons {
		if season.Contains(date) {
			return season, nil
		}
	}
	return nil, nil
}

func (r seasonRepo) Upsert(_ context.Context, season *models.Season, author int64) (*models.Season, error) {
	if err := requireAuthorID(author); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.seasons {
		if existing.Name == season.Name {
			season.ID = existing.ID
			*existing = *season
			return season, nil
		}
	}
	season.ID = r.s.id()
	cp := *season
	r.s.seasons = append(r.s.seasons, &cp)
	return season, nil
}

type membershipRepo struct{ s *store }

func (r membershipRepo) ListBySeason(_ context.Context, seasonID int64) ([]*models.Membership, error) {
	var out []*models.Membership
	for _, ms := range r.s.memberships {
		if ms.SeasonID == seasonID {
			out = append(out, ms)
		}
	}
	return out, nil
}

func (r membershipRepo) Upsert(_ context.Context, ms *models.Membership, author int64) (*models.Membership, error) {
	if err := requireAuthorID(author); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.memberships {
		if existing.MemberID == ms.MemberID && existing.SeasonID == ms.SeasonID {
			ms.ID = existing.ID
			*existing = *ms
			return ms, nil
		}
	}
	ms.ID = r.s.id()
	cp := *ms
	r.s.memberships = append(r.s.memberships, &cp)
	return ms, nil
}

type eventRepo struct{ s *store }

func (r eventRepo) List(_ context.Context, f repository.EventFilter, _ repository.LoadDepth) ([]*models.Event, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.Event
	for _, e := range r.s.events {
		if f.ID != nil && e.ID != *f.ID {
			continue
		}
		cp := *e
		cp.Season = r.s.seasonByID(e.SeasonID)
		cp.Attendances = nil
		for _, a := range r.s.attendances {
			if a.EventID == e.ID {
				cp.Attendances = append(cp.Attendances, *a)
			}
		}
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (r eventRepo) GetByID(ctx context.Context, id int64, depth repository.LoadDepth) (*models.Event, error) {
	found, err := r.List(ctx, repository.EventFilter{ID: &id}, depth)
	if err != nil || len(found) == 0 {
		return nil, err
	}
	return found[0], nil
}

func (r eventRepo) Create(_ context.Context, e *models.Event, author int64) (*models.Event, error) {
	if err := requireAuthorID(author); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e.ID = r.s.id()
	cp := *e
	r.s.events[e.ID] = &cp
	return e, nil
}

func (r eventRepo) Update(_ context.Context, e *models.Event, author int64) (*models.Event, error) {
	if err := requireAuthorID(author); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *e
	r.s.events[e.ID] = &cp
	return e, nil
}

type attendanceRepo struct{ s *store }

func (r attendanceRepo) ListByEvent(_ context.Context, eventID int64) ([]*models.Attendance, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.Attendance
	for _, a := range r.s.attendances {
		if a.EventID == eventID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r attendanceRepo) Add(_ context.Context, a *models.Attendance, author int64) (*models.Attendance, error) {
	if err := requireAuthorID(author); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a.ID = r.s.id()
	cp := *a
	r.s.attendances = append(r.s.attendances, &cp)
	return a, nil
}

func (r attendanceRepo) Sync(_ context.Context, eventID int64, add, remove []int64, author int64) error {
	if err := requireAuthorID(author); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.syncCalls++
	if r.s.failSync != nil {
		return r.s.failSync
	}
	drop := map[int64]bool{}
	for _, id := range remove {
		drop[id] = true
	}
	kept := r.s.attendances[:0]
	for _, a := range r.s.attendances {
		if a.EventID == eventID && a.MemberID != nil && drop[*a.MemberID] {
			continue
		}
		kept = append(kept, a)
	}
	r.s.attendances = kept
	for _, id := range add {
		r.s.attendances = append(r.s.attendances, &models.Attendance{
			ID: r.s.id(), EventID: eventID, MemberID: &id, Presence: true,
			Audit: models.Audit{UpdatedByID: &author},
		})
	}
	return nil
}

type roleRepo struct{ s *store }

func (r roleRepo) List(context.Context) ([]*models.AssoRole, error) {
	return r.s.roles, nil
}

func (r roleRepo) Upsert(_ context.Context, role *models.AssoRole, author int64) (*models.AssoRole, error) {
	if err := requireAuthorID(author); err != nil {
		return nil, err
	}
	r.s.roles = append(r.s.roles, role)
	return role, nil
}

func (r roleRepo) Assign(_ context.Context, a *models.RoleAssignment, author int64) (*models.RoleAssignment, error) {
	if err := requireAuthorID(author); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a.ID = r.s.id()
	cp := *a
	r.s.assignments = append(r.s.assignments, &cp)
	return a, nil
}

var errBoom = errors.New("connection reset")

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ptr[T any](v T) *T { return &v }

var (
	gMember = models.ExternalRoleGroup{ID: "100", Name: "Membre"}
	gSub    = models.ExternalRoleGroup{ID: "200", Name: "Adhérent"}
	gPast   = models.ExternalRoleGroup{ID: "300", Name: "Ancien"}
	gBoard  = models.ExternalRoleGroup{ID: "400", Name: "Bureau"}
)

// seeded returns a store with two seasons, four roles and three members
func seeded() *store {
	s := newStore()
	s.seasons = []*models.Season{
		{ID: 1, Name: "2024-2025", Start: day(2024, 9, 1), End: ptr(day(2025, 8, 31))},
		{ID: 2, Name: "2025-2026", Start: day(2025, 9, 1), End: ptr(day(2026, 8, 31))},
	}
	s.roles = []*models.AssoRole{
		{ID: 1, Name: "Membre", IsMember: ptr(true), Groups: []models.ExternalRoleGroup{gMember}},
		{ID: 2, Name: "Adhérent", IsMember: ptr(true), IsSubscriber: ptr(true), Groups: []models.ExternalRoleGroup{gMember, gSub}},
		{ID: 3, Name: "Ancien", IsMember: ptr(true), IsPastSubscriber: ptr(true), Groups: []models.ExternalRoleGroup{gMember, gPast}},
		{ID: 4, Name: "Bureau", IsMember: ptr(true), IsManager: ptr(true), Groups: []models.ExternalRoleGroup{gMember, gBoard}},
	}
	s.members[1] = &models.Member{ID: 1, Handle: ptr("admin"), Credential: &models.Credential{FirstName: "Alice", LastName: "Admin"}}
	s.members[2] = &models.Member{ID: 2, Handle: ptr("jdupont"), Credential: &models.Credential{FirstName: "Jean", LastName: "Dupont"}}
	s.members[3] = &models.Member{ID: 3, Credential: &models.Credential{FirstName: "Jean", LastName: "Dupond"}}
	return s
}

func newTestService(t *testing.T, s *store) *Service {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	now := func() time.Time { return day(2026, 3, 1) }
	return New(logger, s.repos(), cache.New(time.Minute, cache.WithClock(now)), WithClock(now))
}

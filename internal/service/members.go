package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/asso-tools/assobot/internal/errs"
	"github.com/asso-tools/assobot/internal/models"
	"github.com/asso-tools/assobot/internal/repository"
	"github.com/asso-tools/assobot/internal/resolve"
	"github.com/asso-tools/assobot/internal/status"
)

// MemberPredicate selects members. The zero value selects everyone;
// otherwise exactly one of ID, Handle or Name is set.
type MemberPredicate struct {
	ID     *int64
	Handle *string
	Name   *string
	// Options tunes the fuzzy name search
	Options resolve.Options
}

// MembersBy returns the members matching p, fully loaded
func (s *Service) MembersBy(ctx context.Context, p MemberPredicate) ([]*models.Member, error) {
	members, err := s.AllMembers(ctx, repository.LoadFull)
	if err != nil {
		return nil, err
	}

	switch {
	case p.ID != nil:
		for _, m := range members {
			if m.ID == *p.ID {
				return []*models.Member{m}, nil
			}
		}
		return nil, nil
	case p.Handle != nil:
		handle := strings.TrimPrefix(*p.Handle, "@")
		var found []*models.Member
		var ids []int64
		for _, m := range members {
			if m.Handle != nil && *m.Handle == handle {
				found = append(found, m)
				ids = append(ids, m.ID)
			}
		}
		if len(found) > 1 {
			return nil, &errs.IntegrityError{Handle: handle, MemberIDs: ids}
		}
		return found, nil
	case p.Name != nil:
		matches, err := s.SearchMembers(ctx, *p.Name, p.Options)
		if err != nil {
			return nil, err
		}
		found := make([]*models.Member, len(matches))
		for i, m := range matches {
			found[i] = m.Member
		}
		return found, nil
	default:
		return members, nil
	}
}

// SearchMembers ranks members by fuzzy name similarity only
func (s *Service) SearchMembers(ctx context.Context, name string, opts resolve.Options) ([]resolve.Match, error) {
	members, err := s.AllMembers(ctx, repository.LoadFull)
	if err != nil {
		return nil, err
	}
	return resolve.ByName(name, members, opts)
}

// RequireAuthor checks that author is a stored member able to sign writes
func (s *Service) RequireAuthor(ctx context.Context, author int64) error {
	if author <= 0 {
		return errs.MissingAuthor
	}
	existing, err := s.repos.Members.ExistingIDs(ctx, []int64{author})
	if err != nil {
		return fmt.Errorf("failed to check author: %w", err)
	}
	if len(existing) == 0 {
		return &errs.ConfigError{What: fmt.Sprintf("acting member %d does not exist", author)}
	}
	return nil
}

// ResolveMember resolves a handle, numeric id or free-text token to candidates
func (s *Service) ResolveMember(ctx context.Context, token string, opts resolve.Options) ([]resolve.Match, error) {
	members, err := s.AllMembers(ctx, repository.LoadFull)
	if err != nil {
		return nil, err
	}
	return s.resolver.Resolve(ctx, token, members, opts)
}

// Member returns the fully loaded member with id
func (s *Service) Member(ctx context.Context, id int64) (*models.Member, error) {
	found, err := s.MembersBy(ctx, MemberPredicate{ID: &id})
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, errs.NotFound("member", id)
	}
	return found[0], nil
}

// MemberByHandle returns the member bound to handle, or nil
func (s *Service) MemberByHandle(ctx context.Context, handle string) (*models.Member, error) {
	found, err := s.MembersBy(ctx, MemberPredicate{Handle: &handle})
	if err != nil || len(found) == 0 {
		return nil, err
	}
	return found[0], nil
}

// EffectiveRole returns the role of m at now
func (s *Service) EffectiveRole(ctx context.Context, m *models.Member, now time.Time) (*models.AssoRole, error) {
	catalog, err := s.Catalog(ctx)
	if err != nil {
		return nil, err
	}
	return status.EffectiveRole(m, catalog, now)
}

// Status evaluates every temporal predicate of m at the service clock
func (s *Service) Status(ctx context.Context, m *models.Member) (status.Status, error) {
	catalog, err := s.Catalog(ctx)
	if err != nil {
		return status.Status{}, err
	}
	return status.Compute(m, catalog, s.now())
}

// MemberInput carries the fields of an upsert. Nil fields keep their current value.
type MemberInput struct {
	// ID selects the member to update. An unknown ID creates the member with that id.
	ID        *int64
	Handle    *string
	FirstName *string
	LastName  *string
	Birthdate *time.Time
}

// UpsertMember creates or updates a member and its credential
func (s *Service) UpsertMember(ctx context.Context, in MemberInput, author int64) (*models.Member, error) {
	if err := requireAuthor(author); err != nil {
		return nil, err
	}

	var member *models.Member
	if in.ID != nil {
		existing, err := s.repos.Members.GetByID(ctx, *in.ID, repository.LoadShallow)
		if err != nil {
			return nil, fmt.Errorf("failed to lookup member %d: %w", *in.ID, err)
		}
		member = existing
	}

	creating := member == nil
	if creating {
		member = &models.Member{}
		if in.ID != nil {
			member.ID = *in.ID
		}
	}

	if in.Handle != nil {
		handle := strings.TrimPrefix(strings.TrimSpace(*in.Handle), "@")
		if handle == "" {
			member.Handle = nil
		} else {
			member.Handle = &handle
		}
	}
	if in.FirstName != nil || in.LastName != nil || in.Birthdate != nil {
		if member.Credential == nil {
			member.Credential = &models.Credential{MemberID: member.ID}
		}
		if in.FirstName != nil {
			member.Credential.FirstName = strings.TrimSpace(*in.FirstName)
		}
		if in.LastName != nil {
			member.Credential.LastName = strings.TrimSpace(*in.LastName)
		}
		if in.Birthdate != nil {
			d := models.Day(*in.Birthdate)
			member.Credential.Birthdate = &d
		}
	}

	var err error
	if creating {
		member, err = s.repos.Members.Create(ctx, member, author)
	} else {
		member, err = s.repos.Members.Update(ctx, member, author)
	}
	if err != nil {
		return nil, err
	}
	s.invalidate(opMembers)

	s.logger.WithFields(logrus.Fields{
		"member_id": member.ID,
		"author":    author,
		"created":   creating,
	}).Info("Upserted member")
	return member, nil
}

// SyncMemberSequence moves the member id sequence past explicitly imported ids
func (s *Service) SyncMemberSequence(ctx context.Context) error {
	return s.repos.Members.SyncSequence(ctx)
}

// AddEmail records an e-mail address for a member
func (s *Service) AddEmail(ctx context.Context, memberID int64, address string, principal bool, author int64) (*models.Email, error) {
	if err := requireAuthor(author); err != nil {
		return nil, err
	}
	email, err := s.repos.Contacts.AddEmail(ctx, &models.Email{
		MemberID:  memberID,
		Address:   strings.TrimSpace(address),
		Principal: principal,
	}, author)
	if err != nil {
		return nil, err
	}
	s.invalidate(opMembers)
	return email, nil
}

// AddPhone records a phone number for a member
func (s *Service) AddPhone(ctx context.Context, memberID int64, number string, principal bool, author int64) (*models.Phone, error) {
	if err := requireAuthor(author); err != nil {
		return nil, err
	}
	phone, err := s.repos.Contacts.AddPhone(ctx, &models.Phone{
		MemberID:  memberID,
		Number:    strings.TrimSpace(number),
		Principal: principal,
	}, author)
	if err != nil {
		return nil, err
	}
	s.invalidate(opMembers)
	return phone, nil
}

// AddAddress records a postal address for a member
func (s *Service) AddAddress(ctx context.Context, address models.Address, author int64) (*models.Address, error) {
	if err := requireAuthor(author); err != nil {
		return nil, err
	}
	saved, err := s.repos.Contacts.AddAddress(ctx, &address, author)
	if err != nil {
		return nil, err
	}
	s.invalidate(opMembers)
	return saved, nil
}

// UpsertMembership records that a member subscribed for the named season
func (s *Service) UpsertMembership(ctx context.Context, memberID int64, seasonName string, ms models.Membership, author int64) (*models.Membership, error) {
	if err := requireAuthor(author); err != nil {
		return nil, err
	}
	season, err := s.Season(ctx, seasonName)
	if err != nil {
		return nil, err
	}

	ms.MemberID = memberID
	ms.SeasonID = season.ID
	if ms.Date.IsZero() {
		ms.Date = models.Day(s.now())
	}
	saved, err := s.repos.Memberships.Upsert(ctx, &ms, author)
	if err != nil {
		return nil, err
	}
	saved.Season = season
	s.invalidate(opMembers)

	s.logger.WithFields(logrus.Fields{
		"member_id": memberID,
		"season":    season.Name,
		"author":    author,
	}).Info("Upserted membership")
	return saved, nil
}

// UpsertSeason creates or updates a season by name
func (s *Service) UpsertSeason(ctx context.Context, season *models.Season, author int64) (*models.Season, error) {
	if err := requireAuthor(author); err != nil {
		return nil, err
	}
	if season.End != nil && season.End.Before(season.Start) {
		return nil, fmt.Errorf("season %s ends before it starts", season.Name)
	}
	saved, err := s.repos.Seasons.Upsert(ctx, season, author)
	if err != nil {
		return nil, err
	}
	s.invalidate(opSeasons, opMembers, opEvents)
	return saved, nil
}

// AssignRole gives a member a manual role from start until end (open when nil)
func (s *Service) AssignRole(ctx context.Context, memberID, roleID int64, start time.Time, end *time.Time, author int64) (*models.RoleAssignment, error) {
	if err := requireAuthor(author); err != nil {
		return nil, err
	}
	catalog, err := s.Catalog(ctx)
	if err != nil {
		return nil, err
	}
	role := catalog.ByID(roleID)
	if role == nil {
		return nil, errs.NotFound("role", roleID)
	}
	if end != nil && end.Before(start) {
		return nil, fmt.Errorf("role assignment ends before it starts")
	}

	a := &models.RoleAssignment{MemberID: memberID, RoleID: roleID, Start: models.Day(start)}
	if end != nil {
		d := models.Day(*end)
		a.End = &d
	}
	saved, err := s.repos.Roles.Assign(ctx, a, author)
	if err != nil {
		return nil, err
	}
	saved.Role = role
	s.invalidate(opMembers)

	s.logger.WithFields(logrus.Fields{
		"member_id": memberID,
		"role":      role.Name,
		"author":    author,
	}).Info("Assigned role")
	return saved, nil
}

// Package status derives a member's effective status at a given instant
// from their memberships, attendances and manual role assignments.
//
// Every function takes now explicitly. Members must be loaded with
// repository.LoadFull so that memberships carry their season and
// attendances carry their event.
package status

import (
	"fmt"
	"time"

	"github.com/asso-tools/assobot/internal/errs"
	"github.com/asso-tools/assobot/internal/models"
)

// Status is the derived state of a member at one instant
type Status struct {
	Role              *models.AssoRole
	CurrentSubscriber bool
	PastSubscriber    bool
	LastPresence      *time.Time
}

// Compute evaluates every predicate for m at now
func Compute(m *models.Member, catalog *Catalog, now time.Time) (Status, error) {
	role, err := EffectiveRole(m, catalog, now)
	if err != nil {
		return Status{}, err
	}
	return Status{
		Role:              role,
		CurrentSubscriber: IsCurrentSubscriber(m, now),
		PastSubscriber:    IsPastSubscriber(m, now),
		LastPresence:      LastPresence(m),
	}, nil
}

// IsCurrentSubscriber reports whether m holds a membership for a season containing now
func IsCurrentSubscriber(m *models.Member, now time.Time) bool {
	for _, ms := range m.Memberships {
		if ms.Season != nil && ms.Season.Contains(now) {
			return true
		}
	}
	return false
}

// IsPastSubscriber reports whether m holds a membership for a season ended on or before now
func IsPastSubscriber(m *models.Member, now time.Time) bool {
	for _, ms := range m.Memberships {
		if ms.Season != nil && ms.Season.HasEnded(now) {
			return true
		}
	}
	return false
}

// ActiveAssignment returns the manual role assignment in force at now.
// When several overlap, the latest start wins and equal starts fall back
// to the lowest assignment id.
func ActiveAssignment(m *models.Member, now time.Time) *models.RoleAssignment {
	var active *models.RoleAssignment
	for i := range m.RoleAssignments {
		a := &m.RoleAssignments[i]
		if !a.Active(now) {
			continue
		}
		if active == nil {
			active = a
			continue
		}
		switch {
		case models.Day(a.Start).After(models.Day(active.Start)):
			active = a
		case models.Day(a.Start).Equal(models.Day(active.Start)) && a.ID < active.ID:
			active = a
		}
	}
	return active
}

// EffectiveRole resolves the single role of m at now:
// an active manual assignment, else subscriber, else past subscriber,
// else the default member role.
func EffectiveRole(m *models.Member, catalog *Catalog, now time.Time) (*models.AssoRole, error) {
	if a := ActiveAssignment(m, now); a != nil {
		if role := catalog.ByID(a.RoleID); role != nil {
			return role, nil
		}
		if a.Role != nil {
			return a.Role, nil
		}
		return nil, &errs.ConfigError{What: fmt.Sprintf("role %d of assignment %d is not configured", a.RoleID, a.ID)}
	}
	if IsCurrentSubscriber(m, now) {
		return catalog.Subscriber()
	}
	if IsPastSubscriber(m, now) {
		return catalog.PastSubscriber()
	}
	return catalog.Default()
}

// SeasonPresenceCount counts m's attendances, proxies included, at events of season
func SeasonPresenceCount(m *models.Member, season *models.Season) int {
	if season == nil {
		return 0
	}
	count := 0
	for _, a := range m.Attendances {
		if a.Event != nil && a.Event.SeasonID == season.ID {
			count++
		}
	}
	return count
}

// LastPresence returns the latest event date m attended in person
func LastPresence(m *models.Member) *time.Time {
	var last *time.Time
	for _, a := range m.Attendances {
		if !a.Presence || a.Event == nil {
			continue
		}
		if last == nil || a.Event.Date.After(*last) {
			d := a.Event.Date
			last = &d
		}
	}
	return last
}

// CurrentSeason returns the season containing now, or nil
func CurrentSeason(seasons []*models.Season, now time.Time) *models.Season {
	for _, s := range seasons {
		if s.IsCurrent(now) {
			return s
		}
	}
	return nil
}

// SeasonForDate returns the season whose range contains date, or nil
func SeasonForDate(seasons []*models.Season, date time.Time) *models.Season {
	return CurrentSeason(seasons, date)
}

package service

import (
	"context"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/asso-tools/assobot/internal/errs"
	"github.com/asso-tools/assobot/internal/models"
	"github.com/asso-tools/assobot/internal/reconcile"
	"github.com/asso-tools/assobot/internal/report"
	"github.com/asso-tools/assobot/internal/repository"
	"github.com/asso-tools/assobot/internal/status"
)

// EventTotal counts the attendance rows of one event
type EventTotal struct {
	Event     *models.Event
	Present   int
	Proxies   int
	Anonymous int
}

// Total counts every row, anonymous ones included
func (t EventTotal) Total() int {
	return t.Present + t.Proxies
}

// MemberPresence is the number of season events a member attended or delegated
type MemberPresence struct {
	Member *models.Member
	Count  int
}

// Summary describes one season
type Summary struct {
	Season      *models.Season
	Subscribers int
	Events      []EventTotal
	Presences   []MemberPresence
}

// SeasonSummary summarises the named season, or the current one when name is empty
func (s *Service) SeasonSummary(ctx context.Context, name string) (*Summary, error) {
	season, err := s.seasonOrCurrent(ctx, name)
	if err != nil {
		return nil, err
	}

	members, err := s.AllMembers(ctx, repository.LoadFull)
	if err != nil {
		return nil, err
	}
	events, err := s.AllEvents(ctx, repository.LoadFull)
	if err != nil {
		return nil, err
	}

	summary := &Summary{Season: season}
	for _, m := range members {
		for _, ms := range m.Memberships {
			if ms.SeasonID == season.ID {
				summary.Subscribers++
				break
			}
		}
		if n := status.SeasonPresenceCount(m, season); n > 0 {
			summary.Presences = append(summary.Presences, MemberPresence{Member: m, Count: n})
		}
	}
	sort.SliceStable(summary.Presences, func(i, j int) bool {
		a, b := summary.Presences[i], summary.Presences[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Member.ID < b.Member.ID
	})

	for _, e := range eventsOfSeason(events, season) {
		total := EventTotal{Event: e}
		for _, a := range e.Attendances {
			if a.Presence {
				total.Present++
			} else {
				total.Proxies++
			}
			if a.IsAnonymous() {
				total.Anonymous++
			}
		}
		summary.Events = append(summary.Events, total)
	}
	return summary, nil
}

func (s *Service) seasonOrCurrent(ctx context.Context, name string) (*models.Season, error) {
	if name != "" {
		return s.Season(ctx, name)
	}
	season, err := s.CurrentSeason(ctx)
	if err != nil {
		return nil, err
	}
	if season == nil {
		return nil, errs.NotFound("season containing", s.now().Format(models.DateLayout))
	}
	return season, nil
}

// ReconcileRoles audits the directory groups against the expected groups at now
func (s *Service) ReconcileRoles(ctx context.Context, dir reconcile.Directory, now time.Time, resetAfter time.Duration) (*reconcile.Report, error) {
	identities, err := dir.Identities(ctx)
	if err != nil {
		return nil, err
	}
	members, err := s.AllMembers(ctx, repository.LoadFull)
	if err != nil {
		return nil, err
	}
	catalog, err := s.Catalog(ctx)
	if err != nil {
		return nil, err
	}

	rep, err := reconcile.Reconcile(members, catalog, identities, reconcile.Params{Now: now, ResetAfter: resetAfter})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"checked":    rep.Checked,
		"mismatches": rep.Mismatches(),
	}).Info("Role reconciliation done")
	return rep, nil
}

// AttendanceSheet builds the sheet of the named season, or the current one when name is empty
func (s *Service) AttendanceSheet(ctx context.Context, name string) (*report.Sheet, error) {
	season, err := s.seasonOrCurrent(ctx, name)
	if err != nil {
		return nil, err
	}
	members, err := s.AllMembers(ctx, repository.LoadFull)
	if err != nil {
		return nil, err
	}
	return report.Build(members, season), nil
}

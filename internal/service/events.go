package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/asso-tools/assobot/internal/errs"
	"github.com/asso-tools/assobot/internal/models"
	"github.com/asso-tools/assobot/internal/repository"
	"github.com/asso-tools/assobot/internal/status"
)

// EventPredicate selects events. The zero value selects every event.
type EventPredicate struct {
	// Label matches "YYYY-MM-DD" or "YYYY-MM-DD name" exactly
	Label *string
	// Season selects the events of the named season
	Season *string
}

// EventsBy returns the events matching p, fully loaded, in date order
func (s *Service) EventsBy(ctx context.Context, p EventPredicate) ([]*models.Event, error) {
	events, err := s.AllEvents(ctx, repository.LoadFull)
	if err != nil {
		return nil, err
	}

	switch {
	case p.Label != nil:
		label := strings.TrimSpace(*p.Label)
		var found []*models.Event
		for _, e := range events {
			if e.Label() == label {
				found = append(found, e)
			}
		}
		return found, nil
	case p.Season != nil:
		season, err := s.Season(ctx, *p.Season)
		if err != nil {
			return nil, err
		}
		return eventsOfSeason(events, season), nil
	default:
		return events, nil
	}
}

// Event returns the fully loaded event with id
func (s *Service) Event(ctx context.Context, id int64) (*models.Event, error) {
	events, err := s.AllEvents(ctx, repository.LoadFull)
	if err != nil {
		return nil, err
	}
	for _, e := range events {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, errs.NotFound("event", id)
}

func eventsOfSeason(events []*models.Event, season *models.Season) []*models.Event {
	var found []*models.Event
	for _, e := range events {
		if e.SeasonID == season.ID {
			found = append(found, e)
		}
	}
	sort.SliceStable(found, func(i, j int) bool { return found[i].Date.Before(found[j].Date) })
	return found
}

// EventInput carries the fields of an event upsert. Nil fields keep their current value.
type EventInput struct {
	ID   *int64
	Date *time.Time
	Name *string
}

// UpsertEvent creates or updates an event. The season is derived from the date.
func (s *Service) UpsertEvent(ctx context.Context, in EventInput, author int64) (*models.Event, error) {
	if err := requireAuthor(author); err != nil {
		return nil, err
	}

	var event *models.Event
	if in.ID != nil {
		existing, err := s.repos.Events.GetByID(ctx, *in.ID, repository.LoadShallow)
		if err != nil {
			return nil, fmt.Errorf("failed to lookup event %d: %w", *in.ID, err)
		}
		if existing == nil {
			return nil, errs.NotFound("event", *in.ID)
		}
		event = existing
	}

	creating := event == nil
	if creating {
		if in.Date == nil {
			return nil, fmt.Errorf("a new event requires a date")
		}
		event = &models.Event{}
	}
	if in.Date != nil {
		event.Date = models.Day(*in.Date)
	}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			event.Name = nil
		} else {
			event.Name = &name
		}
	}

	seasons, err := s.Seasons(ctx)
	if err != nil {
		return nil, err
	}
	season := status.SeasonForDate(seasons, event.Date)
	if season == nil {
		return nil, errs.NotFound("season containing", event.Date.Format(models.DateLayout))
	}
	event.SeasonID = season.ID
	event.Season = season

	if creating {
		event, err = s.repos.Events.Create(ctx, event, author)
	} else {
		event, err = s.repos.Events.Update(ctx, event, author)
	}
	if err != nil {
		return nil, err
	}
	s.invalidate(opEvents, opMembers)

	s.logger.WithFields(logrus.Fields{
		"event_id": event.ID,
		"label":    event.Label(),
		"author":   author,
		"created":  creating,
	}).Info("Upserted event")
	return event, nil
}

// AttendanceChange reports what a participant reconciliation did
type AttendanceChange struct {
	Added   []int64
	Removed []int64
}

// Empty reports whether the participant set was already up to date
func (c AttendanceChange) Empty() bool {
	return len(c.Added) == 0 && len(c.Removed) == 0
}

// AddAttendanceForEvent makes memberIDs the exact participant set of the event.
// Rows of members outside the set are removed, new members are added and
// unchanged rows are left untouched. Anonymous rows are never removed.
func (s *Service) AddAttendanceForEvent(ctx context.Context, eventID int64, memberIDs []int64, author int64) (AttendanceChange, error) {
	var change AttendanceChange
	if err := requireAuthor(author); err != nil {
		return change, err
	}

	event, err := s.repos.Events.GetByID(ctx, eventID, repository.LoadShallow)
	if err != nil {
		return change, fmt.Errorf("failed to lookup event %d: %w", eventID, err)
	}
	if event == nil {
		return change, errs.NotFound("event", eventID)
	}

	wanted := make(map[int64]struct{}, len(memberIDs))
	var unique []int64
	for _, id := range memberIDs {
		if _, dup := wanted[id]; !dup {
			wanted[id] = struct{}{}
			unique = append(unique, id)
		}
	}

	if len(unique) > 0 {
		existing, err := s.repos.Members.ExistingIDs(ctx, unique)
		if err != nil {
			return change, fmt.Errorf("failed to check member ids: %w", err)
		}
		known := make(map[int64]struct{}, len(existing))
		for _, id := range existing {
			known[id] = struct{}{}
		}
		var unknown []int64
		for _, id := range unique {
			if _, ok := known[id]; !ok {
				unknown = append(unknown, id)
			}
		}
		if len(unknown) > 0 {
			return change, &errs.ValidationError{UnknownIDs: unknown}
		}
	}

	current, err := s.repos.Attendances.ListByEvent(ctx, eventID)
	if err != nil {
		return change, err
	}
	present := make(map[int64]struct{}, len(current))
	for _, a := range current {
		if a.MemberID == nil {
			continue
		}
		present[*a.MemberID] = struct{}{}
		if _, keep := wanted[*a.MemberID]; !keep {
			change.Removed = append(change.Removed, *a.MemberID)
		}
	}
	for _, id := range unique {
		if _, ok := present[id]; !ok {
			change.Added = append(change.Added, id)
		}
	}

	if change.Empty() {
		return change, nil
	}
	if err := s.repos.Attendances.Sync(ctx, eventID, change.Added, change.Removed, author); err != nil {
		return AttendanceChange{}, err
	}
	s.invalidate(opEvents, opMembers)

	s.logger.WithFields(logrus.Fields{
		"event_id": eventID,
		"added":    len(change.Added),
		"removed":  len(change.Removed),
		"author":   author,
	}).Info("Synced event attendance")
	return change, nil
}

// RecordEvent creates or updates an event and then syncs its participants.
// The two steps commit separately; a failed sync can be retried on its own.
func (s *Service) RecordEvent(ctx context.Context, in EventInput, memberIDs []int64, author int64) (*models.Event, AttendanceChange, error) {
	event, err := s.UpsertEvent(ctx, in, author)
	if err != nil {
		return nil, AttendanceChange{}, err
	}
	change, err := s.AddAttendanceForEvent(ctx, event.ID, memberIDs, author)
	if err != nil {
		return event, change, fmt.Errorf("event %s saved but participants not synced: %w", event.Label(), err)
	}
	return event, change, nil
}

// AddAttendance inserts one attendance row as is. It is meant for bulk loads
// of historical data, where proxies and anonymous rows must be preserved.
func (s *Service) AddAttendance(ctx context.Context, a models.Attendance, author int64) (*models.Attendance, error) {
	if err := requireAuthor(author); err != nil {
		return nil, err
	}
	saved, err := s.repos.Attendances.Add(ctx, &a, author)
	if err != nil {
		return nil, err
	}
	s.invalidate(opEvents, opMembers)
	return saved, nil
}

package models

import "time"

// Season is a named, date-bounded period. Seasons must not overlap.
type Season struct {
	ID    int64      `json:"id" db:"id"`
	Name  string     `json:"name" db:"name"`
	Start time.Time  `json:"start" db:"start_date"`
	End   *time.Time `json:"end" db:"end_date"`
	Audit
}

// Day truncates t to its calendar day in UTC. All temporal predicates
// compare calendar days.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Contains reports whether the day of t falls within [Start, End].
// An open End never contains anything.
func (s *Season) Contains(t time.Time) bool {
	if s.End == nil {
		return false
	}
	day := Day(t)
	return !day.Before(Day(s.Start)) && !day.After(Day(*s.End))
}

// IsCurrent reports whether now falls within the season
func (s *Season) IsCurrent(now time.Time) bool {
	return s.Contains(now)
}

// HasEnded reports whether the season end is on or before now
func (s *Season) HasEnded(now time.Time) bool {
	if s.End == nil {
		return false
	}
	return !Day(*s.End).After(Day(now))
}

// Membership records that a member subscribed for a season
type Membership struct {
	ID               int64     `json:"id" db:"id"`
	MemberID         int64     `json:"member_id" db:"member_id"`
	SeasonID         int64     `json:"season_id" db:"season_id"`
	Season           *Season   `json:"season,omitempty"`
	Date             time.Time `json:"date" db:"date"`
	StatutesAccepted bool      `json:"statutes_accepted" db:"statutes_accepted"`
	HasInsurance     bool      `json:"has_insurance" db:"has_insurance"`
	ImageRights      bool      `json:"image_rights" db:"image_rights"`
	Audit
}

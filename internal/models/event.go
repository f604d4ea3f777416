package models

import "time"

// Event is a dated gathering. Its season is the one whose range contains Date.
type Event struct {
	ID          int64        `json:"id" db:"id"`
	Date        time.Time    `json:"date" db:"date"`
	Name        *string      `json:"name" db:"name"`
	SeasonID    int64        `json:"season_id" db:"season_id"`
	Season      *Season      `json:"season,omitempty"`
	Attendances []Attendance `json:"attendances,omitempty"`
	Audit
}

// Label returns the event label: "YYYY-MM-DD" optionally followed by the name
func (e *Event) Label() string {
	label := e.Date.Format(DateLayout)
	if e.Name != nil && *e.Name != "" {
		label += " " + *e.Name
	}
	return label
}

// DateLayout is the canonical date format used in labels and commands
const DateLayout = "2006-01-02"

// Attendance records a presence or a proxy vote at an event.
// MemberID is nil when the identity was lost.
type Attendance struct {
	ID       int64   `json:"id" db:"id"`
	EventID  int64   `json:"event_id" db:"event_id"`
	Event    *Event  `json:"event,omitempty"`
	MemberID *int64  `json:"member_id" db:"member_id"`
	Presence bool    `json:"presence" db:"presence"`
	Comment  string  `json:"comment" db:"comment"`
	Member   *Member `json:"-"`
	Audit
}

// IsAnonymous reports whether the attendee identity is unknown
func (a *Attendance) IsAnonymous() bool {
	return a.MemberID == nil
}

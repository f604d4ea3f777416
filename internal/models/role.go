package models

import (
	"sort"
	"strings"
	"time"
)

// AssoRole is an internal role classification. Nil flags count as false.
type AssoRole struct {
	ID               int64               `json:"id" db:"id"`
	Name             string              `json:"name" db:"name"`
	IsMember         *bool               `json:"is_member" db:"is_member"`
	IsSubscriber     *bool               `json:"is_subscriber" db:"is_subscriber"`
	IsPastSubscriber *bool               `json:"is_past_subscriber" db:"is_past_subscriber"`
	IsManager        *bool               `json:"is_manager" db:"is_manager"`
	IsOwner          *bool               `json:"is_owner" db:"is_owner"`
	Groups           []ExternalRoleGroup `json:"groups,omitempty"`
	Audit
}

func flag(b *bool) bool {
	return b != nil && *b
}

// Member reports the is-member flag
func (r *AssoRole) Member() bool { return flag(r.IsMember) }

// Subscriber reports the is-subscriber flag
func (r *AssoRole) Subscriber() bool { return flag(r.IsSubscriber) }

// PastSubscriber reports the is-past-subscriber flag
func (r *AssoRole) PastSubscriber() bool { return flag(r.IsPastSubscriber) }

// Manager reports the is-manager flag
func (r *AssoRole) Manager() bool { return flag(r.IsManager) }

// Owner reports the is-owner flag
func (r *AssoRole) Owner() bool { return flag(r.IsOwner) }

// IsDefault reports whether this is the baseline member role
func (r *AssoRole) IsDefault() bool {
	return r.Member() && !(r.Subscriber() || r.PastSubscriber() || r.Manager() || r.Owner())
}

// GroupIDs returns the sorted external group ids mapped to the role
func (r *AssoRole) GroupIDs() []string {
	ids := make([]string, 0, len(r.Groups))
	for _, g := range r.Groups {
		ids = append(ids, g.ID)
	}
	sort.Strings(ids)
	return ids
}

// ExternalRoleGroup is a permission group on the chat platform
type ExternalRoleGroup struct {
	ID   string `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}

// GroupLabel renders a group set as a stable, sorted, comma-separated label
func GroupLabel(groups []ExternalRoleGroup) string {
	names := make([]string, 0, len(groups))
	for _, g := range groups {
		name := g.Name
		if name == "" {
			name = g.ID
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

// RoleAssignment is a manual, time-bounded role grant
type RoleAssignment struct {
	ID       int64      `json:"id" db:"id"`
	MemberID int64      `json:"member_id" db:"member_id"`
	RoleID   int64      `json:"role_id" db:"role_id"`
	Role     *AssoRole  `json:"role,omitempty"`
	Start    time.Time  `json:"start" db:"start_date"`
	End      *time.Time `json:"end" db:"end_date"`
	Audit
}

// Active reports whether Start <= now <= End, with a nil End left open
func (a *RoleAssignment) Active(now time.Time) bool {
	day := Day(now)
	if Day(a.Start).After(day) {
		return false
	}
	return a.End == nil || !Day(*a.End).Before(day)
}

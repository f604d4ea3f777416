// Package reconcile audits the external platform's role groups against the
// groups each member is expected to hold. It never writes corrections.
package reconcile

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/asso-tools/assobot/internal/errs"
	"github.com/asso-tools/assobot/internal/models"
	"github.com/asso-tools/assobot/internal/status"
)

// Mismatch is one user whose actual groups differ from the expected ones
type Mismatch struct {
	Member      *models.Member
	Handle      string
	Actual      []models.ExternalRoleGroup
	ActualLabel string
}

// Subject names the member, or the raw handle for unknown users
func (m Mismatch) Subject() string {
	if m.Member != nil {
		return fmt.Sprintf("%s %s", m.Member.Code(), m.Member.DisplayName())
	}
	return "@" + m.Handle
}

// Group gathers mismatches sharing the same expected groups
type Group struct {
	ExpectedLabel string
	Expected      []models.ExternalRoleGroup
	Mismatches    []Mismatch
}

// Report is the grouped outcome of a reconciliation pass
type Report struct {
	Groups  []Group
	Checked int
}

// Empty reports whether no mismatch was found
func (r *Report) Empty() bool {
	return len(r.Groups) == 0
}

// Mismatches counts every mismatch of the report
func (r *Report) Mismatches() int {
	n := 0
	for _, g := range r.Groups {
		n += len(g.Mismatches)
	}
	return n
}

// Params tunes one reconciliation pass
type Params struct {
	Now time.Time
	// ResetAfter demotes lapsed past subscribers whose last presence is older than this
	ResetAfter time.Duration
}

// Reconcile compares expected and actual groups for every identity
func Reconcile(members []*models.Member, catalog *status.Catalog, identities []Identity, p Params) (*Report, error) {
	defaultRole, err := catalog.Default()
	if err != nil {
		return nil, err
	}

	byHandle := make(map[string][]*models.Member)
	for _, m := range members {
		if m.Handle != nil {
			byHandle[*m.Handle] = append(byHandle[*m.Handle], m)
		}
	}

	report := &Report{Checked: len(identities)}
	index := make(map[string]int)

	for _, id := range identities {
		candidates := byHandle[id.Handle]
		if len(candidates) > 1 {
			ids := make([]int64, len(candidates))
			for i, m := range candidates {
				ids[i] = m.ID
			}
			return nil, &errs.IntegrityError{Handle: id.Handle, MemberIDs: ids}
		}

		var member *models.Member
		expected := defaultRole.Groups
		if len(candidates) == 1 {
			member = candidates[0]
			if !lapsed(member, p) {
				role, err := status.EffectiveRole(member, catalog, p.Now)
				if err != nil {
					return nil, err
				}
				expected = role.Groups
			}
		}

		if sameGroups(expected, id.Groups) {
			continue
		}

		key := groupKey(expected)
		i, ok := index[key]
		if !ok {
			i = len(report.Groups)
			index[key] = i
			report.Groups = append(report.Groups, Group{ExpectedLabel: models.GroupLabel(expected), Expected: expected})
		}
		report.Groups[i].Mismatches = append(report.Groups[i].Mismatches, Mismatch{
			Member:      member,
			Handle:      id.Handle,
			Actual:      id.Groups,
			ActualLabel: models.GroupLabel(id.Groups),
		})
	}

	sort.SliceStable(report.Groups, func(i, j int) bool {
		gi, gj := report.Groups[i], report.Groups[j]
		if gi.ExpectedLabel != gj.ExpectedLabel {
			return gi.ExpectedLabel < gj.ExpectedLabel
		}
		return groupKey(gi.Expected) < groupKey(gj.Expected)
	})
	return report, nil
}

// lapsed reports a past, non-current subscriber not seen in person for ResetAfter
func lapsed(m *models.Member, p Params) bool {
	if !status.IsPastSubscriber(m, p.Now) || status.IsCurrentSubscriber(m, p.Now) {
		return false
	}
	last := status.LastPresence(m)
	return last == nil || last.Before(p.Now.Add(-p.ResetAfter))
}

// groupKey identifies a group set by its sorted, deduplicated ids.
// Names are display only and may repeat across ids.
func groupKey(groups []models.ExternalRoleGroup) string {
	seen := make(map[string]struct{}, len(groups))
	ids := make([]string, 0, len(groups))
	for _, g := range groups {
		if _, dup := seen[g.ID]; !dup {
			seen[g.ID] = struct{}{}
			ids = append(ids, g.ID)
		}
	}
	sort.Strings(ids)
	return strings.Join(ids, ",")
}

func sameGroups(a, b []models.ExternalRoleGroup) bool {
	setA := make(map[string]struct{}, len(a))
	for _, g := range a {
		setA[g.ID] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, g := range b {
		setB[g.ID] = struct{}{}
	}
	if len(setA) != len(setB) {
		return false
	}
	for id := range setA {
		if _, ok := setB[id]; !ok {
			return false
		}
	}
	return true
}

// Package format renders core results as plain chat text.
package format

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/asso-tools/assobot/internal/models"
	"github.com/asso-tools/assobot/internal/reconcile"
	"github.com/asso-tools/assobot/internal/resolve"
	"github.com/asso-tools/assobot/internal/service"
	"github.com/asso-tools/assobot/internal/status"
)

// Verbosity selects how much of a record is shown
type Verbosity int

const (
	Restricted Verbosity = iota
	Summary
	Full
	Debug
)

var verbosityNames = map[string]Verbosity{
	"restricted": Restricted,
	"summary":    Summary,
	"full":       Full,
	"debug":      Debug,
}

// ParseVerbosity reads a verbosity name, falling back to def
func ParseVerbosity(s string, def Verbosity) Verbosity {
	if v, ok := verbosityNames[strings.ToLower(strings.TrimSpace(s))]; ok {
		return v
	}
	return def
}

func (v Verbosity) String() string {
	for name, value := range verbosityNames {
		if value == v {
			return name
		}
	}
	return fmt.Sprintf("verbosity(%d)", int(v))
}

func date(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(models.DateLayout)
}

func yesNo(b bool) string {
	if b {
		return "oui"
	}
	return "non"
}

// Match renders one resolution candidate. Perfect matches carry no score.
func Match(m resolve.Match) string {
	line := fmt.Sprintf("%s %s", m.Member.Code(), m.Member.DisplayName())
	if m.Scored {
		line += fmt.Sprintf(" (%d%% match)", m.Score)
	}
	return line
}

// Matches renders a candidate list, one per line
func Matches(matches []resolve.Match) string {
	lines := make([]string, len(matches))
	for i, m := range matches {
		lines[i] = Match(m)
	}
	return strings.Join(lines, "\n")
}

// Member renders a member with its derived status at the requested verbosity
func Member(m *models.Member, st status.Status, currentSeason *models.Season, v Verbosity) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s", m.Code(), m.DisplayName())
	if v == Restricted {
		return sb.String()
	}

	if st.Role != nil {
		fmt.Fprintf(&sb, "\nRôle : %s", st.Role.Name)
	}
	fmt.Fprintf(&sb, "\nAdhérent : %s", yesNo(st.CurrentSubscriber))
	fmt.Fprintf(&sb, "\nAncien adhérent : %s", yesNo(st.PastSubscriber))
	if currentSeason != nil {
		fmt.Fprintf(&sb, "\nPrésences %s : %d", currentSeason.Name, status.SeasonPresenceCount(m, currentSeason))
	}
	fmt.Fprintf(&sb, "\nDernière présence : %s", date(st.LastPresence))
	if v == Summary {
		return sb.String()
	}

	if h := m.HandleValue(); h != "" {
		fmt.Fprintf(&sb, "\nPseudo : @%s", h)
	}
	if m.Credential != nil && m.Credential.Birthdate != nil {
		fmt.Fprintf(&sb, "\nNaissance : %s", date(m.Credential.Birthdate))
	}
	if e := m.PrincipalEmail(); e != nil {
		fmt.Fprintf(&sb, "\nE-mail : %s", e.Address)
	}
	if p := m.PrincipalPhone(); p != nil {
		fmt.Fprintf(&sb, "\nTéléphone : %s", p.Number)
	}
	if a := m.PrincipalAddress(); a != nil {
		fmt.Fprintf(&sb, "\nAdresse : %s, %s %s", a.Street, a.PostalCode, a.City)
	}
	if len(m.Memberships) > 0 {
		names := make([]string, 0, len(m.Memberships))
		for _, ms := range m.Memberships {
			if ms.Season != nil {
				names = append(names, ms.Season.Name)
			}
		}
		sort.Strings(names)
		fmt.Fprintf(&sb, "\nAdhésions : %s", strings.Join(names, ", "))
	}
	if v == Full {
		return sb.String()
	}

	fmt.Fprintf(&sb, "\nid=%d credential=%v", m.ID, m.Credential != nil)
	fmt.Fprintf(&sb, "\nmis à jour %s par %s", m.UpdatedAt.Format(time.RFC3339), author(m.UpdatedByID))
	fmt.Fprintf(&sb, "\nattendances=%d affectations=%d", len(m.Attendances), len(m.RoleAssignments))
	for _, a := range m.RoleAssignments {
		fmt.Fprintf(&sb, "\n  rôle %d du %s au %s", a.RoleID, date(&a.Start), date(a.End))
	}
	return sb.String()
}

func author(id *int64) string {
	if id == nil {
		return "-"
	}
	return fmt.Sprintf("#%04d", *id)
}

// Event renders an event and, beyond Restricted, its participants
func Event(e *models.Event, v Verbosity) string {
	var sb strings.Builder
	sb.WriteString(e.Label())
	if v == Restricted {
		return sb.String()
	}
	if e.Season != nil {
		fmt.Fprintf(&sb, " (%s)", e.Season.Name)
	}
	fmt.Fprintf(&sb, "\n%d participant(s)", len(e.Attendances))
	if v == Summary {
		return sb.String()
	}
	for _, a := range e.Attendances {
		who := "anonyme"
		if a.Member != nil {
			who = a.Member.Code() + " " + a.Member.DisplayName()
		} else if a.MemberID != nil {
			who = fmt.Sprintf("#%04d", *a.MemberID)
		}
		kind := "présent"
		if !a.Presence {
			kind = "procuration"
		}
		fmt.Fprintf(&sb, "\n• %s (%s)", who, kind)
		if v == Debug && a.Comment != "" {
			fmt.Fprintf(&sb, " %s", a.Comment)
		}
	}
	return sb.String()
}

// Role renders a role with its flags and external groups
func Role(r *models.AssoRole) string {
	var flags []string
	if r.Member() {
		flags = append(flags, "membre")
	}
	if r.Subscriber() {
		flags = append(flags, "adhérent")
	}
	if r.PastSubscriber() {
		flags = append(flags, "ancien")
	}
	if r.Manager() {
		flags = append(flags, "gestion")
	}
	if r.Owner() {
		flags = append(flags, "propriétaire")
	}
	return fmt.Sprintf("%s [%s] → %s", r.Name, strings.Join(flags, ", "), groupLabel(r.Groups))
}

// SeasonSummary renders a season summary
func SeasonSummary(s *service.Summary, v Verbosity) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Saison %s (%s → %s)", s.Season.Name, date(&s.Season.Start), date(s.Season.End))
	fmt.Fprintf(&sb, "\n%d adhérent(s), %d événement(s)", s.Subscribers, len(s.Events))
	if v == Restricted {
		return sb.String()
	}

	for _, e := range s.Events {
		fmt.Fprintf(&sb, "\n• %s : %d", e.Event.Label(), e.Total())
		if v >= Full && (e.Proxies > 0 || e.Anonymous > 0) {
			fmt.Fprintf(&sb, " (%d procuration(s), %d anonyme(s))", e.Proxies, e.Anonymous)
		}
	}
	if v == Summary {
		return sb.String()
	}

	if len(s.Presences) > 0 {
		sb.WriteString("\nPrésences :")
		for _, p := range s.Presences {
			fmt.Fprintf(&sb, "\n  %s %s : %d", p.Member.Code(), p.Member.DisplayName(), p.Count)
		}
	}
	return sb.String()
}

// ReconcileReport renders the grouped mismatches of a reconciliation
func ReconcileReport(r *reconcile.Report) string {
	if r.Empty() {
		return fmt.Sprintf("Aucune différence (%d compte(s) vérifié(s)).", r.Checked)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d différence(s) sur %d compte(s)", r.Mismatches(), r.Checked)
	for _, g := range r.Groups {
		fmt.Fprintf(&sb, "\n\nAttendu : %s", groupLabel(g.Expected))
		for _, m := range g.Mismatches {
			fmt.Fprintf(&sb, "\n• %s a %s", m.Subject(), groupLabel(m.Actual))
		}
	}
	return sb.String()
}

func groupLabel(groups []models.ExternalRoleGroup) string {
	if len(groups) == 0 {
		return "(aucun)"
	}
	return models.GroupLabel(groups)
}

// Package report builds the paper attendance sheet of a season.
package report

import (
	"sort"
	"strings"

	"github.com/asso-tools/assobot/internal/models"
	"github.com/asso-tools/assobot/internal/status"
)

// RowsPerPage is the number of rows printed on one sheet page
const RowsPerPage = 20

// Row is one line of the sheet. The signature cell is always blank.
type Row struct {
	ID          int64
	Code        string
	DisplayName string
	Presences   int
	Blank       bool
}

// Sheet is the ordered, padded list of rows for one season
type Sheet struct {
	Season  *models.Season
	Rows    []Row
	PerPage int
}

// Build lists the members who attended at least one event of season,
// sorted by last then first name, followed by the blank padding rows.
func Build(members []*models.Member, season *models.Season) *Sheet {
	type entry struct {
		member    *models.Member
		presences int
	}
	var entries []entry
	for _, m := range members {
		if n := status.SeasonPresenceCount(m, season); n > 0 {
			entries = append(entries, entry{member: m, presences: n})
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		li, fi := names(entries[i].member)
		lj, fj := names(entries[j].member)
		if li != lj {
			return li < lj
		}
		if fi != fj {
			return fi < fj
		}
		return entries[i].member.ID < entries[j].member.ID
	})

	sheet := &Sheet{Season: season, PerPage: RowsPerPage}
	for _, e := range entries {
		sheet.Rows = append(sheet.Rows, Row{
			ID:          e.member.ID,
			Code:        e.member.Code(),
			DisplayName: e.member.DisplayName(),
			Presences:   e.presences,
		})
	}
	for i := 0; i < Padding(len(entries), RowsPerPage); i++ {
		sheet.Rows = append(sheet.Rows, Row{Blank: true})
	}
	return sheet
}

// Padding returns the number of blank rows appended after n filled rows.
// The modulo is floored so that n = 0 yields a non-negative remainder.
func Padding(n, perPage int) int {
	rem := (n - 1) % perPage
	if rem < 0 {
		rem += perPage
	}
	return perPage - rem + perPage
}

// Filled returns the number of non-blank rows
func (s *Sheet) Filled() int {
	n := 0
	for _, r := range s.Rows {
		if !r.Blank {
			n++
		}
	}
	return n
}

// Pages splits the rows into pages of PerPage rows, the last one possibly shorter
func (s *Sheet) Pages() [][]Row {
	per := s.PerPage
	if per <= 0 {
		per = RowsPerPage
	}
	var pages [][]Row
	for start := 0; start < len(s.Rows); start += per {
		end := min(start+per, len(s.Rows))
		pages = append(pages, s.Rows[start:end])
	}
	return pages
}

func names(m *models.Member) (last, first string) {
	if m.Credential == nil {
		return "", strings.ToLower(m.DisplayName())
	}
	return strings.ToLower(m.Credential.LastName), strings.ToLower(m.Credential.FirstName)
}

// Package ingest loads raw association records from a spreadsheet workbook.
//
// Each entity type lives in its own worksheet ("saisons", "membres",
// "adhesions", "evenements", "presences"); the first row holds the headers
// mapped through FieldNames. A batch is checked as a whole before any write:
// a single unknown foreign reference rejects it.
package ingest

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"

	"github.com/asso-tools/assobot/internal/models"
	"github.com/asso-tools/assobot/internal/repository"
	"github.com/asso-tools/assobot/internal/service"
)

// Worksheet names, folded
const (
	SheetSeasons     = "saisons"
	SheetMembers     = "membres"
	SheetMemberships = "adhesions"
	SheetEvents      = "evenements"
	SheetAttendances = "presences"
)

// SeasonRow is one line of the seasons sheet
type SeasonRow struct {
	Line  int
	Name  string
	Start time.Time
	End   *time.Time
}

// MemberRow is one line of the members sheet. A nil ID lets the store pick one.
type MemberRow struct {
	Line      int
	ID        *int64
	FirstName *string
	LastName  *string
	Birthdate *time.Time
	Handle    *string
	Email     *string
	Phone     *string
}

// MembershipRow subscribes a member to a season
type MembershipRow struct {
	Line        int
	MemberID    int64
	Season      string
	Date        *time.Time
	Statutes    bool
	Insurance   bool
	ImageRights bool
}

// EventRow is one dated event
type EventRow struct {
	Line int
	Date time.Time
	Name *string
}

// AttendanceRow records a presence, or a proxy when Presence is false.
// A nil MemberID is an attendee whose identity was lost.
type AttendanceRow struct {
	Line     int
	Date     time.Time
	MemberID *int64
	Presence bool
	Comment  string
}

// Batch is the content of one workbook
type Batch struct {
	Seasons     []SeasonRow
	Members     []MemberRow
	Memberships []MembershipRow
	Events      []EventRow
	Attendances []AttendanceRow
}

// Stats counts the rows written by Apply
type Stats struct {
	Seasons     int
	Members     int
	Memberships int
	Events      int
	Attendances int
	// Skipped counts attendance rows already stored
	Skipped int
}

// Store is the write surface ingestion needs
type Store interface {
	RequireAuthor(ctx context.Context, author int64) error
	Seasons(ctx context.Context) ([]*models.Season, error)
	AllMembers(ctx context.Context, depth repository.LoadDepth) ([]*models.Member, error)
	AllEvents(ctx context.Context, depth repository.LoadDepth) ([]*models.Event, error)
	UpsertSeason(ctx context.Context, season *models.Season, author int64) (*models.Season, error)
	UpsertMember(ctx context.Context, in service.MemberInput, author int64) (*models.Member, error)
	AddEmail(ctx context.Context, memberID int64, address string, principal bool, author int64) (*models.Email, error)
	AddPhone(ctx context.Context, memberID int64, number string, principal bool, author int64) (*models.Phone, error)
	UpsertMembership(ctx context.Context, memberID int64, season string, ms models.Membership, author int64) (*models.Membership, error)
	UpsertEvent(ctx context.Context, in service.EventInput, author int64) (*models.Event, error)
	AddAttendance(ctx context.Context, a models.Attendance, author int64) (*models.Attendance, error)
	SyncMemberSequence(ctx context.Context) error
}

// Parse reads every known worksheet of the workbook in r
func Parse(r io.Reader) (*Batch, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	var result *multierror.Error
	batch := &Batch{}

	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
		}
		records := toRecords(fold(sheet), rows)

		switch fold(sheet) {
		case SheetSeasons:
			for _, rec := range records {
				row, err := parseSeason(rec)
				if err != nil {
					result = multierror.Append(result, err)
					continue
				}
				batch.Seasons = append(batch.Seasons, row)
			}
		case SheetMembers:
			for _, rec := range records {
				row, err := parseMember(rec)
				if err != nil {
					result = multierror.Append(result, err)
					continue
				}
				batch.Members = append(batch.Members, row)
			}
		case SheetMemberships:
			for _, rec := range records {
				row, err := parseMembership(rec)
				if err != nil {
					result = multierror.Append(result, err)
					continue
				}
				batch.Memberships = append(batch.Memberships, row)
			}
		case SheetEvents:
			for _, rec := range records {
				row, err := parseEvent(rec)
				if err != nil {
					result = multierror.Append(result, err)
					continue
				}
				batch.Events = append(batch.Events, row)
			}
		case SheetAttendances:
			for _, rec := range records {
				row, err := parseAttendance(rec)
				if err != nil {
					result = multierror.Append(result, err)
					continue
				}
				batch.Attendances = append(batch.Attendances, row)
			}
		}
	}

	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}
	return batch, nil
}

func toRecords(sheet string, rows [][]string) []record {
	if len(rows) == 0 {
		return nil
	}
	fields := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		fields[i] = FieldNames[fold(h)]
	}

	var records []record
	for i, row := range rows[1:] {
		rec := record{sheet: sheet, line: i + 2, cells: make(map[string]string)}
		empty := true
		for j, cell := range row {
			if j >= len(fields) || fields[j] == "" {
				continue
			}
			rec.cells[fields[j]] = cell
			if cell != "" {
				empty = false
			}
		}
		if !empty {
			records = append(records, rec)
		}
	}
	return records
}

func parseSeason(rec record) (SeasonRow, error) {
	row := SeasonRow{Line: rec.line}
	name := rec.str(fieldSeason)
	if name == nil {
		name = rec.str(fieldName)
	}
	if name == nil {
		return row, fmt.Errorf("%s: missing season name", rec.where())
	}
	row.Name = *name

	start, err := rec.day(fieldStart)
	if err != nil {
		return row, err
	}
	if start == nil {
		return row, fmt.Errorf("%s: missing season start", rec.where())
	}
	row.Start = *start

	if row.End, err = rec.day(fieldEnd); err != nil {
		return row, err
	}
	return row, nil
}

func parseMember(rec record) (MemberRow, error) {
	row := MemberRow{
		Line:      rec.line,
		FirstName: rec.str(fieldFirstName),
		LastName:  rec.str(fieldLastName),
		Handle:    rec.str(fieldHandle),
		Email:     rec.str(fieldEmail),
		Phone:     rec.str(fieldPhone),
	}
	var err error
	if row.ID, err = rec.number(fieldID); err != nil {
		return row, err
	}
	if row.Birthdate, err = rec.day(fieldBirthdate); err != nil {
		return row, err
	}
	if row.ID == nil && row.FirstName == nil && row.LastName == nil && row.Handle == nil {
		return row, fmt.Errorf("%s: member has neither id, name nor handle", rec.where())
	}
	return row, nil
}

func parseMembership(rec record) (MembershipRow, error) {
	row := MembershipRow{
		Line:        rec.line,
		Statutes:    rec.flag(fieldStatutes),
		Insurance:   rec.flag(fieldInsurance),
		ImageRights: rec.flag(fieldImageRights),
	}
	id, err := rec.number(fieldMemberID)
	if err == nil && id == nil {
		id, err = rec.number(fieldID)
	}
	if err != nil {
		return row, err
	}
	if id == nil {
		return row, fmt.Errorf("%s: missing member id", rec.where())
	}
	row.MemberID = *id

	season := rec.str(fieldSeason)
	if season == nil {
		return row, fmt.Errorf("%s: missing season", rec.where())
	}
	row.Season = *season

	if row.Date, err = rec.day(fieldDate); err != nil {
		return row, err
	}
	return row, nil
}

func parseEvent(rec record) (EventRow, error) {
	row := EventRow{Line: rec.line, Name: rec.str(fieldName)}
	d, err := rec.day(fieldDate)
	if err != nil {
		return row, err
	}
	if d == nil {
		return row, fmt.Errorf("%s: missing event date", rec.where())
	}
	row.Date = *d
	return row, nil
}

func parseAttendance(rec record) (AttendanceRow, error) {
	row := AttendanceRow{Line: rec.line, Presence: true}
	d, err := rec.day(fieldDate)
	if err != nil {
		return row, err
	}
	if d == nil {
		return row, fmt.Errorf("%s: missing event date", rec.where())
	}
	row.Date = *d

	if row.MemberID, err = rec.number(fieldMemberID); err != nil {
		return row, err
	}
	if rec.str(fieldPresence) != nil {
		row.Presence = rec.flag(fieldPresence)
	}
	if c := rec.str(fieldComment); c != nil {
		row.Comment = *c
	}
	return row, nil
}

// Importer validates and writes batches
type Importer struct {
	store  Store
	logger *logrus.Logger
}

// NewImporter creates an importer writing through store
func NewImporter(store Store, logger *logrus.Logger) *Importer {
	return &Importer{store: store, logger: logger}
}

// RequireAuthor fails unless author is a stored member
func (im *Importer) RequireAuthor(ctx context.Context, author int64) error {
	return im.store.RequireAuthor(ctx, author)
}

// Validate checks that every foreign reference of b resolves either within
// b or in the store. All unknown references are reported together.
func (im *Importer) Validate(ctx context.Context, b *Batch) error {
	seasons, err := im.store.Seasons(ctx)
	if err != nil {
		return err
	}
	members, err := im.store.AllMembers(ctx, repository.LoadShallow)
	if err != nil {
		return err
	}
	events, err := im.store.AllEvents(ctx, repository.LoadShallow)
	if err != nil {
		return err
	}

	knownSeasons := make(map[string]bool)
	var ranges []*models.Season
	for _, s := range seasons {
		knownSeasons[s.Name] = true
		ranges = append(ranges, s)
	}
	for _, s := range b.Seasons {
		knownSeasons[s.Name] = true
		ranges = append(ranges, &models.Season{Name: s.Name, Start: s.Start, End: s.End})
	}

	knownMembers := make(map[int64]bool)
	for _, m := range members {
		knownMembers[m.ID] = true
	}
	for _, m := range b.Members {
		if m.ID != nil {
			knownMembers[*m.ID] = true
		}
	}

	knownEvents := make(map[string]bool)
	for _, e := range events {
		knownEvents[e.Date.Format(models.DateLayout)] = true
	}
	for _, e := range b.Events {
		knownEvents[e.Date.Format(models.DateLayout)] = true
	}

	var result *multierror.Error
	for _, ms := range b.Memberships {
		if !knownSeasons[ms.Season] {
			result = multierror.Append(result, fmt.Errorf("%s row %d: unknown foreign reference season %q", SheetMemberships, ms.Line, ms.Season))
		}
		if !knownMembers[ms.MemberID] {
			result = multierror.Append(result, fmt.Errorf("%s row %d: unknown foreign reference member %d", SheetMemberships, ms.Line, ms.MemberID))
		}
	}
	for _, e := range b.Events {
		if !inAnySeason(ranges, e.Date) {
			result = multierror.Append(result, fmt.Errorf("%s row %d: no season contains %s", SheetEvents, e.Line, e.Date.Format(models.DateLayout)))
		}
	}
	result = multierror.Append(result, duplicates(b)...)
	for _, a := range b.Attendances {
		if !knownEvents[a.Date.Format(models.DateLayout)] {
			result = multierror.Append(result, fmt.Errorf("%s row %d: unknown foreign reference event %s", SheetAttendances, a.Line, a.Date.Format(models.DateLayout)))
		}
		if a.MemberID != nil && !knownMembers[*a.MemberID] {
			result = multierror.Append(result, fmt.Errorf("%s row %d: unknown foreign reference member %d", SheetAttendances, a.Line, *a.MemberID))
		}
	}
	return result.ErrorOrNil()
}

// duplicates reports rows of b that repeat a key the store holds once:
// a member id, an event date, or a member's attendance at one event.
func duplicates(b *Batch) []error {
	var out []error
	members := make(map[int64]int)
	for _, m := range b.Members {
		if m.ID == nil {
			continue
		}
		if first, ok := members[*m.ID]; ok {
			out = append(out, fmt.Errorf("%s row %d: member %d already listed on row %d", SheetMembers, m.Line, *m.ID, first))
			continue
		}
		members[*m.ID] = m.Line
	}
	events := make(map[string]int)
	for _, e := range b.Events {
		day := e.Date.Format(models.DateLayout)
		if first, ok := events[day]; ok {
			out = append(out, fmt.Errorf("%s row %d: event %s already listed on row %d", SheetEvents, e.Line, day, first))
			continue
		}
		events[day] = e.Line
	}
	attendances := make(map[string]int)
	for _, a := range b.Attendances {
		if a.MemberID == nil {
			continue
		}
		key := attendanceKey(a.Date, *a.MemberID)
		if first, ok := attendances[key]; ok {
			out = append(out, fmt.Errorf("%s row %d: member %d already recorded at %s on row %d",
				SheetAttendances, a.Line, *a.MemberID, a.Date.Format(models.DateLayout), first))
			continue
		}
		attendances[key] = a.Line
	}
	return out
}

func attendanceKey(date time.Time, memberID int64) string {
	return fmt.Sprintf("%s|%d", date.Format(models.DateLayout), memberID)
}

// anonymousKey identifies an attendance row without member. Such rows have no
// unique key, so re-imports match them by content.
func anonymousKey(date time.Time, presence bool, comment string) string {
	return fmt.Sprintf("%s|%t|%s", date.Format(models.DateLayout), presence, comment)
}

func inAnySeason(seasons []*models.Season, date time.Time) bool {
	for _, s := range seasons {
		if s.Contains(date) {
			return true
		}
	}
	return false
}

// Apply validates b then writes it in dependency order
func (im *Importer) Apply(ctx context.Context, b *Batch, author int64) (Stats, error) {
	var stats Stats
	if err := im.RequireAuthor(ctx, author); err != nil {
		return stats, err
	}
	if err := im.Validate(ctx, b); err != nil {
		return stats, err
	}

	for _, s := range b.Seasons {
		if _, err := im.store.UpsertSeason(ctx, &models.Season{Name: s.Name, Start: s.Start, End: s.End}, author); err != nil {
			return stats, fmt.Errorf("%s row %d: %w", SheetSeasons, s.Line, err)
		}
		stats.Seasons++
	}

	stored, err := im.store.AllMembers(ctx, repository.LoadFull)
	if err != nil {
		return stats, err
	}
	contacts := make(map[int64]map[string]bool, len(stored))
	for _, m := range stored {
		known := make(map[string]bool, len(m.Emails)+len(m.Phones))
		for _, e := range m.Emails {
			known["email:"+strings.ToLower(e.Address)] = true
		}
		for _, p := range m.Phones {
			known["phone:"+p.Number] = true
		}
		contacts[m.ID] = known
	}

	explicitIDs := false
	for _, row := range b.Members {
		m, err := im.store.UpsertMember(ctx, service.MemberInput{
			ID:        row.ID,
			Handle:    row.Handle,
			FirstName: row.FirstName,
			LastName:  row.LastName,
			Birthdate: row.Birthdate,
		}, author)
		if err != nil {
			return stats, fmt.Errorf("%s row %d: %w", SheetMembers, row.Line, err)
		}
		explicitIDs = explicitIDs || row.ID != nil
		known := contacts[m.ID]
		if row.Email != nil && !known["email:"+strings.ToLower(*row.Email)] {
			if _, err := im.store.AddEmail(ctx, m.ID, *row.Email, true, author); err != nil {
				return stats, fmt.Errorf("%s row %d: %w", SheetMembers, row.Line, err)
			}
		}
		if row.Phone != nil && !known["phone:"+*row.Phone] {
			if _, err := im.store.AddPhone(ctx, m.ID, *row.Phone, true, author); err != nil {
				return stats, fmt.Errorf("%s row %d: %w", SheetMembers, row.Line, err)
			}
		}
		stats.Members++
	}
	if explicitIDs {
		if err := im.store.SyncMemberSequence(ctx); err != nil {
			return stats, err
		}
	}

	for _, row := range b.Memberships {
		ms := models.Membership{StatutesAccepted: row.Statutes, HasInsurance: row.Insurance, ImageRights: row.ImageRights}
		if row.Date != nil {
			ms.Date = *row.Date
		}
		if _, err := im.store.UpsertMembership(ctx, row.MemberID, row.Season, ms, author); err != nil {
			return stats, fmt.Errorf("%s row %d: %w", SheetMemberships, row.Line, err)
		}
		stats.Memberships++
	}

	existing, err := im.store.AllEvents(ctx, repository.LoadShallow)
	if err != nil {
		return stats, err
	}
	eventIDs := make(map[string]int64, len(existing))
	for _, e := range existing {
		eventIDs[e.Date.Format(models.DateLayout)] = e.ID
	}
	for _, row := range b.Events {
		date := row.Date
		in := service.EventInput{Date: &date, Name: row.Name}
		if id, ok := eventIDs[date.Format(models.DateLayout)]; ok {
			in.ID = &id
		}
		if _, err := im.store.UpsertEvent(ctx, in, author); err != nil {
			return stats, fmt.Errorf("%s row %d: %w", SheetEvents, row.Line, err)
		}
		stats.Events++
	}

	if len(b.Attendances) > 0 {
		events, err := im.store.AllEvents(ctx, repository.LoadFull)
		if err != nil {
			return stats, err
		}
		byDate := make(map[string]int64, len(events))
		present := make(map[string]bool)
		anonymous := make(map[string]int)
		for _, e := range events {
			byDate[e.Date.Format(models.DateLayout)] = e.ID
			for _, a := range e.Attendances {
				if a.MemberID != nil {
					present[attendanceKey(e.Date, *a.MemberID)] = true
				} else {
					anonymous[anonymousKey(e.Date, a.Presence, a.Comment)]++
				}
			}
		}
		for _, row := range b.Attendances {
			if row.MemberID != nil && present[attendanceKey(row.Date, *row.MemberID)] {
				stats.Skipped++
				continue
			}
			if row.MemberID == nil {
				if key := anonymousKey(row.Date, row.Presence, row.Comment); anonymous[key] > 0 {
					anonymous[key]--
					stats.Skipped++
					continue
				}
			}
			a := models.Attendance{
				EventID:  byDate[row.Date.Format(models.DateLayout)],
				MemberID: row.MemberID,
				Presence: row.Presence,
				Comment:  row.Comment,
			}
			if _, err := im.store.AddAttendance(ctx, a, author); err != nil {
				return stats, fmt.Errorf("%s row %d: %w", SheetAttendances, row.Line, err)
			}
			stats.Attendances++
		}
	}

	im.logger.WithFields(logrus.Fields{
		"seasons":     stats.Seasons,
		"members":     stats.Members,
		"memberships": stats.Memberships,
		"events":      stats.Events,
		"attendances": stats.Attendances,
		"skipped":     stats.Skipped,
		"author":      author,
	}).Info("Ingestion completed")
	return stats, nil
}

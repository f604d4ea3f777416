package ingest

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Field keys produced by the header mapping
const (
	fieldID          = "id"
	fieldMemberID    = "member_id"
	fieldLastName    = "last_name"
	fieldFirstName   = "first_name"
	fieldBirthdate   = "birthdate"
	fieldHandle      = "handle"
	fieldEmail       = "email"
	fieldPhone       = "phone"
	fieldSeason      = "season"
	fieldStart       = "start"
	fieldEnd         = "end"
	fieldDate        = "date"
	fieldName        = "name"
	fieldPresence    = "presence"
	fieldComment     = "comment"
	fieldStatutes    = "statutes_accepted"
	fieldInsurance   = "has_insurance"
	fieldImageRights = "image_rights"
)

// FieldNames maps the column headers of the source spreadsheets, folded to
// lower case without accents, to field keys. Unknown headers are ignored.
var FieldNames = map[string]string{
	"id":             fieldID,
	"numero":         fieldID,
	"membre":         fieldMemberID,
	"id membre":      fieldMemberID,
	"nom":            fieldLastName,
	"prenom":         fieldFirstName,
	"naissance":      fieldBirthdate,
	"date naissance": fieldBirthdate,
	"pseudo":         fieldHandle,
	"email":          fieldEmail,
	"mail":           fieldEmail,
	"e mail":         fieldEmail,
	"telephone":      fieldPhone,
	"tel":            fieldPhone,
	"saison":         fieldSeason,
	"debut":          fieldStart,
	"fin":            fieldEnd,
	"date":           fieldDate,
	"evenement":      fieldName,
	"libelle":        fieldName,
	"presence":       fieldPresence,
	"commentaire":    fieldComment,
	"statuts":        fieldStatutes,
	"assurance":      fieldInsurance,
	"droit image":    fieldImageRights,
}

// fold lowercases s, strips accents and collapses separators to single spaces
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	folded = strings.Map(func(r rune) rune {
		if r == '_' || r == '-' || r == '.' {
			return ' '
		}
		return unicode.ToLower(r)
	}, folded)
	return strings.Join(strings.Fields(folded), " ")
}

// record is one spreadsheet row keyed by field
type record struct {
	sheet string
	line  int
	cells map[string]string
}

func (r record) where() string {
	return fmt.Sprintf("%s row %d", r.sheet, r.line)
}

// str returns the trimmed cell value, nil when empty or absent
func (r record) str(field string) *string {
	v := strings.TrimSpace(r.cells[field])
	if v == "" {
		return nil
	}
	return &v
}

func (r record) number(field string) (*int64, error) {
	v := r.str(field)
	if v == nil {
		return nil, nil
	}
	n, err := strconv.ParseInt(strings.TrimPrefix(*v, "#"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid %s %q", r.where(), field, *v)
	}
	return &n, nil
}

var dateLayouts = []string{"2006-01-02", "02/01/2006", "2/1/2006", "01-02-06", "2006-01-02 15:04:05"}

func (r record) day(field string) (*time.Time, error) {
	v := r.str(field)
	if v == nil {
		return nil, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, *v); err == nil {
			d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
			return &d, nil
		}
	}
	if serial, err := strconv.ParseFloat(*v, 64); err == nil {
		t, err := excelize.ExcelDateToTime(serial, false)
		if err == nil {
			d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
			return &d, nil
		}
	}
	return nil, fmt.Errorf("%s: invalid %s %q", r.where(), field, *v)
}

func (r record) flag(field string) bool {
	v := r.str(field)
	if v == nil {
		return false
	}
	switch fold(*v) {
	case "1", "x", "oui", "o", "vrai", "true", "yes", "y":
		return true
	}
	return false
}

package status

import (
	"time"

	"github.com/asso-tools/assobot/internal/models"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ptr[T any](v T) *T { return &v }

var (
	season2324 = &models.Season{ID: 1, Name: "2023-2024", Start: day(2023, 9, 1), End: ptr(day(2024, 8, 31))}
	season2425 = &models.Season{ID: 2, Name: "2024-2025", Start: day(2024, 9, 1), End: ptr(day(2025, 8, 31))}
	season2526 = &models.Season{ID: 3, Name: "2025-2026", Start: day(2025, 9, 1), End: ptr(day(2026, 8, 31))}

	roleMember     = &models.AssoRole{ID: 1, Name: "Membre", IsMember: ptr(true)}
	roleSubscriber = &models.AssoRole{ID: 2, Name: "Adhérent", IsMember: ptr(true), IsSubscriber: ptr(true)}
	rolePast       = &models.AssoRole{ID: 3, Name: "Ancien adhérent", IsMember: ptr(true), IsPastSubscriber: ptr(true)}
	roleManager    = &models.AssoRole{ID: 4, Name: "Bureau", IsMember: ptr(true), IsManager: ptr(true)}
	roleOwner      = &models.AssoRole{ID: 5, Name: "Président", IsMember: ptr(true), IsOwner: ptr(true)}
)

func catalog() *Catalog {
	return NewCatalog([]*models.AssoRole{roleMember, roleSubscriber, rolePast, roleManager, roleOwner})
}

func membership(s *models.Season) models.Membership {
	return models.Membership{MemberID: 1, SeasonID: s.ID, Season: s, Date: s.Start}
}

func attendance(eventID int64, date time.Time, s *models.Season, presence bool) models.Attendance {
	return models.Attendance{
		ID:       eventID,
		EventID:  eventID,
		MemberID: ptr(int64(1)),
		Presence: presence,
		Event:    &models.Event{ID: eventID, Date: date, SeasonID: s.ID},
	}
}

package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asso-tools/assobot/internal/errs"
	"github.com/asso-tools/assobot/internal/models"
	"github.com/asso-tools/assobot/internal/status"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ptr[T any](v T) *T { return &v }

var (
	gMember = models.ExternalRoleGroup{ID: "100", Name: "Membre"}
	gSub    = models.ExternalRoleGroup{ID: "200", Name: "Adhérent"}
	gPast   = models.ExternalRoleGroup{ID: "300", Name: "Ancien"}
	gBoard  = models.ExternalRoleGroup{ID: "400", Name: "Bureau"}

	season2425 = &models.Season{ID: 1, Name: "2024-2025", Start: day(2024, 9, 1), End: ptr(day(2025, 8, 31))}
	season2526 = &models.Season{ID: 2, Name: "2025-2026", Start: day(2025, 9, 1), End: ptr(day(2026, 8, 31))}

	now = day(2026, 3, 1)
)

func catalog() *status.Catalog {
	return status.NewCatalog([]*models.AssoRole{
		{ID: 1, Name: "Membre", IsMember: ptr(true), Groups: []models.ExternalRoleGroup{gMember}},
		{ID: 2, Name: "Adhérent", IsMember: ptr(true), IsSubscriber: ptr(true), Groups: []models.ExternalRoleGroup{gMember, gSub}},
		{ID: 3, Name: "Ancien", IsMember: ptr(true), IsPastSubscriber: ptr(true), Groups: []models.ExternalRoleGroup{gMember, gPast}},
		{ID: 4, Name: "Bureau", IsMember: ptr(true), IsManager: ptr(true), Groups: []models.ExternalRoleGroup{gMember, gBoard}},
	})
}

func withHandle(id int64, handle string) *models.Member {
	return &models.Member{
		ID:         id,
		Handle:     ptr(handle),
		Credential: &models.Credential{FirstName: "First", LastName: handle},
	}
}

func params() Params {
	return Params{Now: now, ResetAfter: 180 * 24 * time.Hour}
}

func TestReconcileNoMismatch(t *testing.T) {
	sub := withHandle(1, "alice")
	sub.Memberships = []models.Membership{{SeasonID: season2526.ID, Season: season2526}}

	identities := []Identity{
		{Handle: "alice", Groups: []models.ExternalRoleGroup{gSub, gMember}},
		{Handle: "stranger", Groups: []models.ExternalRoleGroup{gMember}},
	}

	report, err := Reconcile([]*models.Member{sub}, catalog(), identities, params())

	require.NoError(t, err)
	assert.True(t, report.Empty())
	assert.Equal(t, 2, report.Checked)
}

func TestReconcileUnknownUserExpectsDefault(t *testing.T) {
	identities := []Identity{{Handle: "stranger", Groups: []models.ExternalRoleGroup{gMember, gSub}}}

	report, err := Reconcile(nil, catalog(), identities, params())

	require.NoError(t, err)
	require.Len(t, report.Groups, 1)
	assert.Equal(t, "Membre", report.Groups[0].ExpectedLabel)
	mm := report.Groups[0].Mismatches[0]
	assert.Nil(t, mm.Member)
	assert.Equal(t, "@stranger", mm.Subject())
	assert.Equal(t, "Adhérent, Membre", mm.ActualLabel)
}

// Member #7 subscribed in 2024-2025 only and was last seen 400 days ago.
func TestReconcileLapsedPastSubscriberIsDemoted(t *testing.T) {
	m := withHandle(7, "bob")
	m.Memberships = []models.Membership{{SeasonID: season2425.ID, Season: season2425}}
	m.Attendances = []models.Attendance{{
		MemberID: ptr(int64(7)),
		Presence: true,
		Event:    &models.Event{ID: 1, Date: now.AddDate(0, 0, -400), SeasonID: season2425.ID},
	}}
	require.True(t, status.IsPastSubscriber(m, now))

	identities := []Identity{{Handle: "bob", Groups: []models.ExternalRoleGroup{gMember, gPast}}}
	report, err := Reconcile([]*models.Member{m}, catalog(), identities, params())

	require.NoError(t, err)
	require.Len(t, report.Groups, 1)
	assert.Equal(t, []models.ExternalRoleGroup{gMember}, report.Groups[0].Expected)
	assert.Same(t, m, report.Groups[0].Mismatches[0].Member)
}

func TestReconcileLapsedIgnoresStaleManualRole(t *testing.T) {
	m := withHandle(8, "carol")
	m.Memberships = []models.Membership{{SeasonID: season2425.ID, Season: season2425}}
	m.RoleAssignments = []models.RoleAssignment{{ID: 1, RoleID: 4, Start: day(2024, 1, 1)}}

	identities := []Identity{{Handle: "carol", Groups: []models.ExternalRoleGroup{gMember}}}
	report, err := Reconcile([]*models.Member{m}, catalog(), identities, params())

	require.NoError(t, err)
	assert.True(t, report.Empty(), "no presence at all counts as lapsed")
}

func TestReconcileRecentPastSubscriberKeepsRole(t *testing.T) {
	m := withHandle(9, "dave")
	m.Memberships = []models.Membership{{SeasonID: season2425.ID, Season: season2425}}
	m.Attendances = []models.Attendance{{
		MemberID: ptr(int64(9)),
		Presence: true,
		Event:    &models.Event{ID: 1, Date: now.AddDate(0, 0, -30), SeasonID: season2526.ID},
	}}

	identities := []Identity{{Handle: "dave", Groups: []models.ExternalRoleGroup{gMember}}}
	report, err := Reconcile([]*models.Member{m}, catalog(), identities, params())

	require.NoError(t, err)
	require.Len(t, report.Groups, 1)
	assert.Equal(t, "Ancien, Membre", report.Groups[0].ExpectedLabel)
}

func TestReconcileGroupsByExpectedSet(t *testing.T) {
	a := withHandle(1, "alice")
	a.Memberships = []models.Membership{{SeasonID: season2526.ID, Season: season2526}}
	b := withHandle(2, "bruno")
	b.Memberships = []models.Membership{{SeasonID: season2526.ID, Season: season2526}}

	identities := []Identity{
		{Handle: "alice", Groups: []models.ExternalRoleGroup{gMember}},
		{Handle: "bruno", Groups: []models.ExternalRoleGroup{gPast}},
		{Handle: "zed", Groups: nil},
	}

	report, err := Reconcile([]*models.Member{a, b}, catalog(), identities, params())

	require.NoError(t, err)
	require.Len(t, report.Groups, 2)
	assert.Equal(t, "Adhérent, Membre", report.Groups[0].ExpectedLabel)
	require.Len(t, report.Groups[0].Mismatches, 2)
	assert.Equal(t, "Membre", report.Groups[0].Mismatches[0].ActualLabel)
	assert.Equal(t, "Ancien", report.Groups[0].Mismatches[1].ActualLabel)
	assert.Equal(t, "Membre", report.Groups[1].ExpectedLabel)
	assert.Equal(t, 3, report.Mismatches())
}

func TestReconcileSeparatesGroupsSharingNames(t *testing.T) {
	renamed := models.ExternalRoleGroup{ID: "101", Name: "Membre"}
	cat := status.NewCatalog([]*models.AssoRole{
		{ID: 1, Name: "Membre", IsMember: ptr(true), Groups: []models.ExternalRoleGroup{gMember}},
		{ID: 2, Name: "Adhérent", IsMember: ptr(true), IsSubscriber: ptr(true), Groups: []models.ExternalRoleGroup{renamed}},
	})
	sub := withHandle(1, "alice")
	sub.Memberships = []models.Membership{{SeasonID: season2526.ID, Season: season2526}}

	identities := []Identity{
		{Handle: "alice", Groups: nil},
		{Handle: "zed", Groups: nil},
	}

	report, err := Reconcile([]*models.Member{sub}, cat, identities, params())

	require.NoError(t, err)
	require.Len(t, report.Groups, 2)
	assert.Equal(t, "Membre", report.Groups[0].ExpectedLabel)
	assert.Equal(t, "Membre", report.Groups[1].ExpectedLabel)
	assert.Equal(t, []models.ExternalRoleGroup{gMember}, report.Groups[0].Expected)
	assert.Equal(t, "zed", report.Groups[0].Mismatches[0].Handle)
	assert.Equal(t, []models.ExternalRoleGroup{renamed}, report.Groups[1].Expected)
	assert.Equal(t, "alice", report.Groups[1].Mismatches[0].Handle)
}

func TestReconcileDuplicateHandleFailsWholePass(t *testing.T) {
	members := []*models.Member{withHandle(3, "twin"), withHandle(5, "twin")}
	identities := []Identity{{Handle: "twin", Groups: []models.ExternalRoleGroup{gMember}}}

	report, err := Reconcile(members, catalog(), identities, params())

	require.Error(t, err)
	assert.Nil(t, report)
	assert.True(t, errors.Is(err, errs.ErrIntegrity))
	assert.Contains(t, err.Error(), "3, 5")
}

func TestReconcileMissingDefaultRole(t *testing.T) {
	_, err := Reconcile(nil, status.NewCatalog(nil), nil, params())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrConfiguration))
}

func TestParseDirectory(t *testing.T) {
	data := []byte(`
groups:
  - id: "100"
    name: Membre
  - id: "200"
    name: Adhérent
users:
  - handle: Alice
    display: Alice L.
    groups: ["100", "200"]
  - handle: bob
    groups: []
`)
	dir, err := ParseDirectory(data)
	require.NoError(t, err)

	ids, err := dir.Identities(context.Background())
	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.Equal(t, "Adhérent, Membre", models.GroupLabel(ids[0].Groups))

	h, ok, err := dir.LookupHandle(context.Background(), "@alice")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Alice", h)

	_, ok, _ = dir.LookupHandle(context.Background(), "carol")
	assert.False(t, ok)
}

func TestParseDirectoryRejectsMissingHandle(t *testing.T) {
	_, err := ParseDirectory([]byte("users:\n  - display: nobody\n"))
	require.Error(t, err)
}

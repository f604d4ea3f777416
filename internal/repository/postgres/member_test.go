package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asso-tools/assobot/internal/errs"
	"github.com/asso-tools/assobot/internal/models"
	"github.com/asso-tools/assobot/internal/repository"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

var memberRowColumns = []string{
	"id", "handle", "updated_at", "updated_by_id",
	"cid", "first_name", "last_name", "birthdate", "cupdated_at", "cupdated_by_id",
}

func TestMemberList_ShallowWithCredential(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewMemberRepository(db)

	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(memberRowColumns).
		AddRow(5, "paulm", now, 1, 50, "Paul", "Martin", nil, now, 1).
		AddRow(6, nil, now, nil, nil, nil, nil, nil, nil, nil)

	mock.ExpectQuery(`SELECT m.id, m.handle`).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(rows)

	members, err := repo.List(context.Background(), repository.MemberFilter{}, repository.LoadShallow)

	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, int64(5), members[0].ID)
	assert.Equal(t, "paulm", members[0].HandleValue())
	require.NotNil(t, members[0].Credential)
	assert.Equal(t, "Paul Martin", members[0].FullName())
	assert.Nil(t, members[1].Credential)
	assert.Nil(t, members[1].Handle)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMemberGetByID_LoadFull(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewMemberRepository(db)

	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	start := time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 8, 31, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT m.id, m.handle`).
		WithArgs(int64(7), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(memberRowColumns).
			AddRow(7, "jdoe", now, 1, 70, "Jean", "Dupont", nil, now, 1))
	mock.ExpectQuery(`FROM emails`).WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "member_id", "address", "principal", "updated_at", "updated_by_id"}).
			AddRow(1, 7, "jean@example.org", true, now, 1))
	mock.ExpectQuery(`FROM phones`).WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "member_id", "number", "principal", "updated_at", "updated_by_id"}))
	mock.ExpectQuery(`FROM addresses`).WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "member_id", "street", "postal_code", "city", "principal", "updated_at", "updated_by_id"}))
	mock.ExpectQuery(`FROM memberships ms`).WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "member_id", "season_id", "date", "statutes_accepted", "has_insurance", "image_rights",
			"updated_at", "updated_by_id", "name", "start_date", "end_date",
		}).AddRow(3, 7, 2, start, true, true, false, now, 1, "2024-2025", start, end))
	mock.ExpectQuery(`FROM attendances a`).WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "event_id", "member_id", "presence", "comment", "updated_at", "updated_by_id",
			"date", "name", "season_id",
		}).AddRow(9, 4, 7, true, "", now, 1, start.AddDate(0, 1, 0), "AG", 2))
	mock.ExpectQuery(`FROM role_assignments ra`).WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "member_id", "role_id", "start_date", "end_date", "updated_at", "updated_by_id",
			"name", "is_member", "is_subscriber", "is_past_subscriber", "is_manager", "is_owner",
		}).AddRow(11, 7, 4, start, nil, now, 1, "Bureau", true, nil, nil, true, nil))

	member, err := repo.GetByID(context.Background(), 7, repository.LoadFull)

	require.NoError(t, err)
	require.NotNil(t, member)
	require.Len(t, member.Emails, 1)
	assert.Equal(t, "jean@example.org", member.PrincipalEmail().Address)
	require.Len(t, member.Memberships, 1)
	assert.Equal(t, "2024-2025", member.Memberships[0].Season.Name)
	require.Len(t, member.Attendances, 1)
	assert.Equal(t, int64(2), member.Attendances[0].Event.SeasonID)
	require.Len(t, member.RoleAssignments, 1)
	assert.True(t, member.RoleAssignments[0].Role.Manager())
	assert.Nil(t, member.RoleAssignments[0].End)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMemberGetByID_NotFound(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewMemberRepository(db)

	mock.ExpectQuery(`SELECT m.id, m.handle`).
		WithArgs(int64(99), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(memberRowColumns))

	member, err := repo.GetByID(context.Background(), 99, repository.LoadFull)

	require.NoError(t, err)
	assert.Nil(t, member)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMemberCreate_WithCredential(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewMemberRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO members \(handle`).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(12))
	mock.ExpectQuery(`INSERT INTO credentials`).
		WithArgs(int64(12), "Paul", "Martin", sqlmock.AnyArg(), sqlmock.AnyArg(), int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(40))
	mock.ExpectCommit()

	member := &models.Member{Credential: &models.Credential{FirstName: "Paul", LastName: "Martin"}}
	created, err := repo.Create(context.Background(), member, 1)

	require.NoError(t, err)
	assert.Equal(t, int64(12), created.ID)
	assert.Equal(t, int64(12), created.Credential.MemberID)
	assert.Equal(t, int64(40), created.Credential.ID)
	require.NotNil(t, created.UpdatedByID)
	assert.Equal(t, int64(1), *created.UpdatedByID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMemberCreate_RollsBackOnCredentialFailure(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewMemberRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO members \(id`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))
	mock.ExpectQuery(`INSERT INTO credentials`).
		WillReturnError(errors.New("duplicate key value violates unique constraint"))
	mock.ExpectRollback()

	member := &models.Member{ID: 3, Credential: &models.Credential{FirstName: "A", LastName: "B"}}
	_, err := repo.Create(context.Background(), member, 1)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to upsert credential")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMemberUpdate_NotFound(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewMemberRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE members`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := repo.Update(context.Background(), &models.Member{ID: 42}, 1)

	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrNotFound))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWritesRequireAuthor(t *testing.T) {
	db, mock := setupMockDB(t)
	ctx := context.Background()

	_, err := NewMemberRepository(db).Create(ctx, &models.Member{}, 0)
	assert.True(t, errors.Is(err, errs.ErrConfiguration))

	_, err = NewEventRepository(db).Create(ctx, &models.Event{}, 0)
	assert.True(t, errors.Is(err, errs.ErrConfiguration))

	err = NewAttendanceRepository(db).Sync(ctx, 1, []int64{2}, nil, 0)
	assert.True(t, errors.Is(err, errs.ErrConfiguration))

	_, err = NewRoleRepository(db).Assign(ctx, &models.RoleAssignment{}, 0)
	assert.True(t, errors.Is(err, errs.ErrConfiguration))

	require.NoError(t, mock.ExpectationsWereMet())
}

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asso-tools/assobot/internal/models"
)

func TestRoleList_AttachesGroups(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewRoleRepository(db)

	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`FROM asso_roles`).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "name", "is_member", "is_subscriber", "is_past_subscriber", "is_manager", "is_owner",
			"updated_at", "updated_by_id",
		}).
			AddRow(1, "Membre", true, nil, nil, nil, nil, now, nil).
			AddRow(2, "Adhérent", true, true, false, false, false, now, 1))
	mock.ExpectQuery(`FROM asso_role_groups rg`).
		WillReturnRows(sqlmock.NewRows([]string{"role_id", "id", "name"}).
			AddRow(2, "g-sub", "Adhérent").
			AddRow(1, "g-member", "Membre").
			AddRow(2, "g-member", "Membre"))

	roles, err := repo.List(context.Background())

	require.NoError(t, err)
	require.Len(t, roles, 2)
	assert.True(t, roles[0].IsDefault())
	assert.Nil(t, roles[0].IsSubscriber)
	assert.Equal(t, []string{"g-member"}, roles[0].GroupIDs())
	assert.Equal(t, []string{"g-member", "g-sub"}, roles[1].GroupIDs())
	assert.True(t, roles[1].Subscriber())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRoleUpsert_ReplacesGroupMapping(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewRoleRepository(db)

	yes := true
	role := &models.AssoRole{
		Name:     "Membre",
		IsMember: &yes,
		Groups:   []models.ExternalRoleGroup{{ID: "g-member", Name: "Membre"}},
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO asso_roles`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectExec(`DELETE FROM asso_role_groups`).
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`INSERT INTO external_role_groups`).
		WithArgs("g-member", "Membre").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO asso_role_groups`).
		WithArgs(int64(1), "g-member").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	saved, err := repo.Upsert(context.Background(), role, 3)

	require.NoError(t, err)
	assert.Equal(t, int64(1), saved.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

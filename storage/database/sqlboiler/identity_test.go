package boiledrepos

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/feedback/core/academy"
	"github.com/trezcool/feedback/core/user"
)

func TestIdentityRepository_GetUser(t *testing.T) {
	now := time.Now().UTC()
	userQuery := regexp.QuoteMeta(`FROM "user" WHERE id = $1`)

	tests := []struct {
		name      string
		setupMock func(mock sqlmock.Sqlmock)
		wantUser  user.User
		wantErr   error
	}{
		{
			name: "found",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(userQuery).WithArgs(7).WillReturnRows(
					sqlmock.NewRows([]string{"id", "name", "username", "email", "is_active", "created_at", "updated_at"}).
						AddRow(7, "Ada Lovelace", "ada", "ada@example.com", true, now, now))
			},
			wantUser: user.User{ID: 7, Name: "Ada Lovelace", Username: "ada", Email: "ada@example.com", IsActive: true, CreatedAt: now, UpdatedAt: now},
		},
		{
			name: "not found",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(userQuery).WithArgs(7).WillReturnRows(
					sqlmock.NewRows([]string{"id", "name", "username", "email", "is_active", "created_at", "updated_at"}))
			},
			wantErr: user.ErrNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()
			tt.setupMock(mock)

			usr, err := NewIdentityRepository(db).GetUser(context.Background(), 7)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantUser, usr)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestIdentityRepository_FirstMembership(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta("FROM academy_membership WHERE user_id = $1 ORDER BY id ASC LIMIT 1")).
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "academy_id", "role", "created_at"}).
			AddRow(2, 7, 3, "student", now))

	m, err := NewIdentityRepository(db).FirstMembership(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, academy.Membership{ID: 2, UserID: 7, AcademyID: 3, Role: "student", CreatedAt: now}, m)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdentityRepository_GetAcademy(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("FROM academy WHERE id").
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"id", "slug", "name", "created_at"}))

	_, err = NewIdentityRepository(db).GetAcademy(context.Background(), 3)
	assert.Equal(t, academy.ErrNotFound, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

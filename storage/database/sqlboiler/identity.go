package boiledrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/sqlboiler/v4/queries"

	"github.com/trezcool/feedback/core"
	"github.com/trezcool/feedback/core/academy"
	"github.com/trezcool/feedback/core/user"
)

type (
	userRow struct {
		ID        int       `boil:"id"`
		Name      string    `boil:"name"`
		Username  string    `boil:"username"`
		Email     string    `boil:"email"`
		IsActive  bool      `boil:"is_active"`
		CreatedAt time.Time `boil:"created_at"`
		UpdatedAt time.Time `boil:"updated_at"`
	}

	academyRow struct {
		ID        int       `boil:"id"`
		Slug      string    `boil:"slug"`
		Name      string    `boil:"name"`
		CreatedAt time.Time `boil:"created_at"`
	}

	membershipRow struct {
		ID        int       `boil:"id"`
		UserID    int       `boil:"user_id"`
		AcademyID int       `boil:"academy_id"`
		Role      string    `boil:"role"`
		CreatedAt time.Time `boil:"created_at"`
	}
)

// identityRepository reads the user and academy tables owned by the identity service.
type identityRepository struct {
	exec core.DBExecutor
}

var (
	_ user.Repository    = (*identityRepository)(nil) // interface compliance check
	_ academy.Repository = (*identityRepository)(nil)
)

func NewIdentityRepository(exec core.DBExecutor) *identityRepository {
	return &identityRepository{exec: exec}
}

func (repo identityRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 {
		return svcExec[0]
	}
	return repo.exec
}

// trapNoRowsErr maps psql "no rows" err to notFound
func trapNoRowsErr(err error, notFound error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

func (repo identityRepository) GetUser(ctx context.Context, id int, exec ...core.DBExecutor) (user.User, error) {
	var row userRow
	err := queries.Raw(
		`SELECT id, name, username, email, is_active, created_at, updated_at FROM "user" WHERE id = $1`, id,
	).Bind(ctx, repo.getExec(exec), &row)
	if err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound, "finding user by ID")
	}
	return user.User{
		ID:        row.ID,
		Name:      row.Name,
		Username:  row.Username,
		Email:     row.Email,
		IsActive:  row.IsActive,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}, nil
}

func (repo identityRepository) GetAcademy(ctx context.Context, id int, exec ...core.DBExecutor) (academy.Academy, error) {
	var row academyRow
	err := queries.Raw(
		"SELECT id, slug, name, created_at FROM academy WHERE id = $1", id,
	).Bind(ctx, repo.getExec(exec), &row)
	if err != nil {
		return academy.Academy{}, trapNoRowsErr(err, academy.ErrNotFound, "finding academy by ID")
	}
	return academy.Academy(row), nil
}

func (repo identityRepository) FirstMembership(ctx context.Context, userID int, exec ...core.DBExecutor) (academy.Membership, error) {
	var row membershipRow
	err := queries.Raw(
		"SELECT id, user_id, academy_id, role, created_at FROM academy_membership WHERE user_id = $1 ORDER BY id ASC LIMIT 1", userID,
	).Bind(ctx, repo.getExec(exec), &row)
	if err != nil {
		return academy.Membership{}, trapNoRowsErr(err, academy.ErrNotFound, "finding first academy membership")
	}
	return academy.Membership(row), nil
}

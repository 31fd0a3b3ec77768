package dummydb

import (
	"context"

	"github.com/trezcool/feedback/core"
	"github.com/trezcool/feedback/core/academy"
	"github.com/trezcool/feedback/core/user"
)

type identityRepository struct {
	db *DB
}

var (
	_ user.Repository    = (*identityRepository)(nil) // interface compliance check
	_ academy.Repository = (*identityRepository)(nil)
)

func NewIdentityRepository(db *DB) *identityRepository {
	return &identityRepository{db: db}
}

func (repo *identityRepository) GetUser(_ context.Context, id int, _ ...core.DBExecutor) (user.User, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	if repo.db.failure != nil {
		return user.User{}, repo.db.failure
	}
	if usr, ok := repo.db.users[id]; ok {
		return *usr, nil
	}
	return user.User{}, user.ErrNotFound
}

func (repo *identityRepository) GetAcademy(_ context.Context, id int, _ ...core.DBExecutor) (academy.Academy, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	if repo.db.failure != nil {
		return academy.Academy{}, repo.db.failure
	}
	if a, ok := repo.db.academies[id]; ok {
		return *a, nil
	}
	return academy.Academy{}, academy.ErrNotFound
}

func (repo *identityRepository) FirstMembership(_ context.Context, userID int, _ ...core.DBExecutor) (academy.Membership, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	if repo.db.failure != nil {
		return academy.Membership{}, repo.db.failure
	}

	var first *academy.Membership
	for _, m := range repo.db.memberships {
		if m.UserID == userID && (first == nil || m.ID < first.ID) {
			first = m
		}
	}
	if first == nil {
		return academy.Membership{}, academy.ErrNotFound
	}
	return *first, nil
}

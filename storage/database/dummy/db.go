// Package dummydb keeps every table in memory. It backs the tests and dry runs.
package dummydb

import (
	"sync"

	"github.com/trezcool/feedback/core/academy"
	"github.com/trezcool/feedback/core/feedback"
	"github.com/trezcool/feedback/core/user"
)

type (
	DB struct {
		mu sync.RWMutex

		users       map[int]*user.User
		academies   map[int]*academy.Academy
		cohorts     map[int]*academy.Cohort
		memberships map[int]*academy.Membership

		configurations map[int]*feedback.SurveyConfiguration
		studies        map[int]*feedback.SurveyStudy
		responses      map[int]*feedback.SurveyResponse

		pkCount int
		failure error
	}
)

func Open() *DB {
	return &DB{
		users:          make(map[int]*user.User),
		academies:      make(map[int]*academy.Academy),
		cohorts:        make(map[int]*academy.Cohort),
		memberships:    make(map[int]*academy.Membership),
		configurations: make(map[int]*feedback.SurveyConfiguration),
		studies:        make(map[int]*feedback.SurveyStudy),
		responses:      make(map[int]*feedback.SurveyResponse),
	}
}

// Fail makes every subsequent repository call return err; Fail(nil) heals the DB.
func (db *DB) Fail(err error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.failure = err
}

// nextPK must be called with the write lock held.
func (db *DB) nextPK() int {
	db.pkCount++
	return db.pkCount
}

func (db *DB) CreateUser(usr user.User) user.User {
	db.mu.Lock()
	defer db.mu.Unlock()
	usr.ID = db.nextPK()
	db.users[usr.ID] = &usr
	return usr
}

func (db *DB) CreateAcademy(a academy.Academy) academy.Academy {
	db.mu.Lock()
	defer db.mu.Unlock()
	a.ID = db.nextPK()
	db.academies[a.ID] = &a
	return a
}

func (db *DB) CreateCohort(c academy.Cohort) academy.Cohort {
	db.mu.Lock()
	defer db.mu.Unlock()
	c.ID = db.nextPK()
	db.cohorts[c.ID] = &c
	return c
}

func (db *DB) CreateMembership(m academy.Membership) academy.Membership {
	db.mu.Lock()
	defer db.mu.Unlock()
	m.ID = db.nextPK()
	db.memberships[m.ID] = &m
	return m
}

// Responses returns a copy of every stored response.
func (db *DB) Responses() []feedback.SurveyResponse {
	db.mu.RLock()
	defer db.mu.RUnlock()
	out := make([]feedback.SurveyResponse, 0, len(db.responses))
	for _, r := range db.responses {
		out = append(out, *r)
	}
	return out
}

package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/trezcool/feedback/core/academy"
	"github.com/trezcool/feedback/core/feedback"
	"github.com/trezcool/feedback/core/user"
	dummydb "github.com/trezcool/feedback/storage/database/dummy"
)

func CreateUser(t *testing.T, db *dummydb.DB, name, uname, email string) user.User {
	t.Helper()
	now := time.Now().UTC()
	return db.CreateUser(user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

func CreateAcademy(t *testing.T, db *dummydb.DB, slug string) academy.Academy {
	t.Helper()
	return db.CreateAcademy(academy.Academy{Slug: slug, Name: slug, CreatedAt: time.Now().UTC()})
}

func CreateMembership(t *testing.T, db *dummydb.DB, usr user.User, acad academy.Academy) academy.Membership {
	t.Helper()
	return db.CreateMembership(academy.Membership{
		UserID:    usr.ID,
		AcademyID: acad.ID,
		Role:      "student",
		CreatedAt: time.Now().UTC(),
	})
}

// ConfigOption tweaks a configuration before it is created.
type ConfigOption func(*feedback.NewConfiguration)

func WithModule(m int) ConfigOption {
	return func(nc *feedback.NewConfiguration) { nc.ScopeFilter.Module = &m }
}

func WithSyllabus(slug string, version int) ConfigOption {
	return func(nc *feedback.NewConfiguration) {
		nc.ScopeFilter.Syllabus = slug
		if version > 0 {
			nc.ScopeFilter.Version = &version
		}
	}
}

func WithCohorts(ids ...int) ConfigOption {
	return func(nc *feedback.NewConfiguration) { nc.CohortIDs = ids }
}

func WithAssets(slugs ...string) ConfigOption {
	return func(nc *feedback.NewConfiguration) { nc.AssetSlugs = slugs }
}

func Inactive() ConfigOption {
	return func(nc *feedback.NewConfiguration) {
		f := false
		nc.IsActive = &f
	}
}

func CreateConfiguration(
	t *testing.T,
	svc *feedback.Service,
	acad academy.Academy,
	trigger feedback.TriggerType,
	priority float64,
	opts ...ConfigOption,
) feedback.SurveyConfiguration {
	t.Helper()
	nc := feedback.NewConfiguration{
		TriggerType: string(trigger),
		Priority:    &priority,
		AcademyID:   acad.ID,
	}
	for _, opt := range opts {
		opt(&nc)
	}
	cfg, err := svc.CreateConfiguration(context.Background(), nc)
	if err != nil {
		t.Fatalf("CreateConfiguration() failed: %v", err)
	}
	return cfg
}

func CreateStudy(
	t *testing.T,
	svc *feedback.Service,
	acad academy.Academy,
	slug string,
	startsAt, endsAt *time.Time,
	cfgs ...feedback.SurveyConfiguration,
) feedback.SurveyStudy {
	t.Helper()
	ids := make([]int, 0, len(cfgs))
	for _, cfg := range cfgs {
		ids = append(ids, cfg.ID)
	}
	study, err := svc.CreateStudy(context.Background(), feedback.NewStudy{
		Slug:             slug,
		Title:            slug,
		AcademyID:        acad.ID,
		StartsAt:         startsAt,
		EndsAt:           endsAt,
		ConfigurationIDs: ids,
	})
	if err != nil {
		t.Fatalf("CreateStudy() failed: %v", err)
	}
	return study
}

func TimePtr(t time.Time) *time.Time { return &t }

package dummydb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/trezcool/feedback/core"
	"github.com/trezcool/feedback/core/feedback"
)

type feedbackRepository struct {
	db *DB
}

var _ feedback.Repository = (*feedbackRepository)(nil) // interface compliance check

func NewFeedbackRepository(db *DB) *feedbackRepository {
	return &feedbackRepository{db: db}
}

func containsInt(list []int, i int) bool {
	for _, v := range list {
		if v == i {
			return true
		}
	}
	return false
}

func (repo *feedbackRepository) QueryConfigurations(_ context.Context, filter feedback.ConfigurationFilter) ([]feedback.SurveyConfiguration, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	if repo.db.failure != nil {
		return nil, repo.db.failure
	}

	cfgs := make([]feedback.SurveyConfiguration, 0)
	for _, cfg := range repo.db.configurations {
		if filter.IDs != nil && !containsInt(filter.IDs, cfg.ID) {
			continue
		}
		if filter.AcademyID != 0 && cfg.AcademyID != filter.AcademyID {
			continue
		}
		if filter.TriggerType != "" && cfg.TriggerType != filter.TriggerType {
			continue
		}
		if filter.ActiveOnly && !cfg.IsActive {
			continue
		}
		cfgs = append(cfgs, *cfg)
	}
	sort.Slice(cfgs, func(i, j int) bool { return cfgs[i].ID < cfgs[j].ID })
	return cfgs, nil
}

func (repo *feedbackRepository) CreateConfiguration(_ context.Context, cfg feedback.SurveyConfiguration) (feedback.SurveyConfiguration, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	if repo.db.failure != nil {
		return feedback.SurveyConfiguration{}, repo.db.failure
	}

	cfg.ID = repo.db.nextPK()
	repo.db.configurations[cfg.ID] = &cfg
	return cfg, nil
}

func (repo *feedbackRepository) QueryStudies(_ context.Context, filter feedback.StudyFilter) ([]feedback.SurveyStudy, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	if repo.db.failure != nil {
		return nil, repo.db.failure
	}

	studies := make([]feedback.SurveyStudy, 0)
	for _, s := range repo.db.studies {
		if filter.AcademyID != 0 && s.AcademyID != filter.AcademyID {
			continue
		}
		if filter.ConfigurationIDs != nil {
			var found bool
			for _, id := range filter.ConfigurationIDs {
				if s.Contains(id) {
					found = true
					break
				}
			}
			if !found {
				continue
			}
		}
		study := *s
		study.ConfigurationIDs = append([]int(nil), s.ConfigurationIDs...)
		studies = append(studies, study)
	}
	sort.Slice(studies, func(i, j int) bool { return studies[i].ID < studies[j].ID })
	return studies, nil
}

func (repo *feedbackRepository) CreateStudy(_ context.Context, study feedback.SurveyStudy) (feedback.SurveyStudy, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	if repo.db.failure != nil {
		return feedback.SurveyStudy{}, repo.db.failure
	}
	for _, s := range repo.db.studies {
		if s.Slug == study.Slug {
			return feedback.SurveyStudy{}, feedback.ErrStudyExists
		}
	}

	study.ID = repo.db.nextPK()
	repo.db.studies[study.ID] = &study
	return study, nil
}

// hasLiveResponse must be called with the lock held.
func (repo *feedbackRepository) hasLiveResponse(userID, studyID int) bool {
	for _, r := range repo.db.responses {
		if r.UserID == userID && r.StudyID != nil && *r.StudyID == studyID && r.Status.IsLive() {
			return true
		}
	}
	return false
}

func (repo *feedbackRepository) HasLiveResponse(_ context.Context, userID, studyID int) (bool, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	if repo.db.failure != nil {
		return false, repo.db.failure
	}
	return repo.hasLiveResponse(userID, studyID), nil
}

func (repo *feedbackRepository) ResponseExists(_ context.Context, filter feedback.DedupFilter) (bool, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	if repo.db.failure != nil {
		return false, repo.db.failure
	}

	for _, r := range repo.db.responses {
		if feedback.MatchesDedup(*r, filter) {
			return true, nil
		}
	}
	return false, nil
}

// CreateResponse enforces one live response per (study, user), like the partial unique index.
func (repo *feedbackRepository) CreateResponse(_ context.Context, resp feedback.SurveyResponse) (feedback.SurveyResponse, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	if repo.db.failure != nil {
		return feedback.SurveyResponse{}, repo.db.failure
	}

	if resp.StudyID != nil && resp.Status.IsLive() && repo.hasLiveResponse(resp.UserID, *resp.StudyID) {
		return feedback.SurveyResponse{}, feedback.ErrDuplicateResponse
	}
	resp.ID = repo.db.nextPK()
	repo.db.responses[resp.ID] = &resp
	return resp, nil
}

func (repo *feedbackRepository) QueryResponses(_ context.Context, filter feedback.ResponseFilter, ordering []core.DBOrdering) ([]feedback.SurveyResponse, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	if repo.db.failure != nil {
		return nil, repo.db.failure
	}

	resps := make([]feedback.SurveyResponse, 0)
	for _, r := range repo.db.responses {
		if filter.UserID != 0 && r.UserID != filter.UserID {
			continue
		}
		if filter.StudyID != 0 && (r.StudyID == nil || *r.StudyID != filter.StudyID) {
			continue
		}
		if len(filter.Statuses) > 0 && !hasStatus(filter.Statuses, r.Status) {
			continue
		}
		resps = append(resps, *r)
	}

	sort.SliceStable(resps, func(i, j int) bool {
		for _, ord := range ordering {
			cmp := compareResponses(resps[i], resps[j], ord.Field)
			if cmp == 0 {
				continue
			}
			if ord.Ascending {
				return cmp < 0
			}
			return cmp > 0
		}
		return resps[i].ID < resps[j].ID
	})
	return resps, nil
}

// compareResponses compares a and b on field, 0 for equal values and unknown fields.
func compareResponses(a, b feedback.SurveyResponse, field string) int {
	switch field {
	case "id":
		return compareInts(a.ID, b.ID)
	case "status":
		return strings.Compare(string(a.Status), string(b.Status))
	case "created_at":
		return compareTimes(a.CreatedAt, b.CreatedAt)
	case "updated_at":
		return compareTimes(a.UpdatedAt, b.UpdatedAt)
	}
	return 0
}

func compareInts(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func compareTimes(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	}
	return 0
}

func (repo *feedbackRepository) ExpireResponses(_ context.Context, createdBefore, now time.Time) (int, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	if repo.db.failure != nil {
		return 0, repo.db.failure
	}

	var n int
	for _, r := range repo.db.responses {
		if r.Status.IsLive() && r.Status != feedback.StatusAnswered && r.CreatedAt.Before(createdBefore) {
			r.Status = feedback.StatusExpired
			r.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

func hasStatus(statuses []feedback.ResponseStatus, s feedback.ResponseStatus) bool {
	for _, st := range statuses {
		if st == s {
			return true
		}
	}
	return false
}

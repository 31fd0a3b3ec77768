package sqlxrepos

import (
	"context"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/feedback/core"
	"github.com/trezcool/feedback/core/feedback"
)

const (
	liveResponseIndex = "survey_response_live_study_user_uniq"
	uniqueViolation   = "23505"
)

// dedupColumns maps the trigger_context keys compared by deduplication to their SQL expression.
var dedupColumns = map[string]string{
	"trigger_type":     "trigger_context->>'trigger_type'",
	"cohort_id":        "trigger_context->>'cohort_id'",
	"syllabus_slug":    "trigger_context->>'syllabus_slug'",
	"syllabus_version": "trigger_context->>'syllabus_version'",
	"module":           "trigger_context->>'module'",
	"asset_slug":       "trigger_context->>'asset_slug'",
}

var responseOrderings = map[string]string{
	"id":         "id",
	"created_at": "created_at",
	"updated_at": "updated_at",
	"status":     "status",
}

type (
	configurationRow struct {
		ID          int                  `db:"id"`
		TriggerType string               `db:"trigger_type"`
		ScopeFilter feedback.ScopeFilter `db:"scope_filter"`
		Priority    float64              `db:"priority"`
		AcademyID   int                  `db:"academy_id"`
		CohortIDs   pq.Int64Array        `db:"cohort_ids"`
		AssetSlugs  pq.StringArray       `db:"asset_slugs"`
		IsActive    bool                 `db:"is_active"`
		CreatedAt   time.Time            `db:"created_at"`
		UpdatedAt   time.Time            `db:"updated_at"`
	}

	studyRow struct {
		ID               int           `db:"id"`
		Slug             string        `db:"slug"`
		Title            string        `db:"title"`
		AcademyID        int           `db:"academy_id"`
		StartsAt         null.Time     `db:"starts_at"`
		EndsAt           null.Time     `db:"ends_at"`
		MaxResponses     null.Int      `db:"max_responses"`
		ConfigurationIDs pq.Int64Array `db:"configuration_ids"`
		CreatedAt        time.Time     `db:"created_at"`
		UpdatedAt        time.Time     `db:"updated_at"`
	}

	responseRow struct {
		ID              int                     `db:"id"`
		ConfigurationID int                     `db:"survey_config_id"`
		StudyID         null.Int                `db:"survey_study_id"`
		UserID          int                     `db:"user_id"`
		Token           string                  `db:"token"`
		TriggerContext  feedback.TriggerContext `db:"trigger_context"`
		Status          string                  `db:"status"`
		CreatedAt       time.Time               `db:"created_at"`
		UpdatedAt       time.Time               `db:"updated_at"`
	}
)

type feedbackRepository struct {
	db *sqlx.DB
}

var _ feedback.Repository = (*feedbackRepository)(nil) // interface compliance check

func NewFeedbackRepository(db *sqlx.DB) *feedbackRepository {
	return &feedbackRepository{db: db}
}

func (repo feedbackRepository) QueryConfigurations(ctx context.Context, filter feedback.ConfigurationFilter) ([]feedback.SurveyConfiguration, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.IDs != nil {
		if len(filter.IDs) == 0 {
			return nil, nil
		}
		where = append(where, "id IN (?)")
		args = append(args, filter.IDs)
	}
	if filter.AcademyID != 0 {
		where = append(where, "academy_id = ?")
		args = append(args, filter.AcademyID)
	}
	if filter.TriggerType != "" {
		where = append(where, "trigger_type = ?")
		args = append(args, string(filter.TriggerType))
	}
	if filter.ActiveOnly {
		where = append(where, "is_active")
	}

	q := `SELECT id, trigger_type, scope_filter, priority, academy_id, cohort_ids, asset_slugs, is_active, created_at, updated_at
		FROM survey_configuration`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY id ASC"

	q, args, err := sqlx.In(q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "building survey configurations query")
	}

	var rows []configurationRow
	if err = repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying survey configurations")
	}
	cfgs := make([]feedback.SurveyConfiguration, 0, len(rows))
	for _, row := range rows {
		cfgs = append(cfgs, row.configuration())
	}
	return cfgs, nil
}

func (repo feedbackRepository) CreateConfiguration(ctx context.Context, cfg feedback.SurveyConfiguration) (feedback.SurveyConfiguration, error) {
	row := configurationRow{
		TriggerType: string(cfg.TriggerType),
		ScopeFilter: cfg.ScopeFilter,
		Priority:    cfg.Priority,
		AcademyID:   cfg.AcademyID,
		CohortIDs:   int64s(cfg.CohortIDs),
		AssetSlugs:  pq.StringArray(cfg.AssetSlugs),
		IsActive:    cfg.IsActive,
		CreatedAt:   cfg.CreatedAt.UTC(),
		UpdatedAt:   cfg.UpdatedAt.UTC(),
	}
	if row.AssetSlugs == nil {
		row.AssetSlugs = pq.StringArray{}
	}

	q, args, err := sqlx.Named(`INSERT INTO survey_configuration
		(trigger_type, scope_filter, priority, academy_id, cohort_ids, asset_slugs, is_active, created_at, updated_at)
		VALUES (:trigger_type, :scope_filter, :priority, :academy_id, :cohort_ids, :asset_slugs, :is_active, :created_at, :updated_at)
		RETURNING id`, row)
	if err != nil {
		return feedback.SurveyConfiguration{}, errors.Wrap(err, "building survey configuration insert")
	}
	if err = repo.db.QueryRowxContext(ctx, repo.db.Rebind(q), args...).Scan(&row.ID); err != nil {
		return feedback.SurveyConfiguration{}, errors.Wrap(err, "inserting survey configuration")
	}
	return row.configuration(), nil
}

func (repo feedbackRepository) QueryStudies(ctx context.Context, filter feedback.StudyFilter) ([]feedback.SurveyStudy, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.AcademyID != 0 {
		where = append(where, "s.academy_id = ?")
		args = append(args, filter.AcademyID)
	}
	if filter.ConfigurationIDs != nil {
		if len(filter.ConfigurationIDs) == 0 {
			return nil, nil
		}
		where = append(where, "s.id IN (SELECT survey_study_id FROM survey_study_configuration WHERE survey_configuration_id IN (?))")
		args = append(args, filter.ConfigurationIDs)
	}

	q := `SELECT s.id, s.slug, s.title, s.academy_id, s.starts_at, s.ends_at, s.max_responses, s.created_at, s.updated_at,
		ARRAY_AGG(sc.survey_configuration_id ORDER BY sc.survey_configuration_id) AS configuration_ids
		FROM survey_study s
		JOIN survey_study_configuration sc ON sc.survey_study_id = s.id`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " GROUP BY s.id ORDER BY s.id ASC"

	q, args, err := sqlx.In(q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "building survey studies query")
	}

	var rows []studyRow
	if err = repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying survey studies")
	}
	studies := make([]feedback.SurveyStudy, 0, len(rows))
	for _, row := range rows {
		studies = append(studies, row.study())
	}
	return studies, nil
}

func (repo feedbackRepository) CreateStudy(ctx context.Context, study feedback.SurveyStudy) (_ feedback.SurveyStudy, err error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return feedback.SurveyStudy{}, errors.Wrap(err, "starting transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	err = tx.QueryRowxContext(ctx, `INSERT INTO survey_study
		(slug, title, academy_id, starts_at, ends_at, max_responses, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		study.Slug, study.Title, study.AcademyID,
		null.TimeFromPtr(study.StartsAt), null.TimeFromPtr(study.EndsAt), intPtrToNull(study.MaxResponses),
		study.CreatedAt.UTC(), study.UpdatedAt.UTC(),
	).Scan(&study.ID)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == uniqueViolation {
			err = feedback.ErrStudyExists
		} else {
			err = errors.Wrap(err, "inserting survey study")
		}
		return feedback.SurveyStudy{}, err
	}

	for _, cfgID := range study.ConfigurationIDs {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO survey_study_configuration (survey_study_id, survey_configuration_id) VALUES ($1, $2)",
			study.ID, cfgID)
		if err != nil {
			err = errors.Wrap(err, "linking survey configuration")
			return feedback.SurveyStudy{}, err
		}
	}

	if err = tx.Commit(); err != nil {
		err = errors.Wrap(err, "committing survey study")
		return feedback.SurveyStudy{}, err
	}
	return study, nil
}

func (repo feedbackRepository) HasLiveResponse(ctx context.Context, userID, studyID int) (bool, error) {
	var exists bool
	err := repo.db.GetContext(ctx, &exists,
		"SELECT EXISTS (SELECT 1 FROM survey_response WHERE user_id = $1 AND survey_study_id = $2 AND status <> $3)",
		userID, studyID, string(feedback.StatusExpired))
	if err != nil {
		return false, errors.Wrap(err, "checking live responses")
	}
	return exists, nil
}

// ResponseExists compares trigger_context keys with IS NOT DISTINCT FROM so that absent keys match NULL.
func (repo feedbackRepository) ResponseExists(ctx context.Context, filter feedback.DedupFilter) (bool, error) {
	where := []string{"survey_config_id = ?", "user_id = ?", "survey_study_id = ?", "status <> ?"}
	args := []interface{}{filter.ConfigurationID, filter.UserID, filter.StudyID, string(feedback.StatusExpired)}

	if filter.TriggerType != "" {
		where = append(where, dedupColumns["trigger_type"]+" = ?")
		args = append(args, string(filter.TriggerType))
	}
	for _, key := range filter.Match {
		col, ok := dedupColumns[key]
		if !ok {
			return false, errors.Errorf("unknown deduplication key %q", key)
		}
		where = append(where, col+" IS NOT DISTINCT FROM ?")
		args = append(args, null.StringFromPtr(feedback.ContextText(filter.Context, key)))
	}

	q := "SELECT EXISTS (SELECT 1 FROM survey_response WHERE " + strings.Join(where, " AND ") + ")"
	var exists bool
	if err := repo.db.GetContext(ctx, &exists, repo.db.Rebind(q), args...); err != nil {
		return false, errors.Wrap(err, "checking duplicate responses")
	}
	return exists, nil
}

func (repo feedbackRepository) CreateResponse(ctx context.Context, resp feedback.SurveyResponse) (feedback.SurveyResponse, error) {
	row := responseRow{
		ConfigurationID: resp.ConfigurationID,
		StudyID:         intPtrToNull(resp.StudyID),
		UserID:          resp.UserID,
		Token:           resp.Token,
		TriggerContext:  resp.TriggerContext,
		Status:          string(resp.Status),
		CreatedAt:       resp.CreatedAt.UTC(),
		UpdatedAt:       resp.UpdatedAt.UTC(),
	}

	q, args, err := sqlx.Named(`INSERT INTO survey_response
		(survey_config_id, survey_study_id, user_id, token, trigger_context, status, created_at, updated_at)
		VALUES (:survey_config_id, :survey_study_id, :user_id, :token, :trigger_context, :status, :created_at, :updated_at)
		RETURNING id`, row)
	if err != nil {
		return feedback.SurveyResponse{}, errors.Wrap(err, "building survey response insert")
	}
	if err = repo.db.QueryRowxContext(ctx, repo.db.Rebind(q), args...).Scan(&row.ID); err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == uniqueViolation && pqErr.Constraint == liveResponseIndex {
			return feedback.SurveyResponse{}, feedback.ErrDuplicateResponse
		}
		return feedback.SurveyResponse{}, errors.Wrap(err, "inserting survey response")
	}
	return row.response(), nil
}

func (repo feedbackRepository) QueryResponses(ctx context.Context, filter feedback.ResponseFilter, ordering []core.DBOrdering) ([]feedback.SurveyResponse, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.UserID != 0 {
		where = append(where, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.StudyID != 0 {
		where = append(where, "survey_study_id = ?")
		args = append(args, filter.StudyID)
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, s := range filter.Statuses {
			statuses = append(statuses, string(s))
		}
		where = append(where, "status IN (?)")
		args = append(args, statuses)
	}

	q := `SELECT id, survey_config_id, survey_study_id, user_id, token, trigger_context, status, created_at, updated_at
		FROM survey_response`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY " + core.OrderingClause(ordering, responseOrderings, "id ASC")

	q, args, err := sqlx.In(q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "building survey responses query")
	}

	var rows []responseRow
	if err = repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying survey responses")
	}
	responses := make([]feedback.SurveyResponse, 0, len(rows))
	for _, row := range rows {
		responses = append(responses, row.response())
	}
	return responses, nil
}

func (repo feedbackRepository) ExpireResponses(ctx context.Context, createdBefore, now time.Time) (int, error) {
	res, err := repo.db.ExecContext(ctx,
		"UPDATE survey_response SET status = $1, updated_at = $2 WHERE status IN ($3, $4, $5) AND created_at < $6",
		string(feedback.StatusExpired), now.UTC(),
		string(feedback.StatusPending), string(feedback.StatusOpened), string(feedback.StatusPartial),
		createdBefore.UTC())
	if err != nil {
		return 0, errors.Wrap(err, "expiring survey responses")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "expiring survey responses")
	}
	return int(n), nil
}

func (row configurationRow) configuration() feedback.SurveyConfiguration {
	return feedback.SurveyConfiguration{
		ID:          row.ID,
		TriggerType: feedback.TriggerType(row.TriggerType),
		ScopeFilter: row.ScopeFilter,
		Priority:    row.Priority,
		AcademyID:   row.AcademyID,
		CohortIDs:   ints(row.CohortIDs),
		AssetSlugs:  []string(row.AssetSlugs),
		IsActive:    row.IsActive,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}
}

func (row studyRow) study() feedback.SurveyStudy {
	return feedback.SurveyStudy{
		ID:               row.ID,
		Slug:             row.Slug,
		Title:            row.Title,
		AcademyID:        row.AcademyID,
		StartsAt:         row.StartsAt.Ptr(),
		EndsAt:           row.EndsAt.Ptr(),
		MaxResponses:     nullToIntPtr(row.MaxResponses),
		ConfigurationIDs: ints(row.ConfigurationIDs),
		CreatedAt:        row.CreatedAt,
		UpdatedAt:        row.UpdatedAt,
	}
}

func (row responseRow) response() feedback.SurveyResponse {
	return feedback.SurveyResponse{
		ID:              row.ID,
		ConfigurationID: row.ConfigurationID,
		StudyID:         nullToIntPtr(row.StudyID),
		UserID:          row.UserID,
		Token:           row.Token,
		TriggerContext:  row.TriggerContext,
		Status:          feedback.ResponseStatus(row.Status),
		CreatedAt:       row.CreatedAt,
		UpdatedAt:       row.UpdatedAt,
	}
}

func int64s(ids []int) pq.Int64Array {
	arr := make(pq.Int64Array, 0, len(ids))
	for _, id := range ids {
		arr = append(arr, int64(id))
	}
	return arr
}

func ints(arr pq.Int64Array) []int {
	if len(arr) == 0 {
		return nil
	}
	ids := make([]int, 0, len(arr))
	for _, id := range arr {
		ids = append(ids, int(id))
	}
	return ids
}

func intPtrToNull(i *int) null.Int {
	if i == nil {
		return null.Int{}
	}
	return null.IntFrom(*i)
}

func nullToIntPtr(i null.Int) *int {
	if !i.Valid {
		return nil
	}
	return core.IntPtr(i.Int)
}

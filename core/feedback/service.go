package feedback

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"

	"github.com/trezcool/feedback/core"
	"github.com/trezcool/feedback/core/academy"
	"github.com/trezcool/feedback/core/user"
)

var (
	// errors
	ErrNotFound           = errors.New("not found")
	ErrDuplicateResponse  = errors.New("the user already has a live response for this study")
	ErrInvalidScopeFilter = errors.New("invalid scope filter")
	ErrMixedTriggerTypes  = errors.New("all survey configurations of a study must share the same trigger type")
	ErrLockTimeout        = errors.New("timed out waiting for the trigger lock")
	ErrStudyExists        = errors.New("a survey study with this slug already exists")

	NowFunc = time.Now // mockable
)

// Trigger outcomes, as recorded by a Recorder.
const (
	OutcomeAssigned     = "assigned"
	OutcomeDeclined     = "declined"
	OutcomePrecondition = "precondition"
	OutcomeDuplicate    = "duplicate"
	OutcomeError        = "error"
)

type (
	Repository interface {
		// QueryConfigurations returns configurations ordered by ascending id.
		QueryConfigurations(ctx context.Context, filter ConfigurationFilter) ([]SurveyConfiguration, error)
		CreateConfiguration(ctx context.Context, cfg SurveyConfiguration) (SurveyConfiguration, error)
		// QueryStudies returns studies with their ConfigurationIDs populated.
		QueryStudies(ctx context.Context, filter StudyFilter) ([]SurveyStudy, error)
		// CreateStudy returns ErrStudyExists when the slug is taken.
		CreateStudy(ctx context.Context, study SurveyStudy) (SurveyStudy, error)
		HasLiveResponse(ctx context.Context, userID, studyID int) (bool, error)
		ResponseExists(ctx context.Context, filter DedupFilter) (bool, error)
		// CreateResponse returns ErrDuplicateResponse when the user already has a live response for the study.
		CreateResponse(ctx context.Context, resp SurveyResponse) (SurveyResponse, error)
		QueryResponses(ctx context.Context, filter ResponseFilter, ordering []core.DBOrdering) ([]SurveyResponse, error)
		// ExpireResponses marks unanswered live responses created before createdBefore as EXPIRED.
		ExpireResponses(ctx context.Context, createdBefore, now time.Time) (int, error)
	}

	// Locker serialises the read-decide-write section of a user's triggers.
	Locker interface {
		Lock(ctx context.Context, key string) (unlock func(), err error)
	}

	// Notifier is told about new assignments. It must not block for long.
	Notifier interface {
		SurveyAssigned(ctx context.Context, usr user.User, resp SurveyResponse)
	}

	Recorder interface {
		ObserveTrigger(trigger TriggerType, outcome string, elapsed time.Duration)
	}

	Option func(*Service)

	Service struct {
		repo      Repository
		academies academy.Repository
		logger    core.Logger
		locker    Locker
		notifier  Notifier
		recorder  Recorder
		draw      DrawFunc
		validate  *validator.Validate
	}
)

func WithLocker(l Locker) Option       { return func(svc *Service) { svc.locker = l } }
func WithNotifier(n Notifier) Option   { return func(svc *Service) { svc.notifier = n } }
func WithRecorder(r Recorder) Option   { return func(svc *Service) { svc.recorder = r } }
func WithDrawFunc(draw DrawFunc) Option { return func(svc *Service) { svc.draw = draw } }

func NewService(repo Repository, academies academy.Repository, logger core.Logger, opts ...Option) *Service {
	svc := &Service{
		repo:      repo,
		academies: academies,
		logger:    logger,
		draw:      Draw,
		validate:  sharedValidator(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Trigger evaluates a completed action of usr and assigns at most one survey.
// A nil Assignment with a nil error means "no assignment"; an error means the engine could not run.
func (svc *Service) Trigger(ctx context.Context, usr user.User, trigger TriggerType, data Context) (asg *Assignment, err error) {
	start := NowFunc()
	outcome := OutcomeDeclined
	defer func() {
		switch {
		case err != nil:
			outcome = OutcomeError
		case asg != nil:
			outcome = OutcomeAssigned
		}
		if svc.recorder != nil {
			svc.recorder.ObserveTrigger(trigger, outcome, NowFunc().Sub(start))
		}
	}()

	if usr.ID <= 0 {
		outcome = OutcomePrecondition
		svc.logger.Info("feedback: trigger without a user", map[string]interface{}{"trigger_type": trigger})
		return nil, nil
	}
	if !trigger.IsValid() {
		outcome = OutcomePrecondition
		svc.logger.Info("feedback: unknown trigger type", map[string]interface{}{"trigger_type": trigger}, usr)
		return nil, nil
	}

	tc, problems := ParseContext(trigger, data)
	if len(problems) > 0 {
		svc.logger.Warn("feedback: ignoring malformed context values", map[string]interface{}{"problems": problems}, usr)
	}

	academyID, err := svc.resolveAcademy(ctx, usr.ID, tc)
	if err != nil {
		return nil, err
	}
	if academyID == 0 {
		outcome = OutcomePrecondition
		svc.logger.Info("feedback: no academy for trigger", map[string]interface{}{"trigger_type": trigger}, usr)
		return nil, nil
	}
	tc.AcademyID = academyID

	groups, err := svc.candidates(ctx, tc)
	if err != nil {
		return nil, err
	}
	if len(groups) == 0 {
		return nil, nil
	}

	if svc.locker != nil {
		unlock, err := svc.locker.Lock(ctx, lockKey(usr.ID))
		if err != nil {
			return nil, pkgerrors.Wrap(err, "acquiring trigger lock")
		}
		defer unlock()
	}

	for _, grp := range groups {
		cfg, err := svc.sample(ctx, usr.ID, grp, tc)
		if err != nil {
			return nil, err
		}
		if cfg == nil {
			continue
		}

		resp, err := svc.writeResponse(ctx, usr.ID, *cfg, grp.study, tc)
		if err != nil {
			if pkgerrors.Cause(err) == ErrDuplicateResponse {
				outcome = OutcomeDuplicate
				svc.logger.Warn("feedback: concurrent assignment rejected", map[string]interface{}{
					"survey_config": cfg.ID,
					"survey_study":  grp.study.ID,
				}, usr)
				return nil, nil
			}
			return nil, err
		}

		if svc.notifier != nil {
			svc.notifier.SurveyAssigned(ctx, usr, resp)
		}
		return &Assignment{
			ConfigurationID: cfg.ID,
			StudyID:         grp.study.ID,
			Token:           resp.Token,
			Response:        resp,
		}, nil
	}
	return nil, nil
}

// resolveAcademy returns the context academy if it exists, else the academy of the user's
// first membership. 0 means no academy could be resolved.
func (svc *Service) resolveAcademy(ctx context.Context, userID int, tc TriggerContext) (int, error) {
	if tc.AcademyID > 0 {
		acad, err := svc.academies.GetAcademy(ctx, tc.AcademyID)
		if err != nil {
			if pkgerrors.Cause(err) == academy.ErrNotFound {
				svc.logger.Info("feedback: unknown academy in trigger context", map[string]interface{}{"academy": tc.AcademyID})
				return 0, nil
			}
			return 0, pkgerrors.Wrap(err, "resolving academy")
		}
		return acad.ID, nil
	}
	m, err := svc.academies.FirstMembership(ctx, userID)
	if err != nil {
		if pkgerrors.Cause(err) == academy.ErrNotFound {
			return 0, nil
		}
		return 0, pkgerrors.Wrap(err, "resolving academy")
	}
	return m.AcademyID, nil
}

// candidates selects the active configurations of the trigger, resolves their open study,
// filters them and groups them by study.
func (svc *Service) candidates(ctx context.Context, tc TriggerContext) ([]studyGroup, error) {
	cfgs, err := svc.repo.QueryConfigurations(ctx, ConfigurationFilter{
		AcademyID:   tc.AcademyID,
		TriggerType: tc.TriggerType,
		ActiveOnly:  true,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(err, "querying survey configurations")
	}
	if len(cfgs) == 0 {
		return nil, nil
	}

	ids := make([]int, 0, len(cfgs))
	for _, cfg := range cfgs {
		ids = append(ids, cfg.ID)
	}
	studies, err := svc.repo.QueryStudies(ctx, StudyFilter{AcademyID: tc.AcademyID, ConfigurationIDs: ids})
	if err != nil {
		return nil, pkgerrors.Wrap(err, "querying survey studies")
	}
	return groupByStudy(cfgs, studies, tc, NowFunc()), nil
}

// sample picks the configuration to assign within one study, nil if none.
func (svc *Service) sample(ctx context.Context, userID int, grp studyGroup, tc TriggerContext) (*SurveyConfiguration, error) {
	live, err := svc.repo.HasLiveResponse(ctx, userID, grp.study.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "checking live study response")
	}
	if live {
		return nil, nil
	}

	isDuplicate := func(cfg SurveyConfiguration) (bool, error) {
		exists, err := svc.repo.ResponseExists(ctx, newDedupFilter(cfg, userID, grp.study.ID, tc))
		return exists, pkgerrors.Wrap(err, "checking duplicate response")
	}
	if tc.TriggerType == TriggerModuleCompleted {
		return selectByHazard(moduleCandidates(grp.configs, tc), userID, grp.study.ID, svc.draw, isDuplicate)
	}
	return selectFirst(firstMatchCandidates(grp.configs), isDuplicate)
}

func (svc *Service) writeResponse(ctx context.Context, userID int, cfg SurveyConfiguration, study SurveyStudy, tc TriggerContext) (SurveyResponse, error) {
	now := NowFunc().UTC()
	snapshot := tc
	snapshot.ConfigurationID = cfg.ID
	snapshot.StudyID = study.ID
	snapshot.TriggeredAt = now

	studyID := study.ID
	resp, err := svc.repo.CreateResponse(ctx, SurveyResponse{
		ConfigurationID: cfg.ID,
		StudyID:         &studyID,
		UserID:          userID,
		Token:           NewToken(),
		TriggerContext:  snapshot,
		Status:          StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	if err != nil {
		if pkgerrors.Cause(err) == ErrDuplicateResponse {
			return SurveyResponse{}, err
		}
		return SurveyResponse{}, pkgerrors.Wrap(err, "creating survey response")
	}
	return resp, nil
}

// NewToken returns an opaque, unique response token.
func NewToken() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

func lockKey(userID int) string {
	return fmt.Sprintf("feedback:trigger:user:%d", userID)
}

// CreateConfiguration validates and stores a survey configuration.
func (svc *Service) CreateConfiguration(ctx context.Context, nc NewConfiguration) (SurveyConfiguration, error) {
	if err := svc.validate.Struct(nc); err != nil {
		return SurveyConfiguration{}, core.FromValidatorErrors(err)
	}

	now := NowFunc().UTC()
	cfg := SurveyConfiguration{
		TriggerType: TriggerType(nc.TriggerType),
		ScopeFilter: nc.ScopeFilter,
		Priority:    100,
		AcademyID:   nc.AcademyID,
		CohortIDs:   nc.CohortIDs,
		AssetSlugs:  nc.AssetSlugs,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if nc.Priority != nil {
		cfg.Priority = *nc.Priority
	}
	if nc.IsActive != nil {
		cfg.IsActive = *nc.IsActive
	}
	cfg.ScopeFilter.Syllabus = core.CleanString(cfg.ScopeFilter.Syllabus, true /* lower */)

	cfg, err := svc.repo.CreateConfiguration(ctx, cfg)
	return cfg, pkgerrors.Wrap(err, "creating survey configuration")
}

// CreateStudy validates and stores a study. Every configuration of a study must belong to its
// academy and share the same trigger type.
func (svc *Service) CreateStudy(ctx context.Context, ns NewStudy) (SurveyStudy, error) {
	if err := svc.validate.Struct(ns); err != nil {
		return SurveyStudy{}, core.FromValidatorErrors(err)
	}

	ids := uniqueInts(ns.ConfigurationIDs)
	cfgs, err := svc.repo.QueryConfigurations(ctx, ConfigurationFilter{IDs: ids})
	if err != nil {
		return SurveyStudy{}, pkgerrors.Wrap(err, "querying survey configurations")
	}
	if err = checkStudyConfigurations(ns.AcademyID, ids, cfgs); err != nil {
		return SurveyStudy{}, err
	}

	now := NowFunc().UTC()
	study, err := svc.repo.CreateStudy(ctx, SurveyStudy{
		Slug:             core.CleanString(ns.Slug, true /* lower */),
		Title:            core.CleanString(ns.Title),
		AcademyID:        ns.AcademyID,
		StartsAt:         ns.StartsAt,
		EndsAt:           ns.EndsAt,
		MaxResponses:     ns.MaxResponses,
		ConfigurationIDs: ids,
		CreatedAt:        now,
		UpdatedAt:        now,
	})
	if errors.Is(err, ErrStudyExists) {
		return SurveyStudy{}, core.NewFieldValidationError(err, "slug")
	}
	return study, pkgerrors.Wrap(err, "creating survey study")
}

// ExpireResponses expires live, unanswered responses older than olderThan.
func (svc *Service) ExpireResponses(ctx context.Context, olderThan time.Duration) (int, error) {
	now := NowFunc().UTC()
	n, err := svc.repo.ExpireResponses(ctx, now.Add(-olderThan), now)
	if err != nil {
		return 0, pkgerrors.Wrap(err, "expiring survey responses")
	}
	if n > 0 {
		svc.logger.Info(fmt.Sprintf("feedback: expired %d survey responses", n))
	}
	return n, nil
}

func (svc *Service) QueryResponses(ctx context.Context, filter ResponseFilter, ordering []core.DBOrdering) ([]SurveyResponse, error) {
	resps, err := svc.repo.QueryResponses(ctx, filter, ordering)
	return resps, pkgerrors.Wrap(err, "querying survey responses")
}

func uniqueInts(in []int) []int {
	seen := make(map[int]bool, len(in))
	out := make([]int, 0, len(in))
	for _, i := range in {
		if !seen[i] {
			seen[i] = true
			out = append(out, i)
		}
	}
	return out
}

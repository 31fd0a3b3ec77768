package echoapi

import (
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/feedback/core"
	"github.com/trezcool/feedback/core/feedback"
)

var orderingParam = "ordering"

type Ordering struct {
	Orderings []core.DBOrdering
}

// Bind reads "?ordering=-created_at,id" into DB orderings.
func (ord *Ordering) Bind(ctx echo.Context) {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return
	}
	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field == "" {
			continue
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

type (
	TriggerRequest struct {
		UserID      int              `json:"user_id" validate:"required,gt=0"`
		TriggerType string           `json:"trigger_type" validate:"required"`
		Context     feedback.Context `json:"context"`
	}

	TriggerResponse struct {
		Assigned     bool   `json:"assigned"`
		SurveyConfig int    `json:"survey_config,omitempty"`
		SurveyStudy  int    `json:"survey_study,omitempty"`
		Token        string `json:"token,omitempty"`
	}
)

func bindResponseFilter(ctx echo.Context) (feedback.ResponseFilter, error) {
	var filter feedback.ResponseFilter
	var err error

	if v := ctx.QueryParam("user"); v != "" {
		if filter.UserID, err = strconv.Atoi(v); err != nil {
			return filter, core.NewFieldValidationError(errors.New("must be an integer"), "user")
		}
	}
	if v := ctx.QueryParam("study"); v != "" {
		if filter.StudyID, err = strconv.Atoi(v); err != nil {
			return filter, core.NewFieldValidationError(errors.New("must be an integer"), "study")
		}
	}
	if v := ctx.QueryParam("status"); v != "" {
		for _, s := range strings.Split(v, ",") {
			filter.Statuses = append(filter.Statuses, feedback.ResponseStatus(strings.ToUpper(strings.TrimSpace(s))))
		}
	}
	return filter, nil
}

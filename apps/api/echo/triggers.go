package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/feedback/core/feedback"
	"github.com/trezcool/feedback/core/user"
)

type triggerApi struct {
	svc      *feedback.Service
	users    user.Repository
	validate *validator.Validate
}

func registerTriggerAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *feedback.Service, users user.Repository, validate *validator.Validate) {
	api := triggerApi{svc: svc, users: users, validate: validate}

	g.POST("/triggers", api.trigger, jwt, scopeMiddleware(ScopeTrigger))
}

// trigger evaluates a completed action of a user.
// 201 with the assignment, or 200 {"assigned": false} when no survey applies.
func (api *triggerApi) trigger(ctx echo.Context) error {
	var data TriggerRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to TriggerRequest")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	trigger, _ := feedback.ParseTriggerType(data.TriggerType)
	ctx.Set(contextTriggerKey, trigger)

	reqCtx := ctx.Request().Context()
	usr, err := api.users.GetUser(reqCtx, data.UserID)
	if err != nil {
		return errors.Wrap(err, "finding user by ID")
	}

	asg, err := api.svc.Trigger(reqCtx, usr, trigger, data.Context)
	if err != nil {
		return errors.Wrap(err, "evaluating trigger")
	}
	if asg == nil {
		return ctx.JSON(http.StatusOK, TriggerResponse{})
	}
	return ctx.JSON(http.StatusCreated, TriggerResponse{
		Assigned:     true,
		SurveyConfig: asg.ConfigurationID,
		SurveyStudy:  asg.StudyID,
		Token:        asg.Token,
	})
}

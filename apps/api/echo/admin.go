package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/feedback/core/feedback"
)

type adminApi struct {
	svc *feedback.Service
}

func registerAdminAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *feedback.Service) {
	api := adminApi{svc: svc}

	ag := g.Group("", jwt, scopeMiddleware(ScopeAdmin))
	ag.POST("/configurations", api.createConfiguration)
	ag.POST("/studies", api.createStudy)
	ag.GET("/responses", api.queryResponses)
}

func (api *adminApi) createConfiguration(ctx echo.Context) error {
	var data feedback.NewConfiguration
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewConfiguration")
	}
	cfg, err := api.svc.CreateConfiguration(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating survey configuration")
	}
	return ctx.JSON(http.StatusCreated, cfg)
}

func (api *adminApi) createStudy(ctx echo.Context) error {
	var data feedback.NewStudy
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewStudy")
	}
	study, err := api.svc.CreateStudy(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating survey study")
	}
	return ctx.JSON(http.StatusCreated, study)
}

func (api *adminApi) queryResponses(ctx echo.Context) error {
	filter, err := bindResponseFilter(ctx)
	if err != nil {
		return err
	}
	var ord Ordering
	ord.Bind(ctx)

	resps, err := api.svc.QueryResponses(ctx.Request().Context(), filter, ord.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying survey responses")
	}
	return ctx.JSON(http.StatusOK, resps)
}

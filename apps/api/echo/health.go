package echoapi

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const healthTimeout = 2 * time.Second

type healthApi struct {
	deps *Deps
}

func registerHealthAPI(app *echo.Echo, deps *Deps) {
	api := healthApi{deps: deps}

	app.GET("/health", api.health)
	if deps.Gatherer != nil {
		app.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}
}

func (api *healthApi) health(ctx echo.Context) error {
	status := echo.Map{"status": "ok", "build": api.deps.Conf.Build}
	if api.deps.DB != nil {
		pingCtx, cancel := context.WithTimeout(ctx.Request().Context(), healthTimeout)
		defer cancel()
		if err := api.deps.DB.PingContext(pingCtx); err != nil {
			api.deps.Logger.Warn("health: database unreachable", err)
			status["status"] = "db not ready"
			return ctx.JSON(http.StatusServiceUnavailable, status)
		}
	}
	return ctx.JSON(http.StatusOK, status)
}

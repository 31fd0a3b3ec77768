package echoapi

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/trezcool/feedback/core"
	"github.com/trezcool/feedback/core/feedback"
	"github.com/trezcool/feedback/core/user"
)

type (
	Deps struct {
		Conf        *core.Config
		Logger      core.Logger
		DB          *sql.DB // optional; pinged by /health
		FeedbackSvc *feedback.Service
		Users       user.Repository
		Gatherer    prometheus.Gatherer // optional; served on /metrics
	}

	Server interface {
		http.Handler
		Start() error
		Shutdown(ctx context.Context) error
		Close() error
	}

	server struct {
		address    string
		shutdown   chan os.Signal
		deps       *Deps
		app        *echo.Echo
		validate   *validator.Validate
		translator ut.Translator
	}
)

var _ Server = (*server)(nil)

// NewServer builds the HTTP API. shutdown, when not nil, receives a signal whenever
// a handler reports a core shutdown error.
func NewServer(address string, shutdown chan os.Signal, deps *Deps) Server {
	validate, translator := core.NewValidator()
	s := &server{
		address:    address,
		shutdown:   shutdown,
		deps:       deps,
		app:        echo.New(),
		validate:   validate,
		translator: translator,
	}
	s.setup()
	return s
}

func (s *server) setup() {
	conf := s.deps.Conf

	s.app.HideBanner = true
	s.app.Server.ReadTimeout = conf.Server.ReadTimeout
	s.app.Server.WriteTimeout = conf.Server.WriteTimeout

	s.app.Pre(middleware.RemoveTrailingSlash())
	if !conf.TestMode {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.signalShutdown)
	s.app.Debug = conf.Debug && !conf.TestMode

	registerHealthAPI(s.app, s.deps)

	v1 := s.app.Group("/v1")
	jwt := middleware.JWTWithConfig(appJWTConfig(conf))

	registerTriggerAPI(v1, jwt, s.deps.FeedbackSvc, s.deps.Users, s.validate)
	registerAdminAPI(v1, jwt, s.deps.FeedbackSvc)
}

func (s *server) signalShutdown() {
	if s.shutdown == nil {
		return
	}
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func (s *server) Start() error {
	if err := s.app.Start(s.address); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *server) Shutdown(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *server) Close() error {
	return s.app.Close()
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

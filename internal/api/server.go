package api

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/sudankdk/codejudge/internal/apperr"
	"github.com/sudankdk/codejudge/internal/languages"
	"github.com/sudankdk/codejudge/internal/model"
	"github.com/sudankdk/codejudge/internal/problems"
)

// Runner judges submissions. *executer.Judge is the production one.
type Runner interface {
	RunTests(ctx context.Context, mode model.Mode, problemID, language, code string) (model.SubmissionResult, error)
	RunFreeform(ctx context.Context, language, code, stdin string) (model.FreeformResult, error)
}

type Options struct {
	BodyLimit      int
	MaxSourceBytes int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	RateLimitRPS   float64
	RateLimitBurst int
}

type Server struct {
	app       *fiber.App
	runner    Runner
	languages *languages.Registry
	problems  *problems.Catalog
	maxSource int
	limiter   *rateLimiter
	logger    *zerolog.Logger
}

func NewServer(runner Runner, langs *languages.Registry, catalog *problems.Catalog, opts Options, logger *zerolog.Logger) *Server {
	s := &Server{
		runner:    runner,
		languages: langs,
		problems:  catalog,
		maxSource: opts.MaxSourceBytes,
		logger:    logger,
	}
	if opts.RateLimitRPS > 0 {
		s.limiter = newRateLimiter(opts.RateLimitRPS, opts.RateLimitBurst)
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "codejudge",
		BodyLimit:             opts.BodyLimit,
		ReadTimeout:           opts.ReadTimeout,
		WriteTimeout:          opts.WriteTimeout,
		DisableStartupMessage: true,
		ErrorHandler:          s.errorHandler,
	})
	s.app.Use(recover.New())
	s.app.Use(requestLogger(logger))
	s.setupRoutes(s.app)
	return s
}

func (s *Server) setupRoutes(app *fiber.App) {
	app.Get("/health", s.healthHandler)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	app.Get("/languages", s.languagesHandler)
	app.Get("/problem/:problemId", s.problemHandler)
	app.Get("/problem/:problemId/template/:language", s.templateHandler)

	limit := func(c *fiber.Ctx) error { return c.Next() }
	if s.limiter != nil {
		limit = s.limiter.middleware()
	}
	app.Post("/run", limit, s.runHandler)
	app.Post("/submit", limit, s.submitHandler)
}

func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) Listen(addr string) error {
	s.logger.Info().Str("addr", addr).Msg("starting HTTP server")
	if s.limiter != nil {
		go s.limiter.cleanupLoop(limiterSweepInterval)
	}
	return s.app.Listen(addr)
}

// Shutdown stops accepting requests and waits for in-flight ones, which
// includes any running containers, until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down HTTP server")
	if s.limiter != nil {
		s.limiter.stop()
	}
	return s.app.ShutdownWithContext(ctx)
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		err = fromFiberError(fe)
	}
	appErr := apperr.As(err)

	event := s.logger.Warn()
	if appErr.HTTPStatus() >= fiber.StatusInternalServerError {
		event = s.logger.Error()
	}
	event.Err(appErr.DebugInfo()).
		Str("code", appErr.Code()).
		Str("path", c.Path()).
		Msg(appErr.Error())

	return c.Status(appErr.HTTPStatus()).JSON(errorResponse{Error: appErr.Error(), Code: appErr.Code()})
}

func fromFiberError(fe *fiber.Error) *apperr.Error {
	switch fe.Code {
	case fiber.StatusRequestEntityTooLarge:
		return apperr.PayloadTooLarge()
	case fiber.StatusTooManyRequests:
		return apperr.RateLimited()
	case fiber.StatusNotFound:
		return apperr.New("not_found", fe.Message).WithStatus(fe.Code)
	}
	if fe.Code < fiber.StatusInternalServerError {
		return apperr.InvalidRequest(fe.Message).WithStatus(fe.Code)
	}
	return apperr.Internal().WithDebug(fe)
}

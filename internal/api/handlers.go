package api

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sudankdk/codejudge/internal/apperr"
	"github.com/sudankdk/codejudge/internal/languages"
	"github.com/sudankdk/codejudge/internal/model"
	"github.com/sudankdk/codejudge/internal/problems"
	"github.com/sudankdk/codejudge/internal/sandbox"
)

// RunRequest is free-form when ProblemID is empty, judged otherwise.
type RunRequest struct {
	Code      string `json:"code"`
	Language  string `json:"language"`
	Input     string `json:"input"`
	ProblemID string `json:"problemId"`
}

type SubmitRequest struct {
	Code      string `json:"code"`
	Language  string `json:"language"`
	ProblemID string `json:"problemId"`
}

type TestResultsResponse struct {
	TestResults []model.TestResult `json:"testResults"`
}

type SubmitResponse struct {
	model.SubmissionResult
	ExecutionTime string `json:"executionTime"`
	Memory        string `json:"memory"`
	SubmissionID  string `json:"submissionId"`
}

type languageInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (s *Server) healthHandler(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "OK",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) languagesHandler(c *fiber.Ctx) error {
	profiles := s.languages.List()
	out := make([]languageInfo, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, languageInfo{ID: p.ID, Name: p.Name})
	}
	return c.JSON(out)
}

func (s *Server) problemHandler(c *fiber.Ctx) error {
	id := c.Params("problemId")
	problem, err := s.problems.Get(id)
	if err != nil {
		return apperr.ProblemNotFound(id)
	}
	return c.JSON(problem)
}

func (s *Server) templateHandler(c *fiber.Ctx) error {
	id := c.Params("problemId")
	problem, err := s.problems.Get(id)
	if err != nil {
		return apperr.ProblemNotFound(id)
	}
	tmpl, ok := problem.Template(c.Params("language"))
	if !ok {
		return apperr.TemplateNotFound()
	}
	return c.JSON(fiber.Map{"template": tmpl})
}

func (s *Server) runHandler(c *fiber.Ctx) error {
	var req RunRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.InvalidRequest("invalid request body").WithDebug(err)
	}
	if err := s.validate(req.Language, req.Code, req.ProblemID); err != nil {
		return err
	}

	ctx := c.UserContext()
	if req.ProblemID == "" {
		res, err := s.runner.RunFreeform(ctx, req.Language, req.Code, req.Input)
		if err != nil {
			return mapRunError(err)
		}
		return c.JSON(res)
	}

	res, err := s.runner.RunTests(ctx, model.ModeRun, req.ProblemID, req.Language, req.Code)
	if err != nil {
		return mapRunError(err)
	}
	return c.JSON(TestResultsResponse{TestResults: res.TestResults})
}

func (s *Server) submitHandler(c *fiber.Ctx) error {
	var req SubmitRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.InvalidRequest("invalid request body").WithDebug(err)
	}
	if req.ProblemID == "" {
		return apperr.InvalidRequest("problemId is required")
	}
	if err := s.validate(req.Language, req.Code, req.ProblemID); err != nil {
		return err
	}

	res, err := s.runner.RunTests(c.UserContext(), model.ModeSubmit, req.ProblemID, req.Language, req.Code)
	if err != nil {
		return mapRunError(err)
	}

	timeMs, memoryKB := res.Usage()
	return c.JSON(SubmitResponse{
		SubmissionResult: res,
		ExecutionTime:    model.FormatDuration(timeMs),
		Memory:           model.FormatMemory(memoryKB),
		SubmissionID:     "sub_" + uuid.NewString(),
	})
}

// validate rejects a request before any workspace or container exists.
func (s *Server) validate(language, code, problemID string) error {
	if language == "" {
		return apperr.InvalidRequest("language is required")
	}
	if strings.TrimSpace(code) == "" {
		return apperr.EmptyCode()
	}
	if s.maxSource > 0 && len(code) > s.maxSource {
		return apperr.PayloadTooLarge()
	}
	if _, err := s.languages.Get(language); err != nil {
		return apperr.UnsupportedLanguage(language)
	}
	if problemID != "" {
		if _, err := s.problems.Get(problemID); err != nil {
			return apperr.ProblemNotFound(problemID)
		}
	}
	return nil
}

func mapRunError(err error) error {
	switch {
	case errors.Is(err, sandbox.ErrOverloaded):
		return apperr.Overloaded().WithDebug(err)
	case errors.Is(err, languages.ErrLanguageNotFound):
		return apperr.New(apperr.CodeUnsupportedLanguage, "language not supported").WithStatus(fiber.StatusBadRequest).WithDebug(err)
	case errors.Is(err, problems.ErrProblemNotFound):
		return apperr.New(apperr.CodeProblemNotFound, "problem not found").WithStatus(fiber.StatusNotFound).WithDebug(err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return apperr.New(apperr.CodeExecutionFailed, "request cancelled").WithStatus(fiber.StatusServiceUnavailable).WithDebug(err)
	}
	return apperr.ExecutionFailed().WithDebug(err)
}

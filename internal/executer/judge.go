package executer

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/sudankdk/codejudge/internal/harness"
	"github.com/sudankdk/codejudge/internal/languages"
	"github.com/sudankdk/codejudge/internal/metrics"
	"github.com/sudankdk/codejudge/internal/model"
	"github.com/sudankdk/codejudge/internal/problems"
	"github.com/sudankdk/codejudge/internal/sandbox"
	"github.com/sudankdk/codejudge/internal/workspace"
	"golang.org/x/sync/errgroup"
)

type JudgeOptions struct {
	// RunCases is how many leading cases run mode judges.
	RunCases int
	// Parallelism bounds concurrent test cases of one submission.
	Parallelism int
}

// Judge turns a submission into harnessed programs, runs them and compares
// their output with the expected answers.
type Judge struct {
	languages  *languages.Registry
	problems   *problems.Catalog
	harness    *harness.Generator
	workspaces *workspace.Manager
	sandbox    Sandbox
	opts       JudgeOptions
	logger     *zerolog.Logger
}

func NewJudge(
	langs *languages.Registry,
	catalog *problems.Catalog,
	gen *harness.Generator,
	workspaces *workspace.Manager,
	sb Sandbox,
	opts JudgeOptions,
	logger *zerolog.Logger,
) *Judge {
	if opts.RunCases <= 0 {
		opts.RunCases = 2
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = 1
	}
	return &Judge{
		languages:  langs,
		problems:   catalog,
		harness:    gen,
		workspaces: workspaces,
		sandbox:    sb,
		opts:       opts,
		logger:     logger,
	}
}

// RunTests judges code against the problem's cases: the first few in run
// mode, all of them in submit mode. A failing case never stops the others;
// only sandbox errors abort the whole call.
func (j *Judge) RunTests(ctx context.Context, mode model.Mode, problemID, language, code string) (model.SubmissionResult, error) {
	profile, err := j.languages.Get(language)
	if err != nil {
		return model.SubmissionResult{}, err
	}
	problem, err := j.problems.Get(problemID)
	if err != nil {
		return model.SubmissionResult{}, err
	}

	n := 0
	if mode == model.ModeRun {
		n = j.opts.RunCases
	}
	cases := problem.Cases(n)

	results := make([]model.TestResult, len(cases))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.opts.Parallelism)
	for i, tc := range cases {
		g.Go(func() error {
			r, err := j.runCase(gctx, profile, problem.ID, code, tc)
			if err != nil {
				return fmt.Errorf("test %d: %w", tc.ID, err)
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return model.SubmissionResult{}, err
	}

	passed := 0
	for _, r := range results {
		if r.Passed {
			passed++
		}
	}
	j.logger.Info().
		Str("problem_id", problem.ID).
		Str("language", profile.ID).
		Str("mode", string(mode)).
		Int("passed", passed).
		Int("total", len(results)).
		Msg("tests judged")

	return model.SubmissionResult{
		Accepted:    passed == len(results),
		PassedCount: passed,
		TotalCount:  len(results),
		TestResults: results,
	}, nil
}

func (j *Judge) runCase(ctx context.Context, profile languages.Profile, problemID, code string, tc problems.TestCase) (model.TestResult, error) {
	src, err := j.harness.Literal(profile, code, problemID, tc)
	if err != nil {
		return model.TestResult{}, err
	}

	var out sandbox.Outcome
	err = j.workspaces.With(fmt.Sprintf("test_%d", tc.ID), profile.SourceFile, src, func(ws workspace.Workspace) error {
		var err error
		out, err = j.sandbox.Execute(ctx, profile, ws, "")
		return err
	})
	if err != nil {
		return model.TestResult{}, err
	}

	r := model.TestResult{
		ID:             tc.ID,
		Input:          tc.DisplayInput(),
		ExpectedOutput: tc.Expected,
	}
	r.SetUsage(out.TimeMs, out.MemoryKB)

	switch out.Failure {
	case sandbox.FailureCompile:
		r.ActualOutput = "Compilation Error: " + diagnostics(out)
	case sandbox.FailureTimeout:
		r.ActualOutput = "Time Limit Exceeded"
	case sandbox.FailureRuntime:
		r.ActualOutput = "Runtime Error: " + diagnostics(out)
	default:
		r.ActualOutput = out.Stdout
		r.Passed = out.Stdout == tc.Expected
	}
	r.Error = string(out.Failure)

	verdict := "passed"
	switch {
	case out.Failure != sandbox.FailureNone:
		verdict = string(out.Failure)
	case !r.Passed:
		verdict = "wrong_answer"
	}
	metrics.TestCasesTotal.WithLabelValues(verdict).Inc()
	j.logger.Debug().Str("problem_id", problemID).Int("test_id", tc.ID).Str("verdict", verdict).Msg("test judged")
	return r, nil
}

// RunFreeform runs code as a whole program with stdin attached and returns
// what it printed. Compile errors land in Error.
func (j *Judge) RunFreeform(ctx context.Context, language, code, stdin string) (model.FreeformResult, error) {
	profile, err := j.languages.Get(language)
	if err != nil {
		return model.FreeformResult{}, err
	}
	src, err := j.harness.Stdin(profile, code)
	if err != nil {
		return model.FreeformResult{}, err
	}

	var out sandbox.Outcome
	err = j.workspaces.With("run", profile.SourceFile, src, func(ws workspace.Workspace) error {
		var err error
		out, err = j.sandbox.Execute(ctx, profile, ws, stdin)
		return err
	})
	if err != nil {
		return model.FreeformResult{}, err
	}

	res := model.FreeformResult{Output: out.Stdout, Error: out.Stderr}
	if out.Failure == sandbox.FailureRuntime && res.Error == "" {
		res.Error = fmt.Sprintf("process exited with code %d", out.ExitCode)
	}
	return res, nil
}

func diagnostics(out sandbox.Outcome) string {
	if out.Stderr != "" {
		return out.Stderr
	}
	if out.Stdout != "" {
		return out.Stdout
	}
	return fmt.Sprintf("exit code %d", out.ExitCode)
}

package executer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sudankdk/codejudge/internal/docker"
	"github.com/sudankdk/codejudge/internal/languages"
	"github.com/sudankdk/codejudge/internal/metrics"
	"github.com/sudankdk/codejudge/internal/sandbox"
	"github.com/sudankdk/codejudge/internal/workspace"
)

// how long a killed execution gets to unwind before Execute stops waiting
const killGrace = 2 * time.Second

// Sandbox runs one program in isolation. Executor is the Docker backed one.
type Sandbox interface {
	Execute(ctx context.Context, profile languages.Profile, ws workspace.Workspace, stdin string) (sandbox.Outcome, error)
}

type Executor struct {
	docker *docker.Client
	pool   *docker.Pool
	limits sandbox.Limits
	user   string
	logger *zerolog.Logger
}

type ExecutorOptions struct {
	Limits sandbox.Limits
	// User overrides the unprivileged user the program runs as.
	User string
}

func NewExecutor(d *docker.Client, pool *docker.Pool, opts ExecutorOptions, logger *zerolog.Logger) *Executor {
	return &Executor{
		docker: d,
		pool:   pool,
		limits: opts.Limits,
		user:   opts.User,
		logger: logger,
	}
}

type execResult struct {
	outcome sandbox.Outcome
	err     error
}

// Execute compiles (when the language needs it) and runs the workspace's
// source in a fresh container, feeding stdin to the program. The container
// is removed before Execute returns on every path.
//
// Compile errors, runtime errors and timeouts are reported in the Outcome.
// A returned error means the sandbox itself failed (sandbox.ErrInfrastructure),
// no slot was free (sandbox.ErrOverloaded) or ctx ended.
func (e *Executor) Execute(ctx context.Context, profile languages.Profile, ws workspace.Workspace, stdin string) (sandbox.Outcome, error) {
	release, err := e.pool.Acquire(ctx)
	if err != nil {
		return sandbox.Outcome{}, err
	}
	defer release()

	logger := e.logger.With().Str("language", profile.ID).Str("workspace", ws.Dir).Logger()
	start := time.Now()

	cfg := sandbox.NewConfig(profile.Image, ws.Dir, e.limits, map[string]string{docker.LabelLanguage: profile.ID})
	if e.user != "" {
		cfg.User = e.user
	}
	id, err := e.docker.CreateContainer(ctx, cfg)
	if err != nil {
		return e.fail(profile, err)
	}
	// not tied to ctx: a cancelled request still has to clean up
	defer e.docker.Remove(context.Background(), id)
	logger = logger.With().Str("container", shortID(id)).Logger()

	runCtx, cancel := context.WithTimeout(ctx, e.limits.Timeout)
	defer cancel()

	done := make(chan execResult, 1)
	go func() {
		out, err := e.compileAndRun(runCtx, profile, id, stdin)
		done <- execResult{outcome: out, err: err}
	}()

	var (
		res      execResult
		received bool
	)
	select {
	case res = <-done:
		received = true
	case <-runCtx.Done():
	}

	if !received || (res.err != nil && runCtx.Err() != nil) {
		if err := e.docker.Kill(context.Background(), id); err != nil {
			logger.Warn().Err(err).Msg("failed to kill container")
		}
		if !received {
			select {
			case <-done:
			case <-time.After(killGrace):
				logger.Warn().Msg("execution did not unwind after kill")
			}
		}
		if ctx.Err() != nil {
			return sandbox.Outcome{}, ctx.Err()
		}
		logger.Warn().Dur("timeout", e.limits.Timeout).Msg("execution timed out")
		e.observe(profile, sandbox.FailureTimeout, start)
		return sandbox.Outcome{
			Stderr:   fmt.Sprintf("Execution timeout after %s", e.limits.Timeout),
			ExitCode: -1,
			Failure:  sandbox.FailureTimeout,
			TimeMs:   e.limits.Timeout.Milliseconds(),
		}, nil
	}

	if res.err != nil {
		return e.fail(profile, res.err)
	}

	out := res.outcome
	logger.Debug().Str("failure", string(out.Failure)).Int("exit_code", out.ExitCode).Int64("time_ms", out.TimeMs).Msg("execution finished")
	e.observe(profile, out.Failure, start)
	if out.MemoryKB > 0 {
		metrics.MemoryUsage.WithLabelValues(profile.ID).Observe(float64(out.MemoryKB))
	}
	return out, nil
}

func (e *Executor) compileAndRun(ctx context.Context, profile languages.Profile, id, stdin string) (sandbox.Outcome, error) {
	if profile.Compiled() {
		start := time.Now()
		res, err := e.docker.Exec(ctx, id, profile.CompileCmd, nil, e.limits.MaxOutput)
		if err != nil {
			return sandbox.Outcome{}, fmt.Errorf("compile: %w", err)
		}
		metrics.ExecutionDuration.WithLabelValues(profile.ID, "compile").Observe(float64(time.Since(start).Milliseconds()))

		// compilers report diagnostics on stderr even when they exit 0
		if res.ExitCode != 0 || strings.TrimSpace(res.Stderr) != "" {
			return sandbox.Outcome{
				Stdout:   strings.TrimSpace(res.Stdout),
				Stderr:   strings.TrimSpace(res.Stderr),
				ExitCode: res.ExitCode,
				Failure:  sandbox.FailureCompile,
			}, nil
		}
	}

	start := time.Now()
	res, err := e.docker.Exec(ctx, id, profile.RunCmd, strings.NewReader(stdin), e.limits.MaxOutput)
	if err != nil {
		return sandbox.Outcome{}, fmt.Errorf("run: %w", err)
	}
	elapsed := time.Since(start)
	metrics.ExecutionDuration.WithLabelValues(profile.ID, "run").Observe(float64(elapsed.Milliseconds()))

	out := sandbox.Outcome{
		Stdout:   strings.TrimSpace(res.Stdout),
		Stderr:   strings.TrimSpace(res.Stderr),
		ExitCode: res.ExitCode,
		TimeMs:   elapsed.Milliseconds(),
	}
	if res.ExitCode != 0 {
		out.Failure = sandbox.FailureRuntime
	}

	if kb, err := e.docker.MemoryKB(ctx, id); err == nil {
		out.MemoryKB = kb
	} else {
		e.logger.Debug().Err(err).Msg("memory stats unavailable")
	}
	return out, nil
}

func (e *Executor) fail(profile languages.Profile, err error) (sandbox.Outcome, error) {
	e.logger.Error().Err(err).Str("language", profile.ID).Msg("sandbox failure")
	metrics.ExecutionsTotal.WithLabelValues(profile.ID, "failed").Inc()
	return sandbox.Outcome{}, fmt.Errorf("%w: %w", sandbox.ErrInfrastructure, err)
}

func (e *Executor) observe(profile languages.Profile, failure sandbox.Failure, start time.Time) {
	status := string(failure)
	if failure == sandbox.FailureNone {
		status = "ok"
	}
	metrics.ExecutionsTotal.WithLabelValues(profile.ID, status).Inc()
	metrics.ExecutionDuration.WithLabelValues(profile.ID, "total").Observe(float64(time.Since(start).Milliseconds()))
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

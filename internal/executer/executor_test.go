package executer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sudankdk/codejudge/internal/docker"
	"github.com/sudankdk/codejudge/internal/docker/dockertest"
	"github.com/sudankdk/codejudge/internal/languages"
	"github.com/sudankdk/codejudge/internal/sandbox"
	"github.com/sudankdk/codejudge/internal/workspace"
)

func testLimits() sandbox.Limits {
	limits := sandbox.DefaultLimits()
	limits.Timeout = 200 * time.Millisecond
	return limits
}

func newTestExecutor(t *testing.T, limits sandbox.Limits, pool *docker.Pool) (*dockertest.Fake, *Executor) {
	t.Helper()
	fake := dockertest.New()
	logger := zerolog.Nop()
	if pool == nil {
		pool = docker.NewPool(4, 0)
	}
	return fake, NewExecutor(docker.New(fake, &logger), pool, ExecutorOptions{Limits: limits}, &logger)
}

func profile(t *testing.T, id string) languages.Profile {
	t.Helper()
	reg, err := languages.Load("")
	require.NoError(t, err)
	p, err := reg.Get(id)
	require.NoError(t, err)
	return p
}

func testWorkspace(t *testing.T) workspace.Workspace {
	dir := t.TempDir()
	return workspace.Workspace{Dir: dir, SourcePath: dir + "/main.c"}
}

func TestExecuteCompileThenRun(t *testing.T) {
	fake, e := newTestExecutor(t, testLimits(), nil)
	fake.MemoryUsage = 4 << 20
	fake.OnExec = func(cmd []string, stdin []byte) dockertest.Reply {
		if cmd[0] == "gcc" {
			return dockertest.Reply{}
		}
		return dockertest.Reply{Stdout: "17\n"}
	}

	out, err := e.Execute(context.Background(), profile(t, "c"), testWorkspace(t), "")
	require.NoError(t, err)
	assert.True(t, out.OK())
	assert.Equal(t, "17", out.Stdout)
	assert.Equal(t, int64(4096), out.MemoryKB)

	require.Len(t, fake.Execs, 2)
	assert.Equal(t, "gcc", fake.Execs[0][0])
	assert.Equal(t, []string{"/code/main"}, fake.Execs[1])
	assert.Equal(t, 0, fake.Live())
	require.Len(t, fake.Created, 1)
	assert.Equal(t, "gcc:13", fake.Created[0].Config.Image)
}

func TestExecuteCompileErrorSkipsRun(t *testing.T) {
	fake, e := newTestExecutor(t, testLimits(), nil)
	fake.OnExec = func(cmd []string, stdin []byte) dockertest.Reply {
		return dockertest.Reply{Stderr: "main.c:3: error: expected ';'\n", ExitCode: 1}
	}

	out, err := e.Execute(context.Background(), profile(t, "c"), testWorkspace(t), "")
	require.NoError(t, err)
	assert.Equal(t, sandbox.FailureCompile, out.Failure)
	assert.Equal(t, "main.c:3: error: expected ';'", out.Stderr)
	assert.Len(t, fake.Execs, 1)
	assert.Equal(t, 0, fake.Live())
}

func TestExecuteCompileStderrCountsAsFailure(t *testing.T) {
	fake, e := newTestExecutor(t, testLimits(), nil)
	fake.OnExec = func(cmd []string, stdin []byte) dockertest.Reply {
		return dockertest.Reply{Stderr: "Note: Solution.java uses unchecked or unsafe operations."}
	}

	out, err := e.Execute(context.Background(), profile(t, "java"), testWorkspace(t), "")
	require.NoError(t, err)
	assert.Equal(t, sandbox.FailureCompile, out.Failure)
	assert.Len(t, fake.Execs, 1)
}

func TestExecuteRuntimeError(t *testing.T) {
	fake, e := newTestExecutor(t, testLimits(), nil)
	fake.OnExec = func(cmd []string, stdin []byte) dockertest.Reply {
		return dockertest.Reply{Stderr: "ZeroDivisionError: division by zero\n", ExitCode: 1}
	}

	out, err := e.Execute(context.Background(), profile(t, "python"), testWorkspace(t), "")
	require.NoError(t, err)
	assert.Equal(t, sandbox.FailureRuntime, out.Failure)
	assert.Equal(t, 1, out.ExitCode)
	assert.Equal(t, [][]string{{"python3", "/code/solution.py"}}, fake.Execs)
}

func TestExecuteDeliversStdin(t *testing.T) {
	fake, e := newTestExecutor(t, testLimits(), nil)
	fake.OnExec = func(cmd []string, stdin []byte) dockertest.Reply {
		return dockertest.Reply{Stdout: "got " + string(stdin)}
	}

	out, err := e.Execute(context.Background(), profile(t, "python"), testWorkspace(t), "3 4\n")
	require.NoError(t, err)
	assert.Equal(t, "got 3 4", out.Stdout)
	assert.Equal(t, []string{"3 4\n"}, fake.Stdins)
}

func TestExecuteTimeoutKillsAndRemoves(t *testing.T) {
	fake, e := newTestExecutor(t, testLimits(), nil)
	fake.OnExec = func(cmd []string, stdin []byte) dockertest.Reply {
		return dockertest.Reply{Delay: time.Minute}
	}

	start := time.Now()
	out, err := e.Execute(context.Background(), profile(t, "python"), testWorkspace(t), "")
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)

	assert.Equal(t, sandbox.FailureTimeout, out.Failure)
	assert.Len(t, fake.Killed, 1)
	assert.Equal(t, 0, fake.Live())
}

func TestExecuteCallerCancelled(t *testing.T) {
	fake, e := newTestExecutor(t, sandbox.DefaultLimits(), nil)
	fake.OnExec = func(cmd []string, stdin []byte) dockertest.Reply {
		return dockertest.Reply{Delay: time.Minute}
	}

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)
	_, err := e.Execute(ctx, profile(t, "python"), testWorkspace(t), "")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, fake.Live())
}

func TestExecuteInfrastructureErrors(t *testing.T) {
	t.Run("create", func(t *testing.T) {
		fake, e := newTestExecutor(t, testLimits(), nil)
		fake.CreateErr = errors.New("no space left on device")

		_, err := e.Execute(context.Background(), profile(t, "c"), testWorkspace(t), "")
		assert.ErrorIs(t, err, sandbox.ErrInfrastructure)
		assert.ErrorIs(t, err, fake.CreateErr)
	})

	t.Run("exec", func(t *testing.T) {
		fake, e := newTestExecutor(t, testLimits(), nil)
		fake.ExecErr = errors.New("container is not running")

		_, err := e.Execute(context.Background(), profile(t, "c"), testWorkspace(t), "")
		assert.ErrorIs(t, err, sandbox.ErrInfrastructure)
		assert.Equal(t, 0, fake.Live())
	})
}

func TestExecuteOverloaded(t *testing.T) {
	pool := docker.NewPool(1, 0)
	fake, e := newTestExecutor(t, testLimits(), pool)

	release, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	defer release()

	_, err = e.Execute(context.Background(), profile(t, "c"), testWorkspace(t), "")
	assert.ErrorIs(t, err, sandbox.ErrOverloaded)
	assert.Empty(t, fake.Created)
}

func TestExecuteUserOverride(t *testing.T) {
	fake := dockertest.New()
	logger := zerolog.Nop()
	e := NewExecutor(docker.New(fake, &logger), docker.NewPool(1, 0), ExecutorOptions{Limits: testLimits(), User: "65534:65534"}, &logger)

	_, err := e.Execute(context.Background(), profile(t, "python"), testWorkspace(t), "")
	require.NoError(t, err)
	require.Len(t, fake.Created, 1)
	assert.Equal(t, "65534:65534", fake.Created[0].Config.User)
	assert.Equal(t, "python", fake.Created[0].Config.Labels[docker.LabelLanguage])
}

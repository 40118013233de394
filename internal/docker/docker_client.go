package docker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/rs/zerolog"
	"github.com/sudankdk/codejudge/internal/metrics"
	"github.com/sudankdk/codejudge/internal/sandbox"
)

const (
	LabelManaged  = "codejudge.managed"
	LabelLanguage = "codejudge.language"
)

// exec inspect polling after the attach stream closes
const inspectInterval = 10 * time.Millisecond

type Client struct {
	d      API
	logger *zerolog.Logger
}

func New(d API, logger *zerolog.Logger) *Client {
	return &Client{d: d, logger: logger}
}

type ExecResult struct {
	Stdout    string
	Stderr    string
	ExitCode  int
	Truncated bool
}

// CreateContainer creates and starts an idle container for one execution.
// The container only runs a bounded sleep; work happens through Exec.
func (c *Client) CreateContainer(ctx context.Context, sb sandbox.Config) (string, error) {
	start := time.Now()
	labels := map[string]string{LabelManaged: "true"}
	for k, v := range sb.Labels {
		labels[k] = v
	}
	pids := sb.Limits.PidsLimit

	resp, err := c.d.ContainerCreate(ctx,
		&container.Config{
			Image:           sb.Image,
			Cmd:             []string{"sleep", keepAlive(sb.Limits.Timeout)},
			WorkingDir:      sb.WorkingDir,
			User:            sb.User,
			Labels:          labels,
			Tty:             false,
			NetworkDisabled: true,
		},
		&container.HostConfig{
			AutoRemove:     false,
			Binds:          sb.Binds,
			NetworkMode:    "none",
			ReadonlyRootfs: true,
			Tmpfs:          sb.Tmpfs,
			CapDrop:        []string{"ALL"},
			SecurityOpt:    []string{"no-new-privileges"},
			Resources: container.Resources{
				Memory:     sb.Limits.Memory,
				MemorySwap: sb.Limits.Memory, // no swap
				CPUPeriod:  sb.Limits.CPUPeriod,
				CPUQuota:   sb.Limits.CPUQuota,
				PidsLimit:  &pids,
				Ulimits:    sb.Ulimits,
			},
		},
		nil, nil, "",
	)
	if err != nil {
		return "", fmt.Errorf("create container: %w", err)
	}

	if err := c.d.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		c.Remove(context.Background(), resp.ID)
		return "", fmt.Errorf("start container %s: %w", shortID(resp.ID), err)
	}

	metrics.ContainerCreationTime.Observe(float64(time.Since(start).Milliseconds()))
	c.logger.Debug().Str("container", shortID(resp.ID)).Str("image", sb.Image).Msg("container started")
	return resp.ID, nil
}

// Exec runs cmd inside the container and waits for it to finish. stdin, if
// not nil, is copied to the process and then half-closed so reads see EOF.
// At most maxOutput bytes of the multiplexed stream are kept; the rest is
// drained so the process never blocks on a full pipe.
func (c *Client) Exec(ctx context.Context, containerID string, cmd []string, stdin io.Reader, maxOutput int64) (ExecResult, error) {
	execResp, err := c.d.ContainerExecCreate(ctx, containerID, container.ExecOptions{
		Cmd:          cmd,
		AttachStdout: true,
		AttachStderr: true,
		AttachStdin:  stdin != nil,
		Tty:          false,
		WorkingDir:   sandbox.MountPath,
	})
	if err != nil {
		return ExecResult{}, fmt.Errorf("create exec: %w", err)
	}

	attach, err := c.d.ContainerExecAttach(ctx, execResp.ID, container.ExecAttachOptions{})
	if err != nil {
		return ExecResult{}, fmt.Errorf("attach exec: %w", err)
	}
	defer attach.Close()

	finished := make(chan struct{})
	defer close(finished)
	go func() {
		select {
		case <-ctx.Done():
			// unblocks the read below
			attach.Close()
		case <-finished:
		}
	}()

	if stdin != nil {
		go func() {
			if _, err := io.Copy(attach.Conn, stdin); err != nil {
				c.logger.Debug().Err(err).Msg("stdin copy stopped")
			}
			_ = attach.CloseWrite()
		}()
	}

	out := &cappedBuffer{max: maxOutput}
	if _, err := io.Copy(out, attach.Reader); err != nil && ctx.Err() == nil {
		return ExecResult{}, fmt.Errorf("read exec output: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return ExecResult{}, err
	}

	exitCode, err := c.waitExec(ctx, execResp.ID)
	if err != nil {
		return ExecResult{}, err
	}

	stdout, stderr := Demux(out.Bytes())
	return ExecResult{
		Stdout:    string(stdout),
		Stderr:    string(stderr),
		ExitCode:  exitCode,
		Truncated: out.truncated,
	}, nil
}

func (c *Client) waitExec(ctx context.Context, execID string) (int, error) {
	for {
		inspect, err := c.d.ContainerExecInspect(ctx, execID)
		if err != nil {
			return 0, fmt.Errorf("inspect exec: %w", err)
		}
		if !inspect.Running {
			return inspect.ExitCode, nil
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(inspectInterval):
		}
	}
}

func (c *Client) Kill(ctx context.Context, containerID string) error {
	if err := c.d.ContainerKill(ctx, containerID, "SIGKILL"); err != nil && !client.IsErrNotFound(err) {
		return fmt.Errorf("kill container %s: %w", shortID(containerID), err)
	}
	return nil
}

// Remove force-removes the container. Failures are logged, not returned:
// the reaper picks up anything left behind.
func (c *Client) Remove(ctx context.Context, containerID string) {
	err := c.d.ContainerRemove(ctx, containerID, container.RemoveOptions{
		Force:         true,
		RemoveVolumes: true,
	})
	if err != nil && !client.IsErrNotFound(err) {
		c.logger.Error().Err(err).Str("container", shortID(containerID)).Msg("failed to remove container")
		return
	}
	c.logger.Debug().Str("container", shortID(containerID)).Msg("container removed")
}

// MemoryKB reports the container's peak memory usage where the cgroup
// exposes it and the current usage otherwise.
func (c *Client) MemoryKB(ctx context.Context, containerID string) (int64, error) {
	stats, err := c.d.ContainerStatsOneShot(ctx, containerID)
	if err != nil {
		return 0, fmt.Errorf("container stats: %w", err)
	}
	defer stats.Body.Close()

	var s container.StatsResponse
	if err := json.NewDecoder(stats.Body).Decode(&s); err != nil {
		return 0, fmt.Errorf("decode stats: %w", err)
	}
	usage := s.MemoryStats.MaxUsage
	if usage == 0 {
		usage = s.MemoryStats.Usage
	}
	return int64(usage / 1024), nil
}

func (c *Client) ListManaged(ctx context.Context) ([]container.Summary, error) {
	return c.d.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", LabelManaged+"=true")),
	})
}

// keepAlive outlives any single execution so a container orphaned by a crash
// still stops on its own.
func keepAlive(timeout time.Duration) string {
	secs := int(timeout.Seconds())*3 + 30
	return strconv.Itoa(secs)
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

type cappedBuffer struct {
	buf       bytes.Buffer
	max       int64
	truncated bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	if b.max <= 0 {
		b.buf.Write(p)
		return len(p), nil
	}
	room := b.max - int64(b.buf.Len())
	if room <= 0 {
		b.truncated = b.truncated || len(p) > 0
		return len(p), nil
	}
	if int64(len(p)) > room {
		b.buf.Write(p[:room])
		b.truncated = true
		return len(p), nil
	}
	b.buf.Write(p)
	return len(p), nil
}

func (b *cappedBuffer) Bytes() []byte {
	return b.buf.Bytes()
}

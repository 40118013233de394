// Package dockertest provides an in-memory stand-in for the Docker Engine API
// so container lifecycles can be tested without a daemon.
package dockertest

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/stdcopy"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// Reply is what a fake exec prints and how it exits.
type Reply struct {
	Stdout   string
	Stderr   string
	ExitCode int
	// Delay holds the process open; a kill ends it early with exit 137.
	Delay time.Duration
	// Chunk splits stdout into frames of at most this many bytes.
	Chunk int
}

// ExecFunc decides the outcome of one exec. stdin is nil unless the exec
// attached it.
type ExecFunc func(cmd []string, stdin []byte) Reply

type Created struct {
	ID         string
	Config     *container.Config
	HostConfig *container.HostConfig
}

type Fake struct {
	mu sync.Mutex

	Images map[string]bool
	Pulled []string

	Created []Created
	Killed  []string
	Removed []string
	Execs   [][]string
	Stdins  []string

	// Listed overrides what ContainerList returns.
	Listed []container.Summary

	OnExec      ExecFunc
	MemoryUsage uint64

	InspectErr error
	PullErr    error
	CreateErr  error
	StartErr   error
	ExecErr    error

	live   map[string]*fakeContainer
	execs  map[string]*fakeExec
	nextID int
}

type fakeContainer struct {
	killed   chan struct{}
	killOnce sync.Once
	created  time.Time
	labels   map[string]string
}

type fakeExec struct {
	containerID string
	cmd         []string
	stdin       bool
	running     bool
	exitCode    int
}

func New() *Fake {
	return &Fake{
		Images: map[string]bool{},
		live:   map[string]*fakeContainer{},
		execs:  map[string]*fakeExec{},
	}
}

// NotFound builds an error the client classifies as not found.
func NotFound(what string) error {
	return errdefs.NotFound(fmt.Errorf("no such %s", what))
}

// Live reports containers that were created and not yet removed.
func (f *Fake) Live() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.live)
}

func (f *Fake) ImageInspect(_ context.Context, ref string, _ ...client.ImageInspectOption) (image.InspectResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.InspectErr != nil {
		return image.InspectResponse{}, f.InspectErr
	}
	if !f.Images[ref] {
		return image.InspectResponse{}, NotFound("image: " + ref)
	}
	return image.InspectResponse{ID: "sha256:" + ref}, nil
}

func (f *Fake) ImagePull(_ context.Context, ref string, _ image.PullOptions) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PullErr != nil {
		return nil, f.PullErr
	}
	f.Pulled = append(f.Pulled, ref)
	f.Images[ref] = true
	return io.NopCloser(bytes.NewBufferString(`{"status":"Pull complete"}`)), nil
}

func (f *Fake) ContainerCreate(_ context.Context, cfg *container.Config, hostCfg *container.HostConfig, _ *network.NetworkingConfig, _ *ocispec.Platform, _ string) (container.CreateResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateErr != nil {
		return container.CreateResponse{}, f.CreateErr
	}
	f.nextID++
	id := fmt.Sprintf("%064d", f.nextID)
	f.live[id] = &fakeContainer{killed: make(chan struct{}), created: time.Now(), labels: cfg.Labels}
	f.Created = append(f.Created, Created{ID: id, Config: cfg, HostConfig: hostCfg})
	return container.CreateResponse{ID: id}, nil
}

func (f *Fake) ContainerStart(_ context.Context, id string, _ container.StartOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.live[id]; !ok {
		return NotFound("container: " + id)
	}
	return f.StartErr
}

func (f *Fake) ContainerKill(_ context.Context, id, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.live[id]
	if !ok {
		return NotFound("container: " + id)
	}
	f.Killed = append(f.Killed, id)
	c.killOnce.Do(func() { close(c.killed) })
	return nil
}

func (f *Fake) ContainerRemove(_ context.Context, id string, _ container.RemoveOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.live[id]
	if !ok {
		return NotFound("container: " + id)
	}
	c.killOnce.Do(func() { close(c.killed) })
	delete(f.live, id)
	f.Removed = append(f.Removed, id)
	return nil
}

func (f *Fake) ContainerList(_ context.Context, _ container.ListOptions) ([]container.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Listed != nil {
		return f.Listed, nil
	}
	out := make([]container.Summary, 0, len(f.live))
	for id, c := range f.live {
		out = append(out, container.Summary{ID: id, State: "running", Created: c.created.Unix(), Labels: c.labels})
	}
	return out, nil
}

func (f *Fake) ContainerStatsOneShot(_ context.Context, id string) (container.StatsResponseReader, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.live[id]; !ok {
		return container.StatsResponseReader{}, NotFound("container: " + id)
	}
	var s container.StatsResponse
	s.MemoryStats.MaxUsage = f.MemoryUsage
	body, err := json.Marshal(s)
	if err != nil {
		return container.StatsResponseReader{}, err
	}
	return container.StatsResponseReader{Body: io.NopCloser(bytes.NewReader(body)), OSType: "linux"}, nil
}

func (f *Fake) ContainerExecCreate(_ context.Context, id string, opts container.ExecOptions) (container.ExecCreateResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ExecErr != nil {
		return container.ExecCreateResponse{}, f.ExecErr
	}
	if _, ok := f.live[id]; !ok {
		return container.ExecCreateResponse{}, NotFound("container: " + id)
	}
	execID := fmt.Sprintf("exec-%d", len(f.execs)+1)
	f.execs[execID] = &fakeExec{containerID: id, cmd: opts.Cmd, stdin: opts.AttachStdin}
	f.Execs = append(f.Execs, opts.Cmd)
	return container.ExecCreateResponse{ID: execID}, nil
}

func (f *Fake) ContainerExecAttach(_ context.Context, execID string, _ container.ExecAttachOptions) (types.HijackedResponse, error) {
	f.mu.Lock()
	e, ok := f.execs[execID]
	if !ok {
		f.mu.Unlock()
		return types.HijackedResponse{}, NotFound("exec: " + execID)
	}
	c := f.live[e.containerID]
	e.running = true
	f.mu.Unlock()

	pr, pw := io.Pipe()
	conn := &fakeConn{stdinDone: make(chan struct{}), closed: make(chan struct{})}
	go f.runExec(e, c, conn, pw)

	return types.HijackedResponse{Conn: conn, Reader: bufio.NewReader(pr)}, nil
}

func (f *Fake) ContainerExecInspect(_ context.Context, execID string) (container.ExecInspect, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.execs[execID]
	if !ok {
		return container.ExecInspect{}, NotFound("exec: " + execID)
	}
	return container.ExecInspect{ExecID: execID, ContainerID: e.containerID, Running: e.running, ExitCode: e.exitCode}, nil
}

func (f *Fake) runExec(e *fakeExec, c *fakeContainer, conn *fakeConn, pw *io.PipeWriter) {
	finish := func(code int) {
		f.mu.Lock()
		e.running = false
		e.exitCode = code
		f.mu.Unlock()
	}

	var stdin []byte
	if e.stdin {
		select {
		case <-conn.stdinDone:
		case <-conn.closed:
		}
		stdin = conn.input()
		f.mu.Lock()
		f.Stdins = append(f.Stdins, string(stdin))
		f.mu.Unlock()
	}

	reply := Reply{}
	if f.OnExec != nil {
		reply = f.OnExec(e.cmd, stdin)
	}

	if reply.Delay > 0 {
		select {
		case <-time.After(reply.Delay):
		case <-c.killed:
			finish(137)
			pw.Close()
			return
		case <-conn.closed:
			finish(137)
			pw.CloseWithError(net.ErrClosed)
			return
		}
	}

	var frames bytes.Buffer
	out := stdcopy.NewStdWriter(&frames, stdcopy.Stdout)
	for rest := []byte(reply.Stdout); len(rest) > 0; {
		n := len(rest)
		if reply.Chunk > 0 && n > reply.Chunk {
			n = reply.Chunk
		}
		_, _ = out.Write(rest[:n])
		rest = rest[n:]
	}
	if reply.Stderr != "" {
		_, _ = stdcopy.NewStdWriter(&frames, stdcopy.Stderr).Write([]byte(reply.Stderr))
	}
	finish(reply.ExitCode)
	_, _ = pw.Write(frames.Bytes())
	pw.Close()
}

// fakeConn collects what the client writes to the exec's stdin.
type fakeConn struct {
	net.Conn

	mu        sync.Mutex
	buf       bytes.Buffer
	stdinDone chan struct{}
	closed    chan struct{}
	halfOnce  sync.Once
	closeOnce sync.Once
}

func (c *fakeConn) Write(p []byte) (int, error) {
	select {
	case <-c.stdinDone:
		return 0, errors.New("write after close")
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.Write(p)
}

func (c *fakeConn) CloseWrite() error {
	c.halfOnce.Do(func() { close(c.stdinDone) })
	return nil
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) input() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.buf.Bytes()...)
}

package sandbox

import (
	"errors"
	"time"

	"github.com/docker/go-units"
)

// MountPath is where the workspace appears inside every container.
const MountPath = "/code"

var (
	// ErrOverloaded is returned when no container slot frees up in time.
	ErrOverloaded = errors.New("sandbox: too many concurrent executions")
	// ErrInfrastructure wraps every failure of the container runtime itself.
	ErrInfrastructure = errors.New("sandbox: infrastructure failure")
)

// Limits bound a single container.
type Limits struct {
	Memory    int64 // bytes, swap disabled
	CPUPeriod int64 // microseconds
	CPUQuota  int64 // microseconds per period
	PidsLimit int64
	Timeout   time.Duration // wall clock for compile + run
	MaxOutput int64         // bytes kept per exec stream
}

func DefaultLimits() Limits {
	return Limits{
		Memory:    128 * units.MiB,
		CPUPeriod: 100_000,
		CPUQuota:  50_000, // half a core
		PidsLimit: 64,
		Timeout:   10 * time.Second,
		MaxOutput: 1 * units.MiB,
	}
}

type Config struct {
	Image      string
	Binds      []string
	WorkingDir string
	User       string
	Labels     map[string]string
	Limits     Limits
	Ulimits    []*units.Ulimit
	Tmpfs      map[string]string
}

// NewConfig builds the container settings for one execution.
// codeDir: host workspace dir, mounted read-write at MountPath
func NewConfig(image, codeDir string, limits Limits, labels map[string]string) Config {
	return Config{
		Image:      image,
		Binds:      []string{codeDir + ":" + MountPath + ":rw"},
		WorkingDir: MountPath,
		User:       "nobody",
		Labels:     labels,
		Limits:     limits,
		Ulimits: []*units.Ulimit{
			{
				Name: "nofile",
				Soft: 64,
				Hard: 128,
			},
			{
				Name: "core",
				Soft: 0,
				Hard: 0,
			},
			{
				// largest file the program may create; the compiled binary counts
				Name: "fsize",
				Soft: 20 * units.MiB,
				Hard: 20 * units.MiB,
			},
		},
		// root filesystem is read-only, compilers still need scratch space
		Tmpfs: map[string]string{
			"/tmp": "rw,nosuid,size=64m,mode=1777",
		},
	}
}

// Failure classifies an execution that ran but did not succeed.
type Failure string

const (
	FailureNone    Failure = ""
	FailureCompile Failure = "compile_error"
	FailureRuntime Failure = "runtime_error"
	FailureTimeout Failure = "timeout"
)

// Outcome is produced once per container run. Infrastructure problems are
// returned as errors instead.
type Outcome struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Failure  Failure
	TimeMs   int64
	MemoryKB int64
}

func (o Outcome) OK() bool {
	return o.Failure == FailureNone
}

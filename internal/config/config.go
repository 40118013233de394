package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/docker/go-units"
	"github.com/joho/godotenv"
	"github.com/sudankdk/codejudge/internal/sandbox"
	"gopkg.in/yaml.v3"
)

const envPrefix = "CODEJUDGE_"

const (
	defaultAddr            = ":3000"
	defaultBodyLimit       = "256k"
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 60 * time.Second
	defaultShutdownTimeout = 15 * time.Second
	defaultRateLimitRPS    = 5
	defaultRateLimitBurst  = 10

	defaultMemory        = "128m"
	defaultCPUPeriod     = 100_000
	defaultCPUQuota      = 50_000
	defaultPidsLimit     = 64
	defaultTimeout       = 10 * time.Second
	defaultMaxOutput     = "1m"
	defaultPoolSize      = 8
	defaultAdmissionWait = 5 * time.Second
	defaultReapInterval  = time.Minute
	defaultReapMaxAge    = 5 * time.Minute

	defaultRunCases       = 2
	defaultParallelism    = 1
	defaultMaxSourceBytes = "64k"
)

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	BodyLimit       string        `yaml:"bodyLimit"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	RateLimit       RateLimit     `yaml:"rateLimit"`
}

// RateLimit is applied per client IP; a negative RPS disables it.
type RateLimit struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console or json
}

type SandboxConfig struct {
	Memory        string        `yaml:"memory"`
	CPUPeriod     int64         `yaml:"cpuPeriod"`
	CPUQuota      int64         `yaml:"cpuQuota"`
	PidsLimit     int64         `yaml:"pidsLimit"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxOutput     string        `yaml:"maxOutput"`
	User          string        `yaml:"user"`
	PoolSize      int           `yaml:"poolSize"`
	AdmissionWait time.Duration `yaml:"admissionWait"`
	WorkspaceRoot string        `yaml:"workspaceRoot"`
	PullImages    *bool         `yaml:"pullImages"`
	ReapInterval  time.Duration `yaml:"reapInterval"`
	ReapMaxAge    time.Duration `yaml:"reapMaxAge"`
}

type JudgeConfig struct {
	RunCases       int    `yaml:"runCases"`
	Parallelism    int    `yaml:"testParallelism"`
	MaxSourceBytes string `yaml:"maxSourceBytes"`
}

// CatalogConfig points at catalog files replacing the built-in ones.
type CatalogConfig struct {
	Languages string `yaml:"languages"`
	Problems  string `yaml:"problems"`
}

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Logger  LoggerConfig  `yaml:"logger"`
	Sandbox SandboxConfig `yaml:"sandbox"`
	Judge   JudgeConfig   `yaml:"judge"`
	Catalog CatalogConfig `yaml:"catalog"`

	// parsed from the size strings above
	bodyLimit      int64
	memory         int64
	maxOutput      int64
	maxSourceBytes int64
}

// Load reads .env (when present), then the YAML file at path (when not
// empty), then CODEJUDGE_* environment overrides, and fills in defaults.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if path == "" {
		path = os.Getenv(envPrefix + "CONFIG")
	}

	var cfg Config
	if path != "" {
		if err := loadYAML(path, &cfg); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.parse(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	str := func(name string, dst *string) {
		if v, ok := os.LookupEnv(envPrefix + name); ok {
			*dst = v
		}
	}
	integer := func(name string, dst *int) error {
		v, ok := os.LookupEnv(envPrefix + name)
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, name, err)
		}
		*dst = n
		return nil
	}
	duration := func(name string, dst *time.Duration) error {
		v, ok := os.LookupEnv(envPrefix + name)
		if !ok {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, name, err)
		}
		*dst = d
		return nil
	}

	str("ADDR", &c.Server.Addr)
	str("LOG_LEVEL", &c.Logger.Level)
	str("LOG_FORMAT", &c.Logger.Format)
	str("MEMORY", &c.Sandbox.Memory)
	str("SANDBOX_USER", &c.Sandbox.User)
	str("WORKSPACE_ROOT", &c.Sandbox.WorkspaceRoot)
	str("MAX_SOURCE_BYTES", &c.Judge.MaxSourceBytes)
	str("LANGUAGES_FILE", &c.Catalog.Languages)
	str("PROBLEMS_FILE", &c.Catalog.Problems)

	if v, ok := os.LookupEnv(envPrefix + "PULL_IMAGES"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sPULL_IMAGES: %w", envPrefix, err)
		}
		c.Sandbox.PullImages = &b
	}

	return errors.Join(
		integer("POOL_SIZE", &c.Sandbox.PoolSize),
		integer("RUN_CASES", &c.Judge.RunCases),
		integer("TEST_PARALLELISM", &c.Judge.Parallelism),
		duration("TIMEOUT", &c.Sandbox.Timeout),
		duration("ADMISSION_WAIT", &c.Sandbox.AdmissionWait),
	)
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = defaultAddr
	}
	if c.Server.BodyLimit == "" {
		c.Server.BodyLimit = defaultBodyLimit
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = defaultReadTimeout
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = defaultWriteTimeout
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = defaultShutdownTimeout
	}
	if c.Server.RateLimit.RPS == 0 && c.Server.RateLimit.Burst == 0 {
		c.Server.RateLimit = RateLimit{RPS: defaultRateLimitRPS, Burst: defaultRateLimitBurst}
	}

	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	if c.Logger.Format == "" {
		c.Logger.Format = "console"
	}

	s := &c.Sandbox
	if s.Memory == "" {
		s.Memory = defaultMemory
	}
	if s.CPUPeriod == 0 {
		s.CPUPeriod = defaultCPUPeriod
	}
	if s.CPUQuota == 0 {
		s.CPUQuota = defaultCPUQuota
	}
	if s.PidsLimit == 0 {
		s.PidsLimit = defaultPidsLimit
	}
	if s.Timeout == 0 {
		s.Timeout = defaultTimeout
	}
	if s.MaxOutput == "" {
		s.MaxOutput = defaultMaxOutput
	}
	if s.PoolSize == 0 {
		s.PoolSize = defaultPoolSize
	}
	if s.AdmissionWait == 0 {
		s.AdmissionWait = defaultAdmissionWait
	}
	if s.PullImages == nil {
		pull := true
		s.PullImages = &pull
	}
	if s.ReapInterval == 0 {
		s.ReapInterval = defaultReapInterval
	}
	if s.ReapMaxAge == 0 {
		s.ReapMaxAge = defaultReapMaxAge
	}

	if c.Judge.RunCases == 0 {
		c.Judge.RunCases = defaultRunCases
	}
	if c.Judge.Parallelism == 0 {
		c.Judge.Parallelism = defaultParallelism
	}
	if c.Judge.MaxSourceBytes == "" {
		c.Judge.MaxSourceBytes = defaultMaxSourceBytes
	}
}

func (c *Config) parse() error {
	var err error
	if c.bodyLimit, err = units.RAMInBytes(c.Server.BodyLimit); err != nil {
		return fmt.Errorf("server.bodyLimit: %w", err)
	}
	if c.memory, err = units.RAMInBytes(c.Sandbox.Memory); err != nil {
		return fmt.Errorf("sandbox.memory: %w", err)
	}
	if c.maxOutput, err = units.RAMInBytes(c.Sandbox.MaxOutput); err != nil {
		return fmt.Errorf("sandbox.maxOutput: %w", err)
	}
	if c.maxSourceBytes, err = units.RAMInBytes(c.Judge.MaxSourceBytes); err != nil {
		return fmt.Errorf("judge.maxSourceBytes: %w", err)
	}

	switch {
	case c.memory < 6*units.MiB:
		// docker refuses anything smaller
		return fmt.Errorf("sandbox.memory: %s is below the 6MiB minimum", c.Sandbox.Memory)
	case c.Sandbox.CPUQuota > 0 && c.Sandbox.CPUQuota < 1000:
		return fmt.Errorf("sandbox.cpuQuota: must be at least 1000, got %d", c.Sandbox.CPUQuota)
	case c.Sandbox.PoolSize < 0:
		return fmt.Errorf("sandbox.poolSize: must be positive, got %d", c.Sandbox.PoolSize)
	case c.Sandbox.Timeout < 0:
		return fmt.Errorf("sandbox.timeout: must be positive, got %s", c.Sandbox.Timeout)
	case c.Judge.Parallelism < 0:
		return fmt.Errorf("judge.testParallelism: must be positive, got %d", c.Judge.Parallelism)
	case c.maxSourceBytes > c.bodyLimit:
		return fmt.Errorf("judge.maxSourceBytes (%s) exceeds server.bodyLimit (%s)", c.Judge.MaxSourceBytes, c.Server.BodyLimit)
	}
	return nil
}

func (c *Config) Limits() sandbox.Limits {
	return sandbox.Limits{
		Memory:    c.memory,
		CPUPeriod: c.Sandbox.CPUPeriod,
		CPUQuota:  c.Sandbox.CPUQuota,
		PidsLimit: c.Sandbox.PidsLimit,
		Timeout:   c.Sandbox.Timeout,
		MaxOutput: c.maxOutput,
	}
}

func (c *Config) BodyLimit() int {
	return int(c.bodyLimit)
}

func (c *Config) MaxSourceBytes() int {
	return int(c.maxSourceBytes)
}

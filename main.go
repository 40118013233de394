package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/sudankdk/codejudge/internal/api"
	"github.com/sudankdk/codejudge/internal/config"
	"github.com/sudankdk/codejudge/internal/docker"
	"github.com/sudankdk/codejudge/internal/executer"
	"github.com/sudankdk/codejudge/internal/harness"
	"github.com/sudankdk/codejudge/internal/languages"
	"github.com/sudankdk/codejudge/internal/problems"
	"github.com/sudankdk/codejudge/internal/workspace"
)

func newLogger(cfg config.LoggerConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.Format == "json" {
		logger = zerolog.New(os.Stderr)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	return logger.Level(level).With().Timestamp().Logger()
}

func main() {
	// CODEJUDGE_CONFIG names the YAML file, if any
	cfg, err := config.Load("")
	if err != nil {
		boot := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
		boot.Fatal().Err(err).Msg("failed to load config")
	}
	logger := newLogger(cfg.Logger)

	langs, err := languages.Load(cfg.Catalog.Languages)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load languages")
	}
	catalog, err := problems.Load(cfg.Catalog.Problems)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load problems")
	}
	gen, err := harness.NewGenerator(catalog)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build harness templates")
	}
	workspaces, err := workspace.NewManager(cfg.Sandbox.WorkspaceRoot, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to prepare workspace root")
	}

	cli, err := docker.NewAPI()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to docker")
	}
	defer cli.Close()
	dc := docker.New(cli, &logger)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	if *cfg.Sandbox.PullImages {
		logger.Info().Strs("images", langs.Images()).Msg("ensuring language images")
		if err := dc.EnsureImages(ctx, langs.Images()); err != nil {
			logger.Fatal().Err(err).Msg("failed to pull language images")
		}
	}
	go dc.Reap(ctx, cfg.Sandbox.ReapInterval, cfg.Sandbox.ReapMaxAge)

	pool := docker.NewPool(cfg.Sandbox.PoolSize, cfg.Sandbox.AdmissionWait)
	exec := executer.NewExecutor(dc, pool, executer.ExecutorOptions{
		Limits: cfg.Limits(),
		User:   cfg.Sandbox.User,
	}, &logger)
	judge := executer.NewJudge(langs, catalog, gen, workspaces, exec, executer.JudgeOptions{
		RunCases:    cfg.Judge.RunCases,
		Parallelism: cfg.Judge.Parallelism,
	}, &logger)

	server := api.NewServer(judge, langs, catalog, api.Options{
		BodyLimit:      cfg.BodyLimit(),
		MaxSourceBytes: cfg.MaxSourceBytes(),
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		RateLimitRPS:   cfg.Server.RateLimit.RPS,
		RateLimitBurst: cfg.Server.RateLimit.Burst,
	}, &logger)

	go func() {
		if err := server.Listen(cfg.Server.Addr); err != nil {
			logger.Fatal().Err(err).Msg("server crashed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	stop()
	logger.Info().Msg("bye")
}

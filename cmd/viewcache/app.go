package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/mattn/go-isatty"

	"github.com/IvanBrykalov/viewcache/cache"
	"github.com/IvanBrykalov/viewcache/internal/config"
	"github.com/IvanBrykalov/viewcache/internal/logger"
	"github.com/IvanBrykalov/viewcache/internal/sim"
	"github.com/IvanBrykalov/viewcache/policy"
	"github.com/IvanBrykalov/viewcache/policy/automatic"
	"github.com/IvanBrykalov/viewcache/policy/manual"
)

// stdout receives command reports.
var stdout io.Writer = os.Stdout

// app is the state shared by one command invocation.
type app struct {
	cfg   config.Config
	log   *slog.Logger
	runID string
}

func setup(g *Globals) (*app, error) {
	cfg, err := config.Load(g.EnvFile...)
	if err != nil {
		return nil, err
	}
	lvl, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}
	runID := uuid.NewString()
	log := logger.New(
		logger.WithLevel(lvl),
		logger.WithFormat(logFormat(cfg.LogFormat, os.Stderr)),
		logger.WithAttr(logger.RunID(runID)),
	)
	return &app{cfg: cfg, log: log, runID: runID}, nil
}

// logFormat resolves "auto" by checking whether f is a terminal.
func logFormat(s string, f *os.File) logger.Format {
	if s != "auto" {
		return logger.Format(s)
	}
	if isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()) {
		return logger.FormatText
	}
	return logger.FormatJSON
}

// newCache builds a cache offering both update policies with policyID
// active.
func (a *app) newCache(capacity int, policyID string, m cache.Metrics) (*cache.Cache[string], error) {
	log := a.log
	c := cache.New[string](cache.Options[string]{
		Capacity:             capacity,
		Policies:             policies(),
		MaxConcurrentFetches: a.cfg.MaxConcurrentFetches,
		OnRootCleared: func(root string) {
			log.Debug("root cleared", logger.Root(root))
		},
		Logger:  log,
		Metrics: m,
	})
	if err := c.SetActivePolicy(policyID); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("policy %q: %w", policyID, err)
	}
	return c, nil
}

// policies returns the update policies offered by the commands. While the
// target runs, the automatic policy only marks data dirty; the flush waits
// for the next suspend.
func policies() []policy.Policy[string] {
	auto := policy.Decorate(automatic.New[string](),
		policy.WithTester(func(event any) policy.Tester[string] {
			if _, ok := event.(sim.Resumed); ok {
				return policy.NewAllTester[string](policy.Dirty)
			}
			return nil
		}),
	)
	return []policy.Policy[string]{auto, manual.New[string]()}
}

func simOptions(s config.Sim) sim.Options {
	return sim.Options{
		Processes: s.Processes,
		Threads:   s.Threads,
		Frames:    s.Frames,
		Variables: s.Variables,
		Latency:   s.Latency,
		FailRate:  s.FailRate,
		Seed:      s.Seed,
	}
}

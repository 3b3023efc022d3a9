package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/IvanBrykalov/viewcache/internal/config"
	"github.com/IvanBrykalov/viewcache/internal/logger"
	"github.com/IvanBrykalov/viewcache/internal/sim"
)

// RunCmd replays one scenario and prints the report as YAML.
type RunCmd struct {
	Scenario string `arg:"" help:"Scenario YAML file." type:"existingfile"`
	Output   string `help:"Write the report to this file instead of stdout." short:"o" type:"path"`
}

// Run executes the run command.
func (r *RunCmd) Run(g *Globals) error {
	a, err := setup(g)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}
	sc, err := config.LoadScenario(r.Scenario)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}
	simCfg, err := sc.Sim.Apply(a.cfg.Sim)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}

	capacity, policyID := a.cfg.Capacity, a.cfg.Policy
	if sc.Capacity > 0 {
		capacity = sc.Capacity
	}
	if sc.Policy != "" {
		policyID = sc.Policy
	}
	c, err := a.newCache(capacity, policyID, nil)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}
	defer func() { _ = c.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	start := time.Now()
	rep, runErr := sim.NewRunner(c, sim.NewTarget(simOptions(simCfg)), a.log).Run(ctx, sc)
	a.log.Info("scenario finished",
		slog.String("scenario", sc.Name),
		slog.Int("steps", len(rep.Steps)),
		logger.Policy(rep.Summary.Policy),
		logger.Duration(time.Since(start)),
		logger.Error(runErr),
	)

	if err := r.write(rep); err != nil {
		return errors.Join(runErr, err)
	}
	if runErr != nil {
		return fmt.Errorf("run: %w", runErr)
	}
	return nil
}

func (r *RunCmd) write(rep *sim.Report) (err error) {
	w := stdout
	if r.Output != "" {
		f, cerr := os.Create(r.Output)
		if cerr != nil {
			return fmt.Errorf("run: writing report: %w", cerr)
		}
		defer func() { err = errors.Join(err, f.Close()) }()
		w = f
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(rep); err != nil {
		return fmt.Errorf("run: encoding report: %w", err)
	}
	return enc.Close()
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof/* on DefaultServeMux
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/IvanBrykalov/viewcache/cache"
	"github.com/IvanBrykalov/viewcache/internal/config"
	"github.com/IvanBrykalov/viewcache/internal/logger"
	"github.com/IvanBrykalov/viewcache/internal/sim"
	pmet "github.com/IvanBrykalov/viewcache/metrics/prom"
)

// BenchCmd drives random view requests from concurrent workers while the
// target keeps suspending.
type BenchCmd struct {
	Workers    int           `help:"Number of worker goroutines (0 = 2*GOMAXPROCS)." default:"0"`
	Duration   time.Duration `help:"Benchmark duration." default:"10s"`
	EventEvery time.Duration `help:"Interval between suspend events (0 disables)." default:"100ms"`
	PropsPct   int           `help:"Percentage of properties requests [0..100]." default:"30"`
	Seed       int64         `help:"Random seed (0 = time based)." default:"0"`

	MetricsAddr string `help:"Serve Prometheus metrics at addr; overrides the environment, '-' disables."`
	PprofAddr   string `help:"Serve pprof at addr (e.g. :6060); empty disables." name:"pprof"`
}

// benchResult holds worker counters.
type benchResult struct {
	ops, errs, events atomic.Uint64
}

// Run executes the bench command.
func (b *BenchCmd) Run(g *Globals) error {
	if b.PropsPct < 0 || b.PropsPct > 100 {
		return fmt.Errorf("bench: props-pct must be within [0,100], got %d", b.PropsPct)
	}
	a, err := setup(g)
	if err != nil {
		return fmt.Errorf("bench: %w", err)
	}
	log := a.log.With(logger.Component("bench"))

	if b.PprofAddr != "" {
		go func() {
			log.Info("pprof: serving", slog.String("addr", b.PprofAddr))
			log.Warn("pprof: stopped", logger.Error(http.ListenAndServe(b.PprofAddr, nil))) //nolint:gosec
		}()
	}

	reg := prometheus.NewRegistry()
	metrics := pmet.New(reg, "viewcache", "bench", prometheus.Labels{"run_id": a.runID})
	addr := a.cfg.MetricsAddr
	if b.MetricsAddr != "" {
		addr = b.MetricsAddr
	}
	if addr != "" && addr != "-" {
		srv := serveMetrics(addr, reg, log)
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		}()
	}

	c, err := a.newCache(a.cfg.Capacity, a.cfg.Policy, metrics)
	if err != nil {
		return fmt.Errorf("bench: %w", err)
	}
	defer func() { _ = c.Close() }()

	tg := sim.NewTarget(simOptions(a.cfg.Sim))
	c.AttachRoot(tg.Session())

	workers := b.Workers
	if workers <= 0 {
		workers = 2 * runtime.GOMAXPROCS(0)
	}
	seed := b.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(sigCtx, b.Duration)
	defer cancel()

	var res benchResult
	start := time.Now()
	eg, ctx := errgroup.WithContext(ctx)
	for w := range workers {
		// rand.Rand is not goroutine-safe: one per worker.
		rng := rand.New(rand.NewSource(seed + int64(w)*9973))
		eg.Go(func() error {
			b.work(ctx, c, tg, a.cfg.Sim, rng, &res)
			return nil
		})
	}
	if b.EventEvery > 0 {
		eg.Go(func() error {
			tick := time.NewTicker(b.EventEvery)
			defer tick.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-tick.C:
					tg.Advance()
					c.NotifyEvent(sim.Suspended{Generation: tg.Generation()})
					res.events.Add(1)
				}
			}
		})
	}
	_ = eg.Wait()
	elapsed := time.Since(start)

	b.report(c, a.cfg, workers, seed, elapsed, &res)
	log.Info("bench finished",
		slog.Uint64("ops", res.ops.Load()),
		slog.Uint64("errors", res.errs.Load()),
		logger.Duration(elapsed),
	)
	return nil
}

func (b *BenchCmd) work(ctx context.Context, c *cache.Cache[string], tg *sim.Target, shape config.Sim, rng *rand.Rand, res *benchResult) {
	for ctx.Err() == nil {
		var err error
		if rng.Intn(100) < b.PropsPct {
			path := randomPath(rng, shape, 1+rng.Intn(4))
			if len(path) == 0 {
				continue
			}
			rep := c.Properties(ctx, tg.PropertiesRequest([]string{"name", "value", "is_changed.value"}, path...))[0]
			err = rep.Err
		} else {
			req := tg.Request(randomPath(rng, shape, rng.Intn(4))...)
			switch rng.Intn(3) {
			case 0:
				_, err = c.HasChildren(ctx, req)
			case 1:
				_, err = c.ChildCount(ctx, req)
			default:
				off := rng.Intn(8)
				_, err = c.Children(ctx, cache.ChildrenRequest[string]{Request: req, Offset: off, Length: 1 + rng.Intn(4)})
			}
		}
		res.ops.Add(1)
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			res.errs.Add(1)
		}
	}
}

// randomPath picks an existing element of the target at the given depth;
// it stops early at an empty level.
func randomPath(rng *rand.Rand, shape config.Sim, depth int) []string {
	widths := [...]int{shape.Processes, shape.Threads, shape.Frames, shape.Variables}
	tags := [...]string{"p", "t", "f", "v"}
	path := make([]string, 0, depth)
	parent := ""
	for l := 0; l < depth && l < len(widths); l++ {
		if widths[l] == 0 {
			break
		}
		id := tags[l] + strconv.Itoa(rng.Intn(widths[l]))
		if parent != "" {
			id = parent + "." + id
		}
		path = append(path, id)
		parent = id
	}
	return path
}

func serveMetrics(addr string, reg *prometheus.Registry, log *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Info("metrics: serving", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics: server failed", logger.Error(err))
		}
	}()
	return srv
}

func (b *BenchCmd) report(c *cache.Cache[string], cfg config.Config, workers int, seed int64, elapsed time.Duration, res *benchResult) {
	st := c.Stats()
	ops := res.ops.Load()
	fmt.Fprintf(stdout, "policy=%s cap=%d workers=%d dur=%v seed=%d\n",
		c.ActivePolicy().ID(), cfg.Capacity, workers, elapsed.Round(time.Millisecond), seed)
	fmt.Fprintf(stdout, "ops=%d (%.0f ops/s)  errors=%d  events=%d\n",
		ops, float64(ops)/elapsed.Seconds(), res.errs.Load(), res.events.Load())
	fmt.Fprintf(stdout, "hits=%d  misses=%d  hit-rate=%.2f%%  source-calls=%d  coalesced=%d\n",
		st.Hits, st.Misses, st.HitRate()*100, st.SourceCalls, st.Coalesced)
	fmt.Fprintf(stdout, "stale-writes=%d  evictions=%d  flushes=%d (short-circuit %d)\n",
		st.StaleWrites, st.Evictions, st.Flushes, st.FlushShortCircuits)
	fmt.Fprintf(stdout, "slots=%d (data %d, flush markers %d, root markers %d)\n",
		st.Slots, st.DataEntries, st.FlushMarkers, st.RootMarkers)
}

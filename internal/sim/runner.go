package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/IvanBrykalov/viewcache/cache"
	"github.com/IvanBrykalov/viewcache/internal/config"
	"github.com/IvanBrykalov/viewcache/internal/logger"
	"github.com/IvanBrykalov/viewcache/policy"
)

// ErrExpectation is returned when an expect_* step does not hold.
var ErrExpectation = errors.New("sim: expectation failed")

// Suspended is the change event sent when the target stops after a step.
type Suspended struct{ Generation int }

// Resumed is the change event sent when the target starts running.
type Resumed struct{}

// StepResult is the outcome of one scenario step.
type StepResult struct {
	Op     string   `yaml:"op"`
	Path   []string `yaml:"path,omitempty"`
	Result any      `yaml:"result,omitempty"`
	Errors []string `yaml:"errors,omitempty"`
	// Calls counts source calls issued while the step ran.
	Calls int `yaml:"calls"`
}

// Summary is the cache state at the end of a run.
type Summary struct {
	Policy      string  `yaml:"policy"`
	Slots       int     `yaml:"slots"`
	Hits        int64   `yaml:"hits"`
	Misses      int64   `yaml:"misses"`
	HitRate     float64 `yaml:"hit_rate"`
	SourceCalls int64   `yaml:"source_calls"`
	Coalesced   int64   `yaml:"coalesced"`
	StaleWrites int64   `yaml:"stale_writes"`
	Evictions   int64   `yaml:"evictions"`
	Flushes     int64   `yaml:"flushes"`
}

// Report is the outcome of a scenario run.
type Report struct {
	Name    string       `yaml:"name"`
	Session string       `yaml:"session"`
	Steps   []StepResult `yaml:"steps"`
	Summary Summary      `yaml:"summary"`
}

// Runner replays scenarios against a cache in front of a Target.
type Runner struct {
	c   *cache.Cache[string]
	t   *Target
	log *slog.Logger

	lastProps map[string]any
	callsMark int
}

// NewRunner returns a runner; a nil logger discards.
func NewRunner(c *cache.Cache[string], t *Target, log *slog.Logger) *Runner {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Runner{c: c, t: t, log: log.With(logger.Component("sim"))}
}

// Run executes every step of sc in order. It stops at the first failed
// expectation or cancelled context and returns the report so far.
func (r *Runner) Run(ctx context.Context, sc *config.Scenario) (*Report, error) {
	rep := &Report{Name: sc.Name, Session: r.t.Session()}
	r.callsMark = r.t.TotalCalls()

	for i, st := range sc.Steps {
		if err := ctx.Err(); err != nil {
			return r.finish(rep), err
		}
		before := r.t.TotalCalls()
		res, err := r.step(ctx, st)
		res.Op, res.Path = st.Op, st.Path
		res.Calls = r.t.TotalCalls() - before
		rep.Steps = append(rep.Steps, res)

		r.log.DebugContext(ctx, "scenario step",
			slog.Int("step", i+1),
			slog.String("op", st.Op),
			slog.Any("path", st.Path),
			slog.Int("calls", res.Calls),
			logger.Error(err),
		)
		if err != nil {
			return r.finish(rep), fmt.Errorf("step %d (%s): %w", i+1, st.Op, err)
		}
	}
	return r.finish(rep), nil
}

func (r *Runner) finish(rep *Report) *Report {
	st := r.c.Stats()
	rep.Summary = Summary{
		Policy:      r.c.ActivePolicy().ID(),
		Slots:       st.Slots,
		Hits:        st.Hits,
		Misses:      st.Misses,
		HitRate:     st.HitRate(),
		SourceCalls: st.SourceCalls,
		Coalesced:   st.Coalesced,
		StaleWrites: st.StaleWrites,
		Evictions:   st.Evictions,
		Flushes:     st.Flushes,
	}
	return rep
}

// step runs one operation. Source failures are reported in the result;
// only expectation failures and misuse are returned as errors.
func (r *Runner) step(ctx context.Context, st config.Step) (StepResult, error) {
	var res StepResult
	fail := func(err error) {
		if err != nil {
			res.Errors = append(res.Errors, err.Error())
		}
	}

	switch st.Op {
	case config.OpAttach:
		r.c.AttachRoot(r.root(st.Path))
	case config.OpDetach:
		r.c.DetachRoot(r.root(st.Path))

	case config.OpHasChildren:
		v, err := r.c.HasChildren(ctx, r.t.Request(st.Path...))
		res.Result = v
		fail(err)
	case config.OpChildCount:
		n, err := r.c.ChildCount(ctx, r.t.Request(st.Path...))
		res.Result = n
		fail(err)
	case config.OpChildren:
		kids, err := r.c.Children(ctx, cache.ChildrenRequest[string]{
			Request: r.t.Request(st.Path...),
			Offset:  st.Offset,
			Length:  st.Length,
		})
		res.Result = kids
		fail(err)
	case config.OpProperties:
		rep := r.c.Properties(ctx, r.t.PropertiesRequest(st.Keys, st.Path...))[0]
		vals := make(map[string]any, len(rep.Values))
		for k, v := range rep.Values {
			vals[k] = Display(v)
		}
		r.lastProps = vals
		res.Result = vals
		fail(rep.Err)
		keys := make([]string, 0, len(rep.Errors))
		for k := range rep.Errors {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			fail(fmt.Errorf("%s: %w", k, rep.Errors[k]))
		}

	case config.OpEvent:
		r.event(st)
	case config.OpPolicy:
		if err := r.c.SetActivePolicy(st.ID); err != nil {
			return res, fmt.Errorf("%q: %w", st.ID, err)
		}
	case config.OpAdvance:
		r.t.Advance()

	case config.OpExpectCalls:
		total := r.t.TotalCalls()
		got := total - r.callsMark
		r.callsMark = total
		res.Result = got
		if got != *st.Calls {
			return res, fmt.Errorf("%w: %d source calls, want %d", ErrExpectation, got, *st.Calls)
		}
	case config.OpExpectValues:
		for k, want := range st.Values {
			got, ok := r.lastProps[k]
			if !ok || fmt.Sprint(got) != fmt.Sprint(want) {
				return res, fmt.Errorf("%w: %s = %v, want %v", ErrExpectation, k, got, want)
			}
		}
	default:
		return res, fmt.Errorf("unknown op %q", st.Op)
	}
	return res, nil
}

func (r *Runner) event(st config.Step) {
	switch st.Event {
	case config.EventSuspended:
		r.t.Advance()
		r.c.NotifyEvent(Suspended{Generation: r.t.Generation()})
	case config.EventResumed:
		r.t.Resume()
		r.c.NotifyEvent(Resumed{})
	case config.EventRefresh:
		r.c.Refresh()
	case config.EventElementEdited:
		r.c.NotifyEvent(policy.ElementEdited[string]{Input: r.t.Session(), Path: st.Path})
	case config.EventPropertiesChanged:
		r.c.NotifyEvent(policy.PropertiesChanged{Keys: st.Keys})
	}
}

// root names the element at path, or the session for an empty path.
func (r *Runner) root(path []string) string {
	if len(path) == 0 {
		return r.t.Session()
	}
	return path[len(path)-1]
}

// Display renders a property value for reports; the Unknown sentinel
// becomes "<unknown>".
func Display(v any) any {
	if v == cache.Unknown {
		return "<unknown>"
	}
	return v
}

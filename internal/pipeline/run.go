package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/derickschaefer/pricetrack/internal/analyze"
	"github.com/derickschaefer/pricetrack/internal/clean"
	"github.com/derickschaefer/pricetrack/internal/model"
	"github.com/derickschaefer/pricetrack/internal/transform"
	"github.com/derickschaefer/pricetrack/internal/util"
)

// Stage names, in execution order.
const (
	StageDedup    = "dedup"
	StageFilter   = "filter"
	StageFill     = "fill"
	StageIndex    = "index"
	StageOverall  = "overall"
	StageMomentum = "momentum"
)

// Options configures a full pipeline run.
type Options struct {
	Thresholds   clean.Thresholds
	FillMethod   clean.FillMethod
	Selection    transform.Selection
	OverallLabel string
	// Summary adds the momentum stage.
	Summary bool
	// Workers bounds per-series concurrency; zero means GOMAXPROCS.
	Workers int
}

// DefaultOptions returns options with default thresholds, forward fill and
// no selection restriction.
func DefaultOptions() Options {
	return Options{
		Thresholds:   clean.DefaultThresholds(),
		FillMethod:   clean.FillForward,
		OverallLabel: model.OverallMarket,
	}
}

// Validate reports the first configuration error in o. Run calls it before
// any stage executes.
func (o Options) Validate() error {
	if err := o.Thresholds.Validate(); err != nil {
		return err
	}
	if _, err := clean.ParseFillMethod(string(o.FillMethod)); err != nil {
		return err
	}
	if err := o.Selection.Validate(); err != nil {
		return err
	}
	if o.Workers < 0 {
		return &model.ConfigError{Field: "workers", Reason: fmt.Sprintf("must be >= 0, got %d", o.Workers)}
	}
	return nil
}

// Recorder receives per-stage measurements. metrics.Metrics implements it.
type Recorder interface {
	ObserveStage(stage string, rowsIn, rowsOut int, elapsed time.Duration)
}

// StageStat describes one executed stage.
type StageStat struct {
	Stage    string        `json:"stage"`
	RowsIn   int           `json:"rows_in"`
	RowsOut  int           `json:"rows_out"`
	Duration time.Duration `json:"duration_ns"`
}

// Output is the result of a pipeline run.
type Output struct {
	RunID    string                `json:"run_id"`
	Panel    []model.Observation   `json:"panel"`
	Summary  []model.SummaryRecord `json:"summary,omitempty"`
	Stages   []StageStat           `json:"stages"`
	Warnings []string              `json:"warnings,omitempty"`
}

// Run executes dedup → filter → fill → index → overall (→ momentum) over
// obs. Options are validated before any work starts. A stage that leaves
// no rows produces a warning, not an error; later stages then run on the
// empty panel. rec may be nil.
func Run(ctx context.Context, obs []model.Observation, opts Options, rec Recorder) (*Output, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if err := ValidatePanel(obs); err != nil {
		return nil, err
	}

	r := &runner{
		ctx: ctx,
		rec: rec,
		out: &Output{RunID: uuid.NewString()},
		log: slog.Default(),
	}
	r.log = r.log.With("run_id", r.out.RunID)
	if len(obs) == 0 {
		r.warn("input panel is empty")
	}

	cur := obs
	steps := []struct {
		name string
		fn   func([]model.Observation) ([]model.Observation, error)
	}{
		{StageDedup, func(in []model.Observation) ([]model.Observation, error) {
			return clean.Deduplicate(in), nil
		}},
		{StageFilter, func(in []model.Observation) ([]model.Observation, error) {
			return clean.FilterMajor(in, opts.Thresholds)
		}},
		{StageFill, func(in []model.Observation) ([]model.Observation, error) {
			return clean.FillGaps(in, clean.FillOptions{Method: opts.FillMethod, Workers: opts.Workers})
		}},
		{StageIndex, func(in []model.Observation) ([]model.Observation, error) {
			return transform.BuildIndex(in, opts.Selection)
		}},
		{StageOverall, func(in []model.Observation) ([]model.Observation, error) {
			return transform.AddOverall(in, opts.OverallLabel), nil
		}},
	}
	for _, s := range steps {
		next, err := r.stage(s.name, cur, s.fn)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	r.out.Panel = cur

	if opts.Summary {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		start := time.Now()
		summary, err := analyze.Momentum(cur, opts.Workers)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", StageMomentum, err)
		}
		r.record(StageMomentum, len(cur), len(summary), time.Since(start))
		r.out.Summary = summary
	}

	r.log.Info("pipeline complete", "rows", len(r.out.Panel), "summary", len(r.out.Summary), "warnings", len(r.out.Warnings))
	return r.out, nil
}

type runner struct {
	ctx     context.Context
	rec     Recorder
	out     *Output
	log     *slog.Logger
	emptied bool
}

func (r *runner) stage(name string, in []model.Observation, fn func([]model.Observation) ([]model.Observation, error)) ([]model.Observation, error) {
	if err := r.ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	out, err := fn(in)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	r.record(name, len(in), len(out), time.Since(start))
	if len(out) == 0 && len(in) > 0 && !r.emptied {
		r.emptied = true
		r.warn(fmt.Sprintf("%s: no rows remain after this stage", name))
	}
	return out, nil
}

func (r *runner) record(name string, in, out int, d time.Duration) {
	r.out.Stages = append(r.out.Stages, StageStat{Stage: name, RowsIn: in, RowsOut: out, Duration: d})
	if r.rec != nil {
		r.rec.ObserveStage(name, in, out, d)
	}
	r.log.Debug("stage", "stage", name, "rows_in", in, "rows_out", out, "elapsed", d)
}

func (r *runner) warn(msg string) {
	r.out.Warnings = append(r.out.Warnings, msg)
	r.log.Warn(msg)
}

// DefaultWindow returns the date window shown when none is requested: the
// last two years of the panel, clipped to its first month. Both bounds are
// month anchors. ok is false for an empty panel.
func DefaultWindow(obs []model.Observation) (start, end time.Time, ok bool) {
	p := model.Panel{Obs: obs}
	first, last, ok := p.DateRange()
	if !ok {
		return time.Time{}, time.Time{}, false
	}
	first, end = util.MonthAnchor(first), util.MonthAnchor(last)
	start = end.AddDate(-2, 0, 0)
	if start.Before(first) {
		start = first
	}
	return start, end, true
}

// Package pipeline wires the Panel Builder, Measure Engine and Risk-Aversion
// Solver into the staged batch run, and persists what each stage produces.
package pipeline

import (
	"context"
	"fmt"
	"os"

	"github.com/aristath/riskaversion/internal/modules/artifacts"
	"github.com/aristath/riskaversion/internal/modules/measures"
	"github.com/aristath/riskaversion/internal/modules/panel"
	"github.com/aristath/riskaversion/internal/modules/regression"
	"github.com/aristath/riskaversion/internal/modules/riskaversion"
	"github.com/aristath/riskaversion/internal/modules/runs"
	"github.com/aristath/riskaversion/internal/utils"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// RunStore records completed solves.
type RunStore interface {
	Create(ctx context.Context, run runs.Run) (runs.Run, error)
	Get(ctx context.Context, id string) (runs.Run, error)
	List(ctx context.Context, limit int) ([]runs.Run, error)
}

// Publisher uploads artifact files for a run.
type Publisher interface {
	PublishFiles(ctx context.Context, runID string, files []string) error
}

// Config holds the settings of every stage.
type Config struct {
	RawDir      string
	LoadWorkers int
	Measures    measures.Options
	Solver      riskaversion.Config
}

// Outcome is the result of a solve.
type Outcome struct {
	RunID    string
	Result   riskaversion.Result
	Measures measures.Measures
	Files    []string // Artifact files backing this solve, including risk_aversion.csv
}

// Pipeline runs the stages against one artifact directory.
type Pipeline struct {
	cfg       Config
	loader    *panel.Loader
	builder   *panel.Builder
	engine    *measures.Engine
	solver    *riskaversion.Solver
	checker   *regression.Checker
	store     *artifacts.Store
	runs      RunStore  // optional
	publisher Publisher // optional
	log       zerolog.Logger
}

// New creates a pipeline. runStore and publisher may be nil.
func New(cfg Config, store *artifacts.Store, runStore RunStore, publisher Publisher, log zerolog.Logger) *Pipeline {
	if cfg.Measures.MissingDates == "" {
		cfg.Measures.MissingDates = measures.PolicyIntersect
	}
	return &Pipeline{
		cfg:       cfg,
		loader:    panel.NewLoader(cfg.LoadWorkers, log),
		builder:   panel.NewBuilder(log),
		engine:    measures.NewEngine(cfg.Measures, log),
		solver:    riskaversion.NewSolver(cfg.Solver, log),
		checker:   regression.NewChecker(log),
		store:     store,
		runs:      runStore,
		publisher: publisher,
		log:       log.With().Str("component", "pipeline").Logger(),
	}
}

// Measure builds the panel from the raw directory and writes the panel and
// the three measure artifacts.
func (p *Pipeline) Measure(ctx context.Context) (measures.Measures, []string, error) {
	defer utils.StageTimer("measure", p.log)()

	raw, err := p.loader.Load(ctx, p.cfg.RawDir)
	if err != nil {
		return measures.Measures{}, nil, fmt.Errorf("failed to load raw data: %w", err)
	}

	pnl, err := p.builder.Build(raw)
	if err != nil {
		return measures.Measures{}, nil, fmt.Errorf("failed to build panel: %w", err)
	}

	m, err := p.engine.Measure(pnl)
	if err != nil {
		return measures.Measures{}, nil, err
	}

	panelFile, err := p.store.WritePanel(pnl)
	if err != nil {
		return measures.Measures{}, nil, err
	}
	files, err := p.store.WriteMeasures(m)
	if err != nil {
		return measures.Measures{}, nil, err
	}

	return m, append([]string{panelFile}, files...), nil
}

// Solve recovers q from the measure artifacts already in the output directory.
func (p *Pipeline) Solve(ctx context.Context) (Outcome, error) {
	m, err := p.store.ReadMeasures()
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to read measures: %w", err)
	}
	files := []string{
		p.store.Path(artifacts.ReturnsFile),
		p.store.Path(artifacts.CovarianceFile),
		p.store.Path(artifacts.WeightsFile),
	}
	if _, err := os.Stat(p.store.Path(artifacts.MetaFile)); err == nil {
		files = append(files, p.store.Path(artifacts.MetaFile))
	}
	return p.solve(ctx, m, files)
}

// Run executes every stage from raw files to the stored run.
func (p *Pipeline) Run(ctx context.Context) (Outcome, error) {
	m, files, err := p.Measure(ctx)
	if err != nil {
		return Outcome{}, err
	}
	return p.solve(ctx, m, files)
}

// Check scores OLS and Lasso predictions of the weights from the stored measures.
func (p *Pipeline) Check(ctx context.Context) ([]regression.Score, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	defer utils.StageTimer("check", p.log)()

	m, err := p.store.ReadMeasures()
	if err != nil {
		return nil, fmt.Errorf("failed to read measures: %w", err)
	}
	return p.checker.Check(m.Returns, m.Covariance, m.Weights.Vector)
}

// History lists the most recent stored runs.
func (p *Pipeline) History(ctx context.Context, limit int) ([]runs.Run, error) {
	if p.runs == nil {
		return nil, fmt.Errorf("run history is not configured")
	}
	return p.runs.List(ctx, limit)
}

// Replay solves a stored run again from its snapshot with the current solver
// settings. Nothing is written or recorded.
func (p *Pipeline) Replay(ctx context.Context, id string) (runs.Run, riskaversion.Result, error) {
	if p.runs == nil {
		return runs.Run{}, riskaversion.Result{}, fmt.Errorf("run history is not configured")
	}
	run, err := p.runs.Get(ctx, id)
	if err != nil {
		return runs.Run{}, riskaversion.Result{}, err
	}
	m, err := run.Snapshot.Measures(run.WeightSum)
	if err != nil {
		return runs.Run{}, riskaversion.Result{}, fmt.Errorf("failed to restore run %s: %w", id, err)
	}
	result, err := p.solver.Solve(m.Returns, m.Covariance, m.Weights.Vector)
	if err != nil {
		return runs.Run{}, riskaversion.Result{}, fmt.Errorf("failed to replay run %s: %w", id, err)
	}
	return run, result, nil
}

func (p *Pipeline) solve(ctx context.Context, m measures.Measures, files []string) (Outcome, error) {
	defer utils.StageTimer("solve", p.log)()

	result, err := p.solver.Solve(m.Returns, m.Covariance, m.Weights.Vector)
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to solve risk aversion: %w", err)
	}

	qFile, err := p.store.WriteRiskAversion(result.Q)
	if err != nil {
		return Outcome{}, err
	}

	policy := m.Policy
	if policy == "" {
		policy = p.cfg.Measures.MissingDates
	}

	out := Outcome{
		RunID:    uuid.New().String(),
		Result:   result,
		Measures: m,
		Files:    append(files, qFile),
	}

	if p.runs != nil {
		if _, err := p.runs.Create(ctx, runs.Run{
			ID:            out.RunID,
			Assets:        m.Returns.Len(),
			WeightSum:     m.Weights.RawSum,
			Q:             result.Q,
			Unconstrained: result.Unconstrained,
			Objective:     result.Objective,
			Condition:     result.Condition,
			AtBound:       result.AtBound,
			Method:        string(result.Method),
			Policy:        string(policy),
			Snapshot:      runs.NewSnapshot(m),
		}); err != nil {
			return Outcome{}, fmt.Errorf("failed to record run: %w", err)
		}
	}

	if p.publisher != nil {
		if err := p.publisher.PublishFiles(ctx, out.RunID, out.Files); err != nil {
			return Outcome{}, fmt.Errorf("failed to publish artifacts: %w", err)
		}
	}

	p.log.Info().
		Str("run_id", out.RunID).
		Float64("q", result.Q).
		Float64("weight_sum", m.Weights.RawSum).
		Int("files", len(out.Files)).
		Msg("Pipeline run complete")

	return out, nil
}

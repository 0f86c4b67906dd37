package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/ethpandaops/posintel/pkg/aggregator"
	"github.com/ethpandaops/posintel/pkg/decision"
	"github.com/ethpandaops/posintel/pkg/detection"
	"github.com/ethpandaops/posintel/pkg/insights"
	"github.com/ethpandaops/posintel/pkg/observability"
	"github.com/ethpandaops/posintel/pkg/pos"
	"github.com/ethpandaops/posintel/pkg/store"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Stage statuses
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// StageResult describes one executed stage
type StageResult struct {
	Name     string        `json:"name"`
	Status   string        `json:"status"`
	Rows     int           `json:"rows"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// Result describes a pipeline run
type Result struct {
	RunID     string        `json:"run_id"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Stages    []StageResult `json:"stages"`
}

// Stage returns the result of the named stage, if it ran
func (r *Result) Stage(name string) (StageResult, bool) {
	for _, s := range r.Stages {
		if s.Name == name {
			return s, true
		}
	}

	return StageResult{}, false
}

type stageFunc func(ctx context.Context, st store.Store) (int, error)

// Runner executes stages against a store. The store is passed to every run;
// the runner holds no storage state of its own.
type Runner struct {
	log     logrus.FieldLogger
	graph   *Graph
	lockTTL time.Duration
	locker  Locker

	aggregator *aggregator.Aggregator
	detector   *detection.Detector
	generator  *insights.Generator
	engine     *decision.Engine

	stages map[string]stageFunc
}

// NewRunner creates a runner. generator and locker may be nil: without a
// generator the insights stage is skipped, without a locker stages are not
// serialized across processes.
func NewRunner(log logrus.FieldLogger, cfg *Config, generator *insights.Generator, locker Locker) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline configuration: %w", err)
	}

	graph, err := NewGraph()
	if err != nil {
		return nil, err
	}

	agg, err := aggregator.New(log, &cfg.Aggregation)
	if err != nil {
		return nil, err
	}

	detector, err := detection.NewDetector(log, &cfg.Detection)
	if err != nil {
		return nil, err
	}

	engine, err := decision.NewEngine(log, &cfg.Decision)
	if err != nil {
		return nil, err
	}

	r := &Runner{
		log:        log.WithField("component", "pipeline"),
		graph:      graph,
		lockTTL:    cfg.LockTTL,
		locker:     locker,
		aggregator: agg,
		detector:   detector,
		generator:  generator,
		engine:     engine,
	}

	r.stages = map[string]stageFunc{
		StageAggregate: r.aggregate,
		StageDetect:    r.detect,
		StageInsights:  r.insights,
		StageDecide:    r.decide,
	}

	return r, nil
}

// Graph returns the stage graph
func (r *Runner) Graph() *Graph {
	return r.graph
}

// Run executes the requested stages, or all stages, with a new run id
func (r *Runner) Run(ctx context.Context, st store.Store, stages ...string) (*Result, error) {
	return r.RunWithID(ctx, uuid.NewString(), st, stages...)
}

// RunWithID executes the requested stages in dependency order. The first
// failing stage aborts the run; its output table and those of later stages
// keep their previous content.
func (r *Runner) RunWithID(ctx context.Context, runID string, st store.Store, stages ...string) (*Result, error) {
	order, err := r.graph.Order(stages...)
	if err != nil {
		return nil, err
	}

	result := &Result{RunID: runID, StartedAt: time.Now()}
	log := r.log.WithField("run_id", runID)

	log.WithField("stages", order).Info("Starting pipeline run")

	for _, name := range order {
		stage := r.runStage(ctx, log, name, st)
		result.Stages = append(result.Stages, stage.StageResult)

		if stage.err != nil {
			result.Duration = time.Since(result.StartedAt)

			return result, fmt.Errorf("stage %s failed: %w", name, stage.err)
		}
	}

	result.Duration = time.Since(result.StartedAt)

	log.WithField("duration", result.Duration.String()).Info("Pipeline run complete")

	return result, nil
}

type stageOutcome struct {
	StageResult
	err error
}

func (r *Runner) runStage(ctx context.Context, log logrus.FieldLogger, name string, st store.Store) stageOutcome {
	log = log.WithField("stage", name)
	out := stageOutcome{StageResult: StageResult{Name: name}}

	if r.locker != nil {
		release, err := r.locker.Acquire(ctx, name, r.lockTTL)
		if err != nil {
			out.Status = StatusFailed
			out.Error = err.Error()
			out.err = err

			return out
		}
		defer release()
	}

	if name == StageInsights && r.generator == nil {
		// Publish an empty table so decide sees no text from earlier runs
		if err := st.ReplaceInsights(ctx, nil); err != nil {
			out.Status = StatusFailed
			out.Error = err.Error()
			out.err = fmt.Errorf("failed to clear insights: %w", err)

			observability.RecordError("pipeline", name)

			return out
		}

		log.Info("No insight provider configured, cleared insights and skipped stage")
		observability.RecordStageSkipped(name)

		out.Status = StatusSkipped

		return out
	}

	start := time.Now()

	observability.RecordStageStart(name)

	rows, err := r.stages[name](ctx, st)

	out.Duration = time.Since(start)
	out.Rows = rows

	if err != nil {
		out.Status = StatusFailed
		out.Error = err.Error()
		out.err = err

		observability.RecordStageComplete(name, StatusFailed, out.Duration.Seconds())
		observability.RecordError("pipeline", name)
		log.WithError(err).Error("Stage failed")

		return out
	}

	out.Status = StatusSuccess

	observability.RecordStageComplete(name, StatusSuccess, out.Duration.Seconds())
	observability.RecordStageRows(name, rows)

	log.WithFields(logrus.Fields{
		"rows":     rows,
		"duration": out.Duration.String(),
	}).Info("Stage complete")

	return out
}

func (r *Runner) aggregate(ctx context.Context, st store.Store) (int, error) {
	rows, err := st.Transactions(ctx)
	if err != nil {
		return 0, err
	}

	series, err := r.aggregator.Run(rows)
	if err != nil {
		return 0, err
	}

	if err := st.ReplaceDailySeries(ctx, series); err != nil {
		return 0, err
	}

	return len(series), nil
}

func (r *Runner) detect(ctx context.Context, st store.Store) (int, error) {
	series, err := st.DailySeries(ctx, store.Filter{})
	if err != nil {
		return 0, err
	}

	var stock []pos.StockLevel
	if r.detector.LowStockEnabled() {
		if stock, err = st.StockLevels(ctx); err != nil {
			return 0, err
		}
	}

	alerts, err := r.detector.Detect(series, stock)
	if err != nil {
		return 0, err
	}

	if err := st.ReplaceAlerts(ctx, alerts); err != nil {
		return 0, err
	}

	for _, a := range alerts {
		observability.RecordAlert(string(a.AlertType))
	}

	return len(alerts), nil
}

func (r *Runner) insights(ctx context.Context, st store.Store) (int, error) {
	series, err := st.DailySeries(ctx, store.Filter{})
	if err != nil {
		return 0, err
	}

	alerts, err := st.Alerts(ctx, store.Filter{})
	if err != nil {
		return 0, err
	}

	texts, err := r.generator.Generate(ctx, alerts, series)
	if err != nil {
		return 0, err
	}

	if err := st.ReplaceInsights(ctx, texts); err != nil {
		return 0, err
	}

	return len(texts), nil
}

func (r *Runner) decide(ctx context.Context, st store.Store) (int, error) {
	series, err := st.DailySeries(ctx, store.Filter{})
	if err != nil {
		return 0, err
	}

	alerts, err := st.Alerts(ctx, store.Filter{})
	if err != nil {
		return 0, err
	}

	texts, err := st.Insights(ctx, store.Filter{})
	if err != nil {
		return 0, err
	}

	decisions, err := r.engine.BuildDecisions(series, alerts, texts)
	if err != nil {
		return 0, err
	}

	if err := st.ReplaceDecisions(ctx, decisions); err != nil {
		return 0, err
	}

	return len(decisions), nil
}

package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ethpandaops/posintel/internal/testutil"
	"github.com/ethpandaops/posintel/pkg/aggregator"
	"github.com/ethpandaops/posintel/pkg/decision"
	"github.com/ethpandaops/posintel/pkg/detection"
	"github.com/ethpandaops/posintel/pkg/insights"
	"github.com/ethpandaops/posintel/pkg/pos"
	"github.com/ethpandaops/posintel/pkg/store"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func testConfig() *Config {
	return &Config{
		Aggregation: aggregator.Config{Bucket: aggregator.BucketDay, Timezone: "UTC"},
		Detection: detection.Config{
			Parallelism: 2,
			Spike:       detection.SpikeConfig{Window: 7, MinPeriods: 3, Threshold: 2.0},
			LowStock:    detection.LowStockConfig{StockThreshold: 10, DemandThreshold: 50},
		},
		Decision: decision.Config{Window: 7, MinPeriods: 3, CoverageDays: 7},
		LockTTL:  time.Minute,
	}
}

func seededStore(t *testing.T) *store.Memory {
	t.Helper()

	st := store.NewMemory()
	require.NoError(t, st.AppendTransactions(context.Background(), testutil.SpikeTransactions("S1", "I1")))

	return st
}

func TestGraph_Order(t *testing.T) {
	g, err := NewGraph()
	require.NoError(t, err)

	tests := []struct {
		name      string
		requested []string
		expected  []string
	}{
		{name: "all", expected: []string{StageAggregate, StageDetect, StageInsights, StageDecide}},
		{name: "reversed", requested: []string{StageDecide, StageAggregate}, expected: []string{StageAggregate, StageDecide}},
		{name: "duplicates", requested: []string{StageDetect, StageDetect}, expected: []string{StageDetect}},
		{name: "single", requested: []string{StageInsights}, expected: []string{StageInsights}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order, err := g.Order(tt.requested...)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, order)
		})
	}

	_, err = g.Order("publish")
	assert.ErrorIs(t, err, ErrUnknownStage)
}

func TestGraph_Downstream(t *testing.T) {
	g, err := NewGraph()
	require.NoError(t, err)

	stages, err := g.Downstream(StageDetect)
	require.NoError(t, err)
	assert.Equal(t, []string{StageDetect, StageInsights, StageDecide}, stages)

	stages, err = g.Downstream(StageDecide)
	require.NoError(t, err)
	assert.Equal(t, []string{StageDecide}, stages)

	_, err = g.Downstream("nope")
	assert.ErrorIs(t, err, ErrUnknownStage)
}

func TestGraph_DependsOn(t *testing.T) {
	g, err := NewGraph()
	require.NoError(t, err)

	deps, err := g.DependsOn(StageAggregate)
	require.NoError(t, err)
	assert.Empty(t, deps)

	deps, err = g.DependsOn(StageDecide)
	require.NoError(t, err)
	assert.Equal(t, []string{StageAggregate, StageDetect, StageInsights}, deps)

	_, err = g.DependsOn("nope")
	assert.ErrorIs(t, err, ErrUnknownStage)
}

func TestRedisLocker(t *testing.T) {
	mr, client := testutil.NewMiniredisClient(t)
	locker := NewRedisLocker(logrus.New(), client, "posintel")
	ctx := context.Background()

	assert.Equal(t, "posintel:lock:stage:detect", locker.Key(StageDetect))

	release, err := locker.Acquire(ctx, StageDetect, time.Minute)
	require.NoError(t, err)
	assert.True(t, mr.Exists("posintel:lock:stage:detect"))

	_, err = locker.Acquire(ctx, StageDetect, time.Minute)
	assert.ErrorIs(t, err, ErrLockHeld)

	// Other stages are independent
	releaseDecide, err := locker.Acquire(ctx, StageDecide, time.Minute)
	require.NoError(t, err)
	releaseDecide()

	release()
	assert.False(t, mr.Exists("posintel:lock:stage:detect"))

	release, err = locker.Acquire(ctx, StageDetect, time.Minute)
	require.NoError(t, err)
	release()
}

func TestRedisLocker_ReleaseKeepsForeignLock(t *testing.T) {
	mr, client := testutil.NewMiniredisClient(t)
	locker := NewRedisLocker(logrus.New(), client, "")

	release, err := locker.Acquire(context.Background(), StageAggregate, time.Second)
	require.NoError(t, err)

	// The lock expires and another run takes it over
	mr.FastForward(2 * time.Second)
	require.NoError(t, mr.Set("lock:stage:aggregate", "other-run"))

	release()

	value, err := mr.Get("lock:stage:aggregate")
	require.NoError(t, err)
	assert.Equal(t, "other-run", value)
}

func TestRunner_FullRun(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	st := seededStore(t)

	runner, err := NewRunner(logrus.New(), testConfig(), nil, nil)
	require.NoError(t, err)

	result, err := runner.Run(context.Background(), st)
	require.NoError(t, err)
	assert.NotEmpty(t, result.RunID)
	require.Len(t, result.Stages, 4)

	aggregate, ok := result.Stage(StageAggregate)
	require.True(t, ok)
	assert.Equal(t, StatusSuccess, aggregate.Status)
	assert.Equal(t, 10, aggregate.Rows)

	skipped, ok := result.Stage(StageInsights)
	require.True(t, ok)
	assert.Equal(t, StatusSkipped, skipped.Status)

	alerts, err := st.Alerts(context.Background(), store.Filter{})
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.True(t, testutil.Day(8).Equal(alerts[0].Day))
	assert.Equal(t, pos.AlertTypeSalesSpike, alerts[0].AlertType)

	decisions, err := st.Decisions(context.Background(), store.Filter{})
	require.NoError(t, err)
	require.Len(t, decisions, len(alerts))
	assert.Nil(t, decisions[0].InsightText)
	assert.Equal(t, alerts[0].Day, decisions[0].Day)
}

func TestRunner_SkippedInsightsClearsEarlierText(t *testing.T) {
	ctx := context.Background()
	st := seededStore(t)

	// Text published by a run that still had a provider
	earlier := []pos.InsightText{{StoreID: "S1", ItemID: "I1", Day: testutil.Day(8), AlertType: pos.AlertTypeSalesSpike, Text: "Old explanation"}}
	require.NoError(t, st.ReplaceInsights(ctx, earlier))

	runner, err := NewRunner(logrus.New(), testConfig(), nil, nil)
	require.NoError(t, err)

	result, err := runner.Run(ctx, st)
	require.NoError(t, err)

	skipped, ok := result.Stage(StageInsights)
	require.True(t, ok)
	assert.Equal(t, StatusSkipped, skipped.Status)

	remaining, err := st.Insights(ctx, store.Filter{})
	require.NoError(t, err)
	assert.Empty(t, remaining)

	decisions, err := st.Decisions(ctx, store.Filter{})
	require.NoError(t, err)
	require.Len(t, decisions, 1)
	assert.Nil(t, decisions[0].InsightText)
}

func TestRunner_WithInsightsAndLock(t *testing.T) {
	_, client := testutil.NewMiniredisClient(t)
	st := seededStore(t)

	provider := insights.ProviderFunc(func(_ context.Context, prompt string) (string, error) {
		if !strings.Contains(prompt, "S1") {
			return "", errors.New("unexpected prompt")
		}

		return "Weekend promotion", nil
	})

	generator, err := insights.NewGenerator(logrus.New(), provider, 14)
	require.NoError(t, err)

	locker := NewRedisLocker(logrus.New(), client, "posintel")

	runner, err := NewRunner(logrus.New(), testConfig(), generator, locker)
	require.NoError(t, err)

	result, err := runner.RunWithID(context.Background(), "run-1", st)
	require.NoError(t, err)
	assert.Equal(t, "run-1", result.RunID)

	for _, s := range result.Stages {
		assert.Equal(t, StatusSuccess, s.Status, s.Name)
	}

	decisions, err := st.Decisions(context.Background(), store.Filter{})
	require.NoError(t, err)
	require.Len(t, decisions, 1)
	require.NotNil(t, decisions[0].InsightText)
	assert.Equal(t, "Weekend promotion", *decisions[0].InsightText)

	// Every lock was released
	keys, err := client.Keys(context.Background(), "posintel:lock:*").Result()
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestRunner_HeldLockFailsStage(t *testing.T) {
	_, client := testutil.NewMiniredisClient(t)
	locker := NewRedisLocker(logrus.New(), client, "")

	release, err := locker.Acquire(context.Background(), StageDetect, time.Minute)
	require.NoError(t, err)
	defer release()

	runner, err := NewRunner(logrus.New(), testConfig(), nil, locker)
	require.NoError(t, err)

	result, err := runner.Run(context.Background(), seededStore(t))
	require.ErrorIs(t, err, ErrLockHeld)
	require.Len(t, result.Stages, 2)
	assert.Equal(t, StatusFailed, result.Stages[1].Status)
}

type failingStore struct {
	*store.Memory
}

var errPublish = errors.New("publish failed")

func (f failingStore) ReplaceAlerts(_ context.Context, _ []pos.Alert) error {
	return errPublish
}

func TestRunner_FailedStageAbortsRun(t *testing.T) {
	st := seededStore(t)

	previous := []pos.Decision{{StoreID: "S0", ItemID: "I0", Day: testutil.Day(1), RecommendedAction: decision.ActionMonitor}}
	require.NoError(t, st.ReplaceDecisions(context.Background(), previous))

	runner, err := NewRunner(logrus.New(), testConfig(), nil, nil)
	require.NoError(t, err)

	result, err := runner.Run(context.Background(), failingStore{Memory: st})
	require.ErrorIs(t, err, errPublish)

	require.Len(t, result.Stages, 2)
	assert.Equal(t, StatusSuccess, result.Stages[0].Status)
	assert.Equal(t, StatusFailed, result.Stages[1].Status)
	assert.Contains(t, result.Stages[1].Error, "publish failed")

	// Later stages did not run
	decisions, err := st.Decisions(context.Background(), store.Filter{})
	require.NoError(t, err)
	assert.Equal(t, previous, decisions)
}

func TestRunner_RequestedStagesOnly(t *testing.T) {
	st := seededStore(t)

	runner, err := NewRunner(logrus.New(), testConfig(), nil, nil)
	require.NoError(t, err)

	result, err := runner.Run(context.Background(), st, StageAggregate)
	require.NoError(t, err)
	require.Len(t, result.Stages, 1)

	alerts, err := st.Alerts(context.Background(), store.Filter{})
	require.NoError(t, err)
	assert.Empty(t, alerts)

	_, err = runner.Run(context.Background(), st, "unknown")
	assert.ErrorIs(t, err, ErrUnknownStage)
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, testConfig().Validate())

	cfg := testConfig()
	cfg.LockTTL = 0
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidLockTTL)

	cfg = testConfig()
	cfg.Detection.Parallelism = 0
	assert.ErrorIs(t, cfg.Validate(), detection.ErrInvalidParallelism)

	_, err := NewRunner(logrus.New(), cfg, nil, nil)
	assert.Error(t, err)
}

package worker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ethpandaops/posintel/internal/testutil"
	"github.com/ethpandaops/posintel/pkg/aggregator"
	"github.com/ethpandaops/posintel/pkg/decision"
	"github.com/ethpandaops/posintel/pkg/detection"
	"github.com/ethpandaops/posintel/pkg/pipeline"
	"github.com/ethpandaops/posintel/pkg/store"
	"github.com/ethpandaops/posintel/pkg/tasks"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *Config {
	return &Config{Enabled: true, Concurrency: 1}
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, testConfig().Validate())
	assert.ErrorIs(t, (&Config{Enabled: true}).Validate(), ErrInvalidConcurrency)
	assert.NoError(t, (&Config{}).Validate())
}

func TestService_ProcessesRunTask(t *testing.T) {
	st := store.NewMemory()
	require.NoError(t, st.AppendTransactions(context.Background(), testutil.SpikeTransactions("S1", "I1")))

	runner, err := pipeline.NewRunner(logrus.New(), &pipeline.Config{
		Aggregation: aggregator.Config{Bucket: aggregator.BucketDay, Timezone: "UTC"},
		Detection: detection.Config{
			Parallelism: 1,
			Spike:       detection.SpikeConfig{Window: 7, MinPeriods: 3, Threshold: 2.0},
		},
		Decision: decision.Config{Window: 7, MinPeriods: 3, CoverageDays: 7},
		LockTTL:  time.Minute,
	}, nil, nil)
	require.NoError(t, err)

	handler := tasks.NewTaskHandler(logrus.New(), runner, st)

	svc, err := NewService(logrus.New(), testConfig(), &asynq.RedisClientOpt{Addr: "localhost:0"}, tasks.DefaultQueue, handler)
	require.NoError(t, err)

	data, err := json.Marshal(tasks.RunPayload{RunID: "run-1"})
	require.NoError(t, err)

	mux := svc.(*service).Mux()
	require.NoError(t, mux.ProcessTask(context.Background(), asynq.NewTask(tasks.TypePipelineRun, data)))

	decisions, err := st.Decisions(context.Background(), store.Filter{})
	require.NoError(t, err)
	assert.Len(t, decisions, 1)
}

func TestService_UnknownTaskType(t *testing.T) {
	handler := tasks.NewTaskHandler(logrus.New(), nil, store.NewMemory())

	svc, err := NewService(logrus.New(), testConfig(), &asynq.RedisClientOpt{Addr: "localhost:0"}, tasks.DefaultQueue, handler)
	require.NoError(t, err)

	err = svc.(*service).Mux().ProcessTask(context.Background(), asynq.NewTask("other:type", nil))
	assert.Error(t, err)
}

func TestService_DisabledStartStop(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false

	svc, err := NewService(logrus.New(), cfg, &asynq.RedisClientOpt{Addr: "localhost:0"}, tasks.DefaultQueue, nil)
	require.NoError(t, err)

	require.NoError(t, svc.Start(context.Background()))
	require.NoError(t, svc.Stop())
}

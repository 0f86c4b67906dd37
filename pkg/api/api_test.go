package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethpandaops/posintel/internal/testutil"
	"github.com/ethpandaops/posintel/pkg/api/handlers"
	"github.com/ethpandaops/posintel/pkg/pos"
	"github.com/ethpandaops/posintel/pkg/store"
	"github.com/ethpandaops/posintel/pkg/tasks"
	"github.com/gofiber/fiber/v3"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQueue struct {
	payloads []tasks.RunPayload
	statuses map[string]*tasks.RunStatus
}

func (f *fakeQueue) EnqueueRun(_ context.Context, payload tasks.RunPayload, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	f.payloads = append(f.payloads, payload)

	return &asynq.TaskInfo{ID: payload.UniqueID(), Queue: tasks.DefaultQueue}, nil
}

func (f *fakeQueue) RunStatus(runID string) (*tasks.RunStatus, error) {
	status, ok := f.statuses[runID]
	if !ok {
		return nil, tasks.ErrRunNotFound
	}

	return status, nil
}

func seededStore(t *testing.T) *store.Memory {
	t.Helper()

	ctx := context.Background()
	st := store.NewMemory()

	require.NoError(t, st.ReplaceDailySeries(ctx, []pos.DailySeriesPoint{
		{StoreID: "S2", ItemID: "I9", Day: testutil.Day(1), Quantity: 1, NetSales: 5},
		{StoreID: "S1", ItemID: "I1", Day: testutil.Day(1), Quantity: 2, NetSales: 10},
		{StoreID: "S1", ItemID: "I2", Day: testutil.Day(1), Quantity: 3, NetSales: 15},
	}))

	require.NoError(t, st.ReplaceAlerts(ctx, []pos.Alert{
		{StoreID: "S1", ItemID: "I1", Day: testutil.Day(1), AlertType: pos.AlertTypeSalesSpike, NetSales: pos.Float(10), ZScore: pos.Float(2.5)},
		{StoreID: "S1", ItemID: "I1", Day: testutil.Day(1), AlertType: pos.AlertTypeLowStockHighDemand, Quantity: pos.Float(60), StockQuantity: pos.Float(4)},
	}))

	insight := "Weekend promotion"

	require.NoError(t, st.ReplaceDecisions(ctx, []pos.Decision{
		{StoreID: "S1", ItemID: "I1", Day: testutil.Day(1), AlertType: pos.AlertTypeSalesSpike, InsightText: &insight, ReplenishmentQuantity: 12.5, RecommendedAction: "Replenish 12 units and monitor promotion impact."},
	}))

	return st
}

func newTestApp(t *testing.T, queue handlers.RunQueue) *fiber.App {
	t.Helper()

	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)

	return NewApp(handlers.NewServer(seededStore(t), queue, log), log, nil)
}

func do(t *testing.T, app *fiber.App, method, target, body string) (int, []byte) {
	t.Helper()

	var reader io.Reader = http.NoBody
	if body != "" {
		reader = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, data
}

type listResponse[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
}

func TestListSeries(t *testing.T) {
	app := newTestApp(t, nil)

	tests := []struct {
		name      string
		query     string
		wantTotal int
	}{
		{name: "all", query: "", wantTotal: 3},
		{name: "by store", query: "?store_id=S1", wantTotal: 2},
		{name: "by store and item", query: "?store_id=S1&item_id=I2", wantTotal: 1},
		{name: "no match", query: "?store_id=S404", wantTotal: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := do(t, app, http.MethodGet, "/api/v1/series"+tt.query, "")
			assert.Equal(t, http.StatusOK, status)

			var resp listResponse[pos.DailySeriesPoint]
			require.NoError(t, json.Unmarshal(body, &resp))
			assert.Equal(t, tt.wantTotal, resp.Total)
			assert.Len(t, resp.Items, tt.wantTotal)
		})
	}
}

func TestListAlerts(t *testing.T) {
	app := newTestApp(t, nil)

	status, body := do(t, app, http.MethodGet, "/api/v1/alerts?alert_type=low_stock_high_demand", "")
	require.Equal(t, http.StatusOK, status)

	var resp listResponse[pos.Alert]
	require.NoError(t, json.Unmarshal(body, &resp))
	require.Len(t, resp.Items, 1)
	assert.Equal(t, pos.AlertTypeLowStockHighDemand, resp.Items[0].AlertType)
	assert.Nil(t, resp.Items[0].ZScore)

	status, body = do(t, app, http.MethodGet, "/api/v1/alerts?alert_type=bogus", "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, string(body), "invalid alert_type")
}

func TestListDecisions(t *testing.T) {
	app := newTestApp(t, nil)

	status, body := do(t, app, http.MethodGet, "/api/v1/decisions?store_id=S1", "")
	require.Equal(t, http.StatusOK, status)

	var resp listResponse[map[string]any]
	require.NoError(t, json.Unmarshal(body, &resp))
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "Weekend promotion", resp.Items[0]["insight"])
	assert.Equal(t, "Replenish 12 units and monitor promotion impact.", resp.Items[0]["recommended_action"])
	assert.Equal(t, "2024-01-01T00:00:00Z", resp.Items[0]["day"])
}

func TestListInsightsEmpty(t *testing.T) {
	app := newTestApp(t, nil)

	status, body := do(t, app, http.MethodGet, "/api/v1/insights", "")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"items":[],"total":0}`, string(body))
}

func TestDimensions(t *testing.T) {
	app := newTestApp(t, nil)

	status, body := do(t, app, http.MethodGet, "/api/v1/stores", "")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"items":["S1","S2"],"total":2}`, string(body))

	status, body = do(t, app, http.MethodGet, "/api/v1/items?store_id=S1", "")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"items":["I1","I2"],"total":2}`, string(body))
}

func TestHealth(t *testing.T) {
	status, body := do(t, newTestApp(t, nil), http.MethodGet, "/api/v1/health", "")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"status":"ok","queue":false}`, string(body))
}

func TestCreateRun(t *testing.T) {
	queue := &fakeQueue{}
	app := newTestApp(t, queue)

	status, body := do(t, app, http.MethodPost, "/api/v1/runs", `{"stages":["decide","detect"]}`)
	require.Equal(t, http.StatusAccepted, status, string(body))

	var resp handlers.CreateRunResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	assert.NotEmpty(t, resp.RunID)
	assert.Equal(t, "run:"+resp.RunID, resp.TaskID)
	assert.Equal(t, []string{"detect", "decide"}, resp.Stages)

	require.Len(t, queue.payloads, 1)
	assert.Equal(t, tasks.TriggerAPI, queue.payloads[0].Trigger)
	assert.Equal(t, resp.RunID, queue.payloads[0].RunID)

	// No body means every stage
	status, body = do(t, app, http.MethodPost, "/api/v1/runs", "")
	require.Equal(t, http.StatusAccepted, status)
	require.NoError(t, json.Unmarshal(body, &resp))
	assert.Equal(t, []string{"aggregate", "detect", "insights", "decide"}, resp.Stages)
}

func TestCreateRunErrors(t *testing.T) {
	status, body := do(t, newTestApp(t, nil), http.MethodPost, "/api/v1/runs", `{}`)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.JSONEq(t, `{"error":"run queue is not configured","code":503}`, string(body))

	queue := &fakeQueue{}
	app := newTestApp(t, queue)

	status, _ = do(t, app, http.MethodPost, "/api/v1/runs", `{"stages":["publish"]}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = do(t, app, http.MethodPost, "/api/v1/runs", `{"stages":`)
	assert.Equal(t, http.StatusBadRequest, status)

	assert.Empty(t, queue.payloads)
}

func TestGetRun(t *testing.T) {
	queue := &fakeQueue{statuses: map[string]*tasks.RunStatus{
		"run-1": {RunID: "run-1", State: "completed", Result: json.RawMessage(`{"run_id":"run-1"}`)},
	}}
	app := newTestApp(t, queue)

	status, body := do(t, app, http.MethodGet, "/api/v1/runs/run-1", "")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"run_id":"run-1","state":"completed","retried":0,"result":{"run_id":"run-1"}}`, string(body))

	status, _ = do(t, app, http.MethodGet, "/api/v1/runs/missing", "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, (&Config{}).Validate())
	assert.ErrorIs(t, (&Config{Enabled: true}).Validate(), ErrAPIAddrRequired)
	assert.NoError(t, (&Config{Enabled: true, Addr: ":8080"}).Validate())
}

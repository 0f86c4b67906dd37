package clickhouse

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/ethpandaops/posintel/internal/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type row struct {
	StoreID  string  `json:"store_id"`
	Quantity float64 `json:"quantity"`
}

func newTestClient(t *testing.T, srv *testutil.ClickHouseServer) ClientInterface {
	t.Helper()

	c, err := NewClient(logrus.New(), &Config{URL: srv.URL, Database: "posintel"})
	require.NoError(t, err)

	return c
}

func TestClient_QueryMany(t *testing.T) {
	srv := testutil.NewClickHouseServer(t, func(_ string) (int, string) {
		return http.StatusOK, `{"meta":[{"name":"store_id","type":"String"}],"data":[{"store_id":"S1","quantity":2},{"store_id":"S2","quantity":3.5}],"rows":2}`
	})
	c := newTestClient(t, srv)

	var rows []row
	require.NoError(t, c.QueryMany(context.Background(), "SELECT store_id, quantity FROM t", &rows))

	assert.Equal(t, []row{{StoreID: "S1", Quantity: 2}, {StoreID: "S2", Quantity: 3.5}}, rows)
	assert.Equal(t, []string{"SELECT store_id, quantity FROM t FORMAT JSON"}, srv.Queries())

	t.Run("dest must be a slice pointer", func(t *testing.T) {
		var single row
		assert.ErrorIs(t, c.QueryMany(context.Background(), "SELECT 1", &single), ErrDestMustBePointerToSlice)
	})
}

func TestClient_QueryOne(t *testing.T) {
	srv := testutil.NewClickHouseServer(t, nil)
	c := newTestClient(t, srv)

	result := row{StoreID: "untouched"}
	require.NoError(t, c.QueryOne(context.Background(), "SELECT 1", &result))
	assert.Equal(t, "untouched", result.StoreID, "no rows leaves dest untouched")

	srv.SetResponder(func(_ string) (int, string) {
		return http.StatusOK, `{"data":[{"store_id":"S9","quantity":1}],"rows":1}`
	})

	require.NoError(t, c.QueryOne(context.Background(), "SELECT 1", &result))
	assert.Equal(t, "S9", result.StoreID)
}

func TestClient_BulkInsert(t *testing.T) {
	srv := testutil.NewClickHouseServer(t, nil)
	c := newTestClient(t, srv)

	require.NoError(t, c.BulkInsert(context.Background(), "`posintel`.`t`", []row{{"S1", 1}, {"S2", 2}}))
	require.NoError(t, c.BulkInsert(context.Background(), "`posintel`.`t`", []row{}))

	queries := srv.Queries()
	require.Len(t, queries, 1, "empty inserts are skipped")

	lines := strings.Split(strings.TrimSpace(queries[0]), "\n")
	assert.Equal(t, []string{
		"INSERT INTO `posintel`.`t` FORMAT JSONEachRow",
		`{"store_id":"S1","quantity":1}`,
		`{"store_id":"S2","quantity":2}`,
	}, lines)

	assert.ErrorIs(t, c.BulkInsert(context.Background(), "t", row{}), ErrDataMustBeSlice)
}

func TestClient_ErrorResponse(t *testing.T) {
	srv := testutil.NewClickHouseServer(t, func(_ string) (int, string) {
		return http.StatusNotFound, "Code: 60. DB::Exception: Table posintel.t does not exist.\n"
	})
	c := newTestClient(t, srv)

	_, err := c.Execute(context.Background(), "DROP TABLE posintel.t")
	require.ErrorIs(t, err, ErrClickHouseResponse)
	assert.Contains(t, err.Error(), "status 404")
	assert.Contains(t, err.Error(), "does not exist")
}

func TestClient_Credentials(t *testing.T) {
	var user, key string

	srv := testutil.NewClickHouseServer(t, nil)
	srv.Config.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user = r.Header.Get("X-ClickHouse-User")
		key = r.Header.Get("X-ClickHouse-Key")

		w.WriteHeader(http.StatusOK)
	})

	url := strings.Replace(srv.URL, "http://", "http://reader:s3cret@", 1)

	c, err := NewClient(logrus.New(), &Config{URL: url, Database: "posintel"})
	require.NoError(t, err)
	require.NoError(t, c.Start())

	assert.Equal(t, "reader", user)
	assert.Equal(t, "s3cret", key)
}

func TestClient_RespectsContextDeadline(t *testing.T) {
	srv := testutil.NewClickHouseServer(t, func(_ string) (int, string) {
		time.Sleep(200 * time.Millisecond)
		return http.StatusOK, ""
	})
	c := newTestClient(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Execute(ctx, "SELECT sleep(1)")
	assert.Error(t, err)
}

func TestTruncateQuery(t *testing.T) {
	assert.Equal(t, "short", truncateQuery("short", 10))
	assert.Equal(t, "abc... (truncated)", truncateQuery("abcdef", 3))
}

func TestQuoting(t *testing.T) {
	assert.Equal(t, "`a``b`", QuoteIdentifier("a`b"))
	assert.Equal(t, `'it\'s \\ ok'`, QuoteString(`it's \ ok`))
	assert.Equal(t, "`posintel`.`alerts`", TableName("posintel", "alerts"))
}

func TestTableExists(t *testing.T) {
	srv := testutil.NewClickHouseServer(t, func(_ string) (int, string) {
		return http.StatusOK, `{"data":[{"count":"1"}],"rows":1}`
	})
	c := newTestClient(t, srv)

	ok, err := TableExists(context.Background(), c, "posintel", "alerts")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, srv.Queries()[0], "database = 'posintel' AND name = 'alerts'")
}

package clickhouse

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/ethpandaops/posintel/pkg/observability"
	"github.com/sirupsen/logrus"
)

// Define static errors
var (
	ErrDestMustBePointerToSlice = errors.New("dest must be a pointer to a slice")
	ErrDataMustBeSlice          = errors.New("data must be a slice")
	ErrClickHouseResponse       = errors.New("clickhouse error")
)

const (
	queryTypeSelect  = "select"
	queryTypeInsert  = "insert"
	queryTypeExecute = "execute"

	maxLoggedQuery = 1000
)

// clickhouseResponse represents the JSON response from ClickHouse HTTP interface.
type clickhouseResponse struct {
	Data []json.RawMessage `json:"data"`
	Meta []struct {
		Name string `json:"name"`
		Type string `json:"type"`
	} `json:"meta"`
	Rows     int `json:"rows"`
	RowsRead int `json:"rows_read"` //nolint:tagliatelle // ClickHouse API uses snake_case
}

// ClientInterface defines the methods for interacting with ClickHouse
type ClientInterface interface {
	// QueryOne executes a query and decodes the first row into dest
	QueryOne(ctx context.Context, query string, dest interface{}) error
	// QueryMany executes a query and decodes every row into the slice dest points to
	QueryMany(ctx context.Context, query string, dest interface{}) error
	// Execute runs a statement and returns the raw response body
	Execute(ctx context.Context, query string) ([]byte, error)
	// BulkInsert writes a slice of rows to table as JSONEachRow
	BulkInsert(ctx context.Context, table string, data interface{}) error
	// Start checks connectivity
	Start() error
	// Stop releases idle connections
	Stop() error
}

// client implements the ClientInterface using HTTP
type client struct {
	log           logrus.FieldLogger
	httpClient    *http.Client
	endpoint      string
	username      string
	password      string
	debug         bool
	queryTimeout  time.Duration
	insertTimeout time.Duration
}

// NewClient creates a new HTTP-based ClickHouse client
func NewClient(log logrus.FieldLogger, cfg *Config) (ClientInterface, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	cfg.SetDefaults()

	endpoint, err := url.Parse(strings.TrimRight(cfg.URL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	// Credentials embedded in the URL are sent as headers instead
	username, password := cfg.Username, cfg.Password
	if endpoint.User != nil {
		if username == "" {
			username = endpoint.User.Username()
		}

		if p, ok := endpoint.User.Password(); ok && password == "" {
			password = p
		}

		endpoint.User = nil
	}

	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     cfg.KeepAlive,
	}

	return &client{
		log:           log.WithField("component", "clickhouse-http"),
		httpClient:    &http.Client{Transport: transport},
		endpoint:      endpoint.String(),
		username:      username,
		password:      password,
		debug:         cfg.Debug,
		queryTimeout:  cfg.QueryTimeout,
		insertTimeout: cfg.InsertTimeout,
	}, nil
}

func (c *client) Start() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := c.Execute(ctx, "SELECT 1"); err != nil {
		return fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	c.log.Info("Connected to ClickHouse HTTP interface")

	return nil
}

func (c *client) Stop() error {
	c.httpClient.CloseIdleConnections()

	c.log.Info("Closed ClickHouse HTTP client")

	return nil
}

func (c *client) QueryOne(ctx context.Context, query string, dest interface{}) error {
	result, err := c.query(ctx, query)
	if err != nil {
		return err
	}

	// No rows leaves dest untouched
	if len(result.Data) == 0 {
		return nil
	}

	if err := json.Unmarshal(result.Data[0], dest); err != nil {
		return fmt.Errorf("failed to unmarshal result: %w", err)
	}

	return nil
}

func (c *client) QueryMany(ctx context.Context, query string, dest interface{}) error {
	destValue := reflect.ValueOf(dest)
	if destValue.Kind() != reflect.Ptr || destValue.Elem().Kind() != reflect.Slice {
		return ErrDestMustBePointerToSlice
	}

	result, err := c.query(ctx, query)
	if err != nil {
		return err
	}

	sliceType := destValue.Elem().Type()
	elemType := sliceType.Elem()
	rows := reflect.MakeSlice(sliceType, len(result.Data), len(result.Data))

	for i, data := range result.Data {
		elem := reflect.New(elemType)
		if err := json.Unmarshal(data, elem.Interface()); err != nil {
			return fmt.Errorf("failed to unmarshal row %d: %w", i, err)
		}

		rows.Index(i).Set(elem.Elem())
	}

	destValue.Elem().Set(rows)

	return nil
}

func (c *client) query(ctx context.Context, query string) (*clickhouseResponse, error) {
	resp, err := c.do(ctx, queryTypeSelect, query+" FORMAT JSON", c.timeout(ctx, c.queryTimeout))
	if err != nil {
		return nil, fmt.Errorf("query execution failed: %w", err)
	}

	var result clickhouseResponse
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return &result, nil
}

func (c *client) Execute(ctx context.Context, query string) ([]byte, error) {
	body, err := c.do(ctx, queryTypeExecute, query, c.timeout(ctx, c.queryTimeout))
	if err != nil {
		return nil, fmt.Errorf("execution failed: %w", err)
	}

	return body, nil
}

func (c *client) BulkInsert(ctx context.Context, table string, data interface{}) error {
	dataValue := reflect.ValueOf(data)
	if dataValue.Kind() != reflect.Slice {
		return ErrDataMustBeSlice
	}

	if dataValue.Len() == 0 {
		return nil
	}

	var buf bytes.Buffer

	fmt.Fprintf(&buf, "INSERT INTO %s FORMAT JSONEachRow\n", table)

	for i := 0; i < dataValue.Len(); i++ {
		row, err := json.Marshal(dataValue.Index(i).Interface())
		if err != nil {
			return fmt.Errorf("failed to marshal row %d: %w", i, err)
		}

		buf.Write(row)
		buf.WriteByte('\n')
	}

	if _, err := c.do(ctx, queryTypeInsert, buf.String(), c.timeout(ctx, c.insertTimeout)); err != nil {
		return fmt.Errorf("bulk insert failed: %w", err)
	}

	return nil
}

func (c *client) do(ctx context.Context, queryType, query string, timeout time.Duration) ([]byte, error) {
	start := time.Now()

	body, err := c.executeHTTPRequest(ctx, query, timeout)

	status := "success"
	if err != nil {
		status = "error"
	}

	observability.RecordClickHouseQuery(queryType, status, time.Since(start).Seconds())

	return body, err
}

func (c *client) executeHTTPRequest(ctx context.Context, query string, timeout time.Duration) ([]byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.endpoint, strings.NewReader(query))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "text/plain")

	if c.username != "" {
		req.Header.Set("X-ClickHouse-User", c.username)
	}

	if c.password != "" {
		req.Header.Set("X-ClickHouse-Key", c.password)
	}

	if c.debug {
		c.log.WithField("query", truncateQuery(query, maxLoggedQuery)).Debug("Executing ClickHouse query")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.log.WithError(closeErr).Debug("Failed to close response body")
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w (status %d): %s", ErrClickHouseResponse, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if c.debug && len(body) < maxLoggedQuery {
		c.log.WithField("response", string(body)).Debug("ClickHouse response")
	}

	return body, nil
}

// timeout prefers the deadline already carried by ctx
func (c *client) timeout(ctx context.Context, fallback time.Duration) time.Duration {
	if deadline, ok := ctx.Deadline(); ok {
		return time.Until(deadline)
	}

	return fallback
}

func truncateQuery(query string, limit int) string {
	if len(query) <= limit {
		return query
	}

	return query[:limit] + "... (truncated)"
}

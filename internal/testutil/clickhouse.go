package testutil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// ClickHouseResponder answers a single statement with a status code and body
type ClickHouseResponder func(query string) (int, string)

// ClickHouseServer is an in-process stand-in for the ClickHouse HTTP
// interface. It records every statement it receives.
type ClickHouseServer struct {
	*httptest.Server

	mu        sync.Mutex
	queries   []string
	responder ClickHouseResponder
}

// EmptyResult is the JSON body of a query returning no rows
const EmptyResult = `{"meta":[],"data":[],"rows":0}`

// NewClickHouseServer starts a fake ClickHouse. A nil responder answers
// every FORMAT JSON query with an empty result and every other statement
// with an empty body. The server is closed when the test completes.
func NewClickHouseServer(t *testing.T, responder ClickHouseResponder) *ClickHouseServer {
	t.Helper()

	s := &ClickHouseServer{responder: responder}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))

	t.Cleanup(s.Close)

	return s
}

// SetResponder replaces the responder
func (s *ClickHouseServer) SetResponder(responder ClickHouseResponder) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.responder = responder
}

// Queries returns the statements received so far
func (s *ClickHouseServer) Queries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, len(s.queries))
	copy(out, s.queries)

	return out
}

// QueriesContaining returns the received statements that contain substr
func (s *ClickHouseServer) QueriesContaining(substr string) []string {
	var out []string

	for _, q := range s.Queries() {
		if strings.Contains(q, substr) {
			out = append(out, q)
		}
	}

	return out
}

func (s *ClickHouseServer) handle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	query := string(body)

	s.mu.Lock()
	s.queries = append(s.queries, query)
	responder := s.responder
	s.mu.Unlock()

	status, out := http.StatusOK, ""

	switch {
	case responder != nil:
		status, out = responder(query)
	case IsSelect(query):
		out = EmptyResult
	}

	w.WriteHeader(status)
	_, _ = w.Write([]byte(out))
}

// IsSelect reports whether the statement asks for a JSON result
func IsSelect(query string) bool {
	return strings.HasSuffix(strings.TrimSpace(query), "FORMAT JSON")
}

//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/riptide-lab/riptide/internal/core/catalog"
	"github.com/riptide-lab/riptide/internal/engine"
	"github.com/riptide-lab/riptide/internal/realtime"
	"github.com/riptide-lab/riptide/internal/server"
)

// stubEngine stands in for the analytics engine: it records submitted queries
// and serves canned window rows.
type stubEngine struct {
	mu      sync.Mutex
	result  *engine.Result
	err     error
	queries []string
}

func (s *stubEngine) Execute(ctx context.Context, query string) (*engine.Result, error) {
	s.mu.Lock()
	s.queries = append(s.queries, query)
	s.mu.Unlock()

	if s.err != nil {
		return nil, s.err
	}
	if s.result != nil {
		return s.result, nil
	}
	return &engine.Result{}, nil
}

func (s *stubEngine) FormatTableReference(project string, name engine.QualifiedName) string {
	return engine.NewSQLAdapter(nil, 0).FormatTableReference(project, name)
}

func (s *stubEngine) recorded() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.queries...)
}

type integrationHarness struct {
	baseURL    string
	client     *http.Client
	store      catalog.Store
	engine     *stubEngine
	cancel     context.CancelFunc
	serverDone chan error
}

func (h *integrationHarness) close(t *testing.T) {
	t.Helper()

	h.cancel()
	select {
	case <-h.serverDone:
	case <-time.After(5 * time.Second):
		t.Log("server shutdown timed out")
	}
}

func startHarness(t *testing.T) *integrationHarness {
	t.Helper()

	store := catalog.NewMemoryStore()
	eng := &stubEngine{}

	svc := realtime.NewService(store, eng, nil, realtime.Options{
		Slide:  time.Minute,
		Window: time.Hour,
	})
	handler := realtime.NewHandler(svc)

	port := freePort(t)
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	httpServer := server.New(addr, nil, "release")
	handler.RegisterRoutes(httpServer.Engine)

	ctx, cancel := context.WithCancel(context.Background())
	serverDone := make(chan error, 1)
	go func() { serverDone <- httpServer.Run(ctx) }()

	baseURL := "http://" + addr
	waitForHealthy(t, baseURL)

	return &integrationHarness{
		baseURL:    baseURL,
		client:     &http.Client{Timeout: 5 * time.Second},
		store:      store,
		engine:     eng,
		cancel:     cancel,
		serverDone: serverDone,
	}
}

func TestRealtimeAPI_Lifecycle(t *testing.T) {
	h := startHarness(t)
	defer h.close(t)

	t.Run("health endpoint", func(t *testing.T) {
		resp, err := h.client.Get(h.baseURL + "/health")
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	})

	t.Run("create report", func(t *testing.T) {
		status, body := postJSON(t, h.client, h.baseURL+"/v1/realtime/create", map[string]interface{}{
			"project":     "demo",
			"name":        "Page Views",
			"collections": []string{"pageview"},
			"measures":    []map[string]string{{"column": "total", "aggregation": "COUNT"}},
		})
		require.Equal(t, http.StatusCreated, status, string(body))

		var created struct {
			Success   bool   `json:"success"`
			TableName string `json:"table_name"`
		}
		require.NoError(t, json.Unmarshal(body, &created))
		require.True(t, created.Success)
		require.Equal(t, "page_views", created.TableName)
	})

	t.Run("list reports", func(t *testing.T) {
		resp, err := h.client.Get(h.baseURL + "/v1/realtime/list?project=demo")
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

		var reports []catalog.ContinuousAggregate
		require.NoError(t, json.Unmarshal(body, &reports))
		require.Len(t, reports, 1)
		require.Equal(t, "page_views", reports[0].TableName)
	})

	t.Run("query window", func(t *testing.T) {
		status, body := postJSON(t, h.client, h.baseURL+"/v1/realtime/get", map[string]interface{}{
			"project":    "demo",
			"table_name": "page_views",
			"measure":    map[string]string{"column": "total", "aggregation": "COUNT"},
		})
		require.Equal(t, http.StatusOK, status, string(body))

		var result struct {
			Start  int64        `json:"start"`
			End    int64        `json:"end"`
			Result [][2]float64 `json:"result"`
		}
		require.NoError(t, json.Unmarshal(body, &result))
		require.Equal(t, int64(3600), result.End-result.Start)
		require.Len(t, result.Result, 60)

		queries := h.engine.recorded()
		require.Len(t, queries, 1)
		require.Contains(t, queries[0], `"continuous"."demo_page_views"`)
	})

	t.Run("delete report", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodDelete, h.baseURL+"/v1/realtime/demo/page_views", nil)
		require.NoError(t, err)
		resp, err := h.client.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("query after delete is not found", func(t *testing.T) {
		status, body := postJSON(t, h.client, h.baseURL+"/v1/realtime/get", map[string]interface{}{
			"project":    "demo",
			"table_name": "page_views",
			"measure":    map[string]string{"column": "total", "aggregation": "COUNT"},
		})
		require.Equal(t, http.StatusNotFound, status, string(body))
	})
}

func TestRealtimeAPI_RejectsAverageOnCreate(t *testing.T) {
	h := startHarness(t)
	defer h.close(t)

	status, body := postJSON(t, h.client, h.baseURL+"/v1/realtime/create", map[string]interface{}{
		"project":     "demo",
		"name":        "Average Price",
		"collections": []string{"orders"},
		"measures":    []map[string]string{{"column": "price", "aggregation": "AVERAGE"}},
	})
	require.Equal(t, http.StatusBadRequest, status, string(body))

	var errResp struct {
		ErrorType string `json:"error_type"`
	}
	require.NoError(t, json.Unmarshal(body, &errResp))
	require.Equal(t, "aggregation_not_supported", errResp.ErrorType)

	// Nothing persisted and no engine work issued.
	reports, err := h.store.List(context.Background(), "demo")
	require.NoError(t, err)
	require.Empty(t, reports)
	require.Empty(t, h.engine.recorded())
}

func TestRealtimeAPI_DuplicateCreateConflicts(t *testing.T) {
	h := startHarness(t)
	defer h.close(t)

	payload := map[string]interface{}{
		"project":     "demo",
		"name":        "Page Views",
		"collections": []string{"pageview"},
		"measures":    []map[string]string{{"column": "total", "aggregation": "COUNT"}},
	}

	status, body := postJSON(t, h.client, h.baseURL+"/v1/realtime/create", payload)
	require.Equal(t, http.StatusCreated, status, string(body))

	status, body = postJSON(t, h.client, h.baseURL+"/v1/realtime/create", payload)
	require.Equal(t, http.StatusConflict, status, string(body))
}

func waitForHealthy(t *testing.T, baseURL string) {
	t.Helper()

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(baseURL + "/health")
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}

	t.Fatalf("server did not become healthy at %s", baseURL)
}

func postJSON(t *testing.T, client *http.Client, endpoint string, payload interface{}) (int, []byte) {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, endpoint, bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, respBody
}

func freePort(t *testing.T) int {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

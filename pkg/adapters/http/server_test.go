package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rimraf-adi/socrates"
	"github.com/rimraf-adi/socrates/internal/testutils"
	"github.com/rimraf-adi/socrates/pkg/adapters/memory"
	"github.com/rimraf-adi/socrates/pkg/domain"
	"github.com/rimraf-adi/socrates/pkg/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const planReply = `{"query_type":"comparative","sub_questions":["What is X?","What is Y?"]}`

func researchGenerator() *testutils.Generator {
	return testutils.NewGenerator("").
		On("Break the research query", planReply).
		On("Answer the research question", "finding").
		On("Write the final report", "# X vs Y").
		On("Review the response", "fine").
		On("Write a complete response", "draft")
}

func newTestServer(t *testing.T, gen *testutils.Generator, opts ...Option) (*Server, *memory.Sink) {
	t.Helper()
	sink := memory.NewSink()
	engine, err := socrates.New(
		socrates.WithGenerator(gen),
		socrates.WithSearcher(testutils.NewSearcher(domain.SearchResult{Title: "Src", URL: "https://src"})),
		socrates.WithSink(sink),
	)
	require.NoError(t, err)
	opts = append([]Option{WithHistory(sink), WithModels([]string{"m1"}, []string{"lmstudio"})}, opts...)
	return NewServer(engine, opts...), sink
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestGetSwagger(t *testing.T) {
	doc, err := GetSwagger()
	require.NoError(t, err)
	assert.NotNil(t, doc.Paths.Find("/api/research"))
}

func TestHealthAndModels(t *testing.T) {
	s, _ := newTestServer(t, researchGenerator())
	h := s.Handler()

	w := do(t, h, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), socrates.Version)

	w = do(t, h, http.MethodGet, "/api/models", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"models":["m1"],"providers":["lmstudio"]}`, w.Body.String())

	w = do(t, h, http.MethodGet, "/openapi.yaml", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/api/research/stream")
}

func TestResearch_SyncAndHistory(t *testing.T) {
	s, sink := newTestServer(t, researchGenerator())
	h := s.Handler()

	w := do(t, h, http.MethodPost, "/api/research", `{"query":"Compare X vs Y","run_id":"r-1"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp RunResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "r-1", resp.RunID)
	assert.Equal(t, domain.StatusComplete, resp.Status)
	assert.Equal(t, "# X vs Y", resp.Output)
	assert.Equal(t, domain.QueryComparative, resp.QueryType)
	assert.Equal(t, []string{"What is X?", "What is Y?"}, resp.SubQuestions)
	assert.Len(t, resp.Sources, 1)
	require.NotNil(t, resp.Record)
	assert.Empty(t, resp.Error)

	w = do(t, h, http.MethodGet, "/api/history", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list []domain.RecordSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, resp.Record.Name, list[0].Name)

	w = do(t, h, http.MethodGet, "/api/history?mode=refine", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = do(t, h, http.MethodGet, "/api/history/"+resp.Record.Name, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "# X vs Y")

	w = do(t, h, http.MethodDelete, "/api/history/"+resp.Record.Name, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, sink.Records())

	w = do(t, h, http.MethodGet, "/api/history/"+resp.Record.Name, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRefine(t *testing.T) {
	s, _ := newTestServer(t, researchGenerator())

	w := do(t, s.Handler(), http.MethodPost, "/api/refine", `{"task":"Explain photosynthesis","max_iterations":1}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp RunResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, domain.ModeRefine, resp.Mode)
	assert.Equal(t, "draft", resp.Output)
	assert.NotEmpty(t, resp.RunID)
}

func TestBadRequests(t *testing.T) {
	s, _ := newTestServer(t, researchGenerator())
	h := s.Handler()

	cases := []struct {
		method, path, body string
	}{
		{http.MethodPost, "/api/research", `{}`},
		{http.MethodPost, "/api/research", `{"query":"   "}`},
		{http.MethodPost, "/api/research", `{"query":"q","depth":"bottomless"}`},
		{http.MethodPost, "/api/refine", `{"task":"t","max_iterations":0}`},
		{http.MethodPost, "/api/refine", `not json`},
		{http.MethodGet, "/api/history?limit=abc", ""},
		{http.MethodGet, "/api/events", ""},
	}
	for _, tc := range cases {
		w := do(t, h, tc.method, tc.path, tc.body)
		assert.Equal(t, http.StatusBadRequest, w.Code, "%s %s %s", tc.method, tc.path, tc.body)
		assert.Contains(t, w.Body.String(), `"error"`)
	}
}

func TestResearch_PartialOnFailure(t *testing.T) {
	gen := testutils.NewGenerator("").
		On("Break the research query", planReply).
		Fail("Answer the research question", errors.New("model crashed"))
	s, sink := newTestServer(t, gen)

	w := do(t, s.Handler(), http.MethodPost, "/api/research", `{"query":"Compare X vs Y"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp RunResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, domain.StatusFailed, resp.Status)
	assert.Contains(t, resp.Error, "model crashed")
	assert.Len(t, sink.Records(), 1)
}

func readEvents(t *testing.T, body io.Reader) []string {
	t.Helper()
	var names []string
	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		if name, ok := strings.CutPrefix(sc.Text(), "event: "); ok {
			names = append(names, name)
		}
	}
	return names
}

func TestResearchStream(t *testing.T) {
	s, _ := newTestServer(t, researchGenerator())
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/research/stream", "application/json", strings.NewReader(`{"query":"Compare X vs Y"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	events := readEvents(t, bytes.NewReader(data))

	require.NotEmpty(t, events)
	assert.Equal(t, EventComplete, events[len(events)-1])
	assert.Contains(t, events, EventProgress)
	assert.Contains(t, string(data), `"step":"plan"`)
	assert.Contains(t, string(data), "# X vs Y")
}

func TestResearchStream_Error(t *testing.T) {
	gen := testutils.NewGenerator("").
		On("Break the research query", planReply).
		Fail("Answer the research question", errors.New("model crashed"))
	s, _ := newTestServer(t, gen)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/research/stream", "application/json", strings.NewReader(`{"query":"Compare X vs Y"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	events := readEvents(t, bytes.NewReader(data))
	require.NotEmpty(t, events)
	assert.Equal(t, EventError, events[len(events)-1])
	assert.Contains(t, string(data), "model crashed")
	assert.Contains(t, string(data), `"status":"failed"`)
}

func TestResearchStream_Ping(t *testing.T) {
	gen := testutils.NewGenerator("").
		Block("Answer the research question").
		On("Break the research query", planReply)
	s, _ := newTestServer(t, gen, WithPingInterval(10*time.Millisecond))
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ts.URL+"/api/research/stream", strings.NewReader(`{"query":"q"}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	sc := bufio.NewScanner(resp.Body)
	pinged := false
	for sc.Scan() {
		if sc.Text() == "event: "+EventPing {
			pinged = true
			break
		}
	}
	assert.True(t, pinged)
}

func TestSubscribeEvents(t *testing.T) {
	s, _ := newTestServer(t, researchGenerator())
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/events?run_id=r-7")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Eventually(t, func() bool { return s.Streams().Subscribers("r-7") == 1 }, time.Second, 5*time.Millisecond)

	w := do(t, s.Handler(), http.MethodPost, "/api/research", `{"query":"Compare X vs Y","run_id":"r-7"}`)
	require.Equal(t, http.StatusOK, w.Code)

	events := readEvents(t, resp.Body)
	require.NotEmpty(t, events)
	assert.Equal(t, EventPing, events[0])
	assert.Contains(t, events, EventProgress)
	assert.Equal(t, EventComplete, events[len(events)-1])
}

func TestStreamManager_DropsWhenFull(t *testing.T) {
	sm := NewStreamManager()
	ch, cancel := sm.Subscribe("r")
	for i := 0; i < subscriberBuffer+10; i++ {
		sm.OnEvent(context.Background(), domain.Event{RunID: "r", Type: domain.EventProgress})
	}
	assert.Len(t, ch, subscriberBuffer)
	cancel()
	cancel()
	assert.Equal(t, 0, sm.Subscribers("r"))
}

func TestMetricsAndCORS(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := observability.NewMetrics(reg)
	require.NoError(t, err)
	metrics.OnEvent(context.Background(), domain.Event{Type: domain.EventStart, Mode: domain.ModeResearch})

	s, _ := newTestServer(t, researchGenerator(), WithMetrics(reg), WithCORSOrigins("https://app.example"))
	h := s.Handler()

	w := do(t, h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "socrates_runs_active")

	req := httptest.NewRequest(http.MethodOptions, "/api/research", nil)
	req.Header.Set("Origin", "https://app.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

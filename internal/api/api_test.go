package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"stock-analyzer/internal/backtest"
	"stock-analyzer/internal/execution"
	"stock-analyzer/internal/indicator"
	"stock-analyzer/internal/model"
	"stock-analyzer/internal/scanner"
	"stock-analyzer/internal/strategy"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// seriesEnding returns n weekday bars ending on end, closes stepping from
// first by step.
func seriesEnding(end time.Time, n int, first, step float64) model.Series {
	out := make([]model.PriceBar, 0, n)
	d := end
	for len(out) < n {
		if d.Weekday() != time.Saturday && d.Weekday() != time.Sunday {
			out = append(out, model.PriceBar{Date: d})
		}
		d = d.AddDate(0, 0, -1)
	}
	for i := range out {
		c := first + float64(n-1-i)*step
		out[i].Open, out[i].High, out[i].Low, out[i].Close, out[i].Volume = c, c+1, c-1, c, 1000
	}
	return model.NewSeries(out)
}

type mapProvider map[string]model.Series

func (m mapProvider) FetchBars(_ context.Context, symbol string, from, to time.Time) (model.Series, error) {
	s, ok := m[symbol]
	if !ok {
		return nil, model.ErrNoData
	}
	return s.Between(from, to), nil
}

// alternating buys on even days of month and sells on odd ones.
type alternating struct{}

func (alternating) Name() string { return "alternating" }

func (alternating) Evaluate(s model.Series) strategy.Decision {
	last, _ := s.Last()
	action := strategy.ActionSell
	if last.Date.Day()%2 == 0 {
		action = strategy.ActionBuy
	}
	return strategy.Decision{
		Snapshot: indicator.Snapshot{LatestPrice: last.Close, RSI: 50},
		Signal:   strategy.Signal{Action: action, Confidence: 0.9, Reasons: []string{"alt"}},
		Plan:     strategy.EntryExitPlan{EntryPrice: last.Close},
	}
}

type testEnv struct {
	srv     *httptest.Server
	journal *execution.Journal
	hub     *Hub
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	today := model.Day(time.Now())
	p := mapProvider{
		"AAPL": seriesEnding(today, 400, 100, 0.1),
		"MSFT": seriesEnding(today, 400, 200, 0.2),
	}
	j, err := execution.NewJournal(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { j.Close() })

	hub := NewHub(quietLogger())
	st := alternating{}
	mux := NewRouter(Deps{
		Provider: p,
		Strategy: st,
		Scanner:  scanner.New(p, st, scanner.Config{}, quietLogger()),
		Symbols:  []string{"AAPL", "MSFT"},
		Backtest: backtest.DefaultConfig(),
		Journal:  j,
		Hub:      hub,
		Logger:   quietLogger(),
	})
	srv := httptest.NewServer(WithCORS(mux))
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, journal: j, hub: hub}
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

// ────────────────────────────────────────────────────────────
// REST
// ────────────────────────────────────────────────────────────

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	var body map[string]string
	if code := getJSON(t, env.srv.URL+"/api/v1/health", &body); code != http.StatusOK || body["status"] != "ok" {
		t.Errorf("code=%d body=%v", code, body)
	}
}

func TestAnalyze(t *testing.T) {
	env := newTestEnv(t)
	var body map[string]any
	if code := getJSON(t, env.srv.URL+"/api/v1/analyze/aapl", &body); code != http.StatusOK {
		t.Fatalf("code = %d", code)
	}
	if body["symbol"] != "AAPL" {
		t.Errorf("symbol = %v", body["symbol"])
	}
	for _, k := range []string{"technical", "signal", "entry_exit"} {
		if _, ok := body[k]; !ok {
			t.Errorf("missing %q", k)
		}
	}

	if code := getJSON(t, env.srv.URL+"/api/v1/analyze/NOPE", nil); code != http.StatusNotFound {
		t.Errorf("unknown symbol code = %d, want 404", code)
	}
}

func TestOpportunities(t *testing.T) {
	env := newTestEnv(t)
	var buys, sells []scanner.Opportunity
	getJSON(t, env.srv.URL+"/api/v1/opportunities?side=buy", &buys)
	getJSON(t, env.srv.URL+"/api/v1/opportunities?side=sell", &sells)

	// Every symbol's last bar is the same day, so all land on one side.
	if len(buys)+len(sells) != 2 {
		t.Errorf("buys=%d sells=%d, want 2 total", len(buys), len(sells))
	}
	if code := getJSON(t, env.srv.URL+"/api/v1/opportunities?side=up", nil); code != http.StatusBadRequest {
		t.Errorf("bad side code = %d", code)
	}
	if code := getJSON(t, env.srv.URL+"/api/v1/opportunities?min_confidence=x", nil); code != http.StatusBadRequest {
		t.Errorf("bad confidence code = %d", code)
	}

	var none []scanner.Opportunity
	getJSON(t, env.srv.URL+"/api/v1/opportunities?min_confidence=0.95", &none)
	if len(none) != 0 {
		t.Errorf("above cutoff = %d, want 0", len(none))
	}
}

func TestHotEndpoint(t *testing.T) {
	env := newTestEnv(t)
	var hot scanner.HotStocks
	getJSON(t, env.srv.URL+"/api/v1/hot?symbols=AAPL", &hot)
	if n := len(hot.StrongBuys) + len(hot.StrongSells); n != 1 {
		t.Errorf("strong entries = %d, want 1", n)
	}
}

func TestBacktestAndRuns(t *testing.T) {
	env := newTestEnv(t)
	end := model.Day(time.Now()).AddDate(0, 0, -7)
	start := end.AddDate(0, -2, 0)
	body, _ := json.Marshal(BacktestRequest{
		Symbols:   []string{"AAPL"},
		Start:     start.Format(time.DateOnly),
		End:       end.Format(time.DateOnly),
		Benchmark: "AAPL",
	})

	resp, err := http.Post(env.srv.URL+"/api/v1/backtest", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("code = %d", resp.StatusCode)
	}
	var out struct {
		RunID   string          `json:"run_id"`
		Results json.RawMessage `json:"results"`
		Report  map[string]any  `json:"report"`
		Trades  []any           `json:"trade_history"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.RunID == "" {
		t.Fatal("missing run id")
	}
	if out.Report == nil || len(out.Trades) == 0 {
		t.Errorf("report=%v trades=%d", out.Report, len(out.Trades))
	}
	if out.Report["has_benchmark"] != true {
		t.Errorf("benchmark stats missing: %v", out.Report)
	}

	var runs []execution.RunRecord
	getJSON(t, env.srv.URL+"/api/v1/runs?limit=5", &runs)
	if len(runs) != 1 || runs[0].ID != out.RunID || runs[0].Strategy != "alternating" {
		t.Fatalf("runs = %+v", runs)
	}

	var trades []execution.TradeRecord
	getJSON(t, env.srv.URL+"/api/v1/runs/"+out.RunID+"/trades", &trades)
	if len(trades) != len(out.Trades) {
		t.Errorf("journal trades = %d, want %d", len(trades), len(out.Trades))
	}
}

func TestBacktestBadRequest(t *testing.T) {
	env := newTestEnv(t)
	for _, body := range []string{
		`{`,
		`{"start":"2024/01/01","end":"2024-02-01"}`,
		`{"start":"2024-01-01","end":"2024-02-01","config":{"exit_levels":"weekly"}}`,
	} {
		resp, err := http.Post(env.srv.URL+"/api/v1/backtest", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("body %q code = %d, want 400", body, resp.StatusCode)
		}
	}
}

func TestInvertedRangeIsEmpty(t *testing.T) {
	env := newTestEnv(t)
	body := `{"symbols":["AAPL"],"start":"2024-03-01","end":"2024-01-01"}`
	resp, err := http.Post(env.srv.URL+"/api/v1/backtest", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var out map[string]any
	json.NewDecoder(resp.Body).Decode(&out)
	if out["report"] != nil || out["run_id"] != nil {
		t.Errorf("empty run produced report/run id: %v", out)
	}
}

func TestRunsEmptyList(t *testing.T) {
	env := newTestEnv(t)
	var runs []execution.RunRecord
	if code := getJSON(t, env.srv.URL+"/api/v1/runs", &runs); code != http.StatusOK || runs == nil {
		t.Errorf("code=%d runs=%v, want 200 []", code, runs)
	}
	if code := getJSON(t, env.srv.URL+"/api/v1/runs?limit=-1", nil); code != http.StatusBadRequest {
		t.Errorf("bad limit code = %d", code)
	}
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)
	req, _ := http.NewRequest(http.MethodOptions, env.srv.URL+"/api/v1/backtest", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("code=%d allow=%q", resp.StatusCode, resp.Header.Get("Access-Control-Allow-Origin"))
	}
}

// ────────────────────────────────────────────────────────────
// WebSocket stream
// ────────────────────────────────────────────────────────────

func dialStream(t *testing.T, env *testEnv) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/api/v1/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var env map[string]any
	if err := json.Unmarshal(msg, &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return env
}

func waitClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("clients = %d, want %d", h.ClientCount(), n)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestStreamBroadcast(t *testing.T) {
	env := newTestEnv(t)
	conn := dialStream(t, env)
	waitClients(t, env.hub, 1)

	if err := env.hub.Broadcast("scan", map[string]int{"analyzed": 2}); err != nil {
		t.Fatal(err)
	}
	msg := readEnvelope(t, conn)
	if msg["type"] != "scan" || msg["seq"] != float64(1) {
		t.Errorf("envelope = %v", msg)
	}
	data, _ := msg["data"].(map[string]any)
	if data["analyzed"] != float64(2) {
		t.Errorf("data = %v", msg["data"])
	}
}

func TestStreamReplaysLatest(t *testing.T) {
	env := newTestEnv(t)
	env.hub.Broadcast("scan", "first")
	env.hub.Broadcast("scan", "second")

	conn := dialStream(t, env)
	msg := readEnvelope(t, conn)
	if msg["data"] != "second" || msg["seq"] != float64(2) {
		t.Errorf("replayed = %v, want the second message", msg)
	}
}

func TestStreamDisconnect(t *testing.T) {
	env := newTestEnv(t)
	counts := make(chan int, 4)
	env.hub.OnClientCount(func(n int) { counts <- n })

	conn := dialStream(t, env)
	waitClients(t, env.hub, 1)
	conn.Close()
	waitClients(t, env.hub, 0)

	if got := <-counts; got != 1 {
		t.Errorf("first count = %d, want 1", got)
	}
	if got := <-counts; got != 0 {
		t.Errorf("second count = %d, want 0", got)
	}
}

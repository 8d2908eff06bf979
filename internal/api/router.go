// Package api provides the HTTP JSON API and WebSocket signal stream.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"stock-analyzer/config"
	"stock-analyzer/internal/backtest"
	"stock-analyzer/internal/calendar"
	"stock-analyzer/internal/execution"
	"stock-analyzer/internal/logger"
	"stock-analyzer/internal/model"
	"stock-analyzer/internal/performance"
	"stock-analyzer/internal/scanner"
	"stock-analyzer/internal/strategy"
)

// Deps are the collaborators behind the API. Journal, Observer, Calendar
// and Hub are optional.
type Deps struct {
	Provider model.DataProvider
	Strategy strategy.Strategy
	Scanner  *scanner.Scanner
	Symbols  []string        // default watch list
	Backtest backtest.Config // defaults for POST /backtest
	Journal  *execution.Journal
	Observer backtest.Observer
	Calendar *calendar.Calendar // simulated days; nil means weekdays
	Hub      *Hub
	Logger   *slog.Logger
}

type server struct {
	Deps
	log *slog.Logger
}

// NewRouter sets up HTTP routes for the API server.
func NewRouter(d Deps) *http.ServeMux {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	s := &server{Deps: d, log: d.Logger.With("component", "api")}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("GET /api/v1/analyze/{symbol}", s.handleAnalyze)
	mux.HandleFunc("GET /api/v1/opportunities", s.handleOpportunities)
	mux.HandleFunc("GET /api/v1/hot", s.handleHot)
	mux.HandleFunc("POST /api/v1/backtest", s.handleBacktest)
	mux.HandleFunc("GET /api/v1/runs", s.handleRuns)
	mux.HandleFunc("GET /api/v1/runs/{id}/trades", s.handleRunTrades)
	if d.Hub != nil {
		mux.Handle("GET /api/v1/stream", d.Hub)
	}
	return mux
}

// WithCORS sets CORS headers and answers preflight requests.
func WithCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(r.PathValue("symbol"))
	a, err := s.Scanner.Analyze(r.Context(), symbol)
	if errors.Is(err, model.ErrNoData) {
		writeError(w, http.StatusNotFound, "no data for "+symbol)
		return
	}
	if err != nil {
		s.log.Error("analyze failed", "symbol", symbol, "err", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// GET /api/v1/opportunities?side=buy|sell&symbols=A,B&min_confidence=0.6
func (s *server) handleOpportunities(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	side := strings.ToLower(q.Get("side"))
	if side == "" {
		side = "buy"
	}
	if side != "buy" && side != "sell" {
		writeError(w, http.StatusBadRequest, "side must be buy or sell")
		return
	}
	minConf, err := floatParam(q.Get("min_confidence"), s.Scanner.Config().MinConfidence)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid min_confidence")
		return
	}

	analyses := s.Scanner.AnalyzeMany(r.Context(), s.symbols(q.Get("symbols")))
	opps := scanner.BuyOpportunities(analyses, minConf)
	if side == "sell" {
		opps = scanner.SellOpportunities(analyses, minConf)
	}
	writeJSON(w, http.StatusOK, opps)
}

func (s *server) handleHot(w http.ResponseWriter, r *http.Request) {
	analyses := s.Scanner.AnalyzeMany(r.Context(), s.symbols(r.URL.Query().Get("symbols")))
	writeJSON(w, http.StatusOK, scanner.Hot(analyses, s.Scanner.Config().HotThreshold))
}

// BacktestRequest is the body of POST /api/v1/backtest. Dates are
// YYYY-MM-DD; zero config fields fall back to the server defaults.
type BacktestRequest struct {
	Symbols       []string         `json:"symbols"`
	Start         string           `json:"start"`
	End           string           `json:"end"`
	MinConfidence float64          `json:"min_confidence"`
	Benchmark     string           `json:"benchmark,omitempty"`
	Config        *backtest.Config `json:"config,omitempty"`
}

// BacktestResponse carries the run results and its performance report.
type BacktestResponse struct {
	RunID   string              `json:"run_id,omitempty"`
	Results backtest.Results    `json:"results"`
	Report  *performance.Report `json:"report"` // nil for an empty run
	Trades  []backtest.TradeRow `json:"trade_history"`
}

func (s *server) handleBacktest(w http.ResponseWriter, r *http.Request) {
	var req BacktestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	start, err1 := time.Parse(time.DateOnly, req.Start)
	end, err2 := time.Parse(time.DateOnly, req.End)
	if err1 != nil || err2 != nil {
		writeError(w, http.StatusBadRequest, "start and end must be YYYY-MM-DD")
		return
	}
	if len(req.Symbols) == 0 {
		req.Symbols = s.Symbols
	}
	if req.MinConfidence <= 0 {
		req.MinConfidence = config.DefaultParams().Signal.MinConfidence
	}
	cfg := s.Backtest
	if req.Config != nil {
		cfg = *req.Config
	}
	switch cfg.ExitLevels {
	case "", backtest.ExitLevelsEntry, backtest.ExitLevelsDaily:
	default:
		writeError(w, http.StatusBadRequest, "exit_levels must be entry or daily")
		return
	}

	ctx := logger.WithRunID(r.Context(), execution.NewRunID())
	bt := backtest.New(cfg, s.Strategy, s.log)
	bt.Observer = s.Observer
	bt.Calendar = s.Calendar
	res, err := bt.Run(ctx, s.Provider, req.Symbols, start, end, req.MinConfidence)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		s.log.Error("backtest failed", append(logger.RunAttrs(ctx), "err", err)...)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	var bench model.Series
	if req.Benchmark != "" && !res.Empty() {
		from := start.AddDate(0, 0, -bt.Config().LookbackDays)
		bench, err = s.Provider.FetchBars(ctx, req.Benchmark, from, end)
		if err != nil {
			s.log.Warn("benchmark unavailable", "symbol", req.Benchmark, "err", err)
			bench = nil
		}
	}
	report := res.Report(bench)

	resp := BacktestResponse{Results: res, Trades: bt.TradeHistory()}
	if !report.Empty() {
		resp.Report = &report
	}
	if s.Journal != nil && !res.Empty() {
		id, err := s.Journal.RecordRun(ctx, execution.RunMeta{
			ID:            logger.RunID(ctx),
			Strategy:      s.Strategy.Name(),
			Symbols:       req.Symbols,
			Start:         start,
			End:           end,
			MinConfidence: req.MinConfidence,
			Config:        bt.Config(),
		}, res, report)
		if err != nil {
			s.log.Error("journal write failed", append(logger.RunAttrs(ctx), "err", err)...)
		} else {
			resp.RunID = id
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.Journal == nil {
		writeError(w, http.StatusNotFound, "journal disabled")
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	runs, err := s.Journal.ListRuns(r.Context(), limit)
	if err != nil {
		s.log.Error("list runs failed", "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if runs == nil {
		runs = []execution.RunRecord{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *server) handleRunTrades(w http.ResponseWriter, r *http.Request) {
	if s.Journal == nil {
		writeError(w, http.StatusNotFound, "journal disabled")
		return
	}
	trades, err := s.Journal.GetTrades(r.Context(), r.PathValue("id"))
	if err != nil {
		s.log.Error("get trades failed", "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if trades == nil {
		trades = []execution.TradeRecord{}
	}
	writeJSON(w, http.StatusOK, trades)
}

func (s *server) symbols(param string) []string {
	if param == "" {
		return s.Symbols
	}
	return config.ParseSymbols(param)
}

func floatParam(v string, def float64) (float64, error) {
	if v == "" {
		return def, nil
	}
	return strconv.ParseFloat(v, 64)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

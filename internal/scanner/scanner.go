// Package scanner analyzes a watch list of symbols with the rule engine and
// ranks the resulting buy/sell opportunities.
package scanner

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"stock-analyzer/internal/model"
	"stock-analyzer/internal/strategy"
)

// Config controls how much history is fetched and how signals are ranked.
type Config struct {
	Lookback      time.Duration `yaml:"lookback" json:"lookback"`             // history per symbol, default 1y
	MinConfidence float64       `yaml:"min_confidence" json:"min_confidence"` // opportunity cutoff, default 0.6
	HotThreshold  float64       `yaml:"hot_threshold" json:"hot_threshold"`   // strong bucket cutoff, default 0.8
	Workers       int           `yaml:"workers" json:"workers"`               // concurrent fetches, default 4
}

// DefaultConfig returns the scanner defaults.
func DefaultConfig() Config {
	return Config{
		Lookback:      365 * 24 * time.Hour,
		MinConfidence: 0.6,
		HotThreshold:  0.8,
		Workers:       4,
	}
}

// WithDefaults fills zero fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.Lookback <= 0 {
		c.Lookback = d.Lookback
	}
	if c.MinConfidence <= 0 {
		c.MinConfidence = d.MinConfidence
	}
	if c.HotThreshold <= 0 {
		c.HotThreshold = d.HotThreshold
	}
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	return c
}

// Analysis is the full evaluation of one symbol as of its latest bar.
type Analysis struct {
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`
	AsOf      time.Time `json:"as_of"` // date of the latest bar
	strategy.Decision
}

// Scanner evaluates symbols against a strategy.
type Scanner struct {
	provider model.DataProvider
	strategy strategy.Strategy
	cfg      Config
	log      *slog.Logger
	now      func() time.Time
}

// New creates a scanner. A nil logger uses slog.Default().
func New(provider model.DataProvider, strat strategy.Strategy, cfg Config, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{
		provider: provider,
		strategy: strat,
		cfg:      cfg.WithDefaults(),
		log:      logger.With("component", "scanner"),
		now:      time.Now,
	}
}

// Config returns the effective configuration.
func (s *Scanner) Config() Config { return s.cfg }

// Analyze fetches history for symbol and evaluates it. A symbol without
// bars yields model.ErrNoData.
func (s *Scanner) Analyze(ctx context.Context, symbol string) (Analysis, error) {
	now := s.now()
	bars, err := s.provider.FetchBars(ctx, symbol, model.Day(now.Add(-s.cfg.Lookback)), model.Day(now))
	if err != nil {
		return Analysis{}, fmt.Errorf("fetch %s: %w", symbol, err)
	}
	last, ok := bars.Last()
	if !ok {
		return Analysis{}, fmt.Errorf("fetch %s: %w", symbol, model.ErrNoData)
	}
	return Analysis{
		Symbol:    symbol,
		Timestamp: now,
		AsOf:      last.Date,
		Decision:  s.strategy.Evaluate(bars),
	}, nil
}

// AnalyzeMany evaluates symbols with a bounded worker pool. Symbols that
// fail are logged and left out; the rest keep their input order.
func (s *Scanner) AnalyzeMany(ctx context.Context, symbols []string) []Analysis {
	results := make([]*Analysis, len(symbols))
	sem := make(chan struct{}, s.cfg.Workers)
	var wg sync.WaitGroup

	for i, sym := range symbols {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, sym string) {
			defer wg.Done()
			defer func() { <-sem }()

			a, err := s.Analyze(ctx, sym)
			if err != nil {
				s.log.Error("analyze failed", "symbol", sym, "err", err)
				return
			}
			s.log.Debug("analyzed", "symbol", sym, "action", string(a.Signal.Action), "confidence", a.Signal.Confidence)
			results[i] = &a
		}(i, sym)
	}
	wg.Wait()

	out := make([]Analysis, 0, len(symbols))
	for _, a := range results {
		if a != nil {
			out = append(out, *a)
		}
	}
	return out
}

// Opportunity is an actionable signal above the confidence cutoff.
type Opportunity struct {
	Symbol      string          `json:"symbol"`
	Signal      strategy.Action `json:"signal"`
	Confidence  float64         `json:"confidence"`
	Reasons     []string        `json:"reasons"`
	EntryPrice  float64         `json:"entry_price"`
	TargetPrice float64         `json:"target_price,omitempty"`
	StopLoss    float64         `json:"stop_loss,omitempty"`
}

// BuyOpportunities returns BUY signals with confidence >= minConfidence,
// most confident first.
func BuyOpportunities(analyses []Analysis, minConfidence float64) []Opportunity {
	return opportunities(analyses, strategy.ActionBuy, minConfidence)
}

// SellOpportunities returns SELL signals with confidence >= minConfidence,
// most confident first. Sell entries carry only the exit price.
func SellOpportunities(analyses []Analysis, minConfidence float64) []Opportunity {
	return opportunities(analyses, strategy.ActionSell, minConfidence)
}

func opportunities(analyses []Analysis, action strategy.Action, minConfidence float64) []Opportunity {
	out := []Opportunity{}
	for _, a := range analyses {
		if a.Signal.Action != action || a.Signal.Confidence < minConfidence {
			continue
		}
		o := Opportunity{
			Symbol:     a.Symbol,
			Signal:     action,
			Confidence: a.Signal.Confidence,
			Reasons:    a.Signal.Reasons,
			EntryPrice: a.Plan.EntryPrice,
		}
		if action == strategy.ActionBuy {
			o.TargetPrice = a.Plan.TargetPrice
			o.StopLoss = a.Plan.StopLoss
		}
		out = append(out, o)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	return out
}

// HotStock is one entry of a HotStocks bucket.
type HotStock struct {
	Symbol     string   `json:"symbol"`
	Price      float64  `json:"price"`
	Confidence float64  `json:"confidence"`
	Reasons    []string `json:"reasons"`
}

// HotStocks buckets every BUY/SELL signal by strength.
type HotStocks struct {
	StrongBuys  []HotStock `json:"strong_buys"`
	Buys        []HotStock `json:"buys"`
	Sells       []HotStock `json:"sells"`
	StrongSells []HotStock `json:"strong_sells"`
}

// Hot buckets analyses; confidence >= threshold is "strong". HOLD is dropped.
func Hot(analyses []Analysis, threshold float64) HotStocks {
	h := HotStocks{
		StrongBuys:  []HotStock{},
		Buys:        []HotStock{},
		Sells:       []HotStock{},
		StrongSells: []HotStock{},
	}
	for _, a := range analyses {
		info := HotStock{
			Symbol:     a.Symbol,
			Price:      a.Snapshot.LatestPrice,
			Confidence: a.Signal.Confidence,
			Reasons:    a.Signal.Reasons,
		}
		strong := a.Signal.Confidence >= threshold
		switch {
		case a.Signal.Action == strategy.ActionBuy && strong:
			h.StrongBuys = append(h.StrongBuys, info)
		case a.Signal.Action == strategy.ActionBuy:
			h.Buys = append(h.Buys, info)
		case a.Signal.Action == strategy.ActionSell && strong:
			h.StrongSells = append(h.StrongSells, info)
		case a.Signal.Action == strategy.ActionSell:
			h.Sells = append(h.Sells, info)
		}
	}
	return h
}

// Report is the outcome of one scan over a watch list.
type Report struct {
	Timestamp time.Time     `json:"timestamp"`
	Symbols   int           `json:"symbols"`
	Analyzed  int           `json:"analyzed"`
	Duration  time.Duration `json:"duration_ns"`
	Buys      []Opportunity `json:"buy_opportunities"`
	Sells     []Opportunity `json:"sell_opportunities"`
	Hot       HotStocks     `json:"hot_stocks"`
	Analyses  []Analysis    `json:"analyses"`
}

// Actions lists the signal action of every analyzed symbol.
func (r Report) Actions() []string {
	out := make([]string, len(r.Analyses))
	for i, a := range r.Analyses {
		out[i] = string(a.Signal.Action)
	}
	return out
}

// Scan analyzes symbols and ranks the outcome.
func (s *Scanner) Scan(ctx context.Context, symbols []string) Report {
	start := time.Now()
	analyses := s.AnalyzeMany(ctx, symbols)
	return Report{
		Timestamp: s.now(),
		Symbols:   len(symbols),
		Analyzed:  len(analyses),
		Duration:  time.Since(start),
		Buys:      BuyOpportunities(analyses, s.cfg.MinConfidence),
		Sells:     SellOpportunities(analyses, s.cfg.MinConfidence),
		Hot:       Hot(analyses, s.cfg.HotThreshold),
		Analyses:  analyses,
	}
}

// WriteJSON encodes analyses keyed by symbol, indented.
func WriteJSON(w io.Writer, analyses []Analysis) error {
	bySymbol := make(map[string]Analysis, len(analyses))
	for _, a := range analyses {
		bySymbol[a.Symbol] = a
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	return enc.Encode(bySymbol)
}

// SaveJSON writes analyses to path via WriteJSON.
func SaveJSON(path string, analyses []Analysis) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := WriteJSON(f, analyses); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

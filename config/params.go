package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"stock-analyzer/internal/backtest"
	"stock-analyzer/internal/indicator"
	"stock-analyzer/internal/strategy"
)

// Params is the analysis parameter file.
//
//	technical:  indicator windows
//	signal:     rule thresholds, weights, exit levels, min_confidence
//	backtest:   account simulation
type Params struct {
	Technical indicator.Params `yaml:"technical"`
	Signal    SignalParams     `yaml:"signal"`
	Backtest  backtest.Config  `yaml:"backtest"`
}

// SignalParams extends the rule parameters with the confidence cut-offs
// the backtester and scanner apply.
type SignalParams struct {
	strategy.Params `yaml:",inline"`

	MinConfidence float64 `yaml:"min_confidence"`
	HotThreshold  float64 `yaml:"hot_threshold"` // "strong" bucket cut-off
}

// DefaultParams returns the built-in parameter set.
func DefaultParams() Params {
	return Params{
		Technical: indicator.DefaultParams(),
		Signal: SignalParams{
			Params:        strategy.DefaultParams(),
			MinConfidence: 0.6,
			HotThreshold:  0.8,
		},
		Backtest: backtest.DefaultConfig(),
	}
}

// LoadParams reads a YAML parameter file over the defaults. Keys missing
// from the file keep their default value. An empty path returns the
// defaults.
func LoadParams(path string) (Params, error) {
	p := DefaultParams()
	if path == "" {
		return p, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("read params file: %w", err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("parse params file: %w", err)
	}
	if err := p.Validate(); err != nil {
		return p, err
	}
	return p, nil
}

// Validate rejects values the engines cannot work with.
func (p Params) Validate() error {
	s := p.Signal
	if s.MinConfidence < 0 || s.MinConfidence > 1 {
		return fmt.Errorf("signal.min_confidence must be in [0,1], got %v", s.MinConfidence)
	}
	if s.HotThreshold < 0 || s.HotThreshold > 1 {
		return fmt.Errorf("signal.hot_threshold must be in [0,1], got %v", s.HotThreshold)
	}
	if s.RSIOversold >= s.RSIOverbought {
		return fmt.Errorf("signal.rsi_oversold (%v) must be below rsi_overbought (%v)", s.RSIOversold, s.RSIOverbought)
	}
	if s.TargetPct < 0 || s.StopPct < 0 || s.StopPct >= 1 {
		return fmt.Errorf("signal exit levels out of range: target %v stop %v", s.TargetPct, s.StopPct)
	}
	b := p.Backtest
	if b.InitialCapital <= 0 {
		return fmt.Errorf("backtest.initial_capital must be > 0")
	}
	if b.Commission < 0 || b.Slippage < 0 {
		return fmt.Errorf("backtest commission and slippage must be >= 0")
	}
	if b.PositionSizePct <= 0 || b.PositionSizePct > 1 {
		return fmt.Errorf("backtest.position_size_pct must be in (0,1], got %v", b.PositionSizePct)
	}
	switch b.ExitLevels {
	case "", backtest.ExitLevelsEntry, backtest.ExitLevelsDaily:
	default:
		return fmt.Errorf("backtest.exit_levels must be %q or %q, got %q",
			backtest.ExitLevelsEntry, backtest.ExitLevelsDaily, b.ExitLevels)
	}
	return nil
}

// RuleEngine builds the rule strategy from these parameters.
func (p Params) RuleEngine() *strategy.RuleEngine {
	return strategy.NewRuleEngine(p.Signal.Params, p.Technical.WithDefaults())
}

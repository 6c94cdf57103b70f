package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sawpanic/wbws/internal/filters"
	"github.com/sawpanic/wbws/internal/risk"
	"github.com/sawpanic/wbws/internal/session"
)

// Config is the full settings of one strategy run
type Config struct {
	Name       string         `yaml:"name" json:"name"`
	Symbol     string         `yaml:"symbol" json:"symbol"`
	Timezone   string         `yaml:"timezone" json:"timezone"`
	Timeframes Timeframes     `yaml:"timeframes" json:"timeframes"`
	Candles    CandleConfig   `yaml:"candles" json:"candles"`
	Reversal   ReversalConfig `yaml:"reversal" json:"reversal"`
	HTF        HTFConfig      `yaml:"htf" json:"htf"`
	Filters    []FilterConfig `yaml:"filters" json:"filters"`
	Session    SessionConfig  `yaml:"session" json:"session"`
	Risk       RiskConfig     `yaml:"risk" json:"risk"`
}

// Timeframes are Go duration strings such as "1m" or "1h"
type Timeframes struct {
	LTF string `yaml:"ltf" json:"ltf"`
	HTF string `yaml:"htf" json:"htf"`
}

type CandleConfig struct {
	DojiThreshold float64 `yaml:"doji_threshold" json:"doji_threshold"` // body/range below this is neutral
}

type ReversalConfig struct {
	RunLength         int     `yaml:"run_length" json:"run_length"`
	StrengthThreshold float64 `yaml:"strength_threshold" json:"strength_threshold"`
}

type HTFConfig struct {
	RequireAlignment bool `yaml:"require_alignment" json:"require_alignment"`
}

// FilterConfig enables one registered filter
type FilterConfig struct {
	Name     string             `yaml:"name" json:"name"`
	Disabled bool               `yaml:"disabled,omitempty" json:"disabled,omitempty"`
	Params   map[string]float64 `yaml:"params,omitempty" json:"params,omitempty"`
}

type SessionConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Start   string `yaml:"start" json:"start"` // HH:MM in Timezone
	End     string `yaml:"end" json:"end"`
}

type RiskConfig struct {
	ATRLength         int     `yaml:"atr_length" json:"atr_length"`
	ATRMultiplier     float64 `yaml:"atr_multiplier" json:"atr_multiplier"`
	RewardToRisk      float64 `yaml:"reward_to_risk" json:"reward_to_risk"`
	RiskPercentileCap float64 `yaml:"risk_percentile_cap" json:"risk_percentile_cap"`
	RiskLookback      int     `yaml:"risk_lookback" json:"risk_lookback"`
	TieBreak          string  `yaml:"tie_break" json:"tie_break"`
	TickSize          float64 `yaml:"tick_size" json:"tick_size"`
	MaxHoldBars       int     `yaml:"max_hold_bars" json:"max_hold_bars"`
}

// Default returns the stock one-minute setup with an hourly trend filter
func Default() Config {
	rp := risk.DefaultParams()
	return Config{
		Name:     "wbws",
		Timezone: "Europe/Berlin",
		Timeframes: Timeframes{
			LTF: "1m",
			HTF: "1h",
		},
		Candles:  CandleConfig{DojiThreshold: 0.1},
		Reversal: ReversalConfig{RunLength: 3, StrengthThreshold: 0.5},
		HTF:      HTFConfig{RequireAlignment: true},
		Filters: []FilterConfig{
			{Name: filters.RSIName, Params: map[string]float64{"length": 14, "overbought": 70, "oversold": 30}},
		},
		Session: SessionConfig{Enabled: true, Start: "08:30", End: "20:30"},
		Risk: RiskConfig{
			ATRLength:     rp.ATRLength,
			ATRMultiplier: rp.ATRMultiplier,
			RewardToRisk:  rp.RewardToRisk,
			TieBreak:      rp.TieBreak.String(),
		},
	}
}

// Load reads a YAML file over Default() and validates the result.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML over Default() and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Hash is a stable SHA-256 of the effective settings
func (c Config) Hash() string {
	data, err := yaml.Marshal(c)
	if err != nil {
		// plain structs of scalars, maps and slices always marshal
		panic(fmt.Sprintf("config hash: %v", err))
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Location resolves Timezone
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, &ConfigurationError{Field: "timezone", Reason: err.Error()}
	}
	return loc, nil
}

// LTFPeriod returns the base timeframe
func (c Config) LTFPeriod() (time.Duration, error) {
	return parseTimeframe("timeframes.ltf", c.Timeframes.LTF)
}

// HTFPeriod returns the trend timeframe
func (c Config) HTFPeriod() (time.Duration, error) {
	return parseTimeframe("timeframes.htf", c.Timeframes.HTF)
}

func parseTimeframe(field, s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, &ConfigurationError{Field: field, Reason: err.Error()}
	}
	if d <= 0 {
		return 0, &ConfigurationError{Field: field, Reason: "must be positive"}
	}
	return d, nil
}

// RiskParams converts the risk section
func (c Config) RiskParams() (risk.Params, error) {
	tb, err := risk.ParseTieBreak(c.Risk.TieBreak)
	if err != nil {
		return risk.Params{}, &ConfigurationError{Field: "risk.tie_break", Reason: err.Error()}
	}
	return risk.Params{
		ATRLength:          c.Risk.ATRLength,
		ATRMultiplier:      c.Risk.ATRMultiplier,
		RewardToRisk:       c.Risk.RewardToRisk,
		PercentileCap:      c.Risk.RiskPercentileCap,
		PercentileLookback: c.Risk.RiskLookback,
		TieBreak:           tb,
		TickSize:           c.Risk.TickSize,
		MaxHoldBars:        c.Risk.MaxHoldBars,
	}, nil
}

// SessionGate builds the session gate; a disabled section yields an open gate.
func (c Config) SessionGate() (session.Gate, error) {
	if !c.Session.Enabled {
		return session.Gate{}, nil
	}
	loc, err := c.Location()
	if err != nil {
		return session.Gate{}, err
	}
	start, err := session.ParseClock(c.Session.Start)
	if err != nil {
		return session.Gate{}, &ConfigurationError{Field: "session.start", Reason: err.Error()}
	}
	end, err := session.ParseClock(c.Session.End)
	if err != nil {
		return session.Gate{}, &ConfigurationError{Field: "session.end", Reason: err.Error()}
	}
	g, err := session.NewGate(start, end, loc)
	if err != nil {
		return session.Gate{}, &ConfigurationError{Field: "session", Reason: err.Error()}
	}
	return g, nil
}

// FilterChain builds the enabled filters, in order, from reg
func (c Config) FilterChain(reg *filters.Registry) (*filters.Chain, error) {
	var built []filters.Filter
	for i, fc := range c.Filters {
		if fc.Disabled {
			continue
		}
		f, err := reg.Build(fc.Name, filters.Params(fc.Params))
		if err != nil {
			return nil, &ConfigurationError{Field: fmt.Sprintf("filters[%d]", i), Reason: err.Error()}
		}
		built = append(built, f)
	}
	return filters.NewChain(built...), nil
}

package config

import (
	"errors"
	"fmt"

	"github.com/sawpanic/wbws/internal/filters"
	"github.com/sawpanic/wbws/internal/risk"
)

// ConfigurationError rejects a setting before any bar is processed
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// Validate checks every section and returns the first *ConfigurationError.
func (c Config) Validate() error {
	if _, err := c.Location(); err != nil {
		return err
	}

	ltf, err := c.LTFPeriod()
	if err != nil {
		return err
	}
	htf, err := c.HTFPeriod()
	if err != nil {
		return err
	}
	if htf < ltf {
		return &ConfigurationError{Field: "timeframes.htf", Reason: fmt.Sprintf("%v is shorter than ltf %v", htf, ltf)}
	}

	if c.Candles.DojiThreshold < 0 || c.Candles.DojiThreshold >= 1 {
		return &ConfigurationError{Field: "candles.doji_threshold", Reason: fmt.Sprintf("must be in [0, 1), got %g", c.Candles.DojiThreshold)}
	}
	if c.Reversal.RunLength < 1 {
		return &ConfigurationError{Field: "reversal.run_length", Reason: fmt.Sprintf("must be >= 1, got %d", c.Reversal.RunLength)}
	}
	if c.Reversal.StrengthThreshold < 0 || c.Reversal.StrengthThreshold >= 1 {
		return &ConfigurationError{Field: "reversal.strength_threshold", Reason: fmt.Sprintf("must be in [0, 1), got %g", c.Reversal.StrengthThreshold)}
	}

	if _, err := c.FilterChain(filters.Default); err != nil {
		return err
	}
	if _, err := c.SessionGate(); err != nil {
		return err
	}

	rp, err := c.RiskParams()
	if err != nil {
		return err
	}
	if err := rp.Validate(); err != nil {
		var fe *risk.FieldError
		if errors.As(err, &fe) {
			return &ConfigurationError{Field: "risk." + fe.Field, Reason: fe.Reason}
		}
		return &ConfigurationError{Field: "risk", Reason: err.Error()}
	}

	return nil
}

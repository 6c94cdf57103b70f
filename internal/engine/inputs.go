package engine

import (
	"github.com/sawpanic/wbws/internal/bars"
	"github.com/sawpanic/wbws/internal/config"
)

// Inputs are the files one run reads, already parsed
type Inputs struct {
	Config config.Config
	LTF    bars.Series
	HTF    bars.Series // empty when no HTF file was given
}

// LoadInputs reads the config first so a bad config fails before any bar is
// parsed. Bars are read in the configured timezone and timeframes. An empty
// symbol falls back to the config symbol.
func LoadInputs(configPath, barsPath, htfPath, symbol string) (Inputs, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return Inputs{}, err
	}
	if symbol == "" {
		symbol = cfg.Symbol
	}
	loc, err := cfg.Location()
	if err != nil {
		return Inputs{}, err
	}
	ltfDur, err := cfg.LTFPeriod()
	if err != nil {
		return Inputs{}, err
	}

	in := Inputs{Config: cfg}
	if in.LTF, err = bars.LoadCSV(barsPath, symbol, ltfDur, loc); err != nil {
		return Inputs{}, err
	}
	if htfPath != "" {
		htfDur, err := cfg.HTFPeriod()
		if err != nil {
			return Inputs{}, err
		}
		if in.HTF, err = bars.LoadCSV(htfPath, symbol, htfDur, loc); err != nil {
			return Inputs{}, err
		}
	}
	return in, nil
}

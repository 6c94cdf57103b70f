package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/sawpanic/wbws/internal/bars"
	"github.com/sawpanic/wbws/internal/config"
)

func TestExitCode(t *testing.T) {
	assert.Equal(t, exitOK, exitCode(nil))
	assert.Equal(t, exitConfig, exitCode(fmt.Errorf("load: %w", &config.ConfigurationError{Field: "timezone"})))
	assert.Equal(t, exitData, exitCode(&bars.DataIntegrityError{Series: "ltf", Index: 3}))
	assert.Equal(t, exitFailure, exitCode(os.ErrPermission))
}

func TestSetupLogging(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	require.NoError(t, setupLogging(os.Stderr, "debug", "json"))
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())
	assert.Error(t, setupLogging(os.Stderr, "loud", "json"))
	assert.Error(t, setupLogging(os.Stderr, "info", "xml"))
}

func writeFixture(t *testing.T) (cfgPath, barsPath string) {
	t.Helper()
	dir := t.TempDir()

	cfg := config.Default()
	cfg.Symbol = "TEST"
	cfg.Timezone = "UTC"
	cfg.Session.Enabled = false
	cfg.Filters = nil
	cfg.Reversal.RunLength = 5
	cfg.HTF.RequireAlignment = false
	data, err := yaml.Marshal(cfg)
	require.NoError(t, err)
	cfgPath = filepath.Join(dir, "wbws.yaml")
	require.NoError(t, os.WriteFile(cfgPath, data, 0o644))

	start := time.Date(2024, 4, 2, 10, 0, 0, 0, time.UTC)
	s := bars.Series{Symbol: "TEST", Timeframe: time.Minute}
	add := func(o, h, l, c float64) {
		s.Bars = append(s.Bars, bars.Bar{Timestamp: start.Add(time.Duration(len(s.Bars)) * time.Minute), Open: o, High: h, Low: l, Close: c, Volume: 1})
	}
	for i := 0; i < 14; i++ {
		add(100, 100.5, 99.5, 100)
	}
	for i := 0; i < 5; i++ {
		add(100, 101, 99.9, 100.9)
	}
	add(101, 101, 99, 99.4)
	for px := 99.4; px > 90; px-- {
		add(px, px+0.1, px-1, px-1)
	}

	var buf bytes.Buffer
	require.NoError(t, bars.WriteCSV(&buf, s))
	barsPath = filepath.Join(dir, "bars.csv")
	require.NoError(t, os.WriteFile(barsPath, buf.Bytes(), 0o644))
	return cfgPath, barsPath
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--log-level", "error", "--log-format", "json"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestBacktestWritesReport(t *testing.T) {
	cfgPath, barsPath := writeFixture(t)
	outDir := t.TempDir()

	out, err := execute(t, "backtest", "--config", cfgPath, "--bars", barsPath, "--out", outDir)
	require.NoError(t, err)
	assert.Contains(t, out, "signals 1, survived 1")
	assert.Contains(t, out, "trades 1")

	matches, err := filepath.Glob(filepath.Join(outDir, "*", "*_report.json"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestBacktestConfigErrorExitCode(t *testing.T) {
	_, barsPath := writeFixture(t)
	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("reversal:\n  run_length: 0\n"), 0o644))

	_, err := execute(t, "backtest", "--config", bad, "--bars", barsPath, "--out", t.TempDir())
	require.Error(t, err)
	assert.Equal(t, exitConfig, exitCode(err))
}

func TestSweepAcceptsSnakeCaseFlags(t *testing.T) {
	cfgPath, barsPath := writeFixture(t)
	jsonPath := filepath.Join(t.TempDir(), "sweep", "grid.json")

	out, err := execute(t, "sweep", "--config", cfgPath, "--bars", barsPath,
		"--atr_multipliers", "1,2", "--reward-to-risk", "2", "--out", jsonPath)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.True(t, strings.HasPrefix(lines[0], "ATR_MULT"))
	assert.Len(t, lines, 4, "header, two grid rows, wrote line")
	assert.FileExists(t, jsonPath)
}

func TestResampleCommand(t *testing.T) {
	_, barsPath := writeFixture(t)
	outPath := filepath.Join(t.TempDir(), "htf.csv")

	_, err := execute(t, "resample", "--in", barsPath, "--out", outPath, "--timezone", "UTC", "--to", "15m")
	require.NoError(t, err)

	s, err := bars.LoadCSV(outPath, "TEST", 15*time.Minute, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, 100.0, s.Bars[0].Open)
}

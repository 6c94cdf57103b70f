package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Writer handles writing run artifacts to disk
type Writer struct {
	outputDir string
	dateDir   string
}

// NewWriter creates a writer rooted at <outputDir>/<date of now>
func NewWriter(outputDir string, now time.Time) *Writer {
	dateDir := now.Format("2006-01-02")
	return &Writer{
		outputDir: filepath.Join(outputDir, dateDir),
		dateDir:   dateDir,
	}
}

// GetOutputDir returns the full output directory path
func (w *Writer) GetOutputDir() string {
	return w.outputDir
}

func (w *Writer) path(r *Report, suffix string) string {
	return filepath.Join(w.outputDir, fmt.Sprintf("%s_%s", r.RunID, suffix))
}

// WriteAll writes the JSON report, both CSV tables and the markdown report.
// It returns the paths written.
func (w *Writer) WriteAll(r *Report) ([]string, error) {
	if err := os.MkdirAll(w.outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	steps := []struct {
		suffix string
		write  func(string, *Report) error
	}{
		{"report.json", writeJSON},
		{"signals.csv", writeSignalsCSV},
		{"trades.csv", writeTradesCSV},
		{"report.md", writeMarkdown},
	}

	var paths []string
	for _, step := range steps {
		p := w.path(r, step.suffix)
		if err := step.write(p, r); err != nil {
			return paths, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}

func writeJSON(path string, r *Report) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

func writeCSV(path string, header []string, rows [][]string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Base(path), err)
	}
	defer file.Close()

	cw := csv.NewWriter(file)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write rows: %w", err)
	}
	return nil
}

func writeSignalsCSV(path string, r *Report) error {
	header := []string{"index", "timestamp", "side", "htf_bias", "strength", "survived", "rejected_by", "votes", "annotations"}
	rows := make([][]string, 0, len(r.Signals))
	for _, s := range r.Signals {
		votes := make([]string, 0, len(s.FilterVotes))
		for _, v := range s.FilterVotes {
			votes = append(votes, fmt.Sprintf("%s:%s", v.Name, v.Decision))
		}
		rows = append(rows, []string{
			strconv.Itoa(s.Index),
			s.Timestamp.Format(time.RFC3339),
			s.Side.String(),
			s.HTFBias.String(),
			strconv.FormatFloat(s.Strength, 'f', 4, 64),
			strconv.FormatBool(s.Survived),
			s.RejectedBy,
			strings.Join(votes, ";"),
			strings.Join(s.Annotations, ";"),
		})
	}
	return writeCSV(path, header, rows)
}

func writeTradesCSV(path string, r *Report) error {
	header := []string{"signal_index", "side", "entry_time", "entry_price", "stop_loss", "take_profit",
		"stop_distance", "atr", "capped", "exit_time", "exit_price", "outcome", "exit_reason", "bars_held", "r_multiple"}
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

	rows := make([][]string, 0, len(r.Trades))
	for _, t := range r.Trades {
		rows = append(rows, []string{
			strconv.Itoa(t.SignalIndex),
			t.Side.String(),
			t.EntryTime.Format(time.RFC3339),
			f(t.EntryPrice),
			f(t.StopLoss),
			f(t.TakeProfit),
			f(t.StopDistance),
			f(t.ATR),
			strconv.FormatBool(t.Capped),
			t.ExitTime.Format(time.RFC3339),
			f(t.ExitPrice),
			t.Outcome.String(),
			t.ExitReason.String(),
			strconv.Itoa(t.BarsHeld),
			strconv.FormatFloat(t.RMultiple, 'f', 4, 64),
		})
	}
	return writeCSV(path, header, rows)
}

func writeMarkdown(path string, r *Report) error {
	if err := os.WriteFile(path, []byte(Markdown(r)), 0644); err != nil {
		return fmt.Errorf("failed to write markdown report: %w", err)
	}
	return nil
}

// Markdown renders the human-readable report
func Markdown(r *Report) string {
	var b strings.Builder
	s := r.Summary

	b.WriteString(fmt.Sprintf("# Execution Report: %s\n\n", r.Name))
	b.WriteString(fmt.Sprintf("**Run**: %s\n", r.RunID))
	b.WriteString(fmt.Sprintf("**Generated**: %s\n", r.GeneratedAt.UTC().Format("2006-01-02 15:04:05 UTC")))
	b.WriteString(fmt.Sprintf("**Symbol**: %s\n", r.Symbol))
	b.WriteString(fmt.Sprintf("**Period**: %s to %s (%d bars, %d HTF bars)\n",
		r.Start.Format(time.RFC3339), r.End.Format(time.RFC3339), r.Bars, r.HTFBars))
	b.WriteString(fmt.Sprintf("**Config**: `%s`\n\n", shortHash(r.ConfigHash)))

	b.WriteString("## Summary\n\n")
	b.WriteString(fmt.Sprintf("- **Candidates**: %d (%d rejected by HTF bias)\n", s.Candidates, s.HTFRejected))
	b.WriteString(fmt.Sprintf("- **Signals**: %d (%d survived, %d without trade)\n", s.Signals, s.Survived, s.Skipped))
	b.WriteString(fmt.Sprintf("- **Trades**: %d (%d wins, %d losses, %d expired)\n", s.Trades, s.Wins, s.Losses, s.Expired))
	b.WriteString(fmt.Sprintf("- **Win Rate**: %.1f%%\n", s.WinRate*100))
	b.WriteString(fmt.Sprintf("- **Expectancy**: %.3fR per trade, total %.2fR\n", s.Expectancy, s.TotalR))
	b.WriteString(fmt.Sprintf("- **Profit Factor**: %.2f\n", s.ProfitFactor))
	b.WriteString(fmt.Sprintf("- **Max Drawdown**: %.2fR, %d consecutive losses\n\n", s.MaxDrawdownR, s.MaxConsecutiveLosses))

	writeCounts(&b, "Rejections", "Stage", s.RejectedBy)
	writeCounts(&b, "Exit Reasons", "Reason", s.ExitReasons)
	writeCounts(&b, "Candle Distribution", "Class", s.CandleCounts)
	writeCounts(&b, "Strat Distribution", "Type", s.StratCounts)
	writeCounts(&b, "HTF Bias Distribution", "Bias", s.HTFBiasCounts)

	if len(r.Trades) > 0 {
		b.WriteString("## Trades\n\n")
		b.WriteString("| Bar | Side | Entry | Stop | Target | Exit | Outcome | R |\n")
		b.WriteString("|----:|------|------:|-----:|-------:|-----:|---------|--:|\n")
		for _, t := range r.Trades {
			b.WriteString(fmt.Sprintf("| %d | %s | %.5f | %.5f | %.5f | %.5f | %s | %.2f |\n",
				t.SignalIndex, t.Side, t.EntryPrice, t.StopLoss, t.TakeProfit, t.ExitPrice, t.Outcome, t.RMultiple))
		}
		b.WriteString("\n")
	}

	return b.String()
}

func writeCounts(b *strings.Builder, title, column string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	b.WriteString(fmt.Sprintf("## %s\n\n", title))
	b.WriteString(fmt.Sprintf("| %s | Count |\n", column))
	b.WriteString("|------|------:|\n")
	for _, k := range keys {
		b.WriteString(fmt.Sprintf("| %s | %d |\n", k, counts[k]))
	}
	b.WriteString("\n")
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

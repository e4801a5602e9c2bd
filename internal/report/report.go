// Package report writes evaluation results as JSON, CSV and console tables.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"
	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"

	"github.com/contactkeval/option-ev/internal/daycount"
	"github.com/contactkeval/option-ev/internal/engine"
	"github.com/contactkeval/option-ev/internal/ev"
	"github.com/contactkeval/option-ev/internal/logger"
)

// Output file names under the report directory.
const (
	JSONFile  = "evaluation.json"
	CSVFile   = "ev.csv"
	CurveFile = "pnl_curve.csv"
)

var hundred = decimal.NewFromInt(100)

// ResultRow is one evaluation date, rounded for display.
type ResultRow struct {
	Date      string `csv:"date" json:"date"`
	ATMVol    string `csv:"atm_vol" json:"atm_vol"`
	EV        string `csv:"ev" json:"ev"`         // dollars, 4 dp
	ERPct     string `csv:"er_pct" json:"er_pct"` // percent, 2 dp
	TailMass  string `csv:"tail_mass" json:"tail_mass"`
	Converged bool   `csv:"converged" json:"converged"`
}

// CurveRow is one P/L curve point, rounded for display.
type CurveRow struct {
	Price string `csv:"underlying_price" json:"underlying_price"`
	PnL   string `csv:"pnl" json:"pnl"`
}

// ResultRows rounds results for CSV and console output.
func ResultRows(results []ev.DateResult) []ResultRow {
	rows := make([]ResultRow, 0, len(results))
	for _, r := range results {
		rows = append(rows, ResultRow{
			Date:      daycount.Format(r.Date),
			ATMVol:    decimal.NewFromFloat(r.ATMVol).StringFixed(4),
			EV:        decimal.NewFromFloat(r.EV).StringFixed(4),
			ERPct:     decimal.NewFromFloat(r.ER).Mul(hundred).StringFixed(2),
			TailMass:  fmt.Sprintf("%.3g", r.TailMass),
			Converged: r.Converged,
		})
	}
	return rows
}

// CurveRows rounds curve points for CSV and console output.
func CurveRows(points []ev.CurvePoint) []CurveRow {
	rows := make([]CurveRow, 0, len(points))
	for _, p := range points {
		rows = append(rows, CurveRow{
			Price: decimal.NewFromFloat(p.Price).StringFixed(2),
			PnL:   decimal.NewFromFloat(p.PnL).StringFixed(4),
		})
	}
	return rows
}

// WriteAll writes the JSON, EV CSV and curve CSV files into outdir,
// creating it if needed.
func WriteAll(res *engine.Result, outdir string) error {
	if err := os.MkdirAll(outdir, 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	if err := WriteJSON(res, outdir); err != nil {
		return err
	}
	if err := WriteCSV(res.Results, outdir); err != nil {
		return err
	}
	if err := WriteCurveCSV(res.Curve, outdir); err != nil {
		return err
	}
	logger.Infof("event=reports_written dir=%s dates=%d curve_points=%d", outdir, len(res.Results), len(res.Curve))
	return nil
}

func WriteJSON(res *engine.Result, outdir string) error {
	b, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(outdir, JSONFile), b, 0o644)
}

func WriteCSV(results []ev.DateResult, outdir string) error {
	rows := ResultRows(results)
	return writeCSV(filepath.Join(outdir, CSVFile), &rows)
}

func WriteCurveCSV(points []ev.CurvePoint, outdir string) error {
	rows := CurveRows(points)
	return writeCSV(filepath.Join(outdir, CurveFile), &rows)
}

func writeCSV(path string, rows any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	if err := gocsv.MarshalFile(rows, f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}

// PrintResults renders the per-date table.
func PrintResults(w io.Writer, res *engine.Result) {
	fmt.Fprintf(w, "%s  spot=%s  rate=%s  cost=%s\n",
		res.Underlying,
		decimal.NewFromFloat(res.Spot).StringFixed(2),
		decimal.NewFromFloat(res.Rate).StringFixed(4),
		decimal.NewFromFloat(res.InitialCost).StringFixed(2))

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Date", "ATM Vol", "EV ($)", "ER (%)", "Tail Mass"})
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	for _, r := range ResultRows(res.Results) {
		table.Append([]string{r.Date, r.ATMVol, r.EV, r.ERPct, r.TailMass})
	}
	table.Render()
}

// PrintCurve renders the P/L curve and its summary.
func PrintCurve(w io.Writer, res *engine.Result) {
	fmt.Fprintf(w, "P/L at %s\n", daycount.Format(res.CurveDate))

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Underlying", "P/L"})
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	for _, r := range CurveRows(res.Curve) {
		table.Append([]string{r.Price, r.PnL})
	}
	table.Render()

	s := res.Summary
	fmt.Fprintf(w, "max profit %s  max loss %s",
		decimal.NewFromFloat(s.MaxProfit).StringFixed(2),
		decimal.NewFromFloat(s.MaxLoss).StringFixed(2))
	for i, b := range s.Breakevens {
		if i == 0 {
			fmt.Fprint(w, "  breakeven")
		}
		fmt.Fprintf(w, " %s", decimal.NewFromFloat(b).StringFixed(2))
	}
	fmt.Fprintln(w)
}

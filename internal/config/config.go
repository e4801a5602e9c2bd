// Package config loads evaluation requests from YAML or JSON files and
// vendor credentials from the environment.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/contactkeval/option-ev/internal/daycount"
	"github.com/contactkeval/option-ev/internal/schedule"
	"github.com/contactkeval/option-ev/internal/strategy"
)

// ErrInvalidConfig is returned for malformed or inconsistent request files.
var ErrInvalidConfig = errors.New("invalid config")

// Verbosity levels, as understood by logger.SetVerbosity.
const (
	VerbosityError = 0
	VerbosityInfo  = 1
	VerbosityDebug = 2
	VerbosityTrace = 3
)

// verbosityUnset marks a document that did not set verbosity.
const verbosityUnset = -1

// DefaultReportDir is where reports go when report_dir is empty.
const DefaultReportDir = "./out"

// Config is one evaluation request.
type Config struct {
	Underlying     string             `json:"underlying" yaml:"underlying"`                                 // e.g. "SPY"
	Today          string             `json:"today,omitempty" yaml:"today,omitempty"`                       // YYYY-MM-DD, empty = current date
	Spot           float64            `json:"spot,omitempty" yaml:"spot,omitempty"`                         // overrides the provider quote
	Rate           *float64           `json:"rate,omitempty" yaml:"rate,omitempty"`                         // overrides the provider rate
	IVATM          float64            `json:"iv_atm,omitempty" yaml:"iv_atm,omitempty"`                     // overrides the surface ATM vol on every date
	EvalDates      []string           `json:"eval_dates,omitempty" yaml:"eval_dates,omitempty"`             // YYYY-MM-DD
	EvalSchedule   *schedule.Rule     `json:"eval_schedule,omitempty" yaml:"eval_schedule,omitempty"`       // generated dates, appended to eval_dates
	Legs           []strategy.LegSpec `json:"legs" yaml:"legs"`                                             // option legs
	StrikeInterval float64            `json:"strike_interval,omitempty" yaml:"strike_interval,omitempty"`   // rounds rule-based strikes
	Integration    Integration        `json:"integration,omitempty" yaml:"integration,omitempty"`           // quadrature controls
	Curve          Curve              `json:"curve,omitempty" yaml:"curve,omitempty"`                       // P/L grid
	Providers      []string           `json:"providers,omitempty" yaml:"providers,omitempty"`               // data provider chain, first asked first
	DataDir        string             `json:"data_dir,omitempty" yaml:"data_dir,omitempty"`                 // csv provider directory
	ReportDir      string             `json:"report_dir,omitempty" yaml:"report_dir,omitempty"`             // report directory
	Workers        int                `json:"workers,omitempty" yaml:"workers,omitempty"`                   // concurrent dates, 0 = GOMAXPROCS
	Verbosity      int                `json:"verbosity,omitempty" yaml:"verbosity,omitempty"`               // 0=errors,1=info,2=debug,3=trace
}

// Integration tunes the expected value integral.
type Integration struct {
	UpperMultiple float64 `json:"upper_multiple,omitempty" yaml:"upper_multiple,omitempty"` // domain is (0, upper_multiple×spot], default 3
	AbsTol        float64 `json:"abs_tol,omitempty" yaml:"abs_tol,omitempty"`
	RelTol        float64 `json:"rel_tol,omitempty" yaml:"rel_tol,omitempty"`
}

// Curve is the P/L grid as percentages of spot.
type Curve struct {
	FromPct float64 `json:"from_pct,omitempty" yaml:"from_pct,omitempty"` // default 50
	ToPct   float64 `json:"to_pct,omitempty" yaml:"to_pct,omitempty"`     // default 150
	StepPct float64 `json:"step_pct,omitempty" yaml:"step_pct,omitempty"` // default 5
}

// Load reads and validates the request at path. Files ending in .json are
// decoded as JSON, anything else as YAML.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	parse := Parse
	if strings.EqualFold(filepath.Ext(path), ".json") {
		parse = ParseJSON
	}
	cfg, err := parse(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a YAML (or JSON) request, applies defaults and validates it.
// Unknown keys are rejected.
func Parse(b []byte) (*Config, error) {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	cfg := Config{Verbosity: verbosityUnset}
	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty document", ErrInvalidConfig)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	return finish(&cfg)
}

// ParseJSON is Parse for JSON documents.
func ParseJSON(b []byte) (*Config, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()

	cfg := Config{Verbosity: verbosityUnset}
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return finish(&cfg)
}

func finish(cfg *Config) (*Config, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills unset optional fields. A verbosity outside
// VerbosityError..VerbosityTrace, including an omitted one, becomes
// VerbosityInfo.
func (c *Config) ApplyDefaults() {
	if c.ReportDir == "" {
		c.ReportDir = DefaultReportDir
	}
	if c.Verbosity < VerbosityError || c.Verbosity > VerbosityTrace {
		c.Verbosity = VerbosityInfo
	}
	if c.Curve.FromPct == 0 && c.Curve.ToPct == 0 {
		c.Curve.FromPct, c.Curve.ToPct = 50, 150
	}
	if c.Curve.StepPct == 0 {
		c.Curve.StepPct = 5
	}
}

// Validate checks the fields that do not depend on market data.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Underlying == "" && (c.Spot <= 0 || c.IVATM <= 0) {
		bad("underlying is required unless spot and iv_atm are given")
	}
	if len(c.Legs) == 0 {
		bad("at least one leg is required")
	}
	if len(c.EvalDates) == 0 && c.EvalSchedule == nil {
		bad("eval_dates or eval_schedule is required")
	}
	if c.Today != "" {
		if _, err := daycount.Parse(c.Today); err != nil {
			bad("today: %v", err)
		}
	}
	for i, s := range c.EvalDates {
		if _, err := daycount.Parse(s); err != nil {
			bad("eval_dates[%d]: %v", i, err)
		}
	}
	if c.Spot < 0 || math.IsNaN(c.Spot) {
		bad("spot must be positive")
	}
	if c.IVATM < 0 || math.IsNaN(c.IVATM) {
		bad("iv_atm must be positive")
	}
	if c.Rate != nil && (math.IsNaN(*c.Rate) || math.IsInf(*c.Rate, 0)) {
		bad("rate must be finite")
	}
	if c.StrikeInterval < 0 {
		bad("strike_interval must not be negative")
	}
	if c.Integration.UpperMultiple < 0 || c.Integration.AbsTol < 0 || c.Integration.RelTol < 0 {
		bad("integration settings must not be negative")
	}
	if c.Curve.StepPct <= 0 || c.Curve.ToPct < c.Curve.FromPct || c.Curve.FromPct < 0 {
		bad("curve must satisfy 0 <= from_pct <= to_pct and step_pct > 0")
	}
	if r := c.EvalSchedule; r != nil {
		for name, v := range map[string]string{"start": r.Start, "end": r.End} {
			if v == "" {
				continue
			}
			if _, err := daycount.Parse(v); err != nil {
				bad("eval_schedule.%s: %v", name, err)
			}
		}
	}
	if c.Workers < 0 {
		bad("workers must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// TodayDate returns the configured valuation date, or now's civil date.
func (c *Config) TodayDate(now time.Time) time.Time {
	if c.Today == "" {
		return daycount.Date(now)
	}
	t, err := daycount.Parse(c.Today)
	if err != nil {
		return daycount.Date(now)
	}
	return t
}

// Dates returns the parsed evaluation dates in file order.
func (c *Config) Dates() ([]time.Time, error) {
	out := make([]time.Time, 0, len(c.EvalDates))
	for i, s := range c.EvalDates {
		t, err := daycount.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("%w: eval_dates[%d]: %v", ErrInvalidConfig, i, err)
		}
		out = append(out, t)
	}
	return out, nil
}

// LoadEnv loads KEY=VALUE files into the process environment. Variables
// already set win. Missing files are skipped; with no paths ".env" is tried.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

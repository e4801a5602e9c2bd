package strategy

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Knetic/govaluate"
	"gopkg.in/yaml.v3"

	"github.com/contactkeval/option-ev/internal/daycount"
	"github.com/contactkeval/option-ev/internal/logger"
)

//
// ==========================
// Error taxonomy
// ==========================
//

// Typed errors allow callers and tests to detect failure categories
// without string matching.
var (
	ErrInvalidStrikeExpression = errors.New("invalid strike expression")
	ErrLegIndexOutOfRange      = errors.New("leg index out of range")
	ErrInvalidLegSpec          = errors.New("invalid leg spec")
)

//
// ==========================
// Spec Types
// ==========================
//

// StrikeRule is a strike as written by the user: a number or an expression.
// It decodes from both YAML and JSON scalars, quoted or not.
type StrikeRule string

// UnmarshalYAML keeps the raw scalar text.
func (r *StrikeRule) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("%w: strike must be a scalar", ErrInvalidStrikeExpression)
	}
	*r = StrikeRule(node.Value)
	return nil
}

// UnmarshalJSON accepts a JSON number or string.
func (r *StrikeRule) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*r = StrikeRule(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidStrikeExpression, string(b))
	}
	*r = StrikeRule(n.String())
	return nil
}

// LegSpec defines a single option leg as provided by the user.
//
// This struct represents *intent*, not resolved values.
type LegSpec struct {
	Type   string     `json:"type" yaml:"type"`                     // call or put
	Side   string     `json:"side,omitempty" yaml:"side,omitempty"` // buy or sell; sets the sign of qty
	Strike StrikeRule `json:"strike" yaml:"strike"`                 // 101, ABS:600, ATM, ATM:+10, ATM:-5%, {LEG1.STRIKE}+5, SPOT*1.01
	Expiry string     `json:"expiry,omitempty" yaml:"expiry,omitempty"`
	DTE    int        `json:"dte,omitempty" yaml:"dte,omitempty"` // calendar days from today when expiry is empty
	Qty    float64    `json:"qty" yaml:"qty"`
	Price  float64    `json:"price" yaml:"price"` // entry price per unit
	IV     float64    `json:"iv" yaml:"iv"`       // the leg's own implied volatility
}

// PlanInput carries the market facts needed to resolve relative strikes.
type PlanInput struct {
	Spot           float64   // spot used for ATM and SPOT references
	Today          time.Time // anchor for DTE
	StrikeInterval float64   // rounding grid for relative strikes, 0 = none
}

//
// ==========================
// Planning
// ==========================
//

// ResolveLegs resolves leg specs into a Spread, in order, so that leg
// expressions can reference any earlier leg.
func ResolveLegs(specs []LegSpec, in PlanInput) (Spread, error) {
	logger.Debugf("event=resolve_legs count=%d spot=%.2f", len(specs), in.Spot)

	legs := make(Spread, 0, len(specs))
	for i, spec := range specs {
		leg, err := resolveLeg(spec, in, legs)
		if err != nil {
			logger.Errorf("event=leg_resolution_failed leg=%d err=%v", i+1, err)
			return nil, fmt.Errorf("leg %d: %w", i+1, err)
		}

		logger.Tracef("event=leg_resolved leg=%d %s", i+1, leg)
		legs = append(legs, leg)
	}
	return legs, nil
}

func resolveLeg(spec LegSpec, in PlanInput, prior Spread) (Leg, error) {
	optType, err := ParseOptionType(spec.Type)
	if err != nil {
		return Leg{}, err
	}

	qty, err := signedQuantity(spec.Side, spec.Qty)
	if err != nil {
		return Leg{}, err
	}

	expiry, err := ResolveExpiration(spec.Expiry, spec.DTE, in.Today)
	if err != nil {
		return Leg{}, err
	}

	strike, err := ResolveStrike(string(spec.Strike), in.Spot, in.StrikeInterval, prior)
	if err != nil {
		return Leg{}, err
	}

	return Leg{
		Type:       optType,
		Strike:     strike,
		Expiry:     expiry,
		Quantity:   qty,
		EntryPrice: spec.Price,
		ImpliedVol: spec.IV,
	}, nil
}

func signedQuantity(side string, qty float64) (float64, error) {
	switch strings.ToLower(strings.TrimSpace(side)) {
	case "":
		return qty, nil
	case "buy", "long":
		return math.Abs(qty), nil
	case "sell", "short":
		return -math.Abs(qty), nil
	}
	return 0, fmt.Errorf("%w: side %q", ErrInvalidLegSpec, side)
}

// ResolveExpiration returns the explicit expiry date if set, otherwise today
// plus dte calendar days.
func ResolveExpiration(expiry string, dte int, today time.Time) (time.Time, error) {
	if strings.TrimSpace(expiry) != "" {
		d, err := daycount.Parse(strings.TrimSpace(expiry))
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidLegSpec, err)
		}
		return d, nil
	}
	if dte <= 0 {
		return time.Time{}, fmt.Errorf("%w: expiry or positive dte required", ErrInvalidLegSpec)
	}
	return daycount.Date(today).AddDate(0, 0, dte), nil
}

//
// ==========================
// Strike Resolution
// ==========================
//

var legRefPattern = regexp.MustCompile(`\{LEG(\d+)\.(STRIKE|PREMIUM)\}`)

// ResolveStrike converts a strike rule into a concrete strike price.
//
// Supported formats:
//   - 101.5, ABS:600 (absolute, never rounded)
//   - ATM
//   - ATM:+10, ATM:-5%
//   - {LEG1.STRIKE}+5, {LEG2.PREMIUM}*2 (earlier legs only)
//   - SPOT*1.01 and any other arithmetic over SPOT
//
// Relative strikes are rounded to the nearest multiple of interval when
// interval > 0.
func ResolveStrike(rule string, spot, interval float64, legs Spread) (float64, error) {
	expr := strings.TrimSpace(strings.ToUpper(rule))
	logger.Tracef("event=resolve_strike expr=%s", expr)

	if expr == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidStrikeExpression)
	}

	if v, err := strconv.ParseFloat(expr, 64); err == nil {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("%w: %s", ErrInvalidStrikeExpression, rule)
		}
		return v, nil
	}

	if strings.HasPrefix(expr, "ABS:") {
		v, err := strconv.ParseFloat(strings.TrimPrefix(expr, "ABS:"), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %s", ErrInvalidStrikeExpression, rule)
		}
		return v, nil
	}

	if expr == "ATM" {
		return RoundToInterval(spot, interval), nil
	}

	if strings.HasPrefix(expr, "ATM:") {
		target, err := resolveATMOffset(strings.TrimPrefix(expr, "ATM:"), spot)
		if err != nil {
			return 0, fmt.Errorf("%w: %s", ErrInvalidStrikeExpression, rule)
		}
		return RoundToInterval(target, interval), nil
	}

	target, err := evaluateExpression(expr, spot, legs)
	if err != nil {
		return 0, err
	}
	return RoundToInterval(target, interval), nil
}

// RoundToInterval rounds v to the nearest multiple of interval; interval <= 0
// leaves v unchanged.
func RoundToInterval(v, interval float64) float64 {
	if interval <= 0 {
		return v
	}
	return math.Round(v/interval) * interval
}

// resolveATMOffset applies an absolute or percentage offset to a price.
func resolveATMOffset(offset string, spot float64) (float64, error) {
	if strings.HasSuffix(offset, "%") {
		pct, err := strconv.ParseFloat(strings.TrimSuffix(offset, "%"), 64)
		if err != nil {
			return 0, err
		}
		return spot + spot*pct/100, nil
	}

	abs, err := strconv.ParseFloat(offset, 64)
	if err != nil {
		return 0, err
	}
	return spot + abs, nil
}

// evaluateExpression substitutes leg references and evaluates the remaining
// arithmetic with SPOT bound to the spot price.
func evaluateExpression(expr string, spot float64, legs Spread) (float64, error) {
	evalStr := expr

	for _, match := range legRefPattern.FindAllStringSubmatch(expr, -1) {
		idx, _ := strconv.Atoi(match[1])
		idx-- // LEG1 -> index 0

		if idx < 0 || idx >= len(legs) {
			return 0, fmt.Errorf("%w: %s", ErrLegIndexOutOfRange, match[0])
		}

		value := legs[idx].Strike
		if match[2] == "PREMIUM" {
			value = legs[idx].EntryPrice
		}
		evalStr = strings.Replace(evalStr, match[0], strconv.FormatFloat(value, 'f', -1, 64), 1)
	}

	evalExpr, err := govaluate.NewEvaluableExpression(evalStr)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrInvalidStrikeExpression, expr, err)
	}

	result, err := evalExpr.Evaluate(map[string]interface{}{"SPOT": spot})
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrInvalidStrikeExpression, expr, err)
	}

	f, ok := result.(float64)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %s", ErrInvalidStrikeExpression, expr)
	}
	return f, nil
}

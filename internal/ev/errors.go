package ev

import (
	"errors"
	"fmt"

	"github.com/contactkeval/option-ev/internal/strategy"
)

var (
	// ErrZeroCostSpread is returned by ExpectedReturn when Σ qty×entry is
	// exactly zero. ER is undefined there and is never reported as ±Inf/NaN.
	ErrZeroCostSpread = errors.New("expected return undefined for zero-cost spread")

	// ErrEvaluationDateNotFuture is returned when the density horizon is not
	// strictly after today.
	ErrEvaluationDateNotFuture = errors.New("evaluation date is not in the future")

	// ErrInvalidMarket covers non-positive or non-finite spot and volatility
	// inputs, and negative terminal prices.
	ErrInvalidMarket = errors.New("invalid market input")

	// ErrNumerical is returned when an integral evaluates to NaN or Inf.
	ErrNumerical = errors.New("numerical failure")
)

// InvalidLegError reports a leg that cannot be priced: non-positive strike,
// non-positive volatility on a live leg, or non-finite quantity or price.
type InvalidLegError struct {
	Index  int // position of the leg in its spread
	Leg    strategy.Leg
	Reason string
}

func (e *InvalidLegError) Error() string {
	return fmt.Sprintf("invalid leg %d (%s): %s", e.Index+1, e.Leg, e.Reason)
}

// UnsupportedLegTypeError reports a leg whose type is neither call nor put.
type UnsupportedLegTypeError struct {
	Index int
	Type  strategy.OptionType
}

func (e *UnsupportedLegTypeError) Error() string {
	return fmt.Sprintf("leg %d: unsupported option type %q", e.Index+1, string(e.Type))
}

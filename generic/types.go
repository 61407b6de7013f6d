/*
Package generic provides the core types of the shift-closing reconciliation engine.

PURPOSE:
  This package contains the domain model shared by every other package:
  money amounts, calendar dates, identifiers, agents, transactions, formula
  rules, closings, adjustments and shifts. It also defines the error taxonomy
  and the persistence interfaces. It has no knowledge of HTTP, SQL or Redis.

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount: A fixed-point monetary value (2 fractional digits at the boundary)
  - ParseAmount: The single validated-input boundary for money
  - Entity IDs: Type-safe int64 identifiers assigned by the store

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal, never float64, for money
  2. Strict input: Values are parsed once at the boundary, never coerced later
  3. Type Safety: Strong typing for IDs prevents mixing agent/closing IDs

USAGE:
  value, err := generic.ParseAmount("value", "125.50")
  if err != nil {
      // err is a *ValidationError
  }
  total := value.Add(generic.MustAmount("10"))

SEE ALSO:
  - time.go: Calendar dates and clock times
  - rule.go: Formula rules and the effective rule set
  - closing.go: Closing and adjustment records
*/
package generic

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Fixed-point money
// =============================================================================

// MoneyScale is the number of fractional digits accepted and rendered.
const MoneyScale = 2

// maxAmount bounds the magnitude of a parsed amount (exclusive).
var maxAmount = decimal.New(1, 15)

// amountPattern is plain positional notation. Exponents are rejected and
// both parts are length-bounded before any decimal arithmetic runs.
var amountPattern = regexp.MustCompile(`^[+-]?\d{1,24}(\.\d{1,12})?$`)

type Amount struct {
	Value decimal.Decimal
}

func NewAmountFromInt(value int64) Amount {
	return Amount{Value: decimal.NewFromInt(value)}
}

func NewAmount(value decimal.Decimal) Amount {
	return Amount{Value: value}
}

// ZeroAmount returns a zero value amount.
func ZeroAmount() Amount { return Amount{Value: decimal.Zero} }

// ParseAmount parses a decimal string into an Amount. Empty input, exponent
// notation, non-numeric input, more than MoneyScale significant fractional
// digits and magnitudes of 10^15 or more are rejected.
func ParseAmount(field, s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Amount{}, &ValidationError{Field: field, Message: "value is required"}
	}
	if !amountPattern.MatchString(s) {
		return Amount{}, &ValidationError{Field: field, Message: "must be a decimal number"}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, &ValidationError{Field: field, Message: "must be a decimal number"}
	}
	if d.Exponent() < -MoneyScale && !d.Equal(d.Round(MoneyScale)) {
		return Amount{}, &ValidationError{Field: field, Message: "at most 2 decimal places allowed"}
	}
	if !d.Abs().LessThan(maxAmount) {
		return Amount{}, &ValidationError{Field: field, Message: "magnitude out of range"}
	}
	return Amount{Value: d}, nil
}

// MustAmount parses s and panics on failure. Intended for fixtures and tests.
func MustAmount(s string) Amount {
	a, err := ParseAmount("amount", s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Amount) Add(b Amount) Amount          { return Amount{Value: a.Value.Add(b.Value)} }
func (a Amount) Sub(b Amount) Amount          { return Amount{Value: a.Value.Sub(b.Value)} }
func (a Amount) Mul(s decimal.Decimal) Amount { return Amount{Value: a.Value.Mul(s)} }
func (a Amount) Neg() Amount                  { return Amount{Value: a.Value.Neg()} }
func (a Amount) Abs() Amount                  { return Amount{Value: a.Value.Abs()} }
func (a Amount) IsNegative() bool             { return a.Value.IsNegative() }
func (a Amount) IsZero() bool                 { return a.Value.IsZero() }
func (a Amount) IsPositive() bool             { return a.Value.IsPositive() }
func (a Amount) Equal(b Amount) bool          { return a.Value.Equal(b.Value) }
func (a Amount) String() string               { return a.Value.StringFixed(MoneyScale) }
func (a Amount) Float64() float64             { f, _ := a.Value.Float64(); return f }

// MarshalJSON renders the amount as a string with two decimals so clients
// never see binary floating point.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON accepts either a JSON string or a JSON number.
func (a *Amount) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(data), `"`)
	parsed, err := ParseAmount("amount", raw)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type AgentID int64
type AgentTypeID int64
type TransactionTypeID int64
type TransactionID int64
type ClosingID int64
type AdjustmentID int64
type ShiftID int64

// GlobalScope is the formula-rule scope that applies to every agent type.
const GlobalScope AgentTypeID = 0

// NoShift marks a closing that is not tied to a shift.
const NoShift ShiftID = 0

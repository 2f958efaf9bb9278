/*
quantity.go - Unit-aware quantity validation

PURPOSE:
  Rejects malformed quantities before any holding is touched. Every unit of
  measure belongs to one of three kinds, and each kind has its own rule.

RULES:
  piece   quantity must be a positive integer
  weight  minimum increment 0.001; a quantity <= 0.001 is rejected unless
          it is written with at least 4 fractional digits
  length  minimum increment 0.01; a quantity <= 0.01 is rejected unless
          it is written with at least 3 fractional digits
  any     quantity <= 0 is always rejected

  The fractional-digit escape hatch means "0.0009" kg passes while "0.001"
  kg does not. That is the behavior of the system this ledger replaces and
  is kept as the default. StrictMinimum switches to the plain reading:
  anything below the minimum increment is rejected.

  Fractional digits are counted from the written form, so callers must
  parse quantities with ParseQuantity (or decimal.NewFromString), never
  from float64.

SEE ALSO:
  - factory/units.go: Builds the UnitTable from JSON
  - engine.go: Calls Validate before every mutation
*/
package ledger

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// UNIT KINDS
// =============================================================================

type UnitKind string

const (
	UnitPiece  UnitKind = "piece"
	UnitWeight UnitKind = "weight"
	UnitLength UnitKind = "length"
)

// UnitRule is the minimum-increment rule for one unit kind.
type UnitRule struct {
	MinIncrement decimal.Decimal
	// EscapeDigits is the number of written fractional digits that lets a
	// quantity at or below MinIncrement through.
	EscapeDigits int32
}

var defaultRules = map[UnitKind]UnitRule{
	UnitWeight: {MinIncrement: decimal.New(1, -3), EscapeDigits: 4},
	UnitLength: {MinIncrement: decimal.New(1, -2), EscapeDigits: 3},
}

// UnitTable maps unit names (as stored on products) to unit kinds.
// Lookups are case-insensitive.
type UnitTable map[string]UnitKind

func (t UnitTable) Kind(unit string) (UnitKind, bool) {
	k, ok := t[strings.ToLower(strings.TrimSpace(unit))]
	return k, ok
}

// DefaultUnits covers the units used on the warehouse floor.
func DefaultUnits() UnitTable {
	return UnitTable{
		"piece": UnitPiece, "pcs": UnitPiece, "ədəd": UnitPiece, "eded": UnitPiece,
		"kg": UnitWeight, "kq": UnitWeight, "kilogram": UnitWeight,
		"m": UnitLength, "metr": UnitLength, "meter": UnitLength,
	}
}

// =============================================================================
// VALIDATOR
// =============================================================================

// Validator checks quantities against the unit of the product.
type Validator struct {
	Units UnitTable

	// StrictMinimum rejects anything below the minimum increment regardless
	// of how many fractional digits it was written with.
	StrictMinimum bool

	// UnknownUnitKind is applied to units missing from Units. Empty means
	// unknown units are rejected.
	UnknownUnitKind UnitKind
}

// NewValidator returns a Validator using the literal minimum rule.
func NewValidator(units UnitTable) *Validator {
	if units == nil {
		units = DefaultUnits()
	}
	return &Validator{Units: units}
}

// Validate returns nil or a *ValidationError.
func (v *Validator) Validate(unit string, qty decimal.Decimal) error {
	if qty.Sign() <= 0 {
		return &ValidationError{Field: "quantity", Reason: "must be greater than zero"}
	}

	kind, ok := v.Units.Kind(unit)
	if !ok {
		if v.UnknownUnitKind == "" {
			return &ValidationError{Field: "unit", Reason: fmt.Sprintf("unknown unit %q", unit)}
		}
		kind = v.UnknownUnitKind
	}

	if kind == UnitPiece {
		if !qty.Equal(qty.Truncate(0)) {
			return &ValidationError{Field: "quantity", Reason: fmt.Sprintf("%s must be a whole number of %s", qty, unit)}
		}
		return nil
	}

	rule, ok := defaultRules[kind]
	if !ok {
		return &ValidationError{Field: "unit", Reason: fmt.Sprintf("no rule for unit kind %q", kind)}
	}

	if v.StrictMinimum {
		if qty.LessThan(rule.MinIncrement) {
			return &ValidationError{Field: "quantity", Reason: fmt.Sprintf("below minimum %s %s", rule.MinIncrement, unit)}
		}
		return nil
	}

	if qty.LessThanOrEqual(rule.MinIncrement) && FractionalDigits(qty) < rule.EscapeDigits {
		return &ValidationError{Field: "quantity", Reason: fmt.Sprintf("must exceed %s %s", rule.MinIncrement, unit)}
	}
	return nil
}

// FractionalDigits counts the fractional digits the value was written with,
// trailing zeros included.
func FractionalDigits(d decimal.Decimal) int32 {
	if exp := d.Exponent(); exp < 0 {
		return -exp
	}
	return 0
}

// =============================================================================
// PARSING - Boundary helpers for raw input
// =============================================================================

// ParseQuantity parses a raw quantity. NaN, infinities and non-numeric
// input are validation errors.
func ParseQuantity(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Decimal{}, &ValidationError{Field: "quantity", Reason: "is required"}
	}
	switch strings.ToLower(strings.TrimLeft(s, "+-")) {
	case "nan", "inf", "infinity":
		return decimal.Decimal{}, &ValidationError{Field: "quantity", Reason: fmt.Sprintf("%q is not a number", raw)}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, &ValidationError{Field: "quantity", Reason: fmt.Sprintf("%q is not a number", raw)}
	}
	return d, nil
}

// ParseID parses a numeric identifier. Zero and negative ids are rejected.
func ParseID(field, raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, &ValidationError{Field: field, Reason: fmt.Sprintf("%q is not a numeric id", raw)}
	}
	if id <= 0 {
		return 0, &ValidationError{Field: field, Reason: "must be a positive id"}
	}
	return id, nil
}

// ValidateLocation enforces the minimum location length.
func ValidateLocation(location string) error {
	if len([]rune(strings.TrimSpace(location))) < 3 {
		return &ValidationError{Field: "location", Reason: "must be at least 3 characters"}
	}
	return nil
}

package escrowd

import (
	"errors"
	"math/big"

	"github.com/shopspring/decimal"
)

// BaseUnitsPerDisplay is the ledger's fixed-point convention: 10^9
// base units per display unit.
const BaseUnitsPerDisplay = 1_000_000_000

const displayDecimals = 9

var ErrInvalidAmount = errors.New("invalid amount")

// FromBaseUnits converts base integer units to a display decimal.
func FromBaseUnits(n uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(n), -displayDecimals)
}

// ToBaseUnits converts a display decimal to base units, flooring.
// Never rounds up, so a user can never over-spend through rounding.
func ToBaseUnits(d decimal.Decimal) (uint64, error) {
	if d.IsNegative() {
		return 0, ErrInvalidAmount
	}

	scaled := d.Shift(displayDecimals).Floor()
	if !scaled.BigInt().IsUint64() {
		return 0, ErrInvalidAmount
	}

	return scaled.BigInt().Uint64(), nil
}

// ParseDisplayAmount parses user decimal input into base units,
// flooring any precision beyond the base-unit scale.
func ParseDisplayAmount(s string) (uint64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, ErrInvalidAmount
	}

	return ToBaseUnits(d)
}

// FormatAmount renders base units with two decimal places for
// presentation.
func FormatAmount(n uint64) string {
	return FromBaseUnits(n).StringFixed(2)
}

// amountUnknown is rendered when the requested amount could not be
// recovered from either the live object or the origin transaction.
const amountUnknown = "Unknown"

// DisplayAmount renders a record's requested amount, downgrading an
// unresolvable value to the Unknown sentinel instead of a numeric
// default.
func (r *EscrowRecord) DisplayAmount() string {
	if !r.AmountKnown {
		return amountUnknown
	}

	return FormatAmount(r.RequestedAmount)
}

package money

import (
	"database/sql/driver"
	"fmt"

	"github.com/shopspring/decimal"
)

// Fixed-point layout shared with the NUMERIC(18,6) storage columns.
const (
	Precision = 18
	Scale     = 6
)

// StartingCash is the balance a member is seeded with at registration.
var StartingCash = FromInt(10_000)

// Amount is a fixed-point monetary value: Precision total digits, Scale
// fractional. Every constructor, scan and division truncates (never rounds)
// to Scale digits, so an Amount always matches what storage persists and
// comparisons see the same digits the database does.
type Amount struct {
	dec decimal.Decimal
}

// New truncates d to Scale fractional digits.
func New(d decimal.Decimal) Amount {
	return Amount{dec: d.Truncate(Scale)}
}

func FromInt(n int64) Amount {
	return Amount{dec: decimal.NewFromInt(n)}
}

// FromFloat converts a native float, truncating anything beyond Scale.
// Quote sources hand back floats; this is the only place they enter.
func FromFloat(f float64) Amount {
	return New(decimal.NewFromFloat(f))
}

func Parse(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return New(d), nil
}

// MustParse is for constants in tests and wiring; panics on bad input.
func MustParse(s string) Amount {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Amount) Add(b Amount) Amount { return Amount{dec: a.dec.Add(b.dec)} }
func (a Amount) Sub(b Amount) Amount { return Amount{dec: a.dec.Sub(b.dec)} }
func (a Amount) Neg() Amount         { return Amount{dec: a.dec.Neg()} }
func (a Amount) Abs() Amount         { return Amount{dec: a.dec.Abs()} }

// MulShares scales a per-share amount by a whole share count. The product
// of a 6-digit amount and an integer needs no truncation.
func (a Amount) MulShares(n int64) Amount {
	return Amount{dec: a.dec.Mul(decimal.NewFromInt(n))}
}

// DivShares divides by a share count, truncated to Scale digits. This is
// the settlement-price division: value/shares with digits beyond the 6th
// discarded, not rounded.
func (a Amount) DivShares(n int64) Amount {
	q, _ := a.dec.QuoRem(decimal.NewFromInt(n), Scale)
	return Amount{dec: q}
}

// SharesAffordable returns floor(a / price): the largest whole share count
// purchasable at price with a on hand. Zero when price exceeds a.
func (a Amount) SharesAffordable(price Amount) int64 {
	if price.dec.Sign() <= 0 {
		return 0
	}
	q, _ := a.dec.QuoRem(price.dec, 0)
	return q.IntPart()
}

func (a Amount) Cmp(b Amount) int          { return a.dec.Cmp(b.dec) }
func (a Amount) Equal(b Amount) bool       { return a.dec.Equal(b.dec) }
func (a Amount) LessThan(b Amount) bool    { return a.dec.LessThan(b.dec) }
func (a Amount) GreaterThan(b Amount) bool { return a.dec.GreaterThan(b.dec) }
func (a Amount) IsZero() bool              { return a.dec.IsZero() }
func (a Amount) IsNegative() bool          { return a.dec.IsNegative() }

func (a Amount) String() string { return a.dec.String() }

// Display renders with exactly two fractional digits for user-facing text.
func (a Amount) Display() string { return a.dec.StringFixed(2) }

// Float64 is a lossy conversion for metrics and display math only; ledger
// arithmetic never goes through it.
func (a Amount) Float64() float64 { return a.dec.InexactFloat64() }

// WeightedAvg merges two priced lots into the share-weighted average price,
// truncated to Scale digits.
func WeightedAvg(oldShares int64, oldPrice Amount, newShares int64, newPrice Amount) Amount {
	total := oldShares + newShares
	if total == 0 {
		return Amount{}
	}
	if oldShares == 0 {
		return newPrice
	}
	sum := oldPrice.dec.Mul(decimal.NewFromInt(oldShares)).
		Add(newPrice.dec.Mul(decimal.NewFromInt(newShares)))
	q, _ := sum.QuoRem(decimal.NewFromInt(total), Scale)
	return Amount{dec: q}
}

// Value implements driver.Valuer as the plain decimal string.
func (a Amount) Value() (driver.Value, error) {
	return a.dec.Value()
}

// Scan implements sql.Scanner, truncating whatever the driver hands back.
func (a *Amount) Scan(src any) error {
	var d decimal.Decimal
	if err := d.Scan(src); err != nil {
		return err
	}
	a.dec = d.Truncate(Scale)
	return nil
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return a.dec.MarshalJSON()
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return err
	}
	a.dec = d.Truncate(Scale)
	return nil
}

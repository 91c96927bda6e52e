package valueobject

import (
	"encoding/json"

	"github.com/escrowhub/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ErrInvalidPercentage is returned for values outside [0, 100]
var ErrInvalidPercentage = shared.NewDomainError("InvalidPercentage", "Percentage must be between 0 and 100")

// Percentage is an exact decimal in the closed range [0, 100]
type Percentage struct {
	value decimal.Decimal
}

// NewPercentage validates and wraps a decimal percentage
func NewPercentage(value decimal.Decimal) (Percentage, error) {
	if value.IsNegative() || value.GreaterThan(hundred) {
		return Percentage{}, ErrInvalidPercentage.WithMessagef("percentage %s is outside 0..100", value.String())
	}
	return Percentage{value: value}, nil
}

// NewPercentageFromString parses a decimal string such as "33.5"
func NewPercentageFromString(value string) (Percentage, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return Percentage{}, ErrInvalidPercentage.WithMessagef("invalid percentage %q", value)
	}
	return NewPercentage(d)
}

// MustPercentage is NewPercentageFromString for literals. It panics on invalid input.
func MustPercentage(value string) Percentage {
	p, err := NewPercentageFromString(value)
	if err != nil {
		panic(err)
	}
	return p
}

// Value returns the underlying decimal
func (p Percentage) Value() decimal.Decimal {
	return p.value
}

// IsZero reports whether the percentage is zero
func (p Percentage) IsZero() bool {
	return p.value.IsZero()
}

// IsHundred reports whether the percentage is exactly 100
func (p Percentage) IsHundred() bool {
	return p.value.Equal(hundred)
}

// Equals compares two percentages exactly
func (p Percentage) Equals(other Percentage) bool {
	return p.value.Equal(other.value)
}

// SumPercentages adds raw values without range checks, so callers can test
// whether a prospective total would exceed 100.
func SumPercentages(values ...Percentage) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v.value)
	}
	return total
}

// String renders the value with a percent sign
func (p Percentage) String() string {
	return p.value.String() + "%"
}

// MarshalJSON renders the percentage as a decimal string
func (p Percentage) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.value.String())
}

// UnmarshalJSON accepts a decimal string or JSON number
func (p *Percentage) UnmarshalJSON(data []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return err
	}
	parsed, err := NewPercentage(d)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

package valueobject

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/escrowhub/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Currency represents a currency code (ISO 4217)
type Currency string

const (
	BRL Currency = "BRL" // Brazilian Real
	USD Currency = "USD" // US Dollar
	EUR Currency = "EUR" // Euro
	GBP Currency = "GBP" // British Pound
)

// DefaultCurrency is used when configuration does not name one
const DefaultCurrency = BRL

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

// ErrInvalidAmount is returned for negative or malformed amounts
var ErrInvalidAmount = shared.NewDomainError("InvalidAmount", "Amount must be a non-negative decimal")

// ErrInvalidCurrency is returned for codes that are not three ASCII letters
var ErrInvalidCurrency = shared.NewDomainError("InvalidCurrency", "Currency must be a three-letter ISO 4217 code")

// ParseCurrency normalizes and validates a currency code
func ParseCurrency(code string) (Currency, error) {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	if !currencyPattern.MatchString(normalized) {
		return "", ErrInvalidCurrency.WithMessagef("invalid currency code %q", code)
	}
	return Currency(normalized), nil
}

// String returns the currency code
func (c Currency) String() string {
	return string(c)
}

// Money is an immutable non-negative amount in a single currency.
// Arithmetic and comparison across currencies fail with CurrencyMismatch.
type Money struct {
	amount   decimal.Decimal
	currency Currency
}

// NewMoney creates Money after validating amount and currency
func NewMoney(amount decimal.Decimal, currency Currency) (Money, error) {
	cur, err := ParseCurrency(string(currency))
	if err != nil {
		return Money{}, err
	}
	if amount.IsNegative() {
		return Money{}, ErrInvalidAmount.WithMessagef("amount %s cannot be negative", amount.String())
	}
	return Money{amount: amount, currency: cur}, nil
}

// NewMoneyFromInt creates Money from a whole-unit integer
func NewMoneyFromInt(amount int64, currency Currency) (Money, error) {
	return NewMoney(decimal.NewFromInt(amount), currency)
}

// NewMoneyFromString creates Money from a decimal string such as "1250.50"
func NewMoneyFromString(amount string, currency Currency) (Money, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return Money{}, ErrInvalidAmount.WithMessagef("invalid amount %q", amount)
	}
	return NewMoney(d, currency)
}

// MustMoney is NewMoneyFromString for literals known to be valid. It panics otherwise.
func MustMoney(amount string, currency Currency) Money {
	m, err := NewMoneyFromString(amount, currency)
	if err != nil {
		panic(err)
	}
	return m
}

// Zero returns a zero-value Money in the specified currency
func Zero(currency Currency) Money {
	return Money{amount: decimal.Zero, currency: currency}
}

// Amount returns the decimal amount
func (m Money) Amount() decimal.Decimal {
	return m.amount
}

// Currency returns the currency code
func (m Money) Currency() Currency {
	return m.currency
}

// IsZero returns true if the amount is zero
func (m Money) IsZero() bool {
	return m.amount.IsZero()
}

// IsPositive returns true if the amount is positive
func (m Money) IsPositive() bool {
	return m.amount.IsPositive()
}

// SameCurrency reports whether both values share a currency
func (m Money) SameCurrency(other Money) bool {
	return m.currency == other.currency
}

func (m Money) mismatch(op string, other Money) error {
	return shared.ErrCurrencyMismatch.WithMessagef("cannot %s %s and %s amounts", op, m.currency, other.currency)
}

// Add returns the sum of both amounts
func (m Money) Add(other Money) (Money, error) {
	if !m.SameCurrency(other) {
		return Money{}, m.mismatch("add", other)
	}
	return Money{amount: m.amount.Add(other.amount), currency: m.currency}, nil
}

// Subtract returns the difference. A negative result is an error since
// Money never holds a negative amount.
func (m Money) Subtract(other Money) (Money, error) {
	if !m.SameCurrency(other) {
		return Money{}, m.mismatch("subtract", other)
	}
	diff := m.amount.Sub(other.amount)
	if diff.IsNegative() {
		return Money{}, ErrInvalidAmount.WithMessagef("subtracting %s from %s would be negative", other, m)
	}
	return Money{amount: diff, currency: m.currency}, nil
}

// SubtractFloorZero returns the difference, floored at zero
func (m Money) SubtractFloorZero(other Money) (Money, error) {
	if !m.SameCurrency(other) {
		return Money{}, m.mismatch("subtract", other)
	}
	diff := m.amount.Sub(other.amount)
	if diff.IsNegative() {
		diff = decimal.Zero
	}
	return Money{amount: diff, currency: m.currency}, nil
}

// Compare returns -1, 0 or 1 like decimal.Cmp
func (m Money) Compare(other Money) (int, error) {
	if !m.SameCurrency(other) {
		return 0, m.mismatch("compare", other)
	}
	return m.amount.Cmp(other.amount), nil
}

// GreaterThan returns true if this Money is greater than the other
func (m Money) GreaterThan(other Money) (bool, error) {
	c, err := m.Compare(other)
	return c > 0, err
}

// LessThan returns true if this Money is less than the other
func (m Money) LessThan(other Money) (bool, error) {
	c, err := m.Compare(other)
	return c < 0, err
}

// Equals returns true if both Money values are equal (same amount and currency)
func (m Money) Equals(other Money) bool {
	return m.currency == other.currency && m.amount.Equal(other.amount)
}

// Ratio returns m / other as a decimal. Dividing by zero yields zero.
func (m Money) Ratio(other Money) (decimal.Decimal, error) {
	if !m.SameCurrency(other) {
		return decimal.Zero, m.mismatch("divide", other)
	}
	if other.amount.IsZero() {
		return decimal.Zero, nil
	}
	return m.amount.Div(other.amount), nil
}

// MinorUnits returns the amount in cents, rounded half away from zero.
// Payment processors take integer minor units.
func (m Money) MinorUnits() int64 {
	return m.amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// FromMinorUnits builds Money from an integer amount of cents
func FromMinorUnits(cents int64, currency Currency) (Money, error) {
	return NewMoney(decimal.New(cents, -2), currency)
}

// AllocateByPercentages splits the amount into shares proportional to the
// given percentages, rounded down to cents. Leftover cents go one each to the
// leading shares so the parts always sum to the original amount.
func (m Money) AllocateByPercentages(shares []Percentage) ([]Money, error) {
	if len(shares) == 0 {
		return nil, ErrInvalidAmount.WithMessage("at least one share is required")
	}
	total := decimal.Zero
	for _, s := range shares {
		total = total.Add(s.Value())
	}
	if total.IsZero() {
		return nil, ErrInvalidAmount.WithMessage("shares must not all be zero")
	}

	cent := decimal.New(1, -2)
	parts := make([]Money, len(shares))
	allocated := decimal.Zero
	for i, s := range shares {
		part := m.amount.Mul(s.Value()).Div(total).RoundFloor(2)
		parts[i] = Money{amount: part, currency: m.currency}
		allocated = allocated.Add(part)
	}
	remainder := m.amount.Round(2).Sub(allocated)
	for i := 0; remainder.IsPositive(); i = (i + 1) % len(parts) {
		parts[i].amount = parts[i].amount.Add(cent)
		remainder = remainder.Sub(cent)
	}
	return parts, nil
}

// String returns a string representation of the Money
func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.amount.StringFixed(2), m.currency)
}

type moneyJSON struct {
	Amount   string   `json:"amount"`
	Currency Currency `json:"currency"`
}

// MarshalJSON implements json.Marshaler
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(moneyJSON{Amount: m.amount.String(), Currency: m.currency})
}

// UnmarshalJSON implements json.Unmarshaler, applying the same validation as NewMoney
func (m *Money) UnmarshalJSON(data []byte) error {
	var v moneyJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	parsed, err := NewMoneyFromString(v.Amount, v.Currency)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

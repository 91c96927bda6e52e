package valueobject

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/escrowhub/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMoney(t *testing.T) {
	t.Run("normalizes currency", func(t *testing.T) {
		m, err := NewMoney(decimal.NewFromInt(100), "brl")
		require.NoError(t, err)
		assert.Equal(t, BRL, m.Currency())
	})

	t.Run("rejects negative amounts", func(t *testing.T) {
		_, err := NewMoney(decimal.NewFromInt(-1), USD)
		assert.True(t, errors.Is(err, ErrInvalidAmount))
	})

	t.Run("rejects malformed currency", func(t *testing.T) {
		for _, code := range []Currency{"", "US", "US1", "DOLLAR"} {
			_, err := NewMoney(decimal.NewFromInt(1), code)
			assert.True(t, errors.Is(err, ErrInvalidCurrency), "code %q", code)
		}
	})

	t.Run("rejects unparsable strings", func(t *testing.T) {
		_, err := NewMoneyFromString("ten", BRL)
		assert.True(t, errors.Is(err, ErrInvalidAmount))
	})
}

func TestMoney_Arithmetic(t *testing.T) {
	a := MustMoney("600", BRL)
	b := MustMoney("400", BRL)

	sum, err := a.Add(b)
	require.NoError(t, err)
	assert.True(t, sum.Equals(MustMoney("1000", BRL)))

	diff, err := a.Subtract(b)
	require.NoError(t, err)
	assert.Equal(t, "200.00 BRL", diff.String())

	_, err = b.Subtract(a)
	assert.True(t, errors.Is(err, ErrInvalidAmount))

	floored, err := b.SubtractFloorZero(a)
	require.NoError(t, err)
	assert.True(t, floored.IsZero())
}

func TestMoney_CurrencyMismatch(t *testing.T) {
	brl := MustMoney("10", BRL)
	usd := MustMoney("10", USD)

	_, err := brl.Add(usd)
	assert.True(t, errors.Is(err, shared.ErrCurrencyMismatch))

	_, err = brl.GreaterThan(usd)
	assert.True(t, errors.Is(err, shared.ErrCurrencyMismatch))

	_, err = brl.Ratio(usd)
	assert.True(t, errors.Is(err, shared.ErrCurrencyMismatch))
	assert.False(t, brl.Equals(usd))
}

func TestMoney_Ratio(t *testing.T) {
	r, err := MustMoney("600", BRL).Ratio(MustMoney("1000", BRL))
	require.NoError(t, err)
	assert.True(t, r.Equal(decimal.RequireFromString("0.6")))

	r, err = MustMoney("5", BRL).Ratio(Zero(BRL))
	require.NoError(t, err)
	assert.True(t, r.IsZero())
}

func TestMoney_MinorUnits(t *testing.T) {
	assert.Equal(t, int64(123457), MustMoney("1234.565", USD).MinorUnits())
	assert.Equal(t, int64(100000), MustMoney("1000", BRL).MinorUnits())

	m, err := FromMinorUnits(1999, USD)
	require.NoError(t, err)
	assert.Equal(t, "19.99 USD", m.String())
}

func TestMoney_AllocateByPercentages(t *testing.T) {
	t.Run("splits 60/40", func(t *testing.T) {
		parts, err := MustMoney("1000", BRL).AllocateByPercentages([]Percentage{MustPercentage("60"), MustPercentage("40")})
		require.NoError(t, err)
		assert.Equal(t, "600.00 BRL", parts[0].String())
		assert.Equal(t, "400.00 BRL", parts[1].String())
	})

	t.Run("distributes leftover cents to leading shares", func(t *testing.T) {
		thirds := []Percentage{MustPercentage("33.34"), MustPercentage("33.33"), MustPercentage("33.33")}
		parts, err := MustMoney("100", USD).AllocateByPercentages(thirds)
		require.NoError(t, err)

		total := Zero(USD)
		for _, p := range parts {
			total, err = total.Add(p)
			require.NoError(t, err)
		}
		assert.True(t, total.Equals(MustMoney("100", USD)))
		assert.Equal(t, "33.34 USD", parts[0].String())
	})

	t.Run("rejects empty share list", func(t *testing.T) {
		_, err := MustMoney("1", USD).AllocateByPercentages(nil)
		assert.Error(t, err)
	})
}

func TestMoney_JSON(t *testing.T) {
	data, err := json.Marshal(MustMoney("250.5", BRL))
	require.NoError(t, err)
	assert.JSONEq(t, `{"amount":"250.5","currency":"BRL"}`, string(data))

	var m Money
	require.NoError(t, json.Unmarshal([]byte(`{"amount":"10.00","currency":"usd"}`), &m))
	assert.True(t, m.Equals(MustMoney("10", USD)))

	err = json.Unmarshal([]byte(`{"amount":"-3","currency":"USD"}`), &m)
	assert.True(t, errors.Is(err, ErrInvalidAmount))
}

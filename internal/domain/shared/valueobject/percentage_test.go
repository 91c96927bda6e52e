package valueobject

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPercentage(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{"zero", "0", false},
		{"hundred", "100", false},
		{"fraction", "33.333", false},
		{"negative", "-0.01", true},
		{"above hundred", "100.0001", true},
		{"garbage", "forty", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPercentageFromString(tt.value)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidPercentage))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestSumPercentages(t *testing.T) {
	total := SumPercentages(MustPercentage("40"), MustPercentage("40"), MustPercentage("20"))
	assert.True(t, total.Equal(decimal.NewFromInt(100)))

	over := SumPercentages(MustPercentage("70"), MustPercentage("40"))
	assert.True(t, over.GreaterThan(decimal.NewFromInt(100)))
}

func TestPercentage_JSON(t *testing.T) {
	var p Percentage
	require.NoError(t, json.Unmarshal([]byte(`60`), &p))
	assert.True(t, p.Equals(MustPercentage("60")))
	require.NoError(t, json.Unmarshal([]byte(`"12.5"`), &p))
	assert.Equal(t, "12.5%", p.String())
	assert.Error(t, json.Unmarshal([]byte(`101`), &p))
}

func TestIdempotencyKey(t *testing.T) {
	k, err := NewIdempotencyKey("  dep-001 ")
	require.NoError(t, err)
	assert.Equal(t, "dep-001", k.String())
	assert.True(t, k.Equals(MustIdempotencyKey("dep-001")))

	blank, err := NewIdempotencyKey("   ")
	require.NoError(t, err)
	assert.True(t, blank.IsZero())
	assert.False(t, blank.Equals(IdempotencyKey{}))

	_, err = NewIdempotencyKey(strings.Repeat("x", MaxIdempotencyKeyLength+1))
	assert.True(t, errors.Is(err, ErrInvalidIdempotencyKey))

	assert.Equal(t, "dep-001:party-1", k.Derive("party-1").String())
	assert.True(t, blank.Derive("x").IsZero())
}

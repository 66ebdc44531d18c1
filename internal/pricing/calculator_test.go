package pricing

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/papertrail/internal/shared"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestFlatUnitCostChallanTotal(t *testing.T) {
	calc := NewCalculator(d("10"))
	total := calc.Total([]Line{{Quantity: d("10"), PlasticQuantity: d("2")}}, FlatUnitCost)
	assert.True(t, total.Equal(d("100")), total.String())
}

func TestRateCarriedInvoiceTotal(t *testing.T) {
	calc := NewCalculator(d("10"))
	total := calc.Total([]Line{{
		Quantity:        d("5"),
		MaterialRate:    d("20"),
		PlasticQuantity: d("1"),
		PlasticRate:     d("5"),
	}}, RateCarried)
	assert.True(t, total.Equal(d("105")), total.String())
}

func TestTotalIsOrderIndependent(t *testing.T) {
	calc := NewCalculator(d("0.1"))
	lines := []Line{
		{Quantity: d("0.1"), MaterialRate: d("0.2"), PlasticQuantity: d("3"), PlasticRate: d("0.07")},
		{Quantity: d("1234.567"), MaterialRate: d("0.3"), PlasticQuantity: d("0"), PlasticRate: d("9")},
		{Quantity: d("7"), MaterialRate: d("19.99"), PlasticQuantity: d("0.33"), PlasticRate: d("1.01")},
		{Quantity: d("0.0001"), MaterialRate: d("100000"), PlasticQuantity: d("2"), PlasticRate: d("0.005")},
	}
	for _, mode := range []Mode{RateCarried, FlatUnitCost} {
		want := calc.Total(lines, mode)
		rng := rand.New(rand.NewSource(42))
		for i := 0; i < 50; i++ {
			shuffled := append([]Line(nil), lines...)
			rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
			got := calc.Total(shuffled, mode)
			require.True(t, want.Equal(got), "mode %s: %s != %s", mode, want, got)
		}
	}
}

func TestNoFloatingPointDrift(t *testing.T) {
	calc := NewCalculator(d("0.1"))
	lines := make([]Line, 10)
	for i := range lines {
		lines[i] = Line{Quantity: d("1")}
	}
	assert.Equal(t, "1", calc.Total(lines, FlatUnitCost).String())
	assert.Equal(t, "1.00", Present(calc.Total(lines, FlatUnitCost)))
}

func TestNegativeAndMissingContributeZero(t *testing.T) {
	calc := NewCalculator(d("10"))
	lines := []Line{
		{Quantity: d("-4"), MaterialRate: d("10")},
		{Quantity: d("2")},
		{PlasticQuantity: d("3"), PlasticRate: d("-1")},
	}
	assert.True(t, calc.Total(lines, RateCarried).IsZero())
	assert.True(t, calc.Total(lines, FlatUnitCost).Equal(d("20")))
	assert.True(t, calc.Total(nil, RateCarried).IsZero())
	assert.True(t, calc.Total(lines, Mode(99)).IsZero())
}

func TestValidateLines(t *testing.T) {
	require.NoError(t, ValidateLines([]Line{{Quantity: d("0")}, {Quantity: d("3"), PlasticRate: d("1")}}))

	err := ValidateLines([]Line{{Quantity: d("1")}, {Quantity: d("1"), PlasticRate: d("-0.5")}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrInvalidInput))

	var lineErr *LineError
	require.True(t, errors.As(err, &lineErr))
	assert.Equal(t, 1, lineErr.Index)
	assert.Equal(t, "plastic_rate", lineErr.Field)
	assert.Contains(t, err.Error(), "line 2")
}

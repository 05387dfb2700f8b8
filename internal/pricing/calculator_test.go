package pricing

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCalculator(t *testing.T) *Calculator {
	t.Helper()
	cat, err := NewMaterialCatalog(map[string]float64{
		"unspecified":   0,
		"print_only":    460,
		"cut_contour":   560,
		"uv_lamination": 800,
		"chromadeck":    2300,
		"poster":        400,
		"iron_on":       970,
	})
	require.NoError(t, err)
	layout, err := NewLayout(650, 1, 0.20)
	require.NoError(t, err)
	return NewCalculator(cat, layout)
}

func mm(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func TestCalculate_KnownMaterials(t *testing.T) {
	calc := testCalculator(t)

	tests := []struct {
		material string
		price    string
		rowCost  string
	}{
		{"print_only", "4.98", "29.9"},
		{"cut_contour", "6.07", "36.4"},
		{"poster", "4.33", "26"},
	}
	for _, tc := range tests {
		t.Run(tc.material, func(t *testing.T) {
			res := calc.Calculate(mm(100), mm(100), tc.material)

			assert.True(t, res.Valid())
			assert.Equal(t, tc.price, res.Price())
			spr, ok := res.StickersPerRow()
			assert.True(t, ok)
			assert.Equal(t, 6, spr)

			q, ok := res.Quote()
			require.True(t, ok)
			assert.True(t, q.RowCost.Equal(decimal.RequireFromString(tc.rowCost)), "row cost %s", q.RowCost)
		})
	}
}

func TestCalculate_InvalidInputs(t *testing.T) {
	calc := testCalculator(t)

	tests := []struct {
		name     string
		width    decimal.Decimal
		height   decimal.Decimal
		material string
		reason   Reason
	}{
		{"zero width", mm(0), mm(100), "print_only", ReasonWidth},
		{"negative width", mm(-5), mm(100), "print_only", ReasonWidth},
		{"zero height", mm(100), mm(0), "print_only", ReasonHeight},
		{"negative height", mm(100), mm(-50), "print_only", ReasonHeight},
		{"unspecified material", mm(100), mm(100), "unspecified", ReasonMaterial},
		{"unknown material", mm(100), mm(100), "gold_leaf", ReasonMaterial},
		{"width checked before height", mm(0), mm(0), "unspecified", ReasonWidth},
		{"height checked before material", mm(10), mm(-1), "unspecified", ReasonHeight},
		{"wider than roll", mm(650), mm(100), "print_only", ReasonExceedsRoll},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := calc.Calculate(tc.width, tc.height, tc.material)

			assert.False(t, res.Valid())
			assert.Equal(t, InvalidMarker, res.Price())
			assert.Equal(t, tc.reason, res.Reason())
			_, ok := res.StickersPerRow()
			assert.False(t, ok)
			_, ok = res.Quote()
			assert.False(t, ok)
		})
	}
}

func TestCalculate_WidestStickerThatFits(t *testing.T) {
	calc := testCalculator(t)

	res := calc.Calculate(mm(649), mm(100), "print_only")
	spr, ok := res.StickersPerRow()
	require.True(t, ok)
	assert.Equal(t, 1, spr)
	assert.Equal(t, "29.90", res.Price())
}

func TestCalculate_IsIdempotent(t *testing.T) {
	calc := testCalculator(t)

	first := calc.Calculate(mm(73), mm(41), "chromadeck")
	for i := 0; i < 50; i++ {
		again := calc.Calculate(mm(73), mm(41), "chromadeck")
		assert.Equal(t, first.Price(), again.Price())
		assert.Equal(t, first.Reason(), again.Reason())
	}
}

func TestCalculate_RowCapacityNeverGrowsWithWidth(t *testing.T) {
	calc := testCalculator(t)

	prev := 1 << 30
	for w := int64(1); w < 650; w++ {
		spr, ok := calc.Calculate(mm(w), mm(50), "poster").StickersPerRow()
		require.True(t, ok, "width %d", w)
		assert.LessOrEqual(t, spr, prev, "width %d", w)
		prev = spr
	}
}

func TestCalculate_FlagsPricesUnderMinimumWithoutChangingThem(t *testing.T) {
	calc := testCalculator(t)

	// 10x10: 650/11 = 59 per row, row = 0.65*0.01*400 = 2.6, 2.6/59 = 0.044
	res := calc.Calculate(mm(10), mm(10), "poster")
	q, ok := res.Quote()
	require.True(t, ok)
	assert.True(t, q.BelowMinimum)
	assert.Equal(t, "0.04", res.Price())

	q, ok = calc.Calculate(mm(100), mm(100), "poster").Quote()
	require.True(t, ok)
	assert.False(t, q.BelowMinimum)
}

func TestCalculate_RoundsHalfUp(t *testing.T) {
	cat, err := NewMaterialCatalog(map[string]float64{"vinyl": 100})
	require.NoError(t, err)
	layout, err := NewLayout(1000, 0, 0)
	require.NoError(t, err)
	calc := NewCalculator(cat, layout)

	// 12.5 per row, one sticker
	assert.Equal(t, "12.50", calc.Calculate(mm(1000), mm(125), "vinyl").Price())
	// 12.5 / 8 = 1.5625
	assert.Equal(t, "1.56", calc.Calculate(mm(125), mm(125), "vinyl").Price())
	// 0.5 / 8 = 0.0625
	assert.Equal(t, "0.06", calc.Calculate(mm(125), mm(5), "vinyl").Price())
	// 1.5 / 8 = 0.1875
	assert.Equal(t, "0.19", calc.Calculate(mm(125), mm(15), "vinyl").Price())
	// 2.5 / 4 = 0.625, exact half goes up
	assert.Equal(t, "0.63", calc.Calculate(mm(250), mm(25), "vinyl").Price())
}

func TestCalculateRaw_CoercesFormValues(t *testing.T) {
	calc := testCalculator(t)

	assert.Equal(t, "4.98", calc.CalculateRaw("100", " 100 ", "print_only").Price())
	assert.Equal(t, "4.98", calc.CalculateRaw("100.0", "1e2", "print_only").Price())
	assert.Equal(t, InvalidMarker, calc.CalculateRaw("", "100", "print_only").Price())
	assert.Equal(t, InvalidMarker, calc.CalculateRaw("abc", "100", "print_only").Price())
	assert.Equal(t, ReasonHeight, calc.CalculateRaw("100", "NaN", "print_only").Reason())
}

func TestCalculateRaw_OutOfRangeValuesAreInvalid(t *testing.T) {
	calc := testCalculator(t)

	for _, tc := range []struct {
		width, height string
		reason        Reason
	}{
		{"100", "1e5000000", ReasonHeight},
		{"100", "1e-5000000", ReasonHeight},
		{"1e5000000", "100", ReasonWidth},
		{"1e-30", "100", ReasonWidth},
	} {
		res := calc.CalculateRaw(tc.width, tc.height, "print_only")
		assert.Equal(t, InvalidMarker, res.Price())
		assert.Equal(t, tc.reason, res.Reason())
	}
}

func TestCalculate_TinyWidthWithoutBleed(t *testing.T) {
	cat, err := NewMaterialCatalog(map[string]float64{"print_only": 460})
	require.NoError(t, err)
	layout, err := NewLayout(650, 0, 0.20)
	require.NoError(t, err)
	calc := NewCalculator(cat, layout)

	res := calc.Calculate(decimal.New(1, -30), mm(100), "print_only")
	assert.Equal(t, InvalidMarker, res.Price())
	assert.Equal(t, ReasonWidth, res.Reason())

	res = calc.Calculate(decimal.New(1, -3), mm(100), "print_only")
	spr, ok := res.StickersPerRow()
	require.True(t, ok)
	assert.Equal(t, 650000, spr)
}

func TestResult_MarshalJSON(t *testing.T) {
	calc := testCalculator(t)

	raw, err := json.Marshal(calc.Calculate(mm(100), mm(100), "print_only"))
	require.NoError(t, err)
	var valid map[string]any
	require.NoError(t, json.Unmarshal(raw, &valid))
	assert.Equal(t, "4.98", valid["price"])
	assert.EqualValues(t, 6, valid["stickers_per_row"])
	assert.NotContains(t, valid, "reason")

	raw, err = json.Marshal(calc.Calculate(mm(0), mm(100), "print_only"))
	require.NoError(t, err)
	var bad map[string]any
	require.NoError(t, json.Unmarshal(raw, &bad))
	assert.Equal(t, InvalidMarker, bad["price"])
	assert.Equal(t, "width_not_positive", bad["reason"])
	assert.NotContains(t, bad, "stickers_per_row")
}

func TestCalculate_ConcurrentCallsAgree(t *testing.T) {
	calc := testCalculator(t)

	var wg sync.WaitGroup
	prices := make([]string, 64)
	for i := range prices {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			prices[i] = calc.Calculate(mm(100), mm(100), "cut_contour").Price()
		}(i)
	}
	wg.Wait()

	for _, p := range prices {
		assert.Equal(t, "6.07", p)
	}
}

func TestNewLayout_RejectsBadConstants(t *testing.T) {
	_, err := NewLayout(0, 1, 0.2)
	assert.Error(t, err)
	_, err = NewLayout(650, -1, 0.2)
	assert.Error(t, err)
	_, err = NewLayout(650, 1, -0.2)
	assert.Error(t, err)
}

func TestReason_String(t *testing.T) {
	assert.Equal(t, "", ReasonNone.String())
	assert.Equal(t, "wider_than_roll", ReasonExceedsRoll.String())
	assert.Equal(t, "reason(42)", Reason(42).String())
}

package nutrition

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wsx4588588/canlog-frontend/internal/models"
)

func f(v float64) *float64 { return &v }

func reading(v float64) *models.NutritionValue {
	unit := "%"
	return &models.NutritionValue{Value: &v, Unit: &unit}
}

func TestMgPer100kcal(t *testing.T) {
	got := MgPer100kcal(f(1.2), f(85))
	require.NotNil(t, got)
	assert.InDelta(t, 1411.76, *got, 0.01)

	for p := 0.0; p <= 100; p += 12.5 {
		for _, c := range []float64{0.5, 85, 120, 400} {
			got := MgPer100kcal(f(p), f(c))
			require.NotNil(t, got)
			assert.Equal(t, p*100000/c, *got)
		}
	}
}

func TestMgPer100kcal_Absent(t *testing.T) {
	assert.Nil(t, MgPer100kcal(nil, f(85)))
	assert.Nil(t, MgPer100kcal(f(1.2), nil))
	assert.Nil(t, MgPer100kcal(f(1.2), f(0)))
	assert.Nil(t, MgPer100kcal(nil, nil))
}

func TestMgPer100kcal_NeverNonFinite(t *testing.T) {
	assert.Nil(t, MgPer100kcal(f(math.NaN()), f(85)))
	assert.Nil(t, MgPer100kcal(f(math.MaxFloat64), f(1e-300)))

	got := MgPer100kcal(f(0), f(-85))
	require.NotNil(t, got)
	assert.False(t, math.Signbit(*got), "negative zero leaked")
}

func TestCalciumPhosphorusRatio(t *testing.T) {
	got := CalciumPhosphorusRatio(f(1.0), f(3.0))
	require.NotNil(t, got)
	assert.Equal(t, 1.0/3.0, *got)

	assert.Nil(t, CalciumPhosphorusRatio(f(1.0), nil))
	assert.Nil(t, CalciumPhosphorusRatio(f(1.0), f(0)))
	assert.Nil(t, CalciumPhosphorusRatio(nil, f(1.0)))
}

func TestDryMatterBasis(t *testing.T) {
	got := DryMatterBasis(f(45), f(10))
	require.NotNil(t, got)
	assert.Equal(t, 50.0, *got)

	got = DryMatterBasis(f(8), f(78))
	require.NotNil(t, got)
	assert.Equal(t, 8*100/(100-78.0), *got)

	assert.Nil(t, DryMatterBasis(f(45), nil))
	assert.Nil(t, DryMatterBasis(f(45), f(100)))
	assert.Nil(t, DryMatterBasis(f(45), f(120)))
	assert.Nil(t, DryMatterBasis(nil, f(10)))
}

func TestNormalize(t *testing.T) {
	n := &models.Nutrition{
		Protein:    reading(45),
		Fat:        reading(5),
		Moisture:   reading(10),
		Calories:   reading(90),
		Phosphorus: reading(1.2),
		Calcium:    reading(1.5),
		Sodium:     &models.NutritionValue{},
	}

	m := Normalize(n)

	require.NotNil(t, m.DryMatter.Protein)
	assert.Equal(t, 50.0, *m.DryMatter.Protein)
	require.NotNil(t, m.PhosphorusPer100kcal)
	assert.InDelta(t, 1333.33, *m.PhosphorusPer100kcal, 0.01)
	require.NotNil(t, m.CalciumPhosphorusRatio)
	assert.Equal(t, 1.5/1.2, *m.CalciumPhosphorusRatio)

	// fields without a reading stay absent rather than zero
	assert.Nil(t, m.SodiumPer100kcal)
	assert.Nil(t, m.MagnesiumPer100kcal)
	assert.Nil(t, m.DryMatter.Fiber)
	assert.Nil(t, m.DryMatter.Ash)
}

func TestNormalize_NilProfile(t *testing.T) {
	assert.Equal(t, models.NormalizedMetrics{}, Normalize(nil))
}

func TestNormalize_NoCalories(t *testing.T) {
	m := Normalize(&models.Nutrition{Phosphorus: reading(1.2), Calcium: reading(1.4)})

	assert.Nil(t, m.PhosphorusPer100kcal)
	assert.Nil(t, m.CalciumPer100kcal)
	require.NotNil(t, m.CalciumPhosphorusRatio)
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "-", FormatPercent(nil))
	assert.Equal(t, "12.35%", FormatPercent(f(12.346)))
	assert.Equal(t, "1411.8 mg", FormatMg(MgPer100kcal(f(1.2), f(85))))
	assert.Equal(t, "-", FormatMg(nil))
	assert.Equal(t, "1.25", FormatRatio(f(1.25)))
	assert.Equal(t, "-", FormatRatio(nil))
}

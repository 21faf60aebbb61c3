// Package nutrition converts as-fed label values into comparable metrics:
// mineral density per 100 kcal, dry-matter percentages and the Ca:P ratio.
//
// Every function is absent-safe. A nil input, a zero denominator or a
// non-finite intermediate yields nil rather than an error, so a partially
// legible label degrades field by field.
package nutrition

import (
	"math"

	"github.com/wsx4588588/canlog-frontend/internal/models"
)

// MgPer100kcal converts a mineral's mass percentage into mg per 100 kcal.
//
// p% means p g per 100 g of product, i.e. p*1000 mg per 100 g. Scaling to
// 100 kcal multiplies by 100/kcal, giving p*100000/kcal.
func MgPer100kcal(percentage, caloriesPer100g *float64) *float64 {
	if percentage == nil || caloriesPer100g == nil || *caloriesPer100g == 0 {
		return nil
	}
	return finite(*percentage * 100000 / *caloriesPer100g)
}

// CalciumPhosphorusRatio returns calcium/phosphorus at full precision.
func CalciumPhosphorusRatio(calcium, phosphorus *float64) *float64 {
	if calcium == nil || phosphorus == nil || *phosphorus == 0 {
		return nil
	}
	return finite(*calcium / *phosphorus)
}

// DryMatterBasis recalculates an as-fed percentage without moisture.
// Moisture at or above 100% leaves no dry matter and yields nil.
func DryMatterBasis(asFed, moisture *float64) *float64 {
	if asFed == nil || moisture == nil || *moisture >= 100 {
		return nil
	}
	return finite(*asFed * 100 / (100 - *moisture))
}

// Normalize derives all metrics from a raw label profile.
func Normalize(n *models.Nutrition) models.NormalizedMetrics {
	if n == nil {
		return models.NormalizedMetrics{}
	}

	kcal := n.Calories.Amount()
	moisture := n.Moisture.Amount()
	phosphorus := n.Phosphorus.Amount()
	calcium := n.Calcium.Amount()

	return models.NormalizedMetrics{
		PhosphorusPer100kcal:   MgPer100kcal(phosphorus, kcal),
		CalciumPer100kcal:      MgPer100kcal(calcium, kcal),
		SodiumPer100kcal:       MgPer100kcal(n.Sodium.Amount(), kcal),
		MagnesiumPer100kcal:    MgPer100kcal(n.Magnesium.Amount(), kcal),
		PotassiumPer100kcal:    MgPer100kcal(n.Potassium.Amount(), kcal),
		CalciumPhosphorusRatio: CalciumPhosphorusRatio(calcium, phosphorus),
		DryMatter: models.DryMatter{
			Protein: DryMatterBasis(n.Protein.Amount(), moisture),
			Fat:     DryMatterBasis(n.Fat.Amount(), moisture),
			Fiber:   DryMatterBasis(n.Fiber.Amount(), moisture),
			Ash:     DryMatterBasis(n.Ash.Amount(), moisture),
		},
	}
}

// finite drops NaN and ±Inf and folds -0 into 0.
func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	if v == 0 {
		v = 0
	}
	return &v
}

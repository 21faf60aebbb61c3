package nutrition

import "fmt"

// Placeholder shown for a missing value
const Missing = "-"

// FormatPercent renders a percentage with two decimals ("12.34%").
func FormatPercent(v *float64) string {
	if v == nil {
		return Missing
	}
	return fmt.Sprintf("%.2f%%", *v)
}

// FormatMg renders a mineral density ("1411.8 mg").
func FormatMg(v *float64) string {
	if v == nil {
		return Missing
	}
	return fmt.Sprintf("%.1f mg", *v)
}

// FormatRatio renders a ratio with two decimals. Only the text is rounded.
func FormatRatio(v *float64) string {
	if v == nil {
		return Missing
	}
	return fmt.Sprintf("%.2f", *v)
}

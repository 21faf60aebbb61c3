package models

import (
	"time"
)

// NutritionValue is a single nutrient reading as reported by the analysis
// service. Either field may be missing when the label omitted it or the
// extraction failed.
type NutritionValue struct {
	Value *float64 `json:"value"`
	Unit  *string  `json:"unit"`
}

// Amount returns the reading's value, or nil when the reading itself is absent.
func (v *NutritionValue) Amount() *float64 {
	if v == nil {
		return nil
	}
	return v.Value
}

// Nutrition is the as-fed label profile (percentage of product, calories per 100g)
type Nutrition struct {
	Protein    *NutritionValue `json:"protein,omitempty"`
	Fat        *NutritionValue `json:"fat,omitempty"`
	Fiber      *NutritionValue `json:"fiber,omitempty"`
	Ash        *NutritionValue `json:"ash,omitempty"`
	Moisture   *NutritionValue `json:"moisture,omitempty"`
	Calories   *NutritionValue `json:"calories,omitempty"`
	Phosphorus *NutritionValue `json:"phosphorus,omitempty"`
	Calcium    *NutritionValue `json:"calcium,omitempty"`
	Sodium     *NutritionValue `json:"sodium,omitempty"`
	Magnesium  *NutritionValue `json:"magnesium,omitempty"`
	Potassium  *NutritionValue `json:"potassium,omitempty"`
}

// DryMatter holds nutrient percentages recalculated without moisture
type DryMatter struct {
	Protein *float64 `json:"protein"`
	Fat     *float64 `json:"fat"`
	Fiber   *float64 `json:"fiber"`
	Ash     *float64 `json:"ash"`
}

// NormalizedMetrics are the comparable values derived from a Nutrition
// profile. A nil field means the inputs needed for it were missing.
type NormalizedMetrics struct {
	PhosphorusPer100kcal   *float64  `json:"phosphorusPer100kcal"`
	CalciumPer100kcal      *float64  `json:"calciumPer100kcal"`
	SodiumPer100kcal       *float64  `json:"sodiumPer100kcal"`
	MagnesiumPer100kcal    *float64  `json:"magnesiumPer100kcal"`
	PotassiumPer100kcal    *float64  `json:"potassiumPer100kcal"`
	CalciumPhosphorusRatio *float64  `json:"calciumPhosphorusRatio"`
	DryMatter              DryMatter `json:"dryMatter"`
}

// Nutrition formats reported by the analysis service
const (
	FormatPer100g    = "per_100g"
	FormatPercentage = "percentage"
)

// CannedFood is a read-only copy of a record owned by the backend
type CannedFood struct {
	ID          int64  `json:"id"`
	BrandName   string `json:"brandName"`
	ProductName string `json:"productName"`
	ImageURL    string `json:"imageUrl,omitempty"`

	// As-fed summary (percentages, kcal per 100g)
	Calories *float64 `json:"calories"`
	Protein  *float64 `json:"protein"`
	Fat      *float64 `json:"fat"`
	Moisture *float64 `json:"moisture"`
	Fiber    *float64 `json:"fiber"`
	Ash      *float64 `json:"ash"`

	NormalizedMetrics

	Nutrition       *Nutrition `json:"nutrition,omitempty"`
	NutritionFormat string     `json:"nutritionFormat,omitempty"`
	RawText         string     `json:"rawText,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// PageMeta describes where a page sits in the full result set
type PageMeta struct {
	Total      int `json:"total"`
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalPages int `json:"totalPages"`
}

// Page is one page of canned foods
type Page struct {
	Items []CannedFood `json:"items"`
	Meta  PageMeta     `json:"meta"`
}

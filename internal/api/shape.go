package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/wsx4588588/canlog-frontend/internal/models"
	"github.com/wsx4588588/canlog-frontend/internal/nutrition"
)

// The backend has answered with two layouts over time. Lists carry their
// pagination either in a "meta" object or as top-level fields; records
// carry either flat precomputed metrics or only a nested "nutrition" object
// of {value, unit} readings. The flat record is canonical.

type listShape int

const (
	listMeta listShape = iota
	listFlat
)

type recordShape int

const (
	recordFlat recordShape = iota
	recordNested
)

// Top-level keys whose presence marks a record as carrying flat metrics.
var flatRecordKeys = []string{
	"calories", "protein", "fat", "moisture", "fiber", "ash",
	"phosphorusPer100kcal", "calciumPer100kcal", "calciumPhosphorusRatio",
}

var errNotObject = errors.New("expected a JSON object")

func detectListShape(fields map[string]json.RawMessage) listShape {
	if isObject(fields["meta"]) {
		return listMeta
	}
	return listFlat
}

func detectRecordShape(fields map[string]json.RawMessage) recordShape {
	for _, key := range flatRecordKeys {
		if present(fields[key]) {
			return recordFlat
		}
	}
	if isObject(fields["nutrition"]) {
		return recordNested
	}
	return recordFlat
}

// decodePage reshapes a list payload of either layout into a Page.
func decodePage(body []byte) (*models.Page, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		return nil, errNotObject
	}

	itemsRaw := fields["items"]
	if !present(itemsRaw) {
		itemsRaw = fields["data"]
	}
	var rawItems []json.RawMessage
	if present(itemsRaw) {
		if err := json.Unmarshal(itemsRaw, &rawItems); err != nil {
			return nil, fmt.Errorf("items: %w", err)
		}
	}

	page := &models.Page{Items: make([]models.CannedFood, 0, len(rawItems))}
	for i, raw := range rawItems {
		food, err := decodeRecord(raw)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		page.Items = append(page.Items, *food)
	}

	metaFields := fields
	if detectListShape(fields) == listMeta {
		if err := json.Unmarshal(fields["meta"], &metaFields); err != nil {
			return nil, fmt.Errorf("meta: %w", err)
		}
	}
	page.Meta = models.PageMeta{
		Total:      intField(metaFields["total"]),
		Page:       intField(metaFields["page"]),
		Limit:      intField(metaFields["limit"]),
		TotalPages: intField(metaFields["totalPages"]),
	}
	if page.Meta.TotalPages == 0 && page.Meta.Limit > 0 && page.Meta.Total > 0 {
		page.Meta.TotalPages = (page.Meta.Total + page.Meta.Limit - 1) / page.Meta.Limit
	}
	return page, nil
}

// decodeRecord reshapes a single record of either layout into a CannedFood.
func decodeRecord(body []byte) (*models.CannedFood, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		return nil, errNotObject
	}

	food := &models.CannedFood{
		ID:              int64(intField(fields["id"])),
		BrandName:       stringField(fields["brandName"]),
		ProductName:     stringField(fields["productName"]),
		ImageURL:        stringField(fields["imageUrl"]),
		NutritionFormat: stringField(fields["nutritionFormat"]),
		RawText:         stringField(fields["rawText"]),
		CreatedAt:       timeField(fields["createdAt"]),
		UpdatedAt:       timeField(fields["updatedAt"]),
		Nutrition:       nutritionField(fields["nutrition"]),
	}
	if food.RawText == "" {
		food.RawText = stringField(fields["rawAnalysis"])
	}

	switch detectRecordShape(fields) {
	case recordNested:
		adaptNested(food)
	default:
		adaptFlat(food, fields)
	}
	return food, nil
}

// adaptFlat copies the precomputed metrics. Metrics missing from the
// payload are derived locally, from the flat as-fed fields for dry matter
// and from the nested readings for everything else.
func adaptFlat(food *models.CannedFood, fields map[string]json.RawMessage) {
	food.Calories = number(fields["calories"])
	food.Protein = number(fields["protein"])
	food.Fat = number(fields["fat"])
	food.Moisture = number(fields["moisture"])
	food.Fiber = number(fields["fiber"])
	food.Ash = number(fields["ash"])

	computed := nutrition.Normalize(food.Nutrition)
	food.PhosphorusPer100kcal = orElse(number(fields["phosphorusPer100kcal"]), computed.PhosphorusPer100kcal)
	food.CalciumPer100kcal = orElse(number(fields["calciumPer100kcal"]), computed.CalciumPer100kcal)
	food.SodiumPer100kcal = orElse(number(fields["sodiumPer100kcal"]), computed.SodiumPer100kcal)
	food.MagnesiumPer100kcal = orElse(number(fields["magnesiumPer100kcal"]), computed.MagnesiumPer100kcal)
	food.PotassiumPer100kcal = orElse(number(fields["potassiumPer100kcal"]), computed.PotassiumPer100kcal)
	food.CalciumPhosphorusRatio = orElse(number(fields["calciumPhosphorusRatio"]), computed.CalciumPhosphorusRatio)

	var dm map[string]json.RawMessage
	for _, key := range []string{"dryMatter", "dryMatterRatios"} {
		if isObject(fields[key]) && json.Unmarshal(fields[key], &dm) == nil {
			break
		}
	}
	food.DryMatter = models.DryMatter{
		Protein: orElse(number(dm["protein"]), nutrition.DryMatterBasis(food.Protein, food.Moisture), computed.DryMatter.Protein),
		Fat:     orElse(number(dm["fat"]), nutrition.DryMatterBasis(food.Fat, food.Moisture), computed.DryMatter.Fat),
		Fiber:   orElse(number(dm["fiber"]), nutrition.DryMatterBasis(food.Fiber, food.Moisture), computed.DryMatter.Fiber),
		Ash:     orElse(number(dm["ash"]), nutrition.DryMatterBasis(food.Ash, food.Moisture), computed.DryMatter.Ash),
	}
}

// adaptNested lifts the nested readings into the flat fields and computes
// the metrics locally.
func adaptNested(food *models.CannedFood) {
	n := food.Nutrition
	food.Calories = n.Calories.Amount()
	food.Protein = n.Protein.Amount()
	food.Fat = n.Fat.Amount()
	food.Moisture = n.Moisture.Amount()
	food.Fiber = n.Fiber.Amount()
	food.Ash = n.Ash.Amount()
	food.NormalizedMetrics = nutrition.Normalize(n)
}

// unwrapData returns the "data" member of a {success, data} envelope, or
// body itself when there is no envelope.
func unwrapData(body []byte) []byte {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return body
	}
	if _, hasID := envelope["id"]; hasID {
		return body
	}
	if data := envelope["data"]; isObject(data) {
		return data
	}
	return body
}

func nutritionField(raw json.RawMessage) *models.Nutrition {
	if !isObject(raw) {
		return nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil
	}
	return &models.Nutrition{
		Protein:    readingField(fields["protein"]),
		Fat:        readingField(fields["fat"]),
		Fiber:      readingField(fields["fiber"]),
		Ash:        readingField(fields["ash"]),
		Moisture:   readingField(fields["moisture"]),
		Calories:   readingField(fields["calories"]),
		Phosphorus: readingField(fields["phosphorus"]),
		Calcium:    readingField(fields["calcium"]),
		Sodium:     readingField(fields["sodium"]),
		Magnesium:  readingField(fields["magnesium"]),
		Potassium:  readingField(fields["potassium"]),
	}
}

// readingField accepts {value, unit} or a bare number.
func readingField(raw json.RawMessage) *models.NutritionValue {
	if !present(raw) {
		return nil
	}
	if !isObject(raw) {
		if v := number(raw); v != nil {
			return &models.NutritionValue{Value: v}
		}
		return nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil
	}
	reading := &models.NutritionValue{Value: number(fields["value"])}
	if unit := stringField(fields["unit"]); unit != "" {
		reading.Unit = &unit
	}
	return reading
}

// number reads a finite number, also accepting numeric strings. Anything
// else is treated as absent.
func number(raw json.RawMessage) *float64 {
	if !present(raw) {
		return nil
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil
		}
		v, err = strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil
		}
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	if v == 0 {
		v = 0 // folds -0
	}
	return &v
}

func intField(raw json.RawMessage) int {
	v := number(raw)
	if v == nil {
		return 0
	}
	return int(*v)
}

func stringField(raw json.RawMessage) string {
	if !present(raw) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

func timeField(raw json.RawMessage) time.Time {
	s := stringField(raw)
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func present(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}

func isObject(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return strings.HasPrefix(s, "{")
}

// orElse returns the first non-nil value.
func orElse(values ...*float64) *float64 {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}

package api

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fieldsOf(t *testing.T, body string) map[string]json.RawMessage {
	t.Helper()
	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(body), &fields))
	return fields
}

func TestDetectRecordShape(t *testing.T) {
	assert.Equal(t, recordFlat, detectRecordShape(fieldsOf(t, `{"id":1,"protein":3,"nutrition":{}}`)))
	assert.Equal(t, recordNested, detectRecordShape(fieldsOf(t, `{"id":1,"nutrition":{"protein":{"value":3}}}`)))
	assert.Equal(t, recordFlat, detectRecordShape(fieldsOf(t, `{"id":1,"protein":null,"nutrition":null}`)))
}

func TestDetectListShape(t *testing.T) {
	assert.Equal(t, listMeta, detectListShape(fieldsOf(t, `{"items":[],"meta":{"total":1}}`)))
	assert.Equal(t, listFlat, detectListShape(fieldsOf(t, `{"items":[],"total":1}`)))
}

func TestDecodeRecord_FlatBackfillsFromNutrition(t *testing.T) {
	food, err := decodeRecord([]byte(`{
		"id": 5, "calories": 100, "protein": 9, "moisture": 80,
		"phosphorusPer100kcal": 200,
		"nutrition": {"calories": {"value": 100}, "calcium": {"value": 0.3}, "phosphorus": {"value": 0.2}},
		"dryMatterRatios": {"protein": 44}
	}`))
	require.NoError(t, err)

	require.NotNil(t, food.PhosphorusPer100kcal)
	assert.Equal(t, 200.0, *food.PhosphorusPer100kcal, "payload value wins")
	require.NotNil(t, food.CalciumPer100kcal)
	assert.InDelta(t, 300.0, *food.CalciumPer100kcal, 1e-9)
	require.NotNil(t, food.DryMatter.Protein)
	assert.Equal(t, 44.0, *food.DryMatter.Protein)
	assert.Nil(t, food.DryMatter.Fat)
}

func TestDecodeRecord_NotAnObject(t *testing.T) {
	_, err := decodeRecord([]byte(`null`))
	assert.Error(t, err)

	_, err = decodeRecord([]byte(`[1,2]`))
	assert.Error(t, err)
}

func TestUnwrapData(t *testing.T) {
	assert.JSONEq(t, `{"id":1}`, string(unwrapData([]byte(`{"success":true,"data":{"id":1}}`))))
	assert.JSONEq(t, `{"id":1,"data":{"x":2}}`, string(unwrapData([]byte(`{"id":1,"data":{"x":2}}`))))
	assert.Equal(t, `[1]`, string(unwrapData([]byte(`[1]`))))
}

func TestNumber(t *testing.T) {
	assert.Nil(t, number(nil))
	assert.Nil(t, number(json.RawMessage(`null`)))
	assert.Nil(t, number(json.RawMessage(`"abc"`)))
	assert.Nil(t, number(json.RawMessage(`{}`)))
	assert.Nil(t, number(json.RawMessage(`"NaN"`)))

	v := number(json.RawMessage(`" 1.5 "`))
	require.NotNil(t, v)
	assert.Equal(t, 1.5, *v)

	v = number(json.RawMessage(`2e3`))
	require.NotNil(t, v)
	assert.False(t, math.IsInf(*v, 0))
	assert.Equal(t, 2000.0, *v)
}

func TestDecodeRecord_NegativeZeroMetric(t *testing.T) {
	food, err := decodeRecord([]byte(`{"id": 6, "calories": 100, "phosphorusPer100kcal": -0, "calciumPhosphorusRatio": "-0"}`))
	require.NoError(t, err)

	require.NotNil(t, food.PhosphorusPer100kcal)
	assert.Equal(t, 0.0, *food.PhosphorusPer100kcal)
	assert.False(t, math.Signbit(*food.PhosphorusPer100kcal))
	require.NotNil(t, food.CalciumPhosphorusRatio)
	assert.False(t, math.Signbit(*food.CalciumPhosphorusRatio))
}

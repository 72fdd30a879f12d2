package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalBasic(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"null", nil, "null"},
		{"string", "hello", `"hello"`},
		{"empty string", "", `""`},
		{"int", 42, "42"},
		{"negative int", -100, "-100"},
		{"int64", int64(9223372036854775807), "9223372036854775807"},
		{"bool true", true, "true"},
		{"bool false", false, "false"},
		{"number", json.Number("3.25"), "3.25"},
		{"integral float", 7.0, "7"},
		{"fractional float", 0.5, "0.5"},
		{"empty array", []any{}, "[]"},
		{"empty object", map[string]any{}, "{}"},
		{"array", []any{1, "two", true}, `[1,"two",true]`},
		{"simple object", map[string]any{"a": 1}, `{"a":1}`},
		{"entity", Entity{"id": "e1"}, `{"id":"e1"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalCanonicalSortedKeys(t *testing.T) {
	obj := map[string]any{
		"zebra": 1,
		"alpha": 2,
		"beta":  3,
	}

	result, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":2,"beta":3,"zebra":1}`, string(result))
}

func TestMarshalCanonicalNestedDeterminism(t *testing.T) {
	obj := map[string]any{
		"b": map[string]any{"y": []any{1, 2}, "x": "v"},
		"a": []any{map[string]any{"k2": 1, "k1": 2}},
	}

	first, err := MarshalCanonical(obj)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := MarshalCanonical(obj)
		require.NoError(t, err)
		assert.Equal(t, string(first), string(again))
	}
	assert.Equal(t, `{"a":[{"k1":2,"k2":1}],"b":{"x":"v","y":[1,2]}}`, string(first))
}

func TestMarshalCanonicalNoHTMLEscaping(t *testing.T) {
	result, err := MarshalCanonical("<a> & <b>")
	require.NoError(t, err)
	assert.Equal(t, `"<a> & <b>"`, string(result))
}

func TestMarshalCanonicalNFCNormalization(t *testing.T) {
	// "é" as e + combining acute accent normalizes to the precomposed form.
	decomposed := "é"
	precomposed := "é"

	a, err := MarshalCanonical(decomposed)
	require.NoError(t, err)
	b, err := MarshalCanonical(precomposed)
	require.NoError(t, err)
	assert.Equal(t, string(b), string(a))
}

func TestMarshalCanonicalRejectsUnsupportedTypes(t *testing.T) {
	_, err := MarshalCanonical(struct{ X int }{1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported type")

	_, err = MarshalCanonical(map[string]any{"ch": make(chan int)})
	require.Error(t, err)
}

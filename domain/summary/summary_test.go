package summary

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInfer(t *testing.T) {
	tests := []struct {
		name string
		raw  any
		want Kind
	}{
		{"string is fragment", `{"type":"string"}`, KindJSONSchema},
		{"array is set", []any{"a"}, KindSet},
		{"empty array is set", []any{}, KindSet},
		{"object with minimum is range", map[string]any{"minimum": 1.0, "maximum": 2.0}, KindRange},
		{"other object is fragment", map[string]any{"type": "number"}, KindJSONSchema},
		{"number is fragment", 3.0, KindJSONSchema},
		{"null is fragment", nil, KindJSONSchema},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Infer(tc.raw))
		})
	}
}

func TestFromRawRoundTrip(t *testing.T) {
	values := map[string]Value{
		"range":    Range(0, 10.5),
		"set":      Set("a", "b"),
		"emptySet": Set(),
		"object":   Fragment(map[string]any{"type": "string"}),
		"text":     Fragment(`{"type":"string"}`),
	}
	for name, v := range values {
		assert.Equal(t, v, FromRaw(v.ToRaw()), name)
	}
}

func TestFromRawKeepsLossyShapesAsFragments(t *testing.T) {
	mixed := []any{"a", 1.0}
	assert.Equal(t, KindJSONSchema, FromRaw(mixed).Kind)
	assert.Equal(t, mixed, FromRaw(mixed).ToRaw())

	rangeLike := map[string]any{"minimum": 0.0, "type": "number"}
	assert.Equal(t, KindJSONSchema, FromRaw(rangeLike).Kind)
	assert.Equal(t, rangeLike, FromRaw(rangeLike).ToRaw())
}

func TestWireEncoding(t *testing.T) {
	data, err := json.Marshal(Range(1, 2))
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"range","minimum":1,"maximum":2}`, string(data))

	var v Value
	require.NoError(t, json.Unmarshal([]byte(`{"kind":"set","values":["x"]}`), &v))
	assert.Equal(t, Set("x"), v)

	require.NoError(t, json.Unmarshal([]byte(`{"kind":"jsonschema","schema":{"type":"integer"}}`), &v))
	assert.Equal(t, Fragment(map[string]any{"type": "integer"}), v)

	assert.Error(t, json.Unmarshal([]byte(`{"kind":"range","minimum":1}`), &v))
	assert.Error(t, json.Unmarshal([]byte(`{"kind":"bogus"}`), &v))
}

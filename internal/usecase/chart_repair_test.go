package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeJSON(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"trailing comma object", `{"a": 1,}`, `{"a": 1}`},
		{"trailing comma array", `[1, 2, 3,]`, `[1, 2, 3]`},
		{"duplicate commas", `[1,, 2,,, 3]`, `[1, 2, 3]`},
		{"single quotes", `{'a': 'b'}`, `{"a": "b"}`},
		{"smart quotes", "{“a”: 1}", `{"a": 1}`},
		{"line comment", "{\"a\": 1 // note\n}", "{\"a\": 1 \n}"},
		{"block comment", `{"a": /* hint */ 1}`, `{"a": 1}`},
		{"control chars", "{\"a\":\x01 1}", `{"a": 1}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.JSONEq(t, tc.want, sanitizeJSON(tc.in))
		})
	}
}

func TestReconstructFields(t *testing.T) {
	out, err := reconstructFields(`chart_id: "r1" chart_type: "pie" chart_title: "Mix" chart_data: [{"name":"A","value":1}]`)
	require.NoError(t, err)
	assert.Equal(t, "r1", out["id"])
	assert.Equal(t, "pie", out["type"])
	assert.Equal(t, "Mix", out["title"])
	assert.NotNil(t, out["data"])
}

func TestReconstructFieldsFailsOnGarbage(t *testing.T) {
	_, err := reconstructFields("nothing recoverable here")
	assert.ErrorIs(t, err, errReconstruct)
}

func TestStripCodeFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripCodeFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripCodeFences(`{"a":1}`))
}

func TestSnakeToCamel(t *testing.T) {
	assert.Equal(t, "xAxisKey", snakeToCamel("x_axis_key"))
	assert.Equal(t, "showLegend", snakeToCamel("show_legend"))
	assert.Equal(t, "colors", snakeToCamel("colors"))
}

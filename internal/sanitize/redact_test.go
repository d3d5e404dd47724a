package sanitize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedactorString(t *testing.T) {
	r := New(20)

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "fenced code becomes sentinel",
			input:    "Adds numbers.\n```go\nreturn a + b\n```",
			expected: RedactionSentinel,
		},
		{
			name:     "fence on first line",
			input:    "```",
			expected: RedactionSentinel,
		},
		{
			name:     "multi-line keeps first line",
			input:    "Adds two numbers.\nSecond line with details.",
			expected: "Adds two numbers.",
		},
		{
			name:     "carriage return line break",
			input:    "first\r\nsecond",
			expected: "first",
		},
		{
			name:     "trimmed",
			input:    "   padded   ",
			expected: "padded",
		},
		{
			name:     "capped with ellipsis",
			input:    strings.Repeat("a", 50),
			expected: strings.Repeat("a", 17) + Ellipsis,
		},
		{
			name:     "exactly at cap untouched",
			input:    strings.Repeat("b", 20),
			expected: strings.Repeat("b", 20),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, r.String(tt.input))
		})
	}
}

func TestRedactorStringCountsRunes(t *testing.T) {
	r := New(5)
	out := r.String("ééééééé")
	assert.Equal(t, "éé"+Ellipsis, out)
}

func TestDefaultMaxLength(t *testing.T) {
	out := Default.String(strings.Repeat("x", 5000))
	assert.Equal(t, DefaultMaxLength, len(out))
	assert.True(t, strings.HasSuffix(out, Ellipsis))
}

func TestRedactorValue(t *testing.T) {
	input := map[string]interface{}{
		"summary": "Computes totals.\nMore text.",
		"example": "```py\nprint(1)\n```",
		"params": []interface{}{
			map[string]interface{}{"name": "a", "doc": "line one\nline two"},
			float64(3),
			true,
		},
		"count": float64(7),
	}

	out, ok := Default.Value(input).(map[string]interface{})
	require.True(t, ok)

	assert.Equal(t, "Computes totals.", out["summary"])
	assert.Equal(t, RedactionSentinel, out["example"])
	assert.Equal(t, float64(7), out["count"])

	params := out["params"].([]interface{})
	require.Len(t, params, 3)
	assert.Equal(t, "line one", params[0].(map[string]interface{})["doc"])
	assert.Equal(t, float64(3), params[1])
	assert.Equal(t, true, params[2])

	assert.Equal(t, "Computes totals.\nMore text.", input["summary"], "input must not be mutated")
}

func TestRedactorValueBounds(t *testing.T) {
	t.Run("items per level capped", func(t *testing.T) {
		list := make([]interface{}, 500)
		for i := range list {
			list[i] = "x"
		}
		out := Default.Value(list).([]interface{})
		assert.Len(t, out, DefaultMaxItems)

		m := make(map[string]interface{}, 300)
		for i := 0; i < 300; i++ {
			m[strings.Repeat("k", 1)+string(rune('A'+i%26))+strings.Repeat("z", i/26)] = i
		}
		assert.Len(t, Default.Value(m).(map[string]interface{}), DefaultMaxItems)
	})

	t.Run("depth capped", func(t *testing.T) {
		var v interface{} = "leaf"
		for i := 0; i < 10; i++ {
			v = map[string]interface{}{"n": v}
		}
		out := Default.Value(v)

		depth := 0
		for {
			m, ok := out.(map[string]interface{})
			if !ok {
				break
			}
			depth++
			out = m["n"]
		}
		assert.Equal(t, DefaultMaxDepth, depth)
		assert.Nil(t, out)
	})
}

func TestRedactorFields(t *testing.T) {
	data := map[string]interface{}{
		"symbolUid": "sym1_abc",
		"filePath":  "a/b.go",
		"docstring": "Doc.\n```go\nx\n```",
		"contract":  map[string]interface{}{"returns": "int\nand more"},
	}
	keep := map[string]bool{"symbolUid": true, "filePath": true}

	out := Default.Fields(data, keep)
	assert.Equal(t, "sym1_abc", out["symbolUid"])
	assert.Equal(t, "a/b.go", out["filePath"])
	assert.Equal(t, RedactionSentinel, out["docstring"])
	assert.Equal(t, map[string]interface{}{"returns": "int"}, out["contract"])
}

func TestRedactorFields_FullDepthPerField(t *testing.T) {
	var v interface{} = "leaf"
	for i := 0; i < 10; i++ {
		v = map[string]interface{}{"n": v}
	}
	out := Default.Fields(map[string]interface{}{"metadata": v}, nil)["metadata"]

	depth := 0
	for {
		m, ok := out.(map[string]interface{})
		if !ok {
			break
		}
		depth++
		out = m["n"]
	}
	assert.Equal(t, DefaultMaxDepth, depth)
	assert.Equal(t, Default.Value(v), Default.Fields(map[string]interface{}{"metadata": v}, nil)["metadata"])
}

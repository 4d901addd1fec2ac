package service

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReport(t *testing.T) {
	t.Run("plain json", func(t *testing.T) {
		report, normalized, err := ParseReport(validReport)
		require.NoError(t, err)
		assert.Equal(t, 64, report.Score)
		assert.Equal(t, "C", report.Grade)
		require.Len(t, report.Risks, 1)
		assert.Equal(t, "high", report.Risks[0].Severity)
		assert.Equal(t, []string{"30-day refund window"}, report.Highlights)

		var decoded map[string]interface{}
		require.NoError(t, json.Unmarshal(normalized, &decoded))
		assert.EqualValues(t, 64, decoded["score"])
	})

	t.Run("markdown fence", func(t *testing.T) {
		report, _, err := ParseReport("```json\n" + validReport + "\n```")
		require.NoError(t, err)
		assert.Equal(t, 64, report.Score)
	})

	t.Run("prose around json", func(t *testing.T) {
		report, _, err := ParseReport("Here is the analysis:\n" + validReport + "\nLet me know if you need more.")
		require.NoError(t, err)
		assert.Equal(t, "C", report.Grade)
	})

	t.Run("empty risks", func(t *testing.T) {
		report, _, err := ParseReport(`{"score": 95, "grade": "A", "summary": "Fair.", "risks": []}`)
		require.NoError(t, err)
		assert.NotNil(t, report.Risks)
		assert.Empty(t, report.Risks)
	})
}

func TestParseReport_Invalid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"no json", "I cannot help with that."},
		{"broken json", `{"score": 10, "grade": `},
		{"score out of range", `{"score": 150, "grade": "A", "summary": "x", "risks": []}`},
		{"fractional score", `{"score": 50.5, "grade": "C", "summary": "x", "risks": []}`},
		{"bad grade", `{"score": 50, "grade": "Z", "summary": "x", "risks": []}`},
		{"missing summary", `{"score": 50, "grade": "C", "risks": []}`},
		{"bad severity", `{"score": 50, "grade": "C", "summary": "x", "risks": [{"title": "t", "severity": "extreme"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ParseReport(tt.raw)
			assert.ErrorIs(t, err, ErrInvalidAIResponse)
		})
	}
}

func TestRenderPrompt(t *testing.T) {
	basic, err := RenderPrompt("privacy_policy", "Acme Privacy", "We collect data.", false)
	require.NoError(t, err)
	assert.Contains(t, basic, "privacy policy")
	assert.Contains(t, basic, `titled "Acme Privacy"`)
	assert.Contains(t, basic, "We collect data.")
	assert.NotContains(t, basic, "clause by clause")

	advanced, err := RenderPrompt("unknown", "", "text", true)
	require.NoError(t, err)
	assert.Contains(t, advanced, "legal document")
	assert.Contains(t, advanced, "clause by clause")
	assert.NotContains(t, advanced, "titled")
}

func TestPreprocess(t *testing.T) {
	assert.Equal(t, "", Preprocess(" \t\n\x00 ", 100))
	assert.Equal(t, "a b\n\nc", Preprocess("a \x07  b\r\n\n\n\n c  ", 100))
	assert.Equal(t, "abc", Preprocess("abcdef", 3))
	assert.Equal(t, "条款", Preprocess("条款内容", 2))
}

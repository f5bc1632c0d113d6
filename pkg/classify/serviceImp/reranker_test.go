package serviceImp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fsservice "triage/pkg/fewshot/service"
)

func TestStripCodeFence(t *testing.T) {
	cases := map[string]string{
		"{\"a\":1}":                          "{\"a\":1}",
		"```json\n{\"a\":1}\n```":            "{\"a\":1}",
		"```\n{\"a\":1}\n```":                "{\"a\":1}",
		"  ```json\n{\"a\":1}\n```  ":        "{\"a\":1}",
		"plain text, no fence at all really": "plain text, no fence at all really",
	}
	for in, want := range cases {
		assert.Equal(t, want, stripCodeFence(in))
	}
}

func TestParseRerankDecision(t *testing.T) {
	d, err := parseRerankDecision(`{"selected_id": 42, "confidence": 0.85, "justification": "matches"}`)
	require.NoError(t, err)
	require.NotNil(t, d.SelectedID)
	assert.Equal(t, uint(42), *d.SelectedID)
	assert.Equal(t, 0.85, d.Confidence)
	assert.Equal(t, "matches", d.Justification)
}

func TestParseRerankDecisionNullSelection(t *testing.T) {
	d, err := parseRerankDecision(`{"selected_id": null, "confidence": 0.0, "justification": "No suitable category found among candidates"}`)
	require.NoError(t, err)
	assert.Nil(t, d.SelectedID)
}

func TestParseRerankDecisionClampsConfidence(t *testing.T) {
	d, err := parseRerankDecision(`{"selected_id": 1, "confidence": 1.7, "justification": "x"}`)
	require.NoError(t, err)
	assert.Equal(t, 1.0, d.Confidence)

	d, err = parseRerankDecision(`{"selected_id": 1, "confidence": -0.2, "justification": "x"}`)
	require.NoError(t, err)
	assert.Equal(t, 0.0, d.Confidence)
}

func TestParseRerankDecisionRejectsGarbage(t *testing.T) {
	_, err := parseRerankDecision("I think it is category 3")
	assert.Error(t, err)
}

func TestFormatCandidateExamplesEmpty(t *testing.T) {
	assert.Equal(t, noExamplesMarker, formatCandidateExamples(nil))
}

func TestFormatCandidateExamples(t *testing.T) {
	out := formatCandidateExamples([]fsservice.PromptExample{
		{Summary: "VPN drops hourly", Source: "corrected", Confidence: 0.9, Department: "Finance", Date: "2025-11-03"},
	})
	assert.Contains(t, out, "Example 1:")
	assert.Contains(t, out, "VPN drops hourly")
	assert.Contains(t, out, "Confidence: 0.90")
	assert.Contains(t, out, "2025-11-03")
}

package classify

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/leaf-doctor/pkg/types"
)

func TestCanonical(t *testing.T) {
	tests := map[string]string{
		"Potato___Early_blight":      "Potato___Early_blight",
		"potato early blight":        "Potato___Early_blight",
		"  TOMATO-HEALTHY ":          "Tomato_healthy",
		"Pepper bell Bacterial spot": "Pepper__bell___Bacterial_spot",
		"corn rust":                  Unknown,
		"":                           Unknown,
	}
	for in, want := range tests {
		assert.Equal(t, want, Canonical(in), in)
	}
}

func TestIsHealthy(t *testing.T) {
	assert.True(t, IsHealthy("Potato___healthy"))
	assert.False(t, IsHealthy("Potato___Early_blight"))
}

func TestPrompt_ListsEveryClass(t *testing.T) {
	p := Prompt()
	for _, c := range ClassNames {
		assert.Contains(t, p, c)
	}
}

func TestSanitizeModelJSON(t *testing.T) {
	raw := "```json\n{\n  // answer\n  \"class\": \"Tomato_healthy\", /* sure */\n  \"confidence\": 0.9,\n}\n```"
	assert.Equal(t, `{"class":"Tomato_healthy","confidence":0.9}`, compact(SanitizeModelJSON(raw)))

	assert.Equal(t, `{"a":1}`, SanitizeModelJSON(`Sure! Here it is: {"a":1} hope that helps`))
}

func TestParseAnswer(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantClass string
		wantConf  float64
	}{
		{"plain", `{"class":"Potato___Early_blight","confidence":0.87}`, "Potato___Early_blight", 0.87},
		{"percent", `{"class":"Tomato_healthy","confidence":92}`, "Tomato_healthy", 0.92},
		{"label key", `{"label":"tomato bacterial spot","confidence":0.5}`, "Tomato_Bacterial_spot", 0.5},
		{"clamped", `{"class":"Tomato_healthy","confidence":-3}`, "Tomato_healthy", 0},
		{"over 100", `{"class":"Tomato_healthy","confidence":250}`, "Tomato_healthy", 1},
		{"unlisted class", `{"class":"Corn rust","confidence":0.8}`, Unknown, 0},
		{"explicit unknown", `{"class":"Unknown","confidence":0.6}`, Unknown, 0.6},
		{"prose", `I think this is a potato leaf.`, Unknown, 0},
		{"broken json", `{"class": "Tomato_healthy", "confidence": }`, Unknown, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := ParseAnswer(tt.raw)
			require.NotNil(t, d)
			assert.Equal(t, tt.wantClass, d.Class)
			assert.InDelta(t, tt.wantConf, d.Confidence, 1e-9)
		})
	}
}

func TestBuiltinKnowledgeBase(t *testing.T) {
	kb := Builtin()
	assert.Len(t, kb, 4)
	for class := range kb {
		assert.Contains(t, ClassNames, class)
	}

	info := kb.Lookup("Potato___Early_blight")
	assert.Equal(t, "Alternaria solani fungus", info.Cause[0])
	assert.Len(t, info.Precaution, 3)
	assert.Len(t, info.Cure, 3)
}

func TestEnrich_HealthyGetsEmptyLists(t *testing.T) {
	d := &types.Diagnosis{Class: "Tomato_healthy", Confidence: 0.99}
	Builtin().Enrich(d)

	assert.NotNil(t, d.Cause)
	assert.Empty(t, d.Cause)
	assert.Empty(t, d.Precaution)
	assert.Empty(t, d.Cure)
}

func TestParseKnowledgeBase_Invalid(t *testing.T) {
	_, err := ParseKnowledgeBase([]byte("cause: [unterminated"))
	assert.Error(t, err)
}

func compact(s string) string {
	return strings.Join(strings.Fields(s), "")
}

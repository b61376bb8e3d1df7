package classify

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/menta2k/leaf-doctor/pkg/types"
)

// Prompt asks a vision model to classify a leaf photo.
func Prompt() string {
	return fmt.Sprintf(`You are a plant pathologist classifying a single leaf photo.

Return JSON only:
{"class": "one of the allowed classes", "confidence": 0.0}

ALLOWED CLASSES
%s

RULES
- confidence is your certainty in [0,1].
- If the photo is not a pepper, potato or tomato leaf, answer "%s".
- JSON only. No markdown, no code fences, no comments, no trailing commas.`,
		"- "+strings.Join(ClassNames, "\n- "), Unknown)
}

// SimpleTestPrompt checks that the model can see images at all.
const SimpleTestPrompt = `What do you see in this image? Describe it briefly.`

type answer struct {
	Class      string  `json:"class"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// ParseAnswer turns a raw model answer into a Diagnosis. Answers without
// usable JSON yield Unknown with zero confidence rather than an error, since
// a chatty model is not a transport failure.
func ParseAnswer(raw string) *types.Diagnosis {
	raw = SanitizeModelJSON(raw)

	var a answer
	if !strings.HasPrefix(raw, "{") || json.Unmarshal([]byte(raw), &a) != nil {
		return &types.Diagnosis{Class: Unknown}
	}
	if a.Class == "" {
		a.Class = a.Label
	}

	d := &types.Diagnosis{
		Class:      Canonical(a.Class),
		Confidence: normalizeConfidence(a.Confidence),
	}
	if d.Class == Unknown && !strings.EqualFold(strings.TrimSpace(a.Class), Unknown) {
		d.Confidence = 0
	}
	return d
}

// normalizeConfidence accepts both fractions and percentages.
func normalizeConfidence(c float64) float64 {
	if c > 1 && c <= 100 {
		c /= 100
	}
	return clamp(c, 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

var (
	reBlock    = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reLine     = regexp.MustCompile(`(?m)^\s*//.*$`)
	reInline   = regexp.MustCompile(`(?m)\s//.*$`)
	reTrailing = regexp.MustCompile(`,(\s*[}\]])`)
)

// SanitizeModelJSON strips code fences, comments and trailing commas, and
// keeps only the outermost {...}.
func SanitizeModelJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.Trim(strings.TrimSpace(raw), "`")

	raw = reBlock.ReplaceAllString(raw, "")
	raw = reLine.ReplaceAllString(raw, "")
	raw = reInline.ReplaceAllString(raw, "")
	raw = reTrailing.ReplaceAllString(raw, "$1")

	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}
	return strings.TrimSpace(raw)
}

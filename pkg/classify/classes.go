// Package classify holds what the vision-model backends need to turn a free
// form model answer into a Diagnosis: the class list, the prompt, answer
// sanitation and the disease knowledge base.
package classify

import "strings"

// Unknown is reported when the leaf matches no known class.
const Unknown = "Unknown"

// ClassNames lists every class the classifier can report.
var ClassNames = []string{
	"Pepper__bell___Bacterial_spot",
	"Pepper__bell___healthy",
	"Potato___Early_blight",
	"Potato___healthy",
	"Tomato_Bacterial_spot",
	"Tomato_Early_blight",
	"Tomato_healthy",
	Unknown,
}

// Canonical maps a model supplied label onto ClassNames. Matching ignores
// case, surrounding whitespace and the difference between spaces, dashes
// and underscores. Anything unmatched becomes Unknown.
func Canonical(label string) string {
	key := foldLabel(label)
	if key == "" {
		return Unknown
	}
	for _, c := range ClassNames {
		if foldLabel(c) == key {
			return c
		}
	}
	return Unknown
}

// IsHealthy reports whether class denotes a healthy leaf.
func IsHealthy(class string) bool {
	return strings.HasSuffix(strings.ToLower(class), "healthy")
}

func foldLabel(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '_', '-', ' ':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

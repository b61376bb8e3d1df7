package controller

import (
	"fmt"
	"math"

	"github.com/menta2k/leaf-doctor/pkg/i18n"
)

// Confidence bands.
const (
	BandConfident = "confident"
	BandModerate  = "moderate"
	BandLow       = "low"
)

// View is the localized rendering of the current state.
type View struct {
	Language   string   `json:"language"`
	Title      string   `json:"title"`
	PreviewURL string   `json:"preview_url,omitempty"`
	Loading    bool     `json:"loading"`
	Message    string   `json:"message,omitempty"`
	Result     *Result  `json:"result,omitempty"`
	Languages  []Option `json:"languages"`
}

// Option is a selectable language.
type Option struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Result is a rendered diagnosis.
type Result struct {
	Class      string `json:"class"`
	Disease    string `json:"disease"`
	Confidence string `json:"confidence"`
	Band       string `json:"band"`

	Labels     Labels   `json:"labels"`
	Cause      []string `json:"cause"`
	Precaution []string `json:"precaution"`
	Cure       []string `json:"cure"`
}

// Labels are the localized section headings of a Result.
type Labels struct {
	Label       string `json:"label"`
	Confidence  string `json:"confidence"`
	Causes      string `json:"causes"`
	Precautions string `json:"precautions"`
	Treatment   string `json:"treatment"`
}

// View renders the state in its language.
func (c *Controller) View() View {
	s := c.State()
	return Render(c.catalog, s)
}

// Render builds the view of s.
func Render(cat *i18n.Catalog, s State) View {
	lang := s.Language
	v := View{
		Language:   lang,
		Title:      cat.T(lang, "appTitle"),
		PreviewURL: s.PreviewURL,
		Loading:    s.Loading,
		Message:    s.Message,
	}
	for _, code := range cat.Languages() {
		v.Languages = append(v.Languages, Option{Code: code, Name: cat.LanguageName(lang, code)})
	}

	if d := s.Diagnosis; d != nil {
		pct := ConfidencePercent(d.Confidence)
		v.Result = &Result{
			Class:      d.Class,
			Disease:    cat.DiseaseName(lang, d.Class),
			Confidence: fmt.Sprintf("%.2f", pct),
			Band:       Band(pct),
			Labels: Labels{
				Label:       cat.T(lang, "label"),
				Confidence:  cat.T(lang, "confidence"),
				Causes:      cat.T(lang, "causes"),
				Precautions: cat.T(lang, "precautions"),
				Treatment:   cat.T(lang, "treatment"),
			},
			Cause:      d.Cause,
			Precaution: d.Precaution,
			Cure:       d.Cure,
		}
	}
	return v
}

// ConfidencePercent converts a [0,1] confidence to a percentage rounded to
// two decimals.
func ConfidencePercent(confidence float64) float64 {
	return math.Round(confidence*100*100) / 100
}

// Band classifies a percentage as shown.
func Band(percent float64) string {
	switch {
	case percent >= 80:
		return BandConfident
	case percent >= 50:
		return BandModerate
	default:
		return BandLow
	}
}

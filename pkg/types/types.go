package types

import (
	"image"
	"time"
)

// VideoInput is the only device kind the capture layer reports.
const VideoInput = "videoinput"

// CaptureDevice is a camera known to the platform
type CaptureDevice struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Kind  string `json:"kind"`
}

// RawFrame is a still frame copied out of a live capture session
type RawFrame struct {
	Image      *image.NRGBA
	DeviceID   string
	CapturedAt time.Time
}

// Width returns the frame width in pixels
func (f RawFrame) Width() int {
	if f.Image == nil {
		return 0
	}
	return f.Image.Bounds().Dx()
}

// Height returns the frame height in pixels
func (f RawFrame) Height() int {
	if f.Image == nil {
		return 0
	}
	return f.Image.Bounds().Dy()
}

// Artifact is the fixed-size encoded image sent to the classifier
type Artifact struct {
	Data        []byte `json:"-"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	// SourceWidth and SourceHeight are the natural dimensions before normalization.
	SourceWidth  int `json:"source_width"`
	SourceHeight int `json:"source_height"`
}

// Diagnosis is the classifier's answer for one leaf image
type Diagnosis struct {
	Class      string   `json:"class"`
	Confidence float64  `json:"confidence"`
	Cause      []string `json:"cause"`
	Precaution []string `json:"precaution"`
	Cure       []string `json:"cure"`
}

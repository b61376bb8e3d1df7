package capture

import (
	"context"
	"errors"
	"image"
)

// Errors a Platform reports. The Manager maps them onto failure kinds.
var (
	ErrNotAllowed   = errors.New("camera access not allowed")
	ErrNotFound     = errors.New("camera not found")
	ErrNotSupported = errors.New("media capture not supported")
	ErrNotReady     = errors.New("capture source not ready")
	ErrNoSession    = errors.New("no active capture session")
)

// FacingEnvironment asks for the rear camera when no device is pinned.
const FacingEnvironment = "environment"

// Constraints describe the stream a caller wants.
type Constraints struct {
	IdealWidth  int
	IdealHeight int
	// DeviceID pins an exact device. Empty means the platform default.
	DeviceID   string
	FacingMode string
}

// DeviceInfo is a raw device entry as enumerated by the platform.
type DeviceInfo struct {
	ID    string
	Label string
	Kind  string
}

// Platform is the media boundary: it owns the real camera APIs.
type Platform interface {
	Supported() bool
	RequestStream(ctx context.Context, c Constraints) (Stream, error)
	EnumerateDevices(ctx context.Context) ([]DeviceInfo, error)
}

// Stream is a live media stream made of one or more tracks.
type Stream interface {
	Tracks() []Track
	Source() Source
}

// Track is a single hardware track; Stop releases it.
type Track interface {
	Stop()
}

// Source is the live pixel source of a stream.
type Source interface {
	// Ready is closed once the source knows its dimensions.
	Ready() <-chan struct{}
	Dimensions() (width, height int)
	Frame() (image.Image, error)
}

// PlatformConfig configures DefaultPlatform.
type PlatformConfig struct {
	// MaxProbe bounds how many device indices are probed during enumeration.
	MaxProbe int
}

func stopTracks(s Stream) {
	if s == nil {
		return
	}
	for _, t := range s.Tracks() {
		t.Stop()
	}
}
